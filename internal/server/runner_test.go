package server

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/koustreak/sqlrefine/internal/datasource"
	"github.com/koustreak/sqlrefine/internal/errs"
	"github.com/koustreak/sqlrefine/internal/refine"
)

const dump = "CREATE TABLE `t` (\n" +
	"  `id` int NOT NULL,\n" +
	"  `name` varchar(10) DEFAULT NULL\n" +
	");\n" +
	"INSERT INTO `t` VALUES\n" +
	"(1,''),\n" +
	"(2,'bob');\n"

func writeDump(t *testing.T, name string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(dump), 0o644))
	return path
}

func refineConfig(t *testing.T) refine.Config {
	return refine.Config{OutputDir: t.TempDir(), WorkDir: t.TempDir()}
}

// startRunner runs r until the test ends.
func startRunner(t *testing.T, r *Runner) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		_ = r.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-stopped
	})
}

func waitDone(t *testing.T, r *Runner, id string) Job {
	t.Helper()
	var job Job
	require.Eventually(t, func() bool {
		var err error
		job, err = r.Job(context.Background(), id)
		require.NoError(t, err)
		return job.State.Done()
	}, 5*time.Second, 10*time.Millisecond)
	return job
}

// blockingSource blocks in Open until release is closed.
type blockingSource struct {
	name    string
	release chan struct{}
}

func (b *blockingSource) Name() string { return b.name }

func (b *blockingSource) Open(ctx context.Context) (io.ReadCloser, error) {
	select {
	case <-b.release:
		return io.NopCloser(strings.NewReader(dump)), nil
	case <-ctx.Done():
		return nil, errs.Wrap(errs.ErrKindTimeout, "open", ctx.Err())
	}
}

func TestRunner_Succeeds(t *testing.T) {
	cfg := refineConfig(t)
	r := NewRunner(cfg, nil, 4, nil)
	startRunner(t, r)

	cleaned := make(chan struct{})
	job, err := r.Submit(context.Background(), Request{
		Source:  datasource.NewLocal(writeDump(t, "shop.sql")),
		Cleanup: func() { close(cleaned) },
	})
	require.NoError(t, err)
	assert.Equal(t, "shop.sql", job.Source)
	assert.NotEmpty(t, job.ID)

	job = waitDone(t, r, job.ID)
	assert.Equal(t, StateSucceeded, job.State, job.Error)
	assert.Equal(t, 100, job.Progress)
	require.NotNil(t, job.Result)
	assert.Equal(t, filepath.Join(cfg.OutputDir, "shop.sql"), job.Result.Path)
	assert.FileExists(t, job.Result.Path)
	assert.NotNil(t, job.Started)
	assert.NotNil(t, job.Finished)
	require.NotEmpty(t, job.Log)
	assert.Contains(t, job.Log[len(job.Log)-1], "Finished: Step 5: Cleanup")

	select {
	case <-cleaned:
	case <-time.After(5 * time.Second):
		t.Fatal("cleanup not called")
	}
}

func TestRunner_Fails(t *testing.T) {
	r := NewRunner(refineConfig(t), nil, 4, nil)
	startRunner(t, r)

	job, err := r.Submit(context.Background(), Request{
		Source: datasource.NewLocal(filepath.Join(t.TempDir(), "absent.sql")),
	})
	require.NoError(t, err)

	job = waitDone(t, r, job.ID)
	assert.Equal(t, StateFailed, job.State)
	assert.Contains(t, job.Error, "not_found")
	assert.Nil(t, job.Result)
}

func TestRunner_QueueFull(t *testing.T) {
	r := NewRunner(refineConfig(t), nil, 1, nil)
	startRunner(t, r)

	first := &blockingSource{name: "a.sql", release: make(chan struct{})}
	job, err := r.Submit(context.Background(), Request{Source: first})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		j, err := r.Job(context.Background(), job.ID)
		return err == nil && j.State == StateRunning
	}, 5*time.Second, 10*time.Millisecond)

	_, err = r.Submit(context.Background(), Request{Source: &blockingSource{name: "b.sql", release: first.release}})
	require.NoError(t, err)

	_, err = r.Submit(context.Background(), Request{Source: &blockingSource{name: "c.sql", release: first.release}})
	assert.ErrorIs(t, err, ErrQueueFull)

	close(first.release)
	waitDone(t, r, job.ID)

	jobs, err := r.Jobs(context.Background())
	require.NoError(t, err)
	require.Len(t, jobs, 2)
	assert.Equal(t, "a.sql", jobs[0].Source)
	assert.Equal(t, "b.sql", jobs[1].Source)
}

func TestRunner_UnknownJob(t *testing.T) {
	r := NewRunner(refineConfig(t), nil, 1, nil)
	startRunner(t, r)

	_, err := r.Job(context.Background(), "nope")
	assert.True(t, errs.IsNotFound(err))
}

func TestRunner_NoSource(t *testing.T) {
	r := NewRunner(refineConfig(t), nil, 1, nil)
	_, err := r.Submit(context.Background(), Request{})
	assert.True(t, errs.IsInvalidInput(err))
}

func TestRunner_Stopped(t *testing.T) {
	r := NewRunner(refineConfig(t), nil, 1, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, r.Run(ctx))

	_, err := r.Submit(context.Background(), Request{Source: datasource.NewLocal("x.sql")})
	assert.ErrorIs(t, err, ErrStopped)
	_, err = r.Jobs(context.Background())
	assert.ErrorIs(t, err, ErrStopped)
}

func TestRunner_ShutdownCancelsRunningJob(t *testing.T) {
	r := NewRunner(refineConfig(t), nil, 2, nil)
	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		_ = r.Run(ctx)
	}()

	src := &blockingSource{name: "a.sql", release: make(chan struct{})}
	job, err := r.Submit(context.Background(), Request{Source: src})
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		j, err := r.Job(context.Background(), job.ID)
		return err == nil && j.State == StateRunning
	}, 5*time.Second, 10*time.Millisecond)

	cleaned := make(chan struct{})
	_, err = r.Submit(context.Background(), Request{
		Source:  &blockingSource{name: "b.sql", release: src.release},
		Cleanup: func() { close(cleaned) },
	})
	require.NoError(t, err)

	cancel()
	select {
	case <-stopped:
	case <-time.After(5 * time.Second):
		t.Fatal("runner did not stop")
	}
	select {
	case <-cleaned:
	case <-time.After(time.Second):
		t.Fatal("queued job not cleaned up")
	}
}

func TestJob_AppendLogBounded(t *testing.T) {
	var j Job
	for i := 0; i < maxLogLines+5; i++ {
		j.appendLog(strings.Repeat("x", i%3))
	}
	assert.Len(t, j.Log, maxLogLines)
}
