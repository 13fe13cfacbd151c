package refine

import (
	"context"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/koustreak/sqlrefine/internal/datasource"
	"github.com/koustreak/sqlrefine/internal/errs"
	"github.com/koustreak/sqlrefine/internal/metrics"
)

const shopDump = `-- MySQL dump 10.13
SET FOREIGN_KEY_CHECKS=0;
CREATE TABLE t (id int, name varchar(250) not null, status enum('a','b') not null);
CREATE VIEW v1 AS SELECT id FROM t;
INSERT INTO t VALUES
(1,'','z'),
(2,'bob','b');
INSERT INTO v_summary VALUES (1,2);
`

const shopRefined = "-- Start of shop_0.sql\n" +
	"CREATE TABLE t (id int, name VARCHAR(191) not null, status enum('a','b') not null);\n\n" +
	"\n-- End of shop_0.sql\n\n" +
	"-- Start of shop_temp_refined.sql\n" +
	"INSERT INTO t VALUES\n(1, '', 'a'),\n(2, 'bob', 'b');\n" +
	"\n-- End of shop_temp_refined.sql\n\n" +
	"-- Start of shop_temp_extra.sql\n" +
	"CREATE VIEW v1 AS SELECT id FROM t;\n\n-- INSERT INTO v_summary VALUES (1,2);\n" +
	"\n-- End of shop_temp_extra.sql\n\n"

func writeDump(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestRefiner_Run(t *testing.T) {
	input := writeDump(t, "shop.sql", shopDump)
	outDir := filepath.Join(t.TempDir(), "out")
	workDir := t.TempDir()

	rec := &recorder{}
	r := New(Config{OutputDir: outDir, WorkDir: workDir}, rec, nil)

	res, err := r.Run(context.Background(), datasource.NewLocal(input))
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(outDir, "shop.sql"), res.Path)
	got, err := os.ReadFile(res.Path)
	require.NoError(t, err)
	assert.Equal(t, shopRefined, string(got))
	assert.Equal(t, int64(len(shopRefined)), res.Bytes)

	sum, err := Checksum(strings.NewReader(shopRefined))
	require.NoError(t, err)
	assert.Equal(t, sum, res.Checksum)
	assert.Len(t, res.Checksum, 16)

	assert.Equal(t, 1, res.Schema.Tables)
	assert.Equal(t, 1, res.Schema.ExtraBlocks)
	assert.Equal(t, 1, res.Partition.Inserts)
	assert.Equal(t, 1, res.Partition.Diverted)
	assert.Equal(t, 2, res.Repair.Rows)
	assert.Equal(t, 1, res.Repair.EnumFixed)
	assert.Len(t, res.Durations, 5)

	assert.Equal(t, []int{0, 25, 50, 75, 90, 100}, rec.progress)

	started := regexp.MustCompile(`^\[\d{4}-\d{2}-\d{2} \d{2}:\d{2}:\d{2}\] Starting: Step \d: `)
	finished := regexp.MustCompile(`^\[\d{4}-\d{2}-\d{2} \d{2}:\d{2}:\d{2}\] Finished: Step \d: .+ \(took \d+m \d+s\)$`)
	var starts, finishes int
	for _, m := range rec.messages {
		if started.MatchString(m) {
			starts++
		}
		if finished.MatchString(m) {
			finishes++
		}
	}
	assert.Equal(t, 5, starts)
	assert.Equal(t, 5, finishes)
	assert.Contains(t, rec.messages[0], "Starting: Step 1: Extract CREATE TABLEs and metadata")

	entries, err := os.ReadDir(workDir)
	require.NoError(t, err)
	assert.Empty(t, entries, "workspace removed")
}

func TestRefiner_NoInserts(t *testing.T) {
	input := writeDump(t, "schema_only.sql", "CREATE TABLE a (x int);\n")
	outDir := t.TempDir()

	res, err := New(Config{OutputDir: outDir}, nil, nil).Run(context.Background(), datasource.NewLocal(input))
	require.NoError(t, err)

	got, err := os.ReadFile(res.Path)
	require.NoError(t, err)
	assert.Equal(t,
		"-- Start of schema_only_0.sql\nCREATE TABLE a (x int);\n\n\n-- End of schema_only_0.sql\n\n",
		string(got))
	assert.Zero(t, res.Repair.Rows)
}

func TestRefiner_MissingInput(t *testing.T) {
	workDir := t.TempDir()
	outDir := filepath.Join(t.TempDir(), "out")

	_, err := New(Config{OutputDir: outDir, WorkDir: workDir}, nil, nil).
		Run(context.Background(), datasource.NewLocal(filepath.Join(t.TempDir(), "nope.sql")))
	require.Error(t, err)
	assert.True(t, errs.IsNotFound(err))

	entries, err := os.ReadDir(workDir)
	require.NoError(t, err)
	assert.Empty(t, entries, "workspace removed on error")
	assert.NoFileExists(t, filepath.Join(outDir, "nope.sql"))
}

func TestRefiner_Canceled(t *testing.T) {
	input := writeDump(t, "shop.sql", shopDump)
	ctx, cancel := context.WithCancel(context.Background())

	// Cancel as soon as the first step finishes.
	obs := &cancelAfter{progress: 25, cancel: cancel}
	_, err := New(Config{OutputDir: t.TempDir()}, obs, nil).Run(ctx, datasource.NewLocal(input))
	require.Error(t, err)
	assert.True(t, errs.IsTimeout(err))
}

type cancelAfter struct {
	progress int
	cancel   context.CancelFunc
}

func (c *cancelAfter) Message(string) {}
func (c *cancelAfter) Progress(p int) {
	if p >= c.progress {
		c.cancel()
	}
}

func TestRefine(t *testing.T) {
	input := writeDump(t, "shop.sql", shopDump)
	outDir := t.TempDir()

	var msgs []string
	path, err := Refine(context.Background(), input, ObserverFunc(func(m string) { msgs = append(msgs, m) }), outDir)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(outDir, "shop.sql"), path)
	assert.FileExists(t, path)
	assert.NotEmpty(t, msgs)
}

func TestRefine_Deterministic(t *testing.T) {
	input := writeDump(t, "shop.sql", shopDump)

	first, err := New(Config{OutputDir: t.TempDir()}, nil, nil).Run(context.Background(), datasource.NewLocal(input))
	require.NoError(t, err)
	second, err := New(Config{OutputDir: t.TempDir()}, nil, nil).Run(context.Background(), datasource.NewLocal(input))
	require.NoError(t, err)

	assert.Equal(t, first.Checksum, second.Checksum)
}

// stepBackend counts the metric calls made by a run.
type stepBackend struct {
	mu    sync.Mutex
	steps map[string]int
	rows  map[string]float64
	runs  int
}

func (b *stepBackend) IncCounter(name string, delta float64, labels metrics.Labels) {
	b.mu.Lock()
	defer b.mu.Unlock()
	switch name {
	case metrics.StepTotal:
		b.steps[labels["step"]]++
	case metrics.RowsTotal:
		b.rows[labels["kind"]] += delta
	case metrics.RunsTotal:
		b.runs++
	}
}

func (b *stepBackend) ObserveHistogram(string, float64, metrics.Labels) {}
func (b *stepBackend) Flush() error                                     { return nil }

func TestRefiner_RecordsMetrics(t *testing.T) {
	fb := &stepBackend{steps: map[string]int{}, rows: map[string]float64{}}
	metrics.SetBackend(fb)
	t.Cleanup(func() { metrics.SetBackend(nopForTests{}) })

	input := writeDump(t, "shop.sql", shopDump)
	_, err := New(Config{OutputDir: t.TempDir()}, nil, nil).Run(context.Background(), datasource.NewLocal(input))
	require.NoError(t, err)

	assert.Equal(t, map[string]int{"extract": 1, "partition": 1, "repair": 1, "assemble": 1, "cleanup": 1}, fb.steps)
	assert.InDelta(t, 2, fb.rows["rows"], 0.001)
	assert.InDelta(t, 1, fb.rows["diverted"], 0.001)
	assert.Equal(t, 1, fb.runs)
}

type nopForTests struct{}

func (nopForTests) IncCounter(string, float64, metrics.Labels)       {}
func (nopForTests) ObserveHistogram(string, float64, metrics.Labels) {}
func (nopForTests) Flush() error                                     { return nil }
