package server

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/koustreak/sqlrefine/internal/datasource"
	"github.com/koustreak/sqlrefine/internal/errs"
	"github.com/koustreak/sqlrefine/internal/logger"
	"github.com/koustreak/sqlrefine/internal/refine"
	"github.com/koustreak/sqlrefine/internal/results"
)

// ErrQueueFull is returned by Submit when no more jobs may wait.
var ErrQueueFull = errors.New("job queue is full")

// ErrStopped is returned once the runner has shut down.
var ErrStopped = errors.New("runner stopped")

// Request describes a job to submit.
type Request struct {
	Source datasource.Source

	// Publish uploads the result when the runner has a publisher.
	Publish bool

	// Cleanup, when set, runs after the job finishes, e.g. to remove an
	// uploaded dump.
	Cleanup func()
}

// Runner executes refine jobs one at a time on a dedicated worker.
//
// Job state is owned by the goroutine in Run; Submit, Job and Jobs talk to
// it over channels and only ever receive copies.
type Runner struct {
	cfg       refine.Config
	publisher *results.Publisher
	log       *logger.Logger

	queue    chan *task
	submitCh chan submitReq
	getCh    chan getReq
	listCh   chan chan []Job
	events   chan event
	done     chan struct{}
}

type task struct {
	id  string
	req Request
}

type submitReq struct {
	req   Request
	reply chan submitResp
}

type submitResp struct {
	job Job
	err error
}

type getReq struct {
	id    string
	reply chan *Job
}

type eventKind int

const (
	eventStarted eventKind = iota
	eventMessage
	eventProgress
	eventFinished
)

type event struct {
	id        string
	kind      eventKind
	msg       string
	progress  int
	result    *refine.Result
	published *results.Published
	err       error
}

// NewRunner returns a runner that refines with cfg and publishes with pub,
// which may be nil. queueSize jobs may wait while one runs.
func NewRunner(cfg refine.Config, pub *results.Publisher, queueSize int, log *logger.Logger) *Runner {
	if queueSize < 1 {
		queueSize = 1
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Runner{
		cfg:       cfg,
		publisher: pub,
		log:       log,
		queue:     make(chan *task, queueSize),
		submitCh:  make(chan submitReq),
		getCh:     make(chan getReq),
		listCh:    make(chan chan []Job),
		events:    make(chan event),
		done:      make(chan struct{}),
	}
}

// Run owns the job table and drives the worker until ctx is done. A job
// in progress is canceled through ctx and finishes before Run returns.
func (r *Runner) Run(ctx context.Context) error {
	defer close(r.done)

	jobs := make(map[string]*Job)
	workerDone := make(chan struct{})
	go func() {
		defer close(workerDone)
		r.work(ctx)
	}()

	for {
		select {
		case <-ctx.Done():
			<-workerDone
			for _, t := range r.drain() {
				if t.req.Cleanup != nil {
					t.req.Cleanup()
				}
			}
			return nil

		case s := <-r.submitCh:
			j := &Job{
				ID:      uuid.NewString(),
				Source:  s.req.Source.Name(),
				State:   StateQueued,
				Created: time.Now(),
			}
			select {
			case r.queue <- &task{id: j.ID, req: s.req}:
				jobs[j.ID] = j
				s.reply <- submitResp{job: j.snapshot()}
			default:
				s.reply <- submitResp{err: ErrQueueFull}
			}

		case g := <-r.getCh:
			if j, ok := jobs[g.id]; ok {
				snap := j.snapshot()
				g.reply <- &snap
			} else {
				g.reply <- nil
			}

		case reply := <-r.listCh:
			out := make([]Job, 0, len(jobs))
			for _, j := range jobs {
				out = append(out, j.snapshot())
			}
			sort.Slice(out, func(a, b int) bool { return out[a].Created.Before(out[b].Created) })
			reply <- out

		case ev := <-r.events:
			if j, ok := jobs[ev.id]; ok {
				r.apply(j, ev)
			}
		}
	}
}

// apply folds a worker event into the job it belongs to.
func (r *Runner) apply(j *Job, ev event) {
	now := time.Now()
	switch ev.kind {
	case eventStarted:
		j.State = StateRunning
		j.Started = &now
	case eventMessage:
		j.appendLog(ev.msg)
	case eventProgress:
		if ev.progress > j.Progress {
			j.Progress = ev.progress
		}
	case eventFinished:
		j.Finished = &now
		j.Result = ev.result
		j.Published = ev.published
		if ev.err != nil {
			j.State = StateFailed
			j.Error = ev.err.Error()
			return
		}
		j.State = StateSucceeded
	}
}

func (r *Runner) drain() []*task {
	var out []*task
	for {
		select {
		case t := <-r.queue:
			out = append(out, t)
		default:
			return out
		}
	}
}

// work runs queued tasks in order until ctx is done.
func (r *Runner) work(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case t := <-r.queue:
			r.execute(ctx, t)
		}
	}
}

func (r *Runner) execute(ctx context.Context, t *task) {
	if t.req.Cleanup != nil {
		defer t.req.Cleanup()
	}
	log := r.log.With().Str("job", t.id).Logger()

	if !r.send(ctx, event{id: t.id, kind: eventStarted}) {
		return
	}

	obs := refine.Multi(&jobObserver{r: r, ctx: ctx, id: t.id}, refine.LogObserver(log))
	res, err := refine.New(r.cfg, obs, log).Run(ctx, t.req.Source)

	var pub *results.Published
	if err == nil && t.req.Publish && r.publisher != nil {
		pub, err = r.publisher.Publish(ctx, res.Path, res.Checksum, t.req.Source.Name())
	}
	if err != nil {
		log.ErrorWith("job failed", err, nil)
	}
	r.send(ctx, event{id: t.id, kind: eventFinished, result: res, published: pub, err: err})
}

// send delivers ev to Run, giving up when ctx is done.
func (r *Runner) send(ctx context.Context, ev event) bool {
	select {
	case r.events <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}

// jobObserver turns the progress of a run into events for its job.
type jobObserver struct {
	r   *Runner
	ctx context.Context
	id  string
}

func (o *jobObserver) Message(msg string) {
	o.r.send(o.ctx, event{id: o.id, kind: eventMessage, msg: msg})
}

func (o *jobObserver) Progress(percent int) {
	o.r.send(o.ctx, event{id: o.id, kind: eventProgress, progress: percent})
}

// --- client side ---

// Submit queues req and returns the new job. It fails with ErrQueueFull
// when the queue is at capacity.
func (r *Runner) Submit(ctx context.Context, req Request) (Job, error) {
	if req.Source == nil {
		return Job{}, errs.New(errs.ErrKindInvalidInput, "job has no source")
	}
	reply := make(chan submitResp, 1)
	select {
	case r.submitCh <- submitReq{req: req, reply: reply}:
	case <-r.done:
		return Job{}, ErrStopped
	case <-ctx.Done():
		return Job{}, errs.Wrap(errs.ErrKindTimeout, "submit job", ctx.Err())
	}
	resp := <-reply
	return resp.job, resp.err
}

// Job returns a snapshot of the job with the given id.
func (r *Runner) Job(ctx context.Context, id string) (Job, error) {
	reply := make(chan *Job, 1)
	select {
	case r.getCh <- getReq{id: id, reply: reply}:
	case <-r.done:
		return Job{}, ErrStopped
	case <-ctx.Done():
		return Job{}, errs.Wrap(errs.ErrKindTimeout, "get job", ctx.Err())
	}
	j := <-reply
	if j == nil {
		return Job{}, errs.New(errs.ErrKindNotFound, "no such job: "+id)
	}
	return *j, nil
}

// Jobs returns snapshots of every job, oldest first.
func (r *Runner) Jobs(ctx context.Context) ([]Job, error) {
	reply := make(chan []Job, 1)
	select {
	case r.listCh <- reply:
	case <-r.done:
		return nil, ErrStopped
	case <-ctx.Done():
		return nil, errs.Wrap(errs.ErrKindTimeout, "list jobs", ctx.Err())
	}
	return <-reply, nil
}
