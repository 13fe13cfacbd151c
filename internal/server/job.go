package server

import (
	"time"

	"github.com/koustreak/sqlrefine/internal/refine"
	"github.com/koustreak/sqlrefine/internal/results"
)

// State is the lifecycle stage of a job.
type State string

const (
	StateQueued    State = "queued"
	StateRunning   State = "running"
	StateSucceeded State = "succeeded"
	StateFailed    State = "failed"
)

// Done reports whether the job has finished, either way.
func (s State) Done() bool {
	return s == StateSucceeded || s == StateFailed
}

// maxLogLines bounds the messages a job keeps.
const maxLogLines = 200

// Job is a snapshot of one submitted refine run.
type Job struct {
	ID        string             `json:"id"`
	Source    string             `json:"source"`
	State     State              `json:"state"`
	Progress  int                `json:"progress"`
	Log       []string           `json:"log"`
	Result    *refine.Result     `json:"result,omitempty"`
	Published *results.Published `json:"published,omitempty"`
	Error     string             `json:"error,omitempty"`
	Created   time.Time          `json:"created"`
	Started   *time.Time         `json:"started,omitempty"`
	Finished  *time.Time         `json:"finished,omitempty"`
}

// snapshot copies j so the caller may hold it while the runner moves on.
func (j *Job) snapshot() Job {
	out := *j
	out.Log = append([]string(nil), j.Log...)
	return out
}

func (j *Job) appendLog(msg string) {
	if len(j.Log) == maxLogLines {
		copy(j.Log, j.Log[1:])
		j.Log = j.Log[:maxLogLines-1]
	}
	j.Log = append(j.Log, msg)
}
