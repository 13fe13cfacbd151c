package refine

import (
	"github.com/koustreak/sqlrefine/internal/logger"
)

// Observer receives human-readable progress lines and a completion
// percentage from a run. Implementations must not block for long; the run
// waits for each call.
type Observer interface {
	Message(msg string)
	Progress(percent int)
}

// Nop is an Observer that ignores everything.
var Nop Observer = nopObserver{}

type nopObserver struct{}

func (nopObserver) Message(string) {}
func (nopObserver) Progress(int)   {}

// ObserverFunc adapts a message callback to an Observer that ignores
// progress.
type ObserverFunc func(msg string)

func (f ObserverFunc) Message(msg string) { f(msg) }
func (f ObserverFunc) Progress(int)       {}

// LogObserver forwards messages and progress to log at info level.
func LogObserver(log *logger.Logger) Observer {
	return logObserver{log: log}
}

type logObserver struct{ log *logger.Logger }

func (o logObserver) Message(msg string) { o.log.Info(msg) }

func (o logObserver) Progress(percent int) {
	o.log.InfoWith("progress", map[string]interface{}{"percent": percent})
}

// Multi fans every call out to each non-nil observer in order.
func Multi(observers ...Observer) Observer {
	var list multi
	for _, o := range observers {
		if o != nil {
			list = append(list, o)
		}
	}
	return list
}

type multi []Observer

func (m multi) Message(msg string) {
	for _, o := range m {
		o.Message(msg)
	}
}

func (m multi) Progress(percent int) {
	for _, o := range m {
		o.Progress(percent)
	}
}
