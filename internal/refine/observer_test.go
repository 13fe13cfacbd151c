package refine

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/koustreak/sqlrefine/internal/logger"
)

// recorder is an Observer that keeps everything it is told.
type recorder struct {
	messages []string
	progress []int
}

func (r *recorder) Message(msg string)   { r.messages = append(r.messages, msg) }
func (r *recorder) Progress(percent int) { r.progress = append(r.progress, percent) }

func TestMulti(t *testing.T) {
	a, b := &recorder{}, &recorder{}
	var got []string
	obs := Multi(a, nil, b, ObserverFunc(func(msg string) { got = append(got, msg) }))

	obs.Message("hello")
	obs.Progress(50)

	assert.Equal(t, []string{"hello"}, a.messages)
	assert.Equal(t, []int{50}, b.progress)
	assert.Equal(t, []string{"hello"}, got)
}

func TestNop(t *testing.T) {
	assert.NotPanics(t, func() {
		Nop.Message("x")
		Nop.Progress(1)
	})
}

func TestLogObserver(t *testing.T) {
	var buf bytes.Buffer
	log := logger.New(&logger.Config{Level: "info", Format: "json", Output: &buf})

	obs := LogObserver(log)
	obs.Message("Starting: Step 1")
	obs.Progress(25)

	out := buf.String()
	assert.Contains(t, out, `"message":"Starting: Step 1"`)
	assert.Contains(t, out, `"percent":25`)
}

func TestFormatElapsed(t *testing.T) {
	assert.Equal(t, "0m 0s", formatElapsed(400_000_000))
	assert.Equal(t, "2m 5s", formatElapsed(125_900_000_000))
}
