// Package repair rewrites the values of multi-line INSERT statements so that
// they satisfy the column definitions extracted from the same dump.
package repair

import (
	"bufio"
	"errors"
	"io"
	"regexp"
	"strings"

	"github.com/koustreak/sqlrefine/internal/errs"
	"github.com/koustreak/sqlrefine/internal/schema"
)

var insertHeaderRe = regexp.MustCompile("(?i)^insert into [`\"]?(\\w+)[`\"]?\\s+values")

// Stats counts rows and the value rules applied to them.
type Stats struct {
	Rows        int `json:"rows"`
	Repaired    int `json:"repaired"` // rows with at least one value replaced
	Nulled      int `json:"nulled"`
	Defaulted   int `json:"defaulted"`
	Fallbacks   int `json:"fallbacks"`
	Truncated   int `json:"truncated"`
	EnumFixed   int `json:"enum_fixed"`
	Passthrough int `json:"passthrough"` // rows of tables without metadata
}

func (s *Stats) count(how outcome, eff effect) {
	switch how {
	case nulled:
		s.Nulled++
	case defaulted:
		s.Defaulted++
	case fellBack:
		s.Fallbacks++
	}
	if eff.truncated {
		s.Truncated++
	}
	if eff.enumFixed {
		s.EnumFixed++
	}
}

// Engine repairs an insert stream using the metadata of one dump.
// Metadata is only read, so an Engine may be reused across streams.
type Engine struct {
	Metadata schema.Metadata
}

// New returns an Engine over meta.
func New(meta schema.Metadata) *Engine {
	return &Engine{Metadata: meta}
}

type rowState int

const (
	stateIdle rowState = iota
	stateAccumulating
)

// run holds the per-stream state of the line machine.
type run struct {
	meta  schema.Metadata
	w     *bufio.Writer
	state rowState
	cols  []schema.Column
	buf   strings.Builder
	stats Stats
}

// Run reads an insert stream from r and writes the repaired stream to w.
//
// An "INSERT INTO <table> VALUES" line selects the columns rows are checked
// against and is copied as is. Lines from one starting with "(" up to one
// ending with ")," or ");" form a row, which is repaired with FixRow. Any
// other line is copied as is. Rows of unknown tables are rewritten with the
// normalized separator but keep their values.
func (e *Engine) Run(r io.Reader, w io.Writer) (Stats, error) {
	rn := &run{
		meta: e.Metadata,
		w:    bufio.NewWriterSize(w, 64*1024),
	}

	br := bufio.NewReaderSize(r, 64*1024)
	for {
		line, err := br.ReadString('\n')
		if line != "" {
			if stepErr := rn.step(line); stepErr != nil {
				return rn.stats, stepErr
			}
		}
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return rn.stats, errs.Wrap(errs.ErrKindIO, "read insert stream", err)
		}
	}

	if err := rn.flush(); err != nil {
		return rn.stats, err
	}
	if err := rn.w.Flush(); err != nil {
		return rn.stats, errs.Wrap(errs.ErrKindIO, "write repaired stream", err)
	}
	return rn.stats, nil
}

func (rn *run) step(line string) error {
	trimmed := strings.TrimSpace(line)

	if strings.HasPrefix(strings.ToLower(trimmed), "insert into") {
		if err := rn.flush(); err != nil {
			return err
		}
		rn.cols = nil
		if m := insertHeaderRe.FindStringSubmatch(trimmed); m != nil {
			rn.cols = rn.meta.Lookup(m[1])
		}
		return rn.write(line)
	}

	if rn.state == stateAccumulating || strings.HasPrefix(trimmed, "(") {
		rn.state = stateAccumulating
		rn.buf.WriteString(line)
		if strings.HasSuffix(trimmed, "),") || strings.HasSuffix(trimmed, ");") {
			return rn.flush()
		}
		return nil
	}

	return rn.write(line)
}

// flush repairs and writes the buffered row, if any.
func (rn *run) flush() error {
	if rn.state != stateAccumulating {
		return nil
	}
	raw := rn.buf.String()
	rn.buf.Reset()
	rn.state = stateIdle

	rn.stats.Rows++
	if len(rn.cols) == 0 {
		rn.stats.Passthrough++
	}
	fixed, changed := fixRow(raw, rn.cols, &rn.stats)
	if changed {
		rn.stats.Repaired++
	}
	return rn.write(fixed)
}

func (rn *run) write(s string) error {
	if _, err := rn.w.WriteString(s); err != nil {
		return errs.Wrap(errs.ErrKindIO, "write repaired stream", err)
	}
	return nil
}
