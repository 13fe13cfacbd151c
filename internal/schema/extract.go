package schema

import (
	"bufio"
	"errors"
	"io"
	"regexp"
	"strings"

	"github.com/koustreak/sqlrefine/internal/errs"
)

var tableHeaderRe = regexp.MustCompile("(?i)^\\s*create\\s+table\\s+(?:if\\s+not\\s+exists\\s+)?[`\"]?(\\w+)[`\"]?")

// Statements copied verbatim to the side channel.
var extraBlockPrefixes = []string{
	"create algorithm",
	"create view",
	"create trigger",
	"create procedure",
	"create function",
}

// Stats counts what one extraction pass saw.
type Stats struct {
	Tables       int `json:"tables"`
	Columns      int `json:"columns"`
	ExtraBlocks  int `json:"extra_blocks"`
	DroppedLines int `json:"dropped_lines"`
	Unterminated int `json:"unterminated"`
}

// Extraction is the result of Extract.
type Extraction struct {
	Metadata Metadata
	Stats    Stats
}

type state int

const (
	stateIdle state = iota
	stateCreateTable
	stateExtraBlock
)

// extractor is the line state machine behind Extract. Transitions happen in
// step; writes happen only when a block closes.
type extractor struct {
	state  state
	resume state // where an extra block returns to

	table   string
	ordinal int
	create  strings.Builder
	extra   strings.Builder

	meta  Metadata
	stats Stats

	schemaOut io.Writer
	sideOut   io.Writer
}

// Extract reads a dump line by line and splits it into the schema block,
// the side channel, and the column metadata.
//
// CREATE TABLE blocks are normalized with NormalizeLengths and written to
// schemaOut, each followed by a blank line. View, trigger, procedure and
// function definitions are copied verbatim to sideOut the same way. Every
// other top-level line is dropped.
func Extract(r io.Reader, schemaOut, sideOut io.Writer) (*Extraction, error) {
	x := &extractor{
		meta:      make(Metadata),
		schemaOut: schemaOut,
		sideOut:   sideOut,
	}

	br := bufio.NewReaderSize(r, 64*1024)
	for {
		line, err := br.ReadString('\n')
		if line != "" {
			if stepErr := x.step(line); stepErr != nil {
				return nil, stepErr
			}
		}
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, errs.Wrap(errs.ErrKindIO, "read dump", err)
		}
	}

	if err := x.finish(); err != nil {
		return nil, err
	}

	x.stats.Tables = len(x.meta)
	x.stats.Columns = x.meta.ColumnCount()
	return &Extraction{Metadata: x.meta, Stats: x.stats}, nil
}

func (x *extractor) step(line string) error {
	trimmed := strings.TrimSpace(line)
	lower := strings.ToLower(trimmed)

	if x.state == stateExtraBlock {
		x.extra.WriteString(line)
		if strings.HasSuffix(trimmed, ";") {
			return x.closeExtra()
		}
		return nil
	}

	if strings.HasPrefix(lower, "create table") {
		x.openTable(line)
		if strings.HasSuffix(trimmed, ";") {
			return x.closeTable()
		}
		return nil
	}

	if hasAnyPrefix(lower, extraBlockPrefixes) {
		x.resume = x.state
		x.state = stateExtraBlock
		x.extra.Reset()
		x.extra.WriteString(line)
		if strings.HasSuffix(trimmed, ";") {
			return x.closeExtra()
		}
		return nil
	}

	if x.state == stateCreateTable {
		norm, varcharLength := NormalizeLengths(line)
		x.create.WriteString(norm)
		x.addColumn(norm, varcharLength)
		if strings.HasSuffix(trimmed, ";") {
			return x.closeTable()
		}
		return nil
	}

	if trimmed != "" {
		x.stats.DroppedLines++
	}
	return nil
}

// openTable starts a new capture block, discarding any block still open.
func (x *extractor) openTable(line string) {
	x.state = stateCreateTable
	x.create.Reset()
	x.ordinal = 0
	x.table = ""

	if m := tableHeaderRe.FindStringSubmatch(line); m != nil {
		x.table = m[1]
		x.meta[x.table] = []Column{}
	}
	x.create.WriteString(x.headerDefinitions(line))
}

// headerDefinitions handles column definitions that share the header line.
// Each top-level definition is normalized and parsed as if it stood on its
// own line, and the header is rebuilt from the normalized pieces.
func (x *extractor) headerDefinitions(line string) string {
	open := strings.IndexByte(line, '(')
	if open < 0 {
		return line
	}
	body := strings.TrimRight(line[open+1:], "\r\n")
	if strings.TrimSpace(body) == "" {
		return line
	}
	ending := line[open+1+len(body):]

	defs, tail := splitDefinitions(body)
	norms := make([]string, 0, len(defs))
	for _, def := range defs {
		norm, varcharLength := NormalizeLengths(def)
		x.addColumn(norm, varcharLength)
		norms = append(norms, norm)
	}
	return line[:open+1] + strings.Join(norms, ",") + tail + ending
}

func (x *extractor) addColumn(def string, varcharLength *int) {
	if x.table == "" {
		return
	}
	col, ok := ParseColumn(def, varcharLength)
	if !ok {
		return
	}
	col.Index = x.ordinal
	x.ordinal++
	x.meta[x.table] = append(x.meta[x.table], col)
}

func (x *extractor) closeTable() error {
	x.state = stateIdle
	x.table = ""
	if _, err := io.WriteString(x.schemaOut, x.create.String()+"\n"); err != nil {
		return errs.Wrap(errs.ErrKindIO, "write schema block", err)
	}
	x.create.Reset()
	return nil
}

func (x *extractor) closeExtra() error {
	x.state = x.resume
	x.resume = stateIdle
	x.stats.ExtraBlocks++
	if _, err := io.WriteString(x.sideOut, x.extra.String()+"\n"); err != nil {
		return errs.Wrap(errs.ErrKindIO, "write side channel", err)
	}
	x.extra.Reset()
	return nil
}

// finish handles blocks still open at end of input. An extra block is
// flushed as is; a table block is dropped from the schema output but keeps
// the columns it already contributed.
func (x *extractor) finish() error {
	if x.state == stateExtraBlock {
		if err := x.closeExtra(); err != nil {
			return err
		}
	}
	if x.state == stateCreateTable {
		x.stats.Unterminated++
		x.state = stateIdle
		x.create.Reset()
	}
	return nil
}

func hasAnyPrefix(s string, prefixes []string) bool {
	for _, p := range prefixes {
		if strings.HasPrefix(s, p) {
			return true
		}
	}
	return false
}
