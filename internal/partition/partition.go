// Package partition splits a dump into its INSERT statements and everything
// that cannot be repaired, using the quoting rules in sqltext to find
// statement boundaries.
package partition

import (
	"bufio"
	"bytes"
	"errors"
	"io"
	"regexp"
	"strings"

	"github.com/koustreak/sqlrefine/internal/errs"
	"github.com/koustreak/sqlrefine/internal/sqltext"
)

const keyword = "insert into"

var insertTableRe = regexp.MustCompile("(?i)^insert\\s+into\\s+[`\"]?(\\w+)[`\"]?")

// Stats counts what one partition pass saw.
type Stats struct {
	Inserts      int            `json:"inserts"`
	Diverted     int            `json:"diverted"`
	Unterminated int            `json:"unterminated"`
	Tables       map[string]int `json:"tables"` // kept statements per table
}

// Split scans r for statements that begin with INSERT INTO and end with an
// unquoted semicolon.
//
// Statements whose table name starts with "v_" (views exported as tables),
// and statements whose table name cannot be read, go to side as SQL
// comments. All others are written to inserts, trimmed, one per line.
// Text between statements is skipped. A statement still open at end of
// input is dropped and counted.
func Split(r io.Reader, inserts, side io.Writer) (Stats, error) {
	stats := Stats{Tables: make(map[string]int)}
	br := bufio.NewReaderSize(r, 64*1024)

	var (
		q    sqltext.QuoteState
		stmt bytes.Buffer
		open bool
	)

	for {
		if !open {
			found, err := seekKeyword(br)
			if err != nil {
				return stats, errs.Wrap(errs.ErrKindIO, "read dump", err)
			}
			if !found {
				return stats, nil
			}
			kw := make([]byte, len(keyword))
			if _, err := io.ReadFull(br, kw); err != nil {
				return stats, errs.Wrap(errs.ErrKindIO, "read dump", err)
			}
			stmt.Reset()
			stmt.Write(kw)
			q.Reset()
			open = true
			continue
		}

		b, err := br.ReadByte()
		if errors.Is(err, io.EOF) {
			stats.Unterminated++
			return stats, nil
		}
		if err != nil {
			return stats, errs.Wrap(errs.ErrKindIO, "read dump", err)
		}

		q.Step(b)
		stmt.WriteByte(b)
		if !q.Terminates(b) {
			continue
		}

		open = false
		if err := classify(stmt.String(), inserts, side, &stats); err != nil {
			return stats, err
		}
		stmt.Reset()
	}
}

// seekKeyword advances br to the next case-insensitive "insert into"
// without consuming it. It reports false at end of input.
func seekKeyword(br *bufio.Reader) (bool, error) {
	for {
		peek, err := br.Peek(len(keyword))
		if len(peek) == len(keyword) && strings.EqualFold(string(peek), keyword) {
			return true, nil
		}
		if errors.Is(err, io.EOF) {
			return false, nil
		}
		if err != nil {
			return false, err
		}
		if _, err := br.ReadByte(); err != nil {
			if errors.Is(err, io.EOF) {
				return false, nil
			}
			return false, err
		}
	}
}

func classify(stmt string, inserts, side io.Writer, stats *Stats) error {
	trimmed := strings.TrimSpace(stmt)
	m := insertTableRe.FindStringSubmatch(trimmed)
	if m == nil || strings.HasPrefix(strings.ToLower(m[1]), "v_") {
		stats.Diverted++
		if _, err := io.WriteString(side, Comment(stmt)+"\n"); err != nil {
			return errs.Wrap(errs.ErrKindIO, "write side channel", err)
		}
		return nil
	}

	stats.Inserts++
	stats.Tables[m[1]]++
	if _, err := io.WriteString(inserts, trimmed+"\n"); err != nil {
		return errs.Wrap(errs.ErrKindIO, "write insert stream", err)
	}
	return nil
}

// Comment turns a statement into SQL line comments by prefixing every
// line with "-- ".
func Comment(stmt string) string {
	return "-- " + strings.ReplaceAll(stmt, "\n", "\n-- ")
}
