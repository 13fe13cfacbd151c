package sqltext

import (
	"bufio"
	"errors"
	"io"
	"strings"
)

// SplitStatements reads SQL text from r and calls fn once per complete
// statement, trimmed, with its terminating semicolon. Line comments
// ("-- " and "#") outside literals are skipped, so commented-out statements
// never reach fn. Backtick-quoted identifiers are opaque: a ; or # inside
// one neither ends the statement nor starts a comment. Trailing text without a terminating semicolon is passed
// to fn as a final statement when it is not blank.
func SplitStatements(r io.Reader, fn func(stmt string) error) error {
	br := bufio.NewReaderSize(r, 64*1024)

	var (
		q     QuoteState
		ident bool
		buf   strings.Builder
	)

	for {
		b, err := br.ReadByte()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return err
		}

		if ident {
			buf.WriteByte(b)
			ident = b != '`'
			continue
		}
		if !q.Open() && b == '`' {
			buf.WriteByte(b)
			ident = true
			continue
		}

		if !q.Open() && isCommentStart(b, br) {
			if err := skipLine(br); err != nil {
				return err
			}
			buf.WriteByte('\n')
			continue
		}

		q.Step(b)
		buf.WriteByte(b)

		if q.Terminates(b) {
			stmt := strings.TrimSpace(buf.String())
			buf.Reset()
			if stmt == ";" {
				continue
			}
			if err := fn(stmt); err != nil {
				return err
			}
		}
	}

	if rest := strings.TrimSpace(buf.String()); rest != "" {
		return fn(rest)
	}
	return nil
}

// isCommentStart reports whether b begins a MySQL line comment.
func isCommentStart(b byte, br *bufio.Reader) bool {
	switch b {
	case '#':
		return true
	case '-':
		next, err := br.Peek(2)
		if len(next) == 0 || next[0] != '-' {
			return false
		}
		// "--" must be followed by whitespace or end of input.
		if len(next) == 1 || err != nil {
			return true
		}
		switch next[1] {
		case ' ', '\t', '\n', '\r':
			return true
		}
	}
	return false
}

func skipLine(br *bufio.Reader) error {
	_, err := br.ReadString('\n')
	if errors.Is(err, io.EOF) {
		return nil
	}
	return err
}
