package repair

import (
	"strings"

	"github.com/koustreak/sqlrefine/internal/schema"
)

// Tokenize splits the inside of a row tuple on commas that are not inside a
// quoted literal. A backslash escapes the next character, which keeps both
// in the token; a literal opened by ' is only closed by ', and likewise for
// ". Tokens are trimmed of surrounding whitespace.
func Tokenize(row string) []string {
	var (
		parts   []string
		cur     strings.Builder
		escape  bool
		inQuote bool
		quote   byte
	)
	for i := 0; i < len(row); i++ {
		c := row[i]
		switch {
		case escape:
			cur.WriteByte('\\')
			cur.WriteByte(c)
			escape = false
		case c == '\\':
			escape = true
		case c == '\'' || c == '"':
			cur.WriteByte(c)
			if !inQuote {
				inQuote, quote = true, c
			} else if c == quote {
				inQuote = false
			}
		case c == ',' && !inQuote:
			parts = append(parts, strings.TrimSpace(cur.String()))
			cur.Reset()
		default:
			cur.WriteByte(c)
		}
	}
	if escape {
		cur.WriteByte('\\')
	}
	return append(parts, strings.TrimSpace(cur.String()))
}

// FixRow repairs one row tuple, as it appears in an INSERT statement with
// its trailing "," or ");", against the columns of its table. Values are
// mapped to columns by Column.Index; extra values pass through and missing
// ones are skipped. Text that does not start with "(" is returned as is.
//
// The result always ends with a newline.
func FixRow(raw string, cols []schema.Column) string {
	var stats Stats
	fixed, _ := fixRow(raw, cols, &stats)
	return fixed
}

// fixRow is FixRow with statistics. It also reports whether any value was
// replaced.
func fixRow(raw string, cols []schema.Column, stats *Stats) (string, bool) {
	row := strings.TrimSpace(raw)
	if !strings.HasPrefix(row, "(") {
		return raw, false
	}

	var suffix string
	switch {
	case strings.HasSuffix(row, ","):
		suffix = "),"
		row = strings.TrimSuffix(strings.TrimSpace(row[:len(row)-1]), ")")
	case strings.HasSuffix(row, ");"):
		suffix = ");"
		row = row[:len(row)-2]
	default:
		suffix = ")"
		row = strings.TrimSuffix(row, ")")
	}
	row = strings.TrimPrefix(row, "(")

	parts := Tokenize(row)
	changed := false
	for _, col := range cols {
		if col.Index < 0 || col.Index >= len(parts) {
			continue
		}
		v, how, eff := repairValue(parts[col.Index], col)
		if v != parts[col.Index] {
			changed = true
		}
		parts[col.Index] = v
		stats.count(how, eff)
	}

	return "(" + strings.Join(parts, ", ") + suffix + "\n", changed
}
