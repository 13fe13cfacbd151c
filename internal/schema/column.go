package schema

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/koustreak/sqlrefine/internal/sqltext"
)

var (
	varcharColumnRe = regexp.MustCompile("(?i)^\\s*`?\\w+`?\\s+(varchar\\((\\d+)\\))")
	keyLengthRe     = regexp.MustCompile("(`\\w+`)\\(\\d+\\)")

	columnRe  = regexp.MustCompile("(?i)^`?(\\w+)`?\\s+([a-z]+(?:\\([^)]+\\))?)")
	defaultRe = regexp.MustCompile(`(?i)\bdefault\s+('[^']*?'|"[^"]*?"|[^,\s]+)`)
)

// Definition lines starting with one of these are keys or the closing line,
// never columns.
var nonColumnPrefixes = []string{
	"primary", "unique", "key", "constraint", "index", "fulltext", "spatial", ")",
}

// NormalizeLengths rewrites the length declarations on one line of a
// CREATE TABLE block.
//
// When the line starts with a column declared as VARCHAR(n), that type
// becomes VARCHAR(100) for n <= 100 and VARCHAR(191) otherwise, and the new
// length is returned. A varchar(n) later on the line, in a comment say, is
// left alone. Independently, every `ident`(n) key-length hint becomes
// `ident`(191).
func NormalizeLengths(line string) (string, *int) {
	var target *int
	if m := varcharColumnRe.FindStringSubmatchIndex(line); m != nil {
		n, err := strconv.Atoi(line[m[4]:m[5]])
		if err == nil {
			length := ShortVarchar
			if n > ShortVarchar {
				length = LongVarchar
			}
			target = &length
			line = line[:m[2]] + "VARCHAR(" + strconv.Itoa(length) + ")" + line[m[3]:]
		}
	}
	line = keyLengthRe.ReplaceAllString(line, "${1}(191)")
	return line, target
}

// ParseColumn parses one normalized definition line. It reports false for
// blank lines, key and constraint lines, the closing line, and anything
// that does not start with an identifier followed by a type.
//
// The returned column has Index 0; the caller assigns the ordinal.
func ParseColumn(line string, varcharLength *int) (Column, bool) {
	def := strings.TrimRight(strings.TrimSpace(line), ",")
	lower := strings.ToLower(def)
	if lower == "" {
		return Column{}, false
	}
	for _, p := range nonColumnPrefixes {
		if strings.HasPrefix(lower, p) {
			return Column{}, false
		}
	}

	m := columnRe.FindStringSubmatch(def)
	if m == nil {
		return Column{}, false
	}

	col := Column{
		Name:          m[1],
		Type:          strings.ToLower(m[2]),
		Nullable:      !strings.Contains(lower, "not null"),
		VarcharLength: varcharLength,
	}
	if d := defaultRe.FindStringSubmatch(def); d != nil {
		lit := d[1]
		col.Default = &lit
	}
	if strings.HasPrefix(col.Type, "enum(") {
		col.EnumValues = parseEnumValues(m[2])
	}
	return col, true
}

// parseEnumValues splits enum('a','b') into its members, keeping their case.
func parseEnumValues(typ string) []string {
	open := strings.IndexByte(typ, '(')
	end := strings.LastIndexByte(typ, ')')
	if open < 0 || end <= open {
		return nil
	}
	parts := strings.Split(typ[open+1:end], ",")
	values := make([]string, 0, len(parts))
	for _, p := range parts {
		v := strings.Trim(strings.Trim(strings.TrimSpace(p), "'"), `"`)
		values = append(values, v)
	}
	return values
}

// splitDefinitions splits the body of a single-line CREATE TABLE header,
// i.e. the text after the opening parenthesis, into its top-level
// definitions. tail starts at the parenthesis closing the table, and is
// empty when the body continues on following lines.
func splitDefinitions(body string) (defs []string, tail string) {
	var (
		q     sqltext.QuoteState
		depth int
		start int
	)
	for i := 0; i < len(body); i++ {
		b := body[i]
		wasOpen := q.Open()
		q.Step(b)
		if wasOpen || q.Open() {
			continue
		}
		switch b {
		case '(':
			depth++
		case ')':
			if depth == 0 {
				return append(defs, body[start:i]), body[i:]
			}
			depth--
		case ',':
			if depth == 0 {
				defs = append(defs, body[start:i])
				start = i + 1
			}
		}
	}
	return append(defs, body[start:]), ""
}
