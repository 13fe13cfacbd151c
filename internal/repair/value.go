package repair

import (
	"strings"
	"unicode/utf8"

	"github.com/koustreak/sqlrefine/internal/schema"
)

// Fallback literals substituted for empty values that may not be NULL and
// have no declared default.
const (
	FallbackInt      = "'0'"
	FallbackFloat    = "'0.0'"
	FallbackDatetime = "'1970-01-01 00:00:00'"
	FallbackDate     = "'1970-01-01'"
	FallbackText     = "''"
)

var (
	intTypes   = []string{"int", "integer", "tinyint", "smallint", "mediumint", "bigint"}
	floatTypes = []string{"float", "double", "decimal", "numeric", "real"}
)

// outcome records which rule RepairValue applied, for the statistics.
type outcome int

const (
	unchanged outcome = iota
	nulled
	defaulted
	fellBack
	rewritten
)

// effect is what happened to one quoted value besides re-escaping.
type effect struct {
	truncated bool
	enumFixed bool
}

// RepairValue returns the literal that replaces token in a row, according
// to col. Unquoted tokens (numbers, NULL, expressions) pass through.
func RepairValue(token string, col schema.Column) string {
	v, _, _ := repairValue(token, col)
	return v
}

func repairValue(token string, col schema.Column) (string, outcome, effect) {
	if token == "''" || token == `""` {
		switch {
		case col.Nullable:
			return "NULL", nulled, effect{}
		case col.Default != nil:
			return *col.Default, defaulted, effect{}
		default:
			return Fallback(col), fellBack, effect{}
		}
	}

	if !isQuoted(token) {
		return token, unchanged, effect{}
	}

	var eff effect
	inner := stripControl(token[1 : len(token)-1])
	if col.IsEnum() && !col.HasEnumValue(inner) {
		inner = col.EnumValues[0]
		eff.enumFixed = true
	}
	if col.VarcharLength != nil {
		cut := TruncateUTF8(inner, *col.VarcharLength)
		eff.truncated = len(cut) < len(inner)
		inner = cut
	}
	return Quote(inner), rewritten, eff
}

// Fallback returns the placeholder literal for col: the first enum member
// for enums, otherwise a zero value chosen by the declared type.
func Fallback(col schema.Column) string {
	if col.IsEnum() {
		return Quote(col.EnumValues[0])
	}
	base := baseType(col.Type)
	switch {
	case contains(intTypes, base):
		return FallbackInt
	case contains(floatTypes, base):
		return FallbackFloat
	case base == "datetime" || base == "timestamp":
		return FallbackDatetime
	case base == "date":
		return FallbackDate
	default:
		return FallbackText
	}
}

// TruncateUTF8 cuts s to at most n bytes, then drops trailing bytes until
// the rest is valid UTF-8, so no character is ever split.
func TruncateUTF8(s string, n int) string {
	if n < 0 {
		n = 0
	}
	if len(s) <= n {
		return s
	}
	s = s[:n]
	for len(s) > 0 && !utf8.ValidString(s) {
		s = s[:len(s)-1]
	}
	return s
}

// Quote escapes backslashes and single quotes in s and wraps it in single
// quotes.
func Quote(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `'`, `''`)
	return "'" + s + "'"
}

func isQuoted(token string) bool {
	if len(token) < 2 {
		return false
	}
	first, last := token[0], token[len(token)-1]
	return (first == '\'' || first == '"') && first == last
}

// stripControl removes the C0 control bytes other than tab, line feed and
// carriage return. It works on bytes so invalid UTF-8 passes through
// untouched.
func stripControl(s string) string {
	if strings.IndexFunc(s, isStripped) < 0 {
		return s
	}
	b := make([]byte, 0, len(s))
	for j := 0; j < len(s); j++ {
		if !isStrippedByte(s[j]) {
			b = append(b, s[j])
		}
	}
	return string(b)
}

func isStripped(r rune) bool {
	return r < 0x20 && isStrippedByte(byte(r))
}

func isStrippedByte(c byte) bool {
	return c <= 0x1F && c != '\t' && c != '\n' && c != '\r'
}

// baseType returns the lowercased type name without its arguments and
// modifiers, e.g. "int" for "int(11) unsigned".
func baseType(typ string) string {
	typ = strings.ToLower(strings.TrimSpace(typ))
	if i := strings.IndexAny(typ, "( "); i >= 0 {
		typ = typ[:i]
	}
	return typ
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
