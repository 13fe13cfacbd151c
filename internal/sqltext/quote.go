// Package sqltext holds the byte-level quoting rules shared by the passes that
// need to find statement boundaries in dump text.
package sqltext

// QuoteState tracks whether a scan position sits inside a single- or
// double-quoted literal, and whether the previous byte was a backslash
// escape inside one.
//
// The zero value is outside any literal.
type QuoteState struct {
	single bool
	double bool
	escape bool
}

// Step advances the state over b.
//
// A backslash inside either kind of literal escapes the following byte,
// which is then consumed without toggling anything. An unescaped ' toggles
// the single-quoted state unless a double-quoted run is open, and
// symmetrically for ".
func (q *QuoteState) Step(b byte) {
	if q.escape {
		q.escape = false
		return
	}
	switch b {
	case '\\':
		if q.single || q.double {
			q.escape = true
		}
	case '\'':
		if !q.double {
			q.single = !q.single
		}
	case '"':
		if !q.single {
			q.double = !q.double
		}
	}
}

// Open reports whether the scan position is inside a literal.
func (q *QuoteState) Open() bool {
	return q.single || q.double
}

// Terminates reports whether b, seen in the current state, ends a statement:
// a semicolon outside every literal. Call it after Step(b).
func (q *QuoteState) Terminates(b byte) bool {
	return b == ';' && !q.single && !q.double
}

// Reset returns the state to outside any literal.
func (q *QuoteState) Reset() {
	*q = QuoteState{}
}
