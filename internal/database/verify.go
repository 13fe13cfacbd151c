package database

import (
	"context"
	"strings"

	"github.com/koustreak/sqlrefine/internal/schema"
)

// TableCheck is the outcome of comparing one table of a dump with the
// table of the same name in the database.
type TableCheck struct {
	Table    string   `json:"table"`
	Present  bool     `json:"present"`
	Expected int      `json:"expected_columns"`
	Actual   int      `json:"actual_columns"`
	Missing  []string `json:"missing_columns,omitempty"`
}

// OK reports whether the table exists with every expected column.
func (c TableCheck) OK() bool {
	return c.Present && len(c.Missing) == 0 && c.Expected == c.Actual
}

// Report lists one TableCheck per table of the dump, sorted by name.
type Report struct {
	Tables []TableCheck `json:"tables"`
}

// OK reports whether every table checked out.
func (r *Report) OK() bool {
	for _, t := range r.Tables {
		if !t.OK() {
			return false
		}
	}
	return true
}

// Failed returns the checks that did not pass.
func (r *Report) Failed() []TableCheck {
	var out []TableCheck
	for _, t := range r.Tables {
		if !t.OK() {
			out = append(out, t)
		}
	}
	return out
}

// Verify checks that every table in meta exists in the database with the
// same columns. Table names are matched exactly, column names without
// regard to case, as MySQL does.
func Verify(ctx context.Context, in Introspector, meta schema.Metadata) (*Report, error) {
	live, err := in.ListTables(ctx)
	if err != nil {
		return nil, err
	}
	present := make(map[string]bool, len(live))
	for _, t := range live {
		present[t] = true
	}

	report := &Report{}
	for _, table := range meta.Tables() {
		cols := meta.Lookup(table)
		check := TableCheck{Table: table, Expected: len(cols), Present: present[table]}
		if !check.Present {
			report.Tables = append(report.Tables, check)
			continue
		}

		liveCols, err := in.TableColumns(ctx, table)
		if err != nil {
			return nil, err
		}
		check.Actual = len(liveCols)

		names := make(map[string]bool, len(liveCols))
		for _, c := range liveCols {
			names[strings.ToLower(c.Name)] = true
		}
		for _, c := range cols {
			if !names[strings.ToLower(c.Name)] {
				check.Missing = append(check.Missing, c.Name)
			}
		}
		report.Tables = append(report.Tables, check)
	}
	return report, nil
}
