// Package schema extracts table definitions and per-column metadata from a
// MySQL dump, and normalizes VARCHAR and key-length declarations on the way.
package schema

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
)

// Varchar lengths a VARCHAR column is normalized to.
const (
	ShortVarchar = 100
	LongVarchar  = 191
)

// Column describes one column of a CREATE TABLE block as declared in the
// dump. Index is the position of the column among the column lines of its
// table, which is also the position of its value in an INSERT tuple.
type Column struct {
	Name          string   `json:"name"`
	Type          string   `json:"type"`
	Nullable      bool     `json:"nullable"`
	Default       *string  `json:"default"`
	Index         int      `json:"index"`
	VarcharLength *int     `json:"varchar_length"`
	EnumValues    []string `json:"enum_values"`
}

// IsEnum reports whether the column carries an enum domain.
func (c Column) IsEnum() bool {
	return len(c.EnumValues) > 0
}

// HasEnumValue reports whether v is a member of the enum domain.
// The comparison is exact.
func (c Column) HasEnumValue(v string) bool {
	for _, e := range c.EnumValues {
		if e == v {
			return true
		}
	}
	return false
}

// Metadata maps a table name, as captured from its CREATE TABLE header, to
// its columns in declaration order. It is built once per run and only read
// afterwards.
type Metadata map[string][]Column

// Lookup returns the columns of table, or nil when the table is unknown.
// Names are matched exactly.
func (m Metadata) Lookup(table string) []Column {
	return m[table]
}

// Tables returns the table names in sorted order.
func (m Metadata) Tables() []string {
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ColumnCount returns the total number of columns across all tables.
func (m Metadata) ColumnCount() int {
	n := 0
	for _, cols := range m {
		n += len(cols)
	}
	return n
}

// WriteJSON writes the metadata artifact as indented JSON.
func (m Metadata) WriteJSON(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(m)
}

// ReadJSON decodes a metadata artifact previously written by WriteJSON.
func ReadJSON(r io.Reader) (Metadata, error) {
	var m Metadata
	if err := json.NewDecoder(r).Decode(&m); err != nil {
		return nil, fmt.Errorf("decode column metadata: %w", err)
	}
	return m, nil
}

// Validate checks the per-table invariants: indexes are unique and
// contiguous from 0, varchar targets are one of the two normalized lengths
// and only set on varchar columns, and enum domains are never empty.
func (m Metadata) Validate() error {
	for table, cols := range m {
		for i, c := range cols {
			if c.Index != i {
				return fmt.Errorf("table %s: column %s has index %d, want %d", table, c.Name, c.Index, i)
			}
			if c.VarcharLength != nil && *c.VarcharLength != ShortVarchar && *c.VarcharLength != LongVarchar {
				return fmt.Errorf("table %s: column %s has varchar length %d", table, c.Name, *c.VarcharLength)
			}
			if c.VarcharLength != nil && !strings.HasPrefix(c.Type, "varchar(") {
				return fmt.Errorf("table %s: column %s of type %s has a varchar length", table, c.Name, c.Type)
			}
			isEnumType := strings.HasPrefix(c.Type, "enum(")
			if isEnumType != c.IsEnum() {
				return fmt.Errorf("table %s: column %s enum values do not match type %s", table, c.Name, c.Type)
			}
		}
	}
	return nil
}
