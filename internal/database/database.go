// Package database loads refined dumps into a live database and checks the
// result against the dump's column metadata. Engine specific code lives in
// subpackages; everything here talks to the interfaces below.
package database

import "context"

// Execer runs statements that return no rows.
type Execer interface {
	// Exec runs query and returns the number of rows it affected.
	Exec(ctx context.Context, query string, args ...any) (int64, error)
}

// Introspector reads the structure of the connected database.
type Introspector interface {
	// ListTables returns the base tables of the current database, sorted.
	ListTables(ctx context.Context) ([]string, error)

	// TableColumns returns the columns of table in ordinal order. A table
	// that does not exist yields no columns and no error.
	TableColumns(ctx context.Context, table string) ([]ColumnInfo, error)
}

// DB is the contract the import command needs from a connection pool.
type DB interface {
	Execer
	Introspector

	// Ping verifies the database is reachable.
	Ping(ctx context.Context) error

	// Close releases all resources held by the connection pool.
	Close() error
}

// ColumnInfo describes a single column of a live table.
type ColumnInfo struct {
	Name      string  `json:"name"`
	DataType  string  `json:"data_type"`
	Nullable  bool    `json:"nullable"`
	Default   *string `json:"default,omitempty"`
	MaxLength *int    `json:"max_length,omitempty"`
}
