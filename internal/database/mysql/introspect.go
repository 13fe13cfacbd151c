package mysql

import (
	"context"
	"database/sql"

	"github.com/koustreak/sqlrefine/internal/database"
)

// ListTables returns the base tables of the connected database.
func (db *DB) ListTables(ctx context.Context) ([]string, error) {
	const q = `
		SELECT table_name
		FROM information_schema.tables
		WHERE table_schema = DATABASE()
		  AND table_type   = 'BASE TABLE'
		ORDER BY table_name`

	rows, err := db.sqlDB.QueryContext(ctx, q)
	if err != nil {
		return nil, mapError(err, "failed to list tables")
	}
	defer rows.Close()

	var tables []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, mapError(err, "failed to scan table name")
		}
		tables = append(tables, name)
	}
	if err := rows.Err(); err != nil {
		return nil, mapError(err, "error iterating tables")
	}
	return tables, nil
}

// TableColumns returns the columns of table in ordinal order.
func (db *DB) TableColumns(ctx context.Context, table string) ([]database.ColumnInfo, error) {
	const q = `
		SELECT column_name,
		       column_type,
		       is_nullable = 'YES',
		       column_default,
		       character_maximum_length
		FROM information_schema.columns
		WHERE table_schema = DATABASE()
		  AND table_name   = ?
		ORDER BY ordinal_position`

	rows, err := db.sqlDB.QueryContext(ctx, q, table)
	if err != nil {
		return nil, mapError(err, "failed to fetch columns")
	}
	defer rows.Close()

	var cols []database.ColumnInfo
	for rows.Next() {
		var (
			c      database.ColumnInfo
			def    sql.NullString
			maxLen sql.NullInt64
		)
		if err := rows.Scan(&c.Name, &c.DataType, &c.Nullable, &def, &maxLen); err != nil {
			return nil, mapError(err, "failed to scan column info")
		}
		if def.Valid {
			c.Default = &def.String
		}
		if maxLen.Valid {
			n := int(maxLen.Int64)
			c.MaxLength = &n
		}
		cols = append(cols, c)
	}
	if err := rows.Err(); err != nil {
		return nil, mapError(err, "error iterating columns")
	}
	return cols, nil
}
