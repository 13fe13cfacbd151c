// Package mysql implements database.DB for MySQL on top of database/sql
// and go-sql-driver/mysql.
package mysql

import (
	"context"
	"database/sql"

	_ "github.com/go-sql-driver/mysql" // register "mysql" driver

	"github.com/koustreak/sqlrefine/internal/database"
)

// DB is a MySQL connection pool. It is safe for concurrent use.
type DB struct {
	sqlDB *sql.DB
}

var _ database.DB = (*DB)(nil)

// Connect opens a pool for cfg and pings it within cfg.ConnectTimeout.
func Connect(ctx context.Context, cfg *database.Config) (*DB, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	sqlDB, err := buildPool(cfg)
	if err != nil {
		return nil, err
	}

	pingCtx := ctx
	if cfg.ConnectTimeout > 0 {
		var cancel context.CancelFunc
		pingCtx, cancel = context.WithTimeout(ctx, cfg.ConnectTimeout)
		defer cancel()
	}

	db := &DB{sqlDB: sqlDB}
	if err := db.Ping(pingCtx); err != nil {
		_ = sqlDB.Close()
		return nil, err
	}
	return db, nil
}

// Ping verifies the connection is alive.
func (db *DB) Ping(ctx context.Context) error {
	return mapError(db.sqlDB.PingContext(ctx), "ping failed")
}

// Close shuts down the connection pool.
func (db *DB) Close() error {
	if db.sqlDB == nil {
		return nil
	}
	return db.sqlDB.Close()
}

// Exec executes a statement and returns the rows it affected.
func (db *DB) Exec(ctx context.Context, query string, args ...any) (int64, error) {
	res, err := db.sqlDB.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, mapError(err, "statement failed")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, mapError(err, "rows affected")
	}
	return n, nil
}
