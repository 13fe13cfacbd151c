package mysql

import (
	"database/sql"
	"net/url"
	"strings"

	gomysql "github.com/go-sql-driver/mysql"

	"github.com/koustreak/sqlrefine/internal/database"
	"github.com/koustreak/sqlrefine/internal/errs"
)

const (
	defaultMaxOpenConns = 4
	defaultMaxIdleConns = 2
)

// buildPool validates the DSN and returns a configured *sql.DB. No
// connection is made until the pool is first used.
func buildPool(cfg *database.Config) (*sql.DB, error) {
	dsn, err := buildDSN(cfg)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, errs.Wrap(errs.ErrKindInvalidInput, "open mysql", err)
	}

	maxOpen := cfg.MaxConns
	if maxOpen == 0 {
		maxOpen = defaultMaxOpenConns
	}
	maxIdle := cfg.MaxIdleConns
	if maxIdle == 0 {
		maxIdle = defaultMaxIdleConns
	}

	db.SetMaxOpenConns(maxOpen)
	db.SetMaxIdleConns(maxIdle)
	db.SetConnMaxLifetime(cfg.MaxConnLifetime)
	db.SetConnMaxIdleTime(cfg.MaxConnIdleTime)

	return db, nil
}

// buildDSN parses cfg.DSN and fills in the settings loading a dump relies
// on: a dial timeout and utf8mb4, which refined dumps are written in.
// Statements are sent one at a time, so multiStatements stays off.
func buildDSN(cfg *database.Config) (string, error) {
	dsnCfg, err := gomysql.ParseDSN(cfg.DSN)
	if err != nil {
		return "", errs.Wrap(errs.ErrKindInvalidInput, "invalid mysql dsn", err)
	}
	if dsnCfg.DBName == "" {
		return "", errs.New(errs.ErrKindInvalidInput, "mysql dsn must name a database")
	}

	if dsnCfg.Timeout == 0 {
		dsnCfg.Timeout = cfg.ConnectTimeout
	}
	if !hasParam(cfg.DSN, "charset") {
		if err := dsnCfg.Apply(gomysql.Charset("utf8mb4", dsnCfg.Collation)); err != nil {
			return "", errs.Wrap(errs.ErrKindInvalidInput, "invalid mysql dsn", err)
		}
	}
	dsnCfg.MultiStatements = false

	return dsnCfg.FormatDSN(), nil
}

// hasParam reports whether the query part of dsn sets key. The driver keeps
// some parameters, charset among them, out of Config.Params.
func hasParam(dsn, key string) bool {
	slash := strings.LastIndexByte(dsn, '/')
	q := strings.IndexByte(dsn[slash+1:], '?')
	if q < 0 {
		return false
	}
	values, err := url.ParseQuery(dsn[slash+1+q+1:])
	if err != nil {
		return false
	}
	return values.Has(key)
}
