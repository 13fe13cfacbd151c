package database

import (
	"time"

	"github.com/koustreak/sqlrefine/internal/errs"
)

// Driver identifies the database engine a refined dump is loaded into.
type Driver string

// DriverMySQL is the only engine refined dumps target; they keep MySQL
// dialect end to end.
const DriverMySQL Driver = "mysql"

// Config holds the settings needed to load a refined dump into a database.
type Config struct {
	// Driver is the database engine. Empty means DriverMySQL.
	Driver Driver `yaml:"driver"`

	// DSN is the go-sql-driver data source name.
	// Example: "user:pass@tcp(localhost:3306)/shop"
	DSN string `yaml:"dsn"`

	// Pool tuning
	MaxConns        int           `yaml:"max_conns"`          // maximum number of open connections
	MaxIdleConns    int           `yaml:"max_idle_conns"`     // maximum number of idle connections kept
	MaxConnLifetime time.Duration `yaml:"max_conn_lifetime"`  // maximum time a connection may be reused
	MaxConnIdleTime time.Duration `yaml:"max_conn_idle_time"` // maximum time a connection may sit idle

	// Timeouts
	ConnectTimeout   time.Duration `yaml:"connect_timeout"`   // time limit for the initial ping
	StatementTimeout time.Duration `yaml:"statement_timeout"` // per-statement deadline, 0 disables it

	// ContinueOnError keeps loading after a rejected statement instead of
	// stopping at the first one.
	ContinueOnError bool `yaml:"continue_on_error"`

	// Verify compares the loaded tables with the dump's column metadata
	// once loading finishes.
	Verify bool `yaml:"verify"`
}

// DefaultConfig returns settings for loading a single dump: statements are
// executed one at a time, so the pool stays small.
func DefaultConfig(dsn string) *Config {
	return &Config{
		Driver:           DriverMySQL,
		DSN:              dsn,
		MaxConns:         4,
		MaxIdleConns:     2,
		MaxConnLifetime:  30 * time.Minute,
		MaxConnIdleTime:  5 * time.Minute,
		ConnectTimeout:   10 * time.Second,
		StatementTimeout: 5 * time.Minute,
	}
}

// Enabled reports whether a target database is configured.
func (c *Config) Enabled() bool {
	return c != nil && c.DSN != ""
}

// Validate checks the fields that do not need a connection.
func (c *Config) Validate() error {
	if c.DSN == "" {
		return errs.New(errs.ErrKindInvalidInput, "database dsn is required")
	}
	if c.Driver != "" && c.Driver != DriverMySQL {
		return errs.New(errs.ErrKindInvalidInput, "unsupported database driver: "+string(c.Driver))
	}
	if c.MaxConns < 0 || c.MaxIdleConns < 0 {
		return errs.New(errs.ErrKindInvalidInput, "database pool sizes must not be negative")
	}
	if c.ConnectTimeout < 0 || c.StatementTimeout < 0 {
		return errs.New(errs.ErrKindInvalidInput, "database timeouts must not be negative")
	}
	return nil
}
