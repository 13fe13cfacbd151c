package database

import (
	"context"
	"errors"
	"io"
	"time"
	"unicode/utf8"

	"github.com/koustreak/sqlrefine/internal/errs"
	"github.com/koustreak/sqlrefine/internal/logger"
	"github.com/koustreak/sqlrefine/internal/sqltext"
)

// maxFailures bounds how many rejected statements a LoadStats keeps.
const maxFailures = 20

// Failure records one statement the database rejected.
type Failure struct {
	Index     int    `json:"index"` // 1-based position in the input
	Statement string `json:"statement"`
	Error     string `json:"error"`
}

// LoadStats summarizes a Load call.
type LoadStats struct {
	Statements   int       `json:"statements"`
	Failed       int       `json:"failed"`
	RowsAffected int64     `json:"rows_affected"`
	Failures     []Failure `json:"failures,omitempty"` // first rejected statements only
}

// Loader executes the statements of a dump one by one.
type Loader struct {
	DB               Execer
	StatementTimeout time.Duration
	ContinueOnError  bool
	Logger           *logger.Logger
}

// NewLoader returns a Loader over db using the timeout and error policy of
// cfg. A nil logger disables logging.
func NewLoader(db Execer, cfg *Config, log *logger.Logger) *Loader {
	if log == nil {
		log = logger.Nop()
	}
	l := &Loader{DB: db, Logger: log}
	if cfg != nil {
		l.StatementTimeout = cfg.StatementTimeout
		l.ContinueOnError = cfg.ContinueOnError
	}
	return l
}

// Load splits r into statements and executes each of them in order.
// Comment lines are skipped, so diverted statements are never run.
//
// A rejected statement stops the load unless ContinueOnError is set.
// Cancellation of ctx always stops it.
func (l *Loader) Load(ctx context.Context, r io.Reader) (LoadStats, error) {
	var stats LoadStats

	err := sqltext.SplitStatements(r, func(stmt string) error {
		if err := ctx.Err(); err != nil {
			return errs.Wrap(errs.ErrKindTimeout, "load canceled", err)
		}
		stats.Statements++

		n, err := l.exec(ctx, stmt)
		if err == nil {
			stats.RowsAffected += n
			return nil
		}
		stats.Failed++
		if ctx.Err() != nil || !l.ContinueOnError {
			return err
		}

		if len(stats.Failures) < maxFailures {
			stats.Failures = append(stats.Failures, Failure{
				Index:     stats.Statements,
				Statement: abbreviate(stmt, 120),
				Error:     err.Error(),
			})
		}
		l.Logger.With().Int("statement", stats.Statements).Err(err).Logger().Warn("statement rejected")
		return nil
	})
	if err != nil {
		var e *errs.Error
		if !errors.As(err, &e) {
			err = errs.Wrap(errs.ErrKindIO, "read dump", err)
		}
		return stats, err
	}

	l.Logger.InfoWith("dump loaded", map[string]interface{}{
		"statements":    stats.Statements,
		"failed":        stats.Failed,
		"rows_affected": stats.RowsAffected,
	})
	return stats, nil
}

func (l *Loader) exec(ctx context.Context, stmt string) (int64, error) {
	if l.StatementTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, l.StatementTimeout)
		defer cancel()
	}
	return l.DB.Exec(ctx, stmt)
}

// abbreviate cuts s to at most n bytes on a rune boundary, marking the cut.
func abbreviate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n] + "..."
}
