package datasource

import (
	"context"
	"io"
	"os"
	"path/filepath"

	"github.com/koustreak/sqlrefine/internal/errs"
)

// Local is a dump on the local filesystem.
type Local struct{ path string }

// NewLocal returns a Local source bound to path.
func NewLocal(path string) *Local { return &Local{path: path} }

// Open returns the context error without touching the filesystem when ctx
// is already done. A missing file is reported as errs.ErrKindNotFound.
func (l *Local) Open(ctx context.Context) (io.ReadCloser, error) {
	select {
	case <-ctx.Done():
		return nil, errs.Wrap(errs.ErrKindTimeout, "open "+l.path, ctx.Err())
	default:
	}
	f, err := os.Open(l.path)
	if err != nil {
		return nil, errs.FromFS("open "+l.path, err)
	}
	return decoded(f), nil
}

// Name returns the file name of the dump.
func (l *Local) Name() string { return filepath.Base(l.path) }

// Path returns the path the source was created with.
func (l *Local) Path() string { return l.path }
