package refine

import (
	"bufio"
	"errors"
	"io"
	"os"
	"path/filepath"

	"github.com/koustreak/sqlrefine/internal/errs"
)

// Artifact names one intermediate file of a run. The file name is the dump's
// base name followed by the artifact suffix.
type Artifact string

const (
	ArtifactSchema   Artifact = "_0.sql"
	ArtifactInserts  Artifact = "_temp.sql"
	ArtifactSide     Artifact = "_temp_extra.sql"
	ArtifactMetadata Artifact = "_indexes.json"
	ArtifactRepaired Artifact = "_temp_refined.sql"
)

// Workspace owns the scratch directory of one run. Nothing is shared
// between workspaces, so concurrent runs never see each other's files.
//
// Close removes the directory and everything in it; it is safe to call
// more than once.
type Workspace struct {
	dir  string
	base string
}

// NewWorkspace creates a fresh directory under parent, or under the system
// temp directory when parent is empty.
func NewWorkspace(parent, base string) (*Workspace, error) {
	if base == "" {
		return nil, errs.New(errs.ErrKindInvalidInput, "workspace needs a base name")
	}
	if parent != "" {
		if err := os.MkdirAll(parent, 0o755); err != nil {
			return nil, errs.FromFS("create work dir", err)
		}
	}
	dir, err := os.MkdirTemp(parent, "sqlrefine-"+base+"-")
	if err != nil {
		return nil, errs.FromFS("create workspace", err)
	}
	return &Workspace{dir: dir, base: base}, nil
}

// Dir returns the workspace directory, or "" once closed.
func (w *Workspace) Dir() string { return w.dir }

// Name returns the file name of artifact a, e.g. "shop_temp.sql".
func (w *Workspace) Name(a Artifact) string { return w.base + string(a) }

// Path returns the full path of artifact a.
func (w *Workspace) Path(a Artifact) string { return filepath.Join(w.dir, w.Name(a)) }

// Exists reports whether artifact a has been written.
func (w *Workspace) Exists(a Artifact) bool {
	if w.dir == "" {
		return false
	}
	_, err := os.Stat(w.Path(a))
	return err == nil
}

// Writer returns an appending writer for artifact a. The file is only
// created by the first Write, so an artifact nothing was written to stays
// absent. The caller must Close the writer.
func (w *Workspace) Writer(a Artifact) *LazyFile {
	return &LazyFile{path: w.Path(a)}
}

// Open opens artifact a for reading.
func (w *Workspace) Open(a Artifact) (*os.File, error) {
	f, err := os.Open(w.Path(a))
	if err != nil {
		return nil, errs.FromFS("open "+w.Name(a), err)
	}
	return f, nil
}

// Close removes the workspace directory.
func (w *Workspace) Close() error {
	if w == nil || w.dir == "" {
		return nil
	}
	dir := w.dir
	w.dir = ""
	if err := os.RemoveAll(dir); err != nil {
		return errs.FromFS("remove workspace", err)
	}
	return nil
}

// LazyFile is a buffered writer whose file is created on first write.
type LazyFile struct {
	path string
	f    *os.File
	bw   *bufio.Writer
}

// Write implements io.Writer.
func (l *LazyFile) Write(p []byte) (int, error) {
	if l.bw == nil {
		f, err := os.OpenFile(l.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return 0, errs.FromFS("create "+filepath.Base(l.path), err)
		}
		l.f = f
		l.bw = bufio.NewWriterSize(f, 64*1024)
	}
	return l.bw.Write(p)
}

// Close flushes and closes the file, if it was ever created.
func (l *LazyFile) Close() error {
	if l.bw == nil {
		return nil
	}
	flushErr := l.bw.Flush()
	closeErr := l.f.Close()
	l.bw, l.f = nil, nil
	if err := errors.Join(flushErr, closeErr); err != nil {
		return errs.Wrap(errs.ErrKindIO, "close "+filepath.Base(l.path), err)
	}
	return nil
}

var _ io.WriteCloser = (*LazyFile)(nil)
