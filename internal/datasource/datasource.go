// Package datasource opens the dump a run reads. Every source can be opened
// more than once, since the pipeline makes independent passes over its
// input, and every reader it returns yields UTF-8.
package datasource

import (
	"context"
	"io"
	"path"
	"strings"

	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// Source is a re-openable dump.
type Source interface {
	// Open returns a fresh reader positioned at the start of the dump.
	Open(ctx context.Context) (io.ReadCloser, error)

	// Name is the dump's file name, e.g. "shop.sql".
	Name() string
}

// BaseName returns name without directories and its last extension, the
// stem every artifact of a run is named after.
func BaseName(name string) string {
	base := path.Base(strings.ReplaceAll(name, `\`, "/"))
	if ext := path.Ext(base); ext != "" && ext != base {
		base = strings.TrimSuffix(base, ext)
	}
	return base
}

// decoded wraps rc so that a UTF-8 byte order mark is dropped and UTF-16
// input with a byte order mark is transcoded to UTF-8. Input without a BOM
// passes through unchanged.
func decoded(rc io.ReadCloser) io.ReadCloser {
	return &readCloser{
		Reader: transform.NewReader(rc, unicode.BOMOverride(transform.Nop)),
		Closer: rc,
	}
}

type readCloser struct {
	io.Reader
	io.Closer
}
