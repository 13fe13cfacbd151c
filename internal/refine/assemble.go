package refine

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/zeebo/xxh3"

	"github.com/koustreak/sqlrefine/internal/errs"
)

// Assemble concatenates the fragments of ws that exist, in order, into
// dst. Each fragment is framed as
//
//	-- Start of <file>
//	<content>
//	-- End of <file>
//
// followed by a blank line. The output is written to a temporary file next
// to dst and renamed into place, so dst is never left half written.
// Assemble returns the xxh3 checksum of dst, in hex, and its size.
func Assemble(ws *Workspace, fragments []Artifact, dst string) (string, int64, error) {
	tmp, err := os.CreateTemp(filepath.Dir(dst), "."+filepath.Base(dst)+".*")
	if err != nil {
		return "", 0, errs.FromFS("create output file", err)
	}
	defer os.Remove(tmp.Name())

	h := xxh3.New()
	cw := &countingWriter{w: io.MultiWriter(tmp, h)}
	bw := bufio.NewWriterSize(cw, 64*1024)

	for _, a := range fragments {
		if !ws.Exists(a) {
			continue
		}
		if err := appendFragment(bw, ws, a); err != nil {
			tmp.Close()
			return "", 0, err
		}
	}

	if err := errors.Join(bw.Flush(), tmp.Close()); err != nil {
		return "", 0, errs.Wrap(errs.ErrKindIO, "write output file", err)
	}
	if err := os.Rename(tmp.Name(), dst); err != nil {
		return "", 0, errs.FromFS("move output file into place", err)
	}

	return hexSum(h.Sum64()), cw.n, nil
}

func appendFragment(w *bufio.Writer, ws *Workspace, a Artifact) error {
	in, err := ws.Open(a)
	if err != nil {
		return err
	}
	defer in.Close()

	name := ws.Name(a)
	if _, err := w.WriteString("-- Start of " + name + "\n"); err != nil {
		return errs.Wrap(errs.ErrKindIO, "write output file", err)
	}
	if _, err := io.Copy(w, in); err != nil {
		return errs.Wrap(errs.ErrKindIO, "copy "+name, err)
	}
	if _, err := w.WriteString("\n-- End of " + name + "\n\n"); err != nil {
		return errs.Wrap(errs.ErrKindIO, "write output file", err)
	}
	return nil
}

// Checksum returns the hex xxh3 checksum of everything read from r, in the
// same form Assemble reports.
func Checksum(r io.Reader) (string, error) {
	h := xxh3.New()
	if _, err := io.Copy(h, r); err != nil {
		return "", err
	}
	return hexSum(h.Sum64()), nil
}

func hexSum(v uint64) string { return fmt.Sprintf("%016x", v) }

type countingWriter struct {
	w io.Writer
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	return n, err
}
