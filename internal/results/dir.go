// Package results manages refined dumps once a run has written them: the
// local output directory and, optionally, a bucket they are published to.
package results

import (
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/koustreak/sqlrefine/internal/errs"
)

// Ext is the extension of every refined dump.
const Ext = ".sql"

// Entry describes one refined dump in the output directory.
type Entry struct {
	Name    string    `json:"name"`
	Size    int64     `json:"size"`
	ModTime time.Time `json:"mod_time"`
}

// Dir is an output directory holding refined dumps.
type Dir struct {
	path string
}

// NewDir returns the output directory at path. The directory need not
// exist yet.
func NewDir(path string) *Dir {
	return &Dir{path: path}
}

// Path returns the directory path.
func (d *Dir) Path() string { return d.path }

// List returns the refined dumps in the directory, newest first. A missing
// directory holds no results.
func (d *Dir) List() ([]Entry, error) {
	des, err := os.ReadDir(d.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errs.FromFS("list results", err)
	}

	var out []Entry
	for _, de := range des {
		if de.IsDir() || filepath.Ext(de.Name()) != Ext {
			continue
		}
		info, err := de.Info()
		if err != nil {
			// removed between ReadDir and Info
			continue
		}
		out = append(out, Entry{Name: de.Name(), Size: info.Size(), ModTime: info.ModTime()})
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].ModTime.Equal(out[j].ModTime) {
			return out[i].ModTime.After(out[j].ModTime)
		}
		return out[i].Name < out[j].Name
	})
	return out, nil
}

// Resolve returns the path of the result called name. The name must be a
// plain file name ending in Ext.
func (d *Dir) Resolve(name string) (string, error) {
	if err := ValidName(name); err != nil {
		return "", err
	}
	return filepath.Join(d.path, name), nil
}

// Open opens the result called name for reading.
func (d *Dir) Open(name string) (*os.File, error) {
	path, err := d.Resolve(name)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, errs.FromFS("open result "+name, err)
	}
	return f, nil
}

// Remove deletes the result called name.
func (d *Dir) Remove(name string) error {
	path, err := d.Resolve(name)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil {
		return errs.FromFS("remove result "+name, err)
	}
	return nil
}

// ValidName rejects names that could escape the directory or that do not
// name a refined dump.
func ValidName(name string) error {
	switch {
	case name == "", name != filepath.Base(name), strings.ContainsAny(name, `/\`):
		return errs.New(errs.ErrKindInvalidInput, "invalid result name: "+name)
	case strings.HasPrefix(name, "."):
		return errs.New(errs.ErrKindInvalidInput, "invalid result name: "+name)
	case filepath.Ext(name) != Ext:
		return errs.New(errs.ErrKindInvalidInput, "result name must end in "+Ext)
	}
	return nil
}
