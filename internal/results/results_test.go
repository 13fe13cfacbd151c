package results

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/koustreak/sqlrefine/internal/errs"
	"github.com/koustreak/sqlrefine/internal/filestore"
	"github.com/koustreak/sqlrefine/internal/filestore/filestoretest"
)

func writeResult(t *testing.T, dir, name, body string, mod time.Time) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	require.NoError(t, os.Chtimes(path, mod, mod))
	return path
}

func TestDir_List(t *testing.T) {
	root := t.TempDir()
	now := time.Now().Truncate(time.Second)
	writeResult(t, root, "old.sql", "a", now.Add(-time.Hour))
	writeResult(t, root, "new.sql", "bbb", now)
	writeResult(t, root, "notes.txt", "x", now)
	require.NoError(t, os.Mkdir(filepath.Join(root, "sub.sql"), 0o755))

	entries, err := NewDir(root).List()
	require.NoError(t, err)

	require.Len(t, entries, 2)
	assert.Equal(t, "new.sql", entries[0].Name)
	assert.Equal(t, int64(3), entries[0].Size)
	assert.Equal(t, "old.sql", entries[1].Name)
}

func TestDir_ListMissing(t *testing.T) {
	entries, err := NewDir(filepath.Join(t.TempDir(), "absent")).List()
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestDir_OpenRemove(t *testing.T) {
	root := t.TempDir()
	writeResult(t, root, "shop.sql", "CREATE TABLE t (id int);", time.Now())
	d := NewDir(root)

	f, err := d.Open("shop.sql")
	require.NoError(t, err)
	data, err := io.ReadAll(f)
	require.NoError(t, err)
	require.NoError(t, f.Close())
	assert.Equal(t, "CREATE TABLE t (id int);", string(data))

	require.NoError(t, d.Remove("shop.sql"))
	assert.NoFileExists(t, filepath.Join(root, "shop.sql"))

	assert.True(t, errs.IsNotFound(d.Remove("shop.sql")))
	_, err = d.Open("shop.sql")
	assert.True(t, errs.IsNotFound(err))
}

func TestValidName(t *testing.T) {
	tests := []struct {
		name string
		ok   bool
	}{
		{"shop.sql", true},
		{"my dump.sql", true},
		{"", false},
		{"../shop.sql", false},
		{"a/shop.sql", false},
		{`a\shop.sql`, false},
		{".sql", false},
		{".hidden.sql", false},
		{"shop.txt", false},
		{"shop", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidName(tt.name)
			if tt.ok {
				assert.NoError(t, err)
				return
			}
			assert.True(t, errs.IsInvalidInput(err))
		})
	}
}

func newPublisher(store filestore.Store) *Publisher {
	return NewPublisher(store, &filestore.Config{Bucket: "dumps", Prefix: "refined/"}, nil)
}

func TestPublisher_Publish(t *testing.T) {
	store := filestoretest.NewMemory()
	path := writeResult(t, t.TempDir(), "shop.sql", "-- Start of shop_0\n", time.Now())

	pub, err := newPublisher(store).Publish(context.Background(), path, "00ff00ff00ff00ff", "shop.sql")
	require.NoError(t, err)

	assert.Equal(t, "dumps", pub.Bucket)
	assert.Equal(t, "refined/shop.sql", pub.Key)
	assert.Equal(t, "memory://dumps/refined/shop.sql", pub.URL)
	assert.Equal(t, ContentType, pub.Info.ContentType)
	assert.Equal(t, map[string]string{
		MetaChecksum: "00ff00ff00ff00ff",
		MetaSource:   "shop.sql",
	}, pub.Info.Metadata)
	assert.Equal(t, "-- Start of shop_0\n", string(store.Bytes("dumps", "refined/shop.sql")))
}

func TestPublisher_PublishErrors(t *testing.T) {
	store := filestoretest.NewMemory()

	_, err := newPublisher(store).Publish(context.Background(), filepath.Join(t.TempDir(), "absent.sql"), "", "")
	assert.True(t, errs.IsNotFound(err))

	p := newPublisher(store)
	p.Bucket = ""
	_, err = p.Publish(context.Background(), "x.sql", "", "")
	assert.True(t, errs.IsInvalidInput(err))
}

func TestPublisher_ListRemove(t *testing.T) {
	store := filestoretest.NewMemory()
	store.Add("dumps", "refined/a.sql", []byte("a"))
	store.Add("dumps", "refined/b.sql", []byte("b"))
	store.Add("dumps", "refined/readme.md", []byte("c"))
	store.Add("dumps", "raw/c.sql", []byte("d"))
	p := newPublisher(store)

	objs, err := p.List(context.Background())
	require.NoError(t, err)
	var keys []string
	for _, o := range objs {
		keys = append(keys, o.Key)
	}
	assert.Equal(t, []string{"refined/a.sql", "refined/b.sql"}, keys)

	require.NoError(t, p.Remove(context.Background(), "a.sql"))
	assert.Nil(t, store.Bytes("dumps", "refined/a.sql"))
	assert.True(t, errs.IsNotFound(p.Remove(context.Background(), "a.sql")))
	assert.True(t, errs.IsInvalidInput(p.Remove(context.Background(), "../b.sql")))
}
