// Package filestoretest provides an in-memory filestore.Store for tests.
package filestoretest

import (
	"bytes"
	"context"
	"io"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/koustreak/sqlrefine/internal/errs"
	"github.com/koustreak/sqlrefine/internal/filestore"
)

// Memory is a filestore.Store backed by maps. It is safe for concurrent use.
type Memory struct {
	mu      sync.Mutex
	buckets map[string]map[string]*entry
}

type entry struct {
	data []byte
	info filestore.ObjectInfo
}

// NewMemory returns an empty store.
func NewMemory() *Memory {
	return &Memory{buckets: make(map[string]map[string]*entry)}
}

// Add stores data at key inside bucket, creating the bucket.
func (m *Memory) Add(bucket, key string, data []byte) {
	_, _ = m.PutObject(context.Background(), bucket, key, bytes.NewReader(data), int64(len(data)), filestore.PutOptions{})
}

// Bytes returns the content stored at key, or nil.
func (m *Memory) Bytes(bucket, key string) []byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e, ok := m.buckets[bucket][key]; ok {
		return e.data
	}
	return nil
}

func (m *Memory) Ping(ctx context.Context) error { return ctx.Err() }

func (m *Memory) Close() error { return nil }

func (m *Memory) EnsureBucket(_ context.Context, bucket string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.buckets[bucket] == nil {
		m.buckets[bucket] = make(map[string]*entry)
	}
	return nil
}

func (m *Memory) ListObjects(_ context.Context, bucket string, opts filestore.ListOptions) ([]filestore.ObjectInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	objs, ok := m.buckets[bucket]
	if !ok {
		return nil, errs.New(errs.ErrKindNotFound, "no such bucket: "+bucket)
	}
	var out []filestore.ObjectInfo
	for key, e := range objs {
		if strings.HasPrefix(key, opts.Prefix) {
			out = append(out, e.info)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	if opts.Limit > 0 && len(out) > opts.Limit {
		out = out[:opts.Limit]
	}
	return out, nil
}

func (m *Memory) GetObject(_ context.Context, bucket, key string) (filestore.Object, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.buckets[bucket][key]
	if !ok {
		return nil, errs.New(errs.ErrKindNotFound, "no such key: "+key)
	}
	info := e.info
	return &object{Reader: bytes.NewReader(e.data), info: &info}, nil
}

func (m *Memory) StatObject(_ context.Context, bucket, key string) (*filestore.ObjectInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.buckets[bucket][key]
	if !ok {
		return nil, errs.New(errs.ErrKindNotFound, "no such key: "+key)
	}
	info := e.info
	return &info, nil
}

func (m *Memory) PutObject(_ context.Context, bucket, key string, r io.Reader, _ int64, opts filestore.PutOptions) (*filestore.ObjectInfo, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, errs.Wrap(errs.ErrKindIO, "read upload", err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.buckets[bucket] == nil {
		m.buckets[bucket] = make(map[string]*entry)
	}
	info := filestore.ObjectInfo{
		Key:          key,
		Size:         int64(len(data)),
		ContentType:  opts.ContentType,
		LastModified: time.Now(),
		Metadata:     opts.Metadata,
	}
	m.buckets[bucket][key] = &entry{data: data, info: info}
	return &info, nil
}

func (m *Memory) RemoveObject(_ context.Context, bucket, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.buckets[bucket], key)
	return nil
}

func (m *Memory) PresignGetURL(_ context.Context, bucket, key string, _ time.Duration) (string, error) {
	return "memory://" + bucket + "/" + key, nil
}

type object struct {
	*bytes.Reader
	info *filestore.ObjectInfo
}

func (o *object) Close() error                { return nil }
func (o *object) Info() *filestore.ObjectInfo { return o.info }

var _ filestore.Store = (*Memory)(nil)
