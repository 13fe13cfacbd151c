package datasource

import (
	"context"
	"io"
	"path"

	"github.com/koustreak/sqlrefine/internal/filestore"
)

// Object is a dump stored in a bucket. Each Open streams the object again.
type Object struct {
	store  filestore.Store
	bucket string
	key    string
}

// NewObject returns a source for key inside bucket.
func NewObject(store filestore.Store, bucket, key string) *Object {
	return &Object{store: store, bucket: bucket, key: key}
}

// Open starts a new download of the object.
func (o *Object) Open(ctx context.Context) (io.ReadCloser, error) {
	obj, err := o.store.GetObject(ctx, o.bucket, o.key)
	if err != nil {
		return nil, err
	}
	return decoded(obj), nil
}

// Name returns the last element of the object key.
func (o *Object) Name() string { return path.Base(o.key) }
