package results

import (
	"context"
	"os"
	"path"
	"path/filepath"
	"time"

	"github.com/koustreak/sqlrefine/internal/errs"
	"github.com/koustreak/sqlrefine/internal/filestore"
	"github.com/koustreak/sqlrefine/internal/logger"
)

// Metadata keys set on published objects.
const (
	MetaChecksum = "checksum-xxh3"
	MetaSource   = "source"
)

// ContentType of a published dump.
const ContentType = "application/sql"

// DefaultURLExpiry is how long a presigned download link stays valid.
const DefaultURLExpiry = 24 * time.Hour

// Published describes a result uploaded to the store.
type Published struct {
	Bucket string                `json:"bucket"`
	Key    string                `json:"key"`
	URL    string                `json:"url,omitempty"`
	Info   *filestore.ObjectInfo `json:"info"`
}

// Publisher uploads refined dumps to a bucket under a key prefix.
type Publisher struct {
	Store     filestore.Store
	Bucket    string
	Prefix    string
	URLExpiry time.Duration
	Logger    *logger.Logger
}

// NewPublisher returns a Publisher for the bucket and prefix of cfg.
func NewPublisher(store filestore.Store, cfg *filestore.Config, log *logger.Logger) *Publisher {
	if log == nil {
		log = logger.Nop()
	}
	return &Publisher{
		Store:     store,
		Bucket:    cfg.Bucket,
		Prefix:    cfg.Prefix,
		URLExpiry: DefaultURLExpiry,
		Logger:    log,
	}
}

// Key returns the object key a result file is published under.
func (p *Publisher) Key(name string) string {
	return path.Join(p.Prefix, name)
}

// Publish uploads the file at localPath, creating the bucket if needed,
// and returns where it went with a presigned download link. checksum and
// source are stored as object metadata when set.
func (p *Publisher) Publish(ctx context.Context, localPath, checksum, source string) (*Published, error) {
	if p.Bucket == "" {
		return nil, errs.New(errs.ErrKindInvalidInput, "no bucket to publish to")
	}

	f, err := os.Open(localPath)
	if err != nil {
		return nil, errs.FromFS("open result", err)
	}
	defer f.Close()

	st, err := f.Stat()
	if err != nil {
		return nil, errs.FromFS("stat result", err)
	}

	if err := p.Store.EnsureBucket(ctx, p.Bucket); err != nil {
		return nil, err
	}

	meta := map[string]string{}
	if checksum != "" {
		meta[MetaChecksum] = checksum
	}
	if source != "" {
		meta[MetaSource] = source
	}

	key := p.Key(filepath.Base(localPath))
	info, err := p.Store.PutObject(ctx, p.Bucket, key, f, st.Size(), filestore.PutOptions{
		ContentType: ContentType,
		Metadata:    meta,
	})
	if err != nil {
		return nil, err
	}

	out := &Published{Bucket: p.Bucket, Key: key, Info: info}
	expiry := p.URLExpiry
	if expiry <= 0 {
		expiry = DefaultURLExpiry
	}
	if out.URL, err = p.Store.PresignGetURL(ctx, p.Bucket, key, expiry); err != nil {
		// the upload stands; only the link is missing
		p.Logger.With().Str("key", key).Err(err).Logger().Warn("presign failed")
	}

	p.Logger.InfoWith("result published", map[string]interface{}{
		"bucket": p.Bucket,
		"key":    key,
		"bytes":  st.Size(),
	})
	return out, nil
}

// List returns the published results under the prefix.
func (p *Publisher) List(ctx context.Context) ([]filestore.ObjectInfo, error) {
	objs, err := p.Store.ListObjects(ctx, p.Bucket, filestore.ListOptions{Prefix: p.Prefix, Recursive: true})
	if err != nil {
		return nil, err
	}
	out := objs[:0]
	for _, o := range objs {
		if !o.IsDir && path.Ext(o.Key) == Ext {
			out = append(out, o)
		}
	}
	return out, nil
}

// Remove deletes the published result called name.
func (p *Publisher) Remove(ctx context.Context, name string) error {
	if err := ValidName(name); err != nil {
		return err
	}
	key := p.Key(name)
	if _, err := p.Store.StatObject(ctx, p.Bucket, key); err != nil {
		return err
	}
	return p.Store.RemoveObject(ctx, p.Bucket, key)
}
