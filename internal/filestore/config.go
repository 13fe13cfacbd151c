package filestore

import "github.com/koustreak/sqlrefine/internal/errs"

// Provider identifies the file storage backend.
type Provider string

const (
	ProviderMinIO Provider = "minio"
)

// Config holds all settings needed to connect to a file storage backend.
type Config struct {
	// Provider is the storage backend (e.g. ProviderMinIO).
	Provider Provider `yaml:"provider"`

	// Endpoint is the host:port of the storage server.
	// Example: "localhost:9000" for local MinIO.
	Endpoint string `yaml:"endpoint"`

	// AccessKey is the access key ID (MinIO / S3 style).
	AccessKey string `yaml:"access_key"`

	// SecretKey is the secret access key.
	SecretKey string `yaml:"secret_key"`

	// UseSSL controls whether TLS is used for the connection.
	UseSSL bool `yaml:"use_ssl"`

	// Region is used by region-aware backends (e.g. AWS S3).
	// Leave empty for MinIO.
	Region string `yaml:"region"`

	// Bucket is the default bucket dumps are fetched from and results are
	// published to. Callers may override it per-request.
	Bucket string `yaml:"bucket"`

	// Prefix is prepended to the key of every published result,
	// e.g. "refined/".
	Prefix string `yaml:"prefix"`
}

// DefaultConfig returns a sensible local-dev config for MinIO.
func DefaultConfig(endpoint, accessKey, secretKey string) *Config {
	return &Config{
		Provider:  ProviderMinIO,
		Endpoint:  endpoint,
		AccessKey: accessKey,
		SecretKey: secretKey,
		UseSSL:    false,
		Bucket:    "dumps",
		Prefix:    "refined/",
	}
}

// Enabled reports whether a store is configured at all.
func (c *Config) Enabled() bool {
	return c != nil && c.Endpoint != ""
}

// Validate checks the settings a connection needs.
func (c *Config) Validate() error {
	if !c.Enabled() {
		return nil
	}
	if c.Provider != ProviderMinIO {
		return errs.New(errs.ErrKindInvalidInput, "unsupported store provider: "+string(c.Provider))
	}
	if c.AccessKey == "" || c.SecretKey == "" {
		return errs.New(errs.ErrKindInvalidInput, "store access_key and secret_key are required")
	}
	return nil
}
