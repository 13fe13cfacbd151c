// Package config loads the sqlrefine YAML configuration file.
//
// Example:
//
//	output_dir: results
//	log:
//	  level: info
//	  format: json
//	store:
//	  provider: minio
//	  endpoint: localhost:9000
//	  bucket: dumps
//	import:
//	  dsn: app:secret@tcp(localhost:3306)/shop
//	server:
//	  addr: :8080
package config

import (
	"errors"
	"io"
	"os"
	"strings"
	"time"

	"go.yaml.in/yaml/v3"

	"github.com/koustreak/sqlrefine/internal/database"
	"github.com/koustreak/sqlrefine/internal/errs"
	"github.com/koustreak/sqlrefine/internal/filestore"
	"github.com/koustreak/sqlrefine/internal/logger"
	"github.com/koustreak/sqlrefine/internal/refine"
)

// Environment variables that override secrets from the file.
const (
	EnvStoreAccessKey = "SQLREFINE_STORE_ACCESS_KEY"
	EnvStoreSecretKey = "SQLREFINE_STORE_SECRET_KEY"
	EnvImportDSN      = "SQLREFINE_IMPORT_DSN"
)

// Config is the whole configuration file.
type Config struct {
	Refine refine.Config    `yaml:",inline"`
	Log    logger.Config    `yaml:"log"`
	Store  filestore.Config `yaml:"store"`
	Import database.Config  `yaml:"import"`
	Server ServerConfig     `yaml:"server"`
}

// ServerConfig holds the settings of the HTTP API.
type ServerConfig struct {
	Addr            string        `yaml:"addr"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`

	// MaxUploadBytes caps the size of a dump submitted in a request body.
	MaxUploadBytes int64 `yaml:"max_upload_bytes"`

	// QueueSize is how many submitted jobs may wait for the worker.
	QueueSize int `yaml:"queue_size"`
}

// Default returns the configuration used when no file is given: local
// output, console logging, no store and no import target.
func Default() *Config {
	return &Config{
		Refine: refine.DefaultConfig(),
		Log:    *logger.DefaultConfig(),
		Import: *database.DefaultConfig(""),
		Server: ServerConfig{
			Addr:            ":8080",
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    5 * time.Minute,
			ShutdownTimeout: 15 * time.Second,
			MaxUploadBytes:  1 << 30,
			QueueSize:       16,
		},
	}
}

// Load reads the file at path over Default and validates the result.
// An empty path yields the defaults. Unknown keys are rejected.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		f, err := os.Open(path)
		if err != nil {
			return nil, errs.FromFS("open config file", err)
		}
		defer f.Close()

		dec := yaml.NewDecoder(f)
		dec.KnownFields(true)
		if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
			return nil, errs.Wrap(errs.ErrKindInvalidInput, "parse config "+path, err)
		}
	}

	cfg.applyEnv(os.LookupEnv)
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnv overrides secrets with the environment, so they can be kept
// out of the file.
func (c *Config) applyEnv(lookup func(string) (string, bool)) {
	if v, ok := lookup(EnvStoreAccessKey); ok {
		c.Store.AccessKey = v
	}
	if v, ok := lookup(EnvStoreSecretKey); ok {
		c.Store.SecretKey = v
	}
	if v, ok := lookup(EnvImportDSN); ok {
		c.Import.DSN = v
	}
}

func (c *Config) validate() error {
	if strings.TrimSpace(c.Refine.OutputDir) == "" {
		return errs.New(errs.ErrKindInvalidInput, "output_dir is required")
	}
	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return errs.New(errs.ErrKindInvalidInput, "log.level must be debug, info, warn or error")
	}
	switch c.Log.Format {
	case "json", "console":
	default:
		return errs.New(errs.ErrKindInvalidInput, "log.format must be json or console")
	}
	if err := c.Store.Validate(); err != nil {
		return err
	}
	if c.Import.Enabled() {
		if err := c.Import.Validate(); err != nil {
			return err
		}
	}
	if c.Server.Addr == "" {
		return errs.New(errs.ErrKindInvalidInput, "server.addr is required")
	}
	if c.Server.QueueSize < 1 {
		return errs.New(errs.ErrKindInvalidInput, "server.queue_size must be at least 1")
	}
	if c.Server.MaxUploadBytes < 1 {
		return errs.New(errs.ErrKindInvalidInput, "server.max_upload_bytes must be positive")
	}
	return nil
}
