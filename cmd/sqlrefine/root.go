package main

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/koustreak/sqlrefine/internal/config"
	"github.com/koustreak/sqlrefine/internal/datasource"
	"github.com/koustreak/sqlrefine/internal/errs"
	"github.com/koustreak/sqlrefine/internal/filestore"
	"github.com/koustreak/sqlrefine/internal/filestore/minio"
	"github.com/koustreak/sqlrefine/internal/logger"
)

// app is the state shared by every subcommand once flags are parsed.
type app struct {
	configPath string
	logLevel   string

	cfg   *config.Config
	log   *logger.Logger
	store *minio.Driver
}

func newRootCmd() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:   "sqlrefine",
		Short: "Repair MySQL dumps so they load cleanly",
		Long: `sqlrefine reads a mysqldump file, normalizes its CREATE TABLE statements,
repairs the values of its INSERT statements against the declared columns and
writes one refined dump that imports without errors.`,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: a.setup,
		PersistentPostRun: func(*cobra.Command, []string) { a.close() },
	}

	root.PersistentFlags().StringVarP(&a.configPath, "config", "c", "", "Path to the YAML configuration file")
	root.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "Override the log level (debug, info, warn, error)")

	root.AddCommand(
		newRefineCmd(a),
		newInspectCmd(a),
		newImportCmd(a),
		newServeCmd(a),
		newVersionCmd(),
	)
	return root
}

func (a *app) setup(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return err
	}
	if a.logLevel != "" {
		cfg.Log.Level = a.logLevel
	}
	cfg.Log.Output = cmd.ErrOrStderr()

	a.cfg = cfg
	a.log = logger.New(&cfg.Log)
	return nil
}

func (a *app) close() {
	if a.store != nil {
		_ = a.store.Close()
		a.store = nil
	}
}

// objectStore connects to the configured store on first use.
func (a *app) objectStore(ctx context.Context) (filestore.Store, error) {
	if a.store != nil {
		return a.store, nil
	}
	if !a.cfg.Store.Enabled() {
		return nil, errs.New(errs.ErrKindInvalidInput, "no object store configured (store.endpoint)")
	}
	store, err := minio.New(ctx, &a.cfg.Store)
	if err != nil {
		return nil, err
	}
	a.store = store
	return store, nil
}

// sourceFlags selects a dump either by path argument or by bucket object.
type sourceFlags struct {
	bucket string
	object string
}

func (f *sourceFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.object, "object", "", "Read the dump from this object key instead of a local file")
	cmd.Flags().StringVar(&f.bucket, "bucket", "", "Bucket of --object (default store.bucket)")
}

func (f *sourceFlags) source(ctx context.Context, a *app, args []string) (datasource.Source, error) {
	switch {
	case f.object != "" && len(args) > 0:
		return nil, errs.New(errs.ErrKindInvalidInput, "give either a file or --object, not both")
	case f.object != "":
		store, err := a.objectStore(ctx)
		if err != nil {
			return nil, err
		}
		bucket := f.bucket
		if bucket == "" {
			bucket = a.cfg.Store.Bucket
		}
		return datasource.NewObject(store, bucket, f.object), nil
	case len(args) == 1:
		return datasource.NewLocal(args[0]), nil
	default:
		return nil, errs.New(errs.ErrKindInvalidInput, "a dump file or --object is required")
	}
}
