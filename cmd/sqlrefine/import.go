package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/koustreak/sqlrefine/internal/database"
	"github.com/koustreak/sqlrefine/internal/database/mysql"
	"github.com/koustreak/sqlrefine/internal/datasource"
	"github.com/koustreak/sqlrefine/internal/errs"
	"github.com/koustreak/sqlrefine/internal/schema"
)

func newImportCmd(a *app) *cobra.Command {
	var (
		dsn             string
		continueOnError bool
		verify          bool
	)

	cmd := &cobra.Command{
		Use:   "import <refined.sql>",
		Short: "Load a refined dump into MySQL",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg := a.cfg.Import
			if dsn != "" {
				cfg.DSN = dsn
			}
			if cmd.Flags().Changed("continue-on-error") {
				cfg.ContinueOnError = continueOnError
			}
			if cmd.Flags().Changed("verify") {
				cfg.Verify = verify
			}

			db, err := mysql.Connect(ctx, &cfg)
			if err != nil {
				return err
			}
			defer db.Close()

			src := datasource.NewLocal(args[0])
			stats, err := load(ctx, database.NewLoader(db, &cfg, a.log), src)
			if err != nil {
				return err
			}
			if err := printJSON(cmd.OutOrStdout(), stats); err != nil {
				return err
			}

			if !cfg.Verify {
				return nil
			}
			report, err := verifyLoad(ctx, db, src)
			if err != nil {
				return err
			}
			if err := printJSON(cmd.OutOrStdout(), report); err != nil {
				return err
			}
			if !report.OK() {
				return errs.New(errs.ErrKindQueryFailed, fmt.Sprintf("%d tables do not match the dump", len(report.Failed())))
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&dsn, "dsn", "", "MySQL DSN (default import.dsn from the config)")
	cmd.Flags().BoolVar(&continueOnError, "continue-on-error", false, "Keep loading after a rejected statement")
	cmd.Flags().BoolVar(&verify, "verify", false, "Compare the loaded tables with the dump's CREATE TABLEs")
	return cmd
}

func load(ctx context.Context, l *database.Loader, src datasource.Source) (database.LoadStats, error) {
	in, err := src.Open(ctx)
	if err != nil {
		return database.LoadStats{}, err
	}
	defer in.Close()
	return l.Load(ctx, in)
}

// verifyLoad extracts the column metadata of src again and checks the
// database against it.
func verifyLoad(ctx context.Context, in database.Introspector, src datasource.Source) (*database.Report, error) {
	r, err := src.Open(ctx)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	ext, err := schema.Extract(r, io.Discard, io.Discard)
	if err != nil {
		return nil, err
	}
	return database.Verify(ctx, in, ext.Metadata)
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
