package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/koustreak/sqlrefine/internal/refine"
	"github.com/koustreak/sqlrefine/internal/results"
)

func newRefineCmd(a *app) *cobra.Command {
	var (
		src     sourceFlags
		output  string
		publish bool
	)

	cmd := &cobra.Command{
		Use:   "refine [dump.sql]",
		Short: "Refine a dump into <output>/<name>.sql",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if output != "" {
				a.cfg.Refine.OutputDir = output
			}

			source, err := src.source(ctx, a, args)
			if err != nil {
				return err
			}

			r := refine.New(a.cfg.Refine, refine.LogObserver(a.log), a.log)
			res, err := r.Run(ctx, source)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), res.Path)

			if !publish {
				return nil
			}
			store, err := a.objectStore(ctx)
			if err != nil {
				return err
			}
			pub, err := results.NewPublisher(store, &a.cfg.Store, a.log).Publish(ctx, res.Path, res.Checksum, source.Name())
			if err != nil {
				return err
			}
			if pub.URL != "" {
				fmt.Fprintln(cmd.OutOrStdout(), pub.URL)
			}
			return nil
		},
	}

	src.register(cmd)
	cmd.Flags().StringVarP(&output, "output", "o", "", "Output directory (default output_dir from the config, or results)")
	cmd.Flags().BoolVar(&publish, "publish", false, "Upload the refined dump to the configured bucket")
	return cmd
}
