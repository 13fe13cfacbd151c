package main

import (
	"io"

	"github.com/spf13/cobra"

	"github.com/koustreak/sqlrefine/internal/schema"
)

func newInspectCmd(a *app) *cobra.Command {
	var src sourceFlags

	cmd := &cobra.Command{
		Use:   "inspect [dump.sql]",
		Short: "Print the column metadata extracted from a dump as JSON",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			source, err := src.source(ctx, a, args)
			if err != nil {
				return err
			}

			in, err := source.Open(ctx)
			if err != nil {
				return err
			}
			defer in.Close()

			ext, err := schema.Extract(in, io.Discard, io.Discard)
			if err != nil {
				return err
			}
			if err := ext.Metadata.Validate(); err != nil {
				a.log.With().Err(err).Logger().Warn("metadata failed validation")
			}
			a.log.InfoWith("dump inspected", map[string]interface{}{
				"tables":        ext.Stats.Tables,
				"columns":       ext.Stats.Columns,
				"extra_blocks":  ext.Stats.ExtraBlocks,
				"dropped_lines": ext.Stats.DroppedLines,
				"unterminated":  ext.Stats.Unterminated,
			})
			return ext.Metadata.WriteJSON(cmd.OutOrStdout())
		},
	}

	src.register(cmd)
	return cmd
}
