package main

import (
	"github.com/spf13/cobra"

	"github.com/radarworks/mcp-radar/internal/pipeline"
)

var curateCmd = &cobra.Command{
	Use:   "curate",
	Short: "Promote unprocessed observations into canonical entities",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, pool, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer pool.Close()

		_, err = pipeline.Track(ctx, st, "curate", buildCurator(st))
		return err
	},
}

func init() {
	rootCmd.AddCommand(curateCmd)
}
