package main

import (
	"github.com/spf13/cobra"

	"github.com/radarworks/mcp-radar/internal/pipeline"
)

var driftCmd = &cobra.Command{
	Use:   "drift",
	Short: "Diff latest snapshot pairs and record drift events",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, pool, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer pool.Close()

		_, err = pipeline.Track(ctx, st, "drift", buildDrift(st))
		return err
	},
}

func init() {
	rootCmd.AddCommand(driftCmd)
}
