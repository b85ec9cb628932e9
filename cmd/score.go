package main

import (
	"github.com/spf13/cobra"

	"github.com/radarworks/mcp-radar/internal/pipeline"
)

var scoreCmd = &cobra.Command{
	Use:   "score",
	Short: "Recompute trust scores and stage snapshot pointers",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, pool, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer pool.Close()

		_, err = pipeline.Track(ctx, st, "score", buildScorer(st))
		return err
	},
}

func init() {
	rootCmd.AddCommand(scoreCmd)
}
