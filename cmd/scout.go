package main

import (
	"github.com/spf13/cobra"

	"github.com/radarworks/mcp-radar/internal/pipeline"
)

var scoutCmd = &cobra.Command{
	Use:   "scout",
	Short: "Poll configured sources and record raw observations",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, pool, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer pool.Close()

		stage, err := buildScout(st)
		if err != nil {
			return err
		}
		_, err = pipeline.Track(ctx, st, "scout", stage)
		return err
	},
}

func init() {
	rootCmd.AddCommand(scoutCmd)
}
