package main

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/radarworks/mcp-radar/internal/pipeline"
)

var mineCmd = &cobra.Command{
	Use:   "mine",
	Short: "Collect security evidence and extract claims for active entities",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, pool, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer pool.Close()

		stage, closeCache, err := buildMiner(st)
		if err != nil {
			return err
		}
		defer func() {
			if err := closeCache(); err != nil {
				zap.L().Warn("close fetch cache", zap.Error(err))
			}
		}()

		_, err = pipeline.Track(ctx, st, "mine", stage)
		return err
	},
}

func init() {
	rootCmd.AddCommand(mineCmd)
}
