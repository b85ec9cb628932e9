package main

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/radarworks/mcp-radar/internal/pipeline"
	"github.com/radarworks/mcp-radar/internal/publisher"
)

var publishCheckOnly bool

var publishCmd = &cobra.Command{
	Use:   "publish",
	Short: "Validate the staged index and flip it to stable",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, pool, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer pool.Close()

		if publishCheckOnly {
			violations, err := publisher.New(st, publisher.Options{}).Validate(ctx)
			if err != nil {
				return err
			}
			for _, v := range violations {
				zap.L().Warn("publish invariant violated", zap.String("violation", v.String()))
			}
			zap.L().Info("validation complete", zap.Int("violations", len(violations)))
			return nil
		}

		_, err = pipeline.Track(ctx, st, "publish", buildPublisher(st))
		return err
	},
}

func init() {
	publishCmd.Flags().BoolVar(&publishCheckOnly, "check", false, "validate only, never flip")
	rootCmd.AddCommand(publishCmd)
}
