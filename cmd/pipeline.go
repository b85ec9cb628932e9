package main

import (
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/radarworks/mcp-radar/internal/pipeline"
)

var pipelineCmd = &cobra.Command{
	Use:   "pipeline",
	Short: "Run the full pipeline: scout, curate, mine, score, publish, drift, brief",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, pool, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer pool.Close()

		scoutStage, err := buildScout(st)
		if err != nil {
			return err
		}
		mineStage, closeCache, err := buildMiner(st)
		if err != nil {
			return err
		}
		defer func() {
			if err := closeCache(); err != nil {
				zap.L().Warn("close fetch cache", zap.Error(err))
			}
		}()

		runner := pipeline.New(st,
			pipeline.Stage{Name: "scout", Run: scoutStage},
			pipeline.Stage{Name: "curate", Run: buildCurator(st)},
			pipeline.Stage{Name: "mine", Run: mineStage},
			pipeline.Stage{Name: "score", Run: buildScorer(st)},
			pipeline.Stage{Name: "publish", Run: buildPublisher(st), ContinueOnError: true},
			pipeline.Stage{Name: "drift", Run: buildDrift(st)},
			pipeline.Stage{Name: "brief", Run: buildBrief(st, time.Now().UTC())},
		)
		return runner.Run(ctx)
	},
}

func init() {
	rootCmd.AddCommand(pipelineCmd)
}
