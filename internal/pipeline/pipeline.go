// Package pipeline sequences the radar stages and records one bookkeeping
// row per stage run.
package pipeline

import (
	"context"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/radarworks/mcp-radar/internal/store"
)

// Bookkeeper records stage runs. Satisfied by store.Store.
type Bookkeeper interface {
	CreatePipelineRun(ctx context.Context, stage string) (string, error)
	CompletePipelineRun(ctx context.Context, runID string, result *store.RunResult) error
	FailPipelineRun(ctx context.Context, runID string, errMsg string) error
}

// StageFunc executes one stage and reports its counters.
type StageFunc func(ctx context.Context) (*store.RunResult, error)

// Stage is one named step of the full pipeline.
type Stage struct {
	Name string
	Run  StageFunc

	// ContinueOnError lets later stages run even when this one fails. The
	// publish stage sets it: a fail-closed publish should not stop drift
	// detection or the daily brief, which read tables the publish never
	// touched.
	ContinueOnError bool
}

// Track runs fn inside a pipeline_runs bookkeeping row: created before the
// stage starts, completed with its counters or failed with its error.
func Track(ctx context.Context, bk Bookkeeper, stage string, fn StageFunc) (*store.RunResult, error) {
	log := zap.L().With(zap.String("phase", stage))

	runID, err := bk.CreatePipelineRun(ctx, stage)
	if err != nil {
		return nil, eris.Wrapf(err, "pipeline: create run for %s", stage)
	}

	started := time.Now()
	result, err := fn(ctx)
	if err != nil {
		if failErr := bk.FailPipelineRun(ctx, runID, err.Error()); failErr != nil {
			log.Error("failed to record stage failure", zap.Error(failErr))
		}
		return nil, err
	}
	if result == nil {
		result = &store.RunResult{}
	}

	if err := bk.CompletePipelineRun(ctx, runID, result); err != nil {
		return nil, eris.Wrapf(err, "pipeline: complete run for %s", stage)
	}

	log.Info("stage complete",
		zap.String("run_id", runID),
		zap.Duration("elapsed", time.Since(started)),
		zap.Int("processed", result.Processed),
		zap.Int("skipped", result.Skipped),
		zap.Int("failed", result.Failed),
	)
	return result, nil
}

// Runner executes a fixed stage sequence.
type Runner struct {
	bk     Bookkeeper
	stages []Stage
	log    *zap.Logger
}

// New creates a Runner over the given stages, executed in order.
func New(bk Bookkeeper, stages ...Stage) *Runner {
	return &Runner{
		bk:     bk,
		stages: stages,
		log:    zap.L().With(zap.String("phase", "pipeline")),
	}
}

// Run executes every stage in order. A failing stage stops the sequence
// unless it opted into ContinueOnError; all failures are collected into the
// returned error either way.
func (r *Runner) Run(ctx context.Context) error {
	started := time.Now()
	var failures []string

	for _, stage := range r.stages {
		if err := ctx.Err(); err != nil {
			return eris.Wrap(err, "pipeline: interrupted")
		}

		if _, err := Track(ctx, r.bk, stage.Name, stage.Run); err != nil {
			r.log.Error("stage failed", zap.String("stage", stage.Name), zap.Error(err))
			failures = append(failures, stage.Name+": "+err.Error())
			if !stage.ContinueOnError {
				break
			}
		}
	}

	if len(failures) > 0 {
		return eris.Errorf("pipeline: %d stage(s) failed: %s",
			len(failures), strings.Join(failures, "; "))
	}

	r.log.Info("pipeline complete",
		zap.Int("stages", len(r.stages)),
		zap.Duration("elapsed", time.Since(started)),
	)
	return nil
}
