package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"

	"github.com/radarworks/mcp-radar/internal/db"
)

// PostgresStore implements Store using pgx. The pool is owned by the caller;
// lifecycle is scoped to one stage run.
type PostgresStore struct {
	pool db.Pool
}

var _ Store = (*PostgresStore)(nil)

// NewPostgres creates a PostgresStore on an existing pool.
func NewPostgres(pool db.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// nullable maps "" to SQL NULL so empty optional fields never overwrite
// existing values in merge upserts.
func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// CreatePipelineRun opens a bookkeeping row for one stage run and returns its id.
func (s *PostgresStore) CreatePipelineRun(ctx context.Context, stage string) (string, error) {
	id := uuid.New().String()
	_, err := s.pool.Exec(ctx,
		`INSERT INTO radar.pipeline_runs (id, stage, status) VALUES ($1, $2, 'running')`,
		id, stage,
	)
	if err != nil {
		return "", eris.Wrapf(err, "store: create pipeline run for %s", stage)
	}
	return id, nil
}

// CompletePipelineRun marks a run completed with its counts.
func (s *PostgresStore) CompletePipelineRun(ctx context.Context, runID string, result *RunResult) error {
	detail := result.Detail
	if detail == nil {
		detail = json.RawMessage(`{}`)
	}
	_, err := s.pool.Exec(ctx,
		`UPDATE radar.pipeline_runs SET
			status = 'completed',
			processed = $2,
			skipped = $3,
			failed = $4,
			detail = $5,
			completed_at = now()
		WHERE id = $1`,
		runID, result.Processed, result.Skipped, result.Failed, detail,
	)
	if err != nil {
		return eris.Wrapf(err, "store: complete pipeline run %s", runID)
	}
	return nil
}

// FailPipelineRun marks a run failed with an error message.
func (s *PostgresStore) FailPipelineRun(ctx context.Context, runID string, errMsg string) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE radar.pipeline_runs SET status = 'failed', error = $2, completed_at = now() WHERE id = $1`,
		runID, errMsg,
	)
	if err != nil {
		return eris.Wrapf(err, "store: fail pipeline run %s", runID)
	}
	return nil
}

// countedTables are the tables surfaced by the status command.
var countedTables = []string{
	"raw_observations", "providers", "entities", "evidence_items",
	"extracted_claims", "score_snapshots", "latest_pointers",
	"latest_pointers_staging", "drift_events", "daily_briefs",
}

// TableCounts returns row counts for the pipeline's tables.
func (s *PostgresStore) TableCounts(ctx context.Context) (map[string]int64, error) {
	counts := make(map[string]int64, len(countedTables))
	for _, table := range countedTables {
		var n int64
		// table names come from the fixed list above, never from input
		q := fmt.Sprintf(`SELECT count(*) FROM radar.%s`, table)
		if err := s.pool.QueryRow(ctx, q).Scan(&n); err != nil {
			return nil, eris.Wrapf(err, "store: count %s", table)
		}
		counts[table] = n
	}
	return counts, nil
}
