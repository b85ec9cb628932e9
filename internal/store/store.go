// Package store persists every artifact the trust-radar pipeline produces.
// All coordination between stages goes through these tables: each write is an
// insert or upsert keyed by a deterministic id, so concurrent or repeated
// stage runs are safe without explicit locking.
package store

import (
	"context"
	"encoding/json"
	"time"

	"github.com/radarworks/mcp-radar/internal/model"
)

// RankCacheEntry is one row of the read-optimized ranking materialization the
// Publisher refreshes on every flip.
type RankCacheEntry struct {
	CacheKey  string          `json:"cache_key"`
	Payload   json.RawMessage `json:"payload"`
	ExpiresAt time.Time       `json:"expires_at"`
}

// RunResult summarizes one stage run for the pipeline_runs bookkeeping row.
type RunResult struct {
	Processed int             `json:"processed"`
	Skipped   int             `json:"skipped"`
	Failed    int             `json:"failed"`
	Detail    json.RawMessage `json:"detail,omitempty"`
}

// Store defines the persistence interface for the trust-radar pipeline.
type Store interface {
	// Raw observations (Scout writes, Curator consumes)
	InsertObservations(ctx context.Context, obs []model.RawObservation) (int64, error)
	ListUnprocessedObservations(ctx context.Context, limit int) ([]model.RawObservation, error)
	MarkObservationsProcessed(ctx context.Context, contentHashes []string) error
	GetObservation(ctx context.Context, contentHash string) (*model.RawObservation, error)
	GetSourceETag(ctx context.Context, sourceURL string) (string, error)
	SetSourceETag(ctx context.Context, sourceURL, etag string) error

	// Entities and providers (Curator)
	EntityExists(ctx context.Context, id string) (bool, error)
	UpsertEntity(ctx context.Context, e *model.Entity) error
	UpsertProvider(ctx context.Context, p *model.Provider) error
	ListActiveEntities(ctx context.Context) ([]model.Entity, error)
	GetEntityNames(ctx context.Context, ids []string) (map[string]string, error)
	UpdateEntityMetadata(ctx context.Context, entityID string, md model.EntityMetadata) error

	// Evidence and claims (Evidence Miner)
	EvidenceExists(ctx context.Context, entityID, sourceURL string) (bool, error)
	InsertEvidence(ctx context.Context, item model.EvidenceItem) (bool, error)
	UpsertClaims(ctx context.Context, claims []model.ExtractedClaim) error
	ListEvidenceByEntity(ctx context.Context, entityID string) ([]model.EvidenceItem, error)
	ListClaimsByEntity(ctx context.Context, entityID string) ([]model.ExtractedClaim, error)

	// Scores and pointers (Scorer, Publisher)
	InsertSnapshot(ctx context.Context, snap *model.ScoreSnapshot) error
	LatestSnapshots(ctx context.Context, entityID string, limit int) ([]model.ScoreSnapshot, error)
	UpsertStagingPointer(ctx context.Context, entityID, scoreID string) error
	CountStagingPointers(ctx context.Context) (int, error)
	ActiveEntitiesMissingFromStaging(ctx context.Context) ([]string, error)
	StagingPointersMissingSnapshot(ctx context.Context) ([]string, error)
	ComputeRankings(ctx context.Context, topN int, ttl time.Duration) ([]RankCacheEntry, error)
	PromoteStaging(ctx context.Context, cache []RankCacheEntry) error

	// Drift (Drift Sentinel, Daily Brief)
	ListEntityIDsWithSnapshots(ctx context.Context) ([]string, error)
	InsertDriftEvents(ctx context.Context, events []model.DriftEvent) (int64, error)
	ListDriftEventsByDate(ctx context.Context, date time.Time) ([]model.DriftEvent, error)
	ListNewEntrants(ctx context.Context, date time.Time) ([]model.NewEntrant, error)
	UpsertDailyBrief(ctx context.Context, b *model.DailyBrief) error

	// Run bookkeeping
	CreatePipelineRun(ctx context.Context, stage string) (string, error)
	CompletePipelineRun(ctx context.Context, runID string, result *RunResult) error
	FailPipelineRun(ctx context.Context, runID string, errMsg string) error

	// Operational
	TableCounts(ctx context.Context) (map[string]int64, error)
}
