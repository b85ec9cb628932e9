package scorer

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/radarworks/mcp-radar/internal/model"
	"github.com/radarworks/mcp-radar/internal/store"
)

// Store is the persistence surface the scorer needs.
type Store interface {
	ListActiveEntities(ctx context.Context) ([]model.Entity, error)
	ListEvidenceByEntity(ctx context.Context, entityID string) ([]model.EvidenceItem, error)
	ListClaimsByEntity(ctx context.Context, entityID string) ([]model.ExtractedClaim, error)
	InsertSnapshot(ctx context.Context, snap *model.ScoreSnapshot) error
	UpsertStagingPointer(ctx context.Context, entityID, scoreID string) error
}

// Scorer assesses every active entity and stages the results for
// publication.
type Scorer struct {
	store   Store
	weights Weights
	log     *zap.Logger
}

// New creates a Scorer with the given domain weights.
func New(st Store, w Weights) *Scorer {
	return &Scorer{
		store:   st,
		weights: w,
		log:     zap.L().With(zap.String("phase", "scorer")),
	}
}

type entityOutcome struct {
	Slug  string  `json:"slug"`
	Score float64 `json:"score"`
	Tier  string  `json:"tier"`
	Error string  `json:"error,omitempty"`
}

// Run scores every active entity. Per-entity failures are reported in the
// result and do not stop the run.
func (s *Scorer) Run(ctx context.Context) (*store.RunResult, error) {
	entities, err := s.store.ListActiveEntities(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "scorer: list active entities")
	}
	if len(entities) == 0 {
		s.log.Info("no active entities to score")
		return &store.RunResult{}, nil
	}

	result := &store.RunResult{}
	outcomes := make([]entityOutcome, 0, len(entities))
	now := time.Now().UTC()

	for i := range entities {
		e := &entities[i]
		out := entityOutcome{Slug: e.Slug}

		snap, err := s.scoreEntity(ctx, e, now)
		if err != nil {
			s.log.Warn("entity scoring failed",
				zap.String("entity", e.Slug),
				zap.Error(err),
			)
			out.Error = err.Error()
			result.Failed++
			outcomes = append(outcomes, out)
			continue
		}

		out.Score = snap.TrustScore
		out.Tier = string(snap.Tier)
		outcomes = append(outcomes, out)
		result.Processed++

		s.log.Debug("entity scored",
			zap.String("entity", e.Slug),
			zap.Float64("trust_score", snap.TrustScore),
			zap.String("tier", string(snap.Tier)),
			zap.Strings("fail_fast", snap.FailFastFlags),
		)
	}

	detail, err := json.Marshal(outcomes)
	if err != nil {
		return nil, eris.Wrap(err, "scorer: marshal run detail")
	}
	result.Detail = detail

	s.log.Info("scoring run complete",
		zap.Int("entities", len(entities)),
		zap.Int("scored", result.Processed),
		zap.Int("failed", result.Failed),
	)
	return result, nil
}

// scoreEntity assesses one entity and writes the snapshot plus its staging
// pointer.
func (s *Scorer) scoreEntity(ctx context.Context, e *model.Entity, now time.Time) (*model.ScoreSnapshot, error) {
	evidence, err := s.store.ListEvidenceByEntity(ctx, e.ID)
	if err != nil {
		return nil, eris.Wrap(err, "list evidence")
	}
	claims, err := s.store.ListClaimsByEntity(ctx, e.ID)
	if err != nil {
		return nil, eris.Wrap(err, "list claims")
	}

	assessment, err := Assess(evidence, claims, s.weights, now)
	if err != nil {
		return nil, err
	}

	snap := &model.ScoreSnapshot{
		ID:                 uuid.New().String(),
		EntityID:           e.ID,
		MethodologyVersion: MethodologyVersion,
		AssessedAt:         now,
		Domains:            assessment.Domains,
		TrustScore:         assessment.TrustScore,
		Tier:               assessment.Tier,
		EnterpriseFit:      assessment.EnterpriseFit,
		EvidenceConfidence: assessment.EvidenceConfidence,
		EvidenceCount:      len(evidence),
		FailFastFlags:      assessment.FailFastFlags,
		RiskFlags:          assessment.RiskFlags,
		Explain:            assessment.Explain,
	}

	if err := s.store.InsertSnapshot(ctx, snap); err != nil {
		return nil, eris.Wrap(err, "insert snapshot")
	}
	if err := s.store.UpsertStagingPointer(ctx, e.ID, snap.ID); err != nil {
		return nil, eris.Wrap(err, "stage pointer")
	}
	return snap, nil
}
