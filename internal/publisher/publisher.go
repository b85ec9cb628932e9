// Package publisher promotes the staged pointer table to the stable one.
// The contract is fail-closed: any integrity violation leaves the stable
// index byte-for-byte untouched and readers keep the last good dataset.
package publisher

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/radarworks/mcp-radar/internal/store"
)

// Store is the persistence surface the publisher needs.
type Store interface {
	CountStagingPointers(ctx context.Context) (int, error)
	ActiveEntitiesMissingFromStaging(ctx context.Context) ([]string, error)
	StagingPointersMissingSnapshot(ctx context.Context) ([]string, error)
	ComputeRankings(ctx context.Context, topN int, ttl time.Duration) ([]store.RankCacheEntry, error)
	PromoteStaging(ctx context.Context, cache []store.RankCacheEntry) error
}

// Options tunes the rank-cache refresh performed on flip.
type Options struct {
	RankTopN int
	RankTTL  time.Duration
}

// Publisher validates and flips the staged index.
type Publisher struct {
	store Store
	opts  Options
	log   *zap.Logger
}

// New creates a Publisher.
func New(st Store, opts Options) *Publisher {
	if opts.RankTopN <= 0 {
		opts.RankTopN = 25
	}
	if opts.RankTTL <= 0 {
		opts.RankTTL = 24 * time.Hour
	}
	return &Publisher{
		store: st,
		opts:  opts,
		log:   zap.L().With(zap.String("phase", "publisher")),
	}
}

// Violation is one failed integrity check, named so the run report can say
// exactly which invariant blocked the publish.
type Violation struct {
	Invariant string   `json:"invariant"`
	EntityIDs []string `json:"entity_ids,omitempty"`
}

func (v Violation) String() string {
	if len(v.EntityIDs) == 0 {
		return v.Invariant
	}
	return fmt.Sprintf("%s (%d entities: %s)", v.Invariant, len(v.EntityIDs), strings.Join(v.EntityIDs, ", "))
}

// Validate checks the staged pointer table against the publish invariants:
// non-empty, every active entity covered, every pointer resolving to an
// existing snapshot. It performs no writes.
func (p *Publisher) Validate(ctx context.Context) ([]Violation, error) {
	var violations []Violation

	count, err := p.store.CountStagingPointers(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "publisher: count staging pointers")
	}
	if count == 0 {
		violations = append(violations, Violation{Invariant: "staging is empty"})
	}

	missing, err := p.store.ActiveEntitiesMissingFromStaging(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "publisher: check staging coverage")
	}
	if len(missing) > 0 {
		violations = append(violations, Violation{
			Invariant: "active entity missing from staging",
			EntityIDs: missing,
		})
	}

	dangling, err := p.store.StagingPointersMissingSnapshot(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "publisher: check pointer targets")
	}
	if len(dangling) > 0 {
		violations = append(violations, Violation{
			Invariant: "staging pointer references missing snapshot",
			EntityIDs: dangling,
		})
	}

	return violations, nil
}

// Run validates and, only on a clean report, flips staging to stable and
// refreshes the rank cache in one transaction.
func (p *Publisher) Run(ctx context.Context) (*store.RunResult, error) {
	violations, err := p.Validate(ctx)
	if err != nil {
		return nil, err
	}
	if len(violations) > 0 {
		for _, v := range violations {
			p.log.Error("publish invariant violated", zap.String("violation", v.String()))
		}
		parts := make([]string, len(violations))
		for i, v := range violations {
			parts[i] = v.String()
		}
		return nil, eris.Errorf("publisher: validation failed, stable index untouched: %s",
			strings.Join(parts, "; "))
	}

	count, err := p.store.CountStagingPointers(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "publisher: count staging pointers")
	}

	cache, err := p.store.ComputeRankings(ctx, p.opts.RankTopN, p.opts.RankTTL)
	if err != nil {
		return nil, eris.Wrap(err, "publisher: compute rankings")
	}

	if err := p.store.PromoteStaging(ctx, cache); err != nil {
		return nil, eris.Wrap(err, "publisher: flip staging to stable")
	}

	detail, err := json.Marshal(map[string]int{
		"pointers":           count,
		"rank_cache_entries": len(cache),
	})
	if err != nil {
		return nil, eris.Wrap(err, "publisher: marshal run detail")
	}

	p.log.Info("index published",
		zap.Int("pointers", count),
		zap.Int("rank_cache_entries", len(cache)),
	)
	return &store.RunResult{Processed: count, Detail: detail}, nil
}
