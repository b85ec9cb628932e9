// Package miner collects evidence for canonical entities: structured claims
// from native manifests, heuristic claims from fetched docs and repo pages,
// and code-host popularity signals.
package miner

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/radarworks/mcp-radar/internal/model"
	"github.com/radarworks/mcp-radar/internal/store"
)

// Store is the persistence surface the miner needs.
type Store interface {
	ListActiveEntities(ctx context.Context) ([]model.Entity, error)
	GetObservation(ctx context.Context, contentHash string) (*model.RawObservation, error)
	EvidenceExists(ctx context.Context, entityID, sourceURL string) (bool, error)
	InsertEvidence(ctx context.Context, item model.EvidenceItem) (bool, error)
	UpsertClaims(ctx context.Context, claims []model.ExtractedClaim) error
	UpdateEntityMetadata(ctx context.Context, entityID string, md model.EntityMetadata) error
}

// Fetcher is the HTTP surface the miner needs.
type Fetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
	FetchWithHeaders(ctx context.Context, url string, headers map[string]string) ([]byte, error)
}

// Cache is the page-cache surface; NewFetchCache provides the SQLite
// implementation.
type Cache interface {
	Get(ctx context.Context, url string) ([]byte, bool, error)
	Set(ctx context.Context, url string, body []byte, ttl time.Duration) error
}

// Options tunes a mining run.
type Options struct {
	Concurrency int
	CacheTTL    time.Duration
	GitHubToken string
}

// Miner runs evidence collection across all active entities.
type Miner struct {
	store     Store
	fetcher   Fetcher
	cache     Cache // nil disables page caching
	extractor ClaimExtractor
	opts      Options
	log       *zap.Logger
}

// New creates a Miner.
func New(st Store, f Fetcher, cache Cache, extractor ClaimExtractor, opts Options) *Miner {
	if opts.Concurrency <= 0 {
		opts.Concurrency = 4
	}
	if opts.CacheTTL <= 0 {
		opts.CacheTTL = 24 * time.Hour
	}
	return &Miner{
		store:     st,
		fetcher:   f,
		cache:     cache,
		extractor: extractor,
		opts:      opts,
		log:       zap.L().With(zap.String("phase", "miner")),
	}
}

// entityOutcome is the per-entity slice of the run detail.
type entityOutcome struct {
	Slug     string   `json:"slug"`
	Evidence int      `json:"evidence"`
	Claims   int      `json:"claims"`
	Errors   []string `json:"errors,omitempty"`
}

// Run mines every active entity with bounded parallelism. Per-entity and
// per-URL failures are collected, not fatal; only listing entities aborts.
func (m *Miner) Run(ctx context.Context) (*store.RunResult, error) {
	entities, err := m.store.ListActiveEntities(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "miner: list active entities")
	}
	if len(entities) == 0 {
		m.log.Info("no active entities to mine")
		return &store.RunResult{}, nil
	}

	var mu sync.Mutex
	result := &store.RunResult{}
	outcomes := make([]entityOutcome, 0, len(entities))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(m.opts.Concurrency)

	for i := range entities {
		e := &entities[i]
		g.Go(func() error {
			out := m.mineEntity(gctx, e)

			mu.Lock()
			defer mu.Unlock()
			outcomes = append(outcomes, *out)
			switch {
			case len(out.Errors) > 0:
				result.Failed++
			case out.Evidence == 0 && out.Claims == 0:
				result.Skipped++
			default:
				result.Processed++
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, eris.Wrap(err, "miner: wait for workers")
	}

	detail, err := json.Marshal(outcomes)
	if err != nil {
		return nil, eris.Wrap(err, "miner: marshal run detail")
	}
	result.Detail = detail

	m.log.Info("mining run complete",
		zap.Int("entities", len(entities)),
		zap.Int("mined", result.Processed),
		zap.Int("unchanged", result.Skipped),
		zap.Int("with_errors", result.Failed),
	)
	return result, nil
}

// mineEntity works one entity end to end: manifest claims, docs/repo
// heuristics, popularity. Each step's failure is recorded and the rest
// continues.
func (m *Miner) mineEntity(ctx context.Context, e *model.Entity) *entityOutcome {
	out := &entityOutcome{Slug: e.Slug}
	log := m.log.With(zap.String("entity", e.Slug))

	if e.Metadata.ManifestHash != "" {
		if err := m.mineManifest(ctx, e, out); err != nil {
			log.Warn("manifest mining failed", zap.Error(err))
			out.Errors = append(out.Errors, err.Error())
		}
	}

	for url, kind := range artifactURLs(e) {
		if err := m.mineURL(ctx, e, url, kind, out); err != nil {
			log.Warn("artifact mining failed",
				zap.String("url", url),
				zap.Error(err),
			)
			out.Errors = append(out.Errors, err.Error())
		}
	}

	refreshed, err := m.refreshPopularity(ctx, e)
	if err != nil {
		log.Warn("popularity refresh failed", zap.Error(err))
		out.Errors = append(out.Errors, err.Error())
	} else if refreshed {
		log.Debug("popularity refreshed",
			zap.Int("stars", e.Metadata.Popularity.Stars),
		)
	}

	return out
}

// artifactURLs lists the fetchable artifacts of an entity, deduplicated.
func artifactURLs(e *model.Entity) map[string]model.EvidenceKind {
	urls := make(map[string]model.EvidenceKind, 2)
	if e.DocsURL != "" {
		urls[e.DocsURL] = model.EvidenceDocs
	}
	if e.RepoURL != "" && e.RepoURL != e.DocsURL {
		urls[e.RepoURL] = model.EvidenceRepo
	}
	return urls
}

// mineManifest extracts confidence-3 claims from the entity's stored native
// manifest.
func (m *Miner) mineManifest(ctx context.Context, e *model.Entity, out *entityOutcome) error {
	obs, err := m.store.GetObservation(ctx, e.Metadata.ManifestHash)
	if err != nil {
		return eris.Wrap(err, "load manifest observation")
	}
	if obs == nil || len(obs.Manifest) == 0 {
		return eris.Errorf("manifest observation %s not found", e.Metadata.ManifestHash)
	}

	contentHash, err := model.ContentHash(obs.Manifest)
	if err != nil {
		return eris.Wrap(err, "hash manifest")
	}

	findings, err := extractManifestClaims(obs.Manifest)
	if err != nil {
		return err
	}

	evidenceID := model.EvidenceID(e.ID, obs.SourceURL, contentHash)
	inserted, err := m.store.InsertEvidence(ctx, model.EvidenceItem{
		ID:            evidenceID,
		EntityID:      e.ID,
		Kind:          model.EvidenceConfig,
		SourceURL:     obs.SourceURL,
		ContentHash:   contentHash,
		Confidence:    3,
		ParserVersion: manifestParserVersion,
		CapturedAt:    time.Now().UTC(),
	})
	if err != nil {
		return eris.Wrap(err, "insert manifest evidence")
	}
	if inserted {
		out.Evidence++
	}

	// Claims overwrite on re-extraction even when the evidence row existed.
	if err := m.writeClaims(ctx, e.ID, evidenceID, obs.SourceURL, findings, 3, out); err != nil {
		return err
	}
	return nil
}

// mineURL fetches one docs/repo artifact (through the cache when present)
// and runs the heuristic extractor over it. Confidence is 2 when anything
// matched, 1 for a bare capture.
func (m *Miner) mineURL(ctx context.Context, e *model.Entity, url string, kind model.EvidenceKind, out *entityOutcome) error {
	exists, err := m.store.EvidenceExists(ctx, e.ID, url)
	if err != nil {
		return eris.Wrap(err, "check evidence")
	}
	if exists {
		return nil
	}

	body, err := m.fetchCached(ctx, url)
	if err != nil {
		return eris.Wrapf(err, "fetch %s", url)
	}

	findings := m.extractor.Extract(string(body))
	confidence := 1
	if len(findings) > 0 {
		confidence = 2
	}

	evidenceID := model.EvidenceID(e.ID, url, model.HashString(string(body)))
	inserted, err := m.store.InsertEvidence(ctx, model.EvidenceItem{
		ID:            evidenceID,
		EntityID:      e.ID,
		Kind:          kind,
		SourceURL:     url,
		ContentHash:   model.HashString(string(body)),
		Confidence:    confidence,
		ParserVersion: m.extractor.Version(),
		CapturedAt:    time.Now().UTC(),
	})
	if err != nil {
		return eris.Wrap(err, "insert evidence")
	}
	if inserted {
		out.Evidence++
	}

	return m.writeClaims(ctx, e.ID, evidenceID, url, findings, confidence, out)
}

func (m *Miner) fetchCached(ctx context.Context, url string) ([]byte, error) {
	if m.cache != nil {
		if body, ok, err := m.cache.Get(ctx, url); err != nil {
			m.log.Warn("cache read failed", zap.String("url", url), zap.Error(err))
		} else if ok {
			return body, nil
		}
	}

	body, err := m.fetcher.Fetch(ctx, url)
	if err != nil {
		return nil, err
	}

	if m.cache != nil {
		if err := m.cache.Set(ctx, url, body, m.opts.CacheTTL); err != nil {
			m.log.Warn("cache write failed", zap.String("url", url), zap.Error(err))
		}
	}
	return body, nil
}

func (m *Miner) writeClaims(ctx context.Context, entityID, evidenceID, sourceURL string, findings []Finding, confidence int, out *entityOutcome) error {
	if len(findings) == 0 {
		return nil
	}

	now := time.Now().UTC()
	claims := make([]model.ExtractedClaim, len(findings))
	for i, f := range findings {
		claims[i] = model.ExtractedClaim{
			ID:          model.ClaimID(evidenceID, f.Type),
			EvidenceID:  evidenceID,
			EntityID:    entityID,
			Type:        f.Type,
			Value:       model.ClaimValue(f.Value),
			Confidence:  confidence,
			SourceURL:   sourceURL,
			ExtractedAt: now,
		}
	}

	if err := m.store.UpsertClaims(ctx, claims); err != nil {
		return eris.Wrap(err, "upsert claims")
	}
	out.Claims += len(claims)
	return nil
}
