// Package scout discovers MCP server listings from configured source feeds
// and lands them as raw observations. It never interprets listings beyond
// field mapping; identity and merging belong to the Curator.
package scout

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/radarworks/mcp-radar/internal/model"
	"github.com/radarworks/mcp-radar/internal/store"
)

// Fetcher is the conditional-GET surface the Scout needs.
type Fetcher interface {
	FetchIfChanged(ctx context.Context, url string, etag string) (body []byte, newETag string, changed bool, err error)
}

// Store is the persistence surface the Scout needs.
type Store interface {
	InsertObservations(ctx context.Context, obs []model.RawObservation) (int64, error)
	GetSourceETag(ctx context.Context, sourceURL string) (string, error)
	SetSourceETag(ctx context.Context, sourceURL, etag string) error
}

// Scout fetches all configured sources and records unseen listings.
type Scout struct {
	store   Store
	fetcher Fetcher
	sources []Source
	log     *zap.Logger
}

// New creates a Scout over the given sources.
func New(st Store, f Fetcher, sources []Source) *Scout {
	return &Scout{
		store:   st,
		fetcher: f,
		sources: sources,
		log:     zap.L().With(zap.String("phase", "scout")),
	}
}

// sourceOutcome is the per-source slice of the run detail.
type sourceOutcome struct {
	Source   string `json:"source"`
	Inserted int64  `json:"inserted"`
	Seen     int    `json:"seen"`
	Skipped  bool   `json:"skipped,omitempty"` // 304 Not Modified
	Error    string `json:"error,omitempty"`
}

// Run fetches every source once. A failing source is logged and skipped;
// only store errors abort the run.
func (s *Scout) Run(ctx context.Context) (*store.RunResult, error) {
	result := &store.RunResult{}
	outcomes := make([]sourceOutcome, 0, len(s.sources))

	for _, src := range s.sources {
		out, err := s.runSource(ctx, src)
		if err != nil {
			return nil, err
		}
		outcomes = append(outcomes, *out)

		switch {
		case out.Error != "":
			result.Failed++
		case out.Skipped:
			result.Skipped++
		default:
			result.Processed++
		}
	}

	detail, err := json.Marshal(outcomes)
	if err != nil {
		return nil, eris.Wrap(err, "scout: marshal run detail")
	}
	result.Detail = detail

	s.log.Info("scout run complete",
		zap.Int("sources", len(s.sources)),
		zap.Int("fetched", result.Processed),
		zap.Int("not_modified", result.Skipped),
		zap.Int("failed", result.Failed),
	)
	return result, nil
}

// runSource fetches and lands one source. The returned error is reserved for
// store failures; feed failures end up in the outcome.
func (s *Scout) runSource(ctx context.Context, src Source) (*sourceOutcome, error) {
	out := &sourceOutcome{Source: src.Name()}
	log := s.log.With(zap.String("source", src.Name()))

	etag, err := s.store.GetSourceETag(ctx, src.URL())
	if err != nil {
		return nil, eris.Wrapf(err, "scout: load etag for %s", src.Name())
	}

	body, newETag, changed, err := s.fetcher.FetchIfChanged(ctx, src.URL(), etag)
	if err != nil {
		log.Warn("source fetch failed, skipping", zap.Error(err))
		out.Error = err.Error()
		return out, nil
	}
	if !changed {
		log.Debug("source not modified, skipping")
		out.Skipped = true
		return out, nil
	}

	items, err := src.Parse(body)
	if err != nil {
		log.Warn("source parse failed, skipping", zap.Error(err))
		out.Error = err.Error()
		return out, nil
	}

	obs, dropped := s.toObservations(src, items)
	if dropped > 0 {
		log.Warn("dropped unusable listings", zap.Int("count", dropped))
	}

	inserted, err := s.store.InsertObservations(ctx, obs)
	if err != nil {
		return nil, eris.Wrapf(err, "scout: insert observations for %s", src.Name())
	}
	out.Inserted = inserted
	out.Seen = len(obs)

	if newETag != "" && newETag != etag {
		if err := s.store.SetSourceETag(ctx, src.URL(), newETag); err != nil {
			return nil, eris.Wrapf(err, "scout: save etag for %s", src.Name())
		}
	}

	log.Info("source fetched",
		zap.Int("listings", len(items)),
		zap.Int64("new", inserted),
	)
	return out, nil
}

// toObservations hashes each parsed listing into a raw observation. Listings
// without a name cannot ever derive an identity and are dropped here.
func (s *Scout) toObservations(src Source, items []Item) ([]model.RawObservation, int) {
	now := time.Now().UTC()
	obs := make([]model.RawObservation, 0, len(items))
	dropped := 0

	for _, it := range items {
		if it.Candidate.Name == "" {
			dropped++
			continue
		}
		payload, err := json.Marshal(it.Candidate)
		if err != nil {
			dropped++
			continue
		}
		hash, err := model.ContentHash(payload)
		if err != nil {
			dropped++
			continue
		}
		obs = append(obs, model.RawObservation{
			ContentHash: hash,
			SourceName:  src.Name(),
			SourceURL:   src.URL(),
			Payload:     payload,
			Manifest:    it.Manifest,
			RetrievedAt: now,
		})
	}
	return obs, dropped
}
