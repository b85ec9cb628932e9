package main

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/radarworks/mcp-radar/internal/brief"
	"github.com/radarworks/mcp-radar/internal/curator"
	"github.com/radarworks/mcp-radar/internal/db"
	"github.com/radarworks/mcp-radar/internal/drift"
	"github.com/radarworks/mcp-radar/internal/fetcher"
	"github.com/radarworks/mcp-radar/internal/miner"
	"github.com/radarworks/mcp-radar/internal/pipeline"
	"github.com/radarworks/mcp-radar/internal/publisher"
	"github.com/radarworks/mcp-radar/internal/scorer"
	"github.com/radarworks/mcp-radar/internal/scout"
	"github.com/radarworks/mcp-radar/internal/store"
)

// initStore validates config, connects, and returns the store plus the pool
// for migration and shutdown.
func initStore(ctx context.Context) (*store.PostgresStore, *pgxpool.Pool, error) {
	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}
	pool, err := db.Connect(ctx, cfg.Store.DatabaseURL)
	if err != nil {
		return nil, nil, err
	}
	return store.NewPostgres(pool), pool, nil
}

func newFetcher() *fetcher.HTTPFetcher {
	return fetcher.NewHTTPFetcher(fetcher.HTTPOptions{
		Timeout:      time.Duration(cfg.Miner.TimeoutSecs) * time.Second,
		RateLimiters: fetcher.DefaultRateLimiters(),
	})
}

func buildScout(st store.Store) (pipeline.StageFunc, error) {
	specs, err := scout.LoadSources(cfg.Scout.SourcesPath)
	if err != nil {
		return nil, err
	}
	sc := scout.New(st, newFetcher(), scout.BuildSources(specs))
	return sc.Run, nil
}

func buildCurator(st store.Store) pipeline.StageFunc {
	return curator.New(st, cfg.Scout.BatchLimit).Run
}

// buildMiner returns the stage plus a cleanup closing the fetch cache.
func buildMiner(st store.Store) (pipeline.StageFunc, func() error, error) {
	tax := miner.DefaultTaxonomy()
	if cfg.Miner.TaxonomyPath != "" {
		var err error
		tax, err = miner.LoadTaxonomy(cfg.Miner.TaxonomyPath)
		if err != nil {
			return nil, nil, err
		}
	}

	cache, err := miner.NewFetchCache(cfg.Miner.CachePath)
	if err != nil {
		return nil, nil, eris.Wrap(err, "open fetch cache")
	}

	m := miner.New(st, newFetcher(), cache, miner.NewHeuristicExtractor(tax), miner.Options{
		Concurrency: cfg.Miner.Concurrency,
		CacheTTL:    time.Duration(cfg.Miner.CacheTTLHours) * time.Hour,
		GitHubToken: cfg.Miner.GitHubToken,
	})
	return m.Run, cache.Close, nil
}

func buildScorer(st store.Store) pipeline.StageFunc {
	w := cfg.Scorer.Weights
	return scorer.New(st, scorer.Weights{
		Authentication: w.Authentication,
		Authorization:  w.Authorization,
		DataProtection: w.DataProtection,
		AuditLogging:   w.AuditLogging,
		Operational:    w.Operational,
		Compliance:     w.Compliance,
	}).Run
}

func buildPublisher(st store.Store) pipeline.StageFunc {
	return publisher.New(st, publisher.Options{
		RankTopN: cfg.Publisher.RankTopN,
		RankTTL:  time.Duration(cfg.Publisher.RankTTLHours) * time.Hour,
	}).Run
}

func buildDrift(st store.Store) pipeline.StageFunc {
	s := drift.New(st, cfg.Brief.TopMovers, cfg.Drift.BatchLimit)
	return func(ctx context.Context) (*store.RunResult, error) {
		_, result, err := s.Run(ctx)
		return result, err
	}
}

func buildBrief(st store.Store, date time.Time) pipeline.StageFunc {
	g := brief.New(st, cfg.Brief.TopMovers)
	return func(ctx context.Context) (*store.RunResult, error) {
		_, result, err := g.Run(ctx, date)
		return result, err
	}
}
