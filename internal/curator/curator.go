// Package curator promotes raw observations into canonical entities. It owns
// identity derivation and dedup; everything downstream keys off the entity
// ids minted here.
package curator

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/radarworks/mcp-radar/internal/model"
	"github.com/radarworks/mcp-radar/internal/store"
)

// Store is the persistence surface the Curator needs.
type Store interface {
	ListUnprocessedObservations(ctx context.Context, limit int) ([]model.RawObservation, error)
	MarkObservationsProcessed(ctx context.Context, contentHashes []string) error
	EntityExists(ctx context.Context, id string) (bool, error)
	UpsertEntity(ctx context.Context, e *model.Entity) error
	UpsertProvider(ctx context.Context, p *model.Provider) error
}

// Curator turns one batch of unprocessed observations into entities.
type Curator struct {
	store      Store
	batchLimit int
	log        *zap.Logger
}

// New creates a Curator. batchLimit caps observations per run; <= 0 means
// the store default.
func New(st Store, batchLimit int) *Curator {
	return &Curator{
		store:      st,
		batchLimit: batchLimit,
		log:        zap.L().With(zap.String("phase", "curator")),
	}
}

// Run processes one batch. Every observation in the batch is marked
// processed regardless of outcome, so a malformed payload can never wedge
// the queue. Only store errors abort.
func (c *Curator) Run(ctx context.Context) (*store.RunResult, error) {
	obs, err := c.store.ListUnprocessedObservations(ctx, c.batchLimit)
	if err != nil {
		return nil, eris.Wrap(err, "curator: list unprocessed observations")
	}
	if len(obs) == 0 {
		c.log.Info("no unprocessed observations")
		return &store.RunResult{}, nil
	}

	result := &store.RunResult{}
	seenIDs := make(map[string]string, len(obs)) // entity id -> source that claimed it
	hashes := make([]string, 0, len(obs))

	for _, o := range obs {
		hashes = append(hashes, o.ContentHash)

		var cand model.ObservedCandidate
		if err := json.Unmarshal(o.Payload, &cand); err != nil {
			c.log.Warn("unparseable observation payload, skipping",
				zap.String("source", o.SourceName),
				zap.String("content_hash", o.ContentHash),
				zap.Error(err),
			)
			result.Failed++
			continue
		}

		id := model.EntityID(cand, o.SourceName)
		key, basis := model.EntityIdentityKey(cand, o.SourceName)

		if prev, ok := seenIDs[id]; ok {
			c.log.Warn("ambiguous observation: identity already claimed in this batch",
				zap.String("name", cand.Name),
				zap.String("identity_key", key),
				zap.String("claimed_by", prev),
			)
			result.Skipped++
			continue
		}
		seenIDs[id] = o.SourceName

		exists, err := c.store.EntityExists(ctx, id)
		if err != nil {
			return nil, eris.Wrapf(err, "curator: check entity %s", id)
		}
		if exists {
			c.log.Warn("duplicate observation: entity already known",
				zap.String("name", cand.Name),
				zap.String("identity_basis", basis),
				zap.String("entity_id", id),
			)
			result.Skipped++
			continue
		}

		entity := c.buildEntity(id, cand, o)

		if cand.Publisher != "" {
			provider := &model.Provider{
				ID:        model.ProviderID(cand.Publisher, ""),
				Name:      cand.Publisher,
				Kind:      "publisher",
				CreatedAt: time.Now().UTC(),
			}
			if err := c.store.UpsertProvider(ctx, provider); err != nil {
				return nil, eris.Wrapf(err, "curator: upsert provider %s", provider.Name)
			}
			entity.ProviderID = provider.ID
		}

		if err := c.store.UpsertEntity(ctx, entity); err != nil {
			return nil, eris.Wrapf(err, "curator: upsert entity %s", entity.Slug)
		}

		c.log.Debug("entity promoted",
			zap.String("slug", entity.Slug),
			zap.String("identity_basis", basis),
			zap.String("deployment", string(entity.Deployment)),
		)
		result.Processed++
	}

	if err := c.store.MarkObservationsProcessed(ctx, hashes); err != nil {
		return nil, eris.Wrap(err, "curator: mark observations processed")
	}

	c.log.Info("curation batch complete",
		zap.Int("observations", len(obs)),
		zap.Int("promoted", result.Processed),
		zap.Int("skipped", result.Skipped),
		zap.Int("failed", result.Failed),
	)
	return result, nil
}

func (c *Curator) buildEntity(id string, cand model.ObservedCandidate, o model.RawObservation) *model.Entity {
	now := o.RetrievedAt
	if now.IsZero() {
		now = time.Now().UTC()
	}

	manifestHash := ""
	if len(o.Manifest) > 0 {
		manifestHash = o.ContentHash
	}

	return &model.Entity{
		ID:         id,
		Slug:       model.Slugify(cand.Name),
		Name:       cand.Name,
		Deployment: model.DeriveDeployment(cand.Endpoint != "", cand.PackageRef != ""),
		RepoURL:    cand.RepoURL,
		DocsURL:    cand.DocsURL,
		Endpoint:   cand.Endpoint,
		Status:     model.StatusActive,
		Metadata: model.EntityMetadata{
			Publisher:    cand.Publisher,
			Description:  cand.Description,
			Transport:    cand.Transport,
			Provenance:   ClassifyProvenance(o.SourceURL),
			SourceName:   o.SourceName,
			ManifestHash: manifestHash,
		},
		FirstSeenAt: now,
		LastSeenAt:  now,
	}
}

// ClassifyProvenance buckets a source URL into a provenance class.
// Registry-shaped hosts count as official; anything self-describing as a
// marketplace counts as such; the long tail is community lists.
func ClassifyProvenance(sourceURL string) model.ProvenanceClass {
	u := strings.ToLower(sourceURL)
	switch {
	case strings.Contains(u, "registry.modelcontextprotocol.io"),
		strings.Contains(u, "://registry."):
		return model.ProvenanceOfficialRegistry
	case strings.Contains(u, "marketplace"):
		return model.ProvenanceMarketplace
	default:
		return model.ProvenanceCommunityList
	}
}
