package store

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"

	"github.com/radarworks/mcp-radar/internal/db"
	"github.com/radarworks/mcp-radar/internal/model"
)

// EvidenceExists reports whether an evidence item for (entity, source URL)
// already exists — the miner's skip condition for re-fetching.
func (s *PostgresStore) EvidenceExists(ctx context.Context, entityID, sourceURL string) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM radar.evidence_items WHERE entity_id = $1 AND source_url = $2)`,
		entityID, sourceURL,
	).Scan(&exists)
	if err != nil {
		return false, eris.Wrap(err, "store: check evidence exists")
	}
	return exists, nil
}

// InsertEvidence inserts one evidence item, keyed by its content-derived id.
// Returns false when the item already existed.
func (s *PostgresStore) InsertEvidence(ctx context.Context, item model.EvidenceItem) (bool, error) {
	tag, err := s.pool.Exec(ctx, `
		INSERT INTO radar.evidence_items
			(id, entity_id, kind, source_url, content_hash, confidence, parser_version, captured_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO NOTHING`,
		item.ID, item.EntityID, string(item.Kind), item.SourceURL,
		item.ContentHash, item.Confidence, item.ParserVersion, item.CapturedAt,
	)
	if err != nil {
		return false, eris.Wrapf(err, "store: insert evidence %s", item.ID)
	}
	return tag.RowsAffected() > 0, nil
}

// UpsertClaims writes extracted claims; re-extraction of the same evidence id
// overwrites value and confidence in place.
func (s *PostgresStore) UpsertClaims(ctx context.Context, claims []model.ExtractedClaim) error {
	if len(claims) == 0 {
		return nil
	}

	rows := make([][]any, len(claims))
	for i, c := range claims {
		rows[i] = []any{
			c.ID, c.EvidenceID, c.EntityID, string(c.Type),
			c.Value, c.Confidence, c.SourceURL, c.ExtractedAt,
		}
	}

	cfg := db.UpsertConfig{
		Table: "radar.extracted_claims",
		Columns: []string{
			"id", "evidence_id", "entity_id", "claim_type",
			"value", "confidence", "source_url", "extracted_at",
		},
		ConflictKeys: []string{"id"},
		UpdateCols:   []string{"value", "confidence", "extracted_at"},
	}

	if _, err := db.BulkUpsert(ctx, s.pool, cfg, rows); err != nil {
		return eris.Wrap(err, "store: upsert claims")
	}
	return nil
}

// ListEvidenceByEntity returns all evidence items for one entity.
func (s *PostgresStore) ListEvidenceByEntity(ctx context.Context, entityID string) ([]model.EvidenceItem, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, entity_id, kind, source_url, content_hash, confidence, parser_version, captured_at
		FROM radar.evidence_items
		WHERE entity_id = $1
		ORDER BY captured_at`, entityID)
	if err != nil {
		return nil, eris.Wrap(err, "store: list evidence")
	}
	defer rows.Close()

	var out []model.EvidenceItem
	for rows.Next() {
		var e model.EvidenceItem
		if err := rows.Scan(&e.ID, &e.EntityID, &e.Kind, &e.SourceURL,
			&e.ContentHash, &e.Confidence, &e.ParserVersion, &e.CapturedAt); err != nil {
			return nil, eris.Wrap(err, "store: scan evidence item")
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// ListClaimsByEntity returns all extracted claims for one entity.
func (s *PostgresStore) ListClaimsByEntity(ctx context.Context, entityID string) ([]model.ExtractedClaim, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, evidence_id, entity_id, claim_type, value, confidence, source_url, extracted_at
		FROM radar.extracted_claims
		WHERE entity_id = $1
		ORDER BY extracted_at`, entityID)
	if err != nil {
		return nil, eris.Wrap(err, "store: list claims")
	}
	defer rows.Close()

	return scanClaims(rows)
}

func scanClaims(rows pgx.Rows) ([]model.ExtractedClaim, error) {
	var out []model.ExtractedClaim
	for rows.Next() {
		var c model.ExtractedClaim
		if err := rows.Scan(&c.ID, &c.EvidenceID, &c.EntityID, &c.Type,
			&c.Value, &c.Confidence, &c.SourceURL, &c.ExtractedAt); err != nil {
			return nil, eris.Wrap(err, "store: scan claim")
		}
		out = append(out, c)
	}
	return out, rows.Err()
}
