package store

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"

	"github.com/radarworks/mcp-radar/internal/db"
	"github.com/radarworks/mcp-radar/internal/model"
)

// InsertSnapshot appends one score snapshot. Snapshots are never updated or
// deleted.
func (s *PostgresStore) InsertSnapshot(ctx context.Context, snap *model.ScoreSnapshot) error {
	var explain any
	if len(snap.Explain) > 0 {
		explain = snap.Explain
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO radar.score_snapshots
			(id, entity_id, methodology_version, assessed_at,
			 d_authentication, d_authorization, d_data_protection,
			 d_audit_logging, d_operational, d_compliance,
			 trust_score, tier, enterprise_fit,
			 evidence_confidence, evidence_count, fail_fast_flags, risk_flags, explain)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)`,
		snap.ID, snap.EntityID, snap.MethodologyVersion, snap.AssessedAt,
		snap.Domains[model.DomainAuthentication], snap.Domains[model.DomainAuthorization],
		snap.Domains[model.DomainDataProtection], snap.Domains[model.DomainAuditLogging],
		snap.Domains[model.DomainOperational], snap.Domains[model.DomainCompliance],
		snap.TrustScore, string(snap.Tier), string(snap.EnterpriseFit),
		snap.EvidenceConfidence, snap.EvidenceCount, snap.FailFastFlags, snap.RiskFlags, explain,
	)
	if err != nil {
		return eris.Wrapf(err, "store: insert snapshot for %s", snap.EntityID)
	}
	return nil
}

const snapshotColumns = `id, entity_id, methodology_version, assessed_at,
	d_authentication, d_authorization, d_data_protection,
	d_audit_logging, d_operational, d_compliance,
	trust_score, tier, enterprise_fit,
	evidence_confidence, evidence_count, fail_fast_flags, risk_flags, explain`

// LatestSnapshots returns up to limit snapshots for one entity, newest first.
// The Drift Sentinel calls it with limit 2 to get the current/previous pair.
func (s *PostgresStore) LatestSnapshots(ctx context.Context, entityID string, limit int) ([]model.ScoreSnapshot, error) {
	if limit <= 0 {
		limit = 2
	}

	rows, err := s.pool.Query(ctx,
		`SELECT `+snapshotColumns+`
		FROM radar.score_snapshots
		WHERE entity_id = $1
		ORDER BY assessed_at DESC
		LIMIT $2`, entityID, limit)
	if err != nil {
		return nil, eris.Wrap(err, "store: latest snapshots")
	}
	defer rows.Close()

	return scanSnapshots(rows)
}

// UpsertStagingPointer points an entity at a snapshot in the staging table.
func (s *PostgresStore) UpsertStagingPointer(ctx context.Context, entityID, scoreID string) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO radar.latest_pointers_staging (entity_id, score_id, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (entity_id) DO UPDATE SET score_id = EXCLUDED.score_id, updated_at = now()`,
		entityID, scoreID,
	)
	if err != nil {
		return eris.Wrapf(err, "store: upsert staging pointer for %s", entityID)
	}
	return nil
}

// CountStagingPointers returns the number of rows staged for publication.
func (s *PostgresStore) CountStagingPointers(ctx context.Context) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx,
		`SELECT count(*) FROM radar.latest_pointers_staging`,
	).Scan(&n)
	if err != nil {
		return 0, eris.Wrap(err, "store: count staging pointers")
	}
	return n, nil
}

// ActiveEntitiesMissingFromStaging returns ids of active entities with no
// staging pointer — a publish-blocking coverage gap.
func (s *PostgresStore) ActiveEntitiesMissingFromStaging(ctx context.Context) ([]string, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT e.id
		FROM radar.entities e
		LEFT JOIN radar.latest_pointers_staging p ON p.entity_id = e.id
		WHERE e.status = 'active' AND p.entity_id IS NULL
		ORDER BY e.id`)
	if err != nil {
		return nil, eris.Wrap(err, "store: entities missing from staging")
	}
	defer rows.Close()

	return scanIDs(rows)
}

// StagingPointersMissingSnapshot returns entity ids whose staged pointer
// references a snapshot that does not exist.
func (s *PostgresStore) StagingPointersMissingSnapshot(ctx context.Context) ([]string, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT p.entity_id
		FROM radar.latest_pointers_staging p
		LEFT JOIN radar.score_snapshots s ON s.id = p.score_id
		WHERE s.id IS NULL
		ORDER BY p.entity_id`)
	if err != nil {
		return nil, eris.Wrap(err, "store: staging pointers missing snapshot")
	}
	defer rows.Close()

	return scanIDs(rows)
}

// rankedRow is one staged entity joined to its snapshot, used to build the
// rank cache.
type rankedRow struct {
	EntityID   string     `json:"entity_id"`
	Slug       string     `json:"slug"`
	Name       string     `json:"name"`
	Deployment string     `json:"deployment"`
	Tier       model.Tier `json:"tier"`
	TrustScore float64    `json:"trust_score"`
}

// ComputeRankings builds the derived rank-cache entries from the staging
// table: an overall top-N plus top-N per tier and per deployment class, each
// entry tagged with an expiry.
func (s *PostgresStore) ComputeRankings(ctx context.Context, topN int, ttl time.Duration) ([]RankCacheEntry, error) {
	if topN <= 0 {
		topN = 25
	}

	rows, err := s.pool.Query(ctx, `
		SELECT e.id, e.slug, e.name, e.deployment, sn.tier, sn.trust_score
		FROM radar.latest_pointers_staging p
		JOIN radar.score_snapshots sn ON sn.id = p.score_id
		JOIN radar.entities e ON e.id = p.entity_id
		ORDER BY sn.trust_score DESC, e.id`)
	if err != nil {
		return nil, eris.Wrap(err, "store: compute rankings")
	}
	defer rows.Close()

	var ranked []rankedRow
	for rows.Next() {
		var r rankedRow
		if err := rows.Scan(&r.EntityID, &r.Slug, &r.Name, &r.Deployment, &r.Tier, &r.TrustScore); err != nil {
			return nil, eris.Wrap(err, "store: scan ranked row")
		}
		ranked = append(ranked, r)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "store: iterate ranked rows")
	}

	expires := time.Now().UTC().Add(ttl)
	buckets := map[string][]rankedRow{"overall": nil}
	for _, r := range ranked {
		buckets["overall"] = append(buckets["overall"], r)
		tierKey := "tier:" + string(r.Tier)
		buckets[tierKey] = append(buckets[tierKey], r)
		depKey := "deployment:" + r.Deployment
		buckets[depKey] = append(buckets[depKey], r)
	}

	entries := make([]RankCacheEntry, 0, len(buckets))
	for key, rows := range buckets {
		if len(rows) > topN {
			rows = rows[:topN]
		}
		payload, err := json.Marshal(rows)
		if err != nil {
			return nil, eris.Wrap(err, "store: marshal rank payload")
		}
		entries = append(entries, RankCacheEntry{
			CacheKey:  key,
			Payload:   payload,
			ExpiresAt: expires,
		})
	}
	return entries, nil
}

// PromoteStaging atomically replaces the stable pointer table with the staged
// one and refreshes the rank cache. Everything happens in one transaction:
// readers either see the previous index or the new one, never a mix. Any
// error rolls back in full.
func (s *PostgresStore) PromoteStaging(ctx context.Context, cache []RankCacheEntry) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "store: promote: begin tx")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if _, err := tx.Exec(ctx, `TRUNCATE radar.latest_pointers`); err != nil {
		return eris.Wrap(err, "store: promote: truncate stable pointers")
	}

	if _, err := tx.Exec(ctx, `
		INSERT INTO radar.latest_pointers (entity_id, score_id, updated_at)
		SELECT entity_id, score_id, updated_at FROM radar.latest_pointers_staging`); err != nil {
		return eris.Wrap(err, "store: promote: copy staging to stable")
	}

	if _, err := tx.Exec(ctx, `DELETE FROM radar.rank_cache`); err != nil {
		return eris.Wrap(err, "store: promote: clear rank cache")
	}

	cacheRows := make([][]any, len(cache))
	for i, entry := range cache {
		cacheRows[i] = []any{entry.CacheKey, entry.Payload, entry.ExpiresAt}
	}
	if _, err := db.CopyFromSchema(ctx, tx, "radar", "rank_cache",
		[]string{"cache_key", "payload", "expires_at"}, cacheRows); err != nil {
		return eris.Wrap(err, "store: promote: load rank cache")
	}

	if err := tx.Commit(ctx); err != nil {
		return eris.Wrap(err, "store: promote: commit")
	}
	return nil
}

func scanIDs(rows pgx.Rows) ([]string, error) {
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, eris.Wrap(err, "store: scan id")
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func scanSnapshots(rows pgx.Rows) ([]model.ScoreSnapshot, error) {
	var out []model.ScoreSnapshot
	for rows.Next() {
		var snap model.ScoreSnapshot
		var dAuth, dAuthz, dData, dAudit, dOps, dComp float64
		var explain []byte
		if err := rows.Scan(
			&snap.ID, &snap.EntityID, &snap.MethodologyVersion, &snap.AssessedAt,
			&dAuth, &dAuthz, &dData, &dAudit, &dOps, &dComp,
			&snap.TrustScore, &snap.Tier, &snap.EnterpriseFit,
			&snap.EvidenceConfidence, &snap.EvidenceCount,
			&snap.FailFastFlags, &snap.RiskFlags, &explain,
		); err != nil {
			return nil, eris.Wrap(err, "store: scan snapshot")
		}
		snap.Domains = map[model.ScoreDomain]float64{
			model.DomainAuthentication: dAuth,
			model.DomainAuthorization:  dAuthz,
			model.DomainDataProtection: dData,
			model.DomainAuditLogging:   dAudit,
			model.DomainOperational:    dOps,
			model.DomainCompliance:     dComp,
		}
		snap.Explain = explain
		out = append(out, snap)
	}
	return out, rows.Err()
}
