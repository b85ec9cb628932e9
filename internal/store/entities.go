package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/rotisserie/eris"

	"github.com/radarworks/mcp-radar/internal/model"
)

const entityColumns = `id, slug, name, COALESCE(provider_id, ''), deployment,
	COALESCE(auth_model, ''), COALESCE(tool_agency, ''),
	COALESCE(repo_url, ''), COALESCE(docs_url, ''), COALESCE(endpoint, ''),
	status, metadata, first_seen_at, last_seen_at`

// EntityExists reports whether an entity with the given canonical id exists.
func (s *PostgresStore) EntityExists(ctx context.Context, id string) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM radar.entities WHERE id = $1)`,
		id,
	).Scan(&exists)
	if err != nil {
		return false, eris.Wrap(err, "store: check entity exists")
	}
	return exists, nil
}

// UpsertEntity inserts or merges a canonical entity row. On conflict, existing
// non-null fields win over incoming values, metadata keys already present are
// kept, and last_seen_at is always bumped. A slug collision between distinct
// ids retries once with an id-suffixed slug.
func (s *PostgresStore) UpsertEntity(ctx context.Context, e *model.Entity) error {
	err := s.upsertEntity(ctx, e, e.Slug)
	if isUniqueViolation(err, "entities_slug_key") && len(e.ID) >= 8 {
		return s.upsertEntity(ctx, e, fmt.Sprintf("%s-%s", e.Slug, e.ID[:8]))
	}
	return err
}

func (s *PostgresStore) upsertEntity(ctx context.Context, e *model.Entity, slug string) error {
	metadata, err := json.Marshal(e.Metadata)
	if err != nil {
		return eris.Wrap(err, "store: marshal entity metadata")
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO radar.entities
			(id, slug, name, provider_id, deployment, auth_model, tool_agency,
			 repo_url, docs_url, endpoint, status, metadata, first_seen_at, last_seen_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		ON CONFLICT (id) DO UPDATE SET
			name         = COALESCE(NULLIF(radar.entities.name, ''), EXCLUDED.name),
			provider_id  = COALESCE(radar.entities.provider_id, EXCLUDED.provider_id),
			deployment   = CASE WHEN radar.entities.deployment = 'unknown'
			                    THEN EXCLUDED.deployment
			                    ELSE radar.entities.deployment END,
			auth_model   = COALESCE(radar.entities.auth_model, EXCLUDED.auth_model),
			tool_agency  = COALESCE(radar.entities.tool_agency, EXCLUDED.tool_agency),
			repo_url     = COALESCE(radar.entities.repo_url, EXCLUDED.repo_url),
			docs_url     = COALESCE(radar.entities.docs_url, EXCLUDED.docs_url),
			endpoint     = COALESCE(radar.entities.endpoint, EXCLUDED.endpoint),
			metadata     = EXCLUDED.metadata || radar.entities.metadata,
			last_seen_at = EXCLUDED.last_seen_at`,
		e.ID, slug, e.Name, nullable(e.ProviderID), string(e.Deployment),
		nullable(e.AuthModel), nullable(e.ToolAgency),
		nullable(e.RepoURL), nullable(e.DocsURL), nullable(e.Endpoint),
		string(e.Status), metadata, e.FirstSeenAt, e.LastSeenAt,
	)
	if err != nil {
		return eris.Wrapf(err, "store: upsert entity %s", e.ID)
	}
	return nil
}

// UpsertProvider lazily creates a provider row; existing rows are untouched.
func (s *PostgresStore) UpsertProvider(ctx context.Context, p *model.Provider) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO radar.providers (id, name, domain, kind)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO NOTHING`,
		p.ID, p.Name, p.Domain, p.Kind,
	)
	if err != nil {
		return eris.Wrapf(err, "store: upsert provider %s", p.ID)
	}
	return nil
}

// ListActiveEntities returns all entities with status active.
func (s *PostgresStore) ListActiveEntities(ctx context.Context) ([]model.Entity, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+entityColumns+` FROM radar.entities WHERE status = 'active' ORDER BY id`)
	if err != nil {
		return nil, eris.Wrap(err, "store: list active entities")
	}
	defer rows.Close()

	return scanEntities(rows)
}

// GetEntityNames resolves display names for a set of entity ids.
func (s *PostgresStore) GetEntityNames(ctx context.Context, ids []string) (map[string]string, error) {
	if len(ids) == 0 {
		return map[string]string{}, nil
	}

	rows, err := s.pool.Query(ctx,
		`SELECT id, name FROM radar.entities WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, eris.Wrap(err, "store: get entity names")
	}
	defer rows.Close()

	names := make(map[string]string, len(ids))
	for rows.Next() {
		var id, name string
		if err := rows.Scan(&id, &name); err != nil {
			return nil, eris.Wrap(err, "store: scan entity name")
		}
		names[id] = name
	}
	return names, rows.Err()
}

// UpdateEntityMetadata replaces the metadata blob for one entity.
func (s *PostgresStore) UpdateEntityMetadata(ctx context.Context, entityID string, md model.EntityMetadata) error {
	metadata, err := json.Marshal(md)
	if err != nil {
		return eris.Wrap(err, "store: marshal metadata")
	}

	_, err = s.pool.Exec(ctx,
		`UPDATE radar.entities SET metadata = $2 WHERE id = $1`,
		entityID, metadata,
	)
	if err != nil {
		return eris.Wrapf(err, "store: update metadata for %s", entityID)
	}
	return nil
}

func scanEntities(rows pgx.Rows) ([]model.Entity, error) {
	var out []model.Entity
	for rows.Next() {
		var e model.Entity
		var metadata []byte
		if err := rows.Scan(
			&e.ID, &e.Slug, &e.Name, &e.ProviderID, &e.Deployment,
			&e.AuthModel, &e.ToolAgency,
			&e.RepoURL, &e.DocsURL, &e.Endpoint,
			&e.Status, &metadata, &e.FirstSeenAt, &e.LastSeenAt,
		); err != nil {
			return nil, eris.Wrap(err, "store: scan entity")
		}
		if len(metadata) > 0 {
			if err := json.Unmarshal(metadata, &e.Metadata); err != nil {
				return nil, eris.Wrap(err, "store: unmarshal entity metadata")
			}
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// isUniqueViolation reports whether err is a Postgres unique violation on the
// named constraint.
func isUniqueViolation(err error, constraint string) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505" && pgErr.ConstraintName == constraint
	}
	return false
}
