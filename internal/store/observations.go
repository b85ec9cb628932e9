package store

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"

	"github.com/radarworks/mcp-radar/internal/db"
	"github.com/radarworks/mcp-radar/internal/model"
)

// InsertObservations bulk-inserts raw observations, silently skipping rows
// whose (source_url, content_hash) already exists. Returns the number of rows
// actually inserted, which is how Scout reports "new vs. already seen".
func (s *PostgresStore) InsertObservations(ctx context.Context, obs []model.RawObservation) (int64, error) {
	if len(obs) == 0 {
		return 0, nil
	}

	rows := make([][]any, len(obs))
	for i, o := range obs {
		var manifest any
		if len(o.Manifest) > 0 {
			manifest = o.Manifest
		}
		rows[i] = []any{
			o.ContentHash, o.SourceName, o.SourceURL, o.Payload, manifest, o.RetrievedAt,
		}
	}

	cfg := db.UpsertConfig{
		Table: "radar.raw_observations",
		Columns: []string{
			"content_hash", "source_name", "source_url", "payload", "manifest", "retrieved_at",
		},
		ConflictKeys: []string{"source_url", "content_hash"},
		DoNothing:    true,
	}

	n, err := db.BulkUpsert(ctx, s.pool, cfg, rows)
	if err != nil {
		return 0, eris.Wrap(err, "store: insert observations")
	}
	return n, nil
}

// ListUnprocessedObservations returns observations the Curator has not seen
// yet, oldest first.
func (s *PostgresStore) ListUnprocessedObservations(ctx context.Context, limit int) ([]model.RawObservation, error) {
	if limit <= 0 {
		limit = 500
	}

	rows, err := s.pool.Query(ctx, `
		SELECT content_hash, source_name, source_url, payload, manifest, retrieved_at, processed
		FROM radar.raw_observations
		WHERE NOT processed
		ORDER BY retrieved_at
		LIMIT $1`, limit)
	if err != nil {
		return nil, eris.Wrap(err, "store: list unprocessed observations")
	}
	defer rows.Close()

	return scanObservations(rows)
}

// MarkObservationsProcessed flips the processed flag for the given content
// hashes. Called once per Curator batch regardless of per-row outcome, so a
// poison row can never wedge the pipeline.
func (s *PostgresStore) MarkObservationsProcessed(ctx context.Context, contentHashes []string) error {
	if len(contentHashes) == 0 {
		return nil
	}

	_, err := s.pool.Exec(ctx,
		`UPDATE radar.raw_observations SET processed = true WHERE content_hash = ANY($1)`,
		contentHashes,
	)
	if err != nil {
		return eris.Wrap(err, "store: mark observations processed")
	}
	return nil
}

// GetObservation returns the most recent observation with the given content
// hash, or nil when none exists.
func (s *PostgresStore) GetObservation(ctx context.Context, contentHash string) (*model.RawObservation, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT content_hash, source_name, source_url, payload, manifest, retrieved_at, processed
		FROM radar.raw_observations
		WHERE content_hash = $1
		ORDER BY retrieved_at DESC
		LIMIT 1`, contentHash)

	var o model.RawObservation
	err := row.Scan(&o.ContentHash, &o.SourceName, &o.SourceURL, &o.Payload, &o.Manifest, &o.RetrievedAt, &o.Processed)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "store: get observation")
	}
	return &o, nil
}

// GetSourceETag returns the last ETag seen for a source feed, or "".
func (s *PostgresStore) GetSourceETag(ctx context.Context, sourceURL string) (string, error) {
	var etag string
	err := s.pool.QueryRow(ctx,
		`SELECT etag FROM radar.source_state WHERE source_url = $1`,
		sourceURL,
	).Scan(&etag)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", eris.Wrap(err, "store: get source etag")
	}
	return etag, nil
}

// SetSourceETag records the ETag of the latest successful fetch of a source.
func (s *PostgresStore) SetSourceETag(ctx context.Context, sourceURL, etag string) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO radar.source_state (source_url, etag, fetched_at)
		VALUES ($1, $2, now())
		ON CONFLICT (source_url) DO UPDATE SET etag = EXCLUDED.etag, fetched_at = now()`,
		sourceURL, etag,
	)
	if err != nil {
		return eris.Wrap(err, "store: set source etag")
	}
	return nil
}

func scanObservations(rows pgx.Rows) ([]model.RawObservation, error) {
	var out []model.RawObservation
	for rows.Next() {
		var o model.RawObservation
		if err := rows.Scan(&o.ContentHash, &o.SourceName, &o.SourceURL, &o.Payload, &o.Manifest, &o.RetrievedAt, &o.Processed); err != nil {
			return nil, eris.Wrap(err, "store: scan observation")
		}
		out = append(out, o)
	}
	return out, rows.Err()
}
