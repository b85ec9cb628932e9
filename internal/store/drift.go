package store

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rotisserie/eris"

	"github.com/radarworks/mcp-radar/internal/db"
	"github.com/radarworks/mcp-radar/internal/model"
)

// ListEntityIDsWithSnapshots returns ids of entities with at least two score
// snapshots — the only ones the Drift Sentinel can diff.
func (s *PostgresStore) ListEntityIDsWithSnapshots(ctx context.Context) ([]string, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT entity_id
		FROM radar.score_snapshots
		GROUP BY entity_id
		HAVING count(*) >= 2
		ORDER BY entity_id`)
	if err != nil {
		return nil, eris.Wrap(err, "store: list entities with snapshots")
	}
	defer rows.Close()

	return scanIDs(rows)
}

// InsertDriftEvents appends drift events, skipping ids already recorded, so
// reruns over the same snapshot pair are no-ops. Returns the number inserted.
func (s *PostgresStore) InsertDriftEvents(ctx context.Context, events []model.DriftEvent) (int64, error) {
	if len(events) == 0 {
		return 0, nil
	}

	rows := make([][]any, len(events))
	for i, ev := range events {
		var diff any
		if len(ev.Diff) > 0 {
			diff = ev.Diff
		}
		rows[i] = []any{
			ev.ID, ev.EntityID, ev.DetectedAt, string(ev.Severity),
			string(ev.Type), ev.Summary, diff,
		}
	}

	cfg := db.UpsertConfig{
		Table: "radar.drift_events",
		Columns: []string{
			"id", "entity_id", "detected_at", "severity", "event_type", "summary", "diff",
		},
		ConflictKeys: []string{"id"},
		DoNothing:    true,
	}

	n, err := db.BulkUpsert(ctx, s.pool, cfg, rows)
	if err != nil {
		return 0, eris.Wrap(err, "store: insert drift events")
	}
	return n, nil
}

// ListDriftEventsByDate returns all drift events detected on one calendar
// date (UTC).
func (s *PostgresStore) ListDriftEventsByDate(ctx context.Context, date time.Time) ([]model.DriftEvent, error) {
	start := date.UTC().Truncate(24 * time.Hour)
	end := start.Add(24 * time.Hour)

	rows, err := s.pool.Query(ctx, `
		SELECT id, entity_id, detected_at, severity, event_type, summary, diff
		FROM radar.drift_events
		WHERE detected_at >= $1 AND detected_at < $2
		ORDER BY detected_at`, start, end)
	if err != nil {
		return nil, eris.Wrap(err, "store: list drift events by date")
	}
	defer rows.Close()

	var out []model.DriftEvent
	for rows.Next() {
		var ev model.DriftEvent
		var diff []byte
		if err := rows.Scan(&ev.ID, &ev.EntityID, &ev.DetectedAt,
			&ev.Severity, &ev.Type, &ev.Summary, &diff); err != nil {
			return nil, eris.Wrap(err, "store: scan drift event")
		}
		ev.Diff = diff
		out = append(out, ev)
	}
	return out, rows.Err()
}

// ListNewEntrants returns entities whose very first score snapshot falls on
// the given calendar date, with that first snapshot's score and tier.
func (s *PostgresStore) ListNewEntrants(ctx context.Context, date time.Time) ([]model.NewEntrant, error) {
	start := date.UTC().Truncate(24 * time.Hour)
	end := start.Add(24 * time.Hour)

	rows, err := s.pool.Query(ctx, `
		SELECT sn.entity_id, e.name, sn.trust_score, sn.tier
		FROM radar.score_snapshots sn
		JOIN (
			SELECT entity_id, min(assessed_at) AS first_at
			FROM radar.score_snapshots
			GROUP BY entity_id
		) f ON f.entity_id = sn.entity_id AND f.first_at = sn.assessed_at
		JOIN radar.entities e ON e.id = sn.entity_id
		WHERE sn.assessed_at >= $1 AND sn.assessed_at < $2
		ORDER BY sn.trust_score DESC`, start, end)
	if err != nil {
		return nil, eris.Wrap(err, "store: list new entrants")
	}
	defer rows.Close()

	var out []model.NewEntrant
	for rows.Next() {
		var ne model.NewEntrant
		if err := rows.Scan(&ne.EntityID, &ne.Name, &ne.Score, &ne.Tier); err != nil {
			return nil, eris.Wrap(err, "store: scan new entrant")
		}
		out = append(out, ne)
	}
	return out, rows.Err()
}

// UpsertDailyBrief writes the one brief row for a date; re-running the
// generator for the same date overwrites.
func (s *PostgresStore) UpsertDailyBrief(ctx context.Context, b *model.DailyBrief) error {
	movers, err := json.Marshal(b.Movers)
	if err != nil {
		return eris.Wrap(err, "store: marshal movers")
	}
	downgrades, err := json.Marshal(b.Downgrades)
	if err != nil {
		return eris.Wrap(err, "store: marshal downgrades")
	}
	entrants, err := json.Marshal(b.NewEntrants)
	if err != nil {
		return eris.Wrap(err, "store: marshal new entrants")
	}
	notable, err := json.Marshal(b.NotableDrift)
	if err != nil {
		return eris.Wrap(err, "store: marshal notable drift")
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO radar.daily_briefs
			(brief_date, headline, narrative, movers, downgrades, new_entrants, notable, generated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (brief_date) DO UPDATE SET
			headline     = EXCLUDED.headline,
			narrative    = EXCLUDED.narrative,
			movers       = EXCLUDED.movers,
			downgrades   = EXCLUDED.downgrades,
			new_entrants = EXCLUDED.new_entrants,
			notable      = EXCLUDED.notable,
			generated_at = EXCLUDED.generated_at`,
		b.Date.UTC().Truncate(24*time.Hour), b.Headline, b.Narrative,
		movers, downgrades, entrants, notable, b.GeneratedAt,
	)
	if err != nil {
		return eris.Wrap(err, "store: upsert daily brief")
	}
	return nil
}
