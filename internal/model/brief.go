package model

import "time"

// NewEntrant is an entity whose very first score snapshot fell on the brief
// date.
type NewEntrant struct {
	EntityID string  `json:"entity_id"`
	Name     string  `json:"name"`
	Score    float64 `json:"score"`
	Tier     Tier    `json:"tier"`
}

// DailyBrief is the one-per-date narrative digest of drift activity and new
// entrants. Re-running the generator for the same date overwrites the row.
type DailyBrief struct {
	Date         time.Time    `json:"date"` // calendar date, midnight UTC
	Headline     string       `json:"headline"`
	Narrative    string       `json:"narrative"`
	Movers       []Mover      `json:"movers,omitempty"`
	Downgrades   []Mover      `json:"downgrades,omitempty"`
	NewEntrants  []NewEntrant `json:"new_entrants,omitempty"`
	NotableDrift []string     `json:"notable_drift,omitempty"`
	GeneratedAt  time.Time    `json:"generated_at"`
}
