package model

import (
	"encoding/json"
	"time"
)

// Severity ranks a drift event.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityMedium   Severity = "medium"
	SeverityLow      Severity = "low"
)

// severityRank orders severities for sorting; lower is more severe.
var severityRank = map[Severity]int{
	SeverityCritical: 0,
	SeverityHigh:     1,
	SeverityMedium:   2,
	SeverityLow:      3,
}

// MoreSevere reports whether a outranks b.
func (a Severity) MoreSevere(b Severity) bool {
	return severityRank[a] < severityRank[b]
}

// DriftType is the kind of change detected between consecutive assessments.
type DriftType string

const (
	DriftScoreChanged    DriftType = "score_changed"
	DriftFlagChanged     DriftType = "flag_changed"
	DriftEvidenceAdded   DriftType = "evidence_added"
	DriftEvidenceRemoved DriftType = "evidence_removed"
)

// DriftEvent records one detected change between two consecutive snapshots
// (or evidence counts) for an entity. Append-only; the content-derived id
// makes reruns over the same inputs idempotent.
type DriftEvent struct {
	ID         string          `json:"id"`
	EntityID   string          `json:"entity_id"`
	DetectedAt time.Time       `json:"detected_at"`
	Severity   Severity        `json:"severity"`
	Type       DriftType       `json:"type"`
	Summary    string          `json:"summary"`
	Diff       json.RawMessage `json:"diff,omitempty"`
}

// Mover is one entry in the top-N mover/downgrade lists.
type Mover struct {
	EntityID string  `json:"entity_id"`
	Name     string  `json:"name"`
	Delta    float64 `json:"delta"`
	Score    float64 `json:"score"`
	Tier     Tier    `json:"tier"`
}
