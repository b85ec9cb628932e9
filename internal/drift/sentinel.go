// Package drift compares each entity's two most recent score snapshots and
// emits typed, severity-ranked drift events. Event ids are content-derived,
// so re-running over the same snapshot pair writes nothing new.
package drift

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/radarworks/mcp-radar/internal/model"
	"github.com/radarworks/mcp-radar/internal/store"
)

// Store is the persistence surface the sentinel needs.
type Store interface {
	ListEntityIDsWithSnapshots(ctx context.Context) ([]string, error)
	LatestSnapshots(ctx context.Context, entityID string, limit int) ([]model.ScoreSnapshot, error)
	GetEntityNames(ctx context.Context, ids []string) (map[string]string, error)
	InsertDriftEvents(ctx context.Context, events []model.DriftEvent) (int64, error)
}

// Sentinel detects drift across all multi-snapshot entities.
type Sentinel struct {
	store      Store
	topN       int
	batchLimit int
	log        *zap.Logger
}

// New creates a Sentinel. topN caps the mover/downgrade lists (<= 0 means 5);
// batchLimit caps the entities diffed per run (<= 0 means unlimited).
func New(st Store, topN, batchLimit int) *Sentinel {
	if topN <= 0 {
		topN = 5
	}
	return &Sentinel{
		store:      st,
		topN:       topN,
		batchLimit: batchLimit,
		log:        zap.L().With(zap.String("phase", "drift")),
	}
}

// Report is the outcome of one sentinel run.
type Report struct {
	Events     []model.DriftEvent `json:"events"`
	Movers     []model.Mover      `json:"movers"`     // biggest gains, by |delta|
	Downgrades []model.Mover      `json:"downgrades"` // biggest drops, by |delta|
	Inserted   int64              `json:"inserted"`
}

// scoreDiff is the diff payload of a ScoreChanged event.
type scoreDiff struct {
	Previous     float64    `json:"previous"`
	Current      float64    `json:"current"`
	Delta        float64    `json:"delta"`
	PreviousTier model.Tier `json:"previous_tier"`
	CurrentTier  model.Tier `json:"current_tier"`
}

// flagDiff is the diff payload of a FlagChanged event.
type flagDiff struct {
	AddedFailFast   []string `json:"added_fail_fast,omitempty"`
	RemovedFailFast []string `json:"removed_fail_fast,omitempty"`
	AddedRisk       []string `json:"added_risk,omitempty"`
	RemovedRisk     []string `json:"removed_risk,omitempty"`
}

// Run diffs every entity that has at least two snapshots and persists the
// detected events. Single-snapshot entities never reach the diff.
func (s *Sentinel) Run(ctx context.Context) (*Report, *store.RunResult, error) {
	ids, err := s.store.ListEntityIDsWithSnapshots(ctx)
	if err != nil {
		return nil, nil, eris.Wrap(err, "drift: list entities with snapshots")
	}
	if s.batchLimit > 0 && len(ids) > s.batchLimit {
		ids = ids[:s.batchLimit]
	}

	report := &Report{}
	result := &store.RunResult{}

	var movers []model.Mover
	for _, id := range ids {
		snaps, err := s.store.LatestSnapshots(ctx, id, 2)
		if err != nil {
			return nil, nil, eris.Wrapf(err, "drift: load snapshots for %s", id)
		}
		if len(snaps) < 2 {
			result.Skipped++
			continue
		}
		current, previous := snaps[0], snaps[1]

		events := Diff(id, &previous, &current)
		if len(events) == 0 {
			result.Skipped++
			continue
		}
		report.Events = append(report.Events, events...)
		result.Processed++

		if delta := current.TrustScore - previous.TrustScore; delta != 0 {
			movers = append(movers, model.Mover{
				EntityID: id,
				Delta:    delta,
				Score:    current.TrustScore,
				Tier:     current.Tier,
			})
		}
	}

	if err := s.fillMoverNames(ctx, movers); err != nil {
		return nil, nil, err
	}
	report.Movers, report.Downgrades = splitMovers(movers, s.topN)

	inserted, err := s.store.InsertDriftEvents(ctx, report.Events)
	if err != nil {
		return nil, nil, eris.Wrap(err, "drift: insert events")
	}
	report.Inserted = inserted

	detail, err := json.Marshal(map[string]any{
		"events":     len(report.Events),
		"inserted":   inserted,
		"movers":     report.Movers,
		"downgrades": report.Downgrades,
	})
	if err != nil {
		return nil, nil, eris.Wrap(err, "drift: marshal run detail")
	}
	result.Detail = detail

	s.log.Info("drift run complete",
		zap.Int("entities_diffed", result.Processed+result.Skipped),
		zap.Int("events", len(report.Events)),
		zap.Int64("inserted", inserted),
	)
	return report, result, nil
}

// Diff compares one snapshot pair and returns every detected change. Pure;
// the caller decides persistence.
func Diff(entityID string, previous, current *model.ScoreSnapshot) []model.DriftEvent {
	now := time.Now().UTC()
	var events []model.DriftEvent

	if delta := current.TrustScore - previous.TrustScore; delta != 0 {
		diff, _ := json.Marshal(scoreDiff{
			Previous:     previous.TrustScore,
			Current:      current.TrustScore,
			Delta:        delta,
			PreviousTier: previous.Tier,
			CurrentTier:  current.Tier,
		})
		events = append(events, model.DriftEvent{
			ID:         model.DriftID(entityID, model.DriftScoreChanged, current.ID, delta),
			EntityID:   entityID,
			DetectedAt: now,
			Severity:   ScoreDeltaSeverity(delta),
			Type:       model.DriftScoreChanged,
			Summary: fmt.Sprintf("trust score %+.1f (%.1f -> %.1f, tier %s -> %s)",
				delta, previous.TrustScore, current.TrustScore, previous.Tier, current.Tier),
			Diff: diff,
		})
	}

	if fd, changed := diffFlags(previous, current); changed {
		severity := model.SeverityMedium
		if len(fd.AddedFailFast) > 0 {
			severity = model.SeverityHigh
		}
		diff, _ := json.Marshal(fd)
		events = append(events, model.DriftEvent{
			ID:         model.DriftID(entityID, model.DriftFlagChanged, current.ID, 0),
			EntityID:   entityID,
			DetectedAt: now,
			Severity:   severity,
			Type:       model.DriftFlagChanged,
			Summary:    flagSummary(fd),
			Diff:       diff,
		})
	}

	if countDelta := current.EvidenceCount - previous.EvidenceCount; countDelta != 0 {
		eventType := model.DriftEvidenceAdded
		severity := model.SeverityLow
		if countDelta < 0 {
			eventType = model.DriftEvidenceRemoved
			severity = model.SeverityMedium
		}
		diff, _ := json.Marshal(map[string]int{
			"previous": previous.EvidenceCount,
			"current":  current.EvidenceCount,
		})
		events = append(events, model.DriftEvent{
			ID:         model.DriftID(entityID, eventType, current.ID, float64(countDelta)),
			EntityID:   entityID,
			DetectedAt: now,
			Severity:   severity,
			Type:       eventType,
			Summary: fmt.Sprintf("evidence count %+d (%d -> %d)",
				countDelta, previous.EvidenceCount, current.EvidenceCount),
			Diff: diff,
		})
	}

	return events
}

// ScoreDeltaSeverity bands a trust-score delta. Drops escalate with
// magnitude; gains stay informational.
func ScoreDeltaSeverity(delta float64) model.Severity {
	switch {
	case delta <= -15:
		return model.SeverityCritical
	case delta <= -10:
		return model.SeverityHigh
	case delta <= -5:
		return model.SeverityMedium
	case delta < 0:
		return model.SeverityLow
	case delta >= 10:
		return model.SeverityMedium
	default:
		return model.SeverityLow
	}
}

func diffFlags(previous, current *model.ScoreSnapshot) (flagDiff, bool) {
	fd := flagDiff{
		AddedFailFast:   subtract(current.FailFastFlags, previous.FailFastFlags),
		RemovedFailFast: subtract(previous.FailFastFlags, current.FailFastFlags),
		AddedRisk:       subtract(current.RiskFlags, previous.RiskFlags),
		RemovedRisk:     subtract(previous.RiskFlags, current.RiskFlags),
	}
	changed := len(fd.AddedFailFast)+len(fd.RemovedFailFast)+
		len(fd.AddedRisk)+len(fd.RemovedRisk) > 0
	return fd, changed
}

func flagSummary(fd flagDiff) string {
	if len(fd.AddedFailFast) > 0 {
		return fmt.Sprintf("new fail-fast flags: %v", fd.AddedFailFast)
	}
	return fmt.Sprintf("flag set changed (+%d/-%d fail-fast, +%d/-%d risk)",
		len(fd.AddedFailFast), len(fd.RemovedFailFast),
		len(fd.AddedRisk), len(fd.RemovedRisk))
}

// subtract returns the elements of a not present in b.
func subtract(a, b []string) []string {
	in := make(map[string]bool, len(b))
	for _, s := range b {
		in[s] = true
	}
	var out []string
	for _, s := range a {
		if !in[s] {
			out = append(out, s)
		}
	}
	return out
}

func (s *Sentinel) fillMoverNames(ctx context.Context, movers []model.Mover) error {
	if len(movers) == 0 {
		return nil
	}
	ids := make([]string, len(movers))
	for i, m := range movers {
		ids[i] = m.EntityID
	}
	names, err := s.store.GetEntityNames(ctx, ids)
	if err != nil {
		return eris.Wrap(err, "drift: resolve entity names")
	}
	for i := range movers {
		movers[i].Name = names[movers[i].EntityID]
	}
	return nil
}

// splitMovers partitions by delta sign and returns the top-N of each side
// sorted by |delta| descending.
func splitMovers(all []model.Mover, topN int) (movers, downgrades []model.Mover) {
	for _, m := range all {
		if m.Delta > 0 {
			movers = append(movers, m)
		} else {
			downgrades = append(downgrades, m)
		}
	}
	byMagnitude := func(list []model.Mover) {
		sort.Slice(list, func(i, j int) bool {
			di, dj := list[i].Delta, list[j].Delta
			if di < 0 {
				di = -di
			}
			if dj < 0 {
				dj = -dj
			}
			return di > dj
		})
	}
	byMagnitude(movers)
	byMagnitude(downgrades)
	if len(movers) > topN {
		movers = movers[:topN]
	}
	if len(downgrades) > topN {
		downgrades = downgrades[:topN]
	}
	return movers, downgrades
}
