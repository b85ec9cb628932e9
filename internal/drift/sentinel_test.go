package drift

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/radarworks/mcp-radar/internal/model"
)

func snapshot(id string, score float64, evidenceCount int) *model.ScoreSnapshot {
	return &model.ScoreSnapshot{
		ID:            id,
		TrustScore:    score,
		Tier:          model.TierFor(score),
		EvidenceCount: evidenceCount,
	}
}

func eventsByType(events []model.DriftEvent, t model.DriftType) []model.DriftEvent {
	var out []model.DriftEvent
	for _, ev := range events {
		if ev.Type == t {
			out = append(out, ev)
		}
	}
	return out
}

func TestScoreDeltaSeverity_Bands(t *testing.T) {
	cases := []struct {
		delta float64
		want  model.Severity
	}{
		{-20, model.SeverityCritical},
		{-15.0, model.SeverityCritical},
		{-14.9, model.SeverityHigh},
		{-10.0, model.SeverityHigh},
		{-9.9, model.SeverityMedium},
		{-5.0, model.SeverityMedium},
		{-4.9, model.SeverityLow},
		{-0.1, model.SeverityLow},
		{0.1, model.SeverityLow},
		{9.9, model.SeverityLow},
		{10.0, model.SeverityMedium},
		{25, model.SeverityMedium},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, ScoreDeltaSeverity(tc.delta), "delta %+.1f", tc.delta)
	}
}

func TestDiff_ScoreDrop(t *testing.T) {
	prev := snapshot("s1", 80, 3)
	cur := snapshot("s2", 64, 3)

	events := Diff("e1", prev, cur)
	scoreEvents := eventsByType(events, model.DriftScoreChanged)
	require.Len(t, scoreEvents, 1)

	ev := scoreEvents[0]
	assert.Equal(t, model.SeverityCritical, ev.Severity)
	assert.Contains(t, ev.Summary, "-16.0")
	assert.Contains(t, ev.Summary, "tier A -> B")
	assert.Equal(t, model.DriftID("e1", model.DriftScoreChanged, "s2", -16), ev.ID)
}

func TestDiff_ZeroDeltaNoScoreEvent(t *testing.T) {
	prev := snapshot("s1", 72, 3)
	cur := snapshot("s2", 72, 3)

	events := Diff("e1", prev, cur)
	assert.Empty(t, eventsByType(events, model.DriftScoreChanged))
}

func TestDiff_NewFailFastFlagIsHigh(t *testing.T) {
	prev := snapshot("s1", 70, 2)
	cur := snapshot("s2", 70, 2)
	cur.FailFastFlags = []string{model.FlagNoAuthModel}

	events := Diff("e1", prev, cur)
	flagEvents := eventsByType(events, model.DriftFlagChanged)
	require.Len(t, flagEvents, 1)
	assert.Equal(t, model.SeverityHigh, flagEvents[0].Severity)
	assert.Contains(t, flagEvents[0].Summary, model.FlagNoAuthModel)
}

func TestDiff_RiskFlagChangeIsMedium(t *testing.T) {
	prev := snapshot("s1", 70, 2)
	prev.RiskFlags = []string{model.RiskStaleEvidence}
	cur := snapshot("s2", 70, 2)

	events := Diff("e1", prev, cur)
	flagEvents := eventsByType(events, model.DriftFlagChanged)
	require.Len(t, flagEvents, 1)
	assert.Equal(t, model.SeverityMedium, flagEvents[0].Severity)
}

func TestDiff_UnchangedFlagsNoEvent(t *testing.T) {
	prev := snapshot("s1", 70, 2)
	prev.RiskFlags = []string{model.RiskNoAuditLogging}
	cur := snapshot("s2", 70, 2)
	cur.RiskFlags = []string{model.RiskNoAuditLogging}

	events := Diff("e1", prev, cur)
	assert.Empty(t, eventsByType(events, model.DriftFlagChanged))
}

func TestDiff_EvidenceCountChanges(t *testing.T) {
	added := Diff("e1", snapshot("s1", 70, 2), snapshot("s2", 70, 4))
	addedEvents := eventsByType(added, model.DriftEvidenceAdded)
	require.Len(t, addedEvents, 1)
	assert.Equal(t, model.SeverityLow, addedEvents[0].Severity)
	assert.Contains(t, addedEvents[0].Summary, "+2")

	removed := Diff("e1", snapshot("s1", 70, 4), snapshot("s2", 70, 3))
	removedEvents := eventsByType(removed, model.DriftEvidenceRemoved)
	require.Len(t, removedEvents, 1)
	assert.Equal(t, model.SeverityMedium, removedEvents[0].Severity)
}

func TestDiff_IdempotentIDs(t *testing.T) {
	prev := snapshot("s1", 80, 3)
	cur := snapshot("s2", 70, 3)

	first := Diff("e1", prev, cur)
	second := Diff("e1", prev, cur)
	require.Len(t, second, len(first))
	for i := range first {
		assert.Equal(t, first[i].ID, second[i].ID, "rerun produces identical event ids")
	}
}

type fakeStore struct {
	snapshots map[string][]model.ScoreSnapshot // entity id -> newest first
	names     map[string]string
	inserted  map[string]model.DriftEvent
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		snapshots: map[string][]model.ScoreSnapshot{},
		names:     map[string]string{},
		inserted:  map[string]model.DriftEvent{},
	}
}

func (f *fakeStore) ListEntityIDsWithSnapshots(_ context.Context) ([]string, error) {
	var ids []string
	for id, snaps := range f.snapshots {
		if len(snaps) >= 2 {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func (f *fakeStore) LatestSnapshots(_ context.Context, id string, limit int) ([]model.ScoreSnapshot, error) {
	snaps := f.snapshots[id]
	if len(snaps) > limit {
		snaps = snaps[:limit]
	}
	return snaps, nil
}

func (f *fakeStore) GetEntityNames(_ context.Context, ids []string) (map[string]string, error) {
	out := map[string]string{}
	for _, id := range ids {
		out[id] = f.names[id]
	}
	return out, nil
}

func (f *fakeStore) InsertDriftEvents(_ context.Context, events []model.DriftEvent) (int64, error) {
	var n int64
	for _, ev := range events {
		if _, ok := f.inserted[ev.ID]; ok {
			continue
		}
		f.inserted[ev.ID] = ev
		n++
	}
	return n, nil
}

func TestRun_EmitsAndRanks(t *testing.T) {
	st := newFakeStore()
	st.snapshots["up"] = []model.ScoreSnapshot{*snapshot("u2", 75, 2), *snapshot("u1", 60, 2)}
	st.snapshots["down"] = []model.ScoreSnapshot{*snapshot("d2", 50, 2), *snapshot("d1", 70, 2)}
	st.snapshots["flat"] = []model.ScoreSnapshot{*snapshot("f2", 55, 2), *snapshot("f1", 55, 2)}
	st.names["up"] = "Upward"
	st.names["down"] = "Downward"

	report, result, err := New(st, 5, 0).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, result.Processed)
	assert.Equal(t, 1, result.Skipped, "flat entity produced no events")

	require.Len(t, report.Movers, 1)
	assert.Equal(t, "Upward", report.Movers[0].Name)
	assert.InDelta(t, 15.0, report.Movers[0].Delta, 0.001)

	require.Len(t, report.Downgrades, 1)
	assert.Equal(t, "Downward", report.Downgrades[0].Name)
	assert.InDelta(t, -20.0, report.Downgrades[0].Delta, 0.001)

	assert.Equal(t, int64(len(report.Events)), report.Inserted)
}

func TestRun_RerunInsertsNothing(t *testing.T) {
	st := newFakeStore()
	st.snapshots["e1"] = []model.ScoreSnapshot{*snapshot("s2", 50, 2), *snapshot("s1", 70, 2)}

	s := New(st, 5, 0)
	report, _, err := s.Run(context.Background())
	require.NoError(t, err)
	assert.Positive(t, report.Inserted)

	report, _, err = s.Run(context.Background())
	require.NoError(t, err)
	assert.Zero(t, report.Inserted, "identical snapshot pair produces identical ids")
}

func TestRun_SingleSnapshotEntityIgnored(t *testing.T) {
	st := newFakeStore()
	st.snapshots["only"] = []model.ScoreSnapshot{*snapshot("s1", 70, 2)}

	report, result, err := New(st, 5, 0).Run(context.Background())
	require.NoError(t, err)
	assert.Empty(t, report.Events)
	assert.Zero(t, result.Processed)
}

func TestRun_BatchLimitCapsEntities(t *testing.T) {
	st := newFakeStore()
	st.snapshots["a"] = []model.ScoreSnapshot{*snapshot("a2", 50, 2), *snapshot("a1", 70, 2)}
	st.snapshots["b"] = []model.ScoreSnapshot{*snapshot("b2", 50, 2), *snapshot("b1", 70, 2)}
	st.snapshots["c"] = []model.ScoreSnapshot{*snapshot("c2", 50, 2), *snapshot("c1", 70, 2)}

	_, result, err := New(st, 5, 2).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, result.Processed+result.Skipped)
}

func TestSplitMovers_TopN(t *testing.T) {
	var all []model.Mover
	for i := 1; i <= 8; i++ {
		all = append(all, model.Mover{EntityID: string(rune('a' + i)), Delta: float64(i)})
		all = append(all, model.Mover{EntityID: string(rune('A' + i)), Delta: -float64(i)})
	}

	movers, downgrades := splitMovers(all, 3)
	require.Len(t, movers, 3)
	require.Len(t, downgrades, 3)
	assert.InDelta(t, 8, movers[0].Delta, 0.001)
	assert.InDelta(t, -8, downgrades[0].Delta, 0.001)
	assert.True(t, movers[0].Delta >= movers[1].Delta)
}

func TestSeverityOrdering(t *testing.T) {
	assert.True(t, model.SeverityCritical.MoreSevere(model.SeverityHigh))
	assert.True(t, model.SeverityHigh.MoreSevere(model.SeverityLow))
	assert.False(t, model.SeverityLow.MoreSevere(model.SeverityLow))
}
