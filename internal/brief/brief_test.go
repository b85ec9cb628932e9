package brief

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/radarworks/mcp-radar/internal/model"
)

type fakeStore struct {
	events   []model.DriftEvent
	entrants []model.NewEntrant
	names    map[string]string

	upserted []*model.DailyBrief
}

func (f *fakeStore) ListDriftEventsByDate(_ context.Context, _ time.Time) ([]model.DriftEvent, error) {
	return f.events, nil
}

func (f *fakeStore) ListNewEntrants(_ context.Context, _ time.Time) ([]model.NewEntrant, error) {
	return f.entrants, nil
}

func (f *fakeStore) GetEntityNames(_ context.Context, ids []string) (map[string]string, error) {
	out := map[string]string{}
	for _, id := range ids {
		out[id] = f.names[id]
	}
	return out, nil
}

func (f *fakeStore) UpsertDailyBrief(_ context.Context, b *model.DailyBrief) error {
	f.upserted = append(f.upserted, b)
	return nil
}

func scoreEvent(entityID string, prev, cur float64, severity model.Severity) model.DriftEvent {
	diff, _ := json.Marshal(map[string]any{
		"previous":      prev,
		"current":       cur,
		"delta":         cur - prev,
		"previous_tier": model.TierFor(prev),
		"current_tier":  model.TierFor(cur),
	})
	return model.DriftEvent{
		ID:       entityID + "-score",
		EntityID: entityID,
		Severity: severity,
		Type:     model.DriftScoreChanged,
		Summary:  "trust score moved",
		Diff:     diff,
	}
}

var briefDate = time.Date(2026, 8, 29, 14, 30, 0, 0, time.UTC)

func TestRun_ClassifiesMoversAndDowngrades(t *testing.T) {
	st := &fakeStore{
		events: []model.DriftEvent{
			scoreEvent("up", 60, 75, model.SeverityLow),
			scoreEvent("down", 70, 50, model.SeverityCritical),
		},
		names: map[string]string{"up": "Upward", "down": "Downward"},
	}

	b, result, err := New(st, 5).Run(context.Background(), briefDate)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Processed)

	require.Len(t, b.Movers, 1)
	assert.Equal(t, "Upward", b.Movers[0].Name)
	assert.InDelta(t, 15.0, b.Movers[0].Delta, 0.001)
	assert.InDelta(t, 75.0, b.Movers[0].Score, 0.001)

	require.Len(t, b.Downgrades, 1)
	assert.Equal(t, "Downward", b.Downgrades[0].Name)
	assert.InDelta(t, -20.0, b.Downgrades[0].Delta, 0.001)
}

func TestRun_HighlightsSevereEventsMostSevereFirst(t *testing.T) {
	st := &fakeStore{
		events: []model.DriftEvent{
			{ID: "1", EntityID: "e1", Severity: model.SeverityHigh, Type: model.DriftFlagChanged, Summary: "new fail-fast flags: [no_auth_model]"},
			{ID: "2", EntityID: "e2", Severity: model.SeverityLow, Type: model.DriftEvidenceAdded, Summary: "evidence count +1"},
			{ID: "3", EntityID: "e3", Severity: model.SeverityCritical, Type: model.DriftScoreChanged, Summary: "trust score -18.0"},
		},
		names: map[string]string{"e1": "Alpha", "e3": "Gamma"},
	}

	b, _, err := New(st, 5).Run(context.Background(), briefDate)
	require.NoError(t, err)

	require.Len(t, b.NotableDrift, 2, "low severity events are not highlights")
	assert.Contains(t, b.NotableDrift[0], "critical")
	assert.Contains(t, b.NotableDrift[0], "Gamma")
	assert.Contains(t, b.NotableDrift[1], "high")
	assert.Contains(t, b.NotableDrift[1], "Alpha")
}

func TestRun_NewEntrantsAndHeadline(t *testing.T) {
	st := &fakeStore{
		entrants: []model.NewEntrant{
			{EntityID: "n1", Name: "Fresh Server", Score: 62, Tier: model.TierB},
		},
	}

	b, _, err := New(st, 5).Run(context.Background(), briefDate)
	require.NoError(t, err)
	assert.Equal(t, "1 new entrant", b.Headline)
	assert.Contains(t, b.Narrative, "Fresh Server (tier B)")
}

func TestRun_QuietDay(t *testing.T) {
	st := &fakeStore{}

	b, _, err := New(st, 5).Run(context.Background(), briefDate)
	require.NoError(t, err)
	assert.Equal(t, "Quiet day: no drift, no new entrants", b.Headline)
	assert.Contains(t, b.Narrative, "No drift detected and no new entrants")
	require.Len(t, st.upserted, 1, "quiet days still persist a brief")
}

func TestRun_DateTruncatedToMidnightUTC(t *testing.T) {
	st := &fakeStore{}

	b, _, err := New(st, 5).Run(context.Background(), briefDate)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 8, 29, 0, 0, 0, 0, time.UTC), b.Date)
}

func TestRun_TopNCapsMovers(t *testing.T) {
	st := &fakeStore{names: map[string]string{}}
	for i := 0; i < 4; i++ {
		id := string(rune('a' + i))
		st.events = append(st.events, scoreEvent(id, 50, 50+float64(i+1), model.SeverityLow))
		st.names[id] = id
	}

	b, _, err := New(st, 2).Run(context.Background(), briefDate)
	require.NoError(t, err)
	require.Len(t, b.Movers, 2)
	assert.InDelta(t, 4.0, b.Movers[0].Delta, 0.001, "largest gain first")
}

func TestRun_MalformedDiffSkipped(t *testing.T) {
	st := &fakeStore{
		events: []model.DriftEvent{
			{ID: "1", EntityID: "e1", Severity: model.SeverityLow, Type: model.DriftScoreChanged, Diff: json.RawMessage(`not json`)},
		},
	}

	b, _, err := New(st, 5).Run(context.Background(), briefDate)
	require.NoError(t, err)
	assert.Empty(t, b.Movers)
	assert.Empty(t, b.Downgrades)
}

func TestHeadline_Combines(t *testing.T) {
	got := headline(
		[]model.Mover{{}, {}},
		[]model.Mover{{}},
		[]model.NewEntrant{{}},
		[]string{"x", "y", "z"},
	)
	assert.Equal(t, "3 severe drift events, 1 downgrade, 2 gainers, 1 new entrant", got)
}
