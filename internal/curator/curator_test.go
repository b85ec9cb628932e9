package curator

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
	unprocessed []model.RawObservation
	entities    map[string]*model.Entity
	providers   map[string]*model.Provider
	marked      []string
}

func newFakeStore(obs ...model.RawObservation) *fakeStore {
	return &fakeStore{
		unprocessed: obs,
		entities:    map[string]*model.Entity{},
		providers:   map[string]*model.Provider{},
	}
}

func (f *fakeStore) ListUnprocessedObservations(_ context.Context, _ int) ([]model.RawObservation, error) {
	return f.unprocessed, nil
}

func (f *fakeStore) MarkObservationsProcessed(_ context.Context, hashes []string) error {
	f.marked = append(f.marked, hashes...)
	return nil
}

func (f *fakeStore) EntityExists(_ context.Context, id string) (bool, error) {
	_, ok := f.entities[id]
	return ok, nil
}

func (f *fakeStore) UpsertEntity(_ context.Context, e *model.Entity) error {
	f.entities[e.ID] = e
	return nil
}

func (f *fakeStore) UpsertProvider(_ context.Context, p *model.Provider) error {
	f.providers[p.ID] = p
	return nil
}

func observation(t *testing.T, source string, cand model.ObservedCandidate) model.RawObservation {
	t.Helper()
	payload, err := json.Marshal(cand)
	require.NoError(t, err)
	hash, err := model.ContentHash(payload)
	require.NoError(t, err)
	return model.RawObservation{
		ContentHash: hash,
		SourceName:  source,
		SourceURL:   "https://registry.modelcontextprotocol.io/v0/servers",
		Payload:     payload,
		RetrievedAt: time.Now().UTC(),
	}
}

func TestRun_PromotesCandidate(t *testing.T) {
	cand := model.ObservedCandidate{
		Name:      "Acme Files",
		RepoURL:   "https://github.com/acme/files-mcp",
		Endpoint:  "https://mcp.acme.dev/files",
		Publisher: "Acme Corp",
		Transport: "streamable-http",
	}
	st := newFakeStore(observation(t, "mcp-registry", cand))

	result, err := New(st, 100).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, result.Processed)

	wantID := model.EntityID(cand, "mcp-registry")
	e, ok := st.entities[wantID]
	require.True(t, ok)
	assert.Equal(t, "acme-files", e.Slug)
	assert.Equal(t, model.DeploymentRemote, e.Deployment)
	assert.Equal(t, model.StatusActive, e.Status)
	assert.Equal(t, model.ProvenanceOfficialRegistry, e.Metadata.Provenance)
	assert.Equal(t, model.ProviderID("Acme Corp", ""), e.ProviderID)
	require.Len(t, st.providers, 1)
	assert.Len(t, st.marked, 1)
}

func TestRun_IdentityFromRepoURLWins(t *testing.T) {
	cand := model.ObservedCandidate{
		Name:     "Acme Files",
		RepoURL:  "https://github.com/acme/files-mcp",
		Endpoint: "https://mcp.acme.dev/files",
	}
	st := newFakeStore(observation(t, "mcp-registry", cand))

	_, err := New(st, 100).Run(context.Background())
	require.NoError(t, err)

	repoOnly := model.ObservedCandidate{Name: "Acme Files", RepoURL: "https://github.com/acme/files-mcp"}
	_, ok := st.entities[model.EntityID(repoOnly, "other-source")]
	assert.True(t, ok, "id must derive from the repo URL alone")
}

func TestRun_DuplicateEntitySkipped(t *testing.T) {
	cand := model.ObservedCandidate{Name: "Acme Files", RepoURL: "https://github.com/acme/files-mcp"}
	obs := observation(t, "mcp-registry", cand)
	st := newFakeStore(obs)
	st.entities[model.EntityID(cand, "mcp-registry")] = &model.Entity{Name: "already there"}

	result, err := New(st, 100).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, result.Processed)
	assert.Equal(t, 1, result.Skipped)
	assert.Len(t, st.marked, 1, "duplicates still get marked processed")
}

func TestRun_AmbiguousWithinBatchSkipped(t *testing.T) {
	// Same repo URL from two sources: same identity, second is ambiguous.
	a := observation(t, "source-a", model.ObservedCandidate{
		Name: "Acme Files", RepoURL: "https://github.com/acme/files-mcp",
	})
	b := observation(t, "source-b", model.ObservedCandidate{
		Name: "Acme Files (mirror)", RepoURL: "https://github.com/acme/files-mcp",
	})
	st := newFakeStore(a, b)

	result, err := New(st, 100).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, result.Processed)
	assert.Equal(t, 1, result.Skipped)
	require.Len(t, st.entities, 1)
	for _, e := range st.entities {
		assert.Equal(t, "Acme Files", e.Name, "first occurrence wins")
	}
}

func TestRun_MalformedPayloadMarkedProcessed(t *testing.T) {
	bad := model.RawObservation{
		ContentHash: "deadbeef",
		SourceName:  "broken",
		SourceURL:   "https://example.com/list.json",
		Payload:     json.RawMessage(`"not an object"`),
		RetrievedAt: time.Now().UTC(),
	}
	st := newFakeStore(bad)

	result, err := New(st, 100).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, result.Failed)
	assert.Equal(t, []string{"deadbeef"}, st.marked, "poison payloads never retry")
}

func TestRun_EmptyBatch(t *testing.T) {
	st := newFakeStore()
	result, err := New(st, 100).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, result.Processed)
	assert.Empty(t, st.marked)
}

func TestRun_DeploymentDerivation(t *testing.T) {
	cases := []struct {
		name string
		cand model.ObservedCandidate
		want model.Deployment
	}{
		{"hybrid", model.ObservedCandidate{Name: "h", Endpoint: "https://x.dev/mcp", PackageRef: "npm:@x/h"}, model.DeploymentHybrid},
		{"remote", model.ObservedCandidate{Name: "r", Endpoint: "https://x.dev/mcp"}, model.DeploymentRemote},
		{"local", model.ObservedCandidate{Name: "l", PackageRef: "npm:@x/l"}, model.DeploymentLocal},
		{"unknown", model.ObservedCandidate{Name: "u", RepoURL: "https://github.com/x/u"}, model.DeploymentUnknown},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			st := newFakeStore(observation(t, "src", tc.cand))
			_, err := New(st, 100).Run(context.Background())
			require.NoError(t, err)
			e := st.entities[model.EntityID(tc.cand, "src")]
			require.NotNil(t, e)
			assert.Equal(t, tc.want, e.Deployment)
		})
	}
}

func TestClassifyProvenance(t *testing.T) {
	assert.Equal(t, model.ProvenanceOfficialRegistry,
		ClassifyProvenance("https://registry.modelcontextprotocol.io/v0/servers"))
	assert.Equal(t, model.ProvenanceOfficialRegistry,
		ClassifyProvenance("https://registry.example.com/feed"))
	assert.Equal(t, model.ProvenanceMarketplace,
		ClassifyProvenance("https://marketplace.example.com/api/servers"))
	assert.Equal(t, model.ProvenanceCommunityList,
		ClassifyProvenance("https://raw.githubusercontent.com/x/awesome-mcp/main/list.json"))
}
