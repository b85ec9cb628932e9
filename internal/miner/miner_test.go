package miner

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/radarworks/mcp-radar/internal/model"
)

type fakeStore struct {
	mu           sync.Mutex
	entities     []model.Entity
	observations map[string]*model.RawObservation
	evidence     map[string]model.EvidenceItem // id -> item
	evidenceKeys map[string]bool               // entity|url
	claims       map[string]model.ExtractedClaim
	metadata     map[string]model.EntityMetadata
}

func newFakeStore(entities ...model.Entity) *fakeStore {
	return &fakeStore{
		entities:     entities,
		observations: map[string]*model.RawObservation{},
		evidence:     map[string]model.EvidenceItem{},
		evidenceKeys: map[string]bool{},
		claims:       map[string]model.ExtractedClaim{},
		metadata:     map[string]model.EntityMetadata{},
	}
}

func (f *fakeStore) ListActiveEntities(_ context.Context) ([]model.Entity, error) {
	return f.entities, nil
}

func (f *fakeStore) GetObservation(_ context.Context, hash string) (*model.RawObservation, error) {
	return f.observations[hash], nil
}

func (f *fakeStore) EvidenceExists(_ context.Context, entityID, sourceURL string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.evidenceKeys[entityID+"|"+sourceURL], nil
}

func (f *fakeStore) InsertEvidence(_ context.Context, item model.EvidenceItem) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.evidence[item.ID]; ok {
		return false, nil
	}
	f.evidence[item.ID] = item
	f.evidenceKeys[item.EntityID+"|"+item.SourceURL] = true
	return true, nil
}

func (f *fakeStore) UpsertClaims(_ context.Context, claims []model.ExtractedClaim) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, c := range claims {
		f.claims[c.ID] = c
	}
	return nil
}

func (f *fakeStore) UpdateEntityMetadata(_ context.Context, entityID string, md model.EntityMetadata) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.metadata[entityID] = md
	return nil
}

func (f *fakeStore) claimsByType(entityID string, t model.ClaimType) []model.ExtractedClaim {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.ExtractedClaim
	for _, c := range f.claims {
		if c.EntityID == entityID && c.Type == t {
			out = append(out, c)
		}
	}
	return out
}

type fakeFetcher struct {
	mu     sync.Mutex
	bodies map[string][]byte
	errs   map[string]error
	calls  map[string]int
}

func newFakeFetcher() *fakeFetcher {
	return &fakeFetcher{
		bodies: map[string][]byte{},
		errs:   map[string]error{},
		calls:  map[string]int{},
	}
}

func (f *fakeFetcher) Fetch(_ context.Context, url string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[url]++
	if err := f.errs[url]; err != nil {
		return nil, err
	}
	return f.bodies[url], nil
}

func (f *fakeFetcher) FetchWithHeaders(ctx context.Context, url string, _ map[string]string) ([]byte, error) {
	return f.Fetch(ctx, url)
}

type mapCache struct {
	mu      sync.Mutex
	entries map[string][]byte
}

func newMapCache() *mapCache { return &mapCache{entries: map[string][]byte{}} }

func (c *mapCache) Get(_ context.Context, url string) ([]byte, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	body, ok := c.entries[url]
	return body, ok, nil
}

func (c *mapCache) Set(_ context.Context, url string, body []byte, _ time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[url] = body
	return nil
}

func docsEntity(id, slug, docsURL string) model.Entity {
	return model.Entity{
		ID:      id,
		Slug:    slug,
		Name:    slug,
		DocsURL: docsURL,
		Status:  model.StatusActive,
	}
}

func newTestMiner(st *fakeStore, f *fakeFetcher, cache Cache) *Miner {
	return New(st, f, cache, NewHeuristicExtractor(DefaultTaxonomy()), Options{Concurrency: 2})
}

func TestRun_DocsHeuristics(t *testing.T) {
	e := docsEntity("e1", "acme-files", "https://docs.acme.dev/mcp")
	st := newFakeStore(e)
	fetcher := newFakeFetcher()
	fetcher.bodies[e.DocsURL] = []byte("Authentication uses OAuth 2.0. Audit logs are available.")

	result, err := newTestMiner(st, fetcher, nil).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, result.Processed)

	require.Len(t, st.evidence, 1)
	for _, item := range st.evidence {
		assert.Equal(t, model.EvidenceDocs, item.Kind)
		assert.Equal(t, 2, item.Confidence)
		assert.Equal(t, "heuristic-v1", item.ParserVersion)
	}

	auth := st.claimsByType("e1", model.ClaimAuthModel)
	require.Len(t, auth, 1)
	assert.Equal(t, "OAuthOIDC", auth[0].StringValue())
	assert.Equal(t, 2, auth[0].Confidence)
	assert.Len(t, st.claimsByType("e1", model.ClaimAuditLogging), 1)
}

func TestRun_NoMatchLowConfidenceNoClaims(t *testing.T) {
	e := docsEntity("e1", "plain", "https://docs.example.com")
	st := newFakeStore(e)
	fetcher := newFakeFetcher()
	fetcher.bodies[e.DocsURL] = []byte("a weather server")

	_, err := newTestMiner(st, fetcher, nil).Run(context.Background())
	require.NoError(t, err)

	require.Len(t, st.evidence, 1)
	for _, item := range st.evidence {
		assert.Equal(t, 1, item.Confidence)
	}
	assert.Empty(t, st.claims)
}

func TestRun_SecondRunIsNoOp(t *testing.T) {
	e := docsEntity("e1", "acme-files", "https://docs.acme.dev/mcp")
	st := newFakeStore(e)
	fetcher := newFakeFetcher()
	fetcher.bodies[e.DocsURL] = []byte("OAuth 2.0")

	m := newTestMiner(st, fetcher, nil)
	_, err := m.Run(context.Background())
	require.NoError(t, err)
	require.Len(t, st.evidence, 1)
	firstClaims := len(st.claims)

	result, err := m.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, result.Skipped)
	assert.Len(t, st.evidence, 1, "existing (entity, url) evidence skips the fetch")
	assert.Len(t, st.claims, firstClaims)
	assert.Equal(t, 1, fetcher.calls[e.DocsURL])
}

func TestRun_ManifestClaimsConfidence3(t *testing.T) {
	manifest := json.RawMessage(`{
		"name": "acme-files",
		"auth": {"type": "oauth2", "token_ttl_seconds": 900},
		"remotes": [{"type": "streamable-http", "url": "https://mcp.acme.dev"}]
	}`)
	e := model.Entity{
		ID: "e1", Slug: "acme-files", Status: model.StatusActive,
		Metadata: model.EntityMetadata{ManifestHash: "obs1"},
	}
	st := newFakeStore(e)
	st.observations["obs1"] = &model.RawObservation{
		ContentHash: "obs1",
		SourceURL:   "https://registry.modelcontextprotocol.io/v0/servers",
		Manifest:    manifest,
	}

	result, err := newTestMiner(st, newFakeFetcher(), nil).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, result.Processed)

	require.Len(t, st.evidence, 1)
	for _, item := range st.evidence {
		assert.Equal(t, model.EvidenceConfig, item.Kind)
		assert.Equal(t, 3, item.Confidence)
		assert.Equal(t, manifestParserVersion, item.ParserVersion)
	}

	auth := st.claimsByType("e1", model.ClaimAuthModel)
	require.Len(t, auth, 1)
	assert.Equal(t, 3, auth[0].Confidence)
	ttl := st.claimsByType("e1", model.ClaimTokenTTL)
	require.Len(t, ttl, 1)
	assert.Equal(t, "900s", ttl[0].StringValue())
}

func TestRun_FetchFailureIsolated(t *testing.T) {
	bad := docsEntity("e1", "bad", "https://docs.bad.example")
	good := docsEntity("e2", "good", "https://docs.good.example")
	st := newFakeStore(bad, good)
	fetcher := newFakeFetcher()
	fetcher.errs[bad.DocsURL] = assert.AnError
	fetcher.bodies[good.DocsURL] = []byte("OAuth 2.0")

	result, err := newTestMiner(st, fetcher, nil).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, result.Failed)
	assert.Equal(t, 1, result.Processed)
	assert.Len(t, st.evidence, 1, "good entity still mined")
}

func TestRun_CacheAvoidsRefetch(t *testing.T) {
	shared := "https://docs.shared.example/security"
	a := docsEntity("e1", "a", shared)
	b := docsEntity("e2", "b", shared)
	st := newFakeStore(a, b)
	fetcher := newFakeFetcher()
	fetcher.bodies[shared] = []byte("OAuth 2.0")

	m := New(st, fetcher, newMapCache(), NewHeuristicExtractor(DefaultTaxonomy()),
		Options{Concurrency: 1})
	_, err := m.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, fetcher.calls[shared], "second entity served from cache")
	assert.Len(t, st.evidence, 2)
}

func TestRefreshPopularity(t *testing.T) {
	e := model.Entity{
		ID: "e1", Slug: "acme-files", Status: model.StatusActive,
		RepoURL: "https://github.com/acme/files-mcp",
	}
	st := newFakeStore(e)
	fetcher := newFakeFetcher()
	fetcher.bodies["https://api.github.com/repos/acme/files-mcp"] =
		[]byte(`{"stargazers_count": 420, "forks_count": 17, "subscribers_count": 9}`)
	fetcher.bodies[e.RepoURL] = []byte("readme")

	_, err := newTestMiner(st, fetcher, nil).Run(context.Background())
	require.NoError(t, err)

	md, ok := st.metadata["e1"]
	require.True(t, ok)
	require.NotNil(t, md.Popularity)
	assert.Equal(t, 420, md.Popularity.Stars)
	assert.Equal(t, 17, md.Popularity.Forks)
	assert.Equal(t, 9, md.Popularity.Watchers)
	assert.Equal(t, "github.com", md.Popularity.Host)
}

func TestRefreshPopularity_24hGate(t *testing.T) {
	e := model.Entity{
		ID: "e1", Slug: "acme-files", Status: model.StatusActive,
		RepoURL: "https://github.com/acme/files-mcp",
		Metadata: model.EntityMetadata{Popularity: &model.PopularitySignal{
			Stars:       400,
			Host:        "github.com",
			RefreshedAt: time.Now().UTC().Add(-1 * time.Hour),
		}},
	}
	st := newFakeStore(e)
	fetcher := newFakeFetcher()

	m := newTestMiner(st, fetcher, nil)
	refreshed, err := m.refreshPopularity(context.Background(), &e)
	require.NoError(t, err)
	assert.False(t, refreshed)
	assert.Zero(t, fetcher.calls["https://api.github.com/repos/acme/files-mcp"])

	// A stale signal refreshes again.
	e.Metadata.Popularity.RefreshedAt = time.Now().UTC().Add(-25 * time.Hour)
	fetcher.bodies["https://api.github.com/repos/acme/files-mcp"] = []byte(`{"stargazers_count": 500}`)
	refreshed, err = m.refreshPopularity(context.Background(), &e)
	require.NoError(t, err)
	assert.True(t, refreshed)
	assert.Equal(t, 500, e.Metadata.Popularity.Stars)
}

func TestRefreshPopularity_NonGitHubSkipped(t *testing.T) {
	e := model.Entity{
		ID: "e1", Slug: "x", Status: model.StatusActive,
		RepoURL: "https://gitlab.example.com/acme/files",
	}
	m := newTestMiner(newFakeStore(), newFakeFetcher(), nil)
	refreshed, err := m.refreshPopularity(context.Background(), &e)
	require.NoError(t, err)
	assert.False(t, refreshed)
}
