package miner

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"time"

	"github.com/rotisserie/eris"

	"github.com/radarworks/mcp-radar/internal/model"
)

// popularityRefreshWindow is the minimum interval between popularity
// refreshes per entity.
const popularityRefreshWindow = 24 * time.Hour

var githubRepoPattern = regexp.MustCompile(`github\.com/([^/]+)/([^/?#]+)`)

type githubRepo struct {
	StargazersCount  int `json:"stargazers_count"`
	ForksCount       int `json:"forks_count"`
	SubscribersCount int `json:"subscribers_count"`
}

// refreshPopularity harvests star/fork/watch counts for entities whose repo
// lives on a known code host, at most once per window per entity. Returns
// whether a refresh happened.
func (m *Miner) refreshPopularity(ctx context.Context, e *model.Entity) (bool, error) {
	if pop := e.Metadata.Popularity; pop != nil &&
		time.Since(pop.RefreshedAt) < popularityRefreshWindow {
		return false, nil
	}

	match := githubRepoPattern.FindStringSubmatch(model.NormalizeRepoURL(e.RepoURL))
	if match == nil {
		return false, nil
	}
	owner, repo := match[1], match[2]

	apiURL := fmt.Sprintf("https://api.github.com/repos/%s/%s", owner, repo)
	headers := map[string]string{"Accept": "application/vnd.github+json"}
	if m.opts.GitHubToken != "" {
		headers["Authorization"] = "Bearer " + m.opts.GitHubToken
	}

	body, err := m.fetcher.FetchWithHeaders(ctx, apiURL, headers)
	if err != nil {
		return false, eris.Wrapf(err, "miner: fetch popularity for %s/%s", owner, repo)
	}

	var gh githubRepo
	if err := json.Unmarshal(body, &gh); err != nil {
		return false, eris.Wrapf(err, "miner: parse popularity for %s/%s", owner, repo)
	}

	md := e.Metadata
	md.Popularity = &model.PopularitySignal{
		Stars:       gh.StargazersCount,
		Forks:       gh.ForksCount,
		Watchers:    gh.SubscribersCount,
		Host:        "github.com",
		RefreshedAt: time.Now().UTC(),
	}
	if err := m.store.UpdateEntityMetadata(ctx, e.ID, md); err != nil {
		return false, eris.Wrapf(err, "miner: save popularity for %s", e.Slug)
	}
	e.Metadata = md
	return true, nil
}
