package scout

import (
	"encoding/json"

	"github.com/rotisserie/eris"

	"github.com/radarworks/mcp-radar/internal/model"
)

// Item is one parsed listing: the normalized candidate plus, for manifest
// feeds, the native manifest verbatim.
type Item struct {
	Candidate model.ObservedCandidate
	Manifest  json.RawMessage
}

// Source parses one feed's body into candidate listings. Fetching, hashing,
// and dedup stay in the Scout so every adapter gets the ETag short-circuit
// for free.
type Source interface {
	Name() string
	URL() string
	Parse(body []byte) ([]Item, error)
}

// registrySource parses a structured manifest feed: a JSON object whose
// "servers" array holds native MCP server manifests. Each manifest is kept
// verbatim on the observation so the Evidence Miner can extract confidence-3
// claims from it later.
type registrySource struct {
	spec SourceSpec
}

func (r *registrySource) Name() string { return r.spec.Name }
func (r *registrySource) URL() string  { return r.spec.URL }

type registryFeed struct {
	Servers []json.RawMessage `json:"servers"`
}

type registryManifest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	WebsiteURL  string `json:"website_url"`
	Repository  struct {
		URL string `json:"url"`
	} `json:"repository"`
	Remotes []struct {
		Type string `json:"type"`
		URL  string `json:"url"`
	} `json:"remotes"`
	Packages []struct {
		RegistryType string `json:"registry_type"`
		Identifier   string `json:"identifier"`
	} `json:"packages"`
	Publisher struct {
		Name string `json:"name"`
	} `json:"publisher"`
}

func (r *registrySource) Parse(body []byte) ([]Item, error) {
	var feed registryFeed
	if err := json.Unmarshal(body, &feed); err != nil {
		return nil, eris.Wrapf(err, "scout: parse registry feed %s", r.spec.Name)
	}

	items := make([]Item, 0, len(feed.Servers))
	for _, raw := range feed.Servers {
		var m registryManifest
		if err := json.Unmarshal(raw, &m); err != nil {
			return nil, eris.Wrapf(err, "scout: parse registry manifest in %s", r.spec.Name)
		}

		c := model.ObservedCandidate{
			Name:        m.Name,
			RepoURL:     m.Repository.URL,
			DocsURL:     m.WebsiteURL,
			Publisher:   m.Publisher.Name,
			Description: m.Description,
		}
		if len(m.Remotes) > 0 {
			c.Endpoint = m.Remotes[0].URL
			c.Transport = m.Remotes[0].Type
		}
		if len(m.Packages) > 0 {
			c.PackageRef = m.Packages[0].RegistryType + ":" + m.Packages[0].Identifier
		}

		items = append(items, Item{Candidate: c, Manifest: raw})
	}
	return items, nil
}
