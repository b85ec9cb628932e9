package scout

import (
	"encoding/json"

	"github.com/rotisserie/eris"

	"github.com/radarworks/mcp-radar/internal/model"
)

// catalogSource parses a generic JSON listing using the field mapping from
// sources.yaml. Catalogs carry no native manifests, so Item.Manifest stays
// nil and their claims later cap at heuristic confidence.
type catalogSource struct {
	spec SourceSpec
}

func (c *catalogSource) Name() string { return c.spec.Name }
func (c *catalogSource) URL() string  { return c.spec.URL }

func (c *catalogSource) Parse(body []byte) ([]Item, error) {
	var entries []map[string]json.RawMessage

	if c.spec.ItemsKey != "" {
		var wrapper map[string]json.RawMessage
		if err := json.Unmarshal(body, &wrapper); err != nil {
			return nil, eris.Wrapf(err, "scout: parse catalog feed %s", c.spec.Name)
		}
		inner, ok := wrapper[c.spec.ItemsKey]
		if !ok {
			return nil, eris.Errorf("scout: catalog feed %s: missing key %q", c.spec.Name, c.spec.ItemsKey)
		}
		body = inner
	}
	if err := json.Unmarshal(body, &entries); err != nil {
		return nil, eris.Wrapf(err, "scout: parse catalog items in %s", c.spec.Name)
	}

	f := c.spec.Fields
	items := make([]Item, 0, len(entries))
	for _, entry := range entries {
		cand := model.ObservedCandidate{
			Name:        stringField(entry, f.Name),
			RepoURL:     stringField(entry, f.RepoURL),
			Endpoint:    stringField(entry, f.Endpoint),
			DocsURL:     stringField(entry, f.DocsURL),
			Publisher:   stringField(entry, f.Publisher),
			Description: stringField(entry, f.Description),
			Transport:   stringField(entry, f.Transport),
			PackageRef:  stringField(entry, f.PackageRef),
		}
		items = append(items, Item{Candidate: cand})
	}
	return items, nil
}

// stringField reads one mapped key from a catalog item, tolerating missing
// keys and non-string values.
func stringField(entry map[string]json.RawMessage, key string) string {
	if key == "" {
		return ""
	}
	raw, ok := entry[key]
	if !ok {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return ""
	}
	return s
}
