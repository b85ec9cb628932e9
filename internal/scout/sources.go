package scout

import (
	"os"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

// SourceKind selects the adapter used to parse a feed.
type SourceKind string

const (
	KindRegistry SourceKind = "registry" // structured manifest feed (MCP registry JSON)
	KindCatalog  SourceKind = "catalog"  // generic JSON listing with field mapping
)

// FieldMap maps candidate fields to top-level keys of a catalog item.
// Only Name is required; unmapped fields stay empty.
type FieldMap struct {
	Name        string `yaml:"name"`
	RepoURL     string `yaml:"repo_url"`
	Endpoint    string `yaml:"endpoint"`
	DocsURL     string `yaml:"docs_url"`
	Publisher   string `yaml:"publisher"`
	Description string `yaml:"description"`
	Transport   string `yaml:"transport"`
	PackageRef  string `yaml:"package_ref"`
}

// SourceSpec is one entry of the sources.yaml registry.
type SourceSpec struct {
	Name string     `yaml:"name"`
	Kind SourceKind `yaml:"kind"`
	URL  string     `yaml:"url"`
	// ItemsKey names the JSON key holding the listing array for catalog
	// sources; empty means the body itself is the array.
	ItemsKey string   `yaml:"items_key"`
	Fields   FieldMap `yaml:"fields"`
}

type sourcesFile struct {
	Sources []SourceSpec `yaml:"sources"`
}

// LoadSources reads and validates the source registry file.
func LoadSources(path string) ([]SourceSpec, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "scout: read sources file %s", path)
	}

	var f sourcesFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, eris.Wrapf(err, "scout: parse sources file %s", path)
	}
	if len(f.Sources) == 0 {
		return nil, eris.Errorf("scout: no sources defined in %s", path)
	}

	seen := make(map[string]bool, len(f.Sources))
	for i, s := range f.Sources {
		if s.Name == "" || s.URL == "" {
			return nil, eris.Errorf("scout: source %d: name and url are required", i)
		}
		if seen[s.Name] {
			return nil, eris.Errorf("scout: duplicate source name %q", s.Name)
		}
		seen[s.Name] = true

		switch s.Kind {
		case KindRegistry:
		case KindCatalog:
			if s.Fields.Name == "" {
				return nil, eris.Errorf("scout: catalog source %q: fields.name is required", s.Name)
			}
		default:
			return nil, eris.Errorf("scout: source %q: unknown kind %q", s.Name, s.Kind)
		}
	}

	return f.Sources, nil
}

// BuildSources turns validated specs into source adapters.
func BuildSources(specs []SourceSpec) []Source {
	out := make([]Source, 0, len(specs))
	for _, s := range specs {
		switch s.Kind {
		case KindRegistry:
			out = append(out, &registrySource{spec: s})
		case KindCatalog:
			out = append(out, &catalogSource{spec: s})
		}
	}
	return out
}
