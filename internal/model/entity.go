package model

import "time"

// EntityStatus is the lifecycle state of a canonical entity.
type EntityStatus string

const (
	StatusActive     EntityStatus = "active"
	StatusDeprecated EntityStatus = "deprecated"
	StatusUnknown    EntityStatus = "unknown"
)

// Deployment classifies how a server is run.
type Deployment string

const (
	DeploymentRemote  Deployment = "remote"  // hosted endpoint only
	DeploymentLocal   Deployment = "local"   // packaged artifact only
	DeploymentHybrid  Deployment = "hybrid"  // both
	DeploymentUnknown Deployment = "unknown"
)

// DeriveDeployment maps the presence of a remote endpoint and a packaged
// artifact descriptor to a deployment class.
func DeriveDeployment(hasEndpoint, hasPackage bool) Deployment {
	switch {
	case hasEndpoint && hasPackage:
		return DeploymentHybrid
	case hasEndpoint:
		return DeploymentRemote
	case hasPackage:
		return DeploymentLocal
	default:
		return DeploymentUnknown
	}
}

// ProvenanceClass describes where an observation came from, derived from the
// source URL pattern.
type ProvenanceClass string

const (
	ProvenanceOfficialRegistry ProvenanceClass = "official_registry"
	ProvenanceMarketplace      ProvenanceClass = "marketplace"
	ProvenanceCommunityList    ProvenanceClass = "community_list"
)

// Provider is the owning organization/publisher of one or more entities.
type Provider struct {
	ID        string    `json:"id"` // hash of normalized legal name + domain
	Name      string    `json:"name"`
	Domain    string    `json:"domain,omitempty"`
	Kind      string    `json:"kind,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// PopularitySignal holds lightweight code-host popularity counts harvested by
// the Evidence Miner, embedded in the entity metadata blob.
type PopularitySignal struct {
	Stars       int       `json:"stars"`
	Forks       int       `json:"forks"`
	Watchers    int       `json:"watchers"`
	Host        string    `json:"host"`
	RefreshedAt time.Time `json:"refreshed_at"`
}

// EntityMetadata is the typed shape of the entity metadata blob.
type EntityMetadata struct {
	Publisher   string            `json:"publisher,omitempty"`
	Description string            `json:"description,omitempty"`
	Transport   string            `json:"transport,omitempty"`
	Provenance  ProvenanceClass   `json:"provenance,omitempty"`
	SourceName  string            `json:"source_name,omitempty"`
	// ManifestHash points back at the raw observation carrying this
	// entity's native manifest, when the source exposed one.
	ManifestHash string            `json:"manifest_hash,omitempty"`
	Popularity   *PopularitySignal `json:"popularity,omitempty"`
}

// Entity is a canonical, deduplicated server record. The ID is a pure
// function of identifying URLs/name (see EntityID); re-observing the same
// server always yields the same row.
type Entity struct {
	ID          string         `json:"id"`
	Slug        string         `json:"slug"`
	Name        string         `json:"name"`
	ProviderID  string         `json:"provider_id,omitempty"`
	Deployment  Deployment     `json:"deployment"`
	AuthModel   string         `json:"auth_model,omitempty"`
	ToolAgency  string         `json:"tool_agency,omitempty"`
	RepoURL     string         `json:"repo_url,omitempty"`
	DocsURL     string         `json:"docs_url,omitempty"`
	Endpoint    string         `json:"endpoint,omitempty"`
	Status      EntityStatus   `json:"status"`
	Metadata    EntityMetadata `json:"metadata"`
	FirstSeenAt time.Time      `json:"first_seen_at"`
	LastSeenAt  time.Time      `json:"last_seen_at"`
}
