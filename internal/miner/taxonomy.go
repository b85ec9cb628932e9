package miner

import (
	"os"
	"regexp"
	"strings"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/radarworks/mcp-radar/internal/model"
)

// Finding is one typed fact matched in artifact text.
type Finding struct {
	Type  model.ClaimType
	Value string
}

// ClaimExtractor extracts typed claims from fetched artifact text. The
// version string is recorded on every evidence item it produces, so a
// taxonomy change is visible in the data.
type ClaimExtractor interface {
	Version() string
	Extract(text string) []Finding
}

// Rule maps one pattern to a claim type and canonical value. Within a claim
// type, rules are tried in order and the first match wins.
type Rule struct {
	Claim   model.ClaimType `yaml:"claim"`
	Value   string          `yaml:"value"`
	Pattern string          `yaml:"pattern"`

	re *regexp.Regexp
}

// Taxonomy is a versioned rule set. The default ships in code; deployments
// can override it with a YAML file.
type Taxonomy struct {
	Version string `yaml:"version"`
	Rules   []Rule `yaml:"rules"`
}

// DefaultTaxonomy returns the built-in rule set.
func DefaultTaxonomy() *Taxonomy {
	t := &Taxonomy{
		Version: "heuristic-v1",
		Rules: []Rule{
			{Claim: model.ClaimAuthModel, Value: "OAuthOIDC", Pattern: `oauth|openid connect|\boidc\b`},
			{Claim: model.ClaimAuthModel, Value: "MTLS", Pattern: `mutual tls|\bmtls\b`},
			{Claim: model.ClaimAuthModel, Value: "APIKey", Pattern: `api[ -]?key|bearer token|personal access token`},
			{Claim: model.ClaimAuthModel, Value: "None", Pattern: `no auth(entication)? (is )?required|unauthenticated access`},

			{Claim: model.ClaimHostingCustody, Value: "SelfHosted", Pattern: `self[ -]?host|on[ -]?prem|run locally|docker compose`},
			{Claim: model.ClaimHostingCustody, Value: "VendorHosted", Pattern: `fully managed|hosted service|managed cloud|\bsaas\b`},

			{Claim: model.ClaimToolCapabilities, Value: "WriteCapable", Pattern: `write access|can modify|delete files|execute commands|shell access`},
			{Claim: model.ClaimToolCapabilities, Value: "ReadOnly", Pattern: `read[ -]?only|no write access`},

			{Claim: model.ClaimTokenTTL, Value: "ShortLived", Pattern: `short[ -]?lived token|token(s)? expire|refresh token`},
			{Claim: model.ClaimScopes, Value: "Scoped", Pattern: `scoped (access|token)|least privilege|granular permission|fine[ -]?grained`},

			{Claim: model.ClaimAuditLogging, Value: "Available", Pattern: `audit log|audit trail|activity log`},
			{Claim: model.ClaimDataRetention, Value: "Documented", Pattern: `data retention|retention period|retained for`},
			{Claim: model.ClaimDataDeletion, Value: "Documented", Pattern: `data deletion|right to erasure|delete your data`},
			{Claim: model.ClaimResidency, Value: "Documented", Pattern: `data residency|eu[ -]?region|data locality`},
			{Claim: model.ClaimEncryption, Value: "AtRestAndTransit", Pattern: `encrypt(ed|ion) at rest|aes-256|tls 1\.[23]`},
			{Claim: model.ClaimSBOM, Value: "Published", Pattern: `\bsbom\b|software bill of materials|cyclonedx|spdx`},
			{Claim: model.ClaimSigning, Value: "Signed", Pattern: `signed release|sigstore|cosign|code signing|provenance attestation`},
			{Claim: model.ClaimVulnDisclosure, Value: "Published", Pattern: `security\.md|vulnerability disclosure|responsible disclosure|security policy|\bcve\b`},
			{Claim: model.ClaimIRPolicy, Value: "Published", Pattern: `incident response|security incident|status page|incident report`},
		},
	}
	if err := t.Compile(); err != nil {
		// Built-in patterns are covered by tests; a bad one is a programming error.
		panic(err)
	}
	return t
}

// LoadTaxonomy reads a rule set from a YAML file and compiles it.
func LoadTaxonomy(path string) (*Taxonomy, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "miner: read taxonomy %s", path)
	}

	var t Taxonomy
	if err := yaml.Unmarshal(raw, &t); err != nil {
		return nil, eris.Wrapf(err, "miner: parse taxonomy %s", path)
	}
	if t.Version == "" {
		return nil, eris.Errorf("miner: taxonomy %s: version is required", path)
	}
	if err := t.Compile(); err != nil {
		return nil, err
	}
	return &t, nil
}

// Compile validates claim types and compiles every pattern.
func (t *Taxonomy) Compile() error {
	known := make(map[model.ClaimType]bool, len(model.AllClaimTypes))
	for _, ct := range model.AllClaimTypes {
		known[ct] = true
	}

	for i := range t.Rules {
		r := &t.Rules[i]
		if !known[r.Claim] {
			return eris.Errorf("miner: taxonomy %s: unknown claim type %q", t.Version, r.Claim)
		}
		re, err := regexp.Compile(r.Pattern)
		if err != nil {
			return eris.Wrapf(err, "miner: taxonomy %s: compile pattern for %s", t.Version, r.Claim)
		}
		r.re = re
	}
	return nil
}

// heuristicExtractor runs the taxonomy over lowercased text. At most one
// finding per claim type; rule order decides ties.
type heuristicExtractor struct {
	tax *Taxonomy
}

// NewHeuristicExtractor wraps a compiled taxonomy as a ClaimExtractor.
func NewHeuristicExtractor(t *Taxonomy) ClaimExtractor {
	return &heuristicExtractor{tax: t}
}

func (h *heuristicExtractor) Version() string { return h.tax.Version }

func (h *heuristicExtractor) Extract(text string) []Finding {
	lowered := strings.ToLower(text)

	var findings []Finding
	matched := make(map[model.ClaimType]bool)
	for _, r := range h.tax.Rules {
		if matched[r.Claim] {
			continue
		}
		if r.re.MatchString(lowered) {
			matched[r.Claim] = true
			findings = append(findings, Finding{Type: r.Claim, Value: r.Value})
		}
	}
	return findings
}
