package miner

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/radarworks/mcp-radar/internal/model"
)

// manifestParserVersion is recorded on evidence items produced from native
// manifests.
const manifestParserVersion = "manifest-v1"

// manifestDoc is the subset of a native server manifest the miner reads.
// Unknown fields are ignored.
type manifestDoc struct {
	Auth struct {
		Type            string   `json:"type"`
		TokenTTLSeconds int      `json:"token_ttl_seconds"`
		Scopes          []string `json:"scopes"`
	} `json:"auth"`
	Remotes []struct {
		Type string `json:"type"`
		URL  string `json:"url"`
	} `json:"remotes"`
	Packages []struct {
		RegistryType string `json:"registry_type"`
		Identifier   string `json:"identifier"`
	} `json:"packages"`
	Tools []struct {
		Name string `json:"name"`
	} `json:"tools"`
}

// extractManifestClaims reads structured fields out of a native manifest.
// These are the server's own declarations, so they land at confidence 3.
func extractManifestClaims(manifest json.RawMessage) ([]Finding, error) {
	var doc manifestDoc
	if err := json.Unmarshal(manifest, &doc); err != nil {
		return nil, eris.Wrap(err, "miner: parse native manifest")
	}

	var findings []Finding

	if v := canonicalAuthModel(doc.Auth.Type); v != "" {
		findings = append(findings, Finding{Type: model.ClaimAuthModel, Value: v})
	}
	if doc.Auth.TokenTTLSeconds > 0 {
		findings = append(findings, Finding{
			Type:  model.ClaimTokenTTL,
			Value: fmt.Sprintf("%ds", doc.Auth.TokenTTLSeconds),
		})
	}
	if len(doc.Auth.Scopes) > 0 {
		findings = append(findings, Finding{
			Type:  model.ClaimScopes,
			Value: strings.Join(doc.Auth.Scopes, ","),
		})
	}
	if len(doc.Tools) > 0 {
		names := make([]string, len(doc.Tools))
		for i, tool := range doc.Tools {
			names[i] = tool.Name
		}
		findings = append(findings, Finding{
			Type:  model.ClaimToolCapabilities,
			Value: strings.Join(names, ","),
		})
	}

	switch {
	case len(doc.Remotes) > 0:
		findings = append(findings, Finding{Type: model.ClaimHostingCustody, Value: "VendorHosted"})
	case len(doc.Packages) > 0:
		findings = append(findings, Finding{Type: model.ClaimHostingCustody, Value: "SelfHosted"})
	}

	return findings, nil
}

// canonicalAuthModel maps manifest auth type strings onto the claim
// vocabulary the scorer understands.
func canonicalAuthModel(authType string) string {
	switch strings.ToLower(strings.TrimSpace(authType)) {
	case "":
		return ""
	case "oauth", "oauth2", "oidc", "openid":
		return "OAuthOIDC"
	case "mtls", "mutual_tls":
		return "MTLS"
	case "api_key", "apikey", "bearer", "token":
		return "APIKey"
	case "none":
		return "None"
	default:
		return "Other"
	}
}
