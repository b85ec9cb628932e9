package model

import (
	"encoding/json"
	"time"
)

// EvidenceKind is the artifact class backing a set of claims.
type EvidenceKind string

const (
	EvidenceDocs        EvidenceKind = "docs"
	EvidenceRepo        EvidenceKind = "repo"
	EvidenceConfig      EvidenceKind = "config"
	EvidenceReport      EvidenceKind = "report"
	EvidenceAttestation EvidenceKind = "attestation"
)

// ClaimType is the closed taxonomy of facts the miner can extract.
type ClaimType string

const (
	ClaimAuthModel        ClaimType = "auth_model"
	ClaimHostingCustody   ClaimType = "hosting_custody"
	ClaimToolCapabilities ClaimType = "tool_capabilities"
	ClaimTokenTTL         ClaimType = "token_ttl"
	ClaimScopes           ClaimType = "scopes"
	ClaimAuditLogging     ClaimType = "audit_logging"
	ClaimDataRetention    ClaimType = "data_retention"
	ClaimDataDeletion     ClaimType = "data_deletion"
	ClaimResidency        ClaimType = "residency"
	ClaimEncryption       ClaimType = "encryption"
	ClaimSBOM             ClaimType = "sbom"
	ClaimSigning          ClaimType = "signing"
	ClaimVulnDisclosure   ClaimType = "vuln_disclosure"
	ClaimIRPolicy         ClaimType = "ir_policy"
)

// AllClaimTypes lists the taxonomy in a stable order.
var AllClaimTypes = []ClaimType{
	ClaimAuthModel, ClaimHostingCustody, ClaimToolCapabilities,
	ClaimTokenTTL, ClaimScopes, ClaimAuditLogging,
	ClaimDataRetention, ClaimDataDeletion, ClaimResidency,
	ClaimEncryption, ClaimSBOM, ClaimSigning,
	ClaimVulnDisclosure, ClaimIRPolicy,
}

// EvidenceItem is one fetched artifact backing claims about an entity.
// Immutable once written; the id is content-derived so re-mining the same
// artifact is a no-op insert.
type EvidenceItem struct {
	ID            string       `json:"id"` // hash(entity_id | source_url | content_hash)
	EntityID      string       `json:"entity_id"`
	Kind          EvidenceKind `json:"kind"`
	SourceURL     string       `json:"source_url"`
	ContentHash   string       `json:"content_hash"`
	Confidence    int          `json:"confidence"` // 1-3
	ParserVersion string       `json:"parser_version"`
	CapturedAt    time.Time    `json:"captured_at"`
}

// ExtractedClaim is one typed fact derived from an evidence item. Re-running
// extraction over the same evidence overwrites value and confidence in place
// (the id depends only on evidence id + claim type).
type ExtractedClaim struct {
	ID          string          `json:"id"` // hash(evidence_id | claim_type)
	EvidenceID  string          `json:"evidence_id"`
	EntityID    string          `json:"entity_id"`
	Type        ClaimType       `json:"type"`
	Value       json.RawMessage `json:"value"`
	Confidence  int             `json:"confidence"` // 1-3
	SourceURL   string          `json:"source_url"`
	ExtractedAt time.Time       `json:"extracted_at"`
}

// ClaimValue renders a plain-string claim payload.
func ClaimValue(s string) json.RawMessage {
	b, _ := json.Marshal(s)
	return b
}

// StringValue decodes a plain-string claim payload; returns "" for non-string
// payloads.
func (c ExtractedClaim) StringValue() string {
	var s string
	if err := json.Unmarshal(c.Value, &s); err != nil {
		return ""
	}
	return s
}
