package model

import (
	"encoding/json"
	"time"
)

// Tier is the coarse A-D bucket derived from the aggregate trust score.
type Tier string

const (
	TierA Tier = "A"
	TierB Tier = "B"
	TierC Tier = "C"
	TierD Tier = "D"
)

// TierFor maps an aggregate trust score (0-100) to a tier.
func TierFor(score float64) Tier {
	switch {
	case score >= 80:
		return TierA
	case score >= 60:
		return TierB
	case score >= 40:
		return TierC
	default:
		return TierD
	}
}

// EnterpriseFit is the coarse deployment-suitability class.
type EnterpriseFit string

const (
	FitRegulated    EnterpriseFit = "regulated"
	FitStandard     EnterpriseFit = "standard"
	FitExperimental EnterpriseFit = "experimental"
)

// ScoreDomain names the six scored trust domains D1-D6.
type ScoreDomain string

const (
	DomainAuthentication ScoreDomain = "authentication"
	DomainAuthorization  ScoreDomain = "authorization"
	DomainDataProtection ScoreDomain = "data_protection"
	DomainAuditLogging   ScoreDomain = "audit_logging"
	DomainOperational    ScoreDomain = "operational_security"
	DomainCompliance     ScoreDomain = "compliance"
)

// ScoreDomains lists D1-D6 in weight order.
var ScoreDomains = []ScoreDomain{
	DomainAuthentication, DomainAuthorization, DomainDataProtection,
	DomainAuditLogging, DomainOperational, DomainCompliance,
}

// Fail-fast flags: immediate disqualifiers that force tier D / score 0.
const (
	FlagNoAuthModel   = "no_auth_model"
	FlagPlaintextAuth = "plaintext_auth"
)

// Risk flags: non-disqualifying concerns.
const (
	RiskLowAuthScore   = "low_authentication_score"
	RiskNoAuditLogging = "no_audit_logging"
	RiskStaleEvidence  = "stale_evidence"
)

// ScoreSnapshot is one append-only point-in-time trust assessment.
type ScoreSnapshot struct {
	ID                 string                  `json:"id"`
	EntityID           string                  `json:"entity_id"`
	MethodologyVersion string                  `json:"methodology_version"`
	AssessedAt         time.Time               `json:"assessed_at"`
	Domains            map[ScoreDomain]float64 `json:"domains"`     // 0-5 each
	TrustScore         float64                 `json:"trust_score"` // 0-100
	Tier               Tier                    `json:"tier"`
	EnterpriseFit      EnterpriseFit           `json:"enterprise_fit"`
	EvidenceConfidence int                     `json:"evidence_confidence"` // 0-3
	EvidenceCount      int                     `json:"evidence_count"`
	FailFastFlags      []string                `json:"fail_fast_flags,omitempty"`
	RiskFlags          []string                `json:"risk_flags,omitempty"`
	Explain            json.RawMessage         `json:"explain,omitempty"`
}

// LatestPointer maps an entity to its current snapshot. The Scorer upserts
// into the staging variant; the Publisher promotes staging to stable in one
// transaction.
type LatestPointer struct {
	EntityID  string    `json:"entity_id"`
	ScoreID   string    `json:"score_id"`
	UpdatedAt time.Time `json:"updated_at"`
}
