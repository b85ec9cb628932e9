// Package scorer turns an entity's evidence and claims into an append-only
// trust assessment. The rubric lives in this file as a pure library so tests
// can exercise it without a store.
package scorer

import (
	"encoding/json"
	"time"

	"github.com/rotisserie/eris"

	"github.com/radarworks/mcp-radar/internal/model"
)

// MethodologyVersion is recorded on every snapshot so scores produced by
// different rubric revisions are distinguishable.
const MethodologyVersion = "rubric-v1"

// staleEvidenceAge is the capture age beyond which evidence earns a
// stale-evidence risk flag.
const staleEvidenceAge = 180 * 24 * time.Hour

// Weights holds the per-domain weights of the aggregate score. They must
// sum to 1.
type Weights struct {
	Authentication float64
	Authorization  float64
	DataProtection float64
	AuditLogging   float64
	Operational    float64
	Compliance     float64
}

// DefaultWeights returns the shipped weighting.
func DefaultWeights() Weights {
	return Weights{
		Authentication: 0.20,
		Authorization:  0.20,
		DataProtection: 0.20,
		AuditLogging:   0.15,
		Operational:    0.15,
		Compliance:     0.10,
	}
}

func (w Weights) byDomain() map[model.ScoreDomain]float64 {
	return map[model.ScoreDomain]float64{
		model.DomainAuthentication: w.Authentication,
		model.DomainAuthorization:  w.Authorization,
		model.DomainDataProtection: w.DataProtection,
		model.DomainAuditLogging:   w.AuditLogging,
		model.DomainOperational:    w.Operational,
		model.DomainCompliance:     w.Compliance,
	}
}

// Assessment is the rubric's full output for one entity.
type Assessment struct {
	Domains            map[model.ScoreDomain]float64
	TrustScore         float64
	Tier               model.Tier
	EnterpriseFit      model.EnterpriseFit
	EvidenceConfidence int
	FailFastFlags      []string
	RiskFlags          []string
	Explain            json.RawMessage
}

// explainEntry is one claim's contribution to a domain, kept in the
// snapshot's explainability payload.
type explainEntry struct {
	Claim      model.ClaimType `json:"claim"`
	Value      string          `json:"value"`
	Confidence int             `json:"confidence"`
	Points     float64         `json:"points"`
}

type explainPayload struct {
	Methodology string                               `json:"methodology"`
	Domains     map[model.ScoreDomain][]explainEntry `json:"domains,omitempty"`
	Weights     map[model.ScoreDomain]float64        `json:"weights"`
	FailFast    []string                             `json:"fail_fast,omitempty"`
}

// Assess scores one entity from its evidence and claims.
func Assess(evidence []model.EvidenceItem, claims []model.ExtractedClaim, w Weights, now time.Time) (*Assessment, error) {
	best := bestClaims(claims)

	a := &Assessment{
		Domains:            map[model.ScoreDomain]float64{},
		EvidenceConfidence: evidenceConfidence(evidence),
	}
	for _, d := range model.ScoreDomains {
		a.Domains[d] = 0
	}

	// Fail-fast disqualifiers: tier D, score 0, no domain computation.
	auth, hasAuth := best[model.ClaimAuthModel]
	if !hasAuth {
		a.FailFastFlags = append(a.FailFastFlags, model.FlagNoAuthModel)
	} else if auth.StringValue() == "None" && auth.Confidence >= 2 {
		a.FailFastFlags = append(a.FailFastFlags, model.FlagPlaintextAuth)
	}
	if len(a.FailFastFlags) > 0 {
		a.Tier = model.TierD
		a.EnterpriseFit = model.FitExperimental
		explain, err := json.Marshal(explainPayload{
			Methodology: MethodologyVersion,
			Weights:     w.byDomain(),
			FailFast:    a.FailFastFlags,
		})
		if err != nil {
			return nil, eris.Wrap(err, "scorer: marshal explain")
		}
		a.Explain = explain
		return a, nil
	}

	contrib := map[model.ScoreDomain][]explainEntry{}
	for _, d := range model.ScoreDomains {
		score, entries := domainScore(d, best)
		a.Domains[d] = score
		if len(entries) > 0 {
			contrib[d] = entries
		}
	}

	weights := w.byDomain()
	for _, d := range model.ScoreDomains {
		a.TrustScore += weights[d] * a.Domains[d]
	}
	a.TrustScore *= 20
	a.Tier = model.TierFor(a.TrustScore)

	switch {
	case a.Tier == model.TierA && a.EvidenceConfidence >= 2:
		a.EnterpriseFit = model.FitRegulated
	case a.Tier == model.TierA || a.Tier == model.TierB:
		a.EnterpriseFit = model.FitStandard
	default:
		a.EnterpriseFit = model.FitExperimental
	}

	a.RiskFlags = riskFlags(a.Domains, best, evidence, now)

	explain, err := json.Marshal(explainPayload{
		Methodology: MethodologyVersion,
		Domains:     contrib,
		Weights:     weights,
	})
	if err != nil {
		return nil, eris.Wrap(err, "scorer: marshal explain")
	}
	a.Explain = explain
	return a, nil
}

// bestClaims keeps the highest-confidence claim per type.
func bestClaims(claims []model.ExtractedClaim) map[model.ClaimType]model.ExtractedClaim {
	best := make(map[model.ClaimType]model.ExtractedClaim, len(claims))
	for _, c := range claims {
		if cur, ok := best[c.Type]; !ok || c.Confidence > cur.Confidence {
			best[c.Type] = c
		}
	}
	return best
}

// evidenceConfidence is the 0-3 tier of the strongest evidence class
// present: a validated attestation pack, any verifiable artifact, public
// docs only, or nothing.
func evidenceConfidence(evidence []model.EvidenceItem) int {
	conf := 0
	for _, item := range evidence {
		switch item.Kind {
		case model.EvidenceAttestation:
			if item.Confidence >= 3 {
				return 3
			}
		case model.EvidenceRepo, model.EvidenceConfig, model.EvidenceReport:
			if item.Confidence >= 2 && conf < 2 {
				conf = 2
			}
		case model.EvidenceDocs:
			if conf < 1 {
				conf = 1
			}
		}
	}
	return conf
}

// strength scales a claim's base points by its confidence tier. Higher
// confidence never scores lower.
func strength(confidence int) float64 {
	switch {
	case confidence >= 3:
		return 1.0
	case confidence == 2:
		return 0.8
	default:
		return 0.4
	}
}

// domainPoints lists the contributing claim types per domain with their base
// points. A domain's subscore is the strength-scaled sum, capped at 5.
var domainPoints = map[model.ScoreDomain]map[model.ClaimType]float64{
	model.DomainAuthentication: {
		model.ClaimAuthModel: 5, // base, further scaled by auth model value
	},
	model.DomainAuthorization: {
		model.ClaimScopes:   3,
		model.ClaimTokenTTL: 2,
	},
	model.DomainDataProtection: {
		model.ClaimEncryption:    2.5,
		model.ClaimDataRetention: 1.25,
		model.ClaimDataDeletion:  1.25,
	},
	model.DomainAuditLogging: {
		model.ClaimAuditLogging: 5,
	},
	model.DomainOperational: {
		model.ClaimSigning:        2,
		model.ClaimSBOM:           1.5,
		model.ClaimVulnDisclosure: 1.5,
	},
	model.DomainCompliance: {
		model.ClaimResidency:      2,
		model.ClaimIRPolicy:       2,
		model.ClaimHostingCustody: 1,
	},
}

// authModelValueFactor scales authentication points by how strong the
// declared model is.
func authModelValueFactor(value string) float64 {
	switch value {
	case "OAuthOIDC", "MTLS":
		return 1.0
	case "APIKey":
		return 0.6
	case "Other":
		return 0.4
	default: // includes "None", though that fail-fasts before scoring
		return 0
	}
}

func domainScore(d model.ScoreDomain, best map[model.ClaimType]model.ExtractedClaim) (float64, []explainEntry) {
	var score float64
	var entries []explainEntry

	for claimType, base := range domainPoints[d] {
		c, ok := best[claimType]
		if !ok {
			continue
		}
		points := base * strength(c.Confidence)
		if claimType == model.ClaimAuthModel {
			points *= authModelValueFactor(c.StringValue())
		}
		if points == 0 {
			continue
		}
		score += points
		entries = append(entries, explainEntry{
			Claim:      claimType,
			Value:      c.StringValue(),
			Confidence: c.Confidence,
			Points:     points,
		})
	}

	if score > 5 {
		score = 5
	}
	return score, entries
}

func riskFlags(domains map[model.ScoreDomain]float64, best map[model.ClaimType]model.ExtractedClaim, evidence []model.EvidenceItem, now time.Time) []string {
	var flags []string

	if domains[model.DomainAuthentication] < 2.5 {
		flags = append(flags, model.RiskLowAuthScore)
	}
	if _, ok := best[model.ClaimAuditLogging]; !ok {
		flags = append(flags, model.RiskNoAuditLogging)
	}
	if len(evidence) > 0 {
		newest := evidence[0].CapturedAt
		for _, item := range evidence[1:] {
			if item.CapturedAt.After(newest) {
				newest = item.CapturedAt
			}
		}
		if now.Sub(newest) > staleEvidenceAge {
			flags = append(flags, model.RiskStaleEvidence)
		}
	}

	return flags
}
