package scorer

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/radarworks/mcp-radar/internal/model"
)

func claim(t model.ClaimType, value string, confidence int) model.ExtractedClaim {
	return model.ExtractedClaim{
		ID:         string(t) + "-test",
		Type:       t,
		Value:      model.ClaimValue(value),
		Confidence: confidence,
	}
}

func fullClaimSet(confidence int) []model.ExtractedClaim {
	return []model.ExtractedClaim{
		claim(model.ClaimAuthModel, "OAuthOIDC", confidence),
		claim(model.ClaimScopes, "Scoped", confidence),
		claim(model.ClaimTokenTTL, "ShortLived", confidence),
		claim(model.ClaimEncryption, "AtRestAndTransit", confidence),
		claim(model.ClaimDataRetention, "Documented", confidence),
		claim(model.ClaimDataDeletion, "Documented", confidence),
		claim(model.ClaimAuditLogging, "Available", confidence),
		claim(model.ClaimSigning, "Signed", confidence),
		claim(model.ClaimSBOM, "Published", confidence),
		claim(model.ClaimVulnDisclosure, "Published", confidence),
		claim(model.ClaimResidency, "Documented", confidence),
		claim(model.ClaimIRPolicy, "Published", confidence),
		claim(model.ClaimHostingCustody, "VendorHosted", confidence),
	}
}

func evidenceItem(kind model.EvidenceKind, confidence int, capturedAt time.Time) model.EvidenceItem {
	return model.EvidenceItem{
		ID:         string(kind) + "-test",
		Kind:       kind,
		Confidence: confidence,
		CapturedAt: capturedAt,
	}
}

func TestAssess_NoAuthClaimFailFast(t *testing.T) {
	a, err := Assess(nil, nil, DefaultWeights(), time.Now())
	require.NoError(t, err)

	assert.Contains(t, a.FailFastFlags, model.FlagNoAuthModel)
	assert.Equal(t, model.TierD, a.Tier)
	assert.Zero(t, a.TrustScore)
	assert.Equal(t, model.FitExperimental, a.EnterpriseFit)
	for _, d := range model.ScoreDomains {
		assert.Zero(t, a.Domains[d], "fail-fast skips domain computation")
	}
}

func TestAssess_DeclaredNoAuthFailFast(t *testing.T) {
	claims := []model.ExtractedClaim{claim(model.ClaimAuthModel, "None", 3)}
	a, err := Assess(nil, claims, DefaultWeights(), time.Now())
	require.NoError(t, err)

	assert.Contains(t, a.FailFastFlags, model.FlagPlaintextAuth)
	assert.Equal(t, model.TierD, a.Tier)
	assert.Zero(t, a.TrustScore)
}

func TestAssess_LowConfidenceNoneDoesNotFailFast(t *testing.T) {
	// A heuristic-only "None" match is too weak to disqualify outright.
	claims := []model.ExtractedClaim{claim(model.ClaimAuthModel, "None", 1)}
	a, err := Assess(nil, claims, DefaultWeights(), time.Now())
	require.NoError(t, err)

	assert.Empty(t, a.FailFastFlags)
	assert.Zero(t, a.Domains[model.DomainAuthentication])
	assert.Equal(t, model.TierD, a.Tier)
}

func TestAssess_FullClaimsTierA(t *testing.T) {
	now := time.Now().UTC()
	evidence := []model.EvidenceItem{
		evidenceItem(model.EvidenceAttestation, 3, now),
	}

	a, err := Assess(evidence, fullClaimSet(3), DefaultWeights(), now)
	require.NoError(t, err)

	for _, d := range model.ScoreDomains {
		assert.InDelta(t, 5.0, a.Domains[d], 0.001, string(d))
	}
	assert.InDelta(t, 100.0, a.TrustScore, 0.001)
	assert.Equal(t, model.TierA, a.Tier)
	assert.Equal(t, 3, a.EvidenceConfidence)
	assert.Equal(t, model.FitRegulated, a.EnterpriseFit)
	assert.Empty(t, a.FailFastFlags)
	assert.Empty(t, a.RiskFlags)
	assert.NotEmpty(t, a.Explain)
}

func TestAssess_ConfidenceMonotonicity(t *testing.T) {
	for _, ct := range []model.ClaimType{
		model.ClaimScopes, model.ClaimEncryption, model.ClaimAuditLogging,
	} {
		var prev float64 = -1
		for conf := 1; conf <= 3; conf++ {
			claims := []model.ExtractedClaim{
				claim(model.ClaimAuthModel, "OAuthOIDC", 2),
				claim(ct, "X", conf),
			}
			a, err := Assess(nil, claims, DefaultWeights(), time.Now())
			require.NoError(t, err)

			var total float64
			for _, d := range model.ScoreDomains {
				total += a.Domains[d]
			}
			assert.GreaterOrEqual(t, total, prev,
				"raising %s confidence to %d must not lower any subscore", ct, conf)
			prev = total
		}
	}
}

func TestAssess_AuthModelValueOrdering(t *testing.T) {
	score := func(value string) float64 {
		claims := []model.ExtractedClaim{claim(model.ClaimAuthModel, value, 2)}
		a, err := Assess(nil, claims, DefaultWeights(), time.Now())
		require.NoError(t, err)
		return a.Domains[model.DomainAuthentication]
	}

	oauth := score("OAuthOIDC")
	apiKey := score("APIKey")
	other := score("Other")
	assert.Greater(t, oauth, apiKey)
	assert.Greater(t, apiKey, other)
	assert.Greater(t, other, 0.0)
}

func TestEvidenceConfidence(t *testing.T) {
	now := time.Now().UTC()

	assert.Equal(t, 0, evidenceConfidence(nil))
	assert.Equal(t, 1, evidenceConfidence([]model.EvidenceItem{
		evidenceItem(model.EvidenceDocs, 2, now),
	}), "docs alone are never a verifiable artifact")
	assert.Equal(t, 2, evidenceConfidence([]model.EvidenceItem{
		evidenceItem(model.EvidenceDocs, 1, now),
		evidenceItem(model.EvidenceRepo, 2, now),
	}))
	assert.Equal(t, 1, evidenceConfidence([]model.EvidenceItem{
		evidenceItem(model.EvidenceRepo, 1, now),
		evidenceItem(model.EvidenceDocs, 1, now),
	}), "low-confidence repo capture does not clear the bar")
	assert.Equal(t, 3, evidenceConfidence([]model.EvidenceItem{
		evidenceItem(model.EvidenceAttestation, 3, now),
	}))
}

func TestAssess_RiskFlags(t *testing.T) {
	now := time.Now().UTC()
	// Weak auth model, no audit logging, evidence captured long ago.
	claims := []model.ExtractedClaim{claim(model.ClaimAuthModel, "APIKey", 1)}
	evidence := []model.EvidenceItem{
		evidenceItem(model.EvidenceDocs, 1, now.Add(-200*24*time.Hour)),
	}

	a, err := Assess(evidence, claims, DefaultWeights(), now)
	require.NoError(t, err)

	assert.Contains(t, a.RiskFlags, model.RiskLowAuthScore)
	assert.Contains(t, a.RiskFlags, model.RiskNoAuditLogging)
	assert.Contains(t, a.RiskFlags, model.RiskStaleEvidence)
}

func TestAssess_FreshEvidenceNotStale(t *testing.T) {
	now := time.Now().UTC()
	claims := []model.ExtractedClaim{claim(model.ClaimAuthModel, "OAuthOIDC", 3)}
	evidence := []model.EvidenceItem{
		evidenceItem(model.EvidenceDocs, 1, now.Add(-200*24*time.Hour)),
		evidenceItem(model.EvidenceDocs, 1, now.Add(-time.Hour)),
	}

	a, err := Assess(evidence, claims, DefaultWeights(), now)
	require.NoError(t, err)
	assert.NotContains(t, a.RiskFlags, model.RiskStaleEvidence,
		"the newest capture decides staleness")
}

func TestAssess_StandardFitForTierB(t *testing.T) {
	claims := []model.ExtractedClaim{
		claim(model.ClaimAuthModel, "OAuthOIDC", 3),
		claim(model.ClaimScopes, "Scoped", 3),
		claim(model.ClaimTokenTTL, "ShortLived", 3),
		claim(model.ClaimEncryption, "AtRestAndTransit", 3),
		claim(model.ClaimAuditLogging, "Available", 2),
	}
	a, err := Assess(nil, claims, DefaultWeights(), time.Now())
	require.NoError(t, err)

	assert.Equal(t, model.TierB, a.Tier)
	assert.Equal(t, model.FitStandard, a.EnterpriseFit)
}

func TestAssess_DocsOnlyOAuthScenario(t *testing.T) {
	// One docs capture matching OAuth: claim present at confidence 2, no
	// fail-fast, and docs-only evidence stays at confidence tier 1.
	now := time.Now().UTC()
	evidence := []model.EvidenceItem{evidenceItem(model.EvidenceDocs, 2, now)}
	claims := []model.ExtractedClaim{claim(model.ClaimAuthModel, "OAuthOIDC", 2)}

	a, err := Assess(evidence, claims, DefaultWeights(), now)
	require.NoError(t, err)

	assert.Empty(t, a.FailFastFlags)
	assert.Equal(t, 1, a.EvidenceConfidence)
	assert.InDelta(t, 4.0, a.Domains[model.DomainAuthentication], 0.001)
	assert.InDelta(t, 16.0, a.TrustScore, 0.001)
	assert.Equal(t, model.TierD, a.Tier)
}
