package model

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"unicode"

	"github.com/rotisserie/eris"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Every id in the pipeline is a pure function of its identifying inputs.
// Re-observing, re-mining, or re-diffing the same inputs must reproduce the
// same id, which is what makes every stage's writes idempotent.

// HashString returns the lowercase hex sha256 of s.
func HashString(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}

// ContentHash hashes the canonical (key-sorted) JSON encoding of a raw JSON
// payload. Two payloads with the same fields in different order hash equal.
func ContentHash(raw json.RawMessage) (string, error) {
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return "", eris.Wrap(err, "model: content hash: decode payload")
	}
	// encoding/json writes map keys in sorted order.
	canonical, err := json.Marshal(v)
	if err != nil {
		return "", eris.Wrap(err, "model: content hash: canonicalize")
	}
	return HashString(string(canonical)), nil
}

// NormalizeRepoURL canonicalizes a repository URL for identity derivation:
// lowercase, https scheme, no www., no trailing slash or .git suffix.
func NormalizeRepoURL(raw string) string {
	s := strings.TrimSpace(strings.ToLower(raw))
	if s == "" {
		return ""
	}
	s = strings.TrimPrefix(s, "http://")
	s = strings.TrimPrefix(s, "https://")
	s = strings.TrimPrefix(s, "www.")
	s = strings.TrimSuffix(s, "/")
	s = strings.TrimSuffix(s, ".git")
	return "https://" + s
}

// EndpointHost extracts the lowercase host from an endpoint URL. Returns ""
// when the endpoint does not parse or has no host.
func EndpointHost(endpoint string) string {
	s := strings.TrimSpace(endpoint)
	if s == "" {
		return ""
	}
	if !strings.Contains(s, "://") {
		s = "https://" + s
	}
	u, err := url.Parse(s)
	if err != nil || u.Host == "" {
		return ""
	}
	return strings.ToLower(u.Host)
}

// EntityIdentityKey derives the canonical identity key for a candidate using
// strict precedence: repo URL, then endpoint host, then docs URL, then
// name|source. The second return names which field won, for review logging.
func EntityIdentityKey(c ObservedCandidate, sourceName string) (key string, basis string) {
	if repo := NormalizeRepoURL(c.RepoURL); repo != "" {
		return repo, "repo_url"
	}
	if host := EndpointHost(c.Endpoint); host != "" {
		return host, "endpoint"
	}
	if docs := NormalizeRepoURL(c.DocsURL); docs != "" {
		return docs, "docs_url"
	}
	return fmt.Sprintf("%s|%s", foldName(c.Name), strings.ToLower(sourceName)), "name_source"
}

// EntityID is the canonical entity id for a candidate.
func EntityID(c ObservedCandidate, sourceName string) string {
	key, _ := EntityIdentityKey(c, sourceName)
	return HashString(key)
}

// ProviderID derives a provider id from the normalized legal name and primary
// domain.
func ProviderID(name, domain string) string {
	return HashString(foldName(name) + "|" + strings.ToLower(strings.TrimSpace(domain)))
}

// EvidenceID derives an evidence item id from entity, source URL, and content
// hash.
func EvidenceID(entityID, sourceURL, contentHash string) string {
	return HashString(entityID + "|" + sourceURL + "|" + contentHash)
}

// ClaimID derives a claim id from its evidence item and claim type, so
// re-extraction of the same evidence overwrites rather than duplicates.
func ClaimID(evidenceID string, t ClaimType) string {
	return HashString(evidenceID + "|" + string(t))
}

// DriftID derives a drift event id. The anchor is the current snapshot id
// (or, for evidence-count events, the evidence count pair), which pins the
// event to one comparison so reruns cannot duplicate it.
func DriftID(entityID string, t DriftType, anchor string, delta float64) string {
	return HashString(fmt.Sprintf("%s|%s|%s|%.4f", entityID, t, anchor, delta))
}

var slugStrip = regexp.MustCompile(`[^a-z0-9]+`)

// Slugify turns a display name into a URL-safe slug: diacritics folded,
// non-alphanumerics collapsed to single hyphens.
func Slugify(name string) string {
	s := foldName(name)
	s = slugStrip.ReplaceAllString(s, "-")
	return strings.Trim(s, "-")
}

// foldName lowercases and strips diacritics so that "Café" and "Cafe" derive
// the same identity key.
func foldName(name string) string {
	t := transform.Chain(norm.NFKD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, strings.TrimSpace(name))
	if err != nil {
		folded = strings.TrimSpace(name)
	}
	return strings.ToLower(folded)
}
