package model

import (
	"encoding/json"
	"time"
)

// RawObservation is one fetched listing from one source, stored verbatim.
// Rows are append-only and deduplicated by (source_url, content_hash); the
// Curator flips Processed and never touches anything else.
type RawObservation struct {
	ContentHash string          `json:"content_hash"`
	SourceName  string          `json:"source_name"`
	SourceURL   string          `json:"source_url"`
	Payload     json.RawMessage `json:"payload"`
	Manifest    json.RawMessage `json:"manifest,omitempty"` // native manifest, when the source exposes one
	RetrievedAt time.Time       `json:"retrieved_at"`
	Processed   bool            `json:"processed"`
}

// ObservedCandidate is the normalized view of one listing, parsed out of a
// RawObservation payload. Source adapters produce these; the Curator consumes
// them. Optional fields stay empty rather than nil-pointer dancing — the
// identity derivation treats "" as absent.
type ObservedCandidate struct {
	Name        string `json:"name"`
	RepoURL     string `json:"repo_url,omitempty"`
	Endpoint    string `json:"endpoint,omitempty"`
	DocsURL     string `json:"docs_url,omitempty"`
	Publisher   string `json:"publisher,omitempty"`
	Description string `json:"description,omitempty"`
	Transport   string `json:"transport,omitempty"`
	// PackageRef is set when the listing describes a locally runnable
	// artifact (npm/pip/docker reference).
	PackageRef string `json:"package_ref,omitempty"`
}
