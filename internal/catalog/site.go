// Package catalog implements the durable site table described in the data
// model: a relational store of candidate streaming sites with lifecycle
// states, confidence, and cognitive enrichment. It is the only component
// permitted to hold the canonical view of a Site at rest.
package catalog

import "time"

// Status is the lifecycle state of a Site row.
type Status string

const (
	StatusActive      Status = "active"
	StatusQuarantined Status = "quarantined"
	StatusInactive    Status = "inactive"
)

// Source tags where a Site was first discovered.
type Source string

const (
	SourceAggregator   Source = "aggregator"
	SourcePermutation  Source = "permutation"
	SourceSearchEngine Source = "search_engine"
	SourceCrawl        Source = "crawl"
	SourceGenesisSeed  Source = "genesis_seed"
	SourceFallback     Source = "fallback"
)

// LLMVerified is a tri-state verdict: unknown until the Cognitive Analyzer
// has actually run for this URL.
type LLMVerified int

const (
	LLMVerifiedUnknown LLMVerified = iota
	LLMVerifiedTrue
	LLMVerifiedFalse
)

// Site is the canonical catalog entity (data model §3).
type Site struct {
	ID               int64
	Name             string
	URL              string
	Source           Source
	LastVerified     time.Time
	ConfidenceScore  int
	IsActive         bool
	Status           Status
	Category         string
	LLMVerified      LLMVerified
	LLMReasoning     string
	FailedAttempts   int
}

// deriveIsActive enforces invariant 1: (status = active) <=> (is_active = true).
func deriveIsActive(s Status) bool {
	return s == StatusActive
}

// ClampConfidence enforces invariant 3: confidence_score in [0, 100].
func ClampConfidence(score int) int {
	if score < 0 {
		return 0
	}
	if score > 100 {
		return 100
	}
	return score
}
