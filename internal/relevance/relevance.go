// Package relevance implements the cheap lexical link-following filter
// described for the Relevance Scorer (C4): a pure function over anchor
// text and URL that the Focused Crawler uses to decide whether to follow a
// link at all, before any fetch or classification cost is paid.
package relevance

import "strings"

var streamingKeywords = []string{"stream", "watch", "live"}
var sportsKeywords = []string{"sport", "nfl", "nba", "mlb", "nhl", "soccer", "football", "ufc", "boxing"}
var negativeKeywords = []string{"privacy", "terms", "contact", "about", "dmca", "legal", "cookie"}

// Score implements spec §4.4's formula: positive weight for streaming and
// sports keywords in anchor text (+0.3 / +0.2) and URL (+0.2 / +0.15), a
// small bonus for the {live, stream, watch} triad appearing in the URL,
// and a 0.5 penalty per negative-indicator keyword found in either. The
// result is clamped to [0, 1] and is a pure function of its inputs: the
// same (anchorText, url) pair always yields the same score.
func Score(anchorText, url string) float64 {
	anchor := strings.ToLower(anchorText)
	u := strings.ToLower(url)

	var score float64
	for _, kw := range streamingKeywords {
		if strings.Contains(anchor, kw) {
			score += 0.3
		}
		if strings.Contains(u, kw) {
			score += 0.2
		}
	}
	for _, kw := range sportsKeywords {
		if strings.Contains(anchor, kw) {
			score += 0.2
		}
		if strings.Contains(u, kw) {
			score += 0.15
		}
	}

	triadHits := 0
	for _, kw := range []string{"live", "stream", "watch"} {
		if strings.Contains(u, kw) {
			triadHits++
		}
	}
	if triadHits >= 2 {
		score += 0.1
	}

	for _, kw := range negativeKeywords {
		if strings.Contains(anchor, kw) || strings.Contains(u, kw) {
			score -= 0.5
		}
	}

	return clamp01(score)
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
