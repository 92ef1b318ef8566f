// Package hunt implements the three Hunter strategies (C3): the Aggregator
// hunter (scrapes curated index pages), the Permutation hunter (tests
// base-name x TLD domain combinations), and the Search-engine hunter
// (queries a search Provider). Each runs isolated from the others' faults
// and emits Candidate values that are union-merged by URL.
package hunt

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/rs/zerolog/log"

	"github.com/elliotttmiller/signalscout/internal/catalog"
	"github.com/elliotttmiller/signalscout/internal/fetch"
	"github.com/elliotttmiller/signalscout/internal/search"
)

// Candidate is a discovered URL, which hunter produced it, and the
// confidence bonus that hunter assigned it (aggregator/search: context or
// relevance bonus; permutation: always 0), per spec §3's in-memory
// Candidate shape.
type Candidate struct {
	URL        string
	Source     catalog.Source
	PriorBonus int
}

const maxPriorBonus = 25

var streamingDomainKeywords = []string{
	"stream", "watch", "movie", "tv", "sport", "live", "free", "online", "hd", "east", "surge", "cast",
}

var excludedDomains = []string{
	"google.com", "facebook.com", "twitter.com", "youtube.com", "reddit.com",
	"github.com", "discord.com", "telegram.org", "wikipedia.org", "instagram.com",
	"tiktok.com", "linkedin.com", "amazon.com",
}

// Merge union-merges candidates from multiple hunters by URL, summing
// PriorBonus and capping it at maxPriorBonus, per spec §4.3. When more than
// one hunter surfaces the same URL, the first hunter to report it (in
// groups order) is kept as its Source.
func Merge(groups ...[]Candidate) []Candidate {
	bonusByURL := map[string]int{}
	sourceByURL := map[string]catalog.Source{}
	order := []string{}
	for _, g := range groups {
		for _, c := range g {
			if _, seen := bonusByURL[c.URL]; !seen {
				order = append(order, c.URL)
				sourceByURL[c.URL] = c.Source
			}
			bonusByURL[c.URL] += c.PriorBonus
		}
	}
	out := make([]Candidate, 0, len(order))
	for _, u := range order {
		b := bonusByURL[u]
		if b > maxPriorBonus {
			b = maxPriorBonus
		}
		out = append(out, Candidate{URL: u, Source: sourceByURL[u], PriorBonus: b})
	}
	return out
}

// AggregatorHunter scrapes curated index pages and extracts outbound
// anchors that look like streaming-site links, with a context-derived
// prior_bonus from surrounding ancestor text.
type AggregatorHunter struct {
	Client *fetch.Fetcher
}

// Hunt implements spec §4.3's aggregator strategy. A fetch failure for one
// seed URL is logged and skipped; it never aborts the remaining seeds.
func (h *AggregatorHunter) Hunt(ctx context.Context, seedURLs []string) []Candidate {
	var out []Candidate
	for _, seed := range seedURLs {
		res := h.Client.Fetch(ctx, seed)
		if res.Err != nil {
			log.Warn().Err(res.Err).Str("seed", seed).Msg("aggregator hunter: seed fetch failed")
			continue
		}
		doc, err := goquery.NewDocumentFromReader(strings.NewReader(res.Body))
		if err != nil {
			log.Warn().Err(err).Str("seed", seed).Msg("aggregator hunter: parse failed")
			continue
		}
		doc.Find("a[href]").Each(func(_ int, sel *goquery.Selection) {
			href, _ := sel.Attr("href")
			href = strings.TrimSpace(href)
			if href == "" {
				return
			}
			resolved, ok := resolveHref(seed, href)
			if !ok {
				return
			}
			parsed, err := url.Parse(resolved)
			if err != nil || parsed.Host == "" {
				return
			}
			domain := strings.ToLower(parsed.Host)
			if !containsAny(domain, streamingDomainKeywords) {
				return
			}
			if containsAny(domain, excludedDomains) {
				return
			}
			bonus := analyzeLinkContext(sel)
			out = append(out, Candidate{URL: resolved, Source: catalog.SourceAggregator, PriorBonus: bonus})
		})
	}
	return out
}

func resolveHref(base, href string) (string, bool) {
	if strings.HasPrefix(href, "/") {
		b, err := url.Parse(base)
		if err != nil {
			return "", false
		}
		return b.ResolveReference(&url.URL{Path: href}).String(), true
	}
	if strings.HasPrefix(href, "http://") || strings.HasPrefix(href, "https://") {
		return href, true
	}
	return "", false
}

var positiveContextWords = []string{"working", "best", "recommended", "reliable", "good quality", "updated", "active", "tested", "verified"}

// analyzeLinkContext walks up to 3 ancestor levels inspecting text for
// numeric upvote/score patterns and positive-signal words, capped at 20.
func analyzeLinkContext(sel *goquery.Selection) int {
	bonus := 0
	cur := sel.Parent()
	for i := 0; i < 3 && cur.Length() > 0; i++ {
		text := strings.ToLower(cur.Text())
		if score, ok := extractScore(text); ok {
			switch {
			case score > 100:
				bonus += 20
			case score > 50:
				bonus += 15
			case score > 10:
				bonus += 10
			case score > 0:
				bonus += 5
			}
		}
		for _, w := range positiveContextWords {
			if strings.Contains(text, w) {
				bonus += 5
				break
			}
		}
		cur = cur.Parent()
	}
	if bonus > 20 {
		bonus = 20
	}
	return bonus
}

var scoreKeywords = []string{"upvotes", "upvote", "points", "point", "score:", "rating:", "votes", "vote"}

func extractScore(text string) (int, bool) {
	for _, kw := range scoreKeywords {
		idx := strings.Index(text, kw)
		if idx == -1 {
			continue
		}
		digits := extractPrecedingDigits(text, idx)
		if digits == "" {
			digits = extractFollowingDigits(text, idx+len(kw))
		}
		if digits == "" {
			continue
		}
		if n, err := strconv.Atoi(digits); err == nil {
			return n, true
		}
	}
	return 0, false
}

func extractPrecedingDigits(s string, idx int) string {
	end := idx
	start := end
	for start > 0 && (s[start-1] >= '0' && s[start-1] <= '9') {
		start--
	}
	return strings.TrimSpace(s[start:end])
}

func extractFollowingDigits(s string, idx int) string {
	for idx < len(s) && s[idx] == ' ' {
		idx++
	}
	start := idx
	for idx < len(s) && s[idx] >= '0' && s[idx] <= '9' {
		idx++
	}
	return s[start:idx]
}

func containsAny(s string, needles []string) bool {
	for _, n := range needles {
		if strings.Contains(s, n) {
			return true
		}
	}
	return false
}

// PermutationHunter emits the Cartesian product of base names and TLDs,
// probing each with HEAD and keeping only reachable hosts.
type PermutationHunter struct {
	HTTPClient *http.Client
}

// Hunt implements spec §4.3's permutation strategy. prior_bonus is always 0.
func (h *PermutationHunter) Hunt(ctx context.Context, baseNames, tlds []string) []Candidate {
	client := h.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}
	var out []Candidate
	for _, base := range baseNames {
		for _, tld := range tlds {
			target := "https://" + base + tld
			req, err := http.NewRequestWithContext(ctx, http.MethodHead, target, nil)
			if err != nil {
				continue
			}
			resp, err := client.Do(req)
			if err != nil {
				continue
			}
			resp.Body.Close()
			if resp.StatusCode < 400 {
				out = append(out, Candidate{URL: target, Source: catalog.SourcePermutation, PriorBonus: 0})
			}
		}
	}
	return out
}

// SearchEngineHunter issues natural-language queries through a rate-limited
// search.Provider and classifies results by host/snippet keyword heuristics.
type SearchEngineHunter struct {
	Provider search.Provider
	Limiter  *QueryLimiter
}

var streamingContentKeywords = []string{
	"stream", "watch", "live", "free", "online", "sports", "movie", "tv", "hd", "schedule", "games",
}

var highValueIndicators = []string{"live", "free", "hd", "official", "best"}

// Hunt implements spec §4.3's search-engine strategy. Each query is rate
// limited by Limiter; an individual query failure is logged and skipped.
func (h *SearchEngineHunter) Hunt(ctx context.Context, queries []string) []Candidate {
	var out []Candidate
	for i, q := range queries {
		if i > 0 && h.Limiter != nil {
			h.Limiter.Wait(ctx)
		}
		results, err := h.Provider.Search(ctx, q, 10)
		if err != nil {
			log.Warn().Err(err).Str("query", q).Msg("search-engine hunter: query failed")
			if h.Limiter != nil {
				h.Limiter.OnRateLimited()
			}
			continue
		}
		for pos, r := range results {
			if !isPotentialStreamingSite(r.URL, r.Title, r.Snippet) {
				continue
			}
			out = append(out, Candidate{URL: r.URL, Source: catalog.SourceSearchEngine, PriorBonus: calculateSearchRelevance(pos, r.Title, r.Snippet, q)})
		}
	}
	return out
}

func isPotentialStreamingSite(rawURL, title, snippet string) bool {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	domain := strings.ToLower(parsed.Host)
	domainMatches := containsAny(domain, streamingDomainKeywords)

	contentText := strings.ToLower(title + " " + snippet)
	contentMatches := 0
	for _, kw := range streamingContentKeywords {
		if strings.Contains(contentText, kw) {
			contentMatches++
		}
	}

	if containsAny(domain, excludedDomains) {
		return false
	}
	return domainMatches || contentMatches >= 2
}

func calculateSearchRelevance(position int, title, snippet, searchTerm string) int {
	score := 0
	switch {
	case position == 0:
		score += 10
	case position <= 2:
		score += 8
	case position <= 4:
		score += 5
	default:
		score += 2
	}

	contentText := strings.ToLower(title + " " + snippet)
	for _, w := range strings.Fields(strings.ToLower(searchTerm)) {
		if strings.Contains(contentText, w) {
			score += 2
		}
	}
	for _, ind := range highValueIndicators {
		if strings.Contains(contentText, ind) {
			score += 3
		}
	}
	if score > 25 {
		score = 25
	}
	return score
}
