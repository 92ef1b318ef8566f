// Package verifytech implements the Technical Verifier (C8): three
// deterministic sub-probes (reachability, content analysis, DOM
// fingerprint) combined into a single composite confidence score. Unlike
// the Cognitive Analyzer, this stage never calls an LLM — every signal is
// a keyword or structural match against the fetched page.
package verifytech

import (
	"context"
	"regexp"
	"strings"

	"golang.org/x/net/html"

	"github.com/elliotttmiller/signalscout/internal/extract"
	"github.com/elliotttmiller/signalscout/internal/fetch"
)

// Result is the tagged outcome of the full verification pipeline.
type Result struct {
	Reachable        bool
	StatusCode       int
	FinalURL         string
	ContentScore     int
	ContentIndicators []string
	DOMScore         int
	DOMIndicators    []string
	Composite        int
	Title            string
	Error            string
}

var streamingKeywordWeights = map[string]int{
	"stream": 25, "watch": 25, "live": 20, "movie": 20, "tv": 20,
	"sport": 20, "free": 15, "online": 15, "hd": 10, "video": 15,
	"player": 15, "schedule": 20, "games": 15, "nfl": 15, "nba": 15,
	"soccer": 15, "football": 15, "nhl": 15, "mlb": 15, "ufc": 15,
	"boxing": 15, "tennis": 15, "basketball": 15,
}

var streamingPatterns = []*regexp.Regexp{
	regexp.MustCompile(`live\s+stream`),
	regexp.MustCompile(`watch\s+online`),
	regexp.MustCompile(`free\s+stream`),
	regexp.MustCompile(`hd\s+quality`),
	regexp.MustCompile(`no\s+ads`),
	regexp.MustCompile(`schedule`),
	regexp.MustCompile(`fixtures`),
}

var streamingIDClassValues = []string{
	"player", "video-player", "stream", "live-stream", "schedule",
	"games", "matches", "fixtures", "video-container", "player-container",
}

var streamingScriptPatterns = []string{
	"player", "video", "stream", "jwplayer", "hls", "videojs", "flowplayer", "plyr", "m3u8",
}

var streamingMetaPatterns = []string{
	`property="og:video"`, `property="twitter:player"`,
	`name="twitter:player"`, `property="video"`,
}

var platformIndicators = []string{
	"jwplayer", "videojs", "hls.js", "dashjs", "flowplayer", "plyr", "clappr", "video.js", "bitmovin",
}

// Verify runs the full C8 pipeline against the given URL using client to
// fetch it. AdmissionThreshold governs nothing here — callers compare
// Result.Composite against their own threshold (default 50 per §4.8).
func Verify(ctx context.Context, client *fetch.Fetcher, rawURL string) Result {
	res := client.Fetch(ctx, rawURL)
	if res.Err != nil || res.StatusCode < 200 || res.StatusCode >= 400 {
		r := Result{Reachable: false, StatusCode: res.StatusCode, FinalURL: res.FinalURL, Composite: 0}
		if res.Err != nil {
			r.Error = res.Err.Error()
		}
		return r
	}

	content, contentIndicators, title := analyzeContent(res.Body)
	domScore, domIndicators := fingerprintDOM(res.Body)

	composite := 10
	composite += int(0.25 * float64(content))
	composite += int(0.65 * float64(domScore))

	bonus := 0
	if len(contentIndicators) > 5 {
		bonus += 10
	}
	if containsPrefix(domIndicators, "video_tags") {
		bonus += 15
	}
	if contains(domIndicators, "streaming_iframe") {
		bonus += 10
	}
	composite += bonus
	if composite > 100 {
		composite = 100
	}
	if composite < 0 {
		composite = 0
	}

	return Result{
		Reachable:         true,
		StatusCode:        res.StatusCode,
		FinalURL:          res.FinalURL,
		ContentScore:      content,
		ContentIndicators: contentIndicators,
		DOMScore:          domScore,
		DOMIndicators:     domIndicators,
		Composite:         composite,
		Title:             title,
	}
}

// analyzeContent scores title + meta-description keyword hits, per spec
// §4.8's content-analysis sub-probe.
func analyzeContent(rawHTML string) (int, []string, string) {
	extracted := extract.FromHTML([]byte(rawHTML))
	doc, err := html.Parse(strings.NewReader(rawHTML))
	metaDescription := ""
	if err == nil && doc != nil {
		metaDescription = findMetaDescription(doc)
	}
	title := extracted.Title
	contentText := strings.ToLower(title + " " + metaDescription)

	score := 10
	var indicators []string
	for kw, weight := range streamingKeywordWeights {
		if strings.Contains(contentText, kw) {
			indicators = append(indicators, "keyword_"+kw)
			score += weight
		}
	}
	if len(indicators) > 3 {
		score += 15
	}
	if len(indicators) > 6 {
		score += 10
	}
	for _, pattern := range streamingPatterns {
		if pattern.MatchString(contentText) {
			indicators = append(indicators, "pattern_"+pattern.String())
			score += 10
		}
	}
	return score, indicators, title
}

// fingerprintDOM scores structural streaming indicators, the
// highest-weighted signal per spec §4.8.
func fingerprintDOM(rawHTML string) (int, []string) {
	doc, err := html.Parse(strings.NewReader(rawHTML))
	if err != nil || doc == nil {
		return 0, nil
	}

	var indicators []string
	score := 0

	videoCount := countTag(doc, "video")
	if videoCount > 0 {
		indicators = append(indicators, "video_tags")
		score += 40
	}

	iframeSrcs := collectAttr(doc, "iframe", "src")
	if len(iframeSrcs) > 0 {
		indicators = append(indicators, "iframes")
		score += 35
		for _, src := range iframeSrcs {
			srcLower := strings.ToLower(src)
			if containsAnySubstring(srcLower, []string{"player", "stream", "video", "embed", "jwplayer"}) {
				indicators = append(indicators, "streaming_iframe")
				score += 25
				break
			}
		}
	}

	ids := collectAttr(doc, "div", "id")
	classes := collectAttrTokens(doc, "div", "class")
	for _, v := range streamingIDClassValues {
		if contains(ids, v) {
			indicators = append(indicators, "id_"+v)
			score += 15
		}
		if contains(classes, v) {
			indicators = append(indicators, "class_"+v)
			score += 15
		}
	}

	scripts := collectText(doc, "script")
	seenScriptPattern := map[string]bool{}
	for _, s := range scripts {
		sl := strings.ToLower(s)
		for _, pattern := range streamingScriptPatterns {
			if strings.Contains(sl, pattern) && !seenScriptPattern[pattern] {
				indicators = append(indicators, "streaming_script_"+pattern)
				score += 20
				seenScriptPattern[pattern] = true
				break
			}
		}
	}

	for _, c := range classes {
		if strings.Contains(strings.ToLower(c), "schedule") {
			indicators = append(indicators, "schedule_div")
			score += 25
			break
		}
	}
	tableClasses := collectAttrTokens(doc, "table", "class")
	for _, c := range tableClasses {
		cl := strings.ToLower(c)
		if strings.Contains(cl, "games") || strings.Contains(cl, "matches") || strings.Contains(cl, "fixtures") {
			indicators = append(indicators, "games_table")
			score += 25
			break
		}
	}

	lowerHTML := strings.ToLower(rawHTML)
	for _, pattern := range streamingMetaPatterns {
		if strings.Contains(lowerHTML, strings.ToLower(pattern)) {
			parts := strings.Split(pattern, "=")
			name := parts[0]
			if i := strings.LastIndex(name, ":"); i >= 0 {
				name = name[i+1:]
			}
			indicators = append(indicators, "meta_"+name)
			score += 15
		}
	}

	for _, p := range platformIndicators {
		if strings.Contains(lowerHTML, p) {
			indicators = append(indicators, "platform_"+p)
			score += 10
		}
	}

	return score, indicators
}

func findMetaDescription(n *html.Node) string {
	var result string
	var walk func(*html.Node)
	walk = func(cur *html.Node) {
		if result != "" {
			return
		}
		if cur.Type == html.ElementNode && strings.EqualFold(cur.Data, "meta") {
			isDescription := false
			content := ""
			for _, attr := range cur.Attr {
				if strings.EqualFold(attr.Key, "name") && strings.EqualFold(attr.Val, "description") {
					isDescription = true
				}
				if strings.EqualFold(attr.Key, "content") {
					content = attr.Val
				}
			}
			if isDescription {
				result = content
				return
			}
		}
		for c := cur.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
			if result != "" {
				return
			}
		}
	}
	walk(n)
	return result
}

func countTag(n *html.Node, tag string) int {
	count := 0
	var walk func(*html.Node)
	walk = func(cur *html.Node) {
		if cur.Type == html.ElementNode && strings.EqualFold(cur.Data, tag) {
			count++
		}
		for c := cur.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return count
}

func collectAttr(n *html.Node, tag, attrName string) []string {
	var out []string
	var walk func(*html.Node)
	walk = func(cur *html.Node) {
		if cur.Type == html.ElementNode && strings.EqualFold(cur.Data, tag) {
			for _, attr := range cur.Attr {
				if strings.EqualFold(attr.Key, attrName) {
					out = append(out, attr.Val)
				}
			}
		}
		for c := cur.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return out
}

func collectAttrTokens(n *html.Node, tag, attrName string) []string {
	var out []string
	for _, v := range collectAttr(n, tag, attrName) {
		out = append(out, strings.Fields(v)...)
	}
	return out
}

func collectText(n *html.Node, tag string) []string {
	var out []string
	var walk func(*html.Node)
	walk = func(cur *html.Node) {
		if cur.Type == html.ElementNode && strings.EqualFold(cur.Data, tag) {
			for c := cur.FirstChild; c != nil; c = c.NextSibling {
				if c.Type == html.TextNode {
					out = append(out, c.Data)
				}
			}
		}
		for c := cur.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return out
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}

func containsPrefix(list []string, prefix string) bool {
	for _, s := range list {
		if strings.HasPrefix(s, prefix) {
			return true
		}
	}
	return false
}

func containsAnySubstring(s string, needles []string) bool {
	for _, n := range needles {
		if strings.Contains(s, n) {
			return true
		}
	}
	return false
}
