// Package feature implements the fixed-schema feature extraction described
// for the Feature Extractor (C5): technical, content-density, structural,
// URL, and meta features derived from rendered HTML and its URL. Ordering
// is stable (Names()) because it must be persisted alongside the trained
// model: adding a feature requires retraining (spec §4.5).
package feature

import (
	"net/url"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/text/cases"
	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/text/transform"

	"github.com/elliotttmiller/signalscout/internal/extract"
)

// foldCaser performs full Unicode case folding rather than plain ASCII
// lowercasing, so keyword matching behaves on non-Latin scripts the same
// way it does on English mirrors.
var foldCaser = cases.Fold()

func fold(s string) string { return foldCaser.String(s) }

// sportsKeywords mirrors the Python classifier's keyword list so the
// trained artifact's feature_names line up with this extractor's output.
var sportsKeywords = []string{
	"live", "stream", "watch", "nfl", "nba", "nhl", "mlb", "soccer",
	"football", "basketball", "hockey", "baseball", "sports", "game",
	"match", "playoff", "championship", "league", "team", "score",
	"highlights", "replay", "broadcast", "free", "online", "tv",
	"channel", "video", "player", "espn", "fox", "cbs", "nbc",
}

var streamingIndicators = []string{
	"video", "player", "stream", "embed", "iframe", "jwplayer",
	"videojs", "hls", "m3u8", "rtmp", "dash", "mp4",
}

// Vector is a fixed-schema, ordered feature mapping. The classifier
// consumes Values() in Names() order; it never inspects the map directly
// so ordering mismatches are structurally impossible.
type Vector struct {
	values map[string]float64
}

// Names returns the stable, ordered feature schema. Persisted alongside
// the trained model per spec §4.5.
func Names() []string {
	names := []string{
		"has_video_tag", "has_iframe", "iframe_count", "has_embed", "has_object",
		"has_jwplayer", "has_videojs", "has_hls_reference", "has_streaming_js",
	}
	for _, kw := range sportsKeywords {
		names = append(names, "keyword_density_"+kw)
	}
	names = append(names,
		"total_sports_keyword_density",
		"link_count", "external_link_count", "dom_depth", "html_byte_size",
		"text_to_html_ratio", "script_count", "stylesheet_count", "title_length",
		"url_has_sports_keyword", "url_has_stream_keyword", "domain_length", "path_depth",
		"title_has_sports_keyword", "meta_description_has_sports_keyword",
	)
	return names
}

// Value returns the named feature, or 0 if absent.
func (v Vector) Value(name string) float64 { return v.values[name] }

// Values returns the feature values in Names() order.
func (v Vector) Values() []float64 {
	names := Names()
	out := make([]float64, len(names))
	for i, n := range names {
		out[i] = v.values[n]
	}
	return out
}

// Extract builds a Vector from rendered HTML and the page URL, per spec
// §4.5's five feature categories.
func Extract(rawHTML string, pageURL string) Vector {
	v := map[string]float64{}
	rawHTML = decodeCharset(rawHTML)
	doc, err := html.Parse(strings.NewReader(rawHTML))
	if err != nil || doc == nil {
		return Vector{values: v}
	}

	counts := countTags(doc)
	extracted := extract.FromHTML([]byte(rawHTML))
	textLower := fold(extracted.Text)
	title := extracted.Title
	metaDescription := findMetaDescription(doc)

	// Technical DNA.
	v["has_video_tag"] = boolF(counts["video"] > 0)
	v["has_iframe"] = boolF(counts["iframe"] > 0)
	v["iframe_count"] = float64(counts["iframe"])
	v["has_embed"] = boolF(counts["embed"] > 0)
	v["has_object"] = boolF(counts["object"] > 0)
	v["has_jwplayer"] = boolF(strings.Contains(textLower, "jwplayer"))
	v["has_videojs"] = boolF(strings.Contains(textLower, "video.js") || strings.Contains(textLower, "videojs"))
	v["has_hls_reference"] = boolF(strings.Contains(textLower, "m3u8") || strings.Contains(textLower, "hls"))
	hasStreamingJS := false
	for _, ind := range streamingIndicators {
		if strings.Contains(textLower, ind) {
			hasStreamingJS = true
			break
		}
	}
	v["has_streaming_js"] = boolF(hasStreamingJS)

	// Content DNA: per-keyword density plus overall density.
	totalWords := len(strings.Fields(textLower))
	denom := totalWords
	if denom == 0 {
		denom = 1
	}
	totalHits := 0
	for _, kw := range sportsKeywords {
		hits := strings.Count(textLower, kw)
		totalHits += hits
		key := "keyword_density_" + kw
		if totalWords > 0 {
			v[key] = float64(hits) / float64(denom)
		} else {
			v[key] = 0
		}
	}
	v["total_sports_keyword_density"] = float64(totalHits) / float64(denom)

	// Structural DNA.
	host := ""
	if u, err := url.Parse(pageURL); err == nil {
		host = u.Hostname()
	}
	v["link_count"] = float64(counts["a"])
	v["external_link_count"] = float64(countExternalLinks(doc, host))
	v["dom_depth"] = float64(domDepth(doc))
	v["html_byte_size"] = float64(len(rawHTML))
	if len(rawHTML) > 0 {
		v["text_to_html_ratio"] = float64(len(textLower)) / float64(len(rawHTML))
	}
	v["script_count"] = float64(counts["script"])
	v["stylesheet_count"] = float64(counts["link"]) // <link rel=stylesheet> approximated by all <link>
	v["title_length"] = float64(len(title))

	// URL features.
	urlLower := fold(pageURL)
	v["url_has_sports_keyword"] = boolF(containsAny(urlLower, sportsKeywords))
	v["url_has_stream_keyword"] = boolF(containsAny(urlLower, []string{"stream", "live", "watch", "tv"}))
	v["domain_length"] = float64(len(host))
	if u, err := url.Parse(pageURL); err == nil {
		depth := 0
		for _, seg := range strings.Split(u.Path, "/") {
			if seg != "" {
				depth++
			}
		}
		v["path_depth"] = float64(depth)
	}

	// Meta features.
	v["title_has_sports_keyword"] = boolF(containsAny(fold(title), sportsKeywords))
	v["meta_description_has_sports_keyword"] = boolF(containsAny(fold(metaDescription), sportsKeywords))

	return Vector{values: v}
}

// decodeCharset re-decodes rawHTML to UTF-8 when it declares a non-UTF-8
// charset in a <meta charset> or Content-Type meta tag. Sports-streaming
// mirrors are frequently served from non-English-speaking hosting and use
// legacy encodings (windows-1251, iso-8859-1); without this, keyword
// density features silently read as zero on those pages because none of
// the UTF-8 keyword bytes are present in the raw response.
func decodeCharset(rawHTML string) string {
	name := declaredCharset(rawHTML)
	if name == "" || strings.EqualFold(name, "utf-8") {
		return rawHTML
	}
	enc, err := htmlindex.Get(name)
	if err != nil {
		return rawHTML
	}
	decoded, _, err := transform.String(enc.NewDecoder(), rawHTML)
	if err != nil {
		return rawHTML
	}
	return decoded
}

// declaredCharset extracts the charset token from a charset= attribute in
// the first couple KB of the document, mirroring how browsers sniff it
// without a full HTML parse.
func declaredCharset(rawHTML string) string {
	head := rawHTML
	if len(head) > 2048 {
		head = head[:2048]
	}
	lower := strings.ToLower(head)
	idx := strings.Index(lower, "charset=")
	if idx == -1 {
		return ""
	}
	rest := strings.TrimLeft(lower[idx+len("charset="):], `"' `)
	end := strings.IndexAny(rest, "\"' >;")
	if end == -1 {
		end = len(rest)
	}
	return strings.TrimSpace(rest[:end])
}

func boolF(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

func containsAny(s string, needles []string) bool {
	for _, n := range needles {
		if strings.Contains(s, n) {
			return true
		}
	}
	return false
}

func countTags(n *html.Node) map[string]int {
	counts := map[string]int{}
	var walk func(*html.Node)
	walk = func(cur *html.Node) {
		if cur.Type == html.ElementNode {
			counts[strings.ToLower(cur.Data)]++
		}
		for c := cur.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return counts
}

func domDepth(n *html.Node) int {
	var walk func(*html.Node, int) int
	walk = func(cur *html.Node, depth int) int {
		max := depth
		for c := cur.FirstChild; c != nil; c = c.NextSibling {
			if d := walk(c, depth+1); d > max {
				max = d
			}
		}
		return max
	}
	return walk(n, 0)
}

func countExternalLinks(n *html.Node, host string) int {
	count := 0
	var walk func(*html.Node)
	walk = func(cur *html.Node) {
		if cur.Type == html.ElementNode && strings.EqualFold(cur.Data, "a") {
			for _, attr := range cur.Attr {
				if strings.EqualFold(attr.Key, "href") {
					if u, err := url.Parse(attr.Val); err == nil && u.Host != "" && !strings.EqualFold(u.Hostname(), host) {
						count++
					}
				}
			}
		}
		for c := cur.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return count
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
