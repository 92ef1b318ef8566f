package catalog

import (
	"net/url"
	"sort"
	"strings"
)

// trackingParams are stripped during canonicalization, the same list the
// teacher's aggregate.MergeAndNormalize strips from search results.
var trackingParams = []string{
	"utm_source", "utm_medium", "utm_campaign", "utm_term", "utm_content",
	"utm_id", "gclid", "fbclid", "ref", "ref_src",
}

// CanonicalizeURL implements invariant 2: lowercase host, no fragment,
// trailing slash collapsed, tracking query params stripped. It is
// idempotent: CanonicalizeURL(CanonicalizeURL(u)) == CanonicalizeURL(u).
func CanonicalizeURL(raw string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return "", err
	}
	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)
	u.Fragment = ""

	q := u.Query()
	for _, p := range trackingParams {
		q.Del(p)
	}
	// Stable ordering so repeated canonicalization of the same logical URL
	// produces byte-identical query strings.
	keys := make([]string, 0, len(q))
	for k := range q {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	encoded := url.Values{}
	for _, k := range keys {
		for _, v := range q[k] {
			encoded.Add(k, v)
		}
	}
	u.RawQuery = encoded.Encode()

	path := u.Path
	for len(path) > 1 && strings.HasSuffix(path, "/") {
		path = strings.TrimSuffix(path, "/")
	}
	if path == "/" {
		path = ""
	}
	u.Path = path

	return u.String(), nil
}
