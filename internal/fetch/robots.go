package fetch

import (
	"bufio"
	"context"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"
)

// Politeness is a minimal robots.txt checker: it fetches and caches
// disallow rules per host and reports whether a URL may be crawled for a
// given user agent. Client consults it before every static request when
// its Robots field is set (engine.New sets it for the shared Fetcher, so
// crawler, hunter and verifier static fetches are all checked); rendered
// fetches through Renderer do not consult it. It is not named in the data model
// because robots compliance is a crawl-politeness concern, not catalog
// state.
type Politeness struct {
	UserAgent  string
	HTTPClient *http.Client
	TTL        time.Duration

	mu    sync.Mutex
	rules map[string]politenessEntry
}

type politenessEntry struct {
	disallow []string
	expiry   time.Time
}

// Allowed reports whether u may be fetched. Network failures fetching
// robots.txt fail open (allowed), matching common crawler practice and
// keeping the Fetcher's own error taxonomy (spec §7) limited to the actual
// target fetch.
func (p *Politeness) Allowed(ctx context.Context, u *url.URL) bool {
	if p == nil || u == nil {
		return true
	}
	host := strings.ToLower(u.Host)
	rules := p.rulesFor(ctx, u.Scheme, host)
	path := u.Path
	if path == "" {
		path = "/"
	}
	for _, d := range rules {
		if d == "" {
			continue
		}
		if strings.HasPrefix(path, d) {
			return false
		}
	}
	return true
}

func (p *Politeness) rulesFor(ctx context.Context, scheme, host string) []string {
	p.mu.Lock()
	if p.rules == nil {
		p.rules = make(map[string]politenessEntry)
	}
	if e, ok := p.rules[host]; ok && time.Now().Before(e.expiry) {
		p.mu.Unlock()
		return e.disallow
	}
	p.mu.Unlock()

	disallow := p.fetchRules(ctx, scheme, host)
	p.mu.Lock()
	ttl := p.TTL
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	p.rules[host] = politenessEntry{disallow: disallow, expiry: time.Now().Add(ttl)}
	p.mu.Unlock()
	return disallow
}

func (p *Politeness) fetchRules(ctx context.Context, scheme, host string) []string {
	client := p.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 3 * time.Second}
	}
	reqCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, scheme+"://"+host+"/robots.txt", nil)
	if err != nil {
		return nil
	}
	if p.UserAgent != "" {
		req.Header.Set("User-Agent", p.UserAgent)
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil
	}
	return parseDisallowForAnyAgent(resp.Body)
}

// parseDisallowForAnyAgent collects Disallow rules under the "*" group only;
// this crawler does not identify as a named bot that sites special-case.
func parseDisallowForAnyAgent(body interface{ Read([]byte) (int, error) }) []string {
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 32*1024), 256*1024)
	var disallow []string
	inStar := false
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		colon := strings.IndexByte(line, ':')
		if colon <= 0 {
			continue
		}
		key := strings.ToLower(strings.TrimSpace(line[:colon]))
		val := strings.TrimSpace(line[colon+1:])
		switch key {
		case "user-agent":
			inStar = val == "*"
		case "disallow":
			if inStar && val != "" {
				disallow = append(disallow, val)
			}
		}
	}
	return disallow
}
