// Package crawl implements the Focused Crawler (C9): a parallel-worker pool
// coordinating over a shared, relevance-ordered frontier and a check-and-
// insert-atomic seen-set. Per spec §4.9 this is the central state machine
// of the discovery cycle: queued -> fetched -> relevance-ok -> classified+
// -> verified+ -> analyzed -> admitted, with rejection possible at any
// stage.
package crawl

import (
	"container/heap"
	"context"
	"errors"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/net/html"
	"golang.org/x/sync/errgroup"

	"github.com/rs/zerolog/log"

	"github.com/elliotttmiller/signalscout/internal/analyzer"
	"github.com/elliotttmiller/signalscout/internal/catalog"
	"github.com/elliotttmiller/signalscout/internal/classify"
	"github.com/elliotttmiller/signalscout/internal/feature"
	"github.com/elliotttmiller/signalscout/internal/fetch"
	"github.com/elliotttmiller/signalscout/internal/relevance"
	"github.com/elliotttmiller/signalscout/internal/verifytech"
)

// Seed is a starting frontier entry, carried in at depth 0 from the
// Planner's queries or a Hunter candidate.
type Seed struct {
	URL       string
	Source    catalog.Source
	Relevance float64
}

// Crawler is the C9 worker pool. All fields have spec-default zero values
// filled in by New; callers normally just set the collaborators.
type Crawler struct {
	Fetcher    *fetch.Fetcher
	Classifier *classify.Classifier
	Analyzer   *analyzer.Analyzer
	Catalog    *catalog.Store

	Workers             int
	MaxDepth            int
	RelevanceThreshold  float64
	VerifierThreshold   int
	StrictMode          bool
	FeedbackEnabled     bool
	CycleDeadline       time.Duration
}

// New builds a Crawler with spec-default tunables; callers override fields
// on the returned value as needed.
func New(fetcher *fetch.Fetcher, classifier *classify.Classifier, an *analyzer.Analyzer, store *catalog.Store) *Crawler {
	return &Crawler{
		Fetcher:            fetcher,
		Classifier:         classifier,
		Analyzer:           an,
		Catalog:            store,
		Workers:            4,
		MaxDepth:           3,
		RelevanceThreshold: 0.6,
		VerifierThreshold:  50,
		CycleDeadline:      10 * time.Minute,
	}
}

// Report summarizes one crawl cycle for the Reporting Agent.
type Report struct {
	Fetched      int
	Admitted     int
	Rejected     int
	FetchErrors  int
	AdmittedURLs []string

	// CatalogUnavailable is set once the Catalog Store's pending-write
	// buffer overflows (catalog.ErrBufferOverflow), per spec §7: "Catalog
	// unavailable: buffered; fatal only if the buffer overflows." The
	// cycle still finishes out so a report can be persisted, but the
	// caller must surface this as a non-zero exit.
	CatalogUnavailable bool
}

type sharedState struct {
	mu       sync.Mutex
	cond     *sync.Cond
	frontier priorityFrontier
	active   int
	abort    bool
}

func newSharedState() *sharedState {
	s := &sharedState{}
	s.cond = sync.NewCond(&s.mu)
	return s
}

func (s *sharedState) push(it *item) {
	s.mu.Lock()
	s.active++
	heap.Push(&s.frontier, it)
	s.cond.Signal()
	s.mu.Unlock()
}

func (s *sharedState) pop() (*item, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for len(s.frontier) == 0 {
		if s.active == 0 || s.abort {
			return nil, false
		}
		s.cond.Wait()
	}
	it := heap.Pop(&s.frontier).(*item)
	return it, true
}

func (s *sharedState) done() {
	s.mu.Lock()
	s.active--
	if s.active == 0 {
		s.cond.Broadcast()
	}
	s.mu.Unlock()
}

// requestAbort wakes every blocked worker so cancellation is noticed even
// when the frontier is momentarily empty.
func (s *sharedState) requestAbort() {
	s.mu.Lock()
	s.abort = true
	s.cond.Broadcast()
	s.mu.Unlock()
}

// Run executes one full discovery cycle: it seeds the frontier, then runs
// Workers goroutines over the shared frontier/seen-set until drained or the
// cycle deadline elapses. Cancellation is cooperative, per spec §5.
func (c *Crawler) Run(ctx context.Context, seeds []Seed) Report {
	deadline := c.CycleDeadline
	if deadline <= 0 {
		deadline = 10 * time.Minute
	}
	cycleCtx, cancel := context.WithTimeout(ctx, deadline)
	defer cancel()

	seen := newSeenSet()
	reseeded := newSeenSet()
	state := newSharedState()

	var reportMu sync.Mutex
	report := Report{}

	for _, s := range seeds {
		if !seen.TryAdd(s.URL) {
			continue
		}
		state.push(&item{url: s.URL, depth: 0, relevance: s.Relevance, source: string(s.Source)})
	}

	workers := c.Workers
	if workers <= 0 {
		workers = 1
	}

	g, gctx := errgroup.WithContext(cycleCtx)
	for i := 0; i < workers; i++ {
		g.Go(func() error {
			for {
				if gctx.Err() != nil {
					state.requestAbort()
					return nil
				}
				it, ok := state.pop()
				if !ok {
					return nil
				}
				c.processItem(gctx, it, state, seen, reseeded, &reportMu, &report)
			}
		})
	}
	_ = g.Wait()

	return report
}

func (c *Crawler) processItem(ctx context.Context, it *item, state *sharedState, seen, reseeded *seenSet, reportMu *sync.Mutex, report *Report) {
	defer state.done()

	if it.depth > c.MaxDepth {
		return
	}

	log.Info().Str("url", it.url).Int("depth", it.depth).Msg("New page being crawled")

	res := c.Fetcher.Fetch(ctx, it.url)
	reportMu.Lock()
	report.Fetched++
	reportMu.Unlock()
	if res.Err != nil {
		reportMu.Lock()
		report.FetchErrors++
		reportMu.Unlock()
		log.Debug().Err(res.Err).Str("url", it.url).Msg("crawler: fetch failed")
		return
	}

	c.enqueueLinks(res.FinalURL, res.Body, it.depth, state, seen)

	vector := feature.Extract(res.Body, res.FinalURL)
	classification := c.Classifier.Predict(vector)
	verdictLabel := "(NEGATIVE)"
	if classification.IsPositive {
		verdictLabel = "(POSITIVE)"
	}
	log.Info().Str("url", res.FinalURL).Float64("probability", classification.Probability).Msg("classifier's verdict " + verdictLabel)
	if !classification.IsPositive {
		return
	}

	log.Info().Str("url", res.FinalURL).Msg("V2 verification starting")
	verifyResult := verifytech.Verify(ctx, c.Fetcher, res.FinalURL)
	if verifyResult.Composite < c.VerifierThreshold {
		reportMu.Lock()
		report.Rejected++
		reportMu.Unlock()
		return
	}

	var verdict analyzer.Verdict
	if c.Analyzer != nil {
		verdict = c.Analyzer.Analyze(ctx, res.Body, res.FinalURL)
	}
	if c.StrictMode && c.Analyzer != nil && !verdict.IsSportsStreamingSite {
		reportMu.Lock()
		report.Rejected++
		reportMu.Unlock()
		return
	}

	c.admit(ctx, it, res.FinalURL, verifyResult, verdict, report, reportMu, state)

	if c.FeedbackEnabled && reseeded.TryAdd(res.FinalURL) {
		state.push(&item{url: res.FinalURL, depth: 0, relevance: 1, source: string(catalog.SourceCrawl)})
	}
}

func (c *Crawler) admit(ctx context.Context, it *item, finalURL string, verify verifytech.Result, verdict analyzer.Verdict, report *Report, reportMu *sync.Mutex, state *sharedState) {
	source := catalog.Source(it.source)
	if source == "" {
		source = catalog.SourceCrawl
	}
	composite := verify.Composite
	fields := catalog.UpsertFields{
		Name:            serviceName(verdict, verify),
		Source:          source,
		ConfidenceScore: &composite,
	}
	if c.Analyzer != nil {
		llmVerified := catalog.LLMVerifiedFalse
		if verdict.IsSportsStreamingSite {
			llmVerified = catalog.LLMVerifiedTrue
		}
		fields.LLMVerified = &llmVerified
		reasoning := verdict.FullReasoningProcess.Conclusion
		fields.LLMReasoning = &reasoning
	}
	active := catalog.StatusActive
	fields.Status = &active

	if _, err := c.Catalog.Upsert(ctx, finalURL, fields); err != nil {
		log.Error().Err(err).Str("url", finalURL).Msg("crawler: catalog upsert failed")
		if errors.Is(err, catalog.ErrBufferOverflow) {
			reportMu.Lock()
			report.CatalogUnavailable = true
			reportMu.Unlock()
			state.requestAbort()
		}
		return
	}
	log.Info().Str("url", finalURL).Msg("successfully written to database")
	reportMu.Lock()
	report.Admitted++
	report.AdmittedURLs = append(report.AdmittedURLs, finalURL)
	reportMu.Unlock()
}

func serviceName(verdict analyzer.Verdict, verify verifytech.Result) string {
	if verdict.ServiceName != "" && verdict.ServiceName != "Unknown" {
		return verdict.ServiceName
	}
	if verify.Title != "" {
		return verify.Title
	}
	return "Unknown"
}

// enqueueLinks extracts anchors from body, scores each with the Relevance
// Scorer, and enqueues those at or above RelevanceThreshold that are not
// already in seen, per spec §4.4/§4.9.
func (c *Crawler) enqueueLinks(baseURL, body string, depth int, state *sharedState, seen *seenSet) {
	base, err := url.Parse(baseURL)
	if err != nil {
		return
	}
	doc, err := html.Parse(strings.NewReader(body))
	if err != nil || doc == nil {
		return
	}

	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && strings.EqualFold(n.Data, "a") {
			href := attr(n, "href")
			text := anchorText(n)
			if href != "" {
				if resolved, ok := resolve(base, href); ok {
					score := relevance.Score(text, resolved)
					log.Info().Str("url", resolved).Float64("score", score).Msg("Link being evaluated")
					if score >= c.RelevanceThreshold && seen.TryAdd(resolved) {
						state.push(&item{url: resolved, depth: depth + 1, relevance: score, source: string(catalog.SourceCrawl)})
					}
				}
			}
		}
		for child := n.FirstChild; child != nil; child = child.NextSibling {
			walk(child)
		}
	}
	walk(doc)
}

func attr(n *html.Node, name string) string {
	for _, a := range n.Attr {
		if strings.EqualFold(a.Key, name) {
			return a.Val
		}
	}
	return ""
}

func anchorText(n *html.Node) string {
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(cur *html.Node) {
		if cur.Type == html.TextNode {
			b.WriteString(cur.Data)
		}
		for c := cur.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return b.String()
}

func resolve(base *url.URL, href string) (string, bool) {
	ref, err := url.Parse(href)
	if err != nil {
		return "", false
	}
	resolved := base.ResolveReference(ref)
	if resolved.Scheme != "http" && resolved.Scheme != "https" {
		return "", false
	}
	return resolved.String(), true
}
