// Package engine implements the Engine / Orchestrator (C12): it wires
// every other component together and drives one discovery cycle end to
// end following the Plan -> Execute -> Report cycle, exposing a small,
// linear command surface to its operator harness.
package engine

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	openai "github.com/sashabaranov/go-openai"

	"github.com/elliotttmiller/signalscout/internal/analyzer"
	"github.com/elliotttmiller/signalscout/internal/cache"
	"github.com/elliotttmiller/signalscout/internal/catalog"
	"github.com/elliotttmiller/signalscout/internal/classify"
	"github.com/elliotttmiller/signalscout/internal/config"
	"github.com/elliotttmiller/signalscout/internal/crawl"
	"github.com/elliotttmiller/signalscout/internal/fetch"
	"github.com/elliotttmiller/signalscout/internal/hunt"
	"github.com/elliotttmiller/signalscout/internal/llm"
	"github.com/elliotttmiller/signalscout/internal/planner"
	"github.com/elliotttmiller/signalscout/internal/reporting"
	"github.com/elliotttmiller/signalscout/internal/search"
	"github.com/elliotttmiller/signalscout/internal/verifytech"
)

// Engine owns every component and drives one cycle at a time. It is the
// only piece of the system an operator harness talks to directly.
type Engine struct {
	cfg config.Config

	Catalog    *catalog.Store
	Fetcher    *fetch.Fetcher
	Classifier *classify.Classifier
	Analyzer   *analyzer.Analyzer
	Crawler    *crawl.Crawler
	Planner    *planner.Planner
	Reports    *reporting.Store
	Reporter   *reporting.Agent

	aggregatorHunter *hunt.AggregatorHunter
	permutationHunter *hunt.PermutationHunter
	searchHunter     *hunt.SearchEngineHunter

	renderer *fetch.Renderer
}

// New wires every component from cfg. It never fails hard on an
// unavailable optional component (renderer, LLM, classifier artifact);
// those degrade gracefully per spec §4.2/§4.6/§4.7/§4.8.
func New(ctx context.Context, cfg config.Config) (*Engine, error) {
	store, err := catalog.Open(cfg.CatalogPath)
	if err != nil {
		return nil, fmt.Errorf("open catalog: %w", err)
	}

	limiter := fetch.NewLimiter(cfg.CrawlerSettings.MaxConcurrentFetches, cfg.CrawlerSettings.MaxConcurrentFetchesPerHost)
	politeness := &fetch.Politeness{UserAgent: "SidelineSignalBot/1.0"}

	renderer := &fetch.Renderer{UserAgent: "SidelineSignalBot/1.0"}
	if err := renderer.Start(); err != nil {
		log.Warn().Err(err).Msg("engine: headless renderer unavailable, falling back to static fetch")
		renderer = nil
	}

	fetcher := fetch.New(limiter, politeness, renderer)

	classifier, err := classify.Load(cfg.ClassifierArtifactPath, cfg.CrawlerSettings.AIConfidenceThreshold)
	if err != nil {
		return nil, fmt.Errorf("load classifier: %w", err)
	}

	var llmClient llm.Client
	var llmCache *cache.LLMCache
	if cfg.LLMSettings.Endpoint != "" {
		transportCfg := openai.DefaultConfig(cfg.APIKey())
		transportCfg.BaseURL = cfg.LLMSettings.Endpoint
		llmClient = &llm.OpenAIProvider{Inner: openai.NewClientWithConfig(transportCfg)}
	}
	if cfg.CacheDir != "" {
		llmCache = &cache.LLMCache{Dir: cfg.CacheDir + "/llm"}
	}

	an := analyzer.New(llmClient, cfg.LLMSettings.Model, llmCache)
	an.Timeout = time.Duration(cfg.LLMSettings.TimeoutSeconds) * time.Second

	pl := planner.New(llmClient, cfg.LLMSettings.Model, llmCache)

	crawler := crawl.New(fetcher, classifier, an, store)
	crawler.Workers = cfg.CrawlerSettings.MaxConcurrentFetches
	crawler.MaxDepth = cfg.CrawlerSettings.MaxCrawlDepth
	crawler.RelevanceThreshold = cfg.CrawlerSettings.RelevancyThreshold
	crawler.VerifierThreshold = cfg.DiscoverySettings.VerificationConfidenceThreshold
	crawler.StrictMode = cfg.CrawlerSettings.StrictMode
	crawler.FeedbackEnabled = cfg.CrawlerSettings.EnableAutonomousFeedback
	crawler.CycleDeadline = cfg.CrawlerSettings.CycleTimeout

	reportStore := reporting.NewStore(cfg.ReportDir)
	reporter := reporting.New(store)

	var searchProvider search.Provider
	switch {
	case cfg.OperationalParameters.SearxURL != "":
		searchProvider = &search.SearxNG{BaseURL: cfg.OperationalParameters.SearxURL, APIKey: cfg.OperationalParameters.SearxAPIKey}
	case cfg.OperationalParameters.SearchFilePath != "":
		// Offline/testing fallback: serve results from a local JSON file
		// instead of a live SearxNG instance.
		searchProvider = &search.FileProvider{Path: cfg.OperationalParameters.SearchFilePath}
	}

	e := &Engine{
		cfg:        cfg,
		Catalog:    store,
		Fetcher:    fetcher,
		Classifier: classifier,
		Analyzer:   an,
		Crawler:    crawler,
		Planner:    pl,
		Reports:    reportStore,
		Reporter:   reporter,
		renderer:   renderer,

		aggregatorHunter:  &hunt.AggregatorHunter{Client: fetcher},
		permutationHunter: &hunt.PermutationHunter{},
	}
	if searchProvider != nil {
		e.searchHunter = &hunt.SearchEngineHunter{Provider: searchProvider, Limiter: hunt.NewQueryLimiter()}
	}
	return e, nil
}

// Close releases any held resources (the headless renderer, if started).
func (e *Engine) Close() {
	if e.renderer != nil {
		e.renderer.Close()
	}
	if e.Catalog != nil {
		_ = e.Catalog.Close()
	}
}

// CycleResult summarizes one full Plan -> Execute -> Report cycle.
type CycleResult struct {
	Plan   planner.MissionPlan
	Crawl  crawl.Report
	Report reporting.AfterActionReport
}

// RunCycle drives exactly one discovery cycle, per spec §4.12:
//
//	report_prev <- Reporting.latest()
//	plan        <- Planner.generate(report_prev)
//	Crawler.configure(plan.seed_queries)
//	Crawler.resweep_quarantine()
//	Crawler.run()
//	report_new  <- Reporting.generate()
//	Reporting.persist(report_new)
func (e *Engine) RunCycle(ctx context.Context) (CycleResult, error) {
	cycleStart := time.Now()
	cycleID := uuid.NewString()

	restoreLog, captured := e.captureCycleLog(cycleID)
	defer restoreLog()

	log.Info().Str("cycle_id", cycleID).Msg("engine: cycle starting")

	var prior *planner.PriorReport
	if prev, ok, err := e.Reports.Latest(); err != nil {
		log.Warn().Err(err).Msg("engine: failed to load latest report, treating as genesis run")
	} else if ok {
		p := reporting.ToPriorReport(prev)
		prior = &p
	}

	plan := e.Planner.Generate(ctx, prior)
	log.Info().Str("mission_type", string(plan.MissionType)).Int("seed_queries", len(plan.SeedQueries)).Msg("engine: mission plan generated")

	seeds := e.buildSeeds(ctx, plan)

	if err := e.resweepQuarantine(ctx); err != nil {
		log.Warn().Err(err).Msg("engine: quarantine resweep encountered an error, continuing cycle")
	}

	crawlReport := e.Crawler.Run(ctx, seeds)
	log.Info().Int("fetched", crawlReport.Fetched).Int("admitted", crawlReport.Admitted).Msg("engine: crawl cycle complete")

	afterAction := e.Reporter.Generate(ctx, captured.String(), cycleStart, len(plan.SeedQueries))
	if _, err := e.Reports.Persist(afterAction); err != nil {
		log.Error().Err(err).Msg("engine: failed to persist after-action report")
	}

	result := CycleResult{Plan: plan, Crawl: crawlReport, Report: afterAction}

	// Fatal per spec §7: "Catalog unavailable: buffered; fatal only if the
	// buffer overflows." The after-action report above is still the
	// operator-visible record of the cycle; this error only controls the
	// process exit code.
	if crawlReport.CatalogUnavailable {
		return result, fmt.Errorf("engine: %w, aborting cycle", catalog.ErrBufferOverflow)
	}

	return result, nil
}

// buildSeeds runs every configured hunter and merges their candidates into
// the Crawler's depth-0 frontier. The Planner's seed queries reach the
// frontier only through the search hunter, which issues them as search
// queries; with no search hunter configured they are not used here.
func (e *Engine) buildSeeds(ctx context.Context, plan planner.MissionPlan) []crawl.Seed {
	var groups [][]hunt.Candidate

	if e.aggregatorHunter != nil && len(e.cfg.OperationalParameters.AggregatorURLs) > 0 {
		groups = append(groups, e.aggregatorHunter.Hunt(ctx, e.cfg.OperationalParameters.AggregatorURLs))
	}
	if e.permutationHunter != nil && len(e.cfg.OperationalParameters.PermutationBases) > 0 {
		groups = append(groups, e.permutationHunter.Hunt(ctx, e.cfg.OperationalParameters.PermutationBases, e.cfg.OperationalParameters.PermutationTLDs))
	}
	if e.searchHunter != nil {
		groups = append(groups, e.searchHunter.Hunt(ctx, plan.SeedQueries))
	}

	candidates := hunt.Merge(groups...)

	seeds := make([]crawl.Seed, 0, len(candidates))
	for _, c := range candidates {
		seeds = append(seeds, crawl.Seed{URL: c.URL, Source: c.Source, Relevance: 1})
	}
	return seeds
}

// captureCycleLog installs a temporary global logger that tees every log
// event emitted during this cycle into an in-memory buffer, alongside the
// previously configured output, so the Reporting Agent's log-substring
// analysis (§4.11) has real content to scan. Every line carries cycleID so
// log lines from concurrent or back-to-back cycles can be told apart. The
// returned func restores the prior global logger; it must be deferred.
func (e *Engine) captureCycleLog(cycleID string) (restore func(), buf *bytes.Buffer) {
	buf = &bytes.Buffer{}
	prior := log.Logger
	log.Logger = zerolog.New(zerolog.MultiLevelWriter(os.Stderr, buf)).With().
		Timestamp().
		Str("cycle_id", cycleID).
		Logger()
	return func() { log.Logger = prior }, buf
}

// resweepQuarantine re-runs fetch -> verify -> analyze on every quarantined
// row before the main funnel runs, per spec §4.9's "Re-verification
// sweep" prelude.
func (e *Engine) resweepQuarantine(ctx context.Context) error {
	rows, err := e.Catalog.ListByStatus(ctx, catalog.StatusQuarantined)
	if err != nil {
		return fmt.Errorf("list quarantined: %w", err)
	}

	maxFailed := e.cfg.MaintenanceSettings.MaxFailedAttempts
	if maxFailed <= 0 {
		maxFailed = 3
	}

	for _, site := range rows {
		res := e.Fetcher.Fetch(ctx, site.URL)
		if res.Err != nil {
			e.failQuarantinedRow(ctx, site.URL, maxFailed)
			continue
		}

		verify := verifytech.Verify(ctx, e.Fetcher, site.URL)
		if verify.Composite < e.cfg.DiscoverySettings.VerificationConfidenceThreshold {
			e.failQuarantinedRow(ctx, site.URL, maxFailed)
			continue
		}

		if e.Analyzer != nil {
			verdict := e.Analyzer.Analyze(ctx, res.Body, res.FinalURL)
			if e.Crawler.StrictMode && !verdict.IsSportsStreamingSite {
				e.failQuarantinedRow(ctx, site.URL, maxFailed)
				continue
			}
		}

		if err := e.Catalog.Reactivate(ctx, site.URL, verify.Composite); err != nil {
			log.Warn().Err(err).Str("url", site.URL).Msg("engine: reactivate failed")
		}
	}
	return nil
}

func (e *Engine) failQuarantinedRow(ctx context.Context, url string, maxFailed int) {
	n, err := e.Catalog.IncrementFailedAttempts(ctx, url)
	if err != nil {
		log.Warn().Err(err).Str("url", url).Msg("engine: failed-attempt increment failed")
		return
	}
	if n >= maxFailed {
		if err := e.Catalog.Deactivate(ctx, url); err != nil {
			log.Warn().Err(err).Str("url", url).Msg("engine: deactivate failed")
		}
	}
}
