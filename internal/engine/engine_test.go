package engine

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/elliotttmiller/signalscout/internal/config"
	"github.com/elliotttmiller/signalscout/internal/planner"
)

func testConfig(t *testing.T) config.Config {
	t.Helper()
	dir := t.TempDir()
	cfg := config.Defaults()
	cfg.CatalogPath = filepath.Join(dir, "sites.db")
	cfg.ReportDir = filepath.Join(dir, "reports")
	cfg.CacheDir = filepath.Join(dir, "cache")
	cfg.CrawlerSettings.MaxPages = 5
	return cfg
}

func TestNewDegradesGracefullyWithNoOptionalComponents(t *testing.T) {
	e, err := New(context.Background(), testConfig(t))
	require.NoError(t, err)
	defer e.Close()

	require.NotNil(t, e.Classifier, "classifier should be present in its unloaded, always-negative state")
	require.Nil(t, e.searchHunter, "search hunter should stay nil with no searx URL configured")
	require.NotNil(t, e.aggregatorHunter)
	require.NotNil(t, e.permutationHunter)
}

func TestBuildSeedsMergesAggregatorCandidates(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(`<html><body><a href="https://free-live-streams.example/nfl">Watch Live NFL Free</a></body></html>`))
	}))
	defer srv.Close()

	cfg := testConfig(t)
	cfg.OperationalParameters.AggregatorURLs = []string{srv.URL}

	e, err := New(context.Background(), cfg)
	require.NoError(t, err)
	defer e.Close()

	seeds := e.buildSeeds(context.Background(), planner.MissionPlan{})
	require.NotEmpty(t, seeds, "expected the aggregator hunter's discovered link to seed the crawl frontier")
}

func TestNewWiresFileSearchProviderWhenSearxURLAbsent(t *testing.T) {
	dir := t.TempDir()
	resultsPath := filepath.Join(dir, "results.json")
	require.NoError(t, os.WriteFile(resultsPath, []byte(`[{"title":"Watch Live NFL Streams Free","url":"https://streams.example/nfl","snippet":"free live streams"}]`), 0o644))

	cfg := testConfig(t)
	cfg.OperationalParameters.SearchFilePath = resultsPath

	e, err := New(context.Background(), cfg)
	require.NoError(t, err)
	defer e.Close()

	require.NotNil(t, e.searchHunter, "search hunter should be wired from search_file_path when no searx_url is configured")
}

func TestRunCycleAbbreviatedCompletesWithZeroSeeds(t *testing.T) {
	cfg := testConfig(t)

	e, err := New(context.Background(), cfg)
	require.NoError(t, err)
	defer e.Close()

	result, err := e.RunCycle(context.Background())
	require.NoError(t, err)
	require.Equal(t, 0, result.Crawl.Admitted)

	entries, err := os.ReadDir(cfg.ReportDir)
	require.NoError(t, err)
	require.NotEmpty(t, entries, "expected the after-action report to be persisted")
}
