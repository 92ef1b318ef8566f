package crawl

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/elliotttmiller/signalscout/internal/analyzer"
	"github.com/elliotttmiller/signalscout/internal/catalog"
	"github.com/elliotttmiller/signalscout/internal/classify"
	"github.com/elliotttmiller/signalscout/internal/feature"
	"github.com/elliotttmiller/signalscout/internal/fetch"
	"github.com/elliotttmiller/signalscout/internal/verifytech"
)

type artifactJSON struct {
	Model struct {
		Weights []float64 `json:"weights"`
		Bias    float64   `json:"bias"`
	} `json:"model"`
	FeatureNames []string `json:"feature_names"`
	Version      string   `json:"version"`
}

func writeHotClassifier(t *testing.T) *classify.Classifier {
	t.Helper()
	names := feature.Names()
	weights := make([]float64, len(names))
	for i, n := range names {
		if n == "has_video_tag" || n == "has_iframe" {
			weights[i] = 10
		}
	}
	var a artifactJSON
	a.Model.Weights = weights
	a.Model.Bias = 5
	a.FeatureNames = names
	a.Version = "test"
	b, err := json.Marshal(a)
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "model.json")
	require.NoError(t, os.WriteFile(path, b, 0o644))

	c, err := classify.Load(path, 0.7)
	require.NoError(t, err)
	return c
}

func openTestCatalog(t *testing.T) *catalog.Store {
	t.Helper()
	s, err := catalog.Open(filepath.Join(t.TempDir(), "sites.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestCrawlerAdmitsStrongStreamingPage(t *testing.T) {
	streamingBody := `<html><head><title>Watch NFL Live Free</title></head>
	<body><video src="a.mp4"></video><iframe src="https://player.example/embed"></iframe>
	<p>Watch live NFL streams free online</p></body></html>`

	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(streamingBody))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	fetcher := fetch.New(fetch.NewLimiter(5, 2), nil, nil)
	store := openTestCatalog(t)
	crawler := New(fetcher, writeHotClassifier(t), nil, store)
	crawler.Workers = 2
	crawler.CycleDeadline = 5 * time.Second

	report := crawler.Run(context.Background(), []Seed{{URL: srv.URL + "/", Source: catalog.SourceGenesisSeed, Relevance: 1}})

	require.Equal(t, 1, report.Fetched)
	require.Equal(t, 1, report.Admitted)

	site, ok, err := store.Get(context.Background(), srv.URL+"/")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, catalog.StatusActive, site.Status)
}

func TestCrawlerSkipsBelowClassifierThreshold(t *testing.T) {
	plainBody := `<html><head><title>About Us</title></head><body><p>Contact our team for info.</p></body></html>`
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(plainBody))
	}))
	defer srv.Close()

	fetcher := fetch.New(fetch.NewLimiter(5, 2), nil, nil)
	store := openTestCatalog(t)
	crawler := New(fetcher, writeHotClassifier(t), nil, store)
	crawler.CycleDeadline = 5 * time.Second

	report := crawler.Run(context.Background(), []Seed{{URL: srv.URL + "/", Source: catalog.SourceGenesisSeed, Relevance: 1}})

	require.Equal(t, 1, report.Fetched)
	require.Equal(t, 0, report.Admitted)
}

func TestAdmitSurfacesCatalogBufferOverflow(t *testing.T) {
	store := openTestCatalog(t)
	store.HighWaterMark = 1
	// Simulate the catalog going unreachable: a closed sqlite handle fails
	// every query, forcing Upsert onto its buffered-write path.
	require.NoError(t, store.Close())

	fetcher := fetch.New(fetch.NewLimiter(5, 2), nil, nil)
	crawler := New(fetcher, writeHotClassifier(t), nil, store)

	state := newSharedState()
	state.active = 1
	var reportMu sync.Mutex
	report := Report{}
	it := &item{url: "https://example.com/a", source: string(catalog.SourceCrawl)}

	crawler.admit(context.Background(), it, "https://example.com/a", verifytech.Result{Composite: 80}, analyzer.Verdict{}, &report, &reportMu, state)
	require.False(t, report.CatalogUnavailable, "buffer has room after a single failed write")

	crawler.admit(context.Background(), it, "https://example.com/b", verifytech.Result{Composite: 80}, analyzer.Verdict{}, &report, &reportMu, state)
	require.True(t, report.CatalogUnavailable, "buffer overflow must be surfaced on the report")
	require.True(t, state.abort, "buffer overflow must request cooperative worker-pool abort")
}

func TestCrawlerDropsURLsBeyondMaxDepth(t *testing.T) {
	fetcher := fetch.New(fetch.NewLimiter(5, 2), nil, nil)
	store := openTestCatalog(t)
	crawler := New(fetcher, writeHotClassifier(t), nil, store)
	crawler.MaxDepth = 0
	crawler.CycleDeadline = 2 * time.Second

	state := newSharedState()
	state.active = 1
	seen := newSeenSet()
	reseeded := newSeenSet()
	var reportMu sync.Mutex
	report := Report{}
	it := &item{url: "https://example.com/deep", depth: 1}
	crawler.processItem(context.Background(), it, state, seen, reseeded, &reportMu, &report)
	require.Zero(t, report.Fetched)
}
