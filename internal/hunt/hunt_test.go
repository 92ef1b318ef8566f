package hunt

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/elliotttmiller/signalscout/internal/catalog"
	"github.com/elliotttmiller/signalscout/internal/fetch"
	"github.com/elliotttmiller/signalscout/internal/search"
)

func TestMergeSumsAndCapsPriorBonus(t *testing.T) {
	a := []Candidate{{URL: "https://streameast.app", Source: catalog.SourceAggregator, PriorBonus: 12}}
	b := []Candidate{{URL: "https://streameast.app", Source: catalog.SourceSearchEngine, PriorBonus: 20}}
	merged := Merge(a, b)
	require.Len(t, merged, 1)
	require.Equal(t, 25, merged[0].PriorBonus)
	require.Equal(t, catalog.SourceAggregator, merged[0].Source, "first hunter to report the URL keeps its Source tag")
}

func TestAggregatorHunterKeepsStreamingDomainsOnly(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<html><body>
			<a href="https://streameast.app/watch">StreamEast</a>
			<a href="https://github.com/foo">GitHub</a>
			<a href="https://example.org/nothing">Unrelated</a>
		</body></html>`))
	}))
	defer srv.Close()

	h := &AggregatorHunter{Client: fetch.New(fetch.NewLimiter(5, 2), nil, nil)}
	candidates := h.Hunt(context.Background(), []string{srv.URL})

	require.Len(t, candidates, 1)
	require.Equal(t, "https://streameast.app/watch", candidates[0].URL)
	require.Equal(t, catalog.SourceAggregator, candidates[0].Source)
}

func TestPermutationHunterKeepsOnlyReachable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodHead {
			w.WriteHeader(http.StatusOK)
		}
	}))
	defer srv.Close()

	h := &PermutationHunter{}
	candidates := h.Hunt(context.Background(), []string{"unreachable-base-name-zzz"}, []string{".invalidtld"})
	require.Empty(t, candidates)
}

type fakeProvider struct {
	results []search.Result
	err     error
}

func (f *fakeProvider) Name() string { return "fake" }
func (f *fakeProvider) Search(ctx context.Context, query string, limit int) ([]search.Result, error) {
	return f.results, f.err
}

func TestSearchEngineHunterClassifiesAndScores(t *testing.T) {
	provider := &fakeProvider{results: []search.Result{
		{URL: "https://streameast.live/", Title: "Watch Live NFL Free", Snippet: "free live stream"},
		{URL: "https://wikipedia.org/wiki/Foo", Title: "Foo", Snippet: "an encyclopedia article"},
	}}
	h := &SearchEngineHunter{Provider: provider, Limiter: NewQueryLimiter()}
	candidates := h.Hunt(context.Background(), []string{"watch nfl live free"})

	require.Len(t, candidates, 1)
	require.Equal(t, "https://streameast.live/", candidates[0].URL)
	require.Equal(t, catalog.SourceSearchEngine, candidates[0].Source)
	require.LessOrEqual(t, candidates[0].PriorBonus, 25)
}
