package reporting

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/elliotttmiller/signalscout/internal/catalog"
)

func openTestCatalog(t *testing.T) *catalog.Store {
	t.Helper()
	s, err := catalog.Open(filepath.Join(t.TempDir(), "sites.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestGenerateCountsLogSubstrings(t *testing.T) {
	log := "New page being crawled url=a\n" +
		"Link being evaluated url=b\n" +
		"classifier's verdict: (POSITIVE)\n" +
		"classifier's verdict: (NEGATIVE)\n" +
		"V2 verification composite=80\n" +
		"successfully written to database url=a\n"

	store := openTestCatalog(t)
	agent := New(store)
	agent.Now = func() time.Time { return time.Date(2026, 1, 1, 1, 0, 0, 0, time.UTC) }

	report := agent.Generate(context.Background(), log, time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), 5)

	require.Equal(t, 1, report.MissionSummary.PagesCrawled)
	require.Equal(t, 1, report.MissionSummary.LinksEvaluated)
	require.InDelta(t, 0.5, report.PerformanceAnalysis.ClassifierSuccessRate, 0.001)
	require.InDelta(t, 1.0, report.PerformanceAnalysis.VerifierSuccessRate, 0.001)
	require.NotEmpty(t, report.CognitiveReasoningProcess.PrimaryRecommendation)
}

func TestGenerateZeroDiscoveryTriggersPivotRecommendation(t *testing.T) {
	store := openTestCatalog(t)
	agent := New(store)

	report := agent.Generate(context.Background(), "", time.Now(), 5)

	require.Equal(t, 0, report.DiscoveryResults.NewSites)
	require.Contains(t, report.CognitiveReasoningProcess.Insights.DiscoveryInsight, "Zero discovery rate")
	require.Contains(t, report.CognitiveReasoningProcess.PrimaryRecommendation, "pivot")
}

func TestGenerateReflectsCatalogCounts(t *testing.T) {
	store := openTestCatalog(t)
	ctx := context.Background()
	conf := 80
	active := catalog.StatusActive
	_, err := store.Upsert(ctx, "https://example.com/a", catalog.UpsertFields{
		Name: "A", Source: catalog.SourceCrawl, ConfidenceScore: &conf, Status: &active,
	})
	require.NoError(t, err)

	agent := New(store)
	report := agent.Generate(ctx, "", time.Now().Add(-time.Hour), 5)

	require.Equal(t, 1, report.DiscoveryResults.NewSites)
	require.Equal(t, 1, report.DiscoveryResults.TotalActive)
}

func TestPersistAndLatestRoundTrip(t *testing.T) {
	dir := t.TempDir()
	store := NewStore(dir)

	r1 := AfterActionReport{Timestamp: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	r2 := AfterActionReport{Timestamp: time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC)}

	_, err := store.Persist(r1)
	require.NoError(t, err)
	time.Sleep(10 * time.Millisecond)
	_, err = store.Persist(r2)
	require.NoError(t, err)

	latest, ok, err := store.Latest()
	require.NoError(t, err)
	require.True(t, ok)
	require.True(t, latest.Timestamp.Equal(r2.Timestamp))
}

func TestLatestWithNoReportsReturnsNotOK(t *testing.T) {
	store := NewStore(filepath.Join(t.TempDir(), "missing"))
	_, ok, err := store.Latest()
	require.NoError(t, err)
	require.False(t, ok)
}

func TestGenerateMostEffectiveSourceReflectsCatalogCounts(t *testing.T) {
	store := openTestCatalog(t)
	ctx := context.Background()
	conf := 75
	active := catalog.StatusActive
	for i, u := range []string{"https://a.example/1", "https://a.example/2", "https://a.example/3"} {
		_, err := store.Upsert(ctx, u, catalog.UpsertFields{
			Name: "A" + string(rune('1'+i)), Source: catalog.SourceCrawl, ConfidenceScore: &conf, Status: &active,
		})
		require.NoError(t, err)
	}
	_, err := store.Upsert(ctx, "https://b.example/1", catalog.UpsertFields{
		Name: "B", Source: catalog.SourceAggregator, ConfidenceScore: &conf, Status: &active,
	})
	require.NoError(t, err)

	agent := New(store)
	report := agent.Generate(ctx, "", time.Now(), 5)

	require.Equal(t, "crawl", report.PerformanceAnalysis.MostEffectiveSource)
}

func TestToPriorReportCarriesDiscoveryCounts(t *testing.T) {
	report := AfterActionReport{
		DiscoveryResults: DiscoveryResults{NewSites: 3, TotalActive: 9},
	}
	prior := ToPriorReport(report)
	require.Equal(t, 3, prior.NewSitesFound)
	require.Equal(t, 9, prior.TotalActive)
	require.NotEmpty(t, prior.Serialized)
}
