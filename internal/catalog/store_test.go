package catalog

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "sites.db")
	s, err := Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestUpsertWithoutConfidenceScorePreservesExistingScore(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	conf := 88
	_, err := s.Upsert(ctx, "https://example.app/keep-score", UpsertFields{
		Name: "Example", Source: SourceCrawl, ConfidenceScore: &conf,
	})
	require.NoError(t, err)

	// A later upsert that omits ConfidenceScore (e.g. a re-verification that
	// only touches status) must not zero out the previously recorded score.
	active := StatusActive
	_, err = s.Upsert(ctx, "https://example.app/keep-score", UpsertFields{
		Name: "Example", Source: SourceCrawl, Status: &active,
	})
	require.NoError(t, err)

	site, ok, err := s.Get(ctx, "https://example.app/keep-score")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, 88, site.ConfidenceScore)
}

func TestCanonicalizeURLIdempotent(t *testing.T) {
	inputs := []string{
		"https://Example.App/",
		"https://example.app?utm_source=reddit&b=2&a=1",
		"HTTP://Example.com/path/",
	}
	for _, in := range inputs {
		once, err := CanonicalizeURL(in)
		require.NoError(t, err)
		twice, err := CanonicalizeURL(once)
		require.NoError(t, err)
		require.Equal(t, once, twice)
	}
}

func TestUpsertInsertThenUpdate(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	conf := 70
	out, err := s.Upsert(ctx, "https://Example.App/watch", UpsertFields{
		Name: "Example", Source: SourceCrawl, ConfidenceScore: &conf,
	})
	require.NoError(t, err)
	require.True(t, out.Inserted)

	site, ok, err := s.Get(ctx, "https://example.app/watch")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, 70, site.ConfidenceScore)
	require.True(t, site.IsActive)
	require.Equal(t, StatusActive, site.Status)

	out2, err := s.Upsert(ctx, "https://example.app/watch", UpsertFields{
		Name: "Example", Source: SourceCrawl, ConfidenceScore: &conf,
	})
	require.NoError(t, err)
	require.False(t, out2.Inserted)

	site2, _, err := s.Get(ctx, "https://example.app/watch")
	require.NoError(t, err)
	require.Equal(t, site.ConfidenceScore, site2.ConfidenceScore)
	require.Equal(t, site.Name, site2.Name)
}

func TestQuarantineAndReactivate(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	conf := 72
	_, err := s.Upsert(ctx, "https://example.app/a", UpsertFields{Name: "A", Source: SourceCrawl, ConfidenceScore: &conf})
	require.NoError(t, err)

	require.NoError(t, s.Quarantine(ctx, "https://example.app/a", "503 on reverify"))
	site, _, err := s.Get(ctx, "https://example.app/a")
	require.NoError(t, err)
	require.Equal(t, StatusQuarantined, site.Status)
	require.False(t, site.IsActive)
	require.Equal(t, 1, site.FailedAttempts)

	require.NoError(t, s.Reactivate(ctx, "https://example.app/a", 63))
	site2, _, err := s.Get(ctx, "https://example.app/a")
	require.NoError(t, err)
	require.Equal(t, StatusActive, site2.Status)
	require.True(t, site2.IsActive)
	require.Equal(t, 63, site2.ConfidenceScore)
	require.Equal(t, 0, site2.FailedAttempts)
}

func TestIncrementFailedAttemptsOnlyAffectsQuarantinedRows(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	conf := 72
	_, err := s.Upsert(ctx, "https://example.app/c", UpsertFields{Name: "C", Source: SourceCrawl, ConfidenceScore: &conf})
	require.NoError(t, err)

	// Active row: the sweep's per-row counter must not move it.
	n, err := s.IncrementFailedAttempts(ctx, "https://example.app/c")
	require.NoError(t, err)
	require.Equal(t, 0, n)

	require.NoError(t, s.Quarantine(ctx, "https://example.app/c", "timeout on reverify"))

	n, err = s.IncrementFailedAttempts(ctx, "https://example.app/c")
	require.NoError(t, err)
	require.Equal(t, 2, n, "quarantine itself counts as one failure, the increment as a second")

	n, err = s.IncrementFailedAttempts(ctx, "https://example.app/c")
	require.NoError(t, err)
	require.Equal(t, 3, n)

	site, _, err := s.Get(ctx, "https://example.app/c")
	require.NoError(t, err)
	require.Equal(t, 3, site.FailedAttempts)
}

func TestDeactivateIsTerminalNotDeleted(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	conf := 10
	_, err := s.Upsert(ctx, "https://example.app/b", UpsertFields{Name: "B", Source: SourceCrawl, ConfidenceScore: &conf})
	require.NoError(t, err)
	require.NoError(t, s.Deactivate(ctx, "https://example.app/b"))
	site, ok, err := s.Get(ctx, "https://example.app/b")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, StatusInactive, site.Status)
	require.False(t, site.IsActive)
}

func TestDuplicateURLAcrossCasingCollapsesToOneCandidate(t *testing.T) {
	a, err := CanonicalizeURL("https://Example.App/")
	require.NoError(t, err)
	b, err := CanonicalizeURL("https://example.app")
	require.NoError(t, err)
	require.Equal(t, a, b)
}
