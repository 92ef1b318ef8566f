package classify

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/elliotttmiller/signalscout/internal/feature"
)

func writeArtifact(t *testing.T, dir string, weights []float64, bias float64) string {
	t.Helper()
	names := feature.Names()
	require.LessOrEqual(t, len(weights), len(names))
	path := filepath.Join(dir, "model.json")
	a := artifact{
		FeatureNames: names,
		Version:      "test-1",
	}
	a.Model.Weights = weights
	a.Model.Bias = bias
	b, err := json.Marshal(a)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, b, 0o644))
	return path
}

func TestLoadMissingArtifactIsUnavailableNotError(t *testing.T) {
	c, err := Load(filepath.Join(t.TempDir(), "absent.json"), 0.7)
	require.NoError(t, err)
	require.False(t, c.Available())

	result := c.Predict(feature.Extract("<html></html>", "https://example.com/"))
	require.False(t, result.Available)
	require.Equal(t, "no model", result.Error)
	require.False(t, result.IsPositive)
	require.Zero(t, result.Probability)
}

func TestPredictAboveThresholdIsPositive(t *testing.T) {
	dir := t.TempDir()
	weights := make([]float64, len(feature.Names()))
	for i := range weights {
		weights[i] = 0
	}
	idx := indexOf(feature.Names(), "has_video_tag")
	weights[idx] = 10
	path := writeArtifact(t, dir, weights, 5)

	c, err := Load(path, 0.7)
	require.NoError(t, err)
	require.True(t, c.Available())

	html := `<html><body><video src="a.mp4"></video></body></html>`
	v := feature.Extract(html, "https://example.com/watch")
	result := c.Predict(v)
	require.True(t, result.Available)
	require.True(t, result.IsPositive)
	require.Greater(t, result.Probability, 0.9)
	require.NotEmpty(t, result.KeyFeatures)
}

func TestPredictBelowThresholdIsNegative(t *testing.T) {
	dir := t.TempDir()
	weights := make([]float64, len(feature.Names()))
	path := writeArtifact(t, dir, weights, -10)

	c, err := Load(path, 0.7)
	require.NoError(t, err)

	v := feature.Extract("<html><body></body></html>", "https://example.com/")
	result := c.Predict(v)
	require.True(t, result.Available)
	require.False(t, result.IsPositive)
	require.Less(t, result.Probability, 0.1)
}

func TestLoadReadsSidecarManifestWhenPresent(t *testing.T) {
	dir := t.TempDir()
	path := writeArtifact(t, dir, []float64{}, 0)
	manifestYAML := "trained_at: \"2026-01-01\"\ndataset_size: 500\npositive_labels: 200\nnegative_labels: 300\nnotes: initial baseline\nlabelers:\n  - ops-team\n"
	require.NoError(t, os.WriteFile(manifestPath(path), []byte(manifestYAML), 0o644))

	c, err := Load(path, 0.7)
	require.NoError(t, err)
	require.NotNil(t, c.Manifest)
	require.Equal(t, 500, c.Manifest.DatasetSize)
	require.Equal(t, []string{"ops-team"}, c.Manifest.Labelers)
}

func indexOf(names []string, name string) int {
	for i, n := range names {
		if n == name {
			return i
		}
	}
	return -1
}
