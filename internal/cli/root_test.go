package cmd

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSubcommandsRegistered(t *testing.T) {
	names := map[string]bool{}
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}
	for _, want := range []string{"run-cycle", "test", "train", "serve"} {
		require.True(t, names[want], "expected subcommand %q to be registered", want)
	}
}

func TestRunCycleAbbreviatedCompletesWithNoOptionalComponents(t *testing.T) {
	dir := t.TempDir()
	cfgFile := filepath.Join(dir, "config.json")
	cfg := map[string]any{
		"catalog_path": filepath.Join(dir, "sites.db"),
		"report_dir":   filepath.Join(dir, "reports"),
		"cache_dir":    filepath.Join(dir, "cache"),
	}
	b, err := json.Marshal(cfg)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(cfgFile, b, 0o644))

	prevPath := configPath
	configPath = cfgFile
	defer func() { configPath = prevPath }()

	err = runCycle(context.Background(), true)
	require.NoError(t, err)

	entries, err := os.ReadDir(filepath.Join(dir, "reports"))
	require.NoError(t, err)
	require.NotEmpty(t, entries, "expected at least one persisted AfterActionReport")
}
