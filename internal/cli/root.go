// Package cmd wires the operator command surface onto cobra, following the
// single-binary, flag-and-subcommand layout used by the pack's crawler
// tooling. The Engine itself stays oblivious to cobra; this package only
// loads configuration, builds an Engine, and maps its result to an exit
// code.
package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/elliotttmiller/signalscout/internal/config"
	"github.com/elliotttmiller/signalscout/internal/engine"
)

var (
	configPath string
	verbose    bool
)

// rootCmd is the base command; running it with no subcommand is equivalent
// to `run-cycle`, the engine's most common operation.
var rootCmd = &cobra.Command{
	Use:   "scout",
	Short: "SidelineSignal autonomous discovery engine",
	Long: `scout drives the Plan -> Execute -> Report discovery cycle: it plans a
mission from the previous AfterActionReport, runs the focused crawler's
hunt/triage/verify funnel, and persists the next AfterActionReport.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runCycle(cmd.Context(), false)
	},
}

// Execute runs the selected subcommand (registered in init). Called once
// from main.main.
func Execute() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		log.Error().Err(err).Msg("scout: command failed")
		os.Exit(1)
	}
}

func init() {
	zerolog.TimeFieldFormat = time.RFC3339

	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to the JSON configuration file (defaults applied if empty/missing)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug-level logging")
	rootCmd.PersistentPreRun = func(cmd *cobra.Command, args []string) {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
		if verbose {
			zerolog.SetGlobalLevel(zerolog.DebugLevel)
		} else {
			zerolog.SetGlobalLevel(zerolog.InfoLevel)
		}
	}

	rootCmd.AddCommand(runCycleCmd, testCmd, trainCmd, serveCmd)
}

var runCycleCmd = &cobra.Command{
	Use:   "run-cycle",
	Short: "Run one Plan -> Execute -> Report discovery cycle",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runCycle(cmd.Context(), false)
	},
}

var testCmd = &cobra.Command{
	Use:   "test",
	Short: "Run an abbreviated discovery cycle with a shortened cycle deadline",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runCycle(cmd.Context(), true)
	},
}

var trainCmd = &cobra.Command{
	Use:   "train",
	Short: "Drive the external classifier training pipeline",
	RunE: func(cmd *cobra.Command, args []string) error {
		log.Info().Msg("scout: classifier training is an external pipeline; invoke it out-of-process and point classifier_artifact_path at its output")
		return nil
	},
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the external status service",
	RunE: func(cmd *cobra.Command, args []string) error {
		log.Info().Msg("scout: the status/dashboard service is external to this engine; nothing to start here")
		return nil
	},
}

// These constants scale down a config for the `test` subcommand. Only the
// cycle deadline bounds the run: abbreviatedMaxPages is written to
// crawler_settings.max_pages, which the crawler does not read, so no page
// count cap is applied.
const (
	abbreviatedMaxPages      = 10
	abbreviatedCycleDeadline = 2 * time.Minute
)

func runCycle(ctx context.Context, abbreviated bool) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	config.ApplyEnvOverrides(&cfg)
	if cfg.Verbose {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}

	if abbreviated {
		cfg.CrawlerSettings.MaxPages = abbreviatedMaxPages
		cfg.CrawlerSettings.CycleTimeout = abbreviatedCycleDeadline
	}

	e, err := engine.New(ctx, cfg)
	if err != nil {
		return fmt.Errorf("init engine: %w", err)
	}
	defer e.Close()

	result, err := e.RunCycle(ctx)
	if err != nil {
		return fmt.Errorf("run cycle: %w", err)
	}

	log.Info().
		Str("mission_type", string(result.Plan.MissionType)).
		Int("fetched", result.Crawl.Fetched).
		Int("admitted", result.Crawl.Admitted).
		Int("new_sites", result.Report.DiscoveryResults.NewSites).
		Int("total_active", result.Report.DiscoveryResults.TotalActive).
		Msg("scout: cycle complete")
	return nil
}
