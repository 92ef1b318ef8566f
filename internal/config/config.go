// Package config loads the process-wide operational configuration described
// in the system's external interfaces: a single JSON document covering
// hunter seeds, discovery thresholds, crawler behavior, maintenance rules,
// and the LLM backend. Environment variables can override fields after the
// file is loaded: env wins over file, and file over defaults.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config is the root configuration document.
type Config struct {
	OperationalParameters OperationalParameters `json:"operational_parameters"`
	DiscoverySettings     DiscoverySettings     `json:"discovery_settings"`
	CrawlerSettings       CrawlerSettings       `json:"crawler_settings"`
	MaintenanceSettings   MaintenanceSettings   `json:"maintenance_settings"`
	LLMSettings           LLMSettings           `json:"llm_settings"`

	// CatalogPath is the sqlite database file backing the Catalog Store.
	// Not part of the spec's documented schema but required to wire the
	// store to disk; defaults to "sitecatalog.db".
	CatalogPath string `json:"catalog_path"`
	// ClassifierArtifactPath points at the serialized classifier file (§6).
	// Absence disables the statistical classifier only.
	ClassifierArtifactPath string `json:"classifier_artifact_path"`
	// ReportDir is where timestamped AfterActionReports are persisted.
	ReportDir string `json:"report_dir"`
	// CacheDir is the on-disk HTTP/LLM response cache directory.
	CacheDir string `json:"cache_dir"`
	// Verbose enables debug-level logging.
	Verbose bool `json:"verbose"`
}

type OperationalParameters struct {
	AggregatorURLs    []string `json:"aggregator_urls"`
	PermutationBases  []string `json:"permutation_bases"`
	PermutationTLDs   []string `json:"permutation_tlds"`
	SeedQueries       []string `json:"seed_queries"`
	SearxURL          string   `json:"searx_url"`
	SearxAPIKey       string   `json:"searx_api_key"`
	// SearchFilePath, when set, wires an offline/testing search provider that
	// serves results from a local JSON file instead of a live SearxNG
	// instance. Ignored when SearxURL is also set (SearxNG takes priority).
	SearchFilePath string `json:"search_file_path"`
}

type DiscoverySettings struct {
	MaxConcurrentVerifications int `json:"max_concurrent_verifications"`
	RequestTimeoutSeconds      int `json:"request_timeout"`
	VerificationConfidenceThreshold int `json:"verification_confidence_threshold"`
}

type CrawlerSettings struct {
	AIConfidenceThreshold      float64 `json:"ai_confidence_threshold"`
	MaxCrawlDepth              int     `json:"max_crawl_depth"`
	RelevancyThreshold         float64 `json:"relevancy_threshold"`
	EnableAutonomousFeedback   bool    `json:"enable_autonomous_feedback"`
	MaxPages                  int     `json:"max_pages"`
	CycleTimeout               time.Duration `json:"cycle_timeout"`
	MaxConcurrentFetches       int     `json:"max_concurrent_fetches"`
	MaxConcurrentFetchesPerHost int    `json:"max_concurrent_fetches_per_host"`
	StrictMode                 bool    `json:"strict_mode"`
	LinksPerPage               int     `json:"links_per_page"`
}

type MaintenanceSettings struct {
	DeactivationHours int `json:"deactivation_hours"`
	MaxFailedAttempts int `json:"max_failed_attempts"`
}

type LLMSettings struct {
	Endpoint    string  `json:"endpoint"`
	Model       string  `json:"model"`
	APIKeyEnv   string  `json:"api_key_env"`
	MaxTokens   int     `json:"max_tokens"`
	Temperature float64 `json:"temperature"`
	TimeoutSeconds int  `json:"timeout"`
}

// Defaults returns a Config populated with every default named in spec §6.
func Defaults() Config {
	return Config{
		DiscoverySettings: DiscoverySettings{
			MaxConcurrentVerifications:     10,
			RequestTimeoutSeconds:          5,
			VerificationConfidenceThreshold: 50,
		},
		CrawlerSettings: CrawlerSettings{
			AIConfidenceThreshold:       0.7,
			MaxCrawlDepth:               3,
			RelevancyThreshold:          0.6,
			EnableAutonomousFeedback:    true,
			MaxPages:                    200,
			CycleTimeout:                10 * time.Minute,
			MaxConcurrentFetches:        5,
			MaxConcurrentFetchesPerHost: 2,
			LinksPerPage:                10,
		},
		MaintenanceSettings: MaintenanceSettings{
			DeactivationHours: 24,
			MaxFailedAttempts: 3,
		},
		LLMSettings: LLMSettings{
			MaxTokens:      800,
			Temperature:    0.2,
			TimeoutSeconds: 30,
		},
		CatalogPath: "sitecatalog.db",
		ReportDir:   "reports",
		CacheDir:    ".scout-cache",
	}
}

// Load reads a JSON config file over the defaults. A missing file is not an
// error; the caller gets defaults. A malformed file is fatal per spec §7 and
// the returned error names the file.
func Load(path string) (Config, error) {
	cfg := Defaults()
	if strings.TrimSpace(path) == "" {
		return cfg, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := json.Unmarshal(b, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate reports the first structurally invalid field, per spec §7
// ("Configuration malformed: fatal at startup; clear message naming the
// first invalid field").
func (c Config) Validate() error {
	if c.CrawlerSettings.MaxCrawlDepth < 0 {
		return fmt.Errorf("crawler_settings.max_crawl_depth must be >= 0")
	}
	if c.CrawlerSettings.RelevancyThreshold < 0 || c.CrawlerSettings.RelevancyThreshold > 1 {
		return fmt.Errorf("crawler_settings.relevancy_threshold must be in [0,1]")
	}
	if c.CrawlerSettings.AIConfidenceThreshold < 0 || c.CrawlerSettings.AIConfidenceThreshold > 1 {
		return fmt.Errorf("crawler_settings.ai_confidence_threshold must be in [0,1]")
	}
	if c.DiscoverySettings.VerificationConfidenceThreshold < 0 || c.DiscoverySettings.VerificationConfidenceThreshold > 100 {
		return fmt.Errorf("discovery_settings.verification_confidence_threshold must be in [0,100]")
	}
	if c.MaintenanceSettings.MaxFailedAttempts < 1 {
		return fmt.Errorf("maintenance_settings.max_failed_attempts must be >= 1")
	}
	return nil
}

// ApplyEnvOverrides lets environment variables win over file values, mirroring
// the teacher's env/flag precedence idiom. internal/cli has no flag that
// overrides a config field: --config picks the file and --verbose sets the
// log level directly.
func ApplyEnvOverrides(cfg *Config) {
	if cfg == nil {
		return
	}
	if v := os.Getenv("LLM_ENDPOINT"); v != "" {
		cfg.LLMSettings.Endpoint = v
	}
	if v := os.Getenv("LLM_MODEL"); v != "" {
		cfg.LLMSettings.Model = v
	}
	if v := os.Getenv("CATALOG_PATH"); v != "" {
		cfg.CatalogPath = v
	}
	if v := os.Getenv("CACHE_DIR"); v != "" {
		cfg.CacheDir = v
	}
	if v := os.Getenv("REPORT_DIR"); v != "" {
		cfg.ReportDir = v
	}
	if v := strings.ToLower(strings.TrimSpace(os.Getenv("VERBOSE"))); v != "" {
		cfg.Verbose = v == "1" || v == "true" || v == "yes" || v == "on"
	}
	if v := os.Getenv("MAX_CRAWL_DEPTH"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.CrawlerSettings.MaxCrawlDepth = n
		}
	}
}

// APIKey resolves the LLM bearer token from the environment variable named
// in LLMSettings.APIKeyEnv. Returns empty if unset or unconfigured; callers
// treat an empty key as "analyzer credentials unavailable" (spec §4.7).
func (c Config) APIKey() string {
	if strings.TrimSpace(c.LLMSettings.APIKeyEnv) == "" {
		return ""
	}
	return os.Getenv(c.LLMSettings.APIKeyEnv)
}
