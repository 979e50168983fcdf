package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all configuration for the GodsEye server.
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Upstream UpstreamConfig
	Polling  PollingConfig
	Analysis AnalysisConfig
}

type ServerConfig struct {
	Port int
	Env  string
}

type DatabaseConfig struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

type RedisConfig struct {
	URL string
}

// UpstreamConfig covers the scraper and analyzer HTTP services.
type UpstreamConfig struct {
	ScraperURL      string
	AnalyzerBaseURL string
	Timeout         time.Duration
	MaxRetries      int
	RetryBaseDelay  time.Duration
	RetryMaxDelay   time.Duration
	// AllowDebugShapes accepts the analyzer's bare-text debug responses.
	// Keep off outside development.
	AllowDebugShapes bool
}

// PollingConfig bounds the job-result poll loop.
type PollingConfig struct {
	Interval    time.Duration
	MaxAttempts int
}

// AnalysisConfig selects the engines to track and how each engine's upstream
// runs. Modes maps engine name to "direct" or "job"; engines not listed run
// direct.
type AnalysisConfig struct {
	Engines  []string
	Modes    map[string]string
	Location string
}

// Load reads configuration from environment variables and returns a validated Config.
// Returns an error with a descriptive message if any required value is missing or invalid.
func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Port: envInt("GODSEYE_PORT", 8080),
			Env:  envString("GODSEYE_ENV", "development"),
		},
		Database: DatabaseConfig{
			URL:             os.Getenv("DATABASE_URL"),
			MaxOpenConns:    envInt("DATABASE_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    envInt("DATABASE_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: envDuration("DATABASE_CONN_MAX_LIFETIME", 5*time.Minute),
		},
		Redis: RedisConfig{
			URL: os.Getenv("REDIS_URL"),
		},
		Upstream: UpstreamConfig{
			ScraperURL:       os.Getenv("SCRAPER_URL"),
			AnalyzerBaseURL:  os.Getenv("ANALYZER_BASE_URL"),
			Timeout:          envDuration("UPSTREAM_TIMEOUT", 60*time.Second),
			MaxRetries:       envInt("UPSTREAM_MAX_RETRIES", 2),
			RetryBaseDelay:   envDuration("UPSTREAM_RETRY_BASE_DELAY", 500*time.Millisecond),
			RetryMaxDelay:    envDuration("UPSTREAM_RETRY_MAX_DELAY", 8*time.Second),
			AllowDebugShapes: envBool("UPSTREAM_ALLOW_DEBUG_SHAPES", false),
		},
		Polling: PollingConfig{
			Interval:    envDuration("POLL_INTERVAL", 5*time.Second),
			MaxAttempts: envInt("POLL_MAX_ATTEMPTS", 60),
		},
		Analysis: AnalysisConfig{
			Engines:  envList("ANALYSIS_ENGINES", []string{"google", "perplexity"}),
			Modes:    envPairs("ANALYSIS_MODES"),
			Location: envString("ANALYSIS_LOCATION", "United States"),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.Database.URL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}

	if c.Redis.URL == "" {
		return fmt.Errorf("REDIS_URL is required")
	}

	if c.Upstream.ScraperURL == "" {
		return fmt.Errorf("SCRAPER_URL is required")
	}
	if !strings.HasPrefix(c.Upstream.ScraperURL, "http://") && !strings.HasPrefix(c.Upstream.ScraperURL, "https://") {
		return fmt.Errorf("SCRAPER_URL must start with http:// or https://, got %q", c.Upstream.ScraperURL)
	}

	if c.Upstream.AnalyzerBaseURL == "" {
		return fmt.Errorf("ANALYZER_BASE_URL is required")
	}
	if !strings.HasPrefix(c.Upstream.AnalyzerBaseURL, "http://") && !strings.HasPrefix(c.Upstream.AnalyzerBaseURL, "https://") {
		return fmt.Errorf("ANALYZER_BASE_URL must start with http:// or https://, got %q", c.Upstream.AnalyzerBaseURL)
	}

	if c.Upstream.MaxRetries < 0 {
		return fmt.Errorf("UPSTREAM_MAX_RETRIES must be >= 0, got %d", c.Upstream.MaxRetries)
	}

	if c.Polling.Interval <= 0 {
		return fmt.Errorf("POLL_INTERVAL must be positive, got %s", c.Polling.Interval)
	}
	if c.Polling.MaxAttempts < 1 {
		return fmt.Errorf("POLL_MAX_ATTEMPTS must be >= 1, got %d", c.Polling.MaxAttempts)
	}

	if len(c.Analysis.Engines) == 0 {
		return fmt.Errorf("ANALYSIS_ENGINES must name at least one engine")
	}
	engines := make(map[string]bool, len(c.Analysis.Engines))
	for _, e := range c.Analysis.Engines {
		engines[e] = true
	}
	for engine, mode := range c.Analysis.Modes {
		if !engines[engine] {
			return fmt.Errorf("ANALYSIS_MODES references unknown engine %q", engine)
		}
		if mode != "direct" && mode != "job" {
			return fmt.Errorf("ANALYSIS_MODES mode for %q must be direct or job, got %q", engine, mode)
		}
	}

	return nil
}

func envString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func envBool(key string, defaultVal bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return defaultVal
	}
	return b
}

func envDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}

// envList parses a comma-separated value, e.g. "google,perplexity".
func envList(key string, defaultVal []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return defaultVal
	}
	return out
}

// envPairs parses "key=value,key=value", e.g. "google=job,perplexity=direct".
// Malformed entries are skipped.
func envPairs(key string) map[string]string {
	out := make(map[string]string)
	v := os.Getenv(key)
	if v == "" {
		return out
	}
	for _, part := range strings.Split(v, ",") {
		kv := strings.SplitN(part, "=", 2)
		if len(kv) != 2 {
			continue
		}
		k := strings.TrimSpace(kv[0])
		val := strings.TrimSpace(kv[1])
		if k != "" && val != "" {
			out[k] = val
		}
	}
	return out
}
