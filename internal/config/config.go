// Package config loads the runtime configuration from the environment,
// optionally seeded from a .env file.
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"

	"github.com/paperharvest/backend/internal/domain"
)

type Config struct {
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`
	DatabaseURL string `env:"DATABASE_URL"`

	// MetricsAddr, when set, serves Prometheus metrics on this address
	// under /metrics.
	MetricsAddr string `env:"METRICS_ADDR"`

	// MaxPerQuery caps how many records each source returns per query.
	MaxPerQuery int `env:"MAX_RESULTS_PER_QUERY" envDefault:"100"`
	YearStart   int `env:"YEAR_START"`
	YearEnd     int `env:"YEAR_END"`

	HTTP            HTTPConfig
	PubMed          PubMedConfig
	Arxiv           ArxivConfig
	SemanticScholar SemanticScholarConfig
	DOAJ            DOAJConfig
	OpenAlex        OpenAlexConfig
	Scholar         ScholarConfig
	Dedup           DedupConfig
}

// HTTPConfig applies to every source client.
type HTTPConfig struct {
	Timeout     time.Duration `env:"HTTP_TIMEOUT" envDefault:"30s"`
	MaxAttempts int           `env:"RETRY_MAX_ATTEMPTS" envDefault:"3"`
	BaseDelay   time.Duration `env:"RETRY_BASE_DELAY" envDefault:"4s"`
	MaxDelay    time.Duration `env:"RETRY_MAX_DELAY" envDefault:"10s"`
}

type PubMedConfig struct {
	Enabled   bool    `env:"PUBMED_ENABLED" envDefault:"true"`
	RateLimit float64 `env:"PUBMED_RATE_LIMIT" envDefault:"3"`
	Email     string  `env:"PUBMED_EMAIL"`
	APIKey    string  `env:"PUBMED_API_KEY"`
}

type ArxivConfig struct {
	Enabled   bool    `env:"ARXIV_ENABLED" envDefault:"true"`
	RateLimit float64 `env:"ARXIV_RATE_LIMIT" envDefault:"0.33"`
}

type SemanticScholarConfig struct {
	Enabled   bool    `env:"SEMANTIC_SCHOLAR_ENABLED" envDefault:"true"`
	RateLimit float64 `env:"SEMANTIC_SCHOLAR_RATE_LIMIT" envDefault:"1.67"`
	APIKey    string  `env:"SEMANTIC_SCHOLAR_API_KEY"`
}

type DOAJConfig struct {
	Enabled   bool    `env:"DOAJ_ENABLED" envDefault:"true"`
	RateLimit float64 `env:"DOAJ_RATE_LIMIT" envDefault:"2"`
}

type OpenAlexConfig struct {
	Enabled   bool    `env:"OPENALEX_ENABLED" envDefault:"false"`
	RateLimit float64 `env:"OPENALEX_RATE_LIMIT" envDefault:"5"`
	Email     string  `env:"OPENALEX_EMAIL"`
}

type ScholarConfig struct {
	Enabled    bool    `env:"SCHOLAR_ENABLED" envDefault:"true"`
	RateLimit  float64 `env:"SCHOLAR_RATE_LIMIT"`
	SerpAPIKey string  `env:"SERPAPI_KEY"`
	MaxPages   int     `env:"SCHOLAR_MAX_PAGES" envDefault:"10"`
}

// DedupConfig carries the matching thresholds; see the dedup package for
// their meaning.
type DedupConfig struct {
	TitleThreshold   float64 `env:"DEDUP_TITLE_THRESHOLD" envDefault:"0.85"`
	AuthorThreshold  float64 `env:"DEDUP_AUTHOR_THRESHOLD" envDefault:"0.7"`
	AuthorTitleFloor float64 `env:"DEDUP_AUTHOR_TITLE_FLOOR" envDefault:"0.7"`
}

// Load reads .env if present, then parses the environment.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}
	return cfg, nil
}

// Years returns the configured collection year bounds.
func (c *Config) Years() domain.YearRange {
	return domain.YearRange{Start: c.YearStart, End: c.YearEnd}
}
