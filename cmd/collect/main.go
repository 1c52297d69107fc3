// Command collect runs one collection pass for a topical domain: it fans the
// given queries out across the enabled paper sources, deduplicates the
// union, optionally persists the survivors, and prints a run summary.
//
// Usage:
//
//	collect -domain recovery_strategies [-max 200] [-store] [-out papers.json] "sleep recovery" "cold water immersion"
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/paperharvest/backend/internal/collector"
	"github.com/paperharvest/backend/internal/config"
	"github.com/paperharvest/backend/internal/dedup"
	"github.com/paperharvest/backend/internal/domain"
	"github.com/paperharvest/backend/internal/observability"
	"github.com/paperharvest/backend/internal/repository/postgres"
	"github.com/paperharvest/backend/pkg/arxiv"
	"github.com/paperharvest/backend/pkg/doaj"
	"github.com/paperharvest/backend/pkg/openalex"
	"github.com/paperharvest/backend/pkg/pubmed"
	"github.com/paperharvest/backend/pkg/scholar"
	"github.com/paperharvest/backend/pkg/semanticscholar"
)

func main() {
	domainName := flag.String("domain", "", "topical domain label stamped on collected records (required)")
	maxResults := flag.Int("max", 0, "max results per query per source (overrides MAX_RESULTS_PER_QUERY)")
	store := flag.Bool("store", false, "persist deduplicated records to Postgres (DATABASE_URL)")
	outPath := flag.String("out", "", "write deduplicated records as JSON to this file")
	flag.Parse()

	queries := flag.Args()
	if *domainName == "" || len(queries) == 0 {
		fmt.Fprintln(os.Stderr, "usage: collect -domain <name> [flags] <query>...")
		flag.PrintDefaults()
		os.Exit(2)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	log := newLogger(cfg.LogLevel)

	if *maxResults > 0 {
		cfg.MaxPerQuery = *maxResults
	}

	if cfg.MetricsAddr != "" {
		go serveMetrics(cfg.MetricsAddr, log)
	}

	// SIGINT/SIGTERM aborts between queries; partial results are kept.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sources := buildSources(cfg, log)
	if len(sources) == 0 {
		log.Fatal().Msg("no sources enabled")
	}

	orch := collector.NewOrchestrator(sources, cfg.MaxPerQuery, cfg.Years(), log)
	records, runStats := orch.Collect(ctx, *domainName, queries)

	engine := dedup.New(dedup.Config{
		TitleThreshold:   cfg.Dedup.TitleThreshold,
		AuthorThreshold:  cfg.Dedup.AuthorThreshold,
		AuthorTitleFloor: cfg.Dedup.AuthorTitleFloor,
	}, log)
	unique := engine.Deduplicate(records)

	if *outPath != "" {
		if err := writeJSON(*outPath, unique); err != nil {
			log.Error().Err(err).Str("path", *outPath).Msg("failed to write output")
		}
	}

	if *store {
		// Storage gets a fresh context so an aborted run still persists
		// what it collected.
		if err := persist(context.Background(), cfg, log, unique); err != nil {
			log.Error().Err(err).Msg("failed to persist records")
		}
	}

	report(log, runStats, engine.Stats())
}

func newLogger(level string) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		lvl = zerolog.InfoLevel
	}
	return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).
		Level(lvl).
		With().Timestamp().Logger()
}

func serveMetrics(addr string, log zerolog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", observability.Handler())
	log.Info().Str("addr", addr).Msg("serving metrics")
	if err := http.ListenAndServe(addr, mux); err != nil {
		log.Error().Err(err).Msg("metrics listener stopped")
	}
}

func buildSources(cfg *config.Config, log zerolog.Logger) []collector.Source {
	var sources []collector.Source

	if cfg.PubMed.Enabled {
		sources = append(sources, pubmed.NewClient(pubmed.Config{
			RateLimit:   cfg.PubMed.RateLimit,
			Timeout:     cfg.HTTP.Timeout,
			MaxAttempts: cfg.HTTP.MaxAttempts,
			BaseDelay:   cfg.HTTP.BaseDelay,
			MaxDelay:    cfg.HTTP.MaxDelay,
			Email:       cfg.PubMed.Email,
			APIKey:      cfg.PubMed.APIKey,
		}, log))
	}
	if cfg.Arxiv.Enabled {
		sources = append(sources, arxiv.NewClient(arxiv.Config{
			RateLimit:   cfg.Arxiv.RateLimit,
			Timeout:     cfg.HTTP.Timeout,
			MaxAttempts: cfg.HTTP.MaxAttempts,
			BaseDelay:   cfg.HTTP.BaseDelay,
			MaxDelay:    cfg.HTTP.MaxDelay,
		}, log))
	}
	if cfg.SemanticScholar.Enabled {
		sources = append(sources, semanticscholar.NewClient(semanticscholar.Config{
			RateLimit:   cfg.SemanticScholar.RateLimit,
			Timeout:     cfg.HTTP.Timeout,
			MaxAttempts: cfg.HTTP.MaxAttempts,
			BaseDelay:   cfg.HTTP.BaseDelay,
			MaxDelay:    cfg.HTTP.MaxDelay,
			APIKey:      cfg.SemanticScholar.APIKey,
		}, log))
	}
	if cfg.DOAJ.Enabled {
		sources = append(sources, doaj.NewClient(doaj.Config{
			RateLimit:   cfg.DOAJ.RateLimit,
			Timeout:     cfg.HTTP.Timeout,
			MaxAttempts: cfg.HTTP.MaxAttempts,
			BaseDelay:   cfg.HTTP.BaseDelay,
			MaxDelay:    cfg.HTTP.MaxDelay,
		}, log))
	}
	if cfg.OpenAlex.Enabled {
		sources = append(sources, openalex.NewClient(openalex.Config{
			RateLimit:   cfg.OpenAlex.RateLimit,
			Timeout:     cfg.HTTP.Timeout,
			MaxAttempts: cfg.HTTP.MaxAttempts,
			BaseDelay:   cfg.HTTP.BaseDelay,
			MaxDelay:    cfg.HTTP.MaxDelay,
			Email:       cfg.OpenAlex.Email,
		}, log))
	}
	if cfg.Scholar.Enabled {
		sources = append(sources, scholar.NewClient(scholar.Config{
			SerpAPIKey:  cfg.Scholar.SerpAPIKey,
			RateLimit:   cfg.Scholar.RateLimit,
			MaxPages:    cfg.Scholar.MaxPages,
			Timeout:     cfg.HTTP.Timeout,
			MaxAttempts: cfg.HTTP.MaxAttempts,
			BaseDelay:   cfg.HTTP.BaseDelay,
			MaxDelay:    cfg.HTTP.MaxDelay,
		}, log))
	}
	return sources
}

func persist(ctx context.Context, cfg *config.Config, log zerolog.Logger, records []*domain.PaperRecord) error {
	if cfg.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is not set")
	}
	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("connect to postgres: %w", err)
	}
	defer pool.Close()

	repo := postgres.NewPaperRepository(pool)
	inserted, err := repo.UpsertBatch(ctx, records)
	if err != nil {
		return err
	}
	log.Info().Int("stored", len(records)).Int("new", inserted).Msg("records persisted")
	return nil
}

func report(log zerolog.Logger, run *collector.RunStats, stats dedup.Stats) {
	for source, count := range run.Collected {
		req := run.Requests[source]
		log.Info().
			Str("source", source).
			Int("collected", count).
			Int("failures", run.Failures[source]).
			Uint64("requests_attempted", req.Attempted).
			Uint64("requests_succeeded", req.Succeeded).
			Uint64("requests_failed", req.Failed).
			Msg("source summary")
	}
	log.Info().
		Str("run_id", run.RunID).
		Str("domain", run.Domain).
		Int("raw", run.Total).
		Int("unique", stats.UniqueKept).
		Int("duplicates_removed", stats.DuplicatesRemoved).
		Float64("duplicate_rate", stats.DuplicateRate).
		Msg("run summary")
}

func writeJSON(path string, v any) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
