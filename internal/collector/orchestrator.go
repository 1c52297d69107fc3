package collector

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/paperharvest/backend/internal/domain"
	"github.com/paperharvest/backend/internal/observability"
	"github.com/paperharvest/backend/pkg/httpclient"
)

// RunStats summarizes one Collect call for the end-of-run report.
type RunStats struct {
	RunID     string                      `json:"run_id"`
	Domain    string                      `json:"domain"`
	Queries   int                         `json:"queries"`
	Total     int                         `json:"total"`
	Collected map[string]int              `json:"collected"` // per source
	Failures  map[string]int              `json:"failures"`  // per source, (query, source) pairs that errored
	Requests  map[string]httpclient.Stats `json:"requests"`  // per source HTTP counters
}

// Orchestrator runs queries against every configured source. One source's
// failure is recorded and treated as zero results for that (query, source)
// pair; it never aborts the batch.
type Orchestrator struct {
	sources     []Source
	maxPerQuery int
	years       domain.YearRange
	log         zerolog.Logger
}

func NewOrchestrator(sources []Source, maxPerQuery int, years domain.YearRange, log zerolog.Logger) *Orchestrator {
	if maxPerQuery <= 0 {
		maxPerQuery = 100
	}
	return &Orchestrator{
		sources:     sources,
		maxPerQuery: maxPerQuery,
		years:       years,
		log:         log.With().Str("component", "orchestrator").Logger(),
	}
}

type sourceResult struct {
	source  string
	records []*domain.PaperRecord
	err     error
}

// Collect runs every query against every source and returns the raw union,
// with topicDomain and the originating query stamped on each record. No
// deduplication happens here. Cancellation is checked between queries;
// records already collected are kept and returned.
func (o *Orchestrator) Collect(ctx context.Context, topicDomain string, queries []string) ([]*domain.PaperRecord, *RunStats) {
	stats := &RunStats{
		RunID:     uuid.NewString(),
		Domain:    topicDomain,
		Collected: make(map[string]int, len(o.sources)),
		Failures:  make(map[string]int, len(o.sources)),
		Requests:  make(map[string]httpclient.Stats, len(o.sources)),
	}
	log := o.log.With().Str("run_id", stats.RunID).Str("domain", topicDomain).Logger()

	var all []*domain.PaperRecord
	for _, query := range queries {
		if ctx.Err() != nil {
			log.Warn().Err(ctx.Err()).Msg("run aborted, keeping partial results")
			break
		}
		stats.Queries++
		all = append(all, o.collectQuery(ctx, log, stats, topicDomain, query)...)
	}

	for _, src := range o.sources {
		stats.Requests[src.Name()] = src.Stats()
	}

	stats.Total = len(all)
	log.Info().Int("records", stats.Total).Int("queries", stats.Queries).Msg("collection finished")
	return all, stats
}

// collectQuery fans one query out to all sources concurrently. Each source
// serializes its own calls, so cross-source concurrency never violates a
// per-source rate limit.
func (o *Orchestrator) collectQuery(ctx context.Context, log zerolog.Logger, stats *RunStats, topicDomain, query string) []*domain.PaperRecord {
	results := make(chan sourceResult, len(o.sources))
	for _, src := range o.sources {
		go func(src Source) {
			started := time.Now()
			records, err := src.Search(ctx, query, o.maxPerQuery, o.years)
			observability.CollectDuration.WithLabelValues(src.Name()).Observe(time.Since(started).Seconds())
			results <- sourceResult{source: src.Name(), records: records, err: err}
		}(src)
	}

	// Gather everything first, then append in configured source order so
	// the output ordering does not depend on goroutine scheduling.
	bySource := make(map[string]sourceResult, len(o.sources))
	for range o.sources {
		res := <-results
		bySource[res.source] = res
	}

	var collected []*domain.PaperRecord
	for _, src := range o.sources {
		res := bySource[src.Name()]
		if res.err != nil {
			// Partial results delivered alongside the error are kept;
			// sources that stop early (blocking, exhausted retries)
			// still contribute what they found.
			stats.Failures[res.source]++
			observability.SourceFailures.WithLabelValues(res.source).Inc()
			log.Warn().Err(res.err).Str("source", res.source).Str("query", query).Msg("source failed")
		}
		for _, rec := range res.records {
			rec.Domain = topicDomain
			rec.SetExtra("query", query)
		}
		stats.Collected[res.source] += len(res.records)
		observability.PapersCollected.WithLabelValues(res.source).Add(float64(len(res.records)))
		collected = append(collected, res.records...)

		log.Debug().Str("source", res.source).Str("query", query).Int("records", len(res.records)).Msg("query collected")
	}
	return collected
}
