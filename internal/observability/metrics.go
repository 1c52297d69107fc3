// Package observability holds the process-wide Prometheus collectors.
package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Handler serves the process metrics for scraping.
func Handler() http.Handler { return promhttp.Handler() }

var (
	// SourceRequests counts HTTP attempts per source, labeled by outcome
	// (success, failed, blocked).
	SourceRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "paperharvest",
		Subsystem: "collector",
		Name:      "requests_total",
		Help:      "HTTP request attempts per source and outcome.",
	}, []string{"source", "outcome"})

	// PapersCollected counts records emitted by each source adapter.
	PapersCollected = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "paperharvest",
		Subsystem: "collector",
		Name:      "papers_collected_total",
		Help:      "Paper records collected per source.",
	}, []string{"source"})

	// SourceFailures counts (query, source) pairs that contributed nothing.
	SourceFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "paperharvest",
		Subsystem: "collector",
		Name:      "source_failures_total",
		Help:      "Whole-source failures recorded by the orchestrator.",
	}, []string{"source"})

	// DuplicatesRemoved counts records dropped by each dedup pass.
	DuplicatesRemoved = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "paperharvest",
		Subsystem: "dedup",
		Name:      "duplicates_removed_total",
		Help:      "Duplicate records removed per deduplication pass.",
	}, []string{"pass"})

	// CollectDuration observes wall-clock time of one search call.
	CollectDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "paperharvest",
		Subsystem: "collector",
		Name:      "search_duration_seconds",
		Help:      "Duration of one source search call.",
		Buckets:   prometheus.ExponentialBuckets(0.25, 2, 10),
	}, []string{"source"})
)
