// Package metrics exposes the Prometheus instrumentation for the workers.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// IndexerQueries counts search queries per indexer and outcome.
	IndexerQueries = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "sportarr",
		Name:      "indexer_queries_total",
		Help:      "Indexer search queries issued.",
	}, []string{"indexer", "outcome"})

	// Grabs counts releases handed to download clients.
	Grabs = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "sportarr",
		Name:      "grabs_total",
		Help:      "Releases handed to download clients.",
	}, []string{"indexer"})

	// Imports counts completed library imports by source.
	Imports = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "sportarr",
		Name:      "imports_total",
		Help:      "Artifacts imported into the library.",
	}, []string{"source"})

	// Recordings counts DVR recording outcomes.
	Recordings = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "sportarr",
		Name:      "dvr_recordings_total",
		Help:      "DVR recordings by terminal status.",
	}, []string{"status"})

	// TaskRuns counts background task iterations.
	TaskRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "sportarr",
		Name:      "task_runs_total",
		Help:      "Background task iterations by outcome.",
	}, []string{"task", "outcome"})

	// QueueDepth tracks the number of non-terminal queue items.
	QueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "sportarr",
		Name:      "download_queue_depth",
		Help:      "Download queue items not yet in a terminal state.",
	})
)
