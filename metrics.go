package main

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	scansTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "shardscan_scans_total",
		Help: "Screenshot scans processed, by terminal status.",
	}, []string{"status"})

	scanDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "shardscan_scan_duration_seconds",
		Help:    "Wall time of a full locate+extract pass.",
		Buckets: prometheus.ExponentialBuckets(0.1, 2, 10),
	})

	lowConfidenceReadings = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "shardscan_low_confidence_readings_total",
		Help: "Readings that fell below the confidence floor, by shard type.",
	}, []string{"shard"})

	fallbackScans = promauto.NewCounter(prometheus.CounterOpts{
		Name: "shardscan_fallback_band_scans_total",
		Help: "Scans that used fixed fallback bands after anchor location failed.",
	})

	pullEventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "shardscan_pull_events_total",
		Help: "Ledger rows appended, by event type.",
	}, []string{"type"})

	mercyResetsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "shardscan_mercy_resets_total",
		Help: "Pity resets applied, by shard type.",
	}, []string{"shard"})

	summaryRefreshes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "shardscan_summary_refreshes_total",
		Help: "Weekly summary refreshes, split by edit vs create.",
	}, []string{"mode"})

	scanCacheHits = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "shardscan_scan_cache_total",
		Help: "Scan result cache lookups, by outcome.",
	}, []string{"outcome"})
)
