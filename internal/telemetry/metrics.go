package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Метрики регистрируются в default registry и отдаются через promhttp.Handler().
var (
	ActiveRestores = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "surveyor",
		Name:      "active_restores",
		Help:      "Restores in the orchestrator working set.",
	})

	LiveDownloadWorkers = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "surveyor",
		Name:      "live_download_workers",
		Help:      "Per-file download workers currently running.",
	})

	StagingBytes = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "surveyor",
		Name:      "staging_bytes",
		Help:      "Bytes on disk in the download staging directory at the last admission check.",
	})

	RestoresRequested = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "surveyor",
		Name:      "restores_requested_total",
		Help:      "Restore requests sent to the remote service, by outcome.",
	}, []string{"outcome"})

	DownloadAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "surveyor",
		Name:      "download_attempts_total",
		Help:      "Finished download attempts, by reconciled status.",
	}, []string{"status"})

	DownloadedBytes = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "surveyor",
		Name:      "downloaded_bytes_total",
		Help:      "Bytes of files accepted as downloaded.",
	})

	JobSubmissions = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "surveyor",
		Name:      "job_submissions_total",
		Help:      "Jobs submitted to the batch queue.",
	})

	JobDeletions = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "surveyor",
		Name:      "job_deletions_total",
		Help:      "Jobs removed from the pool.",
	})

	TrackedJobs = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "surveyor",
		Name:      "tracked_jobs",
		Help:      "Jobs in the pool, by status.",
	}, []string{"status"})

	StoreRetries = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "surveyor",
		Name:      "store_retries_total",
		Help:      "Tracker store transactions retried after a lock error.",
	})

	APIRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "surveyor",
		Name:      "api_request_duration_seconds",
		Help:      "Status API request latency, by route and response code.",
		Buckets:   prometheus.ExponentialBuckets(0.001, 4, 7),
	}, []string{"route", "code"})
)
