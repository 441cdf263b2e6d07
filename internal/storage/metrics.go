package storage

import "github.com/prometheus/client_golang/prometheus"

var (
	// OperationsTotal counts durable operations drained by the write queue.
	OperationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "inkwell_storage_operations_total",
			Help: "Durable storage operations by kind and result",
		},
		[]string{"op", "result"},
	)

	// OperationDuration records how long each queued operation took.
	OperationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "inkwell_storage_operation_duration_seconds",
			Help:    "Durable storage operation duration",
			Buckets: prometheus.ExponentialBuckets(0.0005, 4, 8),
		},
		[]string{"op"},
	)

	// QueueDepth is the number of operations waiting in the write queue.
	QueueDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "inkwell_storage_queue_depth",
			Help: "Pending write queue operations",
		},
	)

	// CacheReadsTotal counts synchronous reads by how they were answered.
	CacheReadsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "inkwell_storage_cache_reads_total",
			Help: "Synchronous reads by outcome",
		},
		[]string{"result"}, // hit, miss, fallback
	)

	// FallbackMode is 1 while the service runs without a durable store.
	FallbackMode = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "inkwell_storage_fallback_mode",
			Help: "1 when the durable store is unavailable",
		},
	)

	// Hydrated is 1 once the read cache has been loaded.
	Hydrated = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "inkwell_storage_hydrated",
			Help: "1 once hydration has completed",
		},
	)

	// MigratedKeysTotal counts legacy keys handled by migration.
	MigratedKeysTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "inkwell_storage_migrated_keys_total",
			Help: "Legacy keys handled by migration",
		},
		[]string{"result"}, // migrated, skipped, failed
	)
)

func init() {
	prometheus.MustRegister(
		OperationsTotal,
		OperationDuration,
		QueueDepth,
		CacheReadsTotal,
		FallbackMode,
		Hydrated,
		MigratedKeysTotal,
	)
}

func resultLabel(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
