package telemetry

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	once sync.Once

	JobsStarted         = prometheus.NewCounter(prometheus.CounterOpts{Name: "magnate_jobs_started_total", Help: "Jobs admitted to a workspace"})
	JobsCompleted       = prometheus.NewCounter(prometheus.CounterOpts{Name: "magnate_jobs_completed_total", Help: "Jobs that produced their product"})
	JobsFailed          = prometheus.NewCounter(prometheus.CounterOpts{Name: "magnate_jobs_failed_total", Help: "Jobs scrapped by an operation failure"})
	JobsCancelled       = prometheus.NewCounter(prometheus.CounterOpts{Name: "magnate_jobs_cancelled_total", Help: "Jobs cancelled by the host"})
	OperationsCompleted = prometheus.NewCounter(prometheus.CounterOpts{Name: "magnate_operations_completed_total", Help: "Operation runs that advanced a job"})
	OperationFailures   = prometheus.NewCounter(prometheus.CounterOpts{Name: "magnate_operation_failures_total", Help: "Operation runs lost to a failure roll"})

	QueueDepth   = prometheus.NewGaugeVec(prometheus.GaugeOpts{Name: "magnate_queue_depth", Help: "Jobs waiting per facility"}, []string{"facility"})
	MachinesBusy = prometheus.NewGaugeVec(prometheus.GaugeOpts{Name: "magnate_machines_busy", Help: "Occupied machine slots per facility"}, []string{"facility"})

	EventSubscribers = prometheus.NewGauge(prometheus.GaugeOpts{Name: "magnate_event_subscribers", Help: "Connected websocket event subscribers"})
	AdmissionRejects = prometheus.NewCounter(prometheus.CounterOpts{Name: "magnate_admission_rejects_total", Help: "Job admissions refused by the rate limiter"})
	SnapshotSaves    = prometheus.NewCounter(prometheus.CounterOpts{Name: "magnate_snapshot_saves_total", Help: "Facility snapshots written to the store"})
	SnapshotRestores = prometheus.NewCounter(prometheus.CounterOpts{Name: "magnate_snapshot_restores_total", Help: "Facility snapshots loaded from the store"})
	TicksTotal       = prometheus.NewCounter(prometheus.CounterOpts{Name: "magnate_ticks_total", Help: "Simulation ticks executed"})
	TickDurationSecs = prometheus.NewHistogram(prometheus.HistogramOpts{Name: "magnate_tick_duration_seconds", Help: "Wall time spent per tick", Buckets: prometheus.DefBuckets})
)

// Handler exposes /metrics HTTP handler with a singleton registry.
func Handler() http.Handler {
	once.Do(func() {
		prometheus.MustRegister(
			JobsStarted,
			JobsCompleted,
			JobsFailed,
			JobsCancelled,
			OperationsCompleted,
			OperationFailures,
			QueueDepth,
			MachinesBusy,
			EventSubscribers,
			AdmissionRejects,
			SnapshotSaves,
			SnapshotRestores,
			TicksTotal,
			TickDurationSecs,
		)
	})
	return promhttp.Handler()
}
