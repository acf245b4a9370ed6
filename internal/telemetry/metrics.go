package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ReadingsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "smartwake_readings_total",
		Help: "Finalized sleep readings by the predictor that decided final quality",
	}, []string{"source", "final_quality"})

	CloudFailuresTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "smartwake_cloud_prediction_failures_total",
		Help: "Cloud predictor calls that failed or timed out",
	})

	PendingSyncCount = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "smartwake_pending_sync_count",
		Help: "Readings waiting in the offline sync queue",
	})

	DrainedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "smartwake_sync_drained_total",
		Help: "Queued readings successfully resubmitted to the cloud",
	})

	TwinReportsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "smartwake_twin_reports_total",
		Help: "Outbound twin reports by result (sent, suppressed, deferred)",
	}, []string{"result"})

	TwinPatchesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "smartwake_twin_desired_patches_total",
		Help: "Inbound desired-property patches received",
	})

	AlarmTriggersTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "smartwake_alarm_triggers_total",
		Help: "Alarm triggers by reason",
	}, []string{"reason"})

	CycleDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "smartwake_cycle_duration_seconds",
		Help:    "Duration of scheduler cycles",
		Buckets: prometheus.DefBuckets,
	}, []string{"cycle"})
)
