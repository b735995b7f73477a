// Package metrics exposes Prometheus metrics for sync passes.
package metrics

import (
	gosync "sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/sanorte/vistorias/internal/sync"
)

// Prometheus metrics for monitoring the sync engine
var (
	SyncPassesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vistoria_sync_passes_total",
			Help: "Total number of sync passes by outcome",
		},
		[]string{"outcome"},
	)

	InspectionsSyncedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "vistoria_inspections_synced_total",
			Help: "Total number of inspections acknowledged by the server",
		},
	)

	InspectionsFailedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "vistoria_inspections_failed_total",
			Help: "Total number of inspections left in SYNC_ERROR",
		},
	)

	MediaUploadedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "vistoria_media_uploaded_total",
			Help: "Total number of media files uploaded during sync passes",
		},
	)

	InspectionsPurgedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "vistoria_inspections_purged_total",
			Help: "Total number of synced inspections removed by retention",
		},
	)

	SyncPassDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "vistoria_sync_pass_duration_seconds",
			Help:    "Duration of sync passes",
			Buckets: prometheus.DefBuckets,
		},
	)

	PendingInspections = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "vistoria_pending_inspections",
			Help: "Inspections in PENDING_SYNC or SYNC_ERROR",
		},
	)

	SyncInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "vistoria_sync_in_flight",
			Help: "1 while a sync pass is running",
		},
	)
)

var registerOnce gosync.Once

// Register registers all Prometheus metrics with the default registry.
// Calling it more than once is a no-op.
func Register() {
	registerOnce.Do(func() {
		prometheus.MustRegister(SyncPassesTotal)
		prometheus.MustRegister(InspectionsSyncedTotal)
		prometheus.MustRegister(InspectionsFailedTotal)
		prometheus.MustRegister(MediaUploadedTotal)
		prometheus.MustRegister(InspectionsPurgedTotal)
		prometheus.MustRegister(SyncPassDuration)
		prometheus.MustRegister(PendingInspections)
		prometheus.MustRegister(SyncInFlight)
	})
}

// Pass outcome labels.
const (
	OutcomeOK           = "ok"
	OutcomeTransport    = "transport_error"
	OutcomeUnauthorized = "unauthorized"
	OutcomeError        = "error"
)

// Observer records sync pass events. It implements sync.Observer.
type Observer struct{}

// SyncStarted implements sync.Observer.
func (Observer) SyncStarted(candidates int) {
	SyncInFlight.Set(1)
}

// SyncFinished implements sync.Observer.
func (Observer) SyncFinished(res *sync.Result, err error) {
	SyncInFlight.Set(0)
	SyncPassesTotal.WithLabelValues(outcome(err)).Inc()
	if res == nil {
		return
	}
	SyncPassDuration.Observe(res.Duration.Seconds())
	InspectionsSyncedTotal.Add(float64(res.Synced))
	InspectionsFailedTotal.Add(float64(res.Failed))
	MediaUploadedTotal.Add(float64(res.Uploaded))
	InspectionsPurgedTotal.Add(float64(res.Purged))
}

// SetPending updates the pending gauge from a fresh store count.
func SetPending(n int) {
	PendingInspections.Set(float64(n))
}

func outcome(err error) string {
	switch {
	case err == nil:
		return OutcomeOK
	case sync.IsUserActionRequired(err):
		return OutcomeUnauthorized
	case sync.IsRetryable(err):
		return OutcomeTransport
	default:
		return OutcomeError
	}
}

var _ sync.Observer = Observer{}
