package services

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all custom Prometheus metrics for the application
type Metrics struct {
	TreeSaves        *prometheus.CounterVec
	TreeSaveFailures *prometheus.CounterVec
	TreeSaveLatency  *prometheus.HistogramVec
	NodesWritten     *prometheus.CounterVec
	NodesDeleted     prometheus.Counter
	ImageUploads     *prometheus.CounterVec
	EditSessions     prometheus.Gauge
}

var globalMetrics *Metrics

// InitMetrics registers the Prometheus metrics. Call once at startup.
func InitMetrics() *Metrics {
	metrics := &Metrics{
		TreeSaves: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "pinetree_tree_saves_total",
			Help: "Successful tree saves by strategy",
		}, []string{"strategy"}),

		TreeSaveFailures: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "pinetree_tree_save_failures_total",
			Help: "Rejected or rolled back tree saves by reason",
		}, []string{"reason"}),

		TreeSaveLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "pinetree_tree_save_duration_seconds",
			Help:    "Tree save latency in seconds",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		}, []string{"strategy"}),

		NodesWritten: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "pinetree_nodes_written_total",
			Help: "Rows written by tree saves by operation",
		}, []string{"op"}),

		NodesDeleted: promauto.NewCounter(prometheus.CounterOpts{
			Name: "pinetree_nodes_deleted_total",
			Help: "Rows removed by single-node deletes",
		}),

		ImageUploads: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "pinetree_image_uploads_total",
			Help: "Image uploads by outcome",
		}, []string{"outcome"}),

		EditSessions: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "pinetree_edit_sessions_open",
			Help: "Server-held edit sessions currently cached",
		}),
	}

	globalMetrics = metrics
	return metrics
}

// GetMetrics returns the global metrics instance, nil before InitMetrics.
func GetMetrics() *Metrics {
	return globalMetrics
}

func failureReason(err error) string {
	switch {
	case errors.Is(err, ErrUnauthorized):
		return "unauthorized"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrValidation):
		return "validation"
	case errors.Is(err, ErrQuotaExceeded):
		return "quota"
	default:
		return "store"
	}
}

func recordSave(result *SaveResult, err error, elapsed time.Duration) {
	m := GetMetrics()
	if m == nil {
		return
	}
	if err != nil {
		m.TreeSaveFailures.WithLabelValues(failureReason(err)).Inc()
		return
	}
	m.TreeSaves.WithLabelValues(result.Strategy).Inc()
	m.TreeSaveLatency.WithLabelValues(result.Strategy).Observe(elapsed.Seconds())
	m.NodesWritten.WithLabelValues("update").Add(float64(result.Updated))
	m.NodesWritten.WithLabelValues("insert").Add(float64(result.Inserted))
	m.NodesWritten.WithLabelValues("delete").Add(float64(result.Deleted))
}

func recordDelete(removed int, err error) {
	m := GetMetrics()
	if m == nil || err != nil {
		return
	}
	m.NodesDeleted.Add(float64(removed))
}

func recordImageUpload(outcome string) {
	if m := GetMetrics(); m != nil {
		m.ImageUploads.WithLabelValues(outcome).Inc()
	}
}

func setEditSessions(n int) {
	if m := GetMetrics(); m != nil {
		m.EditSessions.Set(float64(n))
	}
}
