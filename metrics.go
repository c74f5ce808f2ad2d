package models

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
)

// Recorder receives operation counters from the manager.
type Recorder interface {
	// IncAcquire counts an acquire outcome: "complete", "already_complete",
	// "incomplete" or "cancelled".
	IncAcquire(asset, outcome string)

	// ObserveAcquireDuration records the wall time of one acquire call.
	ObserveAcquireDuration(asset string, seconds float64)

	// IncFileFailure counts a failed file, labelled by error kind.
	IncFileFailure(asset, kind string)

	// IncRemove counts a remove outcome: "removed", "cancelled",
	// "conflict" or "failed".
	IncRemove(asset, outcome string)
}

// noopRecorder implements Recorder without emitting anything.
type noopRecorder struct{}

func (noopRecorder) IncAcquire(string, string)              {}
func (noopRecorder) ObserveAcquireDuration(string, float64) {}
func (noopRecorder) IncFileFailure(string, string)          {}
func (noopRecorder) IncRemove(string, string)               {}

// PromRecorder implements Recorder backed by Prometheus collectors on a
// private registry, suitable for node-exporter textfile collection.
type PromRecorder struct {
	registry        *prometheus.Registry
	acquires        *prometheus.CounterVec
	acquireDuration *prometheus.HistogramVec
	fileFailures    *prometheus.CounterVec
	removes         *prometheus.CounterVec
}

// NewPromRecorder creates a recorder whose metric names carry namespace.
func NewPromRecorder(namespace string) *PromRecorder {
	p := &PromRecorder{
		registry: prometheus.NewRegistry(),
		acquires: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "acquire_total",
			Help:      "Asset acquisitions by asset and outcome",
		}, []string{"asset", "outcome"}),
		acquireDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "acquire_duration_seconds",
			Help:      "Wall time of asset acquisitions",
			Buckets:   prometheus.ExponentialBuckets(0.5, 4, 8),
		}, []string{"asset"}),
		fileFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "file_failures_total",
			Help:      "Failed file transfers by asset and error kind",
		}, []string{"asset", "kind"}),
		removes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "remove_total",
			Help:      "Asset removals by asset and outcome",
		}, []string{"asset", "outcome"}),
	}
	p.registry.MustRegister(p.acquires, p.acquireDuration, p.fileFailures, p.removes)
	return p
}

func (p *PromRecorder) IncAcquire(asset, outcome string) {
	p.acquires.WithLabelValues(asset, outcome).Inc()
}

func (p *PromRecorder) ObserveAcquireDuration(asset string, seconds float64) {
	p.acquireDuration.WithLabelValues(asset).Observe(seconds)
}

func (p *PromRecorder) IncFileFailure(asset, kind string) {
	p.fileFailures.WithLabelValues(asset, kind).Inc()
}

func (p *PromRecorder) IncRemove(asset, outcome string) {
	p.removes.WithLabelValues(asset, outcome).Inc()
}

// Gatherer exposes the private registry.
func (p *PromRecorder) Gatherer() prometheus.Gatherer {
	return p.registry
}

// WriteTextfile writes every collected metric to path in the Prometheus
// text format. The write is atomic.
func (p *PromRecorder) WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, p.registry)
}

// errorKind labels an error for metrics and summaries.
func errorKind(err error) string {
	switch {
	case err == nil:
		return "none"
	case errors.Is(err, ErrRepositoryNotFound):
		return "repository_not_found"
	case errors.Is(err, ErrEntryNotFound):
		return "entry_not_found"
	case errors.Is(err, ErrAuthRequired):
		return "auth_required"
	case errors.Is(err, ErrIncompleteTransfer):
		return "incomplete_transfer"
	case errors.Is(err, ErrPermissionDenied):
		return "permission_denied"
	case errors.Is(err, ErrStorageError):
		return "storage"
	case errors.Is(err, ErrNetworkError):
		return "network"
	default:
		return "other"
	}
}
