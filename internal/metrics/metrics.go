package metrics

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "habitpoints"

// Recorder publishes store and sync metrics to a Prometheus registry
type Recorder struct {
	registry        *prometheus.Registry
	operations      *prometheus.CounterVec
	durations       *prometheus.HistogramVec
	persistErrors   *prometheus.CounterVec
	remoteWrites    *prometheus.CounterVec
	remoteAvailable prometheus.Gauge
	outboxDepth     prometheus.Gauge
}

// NewRecorder registers the collectors on registry. A nil registry gets a
// fresh one, which keeps tests independent of the global default.
func NewRecorder(registry *prometheus.Registry) *Recorder {
	if registry == nil {
		registry = prometheus.NewRegistry()
	}

	r := &Recorder{
		registry: registry,
		operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "operations_total",
			Help:      "Store operations by name and result.",
		}, []string{"operation", "result"}),
		durations: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "operation_duration_seconds",
			Help:      "Store operation latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation"}),
		persistErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "persist_errors_total",
			Help:      "Local persistence failures by error kind.",
		}, []string{"kind"}),
		remoteWrites: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "remote_writes_total",
			Help:      "Forwarded remote writes by operation and result.",
		}, []string{"operation", "result"}),
		remoteAvailable: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "remote_available",
			Help:      "1 when the remote backend is the source of truth.",
		}),
		outboxDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "outbox_depth",
			Help:      "Remote writes waiting to be sent.",
		}),
	}

	registry.MustRegister(
		r.operations,
		r.durations,
		r.persistErrors,
		r.remoteWrites,
		r.remoteAvailable,
		r.outboxDepth,
	)
	return r
}

// Registry returns the registry the collectors live on
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

// Handler serves the registry in the Prometheus exposition format
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}

// Observe records a store operation outcome.
func (r *Recorder) Observe(_ context.Context, operation string, success bool, duration time.Duration) {
	if operation == "" {
		return
	}
	r.operations.WithLabelValues(operation, result(success)).Inc()
	r.durations.WithLabelValues(operation).Observe(duration.Seconds())
}

func (r *Recorder) PersistError(kind string) {
	r.persistErrors.WithLabelValues(kind).Inc()
}

func (r *Recorder) RemoteWrite(operation string, success bool) {
	r.remoteWrites.WithLabelValues(operation, result(success)).Inc()
}

func (r *Recorder) SetRemoteAvailable(available bool) {
	if available {
		r.remoteAvailable.Set(1)
		return
	}
	r.remoteAvailable.Set(0)
}

func (r *Recorder) SetOutboxDepth(depth int) {
	r.outboxDepth.Set(float64(depth))
}

func result(success bool) string {
	if success {
		return "success"
	}
	return "error"
}
