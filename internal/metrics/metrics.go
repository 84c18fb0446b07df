// Package metrics exposes rotation and pool metrics to Prometheus.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "poolrotate"

// Update status label values.
const (
	StatusSuccess = "success"
	StatusFailure = "failure"
)

// Recorder records coordinator and pool observations on its own registry.
// It satisfies rotation.Recorder.
type Recorder struct {
	registry *prometheus.Registry

	ticks          *prometheus.CounterVec
	rounds         prometheus.Counter
	updates        *prometheus.CounterVec
	updateDuration *prometheus.HistogramVec
	lastRotation   prometheus.Gauge
	poolHealth     *prometheus.GaugeVec
	poolOpen       *prometheus.GaugeVec
}

// NewRecorder creates a recorder with a fresh registry that also carries the
// Go runtime and process collectors.
func NewRecorder() *Recorder {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Recorder{
		registry: reg,
		ticks: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "rotation_ticks_total",
				Help:      "Total number of credential checks by outcome",
			},
			[]string{"outcome"},
		),
		rounds: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "rotation_rounds_total",
				Help:      "Total number of credential changes pushed to adapters",
			},
		),
		updates: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "adapter_updates_total",
				Help:      "Total number of adapter updates by status",
			},
			[]string{"adapter", "status"},
		),
		updateDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "adapter_update_duration_seconds",
				Help:      "Duration of adapter updates in seconds",
				Buckets:   []float64{0.001, 0.01, 0.05, 0.1, 0.5, 1, 5},
			},
			[]string{"adapter"},
		),
		lastRotation: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "last_rotation_timestamp_seconds",
				Help:      "Unix time of the last credential change",
			},
		),
		poolHealth: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "pool_health_status",
				Help:      "Current pool health status (1=healthy, 0=unhealthy)",
			},
			[]string{"pool"},
		),
		poolOpen: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "pool_open_connections",
				Help:      "Open connections per pool at the last probe",
			},
			[]string{"pool"},
		),
	}
}

// Registry returns the registry the metrics live on.
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

// ObserveTick records the outcome of one credential check.
func (r *Recorder) ObserveTick(outcome string) {
	r.ticks.WithLabelValues(outcome).Inc()
}

// ObserveUpdate records one adapter update.
func (r *Recorder) ObserveUpdate(adapter string, err error, d time.Duration) {
	status := StatusSuccess
	if err != nil {
		status = StatusFailure
	}
	r.updates.WithLabelValues(adapter, status).Inc()
	r.updateDuration.WithLabelValues(adapter).Observe(d.Seconds())
}

// ObserveRotation records a completed notification round.
func (r *Recorder) ObserveRotation(at time.Time) {
	r.rounds.Inc()
	r.lastRotation.Set(float64(at.Unix()))
}

// ObservePool records the result of a pool probe.
func (r *Recorder) ObservePool(pool string, healthy bool, openConnections int) {
	value := 0.0
	if healthy {
		value = 1.0
	}
	r.poolHealth.WithLabelValues(pool).Set(value)
	r.poolOpen.WithLabelValues(pool).Set(float64(openConnections))
}
