package monitoring

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	// HTTP metrics
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec

	// Operation metrics
	Operations        *prometheus.CounterVec
	OperationDuration *prometheus.HistogramVec

	// Registry and supervision metrics
	AppsRegistered   prometheus.Gauge
	InstancesTracked prometheus.Gauge
	InstancesAlive   prometheus.Gauge
	InstancesPruned  prometheus.Counter

	// Event stream metrics
	EventSubscribers prometheus.Gauge

	startTime time.Time
}

// NewMetrics creates a metrics collector registered on reg
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	m := &Metrics{
		startTime: time.Now(),

		RequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "seadaemon_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		RequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "seadaemon_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60},
			},
			[]string{"method", "path"},
		),

		Operations: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "seadaemon_operations_total",
				Help: "Daemon operations by kind and outcome",
			},
			[]string{"operation", "result"},
		),
		OperationDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "seadaemon_operation_duration_seconds",
				Help:    "Daemon operation duration in seconds",
				Buckets: []float64{.001, .01, .1, .5, 1, 5, 15, 60, 300},
			},
			[]string{"operation"},
		),

		AppsRegistered: factory.NewGauge(prometheus.GaugeOpts{
			Name: "seadaemon_apps_registered",
			Help: "Number of apps present in the daemon config",
		}),
		InstancesTracked: factory.NewGauge(prometheus.GaugeOpts{
			Name: "seadaemon_instances_tracked",
			Help: "Number of app instances in the tracked set",
		}),
		InstancesAlive: factory.NewGauge(prometheus.GaugeOpts{
			Name: "seadaemon_instances_alive",
			Help: "Number of tracked app instances alive at the last poll",
		}),
		InstancesPruned: factory.NewCounter(prometheus.CounterOpts{
			Name: "seadaemon_instances_pruned_total",
			Help: "Dead instances dropped from the tracked set",
		}),

		EventSubscribers: factory.NewGauge(prometheus.GaugeOpts{
			Name: "seadaemon_event_subscribers",
			Help: "Connected lifecycle event stream clients",
		}),
	}

	factory.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "seadaemon_uptime_seconds",
		Help: "Daemon uptime in seconds",
	}, func() float64 {
		return time.Since(m.startTime).Seconds()
	})

	return m
}

// RecordHTTPRequest records an HTTP request
func (m *Metrics) RecordHTTPRequest(method, path, status string, duration time.Duration) {
	m.RequestsTotal.WithLabelValues(method, path, status).Inc()
	m.RequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// RecordOperation records the outcome and duration of a daemon operation
func (m *Metrics) RecordOperation(operation, result string, duration time.Duration) {
	m.Operations.WithLabelValues(operation, result).Inc()
	m.OperationDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// SetAppsRegistered sets the number of registered apps
func (m *Metrics) SetAppsRegistered(n int) {
	m.AppsRegistered.Set(float64(n))
}

// SetInstances sets the tracked and alive instance gauges
func (m *Metrics) SetInstances(tracked, alive int) {
	m.InstancesTracked.Set(float64(tracked))
	m.InstancesAlive.Set(float64(alive))
}

// AddPruned counts instances dropped from the tracked set
func (m *Metrics) AddPruned(n int) {
	m.InstancesPruned.Add(float64(n))
}

// IncSubscribers increments the event subscriber gauge
func (m *Metrics) IncSubscribers() {
	m.EventSubscribers.Inc()
}

// DecSubscribers decrements the event subscriber gauge
func (m *Metrics) DecSubscribers() {
	m.EventSubscribers.Dec()
}

// Uptime returns time since the collector was created
func (m *Metrics) Uptime() time.Duration {
	return time.Since(m.startTime)
}
