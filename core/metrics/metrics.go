package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "twinrelay"

// Outcome label values
const (
	OutcomeEmitted = "emitted"
	OutcomeEmpty   = "empty"
	OutcomeError   = "error"
	OutcomeOK      = "ok"
)

// Metrics holds the prometheus collectors of a twinrelay process. A nil *Metrics is
// valid and records nothing, so components can run without metrics.
type Metrics struct {
	messagesTotal  *prometheus.CounterVec   // By source and outcome
	flattenErrors  *prometheus.CounterVec   // By error kind
	sinkWrites     *prometheus.CounterVec   // By sink and outcome
	sinkDuration   *prometheus.HistogramVec // By sink
	cyclesTotal    *prometheus.CounterVec   // By plugin, capability and outcome
	twinUpdates    *prometheus.CounterVec   // By outcome
	telemetryTotal *prometheus.CounterVec   // By outcome
	hubClients     prometheus.Gauge
}

// New creates the collectors and registers them with reg
func New(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		messagesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "relay",
			Name:      "messages_total",
			Help:      "Total number of patch messages handled by the relay",
		}, []string{"source", "outcome"}),

		flattenErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "relay",
			Name:      "flatten_errors_total",
			Help:      "Total number of patch messages rejected by the flattener",
		}, []string{"kind"}),

		sinkWrites: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "relay",
			Name:      "sink_writes_total",
			Help:      "Total number of record writes per sink",
		}, []string{"sink", "outcome"}),

		sinkDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "relay",
			Name:      "sink_write_duration_seconds",
			Help:      "Duration of record writes per sink",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 12),
		}, []string{"sink"}),

		cyclesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "simulator",
			Name:      "cycles_total",
			Help:      "Total number of simulator cycles",
		}, []string{"plugin", "capability", "outcome"}),

		twinUpdates: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "twin",
			Name:      "updates_total",
			Help:      "Total number of twin patch applications",
		}, []string{"outcome"}),

		telemetryTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "mqtt",
			Name:      "telemetry_total",
			Help:      "Total number of telemetry messages received from devices",
		}, []string{"outcome"}),

		hubClients: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "broadcast",
			Name:      "clients",
			Help:      "Number of connected realtime clients",
		}),
	}

	for _, c := range []prometheus.Collector{
		m.messagesTotal, m.flattenErrors, m.sinkWrites, m.sinkDuration,
		m.cyclesTotal, m.twinUpdates, m.telemetryTotal, m.hubClients,
	} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// Handler returns the http handler exposing the metrics gathered by g
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}

func outcome(err error) string {
	if err != nil {
		return OutcomeError
	}
	return OutcomeOK
}

// RecordMessage records one relay message from source with the given outcome
func (m *Metrics) RecordMessage(source, outcome string) {
	if m == nil {
		return
	}
	m.messagesTotal.WithLabelValues(source, outcome).Inc()
}

// RecordFlattenError records a message rejected by the flattener
func (m *Metrics) RecordFlattenError(kind string) {
	if m == nil {
		return
	}
	m.flattenErrors.WithLabelValues(kind).Inc()
}

// RecordSinkWrite records a write to sink
func (m *Metrics) RecordSinkWrite(sink string, duration time.Duration, err error) {
	if m == nil {
		return
	}
	m.sinkWrites.WithLabelValues(sink, outcome(err)).Inc()
	m.sinkDuration.WithLabelValues(sink).Observe(duration.Seconds())
}

// RecordCycle records one simulator cycle
func (m *Metrics) RecordCycle(plugin, capability string, err error) {
	if m == nil {
		return
	}
	m.cyclesTotal.WithLabelValues(plugin, capability, outcome(err)).Inc()
}

// RecordTwinUpdate records one patch application on a twin
func (m *Metrics) RecordTwinUpdate(err error) {
	if m == nil {
		return
	}
	m.twinUpdates.WithLabelValues(outcome(err)).Inc()
}

// RecordTelemetry records one telemetry message received from a device
func (m *Metrics) RecordTelemetry(err error) {
	if m == nil {
		return
	}
	m.telemetryTotal.WithLabelValues(outcome(err)).Inc()
}

// SetHubClients sets the number of connected realtime clients
func (m *Metrics) SetHubClients(n int) {
	if m == nil {
		return
	}
	m.hubClients.Set(float64(n))
}
