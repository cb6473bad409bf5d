package sharprudp

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus collectors the engine updates as it runs.
// A nil *Metrics is valid and every method on it is a no-op. A Conn
// always has one: newConn falls back to defaultMetricsFor when no
// registerer is passed.
type Metrics struct {
	sent        prometheus.Counter
	received    prometheus.Counter
	dropped     *prometheus.CounterVec
	resets      *prometheus.CounterVec
	unconfirmed *prometheus.GaugeVec
	reassembled prometheus.Counter
}

// NewMetrics registers the engine's collectors under namespace against reg.
// Passing a nil reg registers against prometheus.DefaultRegisterer.
func NewMetrics(namespace string, reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	m := &Metrics{
		sent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "packets_sent_total",
			Help: "Packets transmitted to the socket.",
		}),
		received: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "packets_received_total",
			Help: "Packets accepted off the socket.",
		}),
		dropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "packets_dropped_total",
			Help: "Packets dropped, by reason.",
		}, []string{"reason"}),
		resets: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "resets_total",
			Help: "Connection resets, by side.",
		}, []string{"side"}),
		unconfirmed: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace, Name: "unconfirmed_segments",
			Help: "Packets awaiting acknowledgement, by peer.",
		}, []string{"peer"}),
		reassembled: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "fragments_reassembled_total",
			Help: "User messages completed via fragment reassembly.",
		}),
	}

	reg.MustRegister(m.sent, m.received, m.dropped, m.resets, m.unconfirmed, m.reassembled)
	return m
}

var (
	defaultMetricsMu sync.Mutex
	defaultMetrics   = map[string]*Metrics{}
)

// defaultMetricsFor returns the process-wide Metrics instance for
// namespace, registering it against prometheus.DefaultRegisterer on first
// use. newConn calls this when the caller never passed
// WithMetricsRegisterer, so repeated Listen/Connect calls in the same
// process (a server and several clients, or a test suite) share one set
// of collectors per namespace instead of panicking on double
// registration. Mirrors the singleton default-metrics instance pattern in
// vango's middleware package.
func defaultMetricsFor(namespace string) *Metrics {
	defaultMetricsMu.Lock()
	defer defaultMetricsMu.Unlock()
	if m, ok := defaultMetrics[namespace]; ok {
		return m
	}
	m := NewMetrics(namespace, nil)
	defaultMetrics[namespace] = m
	return m
}

func (m *Metrics) incSent() {
	if m == nil {
		return
	}
	m.sent.Inc()
}

func (m *Metrics) incReceived() {
	if m == nil {
		return
	}
	m.received.Inc()
}

func (m *Metrics) incDropped(reason string) {
	if m == nil {
		return
	}
	m.dropped.WithLabelValues(reason).Inc()
}

func (m *Metrics) incReset(side string) {
	if m == nil {
		return
	}
	m.resets.WithLabelValues(side).Inc()
}

func (m *Metrics) setUnconfirmed(peer string, n int) {
	if m == nil {
		return
	}
	m.unconfirmed.WithLabelValues(peer).Set(float64(n))
}

func (m *Metrics) incReassembled() {
	if m == nil {
		return
	}
	m.reassembled.Inc()
}
