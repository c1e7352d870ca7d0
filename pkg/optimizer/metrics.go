package optimizer

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds Prometheus metrics of optimizer round-trips and session traffic.
// A nil *Metrics records nothing.
type Metrics struct {
	requests        *prometheus.CounterVec // Round-trips by outcome
	roundTrip       prometheus.Histogram   // Submit to result latency
	messages        *prometheus.CounterVec // Inbound messages by topic
	droppedMessages *prometheus.CounterVec // Messages evicted from full queues
	malformed       *prometheus.CounterVec // Messages that could not be decoded
	state           *prometheus.GaugeVec   // Current client state
}

// NewMetrics creates and registers the optimizer metrics. A nil registerer
// disables metrics.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	if reg == nil {
		return nil, nil // Metrics disabled
	}

	m := &Metrics{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "crexplace",
			Subsystem: "optimizer",
			Name:      "requests_total",
			Help:      "Optimizer requests by outcome",
		}, []string{"outcome"}),

		roundTrip: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "crexplace",
			Subsystem: "optimizer",
			Name:      "round_trip_seconds",
			Help:      "Time from submitting a request to receiving its placement",
			Buckets:   []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		}),

		messages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "crexplace",
			Subsystem: "optimizer",
			Name:      "session_messages_total",
			Help:      "Messages received on optimizer session topics",
		}, []string{"topic"}),

		droppedMessages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "crexplace",
			Subsystem: "optimizer",
			Name:      "session_dropped_messages_total",
			Help:      "Queued messages evicted because the topic queue was full",
		}, []string{"topic"}),

		malformed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "crexplace",
			Subsystem: "optimizer",
			Name:      "session_malformed_messages_total",
			Help:      "Messages dropped because they could not be decoded",
		}, []string{"topic"}),

		state: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "crexplace",
			Subsystem: "optimizer",
			Name:      "client_state",
			Help:      "Optimizer client state (1=current)",
		}, []string{"state"}),
	}

	for _, c := range []prometheus.Collector{m.requests, m.roundTrip, m.messages, m.droppedMessages, m.malformed, m.state} {
		if err := reg.Register(c); err != nil {
			var are prometheus.AlreadyRegisteredError
			if !errors.As(err, &are) {
				return nil, err
			}
		}
	}
	return m, nil
}

func (m *Metrics) recordOutcome(outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(outcome).Inc()
	if outcome == "received" {
		m.roundTrip.Observe(elapsed.Seconds())
	}
}

func (m *Metrics) recordMessage(topic string) {
	if m == nil {
		return
	}
	m.messages.WithLabelValues(topic).Inc()
}

func (m *Metrics) recordDropped(topic string) {
	if m == nil {
		return
	}
	m.droppedMessages.WithLabelValues(topic).Inc()
}

func (m *Metrics) recordMalformed(topic string) {
	if m == nil {
		return
	}
	m.malformed.WithLabelValues(topic).Inc()
}

func (m *Metrics) recordState(from, to State) {
	if m == nil {
		return
	}
	m.state.WithLabelValues(from.String()).Set(0)
	m.state.WithLabelValues(to.String()).Set(1)
}
