package metrics

import "github.com/prometheus/client_golang/prometheus"

// BookingMetrics exposes counters/histograms for the booking conversation flow.
type BookingMetrics struct {
	turnsTotal        *prometheus.CounterVec
	stepVisits        *prometheus.CounterVec
	turnLatency       *prometheus.HistogramVec
	idempotentReplays prometheus.Counter
	recoveryTrips     prometheus.Counter
	backendCalls      *prometheus.CounterVec
	outboundSends     *prometheus.CounterVec
}

func NewBookingMetrics(reg prometheus.Registerer) *BookingMetrics {
	m := &BookingMetrics{
		turnsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "medconnect",
			Subsystem: "booking",
			Name:      "turns_total",
			Help:      "Total processed conversation turns",
		}, []string{"status"}),
		stepVisits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "medconnect",
			Subsystem: "booking",
			Name:      "step_visits_total",
			Help:      "Total visits per booking flow step",
		}, []string{"step"}),
		turnLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "medconnect",
			Subsystem: "booking",
			Name:      "turn_latency_seconds",
			Help:      "Latency of turn processing",
			Buckets:   prometheus.DefBuckets,
		}, []string{"status"}),
		idempotentReplays: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "medconnect",
			Subsystem: "booking",
			Name:      "idempotent_replays_total",
			Help:      "Total duplicate messages answered from the idempotency cache",
		}),
		recoveryTrips: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "medconnect",
			Subsystem: "booking",
			Name:      "recovery_trips_total",
			Help:      "Total circuit breaker activations",
		}),
		backendCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "medconnect",
			Subsystem: "booking",
			Name:      "backend_calls_total",
			Help:      "Total clinic backend API calls",
		}, []string{"operation", "status"}),
		outboundSends: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "medconnect",
			Subsystem: "booking",
			Name:      "outbound_sends_total",
			Help:      "Total outbound WhatsApp send attempts",
		}, []string{"status"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.turnsTotal, m.stepVisits, m.turnLatency, m.idempotentReplays, m.recoveryTrips, m.backendCalls, m.outboundSends)
	return m
}

func (m *BookingMetrics) ObserveTurn(status string, seconds float64) {
	if m == nil {
		return
	}
	m.turnsTotal.WithLabelValues(status).Inc()
	m.turnLatency.WithLabelValues(status).Observe(seconds)
}

func (m *BookingMetrics) ObserveStep(step string) {
	if m == nil {
		return
	}
	m.stepVisits.WithLabelValues(step).Inc()
}

func (m *BookingMetrics) ObserveIdempotentReplay() {
	if m == nil {
		return
	}
	m.idempotentReplays.Inc()
}

func (m *BookingMetrics) ObserveRecoveryTrip() {
	if m == nil {
		return
	}
	m.recoveryTrips.Inc()
}

func (m *BookingMetrics) ObserveBackendCall(operation, status string) {
	if m == nil {
		return
	}
	m.backendCalls.WithLabelValues(operation, status).Inc()
}

func (m *BookingMetrics) ObserveOutboundSend(status string) {
	if m == nil {
		return
	}
	m.outboundSends.WithLabelValues(status).Inc()
}
