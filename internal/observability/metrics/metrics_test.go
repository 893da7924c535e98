package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
)

func TestBookingMetricsObserve(t *testing.T) {
	m := NewBookingMetrics(prometheus.NewRegistry())
	m.ObserveTurn("success", 0.5)
	m.ObserveStep("verify_patient")
	m.ObserveIdempotentReplay()
	m.ObserveRecoveryTrip()
	m.ObserveBackendCall("fetch_services", "ok")
}

func TestBookingMetricsCustomRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewBookingMetrics(reg)
	m.ObserveTurn("error", 1.2)
}

func TestBookingMetricsNilSafe(t *testing.T) {
	var m *BookingMetrics
	m.ObserveTurn("success", 0.1)
	m.ObserveStep("start")
	m.ObserveIdempotentReplay()
	m.ObserveRecoveryTrip()
	m.ObserveBackendCall("op", "ok")
}
