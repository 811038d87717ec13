package connection

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/lance13c/cdplink/internal/logging"
)

// Metrics counts probe and connect outcomes. Managers built on the same
// Registerer share one set of collectors; a nil Registerer keeps them
// unregistered.
type Metrics struct {
	Probes      *prometheus.CounterVec
	Connects    *prometheus.CounterVec
	Failures    *prometheus.CounterVec
	LiveHandles prometheus.Gauge
}

// NewMetrics creates the connection collectors on reg, reusing any already
// registered there.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	return &Metrics{
		Probes: register(reg, prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cdplink_probes_total",
				Help: "Endpoint metadata probes by result",
			},
			[]string{"result"},
		)),
		Connects: register(reg, prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cdplink_connect_attempts_total",
				Help: "Control session attempts by result",
			},
			[]string{"result"},
		)),
		Failures: register(reg, prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cdplink_terminal_failures_total",
				Help: "Connect and launch calls that gave up, by kind",
			},
			[]string{"kind"},
		)),
		LiveHandles: register(reg, prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "cdplink_live_handles",
				Help: "Connected browser handles not yet disconnected",
			},
		)),
	}
}

func register[T prometheus.Collector](reg prometheus.Registerer, c T) T {
	if reg == nil {
		return c
	}

	err := reg.Register(c)
	if err == nil {
		return c
	}

	var are prometheus.AlreadyRegisteredError
	if errors.As(err, &are) {
		if existing, ok := are.ExistingCollector.(T); ok {
			return existing
		}
	}
	logging.Warn("Metric left unregistered: %v", err)
	return c
}

const (
	resultOK          = "ok"
	resultUnavailable = "unavailable"
	resultError       = "error"

	kindRetriesExhausted = "retries_exhausted"
	kindLaunchTimeout    = "launch_timeout"
	kindLaunch           = "launch"
	kindCancelled        = "cancelled"
)
