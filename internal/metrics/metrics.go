// Package metrics defines the Prometheus metrics of the protocol clients.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Command metrics
var (
	CommandsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mailwire_commands_total",
			Help: "Total number of commands sent",
		},
		[]string{"protocol", "command", "status"},
	)

	CommandDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "mailwire_command_duration_seconds",
			Help:    "Duration of commands in seconds",
			Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.5, 1.0, 5.0, 30.0},
		},
		[]string{"protocol", "command"},
	)
)

// Authentication and upgrade metrics
var (
	AuthAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mailwire_auth_attempts_total",
			Help: "Total number of authentication attempts",
		},
		[]string{"protocol", "mechanism", "result"},
	)

	UpgradesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mailwire_upgrades_total",
			Help: "Total number of STARTTLS and compression negotiations",
		},
		[]string{"kind", "result"},
	)
)

// Result returns the label value for an outcome.
func Result(err error) string {
	if err != nil {
		return "failure"
	}
	return "success"
}

// ObserveCommand records a completed command. The status is the server
// status word, or "error" for local failures.
func ObserveCommand(protocol, command, status string, start time.Time) {
	CommandsTotal.WithLabelValues(protocol, command, status).Inc()
	CommandDuration.WithLabelValues(protocol, command).Observe(time.Since(start).Seconds())
}
