package runlog

import (
	"fmt"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics counts invocations per logger in a registry private to one session.
type Metrics struct {
	registry *prometheus.Registry
	runs     *prometheus.CounterVec
	duration *prometheus.HistogramVec
	exits    *prometheus.CounterVec
}

func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		runs: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "labctl",
				Subsystem: "run",
				Name:      "total",
				Help:      "Command invocations by outcome.",
			},
			[]string{"logger", "status"},
		),
		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "labctl",
				Subsystem: "run",
				Name:      "duration_seconds",
				Help:      "Wall-clock duration of command invocations.",
				Buckets:   prometheus.ExponentialBuckets(0.01, 4, 10),
			},
			[]string{"logger"},
		),
		exits: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "labctl",
				Subsystem: "run",
				Name:      "exit_codes_total",
				Help:      "Command invocations by exit code.",
			},
			[]string{"logger", "code"},
		),
	}
	m.registry.MustRegister(m.runs, m.duration, m.exits)
	return m
}

// Observe records one finished invocation.
func (m *Metrics) Observe(logger string, rec Record, procErr error) {
	status := "ok"
	switch {
	case procErr != nil:
		status = "error"
	case rec.ExitCode != 0:
		status = "failed"
	}
	m.runs.WithLabelValues(logger, status).Inc()
	m.duration.WithLabelValues(logger).Observe(rec.Elapsed.Seconds())
	m.exits.WithLabelValues(logger, strconv.Itoa(rec.ExitCode)).Inc()
}

// WriteTextfile writes the registry in the Prometheus text format.
func (m *Metrics) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, m.registry); err != nil {
		return fmt.Errorf("runlog: write metrics %s: %w", path, err)
	}
	return nil
}
