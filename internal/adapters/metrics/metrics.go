package metrics

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/bnema/coplay/internal/domain"
	"github.com/bnema/coplay/internal/ports"
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "coplay"

// Metrics collects the counters of one run in a private registry. A CLI run
// has no scrape endpoint, so the registry is exported to a node-exporter
// textfile instead.
type Metrics struct {
	registry *prometheus.Registry

	gateAdmissions *prometheus.CounterVec
	gateWait       *prometheus.HistogramVec
	renames        prometheus.Counter
	coPlayAccounts prometheus.Gauge
	lastSync       prometheus.Gauge
}

var (
	_ ports.GateStatsStore = (*Metrics)(nil)
	_ ports.RenameSink     = (*Metrics)(nil)
)

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		gateAdmissions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "gate_admissions_total",
			Help:      "Rate-limit gate decisions by operation and outcome.",
		}, []string{"operation", "outcome"}),
		gateWait: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "gate_wait_seconds",
			Help:      "Time spent waiting for a gate permit.",
			Buckets:   []float64{0.001, 0.01, 0.1, 0.25, 0.5, 0.75, 1, 1.5},
		}, []string{"operation"}),
		renames: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "renames_total",
			Help:      "Nickname changes sent to the social network.",
		}),
		coPlayAccounts: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "coplay_accounts",
			Help:      "Accounts with at least one co-played match in the window.",
		}),
		lastSync: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_run_timestamp_seconds",
			Help:      "Unix time the last run finished.",
		}),
	}

	m.registry.MustRegister(m.gateAdmissions, m.gateWait, m.renames, m.coPlayAccounts, m.lastSync)
	return m
}

func (m *Metrics) Record(_ context.Context, ev domain.GateEvent) error {
	outcome := "allowed"
	if !ev.Allowed {
		outcome = "denied"
	}
	m.gateAdmissions.WithLabelValues(ev.Name, outcome).Inc()
	m.gateWait.WithLabelValues(ev.Name).Observe(ev.Waited.Seconds())
	return nil
}

func (m *Metrics) Publish(_ context.Context, _ domain.AccountID, renames []domain.Rename) error {
	m.renames.Add(float64(len(renames)))
	return nil
}

func (m *Metrics) Close() error {
	return nil
}

// ObserveCounts records the size of a finished aggregation.
func (m *Metrics) ObserveCounts(counts domain.CoPlayCounts) {
	m.coPlayAccounts.Set(float64(len(counts)))
}

func (m *Metrics) MarkFinished(unixSeconds float64) {
	m.lastSync.Set(unixSeconds)
}

func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// WriteTextfile writes the registry atomically in the text exposition format.
func (m *Metrics) WriteTextfile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create metrics directory: %w", err)
	}
	if err := prometheus.WriteToTextfile(path, m.registry); err != nil {
		return fmt.Errorf("write metrics textfile: %w", err)
	}
	return nil
}
