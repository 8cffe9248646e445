package metrics

import (
	"context"
	"fmt"

	"github.com/nmiodice/strava-drive-export/internal/orchestrator"
	"github.com/nmiodice/strava-drive-export/internal/state"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"
)

const jobName = "strava_export"

// RunMetrics holds the gauges describing the last run. Each export is a
// short lived process, so the values are pushed rather than scraped.
type RunMetrics struct {
	run     *prometheus.Registry
	success *prometheus.Registry

	activities  *prometheus.GaugeVec
	duration    prometheus.Gauge
	lastRun     prometheus.Gauge
	succeeded   prometheus.Gauge
	lastSuccess prometheus.Gauge
}

func NewRunMetrics() *RunMetrics {
	m := &RunMetrics{
		run:     prometheus.NewRegistry(),
		success: prometheus.NewRegistry(),
		activities: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "strava_export_activities",
			Help: "Activities handled by the last run, by result.",
		}, []string{"result"}),
		duration: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "strava_export_duration_seconds",
			Help: "Wall time of the last run.",
		}),
		lastRun: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "strava_export_last_run_timestamp_seconds",
			Help: "Unix time the last run finished.",
		}),
		succeeded: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "strava_export_succeeded",
			Help: "1 if the last run reached Done, 0 if it failed.",
		}),
		lastSuccess: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "strava_export_last_success_timestamp_seconds",
			Help: "Unix time the last successful run finished.",
		}),
	}
	m.run.MustRegister(m.activities, m.duration, m.lastRun, m.succeeded)
	m.success.MustRegister(m.lastSuccess)
	return m
}

// Observe records a finished run.
func (m *RunMetrics) Observe(s *orchestrator.Summary) {
	m.activities.WithLabelValues("fetched").Set(float64(s.Fetched))
	m.activities.WithLabelValues("uploaded").Set(float64(s.Uploaded))
	m.activities.WithLabelValues("skipped").Set(float64(s.Skipped))
	m.activities.WithLabelValues("failed").Set(float64(s.Failed))
	m.duration.Set(s.FinishedAt.Sub(s.StartedAt).Seconds())
	m.lastRun.Set(float64(s.FinishedAt.Unix()))

	if s.State == state.Done {
		m.succeeded.Set(1)
		m.lastSuccess.Set(float64(s.FinishedAt.Unix()))
	} else {
		m.succeeded.Set(0)
	}
}

// Gatherer returns what should be pushed for a run in state s. The success
// timestamp is left out after a failure so the gateway keeps the previous one.
func (m *RunMetrics) Gatherer(s state.State) prometheus.Gatherer {
	if s == state.Done {
		return prometheus.Gatherers{m.run, m.success}
	}
	return m.run
}

// Pusher sends run metrics to a Prometheus Pushgateway.
type Pusher struct {
	gatewayURL string
	metrics    *RunMetrics
}

var _ orchestrator.Reporter = (*Pusher)(nil)

func NewPusher(gatewayURL string, m *RunMetrics) *Pusher {
	return &Pusher{gatewayURL: gatewayURL, metrics: m}
}

func (p *Pusher) Report(ctx context.Context, s *orchestrator.Summary) error {
	p.metrics.Observe(s)

	// Add replaces only the metrics being pushed.
	err := push.New(p.gatewayURL, jobName).
		Gatherer(p.metrics.Gatherer(s.State)).
		AddContext(ctx)
	if err != nil {
		return fmt.Errorf("pushing run metrics: %w", err)
	}
	return nil
}
