package metrics

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"
	"github.com/rs/zerolog"

	"llm-price-tracker/internal/changes"
)

const namespace = "llm_prices"

// RunStats is what one pipeline run reports.
type RunStats struct {
	Models   int
	Dropped  int
	Accepted map[string]int
	Summary  changes.Summary
	Finished time.Time
}

// Recorder holds the per-run gauges in a private registry.
type Recorder struct {
	registry    *prometheus.Registry
	models      prometheus.Gauge
	dropped     prometheus.Gauge
	accepted    *prometheus.GaugeVec
	changes     *prometheus.GaugeVec
	lastSuccess prometheus.Gauge
	failures    prometheus.Counter
}

// NewRecorder registers the run gauges.
func NewRecorder() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		models: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "models_total",
			Help:      "Models in the latest normalized schema.",
		}),
		dropped: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "dropped_records",
			Help:      "Raw records dropped during the latest run.",
		}),
		accepted: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "accepted_records",
			Help:      "Raw records accepted per source during the latest run.",
		}, []string{"source"}),
		changes: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "changes",
			Help:      "Change records in the latest changelog by type.",
		}, []string{"change_type"}),
		lastSuccess: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_success_timestamp_seconds",
			Help:      "Unix time of the last successful run.",
		}),
		failures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "run_failures_total",
			Help:      "Runs that ended in an error.",
		}),
	}
	r.registry.MustRegister(r.models, r.dropped, r.accepted, r.changes, r.lastSuccess, r.failures)
	return r
}

// Registry exposes the underlying registry.
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

// ObserveRun records a successful run.
func (r *Recorder) ObserveRun(stats RunStats) {
	r.models.Set(float64(stats.Models))
	r.dropped.Set(float64(stats.Dropped))
	r.accepted.Reset()
	for source, n := range stats.Accepted {
		r.accepted.WithLabelValues(source).Set(float64(n))
	}
	r.changes.WithLabelValues(string(changes.Added)).Set(float64(stats.Summary.NewModels))
	r.changes.WithLabelValues(string(changes.Removed)).Set(float64(stats.Summary.RemovedModels))
	r.changes.WithLabelValues(string(changes.Increased)).Set(float64(stats.Summary.PriceIncreases))
	r.changes.WithLabelValues(string(changes.Decreased)).Set(float64(stats.Summary.PriceDecreases))
	r.lastSuccess.Set(float64(stats.Finished.Unix()))
}

// ObserveFailure counts a failed run.
func (r *Recorder) ObserveFailure() {
	r.failures.Inc()
}

// Pusher sends a registry somewhere.
type Pusher interface {
	Push(ctx context.Context, registry *prometheus.Registry) error
}

// PushgatewayPusher sends metrics to a Prometheus Pushgateway.
type PushgatewayPusher struct {
	endpoint string
	job      string
	grouping map[string]string
	logger   zerolog.Logger
}

// NewPushgatewayPusher returns a pusher for a Prometheus Pushgateway.
func NewPushgatewayPusher(endpoint, job string, grouping map[string]string, logger zerolog.Logger) *PushgatewayPusher {
	return &PushgatewayPusher{
		endpoint: strings.TrimSpace(endpoint),
		job:      strings.TrimSpace(job),
		grouping: grouping,
		logger:   logger.With().Str("component", "metrics").Logger(),
	}
}

// Push replaces the job's metric group on the Pushgateway.
func (p *PushgatewayPusher) Push(ctx context.Context, registry *prometheus.Registry) error {
	if p == nil || registry == nil {
		return nil
	}
	if p.endpoint == "" {
		return errors.New("pushgateway endpoint is required")
	}
	if p.job == "" {
		return errors.New("pushgateway job is required")
	}

	pusher := push.New(p.endpoint, p.job).Gatherer(registry)
	for key, value := range p.grouping {
		key = strings.TrimSpace(key)
		value = strings.TrimSpace(value)
		if key == "" || value == "" {
			continue
		}
		pusher = pusher.Grouping(key, value)
	}

	if err := pusher.PushContext(ctx); err != nil {
		return fmt.Errorf("push metrics: %w", err)
	}
	p.logger.Debug().Str("job", p.job).Msg("metrics pushed")
	return nil
}
