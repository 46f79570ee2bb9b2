package metrics

import (
	"net/http"
	"sync"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
	promhttp "github.com/prometheus/client_golang/prometheus/promhttp"
)

// PrometheusRecorder implements Recorder using Prometheus metrics.
type PrometheusRecorder struct {
	once          sync.Once
	pollDuration  *prom.HistogramVec
	pollResults   *prom.CounterVec
	deltaSize     *prom.HistogramVec
	chainOutcomes *prom.CounterVec
	stepDuration  *prom.HistogramVec
	configStale   prom.Gauge
}

// NewPrometheusRecorder constructs and registers Prometheus metrics (idempotent).
func NewPrometheusRecorder(reg *prom.Registry) *PrometheusRecorder {
	if reg == nil {
		reg = prom.NewRegistry()
	}
	pr := &PrometheusRecorder{}
	pr.once.Do(func() {
		pr.pollDuration = prom.NewHistogramVec(prom.HistogramOpts{
			Namespace: "refpatrol",
			Name:      "poll_duration_seconds",
			Help:      "Duration of individual reference polls",
			Buckets:   prom.DefBuckets,
		}, []string{"alias"})
		pr.pollResults = prom.NewCounterVec(prom.CounterOpts{
			Namespace: "refpatrol",
			Name:      "poll_results_total",
			Help:      "Poll outcomes by result category",
		}, []string{"alias", "result"})
		pr.deltaSize = prom.NewHistogramVec(prom.HistogramOpts{
			Namespace: "refpatrol",
			Name:      "poll_delta_refs",
			Help:      "Number of changed references observed per poll",
			Buckets:   []float64{0, 1, 2, 5, 10, 25, 50},
		}, []string{"alias"})
		pr.chainOutcomes = prom.NewCounterVec(prom.CounterOpts{
			Namespace: "refpatrol",
			Name:      "chain_outcomes_total",
			Help:      "Build chain outcomes by final status",
		}, []string{"alias", "outcome"})
		pr.stepDuration = prom.NewHistogramVec(prom.HistogramOpts{
			Namespace: "refpatrol",
			Name:      "build_step_duration_seconds",
			Help:      "Duration of individual workflow steps, submission to completion",
			Buckets:   prom.ExponentialBuckets(1, 2, 14),
		}, []string{"alias", "workflow"})
		pr.configStale = prom.NewGauge(prom.GaugeOpts{
			Namespace: "refpatrol",
			Name:      "config_stale",
			Help:      "Set to 1 when the configuration file changed after startup",
		})
		reg.MustRegister(pr.pollDuration, pr.pollResults, pr.deltaSize,
			pr.chainOutcomes, pr.stepDuration, pr.configStale)
	})
	return pr
}

func (p *PrometheusRecorder) ObservePollDuration(alias string, d time.Duration) {
	if p == nil || p.pollDuration == nil {
		return
	}
	p.pollDuration.WithLabelValues(alias).Observe(d.Seconds())
}

func (p *PrometheusRecorder) IncPollResult(alias string, result PollResult) {
	if p == nil || p.pollResults == nil {
		return
	}
	p.pollResults.WithLabelValues(alias, string(result)).Inc()
}

func (p *PrometheusRecorder) ObserveDeltaSize(alias string, n int) {
	if p == nil || p.deltaSize == nil {
		return
	}
	p.deltaSize.WithLabelValues(alias).Observe(float64(n))
}

func (p *PrometheusRecorder) IncChainOutcome(alias string, success bool) {
	if p == nil || p.chainOutcomes == nil {
		return
	}
	outcome := "failure"
	if success {
		outcome = "success"
	}
	p.chainOutcomes.WithLabelValues(alias, outcome).Inc()
}

func (p *PrometheusRecorder) ObserveBuildStepDuration(alias, workflow string, d time.Duration) {
	if p == nil || p.stepDuration == nil {
		return
	}
	p.stepDuration.WithLabelValues(alias, workflow).Observe(d.Seconds())
}

func (p *PrometheusRecorder) SetConfigStale(stale bool) {
	if p == nil || p.configStale == nil {
		return
	}
	if stale {
		p.configStale.Set(1)
	} else {
		p.configStale.Set(0)
	}
}

// HTTPHandler returns an http.Handler that serves Prometheus metrics for the
// provided registry.
func HTTPHandler(reg *prom.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{EnableOpenMetrics: true})
}
