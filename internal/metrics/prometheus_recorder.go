package metrics

import (
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
)

const namespace = "continuousdoc"

// PrometheusRecorder implements Recorder using Prometheus metrics.
type PrometheusRecorder struct {
	stageDuration  *prom.HistogramVec
	runDuration    prom.Histogram
	unitOutcomes   *prom.CounterVec
	formatResults  *prom.CounterVec
	formatDuration *prom.HistogramVec
	syncResults    *prom.CounterVec
	lastRun        prom.Gauge
}

// NewPrometheusRecorder constructs the metrics and registers them with reg.
// A nil reg gets a private registry.
func NewPrometheusRecorder(reg *prom.Registry) *PrometheusRecorder {
	if reg == nil {
		reg = prom.NewRegistry()
	}
	pr := &PrometheusRecorder{
		stageDuration: prom.NewHistogramVec(prom.HistogramOpts{
			Namespace: namespace,
			Name:      "stage_duration_seconds",
			Help:      "Duration of individual unit stages",
			Buckets:   prom.DefBuckets,
		}, []string{"stage"}),
		runDuration: prom.NewHistogram(prom.HistogramOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Total run duration",
			Buckets:   []float64{1, 10, 30, 60, 300, 900, 1800, 3600},
		}),
		unitOutcomes: prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "unit_outcomes_total",
			Help:      "Processed units by outcome",
		}, []string{"outcome"}),
		formatResults: prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "format_results_total",
			Help:      "Format builds by format and result",
		}, []string{"format", "result"}),
		formatDuration: prom.NewHistogramVec(prom.HistogramOpts{
			Namespace: namespace,
			Name:      "format_build_duration_seconds",
			Help:      "Duration of single format builds",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800},
		}, []string{"format"}),
		syncResults: prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "source_sync_results_total",
			Help:      "Source synchronisations by result",
		}, []string{"result"}),
		lastRun: prom.NewGauge(prom.GaugeOpts{
			Namespace: namespace,
			Name:      "last_run_number",
			Help:      "Run number of the most recent run",
		}),
	}
	reg.MustRegister(pr.stageDuration, pr.runDuration, pr.unitOutcomes, pr.formatResults, pr.formatDuration, pr.syncResults, pr.lastRun)
	return pr
}

func (p *PrometheusRecorder) ObserveStageDuration(stage string, d time.Duration) {
	if p == nil {
		return
	}
	p.stageDuration.WithLabelValues(stage).Observe(d.Seconds())
}

func (p *PrometheusRecorder) ObserveRunDuration(d time.Duration) {
	if p == nil {
		return
	}
	p.runDuration.Observe(d.Seconds())
}

func (p *PrometheusRecorder) IncUnitOutcome(outcome string) {
	if p == nil {
		return
	}
	p.unitOutcomes.WithLabelValues(outcome).Inc()
}

func (p *PrometheusRecorder) IncFormatResult(format string, result ResultLabel) {
	if p == nil {
		return
	}
	p.formatResults.WithLabelValues(format, string(result)).Inc()
}

func (p *PrometheusRecorder) ObserveFormatDuration(format string, d time.Duration) {
	if p == nil {
		return
	}
	p.formatDuration.WithLabelValues(format).Observe(d.Seconds())
}

func (p *PrometheusRecorder) IncSourceSyncResult(result ResultLabel) {
	if p == nil {
		return
	}
	p.syncResults.WithLabelValues(string(result)).Inc()
}

func (p *PrometheusRecorder) SetLastRunNumber(n int) {
	if p == nil {
		return
	}
	p.lastRun.Set(float64(n))
}
