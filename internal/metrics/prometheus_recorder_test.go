package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func gather(t *testing.T, reg *prom.Registry) map[string]*dto.MetricFamily {
	t.Helper()
	mfs, err := reg.Gather()
	require.NoError(t, err)
	out := make(map[string]*dto.MetricFamily, len(mfs))
	for _, mf := range mfs {
		out[mf.GetName()] = mf
	}
	return out
}

func counterValue(mf *dto.MetricFamily, labels map[string]string) float64 {
	for _, m := range mf.GetMetric() {
		match := true
		for _, lp := range m.GetLabel() {
			if want, ok := labels[lp.GetName()]; ok && want != lp.GetValue() {
				match = false
			}
		}
		if match {
			return m.GetCounter().GetValue()
		}
	}
	return -1
}

func TestPrometheusRecorder(t *testing.T) {
	reg := prom.NewRegistry()
	pr := NewPrometheusRecorder(reg)
	pr.ObserveStageDuration("sync", 150*time.Millisecond)
	pr.ObserveRunDuration(5 * time.Second)
	pr.IncUnitOutcome("built")
	pr.IncUnitOutcome("built")
	pr.IncUnitOutcome("skipped")
	pr.IncFormatResult("html", ResultSuccess)
	pr.IncFormatResult("pdf", ResultFor(false))
	pr.ObserveFormatDuration("pdf", time.Minute)
	pr.IncSourceSyncResult(ResultSuccess)
	pr.SetLastRunNumber(42)

	mfs := gather(t, reg)
	require.Contains(t, mfs, "continuousdoc_unit_outcomes_total")
	assert.InDelta(t, 2, counterValue(mfs["continuousdoc_unit_outcomes_total"], map[string]string{"outcome": "built"}), 0)
	assert.InDelta(t, 1, counterValue(mfs["continuousdoc_format_results_total"], map[string]string{"format": "pdf", "result": "failed"}), 0)
	assert.InDelta(t, 42, mfs["continuousdoc_last_run_number"].GetMetric()[0].GetGauge().GetValue(), 0)
	assert.Contains(t, mfs, "continuousdoc_stage_duration_seconds")
	assert.Contains(t, mfs, "continuousdoc_source_sync_results_total")
}

func TestHTTPHandler(t *testing.T) {
	reg := prom.NewRegistry()
	NewPrometheusRecorder(reg).IncUnitOutcome("up_to_date")

	srv := httptest.NewServer(HTTPHandler(reg))
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, strings.Contains(string(body), `continuousdoc_unit_outcomes_total{outcome="up_to_date"} 1`))
}

func TestNoopRecorder(t *testing.T) {
	var r Recorder = NoopRecorder{}
	r.IncUnitOutcome("built")
	r.SetLastRunNumber(1)

	var nilRec *PrometheusRecorder
	nilRec.IncUnitOutcome("built")
}
