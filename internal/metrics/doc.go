// Package metrics records run, unit and format metrics.
//
// Components receive a Recorder and default to NoopRecorder, so no caller
// needs nil checks. The daemon injects a PrometheusRecorder and serves the
// registry over HTTP:
//
//	reg := prometheus.NewRegistry()
//	rec := metrics.NewPrometheusRecorder(reg)
//	http.Handle("/metrics", metrics.HTTPHandler(reg))
package metrics
