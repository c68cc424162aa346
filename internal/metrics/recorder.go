package metrics

import "time"

// ResultLabel enumerates result categories for counters.
type ResultLabel string

const (
	ResultSuccess ResultLabel = "success"
	ResultFailed  ResultLabel = "failed"
)

// ResultFor maps a boolean outcome to its label.
func ResultFor(success bool) ResultLabel {
	if success {
		return ResultSuccess
	}
	return ResultFailed
}

// Recorder defines observability hooks for runs. Implementations may forward
// to Prometheus or any other backend.
type Recorder interface {
	ObserveStageDuration(stage string, d time.Duration)
	ObserveRunDuration(d time.Duration)
	IncUnitOutcome(outcome string) // up_to_date|built|skipped|failed
	IncFormatResult(format string, result ResultLabel)
	ObserveFormatDuration(format string, d time.Duration)
	IncSourceSyncResult(result ResultLabel)
	SetLastRunNumber(n int)
}

// NoopRecorder is a Recorder that does nothing (default when metrics not configured).
type NoopRecorder struct{}

func (NoopRecorder) ObserveStageDuration(string, time.Duration)  {}
func (NoopRecorder) ObserveRunDuration(time.Duration)            {}
func (NoopRecorder) IncUnitOutcome(string)                       {}
func (NoopRecorder) IncFormatResult(string, ResultLabel)         {}
func (NoopRecorder) ObserveFormatDuration(string, time.Duration) {}
func (NoopRecorder) IncSourceSyncResult(ResultLabel)             {}
func (NoopRecorder) SetLastRunNumber(int)                        {}
