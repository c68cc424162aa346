package orchestrator

import (
	"time"

	"git.home.luguber.info/inful/continuousdoc/internal/config"
	"git.home.luguber.info/inful/continuousdoc/internal/ledger"
)

// Outcome is what a run did with one unit.
type Outcome string

const (
	OutcomeUpToDate Outcome = "up_to_date"
	OutcomeBuilt    Outcome = "built"
	OutcomeSkipped  Outcome = "skipped"
	OutcomeFailed   Outcome = "failed"
	// OutcomeStale is only reported by dry runs: the unit would be rebuilt.
	OutcomeStale Outcome = "stale"
)

// UnitResult describes the processing of one unit.
type UnitResult struct {
	Unit     string
	Outcome  Outcome
	Build    int
	Revision string
	Formats  map[config.Format]ledger.Outcome
	Err      error
	Duration time.Duration
}

// Report summarises a run. Units are in configuration order.
type Report struct {
	RunNumber int
	DryRun    bool
	Units     []UnitResult
	Persisted bool
	IndexPath string
	Duration  time.Duration
}

// Count returns the number of units with outcome o.
func (r *Report) Count(o Outcome) int {
	n := 0
	for _, u := range r.Units {
		if u.Outcome == o {
			n++
		}
	}
	return n
}

// Result returns the result for a unit id.
func (r *Report) Result(id string) (UnitResult, bool) {
	for _, u := range r.Units {
		if u.Unit == id {
			return u, true
		}
	}
	return UnitResult{}, false
}

// HasFailures reports whether any unit was skipped or failed.
func (r *Report) HasFailures() bool {
	return r.Count(OutcomeSkipped)+r.Count(OutcomeFailed) > 0
}
