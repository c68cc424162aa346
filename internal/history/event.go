package history

import (
	"time"

	"github.com/google/uuid"
)

// UnitEvent records what a run did with one unit.
type UnitEvent struct {
	ID        string            `json:"id"`
	RunNumber int               `json:"run_number"`
	Unit      string            `json:"unit"`
	Outcome   string            `json:"outcome"`
	Build     int               `json:"build,omitempty"`
	Revision  string            `json:"revision,omitempty"`
	Formats   map[string]string `json:"formats,omitempty"`
	Error     string            `json:"error,omitempty"`
	Time      time.Time         `json:"time"`
}

// NewUnitEvent returns an event with a fresh id stamped with the current time.
func NewUnitEvent(runNumber int, unit, outcome string) UnitEvent {
	return UnitEvent{
		ID:        uuid.NewString(),
		RunNumber: runNumber,
		Unit:      unit,
		Outcome:   outcome,
		Time:      time.Now().UTC(),
	}
}
