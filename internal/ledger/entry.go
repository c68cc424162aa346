package ledger

import (
	"encoding/json"
	"fmt"
	"maps"
	"strings"
	"time"
)

// NoRevision is the sentinel recorded for units that were never built.
const NoRevision = "none"

// legacyNoRevision is the sentinel written by the previous tool.
const legacyNoRevision = "null"

// Outcome is the result of building one format.
type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomeFailed  Outcome = "failed"
)

// Source identifies what a unit is built from and the last revision built.
type Source struct {
	URL    string `json:"url"`
	Branch string `json:"branch"`
	Commit string `json:"commit"`
}

// Entry is the ledger record of one documentation unit.
type Entry struct {
	Build     int       `json:"build"`
	BuildDate Timestamp `json:"build_date,omitzero"`
	Version   string    `json:"version"`
	Product   string    `json:"product"`
	Name      string    `json:"name"`
	Language  string    `json:"language"`
	Type      string    `json:"type"`
	// Format is carried through unchanged for ledgers written by earlier tools.
	Format map[string]string  `json:"format"`
	Source Source             `json:"source"`
	Status map[string]Outcome `json:"status"`
}

// Built reports whether the entry has a recorded revision.
func (e Entry) Built() bool {
	return e.Source.Commit != NoRevision
}

func (e Entry) clone() Entry {
	c := e
	c.Format = maps.Clone(e.Format)
	c.Status = maps.Clone(e.Status)
	if c.Format == nil {
		c.Format = map[string]string{}
	}
	if c.Status == nil {
		c.Status = map[string]Outcome{}
	}
	return c
}

// normalize repairs fields older ledgers left empty or wrote with legacy values.
func (e *Entry) normalize() {
	switch strings.TrimSpace(e.Source.Commit) {
	case "", legacyNoRevision:
		e.Source.Commit = NoRevision
	}
	if e.Format == nil {
		e.Format = map[string]string{}
	}
	if e.Status == nil {
		e.Status = map[string]Outcome{}
	}
}

// Timestamp is a build date. It is written as RFC 3339 and also reads the
// "2006-01-02 15:04:05 UTC-07:00" form used by earlier ledgers.
type Timestamp struct {
	time.Time
}

var legacyLayouts = []string{
	"2006-01-02 15:04:05 UTC-07:00",
	"2006-01-02 15:04:05",
}

func (t Timestamp) MarshalJSON() ([]byte, error) {
	if t.IsZero() {
		return []byte(`""`), nil
	}
	return json.Marshal(t.UTC().Format(time.RFC3339))
}

func (t *Timestamp) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("build_date: %w", err)
	}
	raw = strings.TrimSpace(raw)
	if raw == "" {
		t.Time = time.Time{}
		return nil
	}
	if parsed, err := time.Parse(time.RFC3339, raw); err == nil {
		t.Time = parsed.UTC()
		return nil
	}
	for _, layout := range legacyLayouts {
		if parsed, err := time.Parse(layout, raw); err == nil {
			t.Time = parsed
			return nil
		}
	}
	return fmt.Errorf("build_date: unrecognised time %q", raw)
}
