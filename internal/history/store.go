// Package history keeps a queryable log of unit events across runs.
package history

import "context"

// Store persists and lists unit events.
type Store interface {
	// Append adds an event to the store.
	Append(ctx context.Context, e UnitEvent) error

	// List returns the most recent events, newest first. An empty unit lists all units.
	List(ctx context.Context, unit string, limit int) ([]UnitEvent, error)

	// Close releases resources.
	Close() error
}
