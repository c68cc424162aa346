package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (and creates) the history database.
// Use ":memory:" for an in-memory database, or a file path for persistent storage.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	if dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0o750); err != nil {
			return nil, fmt.Errorf("create history directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	// One connection: SQLite serialises writers and ":memory:" is per connection.
	db.SetMaxOpenConns(1)

	store := &SQLiteStore{db: db}
	if err := store.initialize(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}
	return store, nil
}

func (s *SQLiteStore) initialize() error {
	schema := `
	CREATE TABLE IF NOT EXISTS unit_events (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		id TEXT NOT NULL UNIQUE,
		run_number INTEGER NOT NULL,
		unit TEXT NOT NULL,
		outcome TEXT NOT NULL,
		build INTEGER NOT NULL DEFAULT 0,
		revision TEXT,
		formats TEXT,
		error TEXT,
		timestamp INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_unit ON unit_events(unit);
	CREATE INDEX IF NOT EXISTS idx_run_number ON unit_events(run_number);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Append adds an event to the store.
func (s *SQLiteStore) Append(ctx context.Context, e UnitEvent) error {
	var formats []byte
	if len(e.Formats) > 0 {
		var err error
		formats, err = json.Marshal(e.Formats)
		if err != nil {
			return fmt.Errorf("marshal formats: %w", err)
		}
	}
	if e.Time.IsZero() {
		e.Time = time.Now()
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO unit_events (id, run_number, unit, outcome, build, revision, formats, error, timestamp)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.RunNumber, e.Unit, e.Outcome, e.Build, e.Revision, string(formats), e.Error, e.Time.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("insert event: %w", err)
	}
	return nil
}

// List returns up to limit events, newest first. limit <= 0 means no limit.
func (s *SQLiteStore) List(ctx context.Context, unit string, limit int) ([]UnitEvent, error) {
	query := "SELECT id, run_number, unit, outcome, build, revision, formats, error, timestamp FROM unit_events"
	var args []any
	if unit != "" {
		query += " WHERE unit = ?"
		args = append(args, unit)
	}
	query += " ORDER BY seq DESC"
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var events []UnitEvent
	for rows.Next() {
		var (
			e                        UnitEvent
			revision, formats, cause sql.NullString
			ts                       int64
		)
		if err := rows.Scan(&e.ID, &e.RunNumber, &e.Unit, &e.Outcome, &e.Build, &revision, &formats, &cause, &ts); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		e.Revision = revision.String
		e.Error = cause.String
		e.Time = time.Unix(0, ts).UTC()
		if formats.String != "" {
			if err := json.Unmarshal([]byte(formats.String), &e.Formats); err != nil {
				return nil, fmt.Errorf("unmarshal formats: %w", err)
			}
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}
	return events, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
