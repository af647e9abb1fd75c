// Package journal records emitted zone events in a SQLite database.
package journal

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	_ "modernc.org/sqlite" // Registers the sqlite driver.

	"github.com/oshokin/security-zone/internal/events"
)

const (
	// DefaultLimit is the page size of List when none is given.
	DefaultLimit = 100
	// MaxLimit caps the page size of List.
	MaxLimit = 1000

	// timeLayout keeps created_at lexically sortable.
	timeLayout = "2006-01-02T15:04:05.000000000Z07:00"
)

// Filter narrows List results.
type Filter struct {
	// ZoneID keeps events of one zone when set.
	ZoneID string
	// Type keeps events of one type when set.
	Type events.Type
	// Limit is the maximum number of events, newest first.
	Limit int
}

// Journal stores events in SQLite.
type Journal struct {
	db *sql.DB
}

// Open opens or creates the journal database and runs migrations.
func Open(ctx context.Context, path string) (*Journal, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}

	db.SetMaxOpenConns(1)
	db.SetConnMaxLifetime(0)
	db.SetConnMaxIdleTime(0)

	j := &Journal{db: db}
	if err = j.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return j, nil
}

// Close closes the database.
func (j *Journal) Close() error {
	if j == nil || j.db == nil {
		return nil
	}

	return j.db.Close()
}

func (j *Journal) migrate(ctx context.Context) error {
	statements := []string{
		`PRAGMA journal_mode = WAL;`,
		`CREATE TABLE IF NOT EXISTS zone_events (
			id TEXT PRIMARY KEY,
			topic TEXT NOT NULL,
			type TEXT NOT NULL,
			zone_id TEXT NOT NULL,
			state TEXT NOT NULL,
			message TEXT NOT NULL,
			payload_json TEXT NOT NULL,
			created_at TEXT NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_zone_events_zone ON zone_events(zone_id, created_at);`,
	}

	for _, stmt := range statements {
		if _, err := j.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate journal: %w", err)
		}
	}

	return nil
}

// Process implements events.Handler by inserting the event.
func (j *Journal) Process(ctx context.Context, event events.Event) error {
	return j.Insert(ctx, event)
}

// Insert stores one event. Re-inserting an id is a no-op.
func (j *Journal) Insert(ctx context.Context, event events.Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}

	_, err = j.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO zone_events (id, topic, type, zone_id, state, message, payload_json, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		event.ID,
		event.Topic,
		string(event.Type),
		event.ZoneID,
		string(event.State),
		event.Message,
		string(payload),
		event.Timestamp.UTC().Format(timeLayout),
	)
	if err != nil {
		return fmt.Errorf("insert event: %w", err)
	}

	return nil
}

// List returns stored events, newest first.
func (j *Journal) List(ctx context.Context, filter Filter) ([]events.Event, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = DefaultLimit
	}

	limit = min(limit, MaxLimit)

	rows, err := j.db.QueryContext(ctx,
		`SELECT payload_json FROM zone_events
		WHERE (? = '' OR zone_id = ?) AND (? = '' OR type = ?)
		ORDER BY created_at DESC, rowid DESC
		LIMIT ?`,
		filter.ZoneID, filter.ZoneID, string(filter.Type), string(filter.Type), limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	defer rows.Close()

	result := make([]events.Event, 0)

	for rows.Next() {
		var encoded string
		if err = rows.Scan(&encoded); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}

		var event events.Event
		if err = json.Unmarshal([]byte(encoded), &event); err != nil {
			return nil, fmt.Errorf("decode event: %w", err)
		}

		result = append(result, event)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}

	return result, nil
}
