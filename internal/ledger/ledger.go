// Package ledger provides an append-only history of fade engine outcomes.
package ledger

import (
	"database/sql"
	"encoding/json"
	"time"

	"github.com/rotisserie/eris"
)

// EventType represents the type of event in the ledger
type EventType string

const (
	EventCommandCompleted EventType = "command_completed"
	EventCommandAborted   EventType = "command_aborted"
	EventCommandFailed    EventType = "command_failed"
)

// Record is what the engine appends for a processed command.
type Record struct {
	CommandID string
	Kind      string
	Origin    string
	Source    string
	Payload   map[string]any
}

// Entry represents a single event in the ledger
type Entry struct {
	ID        int64          `json:"id"`
	EventType EventType      `json:"eventType"`
	Timestamp time.Time      `json:"timestamp"`
	CommandID string         `json:"commandId"`
	Kind      string         `json:"kind"`
	Origin    string         `json:"origin"`
	Source    string         `json:"source,omitempty"`
	Payload   map[string]any `json:"payload,omitempty"`
}

// Ledger provides append-only event logging
type Ledger struct {
	db  *sql.DB
	now func() time.Time
}

// New creates a new Ledger using the provided database connection
func New(db *sql.DB) *Ledger {
	return &Ledger{db: db, now: time.Now}
}

// Append adds a new event to the ledger
func (l *Ledger) Append(eventType EventType, rec Record) error {
	var payloadJSON []byte
	var err error

	if rec.Payload != nil {
		payloadJSON, err = json.Marshal(rec.Payload)
		if err != nil {
			return eris.Wrap(err, "failed to marshal payload")
		}
	}

	_, err = l.db.Exec(`
		INSERT INTO command_ledger (event_type, timestamp, command_id, kind, origin, source, payload)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, string(eventType), l.now().UTC().UnixMilli(), rec.CommandID, rec.Kind, rec.Origin, rec.Source, string(payloadJSON))

	return eris.Wrap(err, "failed to append ledger entry")
}

const selectColumns = `SELECT id, event_type, timestamp, command_id, kind, origin, source, payload FROM command_ledger`

// GetRecent returns the newest entries first
func (l *Ledger) GetRecent(limit int) ([]*Entry, error) {
	rows, err := l.db.Query(selectColumns+`
		ORDER BY timestamp DESC, id DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, eris.Wrap(err, "failed to query ledger")
	}
	defer rows.Close()

	return l.scanEntries(rows)
}

// GetByType returns entries filtered by event type
func (l *Ledger) GetByType(eventType EventType, limit int) ([]*Entry, error) {
	rows, err := l.db.Query(selectColumns+`
		WHERE event_type = ?
		ORDER BY timestamp DESC, id DESC
		LIMIT ?
	`, string(eventType), limit)
	if err != nil {
		return nil, eris.Wrap(err, "failed to query ledger")
	}
	defer rows.Close()

	return l.scanEntries(rows)
}

// GetByCommand returns every entry recorded for one command id
func (l *Ledger) GetByCommand(commandID string) ([]*Entry, error) {
	rows, err := l.db.Query(selectColumns+`
		WHERE command_id = ?
		ORDER BY id ASC
	`, commandID)
	if err != nil {
		return nil, eris.Wrap(err, "failed to query ledger")
	}
	defer rows.Close()

	return l.scanEntries(rows)
}

// DeleteOlderThan removes entries older than the specified duration (retention policy)
func (l *Ledger) DeleteOlderThan(retention time.Duration) (int64, error) {
	cutoff := l.now().Add(-retention).UTC().UnixMilli()
	result, err := l.db.Exec(`
		DELETE FROM command_ledger WHERE timestamp < ?
	`, cutoff)
	if err != nil {
		return 0, eris.Wrap(err, "failed to delete old ledger entries")
	}
	return result.RowsAffected()
}

func (l *Ledger) scanEntries(rows *sql.Rows) ([]*Entry, error) {
	var entries []*Entry
	for rows.Next() {
		var entry Entry
		var payloadStr, source sql.NullString
		var timestamp int64

		err := rows.Scan(
			&entry.ID, &entry.EventType, &timestamp, &entry.CommandID, &entry.Kind, &entry.Origin, &source, &payloadStr,
		)
		if err != nil {
			return nil, eris.Wrap(err, "failed to scan ledger entry")
		}

		entry.Timestamp = time.UnixMilli(timestamp).UTC()
		if source.Valid {
			entry.Source = source.String
		}

		if payloadStr.Valid && payloadStr.String != "" {
			entry.Payload = make(map[string]any)
			if err := json.Unmarshal([]byte(payloadStr.String), &entry.Payload); err != nil {
				return nil, eris.Wrap(err, "failed to unmarshal payload")
			}
		}

		entries = append(entries, &entry)
	}

	return entries, rows.Err()
}
