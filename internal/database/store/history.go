package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// History kinds.
const (
	HistoryGrabbed     = "grabbed"
	HistoryImported    = "imported"
	HistoryRecorded    = "recorded"
	HistoryFailed      = "failed"
	HistoryBlocklisted = "blocklisted"
)

// HistoryEntry is one immutable history row.
type HistoryEntry struct {
	ID        int64
	EventID   *int64
	Kind      string
	Data      string // JSON payload
	CreatedAt time.Time
}

// InsertHistory appends a history entry.
func (s *Store) InsertHistory(ctx context.Context, eventID *int64, kind, dataJSON string) error {
	var id sql.NullInt64
	if eventID != nil {
		id = sql.NullInt64{Int64: *eventID, Valid: true}
	}
	if dataJSON == "" {
		dataJSON = "{}"
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO history (event_id, kind, data) VALUES (?, ?, ?)`, id, kind, dataJSON)
	if err != nil {
		return fmt.Errorf("failed to insert history: %w", err)
	}
	return nil
}

// ListHistoryForEvent returns an event's history, newest first.
func (s *Store) ListHistoryForEvent(ctx context.Context, eventID int64, limit int) ([]*HistoryEntry, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, event_id, kind, data, created_at FROM history
		WHERE event_id = ? ORDER BY id DESC LIMIT ?`, eventID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []*HistoryEntry
	for rows.Next() {
		var h HistoryEntry
		var id sql.NullInt64
		if err := rows.Scan(&h.ID, &id, &h.Kind, &h.Data, &h.CreatedAt); err != nil {
			return nil, err
		}
		if id.Valid {
			h.EventID = &id.Int64
		}
		entries = append(entries, &h)
	}
	return entries, rows.Err()
}

// GetSetting fetches one settings value.
func (s *Store) GetSetting(ctx context.Context, key string) (string, error) {
	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM settings WHERE key = ?`, key).Scan(&value)
	if err != nil {
		return "", err
	}
	return value, nil
}

// SetSetting upserts one settings value.
func (s *Store) SetSetting(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO settings (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value`, key, value)
	return err
}
