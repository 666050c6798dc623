package store

import (
	"context"
	"fmt"
	"time"
)

// BlocklistItem suppresses re-grabbing a known-bad release for an event.
type BlocklistItem struct {
	ID          int64
	EventID     int64
	IndexerName string
	Title       string
	InfoHash    string
	Reason      string
	AddedAt     time.Time
}

// AddBlocklistItem records a bad release. Items keyed by infohash are
// idempotent: a second add for the same hash and event is a no-op.
func (s *Store) AddBlocklistItem(ctx context.Context, b BlocklistItem) error {
	if b.InfoHash != "" {
		var count int
		err := s.db.QueryRowContext(ctx, `
			SELECT COUNT(*) FROM blocklist WHERE event_id = ? AND info_hash = ?`,
			b.EventID, b.InfoHash).Scan(&count)
		if err != nil {
			return err
		}
		if count > 0 {
			return nil
		}
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO blocklist (event_id, indexer_name, title, info_hash, reason)
		VALUES (?, ?, ?, ?, ?)`,
		b.EventID, b.IndexerName, b.Title, b.InfoHash, b.Reason)
	if err != nil {
		return fmt.Errorf("failed to add blocklist item: %w", err)
	}
	return nil
}

// IsBlocklisted checks a candidate by infohash when known and, when no hash
// row matches, by the (indexer, title, event) triple.
func (s *Store) IsBlocklisted(ctx context.Context, eventID int64, infoHash, indexerName, title string) (bool, error) {
	var count int
	if infoHash != "" {
		err := s.db.QueryRowContext(ctx, `
			SELECT COUNT(*) FROM blocklist WHERE event_id = ? AND info_hash = ?`,
			eventID, infoHash).Scan(&count)
		if err != nil {
			return false, err
		}
		if count > 0 {
			return true, nil
		}
	}
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM blocklist WHERE event_id = ? AND indexer_name = ? AND title = ?`,
		eventID, indexerName, title).Scan(&count)
	return count > 0, err
}

// DeleteBlocklistBefore prunes old entries and returns the count removed.
func (s *Store) DeleteBlocklistBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM blocklist WHERE added_at < ?`, cutoff)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
