package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// Download queue statuses. Imported is terminal; Failed is terminal once the
// retry budget is exhausted.
const (
	QueueStatusQueued      = "Queued"
	QueueStatusDownloading = "Downloading"
	QueueStatusPaused      = "Paused"
	QueueStatusCompleted   = "Completed"
	QueueStatusImporting   = "Importing"
	QueueStatusImported    = "Imported"
	QueueStatusWarning     = "Warning"
	QueueStatusFailed      = "Failed"
)

// QueueItem is one download_queue row.
type QueueItem struct {
	ID            int64
	EventID       int64
	PartName      string
	ClientID      int64
	DownloadID    string
	Title         string
	Category      string
	IndexerName   string
	InfoHash      string
	Protocol      string
	Size          int64
	Downloaded    int64
	Progress      float64
	TimeRemaining int64 // seconds, -1 when unknown
	Status        string
	StatusMessage string
	PriorStatus   string
	RetryCount    int
	MissingCount  int
	ImportedAt    *time.Time
	GrabbedAt     time.Time
	UpdatedAt     time.Time
}

const queueColumns = `id, event_id, part_name, client_id, download_id, title, category,
	indexer_name, info_hash, protocol, size, downloaded, progress, time_remaining,
	status, status_message, prior_status, retry_count, missing_count, imported_at, grabbed_at, updated_at`

func scanQueueItem(row interface{ Scan(...any) error }) (*QueueItem, error) {
	var q QueueItem
	var importedAt sql.NullTime
	err := row.Scan(&q.ID, &q.EventID, &q.PartName, &q.ClientID, &q.DownloadID, &q.Title,
		&q.Category, &q.IndexerName, &q.InfoHash, &q.Protocol, &q.Size, &q.Downloaded,
		&q.Progress, &q.TimeRemaining, &q.Status, &q.StatusMessage, &q.PriorStatus,
		&q.RetryCount, &q.MissingCount, &importedAt, &q.GrabbedAt, &q.UpdatedAt)
	if err != nil {
		return nil, err
	}
	q.ImportedAt = fromNullTime(importedAt)
	return &q, nil
}

// InsertQueueItemParams holds the fields recorded at grab time.
type InsertQueueItemParams struct {
	EventID     int64
	PartName    string
	ClientID    int64
	DownloadID  string
	Title       string
	Category    string
	IndexerName string
	InfoHash    string
	Protocol    string
	Size        int64
}

// InsertQueueItem records a grabbed download.
func (s *Store) InsertQueueItem(ctx context.Context, p InsertQueueItemParams) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO download_queue (event_id, part_name, client_id, download_id, title,
			category, indexer_name, info_hash, protocol, size, status)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.EventID, p.PartName, p.ClientID, p.DownloadID, p.Title, p.Category,
		p.IndexerName, p.InfoHash, p.Protocol, p.Size, QueueStatusQueued)
	if err != nil {
		return 0, fmt.Errorf("failed to insert queue item: %w", err)
	}
	return res.LastInsertId()
}

// GetQueueItem fetches one queue item.
func (s *Store) GetQueueItem(ctx context.Context, id int64) (*QueueItem, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+queueColumns+` FROM download_queue WHERE id = ?`, id)
	q, err := scanQueueItem(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return q, err
}

// ListActiveQueueItems returns items not yet in a terminal state, in id order
// so each monitor iteration processes them deterministically.
func (s *Store) ListActiveQueueItems(ctx context.Context) ([]*QueueItem, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+queueColumns+` FROM download_queue
		WHERE status != ? ORDER BY id`, QueueStatusImported)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []*QueueItem
	for rows.Next() {
		q, err := scanQueueItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, q)
	}
	return items, rows.Err()
}

// ActiveQueueItemExists reports whether the event (and part) already has a
// non-terminal download, which suppresses duplicate grabs.
func (s *Store) ActiveQueueItemExists(ctx context.Context, eventID int64, partName string) (bool, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM download_queue
		WHERE event_id = ? AND part_name = ? AND status NOT IN (?, ?)`,
		eventID, partName, QueueStatusImported, QueueStatusFailed).Scan(&count)
	return count > 0, err
}

// UpdateQueueObservation writes the fields refreshed by one monitor poll.
type UpdateQueueObservation struct {
	ID            int64
	Size          int64
	Downloaded    int64
	Progress      float64
	TimeRemaining int64
	Status        string
	StatusMessage string
	PriorStatus   string
	RetryCount    int
	MissingCount  int
}

// UpdateQueueItem commits one observation. Each item commits independently so
// a poison item cannot roll back its siblings.
func (s *Store) UpdateQueueItem(ctx context.Context, p UpdateQueueObservation) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE download_queue SET size = ?, downloaded = ?, progress = ?, time_remaining = ?,
			status = ?, status_message = ?, prior_status = ?, retry_count = ?, missing_count = ?,
			updated_at = CURRENT_TIMESTAMP
		WHERE id = ?`,
		p.Size, p.Downloaded, p.Progress, p.TimeRemaining, p.Status, p.StatusMessage,
		p.PriorStatus, p.RetryCount, p.MissingCount, p.ID)
	return err
}

// MarkQueueItemImported transitions to Imported exactly once; the guard on
// imported_at makes the import trigger idempotent.
func (s *Store) MarkQueueItemImported(ctx context.Context, id int64, at time.Time) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE download_queue SET status = ?, imported_at = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ? AND imported_at IS NULL`, QueueStatusImported, at, id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// UpdateQueueDownloadID follows an identifier change (debrid proxies replace
// the original download with their own id).
func (s *Store) UpdateQueueDownloadID(ctx context.Context, id int64, downloadID string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE download_queue SET download_id = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`,
		downloadID, id)
	return err
}

// DeleteQueueItem removes a queue row.
func (s *Store) DeleteQueueItem(ctx context.Context, id int64) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM download_queue WHERE id = ?`, id)
	return err
}
