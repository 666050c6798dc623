package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// Indexer is one configured Torznab/Newznab provider.
type Indexer struct {
	ID             int64
	Name           string
	BaseURL        string
	APIPath        string
	APIKey         string
	Categories     string
	Protocol       string
	Enabled        bool
	Priority       int
	QueryLimit     int
	GrabLimit      int
	RequestDelayMs int
}

// IndexerStatus carries the per-indexer health counters and timers.
type IndexerStatus struct {
	IndexerID           int64
	ConsecutiveFailures int
	LastFailureReason   string
	LastFailureAt       *time.Time
	LastSuccessAt       *time.Time
	DisabledUntil       *time.Time
	RateLimitedUntil    *time.Time
	QueriesThisHour     int
	GrabsThisHour       int
	HourResetAt         *time.Time
}

// CreateIndexerParams holds the fields for a new indexer.
type CreateIndexerParams struct {
	Name           string
	BaseURL        string
	APIPath        string
	APIKey         string
	Categories     string
	Protocol       string
	Enabled        bool
	Priority       int
	QueryLimit     int
	GrabLimit      int
	RequestDelayMs int
}

// CreateIndexer inserts an indexer row.
func (s *Store) CreateIndexer(ctx context.Context, p CreateIndexerParams) (int64, error) {
	if p.APIPath == "" {
		p.APIPath = "/api"
	}
	if p.Protocol == "" {
		p.Protocol = "torrent"
	}
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO indexers (name, base_url, api_path, api_key, categories, protocol,
			enabled, priority, query_limit, grab_limit, request_delay_ms)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.Name, p.BaseURL, p.APIPath, p.APIKey, p.Categories, p.Protocol,
		boolToInt(p.Enabled), p.Priority, p.QueryLimit, p.GrabLimit, p.RequestDelayMs)
	if err != nil {
		return 0, fmt.Errorf("failed to create indexer: %w", err)
	}
	return res.LastInsertId()
}

// ListEnabledIndexers returns enabled indexers ordered by priority.
func (s *Store) ListEnabledIndexers(ctx context.Context) ([]*Indexer, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, base_url, api_path, api_key, categories, protocol,
			enabled, priority, query_limit, grab_limit, request_delay_ms
		FROM indexers WHERE enabled = 1 ORDER BY priority, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var indexers []*Indexer
	for rows.Next() {
		var ix Indexer
		if err := rows.Scan(&ix.ID, &ix.Name, &ix.BaseURL, &ix.APIPath, &ix.APIKey,
			&ix.Categories, &ix.Protocol, &ix.Enabled, &ix.Priority,
			&ix.QueryLimit, &ix.GrabLimit, &ix.RequestDelayMs); err != nil {
			return nil, err
		}
		indexers = append(indexers, &ix)
	}
	return indexers, rows.Err()
}

// GetIndexerStatus fetches the status row, returning a zero-value status when
// none has been recorded yet.
func (s *Store) GetIndexerStatus(ctx context.Context, indexerID int64) (*IndexerStatus, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT indexer_id, consecutive_failures, last_failure_reason, last_failure_at,
			last_success_at, disabled_until, rate_limited_until,
			queries_this_hour, grabs_this_hour, hour_reset_at
		FROM indexer_status WHERE indexer_id = ?`, indexerID)

	st, err := scanIndexerStatus(row)
	if errors.Is(err, sql.ErrNoRows) {
		return &IndexerStatus{IndexerID: indexerID}, nil
	}
	return st, err
}

func scanIndexerStatus(row interface{ Scan(...any) error }) (*IndexerStatus, error) {
	var st IndexerStatus
	var lastFailure, lastSuccess, disabledUntil, rateLimitedUntil, hourReset sql.NullTime
	err := row.Scan(&st.IndexerID, &st.ConsecutiveFailures, &st.LastFailureReason,
		&lastFailure, &lastSuccess, &disabledUntil, &rateLimitedUntil,
		&st.QueriesThisHour, &st.GrabsThisHour, &hourReset)
	if err != nil {
		return nil, err
	}
	st.LastFailureAt = fromNullTime(lastFailure)
	st.LastSuccessAt = fromNullTime(lastSuccess)
	st.DisabledUntil = fromNullTime(disabledUntil)
	st.RateLimitedUntil = fromNullTime(rateLimitedUntil)
	st.HourResetAt = fromNullTime(hourReset)
	return &st, nil
}

// SaveIndexerStatus writes the full status row.
func (s *Store) SaveIndexerStatus(ctx context.Context, st *IndexerStatus) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO indexer_status (indexer_id, consecutive_failures, last_failure_reason,
			last_failure_at, last_success_at, disabled_until, rate_limited_until,
			queries_this_hour, grabs_this_hour, hour_reset_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(indexer_id) DO UPDATE SET
			consecutive_failures = excluded.consecutive_failures,
			last_failure_reason = excluded.last_failure_reason,
			last_failure_at = excluded.last_failure_at,
			last_success_at = excluded.last_success_at,
			disabled_until = excluded.disabled_until,
			rate_limited_until = excluded.rate_limited_until,
			queries_this_hour = excluded.queries_this_hour,
			grabs_this_hour = excluded.grabs_this_hour,
			hour_reset_at = excluded.hour_reset_at`,
		st.IndexerID, st.ConsecutiveFailures, st.LastFailureReason,
		toNullTime(st.LastFailureAt), toNullTime(st.LastSuccessAt),
		toNullTime(st.DisabledUntil), toNullTime(st.RateLimitedUntil),
		st.QueriesThisHour, st.GrabsThisHour, toNullTime(st.HourResetAt))
	if err != nil {
		return fmt.Errorf("failed to save indexer status: %w", err)
	}
	return nil
}

// admitCounter implements the transactional hourly admission for queries and
// grabs. The hourly reset happens inside the same transaction that admits,
// so two workers can never double-reset or exceed the cap together.
func (s *Store) admitCounter(ctx context.Context, indexerID int64, limit int, now time.Time, column string) (bool, error) {
	admitted := false
	err := s.WithTx(ctx, func(tx *sql.Tx) error {
		row := tx.QueryRowContext(ctx, `
			SELECT indexer_id, consecutive_failures, last_failure_reason, last_failure_at,
				last_success_at, disabled_until, rate_limited_until,
				queries_this_hour, grabs_this_hour, hour_reset_at
			FROM indexer_status WHERE indexer_id = ?`, indexerID)
		st, err := scanIndexerStatus(row)
		if errors.Is(err, sql.ErrNoRows) {
			st = &IndexerStatus{IndexerID: indexerID}
		} else if err != nil {
			return err
		}

		if st.HourResetAt == nil || !now.Before(*st.HourResetAt) {
			st.QueriesThisHour = 0
			st.GrabsThisHour = 0
			reset := now.Add(time.Hour)
			st.HourResetAt = &reset
		}

		count := st.QueriesThisHour
		if column == "grabs_this_hour" {
			count = st.GrabsThisHour
		}
		if limit > 0 && count >= limit {
			return nil
		}

		if column == "grabs_this_hour" {
			st.GrabsThisHour++
		} else {
			st.QueriesThisHour++
		}
		admitted = true

		_, err = tx.ExecContext(ctx, `
			INSERT INTO indexer_status (indexer_id, consecutive_failures, last_failure_reason,
				last_failure_at, last_success_at, disabled_until, rate_limited_until,
				queries_this_hour, grabs_this_hour, hour_reset_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(indexer_id) DO UPDATE SET
				queries_this_hour = excluded.queries_this_hour,
				grabs_this_hour = excluded.grabs_this_hour,
				hour_reset_at = excluded.hour_reset_at`,
			st.IndexerID, st.ConsecutiveFailures, st.LastFailureReason,
			toNullTime(st.LastFailureAt), toNullTime(st.LastSuccessAt),
			toNullTime(st.DisabledUntil), toNullTime(st.RateLimitedUntil),
			st.QueriesThisHour, st.GrabsThisHour, toNullTime(st.HourResetAt))
		return err
	})
	return admitted, err
}

// AdmitQuery atomically admits one query against the hourly cap.
func (s *Store) AdmitQuery(ctx context.Context, indexerID int64, limit int, now time.Time) (bool, error) {
	return s.admitCounter(ctx, indexerID, limit, now, "queries_this_hour")
}

// AdmitGrab atomically admits one grab against the hourly cap.
func (s *Store) AdmitGrab(ctx context.Context, indexerID int64, limit int, now time.Time) (bool, error) {
	return s.admitCounter(ctx, indexerID, limit, now, "grabs_this_hour")
}

// ClearIndexerStatus resets failures, cooldowns and counters.
func (s *Store) ClearIndexerStatus(ctx context.Context, indexerID int64) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE indexer_status SET consecutive_failures = 0, last_failure_reason = '',
			last_failure_at = NULL, disabled_until = NULL, rate_limited_until = NULL,
			queries_this_hour = 0, grabs_this_hour = 0, hour_reset_at = NULL
		WHERE indexer_id = ?`, indexerID)
	return err
}
