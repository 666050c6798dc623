// Package status tracks per-indexer health: failure backoff, rate-limit
// cooldowns and hourly query/grab admission.
package status

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/ohathar/sportarr/internal/database/store"
)

// backoffLadder is the escalation schedule applied per consecutive failure.
var backoffLadder = []time.Duration{
	5 * time.Minute,
	10 * time.Minute,
	20 * time.Minute,
	40 * time.Minute,
	time.Hour,
	2 * time.Hour,
	4 * time.Hour,
	8 * time.Hour,
	16 * time.Hour,
	24 * time.Hour,
}

const (
	defaultRateLimitCooldown = 5 * time.Minute
	maxRateLimitCooldown     = time.Hour
)

// Service is the indexer health model.
type Service struct {
	store  *store.Store
	logger zerolog.Logger
}

// NewService creates a status service.
func NewService(st *store.Store, logger zerolog.Logger) *Service {
	return &Service{
		store:  st,
		logger: logger.With().Str("component", "indexer-status").Logger(),
	}
}

// Backoff returns the ladder duration for k consecutive failures (k >= 1).
func Backoff(failures int) time.Duration {
	if failures < 1 {
		return 0
	}
	idx := failures - 1
	if idx >= len(backoffLadder) {
		idx = len(backoffLadder) - 1
	}
	return backoffLadder[idx]
}

// IsAvailable reports whether an indexer may be queried right now: enabled,
// not in failure backoff, not rate-limit cooled down, and under its hourly
// query cap.
func (s *Service) IsAvailable(ctx context.Context, ix *store.Indexer, now time.Time) (bool, error) {
	if !ix.Enabled {
		return false, nil
	}

	st, err := s.store.GetIndexerStatus(ctx, ix.ID)
	if err != nil {
		return false, err
	}

	if st.DisabledUntil != nil && now.Before(*st.DisabledUntil) {
		return false, nil
	}
	if st.RateLimitedUntil != nil && now.Before(*st.RateLimitedUntil) {
		return false, nil
	}
	if ix.QueryLimit > 0 && hourWindowActive(st.HourResetAt, now) && st.QueriesThisHour >= ix.QueryLimit {
		return false, nil
	}

	return true, nil
}

func hourWindowActive(resetAt *time.Time, now time.Time) bool {
	return resetAt != nil && now.Before(*resetAt)
}

// AdmitQuery atomically admits one query against the indexer's hourly cap.
// The hourly reset happens inside the admitting transaction.
func (s *Service) AdmitQuery(ctx context.Context, ix *store.Indexer, now time.Time) (bool, error) {
	return s.store.AdmitQuery(ctx, ix.ID, ix.QueryLimit, now)
}

// AdmitGrab atomically admits one grab; grabs are counted separately from
// queries.
func (s *Service) AdmitGrab(ctx context.Context, ix *store.Indexer, now time.Time) (bool, error) {
	return s.store.AdmitGrab(ctx, ix.ID, ix.GrabLimit, now)
}

// RecordSuccess clears the failure state and stamps the last success.
func (s *Service) RecordSuccess(ctx context.Context, indexerID int64, now time.Time) error {
	st, err := s.store.GetIndexerStatus(ctx, indexerID)
	if err != nil {
		return err
	}

	st.ConsecutiveFailures = 0
	st.LastFailureReason = ""
	st.LastFailureAt = nil
	st.DisabledUntil = nil
	st.LastSuccessAt = &now

	return s.store.SaveIndexerStatus(ctx, st)
}

// RecordFailure escalates the failure backoff:
// disabledUntil = lastFailure + ladder[min(failures-1, 9)].
func (s *Service) RecordFailure(ctx context.Context, indexerID int64, opErr error, now time.Time) error {
	st, err := s.store.GetIndexerStatus(ctx, indexerID)
	if err != nil {
		return err
	}

	st.ConsecutiveFailures++
	if opErr != nil {
		st.LastFailureReason = opErr.Error()
	}
	st.LastFailureAt = &now
	until := now.Add(Backoff(st.ConsecutiveFailures))
	st.DisabledUntil = &until

	s.logger.Warn().
		Int64("indexerId", indexerID).
		Int("consecutiveFailures", st.ConsecutiveFailures).
		Time("disabledUntil", until).
		Err(opErr).
		Msg("Recorded indexer failure, applying backoff")

	return s.store.SaveIndexerStatus(ctx, st)
}

// RecordRateLimited applies the 429 cooldown. This is not a failure: the
// failure counter is untouched so the backoff ladder does not escalate.
func (s *Service) RecordRateLimited(ctx context.Context, indexerID int64, retryAfter time.Duration, now time.Time) error {
	cooldown := retryAfter
	if cooldown <= 0 {
		cooldown = defaultRateLimitCooldown
	}
	if cooldown > maxRateLimitCooldown {
		cooldown = maxRateLimitCooldown
	}

	st, err := s.store.GetIndexerStatus(ctx, indexerID)
	if err != nil {
		return err
	}

	until := now.Add(cooldown)
	st.RateLimitedUntil = &until

	s.logger.Info().
		Int64("indexerId", indexerID).
		Dur("cooldown", cooldown).
		Msg("Indexer rate limited")

	return s.store.SaveIndexerStatus(ctx, st)
}

// Reset manually clears failures, cooldowns and hourly counters.
func (s *Service) Reset(ctx context.Context, indexerID int64) error {
	if err := s.store.ClearIndexerStatus(ctx, indexerID); err != nil {
		return fmt.Errorf("failed to reset indexer status: %w", err)
	}
	s.logger.Info().Int64("indexerId", indexerID).Msg("Cleared indexer status")
	return nil
}
