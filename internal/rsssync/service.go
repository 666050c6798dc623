// Package rsssync runs the periodic RSS discovery sweep across enabled
// indexers and feeds every release into the cache.
package rsssync

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/ohathar/sportarr/internal/database/store"
	"github.com/ohathar/sportarr/internal/indexer"
	"github.com/ohathar/sportarr/internal/indexer/status"
	"github.com/ohathar/sportarr/internal/metrics"
	"github.com/ohathar/sportarr/internal/releasecache"
)

// Service is the discovery worker.
type Service struct {
	store      *store.Store
	cache      *releasecache.Cache
	client     *indexer.Client
	status     *status.Service
	maxResults int
	logger     zerolog.Logger
}

// NewService creates the RSS sync worker.
func NewService(st *store.Store, cache *releasecache.Cache, client *indexer.Client, statusSvc *status.Service, maxResults int, logger zerolog.Logger) *Service {
	if maxResults <= 0 {
		maxResults = 100
	}
	return &Service{
		store:      st,
		cache:      cache,
		client:     client,
		status:     statusSvc,
		maxResults: maxResults,
		logger:     logger.With().Str("component", "rss-sync").Logger(),
	}
}

// RunOnce polls every available indexer's feed once. No search queries are
// issued here; RSS is the cheap discovery path that keeps the cache warm.
func (s *Service) RunOnce(ctx context.Context) error {
	indexers, err := s.store.ListEnabledIndexers(ctx)
	if err != nil {
		return fmt.Errorf("failed to list indexers: %w", err)
	}

	now := time.Now().UTC()
	for _, ix := range indexers {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := s.syncOne(ctx, ix, now); err != nil {
			s.logger.Warn().Err(err).Str("indexer", ix.Name).Msg("RSS sync failed")
		}
	}
	return nil
}

func (s *Service) syncOne(ctx context.Context, ix *store.Indexer, now time.Time) error {
	available, err := s.status.IsAvailable(ctx, ix, now)
	if err != nil || !available {
		return err
	}

	results, err := s.client.FetchRSS(ctx, ix, s.maxResults)
	if err != nil {
		metrics.IndexerQueries.WithLabelValues(ix.Name, "error").Inc()
		if ie, ok := indexer.AsError(err); ok && ie.Kind == indexer.KindRateLimited {
			return s.status.RecordRateLimited(ctx, ix.ID, ie.RetryAfter, now)
		}
		if recordErr := s.status.RecordFailure(ctx, ix.ID, err, now); recordErr != nil {
			return recordErr
		}
		return err
	}

	metrics.IndexerQueries.WithLabelValues(ix.Name, "ok").Inc()
	if err := s.status.RecordSuccess(ctx, ix.ID, now); err != nil {
		return err
	}

	s.logger.Debug().Str("indexer", ix.Name).Int("releases", len(results)).Msg("RSS feed fetched")
	return s.cache.CacheReleases(ctx, results, true)
}
