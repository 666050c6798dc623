// Package search implements the event search planner: cache-first candidate
// discovery, budgeted indexer fan-out, selection and the grab.
package search

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/semaphore"

	"github.com/ohathar/sportarr/internal/database/store"
	"github.com/ohathar/sportarr/internal/downloader"
	dltypes "github.com/ohathar/sportarr/internal/downloader/types"
	"github.com/ohathar/sportarr/internal/indexer"
	"github.com/ohathar/sportarr/internal/indexer/status"
	"github.com/ohathar/sportarr/internal/metrics"
	"github.com/ohathar/sportarr/internal/quality"
	"github.com/ohathar/sportarr/internal/release"
	"github.com/ohathar/sportarr/internal/releasecache"
)

// Config holds planner settings.
type Config struct {
	// BroadcastWindow is how close to a known TV broadcast time external
	// searches are allowed to begin; scene releases appear shortly after
	// broadcast, so earlier queries only burn quota.
	BroadcastWindow time.Duration
	// FanOutLimit bounds concurrent indexer searches.
	FanOutLimit int
	// MaxResults caps each indexer search.
	MaxResults int
}

// Planner drives acquisition for every monitored event.
type Planner struct {
	store   *store.Store
	cache   *releasecache.Cache
	client  *indexer.Client
	status  *status.Service
	clients *downloader.Service
	cfg     Config
	logger  zerolog.Logger

	now func() time.Time
}

// NewPlanner creates a search planner.
func NewPlanner(st *store.Store, cache *releasecache.Cache, client *indexer.Client, statusSvc *status.Service, clients *downloader.Service, cfg Config, logger zerolog.Logger) *Planner {
	if cfg.BroadcastWindow <= 0 {
		cfg.BroadcastWindow = 4 * time.Hour
	}
	if cfg.FanOutLimit <= 0 {
		cfg.FanOutLimit = 3
	}
	if cfg.MaxResults <= 0 {
		cfg.MaxResults = 100
	}
	return &Planner{
		store:   st,
		cache:   cache,
		client:  client,
		status:  statusSvc,
		clients: clients,
		cfg:     cfg,
		logger:  logger.With().Str("component", "search-planner").Logger(),
		now:     time.Now,
	}
}

// RunOnce plans one search pass over every monitored event, in id order.
// Per-event failures are recovered locally.
func (p *Planner) RunOnce(ctx context.Context) error {
	events, err := p.store.ListMonitoredEvents(ctx)
	if err != nil {
		return fmt.Errorf("failed to list events: %w", err)
	}

	for _, event := range events {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := p.processEvent(ctx, event); err != nil {
			p.logger.Error().Err(err).Int64("eventId", event.ID).Str("title", event.Title).Msg("Event search failed")
		}
	}
	return nil
}

func (p *Planner) processEvent(ctx context.Context, event *store.Event) error {
	profile, formats, err := p.loadScoring(ctx, event)
	if err != nil {
		return err
	}

	parts, err := p.store.ListEventParts(ctx, event.ID)
	if err != nil {
		return err
	}

	if len(parts) == 0 {
		needed, current, err := p.needsAcquisition(ctx, event.ID, "", event.HasFile, profile)
		if err != nil {
			return err
		}
		if needed {
			return p.acquire(ctx, event, "", current, profile, formats)
		}
		return nil
	}

	for _, part := range parts {
		if !part.Monitored {
			continue
		}
		needed, current, err := p.needsAcquisition(ctx, event.ID, part.Name, part.HasFile, profile)
		if err != nil {
			return err
		}
		if !needed {
			continue
		}
		if err := p.acquire(ctx, event, part.Name, current, profile, formats); err != nil {
			p.logger.Error().Err(err).Int64("eventId", event.ID).Str("part", part.Name).Msg("Part search failed")
		}
	}
	return nil
}

// needsAcquisition reports whether the event (or part) still needs a file or
// remains upgrade-eligible under the profile cutoff. The current quality is
// the one recorded at import time.
func (p *Planner) needsAcquisition(ctx context.Context, eventID int64, partName string, hasFile bool, profile *quality.Profile) (bool, string, error) {
	if !hasFile {
		return true, "", nil
	}
	if profile == nil {
		return false, "", nil
	}

	files, err := p.store.ListEventFiles(ctx, eventID)
	if err != nil {
		return false, "", err
	}
	current := ""
	for _, f := range files {
		if f.PartName == partName {
			current = f.Quality
		}
	}
	if current == "" {
		return false, "", nil
	}
	return !profile.MeetsCutoff(current), current, nil
}

func (p *Planner) acquire(ctx context.Context, event *store.Event, partName, currentQuality string, profile *quality.Profile, formats []*quality.CustomFormat) error {
	active, err := p.store.ActiveQueueItemExists(ctx, event.ID, partName)
	if err != nil {
		return err
	}
	if active {
		return nil
	}

	now := p.now().UTC()
	matchEvent := toMatchEvent(event)

	scored, err := p.cacheMatches(ctx, matchEvent, partName, now)
	if err != nil {
		return err
	}

	if len(scored) == 0 {
		// Nothing cached. External searches wait for the broadcast window:
		// before it opens, the scene has nothing for us anyway.
		if event.BroadcastTime != nil && now.Before(event.BroadcastTime.Add(-p.cfg.BroadcastWindow)) {
			p.logger.Debug().
				Int64("eventId", event.ID).
				Time("broadcast", *event.BroadcastTime).
				Msg("Deferring search until broadcast window")
			return nil
		}

		if err := p.searchIndexers(ctx, matchEvent, now); err != nil {
			return err
		}
		if err := p.store.SetEventLastSearch(ctx, event.ID, now); err != nil {
			return err
		}

		scored, err = p.cacheMatches(ctx, matchEvent, partName, now)
		if err != nil {
			return err
		}
	}

	chosen, validation, err := p.selectCandidate(ctx, event, scored, currentQuality, profile, formats)
	if err != nil || chosen == nil {
		return err
	}

	return p.grab(ctx, event, partName, chosen, validation)
}

// cacheMatches queries the release cache and validates candidates against
// the event.
func (p *Planner) cacheMatches(ctx context.Context, matchEvent release.Event, partName string, now time.Time) ([]scoredEntry, error) {
	entries, err := p.cache.QueryEvent(ctx, matchEvent, now)
	if err != nil {
		return nil, err
	}

	candidates := make([]release.Candidate, 0, len(entries))
	byGUID := make(map[string]*store.CachedRelease, len(entries))
	for _, entry := range entries {
		var publishDate time.Time
		if entry.PublishDate != nil {
			publishDate = *entry.PublishDate
		}
		candidates = append(candidates, release.Candidate{
			GUID:           entry.GUID,
			Title:          entry.Title,
			PublishDate:    publishDate,
			Seeders:        entry.Seeders,
			TransportScore: indexer.TransportScore(entry.Seeders, resolutionOf(entry.Quality), publishDate, now),
		})
		byGUID[entry.GUID] = entry
	}

	matches := release.FilterMatches(candidates, matchEvent, partName)

	scored := make([]scoredEntry, 0, len(matches))
	for _, m := range matches {
		scored = append(scored, scoredEntry{
			entry:      byGUID[m.Candidate.GUID],
			validation: m.Validation,
			transport:  m.Candidate.TransportScore,
		})
	}
	return scored, nil
}

func resolutionOf(label string) int {
	def, ok := quality.DefinitionByName(label)
	if !ok {
		return 0
	}
	return def.Resolution
}

type scoredEntry struct {
	entry      *store.CachedRelease
	validation release.Validation
	transport  int
	total      int
}

// selectCandidate orders matches by confidence, then composite score, then
// transport score, and returns the first non-blocklisted candidate.
func (p *Planner) selectCandidate(ctx context.Context, event *store.Event, scored []scoredEntry, currentQuality string, profile *quality.Profile, formats []*quality.CustomFormat) (*store.CachedRelease, *release.Validation, error) {
	gated := scored[:0]
	for i := range scored {
		breakdown := quality.ScoreRelease(scored[i].entry.Title, scored[i].entry.Size, profile, formats)
		if profile != nil && breakdown.CustomFormatScore < profile.MinFormatScore {
			p.logger.Debug().
				Str("title", scored[i].entry.Title).
				Int("formatScore", breakdown.CustomFormatScore).
				Msg("Rejected below minimum format score")
			continue
		}
		// Upgrade pass: with a file in place only strictly better qualities
		// qualify.
		if currentQuality != "" && profile != nil && !profile.IsUpgrade(currentQuality, breakdown.QualityLabel) {
			continue
		}
		scored[i].total = breakdown.Total
		gated = append(gated, scored[i])
	}
	scored = gated

	sort.SliceStable(scored, func(a, b int) bool {
		if scored[a].validation.Confidence != scored[b].validation.Confidence {
			return scored[a].validation.Confidence > scored[b].validation.Confidence
		}
		if scored[a].total != scored[b].total {
			return scored[a].total > scored[b].total
		}
		return scored[a].transport > scored[b].transport
	})

	for i := range scored {
		entry := scored[i].entry
		blocked, err := p.store.IsBlocklisted(ctx, event.ID, entry.InfoHash, entry.IndexerName, entry.Title)
		if err != nil {
			return nil, nil, err
		}
		if blocked {
			p.logger.Debug().Str("title", entry.Title).Msg("Skipping blocklisted release")
			continue
		}
		return entry, &scored[i].validation, nil
	}
	return nil, nil, nil
}

// searchIndexers fans one search out to every available indexer under a
// bounded concurrency, feeding results back into the cache.
func (p *Planner) searchIndexers(ctx context.Context, matchEvent release.Event, now time.Time) error {
	indexers, err := p.store.ListEnabledIndexers(ctx)
	if err != nil {
		return err
	}

	queries := BuildQueries(matchEvent)
	if len(queries) == 0 {
		return nil
	}

	sem := semaphore.NewWeighted(int64(p.cfg.FanOutLimit))
	done := make(chan struct{})
	errs := make([]error, len(indexers))

	for idx, ix := range indexers {
		go func(idx int, ix *store.Indexer) {
			defer func() { done <- struct{}{} }()

			if err := sem.Acquire(ctx, 1); err != nil {
				errs[idx] = err
				return
			}
			defer sem.Release(1)

			errs[idx] = p.searchOne(ctx, ix, queries[0], now)
		}(idx, ix)
	}
	for range indexers {
		<-done
	}

	for _, err := range errs {
		if err != nil && errors.Is(err, context.Canceled) {
			return err
		}
	}
	return nil
}

// searchOne issues one budgeted query against one indexer and routes the
// outcome into the health model.
func (p *Planner) searchOne(ctx context.Context, ix *store.Indexer, query string, now time.Time) error {
	available, err := p.status.IsAvailable(ctx, ix, now)
	if err != nil || !available {
		return err
	}

	admitted, err := p.status.AdmitQuery(ctx, ix, now)
	if err != nil || !admitted {
		return err
	}

	results, err := p.client.Search(ctx, ix, query, p.cfg.MaxResults)
	if err != nil {
		metrics.IndexerQueries.WithLabelValues(ix.Name, "error").Inc()
		if ie, ok := indexer.AsError(err); ok && ie.Kind == indexer.KindRateLimited {
			// Quota pushback is not a failure; it must not escalate backoff.
			return p.status.RecordRateLimited(ctx, ix.ID, ie.RetryAfter, now)
		}
		if recordErr := p.status.RecordFailure(ctx, ix.ID, err, now); recordErr != nil {
			return recordErr
		}
		p.logger.Warn().Err(err).Str("indexer", ix.Name).Msg("Indexer search failed")
		return nil
	}

	metrics.IndexerQueries.WithLabelValues(ix.Name, "ok").Inc()
	if err := p.status.RecordSuccess(ctx, ix.ID, now); err != nil {
		return err
	}
	return p.cache.CacheReleases(ctx, results, false)
}

// grab hands the chosen release to a download client and records the queue
// item.
func (p *Planner) grab(ctx context.Context, event *store.Event, partName string, entry *store.CachedRelease, validation *release.Validation) error {
	protocol := dltypes.Protocol(entry.Protocol)
	clientRow, client, err := p.clients.PickClient(ctx, protocol)
	if err != nil {
		return err
	}

	downloadID, err := client.Add(ctx, entry.DownloadURL, clientRow.Category)
	if err != nil {
		return fmt.Errorf("failed to add download: %w", err)
	}
	if downloadID == "" {
		downloadID = entry.InfoHash
	}
	if downloadID == "" {
		downloadID = entry.GUID
	}

	if _, err := p.store.InsertQueueItem(ctx, store.InsertQueueItemParams{
		EventID:     event.ID,
		PartName:    partName,
		ClientID:    clientRow.ID,
		DownloadID:  downloadID,
		Title:       entry.Title,
		Category:    clientRow.Category,
		IndexerName: entry.IndexerName,
		InfoHash:    entry.InfoHash,
		Protocol:    entry.Protocol,
		Size:        entry.Size,
	}); err != nil {
		return err
	}

	if entry.IndexerID != 0 {
		// Count the grab against the indexer's hourly grab cap.
		if _, err := p.store.AdmitGrab(ctx, entry.IndexerID, 0, p.now().UTC()); err != nil {
			p.logger.Warn().Err(err).Msg("Failed to record grab")
		}
	}

	if err := p.store.SetEventStatus(ctx, event.ID, store.EventStatusDownloading); err != nil {
		return err
	}

	payload, _ := json.Marshal(map[string]any{
		"title":      entry.Title,
		"indexer":    entry.IndexerName,
		"guid":       entry.GUID,
		"confidence": validation.Confidence,
		"part":       partName,
	})
	if err := p.store.InsertHistory(ctx, &event.ID, store.HistoryGrabbed, string(payload)); err != nil {
		p.logger.Warn().Err(err).Msg("Failed to record grab history")
	}

	metrics.Grabs.WithLabelValues(entry.IndexerName).Inc()
	p.logger.Info().
		Int64("eventId", event.ID).
		Str("title", entry.Title).
		Str("indexer", entry.IndexerName).
		Int("confidence", validation.Confidence).
		Msg("Grabbed release")
	return nil
}

func (p *Planner) loadScoring(ctx context.Context, event *store.Event) (*quality.Profile, []*quality.CustomFormat, error) {
	var profile *quality.Profile
	if event.QualityProfileID != nil {
		row, err := p.store.GetQualityProfile(ctx, *event.QualityProfileID)
		if err != nil && !errors.Is(err, store.ErrNotFound) {
			return nil, nil, err
		}
		if row != nil {
			profile, err = quality.ParseProfile(row.ID, row.Name, row.Cutoff, row.ItemsJSON, row.FormatItems, row.MinFormatScore)
			if err != nil {
				return nil, nil, err
			}
		}
	}

	var formats []*quality.CustomFormat
	rows, err := p.store.ListCustomFormats(ctx)
	if err != nil {
		return nil, nil, err
	}
	for _, row := range rows {
		cf, err := quality.ParseCustomFormat(row.ID, row.Name, row.Specifications)
		if err != nil {
			p.logger.Warn().Err(err).Str("format", row.Name).Msg("Skipping undecodable custom format")
			continue
		}
		formats = append(formats, cf)
	}

	return profile, formats, nil
}

func toMatchEvent(event *store.Event) release.Event {
	e := release.Event{
		ID:       event.ID,
		Title:    event.Title,
		Sport:    event.Sport,
		League:   event.League,
		HomeTeam: event.HomeTeam,
		AwayTeam: event.AwayTeam,
	}
	if event.EventDate != nil {
		e.Date = *event.EventDate
	}
	return e
}
