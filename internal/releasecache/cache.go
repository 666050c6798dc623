// Package releasecache maintains the content-addressed, TTL-bounded store of
// every release the system has seen. Indexers impose strict hourly quotas;
// the cache converts per-event searches into one RSS poll per indexer per
// cycle plus in-memory filtering.
package releasecache

import (
	"context"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/ohathar/sportarr/internal/database/store"
	"github.com/ohathar/sportarr/internal/indexer"
	"github.com/ohathar/sportarr/internal/parser"
	"github.com/ohathar/sportarr/internal/release"
)

// DefaultTTL bounds how long a cached release stays visible.
const DefaultTTL = 7 * 24 * time.Hour

// Cache wraps the release_cache table.
type Cache struct {
	store  *store.Store
	ttl    time.Duration
	logger zerolog.Logger
}

// New creates a release cache with the given TTL (DefaultTTL when zero).
func New(st *store.Store, ttl time.Duration, logger zerolog.Logger) *Cache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Cache{
		store:  st,
		ttl:    ttl,
		logger: logger.With().Str("component", "release-cache").Logger(),
	}
}

// CacheReleases upserts search results by GUID. Re-caching the same release
// refreshes its seeders, leechers and TTL and changes nothing else.
func (c *Cache) CacheReleases(ctx context.Context, results []indexer.SearchResult, fromRSS bool) error {
	now := time.Now().UTC()
	for i := range results {
		r := &results[i]
		parsed := parser.ParseTitle(r.Title)
		normalized := Normalize(r.Title)

		terms := make([]string, 0, 8)
		for _, w := range strings.Fields(normalized) {
			if len(w) > 2 {
				terms = append(terms, w)
			}
		}

		var publishDate *time.Time
		if !r.PublishDate.IsZero() {
			pd := r.PublishDate
			publishDate = &pd
		}

		entry := &store.CachedRelease{
			GUID:            r.GUID,
			Title:           r.Title,
			NormalizedTitle: normalized,
			SearchTerms:     TermBag(terms),
			DownloadURL:     r.DownloadURL,
			InfoURL:         r.InfoURL,
			IndexerID:       r.IndexerID,
			IndexerName:     r.IndexerName,
			Protocol:        string(r.Protocol),
			InfoHash:        r.InfoHash,
			Size:            r.Size,
			Quality:         parser.QualityLabel(parsed.Quality),
			Source:          parsed.Quality.Source,
			Codec:           parsed.Quality.Codec,
			Language:        parsed.Language,
			Seeders:         r.Seeders,
			Leechers:        r.Leechers,
			PublishDate:     publishDate,
			CachedAt:        now,
			ExpiresAt:       now.Add(c.ttl),
			FromRSS:         fromRSS,
			SportPrefix:     parsed.SportPrefix,
			Year:            parsed.Year,
			Round:           parsed.Round,
			IsPack:          parsed.IsPack,
		}
		if err := c.store.UpsertRelease(ctx, entry); err != nil {
			return err
		}
	}

	if len(results) > 0 {
		c.logger.Debug().Int("count", len(results)).Bool("fromRSS", fromRSS).Msg("Cached releases")
	}
	return nil
}

// QueryEvent returns unexpired cached releases that plausibly belong to the
// event. Candidates are bounded by the indexed sport-prefix and year columns,
// then filtered in memory with IsReleaseMatch; no external I/O happens here.
func (c *Cache) QueryEvent(ctx context.Context, e release.Event, now time.Time) ([]*store.CachedRelease, error) {
	terms := ExpandSearchTerms(e)
	normalizedTitle := Normalize(e.Title)

	year := 0
	if !e.Date.IsZero() {
		year = e.Date.Year()
	}

	candidates, err := c.store.ListReleaseCandidates(ctx, sportPrefixForEvent(e), year, now)
	if err != nil {
		return nil, err
	}

	matched := make([]*store.CachedRelease, 0, len(candidates))
	for _, entry := range candidates {
		if !IsReleaseMatch(entry, normalizedTitle, terms) {
			continue
		}
		if entry.Year != 0 && year != 0 && entry.Year != year {
			continue
		}
		matched = append(matched, entry)
	}
	return matched, nil
}

// QueryTerms runs the broad-sweep path: every token of the normalized query
// must appear in the entry's normalized title.
func (c *Cache) QueryTerms(ctx context.Context, query string, now time.Time) ([]*store.CachedRelease, error) {
	tokens := strings.Fields(Normalize(query))
	if len(tokens) == 0 {
		return nil, nil
	}

	candidates, err := c.store.ListReleaseCandidates(ctx, "", 0, now)
	if err != nil {
		return nil, err
	}

	var matched []*store.CachedRelease
	for _, entry := range candidates {
		all := true
		for _, tok := range tokens {
			if !strings.Contains(entry.NormalizedTitle, tok) {
				all = false
				break
			}
		}
		if all {
			matched = append(matched, entry)
		}
	}
	return matched, nil
}

// Cleanup removes expired entries.
func (c *Cache) Cleanup(ctx context.Context, now time.Time) (int64, error) {
	removed, err := c.store.DeleteExpiredReleases(ctx, now)
	if err != nil {
		return 0, err
	}
	if removed > 0 {
		c.logger.Info().Int64("removed", removed).Msg("Swept expired cache entries")
	}
	return removed, nil
}

// IsReleaseMatch decides whether a cached entry plausibly belongs to an
// event: the normalized event title appears in the entry title, or at least
// a third of the expected search terms are present in the entry's term bag.
func IsReleaseMatch(entry *store.CachedRelease, normalizedEventTitle string, terms []string) bool {
	if normalizedEventTitle != "" && strings.Contains(entry.NormalizedTitle, normalizedEventTitle) {
		return true
	}
	if len(terms) == 0 {
		return false
	}

	entryTerms := make(map[string]bool)
	for _, t := range SplitTermBag(entry.SearchTerms) {
		entryTerms[t] = true
	}

	hits := 0
	for _, t := range terms {
		if entryTerms[t] || strings.Contains(entry.NormalizedTitle, t) {
			hits++
		}
	}
	return hits*3 >= len(terms)
}

// sportPrefixForEvent maps a league to the sport-prefix index column.
func sportPrefixForEvent(e release.Event) string {
	parsed := parser.ParseTitle(strings.ReplaceAll(e.League, " ", "."))
	if parsed.SportPrefix != "" {
		return parsed.SportPrefix
	}
	parsed = parser.ParseTitle(strings.ReplaceAll(e.Title, " ", "."))
	return parsed.SportPrefix
}
