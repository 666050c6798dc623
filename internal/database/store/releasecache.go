package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// CachedRelease is one release_cache row.
type CachedRelease struct {
	GUID            string
	Title           string
	NormalizedTitle string
	SearchTerms     string
	DownloadURL     string
	InfoURL         string
	IndexerID       int64
	IndexerName     string
	Protocol        string
	InfoHash        string
	Size            int64
	Quality         string
	Source          string
	Codec           string
	Language        string
	Seeders         int
	Leechers        int
	PublishDate     *time.Time
	CachedAt        time.Time
	ExpiresAt       time.Time
	FromRSS         bool
	SportPrefix     string
	Year            int
	Round           int
	IsPack          bool
}

const cachedReleaseColumns = `guid, title, normalized_title, search_terms, download_url, info_url,
	indexer_id, indexer_name, protocol, info_hash, size, quality, source, codec, language,
	seeders, leechers, publish_date, cached_at, expires_at, from_rss, sport_prefix, year, round, is_pack`

func scanCachedRelease(row interface{ Scan(...any) error }) (*CachedRelease, error) {
	var r CachedRelease
	var publishDate sql.NullTime
	err := row.Scan(&r.GUID, &r.Title, &r.NormalizedTitle, &r.SearchTerms, &r.DownloadURL,
		&r.InfoURL, &r.IndexerID, &r.IndexerName, &r.Protocol, &r.InfoHash, &r.Size,
		&r.Quality, &r.Source, &r.Codec, &r.Language, &r.Seeders, &r.Leechers,
		&publishDate, &r.CachedAt, &r.ExpiresAt, &r.FromRSS, &r.SportPrefix,
		&r.Year, &r.Round, &r.IsPack)
	if err != nil {
		return nil, err
	}
	r.PublishDate = fromNullTime(publishDate)
	return &r, nil
}

// UpsertRelease inserts a release by GUID or refreshes an existing row.
// Seeders, leechers and the TTL are the only fields that change on conflict.
func (s *Store) UpsertRelease(ctx context.Context, r *CachedRelease) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO release_cache (`+cachedReleaseColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(guid) DO UPDATE SET
			seeders = excluded.seeders,
			leechers = excluded.leechers,
			expires_at = excluded.expires_at`,
		r.GUID, r.Title, r.NormalizedTitle, r.SearchTerms, r.DownloadURL, r.InfoURL,
		r.IndexerID, r.IndexerName, r.Protocol, r.InfoHash, r.Size, r.Quality, r.Source,
		r.Codec, r.Language, r.Seeders, r.Leechers, toNullTime(r.PublishDate),
		r.CachedAt, r.ExpiresAt, boolToInt(r.FromRSS), r.SportPrefix, r.Year, r.Round,
		boolToInt(r.IsPack))
	if err != nil {
		return fmt.Errorf("failed to upsert release %s: %w", r.GUID, err)
	}
	return nil
}

// GetRelease fetches one unexpired release by GUID.
func (s *Store) GetRelease(ctx context.Context, guid string, now time.Time) (*CachedRelease, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+cachedReleaseColumns+` FROM release_cache
		WHERE guid = ? AND expires_at >= ?`, guid, now)
	r, err := scanCachedRelease(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return r, err
}

// ListReleaseCandidates loads unexpired rows bounded by the indexed columns.
// Year 0 or an empty sport prefix widens the respective bound; fine-grained
// matching happens in memory in the releasecache package.
func (s *Store) ListReleaseCandidates(ctx context.Context, sportPrefix string, year int, now time.Time) ([]*CachedRelease, error) {
	query := `SELECT ` + cachedReleaseColumns + ` FROM release_cache WHERE expires_at >= ?`
	args := []any{now}
	if sportPrefix != "" {
		query += ` AND (sport_prefix = ? OR sport_prefix = '')`
		args = append(args, sportPrefix)
	}
	if year != 0 {
		query += ` AND (year = ? OR year = 0)`
		args = append(args, year)
	}
	query += ` ORDER BY publish_date DESC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var releases []*CachedRelease
	for rows.Next() {
		r, err := scanCachedRelease(rows)
		if err != nil {
			return nil, err
		}
		releases = append(releases, r)
	}
	return releases, rows.Err()
}

// DeleteExpiredReleases removes rows past their TTL and returns the count.
func (s *Store) DeleteExpiredReleases(ctx context.Context, now time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM release_cache WHERE expires_at < ?`, now)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
