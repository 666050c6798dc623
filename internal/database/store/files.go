package store

import (
	"context"
	"fmt"
	"time"
)

// Event file sources.
const (
	FileSourceIndexer = "Indexer"
	FileSourceIPTV    = "IPTV"
)

// EventFile is one imported artifact.
type EventFile struct {
	ID           int64
	EventID      int64
	PartName     string
	Path         string
	Size         int64
	Quality      string
	QualityScore int
	FormatScore  int
	Source       string
	Codec        string
	AddedAt      time.Time
	Exists       bool
}

// InsertEventFile records an imported artifact. The unique path constraint
// makes a retried import converge on the same row.
func (s *Store) InsertEventFile(ctx context.Context, f EventFile) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO event_files (event_id, part_name, path, size, quality, quality_score,
			format_score, source, codec)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(path) DO UPDATE SET size = excluded.size`,
		f.EventID, f.PartName, f.Path, f.Size, f.Quality, f.QualityScore,
		f.FormatScore, f.Source, f.Codec)
	if err != nil {
		return 0, fmt.Errorf("failed to insert event file: %w", err)
	}
	return res.LastInsertId()
}

// ListEventFiles returns the files imported for an event.
func (s *Store) ListEventFiles(ctx context.Context, eventID int64) ([]*EventFile, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, event_id, part_name, path, size, quality, quality_score, format_score,
			source, codec, added_at, file_exists
		FROM event_files WHERE event_id = ? ORDER BY id`, eventID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var files []*EventFile
	for rows.Next() {
		var f EventFile
		if err := rows.Scan(&f.ID, &f.EventID, &f.PartName, &f.Path, &f.Size, &f.Quality,
			&f.QualityScore, &f.FormatScore, &f.Source, &f.Codec, &f.AddedAt, &f.Exists); err != nil {
			return nil, err
		}
		files = append(files, &f)
	}
	return files, rows.Err()
}

// RemotePathMapping translates a download client's remote path to a local one.
type RemotePathMapping struct {
	ID         int64
	Host       string
	RemotePath string
	LocalPath  string
}

// CreateRemotePathMapping inserts a mapping row.
func (s *Store) CreateRemotePathMapping(ctx context.Context, m RemotePathMapping) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO remote_path_mappings (host, remote_path, local_path) VALUES (?, ?, ?)`,
		m.Host, m.RemotePath, m.LocalPath)
	if err != nil {
		return 0, fmt.Errorf("failed to create remote path mapping: %w", err)
	}
	return res.LastInsertId()
}

// ListRemotePathMappings returns every mapping in insertion order.
func (s *Store) ListRemotePathMappings(ctx context.Context) ([]*RemotePathMapping, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, host, remote_path, local_path FROM remote_path_mappings ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var mappings []*RemotePathMapping
	for rows.Next() {
		var m RemotePathMapping
		if err := rows.Scan(&m.ID, &m.Host, &m.RemotePath, &m.LocalPath); err != nil {
			return nil, err
		}
		mappings = append(mappings, &m)
	}
	return mappings, rows.Err()
}
