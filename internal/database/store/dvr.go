package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// DVR recording statuses.
const (
	RecordingStatusScheduled = "Scheduled"
	RecordingStatusRecording = "Recording"
	RecordingStatusCompleted = "Completed"
	RecordingStatusImported  = "Imported"
	RecordingStatusFailed    = "Failed"
	RecordingStatusCancelled = "Cancelled"
)

// Channel is one IPTV channel row.
type Channel struct {
	ID           int64
	Name         string
	TvgID        string
	StreamURL    string
	QualityScore int
	Enabled      bool
}

// EpgProgram is one EPG listing row.
type EpgProgram struct {
	ID           int64
	ChannelTvgID string
	Title        string
	Description  string
	Category     string
	IsSports     bool
	StartTime    time.Time
	EndTime      time.Time
}

// DvrRecording is one dvr_recordings row.
type DvrRecording struct {
	ID             string
	EventID        *int64
	PartName       string
	ChannelID      int64
	ScheduledStart time.Time
	ScheduledEnd   time.Time
	ActualStart    *time.Time
	ActualEnd      *time.Time
	OutputPath     string
	FileSize       int64
	Quality        string
	Score          int
	Status         string
	ErrorMessage   string
	EpgTitle       string
}

// CreateChannel inserts a channel row.
func (s *Store) CreateChannel(ctx context.Context, c Channel) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO channels (name, tvg_id, stream_url, quality_score, enabled)
		VALUES (?, ?, ?, ?, ?)`,
		c.Name, c.TvgID, c.StreamURL, c.QualityScore, boolToInt(c.Enabled))
	if err != nil {
		return 0, fmt.Errorf("failed to create channel: %w", err)
	}
	return res.LastInsertId()
}

// GetChannel fetches one channel.
func (s *Store) GetChannel(ctx context.Context, id int64) (*Channel, error) {
	var c Channel
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, tvg_id, stream_url, quality_score, enabled
		FROM channels WHERE id = ?`, id).
		Scan(&c.ID, &c.Name, &c.TvgID, &c.StreamURL, &c.QualityScore, &c.Enabled)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// GetChannelByTvgID resolves a channel from its TVG identifier.
func (s *Store) GetChannelByTvgID(ctx context.Context, tvgID string) (*Channel, error) {
	var c Channel
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, tvg_id, stream_url, quality_score, enabled
		FROM channels WHERE tvg_id = ? AND enabled = 1`, tvgID).
		Scan(&c.ID, &c.Name, &c.TvgID, &c.StreamURL, &c.QualityScore, &c.Enabled)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// SetLeagueChannel maps a league to a channel; preferred marks the user's
// declared fallback, autoScore the auto-mapper's ranking.
func (s *Store) SetLeagueChannel(ctx context.Context, league string, channelID int64, preferred bool, autoScore int) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO league_channels (league, channel_id, preferred, auto_score)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(league, channel_id) DO UPDATE SET
			preferred = excluded.preferred, auto_score = excluded.auto_score`,
		league, channelID, boolToInt(preferred), autoScore)
	return err
}

// BestChannelForLeague picks the auto-mapped channel with the highest quality
// score, falling back to the league's declared preferred channel.
func (s *Store) BestChannelForLeague(ctx context.Context, league string) (*Channel, error) {
	var c Channel
	err := s.db.QueryRowContext(ctx, `
		SELECT c.id, c.name, c.tvg_id, c.stream_url, c.quality_score, c.enabled
		FROM league_channels lc
		JOIN channels c ON c.id = lc.channel_id
		WHERE lc.league = ? AND c.enabled = 1
		ORDER BY lc.auto_score DESC, lc.preferred DESC, c.quality_score DESC
		LIMIT 1`, league).
		Scan(&c.ID, &c.Name, &c.TvgID, &c.StreamURL, &c.QualityScore, &c.Enabled)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// CreateEpgProgram inserts an EPG listing.
func (s *Store) CreateEpgProgram(ctx context.Context, p EpgProgram) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO epg_programs (channel_tvg_id, title, description, category, is_sports, start_time, end_time)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		p.ChannelTvgID, p.Title, p.Description, p.Category, boolToInt(p.IsSports), p.StartTime, p.EndTime)
	if err != nil {
		return 0, fmt.Errorf("failed to create EPG program: %w", err)
	}
	return res.LastInsertId()
}

// ListSportsProgramsBetween returns the sports-programming EPG slice inside a
// window, restricted to channels carrying TVG identifiers.
func (s *Store) ListSportsProgramsBetween(ctx context.Context, from, to time.Time) ([]*EpgProgram, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT p.id, p.channel_tvg_id, p.title, p.description, p.category, p.is_sports, p.start_time, p.end_time
		FROM epg_programs p
		JOIN channels c ON c.tvg_id = p.channel_tvg_id AND c.enabled = 1
		WHERE p.start_time >= ? AND p.start_time < ? AND c.tvg_id != ''
		ORDER BY p.start_time, p.id`, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var programs []*EpgProgram
	for rows.Next() {
		var p EpgProgram
		if err := rows.Scan(&p.ID, &p.ChannelTvgID, &p.Title, &p.Description, &p.Category,
			&p.IsSports, &p.StartTime, &p.EndTime); err != nil {
			return nil, err
		}
		programs = append(programs, &p)
	}
	return programs, rows.Err()
}

// CreateRecording inserts a recording row.
func (s *Store) CreateRecording(ctx context.Context, r DvrRecording) error {
	var eventID sql.NullInt64
	if r.EventID != nil {
		eventID = sql.NullInt64{Int64: *r.EventID, Valid: true}
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO dvr_recordings (id, event_id, part_name, channel_id, scheduled_start,
			scheduled_end, output_path, status, epg_title)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, eventID, r.PartName, r.ChannelID, r.ScheduledStart, r.ScheduledEnd,
		r.OutputPath, r.Status, r.EpgTitle)
	if err != nil {
		return fmt.Errorf("failed to create recording: %w", err)
	}
	return nil
}

const recordingColumns = `id, event_id, part_name, channel_id, scheduled_start, scheduled_end,
	actual_start, actual_end, output_path, file_size, quality, score, status, error_message, epg_title`

func scanRecording(row interface{ Scan(...any) error }) (*DvrRecording, error) {
	var r DvrRecording
	var eventID sql.NullInt64
	var actualStart, actualEnd sql.NullTime
	err := row.Scan(&r.ID, &eventID, &r.PartName, &r.ChannelID, &r.ScheduledStart,
		&r.ScheduledEnd, &actualStart, &actualEnd, &r.OutputPath, &r.FileSize,
		&r.Quality, &r.Score, &r.Status, &r.ErrorMessage, &r.EpgTitle)
	if err != nil {
		return nil, err
	}
	if eventID.Valid {
		r.EventID = &eventID.Int64
	}
	r.ActualStart = fromNullTime(actualStart)
	r.ActualEnd = fromNullTime(actualEnd)
	return &r, nil
}

// GetRecording fetches one recording.
func (s *Store) GetRecording(ctx context.Context, id string) (*DvrRecording, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+recordingColumns+` FROM dvr_recordings WHERE id = ?`, id)
	r, err := scanRecording(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return r, err
}

// ListRecordingsByStatus returns recordings in the given statuses.
func (s *Store) ListRecordingsByStatus(ctx context.Context, statuses ...string) ([]*DvrRecording, error) {
	if len(statuses) == 0 {
		return nil, nil
	}
	query := `SELECT ` + recordingColumns + ` FROM dvr_recordings WHERE status IN (`
	args := make([]any, 0, len(statuses))
	for i, st := range statuses {
		if i > 0 {
			query += ","
		}
		query += "?"
		args = append(args, st)
	}
	query += `) ORDER BY scheduled_start, id`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var recordings []*DvrRecording
	for rows.Next() {
		r, err := scanRecording(rows)
		if err != nil {
			return nil, err
		}
		recordings = append(recordings, r)
	}
	return recordings, rows.Err()
}

// HasActiveRecording reports whether the event and part already have a
// scheduled or in-progress recording; at most one such row may exist per
// (event, part).
func (s *Store) HasActiveRecording(ctx context.Context, eventID int64, partName string) (bool, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM dvr_recordings
		WHERE event_id = ? AND part_name = ? AND status IN (?, ?)`,
		eventID, partName, RecordingStatusScheduled, RecordingStatusRecording).Scan(&count)
	return count > 0, err
}

// UpdateRecordingStatus transitions a recording, guarded by its current
// status so concurrent workers observe at most one transition.
func (s *Store) UpdateRecordingStatus(ctx context.Context, id, fromStatus, toStatus, errorMessage string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE dvr_recordings SET status = ?, error_message = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ? AND status = ?`, toStatus, errorMessage, id, fromStatus)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// FinishRecording records the produced artifact on completion.
func (s *Store) FinishRecording(ctx context.Context, id, outputPath string, fileSize int64, actualStart, actualEnd time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE dvr_recordings SET output_path = ?, file_size = ?, actual_start = ?, actual_end = ?,
			status = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ?`, outputPath, fileSize, actualStart, actualEnd, RecordingStatusCompleted, id)
	return err
}

// SetRecordingScore records the probe-derived quality and score.
func (s *Store) SetRecordingScore(ctx context.Context, id, qualityLabel string, score int) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE dvr_recordings SET quality = ?, score = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`,
		qualityLabel, score, id)
	return err
}
