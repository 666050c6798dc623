package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// ErrNotFound is returned when a row does not exist.
var ErrNotFound = errors.New("not found")

// Event lifecycle statuses.
const (
	EventStatusMonitored   = "monitored"
	EventStatusSearching   = "searching"
	EventStatusDownloading = "downloading"
	EventStatusImported    = "imported"
	EventStatusCancelled   = "cancelled"
)

// Event is a monitored sporting event row.
type Event struct {
	ID               int64
	Title            string
	Sport            string
	League           string
	HomeTeam         string
	AwayTeam         string
	EventDate        *time.Time
	BroadcastTime    *time.Time
	ExternalID       string
	Monitored        bool
	QualityProfileID *int64
	Status           string
	HasFile          bool
	FilePath         string
	LastSearchAt     *time.Time
}

// EventPart is one independently monitored segment of an event.
type EventPart struct {
	ID         int64
	EventID    int64
	Name       string
	PartNumber int
	Monitored  bool
	HasFile    bool
	FilePath   string
}

const eventColumns = `id, title, sport, league, home_team, away_team, event_date, broadcast_time,
	external_id, monitored, quality_profile_id, status, has_file, file_path, last_search_at`

func scanEvent(row interface{ Scan(...any) error }) (*Event, error) {
	var e Event
	var eventDate, broadcastTime, lastSearch sql.NullTime
	var profileID sql.NullInt64
	err := row.Scan(&e.ID, &e.Title, &e.Sport, &e.League, &e.HomeTeam, &e.AwayTeam,
		&eventDate, &broadcastTime, &e.ExternalID, &e.Monitored, &profileID,
		&e.Status, &e.HasFile, &e.FilePath, &lastSearch)
	if err != nil {
		return nil, err
	}
	e.EventDate = fromNullTime(eventDate)
	e.BroadcastTime = fromNullTime(broadcastTime)
	e.LastSearchAt = fromNullTime(lastSearch)
	if profileID.Valid {
		e.QualityProfileID = &profileID.Int64
	}
	return &e, nil
}

// CreateEventParams holds the fields for a new event.
type CreateEventParams struct {
	Title            string
	Sport            string
	League           string
	HomeTeam         string
	AwayTeam         string
	EventDate        *time.Time
	BroadcastTime    *time.Time
	ExternalID       string
	Monitored        bool
	QualityProfileID *int64
}

// CreateEvent inserts an event and returns its id.
func (s *Store) CreateEvent(ctx context.Context, p CreateEventParams) (int64, error) {
	var profileID sql.NullInt64
	if p.QualityProfileID != nil {
		profileID = sql.NullInt64{Int64: *p.QualityProfileID, Valid: true}
	}
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO events (title, sport, league, home_team, away_team, event_date,
			broadcast_time, external_id, monitored, quality_profile_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.Title, p.Sport, p.League, p.HomeTeam, p.AwayTeam,
		toNullTime(p.EventDate), toNullTime(p.BroadcastTime), p.ExternalID,
		boolToInt(p.Monitored), profileID)
	if err != nil {
		return 0, fmt.Errorf("failed to create event: %w", err)
	}
	return res.LastInsertId()
}

// GetEvent fetches one event by id.
func (s *Store) GetEvent(ctx context.Context, id int64) (*Event, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+eventColumns+` FROM events WHERE id = ?`, id)
	e, err := scanEvent(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return e, err
}

// ListMonitoredEvents returns monitored events in id order.
func (s *Store) ListMonitoredEvents(ctx context.Context) ([]*Event, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+eventColumns+` FROM events WHERE monitored = 1 ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []*Event
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

// ListUpcomingMonitoredEvents returns monitored events whose date falls
// inside [now, now+window), ordered by event date.
func (s *Store) ListUpcomingMonitoredEvents(ctx context.Context, now time.Time, window time.Duration) ([]*Event, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+eventColumns+` FROM events
		WHERE monitored = 1 AND event_date IS NOT NULL AND event_date >= ? AND event_date < ?
		ORDER BY event_date`, now, now.Add(window))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []*Event
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

// SetEventStatus updates the lifecycle status.
func (s *Store) SetEventStatus(ctx context.Context, id int64, status string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE events SET status = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`, status, id)
	return err
}

// SetEventLastSearch stamps the last search attempt.
func (s *Store) SetEventLastSearch(ctx context.Context, id int64, at time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE events SET last_search_at = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`, at, id)
	return err
}

// SetEventFile marks the event as having its file.
func (s *Store) SetEventFile(ctx context.Context, id int64, path string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE events SET has_file = 1, file_path = ?, status = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ?`, path, EventStatusImported, id)
	return err
}

// CreateEventPart inserts a part row.
func (s *Store) CreateEventPart(ctx context.Context, eventID int64, name string, number int) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO event_parts (event_id, name, part_number) VALUES (?, ?, ?)`,
		eventID, name, number)
	if err != nil {
		return 0, fmt.Errorf("failed to create event part: %w", err)
	}
	return res.LastInsertId()
}

// ListEventParts returns the ordered parts of an event.
func (s *Store) ListEventParts(ctx context.Context, eventID int64) ([]*EventPart, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, event_id, name, part_number, monitored, has_file, file_path
		FROM event_parts WHERE event_id = ? ORDER BY part_number, id`, eventID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var parts []*EventPart
	for rows.Next() {
		var p EventPart
		if err := rows.Scan(&p.ID, &p.EventID, &p.Name, &p.PartNumber, &p.Monitored, &p.HasFile, &p.FilePath); err != nil {
			return nil, err
		}
		parts = append(parts, &p)
	}
	return parts, rows.Err()
}

// SetEventPartFile marks a part as acquired.
func (s *Store) SetEventPartFile(ctx context.Context, eventID int64, partName, path string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE event_parts SET has_file = 1, file_path = ? WHERE event_id = ? AND name = ?`,
		path, eventID, partName)
	return err
}
