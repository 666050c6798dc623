// Package dvr schedules recordings for monitored events, matches events to
// EPG programs, dispatches the recorder and imports finished captures.
package dvr

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/ohathar/sportarr/internal/database/store"
	"github.com/ohathar/sportarr/internal/importer"
	"github.com/ohathar/sportarr/internal/mediainfo"
	"github.com/ohathar/sportarr/internal/metrics"
	"github.com/ohathar/sportarr/internal/quality"
)

// Config holds scheduler settings.
type Config struct {
	Window       time.Duration // scheduling look-ahead (default 14 days)
	PrePadding   time.Duration // recording lead (default 5m)
	PostPadding  time.Duration // recording tail (default 30m)
	RecordingDir string
}

// defaultEventLength bounds a recording when only the event start is known.
const defaultEventLength = 3 * time.Hour

// staleEventAge cancels recordings whose event passed this long ago.
const staleEventAge = 6 * time.Hour

// Scheduler is the DVR control loop.
type Scheduler struct {
	store    *store.Store
	importer *importer.Importer
	prober   mediainfo.Prober
	recorder Recorder
	cfg      Config
	logger   zerolog.Logger

	rootCtx context.Context
	stop    context.CancelFunc
	wg      sync.WaitGroup

	mu     sync.Mutex
	active map[string]bool // recording id -> capture in flight
}

// NewScheduler creates a DVR scheduler.
func NewScheduler(st *store.Store, imp *importer.Importer, prober mediainfo.Prober, recorder Recorder, cfg Config, logger zerolog.Logger) *Scheduler {
	if cfg.Window <= 0 {
		cfg.Window = 14 * 24 * time.Hour
	}
	if cfg.PrePadding <= 0 {
		cfg.PrePadding = 5 * time.Minute
	}
	if cfg.PostPadding <= 0 {
		cfg.PostPadding = 30 * time.Minute
	}

	rootCtx, stop := context.WithCancel(context.Background())
	return &Scheduler{
		store:    st,
		importer: imp,
		prober:   prober,
		recorder: recorder,
		cfg:      cfg,
		logger:   logger.With().Str("component", "dvr-scheduler").Logger(),
		rootCtx:  rootCtx,
		stop:     stop,
		active:   make(map[string]bool),
	}
}

// Stop cancels in-flight captures and waits for them to unwind.
func (s *Scheduler) Stop() {
	s.stop()
	s.wg.Wait()
}

// RunOnce executes one scheduling pass: cancel stale rows, schedule from
// league→channel mappings, fill gaps from the EPG, then dispatch due
// recordings.
func (s *Scheduler) RunOnce(ctx context.Context) error {
	now := time.Now().UTC()

	if err := s.cancelStale(ctx, now); err != nil {
		s.logger.Error().Err(err).Msg("Failed to cancel stale recordings")
	}

	events, err := s.store.ListUpcomingMonitoredEvents(ctx, now, s.cfg.Window)
	if err != nil {
		return fmt.Errorf("failed to list upcoming events: %w", err)
	}

	var unscheduled []*store.Event
	for _, event := range events {
		if err := ctx.Err(); err != nil {
			return err
		}
		scheduled, err := s.scheduleFromLeagueChannel(ctx, event)
		if err != nil {
			s.logger.Error().Err(err).Int64("eventId", event.ID).Msg("League-channel scheduling failed")
			continue
		}
		if !scheduled {
			unscheduled = append(unscheduled, event)
		}
	}

	if len(unscheduled) > 0 {
		if err := s.scheduleFromEPG(ctx, unscheduled, now); err != nil {
			s.logger.Error().Err(err).Msg("EPG scheduling failed")
		}
	}

	return s.dispatchDue(ctx, now)
}

// cancelStale cancels scheduled recordings whose event has passed, lost its
// monitored flag, or been deleted.
func (s *Scheduler) cancelStale(ctx context.Context, now time.Time) error {
	recordings, err := s.store.ListRecordingsByStatus(ctx, store.RecordingStatusScheduled)
	if err != nil {
		return err
	}

	for _, rec := range recordings {
		reason := ""
		if rec.EventID == nil {
			// One-off capture; runs regardless of event state.
			continue
		}

		event, err := s.store.GetEvent(ctx, *rec.EventID)
		switch {
		case errors.Is(err, store.ErrNotFound):
			reason = "event deleted"
		case err != nil:
			return err
		case !event.Monitored:
			reason = "event unmonitored"
		case event.EventDate != nil && now.Sub(*event.EventDate) >= staleEventAge:
			reason = "event passed"
		}

		if reason == "" {
			continue
		}
		if _, err := s.store.UpdateRecordingStatus(ctx, rec.ID, store.RecordingStatusScheduled, store.RecordingStatusCancelled, reason); err != nil {
			return err
		}
		s.logger.Info().Str("recordingId", rec.ID).Str("reason", reason).Msg("Cancelled recording")
	}
	return nil
}

// scheduleFromLeagueChannel creates a recording from the event's league
// mapping. Returns true when the event already has or now has a recording,
// and for an event without a date, which is left unscheduled.
func (s *Scheduler) scheduleFromLeagueChannel(ctx context.Context, event *store.Event) (bool, error) {
	if event.EventDate == nil {
		return true, nil
	}

	has, err := s.store.HasActiveRecording(ctx, event.ID, "")
	if err != nil || has {
		return has, err
	}

	if event.League == "" {
		return false, nil
	}
	channel, err := s.store.BestChannelForLeague(ctx, event.League)
	if errors.Is(err, store.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	start := event.EventDate.Add(-s.cfg.PrePadding)
	end := event.EventDate.Add(defaultEventLength).Add(s.cfg.PostPadding)
	return true, s.createRecording(ctx, event, channel, start, end, "")
}

// scheduleFromEPG matches still-unscheduled events against the sports EPG
// slice and schedules with padded program times.
func (s *Scheduler) scheduleFromEPG(ctx context.Context, events []*store.Event, now time.Time) error {
	programs, err := s.store.ListSportsProgramsBetween(ctx, now.Add(-time.Hour), now.Add(s.cfg.Window))
	if err != nil {
		return err
	}
	if len(programs) == 0 {
		return nil
	}

	for _, match := range MatchPrograms(events, programs) {
		channel, err := s.store.GetChannelByTvgID(ctx, match.Program.ChannelTvgID)
		if errors.Is(err, store.ErrNotFound) {
			continue
		}
		if err != nil {
			return err
		}

		start := match.Program.StartTime.Add(-s.cfg.PrePadding)
		end := match.Program.EndTime.Add(s.cfg.PostPadding)
		if err := s.createRecording(ctx, match.Event, channel, start, end, match.Program.Title); err != nil {
			s.logger.Error().Err(err).Int64("eventId", match.Event.ID).Msg("EPG recording creation failed")
			continue
		}
		s.logger.Info().
			Int64("eventId", match.Event.ID).
			Str("program", match.Program.Title).
			Int("score", match.Score).
			Msg("Scheduled recording from EPG match")
	}
	return nil
}

func (s *Scheduler) createRecording(ctx context.Context, event *store.Event, channel *store.Channel, start, end time.Time, epgTitle string) error {
	id := uuid.NewString()
	output := filepath.Join(s.cfg.RecordingDir, fmt.Sprintf("%s-%s.ts", importer.Sanitize(event.Title), id[:8]))

	return s.store.CreateRecording(ctx, store.DvrRecording{
		ID:             id,
		EventID:        &event.ID,
		ChannelID:      channel.ID,
		ScheduledStart: start,
		ScheduledEnd:   end,
		OutputPath:     output,
		Status:         store.RecordingStatusScheduled,
		EpgTitle:       epgTitle,
	})
}

// dispatchDue moves due recordings to Recording and spawns one capture
// goroutine each. The guarded status transition means a recording is
// dispatched exactly once even across overlapping passes.
func (s *Scheduler) dispatchDue(ctx context.Context, now time.Time) error {
	recordings, err := s.store.ListRecordingsByStatus(ctx, store.RecordingStatusScheduled)
	if err != nil {
		return err
	}

	for _, rec := range recordings {
		if rec.ScheduledStart.After(now) {
			continue
		}
		if rec.ScheduledEnd.Before(now) {
			if _, err := s.store.UpdateRecordingStatus(ctx, rec.ID, store.RecordingStatusScheduled, store.RecordingStatusFailed, "window passed before dispatch"); err != nil {
				return err
			}
			continue
		}

		transitioned, err := s.store.UpdateRecordingStatus(ctx, rec.ID, store.RecordingStatusScheduled, store.RecordingStatusRecording, "")
		if err != nil {
			return err
		}
		if !transitioned {
			continue
		}

		channel, err := s.store.GetChannel(ctx, rec.ChannelID)
		if err != nil {
			if _, err := s.store.UpdateRecordingStatus(ctx, rec.ID, store.RecordingStatusRecording, store.RecordingStatusFailed, "channel missing"); err != nil {
				return err
			}
			continue
		}

		s.startCapture(rec, channel)
	}
	return nil
}

func (s *Scheduler) startCapture(rec *store.DvrRecording, channel *store.Channel) {
	s.mu.Lock()
	if s.active[rec.ID] {
		s.mu.Unlock()
		return
	}
	s.active[rec.ID] = true
	s.mu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer func() {
			s.mu.Lock()
			delete(s.active, rec.ID)
			s.mu.Unlock()
		}()

		s.capture(s.rootCtx, rec, channel)
	}()
}

// capture runs the recorder for one recording and handles completion.
func (s *Scheduler) capture(ctx context.Context, rec *store.DvrRecording, channel *store.Channel) {
	if err := os.MkdirAll(filepath.Dir(rec.OutputPath), 0o750); err != nil {
		s.failRecording(ctx, rec.ID, fmt.Sprintf("failed to create recording dir: %v", err))
		return
	}

	started := time.Now().UTC()
	s.logger.Info().Str("recordingId", rec.ID).Str("channel", channel.Name).Msg("Recording started")

	err := s.recorder.Record(ctx, Request{
		StreamURL:  channel.StreamURL,
		StartAt:    rec.ScheduledStart,
		EndAt:      rec.ScheduledEnd,
		OutputPath: rec.OutputPath,
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		s.failRecording(ctx, rec.ID, err.Error())
		return
	}
	if ctx.Err() != nil {
		return
	}

	info, statErr := os.Stat(rec.OutputPath)
	if statErr != nil || info.Size() == 0 {
		s.failRecording(ctx, rec.ID, "recorder produced no file")
		return
	}

	if err := s.store.FinishRecording(ctx, rec.ID, rec.OutputPath, info.Size(), started, time.Now().UTC()); err != nil {
		s.logger.Error().Err(err).Str("recordingId", rec.ID).Msg("Failed to finish recording")
		return
	}

	if err := s.importCompleted(ctx, rec.ID); err != nil {
		s.logger.Error().Err(err).Str("recordingId", rec.ID).Msg("Recording import failed")
		if _, uerr := s.store.UpdateRecordingStatus(ctx, rec.ID, store.RecordingStatusCompleted, store.RecordingStatusFailed, err.Error()); uerr != nil {
			s.logger.Error().Err(uerr).Msg("Failed to mark recording failed")
		}
	}
}

func (s *Scheduler) failRecording(ctx context.Context, id, message string) {
	metrics.Recordings.WithLabelValues(store.RecordingStatusFailed).Inc()
	if _, err := s.store.UpdateRecordingStatus(ctx, id, store.RecordingStatusRecording, store.RecordingStatusFailed, message); err != nil {
		s.logger.Error().Err(err).Str("recordingId", id).Msg("Failed to mark recording failed")
	}
}

// importCompleted probes the capture, builds its synthetic scene title,
// scores it through the shared scorer and imports it with source IPTV.
func (s *Scheduler) importCompleted(ctx context.Context, recordingID string) error {
	rec, err := s.store.GetRecording(ctx, recordingID)
	if err != nil {
		return err
	}
	if rec.EventID == nil {
		// One-off capture: the file stays in the recording dir.
		_, err := s.store.UpdateRecordingStatus(ctx, rec.ID, store.RecordingStatusCompleted, store.RecordingStatusImported, "")
		return err
	}

	event, err := s.store.GetEvent(ctx, *rec.EventID)
	if err != nil {
		return err
	}

	info, err := s.prober.Probe(ctx, rec.OutputPath)
	if err != nil {
		return fmt.Errorf("probe failed: %w", err)
	}

	year := 0
	if event.EventDate != nil {
		year = event.EventDate.Year()
	}
	syntheticTitle := BuildSyntheticTitle(event.Title, year, info)

	breakdown, err := s.scoreCapture(ctx, event, syntheticTitle, rec.FileSize)
	if err != nil {
		return err
	}
	if err := s.store.SetRecordingScore(ctx, rec.ID, breakdown.QualityLabel, breakdown.Total); err != nil {
		return err
	}

	if err := s.importer.ImportRecording(ctx, event.ID, rec.PartName, rec.OutputPath, syntheticTitle); err != nil {
		return err
	}

	if _, err := s.store.UpdateRecordingStatus(ctx, rec.ID, store.RecordingStatusCompleted, store.RecordingStatusImported, ""); err != nil {
		return err
	}

	payload, _ := json.Marshal(map[string]any{
		"recordingId": rec.ID,
		"title":       syntheticTitle,
		"score":       breakdown.Total,
	})
	if err := s.store.InsertHistory(ctx, rec.EventID, store.HistoryRecorded, string(payload)); err != nil {
		s.logger.Warn().Err(err).Msg("Failed to record history")
	}

	metrics.Recordings.WithLabelValues(store.RecordingStatusImported).Inc()
	s.logger.Info().
		Str("recordingId", rec.ID).
		Str("syntheticTitle", syntheticTitle).
		Int("score", breakdown.Total).
		Msg("Recording imported")
	return nil
}

func (s *Scheduler) scoreCapture(ctx context.Context, event *store.Event, title string, size int64) (quality.ScoreBreakdown, error) {
	var profile *quality.Profile
	if event.QualityProfileID != nil {
		row, err := s.store.GetQualityProfile(ctx, *event.QualityProfileID)
		if err != nil && !errors.Is(err, store.ErrNotFound) {
			return quality.ScoreBreakdown{}, err
		}
		if row != nil {
			profile, err = quality.ParseProfile(row.ID, row.Name, row.Cutoff, row.ItemsJSON, row.FormatItems, row.MinFormatScore)
			if err != nil {
				return quality.ScoreBreakdown{}, err
			}
		}
	}

	var formats []*quality.CustomFormat
	rows, err := s.store.ListCustomFormats(ctx)
	if err != nil {
		return quality.ScoreBreakdown{}, err
	}
	for _, row := range rows {
		cf, err := quality.ParseCustomFormat(row.ID, row.Name, row.Specifications)
		if err != nil {
			continue
		}
		formats = append(formats, cf)
	}

	return quality.ScoreRelease(title, size, profile, formats), nil
}
