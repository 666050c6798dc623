package downloader

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/ohathar/sportarr/internal/database/store"
	"github.com/ohathar/sportarr/internal/downloader/types"
	"github.com/ohathar/sportarr/internal/metrics"
)

// MonitorConfig holds the lifecycle monitor knobs.
type MonitorConfig struct {
	StallThreshold   time.Duration
	RemoveCompleted  bool
	RemoveFailed     bool
	RedownloadFailed bool
}

const (
	// maxMissingReadings removes a queue item after this many consecutive
	// not-found polls, matching a user-side delete from the client.
	maxMissingReadings = 3

	// debridCompletionProgress reinterprets a paused torrent at effectively
	// full progress as completed; debrid services pause seeding.
	debridCompletionProgress = 99.9

	// stallEpsilon is the minimum progress movement between polls.
	stallEpsilon = 0.1

	maxRetries = 3

	stalledMessage     = "Download stalled: no progress"
	unmonitoredMessage = "Event is no longer monitored"
)

// Importer moves a completed download into the library.
type Importer interface {
	ImportDownload(ctx context.Context, item *store.QueueItem, savePath, clientHost string) error
}

// Monitor polls download clients at a fixed cadence and advances every
// active queue item through the lifecycle state machine.
type Monitor struct {
	store    *store.Store
	clients  *Service
	importer Importer
	cfg      MonitorConfig
	logger   zerolog.Logger
}

// NewMonitor creates a lifecycle monitor.
func NewMonitor(st *store.Store, clients *Service, importer Importer, cfg MonitorConfig, logger zerolog.Logger) *Monitor {
	if cfg.StallThreshold <= 0 {
		cfg.StallThreshold = 10 * time.Minute
	}
	return &Monitor{
		store:    st,
		clients:  clients,
		importer: importer,
		cfg:      cfg,
		logger:   logger.With().Str("component", "queue-monitor").Logger(),
	}
}

// RunOnce processes every active queue item. Each item commits its own
// observation, so a poison item cannot roll back progress on its siblings;
// errors are recovered per item and the iteration continues.
func (m *Monitor) RunOnce(ctx context.Context) error {
	items, err := m.store.ListActiveQueueItems(ctx)
	if err != nil {
		return fmt.Errorf("failed to list queue: %w", err)
	}
	metrics.QueueDepth.Set(float64(len(items)))

	for _, item := range items {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := m.processItem(ctx, item); err != nil {
			m.logger.Error().Err(err).Int64("queueId", item.ID).Str("title", item.Title).Msg("Queue item processing failed")
		}
	}
	return nil
}

func (m *Monitor) processItem(ctx context.Context, item *store.QueueItem) error {
	// Failed items stay in the queue only as markers for the planner's retry
	// pass; there is nothing to poll anymore.
	if item.Status == store.QueueStatusFailed {
		return nil
	}

	client, err := m.clients.GetClient(ctx, item.ClientID)
	if err != nil {
		return err
	}

	status, err := client.Status(ctx, item.DownloadID)
	if errors.Is(err, types.ErrNotFound) {
		status, err = m.resolveMissing(ctx, client, item)
		if err != nil || status == nil {
			return err
		}
	} else if err != nil {
		return fmt.Errorf("client status failed: %w", err)
	}

	if item.MissingCount > 0 {
		item.MissingCount = 0
	}

	return m.advance(ctx, item, status)
}

// resolveMissing handles a not-found reading: first follow a possible debrid
// id change by title, then count strikes toward removal.
func (m *Monitor) resolveMissing(ctx context.Context, client types.Client, item *store.QueueItem) (*types.DownloadStatus, error) {
	if found, err := client.FindByTitle(ctx, item.Title, item.Category); err == nil && found != nil {
		if found.ID != "" && found.ID != item.DownloadID {
			if err := m.store.UpdateQueueDownloadID(ctx, item.ID, found.ID); err != nil {
				return nil, err
			}
			item.DownloadID = found.ID
			m.logger.Info().Int64("queueId", item.ID).Str("downloadId", found.ID).Msg("Followed download id change")
		}
		return found, nil
	}

	item.MissingCount++
	if item.MissingCount >= maxMissingReadings {
		m.logger.Info().Int64("queueId", item.ID).Str("title", item.Title).Msg("Download missing from client, removing queue item")
		return nil, m.store.DeleteQueueItem(ctx, item.ID)
	}

	return nil, m.store.UpdateQueueItem(ctx, observationFrom(item, item.Status, item.StatusMessage))
}

// advance runs one step of the state machine from a fresh client reading.
func (m *Monitor) advance(ctx context.Context, item *store.QueueItem, reading *types.DownloadStatus) error {
	next := normalizeReading(reading)

	size := reading.Size
	if size <= 0 {
		size = item.Size
	}
	downloaded := reading.Downloaded
	if downloaded > size && size > 0 {
		downloaded = size
	}
	progress := reading.Progress
	if progress < 0 {
		progress = 0
	}
	if progress > 100 {
		progress = 100
	}

	// Event unmonitored mid-download parks the item in Warning; re-monitoring
	// restores the prior normalized status.
	event, err := m.store.GetEvent(ctx, item.EventID)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return err
	}
	if event != nil && !event.Monitored {
		item.PriorStatus = next
		obs := observationFrom(item, store.QueueStatusWarning, unmonitoredMessage)
		obs.Size, obs.Downloaded, obs.Progress, obs.TimeRemaining = size, downloaded, progress, reading.TimeRemaining
		return m.store.UpdateQueueItem(ctx, obs)
	}
	if item.Status == store.QueueStatusWarning && item.StatusMessage == unmonitoredMessage {
		item.StatusMessage = ""
		if item.PriorStatus != "" {
			next = item.PriorStatus
		}
		item.PriorStatus = ""
	}

	message := item.StatusMessage

	// Stall detection: downloading, essentially no movement since the last
	// poll, and old enough to be past its startup phase.
	if next == store.QueueStatusDownloading {
		if progress-item.Progress < stallEpsilon && time.Since(item.GrabbedAt) > m.cfg.StallThreshold {
			next = store.QueueStatusWarning
			message = stalledMessage
		} else if item.Status == store.QueueStatusWarning && item.StatusMessage == stalledMessage {
			// Progress resumed; the warning clears.
			message = ""
		}
	}

	if next == store.QueueStatusCompleted {
		return m.handleCompleted(ctx, item, reading, size, downloaded)
	}
	if next == store.QueueStatusFailed {
		return m.handleFailed(ctx, item, reading.ErrorMessage, size, downloaded, progress)
	}

	obs := observationFrom(item, next, message)
	obs.Size, obs.Downloaded, obs.Progress, obs.TimeRemaining = size, downloaded, progress, reading.TimeRemaining
	return m.store.UpdateQueueItem(ctx, obs)
}

// normalizeReading maps a client reading to a queue status, applying the
// debrid completion rule.
func normalizeReading(reading *types.DownloadStatus) string {
	switch reading.Status {
	case types.StatusQueued:
		return store.QueueStatusQueued
	case types.StatusDownloading:
		return store.QueueStatusDownloading
	case types.StatusPaused:
		if reading.Progress >= debridCompletionProgress {
			return store.QueueStatusCompleted
		}
		return store.QueueStatusPaused
	case types.StatusCompleted:
		return store.QueueStatusCompleted
	case types.StatusFailed:
		return store.QueueStatusFailed
	default:
		return store.QueueStatusWarning
	}
}

// handleCompleted triggers the import exactly once; the imported_at guard in
// the store makes retries after a crash safe.
func (m *Monitor) handleCompleted(ctx context.Context, item *store.QueueItem, reading *types.DownloadStatus, size, downloaded int64) error {
	if item.ImportedAt != nil {
		return nil
	}

	obs := observationFrom(item, store.QueueStatusImporting, "")
	obs.Size, obs.Downloaded, obs.Progress, obs.TimeRemaining = size, size, 100, 0
	if downloaded > 0 && downloaded <= size {
		obs.Downloaded = downloaded
	}
	if err := m.store.UpdateQueueItem(ctx, obs); err != nil {
		return err
	}
	item.Status = store.QueueStatusImporting

	client, err := m.clients.GetClient(ctx, item.ClientID)
	if err != nil {
		return err
	}
	clientRow, err := m.store.GetDownloadClient(ctx, item.ClientID)
	if err != nil {
		return err
	}

	if err := m.importer.ImportDownload(ctx, item, reading.SavePath, clientRow.Host); err != nil {
		m.logger.Error().Err(err).Int64("queueId", item.ID).Msg("Import failed")
		return m.handleFailed(ctx, item, fmt.Sprintf("import failed: %v", err), size, size, 100)
	}

	imported, err := m.store.MarkQueueItemImported(ctx, item.ID, time.Now().UTC())
	if err != nil {
		return err
	}
	if !imported {
		return nil
	}

	m.recordHistory(ctx, item, store.HistoryImported, map[string]any{
		"title":   item.Title,
		"indexer": item.IndexerName,
	})

	if m.cfg.RemoveCompleted {
		// Files have been moved or hardlinked; the client copy can go.
		if err := client.Remove(ctx, item.DownloadID, false); err != nil {
			m.logger.Warn().Err(err).Int64("queueId", item.ID).Msg("Failed to remove completed download from client")
		}
	}

	m.logger.Info().Int64("queueId", item.ID).Str("title", item.Title).Msg("Download imported")
	return nil
}

func (m *Monitor) handleFailed(ctx context.Context, item *store.QueueItem, errorMessage string, size, downloaded int64, progress float64) error {
	item.RetryCount++

	if item.InfoHash != "" {
		if err := m.store.AddBlocklistItem(ctx, store.BlocklistItem{
			EventID:     item.EventID,
			IndexerName: item.IndexerName,
			Title:       item.Title,
			InfoHash:    item.InfoHash,
			Reason:      errorMessage,
		}); err != nil {
			return err
		}
		m.recordHistory(ctx, item, store.HistoryBlocklisted, map[string]any{
			"title":    item.Title,
			"infoHash": item.InfoHash,
			"reason":   errorMessage,
		})
	}

	if m.cfg.RemoveFailed {
		if client, err := m.clients.GetClient(ctx, item.ClientID); err == nil {
			if err := client.Remove(ctx, item.DownloadID, true); err != nil && !errors.Is(err, types.ErrNotFound) {
				m.logger.Warn().Err(err).Int64("queueId", item.ID).Msg("Failed to delete failed download from client")
			}
		}
	}

	message := errorMessage
	if !m.cfg.RedownloadFailed || item.RetryCount >= maxRetries {
		message = fmt.Sprintf("%s (retries exhausted after %d attempts)", errorMessage, item.RetryCount)
	}

	m.recordHistory(ctx, item, store.HistoryFailed, map[string]any{
		"title":  item.Title,
		"reason": errorMessage,
	})

	obs := observationFrom(item, store.QueueStatusFailed, message)
	obs.Size, obs.Downloaded, obs.Progress, obs.TimeRemaining = size, downloaded, progress, -1
	return m.store.UpdateQueueItem(ctx, obs)
}

func (m *Monitor) recordHistory(ctx context.Context, item *store.QueueItem, kind string, data map[string]any) {
	payload, err := json.Marshal(data)
	if err != nil {
		payload = []byte("{}")
	}
	if err := m.store.InsertHistory(ctx, &item.EventID, kind, string(payload)); err != nil {
		m.logger.Warn().Err(err).Msg("Failed to record history")
	}
}

func observationFrom(item *store.QueueItem, status, message string) store.UpdateQueueObservation {
	return store.UpdateQueueObservation{
		ID:            item.ID,
		Size:          item.Size,
		Downloaded:    item.Downloaded,
		Progress:      item.Progress,
		TimeRemaining: item.TimeRemaining,
		Status:        status,
		StatusMessage: message,
		PriorStatus:   item.PriorStatus,
		RetryCount:    item.RetryCount,
		MissingCount:  item.MissingCount,
	}
}
