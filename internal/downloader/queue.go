package downloader

import (
	"context"
	"errors"

	"github.com/ohathar/sportarr/internal/database/store"
	"github.com/ohathar/sportarr/internal/downloader/types"
)

// QueueEntry is one queue row joined with the client's live reading for the
// status surface.
type QueueEntry struct {
	ID            int64   `json:"id"`
	EventID       int64   `json:"eventId"`
	PartName      string  `json:"partName,omitempty"`
	ClientID      int64   `json:"clientId"`
	ClientName    string  `json:"clientName"`
	Title         string  `json:"title"`
	Protocol      string  `json:"protocol"`
	IndexerName   string  `json:"indexer,omitempty"`
	Status        string  `json:"status"`
	StatusMessage string  `json:"statusMessage,omitempty"`
	Progress      float64 `json:"progress"`
	Size          int64   `json:"size"`
	Downloaded    int64   `json:"downloaded"`
	TimeRemaining int64   `json:"timeRemaining"`
	ClientStatus  string  `json:"clientStatus,omitempty"` // live normalized reading
	SavePath      string  `json:"savePath,omitempty"`
}

// ListQueue returns every active queue item with its client's current state
// merged in. A client that cannot be reached, or no longer knows the
// download, leaves the stored observation as-is; the row is still listed.
func (s *Service) ListQueue(ctx context.Context) ([]QueueEntry, error) {
	items, err := s.store.ListActiveQueueItems(ctx)
	if err != nil {
		return nil, err
	}

	clientNames := make(map[int64]string)
	if rows, err := s.store.ListEnabledDownloadClients(ctx); err == nil {
		for _, row := range rows {
			clientNames[row.ID] = row.Name
		}
	}

	entries := make([]QueueEntry, 0, len(items))
	for _, item := range items {
		entry := QueueEntry{
			ID:            item.ID,
			EventID:       item.EventID,
			PartName:      item.PartName,
			ClientID:      item.ClientID,
			ClientName:    clientNames[item.ClientID],
			Title:         item.Title,
			Protocol:      item.Protocol,
			IndexerName:   item.IndexerName,
			Status:        item.Status,
			StatusMessage: item.StatusMessage,
			Progress:      item.Progress,
			Size:          item.Size,
			Downloaded:    item.Downloaded,
			TimeRemaining: item.TimeRemaining,
		}

		if reading, err := s.liveStatus(ctx, item); err == nil && reading != nil {
			entry.ClientStatus = string(reading.Status)
			entry.SavePath = reading.SavePath
			if reading.Size > 0 {
				entry.Size = reading.Size
			}
			if reading.Downloaded > 0 && reading.Downloaded <= entry.Size {
				entry.Downloaded = reading.Downloaded
			}
			if reading.Progress > 0 {
				entry.Progress = reading.Progress
			}
			entry.TimeRemaining = reading.TimeRemaining
		}

		entries = append(entries, entry)
	}
	return entries, nil
}

func (s *Service) liveStatus(ctx context.Context, item *store.QueueItem) (*types.DownloadStatus, error) {
	client, err := s.GetClient(ctx, item.ClientID)
	if err != nil {
		return nil, err
	}

	reading, err := client.Status(ctx, item.DownloadID)
	if errors.Is(err, types.ErrNotFound) {
		// Debrid proxies swap identifiers; the title lookup keeps the listing
		// usable until the monitor follows the change.
		return client.FindByTitle(ctx, item.Title, item.Category)
	}
	return reading, err
}
