package downloader

import (
	"context"
	"testing"

	"github.com/ohathar/sportarr/internal/database/store"
	"github.com/ohathar/sportarr/internal/downloader/types"
)

func TestListQueue_JoinsLiveClientState(t *testing.T) {
	env := newMonitorEnv(t, MonitorConfig{})
	ctx := context.Background()

	env.client.statuses["h1"] = &types.DownloadStatus{
		ID: "h1", Status: types.StatusDownloading, Progress: 55,
		Downloaded: 550, Size: 1000, TimeRemaining: 90, SavePath: "/downloads",
	}

	entries, err := env.monitor.clients.ListQueue(ctx)
	if err != nil {
		t.Fatalf("ListQueue: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("entries = %d, want 1", len(entries))
	}

	e := entries[0]
	if e.ClientName != "tx" {
		t.Errorf("clientName = %q, want tx", e.ClientName)
	}
	if e.ClientStatus != string(types.StatusDownloading) {
		t.Errorf("clientStatus = %q, want live downloading", e.ClientStatus)
	}
	if e.Progress != 55 || e.Downloaded != 550 || e.Size != 1000 {
		t.Errorf("live fields not merged: progress=%v downloaded=%d size=%d", e.Progress, e.Downloaded, e.Size)
	}
	if e.SavePath != "/downloads" {
		t.Errorf("savePath = %q", e.SavePath)
	}
}

func TestListQueue_UnreachableDownloadKeepsStoredObservation(t *testing.T) {
	env := newMonitorEnv(t, MonitorConfig{})
	ctx := context.Background()

	// Seed a stored observation, then make the client forget the download.
	if err := env.tdb.Store.UpdateQueueItem(ctx, store.UpdateQueueObservation{
		ID: env.itemID, Size: 1000, Downloaded: 400, Progress: 40,
		TimeRemaining: -1, Status: store.QueueStatusDownloading,
	}); err != nil {
		t.Fatalf("UpdateQueueItem: %v", err)
	}

	entries, err := env.monitor.clients.ListQueue(ctx)
	if err != nil {
		t.Fatalf("ListQueue: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("entries = %d, want 1 (missing downloads still list)", len(entries))
	}

	e := entries[0]
	if e.ClientStatus != "" {
		t.Errorf("clientStatus = %q, want empty when the client has no reading", e.ClientStatus)
	}
	if e.Progress != 40 || e.Downloaded != 400 {
		t.Errorf("stored observation should survive: progress=%v downloaded=%d", e.Progress, e.Downloaded)
	}
}
