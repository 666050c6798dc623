package downloader

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ohathar/sportarr/internal/database/store"
	"github.com/ohathar/sportarr/internal/downloader/types"
	"github.com/ohathar/sportarr/internal/testutil"
)

// fakeClient scripts client readings for the state machine tests.
type fakeClient struct {
	statuses map[string]*types.DownloadStatus
	byTitle  map[string]*types.DownloadStatus
	removed  []string
}

func (f *fakeClient) Type() types.ClientType    { return types.ClientTypeTransmission }
func (f *fakeClient) Protocol() types.Protocol  { return types.ProtocolTorrent }
func (f *fakeClient) Test(context.Context) error { return nil }

func (f *fakeClient) Add(_ context.Context, url, _ string) (string, error) {
	return "added-" + url, nil
}

func (f *fakeClient) Status(_ context.Context, id string) (*types.DownloadStatus, error) {
	if st, ok := f.statuses[id]; ok {
		return st, nil
	}
	return nil, types.ErrNotFound
}

func (f *fakeClient) FindByTitle(_ context.Context, title, _ string) (*types.DownloadStatus, error) {
	if st, ok := f.byTitle[title]; ok {
		return st, nil
	}
	return nil, types.ErrNotFound
}

func (f *fakeClient) Remove(_ context.Context, id string, _ bool) error {
	f.removed = append(f.removed, id)
	return nil
}

func (f *fakeClient) Pause(context.Context, string) error  { return nil }
func (f *fakeClient) Resume(context.Context, string) error { return nil }

// fakeImporter records or fails import attempts.
type fakeImporter struct {
	calls int
	err   error
}

func (f *fakeImporter) ImportDownload(context.Context, *store.QueueItem, string, string) error {
	f.calls++
	return f.err
}

type monitorEnv struct {
	tdb     *testutil.TestDB
	client  *fakeClient
	imp     *fakeImporter
	monitor *Monitor
	eventID int64
	itemID  int64
}

func newMonitorEnv(t *testing.T, cfg MonitorConfig) *monitorEnv {
	t.Helper()
	tdb := testutil.NewTestDB(t)
	t.Cleanup(tdb.Close)
	ctx := context.Background()

	eventID, err := tdb.Store.CreateEvent(ctx, store.CreateEventParams{Title: "UFC 299", Monitored: true})
	if err != nil {
		t.Fatalf("CreateEvent: %v", err)
	}
	clientID, err := tdb.Store.CreateDownloadClient(ctx, store.DownloadClient{
		Name: "tx", Type: "transmission", Enabled: true,
	})
	if err != nil {
		t.Fatalf("CreateDownloadClient: %v", err)
	}

	fake := &fakeClient{
		statuses: make(map[string]*types.DownloadStatus),
		byTitle:  make(map[string]*types.DownloadStatus),
	}
	svc := NewService(tdb.Store, func(*store.DownloadClient) (types.Client, error) {
		return fake, nil
	}, testutil.NopLogger())

	imp := &fakeImporter{}
	monitor := NewMonitor(tdb.Store, svc, imp, cfg, testutil.NopLogger())

	itemID, err := tdb.Store.InsertQueueItem(ctx, store.InsertQueueItemParams{
		EventID: eventID, ClientID: clientID, DownloadID: "h1",
		Title: "UFC.299.Main.Card.1080p.WEB-DL.H264-GRP", InfoHash: "abc123",
		Protocol: "torrent", Size: 1000,
	})
	if err != nil {
		t.Fatalf("InsertQueueItem: %v", err)
	}

	return &monitorEnv{tdb: tdb, client: fake, imp: imp, monitor: monitor, eventID: eventID, itemID: itemID}
}

func (e *monitorEnv) item(t *testing.T) *store.QueueItem {
	t.Helper()
	item, err := e.tdb.Store.GetQueueItem(context.Background(), e.itemID)
	if err != nil {
		t.Fatalf("GetQueueItem: %v", err)
	}
	return item
}

func (e *monitorEnv) run(t *testing.T) {
	t.Helper()
	if err := e.monitor.RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
}

func (e *monitorEnv) ageGrab(t *testing.T, age time.Duration) {
	t.Helper()
	_, err := e.tdb.Conn.Exec(`UPDATE download_queue SET grabbed_at = ? WHERE id = ?`,
		time.Now().UTC().Add(-age), e.itemID)
	if err != nil {
		t.Fatalf("ageGrab: %v", err)
	}
}

func TestMonitor_ProgressUpdates(t *testing.T) {
	env := newMonitorEnv(t, MonitorConfig{})
	env.client.statuses["h1"] = &types.DownloadStatus{
		ID: "h1", Status: types.StatusDownloading, Progress: 42, Downloaded: 420, Size: 1000, TimeRemaining: 60,
	}

	env.run(t)

	item := env.item(t)
	if item.Status != store.QueueStatusDownloading {
		t.Errorf("status = %s, want Downloading", item.Status)
	}
	if item.Progress != 42 || item.Downloaded != 420 {
		t.Errorf("progress/downloaded = %v/%v", item.Progress, item.Downloaded)
	}
	if item.Downloaded > item.Size {
		t.Error("invariant violated: downloaded > size")
	}
}

func TestMonitor_StallThenResume(t *testing.T) {
	env := newMonitorEnv(t, MonitorConfig{StallThreshold: 10 * time.Minute})

	// First observation sets the baseline progress.
	env.client.statuses["h1"] = &types.DownloadStatus{
		ID: "h1", Status: types.StatusDownloading, Progress: 42, Downloaded: 420, Size: 1000,
	}
	env.run(t)

	// Item is old and progress has not moved: stalled warning.
	env.ageGrab(t, 11*time.Minute)
	env.run(t)

	item := env.item(t)
	if item.Status != store.QueueStatusWarning {
		t.Fatalf("status = %s, want Warning after stall", item.Status)
	}
	if item.StatusMessage == "" {
		t.Error("stall warning should carry a message")
	}

	// Progress advances: warning clears and the status reverts.
	env.client.statuses["h1"].Progress = 43
	env.run(t)

	item = env.item(t)
	if item.Status != store.QueueStatusDownloading {
		t.Errorf("status = %s, want Downloading after resume", item.Status)
	}
	if item.StatusMessage != "" {
		t.Errorf("stall message should clear, got %q", item.StatusMessage)
	}
}

func TestMonitor_DebridCompletion(t *testing.T) {
	env := newMonitorEnv(t, MonitorConfig{RemoveCompleted: true})
	env.client.statuses["h1"] = &types.DownloadStatus{
		ID: "h1", Status: types.StatusPaused, Progress: 99.95, Downloaded: 1000, Size: 1000, SavePath: "/dl",
	}

	env.run(t)

	item := env.item(t)
	if item.Status != store.QueueStatusImported {
		t.Fatalf("status = %s, want Imported (paused at ~100%% is debrid completion)", item.Status)
	}
	if env.imp.calls != 1 {
		t.Errorf("importer calls = %d, want 1", env.imp.calls)
	}
	if len(env.client.removed) != 1 {
		t.Errorf("completed download should be removed from the client, removed=%v", env.client.removed)
	}

	// A second pass is a no-op: the import already happened.
	env.run(t)
	if env.imp.calls != 1 {
		t.Errorf("import must be idempotent, calls = %d", env.imp.calls)
	}
}

func TestMonitor_ImportFailureMarksFailedAndBlocklists(t *testing.T) {
	env := newMonitorEnv(t, MonitorConfig{RedownloadFailed: true})
	env.imp.err = errors.New("destination unwritable")
	env.client.statuses["h1"] = &types.DownloadStatus{
		ID: "h1", Status: types.StatusCompleted, Progress: 100, Downloaded: 1000, Size: 1000,
	}

	env.run(t)

	item := env.item(t)
	if item.Status != store.QueueStatusFailed {
		t.Fatalf("status = %s, want Failed after import error", item.Status)
	}
	if item.RetryCount != 1 {
		t.Errorf("retryCount = %d, want 1", item.RetryCount)
	}

	blocked, err := env.tdb.Store.IsBlocklisted(context.Background(), env.eventID, "abc123", "", "")
	if err != nil || !blocked {
		t.Errorf("failed download with an infohash must be blocklisted (%v, %v)", blocked, err)
	}

	// progress = 100 with a Failed status satisfies the terminal invariant.
	if item.Progress == 100 && item.Status != store.QueueStatusFailed && item.Status != store.QueueStatusImported {
		t.Error("progress 100 must imply a completion-side status")
	}
}

func TestMonitor_MissingFromClientThreeStrikes(t *testing.T) {
	env := newMonitorEnv(t, MonitorConfig{})
	// No status registered: every poll reads not-found.

	for i := 0; i < 2; i++ {
		env.run(t)
		item := env.item(t)
		if item.MissingCount != i+1 {
			t.Fatalf("missingCount = %d after poll %d, want %d", item.MissingCount, i+1, i+1)
		}
	}

	env.run(t)
	if _, err := env.tdb.Store.GetQueueItem(context.Background(), env.itemID); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("item should be removed on the third missing reading, got err=%v", err)
	}
}

func TestMonitor_MissingResolvedByTitleFollowsIDChange(t *testing.T) {
	env := newMonitorEnv(t, MonitorConfig{})
	env.client.byTitle["UFC.299.Main.Card.1080p.WEB-DL.H264-GRP"] = &types.DownloadStatus{
		ID: "debrid-42", Status: types.StatusDownloading, Progress: 10, Downloaded: 100, Size: 1000,
	}

	env.run(t)

	item := env.item(t)
	if item.DownloadID != "debrid-42" {
		t.Errorf("downloadID = %s, want followed id debrid-42", item.DownloadID)
	}
	if item.MissingCount != 0 {
		t.Errorf("missingCount = %d, want 0 after the download was found", item.MissingCount)
	}
}

func TestMonitor_UnmonitoredEventWarnsAndResumes(t *testing.T) {
	env := newMonitorEnv(t, MonitorConfig{})
	env.client.statuses["h1"] = &types.DownloadStatus{
		ID: "h1", Status: types.StatusDownloading, Progress: 10, Downloaded: 100, Size: 1000,
	}

	if _, err := env.tdb.Conn.Exec(`UPDATE events SET monitored = 0 WHERE id = ?`, env.eventID); err != nil {
		t.Fatalf("unmonitor event: %v", err)
	}
	env.run(t)

	item := env.item(t)
	if item.Status != store.QueueStatusWarning || item.StatusMessage == "" {
		t.Fatalf("unmonitored event should park the item in Warning, got %s %q", item.Status, item.StatusMessage)
	}

	if _, err := env.tdb.Conn.Exec(`UPDATE events SET monitored = 1 WHERE id = ?`, env.eventID); err != nil {
		t.Fatalf("remonitor event: %v", err)
	}
	env.run(t)

	item = env.item(t)
	if item.Status != store.QueueStatusDownloading {
		t.Errorf("status = %s, want prior Downloading restored", item.Status)
	}
	if item.StatusMessage != "" {
		t.Errorf("warning message should clear, got %q", item.StatusMessage)
	}
}

func TestMonitor_FailedRetryBudget(t *testing.T) {
	env := newMonitorEnv(t, MonitorConfig{RedownloadFailed: true})
	env.client.statuses["h1"] = &types.DownloadStatus{
		ID: "h1", Status: types.StatusFailed, ErrorMessage: "tracker error", Size: 1000,
	}

	env.run(t)

	item := env.item(t)
	if item.Status != store.QueueStatusFailed {
		t.Fatalf("status = %s, want Failed", item.Status)
	}
	if item.RetryCount != 1 {
		t.Errorf("retryCount = %d, want 1", item.RetryCount)
	}
	// Under the retry budget the message carries no exhaustion note.
	if item.StatusMessage != "tracker error" {
		t.Errorf("message = %q, want the raw client error", item.StatusMessage)
	}
}
