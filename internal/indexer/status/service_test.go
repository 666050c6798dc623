package status

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ohathar/sportarr/internal/database/store"
	"github.com/ohathar/sportarr/internal/testutil"
)

func createIndexer(t *testing.T, tdb *testutil.TestDB, queryLimit int) *store.Indexer {
	t.Helper()
	_, err := tdb.Store.CreateIndexer(context.Background(), store.CreateIndexerParams{
		Name: "idx1", BaseURL: "http://idx1", Enabled: true, QueryLimit: queryLimit,
	})
	if err != nil {
		t.Fatalf("CreateIndexer: %v", err)
	}
	indexers, err := tdb.Store.ListEnabledIndexers(context.Background())
	if err != nil || len(indexers) == 0 {
		t.Fatalf("ListEnabledIndexers: %v", err)
	}
	return indexers[0]
}

func timesClose(a, b time.Time) bool {
	d := a.Sub(b)
	if d < 0 {
		d = -d
	}
	return d < time.Second
}

func TestBackoffLadder(t *testing.T) {
	tests := []struct {
		failures int
		want     time.Duration
	}{
		{1, 5 * time.Minute},
		{2, 10 * time.Minute},
		{3, 20 * time.Minute},
		{4, 40 * time.Minute},
		{5, time.Hour},
		{10, 24 * time.Hour},
		{15, 24 * time.Hour}, // capped at the last rung
	}
	for _, tt := range tests {
		if got := Backoff(tt.failures); got != tt.want {
			t.Errorf("Backoff(%d) = %v, want %v", tt.failures, got, tt.want)
		}
	}
}

func TestRecordFailure_EscalatesAndDisables(t *testing.T) {
	tdb := testutil.NewTestDB(t)
	defer tdb.Close()
	ctx := context.Background()

	svc := NewService(tdb.Store, testutil.NopLogger())
	ix := createIndexer(t, tdb, 0)

	now := time.Now().UTC()
	for k := 1; k <= 3; k++ {
		if err := svc.RecordFailure(ctx, ix.ID, errors.New("boom"), now); err != nil {
			t.Fatalf("RecordFailure %d: %v", k, err)
		}

		st, _ := tdb.Store.GetIndexerStatus(ctx, ix.ID)
		if st.ConsecutiveFailures != k {
			t.Fatalf("consecutiveFailures = %d, want %d", st.ConsecutiveFailures, k)
		}
		// Backoff monotonicity: disabledUntil = lastFailure + ladder[k-1].
		want := now.Add(Backoff(k))
		if st.DisabledUntil == nil || !timesClose(*st.DisabledUntil, want) {
			t.Fatalf("disabledUntil = %v, want %v", st.DisabledUntil, want)
		}

		available, err := svc.IsAvailable(ctx, ix, now)
		if err != nil {
			t.Fatalf("IsAvailable: %v", err)
		}
		if available {
			t.Fatal("indexer in backoff must not be available")
		}
	}

	// Past the backoff, the indexer is green again.
	available, _ := svc.IsAvailable(ctx, ix, now.Add(Backoff(3)).Add(time.Second))
	if !available {
		t.Error("indexer should be available once disabledUntil passes")
	}
}

func TestRecordSuccess_ClearsFailureState(t *testing.T) {
	tdb := testutil.NewTestDB(t)
	defer tdb.Close()
	ctx := context.Background()

	svc := NewService(tdb.Store, testutil.NopLogger())
	ix := createIndexer(t, tdb, 0)

	now := time.Now().UTC()
	_ = svc.RecordFailure(ctx, ix.ID, errors.New("boom"), now)
	if err := svc.RecordSuccess(ctx, ix.ID, now.Add(time.Minute)); err != nil {
		t.Fatalf("RecordSuccess: %v", err)
	}

	st, _ := tdb.Store.GetIndexerStatus(ctx, ix.ID)
	if st.ConsecutiveFailures != 0 || st.DisabledUntil != nil || st.LastFailureAt != nil {
		t.Errorf("failure state should be cleared: %+v", st)
	}
	if st.LastSuccessAt == nil {
		t.Error("lastSuccessAt should be set")
	}
}

func TestRecordRateLimited_DoesNotEscalateFailures(t *testing.T) {
	tdb := testutil.NewTestDB(t)
	defer tdb.Close()
	ctx := context.Background()

	svc := NewService(tdb.Store, testutil.NopLogger())
	ix := createIndexer(t, tdb, 0)

	now := time.Now().UTC()
	if err := svc.RecordRateLimited(ctx, ix.ID, 300*time.Second, now); err != nil {
		t.Fatalf("RecordRateLimited: %v", err)
	}

	st, _ := tdb.Store.GetIndexerStatus(ctx, ix.ID)
	if st.ConsecutiveFailures != 0 {
		t.Error("a 429 must not increment the failure counter")
	}
	want := now.Add(5 * time.Minute)
	if st.RateLimitedUntil == nil || !timesClose(*st.RateLimitedUntil, want) {
		t.Errorf("rateLimitedUntil = %v, want %v", st.RateLimitedUntil, want)
	}

	if available, _ := svc.IsAvailable(ctx, ix, now.Add(time.Minute)); available {
		t.Error("rate-limited indexer must be unavailable during the cooldown")
	}
	if available, _ := svc.IsAvailable(ctx, ix, now.Add(6*time.Minute)); !available {
		t.Error("indexer should be available after the cooldown")
	}
}

func TestRecordRateLimited_CooldownCappedAtOneHour(t *testing.T) {
	tdb := testutil.NewTestDB(t)
	defer tdb.Close()
	ctx := context.Background()

	svc := NewService(tdb.Store, testutil.NopLogger())
	ix := createIndexer(t, tdb, 0)

	now := time.Now().UTC()
	_ = svc.RecordRateLimited(ctx, ix.ID, 5*time.Hour, now)

	st, _ := tdb.Store.GetIndexerStatus(ctx, ix.ID)
	want := now.Add(time.Hour)
	if st.RateLimitedUntil == nil || !timesClose(*st.RateLimitedUntil, want) {
		t.Errorf("rateLimitedUntil = %v, want capped %v", st.RateLimitedUntil, want)
	}
}

func TestIsAvailable_QueryCap(t *testing.T) {
	tdb := testutil.NewTestDB(t)
	defer tdb.Close()
	ctx := context.Background()

	svc := NewService(tdb.Store, testutil.NopLogger())
	ix := createIndexer(t, tdb, 2)

	now := time.Now().UTC()
	for i := 0; i < 2; i++ {
		admitted, err := svc.AdmitQuery(ctx, ix, now)
		if err != nil || !admitted {
			t.Fatalf("AdmitQuery %d = %v, %v", i, admitted, err)
		}
	}

	if available, _ := svc.IsAvailable(ctx, ix, now); available {
		t.Error("indexer at its hourly query cap must be unavailable")
	}
	if available, _ := svc.IsAvailable(ctx, ix, now.Add(61*time.Minute)); !available {
		t.Error("indexer should be available after the hourly reset")
	}
}

func TestReset_ClearsEverything(t *testing.T) {
	tdb := testutil.NewTestDB(t)
	defer tdb.Close()
	ctx := context.Background()

	svc := NewService(tdb.Store, testutil.NopLogger())
	ix := createIndexer(t, tdb, 1)

	now := time.Now().UTC()
	_ = svc.RecordFailure(ctx, ix.ID, errors.New("boom"), now)
	_ = svc.RecordRateLimited(ctx, ix.ID, time.Minute, now)
	_, _ = svc.AdmitQuery(ctx, ix, now)

	if err := svc.Reset(ctx, ix.ID); err != nil {
		t.Fatalf("Reset: %v", err)
	}

	st, _ := tdb.Store.GetIndexerStatus(ctx, ix.ID)
	if st.ConsecutiveFailures != 0 || st.DisabledUntil != nil || st.RateLimitedUntil != nil || st.QueriesThisHour != 0 {
		t.Errorf("reset should clear failure, cooldown and counters: %+v", st)
	}
}
