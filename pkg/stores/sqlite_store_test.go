package stores

import (
	"context"
	"path/filepath"
	"testing"
	"time"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()

	store, err := NewSQLiteStore(Config{Path: filepath.Join(t.TempDir(), "runs.db")})
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}

	ctx := context.Background()
	if err := store.Init(ctx); err != nil {
		t.Fatalf("Init: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	if err := store.Migrate(ctx); err != nil {
		t.Fatalf("Migrate: %v", err)
	}
	return store
}

func testRun(id string) *Run {
	now := time.Now().UTC().Truncate(time.Second)
	return &Run{
		ID:        id,
		Image:     "hpc-image-v42",
		Zones:     `["us-central1-a","us-central1-b"]`,
		Status:    RunStatusRunning,
		StartedAt: now,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func TestSQLiteStoreMissingPath(t *testing.T) {
	if _, err := NewSQLiteStore(Config{}); err == nil {
		t.Fatal("expected error for empty path")
	}
}

func TestSQLiteStoreRunLifecycle(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	run := testRun("run-1")
	if err := store.CreateRun(ctx, run); err != nil {
		t.Fatalf("CreateRun: %v", err)
	}

	got, err := store.GetRun(ctx, "run-1")
	if err != nil {
		t.Fatalf("GetRun: %v", err)
	}
	if got.Image != run.Image || got.Status != RunStatusRunning {
		t.Errorf("GetRun = %+v", got)
	}

	completed := time.Now().UTC().Truncate(time.Second)
	errText := "all zones exhausted after every retry"
	if err := store.FinishRun(ctx, "run-1", RunStatusFailed, 4, &errText, completed); err != nil {
		t.Fatalf("FinishRun: %v", err)
	}

	got, err = store.GetRun(ctx, "run-1")
	if err != nil {
		t.Fatalf("GetRun after finish: %v", err)
	}
	if got.Status != RunStatusFailed || got.Passes != 4 {
		t.Errorf("finished run = %+v", got)
	}
	if got.Error == nil || *got.Error != errText {
		t.Errorf("Error = %v", got.Error)
	}
	if got.CompletedAt == nil {
		t.Error("CompletedAt not set")
	}
}

func TestSQLiteStoreFinishUnknownRun(t *testing.T) {
	store := newTestStore(t)

	err := store.FinishRun(context.Background(), "absent", RunStatusSucceeded, 1, nil, time.Now())
	if err == nil {
		t.Fatal("expected error for unknown run")
	}
}

func TestSQLiteStoreGetUnknownRun(t *testing.T) {
	store := newTestStore(t)

	if _, err := store.GetRun(context.Background(), "absent"); err == nil {
		t.Fatal("expected error for unknown run")
	}
}

func TestSQLiteStoreAttempts(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if err := store.CreateRun(ctx, testRun("run-1")); err != nil {
		t.Fatalf("CreateRun: %v", err)
	}

	now := time.Now().UTC().Truncate(time.Second)
	rawError := "does not have enough resources"
	attempts := []*Attempt{
		{RunID: "run-1", Zone: "us-central1-a", Pass: 0, Deployment: "bench-001", Outcome: "stockout", RawError: &rawError, StartedAt: now, CompletedAt: now},
		{RunID: "run-1", Zone: "us-central1-b", Pass: 0, Deployment: "bench-002", Outcome: "success", StartedAt: now, CompletedAt: now},
	}
	for _, attempt := range attempts {
		if err := store.AppendAttempt(ctx, attempt); err != nil {
			t.Fatalf("AppendAttempt: %v", err)
		}
	}

	got, err := store.ListAttemptsByRun(ctx, "run-1")
	if err != nil {
		t.Fatalf("ListAttemptsByRun: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("attempts = %d, want 2", len(got))
	}
	if got[0].Deployment != "bench-001" || got[1].Deployment != "bench-002" {
		t.Errorf("attempts out of order: %+v", got)
	}
	if got[0].RawError == nil || *got[0].RawError != rawError {
		t.Errorf("RawError = %v", got[0].RawError)
	}
	if got[1].RawError != nil {
		t.Errorf("successful attempt RawError = %v, want nil", got[1].RawError)
	}
}

func TestSQLiteStoreListRuns(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	base := time.Now().UTC().Truncate(time.Second)
	for i, id := range []string{"run-1", "run-2", "run-3"} {
		run := testRun(id)
		run.StartedAt = base.Add(time.Duration(i) * time.Minute)
		if err := store.CreateRun(ctx, run); err != nil {
			t.Fatalf("CreateRun(%s): %v", id, err)
		}
	}

	runs, err := store.ListRuns(ctx, 2, 0)
	if err != nil {
		t.Fatalf("ListRuns: %v", err)
	}
	if len(runs) != 2 {
		t.Fatalf("runs = %d, want 2", len(runs))
	}
	// Newest first.
	if runs[0].ID != "run-3" || runs[1].ID != "run-2" {
		t.Errorf("order = %s, %s", runs[0].ID, runs[1].ID)
	}
}

func TestSQLiteStoreHealthCheck(t *testing.T) {
	store := newTestStore(t)
	if err := store.HealthCheck(context.Background()); err != nil {
		t.Errorf("HealthCheck: %v", err)
	}
}
