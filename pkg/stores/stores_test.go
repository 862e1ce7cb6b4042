package stores

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/seedctl/seedctl/pkg/engine"
)

func testStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := NewSQLiteStore(Config{Path: filepath.Join(t.TempDir(), "history.db")})
	if err != nil {
		t.Fatalf("NewSQLiteStore failed: %v", err)
	}
	ctx := context.Background()
	if err := store.Init(ctx); err != nil {
		t.Fatalf("Init failed: %v", err)
	}
	if err := store.Migrate(ctx); err != nil {
		t.Fatalf("Migrate failed: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func sampleRun(id string, startedAt time.Time) *engine.ConvergenceRun {
	return &engine.ConvergenceRun{
		ID:      id,
		PlanID:  "plan-" + id,
		Outcome: engine.OutcomePartial,
		Results: []engine.ActionResult{
			{
				Name:        "install-deps",
				Status:      engine.StatusSuccess,
				Attempts:    1,
				StartedAt:   startedAt,
				CompletedAt: startedAt.Add(2 * time.Second),
			},
			{
				Name:        "fetch-and-build",
				Status:      engine.StatusFailed,
				Reason:      "all 2 mirrors failed",
				Attempts:    2,
				StartedAt:   startedAt.Add(2 * time.Second),
				CompletedAt: startedAt.Add(30 * time.Second),
			},
		},
		Error:       "convergence incomplete",
		StartedAt:   startedAt,
		CompletedAt: startedAt.Add(30 * time.Second),
	}
}

func TestRecordAndLastRun(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()

	if run, err := store.LastRun(ctx); err != nil || run != nil {
		t.Fatalf("LastRun on empty store = %v, %v; want nil, nil", run, err)
	}

	base := time.Date(2026, 8, 20, 12, 0, 0, 0, time.UTC)
	if err := store.Record(ctx, sampleRun("run-1", base)); err != nil {
		t.Fatalf("Record failed: %v", err)
	}
	if err := store.Record(ctx, sampleRun("run-2", base.Add(time.Hour))); err != nil {
		t.Fatalf("Record failed: %v", err)
	}

	last, err := store.LastRun(ctx)
	if err != nil {
		t.Fatalf("LastRun failed: %v", err)
	}
	if last == nil || last.ID != "run-2" {
		t.Fatalf("LastRun = %+v, want run-2", last)
	}
	if last.Outcome != engine.OutcomePartial {
		t.Errorf("Outcome = %s, want partial", last.Outcome)
	}

	if len(last.Results) != 2 {
		t.Fatalf("Results = %d entries, want 2", len(last.Results))
	}
	// Results come back in plan order.
	if last.Results[0].Name != "install-deps" || last.Results[1].Name != "fetch-and-build" {
		t.Errorf("result order = %s, %s", last.Results[0].Name, last.Results[1].Name)
	}
	if last.Results[1].Reason != "all 2 mirrors failed" {
		t.Errorf("Reason = %q", last.Results[1].Reason)
	}
	if last.Results[1].Attempts != 2 {
		t.Errorf("Attempts = %d, want 2", last.Results[1].Attempts)
	}
}

func TestRecordRejectsDuplicateRunID(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()

	run := sampleRun("run-1", time.Now().UTC())
	if err := store.Record(ctx, run); err != nil {
		t.Fatalf("Record failed: %v", err)
	}
	if err := store.Record(ctx, run); err == nil {
		t.Fatal("expected duplicate run ID to fail")
	}

	// The failed transaction left nothing behind.
	runs, err := store.ListRuns(ctx, 10)
	if err != nil {
		t.Fatalf("ListRuns failed: %v", err)
	}
	if len(runs) != 1 {
		t.Errorf("runs = %d, want 1", len(runs))
	}
}

func TestListRunsNewestFirst(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()

	base := time.Date(2026, 8, 20, 12, 0, 0, 0, time.UTC)
	for i, id := range []string{"run-1", "run-2", "run-3"} {
		if err := store.Record(ctx, sampleRun(id, base.Add(time.Duration(i)*time.Hour))); err != nil {
			t.Fatalf("Record failed: %v", err)
		}
	}

	runs, err := store.ListRuns(ctx, 2)
	if err != nil {
		t.Fatalf("ListRuns failed: %v", err)
	}
	if len(runs) != 2 {
		t.Fatalf("runs = %d, want 2", len(runs))
	}
	if runs[0].ID != "run-3" || runs[1].ID != "run-2" {
		t.Errorf("order = %s, %s; want run-3, run-2", runs[0].ID, runs[1].ID)
	}
}

func TestPoolSettingsFromConfig(t *testing.T) {
	store, err := NewSQLiteStore(Config{
		Path:            filepath.Join(t.TempDir(), "history.db"),
		MaxOpenConns:    1,
		MaxIdleConns:    1,
		ConnMaxLifetime: time.Minute,
	})
	if err != nil {
		t.Fatalf("NewSQLiteStore failed: %v", err)
	}
	if err := store.Init(context.Background()); err != nil {
		t.Fatalf("Init failed: %v", err)
	}
	defer store.Close()

	if got := store.db.Stats().MaxOpenConnections; got != 1 {
		t.Errorf("MaxOpenConnections = %d, want 1", got)
	}
}

func TestMarkerRoundTrip(t *testing.T) {
	m := NewMarkerFile(filepath.Join(t.TempDir(), "state", "install.json"))

	loaded, err := m.Load()
	if err != nil {
		t.Fatalf("Load on missing marker failed: %v", err)
	}
	if loaded != nil {
		t.Fatalf("Load on missing marker = %+v, want nil", loaded)
	}

	if err := m.Save(Marker{Version: "4.0.5", ConfigHash: "abc123"}); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	loaded, err = m.Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if loaded.Version != "4.0.5" || loaded.ConfigHash != "abc123" {
		t.Errorf("marker = %+v", loaded)
	}
	if loaded.ConvergedAt.IsZero() {
		t.Error("ConvergedAt not stamped")
	}

	if err := m.Clear(); err != nil {
		t.Fatalf("Clear failed: %v", err)
	}
	if loaded, _ := m.Load(); loaded != nil {
		t.Error("marker still present after clear")
	}
	// Clearing again is fine.
	if err := m.Clear(); err != nil {
		t.Errorf("second Clear failed: %v", err)
	}
}
