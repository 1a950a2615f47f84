package history

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "history.db"))
	if err != nil {
		t.Fatalf("Open returned error: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestRecordAndRecent(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	started := time.Date(2026, 3, 14, 10, 30, 0, 0, time.UTC)
	run := Run{
		ID:         "run-a",
		Mode:       "single",
		HDRPath:    "/media/Movie.HDR.mkv",
		DVPath:     "/media/Movie.DV.mkv",
		OutputPath: "/out/Movie.DV.HDR.H.265-NOGRP.mkv",
		FileTotal:  1,
		StartedAt:  started,
	}
	if err := store.RecordStart(ctx, run); err != nil {
		t.Fatalf("RecordStart returned error: %v", err)
	}

	runs, err := store.Recent(ctx, 10)
	if err != nil {
		t.Fatalf("Recent returned error: %v", err)
	}
	if len(runs) != 1 {
		t.Fatalf("expected 1 run, got %d", len(runs))
	}
	if runs[0].Status != StatusRunning {
		t.Fatalf("expected status %q, got %q", StatusRunning, runs[0].Status)
	}
	if !runs[0].StartedAt.Equal(started) {
		t.Fatalf("expected started_at %v, got %v", started, runs[0].StartedAt)
	}
	if !runs[0].FinishedAt.IsZero() {
		t.Fatalf("expected zero finished_at for running run, got %v", runs[0].FinishedAt)
	}

	finished := started.Add(5 * time.Minute)
	if err := store.RecordFinish(ctx, "run-a", StatusCompleted, "", finished); err != nil {
		t.Fatalf("RecordFinish returned error: %v", err)
	}

	runs, err = store.Recent(ctx, 10)
	if err != nil {
		t.Fatalf("Recent returned error: %v", err)
	}
	if runs[0].Status != StatusCompleted {
		t.Fatalf("expected status %q, got %q", StatusCompleted, runs[0].Status)
	}
	if !runs[0].FinishedAt.Equal(finished) {
		t.Fatalf("expected finished_at %v, got %v", finished, runs[0].FinishedAt)
	}
}

func TestRecentOrdersNewestFirst(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, id := range []string{"run-old", "run-mid", "run-new"} {
		run := Run{ID: id, Mode: "batch", StartedAt: base.Add(time.Duration(i) * time.Hour), FileTotal: 3}
		if err := store.RecordStart(ctx, run); err != nil {
			t.Fatalf("RecordStart(%s) returned error: %v", id, err)
		}
	}

	runs, err := store.Recent(ctx, 2)
	if err != nil {
		t.Fatalf("Recent returned error: %v", err)
	}
	if len(runs) != 2 {
		t.Fatalf("expected 2 runs, got %d", len(runs))
	}
	if runs[0].ID != "run-new" || runs[1].ID != "run-mid" {
		t.Fatalf("unexpected ordering: %s, %s", runs[0].ID, runs[1].ID)
	}
}

func TestRecordFileUpsert(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	run := Run{ID: "run-b", Mode: "batch", FileTotal: 2, StartedAt: time.Now()}
	if err := store.RecordStart(ctx, run); err != nil {
		t.Fatalf("RecordStart returned error: %v", err)
	}

	first := FileOutcome{Index: 0, Name: "Movie.HDR.mkv", Title: "Movie", Status: StatusRunning}
	if err := store.RecordFile(ctx, "run-b", first); err != nil {
		t.Fatalf("RecordFile returned error: %v", err)
	}
	second := FileOutcome{Index: 1, Name: "Other.HDR.mkv", Title: "Other", Status: StatusRunning}
	if err := store.RecordFile(ctx, "run-b", second); err != nil {
		t.Fatalf("RecordFile returned error: %v", err)
	}

	first.Status = StatusCompleted
	first.OutputPath = "/out/Movie.DV.HDR.H.265-NOGRP.mkv"
	if err := store.RecordFile(ctx, "run-b", first); err != nil {
		t.Fatalf("RecordFile upsert returned error: %v", err)
	}

	outcomes, err := store.Files(ctx, "run-b")
	if err != nil {
		t.Fatalf("Files returned error: %v", err)
	}
	if len(outcomes) != 2 {
		t.Fatalf("expected 2 outcomes, got %d", len(outcomes))
	}
	if outcomes[0].Status != StatusCompleted {
		t.Fatalf("expected upserted status %q, got %q", StatusCompleted, outcomes[0].Status)
	}
	if outcomes[0].OutputPath == "" {
		t.Fatal("expected output path after upsert")
	}
	if outcomes[1].Name != "Other.HDR.mkv" {
		t.Fatalf("unexpected second outcome: %+v", outcomes[1])
	}
}

func TestOpenRejectsSchemaMismatch(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "history.db")
	store, err := Open(dbPath)
	if err != nil {
		t.Fatalf("Open returned error: %v", err)
	}
	if _, err := store.db.Exec("UPDATE schema_version SET version = 99"); err != nil {
		t.Fatalf("bump version: %v", err)
	}
	store.Close()

	if _, err := Open(dbPath); !errors.Is(err, ErrSchemaMismatch) {
		t.Fatalf("expected ErrSchemaMismatch, got %v", err)
	}
}

func TestOpenCreatesParentDirectory(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "nested", "dir", "history.db")
	store, err := Open(dbPath)
	if err != nil {
		t.Fatalf("Open returned error: %v", err)
	}
	defer store.Close()
	if store.Path() != dbPath {
		t.Fatalf("unexpected path %q", store.Path())
	}
}
