package controller

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gofrs/flock"

	"hybridmux/internal/config"
	"hybridmux/internal/faults"
	"hybridmux/internal/history"
	"hybridmux/internal/pairing"
	"hybridmux/internal/pipeline"
	"hybridmux/internal/preflight"
	"hybridmux/internal/report"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.Paths.ScratchDir = t.TempDir()
	cfg.Paths.DefaultOutput = t.TempDir()
	cfg.Logging.Dir = t.TempDir()
	return &cfg
}

func passingPreflight(context.Context, *config.Config) []preflight.Result {
	return []preflight.Result{{Name: "Directories", Passed: true}}
}

type fakePipeline struct {
	mu       sync.Mutex
	requests []pipeline.Request
	err      error
}

func (f *fakePipeline) run(_ context.Context, req pipeline.Request) error {
	f.mu.Lock()
	f.requests = append(f.requests, req)
	f.mu.Unlock()
	return f.err
}

func (f *fakePipeline) calls() []pipeline.Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]pipeline.Request(nil), f.requests...)
}

func touch(t *testing.T, path string) string {
	t.Helper()
	if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
	return path
}

func lastRun(t *testing.T, recorder *report.Recorder) report.RunStatus {
	t.Helper()
	runs := recorder.Runs()
	if len(runs) == 0 {
		t.Fatal("expected at least one run status")
	}
	return runs[len(runs)-1]
}

func TestRunSingleDispatchesPipeline(t *testing.T) {
	cfg := testConfig(t)
	inputDir := t.TempDir()
	hdr := touch(t, filepath.Join(inputDir, "Movie.HDR.mkv"))
	dv := touch(t, filepath.Join(inputDir, "Movie.DV.mkv"))

	fake := &fakePipeline{}
	recorder := report.NewRecorder()
	ctrl, err := New(Options{Config: cfg, Reporter: recorder, Preflight: passingPreflight, Pipeline: fake.run})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	if err := ctrl.Run(context.Background(), Request{HDRPath: hdr, DVPath: dv}); err != nil {
		t.Fatalf("Run returned error: %v", err)
	}

	calls := fake.calls()
	if len(calls) != 1 {
		t.Fatalf("expected 1 pipeline call, got %d", len(calls))
	}
	req := calls[0]
	wantOutput := filepath.Join(cfg.Paths.DefaultOutput, "Movie"+pairing.OutputSuffix)
	if req.OutputPath != wantOutput {
		t.Fatalf("expected output %q, got %q", wantOutput, req.OutputPath)
	}
	if req.Queue == nil || req.Queue.FileTotal != 1 || req.Queue.FileName != "Movie.HDR.mkv" {
		t.Fatalf("unexpected queue context: %+v", req.Queue)
	}
	if req.WorkDir == "" || !strings.Contains(req.WorkDir, "task-000") {
		t.Fatalf("expected task work dir, got %q", req.WorkDir)
	}
	if got := lastRun(t, recorder); got != report.RunCompleted {
		t.Fatalf("expected terminal status %q, got %q", report.RunCompleted, got)
	}
}

func TestRunBatchDispatchesAllTasks(t *testing.T) {
	cfg := testConfig(t)
	hdrDir := t.TempDir()
	dvDir := t.TempDir()
	for _, name := range []string{"Alpha", "Beta", "Gamma"} {
		touch(t, filepath.Join(hdrDir, name+".HDR.mkv"))
		touch(t, filepath.Join(dvDir, name+".DV.mkv"))
	}

	fake := &fakePipeline{}
	recorder := report.NewRecorder()
	ctrl, err := New(Options{Config: cfg, Reporter: recorder, Preflight: passingPreflight, Pipeline: fake.run})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	if err := ctrl.Run(context.Background(), Request{HDRPath: hdrDir, DVPath: dvDir, Parallelism: 2}); err != nil {
		t.Fatalf("Run returned error: %v", err)
	}

	calls := fake.calls()
	if len(calls) != 3 {
		t.Fatalf("expected 3 pipeline calls, got %d", len(calls))
	}
	var names []string
	for _, call := range calls {
		names = append(names, filepath.Base(call.HDRPath))
		if call.Queue == nil || call.Queue.FileTotal != 3 {
			t.Fatalf("unexpected queue context: %+v", call.Queue)
		}
	}
	sort.Strings(names)
	want := []string{"Alpha.HDR.mkv", "Beta.HDR.mkv", "Gamma.HDR.mkv"}
	for i := range want {
		if names[i] != want[i] {
			t.Fatalf("expected files %v, got %v", want, names)
		}
	}
	if got := lastRun(t, recorder); got != report.RunCompleted {
		t.Fatalf("expected terminal status %q, got %q", report.RunCompleted, got)
	}
}

func TestRunFailureEmitsRunError(t *testing.T) {
	cfg := testConfig(t)
	inputDir := t.TempDir()
	hdr := touch(t, filepath.Join(inputDir, "Movie.HDR.mkv"))
	dv := touch(t, filepath.Join(inputDir, "Movie.DV.mkv"))

	fake := &fakePipeline{err: errors.New("mux exploded")}
	recorder := report.NewRecorder()
	ctrl, err := New(Options{Config: cfg, Reporter: recorder, Preflight: passingPreflight, Pipeline: fake.run})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	if err := ctrl.Run(context.Background(), Request{HDRPath: hdr, DVPath: dv}); err == nil {
		t.Fatal("expected error from failing pipeline")
	}
	if got := lastRun(t, recorder); got != report.RunError {
		t.Fatalf("expected terminal status %q, got %q", report.RunError, got)
	}
}

func TestRunCancelledEmitsIdle(t *testing.T) {
	cfg := testConfig(t)
	inputDir := t.TempDir()
	hdr := touch(t, filepath.Join(inputDir, "Movie.HDR.mkv"))
	dv := touch(t, filepath.Join(inputDir, "Movie.DV.mkv"))

	fake := &fakePipeline{err: faults.Wrap(faults.ErrCancelled, "pipeline", "run", "processing cancelled", nil)}
	recorder := report.NewRecorder()
	ctrl, err := New(Options{Config: cfg, Reporter: recorder, Preflight: passingPreflight, Pipeline: fake.run})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	err = ctrl.Run(context.Background(), Request{HDRPath: hdr, DVPath: dv})
	if !faults.IsCancelled(err) {
		t.Fatalf("expected cancelled error, got %v", err)
	}
	if got := lastRun(t, recorder); got != report.RunIdle {
		t.Fatalf("expected terminal status %q, got %q", report.RunIdle, got)
	}
}

func TestPollIntervalFollowsConfig(t *testing.T) {
	cfg := testConfig(t)
	cfg.Processing.PollIntervalMS = 250
	if got := pollInterval(cfg); got != 250*time.Millisecond {
		t.Fatalf("poll interval = %v, want 250ms", got)
	}
	cfg.Processing.PollIntervalMS = 0
	if got := pollInterval(cfg); got != 0 {
		t.Fatalf("zero config must defer to the runner default, got %v", got)
	}
}

func TestCancelWithoutActiveRun(t *testing.T) {
	cfg := testConfig(t)
	ctrl, err := New(Options{Config: cfg, Preflight: passingPreflight, Pipeline: (&fakePipeline{}).run})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	// A signal can arrive before Run starts or after it returns; Cancel must
	// tolerate both.
	ctrl.Cancel()
	ctrl.Cancel()
}

func TestRunRejectsMixedInputKinds(t *testing.T) {
	cfg := testConfig(t)
	hdr := touch(t, filepath.Join(t.TempDir(), "Movie.HDR.mkv"))
	dvDir := t.TempDir()

	fake := &fakePipeline{}
	ctrl, err := New(Options{Config: cfg, Preflight: passingPreflight, Pipeline: fake.run})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	err = ctrl.Run(context.Background(), Request{HDRPath: hdr, DVPath: dvDir})
	if !errors.Is(err, faults.ErrPairing) {
		t.Fatalf("expected pairing error, got %v", err)
	}
	if len(fake.calls()) != 0 {
		t.Fatal("pipeline must not run for mismatched inputs")
	}
}

func TestRunPreflightFailureAborts(t *testing.T) {
	cfg := testConfig(t)
	inputDir := t.TempDir()
	hdr := touch(t, filepath.Join(inputDir, "Movie.HDR.mkv"))
	dv := touch(t, filepath.Join(inputDir, "Movie.DV.mkv"))

	failing := func(context.Context, *config.Config) []preflight.Result {
		return []preflight.Result{{Name: "Free space", Passed: false, Detail: "only 12 MB available"}}
	}
	fake := &fakePipeline{}
	recorder := report.NewRecorder()
	ctrl, err := New(Options{Config: cfg, Reporter: recorder, Preflight: failing, Pipeline: fake.run})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	err = ctrl.Run(context.Background(), Request{HDRPath: hdr, DVPath: dv})
	if err == nil || !strings.Contains(err.Error(), "Free space") {
		t.Fatalf("expected preflight failure, got %v", err)
	}
	if len(fake.calls()) != 0 {
		t.Fatal("pipeline must not run when preflight fails")
	}
}

func TestRunRefusesSecondInstance(t *testing.T) {
	cfg := testConfig(t)
	inputDir := t.TempDir()
	hdr := touch(t, filepath.Join(inputDir, "Movie.HDR.mkv"))
	dv := touch(t, filepath.Join(inputDir, "Movie.DV.mkv"))

	lock := flock.New(filepath.Join(cfg.Logging.Dir, "hybridmux.lock"))
	ok, err := lock.TryLock()
	if err != nil || !ok {
		t.Fatalf("could not pre-acquire lock: ok=%v err=%v", ok, err)
	}
	defer lock.Unlock()

	fake := &fakePipeline{}
	ctrl, err := New(Options{Config: cfg, Preflight: passingPreflight, Pipeline: fake.run})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	err = ctrl.Run(context.Background(), Request{HDRPath: hdr, DVPath: dv})
	if err == nil || !strings.Contains(err.Error(), "already in progress") {
		t.Fatalf("expected lock contention error, got %v", err)
	}
}

func TestRunRecordsHistory(t *testing.T) {
	cfg := testConfig(t)
	inputDir := t.TempDir()
	hdr := touch(t, filepath.Join(inputDir, "Movie.HDR.mkv"))
	dv := touch(t, filepath.Join(inputDir, "Movie.DV.mkv"))

	journal, err := history.Open(filepath.Join(t.TempDir(), "history.db"))
	if err != nil {
		t.Fatalf("open journal: %v", err)
	}
	defer journal.Close()

	fake := &fakePipeline{}
	ctrl, err := New(Options{Config: cfg, Journal: journal, Preflight: passingPreflight, Pipeline: fake.run})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	if err := ctrl.Run(context.Background(), Request{HDRPath: hdr, DVPath: dv}); err != nil {
		t.Fatalf("Run returned error: %v", err)
	}

	runs, err := journal.Recent(context.Background(), 5)
	if err != nil {
		t.Fatalf("Recent returned error: %v", err)
	}
	if len(runs) != 1 {
		t.Fatalf("expected 1 journal run, got %d", len(runs))
	}
	if runs[0].Status != history.StatusCompleted {
		t.Fatalf("expected status %q, got %q", history.StatusCompleted, runs[0].Status)
	}
	if runs[0].Mode != string(ModeSingle) {
		t.Fatalf("expected mode %q, got %q", ModeSingle, runs[0].Mode)
	}

	files, err := journal.Files(context.Background(), runs[0].ID)
	if err != nil {
		t.Fatalf("Files returned error: %v", err)
	}
	if len(files) != 1 || files[0].Status != history.StatusCompleted {
		t.Fatalf("unexpected file outcomes: %+v", files)
	}
	if files[0].Title != "Movie" {
		t.Fatalf("expected title %q, got %q", "Movie", files[0].Title)
	}
}
