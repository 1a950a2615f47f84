// Package controller drives complete runs: preflight, tool resolution,
// scratch workspace setup, single-pair or batch dispatch, history journaling,
// and the terminal run status. It also enforces single-instance execution
// through a lock file.
package controller

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/gofrs/flock"
	"github.com/google/uuid"
	"log/slog"

	"hybridmux/internal/batch"
	"hybridmux/internal/config"
	"hybridmux/internal/deps"
	"hybridmux/internal/faults"
	"hybridmux/internal/history"
	"hybridmux/internal/logging"
	"hybridmux/internal/pairing"
	"hybridmux/internal/pipeline"
	"hybridmux/internal/preflight"
	"hybridmux/internal/report"
	"hybridmux/internal/runner"
	"hybridmux/internal/runstate"
	"hybridmux/internal/staging"
)

// staleWorkspaceAge is how old an abandoned run directory must be before
// startup cleanup removes it.
const staleWorkspaceAge = 24 * time.Hour

// Mode distinguishes a single file pair from a directory batch.
type Mode string

const (
	ModeSingle Mode = "single"
	ModeBatch  Mode = "batch"
)

// Request describes one run. HDRPath and DVPath are files for a single run
// or directories for a batch; mixing the two is an error.
type Request struct {
	HDRPath          string
	DVPath           string
	HDR10PlusPath    string
	OutputPath       string
	DVDelayMS        float64
	HDR10PlusDelayMS float64
	KeepTemp         bool
	Parallelism      int // 0 uses the configured value
}

// PreflightFunc matches preflight.RunAll. Injected in tests.
type PreflightFunc func(ctx context.Context, cfg *config.Config) []preflight.Result

// Options configures a Controller.
type Options struct {
	Config   *config.Config
	Logger   *slog.Logger
	Reporter report.Reporter
	Journal  *history.Store // nil disables history recording

	Preflight PreflightFunc      // defaults to preflight.RunAll
	Pipeline  batch.PipelineFunc // defaults to a pipeline built from resolved tools
}

// Controller owns run lifecycle and cancellation.
type Controller struct {
	cfg      *config.Config
	logger   *slog.Logger
	reporter report.Reporter
	journal  *history.Store

	preflight PreflightFunc
	pipeline  batch.PipelineFunc

	mu      sync.Mutex
	running bool
	cancel  *runstate.CancelFlag
}

// New constructs a Controller.
func New(opts Options) (*Controller, error) {
	if opts.Config == nil {
		return nil, errors.New("controller requires configuration")
	}
	if opts.Logger == nil {
		opts.Logger = logging.NewNop()
	}
	if opts.Reporter == nil {
		opts.Reporter = report.Nop()
	}
	if opts.Preflight == nil {
		opts.Preflight = preflight.RunAll
	}
	return &Controller{
		cfg:       opts.Config,
		logger:    logging.NewComponentLogger(opts.Logger, "controller"),
		reporter:  opts.Reporter,
		journal:   opts.Journal,
		preflight: opts.Preflight,
		pipeline:  opts.Pipeline,
	}, nil
}

// Cancel requests cooperative cancellation of the active run. Safe to call
// at any time, including when no run is active.
func (c *Controller) Cancel() {
	c.mu.Lock()
	flag := c.cancel
	c.mu.Unlock()
	flag.Set()
}

// Run executes one request end to end and emits exactly one terminal run
// status: completed on success, error on failure, idle after cancellation.
func (c *Controller) Run(ctx context.Context, req Request) error {
	c.mu.Lock()
	if c.running {
		c.mu.Unlock()
		return errors.New("a run is already in progress")
	}
	cancel := runstate.NewCancelFlag()
	c.running = true
	c.cancel = cancel
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		c.running = false
		c.cancel = nil
		c.mu.Unlock()
	}()

	if err := c.cfg.EnsureDirectories(); err != nil {
		c.reporter.Run(report.RunError)
		return err
	}

	lock := flock.New(filepath.Join(c.cfg.Logging.Dir, "hybridmux.lock"))
	ok, err := lock.TryLock()
	if err != nil {
		c.reporter.Run(report.RunError)
		return fmt.Errorf("acquire run lock: %w", err)
	}
	if !ok {
		c.reporter.Run(report.RunError)
		return errors.New("another hybridmux run is already in progress")
	}
	defer func() {
		if unlockErr := lock.Unlock(); unlockErr != nil {
			c.logger.Warn("failed to release run lock", logging.Error(unlockErr))
		}
	}()

	runID := uuid.NewString()
	err = c.execute(ctx, runID, req, cancel)

	switch {
	case faults.IsCancelled(err) || (err == nil && cancel.Cancelled()):
		c.reporter.Log(report.LevelWarning, "Processing cancelled.")
		c.reporter.Run(report.RunIdle)
		c.recordFinish(runID, history.StatusCancelled, "")
		c.logger.Warn("run cancelled",
			logging.String(logging.FieldRunID, runID),
			logging.String(logging.FieldEventType, "run_cancelled"))
		return faults.Wrap(faults.ErrCancelled, "controller", "run", "processing cancelled", nil)
	case err != nil:
		c.reporter.Log(report.LevelError, err.Error())
		c.reporter.Run(report.RunError)
		c.recordFinish(runID, history.StatusFailed, err.Error())
		c.logger.Error("run failed",
			logging.Error(err),
			logging.String(logging.FieldRunID, runID),
			logging.String(logging.FieldEventType, "run_failed"))
		return err
	default:
		c.reporter.Run(report.RunCompleted)
		c.recordFinish(runID, history.StatusCompleted, "")
		c.logger.Info("run completed",
			logging.String(logging.FieldRunID, runID),
			logging.String(logging.FieldEventType, "run_completed"))
		return nil
	}
}

func (c *Controller) execute(ctx context.Context, runID string, req Request, cancel *runstate.CancelFlag) error {
	mode, err := detectMode(req)
	if err != nil {
		return err
	}

	results := c.preflight(ctx, c.cfg)
	if failure, failed := preflight.FirstFailure(results); failed {
		return fmt.Errorf("preflight check %q failed: %s", failure.Name, failure.Detail)
	}

	run := c.pipeline
	if run == nil {
		tools, resolveErr := c.resolveTools()
		if resolveErr != nil {
			return resolveErr
		}
		pl := pipeline.New(pipeline.Options{
			Tools:    tools,
			Runner:   runner.New(c.reporter, cancel, pollInterval(c.cfg), c.logger),
			Reporter: c.reporter,
			Logger:   c.logger,
			Cancel:   cancel,
		})
		run = pl.Run
	}

	cleaned := staging.CleanStale(ctx, c.cfg.Paths.ScratchDir, staleWorkspaceAge, c.logger)
	if len(cleaned.Removed) > 0 {
		c.logger.Info("removed stale run directories",
			logging.Int("removed", len(cleaned.Removed)),
			logging.String(logging.FieldEventType, "scratch_cleaned"))
	}

	workspace, err := staging.NewWorkspace(c.cfg.Paths.ScratchDir, runID)
	if err != nil {
		return err
	}
	keepTemp := req.KeepTemp || c.cfg.Processing.KeepTempFiles
	if !keepTemp {
		defer workspace.Remove()
	}

	c.reporter.Run(report.RunProcessing)

	if mode == ModeBatch {
		return c.runBatch(ctx, runID, req, cancel, workspace, run)
	}
	return c.runSingle(ctx, runID, req, cancel, workspace, run)
}

func (c *Controller) runSingle(ctx context.Context, runID string, req Request, cancel *runstate.CancelFlag, workspace staging.Workspace, run batch.PipelineFunc) error {
	outputPath := pairing.OutputForSingle(c.cfg.Paths.DefaultOutput, req.OutputPath, req.HDRPath)
	fileName := filepath.Base(req.HDRPath)

	c.recordStart(ctx, history.Run{
		ID:         runID,
		Mode:       string(ModeSingle),
		HDRPath:    req.HDRPath,
		DVPath:     req.DVPath,
		OutputPath: outputPath,
		FileTotal:  1,
		StartedAt:  time.Now(),
	})
	c.recordFile(runID, history.FileOutcome{
		Index:  0,
		Name:   fileName,
		Title:  pairing.DisplayTitle(pairing.BaseName(fileName)),
		Status: history.StatusRunning,
	})

	workDir, err := workspace.TaskDir(0)
	if err != nil {
		return err
	}
	err = run(ctx, pipeline.Request{
		HDRPath:          req.HDRPath,
		DVPath:           req.DVPath,
		HDR10PlusPath:    req.HDR10PlusPath,
		OutputPath:       outputPath,
		WorkDir:          workDir,
		DVDelayMS:        req.DVDelayMS,
		HDR10PlusDelayMS: req.HDR10PlusDelayMS,
		KeepTemp:         req.KeepTemp || c.cfg.Processing.KeepTempFiles,
		Queue: &pipeline.QueueContext{
			ID:        runID,
			Label:     fileName,
			FileName:  fileName,
			FileIndex: 0,
			FileTotal: 1,
		},
	})
	c.recordFile(runID, fileOutcome(0, fileName, outputPath, err))
	return err
}

func (c *Controller) runBatch(ctx context.Context, runID string, req Request, cancel *runstate.CancelFlag, workspace staging.Workspace, run batch.PipelineFunc) error {
	c.reporter.Item(report.ItemUpdate{
		ID:            runID,
		Status:        report.ItemProcessing,
		CurrentStep:   "Scanning folders",
		ActiveWorkers: report.WorkersUnknown,
	})

	outputBase := pairing.NormalizeOutputPath(c.cfg.Paths.DefaultOutput, req.OutputPath)
	tasks, err := batch.BuildTasks(req.HDRPath, req.DVPath, req.HDR10PlusPath, outputBase)
	if err != nil {
		return err
	}
	if len(tasks) == 0 {
		return faults.Wrap(faults.ErrPairing, "controller", "build batch",
			fmt.Sprintf("no files found in %s", req.HDRPath), nil)
	}
	c.reporter.Log(report.LevelInfo, fmt.Sprintf("Found %d HDR files to process.", len(tasks)))

	c.recordStart(ctx, history.Run{
		ID:         runID,
		Mode:       string(ModeBatch),
		HDRPath:    req.HDRPath,
		DVPath:     req.DVPath,
		OutputPath: outputBase,
		FileTotal:  len(tasks),
		StartedAt:  time.Now(),
	})
	for _, task := range tasks {
		c.recordFile(runID, history.FileOutcome{
			Index:  task.Index,
			Name:   task.FileName,
			Title:  pairing.DisplayTitle(pairing.BaseName(task.FileName)),
			Status: history.StatusRunning,
		})
	}

	parallelism := req.Parallelism
	if parallelism == 0 {
		parallelism = c.cfg.Processing.Parallelism
	}

	journaled := func(ctx context.Context, preq pipeline.Request) error {
		runErr := run(ctx, preq)
		if preq.Queue != nil {
			c.recordFile(runID, fileOutcome(preq.Queue.FileIndex, preq.Queue.FileName, preq.OutputPath, runErr))
		}
		return runErr
	}

	return batch.Process(ctx, batch.Options{
		ItemID:           runID,
		Tasks:            tasks,
		Parallelism:      parallelism,
		DVDelayMS:        req.DVDelayMS,
		HDR10PlusDelayMS: req.HDR10PlusDelayMS,
		KeepTemp:         req.KeepTemp || c.cfg.Processing.KeepTempFiles,
		Workspace:        workspace,
		Run:              journaled,
		Cancel:           cancel,
		Reporter:         c.reporter,
		Logger:           c.logger,
	})
}

func (c *Controller) resolveTools() (pipeline.Tools, error) {
	statuses := deps.CheckBinaries(c.cfg.Paths.ResourceDir, deps.Requirements(c.cfg.Tools))
	if missing := deps.MissingRequired(statuses); len(missing) > 0 {
		return pipeline.Tools{}, fmt.Errorf("required tools unavailable: %s", strings.Join(missing, ", "))
	}
	resolved := make(map[string]string, len(statuses))
	for _, status := range statuses {
		if !status.Available {
			continue
		}
		command := status.Command
		// Tools shipped in the resource tree stage through the cache so
		// they keep an execute bit regardless of how they were unpacked.
		if c.cfg.Paths.ResourceDir != "" && strings.HasPrefix(command, c.cfg.Paths.ResourceDir+string(filepath.Separator)) {
			if cached, err := deps.PrepareTool(c.cfg.Paths.ResourceDir, command); err == nil {
				command = cached
			} else {
				c.logger.Warn("tool cache staging failed, using resource copy",
					logging.String("tool", status.Name), logging.Error(err))
			}
		}
		resolved[status.Name] = command
	}
	return pipeline.Tools{
		DoviTool:      resolved["dovi_tool"],
		MKVMerge:      resolved["mkvmerge"],
		MKVExtract:    resolved["mkvextract"],
		MediaInfo:     resolved["mediainfo"],
		MP4Box:        resolved["MP4Box"],
		HDR10PlusTool: resolved["hdr10plus_tool"],
		FFmpeg:        resolved["ffmpeg"],
	}, nil
}

// pollInterval converts the configured progress poll interval to a duration.
// Zero or negative values defer to the runner default.
func pollInterval(cfg *config.Config) time.Duration {
	return time.Duration(cfg.Processing.PollIntervalMS) * time.Millisecond
}

func detectMode(req Request) (Mode, error) {
	hdrInfo, err := os.Stat(req.HDRPath)
	if err != nil {
		return "", faults.Wrap(faults.ErrStaging, "controller", "inspect input",
			fmt.Sprintf("HDR input %s is not accessible", req.HDRPath), err)
	}
	dvInfo, err := os.Stat(req.DVPath)
	if err != nil {
		return "", faults.Wrap(faults.ErrStaging, "controller", "inspect input",
			fmt.Sprintf("DV input %s is not accessible", req.DVPath), err)
	}
	if hdrInfo.IsDir() != dvInfo.IsDir() {
		return "", faults.Wrap(faults.ErrPairing, "controller", "inspect input",
			"HDR and DV inputs must both be files or both be directories", nil)
	}
	if req.HDR10PlusPath != "" {
		plusInfo, err := os.Stat(req.HDR10PlusPath)
		if err != nil {
			return "", faults.Wrap(faults.ErrStaging, "controller", "inspect input",
				fmt.Sprintf("HDR10+ input %s is not accessible", req.HDR10PlusPath), err)
		}
		if plusInfo.IsDir() != hdrInfo.IsDir() {
			return "", faults.Wrap(faults.ErrPairing, "controller", "inspect input",
				"HDR10+ input must match the HDR input kind", nil)
		}
	}
	if hdrInfo.IsDir() {
		return ModeBatch, nil
	}
	return ModeSingle, nil
}

func fileOutcome(index int, name, outputPath string, err error) history.FileOutcome {
	outcome := history.FileOutcome{Index: index, Name: name, OutputPath: outputPath}
	switch {
	case err == nil:
		outcome.Status = history.StatusCompleted
	case faults.IsCancelled(err):
		outcome.Status = history.StatusCancelled
		outcome.OutputPath = ""
	default:
		outcome.Status = history.StatusFailed
		outcome.Error = err.Error()
		outcome.OutputPath = ""
	}
	return outcome
}

func (c *Controller) recordStart(ctx context.Context, run history.Run) {
	if c.journal == nil {
		return
	}
	if err := c.journal.RecordStart(ctx, run); err != nil {
		c.logger.Warn("failed to record run start", logging.Error(err))
	}
}

func (c *Controller) recordFile(runID string, outcome history.FileOutcome) {
	if c.journal == nil {
		return
	}
	if err := c.journal.RecordFile(context.Background(), runID, outcome); err != nil {
		c.logger.Warn("failed to record file outcome", logging.Error(err))
	}
}

func (c *Controller) recordFinish(runID, status, errText string) {
	if c.journal == nil {
		return
	}
	if err := c.journal.RecordFinish(context.Background(), runID, status, errText, time.Now()); err != nil {
		c.logger.Warn("failed to record run finish", logging.Error(err))
	}
}
