// Package batch expands folder pairs into per-file tasks and runs them on a
// bounded worker pool with shared progress and first-error-wins shutdown.
//
// All pairing happens before any worker spawns: a single unmatched file
// aborts the batch instead of failing halfway through.
package batch

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"hybridmux/internal/config"
	"hybridmux/internal/faults"
	"hybridmux/internal/logging"
	"hybridmux/internal/pairing"
	"hybridmux/internal/pipeline"
	"hybridmux/internal/report"
	"hybridmux/internal/runstate"
	"hybridmux/internal/staging"
)

// Task is one paired file assignment within a batch.
type Task struct {
	Index         int
	Label         string
	FileName      string
	HDRPath       string
	DVPath        string
	HDR10PlusPath string
	OutputPath    string
}

// BuildTasks lists both directories, pairs every HDR file with a DV
// counterpart, and assigns output paths. hdr10plusDir may be empty (no
// HDR10+), equal to hdrDir (metadata rides in the HDR sources), or a third
// directory paired by the same rules.
func BuildTasks(hdrDir, dvDir, hdr10plusDir, outputBase string) ([]Task, error) {
	hdrFiles, err := listFiles(hdrDir)
	if err != nil {
		return nil, err
	}
	dvFiles, err := listFiles(dvDir)
	if err != nil {
		return nil, err
	}

	var plusFiles []string
	if hdr10plusDir != "" && hdr10plusDir != hdrDir {
		plusFiles, err = listFiles(hdr10plusDir)
		if err != nil {
			return nil, err
		}
	}

	total := len(hdrFiles)
	tasks := make([]Task, 0, total)
	for index, hdrFile := range hdrFiles {
		dvFile, err := pairing.Pair(hdrFile, index, dvFiles)
		if err != nil {
			return nil, err
		}

		task := Task{
			Index:      index,
			Label:      fmt.Sprintf("%d/%d %s", index+1, total, hdrFile),
			FileName:   hdrFile,
			HDRPath:    filepath.Join(hdrDir, hdrFile),
			DVPath:     filepath.Join(dvDir, dvFile),
			OutputPath: pairing.OutputForBatch(outputBase, hdrFile),
		}

		switch {
		case hdr10plusDir == "":
			// no HDR10+ source
		case hdr10plusDir == hdrDir:
			task.HDR10PlusPath = task.HDRPath
		default:
			base := pairing.BaseName(hdrFile)
			if match, ok := pairing.MatchDV(plusFiles, base); ok {
				task.HDR10PlusPath = filepath.Join(hdr10plusDir, match)
			} else if index < len(plusFiles) {
				task.HDR10PlusPath = filepath.Join(hdr10plusDir, plusFiles[index])
			}
		}

		tasks = append(tasks, task)
	}
	return tasks, nil
}

func listFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, faults.Wrap(faults.ErrIO, "batch", "list", fmt.Sprintf("cannot list %s", dir), err)
	}
	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		names = append(names, entry.Name())
	}
	sort.Strings(names)
	return names, nil
}

// WorkerCount bounds the pool size: zero parallelism means one worker per
// task, and the hard cap applies either way.
func WorkerCount(totalTasks, parallelism int) int {
	if totalTasks < 1 {
		return 0
	}
	requested := parallelism
	if requested <= 0 {
		requested = totalTasks
	}
	if requested > totalTasks {
		requested = totalTasks
	}
	if requested > config.MaxWorkers {
		requested = config.MaxWorkers
	}
	return requested
}

// PipelineFunc processes one file pair. Satisfied by (*pipeline.Pipeline).Run.
type PipelineFunc func(ctx context.Context, req pipeline.Request) error

// Options configures one batch execution.
type Options struct {
	ItemID           string
	Tasks            []Task
	Parallelism      int
	DVDelayMS        float64
	HDR10PlusDelayMS float64
	KeepTemp         bool
	Workspace        staging.Workspace
	Run              PipelineFunc
	Cancel           *runstate.CancelFlag
	Reporter         report.Reporter
	Logger           *slog.Logger
}

// Process drains the task list through a worker pool. The first task error
// stops all workers after their current task; cancellation stops them the
// same way. Returns the first recorded error.
func Process(ctx context.Context, opts Options) error {
	if len(opts.Tasks) == 0 {
		return nil
	}
	reporter := opts.Reporter
	if reporter == nil {
		reporter = report.Nop()
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.NewNop()
	}
	cancel := opts.Cancel
	if cancel == nil {
		cancel = runstate.NewCancelFlag()
	}

	total := len(opts.Tasks)
	tracker := runstate.NewTracker(total)
	active := runstate.NewActiveCount()
	errs := runstate.NewErrorSlot()

	queue := make(chan Task, total)
	for _, task := range opts.Tasks {
		queue <- task
	}
	close(queue)

	workers := WorkerCount(total, opts.Parallelism)
	logger.Info("batch started",
		logging.Int("files", total),
		logging.Int("workers", workers),
		logging.String(logging.FieldQueueItemID, opts.ItemID),
		logging.String(logging.FieldEventType, "batch_started"),
	)

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				if cancel.Cancelled() || ctx.Err() != nil {
					return
				}
				if errs.Err() != nil {
					return
				}

				task, ok := <-queue
				if !ok {
					return
				}

				active.Inc()
				err := runTask(ctx, opts, task, total, tracker, active)
				active.Dec()

				if err != nil {
					if errs.Record(err) {
						logger.Error("batch task failed",
							logging.Int(logging.FieldTaskIndex, task.Index),
							logging.String(logging.FieldTaskLabel, task.Label),
							logging.Error(err),
							logging.String(logging.FieldEventType, "batch_task_failed"),
						)
					}
					return
				}
			}
		}()
	}
	wg.Wait()

	if err := errs.Err(); err != nil {
		completed := 0
		for _, percent := range tracker.Snapshot() {
			if percent >= 100 {
				completed++
			}
		}
		reporter.Log(report.LevelWarning,
			fmt.Sprintf("Batch stopped after an error: %d of %d files completed.", completed, total))
		return err
	}
	if cancel.Cancelled() {
		return faults.Wrap(faults.ErrCancelled, "batch", "process", "processing cancelled", nil)
	}

	reporter.Item(report.ItemUpdate{
		ID:        opts.ItemID,
		Status:    report.ItemCompleted,
		Percent:   100,
		FileTotal: total,
	})
	return nil
}

func runTask(ctx context.Context, opts Options, task Task, total int, tracker *runstate.Tracker, active *runstate.ActiveCount) error {
	workDir, err := opts.Workspace.TaskDir(task.Index)
	if err != nil {
		return err
	}
	return opts.Run(ctx, pipeline.Request{
		HDRPath:          task.HDRPath,
		DVPath:           task.DVPath,
		HDR10PlusPath:    task.HDR10PlusPath,
		OutputPath:       task.OutputPath,
		WorkDir:          workDir,
		DVDelayMS:        opts.DVDelayMS,
		HDR10PlusDelayMS: opts.HDR10PlusDelayMS,
		KeepTemp:         opts.KeepTemp,
		Queue: &pipeline.QueueContext{
			ID:            opts.ItemID,
			Label:         task.Label,
			FileName:      task.FileName,
			FileIndex:     task.Index,
			FileTotal:     total,
			Tracker:       tracker,
			ActiveWorkers: active,
		},
	})
}
