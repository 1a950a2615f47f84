// Package runner executes a single pipeline step as an external process,
// deriving progress from output-file growth and honoring cooperative
// cancellation between polls.
package runner

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"time"

	"hybridmux/internal/faults"
	"hybridmux/internal/logging"
	"hybridmux/internal/report"
	"hybridmux/internal/runstate"
)

// DefaultPollInterval is the wait between child status and progress polls.
const DefaultPollInterval = 500 * time.Millisecond

// Tools never report their own progress here; a step's percent follows the
// output file's size relative to its input, capped below completion because
// size ratio is only a proxy.
const progressCap = 95

// Command is one external tool invocation.
type Command struct {
	Binary string
	Args   []string
}

func (c Command) String() string {
	if len(c.Args) == 0 {
		return c.Binary
	}
	return c.Binary + " " + strings.Join(c.Args, " ")
}

// Spec describes one step of a pipeline plan.
type Spec struct {
	ID            int // 1-based display identifier
	Name          string
	Input         string // progress baseline and error context
	Output        string // polled for growth when TrackProgress is set
	TrackProgress bool
	Skip          bool // counted as instantly complete, no process spawned
	Command       Command
}

// ProgressFunc receives step percentages as they change. The pipeline folds
// them into per-file and aggregate numbers.
type ProgressFunc func(stepPercent int)

// Runner executes steps against a shared cancel flag and reporter.
type Runner struct {
	reporter     report.Reporter
	cancel       *runstate.CancelFlag
	pollInterval time.Duration
	logger       *slog.Logger
}

// New constructs a Runner. A zero pollInterval falls back to the default.
func New(reporter report.Reporter, cancel *runstate.CancelFlag, pollInterval time.Duration, logger *slog.Logger) *Runner {
	if reporter == nil {
		reporter = report.Nop()
	}
	if pollInterval <= 0 {
		pollInterval = DefaultPollInterval
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Runner{reporter: reporter, cancel: cancel, pollInterval: pollInterval, logger: logger}
}

// Run executes one step to completion. Skipped steps complete immediately at
// 100 percent so downstream progress math stays aligned with the plan length.
func (r *Runner) Run(ctx context.Context, spec Spec, onProgress ProgressFunc) error {
	if r.cancel.Cancelled() || ctx.Err() != nil {
		return faults.Wrap(faults.ErrCancelled, "runner", "run", "processing cancelled", ctx.Err())
	}

	if spec.Skip {
		r.reporter.Step(report.StepUpdate{ID: spec.ID, Name: spec.Name, Status: report.StepCompleted, Percent: 100})
		if onProgress != nil {
			onProgress(100)
		}
		r.logger.Info("step skipped",
			logging.String(logging.FieldStep, spec.Name),
			logging.String(logging.FieldEventType, "step_skipped"),
		)
		return nil
	}

	r.reporter.Step(report.StepUpdate{ID: spec.ID, Name: spec.Name, Status: report.StepActive, Percent: 0})
	r.reporter.Log(report.LevelInfo, fmt.Sprintf("Step %d: %s", spec.ID, spec.Name))
	r.logger.Info("step started",
		logging.String(logging.FieldStep, spec.Name),
		logging.String("command", spec.Command.String()),
		logging.String(logging.FieldEventType, "step_started"),
	)

	cmd := exec.Command(spec.Command.Binary, spec.Command.Args...)
	if err := cmd.Start(); err != nil {
		r.reporter.Step(report.StepUpdate{ID: spec.ID, Name: spec.Name, Status: report.StepError, Percent: 0})
		r.reporter.Log(report.LevelError, fmt.Sprintf("Step %s failed to start: %v (input: %s, output: %s)", spec.Name, err, spec.Input, spec.Output))
		return faults.Wrap(faults.ErrStepSpawn, "runner", spec.Name,
			fmt.Sprintf("step failed to start (input: %s, output: %s)", spec.Input, spec.Output), err)
	}

	inputSize := int64(1)
	if info, err := os.Stat(spec.Input); err == nil && info.Size() > 0 {
		inputSize = info.Size()
	}

	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()

	ticker := time.NewTicker(r.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case err := <-done:
			if err != nil {
				r.reporter.Step(report.StepUpdate{ID: spec.ID, Name: spec.Name, Status: report.StepError, Percent: 0})
				if onProgress != nil {
					onProgress(0)
				}
				r.reporter.Log(report.LevelError, fmt.Sprintf("Step failed: %s", spec.Name))
				r.logger.Error("step failed",
					logging.String(logging.FieldStep, spec.Name),
					logging.String("input", spec.Input),
					logging.String("output", spec.Output),
					logging.Error(err),
					logging.String(logging.FieldEventType, "step_failed"),
				)
				return faults.Wrap(faults.ErrStepExit, "runner", spec.Name,
					fmt.Sprintf("step failed (input: %s, output: %s)", spec.Input, spec.Output), err)
			}
			r.reporter.Step(report.StepUpdate{ID: spec.ID, Name: spec.Name, Status: report.StepCompleted, Percent: 100})
			if onProgress != nil {
				onProgress(100)
			}
			r.reporter.Log(report.LevelSuccess, fmt.Sprintf("Step completed: %s", spec.Name))
			r.logger.Info("step completed",
				logging.String(logging.FieldStep, spec.Name),
				logging.String(logging.FieldEventType, "step_completed"),
			)
			return nil

		case <-ctx.Done():
			r.kill(cmd, done)
			return faults.Wrap(faults.ErrCancelled, "runner", spec.Name, "processing cancelled", ctx.Err())

		case <-ticker.C:
			if r.cancel.Cancelled() {
				r.kill(cmd, done)
				return faults.Wrap(faults.ErrCancelled, "runner", spec.Name, "processing cancelled", nil)
			}
			if !spec.TrackProgress {
				continue
			}
			info, err := os.Stat(spec.Output)
			if err != nil {
				continue
			}
			percent := sizePercent(info.Size(), inputSize)
			r.reporter.Step(report.StepUpdate{ID: spec.ID, Name: spec.Name, Status: report.StepActive, Percent: percent})
			if onProgress != nil {
				onProgress(percent)
			}
		}
	}
}

func (r *Runner) kill(cmd *exec.Cmd, done chan error) {
	if cmd.Process != nil {
		_ = cmd.Process.Kill()
	}
	<-done
}

func sizePercent(outSize, inSize int64) int {
	percent := float64(outSize) / float64(inSize) * 100
	if percent > progressCap {
		return progressCap
	}
	if percent < 0 {
		return 0
	}
	return int(percent)
}
