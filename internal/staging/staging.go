// Package staging manages the scratch workspace for pipeline runs: per-task
// work directories, input staging for sources on slow or removable volumes,
// output redirection, and cleanup of leftover directories.
package staging

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"hybridmux/internal/faults"
	"hybridmux/internal/fileutil"
)

// RunDirPrefix names run-scoped scratch directories so cleanup can tell them
// apart from foreign entries in a shared scratch root.
const RunDirPrefix = "run-"

// Workspace is the scratch layout for one run.
type Workspace struct {
	Root   string
	RunDir string
}

// NewWorkspace creates the scratch directory for a run.
func NewWorkspace(scratchRoot, runID string) (Workspace, error) {
	runDir := filepath.Join(scratchRoot, RunDirPrefix+runID)
	if err := os.MkdirAll(runDir, 0o755); err != nil {
		return Workspace{}, faults.Wrap(faults.ErrStaging, "staging", "workspace", "cannot create scratch directory", err)
	}
	return Workspace{Root: scratchRoot, RunDir: runDir}, nil
}

// TaskDir creates and returns the work directory for one task.
func (w Workspace) TaskDir(index int) (string, error) {
	dir := filepath.Join(w.RunDir, fmt.Sprintf("task-%03d", index))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", faults.Wrap(faults.ErrStaging, "staging", "task_dir", "cannot create task directory", err)
	}
	return dir, nil
}

// Remove deletes the run's scratch directory tree. Best effort.
func (w Workspace) Remove() {
	if w.RunDir != "" {
		os.RemoveAll(w.RunDir)
	}
}

// ShouldStage reports whether an input path should be copied into scratch
// before processing. On Windows, sources on UNC shares or drives other than
// the system drive read slowly enough during repeated extraction passes that
// a local copy wins; elsewhere inputs process in place.
func ShouldStage(path string) bool {
	if runtime.GOOS != "windows" {
		return false
	}
	volume := filepath.VolumeName(path)
	if volume == "" {
		return false
	}
	if strings.HasPrefix(volume, `\\`) {
		return true
	}
	return !strings.EqualFold(volume, "C:")
}

// StageInput copies src into the task directory and returns the staged path.
func StageInput(ctx context.Context, src, taskDir string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", faults.Wrap(faults.ErrCancelled, "staging", "stage_input", "staging cancelled", err)
	}
	dst := filepath.Join(taskDir, filepath.Base(src))
	if err := fileutil.CopyFileVerified(src, dst); err != nil {
		return "", faults.Wrap(faults.ErrStaging, "staging", "stage_input", fmt.Sprintf("cannot stage %s", src), err)
	}
	return dst, nil
}

// EnsureReadable verifies the input exists and opens for reading.
func EnsureReadable(path string) error {
	if _, err := os.Stat(path); err != nil {
		return faults.Wrap(faults.ErrStaging, "staging", "ensure_readable", fmt.Sprintf("input not found: %s", path), err)
	}
	f, err := os.Open(path)
	if err != nil {
		return faults.Wrap(faults.ErrStaging, "staging", "ensure_readable", fmt.Sprintf("cannot read %s", path), err)
	}
	f.Close()
	return nil
}

// EnsureWritable verifies the output's parent directory can be created and
// written to by probing with a marker file.
func EnsureWritable(path string) error {
	parent := filepath.Dir(path)
	if parent == "" || parent == "." {
		return faults.Wrap(faults.ErrOutputUnwritable, "staging", "ensure_writable", fmt.Sprintf("invalid output path: %s", path), nil)
	}
	if err := os.MkdirAll(parent, 0o755); err != nil {
		return faults.Wrap(faults.ErrOutputUnwritable, "staging", "ensure_writable", fmt.Sprintf("cannot create %s", parent), err)
	}
	marker := filepath.Join(parent, fmt.Sprintf(".write_test_%d.tmp", os.Getpid()))
	f, err := os.OpenFile(marker, os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return faults.Wrap(faults.ErrOutputUnwritable, "staging", "ensure_writable", fmt.Sprintf("cannot write to %s", parent), err)
	}
	f.Close()
	os.Remove(marker)
	return nil
}

// PlanOutput decides where the pipeline muxes its final container. When the
// destination volume calls for staging, the mux lands in the task directory
// and FinalizeOutput moves it afterwards.
func PlanOutput(finalPath, taskDir string) (workPath string, redirected bool) {
	if !ShouldStage(finalPath) {
		return finalPath, false
	}
	return filepath.Join(taskDir, filepath.Base(finalPath)), true
}

// FinalizeOutput moves a redirected output from scratch to its destination.
func FinalizeOutput(workPath, finalPath string) error {
	if workPath == finalPath {
		return nil
	}
	if err := EnsureWritable(finalPath); err != nil {
		return err
	}
	if err := fileutil.MoveFile(workPath, finalPath); err != nil {
		return faults.Wrap(faults.ErrOutputUnwritable, "staging", "finalize_output", fmt.Sprintf("cannot move output to %s", finalPath), err)
	}
	return nil
}
