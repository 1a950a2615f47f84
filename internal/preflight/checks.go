package preflight

import (
	"context"
	"fmt"
	"os"

	"golang.org/x/sys/unix"

	"hybridmux/internal/config"
	"hybridmux/internal/deps"
)

// CheckDirectoryAccess verifies that the directory exists (creating it when
// missing) and is readable, writable, and traversable.
func CheckDirectoryAccess(name, path string) Result {
	if path == "" {
		return Result{Name: name, Detail: "not configured"}
	}
	info, err := os.Stat(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return Result{Name: name, Detail: fmt.Sprintf("%s (error: stat: %v)", path, err)}
		}
		if err := os.MkdirAll(path, 0o755); err != nil {
			return Result{Name: name, Detail: fmt.Sprintf("%s (error: cannot create: %v)", path, err)}
		}
		info, err = os.Stat(path)
		if err != nil {
			return Result{Name: name, Detail: fmt.Sprintf("%s (error: stat: %v)", path, err)}
		}
	}
	if !info.IsDir() {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: is not a directory)", path)}
	}
	if err := unix.Access(path, unix.R_OK|unix.W_OK|unix.X_OK); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: insufficient permissions: %v)", path, err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (read/write ok)", path)}
}

// CheckFreeSpace verifies the filesystem holding path has at least minBytes
// available.
func CheckFreeSpace(name, path string, minBytes uint64) Result {
	if path == "" {
		return Result{Name: name, Detail: "not configured"}
	}
	var stat unix.Statfs_t
	if err := unix.Statfs(path, &stat); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: statfs: %v)", path, err)}
	}
	free := stat.Bavail * uint64(stat.Bsize)
	if free < minBytes {
		return Result{Name: name, Detail: fmt.Sprintf("%s (%d MiB free, need %d MiB)", path, free>>20, minBytes>>20)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (%d MiB free)", path, free>>20)}
}

// CheckTools evaluates the configured external binaries.
func CheckTools(ctx context.Context, cfg *config.Config) []deps.Status {
	_ = ctx
	return deps.CheckBinaries(cfg.Paths.ResourceDir, deps.Requirements(cfg.Tools))
}

func toolResult(status deps.Status) Result {
	name := "Tool: " + status.Name
	if status.Available {
		return Result{Name: name, Passed: true, Detail: status.Command}
	}
	if status.Optional {
		return Result{Name: name, Passed: true, Detail: fmt.Sprintf("optional, %s", status.Detail)}
	}
	return Result{Name: name, Detail: status.Detail}
}
