package preflight

import (
	"context"

	"hybridmux/internal/config"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name   string
	Passed bool
	Detail string
}

// MinScratchBytes is the smallest scratch headroom a run starts with.
// Elementary streams and the injected intermediate can each approach the
// source size, so a near-full volume fails mid-pipeline otherwise.
const MinScratchBytes = 2 << 30

// RunAll executes all preflight checks for the given config.
func RunAll(ctx context.Context, cfg *config.Config) []Result {
	if cfg == nil {
		return nil
	}

	results := []Result{
		CheckDirectoryAccess("Scratch directory", cfg.Paths.ScratchDir),
		CheckDirectoryAccess("Output directory", cfg.Paths.DefaultOutput),
		CheckFreeSpace("Scratch free space", cfg.Paths.ScratchDir, MinScratchBytes),
	}

	if cfg.Logging.Dir != "" {
		results = append(results, CheckDirectoryAccess("Log directory", cfg.Logging.Dir))
	}

	for _, status := range CheckTools(ctx, cfg) {
		results = append(results, toolResult(status))
	}

	return results
}

// FirstFailure returns the first failed check, if any.
func FirstFailure(results []Result) (Result, bool) {
	for _, result := range results {
		if !result.Passed {
			return result, true
		}
	}
	return Result{}, false
}
