package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"hybridmux/internal/logging"
	"hybridmux/internal/staging"
)

func newScratchCommand(ctx *commandContext) *cobra.Command {
	scratchCmd := &cobra.Command{
		Use:   "scratch",
		Short: "Manage scratch run directories",
	}

	scratchCmd.AddCommand(newScratchListCommand(ctx))
	scratchCmd.AddCommand(newScratchCleanCommand(ctx))

	return scratchCmd
}

func newScratchListCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List scratch run directories",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}

			scratchDir := strings.TrimSpace(cfg.Paths.ScratchDir)
			if scratchDir == "" {
				fmt.Fprintln(cmd.OutOrStdout(), "Scratch directory not configured")
				return nil
			}

			dirs, err := staging.ListDirectories(scratchDir)
			if err != nil {
				return fmt.Errorf("list scratch directories: %w", err)
			}

			out := cmd.OutOrStdout()
			if len(dirs) == 0 {
				fmt.Fprintln(out, "No scratch run directories found")
				return nil
			}

			fmt.Fprintf(out, "Scratch directory: %s\n\n", scratchDir)

			var totalSize int64
			rows := make([][]string, 0, len(dirs))
			for _, dir := range dirs {
				age := time.Since(dir.ModTime).Truncate(time.Minute)
				totalSize += dir.Size
				runID := strings.TrimPrefix(dir.Name, staging.RunDirPrefix)
				rows = append(rows, []string{shortID(runID), formatAge(age), logging.FormatBytes(dir.Size)})
			}

			fmt.Fprint(out, renderTable(
				[]string{"Run", "Age", "Size"},
				rows,
				[]columnAlignment{alignLeft, alignRight, alignRight},
			))
			fmt.Fprintf(out, "\nTotal: %d directories, %s\n", len(dirs), logging.FormatBytes(totalSize))
			return nil
		},
	}
}

func newScratchCleanCommand(ctx *commandContext) *cobra.Command {
	var (
		cleanAll  bool
		olderThan time.Duration
	)

	cmd := &cobra.Command{
		Use:   "clean",
		Short: "Remove leftover scratch run directories",
		Long: `Remove scratch run directories left behind by crashed or killed runs.

By default only directories older than the --older-than threshold are removed,
so a run in progress keeps its scratch space. Use --all to remove every run
directory regardless of age.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}

			scratchDir := strings.TrimSpace(cfg.Paths.ScratchDir)
			if scratchDir == "" {
				fmt.Fprintln(cmd.OutOrStdout(), "Scratch directory not configured")
				return nil
			}

			logger, err := ctx.newLogger()
			if err != nil {
				return err
			}

			var result staging.CleanResult
			scope := "stale"
			if cleanAll {
				// No daemon holds run state between invocations, so outside a
				// live run every directory is orphaned.
				result = staging.CleanOrphaned(cmd.Context(), scratchDir, nil, logger)
				scope = "scratch"
			} else {
				result = staging.CleanStale(cmd.Context(), scratchDir, olderThan, logger)
			}
			return printScratchCleanResult(cmd, result, scope)
		},
	}

	cmd.Flags().BoolVar(&cleanAll, "all", false, "Remove all run directories regardless of age")
	cmd.Flags().DurationVar(&olderThan, "older-than", 24*time.Hour, "Minimum age before a directory is considered stale")

	return cmd
}

func printScratchCleanResult(cmd *cobra.Command, result staging.CleanResult, scope string) error {
	out := cmd.OutOrStdout()
	if len(result.Removed) == 0 && len(result.Errors) == 0 {
		fmt.Fprintf(out, "No %s directories to clean\n", scope)
		return nil
	}
	if len(result.Errors) > 0 {
		fmt.Fprintf(out, "Removed %d %s directories, %d errors\n", len(result.Removed), scope, len(result.Errors))
		for _, e := range result.Errors {
			fmt.Fprintf(out, "  Error: %s: %v\n", e.Path, e.Error)
		}
		return nil
	}
	fmt.Fprintf(out, "Removed %d %s directories\n", len(result.Removed), scope)
	return nil
}

func formatAge(d time.Duration) string {
	if d < time.Hour {
		return fmt.Sprintf("%dm", int(d.Minutes()))
	}
	if d < 24*time.Hour {
		return fmt.Sprintf("%dh", int(d.Hours()))
	}
	return fmt.Sprintf("%dd", int(d.Hours()/24))
}
