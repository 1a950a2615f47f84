package main

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"hybridmux/internal/history"
)

func newHistoryCommand(ctx *commandContext) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "history [run-id]",
		Short: "Show recent runs, or the per-file results of one run",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			journal, err := ctx.openJournal()
			if err != nil {
				return fmt.Errorf("open history: %w", err)
			}
			if journal == nil {
				fmt.Fprintln(cmd.OutOrStdout(), "History is disabled in the configuration.")
				return nil
			}
			defer journal.Close()

			if len(args) == 1 {
				return printRunFiles(cmd, journal, args[0])
			}
			return printRecentRuns(cmd, journal, limit)
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum number of runs to list")
	return cmd
}

func printRecentRuns(cmd *cobra.Command, journal *history.Store, limit int) error {
	runs, err := journal.Recent(cmd.Context(), limit)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if len(runs) == 0 {
		fmt.Fprintln(out, "No runs recorded yet.")
		return nil
	}

	rows := make([][]string, 0, len(runs))
	for _, run := range runs {
		rows = append(rows, []string{
			shortID(run.ID),
			run.StartedAt.Local().Format("2006-01-02 15:04"),
			run.Mode,
			run.Status,
			strconv.Itoa(run.FileTotal),
			formatRunDuration(run),
			run.OutputPath,
		})
	}
	fmt.Fprintln(out, renderTable(
		[]string{"Run", "Started", "Mode", "Status", "Files", "Duration", "Output"},
		rows,
		[]columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft, alignRight, alignRight, alignLeft},
	))
	return nil
}

func printRunFiles(cmd *cobra.Command, journal *history.Store, runID string) error {
	id, err := resolveRunID(cmd, journal, runID)
	if err != nil {
		return err
	}
	files, err := journal.Files(cmd.Context(), id)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if len(files) == 0 {
		fmt.Fprintf(out, "No files recorded for run %s.\n", shortID(id))
		return nil
	}

	rows := make([][]string, 0, len(files))
	for _, file := range files {
		detail := file.OutputPath
		if file.Error != "" {
			detail = file.Error
		}
		rows = append(rows, []string{
			strconv.Itoa(file.Index + 1),
			file.Title,
			file.Name,
			file.Status,
			detail,
		})
	}
	fmt.Fprintln(out, renderTable(
		[]string{"#", "Title", "Source", "Status", "Output / Error"},
		rows,
		[]columnAlignment{alignRight, alignLeft, alignLeft, alignLeft, alignLeft},
	))
	return nil
}

// resolveRunID accepts either a full run UUID or the shortened prefix the
// list view prints.
func resolveRunID(cmd *cobra.Command, journal *history.Store, runID string) (string, error) {
	if len(runID) >= 36 {
		return runID, nil
	}
	runs, err := journal.Recent(cmd.Context(), 100)
	if err != nil {
		return "", err
	}
	for _, run := range runs {
		if shortID(run.ID) == runID || run.ID == runID {
			return run.ID, nil
		}
	}
	return "", fmt.Errorf("no run found matching %q", runID)
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func formatRunDuration(run history.Run) string {
	if run.FinishedAt.IsZero() || run.StartedAt.IsZero() {
		return ""
	}
	return run.FinishedAt.Sub(run.StartedAt).Round(time.Second).String()
}
