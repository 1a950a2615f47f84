package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"hybridmux/internal/controller"
	"hybridmux/internal/history"
	"hybridmux/internal/logging"
	"hybridmux/internal/report"
)

func newRunCommand(ctx *commandContext) *cobra.Command {
	var (
		hdr10plus    string
		output       string
		dvDelay      float64
		hdrPlusDelay float64
		keepTemp     bool
		parallel     int
	)

	cmd := &cobra.Command{
		Use:   "run <hdr-input> <dv-input>",
		Short: "Remux HDR10 and Dolby Vision sources into a hybrid output",
		Long: `Remux HDR10 and Dolby Vision sources into a single hybrid container.

Inputs are either two files (single mode) or two directories (batch mode).
In batch mode files are paired by release base name, falling back to sort
position when no name match exists.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			logger, err := ctx.newLogger()
			if err != nil {
				return err
			}

			var journal *history.Store
			journal, err = ctx.openJournal()
			if err != nil {
				logger.Warn("history unavailable, continuing without it", logging.Error(err))
				journal = nil
			}
			if journal != nil {
				defer journal.Close()
			}

			ctrl, err := controller.New(controller.Options{
				Config:   cfg,
				Logger:   logger,
				Reporter: report.NewLogReporter(logger),
				Journal:  journal,
			})
			if err != nil {
				return err
			}

			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
			defer signal.Stop(sigCh)
			go func() {
				if _, ok := <-sigCh; ok {
					fmt.Fprintln(cmd.ErrOrStderr(), "Cancellation requested, finishing current step...")
					ctrl.Cancel()
				}
			}()

			return ctrl.Run(cmd.Context(), controller.Request{
				HDRPath:          args[0],
				DVPath:           args[1],
				HDR10PlusPath:    hdr10plus,
				OutputPath:       output,
				DVDelayMS:        dvDelay,
				HDR10PlusDelayMS: hdrPlusDelay,
				KeepTemp:         keepTemp,
				Parallelism:      parallel,
			})
		},
	}

	cmd.Flags().StringVar(&hdr10plus, "hdr10plus", "", "HDR10+ metadata source file or directory")
	cmd.Flags().StringVarP(&output, "output", "o", "", "Output file (single mode) or directory (batch mode)")
	cmd.Flags().Float64Var(&dvDelay, "dv-delay", 0, "Dolby Vision sync offset in milliseconds")
	cmd.Flags().Float64Var(&hdrPlusDelay, "hdr10plus-delay", 0, "HDR10+ sync offset in milliseconds")
	cmd.Flags().BoolVar(&keepTemp, "keep-temp", false, "Keep intermediate files after processing")
	cmd.Flags().IntVarP(&parallel, "parallel", "p", 0, "Concurrent workers in batch mode (0 uses the configured value)")

	return cmd
}
