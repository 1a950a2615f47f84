// Package pipeline turns one HDR/DV source pair into a hybrid container by
// driving the six-step external tool sequence: audio demux, DV and HDR10
// stream extraction, RPU extraction, RPU injection, and the final mux.
//
// All analysis (frame rates, crop, delays) happens before the first process
// spawns, so incompatible pairs fail fast.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"

	"hybridmux/internal/faults"
	"hybridmux/internal/logging"
	"hybridmux/internal/media/mediainfo"
	"hybridmux/internal/media/mkvident"
	"hybridmux/internal/report"
	"hybridmux/internal/runner"
	"hybridmux/internal/runstate"
	"hybridmux/internal/staging"
)

// Tools holds the resolved external binary paths the pipeline invokes.
type Tools struct {
	DoviTool      string
	MKVMerge      string
	MKVExtract    string
	MediaInfo     string
	MP4Box        string
	HDR10PlusTool string
	FFmpeg        string
}

// QueueContext ties a pipeline run to its slot in a batch for shared
// progress accounting. A nil Tracker means the file's own progress doubles
// as the aggregate.
type QueueContext struct {
	ID            string
	Label         string
	FileName      string
	FileIndex     int
	FileTotal     int
	Tracker       *runstate.Tracker
	ActiveWorkers *runstate.ActiveCount
}

// Request describes one file pair to process.
type Request struct {
	HDRPath          string
	DVPath           string
	HDR10PlusPath    string // optional source for HDR10+ metadata
	OutputPath       string
	WorkDir          string // scratch directory for staged inputs and redirected output
	DVDelayMS        float64
	HDR10PlusDelayMS float64
	KeepTemp         bool
	Queue            *QueueContext
}

// ProbeFunc matches mediainfo.Probe. Injected in tests.
type ProbeFunc func(ctx context.Context, binary, path string) (mediainfo.VideoInfo, error)

// IdentifyFunc matches mkvident.DefaultDuration. Injected in tests.
type IdentifyFunc func(ctx context.Context, binary, path string) (string, error)

// Options configures a Pipeline.
type Options struct {
	Tools    Tools
	Runner   *runner.Runner
	Reporter report.Reporter
	Logger   *slog.Logger
	Cancel   *runstate.CancelFlag
	Probe    ProbeFunc
	Identify IdentifyFunc
}

// Pipeline executes the step sequence for file pairs.
type Pipeline struct {
	tools    Tools
	run      *runner.Runner
	reporter report.Reporter
	logger   *slog.Logger
	cancel   *runstate.CancelFlag
	probe    ProbeFunc
	identify IdentifyFunc
}

// New constructs a Pipeline, defaulting the probe and identify functions to
// the real tool invocations.
func New(opts Options) *Pipeline {
	if opts.Reporter == nil {
		opts.Reporter = report.Nop()
	}
	if opts.Logger == nil {
		opts.Logger = logging.NewNop()
	}
	if opts.Cancel == nil {
		opts.Cancel = runstate.NewCancelFlag()
	}
	if opts.Runner == nil {
		opts.Runner = runner.New(opts.Reporter, opts.Cancel, 0, opts.Logger)
	}
	if opts.Probe == nil {
		opts.Probe = mediainfo.Probe
	}
	if opts.Identify == nil {
		opts.Identify = mkvident.DefaultDuration
	}
	return &Pipeline{
		tools:    opts.Tools,
		run:      opts.Runner,
		reporter: opts.Reporter,
		logger:   opts.Logger,
		cancel:   opts.Cancel,
		probe:    opts.Probe,
		identify: opts.Identify,
	}
}

// Run processes one file pair end to end.
func (p *Pipeline) Run(ctx context.Context, req Request) error {
	if err := staging.EnsureReadable(req.HDRPath); err != nil {
		return err
	}
	if err := staging.EnsureReadable(req.DVPath); err != nil {
		return err
	}

	inputHDR := p.maybeStage(ctx, "HDR", req.HDRPath, req.WorkDir)
	inputDV := p.maybeStage(ctx, "DV", req.DVPath, req.WorkDir)

	outputPath, redirected := req.OutputPath, false
	if req.WorkDir != "" {
		outputPath, redirected = staging.PlanOutput(req.OutputPath, req.WorkDir)
	}
	if err := staging.EnsureWritable(outputPath); err != nil {
		if redirected || req.WorkDir == "" || !faults.Recoverable(err) {
			return err
		}
		workOutput := filepath.Join(req.WorkDir, filepath.Base(outputPath))
		p.reporter.Log(report.LevelWarning, fmt.Sprintf("Output folder not writable (%v). Using temp output: %s", err, workOutput))
		p.logger.Warn("output redirected to scratch",
			logging.String("output", outputPath),
			logging.String("work_output", workOutput),
			logging.Error(err),
		)
		outputPath = workOutput
		redirected = true
		if err := staging.EnsureWritable(outputPath); err != nil {
			return err
		}
	}

	temps := tempsFor(outputPath)
	tempFiles := []string{temps.AudioSubs, temps.DVHEVC, temps.HDR10HEVC, temps.DVHDR, temps.RPUBin}

	// Intermediates are removed on every exit, not just success; a failed
	// step must not strand partial streams beside the output.
	defer func() {
		if req.KeepTemp {
			return
		}
		for _, file := range tempFiles {
			os.Remove(file)
		}
		if inputHDR != req.HDRPath {
			os.Remove(inputHDR)
		}
		if inputDV != req.DVPath {
			os.Remove(inputDV)
		}
		p.reporter.Log(report.LevelInfo, "Temporary files cleaned up.")
	}()

	// The mux step reconstructs frame timing from the elementary stream,
	// which loses the container's exact default duration. Detect it up front
	// and reapply at mux time; the pipeline still works without it.
	var defaultDuration string
	if dur, err := p.identify(ctx, p.tools.MKVMerge, req.HDRPath); err == nil {
		defaultDuration = dur
		p.reporter.Log(report.LevelInfo, fmt.Sprintf("Detected video duration/fps: %s", dur))
	} else {
		p.reporter.Log(report.LevelWarning, fmt.Sprintf("Could not detect video FPS: %v. Defaulting to mkvmerge behavior.", err))
	}

	p.reporter.Log(report.LevelInfo, fmt.Sprintf("Processing: %s", req.OutputPath))

	hdrInfo, err := p.probe(ctx, p.tools.MediaInfo, inputHDR)
	if err != nil {
		return err
	}
	dvInfo, err := p.probe(ctx, p.tools.MediaInfo, inputDV)
	if err != nil {
		return err
	}
	if err := checkFrameRates(hdrInfo, dvInfo); err != nil {
		return err
	}

	crop := cropBetween(hdrInfo.Height, dvInfo.Height)
	if crop.Amount > 0 {
		if crop.Crop {
			p.reporter.Log(report.LevelInfo, fmt.Sprintf("Cropping needed - %d | HDR: %d | DV: %d", crop.Amount, hdrInfo.Height, dvInfo.Height))
		} else {
			p.reporter.Log(report.LevelInfo, fmt.Sprintf("Letterboxing needed - %d | HDR: %d | DV: %d", crop.Amount, hdrInfo.Height, dvInfo.Height))
		}
	}

	dvShift := shiftForDelay(req.DVDelayMS, hdrInfo.FPS)
	if !dvShift.empty() {
		p.reporter.Log(report.LevelInfo, fmt.Sprintf("Dolby Vision delay: %d frames", DelayToFrames(req.DVDelayMS, hdrInfo.FPS)))
	}

	p.announceStart(req.Queue)

	// Inputs already carrying a bare HEVC stream skip their demux slot.
	dvHEVCPath := temps.DVHEVC
	dvSpec := runner.Spec{ID: 2, Name: StepNames[1], Input: inputDV, Output: temps.DVHEVC, TrackProgress: true}
	if isElementaryHEVC(inputDV, dvInfo) {
		dvHEVCPath = inputDV
		dvSpec.Skip = true
	} else {
		dvSpec.Command, err = demuxCommand(p.tools, inputDV, temps.DVHEVC, dvInfo)
		if err != nil {
			return err
		}
	}

	hdrHEVCPath := temps.HDR10HEVC
	hdrSpec := runner.Spec{ID: 4, Name: StepNames[3], Input: inputHDR, Output: temps.HDR10HEVC, TrackProgress: true}
	if isElementaryHEVC(inputHDR, hdrInfo) {
		hdrHEVCPath = inputHDR
		hdrSpec.Skip = true
	} else {
		hdrSpec.Command, err = demuxCommand(p.tools, inputHDR, temps.HDR10HEVC, hdrInfo)
		if err != nil {
			return err
		}
	}

	if err := p.run.Run(ctx, runner.Spec{
		ID: 1, Name: StepNames[0],
		Input: inputHDR, Output: temps.AudioSubs, TrackProgress: true,
		Command: runner.Command{Binary: p.tools.MKVMerge, Args: []string{"-o", temps.AudioSubs, "--no-video", inputHDR}},
	}, p.progressFor(req.Queue, 0)); err != nil {
		return err
	}

	if err := p.run.Run(ctx, dvSpec, p.progressFor(req.Queue, 1)); err != nil {
		return err
	}

	if err := p.run.Run(ctx, runner.Spec{
		ID: 3, Name: StepNames[2],
		Input: dvHEVCPath, Output: temps.RPUBin,
		Command: runner.Command{Binary: p.tools.DoviTool, Args: []string{"-m", "3", "extract-rpu", dvHEVCPath, "-o", temps.RPUBin}},
	}, p.progressFor(req.Queue, 2)); err != nil {
		return err
	}

	rpuPath := temps.RPUBin
	if crop.Amount > 0 || !dvShift.empty() {
		if err := writeEditFile(temps.RPUJSON, buildRPUEdit(crop, dvShift)); err != nil {
			return err
		}
		p.reporter.Log(report.LevelInfo, "Editing RPU metadata...")
		if err := p.runQuiet(ctx, "rpu_edit", runner.Command{
			Binary: p.tools.DoviTool,
			Args:   []string{"editor", "-i", rpuPath, "-o", temps.RPUEdited, "-j", temps.RPUJSON},
		}); err != nil {
			return err
		}
		rpuPath = temps.RPUEdited
		tempFiles = append(tempFiles, temps.RPUJSON, temps.RPUEdited)
	}

	if err := p.run.Run(ctx, hdrSpec, p.progressFor(req.Queue, 3)); err != nil {
		return err
	}

	hdr10ForDV := hdrHEVCPath
	if req.HDR10PlusPath != "" {
		injected, extraTemps, err := p.applyHDR10Plus(ctx, req, outputPath, hdr10ForDV)
		tempFiles = append(tempFiles, extraTemps...)
		if err != nil {
			return err
		}
		hdr10ForDV = injected
	}

	if err := p.run.Run(ctx, runner.Spec{
		ID: 5, Name: StepNames[4],
		Input: hdr10ForDV, Output: temps.DVHDR,
		Command: runner.Command{Binary: p.tools.DoviTool, Args: []string{"inject-rpu", "-i", hdr10ForDV, "--rpu-in", rpuPath, "-o", temps.DVHDR}},
	}, p.progressFor(req.Queue, 4)); err != nil {
		return err
	}

	muxArgs := []string{"--ui-language", "en", "--no-date", "--output", outputPath}
	if defaultDuration != "" {
		muxArgs = append(muxArgs, "--default-duration", "0:"+defaultDuration)
	}
	muxArgs = append(muxArgs, temps.DVHDR, temps.AudioSubs)

	if err := p.run.Run(ctx, runner.Spec{
		ID: 6, Name: StepNames[5],
		Input: temps.DVHDR, Output: outputPath, TrackProgress: true,
		Command: runner.Command{Binary: p.tools.MKVMerge, Args: muxArgs},
	}, p.progressFor(req.Queue, 5)); err != nil {
		return err
	}

	if redirected {
		if err := staging.FinalizeOutput(outputPath, req.OutputPath); err != nil {
			p.reporter.Log(report.LevelError, fmt.Sprintf("Could not move output to %s (saved at %s): %v", req.OutputPath, outputPath, err))
			return err
		}
		p.reporter.Log(report.LevelInfo, fmt.Sprintf("Moved output to %s", req.OutputPath))
	}

	p.announceDone(req.Queue)
	return nil
}

// applyHDR10Plus carries HDR10+ dynamic metadata from its source into the
// HDR10 stream before RPU injection. Returns the injected stream path and
// the temp files it produced.
func (p *Pipeline) applyHDR10Plus(ctx context.Context, req Request, outputPath, hdr10Stream string) (string, []string, error) {
	var temps []string

	p.reporter.Log(report.LevelInfo, "Extracting HDR10+ metadata...")
	info, err := p.probe(ctx, p.tools.MediaInfo, req.HDR10PlusPath)
	if err != nil {
		return "", nil, err
	}

	sourceHEVC := req.HDR10PlusPath
	if !isElementaryHEVC(req.HDR10PlusPath, info) {
		demuxed := outputPath + "_hdr10plus.hevc"
		cmd, err := demuxCommand(p.tools, req.HDR10PlusPath, demuxed, info)
		if err != nil {
			return "", nil, err
		}
		temps = append(temps, demuxed)
		if err := p.runQuiet(ctx, "hdr10plus_demux", cmd); err != nil {
			return "", temps, err
		}
		sourceHEVC = demuxed
	}

	metadata := outputPath + "_hdr10plus.json"
	temps = append(temps, metadata)
	if err := p.runQuiet(ctx, "hdr10plus_extract", runner.Command{
		Binary: p.tools.HDR10PlusTool,
		Args:   []string{"extract", sourceHEVC, "-o", metadata},
	}); err != nil {
		return "", temps, err
	}

	metadataPath := metadata
	if shift := shiftForDelay(req.HDR10PlusDelayMS, info.FPS); !shift.empty() {
		edits := outputPath + "_hdr10plus_edits.json"
		edited := outputPath + "_hdr10plus_edited.json"
		temps = append(temps, edits, edited)
		if err := writeEditFile(edits, buildHDR10PlusEdit(shift)); err != nil {
			return "", temps, err
		}
		p.reporter.Log(report.LevelInfo, "Editing HDR10+ metadata...")
		if err := p.runQuiet(ctx, "hdr10plus_edit", runner.Command{
			Binary: p.tools.HDR10PlusTool,
			Args:   []string{"editor", metadata, "-j", edits, "-o", edited},
		}); err != nil {
			return "", temps, err
		}
		metadataPath = edited
	}

	p.reporter.Log(report.LevelInfo, "Injecting HDR10+ metadata...")
	injected := outputPath + "_hdr10plus_injected.hevc"
	temps = append(temps, injected)
	if err := p.runQuiet(ctx, "hdr10plus_inject", runner.Command{
		Binary: p.tools.HDR10PlusTool,
		Args:   []string{"inject", "-i", hdr10Stream, "-j", metadataPath, "-o", injected},
	}); err != nil {
		return "", temps, err
	}

	return injected, temps, nil
}

// runQuiet executes a helper command outside the numbered step sequence.
func (p *Pipeline) runQuiet(ctx context.Context, operation string, cmd runner.Command) error {
	if p.cancel.Cancelled() {
		return faults.Wrap(faults.ErrCancelled, "pipeline", operation, "processing cancelled", nil)
	}
	c := exec.CommandContext(ctx, cmd.Binary, cmd.Args...)
	if err := c.Run(); err != nil {
		if ctx.Err() != nil {
			return faults.Wrap(faults.ErrCancelled, "pipeline", operation, "processing cancelled", ctx.Err())
		}
		return faults.Wrap(faults.ErrStepExit, "pipeline", operation, fmt.Sprintf("%s failed", cmd.String()), err)
	}
	return nil
}

// maybeStage copies a remote or removable input into scratch when that is
// cheaper than repeated reads. Failure to stage falls back to the original
// path with a warning.
func (p *Pipeline) maybeStage(ctx context.Context, role, path, workDir string) string {
	if workDir == "" || !staging.ShouldStage(path) {
		return path
	}
	p.reporter.Log(report.LevelInfo, fmt.Sprintf("Staging %s input to temp: %s", role, path))
	staged, err := staging.StageInput(ctx, path, workDir)
	if err != nil {
		p.reporter.Log(report.LevelWarning, fmt.Sprintf("Failed to stage %s input (%v). Using original path.", role, err))
		return path
	}
	return staged
}

func (p *Pipeline) announceStart(q *QueueContext) {
	if q == nil {
		return
	}
	p.reporter.Item(report.ItemUpdate{
		ID:            q.ID,
		Status:        report.ItemProcessing,
		Percent:       0,
		CurrentStep:   q.Label,
		ActiveWorkers: workerCount(q),
		FileTotal:     q.FileTotal,
	})
	if q.FileName != "" {
		p.reporter.File(report.FileUpdate{
			ID:     fmt.Sprintf("%s:%d", q.ID, q.FileIndex),
			ItemID: q.ID,
			Name:   q.FileName,
		})
	}
}

func (p *Pipeline) announceDone(q *QueueContext) {
	if q == nil {
		return
	}
	// In batch mode the worker pool owns the item-level terminal update;
	// one finished file must not mark the whole item completed.
	if q.Tracker != nil && q.FileTotal > 1 {
		return
	}
	p.reporter.Item(report.ItemUpdate{
		ID:        q.ID,
		Status:    report.ItemCompleted,
		Percent:   100,
		FileTotal: q.FileTotal,
	})
}

// progressFor builds the step progress callback that folds a step percent
// into per-file and aggregate numbers for one batch slot.
func (p *Pipeline) progressFor(q *QueueContext, stepIndex int) runner.ProgressFunc {
	if q == nil {
		return nil
	}
	stepName := StepNames[stepIndex]
	return func(stepPercent int) {
		filePct := fileProgress(stepIndex, stepPercent)

		aggregate := filePct
		if q.Tracker != nil {
			aggregate = q.Tracker.Update(q.FileIndex, filePct)
		}

		stepLabel := stepName
		if q.Label != "" {
			stepLabel = q.Label + " - " + stepName
		}

		p.reporter.Item(report.ItemUpdate{
			ID:            q.ID,
			Status:        report.ItemProcessing,
			Percent:       aggregate,
			CurrentStep:   stepLabel,
			ActiveWorkers: workerCount(q),
			FileTotal:     q.FileTotal,
		})

		if q.FileName != "" {
			p.reporter.File(report.FileUpdate{
				ID:      fmt.Sprintf("%s:%d", q.ID, q.FileIndex),
				ItemID:  q.ID,
				Name:    q.FileName,
				Percent: filePct,
			})
		}
	}
}

func workerCount(q *QueueContext) int {
	if q.ActiveWorkers == nil {
		return report.WorkersUnknown
	}
	return q.ActiveWorkers.Value()
}
