package pipeline

import (
	"fmt"
	"math"
	"path/filepath"
	"strings"

	"hybridmux/internal/faults"
	"hybridmux/internal/media/mediainfo"
	"hybridmux/internal/runner"
)

// StepNames lists the six pipeline steps in execution order.
var StepNames = [6]string{
	"Extract Audio & Subtitles",
	"Extract DV Video",
	"Extract RPU Data",
	"Extract HDR10 Video",
	"Inject RPU Data",
	"Mux Final Output",
}

// TotalSteps is the fixed plan length. Skipped steps still occupy their slot
// so file progress stays proportional.
const TotalSteps = len(StepNames)

// fpsEpsilon bounds the allowed frame-rate difference between the DV and HDR
// sources. Streams with genuinely different rates cannot share RPU timing.
const fpsEpsilon = 0.001

// tempSet holds the intermediate artifact paths derived from the output path.
type tempSet struct {
	AudioSubs string
	DVHEVC    string
	HDR10HEVC string
	DVHDR     string
	RPUBin    string
	RPUJSON   string
	RPUEdited string
}

func tempsFor(outputPath string) tempSet {
	return tempSet{
		AudioSubs: outputPath + "_audiosubs.mka",
		DVHEVC:    outputPath + "_dv.hevc",
		HDR10HEVC: outputPath + "_hdr10.hevc",
		DVHDR:     outputPath + "_dv_hdr.hevc",
		RPUBin:    outputPath + "_rpu.bin",
		RPUJSON:   outputPath + "_rpu.json",
		RPUEdited: outputPath + "_rpu_edited.bin",
	}
}

// cropPlan captures the vertical active-area adjustment between sources.
// When the HDR encode is taller, the difference is cropped; when shorter, the
// DV metadata is letterboxed by the same amount.
type cropPlan struct {
	Crop   bool
	Amount int
}

func cropBetween(hdrHeight, dvHeight int) cropPlan {
	if hdrHeight == dvHeight {
		return cropPlan{}
	}
	if hdrHeight < dvHeight {
		return cropPlan{Amount: (dvHeight - hdrHeight) / 2}
	}
	return cropPlan{Crop: true, Amount: (hdrHeight - dvHeight) / 2}
}

// DelayToFrames converts a delay in milliseconds to a whole frame count at
// the given frame rate.
func DelayToFrames(delayMS, fps float64) int {
	return int(math.Round(math.Abs(delayMS) * fps / 1000.0))
}

// frameShift is a delay expressed as metadata edits: leading frames to drop
// for a negative delay, or frames to duplicate at the head for a positive one.
type frameShift struct {
	RemoveRange     string
	DuplicateLength int
}

func shiftForDelay(delayMS, fps float64) frameShift {
	if math.Abs(delayMS) <= epsilonMS {
		return frameShift{}
	}
	frames := DelayToFrames(delayMS, fps)
	if delayMS < 0 && frames > 0 {
		return frameShift{RemoveRange: fmt.Sprintf("0-%d", frames-1)}
	}
	if delayMS > 0 {
		return frameShift{DuplicateLength: frames}
	}
	return frameShift{}
}

const epsilonMS = 2.220446049250313e-16

func (s frameShift) empty() bool {
	return s.RemoveRange == "" && s.DuplicateLength == 0
}

func checkFrameRates(hdr, dv mediainfo.VideoInfo) error {
	if math.Abs(hdr.FPS-dv.FPS) > fpsEpsilon {
		return faults.Wrap(faults.ErrFrameRateMismatch, "pipeline", "analyze",
			fmt.Sprintf("Frame rate mismatch - DV: %.3f | HDR: %.3f", dv.FPS, hdr.FPS), nil)
	}
	return nil
}

func isMP4Container(path string) bool {
	switch strings.ToLower(strings.TrimPrefix(filepath.Ext(path), ".")) {
	case "mp4", "mov", "m4v":
		return true
	}
	return false
}

func isHEVCFile(path string) bool {
	switch strings.ToLower(strings.TrimPrefix(filepath.Ext(path), ".")) {
	case "hevc", "h265":
		return true
	}
	return false
}

// isElementaryHEVC reports whether the input is already a bare HEVC stream,
// making its demux step a no-op.
func isElementaryHEVC(path string, info mediainfo.VideoInfo) bool {
	return isHEVCFile(path) && info.IsHEVC()
}

// demuxCommand builds the extraction command for one video stream: MP4Box
// for MP4-family containers, mkvextract for everything else. Without MP4Box,
// ffmpeg extracts the annex-B stream instead.
func demuxCommand(tools Tools, input, output string, info mediainfo.VideoInfo) (runner.Command, error) {
	if isMP4Container(input) {
		if strings.TrimSpace(tools.MP4Box) == "" {
			if strings.TrimSpace(tools.FFmpeg) == "" {
				return runner.Command{}, faults.Wrap(faults.ErrProbe, "pipeline", "demux",
					fmt.Sprintf("neither MP4Box nor ffmpeg available to demux %s", input), nil)
			}
			return runner.Command{
				Binary: tools.FFmpeg,
				Args: []string{"-y", "-i", input, "-map", "0:v:0", "-c:v", "copy",
					"-bsf:v", "hevc_mp4toannexb", "-f", "hevc", output},
			}, nil
		}
		if !info.HasTrackID {
			return runner.Command{}, faults.Wrap(faults.ErrProbe, "pipeline", "demux",
				fmt.Sprintf("missing track ID for MP4Box demux of %s", input), nil)
		}
		return runner.Command{
			Binary: tools.MP4Box,
			Args:   []string{"-raw", fmt.Sprintf("%d", info.TrackID), "-out", output, input},
		}, nil
	}
	return runner.Command{
		Binary: tools.MKVExtract,
		Args:   []string{input, "tracks", "0:" + output},
	}, nil
}

// fileProgress folds a step percentage into whole-file progress: completed
// steps weigh equally and the active step contributes proportionally.
func fileProgress(stepIndex, stepPercent int) int {
	return int(math.Round((float64(stepIndex) + float64(stepPercent)/100.0) / float64(TotalSteps) * 100.0))
}
