package pipeline

import (
	"errors"
	"strings"
	"testing"

	"hybridmux/internal/faults"
	"hybridmux/internal/media/mediainfo"
)

func TestDelayToFrames(t *testing.T) {
	cases := []struct {
		delayMS float64
		fps     float64
		want    int
	}{
		{1000, 23.976, 24},
		{-1000, 23.976, 24},
		{41.7, 23.976, 1},
		{0, 23.976, 0},
		{500, 60, 30},
	}
	for _, tc := range cases {
		if got := DelayToFrames(tc.delayMS, tc.fps); got != tc.want {
			t.Errorf("DelayToFrames(%v, %v) = %d, want %d", tc.delayMS, tc.fps, got, tc.want)
		}
	}
}

func TestShiftForDelay(t *testing.T) {
	shift := shiftForDelay(-1000, 24)
	if shift.RemoveRange != "0-23" || shift.DuplicateLength != 0 {
		t.Fatalf("negative delay shift = %#v", shift)
	}

	shift = shiftForDelay(1000, 24)
	if shift.RemoveRange != "" || shift.DuplicateLength != 24 {
		t.Fatalf("positive delay shift = %#v", shift)
	}

	if !shiftForDelay(0, 24).empty() {
		t.Fatal("zero delay should produce empty shift")
	}
}

func TestCropBetween(t *testing.T) {
	if plan := cropBetween(2160, 2160); plan.Crop || plan.Amount != 0 {
		t.Fatalf("equal heights = %#v", plan)
	}

	// HDR taller than DV: crop the difference
	plan := cropBetween(2160, 1608)
	if !plan.Crop || plan.Amount != 276 {
		t.Fatalf("crop plan = %#v", plan)
	}

	// HDR shorter than DV: letterbox
	plan = cropBetween(1608, 2160)
	if plan.Crop || plan.Amount != 276 {
		t.Fatalf("letterbox plan = %#v", plan)
	}
}

func TestCheckFrameRates(t *testing.T) {
	hdr := mediainfo.VideoInfo{FPS: 23.976}
	dv := mediainfo.VideoInfo{FPS: 23.976}
	if err := checkFrameRates(hdr, dv); err != nil {
		t.Fatalf("matching rates: %v", err)
	}

	dv.FPS = 23.9765
	if err := checkFrameRates(hdr, dv); err != nil {
		t.Fatalf("within epsilon: %v", err)
	}

	dv.FPS = 24.0
	err := checkFrameRates(hdr, dv)
	if !errors.Is(err, faults.ErrFrameRateMismatch) {
		t.Fatalf("error = %v, want ErrFrameRateMismatch", err)
	}
}

func TestDemuxCommand(t *testing.T) {
	tools := Tools{MKVExtract: "mkvextract", MP4Box: "MP4Box", FFmpeg: "ffmpeg"}
	info := mediainfo.VideoInfo{TrackID: 1, HasTrackID: true}

	cmd, err := demuxCommand(tools, "/in/movie.mkv", "/tmp/out.hevc", info)
	if err != nil {
		t.Fatalf("mkv demux: %v", err)
	}
	if cmd.Binary != "mkvextract" {
		t.Fatalf("binary = %q", cmd.Binary)
	}
	if cmd.Args[len(cmd.Args)-1] != "0:/tmp/out.hevc" {
		t.Fatalf("args = %v", cmd.Args)
	}

	cmd, err = demuxCommand(tools, "/in/movie.mp4", "/tmp/out.hevc", info)
	if err != nil {
		t.Fatalf("mp4 demux: %v", err)
	}
	if cmd.Binary != "MP4Box" {
		t.Fatalf("binary = %q", cmd.Binary)
	}

	info.HasTrackID = false
	if _, err := demuxCommand(tools, "/in/movie.mp4", "/tmp/out.hevc", info); err == nil {
		t.Fatal("expected error for MP4 demux without track ID")
	}
}

func TestDemuxCommandFFmpegFallback(t *testing.T) {
	tools := Tools{MKVExtract: "mkvextract", FFmpeg: "ffmpeg"}
	info := mediainfo.VideoInfo{TrackID: 1, HasTrackID: true}

	cmd, err := demuxCommand(tools, "/in/movie.mp4", "/tmp/out.hevc", info)
	if err != nil {
		t.Fatalf("mp4 demux without MP4Box: %v", err)
	}
	if cmd.Binary != "ffmpeg" {
		t.Fatalf("binary = %q, want ffmpeg", cmd.Binary)
	}
	joined := strings.Join(cmd.Args, " ")
	if !strings.Contains(joined, "hevc_mp4toannexb") {
		t.Fatalf("expected annex-B bitstream filter, args = %v", cmd.Args)
	}
	if cmd.Args[len(cmd.Args)-1] != "/tmp/out.hevc" {
		t.Fatalf("expected output as final argument, args = %v", cmd.Args)
	}

	tools.FFmpeg = ""
	if _, err := demuxCommand(tools, "/in/movie.mp4", "/tmp/out.hevc", info); err == nil {
		t.Fatal("expected error when no MP4 demuxer is available")
	}
}

func TestIsElementaryHEVC(t *testing.T) {
	hevcInfo := mediainfo.VideoInfo{Format: "HEVC"}
	if !isElementaryHEVC("/in/video.hevc", hevcInfo) {
		t.Fatal("expected .hevc with HEVC format to be elementary")
	}
	if !isElementaryHEVC("/in/video.H265", hevcInfo) {
		t.Fatal("extension match should be case-insensitive")
	}
	if isElementaryHEVC("/in/video.mkv", hevcInfo) {
		t.Fatal("container extension is not elementary")
	}
	if isElementaryHEVC("/in/video.hevc", mediainfo.VideoInfo{Format: "AVC"}) {
		t.Fatal("non-HEVC format is not elementary")
	}
}

func TestTempsFor(t *testing.T) {
	temps := tempsFor("/out/Movie.mkv")
	if temps.AudioSubs != "/out/Movie.mkv_audiosubs.mka" {
		t.Fatalf("AudioSubs = %q", temps.AudioSubs)
	}
	if temps.DVHEVC != "/out/Movie.mkv_dv.hevc" {
		t.Fatalf("DVHEVC = %q", temps.DVHEVC)
	}
	if temps.RPUEdited != "/out/Movie.mkv_rpu_edited.bin" {
		t.Fatalf("RPUEdited = %q", temps.RPUEdited)
	}
}

func TestFileProgress(t *testing.T) {
	if got := fileProgress(0, 0); got != 0 {
		t.Fatalf("start = %d", got)
	}
	if got := fileProgress(5, 100); got != 100 {
		t.Fatalf("end = %d", got)
	}
	// halfway through step 3 of 6
	if got := fileProgress(2, 50); got != 42 {
		t.Fatalf("mid = %d", got)
	}
	if got := fileProgress(3, 0); got != 50 {
		t.Fatalf("step 4 start = %d", got)
	}
}
