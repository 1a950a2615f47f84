package mediainfo

import (
	"context"
	"encoding/json"
	"os/exec"
	"strconv"
	"strings"

	"hybridmux/internal/faults"
)

// VideoInfo describes the video track of a probed file.
type VideoInfo struct {
	Width      int
	Height     int
	FPS        float64
	TrackID    int
	HasTrackID bool
	Language   string
	Format     string
}

// IsHEVC reports whether the track format identifies an HEVC/H.265 stream.
func (v VideoInfo) IsHEVC() bool {
	format := strings.ToLower(v.Format)
	return strings.Contains(format, "hevc") || strings.Contains(format, "h.265")
}

type payload struct {
	Media struct {
		Track []map[string]any `json:"track"`
	} `json:"media"`
}

// Probe executes mediainfo against path and extracts the video track
// properties the pipeline needs. All failures carry faults.ErrProbe.
func Probe(ctx context.Context, binary, path string) (VideoInfo, error) {
	binary = strings.TrimSpace(binary)
	if binary == "" {
		binary = "mediainfo"
	}

	cmd := exec.CommandContext(ctx, binary, "--Output=JSON", "-f", path)
	output, err := cmd.Output()
	if err != nil {
		return VideoInfo{}, faults.Wrap(faults.ErrProbe, "mediainfo", "run", path, err)
	}
	if len(output) == 0 {
		return VideoInfo{}, faults.Wrap(faults.ErrProbe, "mediainfo", "run", "empty output for "+path, nil)
	}
	return Parse(output)
}

// Parse decodes raw MediaInfo JSON output into VideoInfo.
func Parse(raw []byte) (VideoInfo, error) {
	var decoded payload
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return VideoInfo{}, faults.Wrap(faults.ErrProbe, "mediainfo", "parse", "", err)
	}

	track := videoTrack(decoded.Media.Track)
	if track == nil {
		return VideoInfo{}, faults.Wrap(faults.ErrProbe, "mediainfo", "parse", "no video track found", nil)
	}

	info := VideoInfo{}
	width, ok := intField(track, "Width")
	if !ok {
		return VideoInfo{}, faults.Wrap(faults.ErrProbe, "mediainfo", "parse", "width missing", nil)
	}
	info.Width = width

	height, ok := intField(track, "Height")
	if !ok {
		return VideoInfo{}, faults.Wrap(faults.ErrProbe, "mediainfo", "parse", "height missing", nil)
	}
	info.Height = height

	fps, ok := frameRate(track)
	if !ok {
		return VideoInfo{}, faults.Wrap(faults.ErrProbe, "mediainfo", "parse", "frame rate missing", nil)
	}
	info.FPS = fps

	if id, ok := intField(track, "ID", "ID/String"); ok {
		info.TrackID = id
		info.HasTrackID = true
	}
	if lang, ok := stringField(track, "Language"); ok {
		info.Language = lang
	}
	if format, ok := stringField(track, "Format", "Format/String"); ok {
		info.Format = format
	}
	return info, nil
}

// videoTrack locates the first track whose type field names a video stream.
// Both "@type" and "type" spellings occur in the wild.
func videoTrack(tracks []map[string]any) map[string]any {
	for _, track := range tracks {
		for _, key := range []string{"@type", "type"} {
			if value, ok := track[key].(string); ok && strings.EqualFold(value, "video") {
				return track
			}
		}
	}
	return nil
}

// frameRate tries exact numerator/denominator pairs before falling back to
// decimal or fractional string values.
func frameRate(track map[string]any) (float64, bool) {
	pairs := [][2]string{
		{"FrameRate_Original_Num", "FrameRate_Original_Den"},
		{"FrameRate_Num", "FrameRate_Den"},
	}
	for _, pair := range pairs {
		num, okNum := floatField(track, pair[0])
		den, okDen := floatField(track, pair[1])
		if okNum && okDen && den != 0 {
			return num / den, true
		}
	}
	for _, key := range []string{"FrameRate_Original", "FrameRate"} {
		if value, ok := floatField(track, key); ok {
			return value, true
		}
	}
	return 0, false
}

func stringField(track map[string]any, keys ...string) (string, bool) {
	for _, key := range keys {
		if value, ok := track[key].(string); ok && value != "" {
			return value, true
		}
	}
	return "", false
}

func intField(track map[string]any, keys ...string) (int, bool) {
	for _, key := range keys {
		value, present := track[key]
		if !present {
			continue
		}
		switch v := value.(type) {
		case float64:
			if v >= 0 {
				return int(v), true
			}
		case string:
			if parsed, ok := parseDigits(v); ok {
				return parsed, true
			}
		}
	}
	return 0, false
}

func floatField(track map[string]any, keys ...string) (float64, bool) {
	for _, key := range keys {
		value, present := track[key]
		if !present {
			continue
		}
		switch v := value.(type) {
		case float64:
			return v, true
		case string:
			if parsed, ok := parseFractional(v); ok {
				return parsed, true
			}
		}
	}
	return 0, false
}

// parseDigits extracts the integer from strings like "1 088 pixels".
func parseDigits(raw string) (int, bool) {
	var digits strings.Builder
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			digits.WriteRune(r)
		}
	}
	if digits.Len() == 0 {
		return 0, false
	}
	parsed, err := strconv.Atoi(digits.String())
	if err != nil {
		return 0, false
	}
	return parsed, true
}

// parseFractional accepts "23.976", "24000/1001", and decorated variants like
// "23.976 FPS".
func parseFractional(raw string) (float64, bool) {
	var filtered strings.Builder
	for _, r := range strings.TrimSpace(raw) {
		if (r >= '0' && r <= '9') || r == '.' || r == '/' {
			filtered.WriteRune(r)
		}
	}
	cleaned := filtered.String()
	if cleaned == "" {
		return 0, false
	}
	if num, den, found := strings.Cut(cleaned, "/"); found {
		n, errN := strconv.ParseFloat(num, 64)
		d, errD := strconv.ParseFloat(den, 64)
		if errN != nil || errD != nil || d == 0 {
			return 0, false
		}
		return n / d, true
	}
	parsed, err := strconv.ParseFloat(cleaned, 64)
	if err != nil {
		return 0, false
	}
	return parsed, true
}
