// Package mkvident recovers container-level video metadata with mkvmerge's
// identification mode. The pipeline uses the detected default frame duration
// to pin the final mux when the source container carries one.
package mkvident

import (
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strings"

	"hybridmux/internal/faults"
)

type identifyPayload struct {
	Tracks []struct {
		Type       string `json:"type"`
		Properties struct {
			DefaultDuration json.RawMessage `json:"default_duration"`
		} `json:"properties"`
	} `json:"tracks"`
}

// DefaultDuration runs mkvmerge identification against path and returns the
// video track's default duration in mkvmerge's own notation (for example
// "41708333ns"). The value feeds straight back into a --default-duration
// argument. Missing durations are an error the caller treats as advisory.
func DefaultDuration(ctx context.Context, binary, path string) (string, error) {
	binary = strings.TrimSpace(binary)
	if binary == "" {
		binary = "mkvmerge"
	}

	cmd := exec.CommandContext(ctx, binary,
		"--identify",
		"--ui-language", "en",
		"--output-charset", "utf-8",
		"-J",
		path,
	)
	output, err := cmd.Output()
	if err != nil {
		return "", faults.Wrap(faults.ErrProbe, "mkvident", "identify", path, err)
	}
	return parseDefaultDuration(output)
}

func parseDefaultDuration(raw []byte) (string, error) {
	var decoded identifyPayload
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return "", faults.Wrap(faults.ErrProbe, "mkvident", "parse", "", err)
	}

	for _, track := range decoded.Tracks {
		if !strings.EqualFold(track.Type, "video") {
			continue
		}
		value := track.Properties.DefaultDuration
		if len(value) == 0 {
			continue
		}
		// String form ("41708333ns") or bare nanosecond integer.
		var asString string
		if err := json.Unmarshal(value, &asString); err == nil && asString != "" {
			return asString, nil
		}
		var asNumber uint64
		if err := json.Unmarshal(value, &asNumber); err == nil {
			return fmt.Sprintf("%dns", asNumber), nil
		}
	}
	return "", faults.Wrap(faults.ErrProbe, "mkvident", "parse", "no video track with default_duration", nil)
}
