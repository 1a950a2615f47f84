// Package deps resolves and verifies the external tools the pipeline shells
// out to.
package deps

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"

	"hybridmux/internal/config"
)

// Requirement defines an external binary the pipeline relies on.
type Requirement struct {
	Name        string
	Command     string
	Description string
	Optional    bool
}

// Status reports the availability of a dependency.
type Status struct {
	Name        string
	Command     string
	Description string
	Optional    bool
	Available   bool
	Detail      string
}

// Requirements builds the dependency list for the configured tool commands.
func Requirements(tools config.Tools) []Requirement {
	return []Requirement{
		{Name: "dovi_tool", Command: tools.DoviTool, Description: "RPU extraction, editing, and injection"},
		{Name: "mkvmerge", Command: tools.MKVMerge, Description: "Stream demux and final mux"},
		{Name: "mkvextract", Command: tools.MKVExtract, Description: "Track extraction from Matroska input"},
		{Name: "mediainfo", Command: tools.MediaInfo, Description: "Source stream probing"},
		{Name: "MP4Box", Command: tools.MP4Box, Description: "Raw HEVC extraction from MP4 input", Optional: true},
		{Name: "hdr10plus_tool", Command: tools.HDR10PlusTool, Description: "HDR10+ metadata handling", Optional: true},
		{Name: "ffmpeg", Command: tools.FFmpeg, Description: "Fallback stream extraction", Optional: true},
	}
}

// CheckBinaries evaluates the provided requirements and reports availability.
// Commands holding a path separator resolve through ResolveTool; bare names
// resolve from PATH.
func CheckBinaries(resourceDir string, requirements []Requirement) []Status {
	results := make([]Status, 0, len(requirements))
	for _, req := range requirements {
		cmd := strings.TrimSpace(req.Command)
		status := Status{
			Name:        req.Name,
			Command:     cmd,
			Description: strings.TrimSpace(req.Description),
			Optional:    req.Optional,
		}
		if cmd == "" {
			status.Detail = "command not configured"
			results = append(results, status)
			continue
		}
		if strings.ContainsRune(cmd, os.PathSeparator) {
			resolved := ResolveTool(resourceDir, cmd)
			if info, err := os.Stat(resolved); err != nil || info.IsDir() {
				status.Detail = fmt.Sprintf("tool %q not found", resolved)
				results = append(results, status)
				continue
			}
			status.Command = resolved
			status.Available = true
			results = append(results, status)
			continue
		}
		if resolved, err := exec.LookPath(cmd); err == nil {
			status.Command = resolved
			status.Available = true
		} else {
			status.Detail = fmt.Sprintf("binary %q not found", cmd)
		}
		results = append(results, status)
	}
	return results
}

// MissingRequired returns the names of required dependencies that are not
// available.
func MissingRequired(statuses []Status) []string {
	var missing []string
	for _, status := range statuses {
		if !status.Optional && !status.Available {
			missing = append(missing, status.Name)
		}
	}
	return missing
}

// ResolveTool locates a tool path. Absolute paths pass through; relative
// paths try the resource directory, then the working directory. The original
// string comes back when nothing matches so the caller's error names what was
// asked for.
func ResolveTool(resourceDir, path string) string {
	if filepath.IsAbs(path) {
		return path
	}
	if resourceDir != "" {
		candidate := filepath.Join(resourceDir, path)
		if _, err := os.Stat(candidate); err == nil {
			return candidate
		}
	}
	if cwd, err := os.Getwd(); err == nil {
		candidate := filepath.Join(cwd, path)
		if _, err := os.Stat(candidate); err == nil {
			return candidate
		}
	}
	return path
}

// PrepareTool copies a resolved tool into the shared cache directory and
// marks it executable, returning the cached path. Tools bundled inside a
// resource tree may not keep their execute bit, so every run stages through
// the cache. An already cached copy is reused as-is.
func PrepareTool(resourceDir, path string) (string, error) {
	resolved := ResolveTool(resourceDir, path)
	info, err := os.Stat(resolved)
	if err != nil {
		return "", fmt.Errorf("tool not found: %s", resolved)
	}
	if info.IsDir() {
		return "", fmt.Errorf("invalid tool path: %s", resolved)
	}
	cacheDir := filepath.Join(os.TempDir(), "hybridmux-tools")
	if err := os.MkdirAll(cacheDir, 0o755); err != nil {
		return "", fmt.Errorf("cannot create tool cache: %w", err)
	}
	cached := filepath.Join(cacheDir, filepath.Base(resolved))
	if _, err := os.Stat(cached); err == nil {
		return cached, nil
	}
	data, err := os.ReadFile(resolved)
	if err != nil {
		return "", fmt.Errorf("cannot cache tool %s: %w", resolved, err)
	}
	if err := os.WriteFile(cached, data, 0o755); err != nil {
		return "", fmt.Errorf("cannot cache tool %s: %w", resolved, err)
	}
	if runtime.GOOS != "windows" {
		if err := os.Chmod(cached, 0o755); err != nil {
			return "", fmt.Errorf("cannot set permissions %s: %w", cached, err)
		}
	}
	return cached, nil
}
