package preflight

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"hybridmux/internal/config"
)

func TestCheckDirectoryAccess(t *testing.T) {
	dir := t.TempDir()
	result := CheckDirectoryAccess("Scratch directory", dir)
	if !result.Passed {
		t.Fatalf("expected pass, got %#v", result)
	}

	missing := filepath.Join(dir, "created-on-demand")
	result = CheckDirectoryAccess("Scratch directory", missing)
	if !result.Passed {
		t.Fatalf("expected missing directory to be created, got %#v", result)
	}
	if info, err := os.Stat(missing); err != nil || !info.IsDir() {
		t.Fatalf("directory not created: %v", err)
	}

	file := filepath.Join(dir, "a-file")
	if err := os.WriteFile(file, []byte("x"), 0o644); err != nil {
		t.Fatalf("write file: %v", err)
	}
	result = CheckDirectoryAccess("Scratch directory", file)
	if result.Passed {
		t.Fatal("expected failure for non-directory path")
	}
	if !strings.Contains(result.Detail, "not a directory") {
		t.Fatalf("unexpected detail: %s", result.Detail)
	}

	result = CheckDirectoryAccess("Scratch directory", "")
	if result.Passed {
		t.Fatal("expected failure for empty path")
	}
}

func TestCheckFreeSpace(t *testing.T) {
	result := CheckFreeSpace("Scratch free space", t.TempDir(), 1)
	if !result.Passed {
		t.Fatalf("expected pass, got %#v", result)
	}

	result = CheckFreeSpace("Scratch free space", t.TempDir(), 1<<62)
	if result.Passed {
		t.Fatal("expected failure for absurd space requirement")
	}
}

func TestRunAllReportsToolFailures(t *testing.T) {
	cfg := config.Default()
	cfg.Paths.ScratchDir = t.TempDir()
	cfg.Paths.DefaultOutput = t.TempDir()
	cfg.Logging.Dir = ""
	cfg.Tools.DoviTool = "definitely-not-a-real-binary"

	results := RunAll(context.Background(), &cfg)
	if len(results) == 0 {
		t.Fatal("expected results")
	}

	failure, ok := FirstFailure(results)
	if !ok {
		t.Fatal("expected a failed check for the missing tool")
	}
	if !strings.Contains(failure.Name, "dovi_tool") {
		t.Fatalf("unexpected failure: %#v", failure)
	}
}

func TestRunAllNilConfig(t *testing.T) {
	if results := RunAll(context.Background(), nil); results != nil {
		t.Fatalf("expected nil, got %v", results)
	}
}

func TestToolResultOptional(t *testing.T) {
	cfg := config.Default()
	cfg.Paths.ScratchDir = t.TempDir()
	cfg.Paths.DefaultOutput = t.TempDir()
	cfg.Logging.Dir = ""
	cfg.Tools = config.Tools{
		DoviTool:   "missing-a",
		MKVMerge:   "missing-b",
		MKVExtract: "missing-c",
		MediaInfo:  "missing-d",
		FFmpeg:     "missing-e",
	}

	results := RunAll(context.Background(), &cfg)
	for _, result := range results {
		if result.Name == "Tool: ffmpeg" {
			if !result.Passed {
				t.Fatalf("optional tool should not fail preflight: %#v", result)
			}
			return
		}
	}
	t.Fatal("ffmpeg tool check missing from results")
}
