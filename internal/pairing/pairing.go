// Package pairing implements the filename policy that matches HDR sources to
// their Dolby Vision counterparts and derives output names.
//
// Pairing is pure string matching with a documented fallback order: base-name
// substring match first, positional match by sorted index second, failure
// third. It deliberately lives apart from the worker pool so the policy can
// be tested without any concurrency in play.
package pairing

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"hybridmux/internal/faults"
)

// OutputSuffix is appended to the paired base name for final containers.
const OutputSuffix = ".DV.HDR.H.265-NOGRP.mkv"

// hdrSuffix strips release-style trailing ".HDR...." qualifiers.
var hdrSuffix = regexp.MustCompile(`(.*)\.(HDR)+.*`)

// BaseName derives the pairing key for an HDR filename: the portion before a
// trailing ".HDR"-style suffix, or the first dot-delimited segment when no
// such suffix exists.
func BaseName(filename string) string {
	if m := hdrSuffix.FindStringSubmatch(filename); m != nil {
		return m[1]
	}
	if head, _, found := strings.Cut(filename, "."); found {
		return head
	}
	return filename
}

// DisplayTitle renders a base name as a human-readable title for labels and
// the run journal: dots become spaces and words are title-cased.
func DisplayTitle(base string) string {
	cleaned := strings.TrimSpace(strings.ReplaceAll(base, ".", " "))
	if cleaned == "" {
		return base
	}
	return cases.Title(language.Und).String(cleaned)
}

// MatchDV returns the first DV filename containing base as a substring.
func MatchDV(dvFiles []string, base string) (string, bool) {
	if base == "" {
		return "", false
	}
	for _, name := range dvFiles {
		if strings.Contains(name, base) {
			return name, true
		}
	}
	return "", false
}

// Pair resolves the DV counterpart for the HDR file at index within the
// sorted listing: substring match on the base name, then positional fallback
// by index. Exhausting both is a pairing failure.
func Pair(hdrFile string, index int, dvFiles []string) (string, error) {
	base := BaseName(hdrFile)
	if match, ok := MatchDV(dvFiles, base); ok {
		return match, nil
	}
	if index >= 0 && index < len(dvFiles) {
		return dvFiles[index], nil
	}
	return "", faults.Wrap(faults.ErrPairing, "pairing", "match", fmt.Sprintf("no DV file available for %s", hdrFile), nil)
}

// OutputForBatch computes the destination path for one batch file.
func OutputForBatch(outputDir, hdrFile string) string {
	return filepath.Join(outputDir, BaseName(hdrFile)+OutputSuffix)
}

// OutputForSingle computes the destination path for a single-pair run. An
// explicit outputPath wins; otherwise the name derives from the HDR filename
// under the default output directory.
func OutputForSingle(defaultOutput, outputPath, hdrPath string) string {
	if outputPath != "" {
		return outputPath
	}
	filename := filepath.Base(hdrPath)
	if filename == "." || filename == string(filepath.Separator) {
		filename = "output"
	}
	return filepath.Join(defaultOutput, BaseName(filename)+OutputSuffix)
}

// NormalizeOutputPath resolves a caller-supplied output path against the
// default output directory. Empty means the default directory itself;
// relative paths nest under it.
func NormalizeOutputPath(defaultOutput, outputPath string) string {
	if outputPath == "" {
		return defaultOutput
	}
	if filepath.IsAbs(outputPath) {
		return outputPath
	}
	return filepath.Join(defaultOutput, outputPath)
}
