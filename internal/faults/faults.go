package faults

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel markers for every terminal condition the pipeline can hit. Callers
// classify with errors.Is rather than matching message text.
var (
	ErrProbe             = errors.New("probe error")
	ErrPairing           = errors.New("pairing error")
	ErrFrameRateMismatch = errors.New("frame rate mismatch")
	ErrStepSpawn         = errors.New("step spawn error")
	ErrStepExit          = errors.New("step exit error")
	ErrStaging           = errors.New("staging error")
	ErrOutputUnwritable  = errors.New("output unwritable")
	ErrCancelled         = errors.New("processing cancelled")
	ErrIO                = errors.New("io error")
)

// Wrap builds an error message that includes component context while tagging it
// with the provided marker for later classification. The marker should be one
// of the exported sentinel errors above.
func Wrap(marker error, component, operation, message string, err error) error {
	detail := buildDetail(component, operation, message)
	if marker == nil {
		marker = ErrIO
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// IsCancelled reports whether err represents user-initiated cancellation,
// which is a terminal state distinct from failure.
func IsCancelled(err error) bool {
	return errors.Is(err, ErrCancelled)
}

// Recoverable reports whether err may be degraded to a fallback strategy
// instead of terminating the pipeline run.
func Recoverable(err error) bool {
	return errors.Is(err, ErrStaging) || errors.Is(err, ErrOutputUnwritable)
}

func buildDetail(component, operation, message string) string {
	parts := make([]string, 0, 3)
	if component = strings.TrimSpace(component); component != "" {
		parts = append(parts, component)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "processing failure"
	}
	return strings.Join(parts, ": ")
}
