// Package logging configures structured slog logging for hybridmux.
//
// It provides attribute helpers, standardized field keys, a console handler
// for interactive use, a JSON handler for machine consumption, a no-op logger
// for tests, and a progress sampler that suppresses repetitive progress
// output while preserving stage transitions.
package logging
