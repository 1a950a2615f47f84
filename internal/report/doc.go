// Package report defines the progress and status surface the processing
// engine exposes to observers.
//
// Every method is fire-and-forget: implementations must never block the
// pipeline or propagate delivery failures back into processing. The slog
// implementation dampens repetitive progress updates with a sampler; the
// Recorder implementation captures updates for tests.
package report
