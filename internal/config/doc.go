// Package config loads, normalizes, and validates hybridmux configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), and reads TOML files. The Config type centralizes every knob the
// CLI and processing engine need: external tool locations, output and scratch
// directories, worker parallelism, polling cadence, logging, and the optional
// run history journal.
package config
