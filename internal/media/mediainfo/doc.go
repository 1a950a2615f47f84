// Package mediainfo probes video files with the MediaInfo CLI.
//
// MediaInfo's JSON output is loosely typed: numeric fields arrive as native
// numbers or digit-bearing strings depending on version and container, and
// frame rate may only be present as an original-rate numerator/denominator
// pair, a decimal, or a fractional string. The parser tries each documented
// field in a fixed fallback order and accepts all of these shapes.
package mediainfo
