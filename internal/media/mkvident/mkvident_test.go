package mkvident

import (
	"errors"
	"testing"

	"hybridmux/internal/faults"
)

func TestParseDefaultDurationString(t *testing.T) {
	raw := `{"tracks":[
		{"type":"audio","properties":{}},
		{"type":"video","properties":{"default_duration":"41708333ns"}}
	]}`
	got, err := parseDefaultDuration([]byte(raw))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if got != "41708333ns" {
		t.Fatalf("duration = %q", got)
	}
}

func TestParseDefaultDurationNumeric(t *testing.T) {
	raw := `{"tracks":[{"type":"video","properties":{"default_duration":41708333}}]}`
	got, err := parseDefaultDuration([]byte(raw))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if got != "41708333ns" {
		t.Fatalf("duration = %q", got)
	}
}

func TestParseDefaultDurationMissing(t *testing.T) {
	cases := []string{
		`{"tracks":[]}`,
		`{"tracks":[{"type":"video","properties":{}}]}`,
		`{"tracks":[{"type":"audio","properties":{"default_duration":"41708333ns"}}]}`,
	}
	for _, raw := range cases {
		if _, err := parseDefaultDuration([]byte(raw)); !errors.Is(err, faults.ErrProbe) {
			t.Errorf("raw %s: expected ErrProbe, got %v", raw, err)
		}
	}
}

func TestParseDefaultDurationMalformed(t *testing.T) {
	if _, err := parseDefaultDuration([]byte(`{"tracks":`)); !errors.Is(err, faults.ErrProbe) {
		t.Fatalf("expected ErrProbe, got %v", err)
	}
}
