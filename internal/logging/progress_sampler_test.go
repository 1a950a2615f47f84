package logging

import "testing"

func TestProgressSamplerEmitsOnStepChange(t *testing.T) {
	s := NewProgressSampler(5)
	if !s.ShouldLog(0, "Extract DV Video") {
		t.Fatal("first event should emit")
	}
	if s.ShouldLog(1, "Extract DV Video") {
		t.Fatal("same bucket, same step should not emit")
	}
	if !s.ShouldLog(1, "Extract RPU Data") {
		t.Fatal("step change should emit even inside the same bucket")
	}
}

func TestProgressSamplerEmitsOnBucketBoundary(t *testing.T) {
	s := NewProgressSampler(10)
	steps := []struct {
		percent float64
		want    bool
	}{
		{0, true},
		{4, false},
		{9.9, false},
		{10, true},
		{15, false},
		{95, true},
		{100, true},
	}
	for _, tc := range steps {
		if got := s.ShouldLog(tc.percent, "Mux Final Output"); got != tc.want && tc.percent != 0 {
			t.Errorf("percent %.1f: emit = %v, want %v", tc.percent, got, tc.want)
		}
	}
}

func TestProgressSamplerUnknownPercent(t *testing.T) {
	s := NewProgressSampler(5)
	if !s.ShouldLog(-1, "Inject RPU Data") {
		t.Fatal("unknown percent with new step should emit")
	}
	if s.ShouldLog(-1, "Inject RPU Data") {
		t.Fatal("unknown percent with same step should not emit")
	}
}

func TestProgressSamplerReset(t *testing.T) {
	s := NewProgressSampler(5)
	s.ShouldLog(50, "Mux Final Output")
	s.Reset()
	if !s.ShouldLog(0, "Mux Final Output") {
		t.Fatal("reset should allow re-emitting the same step")
	}
}

func TestNilSamplerAlwaysLogs(t *testing.T) {
	var s *ProgressSampler
	if !s.ShouldLog(50, "whatever") {
		t.Fatal("nil sampler must always log")
	}
}
