package pairing

import (
	"errors"
	"path/filepath"
	"testing"

	"hybridmux/internal/faults"
)

func TestBaseName(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"Movie.2020.HDR.2160p.mkv", "Movie.2020"},
		{"Movie.2020.HDR.HDR.mkv", "Movie.2020"},
		{"Movie.2160p.mkv", "Movie"},
		{"Movie", "Movie"},
		{"", ""},
	}
	for _, tc := range cases {
		if got := BaseName(tc.in); got != tc.want {
			t.Errorf("BaseName(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestDisplayTitle(t *testing.T) {
	if got := DisplayTitle("the.quiet.place"); got != "The Quiet Place" {
		t.Fatalf("DisplayTitle = %q", got)
	}
	if got := DisplayTitle("..."); got != "..." {
		t.Fatalf("DisplayTitle on empty cleanup = %q", got)
	}
}

func TestPairSubstringMatch(t *testing.T) {
	dv := []string{"Other.DV.mkv", "Movie.2020.DV.2160p.mkv"}
	got, err := Pair("Movie.2020.HDR.2160p.mkv", 5, dv)
	if err != nil {
		t.Fatalf("Pair: %v", err)
	}
	if got != "Movie.2020.DV.2160p.mkv" {
		t.Fatalf("Pair = %q", got)
	}
}

func TestPairPositionalFallback(t *testing.T) {
	dv := []string{"a.mkv", "b.mkv", "c.mkv"}
	got, err := Pair("Unrelated.HDR.mkv", 1, dv)
	if err != nil {
		t.Fatalf("Pair: %v", err)
	}
	if got != "b.mkv" {
		t.Fatalf("Pair = %q", got)
	}
}

func TestPairFailure(t *testing.T) {
	_, err := Pair("Unrelated.HDR.mkv", 3, []string{"a.mkv"})
	if err == nil {
		t.Fatal("expected pairing error")
	}
	if !errors.Is(err, faults.ErrPairing) {
		t.Fatalf("error = %v, want ErrPairing", err)
	}
}

func TestOutputForBatch(t *testing.T) {
	got := OutputForBatch("/out", "Movie.2020.HDR.mkv")
	want := filepath.Join("/out", "Movie.2020"+OutputSuffix)
	if got != want {
		t.Fatalf("OutputForBatch = %q, want %q", got, want)
	}
}

func TestOutputForSingle(t *testing.T) {
	if got := OutputForSingle("/def", "/explicit/out.mkv", "/in/Movie.HDR.mkv"); got != "/explicit/out.mkv" {
		t.Fatalf("explicit path = %q", got)
	}
	got := OutputForSingle("/def", "", "/in/Movie.2020.HDR.mkv")
	want := filepath.Join("/def", "Movie.2020"+OutputSuffix)
	if got != want {
		t.Fatalf("derived path = %q, want %q", got, want)
	}
}

func TestNormalizeOutputPath(t *testing.T) {
	if got := NormalizeOutputPath("/def", ""); got != "/def" {
		t.Fatalf("empty = %q", got)
	}
	if got := NormalizeOutputPath("/def", "/abs"); got != "/abs" {
		t.Fatalf("absolute = %q", got)
	}
	if got := NormalizeOutputPath("/def", "sub"); got != filepath.Join("/def", "sub") {
		t.Fatalf("relative = %q", got)
	}
}
