package scrape

import (
	"testing"
	"time"
)

func TestSimilarity(t *testing.T) {
	tests := []struct {
		a, b string
		min  float64
		max  float64
	}{
		{"googlebot", "googlebot", 100, 100},
		{"ginger", "g1nger", 80, 90},
		{"", "", 0, 0},
		{"abcdef", "uvwxyz", 0, 0},
	}
	for _, tt := range tests {
		got := Similarity(tt.a, tt.b)
		if got < tt.min || got > tt.max {
			t.Errorf("Similarity(%q, %q) = %.1f, want in [%.0f, %.0f]", tt.a, tt.b, got, tt.min, tt.max)
		}
	}
}

func TestTrustedPosterGate(t *testing.T) {
	if !trusted("ginger", []string{"ginger", "g1nger"}) {
		t.Error("exact identity rejected")
	}
	if !trusted("g1nger`", []string{"ginger", "g1nger"}) {
		t.Error("close identity rejected")
	}
	if trusted("randomguy42", []string{"ginger", "g1nger"}) {
		t.Error("unrelated identity accepted")
	}
}

func TestParseTimeAgo(t *testing.T) {
	tests := []struct {
		ago  string
		want time.Duration
	}{
		{"3h 29m", 3*time.Hour + 29*time.Minute},
		{"3m 20s", 3*time.Minute + 20*time.Second},
		{"10m 54s", 10*time.Minute + 54*time.Second},
		{"2d 1h 5m 30s", 49*time.Hour + 5*time.Minute + 30*time.Second},
		{"21s", 21 * time.Second},
		{"", 0},
		{"just now", 0},
	}
	for _, tt := range tests {
		if got := ParseTimeAgo(tt.ago); got != tt.want {
			t.Errorf("ParseTimeAgo(%q) = %v, want %v", tt.ago, got, tt.want)
		}
	}
}

func TestSizeFromFiles(t *testing.T) {
	tests := []struct {
		files string
		want  string
	}{
		{"16x50MB", "800MB"},
		{"94x50MB", "4700MB"},
		{"56x100MB", "5600MB"},
		{"12x700KB", "8400KB"},
		{"3x2GB", "6GB"},
		{"16x79", ""}, // no unit, nothing to derive
		{"", ""},
	}
	for _, tt := range tests {
		if got := SizeFromFiles(tt.files); got != tt.want {
			t.Errorf("SizeFromFiles(%q) = %q, want %q", tt.files, got, tt.want)
		}
	}
}

func TestTruncate(t *testing.T) {
	if got := truncate("abcdef", 4); got != "abcd" {
		t.Errorf("truncate = %q", got)
	}
	if got := truncate("ab", 4); got != "ab" {
		t.Errorf("truncate short = %q", got)
	}
}
