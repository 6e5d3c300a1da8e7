package version

import (
	"strings"
	"testing"
)

func TestNewerThan(t *testing.T) {
	tests := []struct {
		name      string
		candidate string
		current   string
		want      bool
	}{
		{"patch bump", "0.9.4", "0.9.3", true},
		{"minor bump", "0.10.0", "0.9.3", true},
		{"major bump", "1.0.0", "0.9.3", true},
		{"same version", "0.9.3", "0.9.3", false},
		{"older", "0.9.2", "0.9.3", false},
		{"v prefix", "v1.0.0", "0.9.3", true},
		{"prerelease suffix ignored", "1.0.0", "1.0.0-dev", false},
		{"dev build compares on numbers", "1.0.1", "1.0.0-dev", true},
		{"short form", "1.1", "1.0.9", true},
		{"garbage candidate", "latest", "0.9.3", false},
		{"garbage current", "1.0.0", "unknown", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := NewerThan(tt.candidate, tt.current); got != tt.want {
				t.Errorf("NewerThan(%q, %q) = %v, want %v", tt.candidate, tt.current, got, tt.want)
			}
		})
	}
}

func TestFirstLineTruncates(t *testing.T) {
	if got := firstLine("Fixes the thing\n\nLong body here", 200); got != "Fixes the thing" {
		t.Errorf("firstLine = %q, want first line only", got)
	}
	got := firstLine(strings.Repeat("x", 300), 200)
	if len(got) != 200 || !strings.HasSuffix(got, "...") {
		t.Errorf("firstLine truncation: len=%d suffix ok=%v", len(got), strings.HasSuffix(got, "..."))
	}
}
