package common

import (
	"strings"
	"testing"
)

func TestSanitizeFilename(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"airgradient_data_20250101_120000.csv", "airgradient_data_20250101_120000.csv"},
		{"../../etc/passwd", "_.._etc_passwd"},
		{"nebo/data:2025.json", "nebo_data_2025.json"},
		{".hidden", "hidden"},
		{"...", "download"},
		{"with spaces.csv", "with_spaces.csv"},
	}

	for _, tc := range cases {
		got := SanitizeFilename(tc.in)
		if got != tc.want {
			t.Errorf("SanitizeFilename(%q) = %q, want %q", tc.in, got, tc.want)
		}
		if strings.HasPrefix(got, ".") || strings.ContainsAny(got, "/\\") {
			t.Errorf("SanitizeFilename(%q) = %q still contains unsafe characters", tc.in, got)
		}
	}
}
