package util

import (
	"math"
	"testing"
)

func TestFormatParseUnits(t *testing.T) {
	tests := []struct {
		base  uint64
		text  string
		fixed string
	}{
		{0, "0", "0.00000000"},
		{1, "0.00000001", "0.00000001"},
		{100_000_000, "1", "1.00000000"},
		{150_000_000, "1.5", "1.50000000"},
		{500_000_000, "5", "5.00000000"},
	}
	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			if got := FormatUnits(tt.base); got != tt.text {
				t.Errorf("FormatUnits(%d) = %s, want %s", tt.base, got, tt.text)
			}
			if got := FormatUnitsFixed(tt.base); got != tt.fixed {
				t.Errorf("FormatUnitsFixed(%d) = %s, want %s", tt.base, got, tt.fixed)
			}
			for _, s := range []string{tt.text, tt.fixed} {
				n, err := ParseUnits(s)
				if err != nil {
					t.Fatalf("ParseUnits(%s): %v", s, err)
				}
				if n != tt.base {
					t.Errorf("ParseUnits(%s) = %d, want %d", s, n, tt.base)
				}
			}
		})
	}
}

func TestParseUnitsRejects(t *testing.T) {
	for _, s := range []string{"", "abc", "-1", "0.000000001", "184467440737.09551616"} {
		if _, err := ParseUnits(s); err == nil {
			t.Errorf("ParseUnits(%q) accepted", s)
		}
	}
	n, err := ParseUnits("184467440737.09551615")
	if err != nil || n != math.MaxUint64 {
		t.Errorf("max value: %d %v", n, err)
	}
}
