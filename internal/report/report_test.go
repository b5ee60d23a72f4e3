package report

import (
	"math"
	"strings"
	"testing"
)

// TestDescribe verifies the summary statistics on a known array.
func TestDescribe(t *testing.T) {
	s := Describe([]float64{1, 2, 3, 4})
	if s.Min != 1 || s.Max != 4 {
		t.Errorf("min/max = %g/%g, want 1/4", s.Min, s.Max)
	}
	if s.Mean != 2.5 {
		t.Errorf("mean = %g, want 2.5", s.Mean)
	}
	// Sample standard deviation of 1..4.
	want := math.Sqrt(5.0 / 3.0)
	if math.Abs(s.Std-want) > 1e-12 {
		t.Errorf("std = %g, want %g", s.Std, want)
	}
}

// TestDescribeEmpty verifies the zero-value result on empty input.
func TestDescribeEmpty(t *testing.T) {
	if s := Describe(nil); s != (ArrayStats{}) {
		t.Errorf("Describe(nil) = %+v, want zeros", s)
	}
}

// TestString verifies that every statistic appears in the formatted line.
func TestString(t *testing.T) {
	out := Describe([]float64{1, 2, 3}).String()
	for _, key := range []string{"min=", "max=", "mean=", "std="} {
		if !strings.Contains(out, key) {
			t.Errorf("formatted stats %q missing %q", out, key)
		}
	}
}
