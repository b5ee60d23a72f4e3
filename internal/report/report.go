// Package report computes the summary statistics the demo binaries print
// about reconstructed arrays.
package report

import (
	"fmt"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// ArrayStats summarizes one numeric array.
type ArrayStats struct {
	Min  float64
	Max  float64
	Mean float64
	Std  float64
}

// Describe computes the summary of values. Empty input yields zeros.
func Describe(values []float64) ArrayStats {
	if len(values) == 0 {
		return ArrayStats{}
	}
	return ArrayStats{
		Min:  floats.Min(values),
		Max:  floats.Max(values),
		Mean: stat.Mean(values, nil),
		Std:  stat.StdDev(values, nil),
	}
}

// String formats the stats on one line for the demo logs.
func (s ArrayStats) String() string {
	return fmt.Sprintf("min=%.4g max=%.4g mean=%.4g std=%.4g", s.Min, s.Max, s.Mean, s.Std)
}
