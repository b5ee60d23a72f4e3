// Package trajectory assigns k-space sampling coordinates and
// density-compensation weights to acquisition stores. Coordinates are in
// grid units: one unit equals one cycle across the field of view, so
// Cartesian samples sit on integers in [-n/2, n/2).
package trajectory

import (
	"fmt"
	"math"

	"mrkspace/pkg/acquisition"
)

// GoldenAngle is the azimuthal increment between consecutive golden-angle
// spokes, pi divided by the golden ratio.
const GoldenAngle = math.Pi / math.Phi

// Parse maps a command-line trajectory tag to its type. The accepted tags
// are cartesian, radial, goldenangle and grpe.
func Parse(tag string) (acquisition.TrajectoryType, error) {
	switch tag {
	case "cartesian":
		return acquisition.TrajectoryCartesian, nil
	case "radial":
		return acquisition.TrajectoryRadial, nil
	case "goldenangle":
		return acquisition.TrajectoryGoldenAngle, nil
	case "grpe":
		return acquisition.TrajectoryGRPE, nil
	default:
		return 0, fmt.Errorf("unknown trajectory %q: must be one of cartesian, radial, goldenangle, grpe", tag)
	}
}

// Assign populates the trajectory coordinates and density-compensation
// weights of every readout in the store and records the trajectory type in
// the store's encoding info. The store is modified in place.
//
// Cartesian assignment writes grid coordinates implied by the encoding
// counters. Radial and golden-angle assignment treat each readout's phase
// counter as a spoke index. GRPE keeps the Cartesian readout and places the
// phase-encoding plane on radial spokes (slice counter = angle index, phase
// counter = radial position).
func Assign(s *acquisition.Store, kind acquisition.TrajectoryType) error {
	switch kind {
	case acquisition.TrajectoryCartesian:
		assignCartesian(s)
	case acquisition.TrajectoryRadial:
		assignRadial(s, math.Pi/float64(countSpokes(s)))
	case acquisition.TrajectoryGoldenAngle:
		assignRadial(s, GoldenAngle)
	case acquisition.TrajectoryGRPE:
		assignGRPE(s)
	default:
		return fmt.Errorf("unknown trajectory %q: must be one of cartesian, radial, goldenangle, grpe", kind)
	}
	s.Info.Trajectory = kind
	return nil
}

// countSpokes returns the number of distinct spoke (phase) indices.
func countSpokes(s *acquisition.Store) int {
	max := 0
	for i := 0; i < s.Len(); i++ {
		if p := s.At(i).Step.Phase; p > max {
			max = p
		}
	}
	return max + 1
}

func assignCartesian(s *acquisition.Store) {
	coils := s.Info.Coils
	ny := s.Info.MatrixY
	for i := 0; i < s.Len(); i++ {
		a := s.At(i)
		n := a.Samples(coils)
		a.TrajDims = 2
		a.Traj = make([]float64, 2*n)
		a.DCW = nil
		ky := float64(a.Step.Phase - ny/2)
		for j := 0; j < n; j++ {
			a.Traj[2*j] = float64(j - n/2)
			a.Traj[2*j+1] = ky
		}
	}
}

// assignRadial lays each readout on a diametric spoke through the k-space
// origin at angle spoke*delta, with a ramp density-compensation weight
// proportional to the distance from the origin.
func assignRadial(s *acquisition.Store, delta float64) {
	coils := s.Info.Coils
	for i := 0; i < s.Len(); i++ {
		a := s.At(i)
		n := a.Samples(coils)
		theta := float64(a.Step.Phase) * delta
		cos, sin := math.Cos(theta), math.Sin(theta)
		a.TrajDims = 2
		a.Traj = make([]float64, 2*n)
		a.DCW = make([]float64, n)
		for j := 0; j < n; j++ {
			r := float64(j - n/2)
			a.Traj[2*j] = r * cos
			a.Traj[2*j+1] = r * sin
			a.DCW[j] = rampWeight(r, n)
		}
	}
}

func assignGRPE(s *acquisition.Store) {
	coils := s.Info.Coils
	ny := s.Info.MatrixY
	for i := 0; i < s.Len(); i++ {
		a := s.At(i)
		n := a.Samples(coils)
		phi := float64(a.Step.Slice) * GoldenAngle
		r := float64(a.Step.Phase - ny/2)
		ky := r * math.Cos(phi)
		kz := r * math.Sin(phi)
		a.TrajDims = 3
		a.Traj = make([]float64, 3*n)
		a.DCW = make([]float64, n)
		w := rampWeight(r, ny)
		for j := 0; j < n; j++ {
			a.Traj[3*j] = float64(j - n/2)
			a.Traj[3*j+1] = ky
			a.Traj[3*j+2] = kz
			a.DCW[j] = w
		}
	}
}

// rampWeight is the filtered-backprojection style ramp: weight grows
// linearly with distance from the k-space centre. The centre sample gets a
// small non-zero weight so it is not discarded entirely.
func rampWeight(r float64, n int) float64 {
	half := float64(n) / 2
	w := math.Abs(r) / half
	if w == 0 {
		w = 1 / (4 * half)
	}
	return w
}
