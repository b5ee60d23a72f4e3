package phantom

import (
	"math"
	"testing"

	"mrkspace/pkg/acquisition"
)

// TestImageSupport verifies that the phantom has signal inside the head
// ellipse and a zero background.
func TestImageSupport(t *testing.T) {
	n := 32
	img := Image(n)
	if img.NX != n || img.NY != n || img.Channels != 1 {
		t.Fatalf("unexpected image shape %dx%dx%d", img.NX, img.NY, img.Channels)
	}
	if img.Data[(n/2)*n+n/2] == 0 {
		t.Error("phantom center is empty")
	}
	if img.Data[0] != 0 || img.Data[n*n-1] != 0 {
		t.Error("phantom background is not zero")
	}
}

// TestSensitivitiesAreNormalized verifies the root-sum-of-squares of the
// simulated coil maps is one at every voxel.
func TestSensitivitiesAreNormalized(t *testing.T) {
	n, coils := 16, 4
	sens := Sensitivities(n, coils)
	vox := n * n
	for i := 0; i < vox; i++ {
		var sum float64
		for c := 0; c < coils; c++ {
			v := sens.Data[c*vox+i]
			sum += real(v)*real(v) + imag(v)*imag(v)
		}
		if math.Abs(math.Sqrt(sum)-1) > 1e-12 {
			t.Fatalf("voxel %d has root-sum-of-squares %g, want 1", i, math.Sqrt(sum))
		}
	}
}

// TestCartesianLayout verifies one readout per phase-encode step and the
// oversampled readout width.
func TestCartesianLayout(t *testing.T) {
	p := Params{Matrix: 16, Coils: 2, Oversample: true}
	s, err := Cartesian(p)
	if err != nil {
		t.Fatalf("Cartesian failed: %v", err)
	}
	if s.Len() != 16 {
		t.Errorf("Expected 16 readouts, got %d", s.Len())
	}
	if s.Info.OversamplingFactor != 2 {
		t.Errorf("Expected oversampling factor 2, got %d", s.Info.OversamplingFactor)
	}
	if got := s.At(0).Samples(2); got != 32 {
		t.Errorf("Expected 32 samples per readout, got %d", got)
	}
	if !s.Info.Trajectory.Cartesian() {
		t.Errorf("Expected a Cartesian store, got %v", s.Info.Trajectory)
	}
	if err := s.Sort(); err != nil {
		t.Errorf("Simulated store does not sort: %v", err)
	}
}

// TestPreprocessedMatchesDirectSimulation verifies that simulating with 2x
// readout oversampling and stripping it afterwards gives exactly the data
// simulated at nominal resolution.
func TestPreprocessedMatchesDirectSimulation(t *testing.T) {
	over, err := Cartesian(Params{Matrix: 16, Coils: 2, Oversample: true})
	if err != nil {
		t.Fatal(err)
	}
	stripped, err := acquisition.RemoveReadoutOversampling(over)
	if err != nil {
		t.Fatalf("RemoveReadoutOversampling failed: %v", err)
	}

	direct, err := Cartesian(Params{Matrix: 16, Coils: 2, Oversample: false})
	if err != nil {
		t.Fatal(err)
	}

	if stripped.Len() != direct.Len() {
		t.Fatalf("readout counts differ: %d vs %d", stripped.Len(), direct.Len())
	}
	for i := 0; i < direct.Len(); i++ {
		a, b := stripped.At(i).Data, direct.At(i).Data
		if len(a) != len(b) {
			t.Fatalf("readout %d lengths differ: %d vs %d", i, len(a), len(b))
		}
		for j := range a {
			d := a[j] - b[j]
			if math.Hypot(real(d), imag(d)) > 1e-9 {
				t.Fatalf("readout %d sample %d differs: %v vs %v", i, j, a[j], b[j])
			}
		}
	}
}

// TestRadialCarriesTrajectory verifies spokes come with coordinates and
// density weights.
func TestRadialCarriesTrajectory(t *testing.T) {
	p := Params{Matrix: 16, Coils: 2, Spokes: 7}
	s, err := Radial(p, acquisition.TrajectoryGoldenAngle)
	if err != nil {
		t.Fatalf("Radial failed: %v", err)
	}
	if s.Len() != 7 {
		t.Errorf("Expected 7 spokes, got %d", s.Len())
	}
	for i := 0; i < s.Len(); i++ {
		a := s.At(i)
		if a.TrajDims != 2 || len(a.Traj) != 2*16 {
			t.Fatalf("spoke %d has no trajectory", i)
		}
		if len(a.DCW) != 16 {
			t.Fatalf("spoke %d has no density weights", i)
		}
	}
	if s.Norm() == 0 {
		t.Error("simulated spokes hold no signal")
	}
}

// TestRadialRejectsCartesian verifies trajectory validation.
func TestRadialRejectsCartesian(t *testing.T) {
	p := Params{Matrix: 16, Coils: 2, Spokes: 7}
	if _, err := Radial(p, acquisition.TrajectoryCartesian); err == nil {
		t.Error("Radial accepted a Cartesian trajectory")
	}
	if _, err := Radial(Params{Matrix: 16, Coils: 2}, acquisition.TrajectoryRadial); err == nil {
		t.Error("Radial accepted zero spokes")
	}
}

// TestParamValidation verifies the matrix and coil checks.
func TestParamValidation(t *testing.T) {
	if _, err := Cartesian(Params{Matrix: 6, Coils: 1}); err == nil {
		t.Error("accepted a matrix below the minimum")
	}
	if _, err := Cartesian(Params{Matrix: 15, Coils: 1}); err == nil {
		t.Error("accepted an odd matrix")
	}
	if _, err := Cartesian(Params{Matrix: 16, Coils: 0}); err == nil {
		t.Error("accepted zero coils")
	}
}

// TestNoiseIsReproducible verifies that equal seeds give equal datasets and
// different seeds differ.
func TestNoiseIsReproducible(t *testing.T) {
	p := Params{Matrix: 16, Coils: 1, NoiseSigma: 0.1, Seed: 9}
	a, err := Cartesian(p)
	if err != nil {
		t.Fatal(err)
	}
	b, err := Cartesian(p)
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < a.Len(); i++ {
		for j, v := range a.At(i).Data {
			if b.At(i).Data[j] != v {
				t.Fatalf("same seed produced different data at readout %d sample %d", i, j)
			}
		}
	}

	p.Seed = 10
	c, err := Cartesian(p)
	if err != nil {
		t.Fatal(err)
	}
	same := true
	for i := 0; i < a.Len() && same; i++ {
		for j, v := range a.At(i).Data {
			if c.At(i).Data[j] != v {
				same = false
				break
			}
		}
	}
	if same {
		t.Error("different seeds produced identical noise")
	}
}
