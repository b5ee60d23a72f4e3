package acquisition

import (
	"errors"
	"math/cmplx"
	"math/rand"
	"reflect"
	"testing"
)

// testInfo returns a small Cartesian geometry used throughout the tests.
func testInfo(nx, ny, coils int) EncodingInfo {
	return EncodingInfo{
		MatrixX:            nx,
		MatrixY:            ny,
		MatrixZ:            1,
		Coils:              coils,
		FOVx:               256,
		FOVy:               256,
		FOVz:               8,
		OversamplingFactor: 1,
		Trajectory:         TrajectoryCartesian,
	}
}

// fillStore appends one readout per phase-encode step in the given order,
// with deterministic pseudo-random sample data.
func fillStore(s *Store, phases []int, rep int) {
	rng := rand.New(rand.NewSource(int64(rep) + 7))
	nx := s.Info.ReadoutSamples()
	for i, p := range phases {
		data := make([]complex128, s.Info.Coils*nx)
		for j := range data {
			data[j] = complex(rng.NormFloat64(), rng.NormFloat64())
		}
		s.Append(&Acquisition{
			Data:      data,
			Step:      EncodingStep{Phase: p, Repetition: rep},
			Timestamp: uint64(i),
		})
	}
}

// TestSortBuildsKSpaceOrder verifies that sorting a shuffled Cartesian store
// produces one subset whose readouts run in phase-encode order.
func TestSortBuildsKSpaceOrder(t *testing.T) {
	s := NewStore(testInfo(8, 6, 2))
	fillStore(s, []int{3, 0, 5, 1, 4, 2}, 0)

	if s.Sorted() {
		t.Fatal("store reports sorted before Sort")
	}
	if err := s.Sort(); err != nil {
		t.Fatalf("Sort failed: %v", err)
	}
	if !s.Sorted() {
		t.Fatal("store does not report sorted after Sort")
	}

	order, err := s.KSpaceOrder()
	if err != nil {
		t.Fatalf("KSpaceOrder failed: %v", err)
	}
	if len(order) != 1 {
		t.Fatalf("Expected 1 subset, got %d", len(order))
	}
	for pos, idx := range order[0] {
		if got := s.At(idx).Step.Phase; got != pos {
			t.Errorf("Position %d holds phase-encode step %d, want %d", pos, got, pos)
		}
	}
}

// TestSortIdempotent verifies that a second Sort leaves the readout order
// and the k-space order unchanged.
func TestSortIdempotent(t *testing.T) {
	s := NewStore(testInfo(8, 6, 2))
	fillStore(s, []int{5, 2, 0, 4, 1, 3}, 0)

	if err := s.Sort(); err != nil {
		t.Fatalf("first Sort failed: %v", err)
	}
	first, _ := s.KSpaceOrder()
	firstData := append([]complex128(nil), s.At(0).Data...)

	if err := s.Sort(); err != nil {
		t.Fatalf("second Sort failed: %v", err)
	}
	second, _ := s.KSpaceOrder()

	if !reflect.DeepEqual(first, second) {
		t.Errorf("k-space order changed between sorts: %v vs %v", first, second)
	}
	for j, v := range s.At(0).Data {
		if v != firstData[j] {
			t.Fatalf("readout 0 sample %d changed between sorts", j)
		}
	}
}

// TestSortSeparatesSubsets verifies that readouts from different repetitions
// land in different subsets, ordered by tag.
func TestSortSeparatesSubsets(t *testing.T) {
	s := NewStore(testInfo(8, 4, 1))
	fillStore(s, []int{1, 3, 0, 2}, 1)
	fillStore(s, []int{2, 0, 3, 1}, 0)

	if err := s.Sort(); err != nil {
		t.Fatalf("Sort failed: %v", err)
	}
	tags, err := s.SubsetTags()
	if err != nil {
		t.Fatalf("SubsetTags failed: %v", err)
	}
	if len(tags) != 2 {
		t.Fatalf("Expected 2 subsets, got %d", len(tags))
	}
	if tags[0].Repetition != 0 || tags[1].Repetition != 1 {
		t.Errorf("Subsets not in tag order: %+v", tags)
	}

	order, _ := s.KSpaceOrder()
	for k, indices := range order {
		if len(indices) != 4 {
			t.Errorf("Subset %d holds %d readouts, want 4", k, len(indices))
		}
		for _, idx := range indices {
			if rep := s.At(idx).Step.Repetition; rep != tags[k].Repetition {
				t.Errorf("Subset %d contains readout of repetition %d", k, rep)
			}
		}
	}
}

// TestSortMissingPhaseEncode verifies that a Cartesian store with a gap in
// phase-encode coverage fails with an InconsistentSamplingError.
func TestSortMissingPhaseEncode(t *testing.T) {
	s := NewStore(testInfo(8, 6, 2))
	fillStore(s, []int{0, 1, 2, 4, 5}, 0) // step 3 missing

	err := s.Sort()
	if err == nil {
		t.Fatal("Sort accepted a store with a missing phase-encode step")
	}
	var ise *InconsistentSamplingError
	if !errors.As(err, &ise) {
		t.Fatalf("Expected InconsistentSamplingError, got %T: %v", err, err)
	}
	if s.Sorted() {
		t.Error("store reports sorted after failed Sort")
	}
}

// TestSortDuplicatePhaseEncode verifies that repeated phase-encode steps in
// one Cartesian subset are rejected.
func TestSortDuplicatePhaseEncode(t *testing.T) {
	s := NewStore(testInfo(8, 4, 1))
	fillStore(s, []int{0, 1, 2, 3, 2}, 0)

	var ise *InconsistentSamplingError
	if err := s.Sort(); !errors.As(err, &ise) {
		t.Fatalf("Expected InconsistentSamplingError, got %v", err)
	}
}

// TestSortPartialAcceptsIncompleteCoverage verifies that SortPartial sorts
// a Cartesian store covering only a band of phase-encode steps, as a
// calibration extraction does, while still rejecting duplicates.
func TestSortPartialAcceptsIncompleteCoverage(t *testing.T) {
	s := NewStore(testInfo(8, 16, 2))
	fillStore(s, []int{6, 4, 7, 5}, 0) // central band only

	if err := s.Sort(); err == nil {
		t.Fatal("Sort accepted an incomplete Cartesian store")
	}
	if err := s.SortPartial(); err != nil {
		t.Fatalf("SortPartial failed: %v", err)
	}
	if !s.Sorted() {
		t.Fatal("store does not report sorted after SortPartial")
	}
	order, err := s.KSpaceOrder()
	if err != nil {
		t.Fatalf("KSpaceOrder failed: %v", err)
	}
	for pos, idx := range order[0] {
		if got := s.At(idx).Step.Phase; got != pos+4 {
			t.Errorf("Position %d holds phase-encode step %d, want %d", pos, got, pos+4)
		}
	}

	dup := NewStore(testInfo(8, 16, 2))
	fillStore(dup, []int{4, 5, 5}, 0)
	var ise *InconsistentSamplingError
	if err := dup.SortPartial(); !errors.As(err, &ise) {
		t.Fatalf("Expected InconsistentSamplingError, got %v", err)
	}
}

// TestSortReadoutLengthMismatch verifies that readouts of different sample
// counts within one subset are rejected.
func TestSortReadoutLengthMismatch(t *testing.T) {
	s := NewStore(testInfo(8, 2, 1))
	fillStore(s, []int{0}, 0)
	s.Append(&Acquisition{
		Data: make([]complex128, 4), // half a readout
		Step: EncodingStep{Phase: 1},
	})

	var ise *InconsistentSamplingError
	if err := s.Sort(); !errors.As(err, &ise) {
		t.Fatalf("Expected InconsistentSamplingError, got %v", err)
	}
}

// TestSortSkipsNoiseReadouts verifies that noise-measurement readouts are
// excluded from the k-space order.
func TestSortSkipsNoiseReadouts(t *testing.T) {
	s := NewStore(testInfo(8, 4, 1))
	s.Append(&Acquisition{
		Data:  make([]complex128, 8),
		Flags: FlagNoiseMeasurement,
	})
	fillStore(s, []int{0, 1, 2, 3}, 0)

	if err := s.Sort(); err != nil {
		t.Fatalf("Sort failed: %v", err)
	}
	order, _ := s.KSpaceOrder()
	if len(order) != 1 || len(order[0]) != 4 {
		t.Fatalf("Expected one subset of 4 imaging readouts, got %v", order)
	}
	for _, idx := range order[0] {
		if s.At(idx).Flags.Has(FlagNoiseMeasurement) {
			t.Error("noise readout appears in k-space order")
		}
	}
}

// TestCalibrationIndices verifies that both calibration flag variants are
// picked up.
func TestCalibrationIndices(t *testing.T) {
	s := NewStore(testInfo(8, 4, 1))
	fillStore(s, []int{0, 1, 2, 3}, 0)
	s.At(1).Flags = FlagParallelCalibration
	s.At(3).Flags = FlagParallelCalibrationAndImaging

	got := s.CalibrationIndices()
	want := []int{1, 3}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("CalibrationIndices = %v, want %v", got, want)
	}
}

// TestSubsetOutOfRange verifies index validation in Subset.
func TestSubsetOutOfRange(t *testing.T) {
	s := NewStore(testInfo(8, 2, 1))
	fillStore(s, []int{0, 1}, 0)

	if _, err := s.Subset([]int{0, 5}); err == nil {
		t.Error("Subset accepted an out-of-range index")
	}
	sub, err := s.Subset([]int{1})
	if err != nil {
		t.Fatalf("Subset failed: %v", err)
	}
	if sub.Len() != 1 || sub.At(0).Step.Phase != 1 {
		t.Errorf("Subset returned wrong readout: %+v", sub.At(0).Step)
	}
}

// TestCloneIsDeep verifies that mutating a clone leaves the original
// untouched.
func TestCloneIsDeep(t *testing.T) {
	s := NewStore(testInfo(8, 2, 1))
	fillStore(s, []int{0, 1}, 0)
	orig := s.At(0).Data[0]

	c := s.Clone()
	c.At(0).Data[0] = complex(999, 0)

	if s.At(0).Data[0] != orig {
		t.Error("mutating a clone changed the original store")
	}
}

// TestSortByTime verifies stable ordering by acquisition timestamp.
func TestSortByTime(t *testing.T) {
	s := NewStore(testInfo(8, 3, 1))
	for i, ts := range []uint64{20, 5, 11} {
		s.Append(&Acquisition{
			Data:      make([]complex128, 8),
			Step:      EncodingStep{Phase: i},
			Timestamp: ts,
		})
	}
	s.SortByTime()
	want := []uint64{5, 11, 20}
	for i, ts := range want {
		if got := s.At(i).Timestamp; got != ts {
			t.Errorf("Position %d has timestamp %d, want %d", i, got, ts)
		}
	}
}

// TestDotAndAxpbyRequireSortedData verifies that the container algebra
// refuses unsorted operands.
func TestDotAndAxpbyRequireSortedData(t *testing.T) {
	x := NewStore(testInfo(8, 2, 1))
	fillStore(x, []int{0, 1}, 0)
	y := x.Clone()

	if _, err := x.Dot(y); err == nil {
		t.Error("Dot accepted unsorted operands")
	}
	if _, err := Axpby(1, x, 1, y); err == nil {
		t.Error("Axpby accepted unsorted operands")
	}
}

// TestAlgebraIdentities checks Norm, Dot and Axpby against each other on a
// sorted store: <x, x> must equal Norm(x)^2, and 2*x - x must equal x.
func TestAlgebraIdentities(t *testing.T) {
	x := NewStore(testInfo(8, 4, 2))
	fillStore(x, []int{0, 1, 2, 3}, 0)
	if err := x.Sort(); err != nil {
		t.Fatalf("Sort failed: %v", err)
	}

	norm := x.Norm()
	if norm <= 0 {
		t.Fatalf("Norm = %g, want > 0", norm)
	}

	dot, err := x.Dot(x)
	if err != nil {
		t.Fatalf("Dot failed: %v", err)
	}
	if diff := cmplx.Abs(dot - complex(norm*norm, 0)); diff > 1e-9*norm*norm {
		t.Errorf("<x,x> = %v, want Norm^2 = %g", dot, norm*norm)
	}

	z, err := Axpby(2, x, -1, x)
	if err != nil {
		t.Fatalf("Axpby failed: %v", err)
	}
	for i := 0; i < x.Len(); i++ {
		for j, v := range x.At(i).Data {
			if d := cmplx.Abs(z.At(i).Data[j] - v); d > 1e-12 {
				t.Fatalf("2*x - x differs from x at readout %d sample %d by %g", i, j, d)
			}
		}
	}
}
