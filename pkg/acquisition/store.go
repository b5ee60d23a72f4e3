// Package acquisition holds raw multi-coil k-space readouts and the
// container operations the reconstruction pipeline needs: k-space sorting,
// subset extraction, readout preprocessing and container algebra.
package acquisition

import (
	"fmt"
	"sort"
)

// Acquisition is a single readout: one pass of the ADC across k-space for
// all receiver channels at once. Sample data is coil-major: the block for
// coil c spans Data[c*n : (c+1)*n] where n is the number of readout samples.
// An Acquisition is immutable once appended to a Store.
type Acquisition struct {
	// Data holds the complex samples of all coils, coil-major.
	Data []complex128

	// Step holds the encoding counters of this readout.
	Step EncodingStep

	// Traj holds the k-space coordinates of each sample, TrajDims values
	// per sample. Empty until a trajectory is assigned; Cartesian stores
	// may leave it empty.
	Traj []float64

	// TrajDims is the number of trajectory coordinates per sample.
	TrajDims int

	// DCW holds one density-compensation weight per sample. Empty for
	// Cartesian data.
	DCW []float64

	// Flags carries the scanner markers of this readout.
	Flags Flags

	// Timestamp orders readouts by acquisition time (arbitrary units).
	Timestamp uint64
}

// Samples returns the number of readout samples per coil.
func (a *Acquisition) Samples(coils int) int {
	if coils <= 0 {
		return 0
	}
	return len(a.Data) / coils
}

// CoilData returns the sample block of one coil. The returned slice aliases
// the acquisition data and must not be modified.
func (a *Acquisition) CoilData(c, coils int) []complex128 {
	n := a.Samples(coils)
	return a.Data[c*n : (c+1)*n]
}

// Store is an ordered container of acquisitions sharing one encoding
// geometry. A Store is single-owner: it is filled once and read-mostly
// afterwards.
type Store struct {
	// Info is the geometry shared by all readouts.
	Info EncodingInfo

	acqs   []*Acquisition
	sorted bool

	// subsets is the k-space order built by Sort: one index set per
	// reconstructible subset, in tag order.
	subsets []subset
}

type subset struct {
	tag     SubsetTag
	indices []int
}

// NewStore creates an empty store with the given encoding geometry.
func NewStore(info EncodingInfo) *Store {
	return &Store{Info: info}
}

// Append adds a readout to the store. Appending invalidates any previous
// sort.
func (s *Store) Append(a *Acquisition) {
	s.acqs = append(s.acqs, a)
	s.sorted = false
	s.subsets = nil
}

// Len returns the number of stored readouts.
func (s *Store) Len() int { return len(s.acqs) }

// At returns the i-th readout in container order.
func (s *Store) At(i int) *Acquisition { return s.acqs[i] }

// Sorted reports whether Sort has run since the last mutation.
func (s *Store) Sorted() bool { return s.sorted }

// Clone returns a deep copy of the store, including sort state.
func (s *Store) Clone() *Store {
	out := NewStore(s.Info)
	out.acqs = make([]*Acquisition, len(s.acqs))
	for i, a := range s.acqs {
		out.acqs[i] = cloneAcquisition(a)
	}
	if s.sorted {
		out.sorted = true
		out.subsets = make([]subset, len(s.subsets))
		for i, sub := range s.subsets {
			out.subsets[i] = subset{tag: sub.tag, indices: append([]int(nil), sub.indices...)}
		}
	}
	return out
}

func cloneAcquisition(a *Acquisition) *Acquisition {
	b := &Acquisition{
		Step:      a.Step,
		TrajDims:  a.TrajDims,
		Flags:     a.Flags,
		Timestamp: a.Timestamp,
	}
	b.Data = append([]complex128(nil), a.Data...)
	if a.Traj != nil {
		b.Traj = append([]float64(nil), a.Traj...)
	}
	if a.DCW != nil {
		b.DCW = append([]float64(nil), a.DCW...)
	}
	return b
}

// Subset returns a new store containing copies of the readouts at the given
// indices, in the given order. The subset inherits the encoding geometry.
func (s *Store) Subset(indices []int) (*Store, error) {
	out := NewStore(s.Info)
	for _, i := range indices {
		if i < 0 || i >= len(s.acqs) {
			return nil, fmt.Errorf("subset index %d out of range [0,%d)", i, len(s.acqs))
		}
		out.Append(cloneAcquisition(s.acqs[i]))
	}
	return out, nil
}

// SortByTime stable-sorts the readouts by acquisition timestamp. It does not
// build the k-space order; use Sort for that.
func (s *Store) SortByTime() {
	sort.SliceStable(s.acqs, func(i, j int) bool {
		return s.acqs[i].Timestamp < s.acqs[j].Timestamp
	})
}

// InconsistentSamplingError reports that sorting could not reconcile the
// stored readouts into a dense per-coil layout.
type InconsistentSamplingError struct {
	Reason string
	Tag    SubsetTag
}

func (e *InconsistentSamplingError) Error() string {
	return fmt.Sprintf("inconsistent sampling in subset %+v: %s", e.Tag, e.Reason)
}

// Sort orders the readouts for reconstruction and builds the k-space order:
// one index set per (average, slice, contrast, repetition) subset, each set
// ordered by phase-encode step and timestamp. Sorting is idempotent.
//
// Every readout in a subset must have the same sample count; Cartesian
// stores must additionally cover every phase-encode step of the matrix.
// Violations fail with an InconsistentSamplingError. Non-Cartesian layouts
// tolerate irregular step coverage because their samples carry explicit
// trajectory coordinates and density weights.
func (s *Store) Sort() error {
	return s.sortChecked(true)
}

// SortPartial sorts like Sort but accepts Cartesian subsets that cover only
// part of the phase-encode range. Calibration extractions need this: a
// parallel-imaging scan flags a central band of lines, and the band alone
// can never pass the full-coverage check.
func (s *Store) SortPartial() error {
	return s.sortChecked(false)
}

func (s *Store) sortChecked(complete bool) error {
	if len(s.acqs) == 0 {
		return &InconsistentSamplingError{Reason: "store is empty"}
	}

	sort.SliceStable(s.acqs, func(i, j int) bool {
		a, b := s.acqs[i].Step, s.acqs[j].Step
		if a.Slice != b.Slice {
			return a.Slice < b.Slice
		}
		if a.Phase != b.Phase {
			return a.Phase < b.Phase
		}
		return s.acqs[i].Timestamp < s.acqs[j].Timestamp
	})

	// Group into subsets by tag, preserving the order above.
	order := make(map[SubsetTag]int)
	var subsets []subset
	for i, a := range s.acqs {
		if a.Flags.Has(FlagNoiseMeasurement) {
			continue
		}
		tag := a.Step.Tag()
		k, ok := order[tag]
		if !ok {
			k = len(subsets)
			order[tag] = k
			subsets = append(subsets, subset{tag: tag})
		}
		subsets[k].indices = append(subsets[k].indices, i)
	}
	sort.SliceStable(subsets, func(i, j int) bool {
		return lessTag(subsets[i].tag, subsets[j].tag)
	})

	for _, sub := range subsets {
		if err := s.checkSubset(sub, complete); err != nil {
			return err
		}
	}

	s.subsets = subsets
	s.sorted = true
	return nil
}

func lessTag(a, b SubsetTag) bool {
	if a.Repetition != b.Repetition {
		return a.Repetition < b.Repetition
	}
	if a.Contrast != b.Contrast {
		return a.Contrast < b.Contrast
	}
	if a.Average != b.Average {
		return a.Average < b.Average
	}
	return a.Slice < b.Slice
}

func (s *Store) checkSubset(sub subset, complete bool) error {
	coils := s.Info.Coils
	want := -1
	seen := make(map[int]bool)
	for _, i := range sub.indices {
		a := s.acqs[i]
		n := a.Samples(coils)
		if want < 0 {
			want = n
		} else if n != want {
			return &InconsistentSamplingError{
				Tag:    sub.tag,
				Reason: fmt.Sprintf("readout length %d conflicts with %d", n, want),
			}
		}
		if seen[a.Step.Phase] && s.Info.Trajectory.Cartesian() {
			return &InconsistentSamplingError{
				Tag:    sub.tag,
				Reason: fmt.Sprintf("duplicate phase-encode step %d", a.Step.Phase),
			}
		}
		seen[a.Step.Phase] = true
	}
	if complete && s.Info.Trajectory.Cartesian() {
		for p := 0; p < s.Info.MatrixY; p++ {
			if !seen[p] {
				return &InconsistentSamplingError{
					Tag:    sub.tag,
					Reason: fmt.Sprintf("phase-encode step %d missing", p),
				}
			}
		}
	}
	return nil
}

// KSpaceOrder returns one index set per reconstructible subset, in tag
// order. It fails if the store has not been sorted.
func (s *Store) KSpaceOrder() ([][]int, error) {
	if !s.sorted {
		return nil, fmt.Errorf("k-space order requested before Sort")
	}
	out := make([][]int, len(s.subsets))
	for i, sub := range s.subsets {
		out[i] = append([]int(nil), sub.indices...)
	}
	return out, nil
}

// SubsetTags returns the tag of each reconstructible subset, aligned with
// KSpaceOrder.
func (s *Store) SubsetTags() ([]SubsetTag, error) {
	if !s.sorted {
		return nil, fmt.Errorf("subset tags requested before Sort")
	}
	out := make([]SubsetTag, len(s.subsets))
	for i, sub := range s.subsets {
		out[i] = sub.tag
	}
	return out, nil
}

// CalibrationIndices returns the indices of readouts flagged for parallel
// calibration, in container order. An empty result means the store carries
// no dedicated calibration data and the full store should be used instead.
func (s *Store) CalibrationIndices() []int {
	var out []int
	for i, a := range s.acqs {
		if a.Flags.IsCalibration() {
			out = append(out, i)
		}
	}
	return out
}

// Trajectory returns all sample coordinates as a flat [dims][n] layout:
// first every kx, then every ky, and so on. Used for trajectory plots.
func (s *Store) Trajectory() (coords [][]float64, dims int) {
	for _, a := range s.acqs {
		if a.TrajDims > dims {
			dims = a.TrajDims
		}
	}
	if dims == 0 {
		return nil, 0
	}
	coords = make([][]float64, dims)
	for _, a := range s.acqs {
		if a.TrajDims != dims {
			continue
		}
		n := len(a.Traj) / dims
		for i := 0; i < n; i++ {
			for d := 0; d < dims; d++ {
				coords[d] = append(coords[d], a.Traj[i*dims+d])
			}
		}
	}
	return coords, dims
}
