package acquisition

import (
	"fmt"
	"math"
	"math/cmplx"
)

// Norm returns the Euclidean norm over every stored sample. Unlike Dot and
// Axpby it does not require the store to be sorted, so it can be used on
// freshly loaded data.
func (s *Store) Norm() float64 {
	var sum float64
	for _, a := range s.acqs {
		for _, v := range a.Data {
			sum += real(v)*real(v) + imag(v)*imag(v)
		}
	}
	return math.Sqrt(sum)
}

// Dot returns the inner product <s, other> = sum conj(other_i) * s_i over
// all samples. Both operands must be sorted so that samples align; the
// stores must hold the same number of readouts of equal length.
func (s *Store) Dot(other *Store) (complex128, error) {
	if !s.sorted || !other.sorted {
		return 0, fmt.Errorf("dot product cannot be applied to unsorted data")
	}
	if len(s.acqs) != len(other.acqs) {
		return 0, fmt.Errorf("dot product operand has %d readouts, want %d", other.Len(), s.Len())
	}
	var sum complex128
	for i, a := range s.acqs {
		b := other.acqs[i]
		if len(a.Data) != len(b.Data) {
			return 0, fmt.Errorf("dot product readout %d has %d samples, want %d", i, len(b.Data), len(a.Data))
		}
		for j, v := range a.Data {
			sum += v * cmplx.Conj(b.Data[j])
		}
	}
	return sum, nil
}

// Axpby returns a*x + b*y as a new store with x's geometry and metadata.
// Both operands must be sorted and sample-aligned.
func Axpby(a complex128, x *Store, b complex128, y *Store) (*Store, error) {
	if !x.sorted || !y.sorted {
		return nil, fmt.Errorf("a*x + b*y cannot be applied to unsorted x or y")
	}
	if x.Len() != y.Len() {
		return nil, fmt.Errorf("a*x + b*y operands hold %d and %d readouts", x.Len(), y.Len())
	}
	out := x.Clone()
	for i, acq := range out.acqs {
		ya := y.acqs[i]
		if len(acq.Data) != len(ya.Data) {
			return nil, fmt.Errorf("a*x + b*y readout %d length mismatch: %d vs %d", i, len(acq.Data), len(ya.Data))
		}
		for j := range acq.Data {
			acq.Data[j] = a*acq.Data[j] + b*ya.Data[j]
		}
	}
	return out, nil
}
