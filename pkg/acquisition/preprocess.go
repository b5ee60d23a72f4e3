package acquisition

import (
	"fmt"
)

// RemoveReadoutOversampling strips the frequency-direction oversampling a
// scanner applies during acquisition: each readout is transformed to image
// space, cropped to the central nominal band, and transformed back. The
// result is a new store with OversamplingFactor 1; the input is untouched.
// A store already at nominal resolution is returned as an unmodified clone.
func RemoveReadoutOversampling(s *Store) (*Store, error) {
	if s.Info.OversamplingFactor <= 1 {
		return s.Clone(), nil
	}
	factor := s.Info.OversamplingFactor
	nx := s.Info.MatrixX
	wide := nx * factor

	info := s.Info
	info.OversamplingFactor = 1
	out := NewStore(info)

	coils := s.Info.Coils
	for i := 0; i < s.Len(); i++ {
		a := s.At(i)
		n := a.Samples(coils)
		if n != wide {
			return nil, fmt.Errorf("readout %d has %d samples, expected %d (matrix %d x oversampling %d)",
				i, n, wide, nx, factor)
		}
		b := &Acquisition{
			Data:      make([]complex128, coils*nx),
			Step:      a.Step,
			Flags:     a.Flags,
			Timestamp: a.Timestamp,
		}
		offset := (wide - nx) / 2
		line := make([]complex128, wide)
		for c := 0; c < coils; c++ {
			copy(line, a.CoilData(c, coils))
			IFFT1D(line)
			cropped := make([]complex128, nx)
			copy(cropped, line[offset:offset+nx])
			FFT1D(cropped)
			copy(b.Data[c*nx:(c+1)*nx], cropped)
		}
		// Trajectory coordinates and weights refer to the oversampled grid
		// and are dropped; non-Cartesian callers assign them afterwards.
		out.Append(b)
	}
	return out, nil
}
