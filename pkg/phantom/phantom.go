// Package phantom simulates multi-coil MR acquisitions of a synthetic
// ellipse phantom. The demos fall back to it when no capture file is given
// and the tests build their datasets from it.
package phantom

import (
	"fmt"
	"math"
	"math/rand"

	"mrkspace/internal/encoding"
	"mrkspace/pkg/acquisition"
	"mrkspace/pkg/imagedata"
	"mrkspace/pkg/trajectory"
)

// Params configures a simulated acquisition.
type Params struct {
	// Matrix is the square image matrix size.
	Matrix int

	// Coils is the number of simulated receiver channels.
	Coils int

	// Spokes is the number of radial readouts (radial and golden-angle
	// trajectories only).
	Spokes int

	// Oversample adds 2x readout oversampling to Cartesian raw data, as a
	// scanner would.
	Oversample bool

	// NoiseSigma is the standard deviation of complex Gaussian noise added
	// per sample; zero for noiseless data.
	NoiseSigma float64

	// Seed drives the noise generator so datasets are reproducible.
	Seed int64
}

// DefaultParams returns the dataset used by the demos: a 64-matrix 8-coil
// noiseless phantom.
func DefaultParams() Params {
	return Params{Matrix: 64, Coils: 8, Spokes: 101, Oversample: true}
}

// Image rasterizes the phantom: a head-like outer ellipse with two inner
// structures of different intensity, on a zero background.
func Image(n int) *imagedata.Image {
	img := imagedata.New(n, n, 1, 1)
	type ellipse struct {
		cx, cy, rx, ry, value float64
	}
	shapes := []ellipse{
		{0, 0, 0.78, 0.88, 1.0},
		{-0.25, 0.15, 0.22, 0.30, -0.45},
		{0.25, 0.15, 0.18, 0.26, -0.30},
		{0, -0.45, 0.12, 0.12, 0.55},
	}
	for y := 0; y < n; y++ {
		fy := 2*float64(y-n/2)/float64(n) + 1.0/float64(n)
		for x := 0; x < n; x++ {
			fx := 2*float64(x-n/2)/float64(n) + 1.0/float64(n)
			var v float64
			for _, e := range shapes {
				dx := (fx - e.cx) / e.rx
				dy := (fy - e.cy) / e.ry
				if dx*dx+dy*dy <= 1 {
					v += e.value
				}
			}
			img.Data[y*n+x] = complex(v, 0)
		}
	}
	return img
}

// Sensitivities builds birdcage-style coil sensitivities: each coil sits on
// a circle around the object and its response falls off with distance,
// with a smooth spatial phase. Maps are returned RSS-normalized, so they
// can serve directly as ground-truth sensitivity maps.
func Sensitivities(n, coils int) *imagedata.Image {
	img := imagedata.New(n, n, 1, coils)
	radius := 1.6
	for c := 0; c < coils; c++ {
		angle := 2 * math.Pi * float64(c) / float64(coils)
		cx := radius * math.Cos(angle)
		cy := radius * math.Sin(angle)
		dst := img.Channel(c)
		for y := 0; y < n; y++ {
			fy := 2 * float64(y-n/2) / float64(n)
			for x := 0; x < n; x++ {
				fx := 2 * float64(x-n/2) / float64(n)
				d2 := (fx-cx)*(fx-cx) + (fy-cy)*(fy-cy)
				mag := 1 / d2
				ph := 0.5 * (fx*math.Cos(angle) + fy*math.Sin(angle))
				dst[y*n+x] = complex(mag*math.Cos(ph), mag*math.Sin(ph))
			}
		}
	}
	// RSS-normalize so the sum of squared magnitudes is one everywhere.
	vox := n * n
	for i := 0; i < vox; i++ {
		var sum float64
		for c := 0; c < coils; c++ {
			v := img.Data[c*vox+i]
			sum += real(v)*real(v) + imag(v)*imag(v)
		}
		s := complex(1/math.Sqrt(sum), 0)
		for c := 0; c < coils; c++ {
			img.Data[c*vox+i] *= s
		}
	}
	return img
}

// CoilImage returns the per-coil view of the phantom, S_c times the
// phantom image.
func CoilImage(n, coils int) *imagedata.Image {
	obj := Image(n)
	sens := Sensitivities(n, coils)
	out := imagedata.New(n, n, 1, coils)
	vox := n * n
	for c := 0; c < coils; c++ {
		s := sens.Channel(c)
		dst := out.Channel(c)
		for i := 0; i < vox; i++ {
			dst[i] = s[i] * obj.Data[i]
		}
	}
	return out
}

// Cartesian simulates a fully sampled 2D Cartesian acquisition. With
// p.Oversample the raw readouts carry 2x frequency-direction oversampling,
// so the store needs preprocessing before reconstruction, exactly like
// scanner output.
func Cartesian(p Params) (*acquisition.Store, error) {
	if err := checkParams(p); err != nil {
		return nil, err
	}
	n := p.Matrix
	factor := 1
	if p.Oversample {
		factor = 2
	}
	wide := n * factor

	coilImg := CoilImage(n, p.Coils)

	// Embed each coil image in the oversampled readout grid and transform.
	grids := make([][]complex128, p.Coils)
	for c := 0; c < p.Coils; c++ {
		grid := make([]complex128, wide*n)
		src := coilImg.Channel(c)
		off := (wide - n) / 2
		for y := 0; y < n; y++ {
			copy(grid[y*wide+off:y*wide+off+n], src[y*n:(y+1)*n])
		}
		acquisition.FFT2D(grid, wide, n)
		grids[c] = grid
	}

	info := acquisition.EncodingInfo{
		MatrixX: n, MatrixY: n, MatrixZ: 1,
		Coils:              p.Coils,
		FOVx:               256, FOVy: 256, FOVz: 8,
		OversamplingFactor: factor,
		Trajectory:         acquisition.TrajectoryCartesian,
	}
	store := acquisition.NewStore(info)
	rng := rand.New(rand.NewSource(p.Seed))
	for ky := 0; ky < n; ky++ {
		a := &acquisition.Acquisition{
			Data:      make([]complex128, p.Coils*wide),
			Step:      acquisition.EncodingStep{Phase: ky},
			Timestamp: uint64(ky),
		}
		for c := 0; c < p.Coils; c++ {
			copy(a.Data[c*wide:(c+1)*wide], grids[c][ky*wide:(ky+1)*wide])
		}
		addNoise(a.Data, p.NoiseSigma, rng)
		store.Append(a)
	}
	return store, nil
}

// Radial simulates a 2D radial or golden-angle acquisition by evaluating
// the non-uniform Fourier sum of the coil images on each spoke. The
// returned store already carries trajectory coordinates and density
// weights.
func Radial(p Params, kind acquisition.TrajectoryType) (*acquisition.Store, error) {
	if err := checkParams(p); err != nil {
		return nil, err
	}
	if kind != acquisition.TrajectoryRadial && kind != acquisition.TrajectoryGoldenAngle {
		return nil, fmt.Errorf("radial simulation supports radial and goldenangle trajectories, got %v", kind)
	}
	if p.Spokes < 1 {
		return nil, fmt.Errorf("radial simulation needs at least one spoke")
	}
	n := p.Matrix

	info := acquisition.EncodingInfo{
		MatrixX: n, MatrixY: n, MatrixZ: 1,
		Coils:              p.Coils,
		FOVx:               256, FOVy: 256, FOVz: 8,
		OversamplingFactor: 1,
		Trajectory:         kind,
	}
	store := acquisition.NewStore(info)
	for s := 0; s < p.Spokes; s++ {
		store.Append(&acquisition.Acquisition{
			Data:      make([]complex128, p.Coils*n),
			Step:      acquisition.EncodingStep{Phase: s},
			Timestamp: uint64(s),
		})
	}
	if err := trajectory.Assign(store, kind); err != nil {
		return nil, err
	}

	nu, err := encoding.ForStore(info, 0)
	if err != nil {
		return nil, err
	}
	if err := nu.Forward(CoilImage(n, p.Coils), store); err != nil {
		return nil, fmt.Errorf("simulating radial samples: %w", err)
	}

	if p.NoiseSigma > 0 {
		rng := rand.New(rand.NewSource(p.Seed))
		for i := 0; i < store.Len(); i++ {
			addNoise(store.At(i).Data, p.NoiseSigma, rng)
		}
	}
	return store, nil
}

func checkParams(p Params) error {
	if p.Matrix < 8 || p.Matrix%2 != 0 {
		return fmt.Errorf("phantom matrix must be even and at least 8, got %d", p.Matrix)
	}
	if p.Coils < 1 {
		return fmt.Errorf("phantom needs at least one coil, got %d", p.Coils)
	}
	return nil
}

func addNoise(data []complex128, sigma float64, rng *rand.Rand) {
	if sigma <= 0 {
		return
	}
	for i := range data {
		data[i] += complex(rng.NormFloat64()*sigma, rng.NormFloat64()*sigma)
	}
}
