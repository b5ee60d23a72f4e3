// Package encoding implements the Fourier encoders mapping between image
// space and stored k-space samples. The Cartesian encoder uses grid FFTs;
// the non-uniform encoder evaluates an explicit discrete Fourier sum at the
// assigned trajectory coordinates, which is exact for arbitrary sampling.
package encoding

import (
	"fmt"
	"math"
	"runtime"
	"sync"

	"mrkspace/pkg/acquisition"
	"mrkspace/pkg/imagedata"
)

// Encoder maps a multi-channel image to the sample layout of an acquisition
// store and back. Forward fills dst's sample data from img; Adjoint
// accumulates src's samples into img. Both operate per coil.
type Encoder interface {
	Forward(img *imagedata.Image, dst *acquisition.Store) error
	Adjoint(src *acquisition.Store, img *imagedata.Image) error
}

// ForStore selects the encoder matching the store's trajectory type.
func ForStore(info acquisition.EncodingInfo, workers int) (Encoder, error) {
	if workers < 1 {
		workers = runtime.NumCPU()
	}
	switch info.Trajectory {
	case acquisition.TrajectoryCartesian:
		return &Cartesian{workers: workers}, nil
	case acquisition.TrajectoryRadial, acquisition.TrajectoryGoldenAngle, acquisition.TrajectoryGRPE:
		return &NonUniform{workers: workers}, nil
	default:
		return nil, fmt.Errorf("no encoder for trajectory type %v", info.Trajectory)
	}
}

// Cartesian encodes on the nominal grid: a centered unitary 2D FFT per coil
// and per partition, with phase-encode steps addressing grid rows directly.
type Cartesian struct {
	workers int
}

func (e *Cartesian) check(img *imagedata.Image, s *acquisition.Store) error {
	// The grid spans the stored readout width, which may still carry
	// readout oversampling; consumers crop to the nominal matrix.
	if img.NX != s.Info.ReadoutSamples() || img.NY != s.Info.MatrixY {
		return fmt.Errorf("image matrix %dx%d does not match encoding grid %dx%d",
			img.NX, img.NY, s.Info.ReadoutSamples(), s.Info.MatrixY)
	}
	if img.Channels != s.Info.Coils {
		return fmt.Errorf("image has %d channels, store has %d coils", img.Channels, s.Info.Coils)
	}
	return nil
}

// Forward computes per-coil k-space and writes the grid rows addressed by
// each readout's phase-encode step into dst.
func (e *Cartesian) Forward(img *imagedata.Image, dst *acquisition.Store) error {
	if err := e.check(img, dst); err != nil {
		return err
	}
	nx, ny := img.NX, img.NY
	coils := img.Channels

	grids := make([][]complex128, coils)
	eachCoil(coils, e.workers, func(c int) {
		grid := append([]complex128(nil), img.Channel(c)...)
		acquisition.FFT2D(grid, nx, ny)
		grids[c] = grid
	})

	for i := 0; i < dst.Len(); i++ {
		a := dst.At(i)
		p := a.Step.Phase
		if p < 0 || p >= ny {
			return fmt.Errorf("phase-encode step %d outside matrix of %d rows", p, ny)
		}
		n := a.Samples(coils)
		if n != nx {
			return fmt.Errorf("readout %d has %d samples, matrix needs %d", i, n, nx)
		}
		for c := 0; c < coils; c++ {
			copy(a.Data[c*nx:(c+1)*nx], grids[c][p*nx:(p+1)*nx])
		}
	}
	return nil
}

// Adjoint zero-fills the grid from the stored readouts and applies the
// inverse FFT per coil.
func (e *Cartesian) Adjoint(src *acquisition.Store, img *imagedata.Image) error {
	if err := e.check(img, src); err != nil {
		return err
	}
	nx, ny := img.NX, img.NY
	coils := img.Channels

	grids := make([][]complex128, coils)
	for c := range grids {
		grids[c] = make([]complex128, nx*ny)
	}
	for i := 0; i < src.Len(); i++ {
		a := src.At(i)
		p := a.Step.Phase
		if p < 0 || p >= ny {
			return fmt.Errorf("phase-encode step %d outside matrix of %d rows", p, ny)
		}
		n := a.Samples(coils)
		if n != nx {
			return fmt.Errorf("readout %d has %d samples, matrix needs %d", i, n, nx)
		}
		for c := 0; c < coils; c++ {
			copy(grids[c][p*nx:(p+1)*nx], a.CoilData(c, coils))
		}
	}

	eachCoil(coils, e.workers, func(c int) {
		acquisition.IFFT2D(grids[c], nx, ny)
		copy(img.Channel(c), grids[c])
	})
	return nil
}

// NonUniform evaluates the Fourier sum directly at each sample's assigned
// trajectory coordinate. Cost is O(samples * voxels) per coil, exact for
// any trajectory. Coordinates are in grid units (cycles per field of view).
type NonUniform struct {
	workers int
}

func (e *NonUniform) check(img *imagedata.Image, s *acquisition.Store) error {
	if img.Channels != s.Info.Coils {
		return fmt.Errorf("image has %d channels, store has %d coils", img.Channels, s.Info.Coils)
	}
	for i := 0; i < s.Len(); i++ {
		if s.At(i).TrajDims < 2 {
			return fmt.Errorf("readout %d has no assigned trajectory", i)
		}
	}
	return nil
}

// Forward samples F{img_c} at every trajectory point. Trajectories with a
// third coordinate, as phase-encode planes of a 3D scan assign, sum over
// the partition axis as well.
func (e *NonUniform) Forward(img *imagedata.Image, dst *acquisition.Store) error {
	if err := e.check(img, dst); err != nil {
		return err
	}
	nx, ny, nz := img.NX, img.NY, img.NZ
	coils := img.Channels
	scale := 1 / math.Sqrt(float64(nx*ny*nz))

	eachCoil(coils, e.workers, func(c int) {
		src := img.Channel(c)
		for i := 0; i < dst.Len(); i++ {
			a := dst.At(i)
			n := a.Samples(coils)
			out := a.Data[c*n : (c+1)*n]
			for j := 0; j < n; j++ {
				kx := a.Traj[j*a.TrajDims]
				ky := a.Traj[j*a.TrajDims+1]
				kz := 0.0
				if a.TrajDims > 2 {
					kz = a.Traj[j*a.TrajDims+2]
				}
				var re, im float64
				for z := 0; z < nz; z++ {
					fz := kz * float64(z-nz/2) / float64(nz)
					for y := 0; y < ny; y++ {
						fy := ky * float64(y-ny/2) / float64(ny)
						for x := 0; x < nx; x++ {
							v := src[(z*ny+y)*nx+x]
							if v == 0 {
								continue
							}
							ph := -2 * math.Pi * (kx*float64(x-nx/2)/float64(nx) + fy + fz)
							s, co := math.Sincos(ph)
							re += real(v)*co - imag(v)*s
							im += real(v)*s + imag(v)*co
						}
					}
				}
				out[j] = complex(re*scale, im*scale)
			}
		}
	})
	return nil
}

// Adjoint accumulates every sample back onto the grid with the conjugate
// phase. This is the exact adjoint of Forward; it applies no density
// correction.
func (e *NonUniform) Adjoint(src *acquisition.Store, img *imagedata.Image) error {
	if err := e.check(img, src); err != nil {
		return err
	}
	nx, ny, nz := img.NX, img.NY, img.NZ
	coils := img.Channels
	scale := 1 / math.Sqrt(float64(nx*ny*nz))

	eachCoil(coils, e.workers, func(c int) {
		dstPix := img.Channel(c)
		for i := range dstPix {
			dstPix[i] = 0
		}
		for i := 0; i < src.Len(); i++ {
			a := src.At(i)
			n := a.Samples(coils)
			in := a.Data[c*n : (c+1)*n]
			for j := 0; j < n; j++ {
				v := in[j]
				if v == 0 {
					continue
				}
				kx := a.Traj[j*a.TrajDims]
				ky := a.Traj[j*a.TrajDims+1]
				kz := 0.0
				if a.TrajDims > 2 {
					kz = a.Traj[j*a.TrajDims+2]
				}
				for z := 0; z < nz; z++ {
					fz := kz * float64(z-nz/2) / float64(nz)
					for y := 0; y < ny; y++ {
						fy := ky * float64(y-ny/2) / float64(ny)
						for x := 0; x < nx; x++ {
							ph := 2 * math.Pi * (kx*float64(x-nx/2)/float64(nx) + fy + fz)
							s, co := math.Sincos(ph)
							dstPix[(z*ny+y)*nx+x] += complex(
								(real(v)*co-imag(v)*s)*scale,
								(real(v)*s+imag(v)*co)*scale,
							)
						}
					}
				}
			}
		}
	})
	return nil
}

// eachCoil fans fn out over a bounded worker pool. Each coil writes only
// its own slot, so results are identical regardless of worker count.
func eachCoil(coils, workers int, fn func(c int)) {
	if workers > coils {
		workers = coils
	}
	if workers <= 1 {
		for c := 0; c < coils; c++ {
			fn(c)
		}
		return
	}
	var wg sync.WaitGroup
	ch := make(chan int)
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for c := range ch {
				fn(c)
			}
		}()
	}
	for c := 0; c < coils; c++ {
		ch <- c
	}
	close(ch)
	wg.Wait()
}
