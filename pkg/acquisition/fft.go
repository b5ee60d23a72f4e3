package acquisition

import (
	"math"

	"gonum.org/v1/gonum/dsp/fourier"
)

// The transforms in this file follow the MR convention: the k-space origin
// sits at index n/2, so every transform is wrapped in an fftshift pair.
// All transforms are unitary (scaled by 1/sqrt(n)), which keeps forward and
// adjoint mutually adjoint without bookkeeping scale factors.

// fftShift cycles the slice so that index n/2 moves to index 0, in place.
func fftShift(x []complex128) {
	n := len(x)
	h := n / 2
	tmp := make([]complex128, n)
	copy(tmp, x)
	for i := 0; i < n; i++ {
		x[i] = tmp[(i+h)%n]
	}
}

// ifftShift is the inverse cycle of fftShift. For even n the two coincide.
func ifftShift(x []complex128) {
	n := len(x)
	h := (n + 1) / 2
	tmp := make([]complex128, n)
	copy(tmp, x)
	for i := 0; i < n; i++ {
		x[i] = tmp[(i+h)%n]
	}
}

// FFT1D computes the centered unitary forward FFT of x in place.
func FFT1D(x []complex128) {
	n := len(x)
	if n == 0 {
		return
	}
	fft := fourier.NewCmplxFFT(n)
	ifftShift(x)
	dst := make([]complex128, n)
	fft.Coefficients(dst, x)
	scale := complex(1/math.Sqrt(float64(n)), 0)
	for i := range dst {
		dst[i] *= scale
	}
	copy(x, dst)
	fftShift(x)
}

// IFFT1D computes the centered unitary inverse FFT of x in place.
func IFFT1D(x []complex128) {
	n := len(x)
	if n == 0 {
		return
	}
	fft := fourier.NewCmplxFFT(n)
	ifftShift(x)
	dst := make([]complex128, n)
	fft.Sequence(dst, x)
	scale := complex(1/math.Sqrt(float64(n)), 0)
	for i := range dst {
		dst[i] *= scale
	}
	copy(x, dst)
	fftShift(x)
}

// FFT2D computes the centered unitary forward FFT of a row-major nx*ny grid
// in place, rows first and then columns.
func FFT2D(data []complex128, nx, ny int) {
	row := make([]complex128, nx)
	for y := 0; y < ny; y++ {
		copy(row, data[y*nx:(y+1)*nx])
		FFT1D(row)
		copy(data[y*nx:(y+1)*nx], row)
	}
	col := make([]complex128, ny)
	for x := 0; x < nx; x++ {
		for y := 0; y < ny; y++ {
			col[y] = data[y*nx+x]
		}
		FFT1D(col)
		for y := 0; y < ny; y++ {
			data[y*nx+x] = col[y]
		}
	}
}

// IFFT2D computes the centered unitary inverse FFT of a row-major nx*ny
// grid in place.
func IFFT2D(data []complex128, nx, ny int) {
	row := make([]complex128, nx)
	for y := 0; y < ny; y++ {
		copy(row, data[y*nx:(y+1)*nx])
		IFFT1D(row)
		copy(data[y*nx:(y+1)*nx], row)
	}
	col := make([]complex128, ny)
	for x := 0; x < nx; x++ {
		for y := 0; y < ny; y++ {
			col[y] = data[y*nx+x]
		}
		IFFT1D(col)
		for y := 0; y < ny; y++ {
			data[y*nx+x] = col[y]
		}
	}
}
