// Package imagedata provides the complex image container shared by the
// coil-sensitivity and acquisition-model packages, together with the small
// amount of container algebra (norm, dot, axpby) validation code relies on.
package imagedata

import (
	"fmt"
	"math"
	"math/cmplx"
)

// Image is a complex-valued image with an arbitrary number of channels
// (receiver coils). Data is channel-major row-major: the voxel (x, y, z) of
// channel c sits at index c*nx*ny*nz + z*nx*ny + y*nx + x.
type Image struct {
	NX, NY, NZ int
	Channels   int

	// FOVx, FOVy, FOVz are the field-of-view extents in mm, carried along
	// for geometry compatibility checks.
	FOVx, FOVy, FOVz float64

	Data []complex128
}

// New creates a zero-filled image.
func New(nx, ny, nz, channels int) *Image {
	return &Image{
		NX:       nx,
		NY:       ny,
		NZ:       nz,
		Channels: channels,
		Data:     make([]complex128, nx*ny*nz*channels),
	}
}

// Voxels returns the number of spatial voxels per channel.
func (im *Image) Voxels() int { return im.NX * im.NY * im.NZ }

// Channel returns the data block of one channel. The slice aliases the
// image data.
func (im *Image) Channel(c int) []complex128 {
	n := im.Voxels()
	return im.Data[c*n : (c+1)*n]
}

// Clone returns a deep copy.
func (im *Image) Clone() *Image {
	out := *im
	out.Data = append([]complex128(nil), im.Data...)
	return &out
}

// SameShape reports whether the two images agree in matrix size and channel
// count.
func (im *Image) SameShape(other *Image) bool {
	return im.NX == other.NX && im.NY == other.NY && im.NZ == other.NZ &&
		im.Channels == other.Channels
}

// Norm returns the Euclidean norm over all voxels and channels.
func (im *Image) Norm() float64 {
	var sum float64
	for _, v := range im.Data {
		sum += real(v)*real(v) + imag(v)*imag(v)
	}
	return math.Sqrt(sum)
}

// Dot returns the inner product <im, other>.
func (im *Image) Dot(other *Image) (complex128, error) {
	if !im.SameShape(other) {
		return 0, fmt.Errorf("dot product shapes differ: %dx%dx%dx%d vs %dx%dx%dx%d",
			im.NX, im.NY, im.NZ, im.Channels, other.NX, other.NY, other.NZ, other.Channels)
	}
	var sum complex128
	for i, v := range im.Data {
		sum += v * cmplx.Conj(other.Data[i])
	}
	return sum, nil
}

// Sub returns im - other as a new image.
func (im *Image) Sub(other *Image) (*Image, error) {
	return Axpby(1, im, -1, other)
}

// Scale multiplies every sample by a, in place.
func (im *Image) Scale(a complex128) {
	for i := range im.Data {
		im.Data[i] *= a
	}
}

// Axpby returns a*x + b*y as a new image with x's geometry.
func Axpby(a complex128, x *Image, b complex128, y *Image) (*Image, error) {
	if !x.SameShape(y) {
		return nil, fmt.Errorf("a*x + b*y shapes differ: %dx%dx%dx%d vs %dx%dx%dx%d",
			x.NX, x.NY, x.NZ, x.Channels, y.NX, y.NY, y.NZ, y.Channels)
	}
	out := x.Clone()
	for i := range out.Data {
		out.Data[i] = a*out.Data[i] + b*y.Data[i]
	}
	return out, nil
}

// AsArray returns a copy of the raw sample data.
func (im *Image) AsArray() []complex128 {
	return append([]complex128(nil), im.Data...)
}

// Fill overwrites the image contents from a flat array previously produced
// by AsArray. The array length must match the image exactly.
func (im *Image) Fill(data []complex128) error {
	if len(data) != len(im.Data) {
		return fmt.Errorf("fill array has %d samples, image needs %d", len(data), len(im.Data))
	}
	copy(im.Data, data)
	return nil
}

// Magnitude returns |im| of one channel as a flat float64 array, for
// display and reporting.
func (im *Image) Magnitude(c int) []float64 {
	src := im.Channel(c)
	out := make([]float64, len(src))
	for i, v := range src {
		out[i] = cmplx.Abs(v)
	}
	return out
}

// Phase returns the argument of one channel in radians.
func (im *Image) Phase(c int) []float64 {
	src := im.Channel(c)
	out := make([]float64, len(src))
	for i, v := range src {
		out[i] = cmplx.Phase(v)
	}
	return out
}
