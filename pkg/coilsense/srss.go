package coilsense

import (
	"math"
	"math/cmplx"

	"mrkspace/pkg/imagedata"
)

// srssEstimate normalizes a multi-channel coil image to a sensitivity map:
// each coil voxel is divided by the root-sum-of-squares magnitude across
// coils, after iterative neighbourhood smoothing restricted to an object
// mask estimated from the data's own noise floor. Voxels outside the mask
// are zero. nominalX crops a readout-oversampled image to the nominal
// matrix before estimation.
func srssEstimate(cm *imagedata.Image, nominalX, iterations int) *imagedata.Image {
	cm0 := centerCropX(cm, nominalX)
	nx, ny, nz, nc := cm0.NX, cm0.NY, cm0.NZ, cm0.Channels

	rss := rssMagnitude(cm0)

	// Estimate the noise floor: pre-smooth a copy, then take the largest
	// smoothing-induced change in regions the smoothed image shows as flat.
	// Gating on the smoothed copy keeps single-voxel noise spikes from
	// masquerading as gradients. Voxels whose combined magnitude does not
	// rise above that change are background.
	pre := cm0.Clone()
	for i := 0; i < 3; i++ {
		smoothen(pre, nil)
	}
	maxIm := 0.0
	for _, v := range rss {
		if v > maxIm {
			maxIm = v
		}
	}
	smallGrad := maxIm * 2 / float64(nx+ny)
	noise := maxFlatDiff(pre, cm0, smallGrad)
	mask := make([]bool, len(rss))
	for i, v := range rss {
		mask[i] = v > noise
	}

	for i := 0; i < iterations; i++ {
		smoothen(cm0, mask)
	}

	rss = rssMagnitude(cm0)
	csm := imagedata.New(nx, ny, nz, nc)
	csm.FOVx, csm.FOVy, csm.FOVz = cm.FOVx, cm.FOVy, cm.FOVz
	vox := nx * ny * nz
	for i := 0; i < vox; i++ {
		if !mask[i] || rss[i] == 0 {
			continue
		}
		s := complex(1/rss[i], 0)
		for c := 0; c < nc; c++ {
			csm.Data[c*vox+i] = s * cm0.Data[c*vox+i]
		}
	}
	return csm
}

// centerCropX returns the image restricted to the central nominalX readout
// columns, or the image itself when no cropping is needed.
func centerCropX(cm *imagedata.Image, nominalX int) *imagedata.Image {
	if nominalX <= 0 || cm.NX <= nominalX {
		return cm.Clone()
	}
	out := imagedata.New(nominalX, cm.NY, cm.NZ, cm.Channels)
	out.FOVx, out.FOVy, out.FOVz = cm.FOVx, cm.FOVy, cm.FOVz
	offset := (cm.NX - nominalX) / 2
	for c := 0; c < cm.Channels; c++ {
		src := cm.Channel(c)
		dst := out.Channel(c)
		for z := 0; z < cm.NZ; z++ {
			for y := 0; y < cm.NY; y++ {
				srcRow := src[(z*cm.NY+y)*cm.NX:]
				dstRow := dst[(z*out.NY+y)*out.NX:]
				copy(dstRow[:nominalX], srcRow[offset:offset+nominalX])
			}
		}
	}
	return out
}

// rssMagnitude returns the root-sum-of-squares magnitude across channels.
func rssMagnitude(cm *imagedata.Image) []float64 {
	vox := cm.Voxels()
	out := make([]float64, vox)
	for c := 0; c < cm.Channels; c++ {
		ch := cm.Channel(c)
		for i, v := range ch {
			out[i] += real(v)*real(v) + imag(v)*imag(v)
		}
	}
	for i, v := range out {
		out[i] = math.Sqrt(v)
	}
	return out
}

// smoothen replaces each voxel with the mean of itself and the average of
// its in-plane 3x3 neighbours, per channel, in place. When mask is non-nil
// only masked voxels change and only masked neighbours contribute.
func smoothen(cm *imagedata.Image, mask []bool) {
	nx, ny, nz, nc := cm.NX, cm.NY, cm.NZ, cm.Channels
	vox := nx * ny * nz
	next := make([]complex128, len(cm.Data))
	for c := 0; c < nc; c++ {
		base := c * vox
		for z := 0; z < nz; z++ {
			for y := 0; y < ny; y++ {
				for x := 0; x < nx; x++ {
					k := (z*ny+y)*nx + x
					i := base + k
					if mask != nil && !mask[k] {
						next[i] = cm.Data[i]
						continue
					}
					var sum complex128
					n := 0
					for dy := -1; dy <= 1; dy++ {
						for dx := -1; dx <= 1; dx++ {
							if dx == 0 && dy == 0 {
								continue
							}
							xx, yy := x+dx, y+dy
							if xx < 0 || xx >= nx || yy < 0 || yy >= ny {
								continue
							}
							kk := (z*ny+yy)*nx + xx
							if mask != nil && !mask[kk] {
								continue
							}
							sum += cm.Data[base+kk]
							n++
						}
					}
					if n > 0 {
						next[i] = (cm.Data[i] + sum/complex(float64(n), 0)) / 2
					} else {
						next[i] = cm.Data[i]
					}
				}
			}
		}
	}
	copy(cm.Data, next)
}

// maxFlatDiff returns the largest |u - v| over interior voxels whose local
// gradient magnitude is at most smallGrad, across all channels. This bounds
// the change smoothing makes in signal-free regions.
func maxFlatDiff(u, v *imagedata.Image, smallGrad float64) float64 {
	nx, ny, nz, nc := u.NX, u.NY, u.NZ, u.Channels
	vox := nx * ny * nz
	max := 0.0
	for c := 0; c < nc; c++ {
		base := c * vox
		for z := 0; z < nz; z++ {
			for y := 1; y < ny-1; y++ {
				for x := 1; x < nx-1; x++ {
					i := base + (z*ny+y)*nx + x
					gx := cmplx.Abs(u.Data[i+1]-u.Data[i-1]) / 2
					gy := cmplx.Abs(u.Data[i+nx]-u.Data[i-nx]) / 2
					g := math.Sqrt(gx*gx + gy*gy)
					if g > smallGrad {
						continue
					}
					if d := cmplx.Abs(u.Data[i] - v.Data[i]); d > max {
						max = d
					}
				}
			}
		}
	}
	return max
}
