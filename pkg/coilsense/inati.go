package coilsense

import (
	"math"
	"math/cmplx"

	"gonum.org/v1/gonum/mat"

	"mrkspace/pkg/imagedata"
)

// Inati's adaptive combination (Inati, Hansen, Kellman, ISMRM 2013):
// for each voxel, the dominant eigenvector of the coil correlation matrix
// over a small neighbourhood gives the relative sensitivities, and the
// phase is referenced to the coil-sum channel so the combined image phase
// is coil-independent. The kernel size and iteration count are fixed; the
// method has no user-facing smoothing parameter.
const (
	inatiKernel     = 5
	inatiIterations = 5
)

// inatiEstimate computes the sensitivity map of one multi-channel image.
func inatiEstimate(cm *imagedata.Image, nominalX int) *imagedata.Image {
	cm0 := centerCropX(cm, nominalX)
	nx, ny, nz, nc := cm0.NX, cm0.NY, cm0.NZ, cm0.Channels
	vox := nx * ny * nz

	csm := imagedata.New(nx, ny, nz, nc)
	csm.FOVx, csm.FOVy, csm.FOVz = cm.FOVx, cm.FOVy, cm.FOVz

	half := inatiKernel / 2
	corr := mat.NewCDense(nc, nc, nil)
	v := make([]complex128, nc)
	next := make([]complex128, nc)

	for z := 0; z < nz; z++ {
		for y := 0; y < ny; y++ {
			for x := 0; x < nx; x++ {
				// Correlation matrix over the in-plane neighbourhood.
				corr.Zero()
				for dy := -half; dy <= half; dy++ {
					yy := y + dy
					if yy < 0 || yy >= ny {
						continue
					}
					for dx := -half; dx <= half; dx++ {
						xx := x + dx
						if xx < 0 || xx >= nx {
							continue
						}
						k := (z*ny+yy)*nx + xx
						for a := 0; a < nc; a++ {
							da := cm0.Data[a*vox+k]
							for b := 0; b < nc; b++ {
								db := cm0.Data[b*vox+k]
								corr.Set(a, b, corr.At(a, b)+da*cmplx.Conj(db))
							}
						}
					}
				}

				// Power iteration for the dominant eigenvector, seeded with
				// the voxel's own coil vector so the phase convention is
				// stable.
				i := (z*ny+y)*nx + x
				var seedNorm float64
				for c := 0; c < nc; c++ {
					d := cm0.Data[c*vox+i]
					v[c] = d
					seedNorm += real(d)*real(d) + imag(d)*imag(d)
				}
				if seedNorm == 0 {
					continue
				}
				for it := 0; it < inatiIterations; it++ {
					for a := 0; a < nc; a++ {
						var sum complex128
						for b := 0; b < nc; b++ {
							sum += corr.At(a, b) * v[b]
						}
						next[a] = sum
					}
					n := cNorm(next)
					if n == 0 {
						break
					}
					for c := 0; c < nc; c++ {
						v[c] = next[c] / complex(n, 0)
					}
				}

				// Phase reference: rotate so the coil sum is real positive.
				var sum complex128
				for c := 0; c < nc; c++ {
					sum += v[c]
				}
				rot := complex(1, 0)
				if sum != 0 {
					rot = cmplx.Conj(sum / complex(cmplx.Abs(sum), 0))
				}
				for c := 0; c < nc; c++ {
					csm.Data[c*vox+i] = v[c] * rot
				}
			}
		}
	}
	return csm
}

func cNorm(v []complex128) float64 {
	var sum float64
	for _, x := range v {
		sum += real(x)*real(x) + imag(x)*imag(x)
	}
	return math.Sqrt(sum)
}
