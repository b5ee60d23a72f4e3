package model

import (
	"math/cmplx"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mrkspace/pkg/acquisition"
	"mrkspace/pkg/coilsense"
	"mrkspace/pkg/imagedata"
	"mrkspace/pkg/phantom"
)

// cartesianSetup returns a sorted preprocessed phantom store, estimated
// sensitivity maps and a matching image template.
func cartesianSetup(t *testing.T, matrix, coils int) (*acquisition.Store, *coilsense.Map, *imagedata.Image) {
	t.Helper()
	raw, err := phantom.Cartesian(phantom.Params{Matrix: matrix, Coils: coils, Oversample: true})
	require.NoError(t, err)
	s, err := acquisition.RemoveReadoutOversampling(raw)
	require.NoError(t, err)
	require.NoError(t, s.Sort())

	csm := coilsense.NewMap(coilsense.SRSS{Iterations: 10})
	require.NoError(t, csm.CalculateFromStore(s))

	ref := csm.Item(0)
	template := imagedata.New(ref.NX, ref.NY, ref.NZ, 1)
	template.FOVx, template.FOVy, template.FOVz = s.Info.FOVx, s.Info.FOVy, s.Info.FOVz
	return s, csm, template
}

// operational builds a fully configured model for the store and maps.
func operational(t *testing.T, s *acquisition.Store, csm *coilsense.Map, template *imagedata.Image) *AcquisitionModel {
	t.Helper()
	m := New()
	require.NoError(t, m.SetUp(s, template))
	require.NoError(t, m.SetCoilSensitivityMaps(csm))
	require.Equal(t, Operational, m.State())
	return m
}

// maskedPhantom returns the phantom image restricted to the spatial support
// of the sensitivity maps.
func maskedPhantom(csm *coilsense.Map, matrix int) *imagedata.Image {
	x := phantom.Image(matrix)
	ref := csm.Item(0)
	vox := ref.Voxels()
	for i := 0; i < vox; i++ {
		var rss float64
		for c := 0; c < ref.Channels; c++ {
			v := ref.Data[c*vox+i]
			rss += real(v)*real(v) + imag(v)*imag(v)
		}
		if rss == 0 {
			x.Data[i] = 0
		}
	}
	return x
}

func TestOperatorCallsBeforeConfiguration(t *testing.T) {
	t.Parallel()

	m := New()
	require.Equal(t, Unconfigured, m.State())

	var nce *NotConfiguredError

	_, err := m.Forward(imagedata.NewImageSet())
	require.ErrorAs(t, err, &nce)
	assert.Equal(t, "Forward", nce.Op)
	assert.Equal(t, Unconfigured, nce.State)

	_, err = m.Backward(nil)
	require.ErrorAs(t, err, &nce)

	_, err = m.Inverse(nil)
	require.ErrorAs(t, err, &nce)

	_, err = m.Norm(2)
	require.ErrorAs(t, err, &nce)

	err = m.SetCoilSensitivityMaps(coilsense.NewMap(coilsense.SRSS{}))
	require.ErrorAs(t, err, &nce)
}

func TestOperatorCallsAfterSetUpOnly(t *testing.T) {
	t.Parallel()

	s, _, template := cartesianSetup(t, 16, 2)
	m := New()
	require.NoError(t, m.SetUp(s, template))
	require.Equal(t, SetUpDone, m.State())

	var nce *NotConfiguredError
	_, err := m.Forward(imagedata.NewImageSet())
	require.ErrorAs(t, err, &nce)
	assert.Equal(t, SetUpDone, nce.State)
}

func TestSetUpValidation(t *testing.T) {
	t.Parallel()

	s, _, template := cartesianSetup(t, 16, 2)
	var cfg *ConfigurationError

	m := New()
	require.ErrorAs(t, m.SetUp(nil, template), &cfg)
	require.ErrorAs(t, m.SetUp(s, nil), &cfg)

	unsorted, err := phantom.Cartesian(phantom.Params{Matrix: 16, Coils: 2})
	require.NoError(t, err)
	require.ErrorAs(t, m.SetUp(unsorted, template), &cfg)

	wrongMatrix := imagedata.New(8, 8, 1, 1)
	require.ErrorAs(t, m.SetUp(s, wrongMatrix), &cfg)

	wrongFOV := template.Clone()
	wrongFOV.FOVx = 123
	require.ErrorAs(t, m.SetUp(s, wrongFOV), &cfg)

	require.Equal(t, Unconfigured, m.State())
}

func TestSetCoilSensitivityMapsValidation(t *testing.T) {
	t.Parallel()

	s, _, template := cartesianSetup(t, 16, 2)
	m := New()
	require.NoError(t, m.SetUp(s, template))

	var cfg *ConfigurationError
	require.ErrorAs(t, m.SetCoilSensitivityMaps(nil), &cfg)
	require.ErrorAs(t, m.SetCoilSensitivityMaps(coilsense.NewMap(coilsense.SRSS{})), &cfg)

	// Maps estimated from a store with a different coil count.
	_, wrongCoils, _ := cartesianSetup(t, 16, 4)
	require.ErrorAs(t, m.SetCoilSensitivityMaps(wrongCoils), &cfg)

	require.Equal(t, SetUpDone, m.State())
}

func TestBackwardForwardIdentityCartesian(t *testing.T) {
	t.Parallel()

	matrix, coils := 32, 4
	s, csm, template := cartesianSetup(t, matrix, coils)
	m := operational(t, s, csm, template)

	// On fully sampled Cartesian data the composition Backward(Forward(x))
	// is sum_c |S_c|^2 * x, which is x itself wherever the maps have unit
	// root-sum-of-squares. Restrict the input to the map support.
	x := maskedPhantom(csm, matrix)
	set := imagedata.NewImageSet()
	set.Append(x)

	data, err := m.Forward(set)
	require.NoError(t, err)
	assert.True(t, data.Sorted(), "forward output must come back sorted")

	back, err := m.Backward(data)
	require.NoError(t, err)
	require.Equal(t, 1, back.Len())

	diff, err := back.Item(0).Sub(x)
	require.NoError(t, err)
	require.Positive(t, x.Norm())
	assert.Less(t, diff.Norm()/x.Norm(), 1e-9)
}

func TestForwardBackwardAdjoint(t *testing.T) {
	t.Parallel()

	matrix, coils := 16, 3
	s, csm, template := cartesianSetup(t, matrix, coils)
	m := operational(t, s, csm, template)

	x := imagedata.NewImageSet()
	x.Append(maskedPhantom(csm, matrix))

	fwd, err := m.Forward(x)
	require.NoError(t, err)
	back, err := m.Backward(s)
	require.NoError(t, err)

	// <F x, d> must equal <x, B d> for the exact adjoint pair.
	lhs, err := fwd.Dot(s)
	require.NoError(t, err)
	rhs, err := x.Item(0).Dot(back.Item(0))
	require.NoError(t, err)
	assert.Less(t, cmplx.Abs(lhs-rhs), 1e-9*cmplx.Abs(lhs))
}

func TestForwardRejectsWrongImageCount(t *testing.T) {
	t.Parallel()

	s, csm, template := cartesianSetup(t, 16, 2)
	m := operational(t, s, csm, template)

	_, err := m.Forward(imagedata.NewImageSet()) // no images for one subset
	require.Error(t, err)
}

func TestInverseBeatsBackwardOnGoldenAngle(t *testing.T) {
	t.Parallel()

	matrix, coils, spokes := 32, 4, 51
	s, err := phantom.Radial(phantom.Params{Matrix: matrix, Coils: coils, Spokes: spokes},
		acquisition.TrajectoryGoldenAngle)
	require.NoError(t, err)
	require.NoError(t, s.Sort())

	csm := coilsense.NewMap(coilsense.SRSS{Iterations: 10})
	require.NoError(t, csm.CalculateFromStore(s))

	ref := csm.Item(0)
	template := imagedata.New(ref.NX, ref.NY, ref.NZ, 1)
	template.FOVx, template.FOVy, template.FOVz = s.Info.FOVx, s.Info.FOVy, s.Info.FOVz
	m := operational(t, s, csm, template)

	bwd, err := m.Backward(s)
	require.NoError(t, err)
	inv, err := m.Inverse(s)
	require.NoError(t, err)

	// Density compensation must reduce the low-frequency bias of the plain
	// adjoint. Compare both against the phantom after intensity
	// normalization, since neither operator preserves absolute scale.
	truth := phantom.Image(matrix)
	errorTo := func(recon *imagedata.Image) float64 {
		r := recon.Clone()
		require.Positive(t, r.Norm())
		r.Scale(complex(1/r.Norm(), 0))
		u := truth.Clone()
		u.Scale(complex(1/u.Norm(), 0))
		d, err := r.Sub(u)
		require.NoError(t, err)
		return d.Norm()
	}

	errBwd := errorTo(bwd.Item(0))
	errInv := errorTo(inv.Item(0))
	assert.Less(t, errInv, errBwd,
		"density-compensated reconstruction must beat the plain adjoint")
}

func TestNormOfCartesianModel(t *testing.T) {
	t.Parallel()

	s, csm, template := cartesianSetup(t, 16, 2)
	m := operational(t, s, csm, template)

	// Fully sampled unitary encoding with unit-RSS maps on their support
	// bounds the operator norm by one.
	norm, err := m.Norm(4)
	require.NoError(t, err)
	assert.Greater(t, norm, 0.5)
	assert.LessOrEqual(t, norm, 1+1e-9)
}
