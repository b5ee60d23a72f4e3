// Package model implements the MR acquisition model: a linear operator
// pair mapping between image space and acquired k-space, parameterized by a
// sampling trajectory and coil sensitivity maps. Forward evaluates
// F{S_c * image} on the trajectory per coil; Backward is its exact adjoint;
// Inverse is the density-compensated adjoint appropriate for non-uniform
// sampling.
package model

import (
	"fmt"
	"math"
	"math/rand"

	"mrkspace/internal/encoding"
	"mrkspace/pkg/acquisition"
	"mrkspace/pkg/coilsense"
	"mrkspace/pkg/imagedata"
)

// State tracks the model's configuration progress. Operators are only
// valid once Operational.
type State int

const (
	// Unconfigured is the zero state: no geometry bound.
	Unconfigured State = iota

	// SetUpDone means SetUp has bound the sampling and image geometry.
	SetUpDone

	// Operational means sensitivity maps are attached and the operators
	// may be applied.
	Operational
)

func (s State) String() string {
	switch s {
	case Unconfigured:
		return "unconfigured"
	case SetUpDone:
		return "set up"
	case Operational:
		return "operational"
	default:
		return "invalid"
	}
}

// ConfigurationError reports an invalid or incompatible setup.
type ConfigurationError struct {
	Reason string
	Err    error
}

func (e *ConfigurationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("acquisition model configuration: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("acquisition model configuration: %s", e.Reason)
}

func (e *ConfigurationError) Unwrap() error { return e.Err }

// NotConfiguredError reports an operator call on a model that has not
// reached the Operational state.
type NotConfiguredError struct {
	Op    string
	State State
}

func (e *NotConfiguredError) Error() string {
	return fmt.Sprintf("acquisition model: %s called while %s; SetUp and SetCoilSensitivityMaps must run first", e.Op, e.State)
}

// AcquisitionModel maps between image space and k-space. Construct with
// New, bind geometry with SetUp, attach maps with SetCoilSensitivityMaps,
// then apply Forward/Backward/Inverse any number of times against
// compatible data.
type AcquisitionModel struct {
	// Workers bounds the per-coil fan-out of the encoders; zero means one
	// worker per CPU.
	Workers int

	state    State
	template *acquisition.Store
	order    [][]int
	tags     []acquisition.SubsetTag
	enc      encoding.Encoder
	csm      *coilsense.Map

	nx, ny, nz int
}

// New returns an unconfigured model.
func New() *AcquisitionModel {
	return &AcquisitionModel{}
}

// State returns the model's current lifecycle state.
func (m *AcquisitionModel) State() State { return m.state }

// SetUp binds the sampling geometry of the sorted acquisition store and the
// image grid of the template. The store is cloned; later mutation of the
// caller's copy does not affect the model.
func (m *AcquisitionModel) SetUp(s *acquisition.Store, template *imagedata.Image) error {
	if s == nil || template == nil {
		return &ConfigurationError{Reason: "acquisition data and image template are both required"}
	}
	if !s.Sorted() {
		return &ConfigurationError{Reason: "acquisition data must be sorted before SetUp"}
	}
	nx := s.Info.ReadoutSamples()
	if template.NX != nx || template.NY != s.Info.MatrixY {
		return &ConfigurationError{Reason: fmt.Sprintf(
			"image template matrix %dx%d incompatible with acquisition matrix %dx%d",
			template.NX, template.NY, nx, s.Info.MatrixY)}
	}
	if template.FOVx != 0 && s.Info.FOVx != 0 && (template.FOVx != s.Info.FOVx || template.FOVy != s.Info.FOVy) {
		return &ConfigurationError{Reason: fmt.Sprintf(
			"image template field of view %gx%g mm incompatible with acquisition %gx%g mm",
			template.FOVx, template.FOVy, s.Info.FOVx, s.Info.FOVy)}
	}

	enc, err := encoding.ForStore(s.Info, m.Workers)
	if err != nil {
		return &ConfigurationError{Reason: "selecting encoder", Err: err}
	}
	order, err := s.KSpaceOrder()
	if err != nil {
		return &ConfigurationError{Reason: "reading k-space order", Err: err}
	}
	tags, err := s.SubsetTags()
	if err != nil {
		return &ConfigurationError{Reason: "reading subset tags", Err: err}
	}

	m.template = s.Clone()
	m.order = order
	m.tags = tags
	m.enc = enc
	m.nx, m.ny, m.nz = template.NX, template.NY, template.NZ
	m.csm = nil
	m.state = SetUpDone
	return nil
}

// SetCoilSensitivityMaps attaches the sensitivity maps and makes the model
// operational. The maps' coil count must agree with the acquisition layout.
func (m *AcquisitionModel) SetCoilSensitivityMaps(csm *coilsense.Map) error {
	if m.state < SetUpDone {
		return &NotConfiguredError{Op: "SetCoilSensitivityMaps", State: m.state}
	}
	if csm == nil || csm.Len() == 0 {
		return &ConfigurationError{Reason: "coil sensitivity maps are empty"}
	}
	if csm.Coils() != m.template.Info.Coils {
		return &ConfigurationError{Reason: fmt.Sprintf(
			"sensitivity maps have %d coils, acquisition layout has %d",
			csm.Coils(), m.template.Info.Coils)}
	}
	ref := csm.Item(0)
	if ref.NX != m.nx || ref.NY != m.ny {
		return &ConfigurationError{Reason: fmt.Sprintf(
			"sensitivity map matrix %dx%d does not match image grid %dx%d",
			ref.NX, ref.NY, m.nx, m.ny)}
	}
	m.csm = csm.Clone()
	m.state = Operational
	return nil
}

// Forward maps an image set to multi-coil k-space: per subset and coil,
// F{S_c * image} restricted to the sampled trajectory. The image set must
// hold one single-channel image per k-space subset.
func (m *AcquisitionModel) Forward(images *imagedata.ImageSet) (*acquisition.Store, error) {
	if m.state != Operational {
		return nil, &NotConfiguredError{Op: "Forward", State: m.state}
	}
	if images.Len() != len(m.order) {
		return nil, fmt.Errorf("forward: %d images for %d k-space subsets", images.Len(), len(m.order))
	}

	out := m.template.Clone()
	for i := 0; i < out.Len(); i++ {
		data := out.At(i).Data
		for j := range data {
			data[j] = 0
		}
	}

	for i, indices := range m.order {
		item := m.csm.ItemForTag(m.tags[i], i)
		coilImg, err := m.csm.SplitImageAt(item, images.Item(i))
		if err != nil {
			return nil, fmt.Errorf("forward: %w", err)
		}
		sub, err := out.Subset(indices)
		if err != nil {
			return nil, err
		}
		if err := m.enc.Forward(coilImg, sub); err != nil {
			return nil, fmt.Errorf("forward encoding: %w", err)
		}
		for k, idx := range indices {
			copy(out.At(idx).Data, sub.At(k).Data)
		}
	}
	if err := out.Sort(); err != nil {
		return nil, err
	}
	return out, nil
}

// Backward maps k-space to an image set by the exact adjoint of Forward.
// It applies no density compensation: non-uniformly sampled data comes back
// with the sampling-density bias of zero-filled reconstruction.
func (m *AcquisitionModel) Backward(data *acquisition.Store) (*imagedata.ImageSet, error) {
	if m.state != Operational {
		return nil, &NotConfiguredError{Op: "Backward", State: m.state}
	}
	return m.adjoint(data, false)
}

// Inverse maps k-space to an image set like Backward, but pre-weighting
// each sample with its density-compensation weight, a ramp-filter style
// correction for non-uniform sampling. It is an approximate inverse, not a
// pseudo-inverse.
func (m *AcquisitionModel) Inverse(data *acquisition.Store) (*imagedata.ImageSet, error) {
	if m.state != Operational {
		return nil, &NotConfiguredError{Op: "Inverse", State: m.state}
	}
	return m.adjoint(data, true)
}

func (m *AcquisitionModel) adjoint(data *acquisition.Store, weighted bool) (*imagedata.ImageSet, error) {
	if !data.Sorted() {
		return nil, fmt.Errorf("adjoint requires sorted acquisition data")
	}
	order, err := data.KSpaceOrder()
	if err != nil {
		return nil, err
	}
	tags, err := data.SubsetTags()
	if err != nil {
		return nil, err
	}
	if len(order) != len(m.order) {
		return nil, fmt.Errorf("data has %d k-space subsets, model layout has %d", len(order), len(m.order))
	}

	coils := data.Info.Coils
	out := imagedata.NewImageSet()
	for i, indices := range order {
		sub, err := data.Subset(indices)
		if err != nil {
			return nil, err
		}
		if weighted {
			applyDensityWeights(sub, coils)
		}
		coilImg := imagedata.New(m.nx, m.ny, m.nz, coils)
		coilImg.FOVx, coilImg.FOVy, coilImg.FOVz = data.Info.FOVx, data.Info.FOVy, data.Info.FOVz
		if err := m.enc.Adjoint(sub, coilImg); err != nil {
			return nil, fmt.Errorf("adjoint encoding: %w", err)
		}
		item := m.csm.ItemForTag(tags[i], i)
		combined, err := m.csm.CombineImageAt(item, coilImg)
		if err != nil {
			return nil, fmt.Errorf("coil combination: %w", err)
		}
		out.Append(combined)
	}
	return out, nil
}

func applyDensityWeights(s *acquisition.Store, coils int) {
	for i := 0; i < s.Len(); i++ {
		a := s.At(i)
		if len(a.DCW) == 0 {
			continue
		}
		n := a.Samples(coils)
		for c := 0; c < coils; c++ {
			block := a.Data[c*n : (c+1)*n]
			for j := range block {
				block[j] *= complex(a.DCW[j], 0)
			}
		}
	}
}

// Norm estimates the operator norm of the model by power iteration on the
// composition Backward(Forward(.)), returning sqrt of the dominant
// eigenvalue after the given number of iterations.
func (m *AcquisitionModel) Norm(iterations int) (float64, error) {
	if m.state != Operational {
		return 0, &NotConfiguredError{Op: "Norm", State: m.state}
	}
	if iterations < 1 {
		iterations = 2
	}

	rng := rand.New(rand.NewSource(1))
	x := imagedata.NewImageSet()
	for range m.order {
		im := imagedata.New(m.nx, m.ny, m.nz, 1)
		for i := range im.Data {
			im.Data[i] = complex(rng.NormFloat64(), rng.NormFloat64())
		}
		x.Append(im)
	}

	var lambda float64
	for it := 0; it < iterations; it++ {
		data, err := m.Forward(x)
		if err != nil {
			return 0, err
		}
		y, err := m.Backward(data)
		if err != nil {
			return 0, err
		}
		n := y.Norm()
		d := x.Norm()
		if d == 0 || n == 0 {
			return 0, nil
		}
		lambda = n / d
		y.Scale(complex(1/n, 0))
		x = y
	}
	return math.Sqrt(lambda), nil
}
