package coilsense

import (
	"fmt"
	"math"
	"math/cmplx"

	"mrkspace/pkg/acquisition"
	"mrkspace/pkg/imagedata"
)

// Method selects the estimation strategy. It is a closed set of variants;
// there is no string-keyed method dispatch.
type Method interface {
	method() string
}

// SRSS is the square-root-of-sum-of-squares method. Iterations controls
// the neighbourhood smoothing applied before normalization; more iterations
// suppress higher spatial frequencies in the estimated field.
type SRSS struct {
	Iterations int
}

func (m SRSS) method() string { return fmt.Sprintf("SRSS(niter=%d)", m.Iterations) }

// Inati is the adaptive combination method with phase correction. It has a
// fixed internal convergence criterion and no tuning parameter.
type Inati struct{}

func (Inati) method() string { return "Inati" }

// Map is a set of coil sensitivity maps, one multi-channel image per
// k-space subset. A map is immutable once calculated; recalculating
// replaces the contents.
type Map struct {
	// Workers bounds the per-coil fan-out during the direct calculation
	// path; zero means one worker per CPU.
	Workers int

	method Method
	items  []*imagedata.Image
	tags   []acquisition.SubsetTag

	// geometry recorded at the first calculation; later inputs must match.
	shape    [4]int
	hasShape bool
}

// NewMap creates an empty map estimator with the given method.
func NewMap(m Method) *Map {
	return &Map{method: m}
}

// Method returns the configured estimation method.
func (m *Map) Method() Method { return m.method }

// Len returns the number of per-subset maps.
func (m *Map) Len() int { return len(m.items) }

// Item returns the i-th subset's map.
func (m *Map) Item(i int) *imagedata.Image { return m.items[i] }

// Tags returns the subset tag of each item.
func (m *Map) Tags() []acquisition.SubsetTag {
	return append([]acquisition.SubsetTag(nil), m.tags...)
}

// Coils returns the channel count of the calculated maps, 0 before any
// calculation.
func (m *Map) Coils() int {
	if !m.hasShape {
		return 0
	}
	return m.shape[3]
}

// CalculateFromStore estimates the maps directly from sorted raw k-space:
// per-coil reference images are reconstructed by adjoint encoding and then
// normalized by the configured method. Numerically this is identical to
// reconstructing CoilImages first and calling CalculateFromImages.
func (m *Map) CalculateFromStore(s *acquisition.Store) error {
	ci := NewCoilImages()
	ci.Workers = m.Workers
	if err := ci.Calculate(s); err != nil {
		return err
	}
	return m.CalculateFromImages(ci)
}

// CalculateFromImages estimates the maps from already-reconstructed coil
// images.
func (m *Map) CalculateFromImages(ci *CoilImages) error {
	if ci.Len() == 0 {
		return fmt.Errorf("coil images are empty; call Calculate first")
	}
	nominalX := ci.Info().MatrixX

	first := ci.Item(0)
	shape := [4]int{minInt(first.NX, nominalX), first.NY, first.NZ, first.Channels}
	if m.hasShape && shape != m.shape {
		return &ShapeMismatchError{Op: "coil sensitivity calculation", Got: shape, Want: m.shape}
	}

	items := make([]*imagedata.Image, ci.Len())
	for i := 0; i < ci.Len(); i++ {
		cm := ci.Item(i)
		got := [4]int{minInt(cm.NX, nominalX), cm.NY, cm.NZ, cm.Channels}
		if got != shape {
			return &ShapeMismatchError{Op: "coil sensitivity calculation", Got: got, Want: shape}
		}
		switch meth := m.method.(type) {
		case SRSS:
			items[i] = srssEstimate(cm, nominalX, meth.Iterations)
		case Inati:
			items[i] = inatiEstimate(cm, nominalX)
		default:
			return fmt.Errorf("unsupported estimation method %T", m.method)
		}
	}

	m.items = items
	m.tags = ci.Tags()
	m.shape = shape
	m.hasShape = true
	return nil
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

// ItemForTag returns the index of the map item serving a subset tag: the
// item whose tag matches on slice, or fallback modulo the item count when
// none matches. Mirrors how per-slice maps are cycled over dynamics.
func (m *Map) ItemForTag(tag acquisition.SubsetTag, fallback int) int {
	for i, t := range m.tags {
		if t.Slice == tag.Slice && t.Contrast == 0 {
			return i
		}
	}
	if m.Len() == 0 {
		return 0
	}
	return fallback % m.Len()
}

// SplitImage applies the first map item forward; see SplitImageAt.
func (m *Map) SplitImage(combined *imagedata.Image) (*imagedata.Image, error) {
	return m.SplitImageAt(0, combined)
}

// SplitImageAt applies map item i forward: a single-channel combined image
// becomes a multi-channel coil image, voxel-wise S_c * image.
func (m *Map) SplitImageAt(i int, combined *imagedata.Image) (*imagedata.Image, error) {
	if m.Len() == 0 {
		return nil, fmt.Errorf("coil sensitivity maps not calculated")
	}
	ref := m.items[i]
	if combined.Channels != 1 {
		return nil, &ShapeMismatchError{
			Op:   "split image",
			Got:  [4]int{combined.NX, combined.NY, combined.NZ, combined.Channels},
			Want: [4]int{ref.NX, ref.NY, ref.NZ, 1},
		}
	}
	if combined.NX != ref.NX || combined.NY != ref.NY || combined.NZ != ref.NZ {
		return nil, &ShapeMismatchError{
			Op:   "split image",
			Got:  [4]int{combined.NX, combined.NY, combined.NZ, combined.Channels},
			Want: [4]int{ref.NX, ref.NY, ref.NZ, 1},
		}
	}
	out := imagedata.New(ref.NX, ref.NY, ref.NZ, ref.Channels)
	out.FOVx, out.FOVy, out.FOVz = combined.FOVx, combined.FOVy, combined.FOVz
	vox := ref.Voxels()
	for c := 0; c < ref.Channels; c++ {
		s := ref.Channel(c)
		dst := out.Channel(c)
		for i := 0; i < vox; i++ {
			dst[i] = s[i] * combined.Data[i]
		}
	}
	return out, nil
}

// CombineImage applies the first map item's adjoint; see CombineImageAt.
func (m *Map) CombineImage(coil *imagedata.Image) (*imagedata.Image, error) {
	return m.CombineImageAt(0, coil)
}

// CombineImageAt applies map item i's adjoint: a multi-channel coil image
// is reduced to a single-channel combined image, sum over coils of
// conj(S_c) * image_c.
func (m *Map) CombineImageAt(i int, coil *imagedata.Image) (*imagedata.Image, error) {
	if m.Len() == 0 {
		return nil, fmt.Errorf("coil sensitivity maps not calculated")
	}
	ref := m.items[i]
	if !coil.SameShape(ref) {
		return nil, &ShapeMismatchError{
			Op:   "combine image",
			Got:  [4]int{coil.NX, coil.NY, coil.NZ, coil.Channels},
			Want: [4]int{ref.NX, ref.NY, ref.NZ, ref.Channels},
		}
	}
	out := imagedata.New(ref.NX, ref.NY, ref.NZ, 1)
	out.FOVx, out.FOVy, out.FOVz = coil.FOVx, coil.FOVy, coil.FOVz
	vox := ref.Voxels()
	for c := 0; c < ref.Channels; c++ {
		s := ref.Channel(c)
		src := coil.Channel(c)
		for i := 0; i < vox; i++ {
			out.Data[i] += cmplx.Conj(s[i]) * src[i]
		}
	}
	return out, nil
}

// AsArray returns the concatenated sample data of all per-subset maps.
func (m *Map) AsArray() []complex128 {
	var out []complex128
	for _, im := range m.items {
		out = append(out, im.Data...)
	}
	return out
}

// Fill overwrites the map contents from an array previously produced by
// AsArray.
func (m *Map) Fill(data []complex128) error {
	var total int
	for _, im := range m.items {
		total += len(im.Data)
	}
	if len(data) != total {
		return fmt.Errorf("fill array has %d samples, maps need %d", len(data), total)
	}
	off := 0
	for _, im := range m.items {
		copy(im.Data, data[off:off+len(im.Data)])
		off += len(im.Data)
	}
	return nil
}

// Norm returns the Euclidean norm over every map sample.
func (m *Map) Norm() float64 {
	var sum float64
	for _, im := range m.items {
		n := im.Norm()
		sum += n * n
	}
	return math.Sqrt(sum)
}

// Sub returns the item-wise difference of two maps of equal layout, for
// validation of estimation methods against each other.
func (m *Map) Sub(other *Map) (*Map, error) {
	if m.Len() != other.Len() {
		return nil, fmt.Errorf("maps hold %d and %d items", m.Len(), other.Len())
	}
	out := &Map{method: m.method, shape: m.shape, hasShape: m.hasShape}
	out.tags = m.Tags()
	for i, im := range m.items {
		d, err := im.Sub(other.items[i])
		if err != nil {
			return nil, err
		}
		out.items = append(out.items, d)
	}
	return out, nil
}

// Clone returns a deep copy of the map.
func (m *Map) Clone() *Map {
	out := &Map{
		Workers:  m.Workers,
		method:   m.method,
		shape:    m.shape,
		hasShape: m.hasShape,
		tags:     m.Tags(),
	}
	for _, im := range m.items {
		out.items = append(out.items, im.Clone())
	}
	return out
}
