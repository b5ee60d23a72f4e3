package acquisition

// TrajectoryType identifies the k-space sampling pattern of an acquisition
// container. It is assigned by the trajectory package and consumed by the
// sorting and encoding code.
type TrajectoryType int

const (
	// TrajectoryCartesian is regular grid sampling; trajectory coordinates
	// follow from the encoding indices.
	TrajectoryCartesian TrajectoryType = iota

	// TrajectoryRadial is 2D radial sampling with a fixed angular increment.
	TrajectoryRadial

	// TrajectoryGoldenAngle is 2D radial sampling with the golden-angle
	// increment (~111.246 degrees) between consecutive spokes.
	TrajectoryGoldenAngle

	// TrajectoryGRPE is general radial phase encoding: Cartesian readout
	// with radial ordering of the phase-encoding plane.
	TrajectoryGRPE
)

// String returns the tag used on the command line and in capture files.
func (t TrajectoryType) String() string {
	switch t {
	case TrajectoryCartesian:
		return "cartesian"
	case TrajectoryRadial:
		return "radial"
	case TrajectoryGoldenAngle:
		return "goldenangle"
	case TrajectoryGRPE:
		return "grpe"
	default:
		return "unknown"
	}
}

// Cartesian reports whether samples lie on the nominal encoding grid.
func (t TrajectoryType) Cartesian() bool {
	return t == TrajectoryCartesian
}

// Flags is a bitmask of per-readout markers carried in the raw data. Only
// the flags the pipeline acts on are defined here.
type Flags uint64

const (
	// FlagParallelCalibration marks a readout acquired purely for coil
	// calibration.
	FlagParallelCalibration Flags = 1 << iota

	// FlagParallelCalibrationAndImaging marks a readout used both for
	// calibration and imaging.
	FlagParallelCalibrationAndImaging

	// FlagNoiseMeasurement marks a noise-only readout, excluded from
	// sorting and reconstruction.
	FlagNoiseMeasurement
)

// Has reports whether all bits in mask are set.
func (f Flags) Has(mask Flags) bool {
	return f&mask == mask
}

// IsCalibration reports whether the readout can feed coil-sensitivity
// calibration.
func (f Flags) IsCalibration() bool {
	return f.Has(FlagParallelCalibration) || f.Has(FlagParallelCalibrationAndImaging)
}

// EncodingStep holds the encoding counters of a single readout.
type EncodingStep struct {
	// Phase is the first k-space encoding counter (phase-encode line for
	// Cartesian data, spoke index for radial data).
	Phase int

	// Slice is the second k-space encoding counter (partition/slice).
	Slice int

	// Average is the signal-averaging counter.
	Average int

	// Contrast is the echo/contrast counter.
	Contrast int

	// Repetition is the dynamic repetition counter.
	Repetition int
}

// SubsetTag identifies one reconstructible k-space subset after sorting.
// Readouts sharing a tag are transformed into one image.
type SubsetTag struct {
	Average    int
	Slice      int
	Contrast   int
	Repetition int
}

// Tag returns the subset tag of the step.
func (e EncodingStep) Tag() SubsetTag {
	return SubsetTag{
		Average:    e.Average,
		Slice:      e.Slice,
		Contrast:   e.Contrast,
		Repetition: e.Repetition,
	}
}

// EncodingInfo describes the geometry shared by every readout in a store.
type EncodingInfo struct {
	// MatrixX is the nominal image matrix size along the readout direction.
	// Raw data may carry readout oversampling (see OversamplingFactor).
	MatrixX int

	// MatrixY is the matrix size along the phase-encoding direction.
	MatrixY int

	// MatrixZ is the matrix size along the partition direction (1 for 2D).
	MatrixZ int

	// Coils is the number of receiver channels.
	Coils int

	// FOVx, FOVy, FOVz are the field-of-view extents in mm.
	FOVx float64
	FOVy float64
	FOVz float64

	// OversamplingFactor is the readout oversampling ratio of the raw data
	// (2 for typical scanner output, 1 once preprocessed).
	OversamplingFactor int

	// Trajectory is the sampling pattern of the stored readouts.
	Trajectory TrajectoryType
}

// ReadoutSamples returns the number of samples per readout implied by the
// matrix size and oversampling factor.
func (e EncodingInfo) ReadoutSamples() int {
	f := e.OversamplingFactor
	if f < 1 {
		f = 1
	}
	return e.MatrixX * f
}
