// Package engine defines the reconstruction engine boundary the demo
// binaries program against. An engine is selected once at startup and
// passed explicitly; there is no string-keyed dynamic lookup of backends.
package engine

import (
	"fmt"

	"mrkspace/pkg/acquisition"
	"mrkspace/pkg/coilsense"
	"mrkspace/pkg/imagedata"
	"mrkspace/pkg/model"
	"mrkspace/pkg/rawdata"
	"mrkspace/pkg/trajectory"
)

// ReconstructionEngine is the capability surface the demos require from a
// backend: loading acquisitions, preprocessing, trajectory assignment,
// sensitivity estimation and acquisition-model construction.
type ReconstructionEngine interface {
	// Name identifies the backend in reports.
	Name() string

	// LoadAcquisitions reads a capture file into a store using the given
	// buffering scheme.
	LoadAcquisitions(path string, scheme rawdata.Scheme) (*acquisition.Store, error)

	// Preprocess removes scanner-specific artifacts, currently readout
	// oversampling, returning a new store.
	Preprocess(s *acquisition.Store) (*acquisition.Store, error)

	// AssignTrajectory populates trajectory coordinates and density
	// weights in place.
	AssignTrajectory(s *acquisition.Store, kind acquisition.TrajectoryType) error

	// EstimateSensitivity calculates coil sensitivity maps from a sorted
	// store with the given method.
	EstimateSensitivity(s *acquisition.Store, method coilsense.Method) (*coilsense.Map, error)

	// NewAcquisitionModel builds an operational acquisition model over the
	// sorted store, image template and maps.
	NewAcquisitionModel(s *acquisition.Store, template *imagedata.Image, csm *coilsense.Map) (*model.AcquisitionModel, error)
}

// Native is the in-process engine built on this module's packages.
type Native struct {
	// Workers bounds per-coil parallelism in encoding and estimation;
	// zero means one worker per CPU.
	Workers int
}

var _ ReconstructionEngine = (*Native)(nil)

// Name implements ReconstructionEngine.
func (e *Native) Name() string { return "native" }

// LoadAcquisitions implements ReconstructionEngine.
func (e *Native) LoadAcquisitions(path string, scheme rawdata.Scheme) (*acquisition.Store, error) {
	return rawdata.Read(path, scheme)
}

// Preprocess implements ReconstructionEngine.
func (e *Native) Preprocess(s *acquisition.Store) (*acquisition.Store, error) {
	return acquisition.RemoveReadoutOversampling(s)
}

// AssignTrajectory implements ReconstructionEngine.
func (e *Native) AssignTrajectory(s *acquisition.Store, kind acquisition.TrajectoryType) error {
	return trajectory.Assign(s, kind)
}

// EstimateSensitivity implements ReconstructionEngine.
func (e *Native) EstimateSensitivity(s *acquisition.Store, method coilsense.Method) (*coilsense.Map, error) {
	m := coilsense.NewMap(method)
	m.Workers = e.Workers
	if err := m.CalculateFromStore(s); err != nil {
		return nil, fmt.Errorf("estimating coil sensitivity: %w", err)
	}
	return m, nil
}

// NewAcquisitionModel implements ReconstructionEngine.
func (e *Native) NewAcquisitionModel(s *acquisition.Store, template *imagedata.Image, csm *coilsense.Map) (*model.AcquisitionModel, error) {
	am := model.New()
	am.Workers = e.Workers
	if err := am.SetUp(s, template); err != nil {
		return nil, err
	}
	if err := am.SetCoilSensitivityMaps(csm); err != nil {
		return nil, err
	}
	return am, nil
}
