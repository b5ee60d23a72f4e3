// Package coilsense reconstructs per-coil images from sorted k-space data
// and estimates coil sensitivity maps from them, by the
// square-root-of-sum-of-squares (SRSS) method or by Inati's adaptive
// combination. Maps are consumed by the acquisition model to split a
// combined image into coil channels and to combine coil channels back.
package coilsense

import (
	"fmt"

	"mrkspace/internal/encoding"
	"mrkspace/pkg/acquisition"
	"mrkspace/pkg/imagedata"
)

// CoilImages holds per-coil complex images, one multi-channel image per
// k-space subset, reconstructed independently per coil by adjoint Fourier
// encoding.
type CoilImages struct {
	// Workers bounds the per-coil fan-out; zero means one worker per CPU.
	Workers int

	items []*imagedata.Image
	tags  []acquisition.SubsetTag
	info  acquisition.EncodingInfo
}

// NewCoilImages creates an empty container.
func NewCoilImages() *CoilImages { return &CoilImages{} }

// Len returns the number of reconstructed subsets.
func (ci *CoilImages) Len() int { return len(ci.items) }

// Item returns the i-th subset's multi-channel image.
func (ci *CoilImages) Item(i int) *imagedata.Image { return ci.items[i] }

// Tags returns the subset tag of each item.
func (ci *CoilImages) Tags() []acquisition.SubsetTag {
	return append([]acquisition.SubsetTag(nil), ci.tags...)
}

// Info returns the encoding geometry the images were reconstructed from.
func (ci *CoilImages) Info() acquisition.EncodingInfo { return ci.info }

// Calculate reconstructs one image per coil and k-space subset from the
// sorted store. When the store carries readouts flagged for parallel
// calibration, only those feed the reconstruction; otherwise the full store
// is used. Recalculation replaces previous contents.
func (ci *CoilImages) Calculate(s *acquisition.Store) error {
	if !s.Sorted() {
		return fmt.Errorf("coil images require sorted acquisition data; call Sort first")
	}

	calib := s
	if idx := s.CalibrationIndices(); len(idx) > 0 {
		sub, err := s.Subset(idx)
		if err != nil {
			return fmt.Errorf("extracting calibration data: %w", err)
		}
		if err := sub.SortPartial(); err != nil {
			return fmt.Errorf("sorting calibration data: %w", err)
		}
		calib = sub
	}

	enc, err := encoding.ForStore(calib.Info, ci.Workers)
	if err != nil {
		return err
	}
	order, err := calib.KSpaceOrder()
	if err != nil {
		return err
	}
	tags, err := calib.SubsetTags()
	if err != nil {
		return err
	}

	info := calib.Info
	nx := info.ReadoutSamples()
	nz := info.MatrixZ
	if nz < 1 {
		nz = 1
	}
	items := make([]*imagedata.Image, 0, len(order))
	for _, indices := range order {
		sub, err := calib.Subset(indices)
		if err != nil {
			return err
		}
		img := imagedata.New(nx, info.MatrixY, nz, info.Coils)
		img.FOVx, img.FOVy, img.FOVz = info.FOVx, info.FOVy, info.FOVz
		if err := enc.Adjoint(sub, img); err != nil {
			return fmt.Errorf("reconstructing coil images: %w", err)
		}
		items = append(items, img)
	}

	ci.items = items
	ci.tags = tags
	ci.info = info
	return nil
}
