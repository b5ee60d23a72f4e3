package imagedata

import (
	"fmt"
	"math"
)

// ImageSet is an ordered collection of images, one per reconstructible
// k-space subset. Reconstruction operators consume and produce sets so that
// multi-slice and multi-repetition data keep their structure.
type ImageSet struct {
	items []*Image
}

// NewImageSet creates an empty set.
func NewImageSet() *ImageSet { return &ImageSet{} }

// Append adds an image to the set.
func (s *ImageSet) Append(im *Image) { s.items = append(s.items, im) }

// Len returns the number of images.
func (s *ImageSet) Len() int { return len(s.items) }

// Item returns the i-th image.
func (s *ImageSet) Item(i int) *Image { return s.items[i] }

// Clone returns a deep copy of the set.
func (s *ImageSet) Clone() *ImageSet {
	out := NewImageSet()
	for _, im := range s.items {
		out.Append(im.Clone())
	}
	return out
}

// Norm returns the Euclidean norm over every image in the set.
func (s *ImageSet) Norm() float64 {
	var sum float64
	for _, im := range s.items {
		n := im.Norm()
		sum += n * n
	}
	return math.Sqrt(sum)
}

// Sub returns the item-wise difference of two sets of equal length.
func (s *ImageSet) Sub(other *ImageSet) (*ImageSet, error) {
	if s.Len() != other.Len() {
		return nil, fmt.Errorf("image sets hold %d and %d items", s.Len(), other.Len())
	}
	out := NewImageSet()
	for i, im := range s.items {
		d, err := im.Sub(other.items[i])
		if err != nil {
			return nil, err
		}
		out.Append(d)
	}
	return out, nil
}

// Scale multiplies every image by a, in place.
func (s *ImageSet) Scale(a complex128) {
	for _, im := range s.items {
		im.Scale(a)
	}
}
