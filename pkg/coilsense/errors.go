package coilsense

import "fmt"

// ShapeMismatchError reports that an input's coil count or spatial extent
// disagrees with the geometry recorded by the estimator.
type ShapeMismatchError struct {
	Op   string
	Got  [4]int // nx, ny, nz, coils
	Want [4]int
}

func (e *ShapeMismatchError) Error() string {
	return fmt.Sprintf("%s: data shape %dx%dx%d with %d coils does not match expected %dx%dx%d with %d coils",
		e.Op, e.Got[0], e.Got[1], e.Got[2], e.Got[3], e.Want[0], e.Want[1], e.Want[2], e.Want[3])
}
