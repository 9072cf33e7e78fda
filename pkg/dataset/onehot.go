package dataset

import (
	"math"

	"github.com/pkg/errors"

	"rastertiler/internal/npy"
)

// OneHot expands integer class labels into a trailing class axis of float32
// indicators. A trailing axis of size 1 is replaced rather than extended, so
// a (H, W, 1) label tile becomes (H, W, numClasses).
func OneHot(a *npy.Array, numClasses int) (*npy.Array, error) {
	if numClasses <= 0 {
		return nil, errors.Errorf("number of classes must be positive, got %d", numClasses)
	}

	shape := append([]int(nil), a.Shape...)
	if n := len(shape); n > 0 && shape[n-1] == 1 {
		shape = shape[:n-1]
	}
	shape = append(shape, numClasses)

	vals := a.Float64s()
	if vals == nil && a.Size() > 0 {
		return nil, errors.Errorf("unsupported label type %s", a.DType())
	}
	out := make([]float32, len(vals)*numClasses)
	for i, v := range vals {
		if v < 0 || v != math.Trunc(v) || int(v) >= numClasses {
			return nil, errors.Errorf("label %v at index %d is not a class in [0, %d)", v, i, numClasses)
		}
		out[i*numClasses+int(v)] = 1
	}
	return npy.New(shape, out)
}

// ValidateClasses checks that every label tile in the collection can be
// one-hot encoded with numClasses classes. It returns the encoded shape of
// the first tile.
func (c *Collection) ValidateClasses(numClasses int) ([]int, error) {
	var shape []int
	for i, p := range c.Pairs {
		oh, err := OneHot(p.Label, numClasses)
		if err != nil {
			return nil, errors.Wrapf(err, "label tile at (%d, %d)", p.Offset.Row, p.Offset.Col)
		}
		if i == 0 {
			shape = oh.Shape
		}
	}
	return shape, nil
}
