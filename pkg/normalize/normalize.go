// Package normalize turns raw band-major blocks into (row, col, band)
// arrays for training: images scaled to [0, 1], labels kept raw.
package normalize

import (
	"math"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/floats"

	"rastertiler/internal/npy"
	"rastertiler/pkg/raster"
)

// ErrOutOfRange is returned when a sample exceeds the configured maximum.
var ErrOutOfRange = errors.New("sample exceeds normalization maximum")

// Normalizer divides samples by a fixed maximum value.
type Normalizer struct {
	max float64
}

// New returns a normalizer for samples in [0, maxValue].
func New(maxValue float64) (*Normalizer, error) {
	if !(maxValue > 0) || math.IsInf(maxValue, 0) {
		return nil, errors.Errorf("normalization max value must be positive, got %v", maxValue)
	}
	return &Normalizer{max: maxValue}, nil
}

// ForBitDepth returns a normalizer for unsigned samples of the given depth.
func ForBitDepth(bits int) (*Normalizer, error) {
	if bits < 1 || bits > 16 {
		return nil, errors.Errorf("bit depth must be in [1, 16], got %d", bits)
	}
	return New(float64(uint32(1)<<bits - 1))
}

func (n *Normalizer) MaxValue() float64 { return n.max }

// Normalize scales the block to float32 in [0, 1] and moves the band axis last.
func (n *Normalizer) Normalize(b *raster.Block) (*npy.Array, error) {
	plane := b.Height * b.Width
	scaled := make([]float64, len(b.Pix))
	for i, v := range b.Pix {
		if float64(v) > n.max {
			return nil, errors.Wrapf(ErrOutOfRange, "sample %d at index %d, max %v", v, i, n.max)
		}
		scaled[i] = float64(v)
	}
	floats.Scale(1/n.max, scaled)

	out := make([]float32, len(scaled))
	for band := 0; band < b.Bands; band++ {
		for p := 0; p < plane; p++ {
			out[p*b.Bands+band] = float32(scaled[band*plane+p])
		}
	}
	return npy.New([]int{b.Height, b.Width, b.Bands}, out)
}

// Interleave moves the band axis last without scaling. 8-bit blocks come
// out as uint8, deeper ones as uint16.
func Interleave(b *raster.Block) (*npy.Array, error) {
	shape := []int{b.Height, b.Width, b.Bands}
	if b.BitDepth <= 8 {
		return npy.New(shape, toHWC(b, func(v uint16) uint8 { return uint8(v) }))
	}
	return npy.New(shape, toHWC(b, func(v uint16) uint16 { return v }))
}

func toHWC[T any](b *raster.Block, conv func(uint16) T) []T {
	plane := b.Height * b.Width
	out := make([]T, len(b.Pix))
	for band := 0; band < b.Bands; band++ {
		for p := 0; p < plane; p++ {
			out[p*b.Bands+band] = conv(b.Pix[band*plane+p])
		}
	}
	return out
}
