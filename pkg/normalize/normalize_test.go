package normalize

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rastertiler/pkg/raster"
)

func TestNormalizeRangeAndShape(t *testing.T) {
	// 3 bands, 2x2; every 8-bit value class represented
	blk := &raster.Block{
		Bands: 3, Height: 2, Width: 2, BitDepth: 8,
		Pix: []uint16{
			0, 64, 128, 255,
			255, 255, 255, 255,
			1, 2, 3, 4,
		},
	}
	n, err := ForBitDepth(8)
	require.NoError(t, err)
	assert.Equal(t, 255.0, n.MaxValue())

	a, err := n.Normalize(blk)
	require.NoError(t, err)
	assert.Equal(t, []int{2, 2, 3}, a.Shape)
	assert.Equal(t, "float32", a.DType())

	data := a.Data.([]float32)
	for _, v := range data {
		assert.GreaterOrEqual(t, v, float32(0))
		assert.LessOrEqual(t, v, float32(1))
	}
	// pixel (0, 1): bands 64, 255, 2
	assert.InDelta(t, 64.0/255, data[3], 1e-6)
	assert.InDelta(t, 1.0, data[4], 1e-6)
	assert.InDelta(t, 2.0/255, data[5], 1e-6)
}

func TestNormalizeAllMax(t *testing.T) {
	pix := make([]uint16, 16)
	for i := range pix {
		pix[i] = 255
	}
	n, err := New(255)
	require.NoError(t, err)

	a, err := n.Normalize(&raster.Block{Bands: 1, Height: 4, Width: 4, BitDepth: 8, Pix: pix})
	require.NoError(t, err)
	for _, v := range a.Data.([]float32) {
		assert.Equal(t, float32(1), v)
	}
}

func TestNormalizeRejectsSamplesAboveMax(t *testing.T) {
	n, err := ForBitDepth(8)
	require.NoError(t, err)

	_, err = n.Normalize(&raster.Block{Bands: 1, Height: 1, Width: 2, BitDepth: 16, Pix: []uint16{10, 4095}})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrOutOfRange))

	n, err = ForBitDepth(12)
	require.NoError(t, err)
	a, err := n.Normalize(&raster.Block{Bands: 1, Height: 1, Width: 2, BitDepth: 16, Pix: []uint16{10, 4095}})
	require.NoError(t, err)
	assert.Equal(t, float32(1), a.Data.([]float32)[1])
}

func TestNewRequiresPositiveMax(t *testing.T) {
	for _, v := range []float64{0, -1} {
		_, err := New(v)
		assert.Error(t, err)
	}
	_, err := ForBitDepth(0)
	assert.Error(t, err)
	_, err = ForBitDepth(17)
	assert.Error(t, err)
}

func TestInterleave(t *testing.T) {
	blk := &raster.Block{Bands: 2, Height: 1, Width: 2, BitDepth: 8, Pix: []uint16{1, 2, 3, 4}}
	a, err := Interleave(blk)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2, 2}, a.Shape)
	assert.Equal(t, []uint8{1, 3, 2, 4}, a.Data)

	blk.BitDepth = 16
	blk.Pix = []uint16{1000, 2, 3, 4}
	a, err = Interleave(blk)
	require.NoError(t, err)
	assert.Equal(t, []uint16{1000, 3, 2, 4}, a.Data)
}
