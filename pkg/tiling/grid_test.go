package tiling

import (
	"slices"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rastertiler/internal/models"
)

func TestNoOverlapQuarters(t *testing.T) {
	g, err := NewGrid(512, 512, Spec{TileHeight: 256, TileWidth: 256})
	require.NoError(t, err)

	var got []models.Offset
	for w := range g.Windows() {
		got = append(got, w.Offset())
		assert.Equal(t, 256, w.Width)
		assert.Equal(t, 256, w.Height)
	}
	assert.Equal(t, []models.Offset{{0, 0}, {0, 256}, {256, 0}, {256, 256}}, got)
	assert.Equal(t, 4, g.Len())
}

func TestQuarterOverlapStride(t *testing.T) {
	g, err := NewGrid(512, 700, Spec{TileHeight: 256, TileWidth: 256, Overlap: Overlap{Fraction: 0.25}})
	require.NoError(t, err)

	sr, sc := g.Strides()
	assert.Equal(t, 192, sr)
	assert.Equal(t, 192, sc)
	assert.Equal(t, []int{0, 192, 384}, g.RowOffsets())
	assert.Equal(t, []int{0, 192, 384, 576}, g.ColOffsets())
}

func TestOverlapPixels(t *testing.T) {
	g, err := NewGrid(100, 100, Spec{TileHeight: 40, TileWidth: 20, Overlap: Overlap{Pixels: 10}})
	require.NoError(t, err)

	sr, sc := g.Strides()
	assert.Equal(t, 30, sr)
	assert.Equal(t, 10, sc)
}

func TestConsecutiveOffsetsDifferByStride(t *testing.T) {
	for _, frac := range []float64{0, 0.1, 0.15, 0.25, 0.3, 0.5, 0.9} {
		g, err := NewGrid(1000, 777, Spec{TileHeight: 256, TileWidth: 128, Overlap: Overlap{Fraction: frac}})
		require.NoError(t, err)

		sr, sc := g.Strides()
		assert.Equal(t, 256-int(256*frac), sr)
		assert.Equal(t, 128-int(128*frac), sc)
		for _, axis := range []struct {
			offsets []int
			stride  int
		}{{g.RowOffsets(), sr}, {g.ColOffsets(), sc}} {
			assert.Equal(t, 0, axis.offsets[0])
			for i := 1; i < len(axis.offsets); i++ {
				assert.Equal(t, axis.stride, axis.offsets[i]-axis.offsets[i-1])
			}
		}
	}
}

// coverage counts how many windows cover each pixel, clipped to the raster.
func coverage(g *Grid, height, width int) []int {
	counts := make([]int, height*width)
	for w := range g.Windows() {
		for y := max(w.RowOff, 0); y < min(w.RowOff+w.Height, height); y++ {
			for x := max(w.ColOff, 0); x < min(w.ColOff+w.Width, width); x++ {
				counts[y*width+x]++
			}
		}
	}
	return counts
}

func TestGridCoversEveryPixel(t *testing.T) {
	cases := []struct {
		h, w, th, tw int
		overlap      Overlap
	}{
		{512, 512, 256, 256, Overlap{}},
		{500, 333, 256, 256, Overlap{Fraction: 0.25}},
		{37, 91, 8, 16, Overlap{Fraction: 0.3}},
		{10, 10, 32, 32, Overlap{}},
		{64, 50, 16, 16, Overlap{Pixels: 15}},
		{1, 1, 1, 1, Overlap{}},
	}
	for _, c := range cases {
		for _, edge := range []EdgePolicy{EdgePad, EdgeShrink} {
			g, err := NewGrid(c.h, c.w, Spec{TileHeight: c.th, TileWidth: c.tw, Overlap: c.overlap, Edge: edge})
			require.NoError(t, err)
			for i, n := range coverage(g, c.h, c.w) {
				if n == 0 {
					t.Fatalf("%+v %v: pixel (%d, %d) not covered", c, edge, i/c.w, i%c.w)
				}
			}
		}
	}
}

func TestEdgePolicies(t *testing.T) {
	spec := Spec{TileHeight: 256, TileWidth: 256, Overlap: Overlap{Fraction: 0.25}}

	spec.Edge = EdgePad
	pad, err := NewGrid(500, 500, spec)
	require.NoError(t, err)
	last := pad.Window(384, 384)
	assert.Equal(t, 256, last.Width)
	assert.Equal(t, 256, last.Height)

	spec.Edge = EdgeShrink
	shrink, err := NewGrid(500, 500, spec)
	require.NoError(t, err)
	last = shrink.Window(384, 384)
	assert.Equal(t, 116, last.Width)
	assert.Equal(t, 116, last.Height)
	for w := range shrink.Windows() {
		assert.True(t, w.Within(500, 500), "%v", w)
	}
}

func TestInvalidSpecsFailFast(t *testing.T) {
	cases := map[string]Spec{
		"full overlap":      {TileHeight: 256, TileWidth: 256, Overlap: Overlap{Fraction: 1}},
		"over overlap":      {TileHeight: 256, TileWidth: 256, Overlap: Overlap{Fraction: 1.5}},
		"negative overlap":  {TileHeight: 256, TileWidth: 256, Overlap: Overlap{Fraction: -0.1}},
		"pixels eat tile":   {TileHeight: 256, TileWidth: 256, Overlap: Overlap{Pixels: 256}},
		"negative pixels":   {TileHeight: 256, TileWidth: 256, Overlap: Overlap{Pixels: -1}},
		"both overlaps":     {TileHeight: 256, TileWidth: 256, Overlap: Overlap{Fraction: 0.1, Pixels: 5}},
		"zero tile":         {TileHeight: 0, TileWidth: 256},
		"tiny tile rounded": {TileHeight: 1, TileWidth: 256, Overlap: Overlap{Pixels: 1}},
		"bad edge":          {TileHeight: 8, TileWidth: 8, Edge: EdgePolicy(9)},
	}
	for name, spec := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := NewGrid(512, 512, spec)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInvalidSpec))
		})
	}

	_, err := NewGrid(0, 512, Spec{TileHeight: 8, TileWidth: 8})
	assert.True(t, errors.Is(err, ErrInvalidSpec))
}

func TestWindowsStopsEarly(t *testing.T) {
	g, err := NewGrid(512, 512, Spec{TileHeight: 64, TileWidth: 64})
	require.NoError(t, err)

	n := 0
	for range g.Windows() {
		n++
		if n == 3 {
			break
		}
	}
	assert.Equal(t, 3, n)
	assert.Len(t, slices.Collect(g.Windows()), 64)
}

func TestParseEdgePolicy(t *testing.T) {
	p, err := ParseEdgePolicy("Pad")
	require.NoError(t, err)
	assert.Equal(t, EdgePad, p)

	p, err = ParseEdgePolicy("shrink")
	require.NoError(t, err)
	assert.Equal(t, EdgeShrink, p)
	assert.Equal(t, "shrink", p.String())

	_, err = ParseEdgePolicy("mirror")
	assert.Error(t, err)
}
