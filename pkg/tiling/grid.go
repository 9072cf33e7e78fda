// Package tiling computes the window grid that covers a raster with
// fixed-size, optionally overlapping tiles.
package tiling

import (
	"fmt"
	"iter"
	"math"
	"strings"

	"github.com/pkg/errors"

	"rastertiler/internal/models"
)

// ErrInvalidSpec is returned for grid settings that cannot make progress.
var ErrInvalidSpec = errors.New("invalid tiling spec")

// EdgePolicy decides what happens to windows that cross the raster edge.
type EdgePolicy int

const (
	// EdgePad keeps every window at full tile size; the reader pads the
	// out-of-range part with the fill value.
	EdgePad EdgePolicy = iota

	// EdgeShrink clips edge windows to the raster so they come out smaller.
	EdgeShrink
)

func (p EdgePolicy) String() string {
	switch p {
	case EdgePad:
		return "pad"
	case EdgeShrink:
		return "shrink"
	}
	return fmt.Sprintf("EdgePolicy(%d)", int(p))
}

// ParseEdgePolicy maps "pad" or "shrink" to a policy.
func ParseEdgePolicy(s string) (EdgePolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "pad", "boundless":
		return EdgePad, nil
	case "shrink", "clip":
		return EdgeShrink, nil
	}
	return 0, errors.Wrapf(ErrInvalidSpec, "unknown edge policy %q", s)
}

// Overlap is given either as a fraction of the tile size or in pixels.
type Overlap struct {
	Fraction float64
	Pixels   int
}

// Spec describes the tiles to cut.
type Spec struct {
	TileHeight int
	TileWidth  int
	Overlap    Overlap
	Edge       EdgePolicy
}

// Strides returns the row and column strides for the spec.
func (s Spec) Strides() (rows, cols int, err error) {
	if s.TileHeight <= 0 || s.TileWidth <= 0 {
		return 0, 0, errors.Wrapf(ErrInvalidSpec, "tile size %dx%d must be positive", s.TileHeight, s.TileWidth)
	}
	o := s.Overlap
	if o.Fraction != 0 && o.Pixels != 0 {
		return 0, 0, errors.Wrap(ErrInvalidSpec, "overlap fraction and overlap pixels are mutually exclusive")
	}
	if math.IsNaN(o.Fraction) || o.Fraction < 0 || o.Fraction >= 1 {
		return 0, 0, errors.Wrapf(ErrInvalidSpec, "overlap fraction %v must be in [0, 1)", o.Fraction)
	}
	if o.Pixels < 0 {
		return 0, 0, errors.Wrapf(ErrInvalidSpec, "overlap pixels %d must not be negative", o.Pixels)
	}

	rows = s.TileHeight - overlapPixels(s.TileHeight, o)
	cols = s.TileWidth - overlapPixels(s.TileWidth, o)
	if rows <= 0 || cols <= 0 {
		return 0, 0, errors.Wrapf(ErrInvalidSpec, "stride %dx%d must be positive", rows, cols)
	}
	return rows, cols, nil
}

func overlapPixels(tile int, o Overlap) int {
	if o.Pixels > 0 {
		return o.Pixels
	}
	return int(float64(tile) * o.Fraction)
}

// Grid is the set of windows covering a height x width raster.
type Grid struct {
	spec       Spec
	height     int
	width      int
	strideRows int
	strideCols int
	rowOffsets []int
	colOffsets []int
}

// NewGrid validates spec against the raster size and lays out the offsets.
func NewGrid(height, width int, spec Spec) (*Grid, error) {
	if height <= 0 || width <= 0 {
		return nil, errors.Wrapf(ErrInvalidSpec, "raster size %dx%d must be positive", height, width)
	}
	if spec.Edge != EdgePad && spec.Edge != EdgeShrink {
		return nil, errors.Wrapf(ErrInvalidSpec, "unknown edge policy %v", spec.Edge)
	}
	sr, sc, err := spec.Strides()
	if err != nil {
		return nil, err
	}
	return &Grid{
		spec:       spec,
		height:     height,
		width:      width,
		strideRows: sr,
		strideCols: sc,
		rowOffsets: axisOffsets(height, sr),
		colOffsets: axisOffsets(width, sc),
	}, nil
}

// axisOffsets returns 0, stride, 2*stride, ... while below dim.
func axisOffsets(dim, stride int) []int {
	offsets := make([]int, 0, (dim+stride-1)/stride)
	for off := 0; off < dim; off += stride {
		offsets = append(offsets, off)
	}
	return offsets
}

func (g *Grid) Spec() Spec { return g.spec }

// Strides returns the row and column strides in pixels.
func (g *Grid) Strides() (rows, cols int) { return g.strideRows, g.strideCols }

func (g *Grid) RowOffsets() []int { return append([]int(nil), g.rowOffsets...) }
func (g *Grid) ColOffsets() []int { return append([]int(nil), g.colOffsets...) }

// Len is the number of windows in the grid.
func (g *Grid) Len() int { return len(g.rowOffsets) * len(g.colOffsets) }

// Window returns the window starting at (row, col), clipped under EdgeShrink.
func (g *Grid) Window(row, col int) models.Window {
	w := models.Window{ColOff: col, RowOff: row, Width: g.spec.TileWidth, Height: g.spec.TileHeight}
	if g.spec.Edge == EdgeShrink {
		w.Width = min(w.Width, g.width-col)
		w.Height = min(w.Height, g.height-row)
	}
	return w
}

// Windows yields every window in row-major order.
func (g *Grid) Windows() iter.Seq[models.Window] {
	return func(yield func(models.Window) bool) {
		for _, row := range g.rowOffsets {
			for _, col := range g.colOffsets {
				if !yield(g.Window(row, col)) {
					return
				}
			}
		}
	}
}
