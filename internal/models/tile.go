package models

import (
	"fmt"
	"image"

	"rastertiler/internal/npy"
)

// Window is a rectangle in pixel space. It may extend past the raster bounds.
type Window struct {
	// ColOff and RowOff are the pixel offsets of the top-left corner
	ColOff int
	RowOff int

	// Width and Height are the window dimensions in pixels
	Width  int
	Height int
}

// Offset returns the (row, col) origin of the window.
func (w Window) Offset() Offset {
	return Offset{Row: w.RowOff, Col: w.ColOff}
}

// Rect returns the window as an image rectangle.
func (w Window) Rect() image.Rectangle {
	return image.Rect(w.ColOff, w.RowOff, w.ColOff+w.Width, w.RowOff+w.Height)
}

// Within reports whether the window lies entirely inside a height x width raster.
func (w Window) Within(height, width int) bool {
	return w.ColOff >= 0 && w.RowOff >= 0 &&
		w.ColOff+w.Width <= width && w.RowOff+w.Height <= height
}

func (w Window) String() string {
	return fmt.Sprintf("Window(col=%d, row=%d, width=%d, height=%d)", w.ColOff, w.RowOff, w.Width, w.Height)
}

// Offset is the (row, col) origin of a tile and the key that links an
// image patch to its label patch.
type Offset struct {
	Row int
	Col int
}

// Less orders offsets row-major.
func (o Offset) Less(other Offset) bool {
	if o.Row != other.Row {
		return o.Row < other.Row
	}
	return o.Col < other.Col
}

// Role names what a patch file holds
type Role string

const (
	RoleImage Role = "image"
	RoleInput Role = "input"
	RoleLabel Role = "label"
)

// Patch is one persisted tile
type Patch struct {
	Role   Role
	Offset Offset

	// Path is the file the patch was read from or written to
	Path string

	// Array holds the decoded data, nil until loaded
	Array *npy.Array
}

// PatchPair joins an image patch and its label patch on their shared offset.
type PatchPair struct {
	Offset Offset
	Image  *npy.Array
	Label  *npy.Array
}
