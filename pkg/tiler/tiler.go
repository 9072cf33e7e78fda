// Package tiler cuts an image raster and its co-registered label raster into
// patch files on a shared window grid.
package tiler

import (
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"go.uber.org/multierr"

	"rastertiler/internal/models"
	"rastertiler/internal/npy"
	"rastertiler/pkg/normalize"
	"rastertiler/pkg/patch"
	"rastertiler/pkg/raster"
	"rastertiler/pkg/tiling"
)

// ErrShapeMismatch is returned when the image and label rasters differ in size.
var ErrShapeMismatch = errors.New("image and label rasters must be the same size")

// Params holds everything a tiling pass needs.
type Params struct {
	// ImagePath is the raster to cut into image patches
	ImagePath string

	// LabelPath is the co-registered label raster. Empty means image only.
	LabelPath string

	// OutputDir receives the patch files; it is created if missing
	OutputDir string

	// Grid describes tile size, overlap and edge policy
	Grid tiling.Spec

	// Fill is written into padded pixels under tiling.EdgePad
	Fill uint16

	// Normalizer scales image patches. Nil writes raw image samples.
	Normalizer *normalize.Normalizer

	// ImageRole and LabelRole name the patch files; they default to
	// "image" and "label".
	ImageRole models.Role
	LabelRole models.Role
}

// Summary describes a finished pass.
type Summary struct {
	Tiles      int
	Rows       int
	Cols       int
	StrideRows int
	StrideCols int
	Height     int
	Width      int
}

// Tiler runs a tiling pass.
type Tiler struct {
	params *Params
	log    logrus.FieldLogger
}

// NewTiler returns a tiler for params.
func NewTiler(params *Params, log logrus.FieldLogger) *Tiler {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Tiler{params: params, log: log}
}

func (t *Tiler) imageRole() models.Role {
	if t.params.ImageRole == "" {
		return models.RoleImage
	}
	return t.params.ImageRole
}

func (t *Tiler) labelRole() models.Role {
	if t.params.LabelRole == "" {
		return models.RoleLabel
	}
	return t.params.LabelRole
}

// Process opens the rasters, checks that they line up, and writes one image
// patch (and one label patch) per grid window. The rasters are closed on
// every return path. A failure mid-run leaves the patches written so far.
func (t *Tiler) Process() (summary Summary, err error) {
	// validate the grid before touching any file
	if _, _, err := t.params.Grid.Strides(); err != nil {
		return summary, err
	}
	if t.imageRole() == t.labelRole() {
		return summary, errors.Errorf("image and label roles are both %q", t.imageRole())
	}

	img, err := raster.Open(t.params.ImagePath)
	if err != nil {
		return summary, err
	}
	defer func() {
		err = multierr.Combine(err, img.Close())
	}()

	var lbl *raster.Raster
	if t.params.LabelPath != "" {
		lbl, err = raster.Open(t.params.LabelPath)
		if err != nil {
			return summary, err
		}
		defer func() {
			err = multierr.Combine(err, lbl.Close())
		}()

		if !raster.SameShape(img, lbl) {
			return summary, errors.Wrapf(ErrShapeMismatch, "image %dx%d, label %dx%d",
				img.Height(), img.Width(), lbl.Height(), lbl.Width())
		}
	}

	return t.tile(img, lbl)
}

// tile runs the grid over already-open rasters; lbl may be nil.
func (t *Tiler) tile(img, lbl *raster.Raster) (Summary, error) {
	var summary Summary
	if lbl != nil && !raster.SameShape(img, lbl) {
		return summary, ErrShapeMismatch
	}

	grid, err := tiling.NewGrid(img.Height(), img.Width(), t.params.Grid)
	if err != nil {
		return summary, err
	}
	writer, err := patch.NewWriter(t.params.OutputDir)
	if err != nil {
		return summary, err
	}

	summary.StrideRows, summary.StrideCols = grid.Strides()
	summary.Rows = len(grid.RowOffsets())
	summary.Cols = len(grid.ColOffsets())
	summary.Height, summary.Width = img.Height(), img.Width()

	t.log.WithFields(logrus.Fields{
		"image":  t.params.ImagePath,
		"label":  t.params.LabelPath,
		"height": img.Height(),
		"width":  img.Width(),
		"bands":  img.Bands(),
		"tiles":  grid.Len(),
		"stride": []int{summary.StrideRows, summary.StrideCols},
		"edge":   t.params.Grid.Edge.String(),
	}).Info("tiling raster")

	opts := raster.ReadOptions{
		Boundless: t.params.Grid.Edge == tiling.EdgePad,
		Fill:      t.params.Fill,
	}
	for w := range grid.Windows() {
		off := w.Offset()
		log := t.log.WithFields(logrus.Fields{"row": off.Row, "col": off.Col})

		blk, err := img.Read(w, opts)
		if err != nil {
			return summary, errors.Wrapf(err, "reading image window %v", w)
		}
		arr, err := t.imageArray(blk)
		if err != nil {
			return summary, errors.Wrapf(err, "image tile at (%d, %d)", off.Row, off.Col)
		}
		if _, err := writer.Write(t.imageRole(), off, arr); err != nil {
			return summary, err
		}

		if lbl != nil {
			blk, err := lbl.Read(w, opts)
			if err != nil {
				return summary, errors.Wrapf(err, "reading label window %v", w)
			}
			arr, err := normalize.Interleave(blk)
			if err != nil {
				return summary, errors.Wrapf(err, "label tile at (%d, %d)", off.Row, off.Col)
			}
			if _, err := writer.Write(t.labelRole(), off, arr); err != nil {
				return summary, err
			}
		}

		summary.Tiles++
		log.WithField("shape", []int{w.Height, w.Width}).Debug("wrote tile")
	}

	t.log.WithFields(logrus.Fields{"tiles": summary.Tiles, "dir": writer.Dir()}).Info("tiling complete")
	return summary, nil
}

func (t *Tiler) imageArray(blk *raster.Block) (*npy.Array, error) {
	if t.params.Normalizer == nil {
		return normalize.Interleave(blk)
	}
	return t.params.Normalizer.Normalize(blk)
}
