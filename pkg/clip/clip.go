// Package clip cuts a single fixed-size window around a centre point and
// stores it as one normalized array file.
package clip

import (
	"image"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"go.uber.org/multierr"

	"rastertiler/internal/models"
	"rastertiler/internal/npy"
	"rastertiler/pkg/normalize"
	"rastertiler/pkg/raster"
	"rastertiler/pkg/tiling"
)

// Params configures a clip.
type Params struct {
	InputPath  string
	OutputPath string

	// Height and Width of the clip in pixels
	Height int
	Width  int

	// Center is the (x, y) pixel to clip around; nil means the raster centre
	Center *image.Point

	// Edge picks padding or shrinking when the clip crosses the raster edge
	Edge tiling.EdgePolicy
	Fill uint16

	Normalizer *normalize.Normalizer
}

// CenterWindow returns the clip window around center, never starting at a
// negative offset.
func CenterWindow(height, width, clipHeight, clipWidth int, center *image.Point) models.Window {
	c := image.Pt(width/2, height/2)
	if center != nil {
		c = *center
	}
	return models.Window{
		ColOff: max(0, c.X-clipWidth/2),
		RowOff: max(0, c.Y-clipHeight/2),
		Width:  clipWidth,
		Height: clipHeight,
	}
}

// Read clips an open raster and returns the normalized (row, col, band) array.
func Read(r *raster.Raster, p *Params) (*npy.Array, models.Window, error) {
	if p.Height <= 0 || p.Width <= 0 {
		return nil, models.Window{}, errors.Errorf("clip size %dx%d must be positive", p.Height, p.Width)
	}
	if p.Normalizer == nil {
		return nil, models.Window{}, errors.New("clip needs a normalizer")
	}

	w := CenterWindow(r.Height(), r.Width(), p.Height, p.Width, p.Center)
	opts := raster.ReadOptions{Fill: p.Fill}
	switch p.Edge {
	case tiling.EdgePad:
		opts.Boundless = true
	case tiling.EdgeShrink:
		w.Width = min(w.Width, r.Width()-w.ColOff)
		w.Height = min(w.Height, r.Height()-w.RowOff)
		if w.Width <= 0 || w.Height <= 0 {
			return nil, w, errors.Wrapf(raster.ErrOutOfBounds, "clip centre outside %dx%d raster", r.Height(), r.Width())
		}
	default:
		return nil, w, errors.Errorf("unknown edge policy %v", p.Edge)
	}

	blk, err := r.Read(w, opts)
	if err != nil {
		return nil, w, err
	}
	a, err := p.Normalizer.Normalize(blk)
	return a, w, err
}

// Run opens the input, clips it, and writes the result to OutputPath.
func Run(p *Params, log logrus.FieldLogger) (err error) {
	if log == nil {
		log = logrus.StandardLogger()
	}
	if p.OutputPath == "" {
		return errors.New("clip output path is empty")
	}

	r, err := raster.Open(p.InputPath)
	if err != nil {
		return err
	}
	defer func() {
		err = multierr.Combine(err, r.Close())
	}()

	a, w, err := Read(r, p)
	if err != nil {
		return errors.Wrapf(err, "clipping %s", p.InputPath)
	}

	if dir := filepath.Dir(p.OutputPath); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return errors.Wrapf(err, "creating %s", dir)
		}
	}
	if err := npy.WriteFile(p.OutputPath, a); err != nil {
		return err
	}

	log.WithFields(logrus.Fields{
		"input":  p.InputPath,
		"output": p.OutputPath,
		"window": w.String(),
		"shape":  a.Shape,
	}).Info("clipped raster")
	return nil
}
