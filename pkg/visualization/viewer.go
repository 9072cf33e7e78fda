package visualization

import (
	"fmt"
	"image"
	"image/color"
	"math"
	"os"
	"path/filepath"

	"github.com/disintegration/imaging"
	"github.com/pkg/errors"

	"rastertiler/internal/npy"
)

// Viewer renders the bands of one (row, col, band) patch as grayscale images
// so tiles can be eyeballed next to their label masks.
type Viewer struct {
	// values holds the patch data widened to float64, band last
	values []float64

	// dimensions of the patch
	height int
	width  int
	bands  int

	// scale maps a sample to [0, 1]
	scale float64
}

// NewViewer creates a viewer for a 2-d (H, W) or 3-d (H, W, B) array.
// Float arrays are expected in [0, 1]; integer arrays are scaled by the
// range of their type.
func NewViewer(a *npy.Array) (*Viewer, error) {
	v := &Viewer{values: a.Float64s(), scale: 1}
	switch len(a.Shape) {
	case 2:
		v.height, v.width, v.bands = a.Shape[0], a.Shape[1], 1
	case 3:
		v.height, v.width, v.bands = a.Shape[0], a.Shape[1], a.Shape[2]
	default:
		return nil, errors.Errorf("cannot view array of shape %v", a.Shape)
	}
	if v.values == nil {
		return nil, errors.Errorf("cannot view %s data", a.DType())
	}

	switch a.DType() {
	case "uint8":
		v.scale = 1.0 / 255
	case "uint16":
		v.scale = 1.0 / 65535
	case "int32", "int64":
		// class ids: stretch to the largest id so masks stay visible
		if hi := maxOf(v.values); hi > 0 {
			v.scale = 1 / hi
		}
	}
	return v, nil
}

func maxOf(vals []float64) float64 {
	hi := math.Inf(-1)
	for _, x := range vals {
		hi = math.Max(hi, x)
	}
	return hi
}

func (v *Viewer) Bands() int { return v.bands }

// ExtractBand renders one band as a 16-bit grayscale image.
func (v *Viewer) ExtractBand(band int) (image.Image, error) {
	if band < 0 || band >= v.bands {
		return nil, errors.Errorf("band %d out of range [0, %d)", band, v.bands)
	}

	img := image.NewGray16(image.Rect(0, 0, v.width, v.height))
	for y := 0; y < v.height; y++ {
		for x := 0; x < v.width; x++ {
			idx := (y*v.width+x)*v.bands + band
			value := uint16(math.Round(math.Max(0, math.Min(65535, v.values[idx]*v.scale*65535))))
			img.SetGray16(x, y, color.Gray16{Y: value})
		}
	}
	return img, nil
}

// SaveBand writes an extracted band; the format follows the file extension.
func (v *Viewer) SaveBand(img image.Image, filename string) error {
	return errors.Wrapf(imaging.Save(img, filename), "saving preview %s", filename)
}

// SaveBandSequence writes every band of the patch as {stem}_band_NN.png.
func (v *Viewer) SaveBandSequence(outputDir, stem string) ([]string, error) {
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return nil, errors.Wrapf(err, "creating preview directory %s", outputDir)
	}

	var paths []string
	for band := 0; band < v.bands; band++ {
		img, err := v.ExtractBand(band)
		if err != nil {
			return nil, err
		}

		filename := filepath.Join(outputDir, fmt.Sprintf("%s_band_%02d.png", stem, band))
		if err := v.SaveBand(img, filename); err != nil {
			return nil, err
		}
		paths = append(paths, filename)
	}
	return paths, nil
}
