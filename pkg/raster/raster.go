// Package raster holds band-major pixel grids decoded from raster files and
// implements windowed reads over them, including boundless reads that
// synthesize out-of-range pixels from a fill value.
package raster

import (
	"bufio"
	"image"
	"image/color"
	_ "image/png" // register PNG with image.Decode
	"os"

	"github.com/pkg/errors"
	"go.uber.org/multierr"
	_ "golang.org/x/image/tiff" // register TIFF with image.Decode

	"rastertiler/internal/models"
)

var (
	// ErrClosed is returned when reading from a closed raster.
	ErrClosed = errors.New("raster is closed")

	// ErrOutOfBounds is returned when a bounded read exceeds the raster.
	ErrOutOfBounds = errors.New("window exceeds raster bounds")
)

// Raster is a bands x height x width grid of unsigned samples.
type Raster struct {
	path     string
	bands    int
	height   int
	width    int
	bitDepth int

	// pix is band-major: pix[b*height*width + y*width + x]
	pix    []uint16
	closed bool
}

// Block is the result of a windowed read, band-major like the raster.
type Block struct {
	Bands    int
	Height   int
	Width    int
	BitDepth int
	Pix      []uint16
}

// At returns the sample of band b at (row, col) within the block.
func (b *Block) At(band, row, col int) uint16 {
	return b.Pix[band*b.Height*b.Width+row*b.Width+col]
}

// ReadOptions controls windowed reads.
type ReadOptions struct {
	// Boundless allows windows past the raster bounds; missing pixels are Fill.
	Boundless bool
	Fill      uint16
}

// New wraps band-major samples in a raster. bitDepth must be 8 or 16.
func New(bands, height, width, bitDepth int, pix []uint16) (*Raster, error) {
	if bands <= 0 || height <= 0 || width <= 0 {
		return nil, errors.Errorf("invalid raster shape %dx%dx%d", bands, height, width)
	}
	if bitDepth != 8 && bitDepth != 16 {
		return nil, errors.Errorf("unsupported bit depth %d", bitDepth)
	}
	if len(pix) != bands*height*width {
		return nil, errors.Errorf("raster %dx%dx%d needs %d samples, got %d",
			bands, height, width, bands*height*width, len(pix))
	}
	if bitDepth == 8 {
		for _, v := range pix {
			if v > 0xff {
				return nil, errors.Errorf("sample %d exceeds 8-bit range", v)
			}
		}
	}
	return &Raster{bands: bands, height: height, width: width, bitDepth: bitDepth, pix: pix}, nil
}

// Open decodes a TIFF or PNG raster file into memory.
//
// TIFF decoding covers what golang.org/x/image/tiff reads: 1 or 3 samples
// per pixel, or 4 with an alpha extra sample, at 8 or 16 bits unsigned, plus
// paletted images. Rasters with 4 unassociated samples (NAIP-style RGBN),
// more than 4 bands, or float/signed samples fail to decode here and need a
// GDAL-backed reader.
func Open(path string) (r *Raster, err error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "opening raster %s", path)
	}
	defer func() {
		err = multierr.Combine(err, f.Close())
	}()

	img, format, err := image.Decode(bufio.NewReader(f))
	if err != nil {
		return nil, errors.Wrapf(err, "decoding raster %s", path)
	}

	r, err = FromImage(img)
	if err != nil {
		return nil, errors.Wrapf(err, "converting %s raster %s", format, path)
	}
	r.path = path
	return r, nil
}

// FromImage converts a decoded image into a raster.
//
// Gray images give one band and paletted images give one band of palette
// indices, which is how class masks are usually stored. Colour images give
// three bands, or four when any pixel is not fully opaque. RGBA-family
// images are copied sample for sample, never un-premultiplied.
func FromImage(img image.Image) (*Raster, error) {
	b := img.Bounds()
	h, w := b.Dy(), b.Dx()
	if h <= 0 || w <= 0 {
		return nil, errors.New("empty image")
	}
	plane := h * w

	switch src := img.(type) {
	case *image.Gray:
		pix := make([]uint16, plane)
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				pix[y*w+x] = uint16(src.GrayAt(b.Min.X+x, b.Min.Y+y).Y)
			}
		}
		return New(1, h, w, 8, pix)

	case *image.Gray16:
		pix := make([]uint16, plane)
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				pix[y*w+x] = src.Gray16At(b.Min.X+x, b.Min.Y+y).Y
			}
		}
		return New(1, h, w, 16, pix)

	case *image.Paletted:
		pix := make([]uint16, plane)
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				pix[y*w+x] = uint16(src.ColorIndexAt(b.Min.X+x, b.Min.Y+y))
			}
		}
		return New(1, h, w, 8, pix)

	case *image.RGBA:
		return fromInterleaved(src.Pix, src.Stride, src.Rect.Min, b, 1)
	case *image.NRGBA:
		return fromInterleaved(src.Pix, src.Stride, src.Rect.Min, b, 1)
	case *image.RGBA64:
		return fromInterleaved(src.Pix, src.Stride, src.Rect.Min, b, 2)
	case *image.NRGBA64:
		return fromInterleaved(src.Pix, src.Stride, src.Rect.Min, b, 2)
	}
	return fromColor(img)
}

// fromInterleaved copies 4-sample pixels into band planes exactly as stored.
// The fourth sample is not treated as alpha: it is kept as a band unless it
// is at its maximum everywhere. bytesPerSample is 1 (8-bit) or 2 (16-bit,
// big endian as in image.RGBA64).
func fromInterleaved(pix []uint8, stride int, origin image.Point, b image.Rectangle, bytesPerSample int) (*Raster, error) {
	h, w := b.Dy(), b.Dx()
	plane := h * w
	out := make([]uint16, 4*plane)
	full := uint16(0xff)
	if bytesPerSample == 2 {
		full = 0xffff
	}
	opaque := true

	for y := 0; y < h; y++ {
		row := (b.Min.Y-origin.Y+y)*stride + (b.Min.X-origin.X)*4*bytesPerSample
		for x := 0; x < w; x++ {
			px := row + x*4*bytesPerSample
			i := y*w + x
			for band := 0; band < 4; band++ {
				o := px + band*bytesPerSample
				v := uint16(pix[o])
				if bytesPerSample == 2 {
					v = v<<8 | uint16(pix[o+1])
				}
				out[band*plane+i] = v
			}
			if out[3*plane+i] != full {
				opaque = false
			}
		}
	}

	bands := 4
	if opaque {
		bands = 3
		out = out[:3*plane]
	}
	return New(bands, h, w, 8*bytesPerSample, out)
}

// fromColor splits any other colour image into 16-bit R, G, B and, when
// needed, A bands.
func fromColor(img image.Image) (*Raster, error) {
	b := img.Bounds()
	h, w := b.Dy(), b.Dx()
	plane := h * w
	pix := make([]uint16, 4*plane)
	opaque := true

	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			c := color.NRGBA64Model.Convert(img.At(b.Min.X+x, b.Min.Y+y)).(color.NRGBA64)
			i := y*w + x
			pix[i] = c.R
			pix[plane+i] = c.G
			pix[2*plane+i] = c.B
			pix[3*plane+i] = c.A
			if c.A != 0xffff {
				opaque = false
			}
		}
	}
	bands := 4
	if opaque {
		bands = 3
		pix = pix[:3*plane]
	}
	return New(bands, h, w, 16, pix)
}

// Path is the file the raster was opened from, empty for in-memory rasters.
func (r *Raster) Path() string { return r.path }

func (r *Raster) Bands() int    { return r.bands }
func (r *Raster) Height() int   { return r.height }
func (r *Raster) Width() int    { return r.width }
func (r *Raster) BitDepth() int { return r.bitDepth }

// SameShape reports whether two rasters share height and width.
func SameShape(a, b *Raster) bool {
	return a.height == b.height && a.width == b.width
}

// Close releases the samples. Further reads return ErrClosed.
func (r *Raster) Close() error {
	if r.closed {
		return ErrClosed
	}
	r.closed = true
	r.pix = nil
	return nil
}

// Read returns the samples inside w as a bands x w.Height x w.Width block.
func (r *Raster) Read(w models.Window, opts ReadOptions) (*Block, error) {
	if r.closed {
		return nil, ErrClosed
	}
	if w.Width <= 0 || w.Height <= 0 {
		return nil, errors.Errorf("invalid window size %dx%d", w.Width, w.Height)
	}
	if !opts.Boundless && !w.Within(r.height, r.width) {
		return nil, errors.Wrapf(ErrOutOfBounds, "%v on %dx%d raster", w, r.height, r.width)
	}
	if r.bitDepth == 8 && opts.Fill > 0xff {
		return nil, errors.Errorf("fill value %d exceeds 8-bit range", opts.Fill)
	}

	out := &Block{
		Bands:    r.bands,
		Height:   w.Height,
		Width:    w.Width,
		BitDepth: r.bitDepth,
		Pix:      make([]uint16, r.bands*w.Height*w.Width),
	}
	if opts.Fill != 0 {
		for i := range out.Pix {
			out.Pix[i] = opts.Fill
		}
	}

	// copy the part of the window that overlaps the raster
	in := w.Rect().Intersect(image.Rect(0, 0, r.width, r.height))
	if in.Empty() {
		return out, nil
	}
	srcPlane := r.height * r.width
	dstPlane := w.Height * w.Width
	for band := 0; band < r.bands; band++ {
		for y := in.Min.Y; y < in.Max.Y; y++ {
			src := band*srcPlane + y*r.width
			dst := band*dstPlane + (y-w.RowOff)*w.Width - w.ColOff
			copy(out.Pix[dst+in.Min.X:dst+in.Max.X], r.pix[src+in.Min.X:src+in.Max.X])
		}
	}
	return out, nil
}
