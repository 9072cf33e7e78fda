// Package npy reads and writes n-dimensional arrays in the NumPy .npy format
// (version 1.0, C order, little endian).
package npy

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/pkg/errors"
	"github.com/sbinet/npyio"
	"go.uber.org/multierr"
)

// Ext is the file extension of array files.
const Ext = ".npy"

var magic = []byte("\x93NUMPY")

// headerAlign is the block size the preamble plus header is padded to.
const headerAlign = 64

// Array is a dense C-ordered array. Data is one of []uint8, []uint16,
// []int32, []int64, []float32 or []float64.
type Array struct {
	Shape []int
	Data  any
}

// New returns an array after checking that data matches the shape.
func New(shape []int, data any) (*Array, error) {
	a := &Array{Shape: append([]int(nil), shape...), Data: data}
	if _, err := a.descr(); err != nil {
		return nil, err
	}
	if n := a.dataLen(); n != a.Size() {
		return nil, errors.Errorf("npy: shape %v needs %d elements, got %d", shape, a.Size(), n)
	}
	return a, nil
}

// Size is the number of elements implied by the shape.
func (a *Array) Size() int {
	n := 1
	for _, d := range a.Shape {
		n *= d
	}
	return n
}

// DType names the element type, e.g. "float32".
func (a *Array) DType() string {
	switch a.Data.(type) {
	case []uint8:
		return "uint8"
	case []uint16:
		return "uint16"
	case []int32:
		return "int32"
	case []int64:
		return "int64"
	case []float32:
		return "float32"
	case []float64:
		return "float64"
	}
	return fmt.Sprintf("%T", a.Data)
}

// Float64s returns a copy of the data widened to float64.
func (a *Array) Float64s() []float64 {
	switch d := a.Data.(type) {
	case []uint8:
		return widen(d)
	case []uint16:
		return widen(d)
	case []int32:
		return widen(d)
	case []int64:
		return widen(d)
	case []float32:
		return widen(d)
	case []float64:
		return append([]float64(nil), d...)
	}
	return nil
}

type number interface {
	~uint8 | ~uint16 | ~int32 | ~int64 | ~float32 | ~float64
}

func widen[T number](src []T) []float64 {
	out := make([]float64, len(src))
	for i, v := range src {
		out[i] = float64(v)
	}
	return out
}

func (a *Array) dataLen() int {
	switch d := a.Data.(type) {
	case []uint8:
		return len(d)
	case []uint16:
		return len(d)
	case []int32:
		return len(d)
	case []int64:
		return len(d)
	case []float32:
		return len(d)
	case []float64:
		return len(d)
	}
	return -1
}

func (a *Array) descr() (string, error) {
	switch a.Data.(type) {
	case []uint8:
		return "|u1", nil
	case []uint16:
		return "<u2", nil
	case []int32:
		return "<i4", nil
	case []int64:
		return "<i8", nil
	case []float32:
		return "<f4", nil
	case []float64:
		return "<f8", nil
	}
	return "", errors.Errorf("npy: unsupported data type %T", a.Data)
}

func shapeTuple(shape []int) string {
	parts := make([]string, len(shape))
	for i, d := range shape {
		parts[i] = fmt.Sprint(d)
	}
	if len(shape) == 1 {
		return "(" + parts[0] + ",)"
	}
	return "(" + strings.Join(parts, ", ") + ")"
}

// Encode writes a as a version 1.0 .npy stream.
func Encode(w io.Writer, a *Array) error {
	descr, err := a.descr()
	if err != nil {
		return err
	}
	if n := a.dataLen(); n != a.Size() {
		return errors.Errorf("npy: shape %v needs %d elements, got %d", a.Shape, a.Size(), n)
	}

	header := fmt.Sprintf("{'descr': '%s', 'fortran_order': False, 'shape': %s, }", descr, shapeTuple(a.Shape))
	// magic(6) + version(2) + header length(2) + header + '\n'
	preamble := len(magic) + 4
	pad := headerAlign - (preamble+len(header)+1)%headerAlign
	if pad == headerAlign {
		pad = 0
	}
	header += strings.Repeat(" ", pad) + "\n"
	if len(header) > 0xffff {
		return errors.Errorf("npy: header too long for version 1.0 (%d bytes)", len(header))
	}

	var buf bytes.Buffer
	buf.Write(magic)
	buf.Write([]byte{1, 0})
	if err := binary.Write(&buf, binary.LittleEndian, uint16(len(header))); err != nil {
		return err
	}
	buf.WriteString(header)
	if _, err := w.Write(buf.Bytes()); err != nil {
		return errors.Wrap(err, "npy: writing header")
	}
	if err := binary.Write(w, binary.LittleEndian, a.Data); err != nil {
		return errors.Wrap(err, "npy: writing data")
	}
	return nil
}

// Decode reads one array from a .npy stream.
func Decode(r io.Reader) (*Array, error) {
	rd, err := npyio.NewReader(r)
	if err != nil {
		return nil, errors.Wrap(err, "npy: reading header")
	}
	hdr := rd.Header.Descr
	if hdr.Fortran {
		return nil, errors.New("npy: fortran-ordered arrays are not supported")
	}

	a := &Array{Shape: append([]int(nil), hdr.Shape...)}
	switch strings.TrimLeft(hdr.Type, "<|=") {
	case "u1":
		var d []uint8
		err = rd.Read(&d)
		a.Data = d
	case "u2":
		var d []uint16
		err = rd.Read(&d)
		a.Data = d
	case "i4":
		var d []int32
		err = rd.Read(&d)
		a.Data = d
	case "i8":
		var d []int64
		err = rd.Read(&d)
		a.Data = d
	case "f4":
		var d []float32
		err = rd.Read(&d)
		a.Data = d
	case "f8":
		var d []float64
		err = rd.Read(&d)
		a.Data = d
	default:
		return nil, errors.Errorf("npy: unsupported dtype %q", hdr.Type)
	}
	if err != nil {
		return nil, errors.Wrap(err, "npy: reading data")
	}
	if n := a.dataLen(); n != a.Size() {
		return nil, errors.Errorf("npy: shape %v needs %d elements, got %d", a.Shape, a.Size(), n)
	}
	return a, nil
}

// WriteFile encodes a into path, replacing any existing file.
func WriteFile(path string, a *Array) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrapf(err, "npy: creating %s", path)
	}
	defer func() {
		err = multierr.Combine(err, f.Close())
	}()

	bw := bufio.NewWriter(f)
	if err := Encode(bw, a); err != nil {
		return errors.Wrapf(err, "npy: encoding %s", path)
	}
	return errors.Wrapf(bw.Flush(), "npy: flushing %s", path)
}

// ReadFile decodes the array stored at path.
func ReadFile(path string) (a *Array, err error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "npy: opening %s", path)
	}
	defer func() {
		err = multierr.Combine(err, f.Close())
	}()

	a, err = Decode(bufio.NewReader(f))
	if err != nil {
		return nil, errors.Wrapf(err, "npy: decoding %s", path)
	}
	return a, nil
}
