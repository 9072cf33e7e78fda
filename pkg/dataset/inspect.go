package dataset

import (
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"rastertiler/internal/npy"
)

// FileInfo summarizes one array file.
type FileInfo struct {
	Name  string
	Shape []int
	DType string
	Min   float64
	Max   float64
	Mean  float64
}

// Inspect decodes every .npy file in dir and reports its shape and value range,
// sorted by file name.
func Inspect(dir string) ([]FileInfo, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, errors.Wrapf(err, "reading %s", dir)
	}

	var infos []FileInfo
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), npy.Ext) {
			continue
		}
		a, err := npy.ReadFile(filepath.Join(dir, e.Name()))
		if err != nil {
			return nil, err
		}
		info := FileInfo{Name: e.Name(), Shape: a.Shape, DType: a.DType()}
		if vals := a.Float64s(); len(vals) > 0 {
			info.Min = floats.Min(vals)
			info.Max = floats.Max(vals)
			info.Mean = stat.Mean(vals, nil)
		}
		infos = append(infos, info)
	}
	slices.SortFunc(infos, func(a, b FileInfo) int { return strings.Compare(a.Name, b.Name) })
	return infos, nil
}
