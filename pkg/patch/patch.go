// Package patch names, writes and recognizes tile files of the form
// {role}_tile_{row}_{col}.npy.
package patch

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"

	"github.com/pkg/errors"

	"rastertiler/internal/models"
	"rastertiler/internal/npy"
)

var nameRE = regexp.MustCompile(`^([A-Za-z0-9-]+)_tile_(\d+)_(\d+)\.npy$`)

// Name returns the file name for a tile of the given role at offset.
func Name(role models.Role, off models.Offset) string {
	return fmt.Sprintf("%s_tile_%d_%d%s", role, off.Row, off.Col, npy.Ext)
}

// Parse splits a file name produced by Name back into role and offset.
func Parse(filename string) (models.Role, models.Offset, bool) {
	m := nameRE.FindStringSubmatch(filepath.Base(filename))
	if m == nil {
		return "", models.Offset{}, false
	}
	row, err1 := strconv.Atoi(m[2])
	col, err2 := strconv.Atoi(m[3])
	if err1 != nil || err2 != nil {
		return "", models.Offset{}, false
	}
	return models.Role(m[1]), models.Offset{Row: row, Col: col}, true
}

// Writer persists tiles into one directory.
type Writer struct {
	dir string
}

// NewWriter creates dir if needed and returns a writer for it.
func NewWriter(dir string) (*Writer, error) {
	if dir == "" {
		return nil, errors.New("output directory is empty")
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, errors.Wrapf(err, "creating output directory %s", dir)
	}
	return &Writer{dir: dir}, nil
}

func (w *Writer) Dir() string { return w.dir }

// Write stores a as the role tile at off and returns the file path.
func (w *Writer) Write(role models.Role, off models.Offset, a *npy.Array) (string, error) {
	if role == "" {
		return "", errors.New("patch role is empty")
	}
	path := filepath.Join(w.dir, Name(role, off))
	if err := npy.WriteFile(path, a); err != nil {
		return "", errors.Wrapf(err, "writing %s tile at (%d, %d)", role, off.Row, off.Col)
	}
	return path, nil
}
