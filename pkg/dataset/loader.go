// Package dataset loads patch directories back into memory for training.
//
// Image and label patches are joined on the (row, col) offset encoded in
// their file names, so the pairing does not depend on directory order.
package dataset

import (
	"os"
	"path/filepath"
	"slices"

	"github.com/pkg/errors"
	"github.com/samber/lo"
	"github.com/sirupsen/logrus"

	"rastertiler/internal/models"
	"rastertiler/internal/npy"
	"rastertiler/pkg/patch"
)

// ErrDuplicateOffset is returned when two files of one role map to the same offset.
var ErrDuplicateOffset = errors.New("duplicate patch offset")

// Convention names the roles used for image and label patches.
type Convention struct {
	ImageRole models.Role
	LabelRole models.Role
}

var (
	// DefaultConvention matches image_tile_* and label_tile_* files.
	DefaultConvention = Convention{ImageRole: models.RoleImage, LabelRole: models.RoleLabel}

	// InputConvention matches input_tile_* and label_tile_* files.
	InputConvention = Convention{ImageRole: models.RoleInput, LabelRole: models.RoleLabel}
)

// Collection is a loaded patch directory.
type Collection struct {
	// Pairs are sorted row-major by offset
	Pairs []models.PatchPair

	// Offsets of patches that have no partner
	UnpairedImages []models.Offset
	UnpairedLabels []models.Offset
}

// Len is the number of complete pairs.
func (c *Collection) Len() int { return len(c.Pairs) }

// Images returns the image arrays in pair order.
func (c *Collection) Images() []*npy.Array {
	return lo.Map(c.Pairs, func(p models.PatchPair, _ int) *npy.Array { return p.Image })
}

// Labels returns the label arrays in pair order.
func (c *Collection) Labels() []*npy.Array {
	return lo.Map(c.Pairs, func(p models.PatchPair, _ int) *npy.Array { return p.Label })
}

// Validate fails when any patch is missing its partner.
func (c *Collection) Validate() error {
	if len(c.UnpairedImages) > 0 || len(c.UnpairedLabels) > 0 {
		return errors.Errorf("%d image patches without labels, %d label patches without images",
			len(c.UnpairedImages), len(c.UnpairedLabels))
	}
	return nil
}

// Scan lists the patch files in dir that belong to the convention's roles.
// Each file is returned unloaded.
func Scan(dir string, conv Convention) ([]models.Patch, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, errors.Wrapf(err, "reading patch directory %s", dir)
	}

	var patches []models.Patch
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		role, off, ok := patch.Parse(e.Name())
		if !ok || (role != conv.ImageRole && role != conv.LabelRole) {
			continue
		}
		patches = append(patches, models.Patch{Role: role, Offset: off, Path: filepath.Join(dir, e.Name())})
	}
	return patches, nil
}

// Load reads every image and label patch in dir and joins them by offset.
func Load(dir string, conv Convention, log logrus.FieldLogger) (*Collection, error) {
	if log == nil {
		log = logrus.StandardLogger()
	}
	if conv.ImageRole == conv.LabelRole {
		return nil, errors.Errorf("image and label roles are both %q", conv.ImageRole)
	}

	patches, err := Scan(dir, conv)
	if err != nil {
		return nil, err
	}

	images := map[models.Offset]*npy.Array{}
	labels := map[models.Offset]*npy.Array{}
	seen := map[models.Role]map[models.Offset]string{conv.ImageRole: {}, conv.LabelRole: {}}
	for _, p := range patches {
		// image_tile_1_0 and image_tile_01_0 parse to the same key
		if prev, ok := seen[p.Role][p.Offset]; ok {
			return nil, errors.Wrapf(ErrDuplicateOffset, "%s and %s are both %s tiles at (%d, %d)",
				filepath.Base(prev), filepath.Base(p.Path), p.Role, p.Offset.Row, p.Offset.Col)
		}
		seen[p.Role][p.Offset] = p.Path

		a, err := npy.ReadFile(p.Path)
		if err != nil {
			return nil, err
		}
		if p.Role == conv.ImageRole {
			images[p.Offset] = a
		} else {
			labels[p.Offset] = a
		}
	}

	c := &Collection{}
	for _, off := range sortedKeys(images) {
		lbl, ok := labels[off]
		if !ok {
			c.UnpairedImages = append(c.UnpairedImages, off)
			continue
		}
		c.Pairs = append(c.Pairs, models.PatchPair{Offset: off, Image: images[off], Label: lbl})
	}
	for _, off := range sortedKeys(labels) {
		if _, ok := images[off]; !ok {
			c.UnpairedLabels = append(c.UnpairedLabels, off)
		}
	}

	log.WithFields(logrus.Fields{
		"dir":             dir,
		"images":          len(images),
		"labels":          len(labels),
		"pairs":           c.Len(),
		"unpaired_images": len(c.UnpairedImages),
		"unpaired_labels": len(c.UnpairedLabels),
	}).Info("loaded patches")
	return c, nil
}

func sortedKeys(m map[models.Offset]*npy.Array) []models.Offset {
	keys := lo.Keys(m)
	slices.SortFunc(keys, func(a, b models.Offset) int {
		switch {
		case a.Less(b):
			return -1
		case b.Less(a):
			return 1
		}
		return 0
	})
	return keys
}
