package visualization

import (
	"fmt"
	"image"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"rastertiler/internal/npy"
)

// newPatch builds a (height, width, bands) float32 patch where band b holds b/bands everywhere
func newPatch(t *testing.T, height, width, bands int) *npy.Array {
	data := make([]float32, height*width*bands)
	for i := range data {
		data[i] = float32(i%bands) / float32(bands)
	}
	a, err := npy.New([]int{height, width, bands}, data)
	if err != nil {
		t.Fatalf("Failed to build patch: %v", err)
	}
	return a
}

// TestNewViewer verifies that the viewer picks up the patch dimensions
func TestNewViewer(t *testing.T) {
	viewer, err := NewViewer(newPatch(t, 6, 4, 3))
	if err != nil {
		t.Fatalf("Failed to create viewer: %v", err)
	}

	if viewer.height != 6 || viewer.width != 4 || viewer.bands != 3 {
		t.Errorf("Expected 6x4x3, got %dx%dx%d", viewer.height, viewer.width, viewer.bands)
	}

	if viewer.Bands() != 3 {
		t.Errorf("Expected 3 bands, got %d", viewer.Bands())
	}

	flat, err := npy.New([]int{24}, make([]float32, 24))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := NewViewer(flat); err == nil {
		t.Error("Expected error for 1-d array, got nil")
	}
}

// TestExtractBand verifies band values are mapped onto the 16-bit range
func TestExtractBand(t *testing.T) {
	viewer, err := NewViewer(newPatch(t, 6, 4, 2))
	if err != nil {
		t.Fatalf("Failed to create viewer: %v", err)
	}

	img, err := viewer.ExtractBand(1)
	if err != nil {
		t.Fatalf("Failed to extract band: %v", err)
	}

	bounds := img.Bounds()
	if bounds.Dx() != 4 || bounds.Dy() != 6 {
		t.Errorf("Expected band dimensions 4x6, got %dx%d", bounds.Dx(), bounds.Dy())
	}

	gray, ok := img.(*image.Gray16)
	if !ok {
		t.Fatalf("Expected *image.Gray16, got %T", img)
	}
	if got := gray.Gray16At(2, 3).Y; got != 32768 {
		t.Errorf("Expected mid-gray 32768, got %d", got)
	}

	if _, err := viewer.ExtractBand(2); err == nil {
		t.Error("Expected error for out of range band, got nil")
	}
}

// TestIntegerPatchScaling verifies uint8 labels use the full 8-bit range
func TestIntegerPatchScaling(t *testing.T) {
	a, err := npy.New([]int{1, 2, 1}, []uint8{0, 255})
	if err != nil {
		t.Fatal(err)
	}
	viewer, err := NewViewer(a)
	if err != nil {
		t.Fatalf("Failed to create viewer: %v", err)
	}

	img, err := viewer.ExtractBand(0)
	if err != nil {
		t.Fatalf("Failed to extract band: %v", err)
	}
	if got := img.(*image.Gray16).Gray16At(1, 0).Y; got != 65535 {
		t.Errorf("Expected 65535, got %d", got)
	}
}

// TestSaveBandSequence verifies every band is written as a PNG file
func TestSaveBandSequence(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping file I/O test in short mode")
	}

	tempDir := t.TempDir()
	viewer, err := NewViewer(newPatch(t, 5, 5, 3))
	if err != nil {
		t.Fatalf("Failed to create viewer: %v", err)
	}

	outputDir := filepath.Join(tempDir, "previews")
	paths, err := viewer.SaveBandSequence(outputDir, "image_tile_0_0")
	if err != nil {
		t.Fatalf("Failed to save band sequence: %v", err)
	}
	if len(paths) != 3 {
		t.Errorf("Expected 3 files, got %d", len(paths))
	}

	for band := 0; band < 3; band++ {
		filename := filepath.Join(outputDir, fmt.Sprintf("image_tile_0_0_band_%02d.png", band))
		if _, err := os.Stat(filename); os.IsNotExist(err) {
			t.Errorf("Expected preview file does not exist: %s", filename)
		}
	}
}

// TestSaveBandSequenceBadDirectory verifies a directory creation failure is reported
func TestSaveBandSequenceBadDirectory(t *testing.T) {
	blocker := filepath.Join(t.TempDir(), "file")
	if err := os.WriteFile(blocker, []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}

	viewer, err := NewViewer(newPatch(t, 2, 2, 1))
	if err != nil {
		t.Fatalf("Failed to create viewer: %v", err)
	}

	_, err = viewer.SaveBandSequence(filepath.Join(blocker, "previews"), "tile")
	if err == nil {
		t.Fatal("Expected error when the preview directory cannot be created, got nil")
	}
	if !strings.Contains(err.Error(), "creating preview directory") {
		t.Errorf("Expected wrapped directory error, got %v", err)
	}
}
