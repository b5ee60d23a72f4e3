package visualization

import (
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"mrkspace/pkg/imagedata"
)

func testImage(nx, ny, channels int) *imagedata.Image {
	im := imagedata.New(nx, ny, 1, channels)
	for c := 0; c < channels; c++ {
		dst := im.Channel(c)
		for i := range dst {
			dst[i] = complex(float64(i%7), float64(c))
		}
	}
	return im
}

// decodePNG opens a written figure and returns its bounds.
func decodePNG(t *testing.T, path string) (int, int) {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("Figure %s was not written: %v", path, err)
	}
	defer f.Close()
	img, err := png.Decode(f)
	if err != nil {
		t.Fatalf("Figure %s is not a valid PNG: %v", path, err)
	}
	b := img.Bounds()
	return b.Dx(), b.Dy()
}

// TestSaveMagnitudeAndPhase verifies that grayscale figures are written
// with the image dimensions.
func TestSaveMagnitudeAndPhase(t *testing.T) {
	dir := t.TempDir()
	v, err := NewViewer(dir)
	if err != nil {
		t.Fatalf("NewViewer failed: %v", err)
	}

	im := testImage(12, 9, 1)
	if err := v.SaveMagnitude(im, 0, "mag"); err != nil {
		t.Fatalf("SaveMagnitude failed: %v", err)
	}
	if err := v.SavePhase(im, 0, "phase"); err != nil {
		t.Fatalf("SavePhase failed: %v", err)
	}

	if w, h := decodePNG(t, filepath.Join(dir, "mag.png")); w != 12 || h != 9 {
		t.Errorf("Magnitude figure is %dx%d, want 12x9", w, h)
	}
	if w, h := decodePNG(t, filepath.Join(dir, "phase.png")); w != 12 || h != 9 {
		t.Errorf("Phase figure is %dx%d, want 12x9", w, h)
	}
}

// TestSaveCoilPanel verifies one figure per channel with the channel
// suffix.
func TestSaveCoilPanel(t *testing.T) {
	dir := t.TempDir()
	v, err := NewViewer(dir)
	if err != nil {
		t.Fatalf("NewViewer failed: %v", err)
	}

	if err := v.SaveCoilPanel(testImage(8, 8, 3), "csm"); err != nil {
		t.Fatalf("SaveCoilPanel failed: %v", err)
	}
	for _, name := range []string{"csm_coil00.png", "csm_coil01.png", "csm_coil02.png"} {
		decodePNG(t, filepath.Join(dir, name))
	}
}

// TestSaveTrajectoryScatter verifies the scatter figure and its input
// validation.
func TestSaveTrajectoryScatter(t *testing.T) {
	dir := t.TempDir()
	v, err := NewViewer(dir)
	if err != nil {
		t.Fatalf("NewViewer failed: %v", err)
	}

	coords := [][]float64{
		{-2, -1, 0, 1, 2},
		{0, 1, 0, -1, 0},
	}
	if err := v.SaveTrajectoryScatter(coords, "traj"); err != nil {
		t.Fatalf("SaveTrajectoryScatter failed: %v", err)
	}
	decodePNG(t, filepath.Join(dir, "traj.png"))

	if err := v.SaveTrajectoryScatter([][]float64{{1, 2}}, "bad"); err == nil {
		t.Error("SaveTrajectoryScatter accepted a single-dimension trajectory")
	}
	if err := v.SaveTrajectoryScatter([][]float64{{1, 2}, {1}}, "bad"); err == nil {
		t.Error("SaveTrajectoryScatter accepted mismatched coordinate lengths")
	}
}

// TestSaveProfiles verifies the overlaid line figure.
func TestSaveProfiles(t *testing.T) {
	dir := t.TempDir()
	v, err := NewViewer(dir)
	if err != nil {
		t.Fatalf("NewViewer failed: %v", err)
	}

	profiles := map[string][]float64{
		"backward": {0, 1, 2, 3, 2, 1, 0},
		"inverse":  {0, 2, 4, 6, 4, 2, 0},
	}
	if err := v.SaveProfiles(profiles, "centre line", "profiles"); err != nil {
		t.Fatalf("SaveProfiles failed: %v", err)
	}
	decodePNG(t, filepath.Join(dir, "profiles.png"))
}
