// Package visualization renders reconstruction results to files: grayscale
// PNG panels for magnitude and phase images, and scatter/line figures for
// trajectories and residuals. Nothing here displays interactively; the
// demos stay usable on headless machines.
package visualization

import (
	"fmt"
	"image"
	"image/color"
	"image/png"
	"math"
	"os"
	"path/filepath"

	"mrkspace/pkg/imagedata"
)

// Viewer writes image-domain results for one reconstruction run.
type Viewer struct {
	// outputDir receives every file the viewer writes.
	outputDir string
}

// NewViewer creates a viewer writing into outputDir, creating it if
// needed.
func NewViewer(outputDir string) (*Viewer, error) {
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return nil, fmt.Errorf("creating output directory: %w", err)
	}
	return &Viewer{outputDir: outputDir}, nil
}

// SaveMagnitude writes the magnitude of one channel as a normalized
// grayscale PNG.
func (v *Viewer) SaveMagnitude(im *imagedata.Image, channel int, name string) error {
	return v.saveGray(im.Magnitude(channel), im.NX, im.NY, name)
}

// SavePhase writes the phase of one channel as a grayscale PNG with the
// range [-pi, pi] mapped to [0, 65535].
func (v *Viewer) SavePhase(im *imagedata.Image, channel int, name string) error {
	ph := im.Phase(channel)
	scaled := make([]float64, len(ph))
	for i, p := range ph {
		scaled[i] = (p + math.Pi) / (2 * math.Pi)
	}
	return v.writeGray16(scaled, im.NX, im.NY, name)
}

// SaveCoilPanel writes one magnitude PNG per channel, suffixed _coilNN.
func (v *Viewer) SaveCoilPanel(im *imagedata.Image, name string) error {
	for c := 0; c < im.Channels; c++ {
		file := fmt.Sprintf("%s_coil%02d", name, c)
		if err := v.SaveMagnitude(im, c, file); err != nil {
			return err
		}
	}
	return nil
}

// saveGray normalizes to the data maximum before writing, so images with
// arbitrary scaling remain visible.
func (v *Viewer) saveGray(data []float64, nx, ny int, name string) error {
	max := 0.0
	for _, d := range data {
		if d > max {
			max = d
		}
	}
	scaled := make([]float64, len(data))
	if max > 0 {
		for i, d := range data {
			scaled[i] = d / max
		}
	}
	return v.writeGray16(scaled, nx, ny, name)
}

// writeGray16 writes values in [0, 1] as a 16-bit grayscale PNG.
func (v *Viewer) writeGray16(data []float64, nx, ny int, name string) error {
	if len(data) < nx*ny {
		return fmt.Errorf("image data has %d samples, need %d", len(data), nx*ny)
	}
	img := image.NewGray16(image.Rect(0, 0, nx, ny))
	for y := 0; y < ny; y++ {
		for x := 0; x < nx; x++ {
			value := uint16(math.Max(0, math.Min(65535, data[y*nx+x]*65535)))
			img.SetGray16(x, y, color.Gray16{Y: value})
		}
	}

	path := filepath.Join(v.outputDir, name+".png")
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating %s: %w", path, err)
	}
	defer f.Close()
	if err := png.Encode(f, img); err != nil {
		return fmt.Errorf("encoding %s: %w", path, err)
	}
	return nil
}
