// Package visualization renders planes of a volume, optionally with a segmentation
// mask drawn on top, and saves them as JPEG sequences.
package visualization

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"math"
	"os"
	"path/filepath"

	"gonum.org/v1/gonum/floats"

	"mrisegment/internal/models"
)

// ErrInvalidAxis is returned for an axis other than x, y or z.
var ErrInvalidAxis = errors.New("invalid axis (must be x, y, or z)")

// Viewer extracts grayscale planes from a volume. Intensities are mapped linearly
// from the [min, max] window to the full gray range.
type Viewer struct {
	volume *models.Volume

	// overlay, when set, is drawn in red over the gray levels
	overlay *models.Mask

	windowMin float64
	windowMax float64
}

// NewViewer creates a viewer whose window spans the full intensity range of vol
func NewViewer(vol *models.Volume) *Viewer {
	v := &Viewer{volume: vol}
	if len(vol.Data) > 0 {
		v.windowMin = floats.Min(vol.Data)
		v.windowMax = floats.Max(vol.Data)
	}
	return v
}

// SetWindow sets the intensity range mapped to black and white.
func (v *Viewer) SetWindow(lo, hi float64) error {
	if hi < lo {
		return fmt.Errorf("window max %g below min %g", hi, lo)
	}
	v.windowMin, v.windowMax = lo, hi
	return nil
}

// Window returns the current intensity window.
func (v *Viewer) Window() (float64, float64) {
	return v.windowMin, v.windowMax
}

// SetOverlay draws mask on top of extracted slices; nil removes the overlay.
func (v *Viewer) SetOverlay(mask *models.Mask) error {
	if mask != nil && (mask.Width != v.volume.Width || mask.Height != v.volume.Height || mask.Depth != v.volume.Depth) {
		return fmt.Errorf("mask is %dx%dx%d, volume is %dx%dx%d",
			mask.Width, mask.Height, mask.Depth, v.volume.Width, v.volume.Height, v.volume.Depth)
	}
	v.overlay = mask
	return nil
}

// gray maps an intensity through the window to [0, 1].
func (v *Viewer) gray(value float64) float64 {
	span := v.windowMax - v.windowMin
	if span <= 0 {
		if value > v.windowMax {
			return 1
		}
		return 0
	}
	return math.Max(0, math.Min(1, (value-v.windowMin)/span))
}

// planeSize returns the image size and slice count along axis. Slices along x are
// laid out z by y, slices along y are x by z and slices along z are x by y.
func (v *Viewer) planeSize(axis string) (w, h, n int, err error) {
	vol := v.volume
	switch axis {
	case "x", "X":
		return vol.Depth, vol.Height, vol.Width, nil
	case "y", "Y":
		return vol.Width, vol.Depth, vol.Height, nil
	case "z", "Z":
		return vol.Width, vol.Height, vol.Depth, nil
	}
	return 0, 0, 0, fmt.Errorf("%q: %w", axis, ErrInvalidAxis)
}

// voxel maps pixel (i, j) of slice pos along axis to volume coordinates.
func voxel(axis string, pos, i, j int) (x, y, z int) {
	switch axis {
	case "x", "X":
		return pos, j, i
	case "y", "Y":
		return i, pos, j
	default:
		return i, j, pos
	}
}

// ExtractSlice extracts a 2D slice from the volume along the specified axis.
// Without an overlay the result is an *image.Gray16; with one it is an *image.RGBA
// where masked voxels are blended with red.
func (v *Viewer) ExtractSlice(axis string, position int) (image.Image, error) {
	w, h, n, err := v.planeSize(axis)
	if err != nil {
		return nil, err
	}
	if position < 0 || position >= n {
		return nil, fmt.Errorf("position %d outside [0, %d) along %s", position, n, axis)
	}

	if v.overlay == nil {
		img := image.NewGray16(image.Rect(0, 0, w, h))
		for j := 0; j < h; j++ {
			for i := 0; i < w; i++ {
				x, y, z := voxel(axis, position, i, j)
				img.SetGray16(i, j, color.Gray16{Y: uint16(math.Round(v.gray(v.volume.At(x, y, z)) * 65535))})
			}
		}
		return img, nil
	}

	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for j := 0; j < h; j++ {
		for i := 0; i < w; i++ {
			x, y, z := voxel(axis, position, i, j)
			g := uint8(math.Round(v.gray(v.volume.At(x, y, z)) * 255))
			c := color.RGBA{R: g, G: g, B: g, A: 255}
			if v.overlay.At(x, y, z) != 0 {
				c.R = uint8((uint16(g) + 255) / 2)
				c.G = g / 2
				c.B = g / 2
			}
			img.SetRGBA(i, j, c)
		}
	}
	return img, nil
}

// SaveSlice saves an extracted slice as a JPEG image
func (v *Viewer) SaveSlice(img image.Image, filename string) error {
	file, err := os.Create(filename)
	if err != nil {
		return err
	}
	defer file.Close()

	return jpeg.Encode(file, img, &jpeg.Options{Quality: 90})
}

// SaveSliceSequence extracts and saves every slice along the specified axis and
// returns the number of files written
func (v *Viewer) SaveSliceSequence(axis string, outputDir string) (int, error) {
	_, _, n, err := v.planeSize(axis)
	if err != nil {
		return 0, err
	}
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return 0, err
	}

	for pos := 0; pos < n; pos++ {
		img, err := v.ExtractSlice(axis, pos)
		if err != nil {
			return pos, err
		}

		filename := filepath.Join(outputDir, fmt.Sprintf("slice_%s_%03d.jpg", axis, pos))
		if err := v.SaveSlice(img, filename); err != nil {
			return pos, err
		}
	}

	return n, nil
}
