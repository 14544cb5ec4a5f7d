package volumeio

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"mrisegment/internal/models"
)

// ErrNoSlices is returned when a directory holds no readable slice images.
var ErrNoSlices = errors.New("no slice images found")

// Load reads a volume from a MetaImage file or from a directory of slice images.
func Load(path string) (*models.Volume, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if info.IsDir() {
		return LoadSliceStack(path)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".mhd", ".mha":
		vol, _, err := ReadMetaImage(path)
		return vol, err
	default:
		return nil, fmt.Errorf("input %s: %w", path, ErrUnsupported)
	}
}

// LoadSliceStack loads the JPEG and PNG images of dir as consecutive z planes.
// Files are ordered by the number embedded in their names, so slice_2 comes before
// slice_10. Every slice must have the same dimensions.
func LoadSliceStack(dir string) (*models.Volume, error) {
	slices, err := readSlices(dir)
	if err != nil {
		return nil, err
	}

	bounds := slices[0].Image.Bounds()
	width, height := bounds.Dx(), bounds.Dy()
	vol := models.NewVolume(width, height, len(slices))

	for z, s := range slices {
		b := s.Image.Bounds()
		if b.Dx() != width || b.Dy() != height {
			return nil, fmt.Errorf("slice %s is %dx%d, expected %dx%d",
				s.Filename, b.Dx(), b.Dy(), width, height)
		}
		plane := imageToIntensities(s.Image)
		copy(vol.Data[z*width*height:(z+1)*width*height], plane)
	}
	return vol, nil
}

// readSlices decodes the slice images of dir in slice order.
func readSlices(dir string) ([]models.Slice, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		switch strings.ToLower(filepath.Ext(e.Name())) {
		case ".jpg", ".jpeg", ".png":
			names = append(names, e.Name())
		}
	}
	if len(names) == 0 {
		return nil, fmt.Errorf("%s: %w", dir, ErrNoSlices)
	}

	sort.SliceStable(names, func(i, j int) bool {
		return extractNumber(names[i]) < extractNumber(names[j])
	})

	slices := make([]models.Slice, 0, len(names))
	for i, name := range names {
		img, err := loadImage(filepath.Join(dir, name))
		if err != nil {
			return nil, fmt.Errorf("failed to load image %s: %w", name, err)
		}
		slices = append(slices, models.Slice{Image: img, Index: i, Filename: name})
	}
	return slices, nil
}

// extractNumber concatenates the digits of a file name; names without digits sort first.
func extractNumber(filename string) int {
	var digits strings.Builder
	for _, c := range filepath.Base(filename) {
		if c >= '0' && c <= '9' {
			digits.WriteRune(c)
		}
	}
	n, err := strconv.Atoi(digits.String())
	if err != nil {
		return 0
	}
	return n
}

func loadImage(path string) (image.Image, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	img, _, err := image.Decode(file)
	return img, err
}

// imageToIntensities converts an image to gray levels in its native range:
// 0-65535 for 16-bit images and 0-255 for everything else.
func imageToIntensities(img image.Image) []float64 {
	bounds := img.Bounds()
	width, height := bounds.Dx(), bounds.Dy()
	wide := sixteenBit(img)

	result := make([]float64, width*height)
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			g := color.Gray16Model.Convert(img.At(bounds.Min.X+x, bounds.Min.Y+y)).(color.Gray16).Y
			if wide {
				result[y*width+x] = float64(g)
			} else {
				result[y*width+x] = float64(g >> 8)
			}
		}
	}
	return result
}

func sixteenBit(img image.Image) bool {
	switch img.(type) {
	case *image.Gray16, *image.RGBA64, *image.NRGBA64:
		return true
	default:
		return false
	}
}
