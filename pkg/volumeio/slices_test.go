package volumeio

import (
	"fmt"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writePNG(t *testing.T, path string, img image.Image) {
	t.Helper()
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()
	require.NoError(t, png.Encode(f, img))
}

// graySlice returns an 8-bit slice whose pixel (x, y) is base+x+y.
func graySlice(width, height int, base uint8) *image.Gray {
	img := image.NewGray(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.SetGray(x, y, color.Gray{Y: base + uint8(x+y)})
		}
	}
	return img
}

func TestExtractNumber(t *testing.T) {
	testCases := []struct {
		filename string
		expected int
	}{
		{"slice_1.png", 1},
		{"slice_023.jpg", 23},
		{"img456.jpg", 456},
		{"not_a_number.jpg", 0},
		{"mixed123text456.jpg", 123456},
	}

	for _, tc := range testCases {
		assert.Equal(t, tc.expected, extractNumber(tc.filename), tc.filename)
	}
}

func TestLoadSliceStackOrdersByNumber(t *testing.T) {
	dir := t.TempDir()
	// slice_10 sorts after slice_2 numerically, before it lexically.
	for _, i := range []int{10, 2, 1} {
		writePNG(t, filepath.Join(dir, fmt.Sprintf("slice_%d.png", i)), graySlice(3, 2, uint8(i*10)))
	}
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("ignored"), 0644))

	vol, err := LoadSliceStack(dir)
	require.NoError(t, err)
	assert.Equal(t, []int{3, 2, 3}, []int{vol.Width, vol.Height, vol.Depth})

	assert.Equal(t, 10.0, vol.At(0, 0, 0))
	assert.Equal(t, 20.0, vol.At(0, 0, 1))
	assert.Equal(t, 100.0, vol.At(0, 0, 2))
	assert.Equal(t, 103.0, vol.At(2, 1, 2))
}

func TestLoadSliceStackKeepsSixteenBitRange(t *testing.T) {
	dir := t.TempDir()
	img := image.NewGray16(image.Rect(0, 0, 2, 2))
	img.SetGray16(1, 1, color.Gray16{Y: 40000})
	writePNG(t, filepath.Join(dir, "s0.png"), img)

	vol, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, 40000.0, vol.At(1, 1, 0))
	assert.Equal(t, 0.0, vol.At(0, 0, 0))
}

func TestLoadSliceStackErrors(t *testing.T) {
	_, err := LoadSliceStack(t.TempDir())
	assert.ErrorIs(t, err, ErrNoSlices)

	dir := t.TempDir()
	writePNG(t, filepath.Join(dir, "a1.png"), graySlice(3, 3, 0))
	writePNG(t, filepath.Join(dir, "a2.png"), graySlice(4, 3, 0))
	_, err = LoadSliceStack(dir)
	assert.ErrorContains(t, err, "expected 3x3")
}

func TestLoadDispatch(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "vol.mha")
	require.NoError(t, WriteMetaImage(path, testVolume(), WriteOptions{}))

	vol, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, testVolume().Data, vol.Data)

	_, err = Load(filepath.Join(dir, "missing.mha"))
	assert.Error(t, err)

	other := filepath.Join(dir, "vol.nii")
	require.NoError(t, os.WriteFile(other, nil, 0644))
	_, err = Load(other)
	assert.ErrorIs(t, err, ErrUnsupported)
}
