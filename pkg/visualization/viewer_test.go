package visualization

import (
	"fmt"
	"image"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mrisegment/internal/models"
)

// rampVolume holds 100 + 10*z in every voxel of plane z.
func rampVolume(width, height, depth int) *models.Volume {
	vol := models.NewVolume(width, height, depth)
	for z := 0; z < depth; z++ {
		for y := 0; y < height; y++ {
			for x := 0; x < width; x++ {
				vol.Set(x, y, z, float64(100+10*z))
			}
		}
	}
	return vol
}

func TestNewViewerWindowSpansVolume(t *testing.T) {
	viewer := NewViewer(rampVolume(4, 4, 5))
	lo, hi := viewer.Window()
	assert.Equal(t, 100.0, lo)
	assert.Equal(t, 140.0, hi)

	assert.Error(t, viewer.SetWindow(10, 5))
	require.NoError(t, viewer.SetWindow(110, 130))
	lo, hi = viewer.Window()
	assert.Equal(t, []float64{110, 130}, []float64{lo, hi})
}

func TestExtractSlice(t *testing.T) {
	width, height, depth := 10, 8, 5
	viewer := NewViewer(rampVolume(width, height, depth))

	testCases := []struct {
		axis          string
		position      int
		width, height int
	}{
		{"z", 2, width, height},
		{"x", 3, depth, height},
		{"y", 1, width, depth},
	}
	for _, tc := range testCases {
		img, err := viewer.ExtractSlice(tc.axis, tc.position)
		require.NoError(t, err, tc.axis)
		assert.Equal(t, tc.width, img.Bounds().Dx(), tc.axis)
		assert.Equal(t, tc.height, img.Bounds().Dy(), tc.axis)
	}

	// plane z=2 holds 120, the middle of the [100, 140] window
	img, err := viewer.ExtractSlice("z", 2)
	require.NoError(t, err)
	gray, ok := img.(*image.Gray16)
	require.True(t, ok, "expected *image.Gray16, got %T", img)
	assert.InDelta(t, 32768, int(gray.Gray16At(4, 4).Y), 1)

	// along x, column i is plane z=i
	img, err = viewer.ExtractSlice("x", 0)
	require.NoError(t, err)
	gray = img.(*image.Gray16)
	assert.Equal(t, uint16(0), gray.Gray16At(0, 3).Y)
	assert.Equal(t, uint16(65535), gray.Gray16At(4, 3).Y)

	_, err = viewer.ExtractSlice("invalid", 0)
	assert.ErrorIs(t, err, ErrInvalidAxis)
	_, err = viewer.ExtractSlice("z", depth)
	assert.Error(t, err)
	_, err = viewer.ExtractSlice("z", -1)
	assert.Error(t, err)
}

func TestWindowClampsOutliers(t *testing.T) {
	viewer := NewViewer(rampVolume(2, 2, 5))
	require.NoError(t, viewer.SetWindow(115, 125))

	low, err := viewer.ExtractSlice("z", 0)
	require.NoError(t, err)
	high, err := viewer.ExtractSlice("z", 4)
	require.NoError(t, err)
	assert.Equal(t, uint16(0), low.(*image.Gray16).Gray16At(0, 0).Y)
	assert.Equal(t, uint16(65535), high.(*image.Gray16).Gray16At(0, 0).Y)
}

func TestExtractSliceOverlay(t *testing.T) {
	vol := rampVolume(4, 4, 3)
	viewer := NewViewer(vol)

	mask := models.NewMaskLike(vol)
	mask.Set(1, 2, 1, 255)
	require.NoError(t, viewer.SetOverlay(mask))

	img, err := viewer.ExtractSlice("z", 1)
	require.NoError(t, err)
	rgba, ok := img.(*image.RGBA)
	require.True(t, ok, "expected *image.RGBA, got %T", img)

	plain := rgba.RGBAAt(0, 0)
	assert.Equal(t, plain.R, plain.G)
	assert.Equal(t, plain.G, plain.B)

	marked := rgba.RGBAAt(1, 2)
	assert.Greater(t, marked.R, marked.G)
	assert.Equal(t, marked.G, marked.B)

	require.NoError(t, viewer.SetOverlay(nil))
	img, err = viewer.ExtractSlice("z", 1)
	require.NoError(t, err)
	assert.IsType(t, &image.Gray16{}, img)

	assert.Error(t, viewer.SetOverlay(models.NewMaskLike(models.NewVolume(2, 2, 2))))
}

func TestSaveSliceSequence(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping file I/O test in short mode")
	}

	width, height, depth := 5, 5, 3
	viewer := NewViewer(rampVolume(width, height, depth))

	outputDir := filepath.Join(t.TempDir(), "slices")
	n, err := viewer.SaveSliceSequence("z", outputDir)
	require.NoError(t, err)
	assert.Equal(t, depth, n)

	for z := 0; z < depth; z++ {
		filename := filepath.Join(outputDir, fmt.Sprintf("slice_z_%03d.jpg", z))
		_, err := os.Stat(filename)
		assert.NoError(t, err, filename)
	}

	_, err = viewer.SaveSliceSequence("invalid", outputDir)
	assert.ErrorIs(t, err, ErrInvalidAxis)
}
