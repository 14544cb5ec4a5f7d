package segmentation

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"mrisegment/internal/models"
)

func TestSummarize(t *testing.T) {
	vol := models.NewVolume(3, 3, 3)
	vol.VoxelSize = models.Spacing{X: 0.5, Y: 0.5, Z: 2}
	for i := range vol.Data {
		vol.Data[i] = float64(i)
	}
	mask := models.NewMaskLike(vol)
	for _, i := range []int{1, 2, 3, 10} {
		mask.Data[i] = 255
	}

	res := Result{Bounds: Bounds{Lower: 1, Upper: 10}, RegionSize: 4, Iterations: 3, Recomputes: 1}
	report := Summarize(vol, mask, Point{1, 0, 0}, res)

	assert.Equal(t, 4, report.Voxels)
	assert.InDelta(t, 2.0, report.PhysicalVolume, 1e-12)
	assert.InDelta(t, 4.0, report.Mean, 1e-12)
	assert.InDelta(t, 1.0, report.Min, 1e-12)
	assert.InDelta(t, 10.0, report.Max, 1e-12)
	assert.InDelta(t, 2.0, report.Median, 1e-12)
	// population deviation of {1,2,3,10}: sqrt((9+4+1+36)/4)
	assert.InDelta(t, 3.5355339, report.StdDev, 1e-6)
	assert.Equal(t, res.Bounds, report.Bounds)
	assert.Equal(t, StatusComplete, report.Status)
	assert.Equal(t, Point{1, 0, 0}, report.Seed)
}

func TestSummarizeEmptyMask(t *testing.T) {
	vol := models.NewVolume(2, 2, 2)
	report := Summarize(vol, models.NewMaskLike(vol), Point{}, Result{Status: StatusTruncated})

	assert.Zero(t, report.Voxels)
	assert.Zero(t, report.Mean)
	assert.Equal(t, StatusTruncated, report.Status)
}
