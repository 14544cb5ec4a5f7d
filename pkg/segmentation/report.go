package segmentation

import (
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"mrisegment/internal/models"
)

// Report describes a finished segmentation: how the bounds were obtained and what the
// painted mask contains.
type Report struct {
	Seed       Point  `yaml:"seed"`
	Bounds     Bounds `yaml:"bounds"`
	Status     Status `yaml:"status"`
	RegionSize int    `yaml:"growthRegionSize"`
	Iterations int    `yaml:"iterations"`
	Recomputes int    `yaml:"recomputes"`

	// Voxels is the number of labelled voxels in the mask
	Voxels int `yaml:"voxels"`

	// PhysicalVolume is Voxels times the voxel volume, in mm^3
	PhysicalVolume float64 `yaml:"physicalVolume"`

	// Intensity statistics over the labelled voxels
	Mean   float64 `yaml:"mean"`
	StdDev float64 `yaml:"stdDev"`
	Min    float64 `yaml:"min"`
	Median float64 `yaml:"median"`
	Max    float64 `yaml:"max"`
}

// Summarize builds the report of mask over vol for an estimation result.
func Summarize(vol *models.Volume, mask *models.Mask, seed Point, res Result) Report {
	report := Report{
		Seed:       seed,
		Bounds:     res.Bounds,
		Status:     res.Status,
		RegionSize: res.RegionSize,
		Iterations: res.Iterations,
		Recomputes: res.Recomputes,
	}

	values := make([]float64, 0, res.RegionSize)
	for i, label := range mask.Data {
		if label != 0 {
			values = append(values, vol.Data[i])
		}
	}
	report.Voxels = len(values)
	report.PhysicalVolume = float64(len(values)) *
		mask.VoxelSize.X * mask.VoxelSize.Y * mask.VoxelSize.Z
	if len(values) == 0 {
		return report
	}

	report.Mean, report.StdDev = stat.PopMeanStdDev(values, nil)
	report.Min = floats.Min(values)
	report.Max = floats.Max(values)
	sort.Float64s(values)
	report.Median = stat.Quantile(0.5, stat.Empirical, values, nil)
	return report
}
