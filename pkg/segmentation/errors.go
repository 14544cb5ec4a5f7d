package segmentation

import "errors"

var (
	// ErrInvalidVolume is returned when a view has a non-positive dimension.
	ErrInvalidVolume = errors.New("volume has an empty dimension")

	// ErrSeedOutOfBounds is returned when the seed does not lie inside the view.
	ErrSeedOutOfBounds = errors.New("seed lies outside the volume")

	// ErrEmptyRegion is returned when statistics are requested for no samples.
	ErrEmptyRegion = errors.New("statistics requested for an empty region")

	// ErrDegenerateStatistics is returned when the upper or lower half of a region
	// holds no sample, so the two-sided model cannot be fitted.
	ErrDegenerateStatistics = errors.New("degenerate statistics: empty half around the mean")
)
