package segmentation

import (
	"fmt"
	"math"
)

const (
	// ExploratoryMultiplier scales the deviations while the region is growing.
	ExploratoryMultiplier = 1.5

	// FinalMultiplier scales the deviations of the final bounds: twice the 99%
	// confidence factor.
	FinalMultiplier = 2 * 2.58

	// sampleCorrection is the numerator of the small-sample widening term.
	sampleCorrection = 20.0
)

// Bounds is an inclusive intensity interval.
type Bounds struct {
	Lower int64 `yaml:"lower"`
	Upper int64 `yaml:"upper"`
}

// Contains reports whether v lies inside the bounds, both ends included.
func (b Bounds) Contains(v int64) bool {
	return v >= b.Lower && v <= b.Upper
}

func (b Bounds) String() string {
	return fmt.Sprintf("[%d, %d]", b.Lower, b.Upper)
}

// ComputeBounds maps region statistics over n samples to bounds, widening each
// deviation by k and by 20/sqrt(n). Results are truncated toward zero.
func ComputeBounds(stats Statistics, n int, k float64) Bounds {
	correction := sampleCorrection / math.Sqrt(float64(n))
	mean := float64(stats.Mean)
	return Bounds{
		Lower: int64(mean - (float64(stats.LowerDeviation)*k + correction)),
		Upper: int64(mean + (float64(stats.UpperDeviation)*k + correction)),
	}
}
