package segmentation

import (
	"fmt"
	"math"
)

// Statistics is the two-sided summary of a region's intensities.
//
// Mean is the truncated average of all samples. UpperDeviation is the population
// standard deviation of the samples >= Mean around their own mean, LowerDeviation the
// same for samples <= Mean. Samples equal to Mean belong to both halves.
type Statistics struct {
	Mean           int64
	UpperDeviation int64
	LowerDeviation int64
}

// ComputeStatistics summarises values using integer arithmetic, truncating at every
// division.
func ComputeStatistics(values []int64) (Statistics, error) {
	if len(values) == 0 {
		return Statistics{}, ErrEmptyRegion
	}

	var sum int64
	for _, v := range values {
		sum += v
	}
	mean := sum / int64(len(values))

	var upperSum, lowerSum, upperNum, lowerNum int64
	for _, v := range values {
		if v >= mean {
			upperSum += v
			upperNum++
		}
		if v <= mean {
			lowerSum += v
			lowerNum++
		}
	}
	if upperNum == 0 || lowerNum == 0 {
		return Statistics{}, fmt.Errorf("mean %d, %d upper and %d lower samples: %w",
			mean, upperNum, lowerNum, ErrDegenerateStatistics)
	}
	upperMean := upperSum / upperNum
	lowerMean := lowerSum / lowerNum

	var upperSq, lowerSq int64
	for _, v := range values {
		if v >= mean {
			d := v - upperMean
			upperSq += d * d
		}
		if v <= mean {
			d := v - lowerMean
			lowerSq += d * d
		}
	}

	return Statistics{
		Mean:           mean,
		UpperDeviation: int64(math.Sqrt(float64(upperSq / upperNum))),
		LowerDeviation: int64(math.Sqrt(float64(lowerSq / lowerNum))),
	}, nil
}
