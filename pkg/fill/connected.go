// Package fill paints the connected component of a seed whose intensities fall inside a
// pair of threshold bounds.
package fill

import (
	"errors"
	"fmt"

	"mrisegment/internal/models"
	"mrisegment/pkg/segmentation"
)

// DefaultReplaceValue is the label written to included voxels.
const DefaultReplaceValue = 255

// ErrSeedOutsideVolume is returned when the seed is not a voxel of the volume.
var ErrSeedOutsideVolume = errors.New("fill seed lies outside the volume")

// Options controls the fill.
type Options struct {
	// ReplaceValue is written to every voxel of the component.
	ReplaceValue uint8

	// FullConnectivity uses 26-connectivity instead of face (6) connectivity.
	FullConnectivity bool
}

// DefaultOptions returns face connectivity painting with 255.
func DefaultOptions() Options {
	return Options{ReplaceValue: DefaultReplaceValue}
}

var faceOffsets = []segmentation.Point{
	{X: -1}, {X: 1},
	{Y: -1}, {Y: 1},
	{Z: -1}, {Z: 1},
}

// Connected labels every voxel reachable from seed through voxels whose intensity v
// satisfies bounds.Lower <= v <= bounds.Upper. Voxels outside the component are 0.
// A seed whose own intensity is outside the bounds produces an empty mask.
func Connected(vol *models.Volume, seed segmentation.Point, bounds segmentation.Bounds, opts Options) (*models.Mask, error) {
	if !vol.Contains(seed.X, seed.Y, seed.Z) {
		return nil, fmt.Errorf("seed %v in %dx%dx%d volume: %w",
			seed, vol.Width, vol.Height, vol.Depth, ErrSeedOutsideVolume)
	}

	offsets := faceOffsets
	if opts.FullConnectivity {
		full := segmentation.NeighborOffsets()
		offsets = full[:]
	}

	lower, upper := float64(bounds.Lower), float64(bounds.Upper)
	inside := func(p segmentation.Point) bool {
		v := vol.At(p.X, p.Y, p.Z)
		return v >= lower && v <= upper
	}

	mask := models.NewMaskLike(vol)
	if !inside(seed) {
		return mask, nil
	}

	visited := make([]bool, len(vol.Data))
	stack := []segmentation.Point{seed}
	visited[vol.Index(seed.X, seed.Y, seed.Z)] = true
	for len(stack) > 0 {
		p := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		mask.Set(p.X, p.Y, p.Z, opts.ReplaceValue)

		for _, d := range offsets {
			n := p.Add(d)
			if !vol.Contains(n.X, n.Y, n.Z) {
				continue
			}
			idx := vol.Index(n.X, n.Y, n.Z)
			if visited[idx] {
				continue
			}
			visited[idx] = true
			if inside(n) {
				stack = append(stack, n)
			}
		}
	}
	return mask, nil
}
