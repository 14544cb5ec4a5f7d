// Package segmentation implements the seeded region-growing threshold estimator.
//
// Starting from a seed voxel, the estimator grows a 26-connected region through the
// volume while refining a pair of intensity bounds from the statistics of the region
// grown so far. The final bounds are meant to be handed to a connected-threshold fill
// that produces the actual segmentation mask.
package segmentation

import "fmt"

// VolumeView is the read-only access the estimator needs to a 3D scalar grid.
type VolumeView interface {
	// Dims returns the size of the grid along x, y and z.
	Dims() (int, int, int)

	// At returns the intensity at (x, y, z). Callers only pass in-bounds coordinates.
	At(x, y, z int) float64
}

// Point identifies a voxel. It is comparable and used directly as a map key.
type Point struct {
	X, Y, Z int
}

func (p Point) String() string {
	return fmt.Sprintf("(%d,%d,%d)", p.X, p.Y, p.Z)
}

// Add returns p translated by d.
func (p Point) Add(d Point) Point {
	return Point{X: p.X + d.X, Y: p.Y + d.Y, Z: p.Z + d.Z}
}

// neighborOffsets holds the 26 vectors of {-1,0,1}^3 without the origin.
var neighborOffsets = func() [26]Point {
	var offsets [26]Point
	n := 0
	for dx := -1; dx <= 1; dx++ {
		for dy := -1; dy <= 1; dy++ {
			for dz := -1; dz <= 1; dz++ {
				if dx == 0 && dy == 0 && dz == 0 {
					continue
				}
				offsets[n] = Point{X: dx, Y: dy, Z: dz}
				n++
			}
		}
	}
	return offsets
}()

// NeighborOffsets returns the 26-connectivity offset table.
func NeighborOffsets() [26]Point {
	return neighborOffsets
}

// extent caches the dimensions of a view for bounds checks.
type extent struct {
	x, y, z int
}

func extentOf(view VolumeView) extent {
	x, y, z := view.Dims()
	return extent{x: x, y: y, z: z}
}

func (e extent) valid() bool {
	return e.x > 0 && e.y > 0 && e.z > 0
}

func (e extent) contains(p Point) bool {
	return p.X >= 0 && p.X < e.x &&
		p.Y >= 0 && p.Y < e.y &&
		p.Z >= 0 && p.Z < e.z
}

// valueAt reads a voxel as a wide signed integer, truncating toward zero.
func valueAt(view VolumeView, p Point) int64 {
	return int64(view.At(p.X, p.Y, p.Z))
}
