package models

import (
	"image"
)

// Slice represents a single 2D image slice of a volume with its ordering metadata
type Slice struct {
	// Image is the decoded slice image
	Image image.Image

	// Index is the position of this slice in the sequence
	Index int

	// Filename is the original filename of the slice
	Filename string
}

// Spacing is the physical size of a voxel along each axis in mm
type Spacing struct {
	X, Y, Z float64
}

// Volume represents a 3D scalar volume
type Volume struct {
	// Data is the 3D volume data as a 1D array, x varying fastest, then y, then z
	Data []float64

	// Width is the size of the volume along x in voxels
	Width int

	// Height is the size of the volume along y in voxels
	Height int

	// Depth is the size of the volume along z in voxels
	Depth int

	// VoxelSize is the physical size of each voxel in mm
	VoxelSize Spacing

	// Origin is the physical position of voxel (0,0,0)
	Origin [3]float64
}

// NewVolume allocates a zero-filled volume with unit spacing
func NewVolume(width, height, depth int) *Volume {
	return &Volume{
		Data:      make([]float64, width*height*depth),
		Width:     width,
		Height:    height,
		Depth:     depth,
		VoxelSize: Spacing{X: 1, Y: 1, Z: 1},
	}
}

// Dims returns the volume dimensions
func (v *Volume) Dims() (int, int, int) {
	return v.Width, v.Height, v.Depth
}

// Index returns the offset of voxel (x, y, z) in Data
func (v *Volume) Index(x, y, z int) int {
	return z*v.Width*v.Height + y*v.Width + x
}

// At returns the intensity at (x, y, z)
func (v *Volume) At(x, y, z int) float64 {
	return v.Data[v.Index(x, y, z)]
}

// Set stores an intensity at (x, y, z)
func (v *Volume) Set(x, y, z int, value float64) {
	v.Data[v.Index(x, y, z)] = value
}

// Contains reports whether (x, y, z) lies inside the volume
func (v *Volume) Contains(x, y, z int) bool {
	return x >= 0 && x < v.Width && y >= 0 && y < v.Height && z >= 0 && z < v.Depth
}

// Clone returns a deep copy of the volume
func (v *Volume) Clone() *Volume {
	c := *v
	c.Data = make([]float64, len(v.Data))
	copy(c.Data, v.Data)
	return &c
}

// Mask is a binary-valued label volume produced by segmentation
type Mask struct {
	// Data holds one label per voxel in the same layout as Volume.Data
	Data []uint8

	Width, Height, Depth int

	VoxelSize Spacing
	Origin    [3]float64
}

// NewMaskLike allocates an empty mask with the geometry of v
func NewMaskLike(v *Volume) *Mask {
	return &Mask{
		Data:      make([]uint8, v.Width*v.Height*v.Depth),
		Width:     v.Width,
		Height:    v.Height,
		Depth:     v.Depth,
		VoxelSize: v.VoxelSize,
		Origin:    v.Origin,
	}
}

// Index returns the offset of voxel (x, y, z) in Data
func (m *Mask) Index(x, y, z int) int {
	return z*m.Width*m.Height + y*m.Width + x
}

// At returns the label at (x, y, z)
func (m *Mask) At(x, y, z int) uint8 {
	return m.Data[m.Index(x, y, z)]
}

// Set stores a label at (x, y, z)
func (m *Mask) Set(x, y, z int, value uint8) {
	m.Data[m.Index(x, y, z)] = value
}

// Count returns the number of non-zero voxels
func (m *Mask) Count() int {
	n := 0
	for _, v := range m.Data {
		if v != 0 {
			n++
		}
	}
	return n
}
