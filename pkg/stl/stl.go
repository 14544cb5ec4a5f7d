// Package stl turns a segmentation mask into a closed triangle surface and writes
// it as binary STL.
package stl

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"os"

	"mrisegment/internal/models"
)

// Triangle is one facet of the surface. Vertices are ordered counter-clockwise
// when seen from the side the normal points to.
type Triangle struct {
	Normal  [3]float32
	Vertex1 [3]float32
	Vertex2 [3]float32
	Vertex3 [3]float32
}

type face struct {
	dx, dy, dz int
	normal     [3]float32
	corners    [4][3]int
}

// faces lists the six voxel faces with their corners in outward winding order.
var faces = [6]face{
	{1, 0, 0, [3]float32{1, 0, 0}, [4][3]int{{1, 0, 0}, {1, 1, 0}, {1, 1, 1}, {1, 0, 1}}},
	{-1, 0, 0, [3]float32{-1, 0, 0}, [4][3]int{{0, 0, 0}, {0, 0, 1}, {0, 1, 1}, {0, 1, 0}}},
	{0, 1, 0, [3]float32{0, 1, 0}, [4][3]int{{0, 1, 0}, {0, 1, 1}, {1, 1, 1}, {1, 1, 0}}},
	{0, -1, 0, [3]float32{0, -1, 0}, [4][3]int{{0, 0, 0}, {1, 0, 0}, {1, 0, 1}, {0, 0, 1}}},
	{0, 0, 1, [3]float32{0, 0, 1}, [4][3]int{{0, 0, 1}, {1, 0, 1}, {1, 1, 1}, {0, 1, 1}}},
	{0, 0, -1, [3]float32{0, 0, -1}, [4][3]int{{0, 0, 0}, {0, 1, 0}, {1, 1, 0}, {1, 0, 0}}},
}

// Mesher extracts the boundary of the non-zero voxels of a mask. Every voxel face
// shared with an empty voxel, or lying on the volume border, becomes two triangles.
type Mesher struct {
	mask   *models.Mask
	scale  [3]float32
	origin [3]float32
}

// NewMesher creates a mesher scaled by the voxel spacing and placed at the
// origin of mask
func NewMesher(mask *models.Mask) *Mesher {
	m := &Mesher{mask: mask, scale: [3]float32{1, 1, 1}}
	s := mask.VoxelSize
	if s.X > 0 && s.Y > 0 && s.Z > 0 {
		m.scale = [3]float32{float32(s.X), float32(s.Y), float32(s.Z)}
	}
	for i, o := range mask.Origin {
		m.origin[i] = float32(o)
	}
	return m
}

// SetScale overrides the physical size of one voxel
func (m *Mesher) SetScale(x, y, z float32) {
	m.scale = [3]float32{x, y, z}
}

// SetOrigin overrides the position of the first voxel corner
func (m *Mesher) SetOrigin(x, y, z float32) {
	m.origin = [3]float32{x, y, z}
}

func (m *Mesher) filled(x, y, z int) bool {
	mask := m.mask
	if x < 0 || y < 0 || z < 0 || x >= mask.Width || y >= mask.Height || z >= mask.Depth {
		return false
	}
	return mask.At(x, y, z) != 0
}

func (m *Mesher) vertex(x, y, z int, c [3]int) [3]float32 {
	return [3]float32{
		m.origin[0] + float32(x+c[0])*m.scale[0],
		m.origin[1] + float32(y+c[1])*m.scale[1],
		m.origin[2] + float32(z+c[2])*m.scale[2],
	}
}

// GenerateTriangles returns the surface triangles in x-fastest voxel order
func (m *Mesher) GenerateTriangles() []Triangle {
	var triangles []Triangle
	mask := m.mask
	for z := 0; z < mask.Depth; z++ {
		for y := 0; y < mask.Height; y++ {
			for x := 0; x < mask.Width; x++ {
				if mask.At(x, y, z) == 0 {
					continue
				}
				for _, f := range faces {
					if m.filled(x+f.dx, y+f.dy, z+f.dz) {
						continue
					}
					v0 := m.vertex(x, y, z, f.corners[0])
					v1 := m.vertex(x, y, z, f.corners[1])
					v2 := m.vertex(x, y, z, f.corners[2])
					v3 := m.vertex(x, y, z, f.corners[3])
					triangles = append(triangles,
						Triangle{Normal: f.normal, Vertex1: v0, Vertex2: v1, Vertex3: v2},
						Triangle{Normal: f.normal, Vertex1: v0, Vertex2: v2, Vertex3: v3},
					)
				}
			}
		}
	}
	return triangles
}

const headerSize = 80

// WriteSTL writes triangles in the binary STL format: an 80 byte header, a little
// endian triangle count and 50 bytes per triangle.
func WriteSTL(w io.Writer, triangles []Triangle) error {
	bw := bufio.NewWriter(w)

	var header [headerSize]byte
	copy(header[:], "binary STL written by mrisegment")
	if _, err := bw.Write(header[:]); err != nil {
		return err
	}
	if err := binary.Write(bw, binary.LittleEndian, uint32(len(triangles))); err != nil {
		return err
	}

	for _, t := range triangles {
		record := struct {
			Triangle
			Attribute uint16
		}{Triangle: t}
		if err := binary.Write(bw, binary.LittleEndian, &record); err != nil {
			return err
		}
	}
	return bw.Flush()
}

// SaveToSTL writes triangles to filename as binary STL
func SaveToSTL(filename string, triangles []Triangle) error {
	file, err := os.Create(filename)
	if err != nil {
		return fmt.Errorf("failed to create STL file: %w", err)
	}
	defer file.Close()

	if err := WriteSTL(file, triangles); err != nil {
		return fmt.Errorf("failed to write STL file: %w", err)
	}
	return file.Close()
}
