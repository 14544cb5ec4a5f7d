package stl

import (
	"bytes"
	"encoding/binary"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mrisegment/internal/models"
)

func newMask(width, height, depth int) *models.Mask {
	return models.NewMaskLike(models.NewVolume(width, height, depth))
}

func sphereMask(size int) *models.Mask {
	mask := newMask(size, size, size)
	radius := float64(size) / 4.0
	center := float64(size) / 2.0
	for z := 0; z < size; z++ {
		for y := 0; y < size; y++ {
			for x := 0; x < size; x++ {
				dx := float64(x) - center
				dy := float64(y) - center
				dz := float64(z) - center
				if math.Sqrt(dx*dx+dy*dy+dz*dz) < radius {
					mask.Set(x, y, z, 255)
				}
			}
		}
	}
	return mask
}

func sub(a, b [3]float32) [3]float64 {
	return [3]float64{float64(a[0] - b[0]), float64(a[1] - b[1]), float64(a[2] - b[2])}
}

func cross(a, b [3]float64) [3]float64 {
	return [3]float64{a[1]*b[2] - a[2]*b[1], a[2]*b[0] - a[0]*b[2], a[0]*b[1] - a[1]*b[0]}
}

// enclosedVolume applies the divergence theorem to a closed, outward wound surface.
func enclosedVolume(triangles []Triangle) float64 {
	var total float64
	for _, t := range triangles {
		a := [3]float64{float64(t.Vertex1[0]), float64(t.Vertex1[1]), float64(t.Vertex1[2])}
		c := cross(sub(t.Vertex2, t.Vertex1), sub(t.Vertex3, t.Vertex1))
		total += (a[0]*c[0] + a[1]*c[1] + a[2]*c[2]) / 6
	}
	return total
}

func TestSingleVoxelCube(t *testing.T) {
	mask := newMask(3, 3, 3)
	mask.Set(1, 1, 1, 255)

	triangles := NewMesher(mask).GenerateTriangles()
	require.Len(t, triangles, 12)

	for _, tri := range triangles {
		c := cross(sub(tri.Vertex2, tri.Vertex1), sub(tri.Vertex3, tri.Vertex1))
		// winding agrees with the stored normal
		dot := c[0]*float64(tri.Normal[0]) + c[1]*float64(tri.Normal[1]) + c[2]*float64(tri.Normal[2])
		assert.Greater(t, dot, 0.0)
		for _, v := range [][3]float32{tri.Vertex1, tri.Vertex2, tri.Vertex3} {
			for _, coord := range v {
				assert.True(t, coord == 1 || coord == 2, "vertex %v off the voxel", v)
			}
		}
	}
	assert.InDelta(t, 1.0, enclosedVolume(triangles), 1e-6)
}

func TestSharedFacesAreDropped(t *testing.T) {
	mask := newMask(2, 1, 1)
	mask.Set(0, 0, 0, 1)
	mask.Set(1, 0, 0, 1)

	triangles := NewMesher(mask).GenerateTriangles()
	assert.Len(t, triangles, 20)
	assert.InDelta(t, 2.0, enclosedVolume(triangles), 1e-6)
}

func TestEmptyMask(t *testing.T) {
	assert.Empty(t, NewMesher(newMask(4, 4, 4)).GenerateTriangles())
}

func TestSphereSurfaceIsClosedAndOutward(t *testing.T) {
	mask := sphereMask(20)
	triangles := NewMesher(mask).GenerateTriangles()
	require.NotEmpty(t, triangles)

	assert.InDelta(t, float64(mask.Count()), enclosedVolume(triangles), 1e-3)

	center := float32(10)
	for _, tri := range triangles {
		var mid [3]float32
		for i := 0; i < 3; i++ {
			mid[i] = (tri.Vertex1[i]+tri.Vertex2[i]+tri.Vertex3[i])/3 - center
		}
		dot := mid[0]*tri.Normal[0] + mid[1]*tri.Normal[1] + mid[2]*tri.Normal[2]
		assert.GreaterOrEqual(t, dot, float32(0), "inward facet %+v", tri)
	}
}

func TestVoxelSpacingAndOrigin(t *testing.T) {
	mask := newMask(1, 1, 1)
	mask.Set(0, 0, 0, 255)
	mask.VoxelSize = models.Spacing{X: 2, Y: 3, Z: 4}
	mask.Origin = [3]float64{10, 0, -5}

	mesher := NewMesher(mask)
	assert.InDelta(t, 24.0, enclosedVolume(mesher.GenerateTriangles()), 1e-4)

	var hi [3]float32
	for i := range hi {
		hi[i] = -math.MaxFloat32
	}
	for _, tri := range mesher.GenerateTriangles() {
		for _, v := range [][3]float32{tri.Vertex1, tri.Vertex2, tri.Vertex3} {
			for i := range v {
				if v[i] > hi[i] {
					hi[i] = v[i]
				}
			}
		}
	}
	assert.Equal(t, [3]float32{12, 3, -1}, hi)

	mesher.SetScale(1, 1, 1)
	mesher.SetOrigin(0, 0, 0)
	assert.InDelta(t, 1.0, enclosedVolume(mesher.GenerateTriangles()), 1e-6)
}

func TestWriteSTL(t *testing.T) {
	triangles := []Triangle{
		{
			Normal:  [3]float32{0, 0, 1},
			Vertex1: [3]float32{0, 0, 0},
			Vertex2: [3]float32{1, 0, 0},
			Vertex3: [3]float32{0, 1, 0},
		},
		{
			Normal:  [3]float32{0, 0, -1},
			Vertex1: [3]float32{0, 0, 0},
			Vertex2: [3]float32{0, 1, 0},
			Vertex3: [3]float32{1, 0, 0},
		},
	}

	var buf bytes.Buffer
	require.NoError(t, WriteSTL(&buf, triangles))

	data := buf.Bytes()
	require.Len(t, data, 80+4+2*50)
	assert.Equal(t, uint32(2), binary.LittleEndian.Uint32(data[80:84]))

	// second record: normal z component and the x of its third vertex
	rec := data[84+50:]
	assert.Equal(t, float32(-1), math.Float32frombits(binary.LittleEndian.Uint32(rec[8:12])))
	assert.Equal(t, float32(1), math.Float32frombits(binary.LittleEndian.Uint32(rec[36:40])))
	assert.Equal(t, uint16(0), binary.LittleEndian.Uint16(rec[48:50]))
}

func TestSaveToSTL(t *testing.T) {
	mask := newMask(2, 2, 2)
	mask.Set(0, 0, 0, 255)
	triangles := NewMesher(mask).GenerateTriangles()

	path := filepath.Join(t.TempDir(), "surface.stl")
	require.NoError(t, SaveToSTL(path, triangles))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, int64(80+4+50*len(triangles)), info.Size())

	assert.Error(t, SaveToSTL(filepath.Join(t.TempDir(), "missing", "x.stl"), triangles))
}

func BenchmarkGenerateTriangles(b *testing.B) {
	mask := sphereMask(32)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		NewMesher(mask).GenerateTriangles()
	}
}
