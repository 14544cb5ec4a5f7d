package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVolumeIndexing(t *testing.T) {
	v := NewVolume(3, 4, 5)
	require.Len(t, v.Data, 60)

	v.Set(2, 3, 4, 42)
	assert.Equal(t, 59, v.Index(2, 3, 4))
	assert.Equal(t, 42.0, v.At(2, 3, 4))
	assert.Equal(t, 42.0, v.Data[len(v.Data)-1])

	x, y, z := v.Dims()
	assert.Equal(t, []int{3, 4, 5}, []int{x, y, z})
}

func TestVolumeContains(t *testing.T) {
	v := NewVolume(2, 2, 2)
	assert.True(t, v.Contains(0, 0, 0))
	assert.True(t, v.Contains(1, 1, 1))
	assert.False(t, v.Contains(-1, 0, 0))
	assert.False(t, v.Contains(0, 2, 0))
	assert.False(t, v.Contains(0, 0, 2))
}

func TestVolumeCloneIsIndependent(t *testing.T) {
	v := NewVolume(2, 2, 2)
	v.Set(1, 1, 1, 7)
	c := v.Clone()
	c.Set(1, 1, 1, 9)

	assert.Equal(t, 7.0, v.At(1, 1, 1))
	assert.Equal(t, 9.0, c.At(1, 1, 1))
}

func TestMaskLike(t *testing.T) {
	v := NewVolume(4, 3, 2)
	v.VoxelSize = Spacing{X: 0.5, Y: 0.5, Z: 2}
	m := NewMaskLike(v)

	assert.Equal(t, v.VoxelSize, m.VoxelSize)
	assert.Len(t, m.Data, 24)
	assert.Zero(t, m.Count())

	m.Set(3, 2, 1, 255)
	m.Set(0, 0, 0, 1)
	assert.Equal(t, uint8(255), m.At(3, 2, 1))
	assert.Equal(t, 2, m.Count())
}
