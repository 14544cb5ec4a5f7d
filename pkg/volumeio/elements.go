package volumeio

import (
	"encoding/binary"
	"fmt"
	"math"
)

// ElementType is a MetaImage voxel type name such as MET_SHORT.
type ElementType string

const (
	MetChar   ElementType = "MET_CHAR"
	MetUChar  ElementType = "MET_UCHAR"
	MetShort  ElementType = "MET_SHORT"
	MetUShort ElementType = "MET_USHORT"
	MetInt    ElementType = "MET_INT"
	MetUInt   ElementType = "MET_UINT"
	MetFloat  ElementType = "MET_FLOAT"
	MetDouble ElementType = "MET_DOUBLE"
)

// elementCodec converts between voxel bytes and float64 intensities.
type elementCodec struct {
	size   int
	min    float64
	max    float64
	float  bool
	decode func(b []byte, order binary.ByteOrder) float64
	encode func(b []byte, order binary.ByteOrder, v float64)
}

var codecs = map[ElementType]elementCodec{
	MetChar: {
		size: 1, min: math.MinInt8, max: math.MaxInt8,
		decode: func(b []byte, _ binary.ByteOrder) float64 { return float64(int8(b[0])) },
		encode: func(b []byte, _ binary.ByteOrder, v float64) { b[0] = byte(int8(v)) },
	},
	MetUChar: {
		size: 1, min: 0, max: math.MaxUint8,
		decode: func(b []byte, _ binary.ByteOrder) float64 { return float64(b[0]) },
		encode: func(b []byte, _ binary.ByteOrder, v float64) { b[0] = uint8(v) },
	},
	MetShort: {
		size: 2, min: math.MinInt16, max: math.MaxInt16,
		decode: func(b []byte, o binary.ByteOrder) float64 { return float64(int16(o.Uint16(b))) },
		encode: func(b []byte, o binary.ByteOrder, v float64) { o.PutUint16(b, uint16(int16(v))) },
	},
	MetUShort: {
		size: 2, min: 0, max: math.MaxUint16,
		decode: func(b []byte, o binary.ByteOrder) float64 { return float64(o.Uint16(b)) },
		encode: func(b []byte, o binary.ByteOrder, v float64) { o.PutUint16(b, uint16(v)) },
	},
	MetInt: {
		size: 4, min: math.MinInt32, max: math.MaxInt32,
		decode: func(b []byte, o binary.ByteOrder) float64 { return float64(int32(o.Uint32(b))) },
		encode: func(b []byte, o binary.ByteOrder, v float64) { o.PutUint32(b, uint32(int32(v))) },
	},
	MetUInt: {
		size: 4, min: 0, max: math.MaxUint32,
		decode: func(b []byte, o binary.ByteOrder) float64 { return float64(o.Uint32(b)) },
		encode: func(b []byte, o binary.ByteOrder, v float64) { o.PutUint32(b, uint32(v)) },
	},
	MetFloat: {
		size: 4, float: true,
		decode: func(b []byte, o binary.ByteOrder) float64 { return float64(math.Float32frombits(o.Uint32(b))) },
		encode: func(b []byte, o binary.ByteOrder, v float64) { o.PutUint32(b, math.Float32bits(float32(v))) },
	},
	MetDouble: {
		size: 8, float: true,
		decode: func(b []byte, o binary.ByteOrder) float64 { return math.Float64frombits(o.Uint64(b)) },
		encode: func(b []byte, o binary.ByteOrder, v float64) { o.PutUint64(b, math.Float64bits(v)) },
	},
}

func codecFor(t ElementType) (elementCodec, error) {
	c, ok := codecs[t]
	if !ok {
		return elementCodec{}, fmt.Errorf("element type %q: %w", t, ErrUnsupported)
	}
	return c, nil
}

// put stores v, rounding and saturating for integer types.
func (c elementCodec) put(b []byte, order binary.ByteOrder, v float64) {
	if !c.float {
		v = math.Round(v)
		if v < c.min {
			v = c.min
		}
		if v > c.max {
			v = c.max
		}
	}
	c.encode(b, order, v)
}
