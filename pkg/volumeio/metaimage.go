// Package volumeio reads and writes volumes: MetaImage files (.mhd/.raw, .mha) and
// directories of 2D slice images.
package volumeio

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/klauspost/compress/zlib"

	"mrisegment/internal/models"
)

var (
	// ErrUnsupported is returned for MetaImage features this package does not handle.
	ErrUnsupported = errors.New("unsupported MetaImage content")

	// ErrMalformedHeader is returned when a header cannot be parsed.
	ErrMalformedHeader = errors.New("malformed MetaImage header")
)

// localDataFile marks pixel data stored after the header in the same file.
const localDataFile = "LOCAL"

// Header holds the MetaImage fields used by this package.
type Header struct {
	NDims                  int
	DimSize                [3]int
	ElementType            ElementType
	ElementSpacing         [3]float64
	Offset                 [3]float64
	BinaryDataByteOrderMSB bool
	CompressedData         bool
	CompressedDataSize     int64
	ElementDataFile        string
}

// WriteOptions controls how a volume is written.
type WriteOptions struct {
	// ElementType of the stored voxels; MET_FLOAT when empty.
	ElementType ElementType

	// Compress stores the voxel data zlib-compressed.
	Compress bool
}

// ReadMetaImage loads a 3D MetaImage. The header may be a .mhd file pointing at a
// separate data file or a .mha file with LOCAL data.
func ReadMetaImage(path string) (*models.Volume, *Header, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	defer f.Close()

	br := bufio.NewReader(f)
	hdr, err := parseHeader(br)
	if err != nil {
		return nil, nil, fmt.Errorf("%s: %w", path, err)
	}

	var data io.Reader = br
	if hdr.ElementDataFile != localDataFile {
		dataPath := hdr.ElementDataFile
		if !filepath.IsAbs(dataPath) {
			dataPath = filepath.Join(filepath.Dir(path), dataPath)
		}
		df, err := os.Open(dataPath)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open data file: %w", err)
		}
		defer df.Close()
		data = bufio.NewReader(df)
	}

	vol, err := decodeVoxels(data, hdr)
	if err != nil {
		return nil, nil, fmt.Errorf("%s: %w", path, err)
	}
	return vol, hdr, nil
}

// parseHeader reads "Key = Value" lines up to and including ElementDataFile.
func parseHeader(r *bufio.Reader) (*Header, error) {
	hdr := &Header{
		ElementSpacing: [3]float64{1, 1, 1},
	}
	for {
		line, readErr := r.ReadString('\n')
		if readErr != nil && (readErr != io.EOF || line == "") {
			if readErr == io.EOF {
				return nil, fmt.Errorf("missing ElementDataFile: %w", ErrMalformedHeader)
			}
			return nil, readErr
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			return nil, fmt.Errorf("line %q: %w", line, ErrMalformedHeader)
		}
		key = strings.TrimSpace(key)
		value = strings.TrimSpace(value)

		var err error
		switch key {
		case "ObjectType":
			if !strings.EqualFold(value, "Image") {
				return nil, fmt.Errorf("object type %q: %w", value, ErrUnsupported)
			}
		case "NDims":
			hdr.NDims, err = strconv.Atoi(value)
		case "DimSize":
			err = parseInts(value, hdr.DimSize[:])
		case "ElementType":
			hdr.ElementType = ElementType(value)
		case "ElementSpacing", "ElementSize":
			err = parseFloats(value, hdr.ElementSpacing[:])
		case "Offset", "Position", "Origin":
			err = parseFloats(value, hdr.Offset[:])
		case "BinaryDataByteOrderMSB", "ElementByteOrderMSB":
			hdr.BinaryDataByteOrderMSB = parseBool(value)
		case "CompressedData":
			hdr.CompressedData = parseBool(value)
		case "CompressedDataSize":
			hdr.CompressedDataSize, err = strconv.ParseInt(value, 10, 64)
		case "ElementNumberOfChannels":
			if value != "1" {
				return nil, fmt.Errorf("%s channels: %w", value, ErrUnsupported)
			}
		case "ElementDataFile":
			hdr.ElementDataFile = value
		}
		if err != nil {
			return nil, fmt.Errorf("%s: %v: %w", key, err, ErrMalformedHeader)
		}
		if key == "ElementDataFile" {
			break
		}
	}

	if hdr.NDims != 3 {
		return nil, fmt.Errorf("%d dimensions: %w", hdr.NDims, ErrUnsupported)
	}
	if hdr.ElementDataFile == "" {
		return nil, fmt.Errorf("empty ElementDataFile: %w", ErrMalformedHeader)
	}
	if strings.HasPrefix(hdr.ElementDataFile, "LIST") || strings.Contains(hdr.ElementDataFile, "%") {
		return nil, fmt.Errorf("data file list %q: %w", hdr.ElementDataFile, ErrUnsupported)
	}
	return hdr, nil
}

func decodeVoxels(r io.Reader, hdr *Header) (*models.Volume, error) {
	codec, err := codecFor(hdr.ElementType)
	if err != nil {
		return nil, err
	}
	for _, d := range hdr.DimSize {
		if d <= 0 {
			return nil, fmt.Errorf("DimSize %v: %w", hdr.DimSize, ErrMalformedHeader)
		}
	}

	if hdr.CompressedData {
		if hdr.CompressedDataSize > 0 {
			r = io.LimitReader(r, hdr.CompressedDataSize)
		}
		zr, err := zlib.NewReader(r)
		if err != nil {
			return nil, fmt.Errorf("failed to open compressed data: %w", err)
		}
		defer zr.Close()
		r = zr
	}

	vol := models.NewVolume(hdr.DimSize[0], hdr.DimSize[1], hdr.DimSize[2])
	vol.VoxelSize = models.Spacing{X: hdr.ElementSpacing[0], Y: hdr.ElementSpacing[1], Z: hdr.ElementSpacing[2]}
	vol.Origin = hdr.Offset

	raw := make([]byte, len(vol.Data)*codec.size)
	if _, err := io.ReadFull(r, raw); err != nil {
		return nil, fmt.Errorf("failed to read %d voxels: %w", len(vol.Data), err)
	}

	order := byteOrder(hdr.BinaryDataByteOrderMSB)
	for i := range vol.Data {
		vol.Data[i] = codec.decode(raw[i*codec.size:], order)
	}
	return vol, nil
}

// WriteMetaImage stores vol at path. A .mha path gets LOCAL data; any other path is
// treated as a .mhd header with a sibling .raw (or .zraw when compressed) file.
func WriteMetaImage(path string, vol *models.Volume, opts WriteOptions) error {
	if opts.ElementType == "" {
		opts.ElementType = MetFloat
	}
	codec, err := codecFor(opts.ElementType)
	if err != nil {
		return err
	}

	raw := make([]byte, len(vol.Data)*codec.size)
	for i, v := range vol.Data {
		codec.put(raw[i*codec.size:], binary.LittleEndian, v)
	}

	hdr := Header{
		NDims:          3,
		DimSize:        [3]int{vol.Width, vol.Height, vol.Depth},
		ElementType:    opts.ElementType,
		ElementSpacing: [3]float64{vol.VoxelSize.X, vol.VoxelSize.Y, vol.VoxelSize.Z},
		Offset:         vol.Origin,
	}
	return writeFiles(path, &hdr, raw, opts.Compress)
}

// WriteMask stores a label mask as MET_UCHAR.
func WriteMask(path string, mask *models.Mask, opts WriteOptions) error {
	hdr := Header{
		NDims:          3,
		DimSize:        [3]int{mask.Width, mask.Height, mask.Depth},
		ElementType:    MetUChar,
		ElementSpacing: [3]float64{mask.VoxelSize.X, mask.VoxelSize.Y, mask.VoxelSize.Z},
		Offset:         mask.Origin,
	}
	return writeFiles(path, &hdr, mask.Data, opts.Compress)
}

func writeFiles(path string, hdr *Header, raw []byte, compress bool) error {
	if compress {
		var buf bytes.Buffer
		zw := zlib.NewWriter(&buf)
		if _, err := zw.Write(raw); err != nil {
			return fmt.Errorf("failed to compress voxel data: %w", err)
		}
		if err := zw.Close(); err != nil {
			return fmt.Errorf("failed to compress voxel data: %w", err)
		}
		raw = buf.Bytes()
		hdr.CompressedData = true
		hdr.CompressedDataSize = int64(len(raw))
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	if strings.EqualFold(filepath.Ext(path), ".mha") {
		hdr.ElementDataFile = localDataFile
		var buf bytes.Buffer
		writeHeader(&buf, hdr)
		buf.Write(raw)
		return os.WriteFile(path, buf.Bytes(), 0644)
	}

	ext := ".raw"
	if compress {
		ext = ".zraw"
	}
	dataName := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path)) + ext
	hdr.ElementDataFile = dataName

	if err := os.WriteFile(filepath.Join(filepath.Dir(path), dataName), raw, 0644); err != nil {
		return fmt.Errorf("failed to write data file: %w", err)
	}
	var buf bytes.Buffer
	writeHeader(&buf, hdr)
	return os.WriteFile(path, buf.Bytes(), 0644)
}

func writeHeader(w io.Writer, hdr *Header) {
	fmt.Fprintln(w, "ObjectType = Image")
	fmt.Fprintf(w, "NDims = %d\n", hdr.NDims)
	fmt.Fprintln(w, "BinaryData = True")
	fmt.Fprintf(w, "BinaryDataByteOrderMSB = %s\n", formatBool(hdr.BinaryDataByteOrderMSB))
	fmt.Fprintf(w, "CompressedData = %s\n", formatBool(hdr.CompressedData))
	if hdr.CompressedData {
		fmt.Fprintf(w, "CompressedDataSize = %d\n", hdr.CompressedDataSize)
	}
	fmt.Fprintln(w, "TransformMatrix = 1 0 0 0 1 0 0 0 1")
	fmt.Fprintf(w, "Offset = %s\n", formatFloats(hdr.Offset[:]))
	fmt.Fprintln(w, "CenterOfRotation = 0 0 0")
	fmt.Fprintln(w, "AnatomicalOrientation = RAI")
	fmt.Fprintf(w, "ElementSpacing = %s\n", formatFloats(hdr.ElementSpacing[:]))
	fmt.Fprintf(w, "DimSize = %d %d %d\n", hdr.DimSize[0], hdr.DimSize[1], hdr.DimSize[2])
	fmt.Fprintf(w, "ElementType = %s\n", hdr.ElementType)
	fmt.Fprintf(w, "ElementDataFile = %s\n", hdr.ElementDataFile)
}

func byteOrder(msb bool) binary.ByteOrder {
	if msb {
		return binary.BigEndian
	}
	return binary.LittleEndian
}

func parseBool(s string) bool {
	return strings.EqualFold(s, "true") || s == "1"
}

func formatBool(b bool) string {
	if b {
		return "True"
	}
	return "False"
}

func parseInts(s string, dst []int) error {
	fields := strings.Fields(s)
	if len(fields) != len(dst) {
		return fmt.Errorf("want %d values, got %d", len(dst), len(fields))
	}
	for i, f := range fields {
		v, err := strconv.Atoi(f)
		if err != nil {
			return err
		}
		dst[i] = v
	}
	return nil
}

func parseFloats(s string, dst []float64) error {
	fields := strings.Fields(s)
	if len(fields) != len(dst) {
		return fmt.Errorf("want %d values, got %d", len(dst), len(fields))
	}
	for i, f := range fields {
		v, err := strconv.ParseFloat(f, 64)
		if err != nil {
			return err
		}
		dst[i] = v
	}
	return nil
}

func formatFloats(vs []float64) string {
	parts := make([]string, len(vs))
	for i, v := range vs {
		parts[i] = strconv.FormatFloat(v, 'g', -1, 64)
	}
	return strings.Join(parts, " ")
}
