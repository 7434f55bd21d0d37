package raster

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"
)

// TIFF tag IDs. Strip layout only: every raster this package reads or
// writes is its own output or a synthetic fixture, not an arbitrary GDAL
// product.
const (
	tagImageWidth         = 256
	tagImageLength        = 257
	tagBitsPerSample      = 258
	tagCompression        = 259
	tagPhotometric        = 262
	tagImageDescription   = 270
	tagStripOffsets       = 273
	tagSamplesPerPixel    = 277
	tagRowsPerStrip       = 278
	tagStripByteCounts    = 279
	tagPlanarConfig       = 284
	tagSampleFormat       = 339
	tagModelPixelScaleTag = 33550
	tagModelTiepointTag   = 33922
	tagModelTransformTag  = 34264
	tagGeoKeyDirectoryTag = 34735
	tagGeoDoubleParamsTag = 34736
	tagGeoAsciiParamsTag  = 34737
	tagGCPTag             = 65000 // private: this module's own GCP carrier
)

const (
	dtByte     = 1
	dtASCII    = 2
	dtShort    = 3
	dtLong     = 4
	dtRational = 5
	dtSByte    = 6
	dtUndef    = 7
	dtSShort   = 8
	dtSLong    = 9
	dtSRational = 10
	dtFloat    = 11
	dtDouble   = 12
)

const (
	compNone = 1
	compLZW  = 5
)

// ifd is a parsed strip-layout TIFF Image File Directory.
type ifd struct {
	width, height      uint32
	bitsPerSample      []uint16
	samplesPerPixel    uint16
	sampleFormat       uint16
	compression        uint16
	photometric        uint16
	planarConfig       uint16
	rowsPerStrip       uint32
	stripOffsets       []uint64
	stripByteCounts    []uint64
	modelPixelScale    []float64
	modelTiepoint      []float64
	modelTransform     []float64
	geoKeys            []uint16
	geoDoubleParams    []float64
	geoAsciiParams     string
	imageDescription   string
	gcpASCII           string
}

type tiffEntry struct {
	tag      uint16
	dataType uint16
	count    uint64
	value    []byte
}

// parseTIFF reads the first IFD from a TIFF/GeoTIFF file (strip layout
// only). Multi-IFD (overview) pyramids are not produced or consumed by
// this module.
func parseTIFF(r io.ReadSeeker) (ifd, binary.ByteOrder, error) {
	var header [8]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return ifd{}, nil, fmt.Errorf("reading TIFF header: %w", err)
	}

	var bo binary.ByteOrder
	switch string(header[0:2]) {
	case "II":
		bo = binary.LittleEndian
	case "MM":
		bo = binary.BigEndian
	default:
		return ifd{}, nil, fmt.Errorf("invalid TIFF byte order: %x", header[0:2])
	}

	magic := bo.Uint16(header[2:4])
	if magic != 42 {
		return ifd{}, nil, fmt.Errorf("invalid TIFF magic: %d", magic)
	}
	offset := uint64(bo.Uint32(header[4:8]))

	parsed, _, err := parseOneIFD(r, bo, offset)
	if err != nil {
		return ifd{}, nil, fmt.Errorf("parsing IFD at offset %d: %w", offset, err)
	}
	return parsed, bo, nil
}

func parseOneIFD(r io.ReadSeeker, bo binary.ByteOrder, offset uint64) (ifd, uint64, error) {
	if _, err := r.Seek(int64(offset), io.SeekStart); err != nil {
		return ifd{}, 0, err
	}

	var nBuf [2]byte
	if _, err := io.ReadFull(r, nBuf[:]); err != nil {
		return ifd{}, 0, err
	}
	numEntries := int(bo.Uint16(nBuf[:]))

	entries := make([]tiffEntry, numEntries)
	for i := 0; i < numEntries; i++ {
		buf := make([]byte, 12)
		if _, err := io.ReadFull(r, buf); err != nil {
			return ifd{}, 0, err
		}
		entries[i] = parseTiffEntry(buf, bo)
	}

	var nextBuf [4]byte
	if _, err := io.ReadFull(r, nextBuf[:]); err != nil {
		return ifd{}, 0, err
	}
	next := uint64(bo.Uint32(nextBuf[:]))

	for i := range entries {
		if err := resolveEntry(r, bo, &entries[i]); err != nil {
			return ifd{}, 0, fmt.Errorf("resolving entry tag %d: %w", entries[i].tag, err)
		}
	}

	return buildIFD(entries, bo), next, nil
}

func parseTiffEntry(buf []byte, bo binary.ByteOrder) tiffEntry {
	tag := bo.Uint16(buf[0:2])
	dt := bo.Uint16(buf[2:4])
	count := uint64(bo.Uint32(buf[4:8]))
	value := make([]byte, 4)
	copy(value, buf[8:12])
	return tiffEntry{tag: tag, dataType: dt, count: count, value: value}
}

func dataTypeSize(dt uint16) int {
	switch dt {
	case dtByte, dtASCII, dtSByte, dtUndef:
		return 1
	case dtShort, dtSShort:
		return 2
	case dtLong, dtSLong, dtFloat:
		return 4
	case dtRational, dtSRational, dtDouble:
		return 8
	default:
		return 1
	}
}

func resolveEntry(r io.ReadSeeker, bo binary.ByteOrder, e *tiffEntry) error {
	total := int(e.count) * dataTypeSize(e.dataType)
	if total <= 4 {
		return nil
	}
	dataOffset := uint64(bo.Uint32(e.value))
	if _, err := r.Seek(int64(dataOffset), io.SeekStart); err != nil {
		return err
	}
	data := make([]byte, total)
	if _, err := io.ReadFull(r, data); err != nil {
		return err
	}
	e.value = data
	return nil
}

func buildIFD(entries []tiffEntry, bo binary.ByteOrder) ifd {
	d := ifd{samplesPerPixel: 1, planarConfig: 1, compression: compNone, sampleFormat: 1}
	for _, e := range entries {
		switch e.tag {
		case tagImageWidth:
			d.width = getUint32(e, bo)
		case tagImageLength:
			d.height = getUint32(e, bo)
		case tagBitsPerSample:
			d.bitsPerSample = getUint16Slice(e, bo)
		case tagSamplesPerPixel:
			d.samplesPerPixel = getUint16Val(e, bo)
		case tagSampleFormat:
			d.sampleFormat = getUint16Val(e, bo)
		case tagCompression:
			d.compression = getUint16Val(e, bo)
		case tagPhotometric:
			d.photometric = getUint16Val(e, bo)
		case tagPlanarConfig:
			d.planarConfig = getUint16Val(e, bo)
		case tagRowsPerStrip:
			d.rowsPerStrip = getUint32(e, bo)
		case tagStripOffsets:
			d.stripOffsets = getUint64Slice(e, bo)
		case tagStripByteCounts:
			d.stripByteCounts = getUint64Slice(e, bo)
		case tagModelPixelScaleTag:
			d.modelPixelScale = getFloat64Slice(e, bo)
		case tagModelTiepointTag:
			d.modelTiepoint = getFloat64Slice(e, bo)
		case tagModelTransformTag:
			d.modelTransform = getFloat64Slice(e, bo)
		case tagGeoKeyDirectoryTag:
			d.geoKeys = getUint16Slice(e, bo)
		case tagGeoDoubleParamsTag:
			d.geoDoubleParams = getFloat64Slice(e, bo)
		case tagImageDescription:
			d.imageDescription = trimASCII(e.value, e.count)
		case tagGeoAsciiParamsTag:
			d.geoAsciiParams = trimASCII(e.value, e.count)
		case tagGCPTag:
			d.gcpASCII = trimASCII(e.value, e.count)
		}
	}
	if d.rowsPerStrip == 0 {
		d.rowsPerStrip = d.height
	}
	return d
}

func trimASCII(v []byte, count uint64) string {
	n := int(count)
	if n > len(v) {
		n = len(v)
	}
	s := string(v[:n])
	for len(s) > 0 && s[len(s)-1] == 0 {
		s = s[:len(s)-1]
	}
	return s
}

func getUint16Val(e tiffEntry, bo binary.ByteOrder) uint16 {
	switch e.dataType {
	case dtShort:
		return bo.Uint16(e.value)
	case dtLong:
		return uint16(bo.Uint32(e.value))
	default:
		return uint16(e.value[0])
	}
}

func getUint32(e tiffEntry, bo binary.ByteOrder) uint32 {
	switch e.dataType {
	case dtShort:
		return uint32(bo.Uint16(e.value))
	case dtLong:
		return bo.Uint32(e.value)
	default:
		return uint32(e.value[0])
	}
}

func getUint16Slice(e tiffEntry, bo binary.ByteOrder) []uint16 {
	n := int(e.count)
	out := make([]uint16, n)
	for i := 0; i < n; i++ {
		out[i] = bo.Uint16(e.value[i*2 : i*2+2])
	}
	return out
}

func getUint64Slice(e tiffEntry, bo binary.ByteOrder) []uint64 {
	n := int(e.count)
	out := make([]uint64, n)
	switch e.dataType {
	case dtLong:
		for i := 0; i < n; i++ {
			out[i] = uint64(bo.Uint32(e.value[i*4 : i*4+4]))
		}
	case dtShort:
		for i := 0; i < n; i++ {
			out[i] = uint64(bo.Uint16(e.value[i*2 : i*2+2]))
		}
	}
	return out
}

func getFloat64Slice(e tiffEntry, bo binary.ByteOrder) []float64 {
	n := int(e.count)
	out := make([]float64, n)
	size := dataTypeSize(e.dataType)
	for i := 0; i < n; i++ {
		off := i * size
		switch e.dataType {
		case dtDouble:
			out[i] = math.Float64frombits(bo.Uint64(e.value[off : off+8]))
		case dtFloat:
			out[i] = float64(math.Float32frombits(bo.Uint32(e.value[off : off+4])))
		}
	}
	return out
}
