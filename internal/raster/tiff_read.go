package raster

import (
	"bytes"
	"fmt"
	"math"
	"os"
	"strings"

	"github.com/surveyforge/imgreg/internal/errs"
)

// Dataset is the concrete Raster implementation. It memory-maps a
// strip-based baseline or LZW GeoTIFF for reading and decodes samples into
// per-band float32 planes.
type Dataset struct {
	data []byte // nil for in-memory / write-only datasets
	path string

	width, height int
	bands         int
	dtype         DType
	gt            GeoTransform
	projection    string

	d ifd

	gcps []GCP

	// write support
	writable  bool
	file      *os.File
	rowBuf    [][]float32 // pending rows not yet flushed, one plane per band
	written   int         // rows flushed so far
	stripBuf  []byte      // scratch buffer reused across strip writes
	bandDescs []string

	stripCache map[int][]byte
}

// Open memory-maps a GeoTIFF at path and parses its strip layout and
// geo-metadata, falling back to a .tfw/.prj sidecar when the embedded
// GeoTIFF tags are absent.
func Open(path string) (*Dataset, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errs.Wrap(errs.Io, err, "opening %s", path)
	}
	defer f.Close()

	fi, err := f.Stat()
	if err != nil {
		return nil, errs.Wrap(errs.Io, err, "stat %s", path)
	}
	if fi.Size() == 0 {
		return nil, errs.New(errs.Io, "%s: empty file", path)
	}

	data, err := mmapFile(f.Fd(), int(fi.Size()))
	if err != nil {
		return nil, errs.Wrap(errs.Io, err, "mmap %s", path)
	}

	parsed, _, err := parseTIFF(bytes.NewReader(data))
	if err != nil {
		munmapFile(data)
		return nil, errs.Wrap(errs.Io, err, "parsing %s", path)
	}
	if parsed.planarConfig != 1 {
		munmapFile(data)
		return nil, errs.New(errs.Io, "%s: only chunky (PlanarConfig=1) TIFFs are supported", path)
	}

	gt, ok := geoTransformFromIFD(parsed)
	projection := ""
	if !ok {
		if tfwPath := findSidecar(path, ".tfw", ".TFW"); tfwPath != "" {
			t, err := parseTFW(tfwPath)
			if err == nil && t != nil {
				gt = t.toGeoTransform()
				ok = true
			}
		}
	}
	if !ok {
		munmapFile(data)
		return nil, errs.New(errs.Io, "%s: no geotransform (GeoTIFF tags or .tfw sidecar)", path)
	}
	if parsed.geoAsciiParams != "" {
		projection = strings.TrimSuffix(parsed.geoAsciiParams, "|")
	}
	if projection == "" && len(parsed.geoKeys) > 0 {
		if code := epsgFromGeoKeys(parsed.geoKeys); code != 0 {
			projection = fmt.Sprintf("EPSG:%d", code)
		}
	}
	if projection == "" {
		if prjPath := findSidecar(path, ".prj", ".PRJ"); prjPath != "" {
			projection = readPRJ(prjPath)
		}
	}

	dtype := dtypeFromIFD(parsed)

	ds := &Dataset{
		data:       data,
		path:       path,
		width:      int(parsed.width),
		height:     int(parsed.height),
		bands:      int(parsed.samplesPerPixel),
		dtype:      dtype,
		gt:         gt,
		projection: projection,
		d:          parsed,
		stripCache: make(map[int][]byte),
	}
	if parsed.gcpASCII != "" {
		ds.gcps = parseGCPASCII(parsed.gcpASCII)
	}
	ds.bandDescs = parseBandDescriptions(parsed.imageDescription, ds.bands)
	return ds, nil
}

func dtypeFromIFD(d ifd) DType {
	bits := uint16(32)
	if len(d.bitsPerSample) > 0 {
		bits = d.bitsPerSample[0]
	}
	switch {
	case d.sampleFormat == 3 && bits == 32:
		return Float32
	case d.sampleFormat == 3 && bits == 64:
		return Float64
	case d.sampleFormat == 2 && bits == 16:
		return Int16
	case d.sampleFormat == 2 && bits == 32:
		return Int32
	case bits == 8:
		return Byte
	case bits == 16:
		return UInt16
	case bits == 32:
		return UInt32
	default:
		return Float32
	}
}

func (ds *Dataset) Width() int             { return ds.width }
func (ds *Dataset) Height() int            { return ds.height }
func (ds *Dataset) NumBands() int          { return ds.bands }
func (ds *Dataset) GeoTransform() GeoTransform { return ds.gt }
func (ds *Dataset) Projection() string     { return ds.projection }
func (ds *Dataset) DataType() DType        { return ds.dtype }

func (ds *Dataset) GCPs() []GCP { return ds.gcps }

func (ds *Dataset) SetGCPs(gcps []GCP) {
	ds.gcps = gcps
}

func (ds *Dataset) SetBandDescription(i int, desc string) error {
	if i < 0 || i >= ds.bands {
		return errs.New(errs.Config, "band index %d out of range [0,%d)", i, ds.bands)
	}
	for len(ds.bandDescs) <= i {
		ds.bandDescs = append(ds.bandDescs, "")
	}
	ds.bandDescs[i] = desc
	return nil
}

// BandDescription returns band i's label, or "" when unset.
func (ds *Dataset) BandDescription(i int) string {
	if i < 0 || i >= len(ds.bandDescs) {
		return ""
	}
	return ds.bandDescs[i]
}

// ReadBlock reads a (w x h) window starting at (xoff, yoff). Rows/columns
// outside [0,width)x[0,height) are zero-filled.
func (ds *Dataset) ReadBlock(xoff, yoff, w, h int) ([][]float32, error) {
	if err := blockOutOfRange(ds, xoff, yoff, w, h); err != nil {
		return nil, err
	}
	planes := make([][]float32, ds.bands)
	for b := range planes {
		planes[b] = make([]float32, w*h)
	}

	bytesPerSample := int(ds.dtype.bitsPerSample() / 8)
	rowStride := ds.width * ds.bands * bytesPerSample

	for ry := 0; ry < h; ry++ {
		srcY := yoff + ry
		if srcY < 0 || srcY >= ds.height {
			continue
		}
		strip, stripRowOff, err := ds.stripRow(srcY)
		if err != nil {
			return nil, err
		}
		rowStart := stripRowOff * rowStride
		if rowStart+rowStride > len(strip) {
			return nil, errs.New(errs.Io, "%s: truncated strip data at row %d", ds.path, srcY)
		}
		row := strip[rowStart : rowStart+rowStride]

		for rx := 0; rx < w; rx++ {
			srcX := xoff + rx
			if srcX < 0 || srcX >= ds.width {
				continue
			}
			pixOff := srcX * ds.bands * bytesPerSample
			for b := 0; b < ds.bands; b++ {
				v := decodeSample(row[pixOff+b*bytesPerSample:], ds.dtype)
				planes[b][ry*w+rx] = v
			}
		}
	}
	return planes, nil
}

// stripRow returns the (possibly decompressed, cached) strip bytes
// covering row y, plus the row's offset within that strip.
func (ds *Dataset) stripRow(y int) ([]byte, int, error) {
	rps := int(ds.d.rowsPerStrip)
	if rps <= 0 {
		rps = ds.height
	}
	stripIdx := y / rps
	rowInStrip := y % rps

	if cached, ok := ds.stripCache[stripIdx]; ok {
		return cached, rowInStrip, nil
	}
	if stripIdx >= len(ds.d.stripOffsets) {
		return nil, 0, errs.New(errs.Io, "%s: row %d has no strip", ds.path, y)
	}
	off := ds.d.stripOffsets[stripIdx]
	count := ds.d.stripByteCounts[stripIdx]
	if int(off+count) > len(ds.data) {
		return nil, 0, errs.New(errs.Io, "%s: strip %d out of bounds", ds.path, stripIdx)
	}
	raw := ds.data[off : off+count]

	var decoded []byte
	var err error
	switch ds.d.compression {
	case compNone:
		decoded = raw
	case compLZW:
		decoded, err = decompressTIFFLZW(raw)
		if err != nil {
			return nil, 0, errs.Wrap(errs.Io, err, "%s: decompressing strip %d", ds.path, stripIdx)
		}
	default:
		return nil, 0, errs.New(errs.Io, "%s: unsupported compression %d", ds.path, ds.d.compression)
	}

	// Cache only while the strip fits a reasonable bound; large synthetic
	// fixtures keep one strip per call otherwise.
	if len(ds.stripCache) < 64 {
		ds.stripCache[stripIdx] = decoded
	}
	return decoded, rowInStrip, nil
}

func decodeSample(b []byte, dt DType) float32 {
	switch dt {
	case Byte:
		return float32(b[0])
	case UInt16:
		return float32(uint16(b[0]) | uint16(b[1])<<8)
	case Int16:
		return float32(int16(uint16(b[0]) | uint16(b[1])<<8))
	case UInt32:
		return float32(uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24)
	case Int32:
		return float32(int32(uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24))
	case Float32:
		bits := uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24
		return math.Float32frombits(bits)
	case Float64:
		bits := uint64(0)
		for i := 0; i < 8; i++ {
			bits |= uint64(b[i]) << (8 * i)
		}
		return float32(math.Float64frombits(bits))
	default:
		return float32(math.NaN())
	}
}

// Close releases the memory mapping (read datasets) or flushes and
// finalises the TIFF (write datasets, see tiff_write.go).
func (ds *Dataset) Close() error {
	if ds.writable {
		return ds.finalize()
	}
	if ds.data != nil {
		return munmapFile(ds.data)
	}
	return nil
}
