package raster

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/surveyforge/imgreg/internal/errs"
)

// Create opens a new strip GeoTIFF for writing. Rows may be supplied via
// WriteBlock in any order; the file is only laid out on disk when Close is
// called.
func Create(path string, width, height, bands int, dtype DType, gt GeoTransform, projection string) (*Dataset, error) {
	if width <= 0 || height <= 0 || bands <= 0 {
		return nil, errs.New(errs.Config, "invalid raster dimensions %dx%dx%d", width, height, bands)
	}
	ds := &Dataset{
		path:       path,
		width:      width,
		height:     height,
		bands:      bands,
		dtype:      dtype,
		gt:         gt,
		projection: projection,
		writable:   true,
		rowBuf:     make([][]float32, bands),
	}
	for b := range ds.rowBuf {
		ds.rowBuf[b] = make([]float32, width*height)
	}
	return ds, nil
}

// WriteBlock stages a (w x h) window for band data; bytes only reach disk
// on Close.
func (ds *Dataset) WriteBlock(xoff, yoff, w, h int, bands [][]float32) error {
	if !ds.writable {
		return errs.New(errs.Io, "%s: dataset is not open for writing", ds.path)
	}
	if len(bands) != ds.bands {
		return errs.New(errs.Config, "WriteBlock: got %d bands, dataset has %d", len(bands), ds.bands)
	}
	for b, plane := range bands {
		if len(plane) != w*h {
			return errs.New(errs.Config, "WriteBlock: band %d has %d samples, want %d", b, len(plane), w*h)
		}
		for ry := 0; ry < h; ry++ {
			dstY := yoff + ry
			if dstY < 0 || dstY >= ds.height {
				continue
			}
			for rx := 0; rx < w; rx++ {
				dstX := xoff + rx
				if dstX < 0 || dstX >= ds.width {
					continue
				}
				ds.rowBuf[b][dstY*ds.width+dstX] = plane[ry*w+rx]
			}
		}
	}
	return nil
}

// finalize writes the accumulated bands out as a single-strip, uncompressed
// GeoTIFF with a ModelTransformationTag, an opaque projection carried as a
// GeoASCIIParamsTag string, and (if present) the private GCP tag.
func (ds *Dataset) finalize() error {
	f, err := os.Create(ds.path)
	if err != nil {
		return errs.Wrap(errs.Io, err, "creating %s", ds.path)
	}
	defer f.Close()

	bo := binary.LittleEndian
	bytesPerSample := int(ds.dtype.bitsPerSample() / 8)
	rowStride := ds.width * ds.bands * bytesPerSample
	pixelData := make([]byte, rowStride*ds.height)

	for y := 0; y < ds.height; y++ {
		for x := 0; x < ds.width; x++ {
			pixOff := y*rowStride + x*ds.bands*bytesPerSample
			for b := 0; b < ds.bands; b++ {
				encodeSample(pixelData[pixOff+b*bytesPerSample:], ds.dtype, ds.rowBuf[b][y*ds.width+x])
			}
		}
	}

	gcpASCII := formatGCPASCII(ds.gcps)
	geoASCII := ds.projection
	if geoASCII != "" && !strings.HasSuffix(geoASCII, "|") {
		geoASCII += "|"
	}

	var body bytes.Buffer
	// Header written last once offsets are known; reserve 8 bytes.
	body.Write(make([]byte, 8))
	body.Write(pixelData)
	pixelDataOffset := uint32(8)

	type entry struct {
		tag, dataType uint16
		count         uint32
		value         []byte // inline (<=4 bytes) or external
	}
	var extra bytes.Buffer
	entries := []entry{}

	addInlineShort := func(tag uint16, v uint16) {
		val := make([]byte, 4)
		bo.PutUint16(val, v)
		entries = append(entries, entry{tag, dtShort, 1, val})
	}
	addInlineLong := func(tag uint16, v uint32) {
		val := make([]byte, 4)
		bo.PutUint32(val, v)
		entries = append(entries, entry{tag, dtLong, 1, val})
	}
	addShortSlice := func(tag uint16, vs []uint16) {
		buf := make([]byte, len(vs)*2)
		for i, v := range vs {
			bo.PutUint16(buf[i*2:], v)
		}
		entries = append(entries, entry{tag, dtShort, uint32(len(vs)), buf})
	}
	addDoubleSlice := func(tag uint16, vs []float64) {
		buf := make([]byte, len(vs)*8)
		for i, v := range vs {
			bo.PutUint64(buf[i*8:], math.Float64bits(v))
		}
		entries = append(entries, entry{tag, dtDouble, uint32(len(vs)), buf})
	}
	addASCII := func(tag uint16, s string) {
		buf := append([]byte(s), 0)
		entries = append(entries, entry{tag, dtASCII, uint32(len(buf)), buf})
	}

	// Entries in ascending tag order, as the TIFF spec requires.
	addInlineLong(tagImageWidth, uint32(ds.width))
	addInlineLong(tagImageLength, uint32(ds.height))
	addShortSlice(tagBitsPerSample, repeatU16(ds.dtype.bitsPerSample(), ds.bands))
	addInlineShort(tagCompression, compNone)
	addInlineShort(tagPhotometric, 1) // BlackIsZero
	if desc := formatBandDescriptions(ds.bandDescs); desc != "" {
		addASCII(tagImageDescription, desc)
	}
	addInlineLong(tagStripOffsets, pixelDataOffset)
	addInlineShort(tagSamplesPerPixel, uint16(ds.bands))
	addInlineLong(tagRowsPerStrip, uint32(ds.height))
	addInlineLong(tagStripByteCounts, uint32(len(pixelData)))
	addInlineShort(tagPlanarConfig, 1)
	addInlineShort(tagSampleFormat, ds.dtype.sampleFormat())
	addDoubleSlice(tagModelTransformTag, []float64{
		ds.gt.PixelWidth, ds.gt.RowSkew, 0, ds.gt.OriginX,
		ds.gt.ColSkew, ds.gt.PixelHeight, 0, ds.gt.OriginY,
		0, 0, 1, 0,
		0, 0, 0, 1,
	})
	if geoASCII != "" {
		addASCII(tagGeoAsciiParamsTag, geoASCII)
	}
	if gcpASCII != "" {
		addASCII(tagGCPTag, gcpASCII)
	}

	// Lay out the IFD immediately after pixel data: 2 (count) + 12*n
	// (entries) + 4 (next-IFD pointer), followed by overflow values.
	ifdOffset := uint32(body.Len())
	overflowBase := ifdOffset + 2 + uint32(len(entries))*12 + 4

	var ifdBuf bytes.Buffer
	var cnt [2]byte
	bo.PutUint16(cnt[:], uint16(len(entries)))
	ifdBuf.Write(cnt[:])

	cursor := overflowBase
	for _, e := range entries {
		var rec [12]byte
		bo.PutUint16(rec[0:2], e.tag)
		bo.PutUint16(rec[2:4], e.dataType)
		bo.PutUint32(rec[4:8], e.count)
		size := len(e.value)
		if size <= 4 {
			copy(rec[8:12], e.value)
		} else {
			bo.PutUint32(rec[8:12], cursor)
			extra.Write(e.value)
			cursor += uint32(size)
		}
		ifdBuf.Write(rec[:])
	}
	var next [4]byte // 0: single IFD
	ifdBuf.Write(next[:])

	body.Write(ifdBuf.Bytes())
	body.Write(extra.Bytes())

	out := body.Bytes()
	// Header: byte order, magic 42, offset of first IFD.
	out[0], out[1] = 'I', 'I'
	bo.PutUint16(out[2:4], 42)
	bo.PutUint32(out[4:8], ifdOffset)

	if _, err := f.Write(out); err != nil {
		return errs.Wrap(errs.Io, err, "writing %s", ds.path)
	}
	return nil
}

func repeatU16(v uint16, n int) []uint16 {
	out := make([]uint16, n)
	for i := range out {
		out[i] = v
	}
	return out
}

func encodeSample(b []byte, dt DType, v float32) {
	switch dt {
	case Byte:
		iv := int32(v)
		if iv < 0 {
			iv = 0
		}
		if iv > 255 {
			iv = 255
		}
		b[0] = byte(iv)
	case UInt16:
		iv := uint16(clampf(v, 0, 65535))
		b[0], b[1] = byte(iv), byte(iv>>8)
	case Int16:
		iv := int16(clampf(v, -32768, 32767))
		u := uint16(iv)
		b[0], b[1] = byte(u), byte(u>>8)
	case UInt32:
		iv := uint32(clampf(v, 0, 4294967295))
		b[0], b[1], b[2], b[3] = byte(iv), byte(iv>>8), byte(iv>>16), byte(iv>>24)
	case Int32:
		iv := int32(v)
		u := uint32(iv)
		b[0], b[1], b[2], b[3] = byte(u), byte(u>>8), byte(u>>16), byte(u>>24)
	case Float32:
		bits := math.Float32bits(v)
		b[0], b[1], b[2], b[3] = byte(bits), byte(bits>>8), byte(bits>>16), byte(bits>>24)
	case Float64:
		bits := math.Float64bits(float64(v))
		for i := 0; i < 8; i++ {
			b[i] = byte(bits >> (8 * i))
		}
	}
}

func clampf(v float32, lo, hi float64) float64 {
	f := float64(v)
	if f < lo {
		return lo
	}
	if f > hi {
		return hi
	}
	return f
}

// formatBandDescriptions joins non-empty band descriptions into the
// ImageDescription tag payload, one "index:text" line per labelled band.
func formatBandDescriptions(descs []string) string {
	var b strings.Builder
	for i, d := range descs {
		if d == "" {
			continue
		}
		fmt.Fprintf(&b, "%d:%s\n", i, d)
	}
	return b.String()
}

func parseBandDescriptions(s string, bands int) []string {
	if s == "" {
		return nil
	}
	out := make([]string, bands)
	found := false
	for _, line := range strings.Split(s, "\n") {
		idx, text, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		i, err := strconv.Atoi(idx)
		if err != nil || i < 0 || i >= bands {
			continue
		}
		out[i] = text
		found = true
	}
	if !found {
		return nil
	}
	return out
}

// parseGCPASCII parses the private GCP tag format this module writes:
// one GCP per line, "easting,northing,pixelX,pixelY".
func parseGCPASCII(s string) []GCP {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	gcps := make([]GCP, 0, len(lines))
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		parts := strings.Split(line, ",")
		if len(parts) != 4 {
			continue
		}
		vals := make([]float64, 4)
		ok := true
		for i, p := range parts {
			v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
			if err != nil {
				ok = false
				break
			}
			vals[i] = v
		}
		if !ok {
			continue
		}
		gcps = append(gcps, GCP{Easting: vals[0], Northing: vals[1], PixelX: vals[2], PixelY: vals[3]})
	}
	return gcps
}

func formatGCPASCII(gcps []GCP) string {
	if len(gcps) == 0 {
		return ""
	}
	var b strings.Builder
	for _, g := range gcps {
		fmt.Fprintf(&b, "%.10g,%.10g,%.10g,%.10g\n", g.Easting, g.Northing, g.PixelX, g.PixelY)
	}
	return b.String()
}
