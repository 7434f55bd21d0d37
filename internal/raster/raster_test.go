package raster

import (
	"math"
	"os"
	"path/filepath"
	"testing"
)

func writeTestDataset(t *testing.T, path string, width, height, bands int, dtype DType, gt GeoTransform, projection string, fill func(b, x, y int) float32) {
	t.Helper()
	ds, err := Create(path, width, height, bands, dtype, gt, projection)
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	planes := make([][]float32, bands)
	for b := range planes {
		planes[b] = make([]float32, width*height)
		for y := 0; y < height; y++ {
			for x := 0; x < width; x++ {
				planes[b][y*width+x] = fill(b, x, y)
			}
		}
	}
	if err := ds.WriteBlock(0, 0, width, height, planes); err != nil {
		t.Fatalf("WriteBlock() error = %v", err)
	}
	if err := ds.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
}

func TestCreateOpenRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rt.tif")
	gt := GeoTransform{
		OriginX: 500000, PixelWidth: 2.5, RowSkew: 0.125,
		OriginY: 4000000, ColSkew: -0.25, PixelHeight: -2.5,
	}
	const proj = `PROJCS["test",GEOGCS["test",DATUM["test",SPHEROID["test",6378137,298.25]]]]`
	writeTestDataset(t, path, 6, 4, 2, Float32, gt, proj, func(b, x, y int) float32 {
		return float32(b*100 + y*6 + x)
	})

	ds, err := Open(path)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer ds.Close()

	if ds.Width() != 6 || ds.Height() != 4 || ds.NumBands() != 2 {
		t.Errorf("dimensions = %dx%dx%d, want 6x4x2", ds.Width(), ds.Height(), ds.NumBands())
	}
	if ds.DataType() != Float32 {
		t.Errorf("datatype = %v, want Float32", ds.DataType())
	}
	got := ds.GeoTransform()
	if got != gt {
		t.Errorf("geotransform = %+v, want %+v (skew must survive the round trip)", got, gt)
	}
	if ds.Projection() != proj {
		t.Errorf("projection = %q, want %q", ds.Projection(), proj)
	}

	bands, err := ds.ReadBlock(0, 0, 6, 4)
	if err != nil {
		t.Fatalf("ReadBlock() error = %v", err)
	}
	if bands[0][0] != 0 || bands[0][3*6+5] != 23 {
		t.Errorf("band 0 values = (%v,%v), want (0,23)", bands[0][0], bands[0][3*6+5])
	}
	if bands[1][2*6+1] != 113 {
		t.Errorf("band 1 value = %v, want 113", bands[1][2*6+1])
	}
}

func TestReadBlockZeroFillsOutside(t *testing.T) {
	path := filepath.Join(t.TempDir(), "zf.tif")
	gt := GeoTransform{OriginX: 0, PixelWidth: 1, OriginY: 4, PixelHeight: -1}
	writeTestDataset(t, path, 4, 4, 1, Float32, gt, "", func(b, x, y int) float32 {
		return 7
	})

	ds, err := Open(path)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer ds.Close()

	bands, err := ds.ReadBlock(-1, -1, 3, 3)
	if err != nil {
		t.Fatalf("ReadBlock() error = %v", err)
	}
	if bands[0][0] != 0 {
		t.Errorf("out-of-range sample = %v, want 0", bands[0][0])
	}
	if bands[0][1*3+1] != 7 {
		t.Errorf("in-range sample = %v, want 7", bands[0][1*3+1])
	}
}

func TestGCPRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "gcp.tif")
	gt := GeoTransform{OriginX: 0, PixelWidth: 1, OriginY: 2, PixelHeight: -1}

	ds, err := Create(path, 2, 2, 1, Float32, gt, "")
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	want := []GCP{
		{Easting: 1000.5, Northing: 2000.25, PixelX: 1, PixelY: 0},
		{Easting: 1100, Northing: 1900, PixelX: 0, PixelY: 1},
	}
	ds.SetGCPs(want)
	if err := ds.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	back, err := Open(path)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer back.Close()

	got := back.GCPs()
	if len(got) != 2 {
		t.Fatalf("GCPs() returned %d points, want 2", len(got))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("GCP %d = %+v, want %+v", i, got[i], want[i])
		}
	}
}

func TestBandDescriptionRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "desc.tif")
	gt := GeoTransform{OriginX: 0, PixelWidth: 1, OriginY: 2, PixelHeight: -1}

	ds, err := Create(path, 2, 2, 3, Float32, gt, "")
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	ds.SetBandDescription(0, "X Shift")
	ds.SetBandDescription(1, "Y Shift")
	ds.SetBandDescription(2, "Metric Value")
	if err := ds.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	back, err := Open(path)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer back.Close()

	for i, want := range []string{"X Shift", "Y Shift", "Metric Value"} {
		if got := back.BandDescription(i); got != want {
			t.Errorf("band %d description = %q, want %q", i, got, want)
		}
	}
}

func TestByteDatasetClampsValues(t *testing.T) {
	path := filepath.Join(t.TempDir(), "byte.tif")
	gt := GeoTransform{OriginX: 0, PixelWidth: 1, OriginY: 1, PixelHeight: -1}
	writeTestDataset(t, path, 3, 1, 1, Byte, gt, "", func(b, x, y int) float32 {
		return []float32{-5, 128, 300}[x]
	})

	ds, err := Open(path)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer ds.Close()

	if ds.DataType() != Byte {
		t.Errorf("datatype = %v, want Byte", ds.DataType())
	}
	bands, err := ds.ReadBlock(0, 0, 3, 1)
	if err != nil {
		t.Fatalf("ReadBlock() error = %v", err)
	}
	want := []float32{0, 128, 255}
	for i, v := range want {
		if bands[0][i] != v {
			t.Errorf("sample %d = %v, want %v", i, bands[0][i], v)
		}
	}
}

func TestParseTFW(t *testing.T) {
	path := filepath.Join(t.TempDir(), "world.tfw")
	content := "2.0\n0.0\n0.0\n-2.0\n500001.0\n3999999.0\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	parsed, err := parseTFW(path)
	if err != nil {
		t.Fatalf("parseTFW() error = %v", err)
	}
	if parsed == nil {
		t.Fatal("parseTFW() returned nil for a well-formed file")
	}
	gt := parsed.toGeoTransform()
	// TFW origins are pixel centres; the geotransform's are pixel corners.
	if gt.OriginX != 500000 || gt.OriginY != 4000000 {
		t.Errorf("origin = (%v,%v), want (500000,4000000)", gt.OriginX, gt.OriginY)
	}
	if gt.PixelWidth != 2 || gt.PixelHeight != -2 {
		t.Errorf("pixel size = (%v,%v), want (2,-2)", gt.PixelWidth, gt.PixelHeight)
	}
}

func TestParseDType(t *testing.T) {
	for name, want := range map[string]DType{
		"Byte": Byte, "UInt16": UInt16, "Int16": Int16,
		"UInt32": UInt32, "Int32": Int32, "Float32": Float32, "Float64": Float64,
	} {
		got, err := ParseDType(name)
		if err != nil {
			t.Errorf("ParseDType(%q) error = %v", name, err)
		}
		if got != want {
			t.Errorf("ParseDType(%q) = %v, want %v", name, got, want)
		}
	}
	if _, err := ParseDType("Complex64"); err == nil {
		t.Error("ParseDType should reject unknown names")
	}
}

func TestGeoTransformMapPixelRoundTrip(t *testing.T) {
	gt := GeoTransform{OriginX: 100, PixelWidth: 0.5, OriginY: 900, PixelHeight: -0.5}
	x, y := gt.ToMap(10, 20)
	if x != 105 || y != 890 {
		t.Errorf("ToMap = (%v,%v), want (105,890)", x, y)
	}
	px, py := gt.ToPixel(x, y)
	if math.Abs(px-10) > 1e-12 || math.Abs(py-20) > 1e-12 {
		t.Errorf("ToPixel round trip = (%v,%v), want (10,20)", px, py)
	}
}
