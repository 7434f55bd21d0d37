package gcp

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/surveyforge/imgreg/internal/raster"
)

func TestApplyCopiesPixelsAndAttachesGCPs(t *testing.T) {
	tmp := t.TempDir()
	srcPath := filepath.Join(tmp, "src.tif")
	dstPath := filepath.Join(tmp, "dst.tif")
	gcpPath := filepath.Join(tmp, "tie.txt")

	gt := raster.GeoTransform{OriginX: 1000, PixelWidth: 10, OriginY: 2000, PixelHeight: -10}
	const w, h = 5, 4

	src, err := raster.Create(srcPath, w, h, 1, raster.Float32, gt, "")
	if err != nil {
		t.Fatalf("Create(src) error = %v", err)
	}
	plane := make([]float32, w*h)
	for i := range plane {
		plane[i] = float32(i) * 1.5
	}
	if err := src.WriteBlock(0, 0, w, h, [][]float32{plane}); err != nil {
		t.Fatalf("WriteBlock() error = %v", err)
	}
	if err := src.Close(); err != nil {
		t.Fatalf("Close(src) error = %v", err)
	}

	tieFile := "# header\n1000.0,2000.0,0.0,0.0,0.95\n1040.0,1970.0,4.0,3.0,0.91\n"
	if err := os.WriteFile(gcpPath, []byte(tieFile), 0o644); err != nil {
		t.Fatal(err)
	}

	in, err := raster.Open(srcPath)
	if err != nil {
		t.Fatalf("Open(src) error = %v", err)
	}
	defer in.Close()

	out, err := raster.Create(dstPath, w, h, 1, raster.Float32, gt, "")
	if err != nil {
		t.Fatalf("Create(dst) error = %v", err)
	}
	if err := Apply(in, out, gcpPath); err != nil {
		t.Fatalf("Apply() error = %v", err)
	}
	if err := out.Close(); err != nil {
		t.Fatalf("Close(dst) error = %v", err)
	}

	back, err := raster.Open(dstPath)
	if err != nil {
		t.Fatalf("Open(dst) error = %v", err)
	}
	defer back.Close()

	bands, err := back.ReadBlock(0, 0, w, h)
	if err != nil {
		t.Fatalf("ReadBlock() error = %v", err)
	}
	for i := range plane {
		if bands[0][i] != plane[i] {
			t.Fatalf("pixel %d = %v, want %v (pixels must copy unchanged)", i, bands[0][i], plane[i])
		}
	}

	gcps := back.GCPs()
	if len(gcps) != 2 {
		t.Fatalf("GCPs() returned %d points, want 2", len(gcps))
	}
	if gcps[1].Easting != 1040 || gcps[1].Northing != 1970 || gcps[1].PixelX != 4 || gcps[1].PixelY != 3 {
		t.Errorf("GCP 1 = %+v, want (1040,1970,4,3)", gcps[1])
	}
}

func TestApplyRejectsMismatchedDimensions(t *testing.T) {
	tmp := t.TempDir()
	gt := raster.GeoTransform{OriginX: 0, PixelWidth: 1, OriginY: 4, PixelHeight: -1}

	srcPath := filepath.Join(tmp, "src.tif")
	src, err := raster.Create(srcPath, 4, 4, 1, raster.Float32, gt, "")
	if err != nil {
		t.Fatal(err)
	}

	dstPath := filepath.Join(tmp, "dst.tif")
	dst, err := raster.Create(dstPath, 8, 8, 1, raster.Float32, gt, "")
	if err != nil {
		t.Fatal(err)
	}

	if err := Apply(src, dst, filepath.Join(tmp, "missing.txt")); err == nil {
		t.Error("Apply should reject mismatched raster dimensions")
	}
}
