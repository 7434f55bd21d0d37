package raster

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// GeoKey IDs used to recover an EPSG code when present. The projection
// string itself is carried opaquely; the EPSG code is only a fallback
// label when no ASCII projection is stored.
const (
	gkProjectedCSTypeGeoKey = 3072
	gkGeographicTypeGeoKey  = 2048
)

// geoTransformFromIFD derives a GeoTransform from whichever GeoTIFF tag is
// present, preferring ModelTransformationTag (34264) because it is the
// only one of the three that can carry row/column skew.
func geoTransformFromIFD(d ifd) (GeoTransform, bool) {
	if len(d.modelTransform) >= 16 {
		m := d.modelTransform
		return GeoTransform{
			OriginX:     m[3],
			PixelWidth:  m[0],
			RowSkew:     m[1],
			OriginY:     m[7],
			ColSkew:     m[4],
			PixelHeight: m[5],
		}, true
	}
	if len(d.modelPixelScale) >= 2 && len(d.modelTiepoint) >= 6 {
		sx, sy := d.modelPixelScale[0], d.modelPixelScale[1]
		// ModelTiepoint maps raster pixel (I,J) to model (X,Y); the pixel
		// is (0,0) for a single-tiepoint file, which is all this module
		// produces or expects.
		originX := d.modelTiepoint[3] - d.modelTiepoint[0]*sx
		originY := d.modelTiepoint[4] + d.modelTiepoint[1]*sy
		return GeoTransform{
			OriginX:     originX,
			PixelWidth:  sx,
			OriginY:     originY,
			PixelHeight: -sy,
		}, true
	}
	return GeoTransform{}, false
}

// epsgFromGeoKeys extracts an EPSG code from a parsed GeoKey directory, for
// diagnostics only.
func epsgFromGeoKeys(geoKeys []uint16) int {
	if len(geoKeys) < 4 {
		return 0
	}
	numKeys := int(geoKeys[3])
	for i := 0; i < numKeys; i++ {
		base := 4 + i*4
		if base+3 >= len(geoKeys) {
			break
		}
		keyID := geoKeys[base]
		valueOffset := geoKeys[base+3]
		if (keyID == gkProjectedCSTypeGeoKey || keyID == gkGeographicTypeGeoKey) && valueOffset > 0 {
			return int(valueOffset)
		}
	}
	return 0
}

// findSidecar looks for a sidecar file with one of the given extensions
// next to path.
func findSidecar(path string, exts ...string) string {
	ext := filepath.Ext(path)
	base := path[:len(path)-len(ext)]
	for _, c := range exts {
		p := base + c
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

// tfw holds the six parameters of a TIFF World File sidecar, used as a
// geotransform fallback when the TIFF itself carries no GeoTIFF tags.
type tfw struct {
	pixelSizeX, rotationY, rotationX, pixelSizeY, originX, originY float64
}

func parseTFW(path string) (*tfw, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) < 6 {
		return nil, nil
	}
	vals := make([]float64, 6)
	for i := 0; i < 6; i++ {
		v, err := strconv.ParseFloat(strings.TrimSpace(lines[i]), 64)
		if err != nil {
			return nil, err
		}
		vals[i] = v
	}
	return &tfw{
		pixelSizeX: vals[0], rotationY: vals[1], rotationX: vals[2],
		pixelSizeY: vals[3], originX: vals[4], originY: vals[5],
	}, nil
}

func (t *tfw) toGeoTransform() GeoTransform {
	return GeoTransform{
		OriginX:     t.originX - t.pixelSizeX/2,
		PixelWidth:  t.pixelSizeX,
		RowSkew:     t.rotationY,
		OriginY:     t.originY + absf(t.pixelSizeY)/2,
		ColSkew:     t.rotationX,
		PixelHeight: t.pixelSizeY,
	}
}

// readPRJ reads a .prj sidecar's contents verbatim as the opaque
// projection string.
func readPRJ(path string) string {
	data, err := os.ReadFile(path)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}

func absf(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
