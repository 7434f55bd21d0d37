package warp

import "github.com/surveyforge/imgreg/internal/raster"

// Sample reads the input pixel at (xIn, yIn) and returns one value per
// band, or ok=false when the position falls outside src's extent.
//
// This is nearest-neighbour resampling; bilinear or cubic interpolators
// would implement the same signature but are not wired into any CLI
// subcommand here.
func Sample(src raster.Raster, xIn, yIn int) (values []float32, ok bool) {
	if xIn < 0 || yIn < 0 || xIn >= src.Width() || yIn >= src.Height() {
		return nil, false
	}
	bands, err := src.ReadBlock(xIn, yIn, 1, 1)
	if err != nil {
		return nil, false
	}
	values = make([]float32, len(bands))
	for i, b := range bands {
		values[i] = b[0]
	}
	return values, true
}
