package warp

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/surveyforge/imgreg/internal/tiepointio"
)

// TestTriangulationRecoversPlanarMapping: 4 tie points at the corners of
// a square, each satisfying an identity pixel mapping, should locate an
// interior query to the matching input pixel.
func TestTriangulationRecoversPlanarMapping(t *testing.T) {
	points := []tiepointio.WarpRecord{
		{Easting: 0, Northing: 0, X: 0, Y: 100},
		{Easting: 100, Northing: 0, X: 100, Y: 100},
		{Easting: 0, Northing: 100, X: 0, Y: 0},
		{Easting: 100, Northing: 100, X: 100, Y: 0},
	}

	m := NewTriangulation()
	require.NoError(t, m.Prepare(points))
	assert.NotEmpty(t, m.triangles)

	x, y, ok := m.Locate(25, 25, 1)
	require.True(t, ok)
	assert.InDelta(t, 25, x, 1)
	assert.InDelta(t, 75, y, 1)
}

func TestTriangulationRejectsFewerThanThreePoints(t *testing.T) {
	m := NewTriangulation()
	err := m.Prepare([]tiepointio.WarpRecord{
		{Easting: 0, Northing: 0, X: 0, Y: 0},
		{Easting: 1, Northing: 0, X: 1, Y: 0},
	})
	assert.Error(t, err)
}

func TestPointInTriangle(t *testing.T) {
	a := point2{0, 0}
	b := point2{10, 0}
	c := point2{0, 10}

	assert.True(t, pointInTriangle(point2{2, 2}, a, b, c))
	assert.False(t, pointInTriangle(point2{9, 9}, a, b, c))
}

func TestBowyerWatsonCoversConvexHull(t *testing.T) {
	pts := []point2{{0, 0}, {10, 0}, {10, 10}, {0, 10}, {5, 5}}
	tris := bowyerWatson(pts)
	require.NotEmpty(t, tris)
	for _, tr := range tris {
		assert.Less(t, tr.a, len(pts))
		assert.Less(t, tr.b, len(pts))
		assert.Less(t, tr.c, len(pts))
	}
}
