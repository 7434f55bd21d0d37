package tiepointio

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/surveyforge/imgreg/internal/errs"
	"github.com/surveyforge/imgreg/internal/tiepoint"
)

func samplePoints() []tiepoint.TiePoint {
	a := tiepoint.NewSeed(1000, 2000, 10, 20)
	a.XFloat, a.YFloat = 9.5, 21.25
	a.XShift, a.YShift = 0.5, -1.25
	a.Metric = 0.97

	b := tiepoint.NewSeed(1100, 1900, 110, 120)
	b.XFloat, b.YFloat = 108, 122
	b.XShift, b.YShift = 2, -2
	b.Metric = 0.91
	return []tiepoint.TiePoint{a, b}
}

func writeAndRead(t *testing.T, format Format) []string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "tie.txt")
	require.NoError(t, Write(path, format, samplePoints()))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return strings.Split(strings.TrimRight(string(data), "\n"), "\n")
}

func TestWriteENVIImage2Image(t *testing.T) {
	lines := writeAndRead(t, ENVIImage2Image)
	assert.True(t, strings.HasPrefix(lines[0], ";"))

	var data []string
	for _, l := range lines {
		if !strings.HasPrefix(l, ";") {
			data = append(data, l)
		}
	}
	require.Len(t, data, 2)
	assert.True(t, strings.HasPrefix(data[0], "\t"))
	fields := strings.Split(strings.TrimPrefix(data[0], "\t"), "\t")
	require.Len(t, fields, 4)
	assert.Equal(t, "10.000000000000", fields[0])
	assert.Equal(t, "9.500000000000", fields[2])
}

func TestWriteENVIImage2Map(t *testing.T) {
	lines := writeAndRead(t, ENVIImage2Map)
	var data []string
	for _, l := range lines {
		if !strings.HasPrefix(l, ";") {
			data = append(data, l)
		}
	}
	require.Len(t, data, 2)
	fields := strings.Split(strings.TrimPrefix(data[0], "\t"), "\t")
	require.Len(t, fields, 4)
	assert.Equal(t, "1000.000000000000", fields[0])
	assert.Equal(t, "2000.000000000000", fields[1])
}

func TestWriteRSGISMapOffsets(t *testing.T) {
	lines := writeAndRead(t, RSGISMapOffsets)
	assert.True(t, strings.HasPrefix(lines[0], "#"))

	var data []string
	for _, l := range lines {
		if !strings.HasPrefix(l, "#") {
			data = append(data, l)
		}
	}
	require.Len(t, data, 2)
	fields := strings.Split(data[0], ",")
	require.Len(t, fields, 5)
	assert.Equal(t, "0.500000000000", fields[2])
	assert.Equal(t, "-1.250000000000", fields[3])
}

func TestWriteRSGISImage2MapRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tie.txt")
	points := samplePoints()
	require.NoError(t, Write(path, RSGISImage2Map, points))

	records, err := ReadWarpRecords(path)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.InDelta(t, points[0].Easting, records[0].Easting, 1e-9)
	assert.InDelta(t, points[0].Northing, records[0].Northing, 1e-9)
	assert.InDelta(t, points[0].XFloat, records[0].X, 1e-9)
	assert.InDelta(t, points[0].YFloat, records[0].Y, 1e-9)
	assert.True(t, records[0].HasMetric)
	assert.InDelta(t, 0.97, records[0].Metric, 1e-9)
}

func TestReadWarpRecordsFourTokens(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tie.txt")
	content := "# comment\n; another comment\n\n100.0, 200.0, 1.0, 2.0\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	records, err := ReadWarpRecords(path)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.False(t, records[0].HasMetric)
	assert.Equal(t, 100.0, records[0].Easting)
	assert.Equal(t, 2.0, records[0].Y)
}

func TestReadWarpRecordsRejectsBadTokenCount(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tie.txt")
	require.NoError(t, os.WriteFile(path, []byte("100.0,200.0,1.0\n"), 0o644))

	_, err := ReadWarpRecords(path)
	require.Error(t, err)
	assert.True(t, errs.Is(err, errs.Io))
}

func TestParseFormat(t *testing.T) {
	for name, want := range map[string]Format{
		"envi_img2img":  ENVIImage2Image,
		"envi_img2map":  ENVIImage2Map,
		"rsgis_img2map": RSGISImage2Map,
		"rsgis_mapoffs": RSGISMapOffsets,
	} {
		got, err := ParseFormat(name)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
	_, err := ParseFormat("kml")
	require.Error(t, err)
	assert.True(t, errs.Is(err, errs.Config))
}
