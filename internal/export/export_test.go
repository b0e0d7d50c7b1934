package export

import (
	"archive/zip"
	"bytes"
	"encoding/csv"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/jonas-p/go-shp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tealeg/xlsx/v2"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/geojson"

	"github.com/sells-group/fiberplan/internal/popup"
)

func sampleRecords() []popup.Record {
	a := popup.NewRecord()
	a.Set(popup.ColHomepassID, "HP-001")
	a.Set(popup.ColStreetName, "Jl. Melati, No. 5")
	a.Set(popup.ColBuildingLat, "-6.2")
	a.Set(popup.ColBuildingLong, "106.8")
	a.Set(popup.ColFATCode, "FAT-01")
	a.Set(popup.ColPoleID, "POLE-A")
	a.Set(popup.ColPoleLat, "-6.2002")
	a.Set(popup.ColPoleLong, "106.8005")
	a.Set(popup.ColFATNetworkID, "FAT-01")

	b := popup.NewRecord()
	b.Set(popup.ColHomepassID, "HP-002")
	b.Set(popup.ColBuildingLat, "-6.21")
	b.Set(popup.ColBuildingLong, "106.81")
	b.Set(popup.ColClusterName, "AUTO_GEN")

	return []popup.Record{a, b}
}

func columnIndex(t *testing.T, col string) int {
	t.Helper()
	for i, c := range popup.Columns {
		if c == col {
			return i
		}
	}
	t.Fatalf("unknown column %q", col)
	return -1
}

func TestParseFormat(t *testing.T) {
	tests := []struct {
		in      string
		want    Format
		wantErr bool
	}{
		{"", FormatXLSX, false},
		{"xlsx", FormatXLSX, false},
		{"CSV", FormatCSV, false},
		{" geojson ", FormatGeoJSON, false},
		{"json", FormatGeoJSON, false},
		{"shp", FormatShapefile, false},
		{"pdf", "", true},
	}
	for _, tt := range tests {
		got, err := ParseFormat(tt.in)
		if tt.wantErr {
			assert.Error(t, err, tt.in)
			continue
		}
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got)
	}
}

func TestFormat_Metadata(t *testing.T) {
	assert.Equal(t, ".xlsx", FormatXLSX.Extension())
	assert.Equal(t, ".zip", FormatShapefile.Extension())
	assert.Equal(t, "application/zip", FormatShapefile.ContentType())
	assert.Contains(t, FormatXLSX.ContentType(), "spreadsheetml")
	assert.Equal(t, "MASTER_POP_UP_RESULT_design.kmz.xlsx", FormatXLSX.FileName("/tmp/x/design.kmz"))
	assert.Equal(t, "MASTER_POP_UP_RESULT_a.kml.csv", FormatCSV.FileName("a.kml"))
}

func TestWriteCSV(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, sampleRecords()))

	rows, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, popup.Columns, rows[0])
	for _, row := range rows {
		assert.Len(t, row, len(popup.Columns))
	}
	assert.Equal(t, "HP-001", rows[1][0])
	assert.Equal(t, "Jl. Melati, No. 5", rows[1][columnIndex(t, popup.ColStreetName)])
	assert.Equal(t, "AUTO_GEN", rows[2][columnIndex(t, popup.ColClusterName)])
}

func TestWriteCSV_NoRecords(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, nil))

	rows, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	assert.Len(t, rows, 1)
}

func TestWriteXLSX(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteXLSX(&buf, sampleRecords()))

	f, err := xlsx.OpenBinary(buf.Bytes())
	require.NoError(t, err)
	sheet, ok := f.Sheet[SheetName]
	require.True(t, ok)
	require.Len(t, sheet.Rows, 3)

	header := sheet.Rows[0]
	require.Len(t, header.Cells, len(popup.Columns))
	for i, col := range popup.Columns {
		assert.Equal(t, col, header.Cells[i].Value)
	}

	row := sheet.Rows[1]
	assert.Equal(t, "HP-001", row.Cells[0].Value)
	assert.Equal(t, "FAT-01", row.Cells[columnIndex(t, popup.ColFATCode)].Value)

	lat := row.Cells[columnIndex(t, popup.ColBuildingLat)]
	assert.Equal(t, xlsx.CellTypeNumeric, lat.Type())
	v, err := lat.Float()
	require.NoError(t, err)
	assert.InDelta(t, -6.2, v, 1e-12)

	pole := row.Cells[columnIndex(t, popup.ColPoleLong)]
	v, err = pole.Float()
	require.NoError(t, err)
	assert.InDelta(t, 106.8005, v, 1e-12)
}

func TestWriteGeoJSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteGeoJSON(&buf, sampleRecords()))

	var fc geojson.FeatureCollection
	require.NoError(t, json.Unmarshal(buf.Bytes(), &fc))
	require.Len(t, fc.Features, 2)

	first := fc.Features[0]
	pt, ok := first.Geometry.(*geom.Point)
	require.True(t, ok)
	assert.InDelta(t, 106.8, pt.X(), 1e-12)
	assert.InDelta(t, -6.2, pt.Y(), 1e-12)
	assert.Len(t, first.Properties, len(popup.Columns))
	assert.Equal(t, "HP-001", first.Properties[popup.ColHomepassID])
	assert.Equal(t, "", first.Properties[popup.ColRT])
}

func TestDBFNames(t *testing.T) {
	seen := map[string]string{}
	for _, col := range popup.Columns {
		name := DBFName(col)
		assert.LessOrEqual(t, len(name), 10, col)
		assert.NotEmpty(t, name)
		if prev, dup := seen[name]; dup {
			t.Errorf("%q and %q both map to %q", prev, col, name)
		}
		seen[name] = col
	}
	assert.Equal(t, "SOMETHING_", DBFName("SOMETHING_ELSE"))
}

func TestTruncateUTF8(t *testing.T) {
	tests := []struct {
		name  string
		input string
		n     int
		want  string
	}{
		{"fits", "Jl. Mawar", 20, "Jl. Mawar"},
		{"ascii cut", "Jl. Mawar", 3, "Jl."},
		{"cut inside two-byte rune", "Jalan é", 7, "Jalan "},
		{"cut after two-byte rune", "Jalan é", 8, "Jalan é"},
		{"cut inside three-byte rune", "RT€05", 4, "RT"},
		{"zero width", "é", 0, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := truncateUTF8(tt.input, tt.n)
			assert.Equal(t, tt.want, got)
			assert.True(t, utf8.ValidString(got))
			assert.LessOrEqual(t, len(got), tt.n)
		})
	}

	long := strings.Repeat("é", 200)
	got := truncateUTF8(long, maxStringField)
	assert.True(t, utf8.ValidString(got))
	assert.Len(t, got, maxStringField)
}

func TestWriteShapefileZip(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteShapefileZip(&buf, sampleRecords()))

	zr, err := zip.NewReader(bytes.NewReader(buf.Bytes()), int64(buf.Len()))
	require.NoError(t, err)

	dir := t.TempDir()
	var names []string
	for _, zf := range zr.File {
		names = append(names, zf.Name)
		rc, err := zf.Open()
		require.NoError(t, err)
		data, err := io.ReadAll(rc)
		require.NoError(t, err)
		require.NoError(t, rc.Close())
		require.NoError(t, os.WriteFile(filepath.Join(dir, zf.Name), data, 0o644))
	}
	assert.ElementsMatch(t, []string{
		"MASTER_POP_UP.shp", "MASTER_POP_UP.shx", "MASTER_POP_UP.dbf",
		"MASTER_POP_UP.prj", "MASTER_POP_UP.cpg",
	}, names)

	r, err := shp.Open(filepath.Join(dir, "MASTER_POP_UP.shp"))
	require.NoError(t, err)
	defer r.Close() //nolint:errcheck

	fields := r.Fields()
	require.Len(t, fields, len(popup.Columns))
	assert.Equal(t, "HP_ID", fields[0].String())

	var ids []string
	var points []shp.Point
	for r.Next() {
		n, shape := r.Shape()
		p, ok := shape.(*shp.Point)
		require.True(t, ok)
		points = append(points, *p)
		ids = append(ids, r.ReadAttribute(n, 0))
	}
	assert.Equal(t, []string{"HP-001", "HP-002"}, ids)
	require.Len(t, points, 2)
	assert.InDelta(t, 106.8, points[0].X, 1e-12)
	assert.InDelta(t, -6.21, points[1].Y, 1e-12)
}

func TestWriteShapefileZip_SkipsRecordsWithoutCoordinates(t *testing.T) {
	records := sampleRecords()
	records[1].Set(popup.ColBuildingLat, "")

	dir := t.TempDir()
	base := filepath.Join(dir, "out")
	require.NoError(t, writeShapefile(base, records))

	r, err := shp.Open(base + ".shp")
	require.NoError(t, err)
	defer r.Close() //nolint:errcheck

	count := 0
	for r.Next() {
		count++
	}
	assert.Equal(t, 1, count)
}

func TestWriteFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, FormatCSV.FileName("design.kml"))

	require.NoError(t, WriteFile(path, FormatCSV, sampleRecords()))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "HP-002")

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestWrite_UnknownFormat(t *testing.T) {
	err := Write(io.Discard, Format("pdf"), sampleRecords())
	assert.Error(t, err)
}
