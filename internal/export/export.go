// Package export serializes MASTER POP UP records to spreadsheet, CSV,
// GeoJSON, and zipped shapefile artifacts.
package export

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/fiberplan/internal/popup"
)

// Format is an output artifact type.
type Format string

// Supported formats.
const (
	FormatXLSX      Format = "xlsx"
	FormatCSV       Format = "csv"
	FormatGeoJSON   Format = "geojson"
	FormatShapefile Format = "shp"
)

// Formats lists every supported format.
var Formats = []Format{FormatXLSX, FormatCSV, FormatGeoJSON, FormatShapefile}

// ParseFormat resolves a format name, case-insensitively. An empty name
// selects FormatXLSX.
func ParseFormat(s string) (Format, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return FormatXLSX, nil
	}
	for _, f := range Formats {
		if string(f) == s {
			return f, nil
		}
	}
	if s == "json" {
		return FormatGeoJSON, nil
	}
	return "", eris.Errorf("export: unknown format %q", s)
}

// Extension returns the file extension, including the dot.
func (f Format) Extension() string {
	switch f {
	case FormatCSV:
		return ".csv"
	case FormatGeoJSON:
		return ".geojson"
	case FormatShapefile:
		return ".zip"
	default:
		return ".xlsx"
	}
}

// ContentType returns the MIME type of the artifact.
func (f Format) ContentType() string {
	switch f {
	case FormatCSV:
		return "text/csv; charset=utf-8"
	case FormatGeoJSON:
		return "application/geo+json"
	case FormatShapefile:
		return "application/zip"
	default:
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	}
}

// FileName returns the artifact name for an uploaded or input file name.
func (f Format) FileName(input string) string {
	return "MASTER_POP_UP_RESULT_" + filepath.Base(input) + f.Extension()
}

// Write serializes records in format f to w.
func Write(w io.Writer, f Format, records []popup.Record) error {
	switch f {
	case FormatXLSX:
		return WriteXLSX(w, records)
	case FormatCSV:
		return WriteCSV(w, records)
	case FormatGeoJSON:
		return WriteGeoJSON(w, records)
	case FormatShapefile:
		return WriteShapefileZip(w, records)
	}
	return eris.Errorf("export: unknown format %q", f)
}

// WriteFile writes records to path. The file is written to a temporary name
// in the same directory and renamed once complete.
func WriteFile(path string, f Format, records []popup.Record) error {
	var buf bytes.Buffer
	if err := Write(&buf, f, records); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".fiberplan-*")
	if err != nil {
		return eris.Wrap(err, "export: create temp file")
	}
	defer os.Remove(tmp.Name()) //nolint:errcheck

	if _, err := tmp.Write(buf.Bytes()); err != nil {
		tmp.Close() //nolint:errcheck
		return eris.Wrap(err, "export: write file")
	}
	if err := tmp.Close(); err != nil {
		return eris.Wrap(err, "export: close file")
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return eris.Wrap(err, "export: rename file")
	}
	return nil
}

// coordinate parses a coordinate column. Empty values report false.
func coordinate(r popup.Record, col string) (float64, bool) {
	v := r.Get(col)
	if v == "" {
		return 0, false
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, false
	}
	return f, true
}

// location returns the homepass longitude and latitude of r.
func location(r popup.Record) (lon, lat float64, ok bool) {
	lat, okLat := coordinate(r, popup.ColBuildingLat)
	lon, okLon := coordinate(r, popup.ColBuildingLong)
	return lon, lat, okLat && okLon
}
