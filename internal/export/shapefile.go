package export

import (
	"archive/zip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/jonas-p/go-shp"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/fiberplan/internal/popup"
)

// ShapefileBase is the base name of the files inside the shapefile archive.
const ShapefileBase = "MASTER_POP_UP"

const (
	maxStringField = 254
	minStringField = 10
)

// wgs84PRJ is the ESRI WKT for EPSG:4326.
const wgs84PRJ = `GEOGCS["GCS_WGS_1984",DATUM["D_WGS_1984",SPHEROID["WGS_1984",6378137.0,298.257223563]],PRIMEM["Greenwich",0.0],UNIT["Degree",0.0174532925199433]]`

// dbfNames maps output columns to DBF field names (10 bytes max).
var dbfNames = map[string]string{
	popup.ColHomepassID:     "HP_ID",
	popup.ColClusterName:    "CLUSTER",
	popup.ColPrefixAddress:  "PREFIX",
	popup.ColStreetName:     "STREET",
	popup.ColHouseNumber:    "HOUSE_NO",
	popup.ColBlock:          "BLOCK",
	popup.ColFloor:          "FLOOR",
	popup.ColRT:             "RT",
	popup.ColRW:             "RW",
	popup.ColDistrict:       "DISTRICT",
	popup.ColSubDistrict:    "SUB_DIST",
	popup.ColFDTCode:        "FDT_CODE",
	popup.ColFATCode:        "FAT_CODE",
	popup.ColBuildingLat:    "BLD_LAT",
	popup.ColBuildingLong:   "BLD_LONG",
	popup.ColBizPass:        "BIZPASS",
	popup.ColPostCode:       "POST_CODE",
	popup.ColAddressPoleFAT: "ADDR_POLE",
	popup.ColOVUG:           "OV_UG",
	popup.ColHouseComment:   "HOUSE_CMT",
	popup.ColBuildingName:   "BLD_NAME",
	popup.ColTower:          "TOWER",
	popup.ColAPTN:           "APTN",
	popup.ColFiberNode:      "FIBER_NODE",
	popup.ColIDArea:         "ID_AREA",
	popup.ColClampHookID:    "HOOK_ID",
	popup.ColDeploymentType: "DEPLOY_TYP",
	popup.ColNeedSurvey:     "NEED_SURV",
	popup.ColPoleID:         "POLE_ID",
	popup.ColPoleLat:        "POLE_LAT",
	popup.ColPoleLong:       "POLE_LONG",
	popup.ColPoleProvider:   "POLE_PROV",
	popup.ColPoleType:       "POLE_TYPE",
	popup.ColLine:           "LINE",
	popup.ColFATNetworkID:   "NETWORK_ID",
	popup.ColClampHookLat:   "HOOK_LAT",
	popup.ColClampHookLong:  "HOOK_LONG",
}

// DBFName returns the DBF field name for an output column.
func DBFName(col string) string {
	if name, ok := dbfNames[col]; ok {
		return name
	}
	if len(col) > 10 {
		return col[:10]
	}
	return col
}

// WriteShapefileZip writes a zip holding a point shapefile (.shp, .shx,
// .dbf, .prj, .cpg) of the records. Records without coordinates are skipped.
func WriteShapefileZip(w io.Writer, records []popup.Record) error {
	dir, err := os.MkdirTemp("", "fiberplan-shp-")
	if err != nil {
		return eris.Wrap(err, "shapefile export: create temp dir")
	}
	defer os.RemoveAll(dir) //nolint:errcheck

	base := filepath.Join(dir, ShapefileBase)
	if err := writeShapefile(base, records); err != nil {
		return err
	}
	if err := os.WriteFile(base+".prj", []byte(wgs84PRJ), 0o644); err != nil {
		return eris.Wrap(err, "shapefile export: write prj")
	}
	if err := os.WriteFile(base+".cpg", []byte("UTF-8"), 0o644); err != nil {
		return eris.Wrap(err, "shapefile export: write cpg")
	}

	zw := zip.NewWriter(w)
	for _, ext := range []string{".shp", ".shx", ".dbf", ".prj", ".cpg"} {
		if err := addZipEntry(zw, base+ext, ShapefileBase+ext); err != nil {
			return err
		}
	}
	if err := zw.Close(); err != nil {
		return eris.Wrap(err, "shapefile export: close zip")
	}
	return nil
}

func writeShapefile(base string, records []popup.Record) error {
	sw, err := shp.Create(base+".shp", shp.POINT)
	if err != nil {
		return eris.Wrap(err, "shapefile export: create")
	}

	fields := dbfFields(records)
	if err := sw.SetFields(fields); err != nil {
		sw.Close()
		return eris.Wrap(err, "shapefile export: set fields")
	}

	skipped := 0
	for i, r := range records {
		lon, lat, ok := location(r)
		if !ok {
			skipped++
			continue
		}
		row := int(sw.Write(&shp.Point{X: lon, Y: lat}))
		for field, col := range popup.Columns {
			if err := writeAttribute(sw, row, field, fields[field], r.Get(col)); err != nil {
				sw.Close()
				return eris.Wrapf(err, "shapefile export: record %d column %q", i+1, col)
			}
		}
	}
	sw.Close()

	if skipped > 0 {
		zap.L().Warn("shapefile export: skipped records without coordinates",
			zap.Int("skipped", skipped),
			zap.Int("records", len(records)),
		)
	}

	// go-shp v0.1.1 creates the table as "<base>dbf".
	if _, err := os.Stat(base + "dbf"); err == nil {
		if err := os.Rename(base+"dbf", base+".dbf"); err != nil {
			return eris.Wrap(err, "shapefile export: rename dbf")
		}
	}
	return nil
}

// writeAttribute pads values to the field width: text left-aligned,
// numbers right-aligned.
func writeAttribute(sw *shp.Writer, row, field int, f shp.Field, value string) error {
	size := int(f.Size)
	if f.Fieldtype == 'F' {
		v, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return sw.WriteAttribute(row, field, strings.Repeat(" ", size))
		}
		return sw.WriteAttribute(row, field, fmt.Sprintf("%*s", size, strconv.FormatFloat(v, 'f', int(f.Precision), 64)))
	}
	value = truncateUTF8(value, size)
	return sw.WriteAttribute(row, field, value+strings.Repeat(" ", size-len(value)))
}

// truncateUTF8 cuts s to at most n bytes without splitting a rune.
func truncateUTF8(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}

// dbfFields sizes each text field to its longest value.
func dbfFields(records []popup.Record) []shp.Field {
	fields := make([]shp.Field, 0, len(popup.Columns))
	for _, col := range popup.Columns {
		name := DBFName(col)
		if popup.IsCoordinateColumn(col) {
			fields = append(fields, shp.FloatField(name, 19, 11))
			continue
		}
		size := minStringField
		for _, r := range records {
			if n := len(r.Get(col)); n > size {
				size = n
			}
		}
		if size > maxStringField {
			size = maxStringField
		}
		fields = append(fields, shp.StringField(name, uint8(size)))
	}
	return fields
}

func addZipEntry(zw *zip.Writer, path, name string) error {
	f, err := os.Open(path)
	if err != nil {
		return eris.Wrapf(err, "shapefile export: open %s", name)
	}
	defer f.Close() //nolint:errcheck

	entry, err := zw.Create(name)
	if err != nil {
		return eris.Wrapf(err, "shapefile export: create zip entry %s", name)
	}
	if _, err := io.Copy(entry, f); err != nil {
		return eris.Wrapf(err, "shapefile export: copy %s", name)
	}
	return nil
}
