package export

import (
	"encoding/json"
	"io"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/geojson"

	"github.com/sells-group/fiberplan/internal/layer"
	"github.com/sells-group/fiberplan/internal/popup"
)

// WriteGeoJSON writes a FeatureCollection with one WGS84 Point per record.
// Every column becomes a string property; records without coordinates get a
// null geometry.
func WriteGeoJSON(w io.Writer, records []popup.Record) error {
	fc := geojson.FeatureCollection{
		Features: make([]*geojson.Feature, 0, len(records)),
	}
	for _, r := range records {
		props := make(map[string]interface{}, len(popup.Columns))
		for col, v := range r.Map() {
			props[col] = v
		}

		f := &geojson.Feature{Properties: props}
		if lon, lat, ok := location(r); ok {
			f.Geometry = geom.NewPointFlat(geom.XY, []float64{lon, lat}).SetSRID(layer.SRIDWGS84)
		}
		fc.Features = append(fc.Features, f)
	}

	enc := json.NewEncoder(w)
	if err := enc.Encode(&fc); err != nil {
		return eris.Wrap(err, "geojson export: encode")
	}
	return nil
}
