package kml

import (
	"encoding/xml"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"golang.org/x/text/encoding/htmlindex"
)

type xmlKML struct {
	XMLName    xml.Name       `xml:"kml"`
	Documents  []xmlContainer `xml:"Document"`
	Folders    []xmlContainer `xml:"Folder"`
	Placemarks []xmlPlacemark `xml:"Placemark"`
}

// xmlContainer is either a Document or a Folder.
type xmlContainer struct {
	Name       string         `xml:"name"`
	Documents  []xmlContainer `xml:"Document"`
	Folders    []xmlContainer `xml:"Folder"`
	Placemarks []xmlPlacemark `xml:"Placemark"`
}

type xmlPlacemark struct {
	Name          string            `xml:"name"`
	Description   string            `xml:"description"`
	ExtendedData  xmlExtendedData   `xml:"ExtendedData"`
	Point         *xmlCoordinates   `xml:"Point"`
	LineString    *xmlCoordinates   `xml:"LineString"`
	Polygon       *xmlPolygon       `xml:"Polygon"`
	MultiGeometry *xmlMultiGeometry `xml:"MultiGeometry"`
}

type xmlExtendedData struct {
	Data []struct {
		Name  string `xml:"name,attr"`
		Value string `xml:"value"`
	} `xml:"Data"`
	SchemaData []struct {
		SimpleData []struct {
			Name  string `xml:"name,attr"`
			Value string `xml:",chardata"`
		} `xml:"SimpleData"`
	} `xml:"SchemaData"`
}

type xmlCoordinates struct {
	Coordinates string `xml:"coordinates"`
}

type xmlBoundary struct {
	LinearRing xmlCoordinates `xml:"LinearRing"`
}

type xmlPolygon struct {
	Outer xmlBoundary   `xml:"outerBoundaryIs"`
	Inner []xmlBoundary `xml:"innerBoundaryIs"`
}

type xmlMultiGeometry struct {
	Points      []xmlCoordinates `xml:"Point"`
	LineStrings []xmlCoordinates `xml:"LineString"`
	Polygons    []xmlPolygon     `xml:"Polygon"`
}

// Decode parses a KML document from r. Folders are listed depth-first in
// document order; placemarks sitting directly in a Document form a folder
// named after that Document.
func Decode(r io.Reader) (*Document, error) {
	decoder := xml.NewDecoder(r)
	decoder.CharsetReader = func(charset string, input io.Reader) (io.Reader, error) {
		enc, err := htmlindex.Get(charset)
		if err != nil {
			return nil, eris.Wrapf(err, "kml: unsupported charset %q", charset)
		}
		return enc.NewDecoder().Reader(input), nil
	}

	var root xmlKML
	if err := decoder.Decode(&root); err != nil {
		return nil, eris.Wrap(err, "kml: decode document")
	}

	doc := &Document{}
	for _, d := range root.Documents {
		if doc.Name == "" {
			doc.Name = strings.TrimSpace(d.Name)
		}
		walkContainer(doc, d, "", true)
	}
	for _, f := range root.Folders {
		walkContainer(doc, f, "", false)
	}
	if len(root.Placemarks) > 0 {
		doc.Folders = append(doc.Folders, buildFolder("", "", root.Placemarks))
	}

	return doc, nil
}

func walkContainer(doc *Document, c xmlContainer, parent string, isDocument bool) {
	name := strings.TrimSpace(c.Name)
	folderPath := name
	if parent != "" {
		folderPath = parent + "/" + name
	}

	if len(c.Placemarks) > 0 || !isDocument {
		doc.Folders = append(doc.Folders, buildFolder(name, folderPath, c.Placemarks))
	}
	for _, f := range c.Folders {
		walkContainer(doc, f, folderPath, false)
	}
	for _, d := range c.Documents {
		walkContainer(doc, d, folderPath, true)
	}
}

func buildFolder(name, folderPath string, raw []xmlPlacemark) Folder {
	folder := Folder{Name: name, Path: folderPath}
	placemarks := make([]Placemark, 0, len(raw))
	for i, p := range raw {
		pm, err := convertPlacemark(p)
		if err != nil {
			folder.Err = eris.Wrapf(err, "kml: placemark %d (%q) in folder %q", i+1, strings.TrimSpace(p.Name), name)
			return folder
		}
		placemarks = append(placemarks, pm)
	}
	folder.Placemarks = placemarks
	return folder
}

func convertPlacemark(p xmlPlacemark) (Placemark, error) {
	pm := Placemark{
		Name:        strings.TrimSpace(p.Name),
		Description: strings.TrimSpace(p.Description),
	}
	for _, d := range p.ExtendedData.Data {
		pm.Data = append(pm.Data, Data{Name: d.Name, Value: strings.TrimSpace(d.Value)})
	}
	for _, sd := range p.ExtendedData.SchemaData {
		for _, d := range sd.SimpleData {
			pm.Data = append(pm.Data, Data{Name: d.Name, Value: strings.TrimSpace(d.Value)})
		}
	}

	g, err := convertGeometry(p)
	if err != nil {
		return Placemark{}, err
	}
	pm.Geometry = g
	return pm, nil
}

func convertGeometry(p xmlPlacemark) (geom.T, error) {
	switch {
	case p.Point != nil:
		return pointGeom(*p.Point)
	case p.LineString != nil:
		return lineGeom(*p.LineString)
	case p.Polygon != nil:
		return polygonGeom(*p.Polygon)
	case p.MultiGeometry != nil:
		return multiGeom(*p.MultiGeometry)
	}
	return nil, nil
}

func pointGeom(c xmlCoordinates) (*geom.Point, error) {
	flat, err := parseCoordinates(c.Coordinates)
	if err != nil {
		return nil, err
	}
	if len(flat) != 2 {
		return nil, eris.Errorf("kml: point needs exactly one coordinate, got %d", len(flat)/2)
	}
	return geom.NewPointFlat(geom.XY, flat), nil
}

func lineGeom(c xmlCoordinates) (*geom.LineString, error) {
	flat, err := parseCoordinates(c.Coordinates)
	if err != nil {
		return nil, err
	}
	if len(flat) < 4 {
		return nil, eris.Errorf("kml: linestring needs at least 2 coordinates, got %d", len(flat)/2)
	}
	return geom.NewLineStringFlat(geom.XY, flat), nil
}

func polygonGeom(p xmlPolygon) (*geom.Polygon, error) {
	flat, ends, err := polygonFlat(p)
	if err != nil {
		return nil, err
	}
	return geom.NewPolygonFlat(geom.XY, flat, ends), nil
}

func polygonFlat(p xmlPolygon) ([]float64, []int, error) {
	rings := append([]xmlBoundary{p.Outer}, p.Inner...)
	var flat []float64
	ends := make([]int, 0, len(rings))
	for i, r := range rings {
		coords, err := parseCoordinates(r.LinearRing.Coordinates)
		if err != nil {
			return nil, nil, err
		}
		if len(coords) < 6 {
			return nil, nil, eris.Errorf("kml: polygon ring %d needs at least 3 coordinates, got %d", i, len(coords)/2)
		}
		flat = append(flat, coords...)
		ends = append(ends, len(flat))
	}
	return flat, ends, nil
}

// multiGeom keeps homogeneous collections typed (MultiPoint, MultiLineString,
// MultiPolygon) and falls back to a GeometryCollection otherwise.
func multiGeom(m xmlMultiGeometry) (geom.T, error) {
	kinds := 0
	for _, n := range []int{len(m.Points), len(m.LineStrings), len(m.Polygons)} {
		if n > 0 {
			kinds++
		}
	}
	if kinds == 0 {
		return nil, nil
	}

	if kinds == 1 {
		switch {
		case len(m.Points) > 0:
			mp := geom.NewMultiPoint(geom.XY)
			for _, c := range m.Points {
				p, err := pointGeom(c)
				if err != nil {
					return nil, err
				}
				if err := mp.Push(p); err != nil {
					return nil, eris.Wrap(err, "kml: build multipoint")
				}
			}
			return mp, nil
		case len(m.LineStrings) > 0:
			mls := geom.NewMultiLineString(geom.XY)
			for _, c := range m.LineStrings {
				ls, err := lineGeom(c)
				if err != nil {
					return nil, err
				}
				if err := mls.Push(ls); err != nil {
					return nil, eris.Wrap(err, "kml: build multilinestring")
				}
			}
			return mls, nil
		default:
			mp := geom.NewMultiPolygon(geom.XY)
			for _, pg := range m.Polygons {
				poly, err := polygonGeom(pg)
				if err != nil {
					return nil, err
				}
				if err := mp.Push(poly); err != nil {
					return nil, eris.Wrap(err, "kml: build multipolygon")
				}
			}
			return mp, nil
		}
	}

	gc := geom.NewGeometryCollection()
	for _, c := range m.Points {
		p, err := pointGeom(c)
		if err != nil {
			return nil, err
		}
		if err := gc.Push(p); err != nil {
			return nil, eris.Wrap(err, "kml: build geometry collection")
		}
	}
	for _, c := range m.LineStrings {
		ls, err := lineGeom(c)
		if err != nil {
			return nil, err
		}
		if err := gc.Push(ls); err != nil {
			return nil, eris.Wrap(err, "kml: build geometry collection")
		}
	}
	for _, pg := range m.Polygons {
		poly, err := polygonGeom(pg)
		if err != nil {
			return nil, err
		}
		if err := gc.Push(poly); err != nil {
			return nil, eris.Wrap(err, "kml: build geometry collection")
		}
	}
	return gc, nil
}

// parseCoordinates parses a KML coordinate list ("lon,lat[,alt] ...") into
// flat XY pairs. Altitude is dropped.
func parseCoordinates(s string) ([]float64, error) {
	tuples := strings.Fields(s)
	if len(tuples) == 0 {
		return nil, eris.New("kml: empty coordinates")
	}
	flat := make([]float64, 0, len(tuples)*2)
	for _, t := range tuples {
		parts := strings.Split(t, ",")
		if len(parts) < 2 || len(parts) > 3 {
			return nil, eris.Errorf("kml: malformed coordinate tuple %q", t)
		}
		lon, err := strconv.ParseFloat(parts[0], 64)
		if err != nil {
			return nil, eris.Wrapf(err, "kml: parse longitude %q", parts[0])
		}
		lat, err := strconv.ParseFloat(parts[1], 64)
		if err != nil {
			return nil, eris.Wrapf(err, "kml: parse latitude %q", parts[1])
		}
		if math.IsNaN(lon) || math.IsNaN(lat) {
			return nil, eris.Errorf("kml: coordinate %q is not a number", t)
		}
		if lon < -180 || lon > 180 || lat < -90 || lat > 90 {
			return nil, eris.Errorf("kml: coordinate %q out of range", t)
		}
		flat = append(flat, lon, lat)
	}
	return flat, nil
}
