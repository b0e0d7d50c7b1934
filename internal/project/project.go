package project

import (
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"

	"github.com/sells-group/fiberplan/internal/layer"
)

// Feature is a projected geometry bound to the feature it was derived from.
type Feature struct {
	Source   *layer.Feature
	Geometry geom.T
}

// Location returns a representative projected coordinate.
func (f *Feature) Location() (geom.Coord, bool) {
	return layer.Representative(f.Geometry)
}

// Layer is a projected copy of a layer.Layer.
type Layer struct {
	Role     layer.Role
	System   System
	Features []*Feature
}

// Len returns the number of features.
func (l *Layer) Len() int {
	if l == nil {
		return 0
	}
	return len(l.Features)
}

// Project transforms every feature of l into sys. The source layer is not
// modified. Layers must be in WGS84 (SRID 4326).
func Project(l *layer.Layer, sys System) (*Layer, error) {
	if l == nil {
		return nil, eris.New("project: nil layer")
	}
	if l.SRID != layer.SRIDWGS84 {
		return nil, eris.Errorf("project: layer %s has SRID %d, want %d", l.Role, l.SRID, layer.SRIDWGS84)
	}

	out := &Layer{
		Role:     l.Role,
		System:   sys,
		Features: make([]*Feature, 0, len(l.Features)),
	}
	for _, f := range l.Features {
		g, err := sys.Geometry(f.Geometry)
		if err != nil {
			return nil, eris.Wrapf(err, "project: %s feature %d (%s)", l.Role, f.Index, f.Name)
		}
		out.Features = append(out.Features, &Feature{Source: f, Geometry: g})
	}
	return out, nil
}

// Geometry returns a transformed copy of g.
func (s System) Geometry(g geom.T) (geom.T, error) {
	switch t := g.(type) {
	case *geom.GeometryCollection:
		gc := geom.NewGeometryCollection()
		for _, child := range t.Geoms() {
			pg, err := s.Geometry(child)
			if err != nil {
				return nil, err
			}
			if err := gc.Push(pg); err != nil {
				return nil, eris.Wrap(err, "project: build collection")
			}
		}
		return gc.SetSRID(s.EPSG), nil
	case nil:
		return nil, eris.New("project: nil geometry")
	}

	flat, err := s.flat(g.Layout(), g.FlatCoords())
	if err != nil {
		return nil, err
	}

	switch t := g.(type) {
	case *geom.Point:
		return geom.NewPointFlat(t.Layout(), flat).SetSRID(s.EPSG), nil
	case *geom.LineString:
		return geom.NewLineStringFlat(t.Layout(), flat).SetSRID(s.EPSG), nil
	case *geom.Polygon:
		return geom.NewPolygonFlat(t.Layout(), flat, t.Ends()).SetSRID(s.EPSG), nil
	case *geom.MultiPoint:
		return geom.NewMultiPointFlat(t.Layout(), flat).SetSRID(s.EPSG), nil
	case *geom.MultiLineString:
		return geom.NewMultiLineStringFlat(t.Layout(), flat, t.Ends()).SetSRID(s.EPSG), nil
	case *geom.MultiPolygon:
		return geom.NewMultiPolygonFlat(t.Layout(), flat, t.Endss()).SetSRID(s.EPSG), nil
	}
	return nil, eris.Errorf("project: unsupported geometry %T", g)
}

// flat transforms the X/Y of each coordinate, keeping any further ordinates.
func (s System) flat(layout geom.Layout, in []float64) ([]float64, error) {
	stride := layout.Stride()
	out := make([]float64, len(in))
	copy(out, in)
	for i := 0; i+1 < len(out); i += stride {
		e, n, err := s.Forward(in[i], in[i+1])
		if err != nil {
			return nil, err
		}
		out[i], out[i+1] = e, n
	}
	return out, nil
}
