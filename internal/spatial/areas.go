package spatial

import (
	"github.com/twpayne/go-geom"

	"github.com/sells-group/fiberplan/internal/project"
)

type area struct {
	feature  *project.Feature
	polygons []*geom.Polygon
	bounds   *geom.Bounds
}

// Areas finds the polygon feature containing a point.
type Areas struct {
	areas []area
}

// NewAreas collects the polygon and multipolygon features of l in input
// order. Other geometries are ignored.
func NewAreas(l *project.Layer) *Areas {
	a := &Areas{}
	if l == nil {
		return a
	}
	for _, f := range l.Features {
		if f == nil {
			continue
		}
		polys := polygonsOf(f.Geometry)
		if len(polys) == 0 {
			continue
		}
		a.areas = append(a.areas, area{
			feature:  f,
			polygons: polys,
			bounds:   f.Geometry.Bounds(),
		})
	}
	return a
}

// Len returns the number of polygon features.
func (a *Areas) Len() int { return len(a.areas) }

// Containing returns the first feature whose polygon contains c. Points on
// an outer ring or on a hole's ring count as contained.
func (a *Areas) Containing(c geom.Coord) (*project.Feature, bool) {
	if a == nil || len(c) < 2 {
		return nil, false
	}
	for _, ar := range a.areas {
		if !inBounds(ar.bounds, c) {
			continue
		}
		for _, p := range ar.polygons {
			if polygonContains(p, c) {
				return ar.feature, true
			}
		}
	}
	return nil, false
}

func inBounds(b *geom.Bounds, c geom.Coord) bool {
	if b == nil || b.IsEmpty() {
		return false
	}
	return c[0] >= b.Min(0) && c[0] <= b.Max(0) && c[1] >= b.Min(1) && c[1] <= b.Max(1)
}

func polygonsOf(g geom.T) []*geom.Polygon {
	switch t := g.(type) {
	case *geom.Polygon:
		if t.NumLinearRings() == 0 {
			return nil
		}
		return []*geom.Polygon{t}
	case *geom.MultiPolygon:
		var out []*geom.Polygon
		for i := 0; i < t.NumPolygons(); i++ {
			out = append(out, polygonsOf(t.Polygon(i))...)
		}
		return out
	case *geom.GeometryCollection:
		var out []*geom.Polygon
		for _, child := range t.Geoms() {
			out = append(out, polygonsOf(child)...)
		}
		return out
	}
	return nil
}
