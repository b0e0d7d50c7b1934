// Package spatial answers nearest-feature and containing-area queries over
// projected layers.
package spatial

import (
	"math"
	"sort"

	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/xy"
	"github.com/twpayne/go-geom/xy/location"

	"github.com/sells-group/fiberplan/internal/project"
)

// Match is the result of a nearest-feature query.
type Match struct {
	Feature  *project.Feature
	Distance float64 // metres in the projected system
}

type entry struct {
	x, y    float64
	pos     int // feature position in the layer
	feature *project.Feature
}

type kdNode struct {
	e     entry
	axis  int // 0: x, 1: y
	left  *kdNode
	right *kdNode
}

// Index finds the nearest feature of one layer. Point features live in a
// kd-tree; other geometries are scanned.
type Index struct {
	root   *kdNode
	others []entry
	size   int
}

// NewIndex builds an index over the features of l. A nil layer yields an
// empty index.
func NewIndex(l *project.Layer) *Index {
	idx := &Index{}
	if l == nil {
		return idx
	}

	var points []entry
	for i, f := range l.Features {
		if f == nil || f.Geometry == nil {
			continue
		}
		e := entry{pos: i, feature: f}
		if p, ok := f.Geometry.(*geom.Point); ok && len(p.FlatCoords()) >= 2 {
			e.x, e.y = p.X(), p.Y()
			points = append(points, e)
		} else {
			idx.others = append(idx.others, e)
		}
		idx.size++
	}
	idx.root = buildKD(points, 0)
	return idx
}

// Len returns the number of indexed features.
func (idx *Index) Len() int { return idx.size }

func buildKD(entries []entry, depth int) *kdNode {
	if len(entries) == 0 {
		return nil
	}
	axis := depth % 2
	sort.Slice(entries, func(i, j int) bool {
		a, b := entries[i].coord(axis), entries[j].coord(axis)
		if a != b {
			return a < b
		}
		return entries[i].pos < entries[j].pos
	})
	mid := len(entries) / 2
	return &kdNode{
		e:     entries[mid],
		axis:  axis,
		left:  buildKD(entries[:mid], depth+1),
		right: buildKD(entries[mid+1:], depth+1),
	}
}

func (e entry) coord(axis int) float64 {
	if axis == 0 {
		return e.x
	}
	return e.y
}

type best struct {
	dist float64
	pos  int
	e    *entry
}

// offer replaces the current best when d is smaller, or equal with a lower
// feature position.
func (b *best) offer(e *entry, d float64) {
	if b.e == nil || d < b.dist || (d == b.dist && e.pos < b.pos) {
		b.dist, b.pos, b.e = d, e.pos, e
	}
}

// Nearest returns the feature closest to c. Equidistant candidates resolve to
// the lowest feature position. It returns false for an empty index.
func (idx *Index) Nearest(c geom.Coord) (Match, bool) {
	if idx == nil || idx.size == 0 || len(c) < 2 {
		return Match{}, false
	}

	b := best{dist: math.Inf(1)}
	searchKD(idx.root, c[0], c[1], &b)
	for i := range idx.others {
		e := &idx.others[i]
		b.offer(e, distanceTo(e.feature.Geometry, c))
	}
	if b.e == nil {
		return Match{}, false
	}
	return Match{Feature: b.e.feature, Distance: b.dist}, true
}

func searchKD(n *kdNode, x, y float64, b *best) {
	if n == nil {
		return
	}
	b.offer(&n.e, math.Hypot(n.e.x-x, n.e.y-y))

	key := x
	if n.axis == 1 {
		key = y
	}
	split := n.e.coord(n.axis)
	first, second := n.left, n.right
	if key > split {
		first, second = n.right, n.left
	}
	searchKD(first, x, y, b)
	// <= keeps equidistant candidates with lower positions reachable.
	if math.Abs(key-split) <= b.dist {
		searchKD(second, x, y, b)
	}
}

// distanceTo returns the planar distance from c to g: zero inside polygons,
// otherwise the distance to the closest vertex or segment.
func distanceTo(g geom.T, c geom.Coord) float64 {
	switch t := g.(type) {
	case *geom.Point:
		if len(t.FlatCoords()) < 2 {
			return math.Inf(1)
		}
		return xy.Distance(geom.Coord{t.X(), t.Y()}, c)
	case *geom.MultiPoint:
		d := math.Inf(1)
		for i := 0; i < t.NumPoints(); i++ {
			d = math.Min(d, distanceTo(t.Point(i), c))
		}
		return d
	case *geom.LineString:
		return lineDistance(t.Layout(), t.FlatCoords(), c)
	case *geom.MultiLineString:
		d := math.Inf(1)
		for i := 0; i < t.NumLineStrings(); i++ {
			d = math.Min(d, distanceTo(t.LineString(i), c))
		}
		return d
	case *geom.Polygon:
		return polygonDistance(t, c)
	case *geom.MultiPolygon:
		d := math.Inf(1)
		for i := 0; i < t.NumPolygons(); i++ {
			d = math.Min(d, polygonDistance(t.Polygon(i), c))
		}
		return d
	case *geom.GeometryCollection:
		d := math.Inf(1)
		for _, child := range t.Geoms() {
			d = math.Min(d, distanceTo(child, c))
		}
		return d
	}
	return math.Inf(1)
}

func lineDistance(layout geom.Layout, flat []float64, c geom.Coord) float64 {
	switch stride := layout.Stride(); {
	case len(flat) < stride:
		return math.Inf(1)
	case len(flat) == stride:
		return xy.Distance(geom.Coord{flat[0], flat[1]}, c)
	}
	return xy.DistanceFromPointToLineString(layout, c, flat)
}

func polygonDistance(p *geom.Polygon, c geom.Coord) float64 {
	if p.NumLinearRings() == 0 {
		return math.Inf(1)
	}
	if polygonContains(p, c) {
		return 0
	}
	d := math.Inf(1)
	for i := 0; i < p.NumLinearRings(); i++ {
		ring := p.LinearRing(i)
		d = math.Min(d, lineDistance(ring.Layout(), ring.FlatCoords(), c))
	}
	return d
}

// polygonContains applies the boundary policy: the outer ring's boundary is
// inside, a hole's interior is outside, a hole's boundary is inside.
func polygonContains(p *geom.Polygon, c geom.Coord) bool {
	if p.NumLinearRings() == 0 {
		return false
	}
	layout := p.Layout()
	outer := p.LinearRing(0)
	if xy.LocatePointInRing(layout, c, outer.FlatCoords()) == location.Exterior {
		return false
	}
	for i := 1; i < p.NumLinearRings(); i++ {
		if xy.LocatePointInRing(layout, c, p.LinearRing(i).FlatCoords()) == location.Interior {
			return false
		}
	}
	return true
}
