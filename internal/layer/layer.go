// Package layer turns KML folders into role-classified layers of features.
package layer

import (
	"github.com/twpayne/go-geom"
)

// SRIDWGS84 is the geographic system assigned to layers that carry none.
const SRIDWGS84 = 4326

// Role is the semantic role of a layer in a network design.
type Role string

// Roles recognised in a design document.
const (
	RoleHomepass Role = "HOMEPASS"
	RoleFAT      Role = "FAT"
	RolePole     Role = "POLE"
	RoleFDT      Role = "FDT"
	RoleArea     Role = "AREA"
)

// Roles lists every role in classification precedence order.
var Roles = []Role{RoleHomepass, RoleFAT, RolePole, RoleFDT, RoleArea}

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	for _, known := range Roles {
		if r == known {
			return true
		}
	}
	return false
}

// Attribute is one named feature attribute, in source order.
type Attribute struct {
	Name  string
	Value string
}

// Feature is one geometry plus its attributes.
type Feature struct {
	Index       int // position within its Layer
	Name        string
	Description string
	Attributes  []Attribute
	Geometry    geom.T
	Folder      string
	Business    bool // HOME-BIZ homepass
}

// Attr returns the value of the first attribute with the given name.
func (f *Feature) Attr(name string) (string, bool) {
	for _, a := range f.Attributes {
		if a.Name == name {
			return a.Value, true
		}
	}
	return "", false
}

// Location returns a single representative coordinate for the feature.
// See Representative.
func (f *Feature) Location() (geom.Coord, bool) {
	return Representative(f.Geometry)
}

// Layer is an ordered collection of features sharing one role.
type Layer struct {
	Role     Role
	Folders  []string // source folder names, in document order
	SRID     int
	Features []*Feature
}

// Len returns the number of features.
func (l *Layer) Len() int {
	if l == nil {
		return 0
	}
	return len(l.Features)
}

// Empty reports whether the layer has no features.
func (l *Layer) Empty() bool { return l.Len() == 0 }

// EnsureSRID assigns SRIDWGS84 when no system is set. Coordinates are not touched.
func (l *Layer) EnsureSRID() {
	if l.SRID == 0 {
		l.SRID = SRIDWGS84
	}
}

// Representative returns the point itself for Point geometries, the first
// point of a MultiPoint, and the bounding-box centre for anything else.
func Representative(g geom.T) (geom.Coord, bool) {
	if g == nil {
		return nil, false
	}
	switch t := g.(type) {
	case *geom.Point:
		if len(t.FlatCoords()) < 2 {
			return nil, false
		}
		return geom.Coord{t.X(), t.Y()}, true
	case *geom.MultiPoint:
		if t.NumPoints() == 0 {
			return nil, false
		}
		p := t.Point(0)
		return geom.Coord{p.X(), p.Y()}, true
	}

	b := g.Bounds()
	if b == nil || b.IsEmpty() {
		return nil, false
	}
	return geom.Coord{
		(b.Min(0) + b.Max(0)) / 2,
		(b.Min(1) + b.Max(1)) / 2,
	}, true
}
