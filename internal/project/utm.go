// Package project reprojects geographic layers into a metric UTM system.
package project

import (
	"fmt"
	"math"

	"github.com/rotisserie/eris"
)

// DefaultEPSG is UTM zone 48S on WGS84.
const DefaultEPSG = 32748

// MaxLatitude bounds the latitudes UTM is defined for.
const MaxLatitude = 80.0

// WGS84 ellipsoid and UTM grid constants.
const (
	semiMajor     = 6378137.0
	flattening    = 1 / 298.257223563
	scaleFactor   = 0.9996
	falseEasting  = 500000.0
	falseNorthing = 10000000.0
)

// System is a UTM projection on the WGS84 ellipsoid.
type System struct {
	EPSG  int
	Zone  int
	South bool
}

// UTM returns the system for an EPSG code in 32601-32660 (north) or
// 32701-32760 (south).
func UTM(epsg int) (System, error) {
	switch {
	case epsg >= 32601 && epsg <= 32660:
		return System{EPSG: epsg, Zone: epsg - 32600}, nil
	case epsg >= 32701 && epsg <= 32760:
		return System{EPSG: epsg, Zone: epsg - 32700, South: true}, nil
	}
	return System{}, eris.Errorf("project: EPSG:%d is not a WGS84 UTM zone", epsg)
}

// Default returns the EPSG:32748 system.
func Default() System {
	s, _ := UTM(DefaultEPSG)
	return s
}

func (s System) String() string {
	hemi := "N"
	if s.South {
		hemi = "S"
	}
	return fmt.Sprintf("EPSG:%d (UTM %d%s)", s.EPSG, s.Zone, hemi)
}

// CentralMeridian returns the zone's central meridian in degrees.
func (s System) CentralMeridian() float64 {
	return float64(s.Zone)*6 - 183
}

// krueger holds the series coefficients of the forward transform.
type krueger struct {
	a     float64 // rectifying radius
	alpha [3]float64
	c     float64 // 2*sqrt(n)/(1+n)
}

var series = newKrueger()

func newKrueger() krueger {
	n := flattening / (2 - flattening)
	n2, n3 := n*n, n*n*n
	return krueger{
		a: semiMajor / (1 + n) * (1 + n2/4 + n2*n2/64),
		alpha: [3]float64{
			n/2 - 2*n2/3 + 5*n3/16,
			13*n2/48 - 3*n3/5,
			61 * n3 / 240,
		},
		c: 2 * math.Sqrt(n) / (1 + n),
	}
}

// Forward converts longitude/latitude in degrees to easting/northing in metres.
func (s System) Forward(lon, lat float64) (float64, float64, error) {
	if math.IsNaN(lon) || math.IsNaN(lat) {
		return 0, 0, eris.New("project: coordinate is NaN")
	}
	if math.Abs(lat) > MaxLatitude {
		return 0, 0, eris.Errorf("project: latitude %g outside ±%g", lat, MaxLatitude)
	}

	phi := lat * math.Pi / 180
	lam := (lon - s.CentralMeridian()) * math.Pi / 180

	sinPhi := math.Sin(phi)
	t := math.Sinh(math.Atanh(sinPhi) - series.c*math.Atanh(series.c*sinPhi))
	xi := math.Atan2(t, math.Cos(lam))
	eta := math.Atanh(math.Sin(lam) / math.Sqrt(1+t*t))

	e, n := eta, xi
	for j, a := range series.alpha {
		k := 2 * float64(j+1)
		e += a * math.Cos(k*xi) * math.Sinh(k*eta)
		n += a * math.Sin(k*xi) * math.Cosh(k*eta)
	}

	easting := falseEasting + scaleFactor*series.a*e
	northing := scaleFactor * series.a * n
	if s.South {
		northing += falseNorthing
	}
	return easting, northing, nil
}
