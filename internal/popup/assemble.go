package popup

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/sells-group/fiberplan/internal/layer"
)

// Defaults are the fixed values the assembler writes.
type Defaults struct {
	DeploymentType     string
	NeedSurvey         string
	PoleProvider       string
	PoleType           string
	BizPassBusiness    string
	BizPassResidential string
	ClusterPlaceholder string
}

// StandardDefaults returns the values used when none are configured.
func StandardDefaults() Defaults {
	return Defaults{
		DeploymentType:     "FAT EXT",
		NeedSurvey:         "YES",
		PoleProvider:       "NEW",
		PoleType:           "7M",
		BizPassBusiness:    "BIZ",
		BizPassResidential: "RESIDENTIAL",
		ClusterPlaceholder: "AUTO_GEN",
	}
}

// Placeholders for features without a name.
const (
	unnamedFAT  = "UNKNOWN"
	unnamedPole = "POLE"
)

// Input is everything known about one homepass row.
type Input struct {
	Homepass *layer.Feature
	Position int // 1-based output position

	FAT  *layer.Feature
	Pole *layer.Feature
	FDT  *layer.Feature
	Area *layer.Feature

	HasAreaLayer  bool
	BusinessSplit bool
}

// Assemble builds the output row for one homepass. Coordinates are always
// taken from the source features, never from projected geometry.
func Assemble(in Input, d Defaults) Record {
	r := NewRecord()
	hp := in.Homepass
	if hp == nil {
		return r
	}

	id := strings.TrimSpace(hp.Name)
	if id == "" {
		id = fmt.Sprintf("HP-%d", in.Position)
	}
	r.Set(ColHomepassID, id)
	r.Set(ColStreetName, strings.TrimSpace(hp.Description))
	fillAttributes(r, hp)

	if c, ok := hp.Location(); ok {
		r.Set(ColBuildingLat, FormatCoord(c[1]))
		r.Set(ColBuildingLong, FormatCoord(c[0]))
	}
	r.Set(ColDeploymentType, d.DeploymentType)
	r.Set(ColNeedSurvey, d.NeedSurvey)

	if in.BusinessSplit {
		if hp.Business {
			r.Set(ColBizPass, d.BizPassBusiness)
		} else {
			r.Set(ColBizPass, d.BizPassResidential)
		}
	}

	if in.FAT != nil {
		name := nameOr(in.FAT, unnamedFAT)
		r.Set(ColFATCode, name)
		r.Set(ColFATNetworkID, name)
	}

	if in.Pole != nil {
		name := nameOr(in.Pole, unnamedPole)
		r.Set(ColPoleID, name)
		r.Set(ColClampHookID, name+"-A")
		if c, ok := in.Pole.Location(); ok {
			lat, long := FormatCoord(c[1]), FormatCoord(c[0])
			r.Set(ColPoleLat, lat)
			r.Set(ColPoleLong, long)
			r.Set(ColClampHookLat, lat)
			r.Set(ColClampHookLong, long)
		}
		r.Set(ColPoleProvider, d.PoleProvider)
		r.Set(ColPoleType, d.PoleType)
	}

	switch {
	case in.Area != nil:
		r.Set(ColIDArea, in.Area.Name)
		r.Set(ColClusterName, in.Area.Name)
	case !in.HasAreaLayer:
		r.Set(ColClusterName, d.ClusterPlaceholder)
	}

	if in.FDT != nil {
		r.Set(ColFDTCode, in.FDT.Name)
	}

	return r
}

// fillAttributes copies ExtendedData values whose names match address
// columns. Values already set are kept.
func fillAttributes(r Record, f *layer.Feature) {
	for _, col := range attributeColumns {
		if r.Get(col) != "" {
			continue
		}
		if v, ok := f.Attr(col); ok {
			r.Set(col, strings.TrimSpace(v))
		}
	}
}

func nameOr(f *layer.Feature, fallback string) string {
	if name := strings.TrimSpace(f.Name); name != "" {
		return name
	}
	return fallback
}

// FormatCoord renders a coordinate with the fewest digits that round-trip.
func FormatCoord(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
