// Package popup builds the MASTER POP UP table: one enriched row per homepass.
package popup

// Output column names.
const (
	ColHomepassID     = "HOMEPASS_ID"
	ColClusterName    = "CLUSTER_NAME"
	ColStreetName     = "STREET_NAME"
	ColFDTCode        = "FDT_CODE"
	ColFATCode        = "FAT_CODE"
	ColBuildingLat    = "BUILDING_LATITUDE"
	ColBuildingLong   = "BUILDING_LONGITUDE"
	ColBizPass        = "Category BizPass"
	ColIDArea         = "ID_Area"
	ColClampHookID    = "Clamp_Hook_ID"
	ColDeploymentType = "DEPLOYMENT_TYPE"
	ColNeedSurvey     = "NEED_SURVEY"
	ColPoleID         = "Pole ID (New)"
	ColPoleLat        = "Coordinate (Lat) NEW"
	ColPoleLong       = "Coordinate (Long) NEW"
	ColPoleProvider   = "Pole Provider (New)"
	ColPoleType       = "Pole Type"
	ColFATNetworkID   = "FAT ID/NETWORK ID"
	ColClampHookLat   = "Clamp_Hook_LATITUDE"
	ColClampHookLong  = "Clamp_Hook_LONGITUDE"
	ColPrefixAddress  = "PREFIX_ADDRESS"
	ColHouseNumber    = "HOUSE_NUMBER"
	ColBlock          = "BLOCK"
	ColFloor          = "FLOOR"
	ColRT             = "RT"
	ColRW             = "RW"
	ColDistrict       = "DISTRICT"
	ColSubDistrict    = "SUB_DISTRICT"
	ColPostCode       = "POST CODE"
	ColAddressPoleFAT = "ADDRESS POLE / FAT"
	ColOVUG           = "OV_UG"
	ColHouseComment   = "HOUSE_COMMENT_"
	ColBuildingName   = "BUILDING_NAME"
	ColTower          = "TOWER"
	ColAPTN           = "APTN"
	ColFiberNode      = "FIBER_NODE__HFC_"
	ColLine           = "LINE"
)

// Columns is the fixed output schema, in order.
var Columns = []string{
	ColHomepassID, ColClusterName, ColPrefixAddress, ColStreetName,
	ColHouseNumber, ColBlock, ColFloor, ColRT, ColRW, ColDistrict,
	ColSubDistrict, ColFDTCode, ColFATCode, ColBuildingLat,
	ColBuildingLong, ColBizPass, ColPostCode,
	ColAddressPoleFAT, ColOVUG, ColHouseComment, ColBuildingName,
	ColTower, ColAPTN, ColFiberNode, ColIDArea,
	ColClampHookID, ColDeploymentType, ColNeedSurvey, ColPoleID,
	ColPoleLat, ColPoleLong, ColPoleProvider, ColPoleType,
	ColLine, ColFATNetworkID, ColClampHookLat, ColClampHookLong,
}

// CoordinateColumns hold decimal degrees.
var CoordinateColumns = []string{
	ColBuildingLat, ColBuildingLong,
	ColPoleLat, ColPoleLong,
	ColClampHookLat, ColClampHookLong,
}

// attributeColumns are filled from a homepass's ExtendedData when a data
// field carries the column's name.
var attributeColumns = []string{
	ColPrefixAddress, ColStreetName, ColHouseNumber, ColBlock, ColFloor,
	ColRT, ColRW, ColDistrict, ColSubDistrict, ColPostCode,
	ColAddressPoleFAT, ColOVUG, ColHouseComment, ColBuildingName,
	ColTower, ColAPTN, ColFiberNode, ColLine,
}

var columnIndex = func() map[string]int {
	m := make(map[string]int, len(Columns))
	for i, c := range Columns {
		m[c] = i
	}
	return m
}()

// IsCoordinateColumn reports whether col holds a coordinate.
func IsCoordinateColumn(col string) bool {
	for _, c := range CoordinateColumns {
		if c == col {
			return true
		}
	}
	return false
}

// Record is one output row. Values are positional against Columns.
type Record []string

// NewRecord returns a record with every column set to "".
func NewRecord() Record {
	return make(Record, len(Columns))
}

// Get returns the value of col, or "" for an unknown column.
func (r Record) Get(col string) string {
	i, ok := columnIndex[col]
	if !ok || i >= len(r) {
		return ""
	}
	return r[i]
}

// Set assigns col. Unknown columns are ignored.
func (r Record) Set(col, value string) {
	if i, ok := columnIndex[col]; ok && i < len(r) {
		r[i] = value
	}
}

// Map returns the record keyed by column name.
func (r Record) Map() map[string]string {
	m := make(map[string]string, len(Columns))
	for i, c := range Columns {
		v := ""
		if i < len(r) {
			v = r[i]
		}
		m[c] = v
	}
	return m
}
