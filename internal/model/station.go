package model

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/wkt"
)

// DataSource identifies the provider a station record came from.
type DataSource string

const (
	SourceBNA DataSource = "BNA"
	SourceOCM DataSource = "OCM"
	SourceOSM DataSource = "OSM"
)

// Sources lists all known data sources in priority order (highest first).
// The merge engine trusts BNA over OCM over OSM when picking the surviving
// record of a duplicate group.
var Sources = []DataSource{SourceBNA, SourceOCM, SourceOSM}

// Priority returns the rank of a data source, 0 being the most trusted.
// Unknown sources rank last.
func (s DataSource) Priority() int {
	for i, known := range Sources {
		if s == known {
			return i
		}
	}
	return len(Sources)
}

// Address holds the normalized postal address of a station. All fields are
// nullable; connectors null out values that fail validation rather than
// carrying garbage into the merge.
type Address struct {
	Street   *string `json:"street"`
	Town     *string `json:"town"`
	Postcode *string `json:"postcode"` // exactly 5 digits or nil
	District *string `json:"district"` // not populated by any current source
	State    *string `json:"state"`
	Country  *string `json:"country"`
}

// Charging holds the normalized charging capabilities of a station.
type Charging struct {
	Capacity       *int      `json:"capacity"`
	KwList         []float64 `json:"kw_list"`
	AmpereList     []float64 `json:"ampere_list"`
	VoltList       []float64 `json:"volt_list"`
	SocketTypeList []string  `json:"socket_type_list"`
	DCSupport      bool      `json:"dc_support"`
	TotalKw        *float64  `json:"total_kw"`
	MaxKw          *float64  `json:"max_kw"` // max(kw_list) when non-empty
}

// Station is one physical charging location as normalized from a single
// data source. Coordinates is a WKT POINT in lon/lat order.
type Station struct {
	ID               string     `json:"id"`
	DataSource       DataSource `json:"data_source"`
	Address          Address    `json:"address"`
	Charging         Charging   `json:"charging"`
	Operator         *string    `json:"operator"`
	Payment          *string    `json:"payment"`
	Authentication   *string    `json:"authentication"`
	Coordinates      string     `json:"coordinates"`
	RawData          string     `json:"raw_data"`
	IsDuplicate      bool       `json:"is_duplicate"`
	MergedAttributes bool       `json:"merged_attributes"`
}

// Point parses the station's WKT coordinates and returns (lon, lat).
func (s *Station) Point() (float64, float64, error) {
	g, err := wkt.Unmarshal(s.Coordinates)
	if err != nil {
		return 0, 0, eris.Wrapf(err, "model: parse coordinates %q", s.Coordinates)
	}
	p, ok := g.(*geom.Point)
	if !ok {
		return 0, 0, eris.Errorf("model: coordinates %q are not a point", s.Coordinates)
	}
	return p.X(), p.Y(), nil
}

// PointWKT formats a lon/lat pair as the WKT POINT string stored on a Station.
func PointWKT(lon, lat float64) string {
	return fmt.Sprintf("POINT (%v %v)", lon, lat)
}

// HashID returns the station identifier for the given stable per-source
// fields: sha256 hex over the concatenation. Deterministic across runs.
func HashID(parts ...string) string {
	h := sha256.New()
	for _, p := range parts {
		h.Write([]byte(p))
	}
	return hex.EncodeToString(h.Sum(nil))
}

// MaxKw returns a pointer to the maximum of kwList, or nil for an empty list.
func MaxKw(kwList []float64) *float64 {
	if len(kwList) == 0 {
		return nil
	}
	maxKw := kwList[0]
	for _, kw := range kwList[1:] {
		if kw > maxKw {
			maxKw = kw
		}
	}
	return &maxKw
}

// HasDCSocket reports whether any socket type mentions DC. This is a
// plain substring check over socket names, not a physical verification.
func HasDCSocket(socketTypes []string) bool {
	for _, s := range socketTypes {
		if strings.Contains(s, "DC") {
			return true
		}
	}
	return false
}

// Mergeable reports whether the station carries enough attribute data to
// take part in duplicate detection. Records without an operator or without
// any socket type pass through the merge untouched as independent records.
func (s *Station) Mergeable() bool {
	return s.Operator != nil && len(s.Charging.SocketTypeList) > 0
}
