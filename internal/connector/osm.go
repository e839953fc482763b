package connector

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"unicode"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/deepatlas/charging-cli/internal/config"
	"github.com/deepatlas/charging-cli/internal/fetcher"
	"github.com/deepatlas/charging-cli/internal/model"
)

// osmElement is one node/way/relation from an Overpass response.
type osmElement struct {
	ID   *int64            `json:"id"`
	Lat  any               `json:"lat"`
	Lon  any               `json:"lon"`
	Tags map[string]string `json:"tags"`
}

// OSMConnector queries charging stations from OpenStreetMap through the
// Overpass API.
type OSMConnector struct {
	cfg     config.OSMConfig
	fetcher fetcher.Fetcher
}

func NewOSM(cfg config.OSMConfig, f fetcher.Fetcher) *OSMConnector {
	return &OSMConnector{cfg: cfg, fetcher: f}
}

func (c *OSMConnector) Source() model.DataSource { return model.SourceOSM }

// overpassQuery builds the area query for amenity=charging_station nodes,
// ways and relations.
func (c *OSMConnector) overpassQuery() string {
	return fmt.Sprintf(`[out:json];
area[name=%q];
(
  node["amenity"="charging_station"](area);
  way["amenity"="charging_station"](area);
  rel["amenity"="charging_station"](area);
);
out;`, c.cfg.Area)
}

// Pull runs the Overpass query and returns the raw elements.
func (c *OSMConnector) Pull(ctx context.Context) ([]json.RawMessage, error) {
	q := url.Values{}
	q.Set("data", c.overpassQuery())

	body, err := c.fetcher.Download(ctx, c.cfg.BaseURL+"?"+q.Encode())
	if err != nil {
		return nil, eris.Wrap(err, "osm: run overpass query")
	}
	defer body.Close() //nolint:errcheck

	resp, err := fetcher.DecodeJSONObject[struct {
		Elements []json.RawMessage `json:"elements"`
	}](body)
	if err != nil {
		return nil, eris.Wrap(err, "osm: decode overpass response")
	}

	zap.L().Info("pulled raw records", zap.String("source", "OSM"), zap.Int("count", len(resp.Elements)))
	return resp.Elements, nil
}

// Process normalizes raw Overpass elements. Records that cannot be
// normalized are logged and skipped.
func (c *OSMConnector) Process(raw []json.RawMessage) ([]model.Station, error) {
	stations := make([]model.Station, 0, len(raw))
	for _, rec := range raw {
		station, err := c.processOne(rec)
		if err != nil {
			zap.L().Error("skipping station", zap.String("source", "OSM"), zap.Error(err))
			continue
		}
		stations = append(stations, *station)
	}
	return stations, nil
}

func (c *OSMConnector) processOne(rec json.RawMessage) (*model.Station, error) {
	var el osmElement
	if err := json.Unmarshal(rec, &el); err != nil {
		return nil, eris.Wrap(err, "osm: unmarshal element")
	}

	lat, err := parseCoordinate(el.Lat)
	if err != nil {
		return nil, err
	}
	lon, err := parseCoordinate(el.Lon)
	if err != nil {
		return nil, err
	}

	var id string
	if el.ID != nil {
		id = model.HashID(strconv.FormatInt(*el.ID, 10))
	} else {
		id = model.HashID(fmt.Sprintf("%v", el.Lon), fmt.Sprintf("%v", el.Lat))
	}

	var operator *string
	if op, ok := el.Tags["operator"]; ok {
		operator = strPtr(nfc(op))
	}

	station := model.Station{
		ID:             id,
		DataSource:     model.SourceOSM,
		Address:        c.address(el.Tags),
		Charging:       c.charging(el.Tags),
		Operator:       operator,
		Payment:        tagGroupString(el.Tags, "payment"),
		Authentication: tagGroupString(el.Tags, "authentication"),
		Coordinates:    model.PointWKT(lon, lat),
		RawData:        compactJSON(rec),
	}
	return &station, nil
}

func (c *OSMConnector) address(tags map[string]string) model.Address {
	addr := model.Address{Country: strPtr("DE")}
	if country, ok := tags["addr:country"]; ok {
		addr.Country = strPtr(country)
	}
	if street, ok := tags["addr:street"]; ok {
		if houseNumber, ok := tags["addr:housenumber"]; ok {
			street += " " + houseNumber
		}
		addr.Street = strPtr(nfc(street))
	}
	if postcode, ok := tags["addr:postcode"]; ok {
		addr.Postcode = cleanPostcode(postcode)
	}
	if town, ok := tags["addr:city"]; ok {
		addr.Town = cleanPlaceName(town)
	}
	if state, ok := tags["addr:state"]; ok {
		addr.State = cleanPlaceName(state)
	}
	return addr
}

func (c *OSMConnector) charging(tags map[string]string) model.Charging {
	var ch model.Charging
	if capacity, ok := tags["capacity"]; ok {
		if n, err := strconv.Atoi(capacity); err == nil {
			ch.Capacity = &n
		} else {
			zap.L().Warn("osm: unparseable capacity", zap.String("capacity", capacity))
		}
	}
	ch.AmpereList = parseNumberList(tags["amperage"])
	ch.VoltList = parseNumberList(tags["voltage"])

	for k := range tags {
		if strings.HasPrefix(k, "socket:") {
			ch.SocketTypeList = append(ch.SocketTypeList, strings.TrimPrefix(k, "socket:"))
		}
	}
	sort.Strings(ch.SocketTypeList)
	ch.DCSupport = model.HasDCSocket(ch.SocketTypeList)
	return ch
}

// parseNumberList parses tag values like "16" or "12;3,5" where colon,
// comma, semicolon and slash all separate entries. Any other punctuation
// makes the whole value unusable.
func parseNumberList(s string) []float64 {
	if s == "" {
		return nil
	}
	for _, r := range s {
		if unicode.IsPunct(r) || unicode.IsSymbol(r) {
			switch r {
			case ':', ',', ';', '/':
			default:
				zap.L().Warn("osm: unhandled punctuation in number list", zap.String("value", s))
				return nil
			}
		}
	}
	normalized := strings.FieldsFunc(s, func(r rune) bool {
		return r == ':' || r == ',' || r == ';' || r == '/'
	})
	var out []float64
	for _, chunk := range normalized {
		var digits strings.Builder
		for _, r := range chunk {
			if unicode.IsDigit(r) {
				digits.WriteRune(r)
			}
		}
		if digits.Len() == 0 {
			continue
		}
		f, err := strconv.ParseFloat(digits.String(), 64)
		if err != nil {
			continue
		}
		out = append(out, f)
	}
	return out
}

// tagGroupString flattens a tag namespace ("payment:*", "authentication:*")
// into "key:value" pairs joined by semicolons, sorted for stable output.
func tagGroupString(tags map[string]string, prefix string) *string {
	var keys []string
	for k := range tags {
		if strings.HasPrefix(k, prefix+":") {
			keys = append(keys, k)
		}
	}
	if len(keys) == 0 {
		return nil
	}
	sort.Strings(keys)
	pairs := make([]string, 0, len(keys))
	for _, k := range keys {
		pairs = append(pairs, strings.TrimPrefix(k, prefix+":")+":"+tags[k])
	}
	return strPtr(nfc(joinSemicolon(pairs)))
}
