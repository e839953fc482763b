package connector

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"sort"
	"strconv"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/deepatlas/charging-cli/internal/config"
	"github.com/deepatlas/charging-cli/internal/fetcher"
	"github.com/deepatlas/charging-cli/internal/model"
)

// ocmPOI is the subset of the OpenChargeMap poi schema we consume.
type ocmPOI struct {
	AddressInfo  *ocmAddressInfo  `json:"AddressInfo"`
	OperatorInfo *ocmOperatorInfo `json:"OperatorInfo"`
	UsageType    map[string]any   `json:"UsageType"`
	UsageCost    *string          `json:"UsageCost"`
	Connections  []ocmConnection  `json:"Connections"`
	PointCount   *int             `json:"NumberOfPoints"`
}

type ocmAddressInfo struct {
	ID              *int64      `json:"ID"`
	Street          *string     `json:"street"`
	Town            *string     `json:"Town"`
	StateOrProvince *string     `json:"StateOrProvince"`
	Postcode        *string     `json:"Postcode"`
	Country         *ocmCountry `json:"Country"`
	Latitude        any         `json:"Latitude"`
	Longitude       any         `json:"Longitude"`
}

type ocmCountry struct {
	ISOCode *string `json:"ISOCode"`
}

type ocmOperatorInfo struct {
	Title *string `json:"Title"`
}

type ocmConnection struct {
	CurrentType *struct {
		Title *string `json:"Title"`
	} `json:"CurrentType"`
	PowerKW  *float64 `json:"PowerKW"`
	Amps     *float64 `json:"Amps"`
	Voltage  *float64 `json:"Voltage"`
	Quantity *int     `json:"Quantity"`
}

// OCMConnector pulls the OpenChargeMap poi API.
type OCMConnector struct {
	cfg     config.OCMConfig
	fetcher fetcher.Fetcher
}

func NewOCM(cfg config.OCMConfig, f fetcher.Fetcher) *OCMConnector {
	return &OCMConnector{cfg: cfg, fetcher: f}
}

func (c *OCMConnector) Source() model.DataSource { return model.SourceOCM }

// Pull downloads the full poi list for the configured country.
func (c *OCMConnector) Pull(ctx context.Context) ([]json.RawMessage, error) {
	q := url.Values{}
	q.Set("opendata", "true")
	q.Set("output", "json")
	q.Set("compact", "false")
	q.Set("countrycode", c.cfg.CountryCode)
	q.Set("maxresults", strconv.Itoa(c.cfg.MaxResults))
	if c.cfg.APIKey != "" {
		q.Set("key", c.cfg.APIKey)
	}

	body, err := c.fetcher.Download(ctx, c.cfg.BaseURL+"?"+q.Encode())
	if err != nil {
		return nil, eris.Wrap(err, "ocm: download poi list")
	}
	defer body.Close() //nolint:errcheck

	var raw []json.RawMessage
	pois, errs := fetcher.DecodeJSONArray[json.RawMessage](ctx, body)
	for poi := range pois {
		raw = append(raw, poi)
	}
	if err := <-errs; err != nil {
		return nil, eris.Wrap(err, "ocm: decode poi list")
	}

	zap.L().Info("pulled raw records", zap.String("source", "OCM"), zap.Int("count", len(raw)))
	return raw, nil
}

// Process normalizes raw poi records. Records that cannot be normalized
// are logged and skipped.
func (c *OCMConnector) Process(raw []json.RawMessage) ([]model.Station, error) {
	stations := make([]model.Station, 0, len(raw))
	for _, rec := range raw {
		station, err := c.processOne(rec)
		if err != nil {
			zap.L().Error("skipping station", zap.String("source", "OCM"), zap.Error(err))
			continue
		}
		stations = append(stations, *station)
	}
	return stations, nil
}

func (c *OCMConnector) processOne(rec json.RawMessage) (*model.Station, error) {
	var poi ocmPOI
	if err := json.Unmarshal(rec, &poi); err != nil {
		return nil, eris.Wrap(err, "ocm: unmarshal poi")
	}
	if poi.AddressInfo == nil {
		return nil, eris.New("ocm: poi has no address info")
	}

	lat, err := parseCoordinate(poi.AddressInfo.Latitude)
	if err != nil {
		return nil, err
	}
	lon, err := parseCoordinate(poi.AddressInfo.Longitude)
	if err != nil {
		return nil, err
	}

	var id string
	if poi.AddressInfo.ID != nil {
		id = model.HashID(strconv.FormatInt(*poi.AddressInfo.ID, 10))
	} else {
		id = model.HashID(fmt.Sprintf("%v", poi.AddressInfo.Longitude), fmt.Sprintf("%v", poi.AddressInfo.Latitude))
	}

	var operator *string
	if poi.OperatorInfo != nil {
		operator = nfcPtr(poi.OperatorInfo.Title)
	}

	station := model.Station{
		ID:             id,
		DataSource:     model.SourceOCM,
		Address:        c.address(poi.AddressInfo),
		Charging:       c.charging(&poi),
		Operator:       operator,
		Payment:        nfcPtr(poi.UsageCost),
		Authentication: usageTypeString(poi.UsageType),
		Coordinates:    model.PointWKT(lon, lat),
		RawData:        compactJSON(rec),
	}
	return &station, nil
}

func (c *OCMConnector) address(info *ocmAddressInfo) model.Address {
	addr := model.Address{Street: nfcPtr(info.Street)}
	if info.Postcode != nil {
		addr.Postcode = cleanPostcode(*info.Postcode)
	}
	if info.Town != nil {
		addr.Town = cleanPlaceName(*info.Town)
	}
	if info.StateOrProvince != nil {
		addr.State = cleanPlaceName(*info.StateOrProvince)
	}
	if info.Country != nil {
		addr.Country = info.Country.ISOCode
	}
	return addr
}

// charging expands each connection by its Quantity: a connection entry
// with Quantity 4 contributes four identical values to the metric lists.
func (c *OCMConnector) charging(poi *ocmPOI) model.Charging {
	ch := model.Charging{Capacity: poi.PointCount}
	for _, conn := range poi.Connections {
		if conn.CurrentType != nil && conn.CurrentType.Title != nil {
			ch.SocketTypeList = append(ch.SocketTypeList, nfc(*conn.CurrentType.Title))
		}
		quantity := 1
		if conn.Quantity != nil {
			quantity = *conn.Quantity
		}
		for range quantity {
			if conn.PowerKW != nil {
				ch.KwList = append(ch.KwList, *conn.PowerKW)
			}
			if conn.Amps != nil {
				ch.AmpereList = append(ch.AmpereList, *conn.Amps)
			}
			if conn.Voltage != nil {
				ch.VoltList = append(ch.VoltList, *conn.Voltage)
			}
		}
	}
	ch.DCSupport = model.HasDCSocket(ch.SocketTypeList)
	ch.MaxKw = model.MaxKw(ch.KwList)
	if len(ch.KwList) > 0 {
		var total float64
		for _, kw := range ch.KwList {
			total += kw
		}
		ch.TotalKw = &total
	}
	return ch
}

// usageTypeString flattens the poi UsageType object into "key:value"
// pairs joined by semicolons, sorted for stable output.
func usageTypeString(usage map[string]any) *string {
	if usage == nil {
		return nil
	}
	keys := make([]string, 0, len(usage))
	for k := range usage {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	pairs := make([]string, 0, len(keys))
	for _, k := range keys {
		pairs = append(pairs, fmt.Sprintf("%s:%v", k, usage[k]))
	}
	joined := nfc(joinSemicolon(pairs))
	return &joined
}
