package connector

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deepatlas/charging-cli/internal/config"
	"github.com/deepatlas/charging-cli/internal/fetcher"
	"github.com/deepatlas/charging-cli/internal/model"
)

const osmSampleElement = `{
	"type": "node",
	"id": 2898734781,
	"lat": 48.3671,
	"lon": 10.8992,
	"tags": {
		"amenity": "charging_station",
		"operator": "swa Netze GmbH",
		"capacity": "2",
		"amperage": "32",
		"voltage": "400",
		"socket:type2": "2",
		"authentication:app": "yes",
		"authentication:membership_card": "yes",
		"payment:cash": "no",
		"addr:street": "Maximilianstraße",
		"addr:housenumber": "5",
		"addr:postcode": "86150",
		"addr:city": "Augsburg",
		"addr:state": "Bayern"
	}
}`

func TestOSM_ProcessOne(t *testing.T) {
	c := NewOSM(config.OSMConfig{}, nil)
	stations, err := c.Process([]json.RawMessage{json.RawMessage(osmSampleElement)})
	require.NoError(t, err)
	require.Len(t, stations, 1)
	s := stations[0]
	assertStationInvariants(t, s)

	assert.Equal(t, model.SourceOSM, s.DataSource)
	assert.Equal(t, model.HashID("2898734781"), s.ID)
	require.NotNil(t, s.Operator)
	assert.Equal(t, "swa Netze GmbH", *s.Operator)
	require.NotNil(t, s.Authentication)
	assert.Equal(t, "app:yes;membership_card:yes", *s.Authentication)
	require.NotNil(t, s.Payment)
	assert.Equal(t, "cash:no", *s.Payment)

	assert.Equal(t, "Maximilianstraße 5", *s.Address.Street)
	assert.Equal(t, "Augsburg", *s.Address.Town)
	assert.Equal(t, "Bayern", *s.Address.State)
	assert.Equal(t, "86150", *s.Address.Postcode)
	assert.Equal(t, "DE", *s.Address.Country)

	require.NotNil(t, s.Charging.Capacity)
	assert.Equal(t, 2, *s.Charging.Capacity)
	assert.Equal(t, []float64{32}, s.Charging.AmpereList)
	assert.Equal(t, []float64{400}, s.Charging.VoltList)
	assert.Equal(t, []string{"type2"}, s.Charging.SocketTypeList)
	assert.False(t, s.Charging.DCSupport)
}

func TestOSM_IDFallsBackToCoordinates(t *testing.T) {
	el := `{"lat": 48.1, "lon": 10.2}`
	c := NewOSM(config.OSMConfig{}, nil)
	stations, err := c.Process([]json.RawMessage{json.RawMessage(el)})
	require.NoError(t, err)
	require.Len(t, stations, 1)
	assert.Equal(t, model.HashID("10.2", "48.1"), stations[0].ID)
}

func TestOSM_SkipsElementsWithoutCoordinates(t *testing.T) {
	records := []json.RawMessage{
		json.RawMessage(`{"id": 1, "tags": {"amenity": "charging_station"}}`),
		json.RawMessage(osmSampleElement),
	}
	c := NewOSM(config.OSMConfig{}, nil)
	stations, err := c.Process(records)
	require.NoError(t, err)
	assert.Len(t, stations, 1)
}

func TestParseNumberList(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want []float64
	}{
		{"empty", "", nil},
		{"single", "16", []float64{16}},
		{"semicolons", "16;32", []float64{16, 32}},
		{"mixed separators", "12;3,5", []float64{12, 3, 5}},
		{"colon and slash", "230:400/16", []float64{230, 400, 16}},
		{"stray punctuation", "250 - 1000", nil},
		{"letters", "16 A", []float64{16}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, parseNumberList(tt.in))
		})
	}
}

func TestOSM_OverpassQuery(t *testing.T) {
	c := NewOSM(config.OSMConfig{Area: "Deutschland"}, nil)
	q := c.overpassQuery()
	assert.Contains(t, q, `area[name="Deutschland"]`)
	assert.Contains(t, q, `node["amenity"="charging_station"](area)`)
	assert.Contains(t, q, `way["amenity"="charging_station"](area)`)
	assert.Contains(t, q, `rel["amenity"="charging_station"](area)`)
}

func TestOSM_Pull(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Contains(t, r.URL.Query().Get("data"), "charging_station")
		w.Write([]byte(`{"elements": [` + osmSampleElement + `]}`))
	}))
	defer srv.Close()

	f := fetcher.NewHTTPFetcher(fetcher.HTTPOptions{})
	c := NewOSM(config.OSMConfig{BaseURL: srv.URL, Area: "Deutschland"}, f)

	raw, err := c.Pull(context.Background())
	require.NoError(t, err)
	require.Len(t, raw, 1)

	stations, err := c.Process(raw)
	require.NoError(t, err)
	assert.Len(t, stations, 1)
}
