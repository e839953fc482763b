package fetcher

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testPOI mirrors the shape of an Open Charge Map poi element.
type testPOI struct {
	ID          int `json:"ID"`
	AddressInfo struct {
		Town string `json:"Town"`
	} `json:"AddressInfo"`
}

func collectPOIs(t *testing.T, input string) ([]testPOI, error) {
	t.Helper()
	items, errs := DecodeJSONArray[testPOI](context.Background(), strings.NewReader(input))
	var pois []testPOI
	for poi := range items {
		pois = append(pois, poi)
	}
	return pois, <-errs
}

func TestDecodeJSONArray(t *testing.T) {
	input := `[
		{"ID": 1, "AddressInfo": {"Town": "Augsburg"}},
		{"ID": 2, "AddressInfo": {"Town": "Berlin"}},
		{"ID": 3, "AddressInfo": {"Town": "Köln"}}
	]`

	pois, err := collectPOIs(t, input)
	require.NoError(t, err)
	require.Len(t, pois, 3)
	assert.Equal(t, 1, pois[0].ID)
	assert.Equal(t, "Augsburg", pois[0].AddressInfo.Town)
	assert.Equal(t, "Köln", pois[2].AddressInfo.Town)
}

func TestDecodeJSONArray_EmptyArray(t *testing.T) {
	pois, err := collectPOIs(t, `[]`)
	require.NoError(t, err)
	assert.Empty(t, pois)
}

func TestDecodeJSONArray_EmptyInput(t *testing.T) {
	pois, err := collectPOIs(t, "")
	require.NoError(t, err)
	assert.Empty(t, pois)
}

func TestDecodeJSONArray_NotAnArray(t *testing.T) {
	_, err := collectPOIs(t, `{"ID": 1}`)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not an array")
}

func TestDecodeJSONArray_MalformedElement(t *testing.T) {
	pois, err := collectPOIs(t, `[{"ID": 1}, {"ID": }]`)
	require.Error(t, err)
	// The element before the broken one still comes through.
	assert.Len(t, pois, 1)
}

func TestDecodeJSONArray_Cancelled(t *testing.T) {
	var sb strings.Builder
	sb.WriteString("[")
	for i := range 10000 {
		if i > 0 {
			sb.WriteString(",")
		}
		sb.WriteString(`{"ID": 1}`)
	}
	sb.WriteString("]")

	ctx, cancel := context.WithCancel(context.Background())
	items, errs := DecodeJSONArray[testPOI](ctx, strings.NewReader(sb.String()))

	seen := 0
	for range items {
		seen++
		if seen == 5 {
			cancel()
			break
		}
	}
	for range items { //nolint:revive // drain
	}
	if err := <-errs; err != nil {
		assert.Contains(t, err.Error(), "cancelled")
	}
	cancel()
}

func TestDecodeJSONObject(t *testing.T) {
	type overpassResponse struct {
		Version  float64          `json:"version"`
		Elements []map[string]any `json:"elements"`
	}

	resp, err := DecodeJSONObject[overpassResponse](strings.NewReader(
		`{"version": 0.6, "elements": [{"type": "node", "id": 42}]}`))
	require.NoError(t, err)
	assert.InDelta(t, 0.6, resp.Version, 1e-9)
	require.Len(t, resp.Elements, 1)
	assert.Equal(t, "node", resp.Elements[0]["type"])
}

func TestDecodeJSONObject_Invalid(t *testing.T) {
	_, err := DecodeJSONObject[testPOI](strings.NewReader(`not json`))
	require.Error(t, err)
}
