package dedupe

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deepatlas/charging-cli/internal/model"
)

func strPtr(s string) *string { return &s }

func testStation(id string, source model.DataSource, lon, lat float64) model.Station {
	return model.Station{
		ID:          id,
		DataSource:  source,
		Operator:    strPtr("Stadtwerke Augsburg"),
		Coordinates: model.PointWKT(lon, lat),
		Charging:    model.Charging{SocketTypeList: []string{"AC Typ 2"}},
	}
}

func TestOperatorMatch(t *testing.T) {
	a := testStation("a", model.SourceBNA, 10, 50)
	b := testStation("b", model.SourceOCM, 10, 50)

	assert.Equal(t, 1.0, operatorMatch(&a, &b))

	b.Operator = strPtr("swa Netze")
	assert.Less(t, operatorMatch(&a, &b), 1.0)
	assert.Greater(t, operatorMatch(&a, &b), 0.0)

	b.Operator = nil
	assert.Zero(t, operatorMatch(&a, &b))
	assert.Zero(t, operatorMatch(&b, &a))
}

func TestOperatorMatch_QuantizedToWholePercent(t *testing.T) {
	a := testStation("a", model.SourceBNA, 10, 50)
	b := testStation("b", model.SourceOCM, 10, 50)
	b.Operator = strPtr("Stadtwerke Augsburg Energie GmbH")

	m := operatorMatch(&a, &b)
	assert.Greater(t, m, 0.0)
	assert.Less(t, m, 1.0)
	// The similarity comes out of an integer percent, so it lands
	// exactly on a 0.01 step.
	assert.InDelta(t, math.Round(m*100)/100, m, 1e-12)
}

func TestAddressMatch(t *testing.T) {
	a := testStation("a", model.SourceBNA, 10, 50)
	b := testStation("b", model.SourceOCM, 10, 50)

	// Neither side has any address field.
	assert.Zero(t, addressMatch(&a, &b))

	a.Address = model.Address{Street: strPtr("Maximilianstr. 1"), Postcode: strPtr("86150"), Town: strPtr("Augsburg")}
	assert.Zero(t, addressMatch(&a, &b), "one-sided address is no match")

	b.Address = a.Address
	assert.Equal(t, 1.0, addressMatch(&a, &b))

	b.Address.Street = strPtr("Maximilianstrasse 1")
	got := addressMatch(&a, &b)
	assert.Greater(t, got, 0.5)
	assert.Less(t, got, 1.0)
}

func TestScore_MonotonicInDistance(t *testing.T) {
	current := testStation("a", model.SourceBNA, 10, 50)
	working := []model.Station{current, testStation("b", model.SourceOCM, 10, 50)}
	opts := DefaultOptions()

	near := Score(&current, working, []Candidate{{Index: 1, DistanceMeters: 10}}, opts)
	far := Score(&current, working, []Candidate{{Index: 1, DistanceMeters: 90}}, opts)
	require.Len(t, near, 1)
	require.Len(t, far, 1)
	assert.Greater(t, near[0].Score, far[0].Score)
}

func TestScore_ThresholdIsStrict(t *testing.T) {
	current := testStation("a", model.SourceBNA, 10, 50)
	other := testStation("b", model.SourceOCM, 10, 50)
	other.Operator = nil
	working := []model.Station{current, other}

	opts := DefaultOptions()
	// Distance component alone: 0.7 * (1 - 30/100) = 0.49, exactly at the
	// threshold. Strict comparison must not flag it.
	flagged := Score(&current, working, []Candidate{{Index: 1, DistanceMeters: 30}}, opts)
	assert.Empty(t, flagged)

	flagged = Score(&current, working, []Candidate{{Index: 1, DistanceMeters: 29}}, opts)
	require.Len(t, flagged, 1)
	assert.Greater(t, flagged[0].Score, opts.ScoreThreshold)
}

func TestCandidates_Exclusions(t *testing.T) {
	// 0.0005 deg of latitude is roughly 56 m, 0.002 deg roughly 222 m.
	working := []model.Station{
		testStation("query", model.SourceBNA, 10.0, 50.0),
		testStation("near", model.SourceOCM, 10.0, 50.0005),
		testStation("near-dup", model.SourceOCM, 10.0, 50.0004),
		testStation("far", model.SourceOSM, 10.0, 50.002),
	}
	working[2].IsDuplicate = true

	lons := []float64{10.0, 10.0, 10.0, 10.0}
	lats := []float64{50.0, 50.0005, 50.0004, 50.002}
	idx := NewIndex(lons, lats, 40)

	got := Candidates(working, idx, lons, lats, 0, 100)
	require.Len(t, got, 1)
	assert.Equal(t, 1, got[0].Index)
	assert.Less(t, got[0].DistanceMeters, 100.0)

	for _, c := range got {
		assert.False(t, working[c.Index].IsDuplicate)
		assert.NotEqual(t, 0, c.Index, "query station must not be its own candidate")
	}
}

func TestIndex_NeighborCap(t *testing.T) {
	lons := []float64{10, 10.001, 10.002, 10.003, 10.004}
	lats := []float64{50, 50, 50, 50, 50}
	idx := NewIndex(lons, lats, 2)

	got := idx.Neighbors(0)
	require.Len(t, got, 2)
	assert.ElementsMatch(t, []int{1, 2}, got)
}
