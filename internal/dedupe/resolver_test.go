package dedupe

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deepatlas/charging-cli/internal/model"
)

func TestResolve_BNACurrentIsNeverReplaced(t *testing.T) {
	current := testStation("bna", model.SourceBNA, 10, 50)
	working := []model.Station{current, testStation("ocm", model.SourceOCM, 10, 50)}
	dups := []ScoredCandidate{{Candidate: Candidate{Index: 1, DistanceMeters: 5}, Score: 0.9}}

	res := Resolve(&current, working, dups, StrategyReplace)
	assert.Equal(t, []int{1}, res.MarkDuplicate)
	assert.Nil(t, res.ReplaceWith)
}

func TestResolve_HighestPrioritySourceWins(t *testing.T) {
	current := testStation("osm", model.SourceOSM, 10, 50)
	working := []model.Station{
		current,
		testStation("ocm", model.SourceOCM, 10, 50),
		testStation("bna", model.SourceBNA, 10, 50),
	}
	dups := []ScoredCandidate{
		{Candidate: Candidate{Index: 1, DistanceMeters: 5}, Score: 0.9},
		{Candidate: Candidate{Index: 2, DistanceMeters: 8}, Score: 0.8},
	}

	res := Resolve(&current, working, dups, StrategyReplace)
	assert.ElementsMatch(t, []int{1, 2}, res.MarkDuplicate)
	require.NotNil(t, res.ReplaceWith)
	assert.Equal(t, "bna", res.ReplaceWith.ID)
	assert.True(t, res.ReplaceWith.MergedAttributes)
	assert.False(t, res.ReplaceWith.IsDuplicate)
}

func TestResolve_LowerPriorityDuplicateStillReplaces(t *testing.T) {
	// An OCM station with only an OSM duplicate: the OSM record takes over
	// the slot. The duplicate group collapses either way.
	current := testStation("ocm", model.SourceOCM, 10, 50)
	working := []model.Station{current, testStation("osm", model.SourceOSM, 10, 50)}
	dups := []ScoredCandidate{{Candidate: Candidate{Index: 1, DistanceMeters: 5}, Score: 0.9}}

	res := Resolve(&current, working, dups, StrategyReplace)
	require.NotNil(t, res.ReplaceWith)
	assert.Equal(t, "osm", res.ReplaceWith.ID)
}

func TestResolve_AtMostOneReplacement(t *testing.T) {
	current := testStation("ocm", model.SourceOCM, 10, 50)
	working := []model.Station{
		current,
		testStation("bna-1", model.SourceBNA, 10, 50),
		testStation("bna-2", model.SourceBNA, 10, 50),
	}
	dups := []ScoredCandidate{
		{Candidate: Candidate{Index: 1, DistanceMeters: 5}, Score: 0.9},
		{Candidate: Candidate{Index: 2, DistanceMeters: 6}, Score: 0.85},
	}

	res := Resolve(&current, working, dups, StrategyReplace)
	require.NotNil(t, res.ReplaceWith)
	assert.Equal(t, "bna-1", res.ReplaceWith.ID, "first duplicate of the winning source takes the slot")
	assert.ElementsMatch(t, []int{1, 2}, res.MarkDuplicate)
}

func TestUnionAttributes(t *testing.T) {
	current := testStation("a", model.SourceOCM, 10, 50)
	current.Payment = strPtr("cash")
	current.Charging.SocketTypeList = []string{"AC Typ 2"}
	current.Charging.AmpereList = []float64{16}
	capacity := 2

	other := testStation("b", model.SourceOSM, 10, 50)
	other.Operator = strPtr("EnBW")
	other.Payment = strPtr("app;cash")
	other.Charging.SocketTypeList = []string{"AC Typ 2", "DC Kupplung Combo"}
	other.Charging.AmpereList = []float64{16, 32}
	other.Charging.Capacity = &capacity

	working := []model.Station{current, other}
	dups := []ScoredCandidate{{Candidate: Candidate{Index: 1, DistanceMeters: 5}, Score: 0.9}}

	merged := UnionAttributes(&current, working, dups)
	require.NotNil(t, merged.Operator)
	assert.Equal(t, "EnBW;Stadtwerke Augsburg", *merged.Operator)
	require.NotNil(t, merged.Payment)
	assert.Equal(t, "app;cash", *merged.Payment)
	assert.Equal(t, []string{"AC Typ 2", "DC Kupplung Combo"}, merged.Charging.SocketTypeList)
	assert.True(t, merged.Charging.DCSupport)
	assert.Equal(t, []float64{16, 32}, merged.Charging.AmpereList)
	require.NotNil(t, merged.Charging.Capacity)
	assert.Equal(t, 2, *merged.Charging.Capacity)
	assert.True(t, merged.MergedAttributes)
	assert.False(t, merged.IsDuplicate)
}
