package dedupe

import (
	"github.com/deepatlas/charging-cli/internal/model"
)

// Candidate is a working-set station that sits close enough to the current
// station to be worth scoring.
type Candidate struct {
	Index          int
	DistanceMeters float64
}

// Candidates narrows the spatial neighbors of station i to viable merge
// candidates: stations not already marked duplicate and strictly closer
// than maxDistance by great-circle distance. An empty result just means
// the station has no nearby peers.
func Candidates(working []model.Station, idx *Index, lons, lats []float64, i int, maxDistance float64) []Candidate {
	neighbors := idx.Neighbors(i)

	out := make([]Candidate, 0, len(neighbors))
	for _, j := range neighbors {
		if working[j].IsDuplicate {
			continue
		}
		d := Distance(lons[i], lats[i], lons[j], lats[j])
		if d >= maxDistance {
			continue
		}
		out = append(out, Candidate{Index: j, DistanceMeters: d})
	}
	return out
}
