package dedupe

import (
	"math/rand"
	"sort"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/deepatlas/charging-cli/internal/model"
)

// MergeStats summarizes one merge run.
type MergeStats struct {
	Input               int `json:"input"`
	DroppedCoordinates  int `json:"dropped_coordinates"`
	DroppedDuplicateIDs int `json:"dropped_duplicate_ids"`
	Passthrough         int `json:"passthrough"`
	Working             int `json:"working"`
	Duplicates          int `json:"duplicates"`
	Replaced            int `json:"replaced"`
	Output              int `json:"output"`
}

// Merger deduplicates stations across data sources: nearby records that
// score as near-identical collapse into one surviving record per location.
type Merger struct {
	opts Options
}

// NewMerger builds a merger with the given options. Zero-valued knobs fall
// back to the production defaults.
func NewMerger(opts Options) *Merger {
	def := DefaultOptions()
	if opts.ScoreThreshold == 0 {
		opts.ScoreThreshold = def.ScoreThreshold
	}
	if opts.MaxDistanceMeters == 0 {
		opts.MaxDistanceMeters = def.MaxDistanceMeters
	}
	if opts.Weights == (Weights{}) {
		opts.Weights = def.Weights
	}
	if opts.NeighborK == 0 {
		opts.NeighborK = def.NeighborK
	}
	if opts.Strategy == "" {
		opts.Strategy = def.Strategy
	}
	return &Merger{opts: opts}
}

// Merge runs the full pipeline over stations from all sources and returns
// the surviving records. Records too sparse to compare (no operator or no
// socket types) skip matching entirely and are appended to the output
// unchanged.
func (m *Merger) Merge(stations []model.Station) ([]model.Station, MergeStats, error) {
	stats := MergeStats{Input: len(stations)}
	if len(stations) == 0 {
		return nil, stats, eris.New("dedupe: no stations to merge")
	}

	working, passthrough, lons, lats := m.prepare(stations, &stats)
	stats.Passthrough = len(passthrough)
	stats.Working = len(working)

	idx := NewIndex(lons, lats, m.opts.NeighborK)

	for i := range working {
		if working[i].IsDuplicate {
			continue
		}
		candidates := Candidates(working, idx, lons, lats, i, m.opts.MaxDistanceMeters)
		if len(candidates) == 0 {
			continue
		}
		duplicates := Score(&working[i], working, candidates, m.opts)
		if len(duplicates) == 0 {
			continue
		}

		res := Resolve(&working[i], working, duplicates, m.opts.Strategy)
		for _, j := range res.MarkDuplicate {
			working[j].IsDuplicate = true
			stats.Duplicates++
		}
		if res.ReplaceWith != nil {
			if lon, lat, err := res.ReplaceWith.Point(); err == nil {
				lons[i], lats[i] = lon, lat
			}
			working[i] = *res.ReplaceWith
			stats.Replaced++
		}
	}

	out := make([]model.Station, 0, len(working)+len(passthrough))
	for i := range working {
		if !working[i].IsDuplicate {
			out = append(out, working[i])
		}
	}
	out = append(out, passthrough...)
	stats.Output = len(out)

	zap.L().Info("merge finished",
		zap.Int("input", stats.Input),
		zap.Int("working", stats.Working),
		zap.Int("duplicates", stats.Duplicates),
		zap.Int("replaced", stats.Replaced),
		zap.Int("passthrough", stats.Passthrough),
		zap.Int("output", stats.Output))
	return out, stats, nil
}

// prepare builds the working set: drop records with unparseable
// coordinates, keep the first record per identifier, reset merge flags,
// and divert records too sparse to compare into the passthrough list.
// Processing order is identifier-sorted unless a seeded shuffle is
// requested.
func (m *Merger) prepare(stations []model.Station, stats *MergeStats) (working, passthrough []model.Station, lons, lats []float64) {
	seen := make(map[string]struct{}, len(stations))
	type located struct {
		station  model.Station
		lon, lat float64
	}
	kept := make([]located, 0, len(stations))

	for _, s := range stations {
		lon, lat, err := s.Point()
		if err != nil {
			zap.L().Debug("dropping station with bad coordinates",
				zap.String("id", s.ID), zap.String("coordinates", s.Coordinates))
			stats.DroppedCoordinates++
			continue
		}
		if _, dup := seen[s.ID]; dup {
			stats.DroppedDuplicateIDs++
			continue
		}
		seen[s.ID] = struct{}{}
		s.IsDuplicate = false
		s.MergedAttributes = false
		if !s.Mergeable() {
			passthrough = append(passthrough, s)
			continue
		}
		kept = append(kept, located{station: s, lon: lon, lat: lat})
	}

	sort.Slice(kept, func(a, b int) bool { return kept[a].station.ID < kept[b].station.ID })
	if m.opts.Shuffle {
		rng := rand.New(rand.NewSource(m.opts.Seed))
		rng.Shuffle(len(kept), func(a, b int) { kept[a], kept[b] = kept[b], kept[a] })
	}

	working = make([]model.Station, len(kept))
	lons = make([]float64, len(kept))
	lats = make([]float64, len(kept))
	for i, l := range kept {
		working[i] = l.station
		lons[i] = l.lon
		lats[i] = l.lat
	}
	return working, passthrough, lons, lats
}
