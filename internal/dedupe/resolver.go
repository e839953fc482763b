package dedupe

import (
	"sort"
	"strconv"
	"strings"

	"github.com/deepatlas/charging-cli/internal/model"
)

// Resolution describes what the merge loop should do with the current
// station and its flagged duplicates. Returning instructions instead of
// mutating the working set keeps the priority policy testable in
// isolation.
type Resolution struct {
	// MarkDuplicate lists the working-set indices to flag as duplicates.
	MarkDuplicate []int
	// ReplaceWith, when non-nil, is the record that takes over the current
	// station's slot. Nil means the current record survives as-is.
	ReplaceWith *model.Station
}

// Resolve applies the source-trust policy BNA > OCM > OSM to one station
// and its duplicates. Every duplicate is marked; a BNA current record is
// never displaced; any other current record is replaced wholesale by the
// first duplicate of the most trusted source present, flagged
// merged_attributes. At most one replacement happens per call.
func Resolve(current *model.Station, working []model.Station, duplicates []ScoredCandidate, strategy MergeStrategy) Resolution {
	res := Resolution{MarkDuplicate: make([]int, 0, len(duplicates))}
	for _, d := range duplicates {
		res.MarkDuplicate = append(res.MarkDuplicate, d.Index)
	}

	if strategy == StrategyUnion {
		merged := UnionAttributes(current, working, duplicates)
		res.ReplaceWith = &merged
		return res
	}

	if current.DataSource == model.SourceBNA {
		return res
	}
	for _, source := range model.Sources {
		for _, d := range duplicates {
			winner := working[d.Index]
			if winner.DataSource != source {
				continue
			}
			winner.IsDuplicate = false
			winner.MergedAttributes = true
			res.ReplaceWith = &winner
			return res
		}
	}
	return res
}

// UnionAttributes folds the attribute values of all duplicates into a copy
// of the current record: string attributes become semicolon-joined value
// sets, list attributes become set unions, capacity takes the maximum.
// Selectable via Options.Strategy but not the default.
func UnionAttributes(current *model.Station, working []model.Station, duplicates []ScoredCandidate) model.Station {
	merged := *current
	group := make([]*model.Station, 0, len(duplicates)+1)
	group = append(group, current)
	for _, d := range duplicates {
		group = append(group, &working[d.Index])
	}

	merged.Operator = unionStrings(group, func(s *model.Station) *string { return s.Operator })
	merged.Payment = unionStrings(group, func(s *model.Station) *string { return s.Payment })
	merged.Authentication = unionStrings(group, func(s *model.Station) *string { return s.Authentication })

	socketSet := map[string]struct{}{}
	sockets := make([]string, 0)
	for _, s := range group {
		for _, t := range s.Charging.SocketTypeList {
			if _, seen := socketSet[t]; seen {
				continue
			}
			socketSet[t] = struct{}{}
			sockets = append(sockets, t)
		}
	}
	merged.Charging.SocketTypeList = sockets
	merged.Charging.DCSupport = model.HasDCSocket(sockets)
	merged.Charging.AmpereList = unionFloats(group, func(s *model.Station) []float64 { return s.Charging.AmpereList })
	merged.Charging.VoltList = unionFloats(group, func(s *model.Station) []float64 { return s.Charging.VoltList })

	for _, s := range group {
		if s.Charging.Capacity == nil {
			continue
		}
		if merged.Charging.Capacity == nil || *s.Charging.Capacity > *merged.Charging.Capacity {
			capacity := *s.Charging.Capacity
			merged.Charging.Capacity = &capacity
		}
	}

	merged.MergedAttributes = true
	merged.IsDuplicate = false
	return merged
}

// unionStrings collects the distinct semicolon-separated values of one
// string attribute across the group, sorted for stable output.
func unionStrings(group []*model.Station, field func(*model.Station) *string) *string {
	set := map[string]struct{}{}
	for _, s := range group {
		v := field(s)
		if v == nil {
			continue
		}
		for _, part := range strings.Split(*v, ";") {
			if part = strings.TrimSpace(part); part != "" {
				set[part] = struct{}{}
			}
		}
	}
	if len(set) == 0 {
		return nil
	}
	values := make([]string, 0, len(set))
	for v := range set {
		values = append(values, v)
	}
	sort.Strings(values)
	joined := strings.Join(values, ";")
	return &joined
}

func unionFloats(group []*model.Station, field func(*model.Station) []float64) []float64 {
	set := map[string]struct{}{}
	out := make([]float64, 0)
	for _, s := range group {
		for _, v := range field(s) {
			key := strconv.FormatFloat(v, 'g', -1, 64)
			if _, seen := set[key]; seen {
				continue
			}
			set[key] = struct{}{}
			out = append(out, v)
		}
	}
	if len(out) == 0 {
		return nil
	}
	sort.Float64s(out)
	return out
}
