package dedupe

import (
	"strings"

	fuzzy "github.com/paul-mannino/go-fuzzywuzzy"
	"go.uber.org/zap"

	"github.com/deepatlas/charging-cli/internal/model"
)

// ScoredCandidate is a candidate whose similarity to the current station
// crossed the duplicate threshold.
type ScoredCandidate struct {
	Candidate
	Score float64
}

// Score rates each candidate against the current station and returns the
// ones whose matching score strictly exceeds the threshold.
//
// matching_score = w_op*operator_match + w_addr*address_match + w_dist*(1 - d/maxDistance)
//
// The distance term is deliberately left unclamped; candidates arrive
// pre-filtered to d < maxDistance so it stays in (0, 1] anyway, and
// clamping would silently mask a broken selector.
func Score(current *model.Station, working []model.Station, candidates []Candidate, opts Options) []ScoredCandidate {
	flagged := make([]ScoredCandidate, 0, len(candidates))
	for _, c := range candidates {
		other := &working[c.Index]

		score := opts.Weights.Operator*operatorMatch(current, other) +
			opts.Weights.Address*addressMatch(current, other) +
			opts.Weights.Distance*(1-c.DistanceMeters/opts.MaxDistanceMeters)

		if score > opts.ScoreThreshold {
			zap.L().Debug("duplicate flagged",
				zap.String("current", current.ID),
				zap.String("candidate", other.ID),
				zap.Float64("score", score),
				zap.Float64("distance_m", c.DistanceMeters))
			flagged = append(flagged, ScoredCandidate{Candidate: c, Score: score})
		}
	}
	return flagged
}

// operatorMatch is the normalized Ratcliff-Obershelp similarity of the two
// operator names, or 0 when either is missing. fuzzy.Ratio rounds to a
// whole percent, so the similarity is quantized to 0.01 steps; with the
// weights in play that granularity sits well below the match threshold.
func operatorMatch(a, b *model.Station) float64 {
	if a.Operator == nil || b.Operator == nil {
		return 0
	}
	return float64(fuzzy.Ratio(*a.Operator, *b.Operator)) / 100
}

// addressMatch compares the street+postcode+town concatenations, with the
// same 0.01-step quantization as operatorMatch. A side with none of the
// three fields set has no comparable address, which counts as no match
// rather than a match of empty strings.
func addressMatch(a, b *model.Station) float64 {
	ka, oka := addressKey(&a.Address)
	kb, okb := addressKey(&b.Address)
	if !oka || !okb {
		return 0
	}
	return float64(fuzzy.Ratio(ka, kb)) / 100
}

func addressKey(a *model.Address) (string, bool) {
	if a.Street == nil && a.Postcode == nil && a.Town == nil {
		return "", false
	}
	var sb strings.Builder
	for _, f := range []*string{a.Street, a.Postcode, a.Town} {
		if f != nil {
			sb.WriteString(*f)
		}
	}
	return sb.String(), true
}
