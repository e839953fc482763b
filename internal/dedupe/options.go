package dedupe

import (
	"os"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

// MergeStrategy selects how the surviving record of a duplicate group is built.
type MergeStrategy string

const (
	// StrategyReplace keeps one whole record from the highest-priority
	// source at the location. Default.
	StrategyReplace MergeStrategy = "replace"
	// StrategyUnion merges attribute values across the duplicate group
	// field by field. Reserved for future use, selectable by config.
	StrategyUnion MergeStrategy = "union"
)

// Weights configures the contribution of each similarity component to the
// matching score. The defaults sum to 1.0 but this is not enforced; the
// weights are free-form configuration.
type Weights struct {
	Operator float64 `yaml:"operator" mapstructure:"operator"`
	Address  float64 `yaml:"address" mapstructure:"address"`
	Distance float64 `yaml:"distance" mapstructure:"distance"`
}

// Options configures the merge engine.
type Options struct {
	// ScoreThreshold is the matching score above which (strictly) a
	// candidate is flagged as a duplicate.
	ScoreThreshold float64
	// MaxDistanceMeters bounds the candidate search radius and normalizes
	// the distance score component.
	MaxDistanceMeters float64
	// Weights for the similarity components.
	Weights Weights
	// NeighborK is the number of nearest neighbors retrieved per station.
	NeighborK int
	// Shuffle randomizes processing order using Seed, reproducing the
	// original non-deterministic resolution behavior. When false, stations
	// are processed in identifier order so runs are reproducible.
	Shuffle bool
	Seed    int64
	// Strategy selects the duplicate merge strategy.
	Strategy MergeStrategy
}

// DefaultOptions returns the merge defaults used in production.
func DefaultOptions() Options {
	return Options{
		ScoreThreshold:    0.49,
		MaxDistanceMeters: 100,
		Weights:           Weights{Operator: 0.2, Address: 0.1, Distance: 0.7},
		NeighborK:         40,
		Strategy:          StrategyReplace,
	}
}

// LoadWeights reads score weights from a YAML file.
func LoadWeights(path string) (Weights, error) {
	var w Weights
	data, err := os.ReadFile(path)
	if err != nil {
		return w, eris.Wrapf(err, "dedupe: read weights file %s", path)
	}
	if err := yaml.Unmarshal(data, &w); err != nil {
		return w, eris.Wrapf(err, "dedupe: parse weights file %s", path)
	}
	return w, nil
}
