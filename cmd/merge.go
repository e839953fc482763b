package main

import (
	"encoding/json"
	"fmt"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/deepatlas/charging-cli/internal/dedupe"
	"github.com/deepatlas/charging-cli/internal/model"
)

var (
	mergeThreshold   float64
	mergeMaxDistance float64
	mergeWeightsFile string
	mergeShuffle     bool
	mergeSeed        int64
)

var mergeCmd = &cobra.Command{
	Use:   "merge",
	Short: "Merge normalized stations across sources, flagging duplicates",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		if err := cfg.Validate("merge"); err != nil {
			return err
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		opts, err := mergeOptions(cmd)
		if err != nil {
			return err
		}

		// A load failure degrades to an empty working set; the engine then
		// rejects the empty input rather than silently merging nothing.
		stations, err := st.LoadStations(ctx)
		if err != nil {
			zap.L().Error("loading stations failed, continuing with no data", zap.Error(err))
			stations = nil
		}

		merged, stats, err := dedupe.NewMerger(opts).Merge(stations)
		if err != nil {
			return err
		}

		if err := st.SaveMerged(ctx, merged); err != nil {
			return eris.Wrap(err, "save merged stations")
		}
		mergeSummary(merged)

		out, err := json.MarshalIndent(stats, "", "  ")
		if err != nil {
			return eris.Wrap(err, "marshal merge stats")
		}
		fmt.Println(string(out))
		return nil
	},
}

// mergeOptions builds engine options from config, with flags overriding
// when set on the command line.
func mergeOptions(cmd *cobra.Command) (dedupe.Options, error) {
	opts := dedupe.Options{
		ScoreThreshold:    cfg.Merge.ScoreThreshold,
		MaxDistanceMeters: cfg.Merge.MaxDistanceMeters,
		NeighborK:         cfg.Merge.NeighborK,
		Strategy:          dedupe.MergeStrategy(cfg.Merge.Strategy),
		Shuffle:           cfg.Merge.Shuffle,
		Seed:              cfg.Merge.Seed,
		Weights: dedupe.Weights{
			Operator: cfg.Merge.Weights.Operator,
			Address:  cfg.Merge.Weights.Address,
			Distance: cfg.Merge.Weights.Distance,
		},
	}

	flags := cmd.Flags()
	if flags.Changed("threshold") {
		opts.ScoreThreshold = mergeThreshold
	}
	if flags.Changed("max-distance") {
		opts.MaxDistanceMeters = mergeMaxDistance
	}
	if flags.Changed("shuffle") {
		opts.Shuffle = mergeShuffle
	}
	if flags.Changed("seed") {
		opts.Seed = mergeSeed
	}
	if mergeWeightsFile != "" {
		w, err := dedupe.LoadWeights(mergeWeightsFile)
		if err != nil {
			return opts, err
		}
		opts.Weights = w
	}
	return opts, nil
}

// mergeSummary logs per-source counts of the merged output.
func mergeSummary(merged []model.Station) {
	bySource := map[model.DataSource]int{}
	duplicates := 0
	for i := range merged {
		if merged[i].IsDuplicate {
			duplicates++
			continue
		}
		bySource[merged[i].DataSource]++
	}
	zap.L().Info("merged map composition",
		zap.Int("bna", bySource[model.SourceBNA]),
		zap.Int("ocm", bySource[model.SourceOCM]),
		zap.Int("osm", bySource[model.SourceOSM]),
		zap.Int("duplicates", duplicates),
	)
}

func init() {
	mergeCmd.Flags().Float64Var(&mergeThreshold, "threshold", 0.49, "score above which a candidate is a duplicate")
	mergeCmd.Flags().Float64Var(&mergeMaxDistance, "max-distance", 100, "candidate search radius in meters")
	mergeCmd.Flags().StringVar(&mergeWeightsFile, "weights-file", "", "YAML file with operator/address/distance score weights")
	mergeCmd.Flags().BoolVar(&mergeShuffle, "shuffle", false, "randomize processing order")
	mergeCmd.Flags().Int64Var(&mergeSeed, "seed", 0, "random seed for --shuffle")
	rootCmd.AddCommand(mergeCmd)
}
