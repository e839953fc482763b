package main

import (
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var processSource string

var processCmd = &cobra.Command{
	Use:   "process",
	Short: "Normalize stored raw data into stations",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		if err := cfg.Validate("process"); err != nil {
			return err
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		connectors, err := connectorsFor(processSource, newFetcher())
		if err != nil {
			return err
		}

		for _, c := range connectors {
			log := zap.L().With(zap.String("source", string(c.Source())))

			batch, err := st.LoadRaw(ctx, c.Source())
			if err != nil {
				return eris.Wrapf(err, "load raw batch for %s", c.Source())
			}

			stations, err := c.Process(batch.Records)
			if err != nil {
				return eris.Wrapf(err, "process %s", c.Source())
			}

			if err := st.SaveStations(ctx, c.Source(), stations); err != nil {
				return eris.Wrapf(err, "save stations for %s", c.Source())
			}

			log.Info("stations normalized",
				zap.String("batch_id", batch.ID),
				zap.Int("raw_records", len(batch.Records)),
				zap.Int("stations", len(stations)),
			)
		}

		return nil
	},
}

func init() {
	processCmd.Flags().StringVar(&processSource, "source", "", "process a single source (BNA, OCM, OSM); default all")
	rootCmd.AddCommand(processCmd)
}
