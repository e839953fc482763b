package main

import (
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

var pullSource string

var pullCmd = &cobra.Command{
	Use:   "pull",
	Short: "Fetch raw data from the providers and persist it",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		if err := cfg.Validate("pull"); err != nil {
			return err
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		connectors, err := connectorsFor(pullSource, newFetcher())
		if err != nil {
			return err
		}

		g, ctx := errgroup.WithContext(ctx)
		g.SetLimit(cfg.Fetch.MaxConcurrency)

		for _, c := range connectors {
			c := c
			g.Go(func() error {
				log := zap.L().With(zap.String("source", string(c.Source())))
				log.Info("pulling raw data")

				records, err := c.Pull(ctx)
				if err != nil {
					return eris.Wrapf(err, "pull %s", c.Source())
				}

				batch, err := st.SaveRawBatch(ctx, c.Source(), records)
				if err != nil {
					return eris.Wrapf(err, "save raw batch for %s", c.Source())
				}

				log.Info("raw batch saved",
					zap.String("batch_id", batch.ID),
					zap.Int("records", len(records)),
				)
				return nil
			})
		}

		return g.Wait()
	},
}

func init() {
	pullCmd.Flags().StringVar(&pullSource, "source", "", "pull a single source (BNA, OCM, OSM); default all")
	rootCmd.AddCommand(pullCmd)
}
