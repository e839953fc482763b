package main

import (
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/deepatlas/charging-cli/internal/export"
)

var (
	exportOutput   string
	exportBoundary string
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Write the merged station map as a kepler.gl CSV",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		if err := cfg.Validate("export"); err != nil {
			return err
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		stations, err := st.LoadMerged(ctx)
		if err != nil {
			return eris.Wrap(err, "load merged stations")
		}
		if len(stations) == 0 {
			return eris.New("no merged stations to export; run merge first")
		}

		output := cfg.Export.OutputPath
		if exportOutput != "" {
			output = exportOutput
		}
		boundaryPath := cfg.Export.BoundaryPath
		if exportBoundary != "" {
			boundaryPath = exportBoundary
		}

		if boundaryPath != "" {
			b, err := export.LoadBoundary(boundaryPath)
			if err != nil {
				return err
			}
			stations = b.Filter(stations)
		}

		if err := export.WriteKeplerCSV(stations, output); err != nil {
			return err
		}

		zap.L().Info("export complete",
			zap.String("output", output),
			zap.Int("stations", len(stations)),
		)
		return nil
	},
}

func init() {
	exportCmd.Flags().StringVar(&exportOutput, "output", "", "output CSV path (default from config)")
	exportCmd.Flags().StringVar(&exportBoundary, "boundary", "", "polygon shapefile to clip the map to")
	rootCmd.AddCommand(exportCmd)
}
