// Package export writes the merged station map to formats consumed by
// mapping tools, optionally clipped to a boundary shapefile.
package export

import (
	"encoding/csv"
	"os"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/deepatlas/charging-cli/internal/model"
)

// keplerColumns defines the ordered CSV output columns for kepler.gl.
var keplerColumns = []string{
	"id",
	"data_source",
	"longitude",
	"latitude",
	"operator",
	"street",
	"postcode",
	"town",
	"state",
	"country",
	"capacity",
	"max_kw",
	"total_kw",
	"dc_support",
	"socket_types",
	"payment",
	"authentication",
	"merged_attributes",
}

// WriteKeplerCSV writes stations as a kepler.gl CSV file. Stations whose
// coordinates fail to parse are skipped with a warning.
func WriteKeplerCSV(stations []model.Station, outputPath string) error {
	f, err := os.Create(outputPath)
	if err != nil {
		return eris.Wrap(err, "export: create csv file")
	}
	defer f.Close()

	w := csv.NewWriter(f)
	defer w.Flush()

	if err := w.Write(keplerColumns); err != nil {
		return eris.Wrap(err, "export: write csv header")
	}

	written := 0
	for i := range stations {
		row, err := buildKeplerRow(&stations[i])
		if err != nil {
			zap.L().Warn("skipping station with bad coordinates",
				zap.String("id", stations[i].ID),
				zap.Error(err),
			)
			continue
		}
		if err := w.Write(row); err != nil {
			return eris.Wrap(err, "export: write csv row")
		}
		written++
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return eris.Wrap(err, "export: flush csv")
	}

	zap.L().Info("kepler csv written",
		zap.String("path", outputPath),
		zap.Int("stations", written),
	)
	return nil
}

// buildKeplerRow maps a Station to a kepler CSV row.
func buildKeplerRow(st *model.Station) ([]string, error) {
	lon, lat, err := st.Point()
	if err != nil {
		return nil, err
	}

	return []string{
		st.ID,
		string(st.DataSource),
		formatFloat(lon),
		formatFloat(lat),
		strOrEmpty(st.Operator),
		strOrEmpty(st.Address.Street),
		strOrEmpty(st.Address.Postcode),
		strOrEmpty(st.Address.Town),
		strOrEmpty(st.Address.State),
		strOrEmpty(st.Address.Country),
		intOrEmpty(st.Charging.Capacity),
		floatOrEmpty(st.Charging.MaxKw),
		floatOrEmpty(st.Charging.TotalKw),
		strconv.FormatBool(st.Charging.DCSupport),
		strings.Join(st.Charging.SocketTypeList, ";"),
		strOrEmpty(st.Payment),
		strOrEmpty(st.Authentication),
		strconv.FormatBool(st.MergedAttributes),
	}, nil
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func strOrEmpty(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func intOrEmpty(v *int) string {
	if v == nil {
		return ""
	}
	return strconv.Itoa(*v)
}

func floatOrEmpty(v *float64) string {
	if v == nil {
		return ""
	}
	return formatFloat(*v)
}
