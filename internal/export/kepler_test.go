package export

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deepatlas/charging-cli/internal/model"
)

func exportTestStation(id string, lon, lat float64) model.Station {
	operator := "Stadtwerke Augsburg"
	postcode := "86150"
	town := "Augsburg"
	maxKw := 50.0
	capacity := 2
	return model.Station{
		ID:          id,
		DataSource:  model.SourceBNA,
		Operator:    &operator,
		Coordinates: model.PointWKT(lon, lat),
		Address: model.Address{
			Postcode: &postcode,
			Town:     &town,
		},
		Charging: model.Charging{
			Capacity:       &capacity,
			MaxKw:          &maxKw,
			DCSupport:      true,
			SocketTypeList: []string{"AC Typ 2", "DC Kupplung Combo"},
		},
	}
}

func readCSV(t *testing.T, path string) [][]string {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	return rows
}

func TestWriteKeplerCSV(t *testing.T) {
	path := filepath.Join(t.TempDir(), "map.csv")

	err := WriteKeplerCSV([]model.Station{
		exportTestStation("a", 10.898611, 48.366806),
	}, path)
	require.NoError(t, err)

	rows := readCSV(t, path)
	require.Len(t, rows, 2)
	assert.Equal(t, keplerColumns, rows[0])

	row := rows[1]
	require.Len(t, row, len(keplerColumns))
	assert.Equal(t, "a", row[0])
	assert.Equal(t, "BNA", row[1])
	assert.Equal(t, "10.898611", row[2])
	assert.Equal(t, "48.366806", row[3])
	assert.Equal(t, "Stadtwerke Augsburg", row[4])
	assert.Equal(t, "86150", row[6])
	assert.Equal(t, "Augsburg", row[7])
	assert.Equal(t, "2", row[10])
	assert.Equal(t, "50", row[11])
	assert.Equal(t, "", row[12]) // total_kw unset
	assert.Equal(t, "true", row[13])
	assert.Equal(t, "AC Typ 2;DC Kupplung Combo", row[14])
}

func TestWriteKeplerCSV_SkipsBadCoordinates(t *testing.T) {
	path := filepath.Join(t.TempDir(), "map.csv")

	bad := exportTestStation("bad", 0, 0)
	bad.Coordinates = "not wkt"

	err := WriteKeplerCSV([]model.Station{
		bad,
		exportTestStation("good", 10.9, 48.4),
	}, path)
	require.NoError(t, err)

	rows := readCSV(t, path)
	require.Len(t, rows, 2)
	assert.Equal(t, "good", rows[1][0])
}

func TestWriteKeplerCSV_EmptyInputWritesHeaderOnly(t *testing.T) {
	path := filepath.Join(t.TempDir(), "map.csv")

	require.NoError(t, WriteKeplerCSV(nil, path))

	rows := readCSV(t, path)
	require.Len(t, rows, 1)
	assert.Equal(t, keplerColumns, rows[0])
}
