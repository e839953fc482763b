package store

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deepatlas/charging-cli/internal/model"
)

// newMockPostgresStore creates a PostgresStore backed by pgxmock for unit testing.
func newMockPostgresStore(t *testing.T) (*PostgresStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { mock.Close() })

	s := &PostgresStore{pool: mock}
	return s, mock
}

func TestPostgresStore_SaveRawBatch(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`INSERT INTO raw_batches`).
		WithArgs(pgxmock.AnyArg(), "BNA", pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	batch, err := s.SaveRawBatch(context.Background(), model.SourceBNA, []json.RawMessage{
		json.RawMessage(`{"Betreiber":"swa"}`),
	})
	require.NoError(t, err)
	assert.NotEmpty(t, batch.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_LoadRaw(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	pulledAt := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	mock.ExpectQuery(`SELECT id, source, pulled_at, records FROM raw_batches WHERE source = \$1`).
		WithArgs("OCM").
		WillReturnRows(pgxmock.NewRows([]string{"id", "source", "pulled_at", "records"}).
			AddRow("batch-1", "OCM", pulledAt, []byte(`[{"ID":12345}]`)))

	batch, err := s.LoadRaw(context.Background(), model.SourceOCM)
	require.NoError(t, err)
	assert.Equal(t, "batch-1", batch.ID)
	assert.Equal(t, model.SourceOCM, batch.Source)
	require.Len(t, batch.Records, 1)
	assert.JSONEq(t, `{"ID":12345}`, string(batch.Records[0]))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_LoadRaw_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT id, source, pulled_at, records FROM raw_batches`).
		WithArgs("OSM").
		WillReturnError(pgx.ErrNoRows)

	_, err := s.LoadRaw(context.Background(), model.SourceOSM)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "load raw batch")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_SaveStations(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`DELETE FROM stations WHERE source = \$1`).
		WithArgs("OCM").
		WillReturnResult(pgxmock.NewResult("DELETE", 2))
	mock.ExpectCopyFrom(pgx.Identifier{"stations"}, []string{"source", "id", "record", "updated_at"}).
		WillReturnResult(1)

	err := s.SaveStations(context.Background(), model.SourceOCM, []model.Station{
		storeTestStation("a", model.SourceOCM),
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_SaveStations_EmptySliceSkipsCopy(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`DELETE FROM stations WHERE source = \$1`).
		WithArgs("BNA").
		WillReturnResult(pgxmock.NewResult("DELETE", 0))

	err := s.SaveStations(context.Background(), model.SourceBNA, nil)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_LoadStations(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	st := storeTestStation("a", model.SourceBNA)
	record, err := json.Marshal(st)
	require.NoError(t, err)

	mock.ExpectQuery(`SELECT record FROM stations ORDER BY source, id`).
		WillReturnRows(pgxmock.NewRows([]string{"record"}).AddRow(record))

	loaded, err := s.LoadStations(context.Background())
	require.NoError(t, err)
	require.Len(t, loaded, 1)
	assert.Equal(t, st, loaded[0])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_SaveMerged_UpsertsThenSweeps(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectBegin()
	mock.ExpectExec(`CREATE TEMP TABLE`).WillReturnResult(pgxmock.NewResult("CREATE TABLE", 0))
	mock.ExpectCopyFrom(pgx.Identifier{"_tmp_upsert_merged_stations"}, []string{"id", "record", "updated_at"}).
		WillReturnResult(2)
	mock.ExpectExec(`INSERT INTO`).WillReturnResult(pgxmock.NewResult("INSERT", 2))
	mock.ExpectCommit()
	mock.ExpectExec(`DELETE FROM merged_stations WHERE updated_at < \$1`).
		WithArgs(pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("DELETE", 1))

	err := s.SaveMerged(context.Background(), []model.Station{
		storeTestStation("a", model.SourceBNA),
		storeTestStation("b", model.SourceOCM),
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStationRows_TimestampNewerThanSweepCutoff(t *testing.T) {
	// SaveMerged captures its sweep cutoff before building the rows, so
	// the shared row timestamp must never sort before a cutoff taken
	// earlier.
	cutoff := time.Now().UTC()

	rows, err := stationRows([]model.Station{
		storeTestStation("a", model.SourceBNA),
		storeTestStation("b", model.SourceOCM),
	}, func(st *model.Station, record []byte, ts time.Time) []any {
		return []any{st.ID, record, ts}
	})
	require.NoError(t, err)
	require.Len(t, rows, 2)

	first := rows[0][2].(time.Time)
	for _, row := range rows {
		ts := row[2].(time.Time)
		assert.False(t, ts.Before(cutoff))
		assert.Equal(t, first, ts)
	}
}

func TestPostgresStore_LoadMerged(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	st := storeTestStation("m", model.SourceBNA)
	st.MergedAttributes = true
	record, err := json.Marshal(st)
	require.NoError(t, err)

	mock.ExpectQuery(`SELECT record FROM merged_stations ORDER BY id`).
		WillReturnRows(pgxmock.NewRows([]string{"record"}).AddRow(record))

	loaded, err := s.LoadMerged(context.Background())
	require.NoError(t, err)
	require.Len(t, loaded, 1)
	assert.True(t, loaded[0].MergedAttributes)
	assert.NoError(t, mock.ExpectationsWereMet())
}
