package store

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/deepatlas/charging-cli/internal/db"
	"github.com/deepatlas/charging-cli/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// preparedStatements lists queries to prepare on each new connection for
// faster execution of the most frequently used store operations.
var preparedStatements = map[string]string{
	"insert_raw_batch": `INSERT INTO raw_batches (id, source, pulled_at, records) VALUES ($1, $2, $3, $4)`,
	"load_raw_batch":   `SELECT id, source, pulled_at, records FROM raw_batches WHERE source = $1 ORDER BY pulled_at DESC, id LIMIT 1`,
	"load_stations":    `SELECT record FROM stations ORDER BY source, id`,
	"load_merged":      `SELECT record FROM merged_stations ORDER BY id`,
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	// Apply pool sizing from config with sensible defaults.
	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	// Prepare frequently-used statements on each new connection.
	pgxCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		for name, sql := range preparedStatements {
			if _, err := conn.Prepare(ctx, name, sql); err != nil {
				return eris.Wrapf(err, "postgres: prepare %s", name)
			}
		}
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

// Pool returns the underlying database pool for subsystems that need
// direct query access.
func (s *PostgresStore) Pool() db.Pool {
	return s.pool
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS raw_batches (
	id        TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	source    TEXT NOT NULL,
	pulled_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	records   JSONB NOT NULL
);

CREATE TABLE IF NOT EXISTS stations (
	source     TEXT NOT NULL,
	id         TEXT NOT NULL,
	record     JSONB NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (source, id)
);

CREATE TABLE IF NOT EXISTS merged_stations (
	id         TEXT PRIMARY KEY,
	record     JSONB NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_raw_batches_source_pulled ON raw_batches(source, pulled_at DESC);
CREATE INDEX IF NOT EXISTS idx_stations_source ON stations(source);
CREATE INDEX IF NOT EXISTS idx_merged_stations_updated ON merged_stations(updated_at);
`

func (s *PostgresStore) Ping(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, "SELECT 1")
	return eris.Wrap(err, "postgres: ping")
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

func (s *PostgresStore) SaveRawBatch(ctx context.Context, source model.DataSource, records []json.RawMessage) (*RawBatch, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	recordsJSON, err := json.Marshal(records)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: marshal raw records")
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO raw_batches (id, source, pulled_at, records) VALUES ($1, $2, $3, $4)`,
		id, string(source), now, recordsJSON,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: insert raw batch for %s", source)
	}

	return &RawBatch{ID: id, Source: source, PulledAt: now, Records: records}, nil
}

func (s *PostgresStore) LoadRaw(ctx context.Context, source model.DataSource) (*RawBatch, error) {
	var b RawBatch
	var recordsJSON []byte

	err := s.pool.QueryRow(ctx,
		`SELECT id, source, pulled_at, records FROM raw_batches WHERE source = $1 ORDER BY pulled_at DESC, id LIMIT 1`,
		string(source),
	).Scan(&b.ID, &b.Source, &b.PulledAt, &recordsJSON)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: load raw batch for %s", source)
	}

	if err := json.Unmarshal(recordsJSON, &b.Records); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal raw records")
	}
	return &b, nil
}

// SaveStations replaces the normalized stations for one source. Rows are
// bulk-loaded via the COPY protocol.
func (s *PostgresStore) SaveStations(ctx context.Context, source model.DataSource, stations []model.Station) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM stations WHERE source = $1`, string(source)); err != nil {
		return eris.Wrapf(err, "postgres: clear stations for %s", source)
	}

	rows, err := stationRows(stations, func(st *model.Station, record []byte, now time.Time) []any {
		return []any{string(source), st.ID, record, now}
	})
	if err != nil {
		return err
	}

	_, err = db.CopyFrom(ctx, s.pool, "stations", []string{"source", "id", "record", "updated_at"}, rows)
	return err
}

func (s *PostgresStore) LoadStations(ctx context.Context) ([]model.Station, error) {
	rows, err := s.pool.Query(ctx, `SELECT record FROM stations ORDER BY source, id`)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: load stations")
	}
	defer rows.Close()
	return scanStationJSONRows(rows)
}

// SaveMerged refreshes the merged map with a bulk upsert keyed by id,
// then sweeps rows the new snapshot no longer contains. Readers never
// observe an empty table mid-refresh.
func (s *PostgresStore) SaveMerged(ctx context.Context, stations []model.Station) error {
	now := time.Now().UTC()

	rows, err := stationRows(stations, func(st *model.Station, record []byte, ts time.Time) []any {
		return []any{st.ID, record, ts}
	})
	if err != nil {
		return err
	}

	_, err = db.BulkUpsert(ctx, s.pool, db.UpsertConfig{
		Table:        "merged_stations",
		Columns:      []string{"id", "record", "updated_at"},
		ConflictKeys: []string{"id"},
	}, rows)
	if err != nil {
		return err
	}

	_, err = s.pool.Exec(ctx, `DELETE FROM merged_stations WHERE updated_at < $1`, now)
	return eris.Wrap(err, "postgres: sweep stale merged stations")
}

func (s *PostgresStore) LoadMerged(ctx context.Context) ([]model.Station, error) {
	rows, err := s.pool.Query(ctx, `SELECT record FROM merged_stations ORDER BY id`)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: load merged stations")
	}
	defer rows.Close()
	return scanStationJSONRows(rows)
}

// stationRows marshals stations into COPY rows, with build choosing the
// column layout. All rows share one timestamp taken here, strictly after
// the sweep cutoff SaveMerged captures, so a freshly upserted row is
// always newer than the cutoff and survives the sweep.
func stationRows(stations []model.Station, build func(st *model.Station, record []byte, ts time.Time) []any) ([][]any, error) {
	now := time.Now().UTC()
	rows := make([][]any, 0, len(stations))
	for i := range stations {
		record, err := json.Marshal(stations[i])
		if err != nil {
			return nil, eris.Wrap(err, "postgres: marshal station")
		}
		rows = append(rows, build(&stations[i], record, now))
	}
	return rows, nil
}

func scanStationJSONRows(rows pgx.Rows) ([]model.Station, error) {
	var stations []model.Station
	for rows.Next() {
		var record []byte
		if err := rows.Scan(&record); err != nil {
			return nil, eris.Wrap(err, "postgres: scan station record")
		}
		var st model.Station
		if err := json.Unmarshal(record, &st); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal station record")
		}
		stations = append(stations, st)
	}
	return stations, eris.Wrap(rows.Err(), "postgres: iterate station records")
}
