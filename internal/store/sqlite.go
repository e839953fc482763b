package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/deepatlas/charging-cli/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS raw_batches (
	id        TEXT PRIMARY KEY,
	source    TEXT NOT NULL,
	pulled_at DATETIME NOT NULL DEFAULT (datetime('now')),
	records   TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS stations (
	source     TEXT NOT NULL,
	id         TEXT NOT NULL,
	record     TEXT NOT NULL,
	updated_at DATETIME NOT NULL DEFAULT (datetime('now')),
	PRIMARY KEY (source, id)
);

CREATE TABLE IF NOT EXISTS merged_stations (
	id         TEXT PRIMARY KEY,
	record     TEXT NOT NULL,
	updated_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_raw_batches_source_pulled ON raw_batches(source, pulled_at DESC);
CREATE INDEX IF NOT EXISTS idx_stations_source ON stations(source);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) SaveRawBatch(ctx context.Context, source model.DataSource, records []json.RawMessage) (*RawBatch, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	recordsJSON, err := json.Marshal(records)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: marshal raw records")
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO raw_batches (id, source, pulled_at, records) VALUES (?, ?, ?, ?)`,
		id, string(source), now, string(recordsJSON),
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: insert raw batch for %s", source)
	}

	return &RawBatch{ID: id, Source: source, PulledAt: now, Records: records}, nil
}

func (s *SQLiteStore) LoadRaw(ctx context.Context, source model.DataSource) (*RawBatch, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, source, pulled_at, records FROM raw_batches
		 WHERE source = ? ORDER BY pulled_at DESC, id LIMIT 1`,
		string(source),
	)

	var b RawBatch
	var recordsJSON string
	err := row.Scan(&b.ID, &b.Source, &b.PulledAt, &recordsJSON)
	if err == sql.ErrNoRows {
		return nil, eris.Errorf("sqlite: no raw batch for source %s", source)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: load raw batch for %s", source)
	}
	if err := json.Unmarshal([]byte(recordsJSON), &b.Records); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal raw records")
	}
	return &b, nil
}

// SaveStations replaces the normalized stations for one source inside a
// transaction so partial writes never leave a mixed snapshot behind.
func (s *SQLiteStore) SaveStations(ctx context.Context, source model.DataSource, stations []model.Station) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin tx")
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM stations WHERE source = ?`, string(source)); err != nil {
		return eris.Wrapf(err, "sqlite: clear stations for %s", source)
	}

	now := time.Now().UTC()
	for i := range stations {
		recordJSON, err := json.Marshal(stations[i])
		if err != nil {
			return eris.Wrap(err, "sqlite: marshal station")
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO stations (source, id, record, updated_at) VALUES (?, ?, ?, ?)`,
			string(source), stations[i].ID, string(recordJSON), now,
		)
		if err != nil {
			return eris.Wrapf(err, "sqlite: insert station %s", stations[i].ID)
		}
	}

	return eris.Wrap(tx.Commit(), "sqlite: commit stations")
}

func (s *SQLiteStore) LoadStations(ctx context.Context) ([]model.Station, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT record FROM stations ORDER BY source, id`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: load stations")
	}
	defer rows.Close()

	stations, err := scanStationRecords(rows)
	if err != nil {
		return nil, err
	}
	return stations, eris.Wrap(rows.Err(), "sqlite: load stations iterate")
}

func (s *SQLiteStore) SaveMerged(ctx context.Context, stations []model.Station) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin tx")
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM merged_stations`); err != nil {
		return eris.Wrap(err, "sqlite: clear merged stations")
	}

	now := time.Now().UTC()
	for i := range stations {
		recordJSON, err := json.Marshal(stations[i])
		if err != nil {
			return eris.Wrap(err, "sqlite: marshal merged station")
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO merged_stations (id, record, updated_at) VALUES (?, ?, ?)`,
			stations[i].ID, string(recordJSON), now,
		)
		if err != nil {
			return eris.Wrapf(err, "sqlite: insert merged station %s", stations[i].ID)
		}
	}

	return eris.Wrap(tx.Commit(), "sqlite: commit merged stations")
}

func (s *SQLiteStore) LoadMerged(ctx context.Context) ([]model.Station, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT record FROM merged_stations ORDER BY id`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: load merged stations")
	}
	defer rows.Close()

	stations, err := scanStationRecords(rows)
	if err != nil {
		return nil, err
	}
	return stations, eris.Wrap(rows.Err(), "sqlite: load merged stations iterate")
}

func scanStationRecords(rows *sql.Rows) ([]model.Station, error) {
	var stations []model.Station
	for rows.Next() {
		var recordJSON string
		if err := rows.Scan(&recordJSON); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan station record")
		}
		var st model.Station
		if err := json.Unmarshal([]byte(recordJSON), &st); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal station record")
		}
		stations = append(stations, st)
	}
	return stations, nil
}
