// Package store persists raw provider payloads, normalized stations,
// and the merged station map behind a common interface with SQLite and
// Postgres backends.
package store

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rotisserie/eris"

	"github.com/deepatlas/charging-cli/internal/config"
	"github.com/deepatlas/charging-cli/internal/model"
)

// RawBatch is one provider pull, persisted verbatim so processing can
// be re-run without hitting the provider again.
type RawBatch struct {
	ID       string            `json:"id"`
	Source   model.DataSource  `json:"source"`
	PulledAt time.Time         `json:"pulled_at"`
	Records  []json.RawMessage `json:"records"`
}

// Store defines the persistence interface for the ingestion pipeline.
type Store interface {
	// Raw provider payloads
	SaveRawBatch(ctx context.Context, source model.DataSource, records []json.RawMessage) (*RawBatch, error)
	LoadRaw(ctx context.Context, source model.DataSource) (*RawBatch, error)

	// Normalized stations, keyed by (source, id)
	SaveStations(ctx context.Context, source model.DataSource, stations []model.Station) error
	LoadStations(ctx context.Context) ([]model.Station, error)

	// Merged map
	SaveMerged(ctx context.Context, stations []model.Station) error
	LoadMerged(ctx context.Context) ([]model.Station, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}

// Open creates the Store selected by cfg.Driver and runs migrations.
func Open(ctx context.Context, cfg config.StoreConfig) (Store, error) {
	var (
		s   Store
		err error
	)
	switch cfg.Driver {
	case "sqlite", "":
		s, err = NewSQLite(cfg.Path)
	case "postgres":
		s, err = NewPostgres(ctx, cfg.DatabaseURL, nil)
	default:
		return nil, eris.Errorf("store: unknown driver %q", cfg.Driver)
	}
	if err != nil {
		return nil, err
	}
	if err := s.Migrate(ctx); err != nil {
		s.Close()
		return nil, err
	}
	return s, nil
}
