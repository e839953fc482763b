package store

import (
	"path/filepath"
	"testing"

	"github.com/deepatlas/charging-cli/internal/config"
)

// Compile-time interface checks for both backends.
var (
	_ Store = (*SQLiteStore)(nil)
	_ Store = (*PostgresStore)(nil)
)

func configStore(t *testing.T) config.StoreConfig {
	t.Helper()
	return config.StoreConfig{
		Driver: "sqlite",
		Path:   filepath.Join(t.TempDir(), "charging.db"),
	}
}
