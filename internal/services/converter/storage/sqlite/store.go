// Package sqlite implements the conversion storage contract on SQLite.
package sqlite

import (
	"database/sql"
	"time"

	"github.com/davidvanstory/MultiplayerGame/internal/platform/storage/sqlitemigrate"
	"github.com/davidvanstory/MultiplayerGame/internal/services/converter/storage"
	"github.com/davidvanstory/MultiplayerGame/internal/services/converter/storage/sqlite/migrations"
)

func toMillis(value time.Time) int64 {
	return value.UTC().UnixMilli()
}

func fromMillis(value int64) time.Time {
	return time.UnixMilli(value).UTC()
}

// Store provides SQLite-backed conversion job and artifact persistence.
type Store struct {
	sqlDB *sql.DB
}

// Open opens the conversion store at the provided path and applies embedded
// migrations.
func Open(path string) (*Store, error) {
	sqlDB, err := sqlitemigrate.Open(path, migrations.ConversionFS, "conversion")
	if err != nil {
		return nil, err
	}
	return &Store{sqlDB: sqlDB}, nil
}

// Close closes the underlying SQLite database. Nil-safe.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

var _ storage.Store = (*Store)(nil)
