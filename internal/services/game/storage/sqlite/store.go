package sqlite

import (
	"database/sql"
	"time"

	"github.com/davidvanstory/MultiplayerGame/internal/platform/storage/sqlitemigrate"
	"github.com/davidvanstory/MultiplayerGame/internal/services/game/storage/sqlite/migrations"
)

func toMillis(value time.Time) int64 {
	return value.UTC().UnixMilli()
}

// fromMillis reverses toMillis for persisted millisecond timestamps.
func fromMillis(value int64) time.Time {
	return time.UnixMilli(value).UTC()
}

// Store provides a SQLite-backed store implementing the storage contract.
type Store struct {
	sqlDB *sql.DB
}

// Open opens a SQLite room store at the provided path and applies embedded
// migrations before the store is handed to higher layers.
func Open(path string) (*Store, error) {
	sqlDB, err := sqlitemigrate.Open(path, migrations.RoomsFS, "rooms")
	if err != nil {
		return nil, err
	}
	return &Store{sqlDB: sqlDB}, nil
}

// Close closes the underlying SQLite database.
//
// Close is intentionally nil-safe so callers can defer it in all startup paths.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}
