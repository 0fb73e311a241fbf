// Package storage is the local SQLite archive: named snapshot slots and a
// history of connections.
package storage

import (
	"database/sql"
	"sync"

	"github.com/rs/zerolog"

	// SQLite driver - imported for side effects (registers the driver).
	// modernc.org/sqlite is pure Go, so the client builds without CGO.
	_ "modernc.org/sqlite"

	apperrors "github.com/apsession/client/internal/errors"
	"github.com/apsession/client/internal/log"
)

// SQLiteStore persists snapshots and connection history in SQLite.
// It creates the database and tables on first use and supports
// concurrent access through internal locking.
type SQLiteStore struct {
	db  *sql.DB      // Database connection handle.
	mu  sync.RWMutex // Guards all database operations.
	log zerolog.Logger
}

// NewSQLiteStore opens or creates a SQLite database at the given path.
// Use ":memory:" for an in-memory database (useful for testing).
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	logger := log.Component("storage")
	logger.Debug().Str("path", path).Msg("opening database")

	// busy_timeout covers a CLI reading history while a client is writing.
	db, err := sql.Open("sqlite", path+"?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeStorageOpenFailed, "open database "+path, err)
	}

	// An in-memory database lives only as long as its connection.
	if path == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, apperrors.Wrap(apperrors.CodeStorageOpenFailed, "ping database "+path, err)
	}

	store := &SQLiteStore{db: db, log: logger}

	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, apperrors.Wrap(apperrors.CodeStorageOpenFailed, "init schema", err)
	}

	logger.Debug().Int("schema_version", currentSchemaVersion).Msg("database ready")
	return store, nil
}

// Close releases the database connection.
func (s *SQLiteStore) Close() error {
	s.log.Debug().Msg("closing database")
	return s.db.Close()
}

func queryFailed(op string, err error) error {
	return apperrors.Wrap(apperrors.CodeStorageQueryFailed, op, err)
}
