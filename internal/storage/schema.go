package storage

import (
	"fmt"
	"time"
)

// currentSchemaVersion is the current database schema version.
// Increment this when making schema changes and add migration logic.
const currentSchemaVersion = 2

// initSchema applies every migration newer than the recorded version.
func (s *SQLiteStore) initSchema() error {
	const schemaVersionTable = `
		CREATE TABLE IF NOT EXISTS schema_version (
			version INTEGER PRIMARY KEY,
			applied_at TEXT NOT NULL
		);
	`

	if _, err := s.db.Exec(schemaVersionTable); err != nil {
		return fmt.Errorf("create schema_version table: %w", err)
	}

	var version int
	err := s.db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_version").Scan(&version)
	if err != nil {
		return fmt.Errorf("check schema version: %w", err)
	}

	if version < 1 {
		if err := s.migrateToV1(); err != nil {
			return fmt.Errorf("migrate to v1: %w", err)
		}
	}

	if version < 2 {
		if err := s.migrateToV2(); err != nil {
			return fmt.Errorf("migrate to v2: %w", err)
		}
	}

	return nil
}

// migrateToV1 creates the sessions table for connection history.
func (s *SQLiteStore) migrateToV1() error {
	s.log.Info().Int("version", 1).Msg("applying migration")

	// Timestamps are stored as RFC3339 strings for readability and portability.
	const sessionsTable = `
		CREATE TABLE IF NOT EXISTS sessions (
			id TEXT PRIMARY KEY,
			uri TEXT NOT NULL,
			game TEXT NOT NULL DEFAULT '',
			slot TEXT NOT NULL DEFAULT '',
			status TEXT NOT NULL,
			started_at TEXT NOT NULL,
			last_seen TEXT NOT NULL,
			ended_at TEXT,
			items_received INTEGER NOT NULL DEFAULT 0,
			locations_checked INTEGER NOT NULL DEFAULT 0
		);

		CREATE INDEX IF NOT EXISTS idx_sessions_started_at ON sessions(started_at);
	`

	if _, err := s.db.Exec(sessionsTable); err != nil {
		return fmt.Errorf("create sessions table: %w", err)
	}

	return s.recordMigration(1)
}

// migrateToV2 adds named snapshot slots.
func (s *SQLiteStore) migrateToV2() error {
	s.log.Info().Int("version", 2).Msg("applying migration")

	// data holds the encoded snapshot; format names its encoding. The
	// counters are duplicated into columns so listings need no decoding.
	const snapshotsTable = `
		CREATE TABLE IF NOT EXISTS snapshots (
			slot TEXT PRIMARY KEY,
			format TEXT NOT NULL,
			data BLOB NOT NULL,
			locations_checked INTEGER NOT NULL DEFAULT 0,
			items_received INTEGER NOT NULL DEFAULT 0,
			saved_at TEXT NOT NULL
		);
	`

	if _, err := s.db.Exec(snapshotsTable); err != nil {
		return fmt.Errorf("create snapshots table: %w", err)
	}

	return s.recordMigration(2)
}

func (s *SQLiteStore) recordMigration(version int) error {
	_, err := s.db.Exec(
		"INSERT INTO schema_version (version, applied_at) VALUES (?, ?)",
		version,
		time.Now().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("record migration: %w", err)
	}
	return nil
}
