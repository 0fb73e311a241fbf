package storage

// sessions.go contains SQLiteStore methods for connection history.

import (
	"database/sql"
	"errors"
	"time"

	apperrors "github.com/apsession/client/internal/errors"
)

// maxSessions is the maximum number of sessions to retain.
// Older sessions are deleted when this limit is exceeded.
const maxSessions = 20

// SessionStatus is the last known outcome of a connection.
type SessionStatus string

const (
	SessionStatusConnecting    SessionStatus = "connecting"
	SessionStatusAuthenticated SessionStatus = "authenticated"
	SessionStatusRefused       SessionStatus = "refused"
	SessionStatusError         SessionStatus = "error"
	SessionStatusClosed        SessionStatus = "closed"
)

// Session is one connection attempt in the history.
type Session struct {
	// ID is the session identifier sent in the Connect packet.
	ID     string
	URI    string
	Game   string
	Slot   string
	Status SessionStatus

	StartedAt time.Time
	LastSeen  time.Time

	// EndedAt is zero while the connection is open.
	EndedAt time.Time

	ItemsReceived    int64
	LocationsChecked int64
}

// SaveSession inserts or replaces a session row.
// Enforces retention: keeps only the most recent maxSessions sessions.
func (s *SQLiteStore) SaveSession(session *Session) error {
	if session == nil {
		return apperrors.Internal("session cannot be nil", nil)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.log.Debug().Str("id", session.ID).Str("uri", session.URI).Str("status", string(session.Status)).Msg("saving session")

	var endedAt sql.NullString
	if !session.EndedAt.IsZero() {
		endedAt = sql.NullString{String: session.EndedAt.Format(time.RFC3339Nano), Valid: true}
	}

	const query = `
		INSERT OR REPLACE INTO sessions
			(id, uri, game, slot, status, started_at, last_seen, ended_at, items_received, locations_checked)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := s.db.Exec(query,
		session.ID,
		session.URI,
		session.Game,
		session.Slot,
		string(session.Status),
		session.StartedAt.Format(time.RFC3339Nano),
		session.LastSeen.Format(time.RFC3339Nano),
		endedAt,
		session.ItemsReceived,
		session.LocationsChecked,
	)
	if err != nil {
		return queryFailed("save session", err)
	}

	const cleanupQuery = `
		DELETE FROM sessions WHERE id IN (
			SELECT id FROM sessions ORDER BY started_at DESC LIMIT -1 OFFSET ?
		)
	`
	if _, err := s.db.Exec(cleanupQuery, maxSessions); err != nil {
		return queryFailed("enforce session retention", err)
	}

	return nil
}

// GetSession retrieves a session by ID.
// Returns nil, nil if the session does not exist.
func (s *SQLiteStore) GetSession(id string) (*Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	const query = `
		SELECT id, uri, game, slot, status, started_at, last_seen, ended_at, items_received, locations_checked
		FROM sessions
		WHERE id = ?
	`

	session, err := scanSession(s.db.QueryRow(query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, queryFailed("get session", err)
	}
	return session, nil
}

// ListSessions returns recent sessions ordered by started_at (newest first).
// The limit parameter controls how many sessions to return (0 = default limit).
func (s *SQLiteStore) ListSessions(limit int) ([]*Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 {
		limit = maxSessions
	}

	const query = `
		SELECT id, uri, game, slot, status, started_at, last_seen, ended_at, items_received, locations_checked
		FROM sessions
		ORDER BY started_at DESC
		LIMIT ?
	`

	rows, err := s.db.Query(query, limit)
	if err != nil {
		return nil, queryFailed("list sessions", err)
	}
	defer rows.Close()

	sessions := make([]*Session, 0)
	for rows.Next() {
		session, err := scanSession(rows)
		if err != nil {
			return nil, queryFailed("scan session", err)
		}
		sessions = append(sessions, session)
	}
	if err := rows.Err(); err != nil {
		return nil, queryFailed("iterate session rows", err)
	}

	return sessions, nil
}

// UpdateSessionStatus sets the status and touches last_seen.
func (s *SQLiteStore) UpdateSessionStatus(id string, status SessionStatus, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	const query = `UPDATE sessions SET status = ?, last_seen = ? WHERE id = ?`
	res, err := s.db.Exec(query, string(status), at.Format(time.RFC3339Nano), id)
	if err != nil {
		return queryFailed("update session status", err)
	}
	return requireRow(res, "session "+id)
}

// UpdateSessionProgress stores the current counters and touches last_seen.
func (s *SQLiteStore) UpdateSessionProgress(id string, itemsReceived, locationsChecked int64, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	const query = `UPDATE sessions SET items_received = ?, locations_checked = ?, last_seen = ? WHERE id = ?`
	res, err := s.db.Exec(query, itemsReceived, locationsChecked, at.Format(time.RFC3339Nano), id)
	if err != nil {
		return queryFailed("update session progress", err)
	}
	return requireRow(res, "session "+id)
}

// EndSession marks a session finished with its final status.
func (s *SQLiteStore) EndSession(id string, status SessionStatus, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ts := at.Format(time.RFC3339Nano)
	const query = `UPDATE sessions SET status = ?, last_seen = ?, ended_at = ? WHERE id = ?`
	res, err := s.db.Exec(query, string(status), ts, ts, id)
	if err != nil {
		return queryFailed("end session", err)
	}
	return requireRow(res, "session "+id)
}

func requireRow(res sql.Result, what string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return queryFailed("rows affected", err)
	}
	if n == 0 {
		return apperrors.New(apperrors.CodeStorageNotFound, what+" not found")
	}
	return nil
}

// scanner is satisfied by both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanSession(row scanner) (*Session, error) {
	var (
		session   Session
		status    string
		startedAt string
		lastSeen  string
		endedAt   sql.NullString
	)

	err := row.Scan(
		&session.ID,
		&session.URI,
		&session.Game,
		&session.Slot,
		&status,
		&startedAt,
		&lastSeen,
		&endedAt,
		&session.ItemsReceived,
		&session.LocationsChecked,
	)
	if err != nil {
		return nil, err
	}

	session.Status = SessionStatus(status)

	if session.StartedAt, err = time.Parse(time.RFC3339Nano, startedAt); err != nil {
		return nil, err
	}
	if session.LastSeen, err = time.Parse(time.RFC3339Nano, lastSeen); err != nil {
		return nil, err
	}
	if endedAt.Valid {
		if session.EndedAt, err = time.Parse(time.RFC3339Nano, endedAt.String); err != nil {
			return nil, err
		}
	}

	return &session, nil
}
