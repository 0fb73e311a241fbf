package storage

// snapshots.go stores state snapshots in named slots.

import (
	"database/sql"
	"errors"
	"time"

	apperrors "github.com/apsession/client/internal/errors"
	"github.com/apsession/client/internal/state"
)

// Slots are stored as MessagePack; the format column keeps older rows
// readable if that ever changes.
const slotFormat = state.FormatMsgpack

// SnapshotInfo describes a stored slot without its contents.
type SnapshotInfo struct {
	Slot             string
	LocationsChecked int64
	ItemsReceived    int64
	SavedAt          time.Time
}

// SaveSnapshot writes snap into slot, replacing any previous contents.
func (s *SQLiteStore) SaveSnapshot(slot string, snap state.Snapshot, at time.Time) error {
	data, err := state.EncodeSnapshot(snap, slotFormat)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	const query = `
		INSERT OR REPLACE INTO snapshots
			(slot, format, data, locations_checked, items_received, saved_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`
	_, err = s.db.Exec(query,
		slot,
		slotFormat.String(),
		data,
		snap.TotalLocationsChecked,
		snap.TotalItemsReceived,
		at.Format(time.RFC3339Nano),
	)
	if err != nil {
		return queryFailed("save snapshot", err)
	}
	s.log.Debug().Str("slot", slot).Int("bytes", len(data)).Msg("snapshot saved")
	return nil
}

// GetSnapshot reads the snapshot in slot. A missing slot returns a
// storage.not_found error.
func (s *SQLiteStore) GetSnapshot(slot string) (state.Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var (
		format string
		data   []byte
	)
	err := s.db.QueryRow(`SELECT format, data FROM snapshots WHERE slot = ?`, slot).Scan(&format, &data)
	if errors.Is(err, sql.ErrNoRows) {
		return state.Snapshot{}, apperrors.New(apperrors.CodeStorageNotFound, "snapshot slot "+slot+" not found")
	}
	if err != nil {
		return state.Snapshot{}, queryFailed("get snapshot", err)
	}

	f := state.FormatJSON
	if format == state.FormatMsgpack.String() {
		f = state.FormatMsgpack
	}
	return state.DecodeSnapshot(data, f)
}

// ListSnapshots returns every slot, most recently saved first.
func (s *SQLiteStore) ListSnapshots() ([]SnapshotInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(`
		SELECT slot, locations_checked, items_received, saved_at
		FROM snapshots
		ORDER BY saved_at DESC
	`)
	if err != nil {
		return nil, queryFailed("list snapshots", err)
	}
	defer rows.Close()

	infos := make([]SnapshotInfo, 0)
	for rows.Next() {
		var (
			info    SnapshotInfo
			savedAt string
		)
		if err := rows.Scan(&info.Slot, &info.LocationsChecked, &info.ItemsReceived, &savedAt); err != nil {
			return nil, queryFailed("scan snapshot", err)
		}
		if info.SavedAt, err = time.Parse(time.RFC3339Nano, savedAt); err != nil {
			return nil, queryFailed("parse saved_at", err)
		}
		infos = append(infos, info)
	}
	if err := rows.Err(); err != nil {
		return nil, queryFailed("iterate snapshot rows", err)
	}
	return infos, nil
}

// DeleteSnapshot removes slot. Deleting a missing slot is not an error.
func (s *SQLiteStore) DeleteSnapshot(slot string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.db.Exec(`DELETE FROM snapshots WHERE slot = ?`, slot); err != nil {
		return queryFailed("delete snapshot", err)
	}
	return nil
}

// Slot is a named snapshot slot usable as a state.Target and state.Source.
type Slot struct {
	store *SQLiteStore
	name  string
	clock func() time.Time
}

// Slot returns a handle for the snapshot slot name.
func (s *SQLiteStore) Slot(name string) Slot {
	return Slot{store: s, name: name, clock: time.Now}
}

// Name returns the slot name.
func (sl Slot) Name() string { return sl.name }

// WriteSnapshot implements state.Target.
func (sl Slot) WriteSnapshot(snap state.Snapshot) error {
	return sl.store.SaveSnapshot(sl.name, snap, sl.clock())
}

// ReadSnapshot implements state.Source.
func (sl Slot) ReadSnapshot() (state.Snapshot, error) {
	return sl.store.GetSnapshot(sl.name)
}
