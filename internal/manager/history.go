package manager

import (
	"github.com/rs/zerolog"

	"github.com/apsession/client/internal/log"
	"github.com/apsession/client/internal/session"
	"github.com/apsession/client/internal/storage"
)

// recorder writes connection history. It is a deferred subscriber, so every
// write happens on the goroutine that calls Update or Shutdown.
type recorder struct {
	db    *storage.SQLiteStore
	m     *Manager
	clock Clock
	log   zerolog.Logger

	// open is the session row that has not ended yet.
	open string
}

func newRecorder(db *storage.SQLiteStore, m *Manager, clock Clock) *recorder {
	return &recorder{db: db, m: m, clock: clock, log: log.Component("history")}
}

func (r *recorder) handle(ev Event) {
	var err error
	switch e := ev.(type) {
	case StatusChanged:
		err = r.status(e)
	case ItemsReceived, LocationsChecked:
		err = r.progress(r.open)
	}
	if err != nil {
		r.log.Warn().Err(err).Str("event", ev.Name()).Msg("history write failed")
	}
}

func (r *recorder) status(e StatusChanged) error {
	if e.SessionID == "" {
		return nil
	}
	now := r.clock.Now()

	switch e.State {
	case session.Connecting:
		cfg := r.m.Config()
		r.m.mu.Lock()
		slot := r.m.slot
		r.m.mu.Unlock()

		r.open = e.SessionID
		return r.db.SaveSession(&storage.Session{
			ID:        e.SessionID,
			URI:       e.URI,
			Game:      cfg.Game,
			Slot:      slot,
			Status:    storage.SessionStatusConnecting,
			StartedAt: now,
			LastSeen:  now,
		})
	case session.Authenticated:
		if r.open != e.SessionID {
			return nil
		}
		return r.db.UpdateSessionStatus(e.SessionID, storage.SessionStatusAuthenticated, now)
	case session.ConnectionRefused:
		return r.end(e.SessionID, storage.SessionStatusRefused)
	case session.Error:
		return r.end(e.SessionID, storage.SessionStatusError)
	case session.Disconnected:
		return r.end(e.SessionID, storage.SessionStatusClosed)
	}
	return nil
}

// end closes the open row once. A refused connection is followed by a
// Disconnected transition that must not overwrite its status.
func (r *recorder) end(id string, status storage.SessionStatus) error {
	if r.open != id {
		return nil
	}
	r.open = ""
	if err := r.progress(id); err != nil {
		return err
	}
	return r.db.EndSession(id, status, r.clock.Now())
}

func (r *recorder) progress(id string) error {
	if id == "" {
		return nil
	}
	st := r.m.Stats()
	return r.db.UpdateSessionProgress(id, st.ItemsReceived, st.LocationsChecked, r.clock.Now())
}
