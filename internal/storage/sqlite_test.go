package storage

import (
	"fmt"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	apperrors "github.com/apsession/client/internal/errors"
	"github.com/apsession/client/internal/protocol"
	"github.com/apsession/client/internal/state"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := NewSQLiteStore(":memory:")
	if err != nil {
		t.Fatalf("NewSQLiteStore failed: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

// TestNewSQLiteStore verifies that a store can be created with an in-memory database.
func TestNewSQLiteStore(t *testing.T) {
	store := newTestStore(t)

	sessions, err := store.ListSessions(0)
	if err != nil {
		t.Fatalf("ListSessions failed: %v", err)
	}
	if len(sessions) != 0 {
		t.Errorf("expected empty list, got %d sessions", len(sessions))
	}

	var version int
	if err := store.db.QueryRow("SELECT MAX(version) FROM schema_version").Scan(&version); err != nil {
		t.Fatal(err)
	}
	if version != currentSchemaVersion {
		t.Errorf("schema version = %d, want %d", version, currentSchemaVersion)
	}
}

// TestReopenKeepsData verifies migrations are not reapplied on an existing file.
func TestReopenKeepsData(t *testing.T) {
	path := filepath.Join(t.TempDir(), "apclient.db")

	store, err := NewSQLiteStore(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := store.SaveSnapshot("main", state.Snapshot{CheckedLocations: []int64{1}, TotalLocationsChecked: 1}, time.Now()); err != nil {
		t.Fatal(err)
	}
	store.Close()

	store, err = NewSQLiteStore(path)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	defer store.Close()

	snap, err := store.GetSnapshot("main")
	if err != nil {
		t.Fatalf("GetSnapshot after reopen: %v", err)
	}
	if !reflect.DeepEqual(snap.CheckedLocations, []int64{1}) {
		t.Errorf("CheckedLocations = %v", snap.CheckedLocations)
	}
}

func TestSnapshotSlotRoundTrip(t *testing.T) {
	store := newTestStore(t)

	src := state.NewStore()
	src.MarkLocationChecked(10)
	src.MarkLocationChecked(11)
	src.AddReceivedItem(protocol.NetworkItem{ItemID: 1, LocationID: 2, PlayerID: 3, PlayerName: "Bob", Flags: protocol.FlagImportant})

	if err := src.SaveState(store.Slot("autosave")); err != nil {
		t.Fatalf("SaveState: %v", err)
	}

	dst := state.NewStore()
	if err := dst.LoadState(store.Slot("autosave")); err != nil {
		t.Fatalf("LoadState: %v", err)
	}
	if !reflect.DeepEqual(dst.CheckedLocations(), src.CheckedLocations()) {
		t.Errorf("checked = %v", dst.CheckedLocations())
	}
	if !reflect.DeepEqual(dst.ReceivedItems(), src.ReceivedItems()) {
		t.Errorf("items = %v", dst.ReceivedItems())
	}
	if dst.Stats() != src.Stats() {
		t.Errorf("stats = %+v", dst.Stats())
	}
}

func TestGetSnapshotMissingSlot(t *testing.T) {
	store := newTestStore(t)

	_, err := store.GetSnapshot("nope")
	if !apperrors.IsCode(err, apperrors.CodeStorageNotFound) {
		t.Fatalf("err = %v, want storage.not_found", err)
	}

	s := state.NewStore()
	s.MarkLocationChecked(1)
	if err := s.LoadState(store.Slot("nope")); err == nil {
		t.Fatal("LoadState from a missing slot succeeded")
	}
	if !s.IsLocationChecked(1) {
		t.Fatal("failed load changed the store")
	}
}

func TestListAndDeleteSnapshots(t *testing.T) {
	store := newTestStore(t)
	base := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	if err := store.SaveSnapshot("old", state.Snapshot{TotalItemsReceived: 1, ReceivedItems: []protocol.NetworkItem{{ItemID: 1}}}, base); err != nil {
		t.Fatal(err)
	}
	if err := store.SaveSnapshot("new", state.Snapshot{TotalLocationsChecked: 2, CheckedLocations: []int64{1, 2}}, base.Add(time.Hour)); err != nil {
		t.Fatal(err)
	}

	infos, err := store.ListSnapshots()
	if err != nil {
		t.Fatal(err)
	}
	if len(infos) != 2 || infos[0].Slot != "new" || infos[1].Slot != "old" {
		t.Fatalf("ListSnapshots = %+v", infos)
	}
	if infos[0].LocationsChecked != 2 || infos[1].ItemsReceived != 1 {
		t.Fatalf("counters = %+v", infos)
	}
	if !infos[0].SavedAt.Equal(base.Add(time.Hour)) {
		t.Errorf("SavedAt = %v", infos[0].SavedAt)
	}

	if err := store.DeleteSnapshot("old"); err != nil {
		t.Fatal(err)
	}
	if err := store.DeleteSnapshot("old"); err != nil {
		t.Fatalf("deleting a missing slot: %v", err)
	}
	infos, _ = store.ListSnapshots()
	if len(infos) != 1 {
		t.Fatalf("expected 1 slot after delete, got %d", len(infos))
	}
}

func TestSaveAndGetSession(t *testing.T) {
	store := newTestStore(t)

	now := time.Now().Truncate(time.Millisecond)
	session := &Session{
		ID:        "session-123",
		URI:       "wss://archipelago.gg:38281",
		Game:      "Selaco",
		Slot:      "Alice",
		Status:    SessionStatusConnecting,
		StartedAt: now,
		LastSeen:  now,
	}
	if err := store.SaveSession(session); err != nil {
		t.Fatalf("SaveSession failed: %v", err)
	}

	got, err := store.GetSession("session-123")
	if err != nil {
		t.Fatalf("GetSession failed: %v", err)
	}
	if got == nil {
		t.Fatal("GetSession returned nil")
	}
	if got.URI != session.URI || got.Game != session.Game || got.Slot != session.Slot {
		t.Errorf("got %+v, want %+v", got, session)
	}
	if got.Status != SessionStatusConnecting {
		t.Errorf("Status = %q", got.Status)
	}
	if got.StartedAt.Sub(session.StartedAt).Abs() > time.Millisecond {
		t.Errorf("StartedAt = %v, want %v", got.StartedAt, session.StartedAt)
	}
	if !got.EndedAt.IsZero() {
		t.Errorf("EndedAt = %v, want zero", got.EndedAt)
	}

	missing, err := store.GetSession("nope")
	if err != nil || missing != nil {
		t.Fatalf("GetSession(nope) = %v, %v", missing, err)
	}
}

func TestSessionLifecycleUpdates(t *testing.T) {
	store := newTestStore(t)
	start := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	if err := store.SaveSession(&Session{ID: "s1", URI: "ws://localhost:38281", Status: SessionStatusConnecting, StartedAt: start, LastSeen: start}); err != nil {
		t.Fatal(err)
	}
	if err := store.UpdateSessionStatus("s1", SessionStatusAuthenticated, start.Add(time.Second)); err != nil {
		t.Fatal(err)
	}
	if err := store.UpdateSessionProgress("s1", 4, 9, start.Add(time.Minute)); err != nil {
		t.Fatal(err)
	}
	if err := store.EndSession("s1", SessionStatusClosed, start.Add(time.Hour)); err != nil {
		t.Fatal(err)
	}

	got, err := store.GetSession("s1")
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != SessionStatusClosed {
		t.Errorf("Status = %q", got.Status)
	}
	if got.ItemsReceived != 4 || got.LocationsChecked != 9 {
		t.Errorf("progress = %d/%d", got.ItemsReceived, got.LocationsChecked)
	}
	if !got.EndedAt.Equal(start.Add(time.Hour)) || !got.LastSeen.Equal(start.Add(time.Hour)) {
		t.Errorf("EndedAt = %v LastSeen = %v", got.EndedAt, got.LastSeen)
	}

	err = store.UpdateSessionStatus("missing", SessionStatusError, start)
	if !apperrors.IsCode(err, apperrors.CodeStorageNotFound) {
		t.Fatalf("err = %v, want storage.not_found", err)
	}
}

func TestSessionRetention(t *testing.T) {
	store := newTestStore(t)
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	for i := 0; i < maxSessions+5; i++ {
		at := base.Add(time.Duration(i) * time.Minute)
		s := &Session{ID: fmt.Sprintf("s%02d", i), URI: "ws://x", Status: SessionStatusClosed, StartedAt: at, LastSeen: at}
		if err := store.SaveSession(s); err != nil {
			t.Fatal(err)
		}
	}

	sessions, err := store.ListSessions(100)
	if err != nil {
		t.Fatal(err)
	}
	if len(sessions) != maxSessions {
		t.Fatalf("retained %d sessions, want %d", len(sessions), maxSessions)
	}
	if sessions[0].ID != fmt.Sprintf("s%02d", maxSessions+4) {
		t.Errorf("newest = %s", sessions[0].ID)
	}
	if old, _ := store.GetSession("s00"); old != nil {
		t.Error("oldest session survived retention")
	}

	limited, err := store.ListSessions(3)
	if err != nil {
		t.Fatal(err)
	}
	if len(limited) != 3 {
		t.Fatalf("ListSessions(3) returned %d", len(limited))
	}
}
