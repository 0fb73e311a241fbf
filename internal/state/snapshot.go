package state

import (
	"encoding/json"

	"github.com/vmihailenco/msgpack/v5"

	apperrors "github.com/apsession/client/internal/errors"
	"github.com/apsession/client/internal/protocol"
)

// Format selects the snapshot encoding.
type Format int

const (
	FormatJSON Format = iota
	FormatMsgpack
)

func (f Format) String() string {
	if f == FormatMsgpack {
		return "msgpack"
	}
	return "json"
}

// Snapshot is the durable form of a store. Unknown fields are ignored when
// decoding and missing fields read as empty.
type Snapshot struct {
	CheckedLocations      []int64                `json:"checked_locations" msgpack:"checked_locations"`
	ReceivedItems         []protocol.NetworkItem `json:"received_items" msgpack:"received_items"`
	TotalLocationsChecked int64                  `json:"total_locations_checked" msgpack:"total_locations_checked"`
	TotalItemsReceived    int64                  `json:"total_items_received" msgpack:"total_items_received"`
}

// Target receives a snapshot.
type Target interface {
	WriteSnapshot(snap Snapshot) error
}

// Source provides a snapshot.
type Source interface {
	ReadSnapshot() (Snapshot, error)
}

// EncodeSnapshot serializes snap in format.
func EncodeSnapshot(snap Snapshot, format Format) ([]byte, error) {
	if snap.CheckedLocations == nil {
		snap.CheckedLocations = []int64{}
	}
	if snap.ReceivedItems == nil {
		snap.ReceivedItems = []protocol.NetworkItem{}
	}

	var (
		data []byte
		err  error
	)
	switch format {
	case FormatMsgpack:
		data, err = msgpack.Marshal(snap)
	default:
		data, err = json.MarshalIndent(snap, "", "    ")
	}
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodePersistenceEncodeFailed, "encode "+format.String()+" snapshot", err)
	}
	return data, nil
}

// DecodeSnapshot parses data in format.
func DecodeSnapshot(data []byte, format Format) (Snapshot, error) {
	var snap Snapshot
	var err error
	switch format {
	case FormatMsgpack:
		err = msgpack.Unmarshal(data, &snap)
	default:
		err = json.Unmarshal(data, &snap)
	}
	if err != nil {
		return Snapshot{}, apperrors.Wrap(apperrors.CodePersistenceDecodeFailed, "decode "+format.String()+" snapshot", err)
	}
	return snap, nil
}

// Snapshot captures the checked set, the item log and the counters.
func (s *Store) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	items := make([]protocol.NetworkItem, len(s.items))
	copy(items, s.items)
	return Snapshot{
		CheckedLocations:      s.checkedLocked(),
		ReceivedItems:         items,
		TotalLocationsChecked: s.nChecked,
		TotalItemsReceived:    s.nItems,
	}
}

// Restore replaces the checked set, the item log and the counters with
// snap. Nothing is merged. Stored counters are taken as they are and only
// logged when they disagree with the collections.
func (s *Store) Restore(snap Snapshot) {
	checked := make(map[int64]struct{}, len(snap.CheckedLocations))
	for _, id := range snap.CheckedLocations {
		checked[id] = struct{}{}
	}
	items := make([]protocol.NetworkItem, len(snap.ReceivedItems))
	copy(items, snap.ReceivedItems)

	if snap.TotalLocationsChecked != int64(len(checked)) || snap.TotalItemsReceived != int64(len(items)) {
		s.log.Warn().
			Int64("stored_locations", snap.TotalLocationsChecked).
			Int("locations", len(checked)).
			Int64("stored_items", snap.TotalItemsReceived).
			Int("items", len(items)).
			Msg("snapshot counters disagree with contents")
	}

	s.mu.Lock()
	s.checked = checked
	s.items = items
	s.nChecked = snap.TotalLocationsChecked
	s.nItems = snap.TotalItemsReceived
	s.mu.Unlock()
}

// SaveState writes a snapshot to t.
func (s *Store) SaveState(t Target) error {
	snap := s.Snapshot()
	if err := t.WriteSnapshot(snap); err != nil {
		s.log.Error().Err(err).Msg("save state failed")
		return err
	}
	s.log.Debug().
		Int("locations", len(snap.CheckedLocations)).
		Int("items", len(snap.ReceivedItems)).
		Msg("state saved")
	return nil
}

// LoadState replaces the store contents with the snapshot read from src.
// On error the store is unchanged.
func (s *Store) LoadState(src Source) error {
	snap, err := src.ReadSnapshot()
	if err != nil {
		s.log.Error().Err(err).Msg("load state failed")
		return err
	}
	s.Restore(snap)
	s.log.Debug().
		Int("locations", len(snap.CheckedLocations)).
		Int("items", len(snap.ReceivedItems)).
		Msg("state loaded")
	return nil
}
