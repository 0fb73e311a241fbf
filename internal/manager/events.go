package manager

import (
	"encoding/json"
	"time"

	"github.com/apsession/client/internal/protocol"
	"github.com/apsession/client/internal/session"
)

// Event is published on the bus. The concrete types below are the whole set.
type Event interface {
	// Name is a short label for logs.
	Name() string
	isEvent()
}

// StatusChanged reports a connection state transition.
type StatusChanged struct {
	State     session.State
	SessionID string
	URI       string
}

// ItemsReceived carries one ReceivedItems packet. PlayerName is filled from
// the roster.
type ItemsReceived struct {
	Index int64
	Items []protocol.NetworkItem
}

// LocationsChecked lists locations the service confirmed as checked that
// were not checked before.
type LocationsChecked struct {
	IDs []int64
}

// MessageReceived carries one display line.
type MessageReceived struct {
	Message protocol.Message
}

// PlayersUpdated carries the full replacement roster.
type PlayersUpdated struct {
	Players []protocol.NetworkPlayer
}

// DeathLinkReceived reports another player's death.
type DeathLinkReceived struct {
	Source string
	Cause  string
	Time   time.Time
}

// ScoutResults carries the items placed at scouted locations.
type ScoutResults struct {
	Locations []protocol.NetworkItem
}

// DataReceived carries data storage values from a Retrieved or SetReply.
type DataReceived struct {
	Keys map[string]json.RawMessage
}

// RoomInfoReceived carries the room greeting.
type RoomInfoReceived struct {
	Info protocol.RoomInfo
}

// BounceReceived carries a relayed payload that is not a DeathLink.
type BounceReceived struct {
	Games []string
	Slots []int32
	Tags  []string
	Data  json.RawMessage
}

func (StatusChanged) Name() string     { return "status_changed" }
func (ItemsReceived) Name() string     { return "items_received" }
func (LocationsChecked) Name() string  { return "locations_checked" }
func (MessageReceived) Name() string   { return "message_received" }
func (PlayersUpdated) Name() string    { return "players_updated" }
func (DeathLinkReceived) Name() string { return "deathlink_received" }
func (ScoutResults) Name() string      { return "scout_results" }
func (DataReceived) Name() string      { return "data_received" }
func (RoomInfoReceived) Name() string  { return "roominfo_received" }
func (BounceReceived) Name() string    { return "bounce_received" }

func (StatusChanged) isEvent()     {}
func (ItemsReceived) isEvent()     {}
func (LocationsChecked) isEvent()  {}
func (MessageReceived) isEvent()   {}
func (PlayersUpdated) isEvent()    {}
func (DeathLinkReceived) isEvent() {}
func (ScoutResults) isEvent()      {}
func (DataReceived) isEvent()      {}
func (RoomInfoReceived) isEvent()  {}
func (BounceReceived) isEvent()    {}
