// Package protocol encodes outbound packets and decodes inbound packets for
// the multiworld coordination service.
//
// The service speaks JSON. Every websocket text frame carries a list of
// packet objects, each identified by its "cmd" field. Nothing in this
// package performs I/O; callers hand it bytes and get typed values back.
package protocol

import "time"

// Item flag bits reported by the service.
const (
	FlagProgression int32 = 1 << 0
	FlagImportant   int32 = 1 << 1
	FlagTrap        int32 = 1 << 2
)

// NetworkItem is one item placement as reported by the service.
// For received items LocationID is where the item was found and PlayerID
// the slot that found it; for scout results PlayerID owns the item.
type NetworkItem struct {
	ItemID     int64  `json:"item_id" msgpack:"item_id"`
	LocationID int64  `json:"location_id" msgpack:"location_id"`
	PlayerID   int32  `json:"player_id" msgpack:"player_id"`
	PlayerName string `json:"player_name" msgpack:"player_name"`
	Flags      int32  `json:"flags" msgpack:"flags"`
}

// IsProgression reports whether the item unlocks further checks.
func (i NetworkItem) IsProgression() bool { return i.Flags&FlagProgression != 0 }

// IsImportant reports whether the item is flagged useful.
func (i NetworkItem) IsImportant() bool { return i.Flags&FlagImportant != 0 }

// IsTrap reports whether the item is a trap.
func (i NetworkItem) IsTrap() bool { return i.Flags&FlagTrap != 0 }

// NetworkPlayer is one roster entry.
type NetworkPlayer struct {
	Team  int32  `json:"team"`
	Slot  int32  `json:"slot"`
	Name  string `json:"name"`
	Alias string `json:"alias"`
	Game  string `json:"game"`
}

// DisplayName prefers the alias the player chose in the room.
func (p NetworkPlayer) DisplayName() string {
	if p.Alias != "" {
		return p.Alias
	}
	return p.Name
}

// MessageType is the semantic category of a printed message.
type MessageType int

const (
	MessageChat MessageType = iota
	MessageHint
	MessageItemSend
	MessageItemReceived
	MessageLocationChecked
	MessageGoalComplete
	MessageServerInfo
	MessageError
)

var messageTypeNames = [...]string{
	MessageChat:            "Chat",
	MessageHint:            "Hint",
	MessageItemSend:        "ItemSend",
	MessageItemReceived:    "ItemReceived",
	MessageLocationChecked: "LocationChecked",
	MessageGoalComplete:    "GoalComplete",
	MessageServerInfo:      "ServerInfo",
	MessageError:           "Error",
}

func (t MessageType) String() string {
	if t < 0 || int(t) >= len(messageTypeNames) {
		return "Unknown"
	}
	return messageTypeNames[t]
}

// Message is a flattened, display-ready line from the service.
type Message struct {
	Type      MessageType
	Text      string
	Timestamp time.Time
	Priority  int32
}

// ClientStatus values accepted by the StatusUpdate packet.
type ClientStatus int

const (
	StatusUnknown   ClientStatus = 0
	StatusConnected ClientStatus = 5
	StatusReady     ClientStatus = 10
	StatusPlaying   ClientStatus = 20
	StatusGoal      ClientStatus = 30
)

// ItemsHandling flags for the Connect packet.
const (
	ItemsHandlingNone        = 0b000
	ItemsHandlingRemote      = 0b001
	ItemsHandlingOwnWorld    = 0b010
	ItemsHandlingStartingInv = 0b100
	// ItemsHandlingDefault is what the client has always announced.
	ItemsHandlingDefault = 2
)

// NetworkVersion is the protocol version announced in Connect.
type NetworkVersion struct {
	Major int    `json:"major"`
	Minor int    `json:"minor"`
	Build int    `json:"build"`
	Class string `json:"class"`
}

// ProtocolVersion is the version this client implements.
var ProtocolVersion = NetworkVersion{Major: 0, Minor: 5, Build: 0, Class: "Version"}
