package protocol

import (
	"encoding/json"
	"time"
)

// Outbound command names.
const (
	CmdConnect        = "Connect"
	CmdLocationChecks = "LocationChecks"
	CmdLocationScouts = "LocationScouts"
	CmdStatusUpdate   = "StatusUpdate"
	CmdSay            = "Say"
	CmdBounce         = "Bounce"
	CmdGet            = "Get"
	CmdSet            = "Set"
)

// DeathLinkType tags a Bounce payload as a DeathLink event.
const DeathLinkType = "DeathLink"

// Packet is any outbound packet. Concrete packets marshal to one JSON object
// carrying their command name in "cmd".
type Packet interface {
	Command() string
}

// ConnectPacket joins a slot.
type ConnectPacket struct {
	Cmd           string         `json:"cmd"`
	Password      string         `json:"password"`
	Game          string         `json:"game"`
	Name          string         `json:"name"`
	UUID          string         `json:"uuid"`
	Version       NetworkVersion `json:"version"`
	ItemsHandling int            `json:"items_handling"`
	Tags          []string       `json:"tags"`
}

func (ConnectPacket) Command() string { return CmdConnect }

// LocationChecksPacket reports checked locations.
type LocationChecksPacket struct {
	Cmd       string  `json:"cmd"`
	Locations []int64 `json:"locations"`
}

func (LocationChecksPacket) Command() string { return CmdLocationChecks }

// LocationScoutsPacket asks what sits at locations without checking them.
type LocationScoutsPacket struct {
	Cmd          string  `json:"cmd"`
	Locations    []int64 `json:"locations"`
	CreateAsHint int     `json:"create_as_hint"`
}

func (LocationScoutsPacket) Command() string { return CmdLocationScouts }

// StatusUpdatePacket reports the client status.
type StatusUpdatePacket struct {
	Cmd    string       `json:"cmd"`
	Status ClientStatus `json:"status"`
}

func (StatusUpdatePacket) Command() string { return CmdStatusUpdate }

// SayPacket sends a chat line.
type SayPacket struct {
	Cmd  string `json:"cmd"`
	Text string `json:"text"`
}

func (SayPacket) Command() string { return CmdSay }

// BouncePacket relays an opaque payload to other clients.
type BouncePacket struct {
	Cmd   string   `json:"cmd"`
	Games []string `json:"games,omitempty"`
	Slots []int32  `json:"slots,omitempty"`
	Tags  []string `json:"tags,omitempty"`
	Data  any      `json:"data"`
}

func (BouncePacket) Command() string { return CmdBounce }

// GetPacket reads keys from the service data storage.
type GetPacket struct {
	Cmd  string   `json:"cmd"`
	Keys []string `json:"keys"`
}

func (GetPacket) Command() string { return CmdGet }

// DataStorageOperation is one step applied by a Set packet.
type DataStorageOperation struct {
	Operation string `json:"operation"`
	Value     any    `json:"value"`
}

// SetPacket writes a key in the service data storage.
type SetPacket struct {
	Cmd        string                 `json:"cmd"`
	Key        string                 `json:"key"`
	Default    any                    `json:"default"`
	WantReply  bool                   `json:"want_reply"`
	Operations []DataStorageOperation `json:"operations"`
}

func (SetPacket) Command() string { return CmdSet }

// DeathLinkData is the inner DeathLink payload.
type DeathLinkData struct {
	Time   int64  `json:"time"`
	Source string `json:"source"`
	Cause  string `json:"cause,omitempty"`
}

type deathLinkEnvelope struct {
	Type string        `json:"type"`
	Data DeathLinkData `json:"data"`
}

// BuildConnect builds the slot join packet.
func BuildConnect(game, name, password, uuid string, itemsHandling int, tags []string) ConnectPacket {
	if tags == nil {
		tags = []string{"AP"}
	}
	return ConnectPacket{
		Cmd:           CmdConnect,
		Password:      password,
		Game:          game,
		Name:          name,
		UUID:          uuid,
		Version:       ProtocolVersion,
		ItemsHandling: itemsHandling,
		Tags:          tags,
	}
}

// BuildLocationChecks builds a LocationChecks packet.
func BuildLocationChecks(locations []int64) LocationChecksPacket {
	return LocationChecksPacket{Cmd: CmdLocationChecks, Locations: nonNil(locations)}
}

// BuildLocationScouts builds a LocationScouts packet.
func BuildLocationScouts(locations []int64, createAsHint bool) LocationScoutsPacket {
	hint := 0
	if createAsHint {
		hint = 1
	}
	return LocationScoutsPacket{Cmd: CmdLocationScouts, Locations: nonNil(locations), CreateAsHint: hint}
}

// BuildStatusUpdate builds a StatusUpdate packet.
func BuildStatusUpdate(status ClientStatus) StatusUpdatePacket {
	return StatusUpdatePacket{Cmd: CmdStatusUpdate, Status: status}
}

// BuildSay builds a chat packet.
func BuildSay(text string) SayPacket {
	return SayPacket{Cmd: CmdSay, Text: text}
}

// BuildBounce builds a Bounce packet around data.
func BuildBounce(data any) BouncePacket {
	return BouncePacket{Cmd: CmdBounce, Data: data}
}

// BuildDeathLink builds a Bounce packet carrying a DeathLink event.
// An empty cause is omitted from the payload.
func BuildDeathLink(source, cause string, at time.Time) BouncePacket {
	return BuildBounce(deathLinkEnvelope{
		Type: DeathLinkType,
		Data: DeathLinkData{
			Time:   at.Unix(),
			Source: source,
			Cause:  cause,
		},
	})
}

// BuildGet builds a data storage read.
func BuildGet(keys []string) GetPacket {
	if keys == nil {
		keys = []string{}
	}
	return GetPacket{Cmd: CmdGet, Keys: keys}
}

// BuildSet builds a data storage write that replaces the key's value.
func BuildSet(key string, value any) SetPacket {
	return SetPacket{
		Cmd:        CmdSet,
		Key:        key,
		WantReply:  true,
		Operations: []DataStorageOperation{{Operation: "replace", Value: value}},
	}
}

// EncodeFrame marshals packets into one wire frame.
func EncodeFrame(packets ...Packet) ([]byte, error) {
	if packets == nil {
		packets = []Packet{}
	}
	return json.Marshal(packets)
}

func nonNil(ids []int64) []int64 {
	if ids == nil {
		return []int64{}
	}
	return ids
}
