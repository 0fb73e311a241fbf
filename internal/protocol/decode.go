package protocol

import (
	"encoding/json"
	stderrors "errors"
	"time"

	"github.com/tidwall/gjson"

	apperrors "github.com/apsession/client/internal/errors"
)

// Inbound command names.
const (
	CmdRoomInfo          = "RoomInfo"
	CmdConnectionRefused = "ConnectionRefused"
	CmdConnected         = "Connected"
	CmdReceivedItems     = "ReceivedItems"
	CmdLocationInfo      = "LocationInfo"
	CmdRoomUpdate        = "RoomUpdate"
	CmdPrintJSON         = "PrintJSON"
	CmdDataPackage       = "DataPackage"
	CmdBounced           = "Bounced"
	CmdRetrieved         = "Retrieved"
	CmdSetReply          = "SetReply"
	CmdInvalidPacket     = "InvalidPacket"
)

// Event is a decoded inbound packet.
type Event interface {
	Command() string
}

// RoomInfo is the first packet the service sends after the socket opens.
type RoomInfo struct {
	Version  NetworkVersion
	SeedName string
	Players  []NetworkPlayer
	Tags     []string
	Password bool
}

// ConnectionRefused reports why the service rejected a Connect.
type ConnectionRefused struct {
	Errors []string
}

// Connected acknowledges a successful slot join.
type Connected struct {
	Team             int32
	Slot             int32
	Players          []NetworkPlayer
	CheckedLocations []int64
	MissingLocations []int64
}

// ReceivedItems delivers items starting at Index of the slot's item list.
type ReceivedItems struct {
	Index int64
	Items []NetworkItem
}

// LocationInfo answers a LocationScouts request.
type LocationInfo struct {
	Locations []NetworkItem
}

// RoomUpdate carries incremental room changes. Players is only meaningful
// when HasPlayers is set, in which case it replaces the roster.
type RoomUpdate struct {
	HasPlayers       bool
	Players          []NetworkPlayer
	CheckedLocations []int64
}

// PrintJSON is a printable message, already flattened.
type PrintJSON struct {
	Message Message
	Tag     string
}

// Bounced is a relayed payload that is not a recognized sub-protocol.
type Bounced struct {
	Games []string
	Slots []int32
	Tags  []string
	Data  json.RawMessage
}

// DeathLink is a relayed DeathLink event.
type DeathLink struct {
	Time   float64
	Source string
	Cause  string
}

// Retrieved answers a Get packet.
type Retrieved struct {
	Keys map[string]json.RawMessage
}

// SetReply reports a data storage change.
type SetReply struct {
	Key           string
	Value         json.RawMessage
	OriginalValue json.RawMessage
}

// InvalidPacket is the service telling us a packet we sent was rejected.
type InvalidPacket struct {
	Type        string
	OriginalCmd string
	Text        string
}

func (RoomInfo) Command() string          { return CmdRoomInfo }
func (ConnectionRefused) Command() string { return CmdConnectionRefused }
func (Connected) Command() string         { return CmdConnected }
func (ReceivedItems) Command() string     { return CmdReceivedItems }
func (LocationInfo) Command() string      { return CmdLocationInfo }
func (RoomUpdate) Command() string        { return CmdRoomUpdate }
func (PrintJSON) Command() string         { return CmdPrintJSON }
func (Bounced) Command() string           { return CmdBounced }
func (DeathLink) Command() string         { return CmdBounced }
func (Retrieved) Command() string         { return CmdRetrieved }
func (SetReply) Command() string          { return CmdSetReply }
func (InvalidPacket) Command() string     { return CmdInvalidPacket }

// Codec decodes inbound frames. The zero value is ready to use and stamps
// messages with time.Now.
type Codec struct {
	// Clock stamps decoded messages. Nil means time.Now.
	Clock func() time.Time
}

func (c Codec) now() time.Time {
	if c.Clock != nil {
		return c.Clock()
	}
	return time.Now()
}

// Decode splits a frame into packets and decodes each one.
//
// A frame may be a list of packets or, for older servers, a single packet
// object. Packets that fail validation are skipped and their errors joined
// into the returned error, so one bad packet never hides the rest. Unknown
// commands are skipped silently.
func (c Codec) Decode(frame []byte) ([]Event, error) {
	if !gjson.ValidBytes(frame) {
		return nil, apperrors.Malformed("frame is not valid JSON")
	}

	root := gjson.ParseBytes(frame)
	var packets []gjson.Result
	switch {
	case root.IsArray():
		packets = root.Array()
	case root.IsObject():
		packets = []gjson.Result{root}
	default:
		return nil, apperrors.Malformed("frame is neither a packet nor a list of packets")
	}

	var events []Event
	var errs []error
	for _, p := range packets {
		ev, err := c.decodePacket(p)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if ev != nil {
			events = append(events, ev)
		}
	}
	return events, stderrors.Join(errs...)
}

// PacketCommand returns the "cmd" of a single packet object, or "".
func PacketCommand(packet []byte) string {
	return gjson.GetBytes(packet, "cmd").String()
}

func (c Codec) decodePacket(p gjson.Result) (Event, error) {
	if !p.IsObject() {
		return nil, apperrors.Malformed("packet is not an object")
	}
	cmd := p.Get("cmd")
	if !cmd.Exists() {
		return nil, apperrors.MissingField("inbound", "cmd")
	}

	switch cmd.String() {
	case CmdRoomInfo:
		return parseRoomInfo(p)
	case CmdConnectionRefused:
		return ConnectionRefused{Errors: stringList(p.Get("errors"))}, nil
	case CmdConnected:
		return parseConnected(p)
	case CmdReceivedItems:
		return parseReceivedItems(p)
	case CmdLocationInfo:
		return parseLocationInfo(p)
	case CmdRoomUpdate:
		return parseRoomUpdate(p)
	case CmdPrintJSON:
		return c.parsePrintJSON(p)
	case CmdBounced:
		if p.Get("data.type").String() == DeathLinkType {
			return parseDeathLink(p)
		}
		return Bounced{
			Games: stringList(p.Get("games")),
			Slots: int32List(p.Get("slots")),
			Tags:  stringList(p.Get("tags")),
			Data:  rawOrNil(p.Get("data")),
		}, nil
	case CmdRetrieved:
		return parseRetrieved(p)
	case CmdSetReply:
		return SetReply{
			Key:           p.Get("key").String(),
			Value:         rawOrNil(p.Get("value")),
			OriginalValue: rawOrNil(p.Get("original_value")),
		}, nil
	case CmdInvalidPacket:
		return InvalidPacket{
			Type:        p.Get("type").String(),
			OriginalCmd: p.Get("original_cmd").String(),
			Text:        p.Get("text").String(),
		}, nil
	default:
		return nil, nil
	}
}

// ParseRoomInfo validates and decodes a RoomInfo packet. Version, seed_name
// and players must all be present.
func ParseRoomInfo(packet []byte) (RoomInfo, error) {
	return parseRoomInfo(gjson.ParseBytes(packet))
}

// ParseConnected validates and decodes a Connected packet. Team, slot and
// players must all be present.
func ParseConnected(packet []byte) (Connected, error) {
	return parseConnected(gjson.ParseBytes(packet))
}

// ParseReceivedItems decodes the items of a ReceivedItems packet. A missing
// flags field reads as 0; a missing items field is an error.
func ParseReceivedItems(packet []byte) ([]NetworkItem, error) {
	ri, err := parseReceivedItems(gjson.ParseBytes(packet))
	if err != nil {
		return nil, err
	}
	return ri.Items, nil
}

// ParseDeathLink decodes a Bounced packet whose payload is a DeathLink.
func ParseDeathLink(packet []byte) (DeathLink, error) {
	return parseDeathLink(gjson.ParseBytes(packet))
}

func parseRoomInfo(p gjson.Result) (RoomInfo, error) {
	if missing := missingFields(p, "version", "seed_name", "players"); len(missing) > 0 {
		return RoomInfo{}, apperrors.MissingField(CmdRoomInfo, missing...)
	}
	players, err := parsePlayers(CmdRoomInfo, p.Get("players"))
	if err != nil {
		return RoomInfo{}, err
	}
	v := p.Get("version")
	return RoomInfo{
		Version: NetworkVersion{
			Major: int(v.Get("major").Int()),
			Minor: int(v.Get("minor").Int()),
			Build: int(v.Get("build").Int()),
			Class: v.Get("class").String(),
		},
		SeedName: p.Get("seed_name").String(),
		Players:  players,
		Tags:     stringList(p.Get("tags")),
		Password: p.Get("password").Bool(),
	}, nil
}

func parseConnected(p gjson.Result) (Connected, error) {
	if missing := missingFields(p, "team", "slot", "players"); len(missing) > 0 {
		return Connected{}, apperrors.MissingField(CmdConnected, missing...)
	}
	players, err := parsePlayers(CmdConnected, p.Get("players"))
	if err != nil {
		return Connected{}, err
	}
	return Connected{
		Team:             int32(p.Get("team").Int()),
		Slot:             int32(p.Get("slot").Int()),
		Players:          players,
		CheckedLocations: int64List(p.Get("checked_locations")),
		MissingLocations: int64List(p.Get("missing_locations")),
	}, nil
}

func parseReceivedItems(p gjson.Result) (ReceivedItems, error) {
	items, err := parseItems(CmdReceivedItems, "items", p.Get("items"))
	if err != nil {
		return ReceivedItems{}, err
	}
	return ReceivedItems{Index: p.Get("index").Int(), Items: items}, nil
}

func parseLocationInfo(p gjson.Result) (LocationInfo, error) {
	items, err := parseItems(CmdLocationInfo, "locations", p.Get("locations"))
	if err != nil {
		return LocationInfo{}, err
	}
	return LocationInfo{Locations: items}, nil
}

func parseRoomUpdate(p gjson.Result) (RoomUpdate, error) {
	var ru RoomUpdate
	if players := p.Get("players"); players.Exists() {
		list, err := parsePlayers(CmdRoomUpdate, players)
		if err != nil {
			return RoomUpdate{}, err
		}
		ru.HasPlayers = true
		ru.Players = list
	}
	ru.CheckedLocations = int64List(p.Get("checked_locations"))
	return ru, nil
}

func (c Codec) parsePrintJSON(p gjson.Result) (PrintJSON, error) {
	data := p.Get("data")
	if !data.Exists() {
		return PrintJSON{}, apperrors.MissingField(CmdPrintJSON, "data")
	}
	tag := p.Get("type").String()
	msg := Message{
		Type:      DetectMessageType(tag),
		Timestamp: c.now(),
	}
	if data.IsArray() {
		msg.Text = parseSegments(data)
	}
	return PrintJSON{Message: msg, Tag: tag}, nil
}

func parseDeathLink(p gjson.Result) (DeathLink, error) {
	envelope := p.Get("data")
	if !envelope.Exists() || !envelope.Get("type").Exists() {
		return DeathLink{}, apperrors.MissingField(CmdBounced, "data.type")
	}
	if envelope.Get("type").String() != DeathLinkType {
		return DeathLink{}, apperrors.UnexpectedType(CmdBounced, "data.type", DeathLinkType)
	}
	inner := envelope.Get("data")
	source := inner.Get("source")
	if !source.Exists() {
		return DeathLink{}, apperrors.MissingField(CmdBounced, "data.data.source")
	}
	return DeathLink{
		Time:   inner.Get("time").Float(),
		Source: source.String(),
		Cause:  inner.Get("cause").String(),
	}, nil
}

func parseRetrieved(p gjson.Result) (Retrieved, error) {
	keys := p.Get("keys")
	if !keys.Exists() {
		return Retrieved{}, apperrors.MissingField(CmdRetrieved, "keys")
	}
	if !keys.IsObject() {
		return Retrieved{}, apperrors.UnexpectedType(CmdRetrieved, "keys", "an object")
	}
	out := make(map[string]json.RawMessage)
	keys.ForEach(func(k, v gjson.Result) bool {
		out[k.String()] = json.RawMessage(v.Raw)
		return true
	})
	return Retrieved{Keys: out}, nil
}

func parsePlayers(cmd string, r gjson.Result) ([]NetworkPlayer, error) {
	if !r.IsArray() {
		return nil, apperrors.UnexpectedType(cmd, "players", "an array")
	}
	entries := r.Array()
	players := make([]NetworkPlayer, 0, len(entries))
	for _, e := range entries {
		players = append(players, NetworkPlayer{
			Team:  int32(e.Get("team").Int()),
			Slot:  int32(e.Get("slot").Int()),
			Name:  e.Get("name").String(),
			Alias: e.Get("alias").String(),
			Game:  e.Get("game").String(),
		})
	}
	return players, nil
}

func parseItems(cmd, field string, r gjson.Result) ([]NetworkItem, error) {
	if !r.Exists() {
		return nil, apperrors.MissingField(cmd, field)
	}
	if !r.IsArray() {
		return nil, apperrors.UnexpectedType(cmd, field, "an array")
	}
	entries := r.Array()
	items := make([]NetworkItem, 0, len(entries))
	for _, e := range entries {
		if missing := missingFields(e, "item", "location", "player"); len(missing) > 0 {
			return nil, apperrors.MissingField(cmd, missing...)
		}
		items = append(items, NetworkItem{
			ItemID:     e.Get("item").Int(),
			LocationID: e.Get("location").Int(),
			PlayerID:   int32(e.Get("player").Int()),
			Flags:      int32(e.Get("flags").Int()),
		})
	}
	return items, nil
}

func missingFields(p gjson.Result, fields ...string) []string {
	var missing []string
	for _, f := range fields {
		if !p.Get(f).Exists() {
			missing = append(missing, f)
		}
	}
	return missing
}

func int64List(r gjson.Result) []int64 {
	if !r.IsArray() {
		return nil
	}
	entries := r.Array()
	out := make([]int64, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.Int())
	}
	return out
}

func int32List(r gjson.Result) []int32 {
	if !r.IsArray() {
		return nil
	}
	entries := r.Array()
	out := make([]int32, 0, len(entries))
	for _, e := range entries {
		out = append(out, int32(e.Int()))
	}
	return out
}

func stringList(r gjson.Result) []string {
	if !r.IsArray() {
		return nil
	}
	entries := r.Array()
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.String())
	}
	return out
}

func rawOrNil(r gjson.Result) json.RawMessage {
	if !r.Exists() {
		return nil
	}
	return json.RawMessage(r.Raw)
}
