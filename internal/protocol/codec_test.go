package protocol

import (
	"encoding/json"
	"testing"
	"time"

	apperrors "github.com/apsession/client/internal/errors"
)

func TestParseReceivedItemsDefaultsFlags(t *testing.T) {
	items, err := ParseReceivedItems([]byte(`{"items":[{"item":1,"location":2,"player":3}]}`))
	if err != nil {
		t.Fatalf("ParseReceivedItems failed: %v", err)
	}
	want := NetworkItem{ItemID: 1, LocationID: 2, PlayerID: 3, Flags: 0}
	if len(items) != 1 || items[0] != want {
		t.Fatalf("items = %#v, want [%#v]", items, want)
	}
}

func TestParseReceivedItemsMissingItems(t *testing.T) {
	items, err := ParseReceivedItems([]byte(`{"cmd":"ReceivedItems","index":0}`))
	if err == nil {
		t.Fatal("expected error for missing items field")
	}
	if !apperrors.IsCode(err, apperrors.CodeProtocolMissingField) {
		t.Errorf("code = %q, want %q", apperrors.GetCode(err), apperrors.CodeProtocolMissingField)
	}
	if len(items) != 0 {
		t.Errorf("expected no items, got %d", len(items))
	}
}

func TestParseReceivedItemsKeepsFlags(t *testing.T) {
	items, err := ParseReceivedItems([]byte(`{"items":[{"item":10,"location":20,"player":1,"flags":5}]}`))
	if err != nil {
		t.Fatalf("ParseReceivedItems failed: %v", err)
	}
	if !items[0].IsProgression() || items[0].IsImportant() || !items[0].IsTrap() {
		t.Errorf("flag predicates wrong for flags=5: %#v", items[0])
	}
}

func TestParseRoomInfoValidation(t *testing.T) {
	tests := []struct {
		name    string
		packet  string
		wantErr bool
	}{
		{"complete", `{"cmd":"RoomInfo","version":{"major":0,"minor":5,"build":1},"seed_name":"S1","players":[]}`, false},
		{"missing version", `{"cmd":"RoomInfo","seed_name":"S1","players":[]}`, true},
		{"missing seed", `{"cmd":"RoomInfo","version":{},"players":[]}`, true},
		{"missing players", `{"cmd":"RoomInfo","version":{},"seed_name":"S1"}`, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseRoomInfo([]byte(tt.packet))
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestParseConnected(t *testing.T) {
	packet := `{"cmd":"Connected","team":0,"slot":2,
		"players":[{"team":0,"slot":1,"name":"Ann","alias":"A","game":"Selaco"},{"team":0,"slot":2,"name":"Bob","alias":"","game":"Selaco"}],
		"checked_locations":[7,8],"missing_locations":[9]}`
	c, err := ParseConnected([]byte(packet))
	if err != nil {
		t.Fatalf("ParseConnected failed: %v", err)
	}
	if c.Slot != 2 || c.Team != 0 {
		t.Errorf("slot/team = %d/%d", c.Slot, c.Team)
	}
	if len(c.Players) != 2 || c.Players[0].DisplayName() != "A" || c.Players[1].DisplayName() != "Bob" {
		t.Errorf("players = %#v", c.Players)
	}
	if len(c.CheckedLocations) != 2 || c.CheckedLocations[1] != 8 {
		t.Errorf("checked = %v", c.CheckedLocations)
	}

	if _, err := ParseConnected([]byte(`{"cmd":"Connected","team":0,"players":[]}`)); err == nil {
		t.Fatal("expected error when slot is missing")
	}
}

func TestDeathLinkRoundTrip(t *testing.T) {
	at := time.Unix(1700000000, 0)
	frame, err := EncodeFrame(BuildDeathLink("Bob", "fell into a pit", at))
	if err != nil {
		t.Fatalf("EncodeFrame failed: %v", err)
	}

	var packets []json.RawMessage
	if err := json.Unmarshal(frame, &packets); err != nil || len(packets) != 1 {
		t.Fatalf("frame is not a one-packet list: %s", frame)
	}
	// The service echoes Bounce back as Bounced with the same data.
	var bounce map[string]any
	json.Unmarshal(packets[0], &bounce)
	bounce["cmd"] = CmdBounced
	echoed, _ := json.Marshal(bounce)

	dl, err := ParseDeathLink(echoed)
	if err != nil {
		t.Fatalf("ParseDeathLink failed: %v", err)
	}
	if dl.Source != "Bob" || dl.Cause != "fell into a pit" || int64(dl.Time) != at.Unix() {
		t.Errorf("deathlink = %#v", dl)
	}
}

func TestParseDeathLinkEdgeCases(t *testing.T) {
	dl, err := ParseDeathLink([]byte(`{"cmd":"Bounced","data":{"type":"DeathLink","data":{"time":1,"source":"Ann"}}}`))
	if err != nil {
		t.Fatalf("ParseDeathLink failed: %v", err)
	}
	if dl.Cause != "" {
		t.Errorf("missing cause should default to empty, got %q", dl.Cause)
	}

	if _, err := ParseDeathLink([]byte(`{"cmd":"Bounced","data":{"type":"DeathLink","data":{"time":1}}}`)); err == nil {
		t.Error("expected error when source is missing")
	}
	if _, err := ParseDeathLink([]byte(`{"cmd":"Bounced","data":{"type":"Other","data":{"source":"Ann"}}}`)); err == nil {
		t.Error("expected error for non-DeathLink payload")
	}
}

func TestDetectMessageType(t *testing.T) {
	tests := map[string]MessageType{
		"ItemSend":  MessageItemSend,
		"ItemCheat": MessageItemReceived,
		"Hint":      MessageHint,
		"Join":      MessageServerInfo,
		"Part":      MessageServerInfo,
		"Chat":      MessageChat,
		"Goal":      MessageGoalComplete,
		"":          MessageChat,
		"Countdown": MessageChat,
	}
	for tag, want := range tests {
		if got := DetectMessageType(tag); got != want {
			t.Errorf("DetectMessageType(%q) = %v, want %v", tag, got, want)
		}
	}
}

func TestParseTextSegments(t *testing.T) {
	got := ParseTextSegments([]byte(`[{"text":"Hello "},{"player_name":"Bob"},"!"]`))
	if got != "Hello Bob!" {
		t.Errorf("ParseTextSegments = %q, want %q", got, "Hello Bob!")
	}

	got = ParseTextSegments([]byte(`[{"item_name":"Shotgun","color":"red"}," at ",{"location_name":"Lab"}]`))
	if got != "Shotgun at Lab" {
		t.Errorf("ParseTextSegments = %q", got)
	}
}

func TestDecodeFrame(t *testing.T) {
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	codec := Codec{Clock: func() time.Time { return now }}

	frame := `[
		{"cmd":"PrintJSON","type":"ItemCheat","data":[{"text":"You got "},{"item_name":"Key"}]},
		{"cmd":"ReceivedItems","index":0,"items":[{"item":5,"location":6,"player":1,"flags":1}]},
		{"cmd":"DataPackage","data":{}},
		{"cmd":"Connected","team":0}
	]`
	events, err := codec.Decode([]byte(frame))
	if err == nil {
		t.Fatal("expected joined error for the invalid Connected packet")
	}
	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %d: %#v", len(events), events)
	}

	pj, ok := events[0].(PrintJSON)
	if !ok {
		t.Fatalf("events[0] = %T, want PrintJSON", events[0])
	}
	if pj.Message.Type != MessageItemReceived || pj.Message.Text != "You got Key" || !pj.Message.Timestamp.Equal(now) {
		t.Errorf("message = %#v", pj.Message)
	}

	ri, ok := events[1].(ReceivedItems)
	if !ok || len(ri.Items) != 1 || ri.Items[0].ItemID != 5 {
		t.Errorf("events[1] = %#v", events[1])
	}
}

func TestDecodeSingleObjectFrame(t *testing.T) {
	events, err := Codec{}.Decode([]byte(`{"cmd":"ConnectionRefused","errors":["InvalidSlot"]}`))
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	refused, ok := events[0].(ConnectionRefused)
	if !ok || len(refused.Errors) != 1 || refused.Errors[0] != "InvalidSlot" {
		t.Errorf("event = %#v", events[0])
	}
}

func TestDecodeMalformed(t *testing.T) {
	for _, frame := range []string{`{not json`, `42`, `"text"`} {
		_, err := Codec{}.Decode([]byte(frame))
		if !apperrors.IsCode(err, apperrors.CodeProtocolMalformed) {
			t.Errorf("Decode(%q) err = %v, want %s", frame, err, apperrors.CodeProtocolMalformed)
		}
	}
}

func TestDecodeBouncedAndRetrieved(t *testing.T) {
	frame := `[
		{"cmd":"Bounced","tags":["Tracker"],"data":{"x":1}},
		{"cmd":"Bounced","data":{"type":"DeathLink","data":{"time":2,"source":"Ann","cause":"lava"}}},
		{"cmd":"Retrieved","keys":{"a":1,"b":{"c":true}}},
		{"cmd":"RoomUpdate","checked_locations":[3]}
	]`
	events, err := Codec{}.Decode([]byte(frame))
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if b, ok := events[0].(Bounced); !ok || string(b.Data) != `{"x":1}` || b.Tags[0] != "Tracker" {
		t.Errorf("events[0] = %#v", events[0])
	}
	if dl, ok := events[1].(DeathLink); !ok || dl.Cause != "lava" {
		t.Errorf("events[1] = %#v", events[1])
	}
	if r, ok := events[2].(Retrieved); !ok || string(r.Keys["b"]) != `{"c":true}` {
		t.Errorf("events[2] = %#v", events[2])
	}
	if ru, ok := events[3].(RoomUpdate); !ok || ru.HasPlayers || len(ru.CheckedLocations) != 1 {
		t.Errorf("events[3] = %#v", events[3])
	}
}

func TestBuildConnectWireShape(t *testing.T) {
	frame, err := EncodeFrame(BuildConnect("Selaco", "Bob", "pw", "uuid-1", ItemsHandlingDefault, nil))
	if err != nil {
		t.Fatalf("EncodeFrame failed: %v", err)
	}
	var got []map[string]any
	if err := json.Unmarshal(frame, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	p := got[0]
	if p["cmd"] != "Connect" || p["game"] != "Selaco" || p["name"] != "Bob" || p["password"] != "pw" || p["uuid"] != "uuid-1" {
		t.Errorf("connect packet = %v", p)
	}
	if p["items_handling"] != float64(2) {
		t.Errorf("items_handling = %v", p["items_handling"])
	}
	version := p["version"].(map[string]any)
	if version["minor"] != float64(5) || version["class"] != "Version" {
		t.Errorf("version = %v", version)
	}
	tags := p["tags"].([]any)
	if len(tags) != 1 || tags[0] != "AP" {
		t.Errorf("tags = %v", tags)
	}
}

func TestBuildSmallPackets(t *testing.T) {
	tests := []struct {
		name   string
		packet Packet
		want   string
	}{
		{"checks", BuildLocationChecks([]int64{6, 7}), `[{"cmd":"LocationChecks","locations":[6,7]}]`},
		{"empty checks", BuildLocationChecks(nil), `[{"cmd":"LocationChecks","locations":[]}]`},
		{"scouts", BuildLocationScouts([]int64{1}, false), `[{"cmd":"LocationScouts","locations":[1],"create_as_hint":0}]`},
		{"status", BuildStatusUpdate(StatusGoal), `[{"cmd":"StatusUpdate","status":30}]`},
		{"say", BuildSay("hi"), `[{"cmd":"Say","text":"hi"}]`},
		{"get", BuildGet([]string{"k"}), `[{"cmd":"Get","keys":["k"]}]`},
		{"set", BuildSet("k", 3), `[{"cmd":"Set","key":"k","default":null,"want_reply":true,"operations":[{"operation":"replace","value":3}]}]`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := EncodeFrame(tt.packet)
			if err != nil {
				t.Fatalf("EncodeFrame failed: %v", err)
			}
			if string(got) != tt.want {
				t.Errorf("frame = %s, want %s", got, tt.want)
			}
		})
	}
}
