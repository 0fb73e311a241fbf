// Package command defines the outbound operations the host can request and
// the queue that carries them to the network goroutine.
package command

import "github.com/apsession/client/internal/protocol"

// Command is a closed set of outbound operations. Only types in this package
// implement it, so a type switch over the cases below is exhaustive.
type Command interface {
	// Name is a short label for logs.
	Name() string
	isCommand()
}

// Authenticate joins a slot on an open connection.
type Authenticate struct {
	Slot     string
	Password string
}

// CheckLocations reports locations as checked.
type CheckLocations struct {
	IDs []int64
}

// ScoutLocations asks for the items placed at locations.
type ScoutLocations struct {
	IDs          []int64
	CreateAsHint bool
}

// SendChat sends one chat line.
type SendChat struct {
	Text string
}

// SendBounce relays an opaque payload. Payload is marshaled as the packet's
// data field; Games, Slots and Tags narrow the recipients when set.
type SendBounce struct {
	Payload any
	Games   []string
	Slots   []int32
	Tags    []string
}

// GetData reads keys from the service data storage.
type GetData struct {
	Keys []string
}

// SetData replaces a key in the service data storage.
type SetData struct {
	Key   string
	Value any
}

// StatusUpdate reports the client status.
type StatusUpdate struct {
	Status protocol.ClientStatus
}

func (Authenticate) Name() string   { return "authenticate" }
func (CheckLocations) Name() string { return "check_locations" }
func (ScoutLocations) Name() string { return "scout_locations" }
func (SendChat) Name() string       { return "send_chat" }
func (SendBounce) Name() string     { return "send_bounce" }
func (GetData) Name() string        { return "get_data" }
func (SetData) Name() string        { return "set_data" }
func (StatusUpdate) Name() string   { return "status_update" }

func (Authenticate) isCommand()   {}
func (CheckLocations) isCommand() {}
func (ScoutLocations) isCommand() {}
func (SendChat) isCommand()       {}
func (SendBounce) isCommand()     {}
func (GetData) isCommand()        {}
func (SetData) isCommand()        {}
func (StatusUpdate) isCommand()   {}
