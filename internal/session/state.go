package session

// State is the connection state of a Session.
type State int32

const (
	// Disconnected is the initial state and the state after Disconnect or a
	// remote close.
	Disconnected State = iota
	// Connecting means the transport is being opened.
	Connecting
	// Connected means the socket is open but no slot is joined.
	Connected
	// Authenticating means a Connect packet is queued or in flight.
	Authenticating
	// Authenticated means the slot is joined and game traffic may flow.
	Authenticated
	// ConnectionRefused means the service rejected the slot join.
	ConnectionRefused
	// Error means the transport failed. The host must Disconnect before
	// connecting again.
	Error
)

var stateNames = [...]string{
	Disconnected:      "Disconnected",
	Connecting:        "Connecting",
	Connected:         "Connected",
	Authenticating:    "Authenticating",
	Authenticated:     "Authenticated",
	ConnectionRefused: "Connection Refused",
	Error:             "Error",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "Unknown"
	}
	return stateNames[s]
}
