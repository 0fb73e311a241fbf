package session

import "github.com/apsession/client/internal/protocol"

// TransportHandler receives transport events. Poll invokes it on the
// network goroutine.
type TransportHandler interface {
	OnOpen()
	OnMessage(data []byte)
	OnClose()
	OnError(err error)
}

// Transport is a message-oriented duplex connection.
//
// Open starts connecting and returns without waiting for the handshake.
// Events are buffered by the transport and handed over only when Poll is
// called, so every callback runs on the goroutine that polls. Poll must not
// block. Close must be safe to call more than once.
type Transport interface {
	Open(uri string) error
	Send(data []byte) error
	Poll(h TransportHandler)
	Close() error
}

// TransportFactory creates a fresh Transport for each connection attempt.
type TransportFactory func() Transport

// Listener receives session output. Both methods run on the network
// goroutine, except StateChanged for transitions the host triggers itself
// (Connect, Authenticate, Disconnect), which run on the caller. Listeners
// must not block and must not call Connect or Disconnect.
type Listener interface {
	StateChanged(state State)
	HandleEvent(ev protocol.Event)
}

type nopListener struct{}

func (nopListener) StateChanged(State)         {}
func (nopListener) HandleEvent(protocol.Event) {}
