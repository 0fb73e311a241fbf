// Package session owns one connection to the coordination service: the
// transport handle, the connection state machine and the network goroutine
// that moves queued commands out and transport events in.
//
// The network goroutine runs one loop per connection:
//
//	drain command queue -> check each command's precondition -> send
//	poll the transport once (delivers buffered events)
//	wait for stop, a new command, or the poll interval
//
// Host goroutines never touch the transport directly. They enqueue commands
// and read state.
package session

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/apsession/client/internal/command"
	"github.com/apsession/client/internal/ident"
	"github.com/apsession/client/internal/log"
	"github.com/apsession/client/internal/protocol"
)

// DefaultPollInterval bounds how long the network goroutine sleeps between
// transport polls when no command arrives.
const DefaultPollInterval = 10 * time.Millisecond

// Config wires a Session to its collaborators.
type Config struct {
	// NewTransport creates the transport for each Connect. Required.
	NewTransport TransportFactory

	// Identity generates the identifier sent in the Connect packet.
	// Default: ident.UUID{}.
	Identity ident.Generator

	// Codec decodes inbound frames.
	Codec protocol.Codec

	// Listener receives state changes and decoded events.
	Listener Listener

	// PollInterval is the maximum sleep between polls. Default: 10ms.
	PollInterval time.Duration

	// ItemsHandling is announced in the Connect packet.
	// Default: protocol.ItemsHandlingDefault.
	ItemsHandling int

	// Tags are announced in the Connect packet. Nil means ["AP"].
	Tags []string

	// LogTraffic logs every frame sent and received at debug level.
	LogTraffic bool
}

// Session is one connection to the service. The zero value is not usable;
// create sessions with New.
type Session struct {
	cfg   Config
	log   zerolog.Logger
	queue *command.Queue

	// lifecycle serializes Connect and Disconnect. The network goroutine
	// never takes it.
	lifecycle sync.Mutex

	// mu guards the fields below.
	mu        sync.Mutex
	state     State
	transport Transport
	uri       string
	game      string
	sessionID string
	tags      []string
	stop      chan struct{}
	done      chan struct{}

	// closing is set by Disconnect before it joins the network goroutine.
	// Transport events observed while it is set are discarded.
	closing atomic.Bool

	dropped atomic.Int64
}

// New creates a disconnected session.
func New(cfg Config) *Session {
	if cfg.Identity == nil {
		cfg.Identity = ident.UUID{}
	}
	if cfg.Listener == nil {
		cfg.Listener = nopListener{}
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	if cfg.ItemsHandling == 0 {
		cfg.ItemsHandling = protocol.ItemsHandlingDefault
	}
	return &Session{
		cfg:   cfg,
		log:   log.Component("session"),
		queue: command.NewQueue(),
		state: Disconnected,
		tags:  cfg.Tags,
	}
}

// SetTags replaces the tags announced by the next Connect packet.
func (s *Session) SetTags(tags []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tags = append([]string(nil), tags...)
}

// State returns the current connection state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// IsConnected reports whether the slot is joined. An open socket that has
// not authenticated yet does not count.
func (s *Session) IsConnected() bool {
	return s.State() == Authenticated
}

// SessionID returns the identifier generated by the last Connect.
func (s *Session) SessionID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sessionID
}

// URI returns the address passed to the last Connect.
func (s *Session) URI() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.uri
}

// Dropped returns how many commands were discarded because their
// precondition did not hold when the network goroutine reached them.
func (s *Session) Dropped() int64 {
	return s.dropped.Load()
}

// Connect opens a transport to uri and starts the network goroutine. It
// returns false without changing state unless the session is Disconnected.
// The handshake completes asynchronously; watch for Connected.
func (s *Session) Connect(uri, game string) bool {
	s.lifecycle.Lock()
	defer s.lifecycle.Unlock()

	if s.State() != Disconnected {
		return false
	}

	// A remote close leaves the previous network goroutine winding down.
	s.joinLoop()
	s.closeTransport()
	if stale := len(s.queue.Drain()); stale > 0 {
		s.dropped.Add(int64(stale))
	}

	id := s.cfg.Identity.SessionID(game)
	t := s.cfg.NewTransport()

	s.closing.Store(false)
	s.mu.Lock()
	s.transport = t
	s.uri = uri
	s.game = game
	s.sessionID = id
	s.mu.Unlock()

	s.log.Info().Str("uri", uri).Str("game", game).Str("session_id", id).Msg("connecting")
	s.setState(Connecting)

	if err := t.Open(uri); err != nil {
		s.log.Error().Err(err).Str("uri", uri).Msg("transport open failed")
		s.setState(Error)
		return false
	}

	stop := make(chan struct{})
	done := make(chan struct{})
	s.mu.Lock()
	s.stop = stop
	s.done = done
	s.mu.Unlock()

	go s.run(t, stop, done)
	return true
}

// Authenticate queues a slot join. It returns false without changing state
// unless the session is Connected.
func (s *Session) Authenticate(slot, password string) bool {
	s.mu.Lock()
	if s.state != Connected {
		s.mu.Unlock()
		return false
	}
	s.state = Authenticating
	s.mu.Unlock()

	s.notify(Connected, Authenticating)
	s.queue.Enqueue(command.Authenticate{Slot: slot, Password: password})
	return true
}

// Enqueue hands a command to the network goroutine. Commands whose
// precondition fails when they are drained are dropped.
func (s *Session) Enqueue(cmd command.Command) {
	s.queue.Enqueue(cmd)
}

// Disconnect stops the network goroutine, waits for it, closes the
// transport and moves to Disconnected. It is safe to call in any state and
// more than once. Once it returns no further callback fires for this
// connection.
func (s *Session) Disconnect() {
	s.lifecycle.Lock()
	defer s.lifecycle.Unlock()

	s.closing.Store(true)
	s.joinLoop()
	s.closeTransport()
	if stale := len(s.queue.Drain()); stale > 0 {
		s.dropped.Add(int64(stale))
	}
	s.setState(Disconnected)
}

// joinLoop signals the network goroutine to stop and waits for it.
// Caller holds lifecycle.
func (s *Session) joinLoop() {
	s.mu.Lock()
	stop, done := s.stop, s.done
	s.stop, s.done = nil, nil
	s.mu.Unlock()

	if stop == nil {
		return
	}
	close(stop)
	<-done
}

// closeTransport closes and forgets the current transport.
// Caller holds lifecycle and has joined the network goroutine.
func (s *Session) closeTransport() {
	s.mu.Lock()
	t := s.transport
	s.transport = nil
	s.mu.Unlock()

	if t == nil {
		return
	}
	if err := t.Close(); err != nil {
		s.log.Debug().Err(err).Msg("transport close")
	}
}

// setState moves to next and notifies the listener if the state changed.
func (s *Session) setState(next State) {
	s.mu.Lock()
	prev := s.state
	s.state = next
	s.mu.Unlock()

	s.notify(prev, next)
}

// transition moves to next only when the current state is one of from.
func (s *Session) transition(next State, from ...State) bool {
	s.mu.Lock()
	prev := s.state
	ok := false
	for _, f := range from {
		if prev == f {
			ok = true
			break
		}
	}
	if ok {
		s.state = next
	}
	s.mu.Unlock()

	if ok {
		s.notify(prev, next)
	}
	return ok
}

func (s *Session) notify(prev, next State) {
	if prev == next {
		return
	}
	s.log.Info().Str("from", prev.String()).Str("to", next.String()).Msg("state changed")
	s.cfg.Listener.StateChanged(next)
}
