// Package sessiontest provides an in-memory transport and a recording
// listener for tests that drive a session without a network.
package sessiontest

import (
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/tidwall/gjson"

	"github.com/apsession/client/internal/protocol"
	"github.com/apsession/client/internal/session"
)

// Transport is a scripted session.Transport. Tests push events with
// AcceptOpen, Receive, Fail and RemoteClose; the session sees them on its
// next Poll. Sent frames are recorded.
type Transport struct {
	mu      sync.Mutex
	uri     string
	opens   int
	closes  int
	openErr error
	sendErr error
	pending []func(session.TransportHandler)
	sent    [][]byte
}

// NewTransport creates an idle fake.
func NewTransport() *Transport {
	return &Transport{}
}

// Factory returns a factory that always hands out t.
func (t *Transport) Factory() session.TransportFactory {
	return func() session.Transport { return t }
}

// FailOpen makes the next Open calls return err.
func (t *Transport) FailOpen(err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.openErr = err
}

// FailSend makes every following Send return err.
func (t *Transport) FailSend(err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.sendErr = err
}

// AcceptOpen completes the handshake on the next poll.
func (t *Transport) AcceptOpen() {
	t.push(func(h session.TransportHandler) { h.OnOpen() })
}

// Receive delivers frame on the next poll.
func (t *Transport) Receive(frame string) {
	data := []byte(frame)
	t.push(func(h session.TransportHandler) { h.OnMessage(data) })
}

// Fail reports a transport error on the next poll.
func (t *Transport) Fail(err error) {
	t.push(func(h session.TransportHandler) { h.OnError(err) })
}

// RemoteClose reports a remote close on the next poll.
func (t *Transport) RemoteClose() {
	t.push(func(h session.TransportHandler) { h.OnClose() })
}

func (t *Transport) push(fn func(session.TransportHandler)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.pending = append(t.pending, fn)
}

// Open implements session.Transport.
func (t *Transport) Open(uri string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.openErr != nil {
		return t.openErr
	}
	t.uri = uri
	t.opens++
	return nil
}

// Send implements session.Transport.
func (t *Transport) Send(data []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.sendErr != nil {
		return t.sendErr
	}
	t.sent = append(t.sent, append([]byte(nil), data...))
	return nil
}

// Poll implements session.Transport.
func (t *Transport) Poll(h session.TransportHandler) {
	t.mu.Lock()
	pending := t.pending
	t.pending = nil
	t.mu.Unlock()

	for _, fn := range pending {
		fn(h)
	}
}

// Close implements session.Transport.
func (t *Transport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closes++
	return nil
}

// URI returns the address of the last successful Open.
func (t *Transport) URI() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.uri
}

// Opens returns how many times Open succeeded.
func (t *Transport) Opens() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.opens
}

// Closes returns how many times Close was called.
func (t *Transport) Closes() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closes
}

// Sent returns a copy of every frame sent so far.
func (t *Transport) Sent() [][]byte {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([][]byte, len(t.sent))
	copy(out, t.sent)
	return out
}

// SentCommands returns the cmd field of every packet sent so far.
func (t *Transport) SentCommands() []string {
	var cmds []string
	for _, frame := range t.Sent() {
		gjson.ParseBytes(frame).ForEach(func(_, p gjson.Result) bool {
			cmds = append(cmds, p.Get("cmd").String())
			return true
		})
	}
	return cmds
}

// SentPackets returns every sent packet whose cmd equals name.
func (t *Transport) SentPackets(name string) []json.RawMessage {
	var out []json.RawMessage
	for _, frame := range t.Sent() {
		gjson.ParseBytes(frame).ForEach(func(_, p gjson.Result) bool {
			if p.Get("cmd").String() == name {
				out = append(out, json.RawMessage(p.Raw))
			}
			return true
		})
	}
	return out
}

// WaitForSent polls until a packet named name was sent or the timeout
// expires.
func (t *Transport) WaitForSent(tb testing.TB, name string, timeout time.Duration) json.RawMessage {
	tb.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if p := t.SentPackets(name); len(p) > 0 {
			return p[0]
		}
		time.Sleep(2 * time.Millisecond)
	}
	tb.Fatalf("no %s packet sent within %v (sent: %v)", name, timeout, t.SentCommands())
	return nil
}

// Listener records everything a session reports.
type Listener struct {
	mu     sync.Mutex
	states []session.State
	events []protocol.Event
}

// StateChanged implements session.Listener.
func (l *Listener) StateChanged(s session.State) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.states = append(l.states, s)
}

// HandleEvent implements session.Listener.
func (l *Listener) HandleEvent(ev protocol.Event) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, ev)
}

// States returns every state reported so far.
func (l *Listener) States() []session.State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]session.State(nil), l.states...)
}

// Events returns every event reported so far.
func (l *Listener) Events() []protocol.Event {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]protocol.Event(nil), l.events...)
}

// Calls returns the total number of callbacks received.
func (l *Listener) Calls() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.states) + len(l.events)
}

// ErrTimeout is reported by wait helpers that give up.
var ErrTimeout = errors.New("sessiontest: timed out")

// WaitForState polls s until it reaches want or the timeout expires.
func WaitForState(tb testing.TB, s *session.Session, want session.State, timeout time.Duration) {
	tb.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if s.State() == want {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	tb.Fatalf("%v: state = %s, want %s", ErrTimeout, s.State(), want)
}

// Handshake frames for tests.
const (
	RoomInfoFrame  = `[{"cmd":"RoomInfo","version":{"major":0,"minor":5,"build":0,"class":"Version"},"seed_name":"seed","players":[],"tags":["AP"],"password":false}]`
	ConnectedFrame = `[{"cmd":"Connected","team":0,"slot":1,"players":[{"team":0,"slot":1,"name":"Alice","alias":"Alice","game":"Selaco"},{"team":0,"slot":2,"name":"Bob","alias":"Bobby","game":"Other"}],"checked_locations":[],"missing_locations":[1,2,3]}]`
	RefusedFrame   = `[{"cmd":"ConnectionRefused","errors":["InvalidSlot"]}]`
)

// Authenticated drives s through the full handshake on t.
func Authenticated(tb testing.TB, s *session.Session, t *Transport) {
	tb.Helper()
	if !s.Connect("ws://localhost:38281", "Selaco") {
		tb.Fatalf("Connect returned false in state %s", s.State())
	}
	t.AcceptOpen()
	WaitForState(tb, s, session.Connected, time.Second)
	t.Receive(RoomInfoFrame)
	if !s.Authenticate("Alice", "") {
		tb.Fatalf("Authenticate returned false in state %s", s.State())
	}
	t.WaitForSent(tb, protocol.CmdConnect, time.Second)
	t.Receive(ConnectedFrame)
	WaitForState(tb, s, session.Authenticated, time.Second)
}
