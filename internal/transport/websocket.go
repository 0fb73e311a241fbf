// Package transport provides the default WebSocket transport for a session.
package transport

import (
	"context"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	apperrors "github.com/apsession/client/internal/errors"
	"github.com/apsession/client/internal/log"
	"github.com/apsession/client/internal/session"
)

const (
	defaultHandshakeTimeout = 10 * time.Second
	defaultWriteTimeout     = 10 * time.Second
	defaultPingInterval     = 30 * time.Second

	// Servers send the whole data package and roster in one frame.
	defaultReadLimit = 16 << 20
)

// Options tunes a WebSocket. Zero values select the defaults.
type Options struct {
	Dialer           *websocket.Dialer
	HandshakeTimeout time.Duration
	WriteTimeout     time.Duration
	PingInterval     time.Duration
	ReadLimit        int64
}

type eventKind int

const (
	evOpen eventKind = iota
	evMessage
	evClose
	evError
)

type event struct {
	kind eventKind
	data []byte
	err  error
}

// WebSocket is a session.Transport over gorilla/websocket.
//
// Open dials in the background. A reader goroutine buffers every frame and
// lifecycle event; Poll hands the buffer to the caller's handler without
// blocking. The buffer is unbounded so the reader never stalls on a slow
// poller.
type WebSocket struct {
	opts Options
	log  zerolog.Logger

	mu      sync.Mutex
	conn    *websocket.Conn
	events  []event
	closed  bool
	cancel  context.CancelFunc
	stop    chan struct{}
	readers sync.WaitGroup

	writeMu sync.Mutex
}

// New creates an unopened WebSocket transport.
func New(opts Options) *WebSocket {
	if opts.Dialer == nil {
		opts.Dialer = websocket.DefaultDialer
	}
	if opts.HandshakeTimeout <= 0 {
		opts.HandshakeTimeout = defaultHandshakeTimeout
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = defaultWriteTimeout
	}
	if opts.PingInterval <= 0 {
		opts.PingInterval = defaultPingInterval
	}
	if opts.ReadLimit <= 0 {
		opts.ReadLimit = defaultReadLimit
	}
	return &WebSocket{
		opts: opts,
		log:  log.Component("transport"),
		stop: make(chan struct{}),
	}
}

// Factory returns a session.TransportFactory producing WebSockets with opts.
func Factory(opts Options) session.TransportFactory {
	return func() session.Transport { return New(opts) }
}

// Open validates uri and starts dialing it. Handshake success or failure
// arrives later through Poll.
func (w *WebSocket) Open(uri string) error {
	u, err := url.Parse(uri)
	if err != nil {
		return apperrors.OpenFailed(uri, err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return apperrors.OpenFailed(uri, apperrors.New(apperrors.CodeTransportOpenFailed, "scheme must be ws or wss"))
	}

	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return apperrors.New(apperrors.CodeTransportClosed, "transport is closed")
	}
	if w.cancel != nil {
		w.mu.Unlock()
		return apperrors.New(apperrors.CodeTransportOpenFailed, "transport already opened")
	}
	ctx, cancel := context.WithTimeout(context.Background(), w.opts.HandshakeTimeout)
	w.cancel = cancel
	w.readers.Add(1)
	w.mu.Unlock()

	go w.dial(ctx, uri)
	return nil
}

func (w *WebSocket) dial(ctx context.Context, uri string) {
	defer w.readers.Done()

	conn, _, err := w.opts.Dialer.DialContext(ctx, uri, nil)
	if err != nil {
		w.push(event{kind: evError, err: apperrors.OpenFailed(uri, err)})
		return
	}

	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		conn.Close()
		return
	}
	w.conn = conn
	w.mu.Unlock()

	w.log.Debug().Str("uri", uri).Msg("websocket open")
	w.push(event{kind: evOpen})

	w.readers.Add(1)
	go w.keepalive(conn)
	w.read(conn)
}

// read loops until the connection fails or is closed.
func (w *WebSocket) read(conn *websocket.Conn) {
	pongWait := 2 * w.opts.PingInterval
	conn.SetReadLimit(w.opts.ReadLimit)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		kind, data, err := conn.ReadMessage()
		if err != nil {
			if w.isClosed() {
				return
			}
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				w.push(event{kind: evClose})
				return
			}
			w.push(event{kind: evError, err: apperrors.Wrap(apperrors.CodeTransportClosed, "read failed", err)})
			return
		}
		conn.SetReadDeadline(time.Now().Add(pongWait))
		if kind != websocket.TextMessage && kind != websocket.BinaryMessage {
			continue
		}
		w.push(event{kind: evMessage, data: data})
	}
}

// keepalive pings the server until Close.
func (w *WebSocket) keepalive(conn *websocket.Conn) {
	defer w.readers.Done()

	ticker := time.NewTicker(w.opts.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-w.stop:
			return
		case <-ticker.C:
			w.writeMu.Lock()
			conn.SetWriteDeadline(time.Now().Add(w.opts.WriteTimeout))
			err := conn.WriteMessage(websocket.PingMessage, nil)
			w.writeMu.Unlock()
			if err != nil {
				w.log.Debug().Err(err).Msg("ping failed")
				return
			}
		}
	}
}

func (w *WebSocket) push(ev event) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return
	}
	w.events = append(w.events, ev)
}

func (w *WebSocket) isClosed() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.closed
}

// Poll delivers every buffered event to h in arrival order.
func (w *WebSocket) Poll(h session.TransportHandler) {
	w.mu.Lock()
	events := w.events
	w.events = nil
	w.mu.Unlock()

	for _, ev := range events {
		switch ev.kind {
		case evOpen:
			h.OnOpen()
		case evMessage:
			h.OnMessage(ev.data)
		case evClose:
			h.OnClose()
		case evError:
			h.OnError(ev.err)
		}
	}
}

// Send writes one text frame.
func (w *WebSocket) Send(data []byte) error {
	w.mu.Lock()
	conn, closed := w.conn, w.closed
	w.mu.Unlock()

	if closed || conn == nil {
		return apperrors.SendFailed(apperrors.New(apperrors.CodeTransportClosed, "transport is not open"))
	}

	w.writeMu.Lock()
	defer w.writeMu.Unlock()
	conn.SetWriteDeadline(time.Now().Add(w.opts.WriteTimeout))
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return apperrors.SendFailed(err)
	}
	return nil
}

// Close sends a close frame, closes the socket and waits for the reader.
// Buffered events are discarded. Calling Close again is a no-op.
func (w *WebSocket) Close() error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}
	w.closed = true
	w.events = nil
	conn := w.conn
	cancel := w.cancel
	close(w.stop)
	w.mu.Unlock()

	if cancel != nil {
		cancel()
	}

	var err error
	if conn != nil {
		w.writeMu.Lock()
		conn.SetWriteDeadline(time.Now().Add(w.opts.WriteTimeout))
		conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		w.writeMu.Unlock()
		err = conn.Close()
	}

	w.readers.Wait()
	return err
}
