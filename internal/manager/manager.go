// Package manager is the host-facing facade over one session.
//
// A Manager owns a session.Session, a state.Store and an event Bus for the
// span of one Initialize/Shutdown cycle. Every inbound event is mirrored
// into the store before it is published, so progress is recorded whether or
// not anything subscribed.
//
// Host code calls operations and Update from its own goroutine. Immediate
// subscribers run on the network goroutine; deferred subscribers run inside
// Update.
package manager

import (
	"slices"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/apsession/client/internal/config"
	apperrors "github.com/apsession/client/internal/errors"
	"github.com/apsession/client/internal/ident"
	"github.com/apsession/client/internal/log"
	"github.com/apsession/client/internal/protocol"
	"github.com/apsession/client/internal/session"
	"github.com/apsession/client/internal/state"
	"github.com/apsession/client/internal/storage"
	"github.com/apsession/client/internal/transport"
)

// Clock supplies timestamps.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// Options are the collaborators a Manager is built from. Every field is
// optional.
type Options struct {
	// NewTransport creates the transport for each connection.
	// Default: a gorilla/websocket transport.
	NewTransport session.TransportFactory

	// Identity generates session identifiers. Default: the config's
	// identity file if set, otherwise a random UUID per connection.
	Identity ident.Generator

	// Clock stamps messages and DeathLinks. Default: wall clock.
	Clock Clock

	// History records every connection when set. The manager does not
	// close it.
	History *storage.SQLiteStore
}

// Stats summarize the current session.
type Stats struct {
	LocationsChecked int64
	ItemsReceived    int64
	PendingMessages  int
	DroppedCommands  int64
}

// Manager is the session facade. Create it with New, then Initialize.
type Manager struct {
	opts Options
	log  zerolog.Logger
	bus  *Bus

	// lifecycle serializes Initialize, Shutdown, Connect and Disconnect.
	// It is never held by listener callbacks, and mu is never held while
	// calling into the session's blocking methods.
	lifecycle sync.Mutex

	mu          sync.Mutex
	initialized bool
	cfg         config.Config
	sess        *session.Session
	store       *state.Store
	limiter     *rate.Limiter
	players     []protocol.NetworkPlayer
	localSlot   int32
	slot        string
	password    string
	awaitAuth   bool
	unsubscribe func()
}

// New creates a Manager. It does nothing until Initialize.
func New(opts Options) *Manager {
	if opts.Clock == nil {
		opts.Clock = systemClock{}
	}
	if opts.NewTransport == nil {
		opts.NewTransport = transport.Factory(transport.Options{})
	}
	return &Manager{
		opts: opts,
		log:  log.Component("manager"),
		bus:  NewBus(),
	}
}

// Subscribe registers h for every event, delivered on the network
// goroutine. h must not block and must not call Connect, Disconnect or
// Shutdown.
func (m *Manager) Subscribe(h Handler) (unsubscribe func()) {
	return m.bus.Subscribe(h)
}

// SubscribeDeferred registers h for every event, delivered in order on the
// goroutine that calls Update.
func (m *Manager) SubscribeDeferred(h Handler) (unsubscribe func()) {
	return m.bus.SubscribeDeferred(h)
}

// Initialize builds the session components from cfg.
func (m *Manager) Initialize(cfg *config.Config) error {
	m.lifecycle.Lock()
	defer m.lifecycle.Unlock()

	m.mu.Lock()
	already := m.initialized
	m.mu.Unlock()
	if already {
		return apperrors.New(apperrors.CodeSessionAlreadyInitialized, "manager is already initialized")
	}

	if cfg == nil {
		cfg = config.Default()
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	identity := m.opts.Identity
	if identity == nil && cfg.IdentityFile != "" {
		identity = ident.NewFile(cfg.IdentityFile)
	}

	sess := session.New(session.Config{
		NewTransport:  m.opts.NewTransport,
		Identity:      identity,
		Codec:         protocol.Codec{Clock: m.opts.Clock.Now},
		Listener:      m,
		PollInterval:  cfg.PollInterval(),
		ItemsHandling: cfg.ItemsHandling,
		Tags:          connectTags(cfg),
		LogTraffic:    cfg.LogNetworkTraffic,
	})

	var unsubscribe func()
	if m.opts.History != nil {
		rec := newRecorder(m.opts.History, m, m.opts.Clock)
		unsubscribe = m.bus.SubscribeDeferred(rec.handle)
	}

	m.mu.Lock()
	m.cfg = *cfg
	m.sess = sess
	m.store = state.NewStore()
	m.limiter = rate.NewLimiter(rate.Limit(cfg.ChatRatePerSec), cfg.ChatBurst)
	m.players = nil
	m.localSlot = 0
	m.slot, m.password, m.awaitAuth = "", "", false
	m.unsubscribe = unsubscribe
	m.initialized = true
	m.mu.Unlock()

	m.log.Info().Str("game", cfg.Game).Bool("deathlink", cfg.EnableDeathLink).Msg("initialized")
	return nil
}

// Shutdown disconnects and releases the session components. Deferred
// subscribers receive the final events before it returns. It is safe to
// call more than once.
func (m *Manager) Shutdown() {
	m.lifecycle.Lock()
	defer m.lifecycle.Unlock()

	m.mu.Lock()
	if !m.initialized {
		m.mu.Unlock()
		return
	}
	sess := m.sess
	m.mu.Unlock()

	sess.Disconnect()
	m.bus.Flush()

	m.mu.Lock()
	unsubscribe := m.unsubscribe
	m.sess = nil
	m.store = nil
	m.limiter = nil
	m.players = nil
	m.slot, m.password, m.awaitAuth = "", "", false
	m.unsubscribe = nil
	m.initialized = false
	m.mu.Unlock()

	if unsubscribe != nil {
		unsubscribe()
	}
	m.log.Info().Msg("shut down")
}

// Connect opens a connection to server and joins slot once the service
// greets us. A server without a ws:// or wss:// scheme gets wss://. It
// returns false when not initialized, when a connection is already active,
// or when the transport cannot be opened. A session left in Error or
// ConnectionRefused is reset first.
func (m *Manager) Connect(server, slot, password string) bool {
	m.lifecycle.Lock()
	defer m.lifecycle.Unlock()

	m.mu.Lock()
	if !m.initialized {
		m.mu.Unlock()
		return false
	}
	sess := m.sess
	game := m.cfg.Game
	m.mu.Unlock()

	switch sess.State() {
	case session.Error, session.ConnectionRefused:
		sess.Disconnect()
	case session.Disconnected:
	default:
		return false
	}

	m.mu.Lock()
	m.slot, m.password, m.awaitAuth = slot, password, true
	m.players = nil
	m.localSlot = 0
	m.mu.Unlock()

	return sess.Connect(config.ServerURI(server), game)
}

// Disconnect closes the connection and waits for the network goroutine.
// No event fires after it returns.
func (m *Manager) Disconnect() {
	m.lifecycle.Lock()
	defer m.lifecycle.Unlock()

	m.mu.Lock()
	sess := m.sess
	m.awaitAuth = false
	m.mu.Unlock()

	if sess != nil {
		sess.Disconnect()
	}
}

// IsConnected reports whether the slot is joined.
func (m *Manager) IsConnected() bool {
	return m.ConnectionStatus() == session.Authenticated
}

// ConnectionStatus returns the session state, or Disconnected before
// Initialize.
func (m *Manager) ConnectionStatus() session.State {
	sess := m.session()
	if sess == nil {
		return session.Disconnected
	}
	return sess.State()
}

// Config returns a copy of the active configuration.
func (m *Manager) Config() config.Config {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cfg
}

// UpdateConfig replaces the configuration. Feature switches and the chat
// limiter apply immediately; the announced tags apply from the next
// Connect. Poll interval, items handling and traffic logging are fixed at
// Initialize.
func (m *Manager) UpdateConfig(cfg config.Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	m.mu.Lock()
	if !m.initialized {
		m.mu.Unlock()
		return apperrors.NotInitialized()
	}
	m.cfg = cfg
	m.limiter.SetLimit(rate.Limit(cfg.ChatRatePerSec))
	m.limiter.SetBurst(cfg.ChatBurst)
	sess := m.sess
	m.mu.Unlock()

	sess.SetTags(connectTags(&cfg))
	return nil
}

// Update runs per-frame bookkeeping and delivers deferred events. It never
// blocks on the network.
func (m *Manager) Update() {
	store := m.stateStore()
	if store == nil {
		return
	}
	store.Update()
	m.bus.Flush()
}

// Stats returns the current counters.
func (m *Manager) Stats() Stats {
	m.mu.Lock()
	store, sess := m.store, m.sess
	m.mu.Unlock()
	if store == nil {
		return Stats{}
	}

	st := store.Stats()
	return Stats{
		LocationsChecked: st.LocationsChecked,
		ItemsReceived:    st.ItemsReceived,
		PendingMessages:  len(store.PendingMessages()),
		DroppedCommands:  sess.Dropped(),
	}
}

// SessionID returns the identifier of the current or last connection.
func (m *Manager) SessionID() string {
	sess := m.session()
	if sess == nil {
		return ""
	}
	return sess.SessionID()
}

func (m *Manager) session() *session.Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sess
}

func (m *Manager) stateStore() *state.Store {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.store
}

// ready returns the session and store when the slot is joined.
func (m *Manager) ready(op string) (*session.Session, *state.Store, error) {
	m.mu.Lock()
	sess, store, ok := m.sess, m.store, m.initialized
	m.mu.Unlock()

	if !ok {
		return nil, nil, apperrors.NotInitialized()
	}
	if sess.State() != session.Authenticated {
		return nil, nil, apperrors.NotReady(op)
	}
	return sess, store, nil
}

// connectTags are the tags announced in the Connect packet.
func connectTags(cfg *config.Config) []string {
	tags := []string{"AP"}
	if cfg.EnableDeathLink {
		tags = append(tags, protocol.DeathLinkType)
	}
	return tags
}

// ConnectedPlayers returns a copy of the roster.
func (m *Manager) ConnectedPlayers() []protocol.NetworkPlayer {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.players)
}

// Player looks up a roster entry by slot.
func (m *Manager) Player(slot int32) (protocol.NetworkPlayer, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.playerLocked(slot)
}

// LocalPlayer returns our own roster entry once the slot is joined.
func (m *Manager) LocalPlayer() (protocol.NetworkPlayer, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.localSlot == 0 {
		return protocol.NetworkPlayer{}, false
	}
	return m.playerLocked(m.localSlot)
}

func (m *Manager) playerLocked(slot int32) (protocol.NetworkPlayer, bool) {
	for _, p := range m.players {
		if p.Slot == slot {
			return p, true
		}
	}
	return protocol.NetworkPlayer{}, false
}
