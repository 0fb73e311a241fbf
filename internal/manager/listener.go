package manager

import (
	"encoding/json"
	"math"
	"slices"
	"strings"
	"time"

	"github.com/apsession/client/internal/config"
	"github.com/apsession/client/internal/protocol"
	"github.com/apsession/client/internal/session"
	"github.com/apsession/client/internal/state"
)

// StateChanged implements session.Listener.
func (m *Manager) StateChanged(st session.State) {
	sess := m.session()
	ev := StatusChanged{State: st}
	if sess != nil {
		ev.SessionID = sess.SessionID()
		ev.URI = sess.URI()
	}
	m.bus.Publish(ev)
}

// HandleEvent implements session.Listener. It mirrors the event into the
// store, then publishes it.
func (m *Manager) HandleEvent(ev protocol.Event) {
	m.mu.Lock()
	store := m.store
	cfg := m.cfg
	m.mu.Unlock()
	if store == nil {
		return
	}

	switch e := ev.(type) {
	case protocol.RoomInfo:
		m.onRoomInfo(e)

	case protocol.Connected:
		m.mu.Lock()
		m.players = slices.Clone(e.Players)
		m.localSlot = e.Slot
		m.awaitAuth = false
		slot := m.slot
		m.mu.Unlock()

		m.addMessage(store, protocol.MessageServerInfo, "Connected as "+slot)
		m.bus.Publish(PlayersUpdated{Players: slices.Clone(e.Players)})
		m.markChecked(store, cfg, e.CheckedLocations)

	case protocol.ConnectionRefused:
		m.mu.Lock()
		m.awaitAuth = false
		m.mu.Unlock()
		m.addMessage(store, protocol.MessageError, "Connection refused: "+strings.Join(e.Errors, ", "))

	case protocol.ReceivedItems:
		items := m.withNames(e.Items)
		if cfg.EnableItemTracking {
			for _, it := range items {
				store.AddReceivedItem(it)
			}
		}
		if cfg.VerboseLogging {
			for _, it := range items {
				m.log.Info().Int64("item_id", it.ItemID).Int64("location_id", it.LocationID).Str("from", it.PlayerName).Msg("item received")
			}
		}
		m.bus.Publish(ItemsReceived{Index: e.Index, Items: items})

	case protocol.LocationInfo:
		m.bus.Publish(ScoutResults{Locations: m.withNames(e.Locations)})

	case protocol.RoomUpdate:
		if e.HasPlayers {
			m.mu.Lock()
			m.players = slices.Clone(e.Players)
			m.mu.Unlock()
			m.bus.Publish(PlayersUpdated{Players: slices.Clone(e.Players)})
		}
		m.markChecked(store, cfg, e.CheckedLocations)

	case protocol.PrintJSON:
		store.AddMessage(e.Message)
		m.bus.Publish(MessageReceived{Message: e.Message})

	case protocol.DeathLink:
		m.onDeathLink(store, cfg, e)

	case protocol.Bounced:
		m.bus.Publish(BounceReceived{Games: e.Games, Slots: e.Slots, Tags: e.Tags, Data: e.Data})

	case protocol.Retrieved:
		m.bus.Publish(DataReceived{Keys: e.Keys})

	case protocol.SetReply:
		m.bus.Publish(DataReceived{Keys: map[string]json.RawMessage{e.Key: e.Value}})

	case protocol.InvalidPacket:
		text := "Invalid packet"
		if e.OriginalCmd != "" {
			text += " (" + e.OriginalCmd + ")"
		}
		if e.Text != "" {
			text += ": " + e.Text
		}
		m.addMessage(store, protocol.MessageError, text)
	}
}

// onRoomInfo caches the room roster and joins the remembered slot.
func (m *Manager) onRoomInfo(e protocol.RoomInfo) {
	m.mu.Lock()
	m.players = slices.Clone(e.Players)
	join := m.awaitAuth
	m.awaitAuth = false
	sess, slot, password := m.sess, m.slot, m.password
	m.mu.Unlock()

	m.bus.Publish(RoomInfoReceived{Info: e})

	if join && sess != nil && !sess.Authenticate(slot, password) {
		m.log.Warn().Str("state", sess.State().String()).Msg("room greeted us but the session cannot authenticate")
	}
}

// markChecked records server-confirmed locations and publishes the ones that
// were new.
func (m *Manager) markChecked(store *state.Store, cfg config.Config, ids []int64) {
	var fresh []int64
	for _, id := range ids {
		if store.MarkLocationChecked(id) {
			fresh = append(fresh, id)
		}
	}
	if len(fresh) == 0 {
		return
	}
	if cfg.VerboseLogging {
		m.log.Info().Ints64("locations", fresh).Msg("locations checked")
	}
	m.bus.Publish(LocationsChecked{IDs: fresh})
}

func (m *Manager) onDeathLink(store *state.Store, cfg config.Config, e protocol.DeathLink) {
	m.mu.Lock()
	self := m.slot
	m.mu.Unlock()

	if !cfg.EnableDeathLink || e.Source == self {
		return
	}

	text := e.Source + " died"
	if e.Cause != "" {
		text = e.Cause
	}
	m.addMessage(store, protocol.MessageServerInfo, "DeathLink: "+text)
	m.bus.Publish(DeathLinkReceived{Source: e.Source, Cause: e.Cause, Time: unixFloat(e.Time)})
}

// addMessage stores a locally generated message and publishes it.
func (m *Manager) addMessage(store *state.Store, typ protocol.MessageType, text string) {
	msg := protocol.Message{Type: typ, Text: text, Timestamp: m.opts.Clock.Now()}
	store.AddMessage(msg)
	m.bus.Publish(MessageReceived{Message: msg})
}

// withNames fills PlayerName from the roster where the service left it
// empty.
func (m *Manager) withNames(items []protocol.NetworkItem) []protocol.NetworkItem {
	out := slices.Clone(items)

	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range out {
		if out[i].PlayerName != "" {
			continue
		}
		if p, ok := m.playerLocked(out[i].PlayerID); ok {
			out[i].PlayerName = p.DisplayName()
		}
	}
	return out
}

func unixFloat(sec float64) time.Time {
	if sec <= 0 {
		return time.Time{}
	}
	whole, frac := math.Modf(sec)
	return time.Unix(int64(whole), int64(frac*1e9))
}
