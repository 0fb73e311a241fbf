package manager

import (
	"strings"

	"github.com/apsession/client/internal/command"
	apperrors "github.com/apsession/client/internal/errors"
	"github.com/apsession/client/internal/protocol"
	"github.com/apsession/client/internal/state"
)

// CheckLocation reports one location as checked.
func (m *Manager) CheckLocation(id int64) error {
	return m.CheckLocations([]int64{id})
}

// CheckLocations reports the locations that are not already checked. When
// every id is already checked nothing is sent. The store records a location
// only once the service confirms it.
func (m *Manager) CheckLocations(ids []int64) error {
	sess, store, err := m.ready("check locations")
	if err != nil {
		return err
	}
	pending := store.FilterUnchecked(ids)
	if len(pending) == 0 {
		return nil
	}
	sess.Enqueue(command.CheckLocations{IDs: pending})
	return nil
}

// ScoutLocation asks what item is placed at one location.
func (m *Manager) ScoutLocation(id int64, createAsHint bool) error {
	return m.ScoutLocations([]int64{id}, createAsHint)
}

// ScoutLocations asks what items are placed at ids. Results arrive as a
// ScoutResults event. With hints disabled, createAsHint is ignored.
func (m *Manager) ScoutLocations(ids []int64, createAsHint bool) error {
	sess, _, err := m.ready("scout locations")
	if err != nil {
		return err
	}
	if len(ids) == 0 {
		return nil
	}
	if createAsHint && !m.Config().EnableHints {
		m.log.Debug().Msg("hints disabled, scouting without creating hints")
		createAsHint = false
	}
	sess.Enqueue(command.ScoutLocations{IDs: append([]int64(nil), ids...), CreateAsHint: createAsHint})
	return nil
}

// SendChat sends a chat line. Blank lines are ignored.
func (m *Manager) SendChat(text string) error {
	m.mu.Lock()
	initialized, enabled, limiter := m.initialized, m.cfg.EnableChat, m.limiter
	m.mu.Unlock()

	if !initialized {
		return apperrors.NotInitialized()
	}
	if !enabled {
		return apperrors.New(apperrors.CodeChatDisabled, "chat is disabled")
	}
	if strings.TrimSpace(text) == "" {
		return nil
	}
	sess, _, err := m.ready("send chat")
	if err != nil {
		return err
	}
	if !limiter.Allow() {
		return apperrors.New(apperrors.CodeChatRateLimited, "too many chat messages, slow down")
	}
	sess.Enqueue(command.SendChat{Text: text})
	return nil
}

// SendDeathLink tells every DeathLink participant that we died.
func (m *Manager) SendDeathLink(cause string) error {
	m.mu.Lock()
	initialized, enabled, source := m.initialized, m.cfg.EnableDeathLink, m.slot
	m.mu.Unlock()

	if !initialized {
		return apperrors.NotInitialized()
	}
	if !enabled {
		return apperrors.New(apperrors.CodeDeathLinkDisabled, "deathlink is disabled")
	}
	sess, _, err := m.ready("send deathlink")
	if err != nil {
		return err
	}

	packet := protocol.BuildDeathLink(source, cause, m.opts.Clock.Now())
	sess.Enqueue(command.SendBounce{
		Payload: packet.Data,
		Tags:    []string{protocol.DeathLinkType},
	})
	return nil
}

// GetData reads keys from the service data storage. Values arrive as a
// DataReceived event.
func (m *Manager) GetData(keys ...string) error {
	sess, _, err := m.ready("get data")
	if err != nil {
		return err
	}
	if len(keys) == 0 {
		return nil
	}
	sess.Enqueue(command.GetData{Keys: append([]string(nil), keys...)})
	return nil
}

// SetData replaces key in the service data storage.
func (m *Manager) SetData(key string, value any) error {
	sess, _, err := m.ready("set data")
	if err != nil {
		return err
	}
	sess.Enqueue(command.SetData{Key: key, Value: value})
	return nil
}

// SetStatus reports the client status.
func (m *Manager) SetStatus(status protocol.ClientStatus) error {
	sess, _, err := m.ready("set status")
	if err != nil {
		return err
	}
	sess.Enqueue(command.StatusUpdate{Status: status})
	return nil
}

// SetGoalComplete reports that the slot reached its goal.
func (m *Manager) SetGoalComplete() error {
	return m.SetStatus(protocol.StatusGoal)
}

// SetGameComplete is SetGoalComplete.
func (m *Manager) SetGameComplete() error {
	return m.SetGoalComplete()
}

// HasPendingMessages reports whether a message is waiting.
func (m *Manager) HasPendingMessages() bool {
	store := m.stateStore()
	return store != nil && store.HasPendingMessages()
}

// NextMessage pops the oldest waiting message.
func (m *Manager) NextMessage() (protocol.Message, bool) {
	store := m.stateStore()
	if store == nil {
		return protocol.Message{}, false
	}
	return store.NextMessage()
}

// AllMessages returns the waiting messages, oldest first, without
// consuming them.
func (m *Manager) AllMessages() []protocol.Message {
	store := m.stateStore()
	if store == nil {
		return nil
	}
	return store.PendingMessages()
}

// DrainMessages pops every waiting message, oldest first.
func (m *Manager) DrainMessages() []protocol.Message {
	store := m.stateStore()
	if store == nil {
		return nil
	}
	return store.DrainMessages()
}

// CheckedLocations returns the confirmed checked locations, sorted.
func (m *Manager) CheckedLocations() []int64 {
	store := m.stateStore()
	if store == nil {
		return nil
	}
	return store.CheckedLocations()
}

// ReceivedItems returns the received item log in arrival order.
func (m *Manager) ReceivedItems() []protocol.NetworkItem {
	store := m.stateStore()
	if store == nil {
		return nil
	}
	return store.ReceivedItems()
}

// SaveState writes the session progress to t.
func (m *Manager) SaveState(t state.Target) error {
	store := m.stateStore()
	if store == nil {
		return apperrors.NotInitialized()
	}
	return store.SaveState(t)
}

// LoadState replaces the session progress with the snapshot in src. On
// failure the progress is unchanged.
func (m *Manager) LoadState(src state.Source) error {
	store := m.stateStore()
	if store == nil {
		return apperrors.NotInitialized()
	}
	return store.LoadState(src)
}
