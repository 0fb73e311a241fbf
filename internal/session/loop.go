package session

import (
	"time"

	"github.com/apsession/client/internal/command"
	"github.com/apsession/client/internal/protocol"
)

// run is the network goroutine for one connection.
func (s *Session) run(t Transport, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	h := &pump{s: s}
	timer := time.NewTimer(s.cfg.PollInterval)
	defer timer.Stop()

	for {
		if !s.drain(t) {
			return
		}
		t.Poll(h)
		if h.down {
			s.log.Debug().Msg("transport down, network loop exiting")
			return
		}

		select {
		case <-stop:
			return
		case <-s.queue.Wake():
		case <-timer.C:
		}

		if !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
		timer.Reset(s.cfg.PollInterval)
	}
}

// drain sends every queued command whose precondition holds. It returns
// false when a send failed and the loop must exit.
func (s *Session) drain(t Transport) bool {
	cmds := s.queue.Drain()
	for i, cmd := range cmds {
		if s.closing.Load() {
			s.dropped.Add(int64(len(cmds) - i))
			return true
		}

		state := s.State()
		if !allowed(cmd, state) {
			s.dropped.Add(1)
			s.log.Debug().Str("command", cmd.Name()).Str("state", state.String()).Msg("precondition failed, command dropped")
			continue
		}

		packet := s.encode(cmd)
		if packet == nil {
			s.dropped.Add(1)
			s.log.Warn().Str("command", cmd.Name()).Msg("no packet for command")
			continue
		}
		frame, err := protocol.EncodeFrame(packet)
		if err != nil {
			s.dropped.Add(1)
			s.log.Error().Err(err).Str("command", cmd.Name()).Msg("encode failed, command dropped")
			continue
		}

		if s.cfg.LogTraffic {
			s.log.Debug().RawJSON("frame", frame).Msg("send")
		}
		if err := t.Send(frame); err != nil {
			s.dropped.Add(int64(len(cmds) - i - 1))
			s.log.Error().Err(err).Str("command", cmd.Name()).Msg("send failed")
			s.setState(Error)
			return false
		}
	}
	return true
}

// allowed reports whether cmd may be sent in state.
//
// Authenticate is queued by Authenticate(), which has already moved the
// session to Authenticating, so both Connected and Authenticating admit it.
// Everything else needs a joined slot.
func allowed(cmd command.Command, state State) bool {
	switch cmd.(type) {
	case command.Authenticate:
		return state == Connected || state == Authenticating
	case command.CheckLocations, command.ScoutLocations, command.SendChat,
		command.SendBounce, command.GetData, command.SetData, command.StatusUpdate:
		return state == Authenticated
	default:
		return false
	}
}

// encode builds the wire packet for cmd.
func (s *Session) encode(cmd command.Command) protocol.Packet {
	switch c := cmd.(type) {
	case command.Authenticate:
		s.mu.Lock()
		game, id, tags := s.game, s.sessionID, s.tags
		s.mu.Unlock()
		return protocol.BuildConnect(game, c.Slot, c.Password, id, s.cfg.ItemsHandling, tags)
	case command.CheckLocations:
		return protocol.BuildLocationChecks(c.IDs)
	case command.ScoutLocations:
		return protocol.BuildLocationScouts(c.IDs, c.CreateAsHint)
	case command.SendChat:
		return protocol.BuildSay(c.Text)
	case command.SendBounce:
		p := protocol.BuildBounce(c.Payload)
		p.Games, p.Slots, p.Tags = c.Games, c.Slots, c.Tags
		return p
	case command.GetData:
		return protocol.BuildGet(c.Keys)
	case command.SetData:
		return protocol.BuildSet(c.Key, c.Value)
	case command.StatusUpdate:
		return protocol.BuildStatusUpdate(c.Status)
	default:
		return nil
	}
}

// pump adapts transport events to the session. It only ever runs on the
// network goroutine.
type pump struct {
	s    *Session
	down bool
}

func (p *pump) OnOpen() {
	if p.s.closing.Load() {
		return
	}
	p.s.transition(Connected, Connecting)
}

func (p *pump) OnMessage(data []byte) {
	s := p.s
	if s.closing.Load() {
		return
	}
	if s.cfg.LogTraffic {
		s.log.Debug().Bytes("frame", data).Msg("receive")
	}

	events, err := s.cfg.Codec.Decode(data)
	if err != nil {
		s.log.Warn().Err(err).Msg("discarding malformed packet")
	}
	for _, ev := range events {
		if s.closing.Load() {
			return
		}
		switch e := ev.(type) {
		case protocol.Connected:
			s.transition(Authenticated, Authenticating, Connected)
		case protocol.ConnectionRefused:
			s.log.Warn().Strs("errors", e.Errors).Msg("slot join refused")
			s.transition(ConnectionRefused, Authenticating, Connected)
		case protocol.InvalidPacket:
			s.log.Warn().Str("type", e.Type).Str("original_cmd", e.OriginalCmd).Str("text", e.Text).Msg("service rejected a packet")
		}
		s.cfg.Listener.HandleEvent(ev)
	}
}

func (p *pump) OnClose() {
	p.down = true
	if p.s.closing.Load() {
		return
	}
	p.s.log.Info().Msg("transport closed by remote")
	p.s.setState(Disconnected)
}

func (p *pump) OnError(err error) {
	p.down = true
	if p.s.closing.Load() {
		return
	}
	p.s.log.Error().Err(err).Msg("transport error")
	p.s.setState(Error)
}
