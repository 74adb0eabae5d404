package extensions

import (
	"context"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/starbridge-project/starbridge/internal/events"
	"github.com/starbridge-project/starbridge/internal/plugin"
	"github.com/starbridge-project/starbridge/internal/protocol"
)

// SessionTracker drives each connection's handshake state machine by
// observing the handshake frames as they pass through, and captures the
// player identity from client_connect. It never vetoes anything.
type SessionTracker struct {
	plugin.Base

	bus    *events.EventBus
	logger zerolog.Logger
}

// NewSessionTracker creates the tracker. Identity discoveries are
// announced on the bus.
func NewSessionTracker(bus *events.EventBus) *SessionTracker {
	return &SessionTracker{
		bus:    bus,
		logger: log.With().Str("component", "session_tracker").Logger(),
	}
}

// Name implements plugin.Plugin.
func (s *SessionTracker) Name() string { return "session_tracker" }

// Hooks implements plugin.Plugin.
func (s *SessionTracker) Hooks() map[string]plugin.HookFunc {
	return map[string]plugin.HookFunc{
		"on_client_connect":      s.onClientConnect,
		"on_handshake_challenge": s.onHandshakeChallenge,
		"on_handshake_response":  s.onHandshakeResponse,
		"on_connect_success":     s.onConnectSuccess,
		"on_connect_failure":     s.onConnectFailure,
		"on_world_start":         s.onWorldStart,
		"on_step_update":         s.onStepUpdate,
	}
}

func (s *SessionTracker) onClientConnect(f *protocol.Frame, c plugin.Conn) bool {
	c.SetState(plugin.StateClientConnectReceived)

	name, _ := f.Decoded["name"].(string)
	uuid, _ := f.Decoded["uuid"].(string)
	if name != "" {
		c.SetPlayerName(name)
		s.logger.Info().
			Uint64("conn_id", c.ID()).
			Str("player", name).
			Str("uuid", uuid).
			Msg("player identified")
		s.bus.Emit(context.Background(), events.Event{
			Type:   events.EventPlayerIdentified,
			Source: "session_tracker",
			Payload: events.PlayerIdentifiedPayload{
				ConnID:     c.ID(),
				PlayerName: name,
				UUID:       uuid,
			},
		})
	}
	return true
}

func (s *SessionTracker) onHandshakeChallenge(f *protocol.Frame, c plugin.Conn) bool {
	c.SetState(plugin.StateHandshakeChallengeSent)
	return true
}

func (s *SessionTracker) onHandshakeResponse(f *protocol.Frame, c plugin.Conn) bool {
	c.SetState(plugin.StateHandshakeResponseReceived)
	return true
}

func (s *SessionTracker) onConnectSuccess(f *protocol.Frame, c plugin.Conn) bool {
	c.SetState(plugin.StateConnectResponseSent)
	return true
}

func (s *SessionTracker) onConnectFailure(f *protocol.Frame, c plugin.Conn) bool {
	reason, _ := f.Decoded["reason"].(string)
	s.logger.Info().
		Uint64("conn_id", c.ID()).
		Str("player", c.PlayerName()).
		Str("reason", reason).
		Msg("server rejected connection")
	c.SetState(plugin.StateConnectResponseSent)
	return true
}

func (s *SessionTracker) onWorldStart(f *protocol.Frame, c plugin.Conn) bool {
	c.SetState(plugin.StateConnected)
	return true
}

func (s *SessionTracker) onStepUpdate(f *protocol.Frame, c plugin.Conn) bool {
	// The first heartbeat after the world loads marks the session fully
	// established. SetState ignores repeats.
	if c.State() == plugin.StateConnected {
		c.SetState(plugin.StateConnectedWithHeartbeat)
	}
	return true
}
