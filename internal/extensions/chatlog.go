package extensions

import (
	"context"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/starbridge-project/starbridge/internal/db"
	"github.com/starbridge-project/starbridge/internal/events"
	"github.com/starbridge-project/starbridge/internal/plugin"
	"github.com/starbridge-project/starbridge/internal/protocol"
)

// ChatLogger persists every player chat line to the store and announces
// it on the bus. It runs after chat_manager so it can record whether the
// line survived the mute check, and never vetoes anything itself.
type ChatLogger struct {
	plugin.Base

	store  *db.Store
	bus    *events.EventBus
	logger zerolog.Logger
}

// NewChatLogger creates the logger.
func NewChatLogger(store *db.Store, bus *events.EventBus) *ChatLogger {
	return &ChatLogger{
		store:  store,
		bus:    bus,
		logger: log.With().Str("component", "chat_logger").Logger(),
	}
}

// Name implements plugin.Plugin.
func (l *ChatLogger) Name() string { return "chat_logger" }

// Depends implements plugin.Plugin.
func (l *ChatLogger) Depends() []string { return []string{"chat_manager"} }

// Hooks implements plugin.Plugin.
func (l *ChatLogger) Hooks() map[string]plugin.HookFunc {
	return map[string]plugin.HookFunc{
		"on_chat_sent": l.onChatSent,
	}
}

func (l *ChatLogger) onChatSent(f *protocol.Frame, c plugin.Conn) bool {
	message, _ := f.Decoded["message"].(string)
	if strings.HasPrefix(message, "/") {
		return true
	}
	sendMode, _ := f.Decoded["send_mode"].(byte)

	if err := l.store.LogChat(c.ID(), c.PlayerName(), message, int(sendMode), false); err != nil {
		l.logger.Warn().Err(err).Msg("chat persistence failed")
	}

	l.bus.Emit(context.Background(), events.Event{
		Type:   events.EventChatMessage,
		Source: "chat_logger",
		Payload: events.ChatMessagePayload{
			ConnID:     c.ID(),
			PlayerName: c.PlayerName(),
			Message:    message,
			SendMode:   sendMode,
		},
	})
	return true
}
