package extensions

import (
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/starbridge-project/starbridge/internal/plugin"
	"github.com/starbridge-project/starbridge/internal/protocol"
)

// EntityMessageBlocker vetoes entity_message frames whose message name is
// on a configured blocklist. Certain scripted messages are exploitable by
// modified clients; blocking them at the proxy protects an unmodified
// server.
type EntityMessageBlocker struct {
	plugin.Base

	blocked map[string]struct{}
	logger  zerolog.Logger
}

// NewEntityMessageBlocker creates the blocker. cfg is the plugin's config
// section; "blocked_messages" lists the message names to veto.
func NewEntityMessageBlocker(cfg map[string]any) *EntityMessageBlocker {
	b := &EntityMessageBlocker{
		blocked: make(map[string]struct{}),
		logger:  log.With().Str("component", "emsg_blocker").Logger(),
	}
	if raw, ok := cfg["blocked_messages"].([]any); ok {
		for _, item := range raw {
			if name, ok := item.(string); ok {
				b.blocked[strings.ToLower(name)] = struct{}{}
			}
		}
	}
	return b
}

// Name implements plugin.Plugin.
func (b *EntityMessageBlocker) Name() string { return "emsg_blocker" }

// Hooks implements plugin.Plugin. An empty blocklist still registers the
// hook; the lookup is cheap and the set can only be changed by restart.
func (b *EntityMessageBlocker) Hooks() map[string]plugin.HookFunc {
	return map[string]plugin.HookFunc{
		"on_entity_message": b.onEntityMessage,
	}
}

func (b *EntityMessageBlocker) onEntityMessage(f *protocol.Frame, c plugin.Conn) bool {
	name, _ := f.Decoded["message_name"].(string)
	if name == "" {
		return true
	}
	if _, hit := b.blocked[strings.ToLower(name)]; !hit {
		return true
	}

	b.logger.Info().
		Uint64("conn_id", c.ID()).
		Str("player", c.PlayerName()).
		Str("message_name", name).
		Msg("blocked entity message")
	return false
}
