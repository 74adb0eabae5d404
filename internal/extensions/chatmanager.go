package extensions

import (
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/starbridge-project/starbridge/internal/db"
	"github.com/starbridge-project/starbridge/internal/plugin"
	"github.com/starbridge-project/starbridge/internal/protocol"
)

// ChatManager enforces player mutes and provides the mute management
// commands. A muted player's chat is vetoed before it reaches the server;
// the player is told why.
type ChatManager struct {
	plugin.Base

	store  *db.Store
	logger zerolog.Logger
}

// NewChatManager creates the manager backed by the given store.
func NewChatManager(store *db.Store) *ChatManager {
	return &ChatManager{
		store:  store,
		logger: log.With().Str("component", "chat_manager").Logger(),
	}
}

// Name implements plugin.Plugin.
func (m *ChatManager) Name() string { return "chat_manager" }

// Depends implements plugin.Plugin.
func (m *ChatManager) Depends() []string { return []string{"command_dispatcher"} }

// Activate registers the mute commands with the dispatcher.
func (m *ChatManager) Activate(deps map[string]plugin.Plugin) error {
	dispatcher, ok := deps["command_dispatcher"].(*CommandDispatcher)
	if !ok {
		return fmt.Errorf("command_dispatcher dependency has unexpected type %T", deps["command_dispatcher"])
	}

	dispatcher.RegisterCommand("mute", "/mute <player> [reason] - mute a player", m.muteCommand)
	dispatcher.RegisterCommand("unmute", "/unmute <player> - lift a player's mute", m.unmuteCommand)
	dispatcher.RegisterCommand("mutes", "/mutes - list active mutes", m.mutesCommand)
	return nil
}

// Hooks implements plugin.Plugin.
func (m *ChatManager) Hooks() map[string]plugin.HookFunc {
	return map[string]plugin.HookFunc{
		"on_chat_sent": m.onChatSent,
	}
}

func (m *ChatManager) onChatSent(f *protocol.Frame, c plugin.Conn) bool {
	message, _ := f.Decoded["message"].(string)
	if strings.HasPrefix(message, "/") {
		// Commands are the dispatcher's concern, muted or not.
		return true
	}

	player := c.PlayerName()
	if player == "" {
		return true
	}

	muted, err := m.store.IsMuted(player)
	if err != nil {
		m.logger.Warn().Err(err).Str("player", player).Msg("mute lookup failed, letting chat through")
		return true
	}
	if !muted {
		return true
	}

	c.SendChat("You are muted and cannot chat.")
	m.logger.Debug().Str("player", player).Msg("muted chat vetoed")
	return false
}

func (m *ChatManager) muteCommand(c plugin.Conn, args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: /mute <player> [reason]")
	}
	target := args[0]
	reason := strings.Join(args[1:], " ")

	if err := m.store.Mute(target, c.PlayerName(), reason); err != nil {
		return err
	}
	return c.SendChat(fmt.Sprintf("Muted %s.", target))
}

func (m *ChatManager) unmuteCommand(c plugin.Conn, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: /unmute <player>")
	}
	if err := m.store.Unmute(args[0]); err != nil {
		return err
	}
	return c.SendChat(fmt.Sprintf("Unmuted %s.", args[0]))
}

func (m *ChatManager) mutesCommand(c plugin.Conn, args []string) error {
	mutes, err := m.store.Mutes()
	if err != nil {
		return err
	}
	if len(mutes) == 0 {
		return c.SendChat("No active mutes.")
	}
	for _, mute := range mutes {
		line := fmt.Sprintf("%s (by %s)", mute.PlayerName, mute.MutedBy)
		if mute.Reason != "" {
			line += ": " + mute.Reason
		}
		if err := c.SendChat(line); err != nil {
			return err
		}
	}
	return nil
}
