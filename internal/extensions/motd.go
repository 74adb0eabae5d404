package extensions

import (
	"fmt"
	"strings"
	"sync"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/starbridge-project/starbridge/internal/plugin"
	"github.com/starbridge-project/starbridge/internal/protocol"
)

const defaultMOTD = "Welcome to the server! Type /help for commands."

// MOTD greets each player with the message of the day once their world
// has loaded, and lets the message be read and changed in game.
type MOTD struct {
	plugin.Base

	mu      sync.RWMutex
	message string

	greeted sync.Map // conn id -> struct{}
	logger  zerolog.Logger
}

// NewMOTD creates the plugin. cfg is the plugin's config section; the
// "message" key overrides the default greeting.
func NewMOTD(cfg map[string]any) *MOTD {
	m := &MOTD{
		message: defaultMOTD,
		logger:  log.With().Str("component", "motd").Logger(),
	}
	if msg, ok := cfg["message"].(string); ok && msg != "" {
		m.message = msg
	}
	return m
}

// Name implements plugin.Plugin.
func (m *MOTD) Name() string { return "motd" }

// Depends implements plugin.Plugin.
func (m *MOTD) Depends() []string { return []string{"command_dispatcher", "session_tracker"} }

// Activate registers the /motd command.
func (m *MOTD) Activate(deps map[string]plugin.Plugin) error {
	dispatcher, ok := deps["command_dispatcher"].(*CommandDispatcher)
	if !ok {
		return fmt.Errorf("command_dispatcher dependency has unexpected type %T", deps["command_dispatcher"])
	}
	dispatcher.RegisterCommand("motd", "/motd - show the message of the day", m.showCommand)
	dispatcher.RegisterCommand("set_motd", "/set_motd <message> - change the message of the day", m.setCommand)
	return nil
}

// Hooks implements plugin.Plugin.
func (m *MOTD) Hooks() map[string]plugin.HookFunc {
	return map[string]plugin.HookFunc{
		"on_world_start": m.onWorldStart,
	}
}

func (m *MOTD) onWorldStart(f *protocol.Frame, c plugin.Conn) bool {
	// Greet once per connection; players load worlds repeatedly.
	if _, seen := m.greeted.LoadOrStore(c.ID(), struct{}{}); seen {
		return true
	}
	if err := c.SendChat(m.Message()); err != nil {
		m.logger.Warn().Err(err).Uint64("conn_id", c.ID()).Msg("greeting delivery failed")
	}
	return true
}

// Message returns the current message of the day.
func (m *MOTD) Message() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.message
}

func (m *MOTD) showCommand(c plugin.Conn, args []string) error {
	return c.SendChat(m.Message())
}

func (m *MOTD) setCommand(c plugin.Conn, args []string) error {
	if len(args) == 0 {
		return c.SendChat("Usage: /set_motd <message>")
	}

	newMessage := strings.Join(args, " ")
	m.mu.Lock()
	m.message = newMessage
	m.mu.Unlock()

	m.logger.Info().Str("player", c.PlayerName()).Str("message", newMessage).Msg("motd changed")
	return c.SendChat("Message of the day updated.")
}
