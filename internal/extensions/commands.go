// Package extensions contains the plugins bundled with Starbridge: the
// session tracker that drives connection state, chat management and
// persistence, the message of the day, command handling, and the entity
// message blocker. Each is an ordinary plugin.Plugin and can be left out
// of the registered set independently.
package extensions

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/starbridge-project/starbridge/internal/plugin"
	"github.com/starbridge-project/starbridge/internal/protocol"
)

// CommandFunc handles one chat command for one connection.
type CommandFunc func(c plugin.Conn, args []string) error

type command struct {
	name    string
	usage   string
	handler CommandFunc
}

// CommandDispatcher intercepts chat lines starting with "/" and routes
// them to handlers other plugins register during activation. A recognized
// command is consumed: the chat frame never reaches the game server.
// Unrecognized commands pass through untouched, since the game server has
// commands of its own.
type CommandDispatcher struct {
	plugin.Base

	mu       sync.RWMutex
	commands map[string]command
	logger   zerolog.Logger
}

// NewCommandDispatcher creates the dispatcher with its built-in /help.
func NewCommandDispatcher() *CommandDispatcher {
	d := &CommandDispatcher{
		commands: make(map[string]command),
		logger:   log.With().Str("component", "command_dispatcher").Logger(),
	}
	d.RegisterCommand("help", "/help - list available commands", d.helpCommand)
	return d
}

// Name implements plugin.Plugin.
func (d *CommandDispatcher) Name() string { return "command_dispatcher" }

// Hooks implements plugin.Plugin.
func (d *CommandDispatcher) Hooks() map[string]plugin.HookFunc {
	return map[string]plugin.HookFunc{
		"on_chat_sent": d.onChatSent,
	}
}

// RegisterCommand adds a command handler. Later registrations of the same
// name replace earlier ones, so plugins can override built-ins.
func (d *CommandDispatcher) RegisterCommand(name, usage string, handler CommandFunc) {
	d.mu.Lock()
	defer d.mu.Unlock()
	name = strings.ToLower(name)
	d.commands[name] = command{name: name, usage: usage, handler: handler}
	d.logger.Debug().Str("command", name).Msg("command registered")
}

func (d *CommandDispatcher) onChatSent(f *protocol.Frame, c plugin.Conn) bool {
	message, _ := f.Decoded["message"].(string)
	if !strings.HasPrefix(message, "/") {
		return true
	}

	fields := strings.Fields(strings.TrimPrefix(message, "/"))
	if len(fields) == 0 {
		return true
	}
	name := strings.ToLower(fields[0])

	d.mu.RLock()
	cmd, ok := d.commands[name]
	d.mu.RUnlock()
	if !ok {
		// Not ours; the game server may know it.
		return true
	}

	d.logger.Info().
		Uint64("conn_id", c.ID()).
		Str("player", c.PlayerName()).
		Str("command", name).
		Msg("command dispatched")

	if err := cmd.handler(c, fields[1:]); err != nil {
		d.logger.Warn().Err(err).Str("command", name).Msg("command failed")
		c.SendChat(fmt.Sprintf("Command failed: %v", err))
	}
	return false
}

func (d *CommandDispatcher) helpCommand(c plugin.Conn, args []string) error {
	d.mu.RLock()
	usages := make([]string, 0, len(d.commands))
	for _, cmd := range d.commands {
		usages = append(usages, cmd.usage)
	}
	d.mu.RUnlock()
	sort.Strings(usages)

	for _, usage := range usages {
		if err := c.SendChat(usage); err != nil {
			return err
		}
	}
	return nil
}
