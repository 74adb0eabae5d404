// Package cli implements the interactive command-line interface for Starbridge.
// It provides live connection status display and the management commands
// available over the HTTP API, without leaving the terminal.
package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/rs/zerolog/log"

	"github.com/starbridge-project/starbridge/internal/config"
	"github.com/starbridge-project/starbridge/internal/db"
	"github.com/starbridge-project/starbridge/internal/events"
	"github.com/starbridge-project/starbridge/internal/plugin"
	"github.com/starbridge-project/starbridge/internal/proxy"
	"github.com/starbridge-project/starbridge/internal/util"
)

// CLI provides an interactive command-line interface.
type CLI struct {
	cfg      *config.Config
	eventBus *events.EventBus
	conns    *proxy.Registry
	plugins  *plugin.Registry
	store    *db.Store
	started  time.Time
}

// NewCLI creates a new CLI handler.
func NewCLI(cfg *config.Config, eventBus *events.EventBus, conns *proxy.Registry, plugins *plugin.Registry, store *db.Store) *CLI {
	return &CLI{
		cfg:      cfg,
		eventBus: eventBus,
		conns:    conns,
		plugins:  plugins,
		store:    store,
		started:  time.Now(),
	}
}

// Start begins the interactive CLI loop.
func (c *CLI) Start(ctx context.Context) {
	fmt.Println("\nStarbridge CLI ready. Type 'help' for available commands.")
	fmt.Println("─────────────────────────────────────────────────────")

	reader := newLineReader()
	defer reader.Close()

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		line, err := reader.ReadLine("starbridge> ")
		if err != nil {
			if err == io.EOF {
				return
			}
			continue
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		parts := strings.Fields(line)
		cmd := strings.ToLower(parts[0])
		args := parts[1:]

		if err := c.execute(ctx, cmd, args); err != nil {
			fmt.Printf("Error: %v\n", err)
		}
	}
}

// execute processes a single CLI command.
func (c *CLI) execute(ctx context.Context, cmd string, args []string) error {
	switch cmd {
	case "help", "h", "?":
		c.printHelp()
	case "status", "s":
		c.printStatus()
	case "connections", "conns":
		c.printConnections(args)
	case "plugins":
		c.printPlugins()
	case "cache":
		c.printCacheStats()
	case "chatlog":
		return c.cmdChatLog(args)
	case "broadcast", "say":
		return c.cmdBroadcast(args)
	case "kick":
		return c.cmdKick(args)
	case "mute":
		return c.cmdMute(args)
	case "unmute":
		return c.cmdUnmute(args)
	case "mutes":
		return c.printMutes()
	case "setconfig":
		return c.cmdSetConfig(args)
	case "update":
		return c.cmdUpdate(args)
	case "version":
		fmt.Printf("Starbridge %s\n", util.Version)
	case "quit", "exit", "q":
		fmt.Println("Shutting down Starbridge...")
		c.eventBus.Emit(ctx, events.Event{
			Type:   events.EventShutdown,
			Source: "cli",
		})
	default:
		fmt.Printf("Unknown command: '%s'. Type 'help' for available commands.\n", cmd)
	}
	return nil
}

// printHelp displays available commands.
func (c *CLI) printHelp() {
	fmt.Println("\n╔══════════════════════════════════════════════════════════════╗")
	fmt.Println("║                   Starbridge CLI Commands                    ║")
	fmt.Println("╠══════════════════════════════════════════════════════════════╣")
	fmt.Println("║  status             Show proxy overview                     ║")
	fmt.Println("║  connections [id]   List connections, or show one in detail ║")
	fmt.Println("║  plugins            Show plugins in activation order        ║")
	fmt.Println("║  cache              Show decode cache statistics            ║")
	fmt.Println("║  chatlog [n]        Show the last N chat lines              ║")
	fmt.Println("║  broadcast <msg>    Send a chat message to all players      ║")
	fmt.Println("║  kick <id> [why]    Disconnect one connection               ║")
	fmt.Println("║  mute <player>      Mute a player by name                   ║")
	fmt.Println("║  unmute <player>    Lift a player's mute                    ║")
	fmt.Println("║  mutes              List active mutes                       ║")
	fmt.Println("║  setconfig <k> <v>  Update a proxy configuration value      ║")
	fmt.Println("║  update [apply]     Check for updates, optionally pull      ║")
	fmt.Println("║  version            Show the Starbridge version             ║")
	fmt.Println("║  quit               Shutdown Starbridge                     ║")
	fmt.Println("║  help               Show this help message                  ║")
	fmt.Println("╚══════════════════════════════════════════════════════════════╝")
	fmt.Println()
}

// printStatus displays a one-shot overview of the proxy.
func (c *CLI) printStatus() {
	stats := c.plugins.CacheStats()

	fmt.Printf("\n  Listen:       %s\n", c.cfg.ListenAddr())
	fmt.Printf("  Upstream:     %s\n", c.cfg.UpstreamAddr())
	fmt.Printf("  Connections:  %d\n", c.conns.Count())
	fmt.Printf("  Players:      %s\n", strings.Join(c.conns.Players(), ", "))
	fmt.Printf("  Plugins:      %d active\n", len(c.plugins.Order()))
	fmt.Printf("  Cache:        %d entries, %d hits, %d misses\n", stats.Entries, stats.Hits, stats.Misses)
	fmt.Printf("  Uptime:       %s\n", time.Since(c.started).Round(time.Second))
	fmt.Println()
}

// printConnections displays live connections in a formatted table.
func (c *CLI) printConnections(args []string) {
	if len(args) > 0 {
		// Show specific connection
		id, err := strconv.ParseUint(args[0], 10, 64)
		if err != nil {
			fmt.Println("Invalid connection id")
			return
		}

		conn := c.conns.Get(id)
		if conn == nil {
			fmt.Printf("Connection %d not found\n", id)
			return
		}
		c.printConnectionDetail(conn)
		return
	}

	fmt.Println()

	tw := tablewriter.NewWriter(os.Stdout)
	tw.SetHeader([]string{"ID", "Player", "State", "Remote", "Uptime"})
	tw.SetBorder(true)
	tw.SetAutoWrapText(false)

	for _, conn := range c.conns.All() {
		remote := "-"
		if addr := conn.RemoteAddr(); addr != nil {
			remote = addr.String()
		}
		player := conn.PlayerName()
		if player == "" {
			player = "-"
		}

		tw.Append([]string{
			fmt.Sprintf("%d", conn.ID()),
			player,
			conn.State().String(),
			remote,
			time.Since(conn.Opened()).Round(time.Second).String(),
		})
	}

	tw.Render()
	fmt.Println()
}

// printConnectionDetail prints detailed info for a single connection.
func (c *CLI) printConnectionDetail(conn *proxy.Connection) {
	remote := "-"
	if addr := conn.RemoteAddr(); addr != nil {
		remote = addr.String()
	}

	fmt.Printf("\n  Connection:  %d\n", conn.ID())
	fmt.Printf("  Player:      %s\n", conn.PlayerName())
	fmt.Printf("  State:       %s\n", conn.State())
	fmt.Printf("  Remote:      %s\n", remote)
	fmt.Printf("  Alive:       %v\n", conn.Alive())
	fmt.Printf("  Opened:      %s\n", conn.Opened().Format(time.RFC3339))
	fmt.Printf("  Uptime:      %s\n", time.Since(conn.Opened()).Round(time.Second))
	fmt.Println()
}

// printPlugins displays registered plugins in activation order.
func (c *CLI) printPlugins() {
	fmt.Println()

	tw := tablewriter.NewWriter(os.Stdout)
	tw.SetHeader([]string{"Plugin", "Depends", "Hooks", "Active"})
	tw.SetBorder(true)
	tw.SetAutoWrapText(false)

	for _, info := range c.plugins.List() {
		depends := strings.Join(info.Depends, ", ")
		if depends == "" {
			depends = "-"
		}

		tw.Append([]string{
			info.Name,
			depends,
			strings.Join(info.Hooks, ", "),
			fmt.Sprintf("%v", info.Active),
		})
	}

	tw.Render()
	fmt.Println()
}

// printCacheStats displays decode cache statistics.
func (c *CLI) printCacheStats() {
	stats := c.plugins.CacheStats()

	fmt.Printf("\n  Entries:    %d\n", stats.Entries)
	fmt.Printf("  Hits:       %d\n", stats.Hits)
	fmt.Printf("  Misses:     %d\n", stats.Misses)
	fmt.Printf("  Bypassed:   %d\n", stats.Bypassed)
	fmt.Printf("  Evictions:  %d\n", stats.Evictions)
	fmt.Println()
}

func (c *CLI) cmdChatLog(args []string) error {
	count := 20
	if len(args) > 0 {
		n, err := strconv.Atoi(args[0])
		if err != nil || n < 1 {
			return fmt.Errorf("invalid count: %s", args[0])
		}
		count = n
	}

	entries, err := c.store.RecentChat(count)
	if err != nil {
		return err
	}

	fmt.Println()
	for i := len(entries) - 1; i >= 0; i-- {
		e := entries[i]
		marker := " "
		if e.Vetoed {
			marker = "✗"
		}
		fmt.Printf("  %s %s <%s> %s\n", e.CreatedAt.Format("15:04:05"), marker, e.PlayerName, e.Message)
	}
	fmt.Println()
	return nil
}

func (c *CLI) cmdBroadcast(args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: broadcast <message>")
	}

	message := strings.Join(args, " ")
	c.conns.Broadcast(message)
	fmt.Printf("Broadcast sent to %d connections\n", c.conns.Count())
	return nil
}

func (c *CLI) cmdKick(args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: kick <conn_id> [reason]")
	}

	id, err := strconv.ParseUint(args[0], 10, 64)
	if err != nil {
		return fmt.Errorf("invalid connection id: %s", args[0])
	}

	conn := c.conns.Get(id)
	if conn == nil {
		return fmt.Errorf("connection %d not found", id)
	}

	reason := "You have been disconnected by an administrator."
	if len(args) > 1 {
		reason = strings.Join(args[1:], " ")
	}

	conn.GracefulClose(reason)
	log.Info().Uint64("conn_id", id).Str("player", conn.PlayerName()).Msg("connection kicked via cli")
	fmt.Printf("Kicked connection %d\n", id)
	return nil
}

func (c *CLI) cmdMute(args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: mute <player> [reason]")
	}

	reason := ""
	if len(args) > 1 {
		reason = strings.Join(args[1:], " ")
	}

	if err := c.store.Mute(args[0], "cli", reason); err != nil {
		return err
	}
	fmt.Printf("Muted %s\n", args[0])
	return nil
}

func (c *CLI) cmdUnmute(args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: unmute <player>")
	}

	if err := c.store.Unmute(args[0]); err != nil {
		return err
	}
	fmt.Printf("Unmuted %s\n", args[0])
	return nil
}

func (c *CLI) printMutes() error {
	mutes, err := c.store.Mutes()
	if err != nil {
		return err
	}

	if len(mutes) == 0 {
		fmt.Println("No active mutes")
		return nil
	}

	fmt.Println()

	tw := tablewriter.NewWriter(os.Stdout)
	tw.SetHeader([]string{"Player", "Muted By", "Reason", "Since"})
	tw.SetBorder(true)
	tw.SetAutoWrapText(false)

	for _, m := range mutes {
		reason := m.Reason
		if reason == "" {
			reason = "-"
		}
		tw.Append([]string{
			m.PlayerName,
			m.MutedBy,
			reason,
			m.CreatedAt.Format(time.RFC3339),
		})
	}

	tw.Render()
	fmt.Println()
	return nil
}

func (c *CLI) cmdSetConfig(args []string) error {
	if len(args) < 2 {
		return fmt.Errorf("usage: setconfig <key> <value>")
	}

	key := args[0]
	value := strings.Join(args[1:], " ")

	if err := c.cfg.UpdateProxyField(key, value); err != nil {
		return err
	}

	if err := c.cfg.Save(); err != nil {
		return err
	}

	fmt.Printf("Config updated: %s = %s\n", key, value)
	return nil
}

func (c *CLI) cmdUpdate(args []string) error {
	if !util.IsGitAvailable() {
		return fmt.Errorf("git is not available, cannot check for updates")
	}

	updater := util.NewUpdater("", "main", ".")

	current, err := updater.GetCurrentVersion()
	if err != nil {
		return fmt.Errorf("not running from a git checkout: %w", err)
	}

	available, commit, err := updater.CheckForUpdate()
	if err != nil {
		return err
	}
	if !available {
		fmt.Printf("Already up to date (%s)\n", current)
		return nil
	}

	fmt.Printf("Update available: %s\n", commit)
	if len(args) > 0 && args[0] == "apply" {
		if err := updater.Update(); err != nil {
			return err
		}
		fmt.Println("Update applied. Restart Starbridge to use the new version.")
		return nil
	}

	fmt.Println("Run 'update apply' to pull it.")
	return nil
}

// lineReader is a simple cross-platform line reader.
type lineReader struct {
	scanner *bufio.Scanner
}

func newLineReader() *lineReader {
	return &lineReader{scanner: bufio.NewScanner(os.Stdin)}
}

func (lr *lineReader) ReadLine(prompt string) (string, error) {
	fmt.Print(prompt)
	if !lr.scanner.Scan() {
		if err := lr.scanner.Err(); err != nil {
			return "", err
		}
		return "", io.EOF
	}
	return lr.scanner.Text(), nil
}

func (lr *lineReader) Close() error {
	return nil
}
