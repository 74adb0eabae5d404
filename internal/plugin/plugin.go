// Package plugin implements the extension system of Starbridge: plugin
// descriptors with declared dependencies, the activation-order resolver, and
// the dispatch pipeline that routes inbound frames to the hooks that care
// about them and aggregates their forward/drop verdicts.
package plugin

import (
	"net"

	"github.com/starbridge-project/starbridge/internal/protocol"
)

// ConnState is the position of a proxied connection in the protocol
// handshake. Transitions are linear and driven by plugins observing
// handshake frames; StateDisconnected is terminal.
type ConnState int

const (
	StateAwaitingVersion ConnState = iota
	StateClientConnectReceived
	StateHandshakeChallengeSent
	StateHandshakeResponseReceived
	StateConnectResponseSent
	StateConnected
	StateConnectedWithHeartbeat
	StateDisconnected
)

var stateNames = [...]string{
	"awaiting_version",
	"client_connect_received",
	"handshake_challenge_sent",
	"handshake_response_received",
	"connect_response_sent",
	"connected",
	"connected_with_heartbeat",
	"disconnected",
}

func (s ConnState) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "unknown"
	}
	return stateNames[s]
}

// Conn is the read-mostly handle a hook receives for the connection the
// frame belongs to. It is deliberately narrow: plugins get the session
// state, the player identity once known, and a side channel for frames they
// originate themselves — never the sockets or the forwarding loops.
type Conn interface {
	ID() uint64
	RemoteAddr() net.Addr

	State() ConnState
	SetState(ConnState)

	PlayerName() string
	SetPlayerName(string)

	// SendChat delivers a chat_received frame to the client. Only valid once
	// the session reached StateConnected.
	SendChat(message string) error

	// SendRaw writes an already-built frame to the client, bypassing the
	// dispatch pipeline. This is the "send custom frame" side channel.
	SendRaw(frame []byte) error
}

// HookFunc handles one frame for one hook. The returned boolean is the
// plugin's forward verdict; false vetoes forwarding but never stops later
// hooks from observing the frame. Hooks may mutate f.Decoded, but a
// forwarded frame is always sent from its original raw bytes.
type HookFunc func(f *protocol.Frame, c Conn) bool

// Plugin is the descriptor contract every extension implements. One
// instance exists per activated plugin for the lifetime of the process and
// is shared by every connection; any mutable state it keeps is accessed
// concurrently and needs its own locking.
type Plugin interface {
	// Name is the unique key other plugins reference in Depends.
	Name() string

	// Depends lists the plugin names that must activate before this one.
	Depends() []string

	// Hooks returns the sparse capability map: only the hook names this
	// plugin actually overrides, keyed "on_<packet name>". Frame types no
	// active plugin registers for bypass decode and dispatch entirely.
	Hooks() map[string]HookFunc

	// Activate is called once, in activation order. deps holds exactly the
	// plugin instances named in Depends, nothing else.
	Activate(deps map[string]Plugin) error

	// Deactivate is called once at shutdown, in reverse activation order.
	Deactivate()
}

// Base provides no-op lifecycle defaults for plugins that need none.
type Base struct{}

// Depends declares no dependencies.
func (Base) Depends() []string { return nil }

// Activate does nothing.
func (Base) Activate(map[string]Plugin) error { return nil }

// Deactivate does nothing.
func (Base) Deactivate() {}
