package extensions

import (
	"bytes"
	"errors"
	"net"
	"path/filepath"
	"testing"

	"github.com/starbridge-project/starbridge/internal/db"
	"github.com/starbridge-project/starbridge/internal/events"
	"github.com/starbridge-project/starbridge/internal/plugin"
	"github.com/starbridge-project/starbridge/internal/protocol"
)

// testConn is an in-memory plugin.Conn that records chat sent to it.
type testConn struct {
	id    uint64
	state plugin.ConnState
	name  string
	chat  []string
	raw   [][]byte
}

func (c *testConn) ID() uint64             { return c.id }
func (c *testConn) RemoteAddr() net.Addr   { return nil }
func (c *testConn) State() plugin.ConnState { return c.state }
func (c *testConn) PlayerName() string     { return c.name }
func (c *testConn) SetPlayerName(n string) { c.name = n }

func (c *testConn) SetState(s plugin.ConnState) {
	if s < c.state {
		return
	}
	c.state = s
}

func (c *testConn) SendChat(m string) error {
	c.chat = append(c.chat, m)
	return nil
}

func (c *testConn) SendRaw(f []byte) error {
	c.raw = append(c.raw, f)
	return nil
}

// decodedFrame builds a frame of the given type and decodes it, matching
// what the dispatch pipeline hands to hooks.
func decodedFrame(t *testing.T, typeID uint8, body []byte) *protocol.Frame {
	t.Helper()
	wire, err := protocol.BuildFrame(typeID, body, false)
	if err != nil {
		t.Fatalf("BuildFrame: %v", err)
	}
	f, err := protocol.ReadFrame(bytes.NewReader(wire), protocol.ToServer)
	if err != nil {
		t.Fatalf("ReadFrame: %v", err)
	}
	f.Decoded, err = protocol.Decode(f.Type, f.Payload)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	return f
}

func chatFrame(t *testing.T, message string) *protocol.Frame {
	t.Helper()
	body := protocol.NewPayloadBuilder().WriteString(message).WriteByte(0).Build()
	return decodedFrame(t, protocol.PktChatSent, body)
}

func clientConnectFrame(t *testing.T, name, uuid string) *protocol.Frame {
	t.Helper()
	body := protocol.NewPayloadBuilder().
		WriteByteBlob([]byte{0x01, 0x02}).
		WriteUUID(uuid).
		WriteString(name).
		Build()
	return decodedFrame(t, protocol.PktClientConnect, body)
}

func openStore(t *testing.T) *db.Store {
	t.Helper()
	s, err := db.NewStore(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestCommandDispatcherConsumesKnownCommands(t *testing.T) {
	d := NewCommandDispatcher()

	var gotArgs []string
	d.RegisterCommand("who", "/who - list players", func(c plugin.Conn, args []string) error {
		gotArgs = args
		return nil
	})

	c := &testConn{id: 1, name: "korben"}
	if d.onChatSent(chatFrame(t, "/who arg1 arg2"), c) {
		t.Error("recognized command should be consumed")
	}
	if len(gotArgs) != 2 || gotArgs[0] != "arg1" {
		t.Errorf("handler args = %v", gotArgs)
	}
}

func TestCommandDispatcherPassesUnknownAndPlainChat(t *testing.T) {
	d := NewCommandDispatcher()
	c := &testConn{id: 1}

	if !d.onChatSent(chatFrame(t, "/spawnitem sword"), c) {
		t.Error("unknown command should pass through to the server")
	}
	if !d.onChatSent(chatFrame(t, "hello everyone"), c) {
		t.Error("plain chat should pass through")
	}
}

func TestCommandDispatcherHelp(t *testing.T) {
	d := NewCommandDispatcher()
	d.RegisterCommand("who", "/who - list players", func(c plugin.Conn, args []string) error { return nil })

	c := &testConn{id: 1}
	if d.onChatSent(chatFrame(t, "/help"), c) {
		t.Error("/help should be consumed")
	}
	if len(c.chat) != 2 {
		t.Fatalf("help printed %d lines, want 2", len(c.chat))
	}
}

func TestCommandDispatcherReportsHandlerError(t *testing.T) {
	d := NewCommandDispatcher()
	d.RegisterCommand("boom", "/boom", func(c plugin.Conn, args []string) error {
		return errors.New("test failure")
	})

	c := &testConn{id: 1}
	if d.onChatSent(chatFrame(t, "/boom"), c) {
		t.Error("failing command should still be consumed")
	}
	if len(c.chat) != 1 {
		t.Fatal("player should be told the command failed")
	}
}

func TestSessionTrackerHandshakeSequence(t *testing.T) {
	s := NewSessionTracker(events.NewEventBus())
	c := &testConn{id: 1}

	if !s.onClientConnect(clientConnectFrame(t, "korben", "00112233445566778899aabbccddeeff"), c) {
		t.Error("session tracker must never veto")
	}
	if c.name != "korben" {
		t.Errorf("player name = %q, want korben", c.name)
	}
	if c.state != plugin.StateClientConnectReceived {
		t.Errorf("state = %v after client_connect", c.state)
	}

	s.onHandshakeChallenge(decodedFrame(t, protocol.PktHandshakeChallenge,
		protocol.NewPayloadBuilder().WriteString("salt").Build()), c)
	if c.state != plugin.StateHandshakeChallengeSent {
		t.Errorf("state = %v after handshake_challenge", c.state)
	}

	s.onHandshakeResponse(decodedFrame(t, protocol.PktHandshakeResponse,
		protocol.NewPayloadBuilder().WriteString("response").Build()), c)
	if c.state != plugin.StateHandshakeResponseReceived {
		t.Errorf("state = %v after handshake_response", c.state)
	}

	success := protocol.NewPayloadBuilder().
		WriteVLQ(7).
		WriteUUID("00112233445566778899aabbccddeeff").
		Build()
	s.onConnectSuccess(decodedFrame(t, protocol.PktConnectSuccess, success), c)
	if c.state != plugin.StateConnectResponseSent {
		t.Errorf("state = %v after connect_success", c.state)
	}

	s.onWorldStart(decodedFrame(t, protocol.PktWorldStart, nil), c)
	if c.state != plugin.StateConnected {
		t.Errorf("state = %v after world_start", c.state)
	}

	s.onStepUpdate(decodedFrame(t, protocol.PktStepUpdate, nil), c)
	if c.state != plugin.StateConnectedWithHeartbeat {
		t.Errorf("state = %v after step_update", c.state)
	}
}

func TestSessionTrackerHeartbeatRequiresConnected(t *testing.T) {
	s := NewSessionTracker(events.NewEventBus())
	c := &testConn{id: 1}

	s.onStepUpdate(decodedFrame(t, protocol.PktStepUpdate, nil), c)
	if c.state != plugin.StateAwaitingVersion {
		t.Errorf("stray step_update advanced state to %v", c.state)
	}
}

func TestChatManagerVetoesMutedPlayer(t *testing.T) {
	store := openStore(t)
	m := NewChatManager(store)

	if err := store.Mute("korben", "admin", "flooding"); err != nil {
		t.Fatalf("Mute: %v", err)
	}

	muted := &testConn{id: 1, name: "korben"}
	if m.onChatSent(chatFrame(t, "can anyone hear me"), muted) {
		t.Error("muted player's chat should be vetoed")
	}
	if len(muted.chat) != 1 {
		t.Error("muted player should be told they are muted")
	}

	free := &testConn{id: 2, name: "leeloo"}
	if !m.onChatSent(chatFrame(t, "hello"), free) {
		t.Error("unmuted player's chat should pass")
	}

	// Commands pass even while muted so /help keeps working.
	if !m.onChatSent(chatFrame(t, "/help"), muted) {
		t.Error("commands should bypass the mute check")
	}
}

func TestChatManagerCommands(t *testing.T) {
	store := openStore(t)
	m := NewChatManager(store)
	d := NewCommandDispatcher()

	if err := m.Activate(map[string]plugin.Plugin{"command_dispatcher": d}); err != nil {
		t.Fatalf("Activate: %v", err)
	}

	admin := &testConn{id: 1, name: "admin"}
	if d.onChatSent(chatFrame(t, "/mute korben being rude"), admin) {
		t.Error("/mute should be consumed")
	}
	if muted, _ := store.IsMuted("korben"); !muted {
		t.Error("mute command did not persist")
	}

	if d.onChatSent(chatFrame(t, "/unmute korben"), admin) {
		t.Error("/unmute should be consumed")
	}
	if muted, _ := store.IsMuted("korben"); muted {
		t.Error("unmute command did not persist")
	}
}

func TestChatLoggerPersistsChat(t *testing.T) {
	store := openStore(t)
	l := NewChatLogger(store, events.NewEventBus())

	c := &testConn{id: 9, name: "leeloo"}
	if !l.onChatSent(chatFrame(t, "multipass"), c) {
		t.Error("chat logger must never veto")
	}
	if !l.onChatSent(chatFrame(t, "/help"), c) {
		t.Error("chat logger must never veto commands")
	}

	entries, err := store.RecentChat(10)
	if err != nil {
		t.Fatalf("RecentChat: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("logged %d entries, want 1 (commands are not logged)", len(entries))
	}
	if entries[0].Message != "multipass" || entries[0].PlayerName != "leeloo" {
		t.Errorf("logged entry = %+v", entries[0])
	}
}

func TestMOTDGreetsOncePerConnection(t *testing.T) {
	m := NewMOTD(map[string]any{"message": "hello pilot"})
	c := &testConn{id: 1, name: "korben"}

	world := decodedFrame(t, protocol.PktWorldStart, nil)
	if !m.onWorldStart(world, c) {
		t.Error("motd must never veto")
	}
	m.onWorldStart(world, c)
	m.onWorldStart(world, c)

	if len(c.chat) != 1 {
		t.Fatalf("greeted %d times, want 1", len(c.chat))
	}
	if c.chat[0] != "hello pilot" {
		t.Errorf("greeting = %q", c.chat[0])
	}
}

func TestMOTDCommandShowsAndUpdates(t *testing.T) {
	m := NewMOTD(nil)
	d := NewCommandDispatcher()
	if err := m.Activate(map[string]plugin.Plugin{"command_dispatcher": d}); err != nil {
		t.Fatalf("Activate: %v", err)
	}

	c := &testConn{id: 1, name: "korben"}
	d.onChatSent(chatFrame(t, "/motd"), c)
	if len(c.chat) != 1 || c.chat[0] != defaultMOTD {
		t.Errorf("motd display = %v", c.chat)
	}

	d.onChatSent(chatFrame(t, "/set_motd be excellent to each other"), c)
	if m.Message() != "be excellent to each other" {
		t.Errorf("message = %q after update", m.Message())
	}
}

func TestEntityMessageBlocker(t *testing.T) {
	b := NewEntityMessageBlocker(map[string]any{
		"blocked_messages": []any{"applyStatusEffect", "warp"},
	})

	msg := func(name string) *protocol.Frame {
		body := protocol.NewPayloadBuilder().WriteVLQ(12).WriteString(name).Build()
		return decodedFrame(t, protocol.PktEntityMessage, body)
	}

	c := &testConn{id: 1, name: "korben"}
	if b.onEntityMessage(msg("applyStatusEffect"), c) {
		t.Error("blocked message should be vetoed")
	}
	// Matching is case-insensitive.
	if b.onEntityMessage(msg("WARP"), c) {
		t.Error("blocked message should be vetoed regardless of case")
	}
	if !b.onEntityMessage(msg("openDoor"), c) {
		t.Error("unlisted message should pass")
	}
}

func TestEntityMessageBlockerEmptyConfig(t *testing.T) {
	b := NewEntityMessageBlocker(nil)
	body := protocol.NewPayloadBuilder().WriteVLQ(1).WriteString("anything").Build()
	if !b.onEntityMessage(decodedFrame(t, protocol.PktEntityMessage, body), &testConn{}) {
		t.Error("empty blocklist should pass everything")
	}
}
