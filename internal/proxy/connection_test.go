package proxy

import (
	"bytes"
	"context"
	"io"
	"net"
	"sync/atomic"
	"testing"
	"time"

	"github.com/starbridge-project/starbridge/internal/cache"
	"github.com/starbridge-project/starbridge/internal/events"
	"github.com/starbridge-project/starbridge/internal/plugin"
	"github.com/starbridge-project/starbridge/internal/protocol"
)

// vetoPlugin drops every chat_sent frame.
type vetoPlugin struct {
	plugin.Base
}

func (vetoPlugin) Name() string { return "veto" }

func (vetoPlugin) Hooks() map[string]plugin.HookFunc {
	return map[string]plugin.HookFunc{
		"on_chat_sent": func(f *protocol.Frame, c plugin.Conn) bool { return false },
	}
}

func testPipeline(t *testing.T, ps ...plugin.Plugin) *plugin.Registry {
	t.Helper()
	r := plugin.NewRegistry(cache.New(1, time.Minute, protocol.Decode))
	for _, p := range ps {
		if err := r.Register(p); err != nil {
			t.Fatalf("Register: %v", err)
		}
	}
	if err := r.Resolve(); err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if err := r.Activate(); err != nil {
		t.Fatalf("Activate: %v", err)
	}
	return r
}

// session wires a Connection between two in-memory pipes and runs it.
type session struct {
	conn     *Connection
	client   net.Conn // the test's end of the client socket
	upstream net.Conn // the test's end of the upstream socket
	done     chan struct{}
}

// nextTestConnID keeps test connection ids unique, mirroring the
// listener's use of Registry.NextID in production.
var nextTestConnID atomic.Uint64

func startSession(t *testing.T, pipeline *plugin.Registry) *session {
	t.Helper()
	clientEnd, proxyClient := net.Pipe()
	upstreamEnd, proxyUpstream := net.Pipe()

	s := &session{
		conn:     NewConnection(nextTestConnID.Add(1), proxyClient, proxyUpstream, pipeline, events.NewEventBus()),
		client:   clientEnd,
		upstream: upstreamEnd,
		done:     make(chan struct{}),
	}
	go func() {
		s.conn.Run(context.Background())
		close(s.done)
	}()
	t.Cleanup(func() {
		s.conn.Die()
		select {
		case <-s.done:
		case <-time.After(2 * time.Second):
			t.Error("session did not shut down")
		}
	})
	return s
}

func readExactly(t *testing.T, r io.Reader, n int) []byte {
	t.Helper()
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		t.Fatalf("reading %d forwarded bytes: %v", n, err)
	}
	return buf
}

func TestForwardPassThroughByteIdentical(t *testing.T) {
	s := startSession(t, testPipeline(t))

	// Unmapped type id with an arbitrary payload. No hook, no decode, the
	// forwarded bytes must be exactly the transmitted bytes.
	wire, err := protocol.BuildFrame(42, bytes.Repeat([]byte{0xAB, 0x01}, 20), false)
	if err != nil {
		t.Fatalf("BuildFrame: %v", err)
	}

	go s.client.Write(wire)
	got := readExactly(t, s.upstream, len(wire))
	if !bytes.Equal(got, wire) {
		t.Errorf("forwarded bytes differ from transmitted bytes\n got %x\nwant %x", got, wire)
	}
}

func TestForwardUpstreamToClient(t *testing.T) {
	s := startSession(t, testPipeline(t))

	wire, err := protocol.BuildChatReceived(0, "", 7, "someone", "hello from the server")
	if err != nil {
		t.Fatalf("BuildChatReceived: %v", err)
	}

	go s.upstream.Write(wire)
	got := readExactly(t, s.client, len(wire))
	if !bytes.Equal(got, wire) {
		t.Errorf("downstream bytes differ\n got %x\nwant %x", got, wire)
	}
}

func TestVetoedFrameIsDropped(t *testing.T) {
	s := startSession(t, testPipeline(t, vetoPlugin{}))

	vetoed, err := protocol.BuildChatSent("should never arrive", 0)
	if err != nil {
		t.Fatalf("BuildChatSent: %v", err)
	}
	marker, err := protocol.BuildFrame(42, []byte{0xDE, 0xAD}, false)
	if err != nil {
		t.Fatalf("BuildFrame: %v", err)
	}

	go func() {
		s.client.Write(vetoed)
		s.client.Write(marker)
	}()

	// The next bytes to arrive upstream must be the marker frame: the
	// vetoed frame was consumed and dropped, not forwarded.
	got := readExactly(t, s.upstream, len(marker))
	if !bytes.Equal(got, marker) {
		t.Errorf("upstream received %x, want marker %x", got, marker)
	}
}

func TestDieIsIdempotent(t *testing.T) {
	s := startSession(t, testPipeline(t))

	s.conn.Die()
	s.conn.Die()
	s.conn.Die()

	if s.conn.Alive() {
		t.Error("connection still alive after Die")
	}
	if s.conn.State() != plugin.StateDisconnected {
		t.Errorf("state = %v, want disconnected", s.conn.State())
	}
	select {
	case <-s.done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after Die")
	}
}

func TestPeerCloseTearsDownSession(t *testing.T) {
	s := startSession(t, testPipeline(t))

	s.client.Close()
	select {
	case <-s.done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after client close")
	}
	if s.conn.Alive() {
		t.Error("connection still alive after peer close")
	}
}

func TestSendChatAfterCloseFails(t *testing.T) {
	s := startSession(t, testPipeline(t))

	s.conn.Die()
	<-s.done
	if err := s.conn.SendChat("too late"); err == nil {
		t.Error("SendChat on a dead connection should fail")
	}
	if err := s.conn.SendRaw([]byte{0x00}); err == nil {
		t.Error("SendRaw on a dead connection should fail")
	}
}

func TestSendChatDeliversToClient(t *testing.T) {
	s := startSession(t, testPipeline(t))

	got := make(chan *protocol.Frame, 1)
	go func() {
		f, err := protocol.ReadFrame(s.client, protocol.ToClient)
		if err != nil {
			t.Errorf("ReadFrame: %v", err)
			got <- nil
			return
		}
		got <- f
	}()

	if err := s.conn.SendChat("welcome aboard"); err != nil {
		t.Fatalf("SendChat: %v", err)
	}
	f := <-got
	if f == nil {
		t.FailNow()
	}
	if f.Type != protocol.PktChatReceived {
		t.Errorf("frame type = %d, want chat_received", f.Type)
	}
	body, err := protocol.Decode(f.Type, f.Payload)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if body["message"] != "welcome aboard" {
		t.Errorf("message = %v, want %q", body["message"], "welcome aboard")
	}
}

func TestGracefulCloseSendsDisconnect(t *testing.T) {
	s := startSession(t, testPipeline(t))

	got := make(chan *protocol.Frame, 1)
	go func() {
		f, _ := protocol.ReadFrame(s.client, protocol.ToClient)
		got <- f
	}()

	s.conn.GracefulClose("proxy shutting down")

	select {
	case f := <-got:
		if f == nil || f.Type != protocol.PktServerDisconnect {
			t.Errorf("expected server_disconnect farewell, got %+v", f)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("no farewell frame received")
	}
	if s.conn.Alive() {
		t.Error("connection still alive after graceful close")
	}
}

func TestStateOnlyMovesForward(t *testing.T) {
	s := startSession(t, testPipeline(t))

	s.conn.SetState(plugin.StateConnected)
	s.conn.SetState(plugin.StateClientConnectReceived)
	if s.conn.State() != plugin.StateConnected {
		t.Errorf("state regressed to %v", s.conn.State())
	}
	s.conn.SetState(plugin.StateConnectedWithHeartbeat)
	if s.conn.State() != plugin.StateConnectedWithHeartbeat {
		t.Errorf("state = %v, want connected_with_heartbeat", s.conn.State())
	}
}
