// Package proxy implements the transparent intercepting layer of
// Starbridge: the listener that accepts game clients, the per-session
// Connection with its two forwarding loops, and the registry that tracks
// live sessions for the API, CLI, and graceful shutdown.
package proxy

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/starbridge-project/starbridge/internal/events"
	"github.com/starbridge-project/starbridge/internal/plugin"
	"github.com/starbridge-project/starbridge/internal/protocol"
)

// closeWriteTimeout bounds the farewell frame sent during graceful close so
// a stalled client cannot delay shutdown.
const closeWriteTimeout = 2 * time.Second

// Connection is one proxied client session: the client socket, the matching
// upstream socket, and the two loops pumping frames between them through
// the dispatch pipeline. It implements plugin.Conn, which is the only view
// extensions ever get of it.
type Connection struct {
	id       uint64
	client   net.Conn
	upstream net.Conn
	pipeline *plugin.Registry
	bus      *events.EventBus
	logger   zerolog.Logger
	opened   time.Time

	alive atomic.Bool

	mu         sync.RWMutex
	state      plugin.ConnState
	playerName string

	// Each socket has exactly one forwarding loop writing to it, plus
	// occasional proxy-originated frames via SendRaw. The write mutexes keep
	// those interleavings frame-atomic.
	clientWriteMu   sync.Mutex
	upstreamWriteMu sync.Mutex

	dieOnce sync.Once
	done    chan struct{}
	onClose func(*Connection)
}

// NewConnection wires a freshly accepted client socket to its upstream
// socket. The connection does nothing until Run is called.
func NewConnection(id uint64, client, upstream net.Conn, pipeline *plugin.Registry, bus *events.EventBus) *Connection {
	c := &Connection{
		id:       id,
		client:   client,
		upstream: upstream,
		pipeline: pipeline,
		bus:      bus,
		opened:   time.Now(),
		state:    plugin.StateAwaitingVersion,
		done:     make(chan struct{}),
		logger: log.With().
			Str("component", "connection").
			Uint64("conn_id", id).
			Str("remote", client.RemoteAddr().String()).
			Logger(),
	}
	c.alive.Store(true)
	return c
}

// Run starts both forwarding loops and blocks until the session ends.
// Either loop terminating for any reason tears the whole session down.
func (c *Connection) Run(ctx context.Context) {
	c.logger.Info().Msg("session started")
	c.bus.Emit(ctx, events.Event{
		Type:    events.EventConnectionOpened,
		Source:  "proxy",
		Payload: c.snapshotPayload(),
	})

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		c.forward(c.client, c.upstream, &c.upstreamWriteMu, protocol.ToServer)
	}()
	go func() {
		defer wg.Done()
		c.forward(c.upstream, c.client, &c.clientWriteMu, protocol.ToClient)
	}()

	select {
	case <-ctx.Done():
		c.Die()
	case <-c.done:
	}
	wg.Wait()

	c.bus.Emit(context.Background(), events.Event{
		Type:    events.EventConnectionClosed,
		Source:  "proxy",
		Payload: c.snapshotPayload(),
	})
	if c.onClose != nil {
		c.onClose(c)
	}
	c.logger.Info().Str("player", c.PlayerName()).Msg("session ended")
}

// forward pumps frames from src to dst until the stream ends or the
// session dies. Each frame passes through the dispatch pipeline; a
// permitted frame is written from its original raw bytes, a vetoed frame
// is silently dropped and the loop continues.
func (c *Connection) forward(src, dst net.Conn, writeMu *sync.Mutex, dir protocol.Direction) {
	defer c.Die()

	for c.alive.Load() {
		f, err := protocol.ReadFrame(src, dir)
		if err != nil {
			c.logReadEnd(dir, err)
			return
		}

		if !c.pipeline.Process(f, c) {
			c.bus.Emit(context.Background(), events.Event{
				Type:   events.EventFrameVetoed,
				Source: "proxy",
				Payload: events.FrameVetoedPayload{
					ConnID:     c.id,
					PacketName: protocol.PacketName(f.Type),
					Direction:  dir.String(),
				},
			})
			continue
		}

		writeMu.Lock()
		err = protocol.WriteFrame(dst, f)
		writeMu.Unlock()
		if err != nil {
			if c.alive.Load() {
				c.logger.Warn().Err(err).Str("direction", dir.String()).Msg("forward write failed")
			}
			return
		}
	}
}

// logReadEnd classifies why a forwarding loop stopped reading. A clean EOF
// at a frame boundary is an orderly close; a mid-frame truncation is logged
// as a protocol error.
func (c *Connection) logReadEnd(dir protocol.Direction, err error) {
	if !c.alive.Load() {
		return
	}
	switch {
	case errors.Is(err, io.EOF):
		c.logger.Debug().Str("direction", dir.String()).Msg("stream closed")
	case errors.Is(err, protocol.ErrIncompleteStream):
		c.logger.Warn().Err(err).Str("direction", dir.String()).Msg("stream truncated mid frame")
	default:
		c.logger.Warn().Err(err).Str("direction", dir.String()).Msg("stream read failed")
	}
}

// Die tears the session down: marks it dead, moves the state machine to
// its terminal state, and closes both sockets so both loops unblock.
// Safe to call any number of times from any goroutine.
func (c *Connection) Die() {
	c.dieOnce.Do(func() {
		c.alive.Store(false)
		c.SetState(plugin.StateDisconnected)
		c.client.Close()
		c.upstream.Close()
		close(c.done)
		c.logger.Debug().Msg("connection torn down")
	})
}

// GracefulClose tells the client why it is being disconnected, then tears
// the session down. Used for kicks and proxy shutdown.
func (c *Connection) GracefulClose(reason string) {
	if c.alive.Load() {
		if wire, err := protocol.BuildServerDisconnect(reason); err == nil {
			c.client.SetWriteDeadline(time.Now().Add(closeWriteTimeout))
			c.writeClient(wire)
			c.client.SetWriteDeadline(time.Time{})
		}
	}
	c.Die()
}

// writeClient writes proxy-originated bytes to the client socket,
// serialized against the downstream forwarding loop.
func (c *Connection) writeClient(wire []byte) error {
	c.clientWriteMu.Lock()
	defer c.clientWriteMu.Unlock()
	if _, err := c.client.Write(wire); err != nil {
		return fmt.Errorf("writing to client: %w", err)
	}
	return nil
}

func (c *Connection) snapshotPayload() events.ConnectionPayload {
	return events.ConnectionPayload{
		ConnID:     c.id,
		RemoteAddr: c.client.RemoteAddr().String(),
		PlayerName: c.PlayerName(),
		State:      c.State().String(),
		Opened:     c.opened,
	}
}

// Alive reports whether the session is still forwarding.
func (c *Connection) Alive() bool { return c.alive.Load() }

// Opened returns when the client was accepted.
func (c *Connection) Opened() time.Time { return c.opened }

// ID implements plugin.Conn.
func (c *Connection) ID() uint64 { return c.id }

// RemoteAddr implements plugin.Conn.
func (c *Connection) RemoteAddr() net.Addr { return c.client.RemoteAddr() }

// State implements plugin.Conn.
func (c *Connection) State() plugin.ConnState {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// SetState implements plugin.Conn. The state machine only moves forward;
// a regression is a bug in the calling extension and is dropped.
func (c *Connection) SetState(s plugin.ConnState) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if s < c.state {
		return
	}
	c.state = s
}

// PlayerName implements plugin.Conn.
func (c *Connection) PlayerName() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.playerName
}

// SetPlayerName implements plugin.Conn.
func (c *Connection) SetPlayerName(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.playerName = name
}

// SendChat implements plugin.Conn: it delivers a server-styled chat line
// to this client only.
func (c *Connection) SendChat(message string) error {
	if !c.alive.Load() {
		return fmt.Errorf("connection %d is closed", c.id)
	}
	wire, err := protocol.BuildChatReceived(1, "", 0, "server", message)
	if err != nil {
		return fmt.Errorf("building chat frame: %w", err)
	}
	return c.writeClient(wire)
}

// SendRaw implements plugin.Conn: it writes an already-built frame to the
// client, bypassing the dispatch pipeline.
func (c *Connection) SendRaw(frame []byte) error {
	if !c.alive.Load() {
		return fmt.Errorf("connection %d is closed", c.id)
	}
	return c.writeClient(frame)
}
