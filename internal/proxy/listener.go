package proxy

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/starbridge-project/starbridge/internal/events"
	"github.com/starbridge-project/starbridge/internal/plugin"
)

// upstreamDialTimeout bounds how long an accepted client waits for the
// matching upstream socket.
const upstreamDialTimeout = 5 * time.Second

// Listener accepts game clients and pairs each one with its own upstream
// connection to the real game server.
type Listener struct {
	listenAddr   string
	upstreamAddr string
	registry     *Registry
	pipeline     *plugin.Registry
	bus          *events.EventBus
	logger       zerolog.Logger

	ln net.Listener
}

// NewListener creates a Listener. Serve must be called to start accepting.
func NewListener(listenAddr, upstreamAddr string, registry *Registry, pipeline *plugin.Registry, bus *events.EventBus) *Listener {
	return &Listener{
		listenAddr:   listenAddr,
		upstreamAddr: upstreamAddr,
		registry:     registry,
		pipeline:     pipeline,
		bus:          bus,
		logger:       log.With().Str("component", "listener").Str("listen", listenAddr).Logger(),
	}
}

// Serve binds the listen address and accepts clients until the context is
// cancelled. It returns once the accept loop has stopped.
func (l *Listener) Serve(ctx context.Context) error {
	lc := ReuseAddrListenConfig()
	ln, err := lc.Listen(ctx, "tcp", l.listenAddr)
	if err != nil {
		return fmt.Errorf("binding proxy listener on %s: %w", l.listenAddr, err)
	}
	l.ln = ln
	l.logger.Info().Str("upstream", l.upstreamAddr).Msg("proxy listening")

	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	for {
		client, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				l.logger.Info().Msg("accept loop stopped")
				return nil
			}
			l.logger.Warn().Err(err).Msg("accept failed")
			continue
		}
		go l.handle(ctx, client)
	}
}

// handle dials the upstream server for one accepted client and runs the
// session. A failed upstream dial tears the client down immediately; the
// proxy never holds a half-open session.
func (l *Listener) handle(ctx context.Context, client net.Conn) {
	upstream, err := net.DialTimeout("tcp", l.upstreamAddr, upstreamDialTimeout)
	if err != nil {
		l.logger.Error().Err(err).
			Str("remote", client.RemoteAddr().String()).
			Str("upstream", l.upstreamAddr).
			Msg("upstream connect failed, dropping client")
		client.Close()
		return
	}

	c := NewConnection(l.registry.NextID(), client, upstream, l.pipeline, l.bus)
	l.registry.Add(c)
	c.Run(ctx)
}

// Addr returns the bound listen address, or nil before Serve.
func (l *Listener) Addr() net.Addr {
	if l.ln == nil {
		return nil
	}
	return l.ln.Addr()
}
