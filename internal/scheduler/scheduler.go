// Package scheduler implements background task scheduling for Starbridge,
// including periodic status publishing and daily chat log pruning.
package scheduler

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/starbridge-project/starbridge/internal/config"
	"github.com/starbridge-project/starbridge/internal/db"
	"github.com/starbridge-project/starbridge/internal/events"
	"github.com/starbridge-project/starbridge/internal/plugin"
	"github.com/starbridge-project/starbridge/internal/proxy"
)

// Scheduler manages periodic background tasks.
type Scheduler struct {
	cfg      *config.Config
	eventBus *events.EventBus
	conns    *proxy.Registry
	plugins  *plugin.Registry
	store    *db.Store
	started  time.Time
}

// NewScheduler creates a new task scheduler.
func NewScheduler(cfg *config.Config, eventBus *events.EventBus, conns *proxy.Registry, plugins *plugin.Registry, store *db.Store) *Scheduler {
	return &Scheduler{
		cfg:      cfg,
		eventBus: eventBus,
		conns:    conns,
		plugins:  plugins,
		store:    store,
		started:  time.Now(),
	}
}

// Start begins running all scheduled tasks.
func (s *Scheduler) Start(ctx context.Context) {
	log.Info().Msg("scheduler started")

	// Chat log pruner - runs at configured time daily
	if s.cfg.GetApplicationData().ChatLog.Enabled {
		go s.runChatPrunerLoop(ctx)
	}

	// Status snapshot - published at the configured interval
	go s.runStatusPublishLoop(ctx)

	// Block until context is cancelled
	<-ctx.Done()
	log.Info().Msg("scheduler stopped")
}

// runChatPrunerLoop runs the chat log pruner at the configured time.
func (s *Scheduler) runChatPrunerLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		// Calculate time until next prune
		nextRun := s.calculateNextCleanupTime()
		sleepDuration := time.Until(nextRun)

		if sleepDuration <= 0 {
			sleepDuration = 24 * time.Hour
		}

		log.Info().
			Time("next_run", nextRun).
			Dur("sleep", sleepDuration).
			Msg("chat log pruner scheduled")

		select {
		case <-ctx.Done():
			return
		case <-time.After(sleepDuration):
			s.runChatPruner()
		}
	}
}

// runChatPruner deletes chat log entries older than the retention window.
func (s *Scheduler) runChatPruner() {
	chatCfg := s.cfg.GetApplicationData().ChatLog

	log.Info().
		Int("retention_days", chatCfg.RetentionDays).
		Msg("running chat log pruner")

	deleted, err := s.store.PruneChatLog(chatCfg.RetentionDays)
	if err != nil {
		log.Warn().Err(err).Msg("chat log pruner encountered errors")
		return
	}

	log.Info().
		Int64("deleted_rows", deleted).
		Msg("chat log pruner completed")
}

// runStatusPublishLoop emits a proxy status snapshot at the configured interval.
func (s *Scheduler) runStatusPublishLoop(ctx context.Context) {
	interval := s.cfg.GetApplicationData().Timers.StatusPublishInterval
	if interval < 1 {
		interval = 10
	}

	ticker := time.NewTicker(time.Duration(interval) * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.publishStatus(ctx)
		}
	}
}

// publishStatus gathers a snapshot and emits it on the event bus.
func (s *Scheduler) publishStatus(ctx context.Context) {
	stats := s.plugins.CacheStats()

	payload := events.ProxyStatusPayload{
		Connections:   s.conns.Count(),
		Players:       s.conns.Players(),
		CacheEntries:  stats.Entries,
		CacheHits:     stats.Hits,
		CacheMisses:   stats.Misses,
		UptimeSeconds: int64(time.Since(s.started).Seconds()),
	}

	log.Debug().
		Int("connections", payload.Connections).
		Int("cache_entries", payload.CacheEntries).
		Msg("proxy status published")

	s.eventBus.Emit(ctx, events.Event{
		Type:    events.EventProxyStatus,
		Source:  "scheduler",
		Payload: payload,
	})
}

// calculateNextCleanupTime returns the next time the prune should run.
func (s *Scheduler) calculateNextCleanupTime() time.Time {
	cleanupTime := s.cfg.GetApplicationData().ChatLog.CleanupTime
	parts := strings.Split(cleanupTime, ":")

	hour, minute := 4, 0 // Default: 4:00 AM
	if len(parts) >= 2 {
		fmt.Sscanf(parts[0], "%d", &hour)
		fmt.Sscanf(parts[1], "%d", &minute)
	}

	now := time.Now()
	next := time.Date(now.Year(), now.Month(), now.Day(), hour, minute, 0, 0, now.Location())

	if next.Before(now) {
		next = next.Add(24 * time.Hour)
	}

	return next
}
