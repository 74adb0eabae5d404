// Starbridge - Transparent Starbound Proxy
// A high-performance rewrite of the StarryPy wrapper in Go.
//
// Starbridge sits between game clients and the real Starbound server,
// decoding the binary protocol, running every frame through a plugin
// pipeline, exposing a REST API for remote management, and publishing
// real-time telemetry via MQTT.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/starbridge-project/starbridge/internal/api"
	"github.com/starbridge-project/starbridge/internal/cache"
	"github.com/starbridge-project/starbridge/internal/cli"
	"github.com/starbridge-project/starbridge/internal/config"
	"github.com/starbridge-project/starbridge/internal/db"
	"github.com/starbridge-project/starbridge/internal/events"
	"github.com/starbridge-project/starbridge/internal/extensions"
	"github.com/starbridge-project/starbridge/internal/plugin"
	"github.com/starbridge-project/starbridge/internal/protocol"
	"github.com/starbridge-project/starbridge/internal/proxy"
	"github.com/starbridge-project/starbridge/internal/scheduler"
	"github.com/starbridge-project/starbridge/internal/telemetry"
	"github.com/starbridge-project/starbridge/internal/util"
)

const (
	AppName = "Starbridge"
	Banner  = `
   _____ __             __         _     __
  / ___// /_____ ______/ /_  _____(_)___/ /___ ____
  \__ \/ __/ __ '/ ___/ __ \/ ___/ / __  / __ '/ _ \
 ___/ / /_/ /_/ / /  / /_/ / /  / / /_/ / /_/ /  __/
/____/\__/\__,_/_/  /_.___/_/  /_/\__,_/\__, /\___/
                                       /____/  v%s
 Transparent Starbound Proxy
`
)

func main() {
	// Print banner
	fmt.Printf(Banner, util.Version)
	fmt.Println()

	// Initialize logger with defaults first (will be reconfigured after config load)
	if err := util.InitLogger(util.DefaultLogConfig()); err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}

	log.Info().
		Str("version", util.Version).
		Str("platform", runtime.GOOS).
		Str("arch", runtime.GOARCH).
		Int("cpus", runtime.NumCPU()).
		Msg("starting Starbridge")

	// Load configuration
	cfg, err := config.Load(config.DefaultConfigDir)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	// Re-initialize logger with config-based settings
	appData := cfg.GetApplicationData()
	logCfg := util.LogConfig{
		Level:      appData.Logging.Level,
		Directory:  appData.Logging.Directory,
		MaxSizeMB:  appData.Logging.MaxSizeMB,
		MaxBackups: appData.Logging.MaxBackups,
		Console:    true,
	}
	if err := util.InitLogger(logCfg); err != nil {
		log.Warn().Err(err).Msg("failed to reconfigure logger, using defaults")
	}

	// Validate configuration
	validation := config.Validate(cfg)
	for _, w := range validation.Warnings {
		log.Warn().Str("field", w.Field).Msg(w.Message)
	}
	if !validation.IsValid() {
		for _, e := range validation.Errors {
			log.Error().Str("field", e.Field).Msg(e.Message)
		}

		if cfg.IsFirstRun() {
			log.Info().Msg("first run detected, launching setup wizard")
			if err := config.RunSetupWizard(cfg); err != nil {
				log.Fatal().Err(err).Msg("setup wizard failed")
			}
		} else {
			log.Fatal().Msg("configuration validation failed, please fix the errors above")
		}
	}

	// Log system info
	sysInfo := util.GetSystemInfo()
	log.Info().
		Str("hostname", sysInfo.Hostname).
		Str("os", sysInfo.OS).
		Str("cpu", sysInfo.CPUModel).
		Int("cores", sysInfo.CPUCores).
		Uint64("memory_mb", sysInfo.TotalMemory).
		Msg("system information")

	// Generate a self-signed certificate for the API if TLS is enabled
	// but no certificate exists yet
	security := cfg.GetApplicationData().Security
	if security.TLSEnabled && security.TLSCertFile != "" {
		if _, statErr := os.Stat(security.TLSCertFile); os.IsNotExist(statErr) {
			log.Info().Str("cert", security.TLSCertFile).Msg("generating self-signed TLS certificate")
			if err := util.GenerateSelfSignedCert(security.TLSCertFile, security.TLSKeyFile); err != nil {
				log.Warn().Err(err).Msg("failed to generate TLS certificate, API will run without TLS")
			}
		}
	}

	// Create root context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize core components
	eventBus := events.NewEventBus()

	// Chat log and mute persistence
	store, err := db.NewStore(cfg.GetApplicationData().Database.Path)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open database")
	}

	// Decode cache with decay reaper
	proxyCfg := cfg.GetProxy()
	decodeCache := cache.New(
		proxyCfg.MinCacheSize,
		time.Duration(proxyCfg.PacketReapTimeSec)*time.Second,
		protocol.Decode,
	)
	go decodeCache.StartReaper(ctx)

	// Plugin pipeline
	pipeline := plugin.NewRegistry(decodeCache)
	register := func(p plugin.Plugin) {
		if err := pipeline.Register(p); err != nil {
			log.Fatal().Err(err).Str("plugin", p.Name()).Msg("failed to register plugin")
		}
	}
	register(extensions.NewCommandDispatcher())
	register(extensions.NewSessionTracker(eventBus))
	register(extensions.NewChatManager(store))
	register(extensions.NewChatLogger(store, eventBus))
	register(extensions.NewMOTD(cfg.PluginSection("motd")))
	register(extensions.NewEntityMessageBlocker(cfg.PluginSection("emsg_blocker")))

	if err := pipeline.Resolve(); err != nil {
		log.Fatal().Err(err).Msg("plugin dependency resolution failed")
	}
	if err := pipeline.Activate(); err != nil {
		log.Fatal().Err(err).Msg("plugin activation failed")
	}
	log.Info().Strs("order", pipeline.Order()).Msg("plugins activated")

	// Connection registry and listener
	conns := proxy.NewRegistry()
	listener := proxy.NewListener(cfg.ListenAddr(), cfg.UpstreamAddr(), conns, pipeline, eventBus)

	// Initialize REST API
	apiServer := api.NewServer(cfg, eventBus, conns, pipeline, store)

	// Initialize MQTT telemetry
	var mqttHandler *telemetry.MQTTHandler
	if cfg.GetApplicationData().MQTT.Enabled {
		mqttHandler, err = telemetry.NewMQTTHandler(cfg, eventBus)
		if err != nil {
			log.Warn().Err(err).Msg("failed to initialize MQTT, telemetry disabled")
		}
	}

	// Initialize scheduler
	sched := scheduler.NewScheduler(cfg, eventBus, conns, pipeline, store)

	// Initialize CLI
	cliHandler := cli.NewCLI(cfg, eventBus, conns, pipeline, store)

	// ---------------------------------------------------------------
	// Launch all concurrent tasks
	// ---------------------------------------------------------------
	var wg sync.WaitGroup
	errCh := make(chan error, 10)

	// Task 1: Proxy listener (with retry for port binding)
	wg.Add(1)
	go func() {
		defer wg.Done()
		log.Info().Str("listen", cfg.ListenAddr()).Str("upstream", cfg.UpstreamAddr()).Msg("starting proxy listener")
		if err := startWithRetry(ctx, "proxy listener", listener.Serve, 15); err != nil {
			log.Error().Err(err).Msg("proxy listener failed after retries")
			errCh <- fmt.Errorf("proxy listener: %w", err)
		}
	}()

	// Task 2: REST API server (with retry for port binding)
	wg.Add(1)
	go func() {
		defer wg.Done()
		log.Info().Int("port", security.APIPort).Msg("starting REST API server")
		if err := startWithRetry(ctx, "API server", apiServer.Start, 15); err != nil {
			log.Warn().Err(err).Msg("API server failed after retries (non-fatal)")
		}
	}()

	// Task 3: MQTT telemetry
	if mqttHandler != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			log.Info().Msg("starting MQTT telemetry")
			if err := mqttHandler.Start(ctx); err != nil {
				log.Warn().Err(err).Msg("MQTT telemetry failed")
			}
		}()
	}

	// Task 4: Scheduler (chat log pruning, status publishing)
	wg.Add(1)
	go func() {
		defer wg.Done()
		log.Info().Msg("starting task scheduler")
		sched.Start(ctx)
	}()

	// Task 5: Interactive CLI
	wg.Add(1)
	go func() {
		defer wg.Done()
		log.Info().Msg("starting interactive CLI")
		cliHandler.Start(ctx)
	}()

	// ---------------------------------------------------------------
	// Graceful shutdown handling
	// ---------------------------------------------------------------
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	// The CLI quit command and API emit shutdown through the event bus
	shutdownCh := make(chan struct{}, 1)
	eventBus.Subscribe(events.EventShutdown, "main.shutdown", func(ctx context.Context, e events.Event) error {
		select {
		case shutdownCh <- struct{}{}:
		default:
		}
		return nil
	})

	select {
	case sig := <-sigCh:
		log.Info().Str("signal", sig.String()).Msg("received shutdown signal")
	case <-shutdownCh:
		log.Info().Msg("shutdown requested")
	case err := <-errCh:
		log.Error().Err(err).Msg("critical error, initiating shutdown")
	}

	log.Info().Msg("initiating graceful shutdown...")

	// Disconnect players politely before cutting the sockets
	conns.Shutdown("Server is restarting.")

	// Cancel the root context to signal all goroutines
	cancel()

	// Wait for all goroutines with timeout
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		log.Info().Msg("all tasks stopped gracefully")
	case <-time.After(30 * time.Second):
		log.Warn().Msg("shutdown timed out after 30 seconds, forcing exit")
	}

	// Deactivate plugins in reverse activation order
	pipeline.Deactivate()

	// Stop the event bus, then close persistence
	eventBus.Stop()
	if err := store.Close(); err != nil {
		log.Warn().Err(err).Msg("failed to close database")
	}

	log.Info().Msg("Starbridge stopped")
}

// startWithRetry attempts to start a listener/server with retry on bind errors.
// Uses a fixed 3-second interval between retries, giving the OS time to
// release sockets after a previous instance was force-killed.
// Returns nil on success, or the last error after all retries fail.
func startWithRetry(ctx context.Context, name string, startFn func(context.Context) error, maxRetries int) error {
	var lastErr error
	for i := 0; i <= maxRetries; i++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		lastErr = startFn(ctx)
		if lastErr == nil {
			return nil
		}
		if i < maxRetries {
			log.Warn().Err(lastErr).Str("component", name).Int("retry", i+1).Int("max", maxRetries).Msg("start failed, retrying in 3s...")
			time.Sleep(3 * time.Second)
		}
	}
	return lastErr
}
