package api

import (
	"context"
	"crypto/tls"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/starbridge-project/starbridge/internal/config"
	"github.com/starbridge-project/starbridge/internal/db"
	"github.com/starbridge-project/starbridge/internal/events"
	"github.com/starbridge-project/starbridge/internal/plugin"
	"github.com/starbridge-project/starbridge/internal/proxy"
)

// Server is the REST API server for Starbridge.
type Server struct {
	cfg      *config.Config
	eventBus *events.EventBus
	conns    *proxy.Registry
	plugins  *plugin.Registry
	store    *db.Store

	started time.Time

	httpServer *http.Server
	router     *gin.Engine
}

// NewServer creates a new API server.
func NewServer(cfg *config.Config, eventBus *events.EventBus, conns *proxy.Registry, plugins *plugin.Registry, store *db.Store) *Server {
	// Set Gin mode based on log level
	if cfg.GetApplicationData().Logging.Level == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	return &Server{
		cfg:      cfg,
		eventBus: eventBus,
		conns:    conns,
		plugins:  plugins,
		store:    store,
		started:  time.Now(),
	}
}

// Start initializes and starts the API server.
func (s *Server) Start(ctx context.Context) error {
	s.router = s.buildRouter()

	security := s.cfg.GetApplicationData().Security
	addr := fmt.Sprintf(":%d", security.APIPort)
	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	// TLS configuration
	if security.TLSEnabled {
		cert, err := tls.LoadX509KeyPair(security.TLSCertFile, security.TLSKeyFile)
		if err != nil {
			return fmt.Errorf("failed to load API TLS certificate: %w", err)
		}
		s.httpServer.TLSConfig = &tls.Config{
			MinVersion:   tls.VersionTLS12,
			Certificates: []tls.Certificate{cert},
			CipherSuites: []uint16{
				tls.TLS_ECDHE_RSA_WITH_AES_256_GCM_SHA384,
				tls.TLS_ECDHE_RSA_WITH_AES_128_GCM_SHA256,
				tls.TLS_ECDHE_ECDSA_WITH_AES_256_GCM_SHA384,
				tls.TLS_ECDHE_ECDSA_WITH_AES_128_GCM_SHA256,
			},
		}
	}

	// Create listener with SO_REUSEADDR for immediate rebinding after restart
	lc := proxy.ReuseAddrListenConfig()
	ln, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("API server error: %w", err)
	}

	log.Info().Str("addr", addr).Msg("REST API server starting")

	// Graceful shutdown
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		s.httpServer.Shutdown(shutdownCtx)
	}()

	if security.TLSEnabled {
		tlsListener := tls.NewListener(ln, s.httpServer.TLSConfig)
		err = s.httpServer.Serve(tlsListener)
	} else {
		err = s.httpServer.Serve(ln)
	}

	if err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("API server error: %w", err)
	}

	return nil
}

// buildRouter creates the Gin router with all routes and middleware.
func (s *Server) buildRouter() *gin.Engine {
	router := gin.New()

	security := s.cfg.GetApplicationData().Security

	// Global middleware
	router.Use(gin.Recovery())
	router.Use(RequestLogger())
	router.Use(SecurityHeaders())

	// CORS
	allowedOrigins := security.AllowedOrigins
	if len(allowedOrigins) == 0 {
		allowedOrigins = []string{"*"}
	}
	router.Use(cors.New(cors.Config{
		AllowOrigins:     allowedOrigins,
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: false, // Must be false when AllowOrigins is "*"
		MaxAge:           12 * time.Hour,
	}))

	// Rate limiting
	rateLimiter := NewRateLimiter(security.RateLimitRPS)
	router.Use(rateLimiter.Middleware())

	auth := NewAuthMiddleware(s.cfg)

	// ---- Public endpoints (no auth required) ----
	public := router.Group("/api/public")
	{
		public.GET("/ping", s.handlePing)
		public.GET("/get_version", s.handleGetVersion)
	}

	// ---- Protected endpoints ----
	protected := router.Group("/api")
	protected.Use(auth.RequireAuth())

	monitor := protected.Group("/monitor")
	{
		monitor.GET("/get_status", s.handleGetStatus)
		monitor.GET("/get_connections", s.handleGetConnections)
		monitor.GET("/get_plugins", s.handleGetPlugins)
		monitor.GET("/get_cache_stats", s.handleGetCacheStats)
		monitor.GET("/get_chat_log", s.handleGetChatLog)
		monitor.GET("/get_mutes", s.handleGetMutes)
		monitor.GET("/get_system_info", s.handleGetSystemInfo)
	}

	control := protected.Group("/control")
	{
		control.POST("/broadcast", s.handleBroadcast)
		control.POST("/kick/:conn_id", s.handleKick)
		control.POST("/mute", s.handleMute)
		control.POST("/unmute/:player", s.handleUnmute)
	}

	configure := protected.Group("/configure")
	{
		configure.GET("/get_config", s.handleGetConfig)
		configure.POST("/set_proxy_data", s.handleSetProxyData)
		configure.POST("/set_app_data", s.handleSetAppData)
	}

	router.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": "endpoint not found"})
	})

	return router
}

// Stop gracefully stops the API server.
func (s *Server) Stop() error {
	if s.httpServer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return s.httpServer.Shutdown(ctx)
	}
	return nil
}
