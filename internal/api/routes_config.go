package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/starbridge-project/starbridge/internal/config"
	"github.com/starbridge-project/starbridge/internal/events"
)

// handleGetConfig returns the full current configuration.
func (s *Server) handleGetConfig(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"proxy":            s.cfg.GetProxy(),
		"application_data": s.cfg.GetApplicationData(),
	})
}

// handleSetProxyData updates proxy configuration. Address and cache
// changes take effect on restart; the running listener is not rebound.
func (s *Server) handleSetProxyData(c *gin.Context) {
	var proxyData config.ProxyData
	if err := c.ShouldBindJSON(&proxyData); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	s.cfg.SetProxy(proxyData)

	if err := s.cfg.Save(); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to save config"})
		return
	}

	s.eventBus.Emit(c.Request.Context(), events.Event{
		Type:   events.EventConfigChanged,
		Source: "api",
		Payload: events.ConfigChangedPayload{
			Section: "proxy",
		},
	})

	log.Info().Msg("proxy configuration updated via api")
	c.JSON(http.StatusOK, gin.H{"status": "updated"})
}

// handleSetAppData updates application configuration.
func (s *Server) handleSetAppData(c *gin.Context) {
	var appData config.ApplicationData
	if err := c.ShouldBindJSON(&appData); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	s.cfg.SetApplicationData(appData)

	if err := s.cfg.Save(); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to save config"})
		return
	}

	s.eventBus.Emit(c.Request.Context(), events.Event{
		Type:   events.EventConfigChanged,
		Source: "api",
		Payload: events.ConfigChangedPayload{
			Section: "application_data",
		},
	})

	log.Info().Msg("application configuration updated via api")
	c.JSON(http.StatusOK, gin.H{"status": "updated"})
}
