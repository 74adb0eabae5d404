package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/starbridge-project/starbridge/internal/util"
)

// handlePing returns a simple health check response.
func (s *Server) handlePing(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"service": "starbridge",
		"version": util.Version,
	})
}

// handleGetVersion returns the Starbridge version.
func (s *Server) handleGetVersion(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"version": util.Version,
		"name":    "Starbridge",
	})
}
