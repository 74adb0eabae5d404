package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

// handleBroadcast sends a chat message to every connected player.
func (s *Server) handleBroadcast(c *gin.Context) {
	var req struct {
		Message string `json:"message" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "message is required"})
		return
	}

	s.conns.Broadcast(req.Message)
	log.Info().Str("message", req.Message).Msg("broadcast sent via api")

	c.JSON(http.StatusOK, gin.H{
		"status":     "sent",
		"recipients": s.conns.Count(),
	})
}

// handleKick gracefully disconnects one connection.
func (s *Server) handleKick(c *gin.Context) {
	idStr := c.Param("conn_id")
	id, err := strconv.ParseUint(idStr, 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid connection id"})
		return
	}

	conn := s.conns.Get(id)
	if conn == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "connection not found"})
		return
	}

	var req struct {
		Reason string `json:"reason"`
	}
	c.ShouldBindJSON(&req)
	if req.Reason == "" {
		req.Reason = "You have been disconnected by an administrator."
	}

	conn.GracefulClose(req.Reason)
	log.Info().Uint64("conn_id", id).Str("player", conn.PlayerName()).Msg("connection kicked via api")

	c.JSON(http.StatusOK, gin.H{
		"status":  "kicked",
		"conn_id": id,
	})
}

// handleMute mutes a player by name.
func (s *Server) handleMute(c *gin.Context) {
	var req struct {
		Player string `json:"player" binding:"required"`
		Reason string `json:"reason"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "player is required"})
		return
	}

	if err := s.store.Mute(req.Player, "api", req.Reason); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"status": "muted",
		"player": req.Player,
	})
}

// handleUnmute lifts a player's mute.
func (s *Server) handleUnmute(c *gin.Context) {
	player := c.Param("player")
	if err := s.store.Unmute(player); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"status": "unmuted",
		"player": player,
	})
}
