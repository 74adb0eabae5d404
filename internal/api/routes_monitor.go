package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/starbridge-project/starbridge/internal/util"
)

// connectionView is the JSON shape of one live connection.
type connectionView struct {
	ConnID     uint64 `json:"conn_id"`
	RemoteAddr string `json:"remote_addr"`
	PlayerName string `json:"player_name"`
	State      string `json:"state"`
	Opened     string `json:"opened"`
	UptimeSec  int64  `json:"uptime_sec"`
}

// handleGetStatus returns a one-shot overview of the proxy.
func (s *Server) handleGetStatus(c *gin.Context) {
	stats := s.plugins.CacheStats()
	c.JSON(http.StatusOK, gin.H{
		"connections":    s.conns.Count(),
		"players":        s.conns.Players(),
		"plugins":        len(s.plugins.Order()),
		"cache_entries":  stats.Entries,
		"cache_hits":     stats.Hits,
		"cache_misses":   stats.Misses,
		"uptime_seconds": int64(time.Since(s.started).Seconds()),
		"listen_addr":    s.cfg.ListenAddr(),
		"upstream_addr":  s.cfg.UpstreamAddr(),
	})
}

// handleGetConnections returns every live proxied connection.
func (s *Server) handleGetConnections(c *gin.Context) {
	conns := s.conns.All()
	views := make([]connectionView, 0, len(conns))
	for _, conn := range conns {
		view := connectionView{
			ConnID:     conn.ID(),
			PlayerName: conn.PlayerName(),
			State:      conn.State().String(),
			Opened:     conn.Opened().Format(time.RFC3339),
			UptimeSec:  int64(time.Since(conn.Opened()).Seconds()),
		}
		if addr := conn.RemoteAddr(); addr != nil {
			view.RemoteAddr = addr.String()
		}
		views = append(views, view)
	}
	c.JSON(http.StatusOK, gin.H{
		"connections": views,
		"total":       len(views),
	})
}

// handleGetPlugins returns the registered plugins in activation order.
func (s *Server) handleGetPlugins(c *gin.Context) {
	infos := s.plugins.List()
	c.JSON(http.StatusOK, gin.H{
		"plugins": infos,
		"total":   len(infos),
	})
}

// handleGetCacheStats returns decode cache statistics.
func (s *Server) handleGetCacheStats(c *gin.Context) {
	c.JSON(http.StatusOK, s.plugins.CacheStats())
}

// handleGetChatLog returns recent chat lines, optionally for one player.
func (s *Server) handleGetChatLog(c *gin.Context) {
	countStr := c.DefaultQuery("count", "100")
	count, err := strconv.Atoi(countStr)
	if err != nil || count < 1 {
		count = 100
	}
	if count > 1000 {
		count = 1000
	}

	player := c.Query("player")
	var entries any
	if player != "" {
		entries, err = s.store.PlayerChat(player, count)
	} else {
		entries, err = s.store.RecentChat(count)
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"entries": entries,
	})
}

// handleGetMutes returns all active mutes.
func (s *Server) handleGetMutes(c *gin.Context) {
	mutes, err := s.store.Mutes()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"mutes": mutes,
		"total": len(mutes),
	})
}

// handleGetSystemInfo returns host system information.
func (s *Server) handleGetSystemInfo(c *gin.Context) {
	info := util.GetSystemInfo()

	cpuPercent, err := util.GetCPUUsage()
	if err != nil {
		cpuPercent = 0
	}
	memUsage, err := util.GetMemoryUsage()
	if err != nil {
		c.JSON(http.StatusOK, gin.H{"system": info, "cpu_percent": cpuPercent})
		return
	}

	resp := gin.H{
		"system":      info,
		"cpu_percent": cpuPercent,
		"memory":      memUsage,
	}
	if diskUsage, err := util.GetDiskUsage("."); err == nil {
		resp["disk"] = diskUsage
	}

	c.JSON(http.StatusOK, resp)
}
