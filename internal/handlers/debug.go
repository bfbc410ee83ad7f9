package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"chat-realtime/internal/realtime"
	"chat-realtime/internal/telemetry"
)

// RegisterDebugRoutes wires debug-only endpoints.
func RegisterDebugRoutes(router *gin.Engine, emitter *telemetry.AuditEmitter, core *realtime.Core, enabled bool) {
	if !enabled {
		return
	}

	router.GET("/debug/audit-test", func(c *gin.Context) {
		if emitter == nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "audit emitter not configured"})
			return
		}
		emitter.Emit(c.Request.Context(), "INFO", "audit test", requestIDFromContext(c), userIDFromContext(c))
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	router.GET("/debug/realtime", func(c *gin.Context) {
		if core == nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "realtime core not configured"})
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"online_users":       core.Registry.OnlineCount(),
			"pending_delivery":   core.Scheduler.Pending(),
			"groups_with_typing": core.Typing.Groups(),
		})
	})
}
