package healthcheck

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// GinHandler serves the aggregated health report. Healthy and degraded
// states answer 200 so a flaky MQTT broker does not take the service out
// of rotation; only an unhealthy backing store answers 503.
func GinHandler(engine *Engine) gin.HandlerFunc {
	return func(c *gin.Context) {
		result := engine.CheckAll(c.Request.Context())

		status := http.StatusOK
		if result.OverallStatus == StatusUnhealthy {
			status = http.StatusServiceUnavailable
		}
		c.JSON(status, result)
	}
}
