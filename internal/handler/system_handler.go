package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

const healthPingTimeout = 2 * time.Second

// HealthCheck 报告数据库连通性、驱动与结算使用的时区，供部署平台探活
func (a *API) HealthCheck(c *gin.Context) {
	payload := gin.H{
		"driver":   a.db.Dialector.Name(),
		"timezone": a.loc.String(),
		"time":     a.now().In(a.loc).Format(time.RFC3339),
	}

	sqlDB, err := a.db.DB()
	if err != nil {
		a.log.Error("database handle unavailable", "error", err)
		payload["status"] = "error"
		payload["database"] = "unavailable"
		c.JSON(http.StatusInternalServerError, payload)
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), healthPingTimeout)
	defer cancel()

	if err := sqlDB.PingContext(ctx); err != nil {
		a.log.Warn("database ping failed", "driver", payload["driver"], "error", err)
		payload["status"] = "error"
		payload["database"] = "down"
		c.JSON(http.StatusServiceUnavailable, payload)
		return
	}

	stats := sqlDB.Stats()
	payload["status"] = "ok"
	payload["database"] = "up"
	payload["open_connections"] = stats.OpenConnections
	c.JSON(http.StatusOK, payload)
}
