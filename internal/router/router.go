package router

import (
	"net/http"
	"strings"

	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/habitsprout/internal/config"
	"github.com/habitsprout/internal/handler"
	"github.com/habitsprout/internal/logger"
)

// SetupRouter 配置 Gin 引擎和路由
func SetupRouter(api *handler.API, cfg config.AppConfig, log *logger.Logger) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(handler.RequestLogger(log))
	r.Use(handler.CORS(cfg.CORSOrigins))

	// 配置会话中间件
	store := cookie.NewStore([]byte(cfg.SessionSecret))
	store.Options(sessions.Options{
		Path:     "/",
		MaxAge:   int(cfg.AccessTokenTTL.Seconds()),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	r.Use(sessions.Sessions("habitsprout_session", store))

	r.GET("/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"message": "pong",
		})
	})
	r.GET("/healthz", api.HealthCheck)

	prefix := strings.TrimRight(cfg.APIPrefix, "/")
	if prefix == "" {
		prefix = "/api/v1"
	}

	v1 := r.Group(prefix)
	{
		v1.POST("/users/", api.Signup)
		v1.POST("/login/access-token", api.LoginAccessToken)
		v1.POST("/logout", api.Logout)

		// 需要认证的路由
		auth := v1.Group("")
		auth.Use(api.AuthRequired())
		{
			auth.GET("/users/me", api.Me)

			auth.GET("/habits/", api.ListHabits)
			auth.POST("/habits/", api.CreateHabit)
			auth.GET("/habits/heatmap", api.GetHabitHeatmap)
			auth.PUT("/habits/:id", api.UpdateHabit)
			auth.DELETE("/habits/:id", api.DeleteHabit)
			auth.POST("/habits/:id/log", api.CompleteHabit)
		}
	}

	return r
}
