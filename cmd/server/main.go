package main

import (
	"log"

	"github.com/gin-gonic/gin"
	"github.com/habitsprout/internal/config"
	"github.com/habitsprout/internal/db"
	"github.com/habitsprout/internal/handler"
	"github.com/habitsprout/internal/logger"
	"github.com/habitsprout/internal/router"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	appLog, err := logger.New(cfg.LogMode)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer appLog.Sync()

	gin.SetMode(cfg.GinMode)

	// 初始化数据库
	gdb, err := db.Open(cfg)
	if err != nil {
		appLog.Fatal("failed to initialize database", "driver", cfg.DatabaseDriver, "error", err)
	}

	if cfg.SuperRootUserName != "" && cfg.SuperRootPassword != "" {
		if err := db.EnsureUser(gdb, cfg.SuperRootUserName, cfg.SuperRootUserEmail, cfg.SuperRootPassword); err != nil {
			appLog.Fatal("failed to ensure root user", "error", err)
		}
	}

	api := handler.NewAPI(gdb, cfg, appLog)

	// 设置并运行 Gin 服务器
	r := router.SetupRouter(api, cfg, appLog)
	appLog.Info("server starting", "addr", cfg.ListenAddr, "driver", cfg.DatabaseDriver, "timezone", cfg.TimeZone)
	if err := r.Run(cfg.ListenAddr); err != nil {
		appLog.Fatal("failed to run server", "error", err)
	}
}
