package handler

import (
	"time"

	"github.com/habitsprout/internal/config"
	"github.com/habitsprout/internal/logger"
	"github.com/habitsprout/internal/service"
	"gorm.io/gorm"
)

// API bundles shared dependencies for HTTP handlers.
type API struct {
	db          *gorm.DB
	log         *logger.Logger
	users       *service.UserService
	tokens      *service.TokenService
	habits      *service.HabitService
	completions *service.CompletionService
	activity    *service.ActivityService
	loc         *time.Location
	now         func() time.Time
}

// NewAPI constructs a handler set with shared services.
func NewAPI(gdb *gorm.DB, cfg config.AppConfig, log *logger.Logger) *API {
	loc := cfg.Location
	if loc == nil {
		loc = time.UTC
	}

	return &API{
		db:          gdb,
		log:         log.With("component", "http"),
		users:       service.NewUserService(gdb),
		tokens:      service.NewTokenService(cfg.SecretKey, cfg.AccessTokenTTL),
		habits:      service.NewHabitService(gdb, log, loc),
		completions: service.NewCompletionService(gdb, log, loc),
		activity:    service.NewActivityService(gdb),
		loc:         loc,
		now:         time.Now,
	}
}

// WithClock replaces the time source used for "now" in handlers.
func (a *API) WithClock(now func() time.Time) *API {
	if now != nil {
		a.now = now
		a.tokens.WithClock(now)
	}
	return a
}

// DB exposes the underlying gorm instance.
func (a *API) DB() *gorm.DB {
	return a.db
}
