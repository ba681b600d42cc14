package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// AppConfig 汇总运行服务所需的基础配置，进程启动时构造一次并向下传递。
type AppConfig struct {
	ListenAddr         string
	Port               string
	APIPrefix          string
	DatabaseDriver     string
	DatabasePath       string
	DatabaseURL        string
	SecretKey          string
	AccessTokenTTL     time.Duration
	SessionSecret      string
	GinMode            string
	LogMode            string
	CORSOrigins        []string
	TimeZone           string
	Location           *time.Location
	SuperRootUserName  string
	SuperRootPassword  string
	SuperRootUserEmail string
}

// postgresParts 在未提供 DATABASE_URL 时用于拼接连接串
type postgresParts struct {
	Server   string
	User     string
	Password string
	DB       string
}

var defaultCORSOrigins = []string{"http://localhost:3000", "http://localhost:5173", "http://127.0.0.1:5173"}

// Load 从环境变量读取应用配置，并为缺失项提供默认值。
// 若工作目录存在 .env 文件会先行加载，已存在的环境变量不会被覆盖。
func Load() (AppConfig, error) {
	_ = godotenv.Load()

	port := env("PORT", "8000")
	listenAddr := env("LISTEN_ADDR", fmt.Sprintf(":%s", port))

	ttlMinutes, err := strconv.Atoi(env("ACCESS_TOKEN_EXPIRE_MINUTES", strconv.Itoa(60*24*7)))
	if err != nil {
		return AppConfig{}, fmt.Errorf("parse ACCESS_TOKEN_EXPIRE_MINUTES: %w", err)
	}

	origins, err := parseOrigins(os.Getenv("BACKEND_CORS_ORIGINS"))
	if err != nil {
		return AppConfig{}, err
	}

	driver := strings.ToLower(env("DATABASE_DRIVER", DriverSQLite))
	databaseURL := strings.TrimSpace(os.Getenv("DATABASE_URL"))
	if databaseURL == "" && driver == DriverPostgres {
		databaseURL = assemblePostgresDSN(postgresParts{
			Server:   env("POSTGRES_SERVER", "localhost"),
			User:     env("POSTGRES_USER", "postgres"),
			Password: env("POSTGRES_PASSWORD", "postgres"),
			DB:       env("POSTGRES_DB", "habit_tracker"),
		})
	}

	cfg := AppConfig{
		ListenAddr:         listenAddr,
		Port:               port,
		APIPrefix:          env("API_V1_STR", "/api/v1"),
		DatabaseDriver:     driver,
		DatabasePath:       env("DATABASE_PATH", "habits.db"),
		DatabaseURL:        databaseURL,
		SecretKey:          env("SECRET_KEY", "habitsprout-dev-secret"),
		AccessTokenTTL:     time.Duration(ttlMinutes) * time.Minute,
		SessionSecret:      env("SESSION_SECRET", "habitsprout-dev-session"),
		GinMode:            env("GIN_MODE", "release"),
		LogMode:            env("LOG_MODE", "production"),
		CORSOrigins:        origins,
		TimeZone:           env("TIMEZONE", "UTC"),
		SuperRootUserName:  strings.TrimSpace(os.Getenv("SUPER_ROOT_USER_NAME")),
		SuperRootPassword:  strings.TrimSpace(os.Getenv("SUPER_ROOT_PASSWORD")),
		SuperRootUserEmail: strings.TrimSpace(os.Getenv("SUPER_ROOT_USER_EMAIL")),
	}

	if err := cfg.Validate(); err != nil {
		return AppConfig{}, err
	}
	return cfg, nil
}

// Validate 校验配置并解析时区
func (c *AppConfig) Validate() error {
	var errs []error

	switch c.DatabaseDriver {
	case DriverSQLite:
		if strings.TrimSpace(c.DatabasePath) == "" {
			errs = append(errs, errors.New("DATABASE_PATH is required for sqlite"))
		}
	case DriverPostgres:
		if strings.TrimSpace(c.DatabaseURL) == "" {
			errs = append(errs, errors.New("DATABASE_URL is required for postgres"))
		}
	default:
		errs = append(errs, fmt.Errorf("unsupported DATABASE_DRIVER %q", c.DatabaseDriver))
	}

	if strings.TrimSpace(c.SecretKey) == "" {
		errs = append(errs, errors.New("SECRET_KEY is required"))
	}
	if c.AccessTokenTTL <= 0 {
		errs = append(errs, errors.New("ACCESS_TOKEN_EXPIRE_MINUTES must be positive"))
	}

	loc, err := time.LoadLocation(c.TimeZone)
	if err != nil {
		errs = append(errs, fmt.Errorf("load TIMEZONE %q: %w", c.TimeZone, err))
	} else {
		c.Location = loc
	}

	return errors.Join(errs...)
}

// parseOrigins 支持逗号分隔或 JSON 数组两种写法
func parseOrigins(raw string) ([]string, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return append([]string(nil), defaultCORSOrigins...), nil
	}

	if strings.HasPrefix(trimmed, "[") {
		var origins []string
		if err := json.Unmarshal([]byte(trimmed), &origins); err != nil {
			return nil, fmt.Errorf("parse BACKEND_CORS_ORIGINS: %w", err)
		}
		return origins, nil
	}

	parts := strings.Split(trimmed, ",")
	origins := make([]string, 0, len(parts))
	for _, part := range parts {
		if origin := strings.TrimSpace(part); origin != "" {
			origins = append(origins, origin)
		}
	}
	return origins, nil
}

func assemblePostgresDSN(p postgresParts) string {
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(p.User, p.Password),
		Host:   p.Server,
		Path:   "/" + p.DB,
	}
	return u.String()
}

func env(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}
