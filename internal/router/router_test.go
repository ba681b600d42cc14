package router

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/habitsprout/internal/config"
	"github.com/habitsprout/internal/db"
	"github.com/habitsprout/internal/handler"
	"github.com/habitsprout/internal/logger"
)

type localClient struct {
	handler http.Handler
	jar     http.CookieJar
}

func newLocalClient(handler http.Handler, withJar bool) *localClient {
	var jar http.CookieJar
	if withJar {
		if j, err := cookiejar.New(nil); err == nil {
			jar = j
		}
	}
	return &localClient{handler: handler, jar: jar}
}

func (c *localClient) Do(req *http.Request) *http.Response {
	if c.jar != nil {
		for _, cookie := range c.jar.Cookies(req.URL) {
			req.AddCookie(cookie)
		}
	}
	w := httptest.NewRecorder()
	c.handler.ServeHTTP(w, req)
	resp := w.Result()
	if c.jar != nil {
		c.jar.SetCookies(req.URL, resp.Cookies())
	}
	return resp
}

const baseURL = "http://habits.test"

func setupTestRouter(t *testing.T, now func() time.Time) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	cfg := config.AppConfig{
		APIPrefix:      "/api/v1",
		DatabaseDriver: config.DriverSQLite,
		DatabasePath:   fmt.Sprintf("file:router-%d?mode=memory&cache=shared", time.Now().UnixNano()),
		SecretKey:      "router-test-secret",
		AccessTokenTTL: time.Hour,
		SessionSecret:  "router-test-session",
		CORSOrigins:    []string{"http://localhost:5173"},
		TimeZone:       "UTC",
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("invalid config: %v", err)
	}

	gdb, err := db.Open(cfg)
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := gdb.DB(); err == nil {
			sqlDB.Close()
		}
	})

	api := handler.NewAPI(gdb, cfg, logger.Nop()).WithClock(now)
	return SetupRouter(api, cfg, logger.Nop())
}

func mustRequest(t *testing.T, client *localClient, method, path string, body io.Reader, headers map[string]string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, baseURL+path, body)
	if err != nil {
		t.Fatalf("failed to build request: %v", err)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	return client.Do(req)
}

func decodeJSON(t *testing.T, resp *http.Response, dst interface{}) {
	t.Helper()
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(dst); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
}

func TestPing(t *testing.T) {
	r := setupTestRouter(t, time.Now)
	resp := mustRequest(t, newLocalClient(r, false), http.MethodGet, "/ping", nil, nil)

	var body map[string]string
	decodeJSON(t, resp, &body)
	if resp.StatusCode != http.StatusOK || body["message"] != "pong" {
		t.Fatalf("unexpected ping response: %d %v", resp.StatusCode, body)
	}
}

func TestCORSPreflight(t *testing.T) {
	r := setupTestRouter(t, time.Now)
	resp := mustRequest(t, newLocalClient(r, false), http.MethodOptions, "/api/v1/habits/", nil, map[string]string{
		"Origin":                         "http://localhost:5173",
		"Access-Control-Request-Method":  http.MethodPost,
		"Access-Control-Request-Headers": "Authorization",
	})
	defer resp.Body.Close()

	if got := resp.Header.Get("Access-Control-Allow-Origin"); got != "http://localhost:5173" {
		t.Fatalf("unexpected allow origin %q", got)
	}
	if resp.Header.Get("Access-Control-Allow-Credentials") != "true" {
		t.Fatal("expected credentials to be allowed")
	}
}

// TestHabitFlow 走通注册、登录、建习惯、打卡与重复打卡的完整流程
func TestHabitFlow(t *testing.T) {
	clock := time.Date(2024, 5, 15, 10, 0, 0, 0, time.UTC)
	r := setupTestRouter(t, func() time.Time { return clock })
	client := newLocalClient(r, true)
	jsonHeaders := map[string]string{"Content-Type": "application/json"}

	resp := mustRequest(t, client, http.MethodPost, "/api/v1/users/",
		strings.NewReader(`{"username":"sprout","email":"sprout@example.com","password":"password123"}`), jsonHeaders)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("signup failed: %d", resp.StatusCode)
	}
	resp.Body.Close()

	form := url.Values{"username": {"sprout"}, "password": {"password123"}}
	resp = mustRequest(t, client, http.MethodPost, "/api/v1/login/access-token",
		strings.NewReader(form.Encode()), map[string]string{"Content-Type": "application/x-www-form-urlencoded"})
	var token struct {
		AccessToken string `json:"access_token"`
	}
	decodeJSON(t, resp, &token)
	if token.AccessToken == "" {
		t.Fatal("expected access token")
	}

	// 会话 Cookie 已写入 jar，后续请求无需 Bearer 头
	resp = mustRequest(t, client, http.MethodPost, "/api/v1/habits/",
		strings.NewReader(`{"title":"Journal","frequency":"WEEKLY","color":"#22c55e"}`), jsonHeaders)
	var habit struct {
		ID string `json:"id"`
	}
	decodeJSON(t, resp, &habit)
	if resp.StatusCode != http.StatusOK || habit.ID == "" {
		t.Fatalf("create habit failed: %d", resp.StatusCode)
	}

	resp = mustRequest(t, client, http.MethodPost, "/api/v1/habits/"+habit.ID+"/log", nil, nil)
	var completion struct {
		XPGained int `json:"xp_gained"`
		XP       int `json:"xp"`
	}
	decodeJSON(t, resp, &completion)
	if resp.StatusCode != http.StatusOK || completion.XPGained != 10 || completion.XP != 10 {
		t.Fatalf("unexpected completion: %d %+v", resp.StatusCode, completion)
	}

	clock = clock.Add(24 * time.Hour)
	resp = mustRequest(t, client, http.MethodPost, "/api/v1/habits/"+habit.ID+"/log", nil, nil)
	var dup struct {
		Detail string `json:"detail"`
	}
	decodeJSON(t, resp, &dup)
	if resp.StatusCode != http.StatusBadRequest || dup.Detail != "Habit already completed this week" {
		t.Fatalf("unexpected duplicate response: %d %+v", resp.StatusCode, dup)
	}

	resp = mustRequest(t, client, http.MethodGet, "/api/v1/habits/", nil,
		map[string]string{"Authorization": "Bearer " + token.AccessToken})
	var habits []struct {
		CurrentStreak    int  `json:"current_streak"`
		IsCompletedToday bool `json:"is_completed_today"`
	}
	decodeJSON(t, resp, &habits)
	// 每周习惯：本周已打卡即视为完成，连续天数按自然日计算并允许一天宽限
	if len(habits) != 1 || !habits[0].IsCompletedToday || habits[0].CurrentStreak != 1 {
		t.Fatalf("unexpected habit list: %+v", habits)
	}

	resp = mustRequest(t, client, http.MethodPost, "/api/v1/logout", nil, nil)
	resp.Body.Close()
	resp = mustRequest(t, client, http.MethodGet, "/api/v1/users/me", nil, nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 after logout, got %d", resp.StatusCode)
	}
}
