package handler

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/habitsprout/internal/db"
	"github.com/habitsprout/internal/progress"
	"github.com/habitsprout/internal/service"
)

const (
	userIDContextKey = "__user_id"
	sessionUserIDKey = "user_id"
)

type signupPayload struct {
	Email    string `json:"email"`
	Username string `json:"username"`
	Password string `json:"password"`
}

// Signup 注册新用户
func (a *API) Signup(c *gin.Context) {
	var payload signupPayload
	if !bindJSON(c, &payload, "Invalid request body") {
		return
	}

	user, err := a.users.Create(c.Request.Context(), service.UserInput{
		Username: payload.Username,
		Email:    payload.Email,
		Password: payload.Password,
	})
	if err != nil {
		a.handleAuthError(c, err)
		return
	}

	a.log.Info("user registered", "user_id", user.ID.String())
	c.JSON(http.StatusOK, userToPayload(*user))
}

// LoginAccessToken 校验表单中的用户名与密码，签发访问令牌并写入会话
func (a *API) LoginAccessToken(c *gin.Context) {
	username := c.PostForm("username")
	password := c.PostForm("password")

	user, err := a.users.Authenticate(c.Request.Context(), username, password)
	if err != nil {
		a.handleAuthError(c, err)
		return
	}

	token, expiresAt, err := a.tokens.Issue(user.ID)
	if err != nil {
		a.log.Error("issue access token failed", "error", err)
		respondError(c, http.StatusInternalServerError, "Login failed")
		return
	}

	session := sessions.Default(c)
	session.Set(sessionUserIDKey, user.ID.String())
	if err := session.Save(); err != nil {
		a.log.Error("save session failed", "error", err)
		respondError(c, http.StatusInternalServerError, "Failed to save session")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"access_token": token,
		"token_type":   "bearer",
		"expires_at":   expiresAt.UTC().Format(http.TimeFormat),
	})
}

// Logout 清除会话
func (a *API) Logout(c *gin.Context) {
	session := sessions.Default(c)
	session.Clear()
	if err := session.Save(); err != nil {
		a.log.Warn("clear session failed", "error", err)
	}
	c.JSON(http.StatusOK, gin.H{"status": "success"})
}

// Me 返回当前登录用户
func (a *API) Me(c *gin.Context) {
	user, err := a.users.Get(c.Request.Context(), currentUserID(c))
	if err != nil {
		a.handleAuthError(c, err)
		return
	}
	c.JSON(http.StatusOK, userToPayload(*user))
}

// AuthRequired 校验 Bearer 令牌或会话，并将用户 ID 写入上下文
func (a *API) AuthRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := a.resolveUserID(c)
		if !ok {
			c.Header("WWW-Authenticate", "Bearer")
			respondError(c, http.StatusUnauthorized, "Could not validate credentials")
			c.Abort()
			return
		}
		c.Set(userIDContextKey, userID)
		c.Next()
	}
}

func (a *API) resolveUserID(c *gin.Context) (uuid.UUID, bool) {
	header := strings.TrimSpace(c.GetHeader("Authorization"))
	if header != "" {
		scheme, token, found := strings.Cut(header, " ")
		if !found || !strings.EqualFold(scheme, "Bearer") {
			return uuid.Nil, false
		}
		userID, err := a.tokens.Parse(strings.TrimSpace(token))
		if err != nil {
			return uuid.Nil, false
		}
		return userID, true
	}

	raw, ok := sessions.Default(c).Get(sessionUserIDKey).(string)
	if !ok {
		return uuid.Nil, false
	}
	userID, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, false
	}
	return userID, true
}

func currentUserID(c *gin.Context) uuid.UUID {
	if value, ok := c.Get(userIDContextKey); ok {
		if id, ok := value.(uuid.UUID); ok {
			return id
		}
	}
	return uuid.Nil
}

func userToPayload(user db.User) gin.H {
	return gin.H{
		"id":         user.ID.String(),
		"username":   user.Username,
		"email":      user.Email,
		"level":      user.Level,
		"xp":         user.XP,
		"xp_needed":  progress.XPNeeded(user.Level),
		"created_at": user.CreatedAt,
	}
}

func (a *API) handleAuthError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrInvalidCredentials):
		respondError(c, http.StatusBadRequest, "Incorrect username or password")
	case errors.Is(err, service.ErrUserExists):
		respondError(c, http.StatusBadRequest, "The user with this username or email already exists")
	case errors.Is(err, service.ErrUserInvalid):
		respondError(c, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, service.ErrUserNotFound):
		respondError(c, http.StatusNotFound, "User not found")
	default:
		a.log.Error("auth request failed", "error", err)
		respondError(c, http.StatusInternalServerError, "Internal server error")
	}
}
