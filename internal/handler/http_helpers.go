package handler

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// respondError 与前端约定的错误格式 {"detail": "..."}
func respondError(c *gin.Context, status int, message string) {
	c.JSON(status, gin.H{"detail": message})
}

func bindJSON(c *gin.Context, dst interface{}, message string) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		respondError(c, http.StatusUnprocessableEntity, message)
		return false
	}
	return true
}

func parseUUIDParam(c *gin.Context, key string) (uuid.UUID, error) {
	raw := strings.TrimSpace(c.Param(key))
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid %s", key)
	}
	return id, nil
}

// parseIntQuery 读取非负整数查询参数，缺失或非法时返回 fallback
func parseIntQuery(c *gin.Context, key string, fallback int) int {
	raw := strings.TrimSpace(c.Query(key))
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil || value < 0 {
		return fallback
	}
	return value
}
