package handler

import (
	"cmp"
	"errors"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/habitsprout/internal/db"
	"github.com/habitsprout/internal/progress"
	"github.com/habitsprout/internal/service"
)

const (
	defaultHeatmapDays = 30
	maxHeatmapDays     = 366
)

type heatmapHabit struct {
	ID    string `json:"id"`
	Title string `json:"title"`
	Color string `json:"color"`
}

type heatmapDay struct {
	Date   string         `json:"date"`
	Count  int            `json:"count"`
	Habits []heatmapHabit `json:"habits"`
}

type heatmapRange struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

type heatmapSummary struct {
	TotalLogs  int `json:"total_logs"`
	ActiveDays int `json:"active_days"`
	HabitCount int `json:"habit_count"`
}

type habitHeatmapPayload struct {
	Range       heatmapRange   `json:"range"`
	Days        []heatmapDay   `json:"days"`
	Habits      []heatmapHabit `json:"habits"`
	Summary     heatmapSummary `json:"summary"`
	GeneratedAt string         `json:"generated_at"`
}

type habitPayload struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Frequency   string `json:"frequency"`
	TimeOfDay   string `json:"time_of_day"`
	Color       string `json:"color"`
	Icon        string `json:"icon"`
	IsArchived  bool   `json:"is_archived"`
}

// habitUpdatePayload 只包含客户端实际提交的字段
type habitUpdatePayload struct {
	Title       *string `json:"title"`
	Description *string `json:"description"`
	Frequency   *string `json:"frequency"`
	TimeOfDay   *string `json:"time_of_day"`
	Color       *string `json:"color"`
	Icon        *string `json:"icon"`
	IsArchived  *bool   `json:"is_archived"`
}

// ListHabits 返回当前用户的习惯，附带连续天数与本周期完成状态
func (a *API) ListHabits(c *gin.Context) {
	skip := parseIntQuery(c, "skip", 0)
	limit := parseIntQuery(c, "limit", 100)

	views, err := a.habits.ListWithProgress(c.Request.Context(), currentUserID(c), skip, limit, a.now())
	if err != nil {
		a.handleHabitError(c, err)
		return
	}

	items := make([]gin.H, 0, len(views))
	for _, view := range views {
		item := habitToPayload(view.Habit)
		item["current_streak"] = view.Progress.CurrentStreak
		item["is_completed_today"] = view.Progress.IsCompletedToday
		item["description_html"] = view.DescriptionHTML
		items = append(items, item)
	}

	c.JSON(http.StatusOK, items)
}

// CreateHabit 创建习惯
func (a *API) CreateHabit(c *gin.Context) {
	var payload habitPayload
	if !bindJSON(c, &payload, "Invalid request body") {
		return
	}

	habit, err := a.habits.Create(c.Request.Context(), currentUserID(c), payload.toInput())
	if err != nil {
		a.handleHabitError(c, err)
		return
	}

	c.JSON(http.StatusOK, newHabitPayload(*habit))
}

// UpdateHabit 更新习惯
func (a *API) UpdateHabit(c *gin.Context) {
	id, err := parseUUIDParam(c, "id")
	if err != nil {
		respondError(c, http.StatusNotFound, "Habit not found")
		return
	}

	var payload habitUpdatePayload
	if !bindJSON(c, &payload, "Invalid request body") {
		return
	}

	habit, err := a.habits.Update(c.Request.Context(), currentUserID(c), id, payload.toPatch())
	if err != nil {
		a.handleHabitError(c, err)
		return
	}

	c.JSON(http.StatusOK, newHabitPayload(*habit))
}

// DeleteHabit 删除习惯
func (a *API) DeleteHabit(c *gin.Context) {
	id, err := parseUUIDParam(c, "id")
	if err != nil {
		respondError(c, http.StatusNotFound, "Habit not found")
		return
	}

	if err := a.habits.Delete(c.Request.Context(), currentUserID(c), id); err != nil {
		a.handleHabitError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "success"})
}

// CompleteHabit 为习惯打卡并结算经验
func (a *API) CompleteHabit(c *gin.Context) {
	id, err := parseUUIDParam(c, "id")
	if err != nil {
		respondError(c, http.StatusNotFound, "Habit not found")
		return
	}

	ctx := c.Request.Context()
	habit, err := a.habits.GetOwned(ctx, currentUserID(c), id)
	if err != nil {
		a.handleHabitError(c, err)
		return
	}

	result, err := a.completions.Record(ctx, *habit, a.now())
	if err != nil {
		a.handleHabitError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":     "success",
		"xp_gained":  result.XPGained,
		"new_level":  result.NewLevel,
		"xp":         result.XP,
		"leveled_up": result.LeveledUp,
	})
}

// GetHabitHeatmap 返回最近若干天所有习惯的打卡热力图
func (a *API) GetHabitHeatmap(c *gin.Context) {
	days := parseIntQuery(c, "days", defaultHeatmapDays)
	if days <= 0 {
		days = defaultHeatmapDays
	}
	if days > maxHeatmapDays {
		days = maxHeatmapDays
	}

	now := a.now().In(a.loc)
	today := progress.StartOfDay(now, a.loc)
	start := today.AddDate(0, 0, -(days - 1))
	end := today.AddDate(0, 0, 1)

	entries, err := a.activity.HeatmapRange(c.Request.Context(), currentUserID(c), start, end)
	if err != nil {
		a.handleHabitError(c, err)
		return
	}

	c.JSON(http.StatusOK, buildHabitHeatmapPayload(entries, start, today, now, a.loc))
}

func buildHabitHeatmapPayload(entries []service.HabitHeatmapEntry, start, end, generatedAt time.Time, loc *time.Location) habitHeatmapPayload {
	dayMap := make(map[string][]heatmapHabit)
	legendMap := make(map[uuid.UUID]heatmapHabit)

	for _, entry := range entries {
		habit := heatmapHabit{ID: entry.HabitID.String(), Title: entry.HabitTitle, Color: entry.HabitColor}
		key := entry.LogDate.In(loc).Format(progress.DateFormat)
		dayMap[key] = append(dayMap[key], habit)
		if _, exists := legendMap[entry.HabitID]; !exists {
			legendMap[entry.HabitID] = habit
		}
	}

	days := make([]heatmapDay, 0, len(dayMap))
	for date, habits := range dayMap {
		slices.SortFunc(habits, func(a, b heatmapHabit) int {
			return cmp.Compare(strings.ToLower(a.Title), strings.ToLower(b.Title))
		})
		days = append(days, heatmapDay{Date: date, Count: len(habits), Habits: habits})
	}

	slices.SortFunc(days, func(a, b heatmapDay) int {
		return cmp.Compare(a.Date, b.Date)
	})

	legend := make([]heatmapHabit, 0, len(legendMap))
	for _, item := range legendMap {
		legend = append(legend, item)
	}

	slices.SortFunc(legend, func(a, b heatmapHabit) int {
		if diff := cmp.Compare(strings.ToLower(a.Title), strings.ToLower(b.Title)); diff != 0 {
			return diff
		}
		return cmp.Compare(a.ID, b.ID)
	})

	payload := habitHeatmapPayload{
		Range: heatmapRange{
			Start: start.Format(progress.DateFormat),
			End:   end.Format(progress.DateFormat),
		},
		Days:    days,
		Habits:  legend,
		Summary: heatmapSummary{TotalLogs: len(entries), ActiveDays: len(dayMap), HabitCount: len(legend)},
	}

	if !generatedAt.IsZero() {
		payload.GeneratedAt = generatedAt.Format(time.RFC3339)
	}

	return payload
}

func (p habitPayload) toInput() service.HabitInput {
	return service.HabitInput{
		Title:       p.Title,
		Description: p.Description,
		Frequency:   p.Frequency,
		TimeOfDay:   p.TimeOfDay,
		Color:       p.Color,
		Icon:        p.Icon,
		IsArchived:  p.IsArchived,
	}
}

func (p habitUpdatePayload) toPatch() service.HabitPatch {
	return service.HabitPatch{
		Title:       p.Title,
		Description: p.Description,
		Frequency:   p.Frequency,
		TimeOfDay:   p.TimeOfDay,
		Color:       p.Color,
		Icon:        p.Icon,
		IsArchived:  p.IsArchived,
	}
}

// newHabitPayload 用于刚创建/更新的习惯，进度字段取默认值
func newHabitPayload(habit db.Habit) gin.H {
	item := habitToPayload(habit)
	item["current_streak"] = 0
	item["is_completed_today"] = false
	return item
}

func habitToPayload(habit db.Habit) gin.H {
	return gin.H{
		"id":          habit.ID.String(),
		"user_id":     habit.UserID.String(),
		"title":       habit.Title,
		"description": habit.Description,
		"frequency":   habit.Frequency,
		"time_of_day": habit.TimeOfDay,
		"color":       habit.Color,
		"icon":        habit.Icon,
		"is_archived": habit.IsArchived,
		"created_at":  habit.CreatedAt,
		"logs":        serializeHabitLogs(habit.Logs),
	}
}

func serializeHabitLogs(logs []db.HabitLog) []gin.H {
	items := make([]gin.H, 0, len(logs))
	for _, log := range logs {
		items = append(items, gin.H{
			"id":           log.ID.String(),
			"habit_id":     log.HabitID.String(),
			"date":         log.Date.Format(time.RFC3339),
			"completed_at": log.CompletedAt.Format(time.RFC3339),
		})
	}
	return items
}

func (a *API) handleHabitError(c *gin.Context, err error) {
	var duplicate *service.DuplicatePeriodError
	switch {
	case errors.As(err, &duplicate):
		a.log.Info("duplicate completion rejected", "period", duplicate.PeriodKey)
		respondError(c, http.StatusBadRequest, duplicate.Error())
	case errors.Is(err, service.ErrHabitNotFound):
		respondError(c, http.StatusNotFound, "Habit not found")
	case errors.Is(err, service.ErrHabitForbidden):
		respondError(c, http.StatusForbidden, "Not authorized")
	case errors.Is(err, service.ErrHabitOwnerMissing):
		respondError(c, http.StatusNotFound, "User not found")
	case errors.Is(err, service.ErrHabitInvalid):
		respondError(c, http.StatusUnprocessableEntity, err.Error())
	default:
		a.log.Error("habit request failed", "error", err)
		respondError(c, http.StatusInternalServerError, "Internal server error")
	}
}
