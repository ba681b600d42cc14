package service

import (
	"context"
	"errors"
	"fmt"
	"html"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/habitsprout/internal/db"
	"github.com/habitsprout/internal/logger"
	"github.com/habitsprout/internal/progress"
	"github.com/microcosm-cc/bluemonday"
	"gorm.io/gorm"
)

var (
	// ErrHabitNotFound 在指定习惯不存在时返回
	ErrHabitNotFound = errors.New("habit not found")
	// ErrHabitForbidden 在习惯不属于当前用户时返回
	ErrHabitForbidden = errors.New("habit does not belong to user")
	// ErrHabitInvalid 当输入字段不合法时返回
	ErrHabitInvalid = errors.New("invalid habit input")
)

const (
	defaultHabitColor = "#10b981"
	defaultHabitIcon  = "sprout"
	defaultListLimit  = 100
	maxListLimit      = 500
)

var timesOfDay = map[string]struct{}{
	"ANY":       {},
	"MORNING":   {},
	"AFTERNOON": {},
	"EVENING":   {},
}

var plainText = bluemonday.StrictPolicy()

// sanitizePlain 去除所有 HTML 标签，保留纯文本
func sanitizePlain(value string) string {
	return strings.TrimSpace(html.UnescapeString(plainText.Sanitize(value)))
}

// HabitService 负责 Habit 数据的增删改查，所有操作都限定在所属用户范围内
type HabitService struct {
	db  *gorm.DB
	log *logger.Logger
	loc *time.Location
}

// HabitInput 定义创建/更新习惯时可配置字段
type HabitInput struct {
	Title       string
	Description string
	Frequency   string
	TimeOfDay   string
	Color       string
	Icon        string
	IsArchived  bool
}

// HabitPatch 描述部分更新，nil 字段保持原值
type HabitPatch struct {
	Title       *string
	Description *string
	Frequency   *string
	TimeOfDay   *string
	Color       *string
	Icon        *string
	IsArchived  *bool
}

// HabitView 是带有进度信息的习惯，用于列表展示
type HabitView struct {
	Habit           db.Habit
	Progress        progress.Progress
	DescriptionHTML string
}

// NewHabitService 构造 HabitService，loc 为计算自然日使用的时区
func NewHabitService(gdb *gorm.DB, log *logger.Logger, loc *time.Location) *HabitService {
	if loc == nil {
		loc = time.UTC
	}
	return &HabitService{db: gdb, log: log.With("service", "HabitService"), loc: loc}
}

// List 返回用户的习惯及其全部打卡记录，按创建时间排序
func (s *HabitService) List(ctx context.Context, userID uuid.UUID, skip, limit int) ([]db.Habit, error) {
	if skip < 0 {
		skip = 0
	}
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}

	var habits []db.Habit
	if err := s.db.WithContext(ctx).
		Preload("Logs", func(tx *gorm.DB) *gorm.DB { return tx.Order("date ASC") }).
		Where("user_id = ?", userID).
		Order("created_at ASC").
		Offset(skip).
		Limit(limit).
		Find(&habits).Error; err != nil {
		return nil, fmt.Errorf("list habits: %w", err)
	}
	return habits, nil
}

// ListWithProgress 在 List 的基础上为每个习惯计算连续天数与本周期完成状态
func (s *HabitService) ListWithProgress(ctx context.Context, userID uuid.UUID, skip, limit int, now time.Time) ([]HabitView, error) {
	habits, err := s.List(ctx, userID, skip, limit)
	if err != nil {
		return nil, err
	}

	views := make([]HabitView, 0, len(habits))
	for _, habit := range habits {
		freq, ok := progress.NormalizeFrequency(habit.Frequency)
		if !ok {
			s.log.Warn("unknown habit frequency, treating as daily", "habit_id", habit.ID.String(), "frequency", habit.Frequency)
		}

		events := make([]time.Time, 0, len(habit.Logs))
		for _, entry := range habit.Logs {
			events = append(events, entry.Date)
		}

		views = append(views, HabitView{
			Habit:           habit,
			Progress:        progress.Compute(freq, events, now, s.loc),
			DescriptionHTML: renderDescription(habit.Description),
		})
	}
	return views, nil
}

// Get 根据 ID 获取习惯
func (s *HabitService) Get(ctx context.Context, id uuid.UUID) (*db.Habit, error) {
	var habit db.Habit
	if err := s.db.WithContext(ctx).First(&habit, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrHabitNotFound
		}
		return nil, fmt.Errorf("get habit: %w", err)
	}
	return &habit, nil
}

// GetOwned 获取习惯并校验归属
func (s *HabitService) GetOwned(ctx context.Context, userID, id uuid.UUID) (*db.Habit, error) {
	habit, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if habit.UserID != userID {
		return nil, ErrHabitForbidden
	}
	return habit, nil
}

// Create 新建习惯
func (s *HabitService) Create(ctx context.Context, userID uuid.UUID, input HabitInput) (*db.Habit, error) {
	normalized, err := normalizeHabitInput(input)
	if err != nil {
		return nil, err
	}

	habit := db.Habit{
		UserID:      userID,
		Title:       normalized.Title,
		Description: normalized.Description,
		Frequency:   normalized.Frequency,
		TimeOfDay:   normalized.TimeOfDay,
		Color:       normalized.Color,
		Icon:        normalized.Icon,
		IsArchived:  normalized.IsArchived,
	}

	if err := s.db.WithContext(ctx).Create(&habit).Error; err != nil {
		return nil, fmt.Errorf("create habit: %w", err)
	}
	return &habit, nil
}

// Update 按 patch 部分更新习惯，未提供的字段保持原值
func (s *HabitService) Update(ctx context.Context, userID, id uuid.UUID, patch HabitPatch) (*db.Habit, error) {
	existing, err := s.GetOwned(ctx, userID, id)
	if err != nil {
		return nil, err
	}

	if err := patch.applyTo(existing); err != nil {
		return nil, err
	}

	if err := s.db.WithContext(ctx).Save(existing).Error; err != nil {
		return nil, fmt.Errorf("update habit: %w", err)
	}
	return existing, nil
}

// Delete 删除习惯及其打卡记录
func (s *HabitService) Delete(ctx context.Context, userID, id uuid.UUID) error {
	if _, err := s.GetOwned(ctx, userID, id); err != nil {
		return err
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("habit_id = ?", id).Delete(&db.HabitLog{}).Error; err != nil {
			return fmt.Errorf("delete habit logs: %w", err)
		}
		if err := tx.Delete(&db.Habit{}, "id = ?", id).Error; err != nil {
			return fmt.Errorf("delete habit: %w", err)
		}
		return nil
	})
}

func normalizeHabitInput(input HabitInput) (HabitInput, error) {
	title, err := normalizeTitle(input.Title)
	if err != nil {
		return HabitInput{}, err
	}

	frequency := string(progress.FrequencyDaily)
	if strings.TrimSpace(input.Frequency) != "" {
		if frequency, err = normalizeFrequency(input.Frequency); err != nil {
			return HabitInput{}, err
		}
	}

	timeOfDay, err := normalizeTimeOfDay(input.TimeOfDay)
	if err != nil {
		return HabitInput{}, err
	}

	return HabitInput{
		Title:       title,
		Description: strings.TrimSpace(input.Description),
		Frequency:   frequency,
		TimeOfDay:   timeOfDay,
		Color:       plainOrDefault(input.Color, defaultHabitColor),
		Icon:        plainOrDefault(input.Icon, defaultHabitIcon),
		IsArchived:  input.IsArchived,
	}, nil
}

// applyTo 校验并写入已提供的字段
func (p HabitPatch) applyTo(habit *db.Habit) error {
	if p.Title != nil {
		title, err := normalizeTitle(*p.Title)
		if err != nil {
			return err
		}
		habit.Title = title
	}
	if p.Description != nil {
		habit.Description = strings.TrimSpace(*p.Description)
	}
	if p.Frequency != nil {
		frequency, err := normalizeFrequency(*p.Frequency)
		if err != nil {
			return err
		}
		habit.Frequency = frequency
	}
	if p.TimeOfDay != nil {
		timeOfDay, err := normalizeTimeOfDay(*p.TimeOfDay)
		if err != nil {
			return err
		}
		habit.TimeOfDay = timeOfDay
	}
	if p.Color != nil {
		habit.Color = plainOrDefault(*p.Color, defaultHabitColor)
	}
	if p.Icon != nil {
		habit.Icon = plainOrDefault(*p.Icon, defaultHabitIcon)
	}
	if p.IsArchived != nil {
		habit.IsArchived = *p.IsArchived
	}
	return nil
}

func normalizeTitle(raw string) (string, error) {
	title := sanitizePlain(raw)
	if title == "" {
		return "", fmt.Errorf("%w: title is required", ErrHabitInvalid)
	}
	return title, nil
}

func normalizeFrequency(raw string) (string, error) {
	parsed, err := progress.ParseFrequency(raw)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrHabitInvalid, err)
	}
	return string(parsed), nil
}

func normalizeTimeOfDay(raw string) (string, error) {
	timeOfDay := strings.ToUpper(strings.TrimSpace(raw))
	if timeOfDay == "" {
		return "ANY", nil
	}
	if _, ok := timesOfDay[timeOfDay]; !ok {
		return "", fmt.Errorf("%w: unsupported time of day %s", ErrHabitInvalid, raw)
	}
	return timeOfDay, nil
}

func plainOrDefault(raw, fallback string) string {
	if value := sanitizePlain(raw); value != "" {
		return value
	}
	return fallback
}
