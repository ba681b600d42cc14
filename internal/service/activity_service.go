package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// HabitHeatmapEntry 表示热力图中的单条打卡数据
type HabitHeatmapEntry struct {
	LogDate    time.Time
	HabitID    uuid.UUID
	HabitTitle string
	HabitColor string
}

// ActivityService 汇总用户在一段时间内所有习惯的打卡
type ActivityService struct {
	db *gorm.DB
}

// NewActivityService 构造 ActivityService
func NewActivityService(gdb *gorm.DB) *ActivityService {
	return &ActivityService{db: gdb}
}

// HeatmapRange 返回 [start, end) 区间内用户所有习惯的打卡记录，按时间升序
func (s *ActivityService) HeatmapRange(ctx context.Context, userID uuid.UUID, start, end time.Time) ([]HabitHeatmapEntry, error) {
	if end.Before(start) {
		return nil, fmt.Errorf("invalid range: end before start")
	}

	var rows []HabitHeatmapEntry
	if err := s.db.WithContext(ctx).
		Table("habit_logs").
		Select("habit_logs.date AS log_date, habit_logs.habit_id AS habit_id, habits.title AS habit_title, habits.color AS habit_color").
		Joins("JOIN habits ON habits.id = habit_logs.habit_id").
		Where("habits.user_id = ?", userID).
		Where("habit_logs.date >= ? AND habit_logs.date < ?", start.UTC(), end.UTC()).
		Order("habit_logs.date ASC, habits.title ASC").
		Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("list heatmap logs: %w", err)
	}

	return rows, nil
}
