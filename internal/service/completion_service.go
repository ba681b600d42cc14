package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/habitsprout/internal/db"
	"github.com/habitsprout/internal/logger"
	"github.com/habitsprout/internal/progress"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	// ErrDuplicatePeriod 在当前周期已打卡时返回，可用 errors.Is 判断
	ErrDuplicatePeriod = errors.New("habit already completed for current period")
	// ErrHabitOwnerMissing 在习惯所属用户不存在时返回
	ErrHabitOwnerMissing = errors.New("habit owner not found")
)

// DuplicatePeriodError 描述重复打卡，Error() 返回面向用户的提示
type DuplicatePeriodError struct {
	Frequency progress.Frequency
	PeriodKey string
}

func (e *DuplicatePeriodError) Error() string {
	if e.Frequency == progress.FrequencyWeekly {
		return "Habit already completed this week"
	}
	return "Habit already completed today"
}

// Is 使 errors.Is(err, ErrDuplicatePeriod) 成立
func (e *DuplicatePeriodError) Is(target error) bool {
	return target == ErrDuplicatePeriod
}

// CompletionResult 汇总一次打卡的结算结果
type CompletionResult struct {
	Log       db.HabitLog
	XPGained  int
	NewLevel  int
	XP        int
	LeveledUp bool
	Period    progress.Period
}

// CompletionService 负责打卡写入与经验结算
// 周期去重、写入打卡、更新等级在同一事务内完成
type CompletionService struct {
	db  *gorm.DB
	log *logger.Logger
	loc *time.Location
}

// NewCompletionService 构造 CompletionService，loc 为周期计算使用的时区
func NewCompletionService(gdb *gorm.DB, log *logger.Logger, loc *time.Location) *CompletionService {
	if loc == nil {
		loc = time.UTC
	}
	return &CompletionService{db: gdb, log: log.With("service", "CompletionService"), loc: loc}
}

// Record 为习惯记录一次打卡。调用方需先完成归属校验。
// 当前周期已有打卡时返回 *DuplicatePeriodError，且不修改用户经验。
func (s *CompletionService) Record(ctx context.Context, habit db.Habit, now time.Time) (*CompletionResult, error) {
	period := progress.ResolvePeriod(progress.Frequency(habit.Frequency), now, s.loc)
	if period.Fallback {
		s.log.Warn("unknown habit frequency, treating as daily",
			"habit_id", habit.ID.String(), "frequency", habit.Frequency)
	}

	result := &CompletionResult{Period: period}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// 先锁定用户行，使同一用户的并发打卡串行执行
		var user db.User
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			First(&user, "id = ?", habit.UserID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrHabitOwnerMissing
			}
			return fmt.Errorf("load habit owner: %w", err)
		}

		var existing []db.HabitLog
		if err := tx.Where("habit_id = ? AND date >= ?", habit.ID, period.Start.UTC()).
			Limit(1).
			Find(&existing).Error; err != nil {
			return fmt.Errorf("check period logs: %w", err)
		}
		if len(existing) > 0 {
			return &DuplicatePeriodError{Frequency: period.Frequency, PeriodKey: period.Key}
		}

		entry := db.HabitLog{
			HabitID:     habit.ID,
			Date:        now.UTC(),
			CompletedAt: now.UTC(),
		}
		if err := tx.Create(&entry).Error; err != nil {
			return fmt.Errorf("create habit log: %w", err)
		}

		outcome := progress.Apply(progress.Progression{Level: user.Level, XP: user.XP}, progress.XPPerCompletion)
		if err := tx.Model(&user).Updates(map[string]interface{}{
			"level": outcome.Level,
			"xp":    outcome.XP,
		}).Error; err != nil {
			return fmt.Errorf("update user progression: %w", err)
		}

		result.Log = entry
		result.XPGained = outcome.Gained
		result.NewLevel = outcome.Level
		result.XP = outcome.XP
		result.LeveledUp = outcome.LeveledUp
		return nil
	})
	if err != nil {
		return nil, err
	}

	if result.LeveledUp {
		s.log.Info("user leveled up", "user_id", habit.UserID.String(), "level", result.NewLevel)
	}
	return result, nil
}
