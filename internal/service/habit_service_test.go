package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/habitsprout/internal/db"
	"github.com/habitsprout/internal/logger"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

func setupServiceTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:service-%d?mode=memory&cache=shared", time.Now().UnixNano())
	gdb, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: gormlogger.Default.LogMode(gormlogger.Silent)})
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}

	if err := db.Migrate(gdb); err != nil {
		t.Fatalf("failed to migrate test database: %v", err)
	}

	t.Cleanup(func() {
		if sqlDB, err := gdb.DB(); err == nil {
			sqlDB.Close()
		}
	})
	return gdb
}

func createTestUser(t *testing.T, gdb *gorm.DB, name string) *db.User {
	t.Helper()
	user, err := NewUserService(gdb).Create(context.Background(), UserInput{
		Username: name,
		Email:    name + "@example.com",
		Password: "password123",
	})
	if err != nil {
		t.Fatalf("failed to create user: %v", err)
	}
	return user
}

func addLog(t *testing.T, gdb *gorm.DB, habitID uuid.UUID, at time.Time) {
	t.Helper()
	entry := db.HabitLog{HabitID: habitID, Date: at.UTC(), CompletedAt: at.UTC()}
	if err := gdb.Create(&entry).Error; err != nil {
		t.Fatalf("failed to insert habit log: %v", err)
	}
}

func TestHabitServiceCreateAndList(t *testing.T) {
	gdb := setupServiceTestDB(t)
	ctx := context.Background()
	owner := createTestUser(t, gdb, "alice")
	other := createTestUser(t, gdb, "bob")

	svc := NewHabitService(gdb, logger.Nop(), time.UTC)

	habit, err := svc.Create(ctx, owner.ID, HabitInput{
		Title:       "  <b>晨跑</b>  ",
		Description: "每天 5 公里",
		Frequency:   "daily",
	})
	if err != nil {
		t.Fatalf("Create returned error: %v", err)
	}

	if habit.ID == uuid.Nil {
		t.Fatal("expected habit to have ID")
	}
	if habit.Title != "晨跑" {
		t.Fatalf("expected sanitized title, got %q", habit.Title)
	}
	if habit.Frequency != "DAILY" || habit.TimeOfDay != "ANY" {
		t.Fatalf("unexpected normalized fields: %+v", habit)
	}
	if habit.Color != defaultHabitColor || habit.Icon != defaultHabitIcon {
		t.Fatalf("expected default color/icon, got %s/%s", habit.Color, habit.Icon)
	}

	if _, err := svc.Create(ctx, other.ID, HabitInput{Title: "阅读", Frequency: "WEEKLY"}); err != nil {
		t.Fatalf("Create for other user returned error: %v", err)
	}

	habits, err := svc.List(ctx, owner.ID, 0, 0)
	if err != nil {
		t.Fatalf("List returned error: %v", err)
	}
	if len(habits) != 1 || habits[0].ID != habit.ID {
		t.Fatalf("expected only owner's habit, got %d", len(habits))
	}

	// 不合法频率
	if _, err := svc.Create(ctx, owner.ID, HabitInput{Title: "冥想", Frequency: "yearly"}); !errors.Is(err, ErrHabitInvalid) {
		t.Fatalf("expected ErrHabitInvalid for unknown frequency, got %v", err)
	}
	if _, err := svc.Create(ctx, owner.ID, HabitInput{Title: "  "}); !errors.Is(err, ErrHabitInvalid) {
		t.Fatalf("expected ErrHabitInvalid for blank title, got %v", err)
	}
	if _, err := svc.Create(ctx, owner.ID, HabitInput{Title: "冥想", TimeOfDay: "midnight"}); !errors.Is(err, ErrHabitInvalid) {
		t.Fatalf("expected ErrHabitInvalid for time of day, got %v", err)
	}
}

func TestHabitServiceOwnership(t *testing.T) {
	gdb := setupServiceTestDB(t)
	ctx := context.Background()
	owner := createTestUser(t, gdb, "alice")
	stranger := createTestUser(t, gdb, "mallory")

	svc := NewHabitService(gdb, logger.Nop(), time.UTC)
	habit, err := svc.Create(ctx, owner.ID, HabitInput{Title: "冥想"})
	if err != nil {
		t.Fatalf("failed to create habit: %v", err)
	}

	if _, err := svc.GetOwned(ctx, stranger.ID, habit.ID); !errors.Is(err, ErrHabitForbidden) {
		t.Fatalf("expected ErrHabitForbidden, got %v", err)
	}
	if _, err := svc.Update(ctx, stranger.ID, habit.ID, HabitPatch{Title: ptr("x")}); !errors.Is(err, ErrHabitForbidden) {
		t.Fatalf("expected ErrHabitForbidden on update, got %v", err)
	}
	if err := svc.Delete(ctx, stranger.ID, habit.ID); !errors.Is(err, ErrHabitForbidden) {
		t.Fatalf("expected ErrHabitForbidden on delete, got %v", err)
	}
	if _, err := svc.GetOwned(ctx, owner.ID, uuid.New()); !errors.Is(err, ErrHabitNotFound) {
		t.Fatalf("expected ErrHabitNotFound, got %v", err)
	}
}

func TestHabitServiceUpdateAndDelete(t *testing.T) {
	gdb := setupServiceTestDB(t)
	ctx := context.Background()
	owner := createTestUser(t, gdb, "alice")

	svc := NewHabitService(gdb, logger.Nop(), time.UTC)
	habit, err := svc.Create(ctx, owner.ID, HabitInput{Title: "冥想"})
	if err != nil {
		t.Fatalf("failed to create habit: %v", err)
	}

	updated, err := svc.Update(ctx, owner.ID, habit.ID, HabitPatch{
		Title:       ptr("冥想训练"),
		Description: ptr("晚间 10 分钟"),
		Frequency:   ptr("WEEKLY"),
		TimeOfDay:   ptr("evening"),
		IsArchived:  ptr(true),
	})
	if err != nil {
		t.Fatalf("Update returned error: %v", err)
	}
	if updated.Title != "冥想训练" || updated.Frequency != "WEEKLY" || updated.TimeOfDay != "EVENING" || !updated.IsArchived {
		t.Fatalf("unexpected updated habit: %+v", updated)
	}

	addLog(t, gdb, habit.ID, time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC))

	if err := svc.Delete(ctx, owner.ID, habit.ID); err != nil {
		t.Fatalf("Delete returned error: %v", err)
	}

	var logCount int64
	gdb.Model(&db.HabitLog{}).Where("habit_id = ?", habit.ID).Count(&logCount)
	if logCount != 0 {
		t.Fatalf("expected logs to be removed with habit, got %d", logCount)
	}
	if _, err := svc.Get(ctx, habit.ID); !errors.Is(err, ErrHabitNotFound) {
		t.Fatalf("expected ErrHabitNotFound after delete, got %v", err)
	}
}

func TestHabitServiceUpdateKeepsUnsetFields(t *testing.T) {
	gdb := setupServiceTestDB(t)
	ctx := context.Background()
	owner := createTestUser(t, gdb, "alice")

	svc := NewHabitService(gdb, logger.Nop(), time.UTC)
	habit, err := svc.Create(ctx, owner.ID, HabitInput{
		Title:       "骑行",
		Description: "环湖一圈",
		Frequency:   "WEEKLY",
		TimeOfDay:   "MORNING",
		Color:       "#ff0000",
		Icon:        "bike",
		IsArchived:  true,
	})
	if err != nil {
		t.Fatalf("failed to create habit: %v", err)
	}

	updated, err := svc.Update(ctx, owner.ID, habit.ID, HabitPatch{Title: ptr("长途骑行")})
	if err != nil {
		t.Fatalf("Update returned error: %v", err)
	}

	reloaded, err := svc.Get(ctx, habit.ID)
	if err != nil {
		t.Fatalf("Get returned error: %v", err)
	}
	for _, got := range []*db.Habit{updated, reloaded} {
		if got.Title != "长途骑行" {
			t.Fatalf("expected title to change, got %q", got.Title)
		}
		if got.Frequency != "WEEKLY" || got.TimeOfDay != "MORNING" || got.Color != "#ff0000" || got.Icon != "bike" || !got.IsArchived || got.Description != "环湖一圈" {
			t.Fatalf("expected unset fields to be kept, got %+v", got)
		}
	}

	// 仅修改归档状态时无需提交标题
	restored, err := svc.Update(ctx, owner.ID, habit.ID, HabitPatch{IsArchived: ptr(false)})
	if err != nil {
		t.Fatalf("archive-only Update returned error: %v", err)
	}
	if restored.IsArchived || restored.Title != "长途骑行" || restored.Frequency != "WEEKLY" {
		t.Fatalf("unexpected habit after archive toggle: %+v", restored)
	}

	tests := []struct {
		name  string
		patch HabitPatch
	}{
		{name: "blank title", patch: HabitPatch{Title: ptr("  ")}},
		{name: "unknown frequency", patch: HabitPatch{Frequency: ptr("MONTHLY")}},
		{name: "blank frequency", patch: HabitPatch{Frequency: ptr("")}},
		{name: "unknown time of day", patch: HabitPatch{TimeOfDay: ptr("midnight")}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := svc.Update(ctx, owner.ID, habit.ID, tt.patch); !errors.Is(err, ErrHabitInvalid) {
				t.Fatalf("expected ErrHabitInvalid, got %v", err)
			}
		})
	}

	unchanged, err := svc.Get(ctx, habit.ID)
	if err != nil {
		t.Fatalf("Get returned error: %v", err)
	}
	if unchanged.Frequency != "WEEKLY" || unchanged.TimeOfDay != "MORNING" {
		t.Fatalf("rejected patches must not change the habit: %+v", unchanged)
	}
}

func TestHabitServiceListWithProgress(t *testing.T) {
	gdb := setupServiceTestDB(t)
	ctx := context.Background()
	owner := createTestUser(t, gdb, "alice")

	svc := NewHabitService(gdb, logger.Nop(), time.UTC)
	daily, err := svc.Create(ctx, owner.ID, HabitInput{Title: "写日记", Description: "**每天** 一页"})
	if err != nil {
		t.Fatalf("failed to create habit: %v", err)
	}
	weekly, err := svc.Create(ctx, owner.ID, HabitInput{Title: "长跑", Frequency: "WEEKLY"})
	if err != nil {
		t.Fatalf("failed to create habit: %v", err)
	}

	// 2024-05-15 周三
	now := time.Date(2024, 5, 15, 20, 0, 0, 0, time.UTC)
	for _, offset := range []int{0, -1, -2} {
		addLog(t, gdb, daily.ID, now.AddDate(0, 0, offset))
	}
	addLog(t, gdb, weekly.ID, time.Date(2024, 5, 13, 7, 0, 0, 0, time.UTC))

	// 直接写入无法识别的频率，模拟脏数据
	legacy := db.Habit{UserID: owner.ID, Title: "旧数据", Frequency: "MONTHLY"}
	if err := gdb.Create(&legacy).Error; err != nil {
		t.Fatalf("failed to insert legacy habit: %v", err)
	}
	addLog(t, gdb, legacy.ID, now.AddDate(0, 0, -1))

	views, err := svc.ListWithProgress(ctx, owner.ID, 0, 10, now)
	if err != nil {
		t.Fatalf("ListWithProgress returned error: %v", err)
	}
	if len(views) != 3 {
		t.Fatalf("expected 3 habits, got %d", len(views))
	}

	byID := make(map[uuid.UUID]HabitView, len(views))
	for _, view := range views {
		byID[view.Habit.ID] = view
	}

	dailyView := byID[daily.ID]
	if dailyView.Progress.CurrentStreak != 3 || !dailyView.Progress.IsCompletedToday {
		t.Fatalf("unexpected daily progress: %+v", dailyView.Progress)
	}
	if len(dailyView.Habit.Logs) != 3 {
		t.Fatalf("expected logs to be preloaded, got %d", len(dailyView.Habit.Logs))
	}
	if !strings.Contains(dailyView.DescriptionHTML, "<strong>每天</strong>") {
		t.Fatalf("expected rendered markdown, got %q", dailyView.DescriptionHTML)
	}

	weeklyView := byID[weekly.ID]
	if !weeklyView.Progress.IsCompletedToday || weeklyView.Progress.CurrentStreak != 0 {
		t.Fatalf("unexpected weekly progress: %+v", weeklyView.Progress)
	}

	legacyView := byID[legacy.ID]
	if legacyView.Progress.IsCompletedToday || legacyView.Progress.CurrentStreak != 1 {
		t.Fatalf("unexpected fallback progress: %+v", legacyView.Progress)
	}
}

func TestRenderDescriptionStripsScripts(t *testing.T) {
	got := renderDescription("hello <script>alert(1)</script>")
	if strings.Contains(got, "<script>") {
		t.Fatalf("expected script to be removed, got %q", got)
	}
	if renderDescription("   ") != "" {
		t.Fatal("expected empty description to render empty")
	}
}

func ptr[T any](v T) *T {
	return &v
}
