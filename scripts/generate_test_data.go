package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math/rand"
	"time"

	"github.com/habitsprout/internal/config"
	"github.com/habitsprout/internal/db"
	"github.com/habitsprout/internal/logger"
	"github.com/habitsprout/internal/service"
	"gorm.io/gorm"
)

const (
	demoUsername = "demo"
	demoPassword = "demo1234"
	seedDays     = 60
)

type seedHabit struct {
	title       string
	description string
	frequency   string
	timeOfDay   string
	color       string
	icon        string
	// hitRate 为每日打卡概率
	hitRate float64
}

var demoHabits = []seedHabit{
	{title: "晨跑", description: "**5 公里**，配速不限", frequency: "DAILY", timeOfDay: "MORNING", color: "#f97316", icon: "run", hitRate: 0.8},
	{title: "阅读", description: "每天至少 20 页", frequency: "DAILY", timeOfDay: "EVENING", color: "#3b82f6", icon: "book", hitRate: 0.9},
	{title: "冥想", description: "", frequency: "DAILY", timeOfDay: "ANY", color: "#a855f7", icon: "leaf", hitRate: 0.6},
	{title: "整理周报", description: "回顾本周并规划下周", frequency: "WEEKLY", timeOfDay: "AFTERNOON", color: "#22c55e", icon: "check", hitRate: 0.3},
}

// 测试数据生成器
func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal("配置加载失败:", err)
	}

	// 初始化数据库
	gdb, err := db.Open(cfg)
	if err != nil {
		log.Fatal("数据库初始化失败:", err)
	}

	fmt.Println("开始生成测试数据...")

	user, err := createDemoUser(gdb)
	if err != nil {
		log.Fatal("创建测试用户失败:", err)
	}

	logs, err := createDemoHabits(gdb, user, cfg.Location, time.Now(), rand.New(rand.NewSource(42)))
	if err != nil {
		log.Fatal("创建测试习惯失败:", err)
	}

	fmt.Println("测试数据生成完成！")
	fmt.Printf("用户: %s (密码: %s)\n", demoUsername, demoPassword)
	fmt.Printf("习惯: %d 个，打卡记录: %d 条\n", len(demoHabits), logs)
}

// 创建测试用户，已存在时直接复用
func createDemoUser(gdb *gorm.DB) (*db.User, error) {
	var existing db.User
	err := gdb.Where("username = ?", demoUsername).First(&existing).Error
	if err == nil {
		fmt.Println("用户已存在，跳过创建")
		return &existing, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	user, err := service.NewUserService(gdb).Create(context.Background(), service.UserInput{
		Username: demoUsername,
		Email:    demoUsername + "@example.com",
		Password: demoPassword,
	})
	if err != nil {
		return nil, err
	}

	fmt.Println("✅ 测试用户创建完成")
	return user, nil
}

// 创建测试习惯，并按周期模拟过去 seedDays 天的打卡。
// 打卡走 CompletionService，保证经验与等级与真实流程一致。
func createDemoHabits(gdb *gorm.DB, user *db.User, loc *time.Location, now time.Time, rng *rand.Rand) (int, error) {
	var count int64
	if err := gdb.Model(&db.Habit{}).Where("user_id = ?", user.ID).Count(&count).Error; err != nil {
		return 0, fmt.Errorf("count existing habits: %w", err)
	}
	if count > 0 {
		fmt.Println("习惯已存在，跳过创建")
		return 0, nil
	}

	ctx := context.Background()
	habits := service.NewHabitService(gdb, logger.Nop(), loc)
	completions := service.NewCompletionService(gdb, logger.Nop(), loc)

	total := 0
	for _, item := range demoHabits {
		habit, err := habits.Create(ctx, user.ID, service.HabitInput{
			Title:       item.title,
			Description: item.description,
			Frequency:   item.frequency,
			TimeOfDay:   item.timeOfDay,
			Color:       item.color,
			Icon:        item.icon,
		})
		if err != nil {
			return total, err
		}

		for offset := seedDays; offset >= 0; offset-- {
			if rng.Float64() > item.hitRate {
				continue
			}
			at := now.AddDate(0, 0, -offset)
			if _, err := completions.Record(ctx, *habit, at); err != nil {
				if errors.Is(err, service.ErrDuplicatePeriod) {
					continue
				}
				return total, err
			}
			total++
		}
	}

	fmt.Println("✅ 测试习惯与打卡记录创建完成")
	return total, nil
}
