package db

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Habit 定义了习惯模型
// Frequency 取值 DAILY/WEEKLY，决定打卡周期
// TimeOfDay/Color/Icon 仅用于前端展示
// 主键使用 varchar(36) 存储 UUID，兼容 sqlite 与 postgres
type Habit struct {
	ID          uuid.UUID `gorm:"type:varchar(36);primaryKey"`
	UserID      uuid.UUID `gorm:"type:varchar(36);index;not null"`
	Title       string    `gorm:"index;not null"`
	Description string
	Frequency   string `gorm:"not null"`
	TimeOfDay   string
	Color       string
	Icon        string
	IsArchived  bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
	Logs        []HabitLog `gorm:"constraint:OnDelete:CASCADE"`
}

// BeforeCreate 为新记录生成 UUID
func (h *Habit) BeforeCreate(*gorm.DB) error {
	if h.ID == uuid.Nil {
		h.ID = uuid.New()
	}
	return nil
}

// HabitLog 记录一次打卡
// Date 为用户完成习惯的时刻，统一以 UTC 存储，周期去重依赖它；CompletedAt 为写入时刻
// 同一周期只允许一条记录，由写入时的事务检查保证，而非唯一索引
type HabitLog struct {
	ID          uuid.UUID `gorm:"type:varchar(36);primaryKey"`
	HabitID     uuid.UUID `gorm:"type:varchar(36);index;not null"`
	Date        time.Time `gorm:"index;not null"`
	CompletedAt time.Time
	Note        string
}

// TableName 与原有表名保持一致
func (HabitLog) TableName() string {
	return "habit_logs"
}

// BeforeCreate 为新记录生成 UUID
func (l *HabitLog) BeforeCreate(*gorm.DB) error {
	if l.ID == uuid.Nil {
		l.ID = uuid.New()
	}
	return nil
}
