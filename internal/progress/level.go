package progress

const (
	// XPPerCompletion 每次有效打卡获得的经验值
	XPPerCompletion = 10
	// xpPerLevel 升到下一级所需经验 = 当前等级 * xpPerLevel
	xpPerLevel = 100
)

// Progression 是用户的等级与经验
type Progression struct {
	Level int
	XP    int
}

// LevelUp 记录一次经验结算的结果
type LevelUp struct {
	Progression
	Gained    int
	LeveledUp bool
}

// XPNeeded 返回 level 级升级所需的经验
func XPNeeded(level int) int {
	if level < 1 {
		level = 1
	}
	return level * xpPerLevel
}

// Apply 增加经验并检查一次升级。升级后经验清零，超出部分不结转。
func Apply(current Progression, gain int) LevelUp {
	next := current
	if next.Level < 1 {
		next.Level = 1
	}
	if next.XP < 0 {
		next.XP = 0
	}

	next.XP += gain

	leveled := false
	if next.XP >= XPNeeded(next.Level) {
		next.Level++
		next.XP = 0
		leveled = true
	}

	return LevelUp{Progression: next, Gained: gain, LeveledUp: leveled}
}
