package progress

import "time"

// Progress 是根据打卡历史推导出的展示数据
type Progress struct {
	CurrentStreak    int
	IsCompletedToday bool
}

// Compute 根据打卡时间计算连续天数与本周期完成状态。
//
// 连续天数对所有频率都按自然日回溯：今天未打卡时从昨天开始数，
// 保证当天结束前连胜不会中断。完成状态则按频率区分，
// WEEKLY 只要本周一之后有任何打卡即视为完成。
func Compute(freq Frequency, events []time.Time, now time.Time, loc *time.Location) Progress {
	if len(events) == 0 {
		return Progress{}
	}

	today := StartOfDay(now, loc)
	dates := make(map[string]struct{}, len(events))
	for _, event := range events {
		dates[StartOfDay(event, loc).Format(DateFormat)] = struct{}{}
	}

	_, doneToday := dates[today.Format(DateFormat)]

	cursor := today
	if !doneToday {
		cursor = cursor.AddDate(0, 0, -1)
	}

	streak := 0
	for {
		if _, ok := dates[cursor.Format(DateFormat)]; !ok {
			break
		}
		streak++
		cursor = cursor.AddDate(0, 0, -1)
	}

	result := Progress{CurrentStreak: streak, IsCompletedToday: doneToday}

	if normalized, _ := NormalizeFrequency(string(freq)); normalized == FrequencyWeekly {
		weekStart := StartOfWeek(today)
		result.IsCompletedToday = false
		for _, event := range events {
			if !StartOfDay(event, loc).Before(weekStart) {
				result.IsCompletedToday = true
				break
			}
		}
	}

	return result
}
