package progress

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Frequency 描述习惯的打卡周期
type Frequency string

const (
	FrequencyDaily  Frequency = "DAILY"
	FrequencyWeekly Frequency = "WEEKLY"
)

// DateFormat 是 PeriodKey 的格式
const DateFormat = "2006-01-02"

// ErrUnknownFrequency 在存储的频率无法识别时返回
var ErrUnknownFrequency = errors.New("unknown habit frequency")

// Period 表示某一时刻所在的打卡周期
// Key 为日期字符串：DAILY 为当天，WEEKLY 为周一
// Fallback 为 true 表示频率无法识别，已按 DAILY 处理
type Period struct {
	Frequency Frequency
	Key       string
	Start     time.Time
	Fallback  bool
}

// ParseFrequency 严格解析频率，大小写与首尾空白不敏感
func ParseFrequency(raw string) (Frequency, error) {
	switch Frequency(strings.ToUpper(strings.TrimSpace(raw))) {
	case FrequencyDaily:
		return FrequencyDaily, nil
	case FrequencyWeekly:
		return FrequencyWeekly, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownFrequency, raw)
	}
}

// NormalizeFrequency 解析频率，无法识别时回退为 DAILY 并返回 false
func NormalizeFrequency(raw string) (Frequency, bool) {
	freq, err := ParseFrequency(raw)
	if err != nil {
		return FrequencyDaily, false
	}
	return freq, true
}

// ResolvePeriod 计算 ref 在 loc 时区下所属的周期
func ResolvePeriod(freq Frequency, ref time.Time, loc *time.Location) Period {
	normalized, ok := NormalizeFrequency(string(freq))
	day := StartOfDay(ref, loc)

	start := day
	if normalized == FrequencyWeekly {
		start = StartOfWeek(day)
	}

	return Period{
		Frequency: normalized,
		Key:       start.Format(DateFormat),
		Start:     start,
		Fallback:  !ok,
	}
}

// StartOfDay 返回 t 在 loc 时区下当天零点，loc 为空时使用 UTC
func StartOfDay(t time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	local := t.In(loc)
	return time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
}

// StartOfWeek 返回 day 所在周的周一零点，day 需已归一到零点
func StartOfWeek(day time.Time) time.Time {
	weekday := int(day.Weekday())
	if weekday == 0 {
		weekday = 7
	}
	return day.AddDate(0, 0, -weekday+1)
}
