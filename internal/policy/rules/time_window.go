package rules

import (
	"fmt"
	"time"
)

// TypeTimeWindow 是交易时间窗规则的类型标识。
const TypeTimeWindow = "time-window"

// TimeWindowConfig 限定允许执行的 UTC 时段与星期。
type TimeWindowConfig struct {
	StartHour int   `json:"start_hour"`
	EndHour   int   `json:"end_hour"`
	Days      []int `json:"days"`
}

// RuleType 实现 Config 接口。
func (TimeWindowConfig) RuleType() string { return TypeTimeWindow }

var dayNames = [...]string{"Sun", "Mon", "Tue", "Wed", "Thu", "Fri", "Sat"}

// TimeWindowRule 只在配置的星期与小时区间内放行。
// 当 StartHour > EndHour 时窗口跨越午夜。
type TimeWindowRule struct{}

// Type 返回规则类型。
func (*TimeWindowRule) Type() string { return TypeTimeWindow }

// Name 返回展示名称。
func (*TimeWindowRule) Name() string { return "Time Window" }

// DefaultConfig 返回工作日朝九晚五的默认窗口。
func (*TimeWindowRule) DefaultConfig() Config {
	return TimeWindowConfig{StartHour: 9, EndHour: 17, Days: []int{1, 2, 3, 4, 5}}
}

// Evaluate 实现 Rule 接口。
func (r *TimeWindowRule) Evaluate(ctx Context, cfg Config) Result {
	conf, ok := cfg.(TimeWindowConfig)
	if !ok || len(conf.Days) == 0 {
		conf = r.DefaultConfig().(TimeWindowConfig)
	}

	now := ctx.Now.UTC()
	hour := now.Hour()
	day := int(now.Weekday())
	if clock := ctx.Signals.Clock; clock != nil {
		hour = clock.Hour
		day = clock.Weekday
	}

	dayAllowed := false
	for _, allowed := range conf.Days {
		if allowed == day {
			dayAllowed = true
			break
		}
	}
	if !dayAllowed {
		return Result{
			RuleType: TypeTimeWindow,
			RuleName: r.Name(),
			Allowed:  false,
			Reason:   fmt.Sprintf("Not a valid day: %s not in allowed days", weekdayName(day)),
			Metadata: map[string]any{"current_day": day, "allowed_days": conf.Days},
		}
	}

	inWindow := false
	if conf.StartHour <= conf.EndHour {
		inWindow = hour >= conf.StartHour && hour < conf.EndHour
	} else {
		// 跨午夜窗口，例如 22 点到次日 6 点。
		inWindow = hour >= conf.StartHour || hour < conf.EndHour
	}
	if !inWindow {
		return Result{
			RuleType: TypeTimeWindow,
			RuleName: r.Name(),
			Allowed:  false,
			Reason: fmt.Sprintf("Outside time window: %d:00 UTC not in %d:00-%d:00",
				hour, conf.StartHour, conf.EndHour),
			Metadata: map[string]any{"current_hour": hour, "start_hour": conf.StartHour, "end_hour": conf.EndHour},
		}
	}

	return Result{
		RuleType: TypeTimeWindow,
		RuleName: r.Name(),
		Allowed:  true,
		Reason:   fmt.Sprintf("Within time window: %d:00 UTC", hour),
		Metadata: map[string]any{"current_hour": hour, "start_hour": conf.StartHour, "end_hour": conf.EndHour},
	}
}

func weekdayName(day int) string {
	if day >= 0 && day < len(dayNames) {
		return dayNames[day]
	}
	return time.Weekday(day).String()
}

var _ Rule = (*TimeWindowRule)(nil)
