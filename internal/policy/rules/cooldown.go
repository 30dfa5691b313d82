package rules

import (
	"fmt"
	"math"
)

// TypeCooldown 是交易冷却规则的类型标识。
const TypeCooldown = "cooldown"

// CooldownConfig 要求相邻两次执行之间的最小间隔（秒）。
type CooldownConfig struct {
	MinimumSeconds int64 `json:"minimum_seconds"`
}

// RuleType 实现 Config 接口。
func (CooldownConfig) RuleType() string { return TypeCooldown }

// CooldownRule 校验距上次已确认执行是否已超过最小间隔。
// 首次执行没有历史记录，直接放行。
type CooldownRule struct{}

// Type 返回规则类型。
func (*CooldownRule) Type() string { return TypeCooldown }

// Name 返回展示名称。
func (*CooldownRule) Name() string { return "Transaction Cooldown" }

// DefaultConfig 返回默认 60 秒冷却。
func (*CooldownRule) DefaultConfig() Config {
	return CooldownConfig{MinimumSeconds: 60}
}

// Evaluate 实现 Rule 接口。
func (r *CooldownRule) Evaluate(ctx Context, cfg Config) Result {
	conf, ok := cfg.(CooldownConfig)
	if !ok || conf.MinimumSeconds <= 0 {
		conf = r.DefaultConfig().(CooldownConfig)
	}

	if ctx.LastExecution == nil {
		return Result{
			RuleType: TypeCooldown,
			RuleName: r.Name(),
			Allowed:  true,
			Reason:   "First transaction - no cooldown required",
			Metadata: map[string]any{"minimum_seconds": conf.MinimumSeconds, "first_transaction": true},
		}
	}

	elapsed := ctx.Now.Sub(*ctx.LastExecution).Seconds()
	minimum := float64(conf.MinimumSeconds)
	if elapsed < minimum {
		remaining := minimum - elapsed
		return Result{
			RuleType: TypeCooldown,
			RuleName: r.Name(),
			Allowed:  false,
			Reason:   fmt.Sprintf("Cooldown active: %s remaining", formatRemaining(remaining)),
			Metadata: map[string]any{
				"minimum_seconds":   conf.MinimumSeconds,
				"elapsed_seconds":   int64(elapsed),
				"remaining_seconds": int64(math.Ceil(remaining)),
				"last_execution":    ctx.LastExecution.UTC().Format("2006-01-02T15:04:05Z07:00"),
			},
		}
	}

	return Result{
		RuleType: TypeCooldown,
		RuleName: r.Name(),
		Allowed:  true,
		Reason:   fmt.Sprintf("Cooldown satisfied: %ds elapsed", int64(elapsed)),
		Metadata: map[string]any{
			"minimum_seconds": conf.MinimumSeconds,
			"elapsed_seconds": int64(elapsed),
			"last_execution":  ctx.LastExecution.UTC().Format("2006-01-02T15:04:05Z07:00"),
		},
	}
}

// formatRemaining 以秒/分/小时渲染剩余冷却时间。
func formatRemaining(seconds float64) string {
	switch {
	case seconds < 60:
		return fmt.Sprintf("%ds", int64(math.Ceil(seconds)))
	case seconds < 3600:
		return fmt.Sprintf("%dm", int64(math.Ceil(seconds/60)))
	default:
		return fmt.Sprintf("%dh", int64(math.Ceil(seconds/3600)))
	}
}

var _ Rule = (*CooldownRule)(nil)
