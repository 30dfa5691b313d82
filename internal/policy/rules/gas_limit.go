package rules

import "fmt"

// TypeGasLimit 是 gas 限价规则的类型标识。
const TypeGasLimit = "gas-limit"

// GasLimitConfig 约束执行时的最高 gas 价格（gwei）。
type GasLimitConfig struct {
	MaxGwei float64 `json:"max_gwei"`
}

// RuleType 实现 Config 接口。
func (GasLimitConfig) RuleType() string { return TypeGasLimit }

// GasLimitRule 在 gas 价格超过阈值时拒绝执行。
// gas 信号不可用时放行：外部依赖故障不应阻塞合法的自动化操作。
type GasLimitRule struct{}

// Type 返回规则类型。
func (*GasLimitRule) Type() string { return TypeGasLimit }

// Name 返回展示名称。
func (*GasLimitRule) Name() string { return "Gas Limit" }

// DefaultConfig 返回默认 50 gwei 上限。
func (*GasLimitRule) DefaultConfig() Config {
	return GasLimitConfig{MaxGwei: 50}
}

// Evaluate 实现 Rule 接口。
func (r *GasLimitRule) Evaluate(ctx Context, cfg Config) Result {
	conf, ok := cfg.(GasLimitConfig)
	if !ok || conf.MaxGwei <= 0 {
		conf = r.DefaultConfig().(GasLimitConfig)
	}

	gas := ctx.Signals.Gas
	if !gas.Available() {
		return Result{
			RuleType: TypeGasLimit,
			RuleName: r.Name(),
			Allowed:  true,
			Reason:   "Gas signal unavailable, allowing by default",
		}
	}

	if gas.StandardGwei > conf.MaxGwei {
		return Result{
			RuleType: TypeGasLimit,
			RuleName: r.Name(),
			Allowed:  false,
			Reason: fmt.Sprintf("Gas too high: %.1f gwei exceeds %g gwei limit",
				gas.StandardGwei, conf.MaxGwei),
			Metadata: map[string]any{"current_gwei": gas.StandardGwei, "max_gwei": conf.MaxGwei},
		}
	}

	return Result{
		RuleType: TypeGasLimit,
		RuleName: r.Name(),
		Allowed:  true,
		Reason:   fmt.Sprintf("Gas OK: %.1f gwei", gas.StandardGwei),
		Metadata: map[string]any{"current_gwei": gas.StandardGwei, "max_gwei": conf.MaxGwei},
	}
}

var _ Rule = (*GasLimitRule)(nil)
