package rules

import (
	"fmt"
	"math/big"
)

// MaxAmountConfig 限制单次转账的最大数量（按代币精度换算后的数值）。
type MaxAmountConfig struct {
	MaxAmount float64 `json:"max_amount"`
	Decimals  int     `json:"decimals"`
}

// RuleType 实现 Config 接口。
func (MaxAmountConfig) RuleType() string { return TypeMaxAmount }

// TypeMaxAmount 是单笔限额规则的类型标识。
const TypeMaxAmount = "max-amount"

// MaxAmountRule 校验动作携带的代币数量不超过配置上限。
// 动作不含代币数量时直接放行。
type MaxAmountRule struct{}

// Type 返回规则类型。
func (*MaxAmountRule) Type() string { return TypeMaxAmount }

// Name 返回展示名称。
func (*MaxAmountRule) Name() string { return "Max Transaction Amount" }

// DefaultConfig 返回保守默认配置。
func (*MaxAmountRule) DefaultConfig() Config {
	return MaxAmountConfig{MaxAmount: 100, Decimals: 6}
}

// Evaluate 实现 Rule 接口。
func (r *MaxAmountRule) Evaluate(ctx Context, cfg Config) Result {
	conf, ok := cfg.(MaxAmountConfig)
	if !ok {
		conf = r.DefaultConfig().(MaxAmountConfig)
	}
	if conf.MaxAmount <= 0 {
		conf.MaxAmount = 100
	}
	if conf.Decimals < 0 {
		conf.Decimals = 6
	}

	raw := decodedTokenAmount(ctx.Action)
	if raw == nil {
		return Result{
			RuleType: TypeMaxAmount,
			RuleName: r.Name(),
			Allowed:  true,
			Reason:   "No token amount in transaction",
		}
	}

	amount := scaleUnits(raw, conf.Decimals)
	if amount > conf.MaxAmount {
		return Result{
			RuleType: TypeMaxAmount,
			RuleName: r.Name(),
			Allowed:  false,
			Reason:   fmt.Sprintf("Amount too high: %g exceeds %g limit", amount, conf.MaxAmount),
			Metadata: map[string]any{"amount": amount, "max_amount": conf.MaxAmount},
		}
	}

	return Result{
		RuleType: TypeMaxAmount,
		RuleName: r.Name(),
		Allowed:  true,
		Reason:   fmt.Sprintf("Amount OK: %g", amount),
		Metadata: map[string]any{"amount": amount, "max_amount": conf.MaxAmount},
	}
}

// scaleUnits 把最小单位的整数换算为按 decimals 缩放的数值。
func scaleUnits(raw *big.Int, decimals int) float64 {
	if raw == nil {
		return 0
	}
	divisor := new(big.Float).SetInt(new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil))
	scaled, _ := new(big.Float).Quo(new(big.Float).SetInt(raw), divisor).Float64()
	return scaled
}

var _ Rule = (*MaxAmountRule)(nil)
