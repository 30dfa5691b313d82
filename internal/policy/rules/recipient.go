package rules

import (
	"fmt"
	"strings"
)

// TypeRecipient 是收款地址名单规则的类型标识。
const TypeRecipient = "recipient-whitelist"

// RecipientConfig 限定允许或禁止的收款地址。
// 两个名单同时存在时黑名单优先。
type RecipientConfig struct {
	Allowed []string `json:"allowed,omitempty"`
	Blocked []string `json:"blocked,omitempty"`
}

// RuleType 实现 Config 接口。
func (RecipientConfig) RuleType() string { return TypeRecipient }

// RecipientRule 校验动作的收款地址。无法从动作中确定收款人时拒绝：
// 解析不了的 calldata 本身就是风险信号，必须失败关闭。
type RecipientRule struct{}

// Type 返回规则类型。
func (*RecipientRule) Type() string { return TypeRecipient }

// Name 返回展示名称。
func (*RecipientRule) Name() string { return "Recipient Whitelist" }

// DefaultConfig 返回不设限制的空名单。
func (*RecipientRule) DefaultConfig() Config {
	return RecipientConfig{}
}

// Evaluate 实现 Rule 接口。
func (r *RecipientRule) Evaluate(ctx Context, cfg Config) Result {
	conf, ok := cfg.(RecipientConfig)
	if !ok {
		conf = RecipientConfig{}
	}

	recipient := decodedRecipient(ctx.Action)
	if recipient == "" {
		return Result{
			RuleType: TypeRecipient,
			RuleName: r.Name(),
			Allowed:  false,
			Reason:   "Unable to determine transaction recipient",
		}
	}

	normalized := strings.ToLower(recipient)

	// 黑名单优先于白名单。
	for _, blocked := range conf.Blocked {
		if strings.ToLower(blocked) == normalized {
			return Result{
				RuleType: TypeRecipient,
				RuleName: r.Name(),
				Allowed:  false,
				Reason:   fmt.Sprintf("Recipient %s is in the blocked list", recipient),
				Metadata: map[string]any{"recipient": recipient},
			}
		}
	}

	if len(conf.Allowed) > 0 {
		for _, allowed := range conf.Allowed {
			if strings.ToLower(allowed) == normalized {
				return Result{
					RuleType: TypeRecipient,
					RuleName: r.Name(),
					Allowed:  true,
					Reason:   fmt.Sprintf("Recipient %s is whitelisted", recipient),
					Metadata: map[string]any{"recipient": recipient},
				}
			}
		}
		return Result{
			RuleType: TypeRecipient,
			RuleName: r.Name(),
			Allowed:  false,
			Reason:   fmt.Sprintf("Recipient %s is not in the whitelist", recipient),
			Metadata: map[string]any{"recipient": recipient},
		}
	}

	return Result{
		RuleType: TypeRecipient,
		RuleName: r.Name(),
		Allowed:  true,
		Reason:   "No recipient restrictions configured",
		Metadata: map[string]any{"recipient": recipient},
	}
}

var _ Rule = (*RecipientRule)(nil)
