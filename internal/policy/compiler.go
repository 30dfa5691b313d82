package policy

import (
	"strconv"
	"strings"

	xerrors "DelegateGuard/internal/errors"
	"DelegateGuard/internal/policy/rules"
)

// CompiledPolicy 是文档编译后的只读执行形态，规则顺序固定。
type CompiledPolicy struct {
	Name    string
	Version string
	Rules   []rules.Instance
}

// tokenDecimals 记录常见代币的精度，未知币种按 6 位处理。
var tokenDecimals = map[string]int{
	"USDC": 6,
	"USDT": 6,
	"DAI":  18,
	"WETH": 18,
	"ETH":  18,
}

func decimalsFor(currency string) int {
	if d, ok := tokenDecimals[strings.ToUpper(strings.TrimSpace(currency))]; ok {
		return d
	}
	return 6
}

// Compiler 将策略文档编译为有序规则列表。编译是纯函数：
// 不做任何 I/O，也不读取外部信号。
type Compiler struct {
	registry *rules.Registry
}

// NewCompiler 创建编译器。
func NewCompiler(registry *rules.Registry) *Compiler {
	return &Compiler{registry: registry}
}

// Compile 校验并编译文档。规则按固定顺序输出：额度规则在前，
// 随后依次为时间窗口、Gas、安全暂停、收款白名单与冷却。
func (c *Compiler) Compile(doc *Document) (*CompiledPolicy, error) {
	if doc == nil {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "策略文档不能为空")
	}
	if verr := doc.Validate(); verr != nil {
		return nil, verr
	}

	var instances []rules.Instance

	amount, err := strconv.ParseFloat(strings.TrimSpace(doc.Limits.Amount), 64)
	if err != nil {
		// Validate 已保证可解析，这里只是兜底。
		return nil, xerrors.Wrap(CodeValidation, err, "解析额度失败")
	}
	instances = append(instances, rules.Instance{
		Type: rules.TypeMaxAmount,
		Config: rules.MaxAmountConfig{
			MaxAmount: amount,
			Decimals:  decimalsFor(doc.Limits.Currency),
		},
	})

	if cond := doc.Conditions; cond != nil {
		if tw := cond.TimeWindow; tw != nil {
			days := append([]int(nil), tw.Days...)
			instances = append(instances, rules.Instance{
				Type: rules.TypeTimeWindow,
				Config: rules.TimeWindowConfig{
					StartHour: tw.StartHour,
					EndHour:   tw.EndHour,
					Days:      days,
				},
			})
		}
		if sig := cond.Signals; sig != nil {
			if sig.Gas != nil {
				instances = append(instances, rules.Instance{
					Type:   rules.TypeGasLimit,
					Config: rules.GasLimitConfig{MaxGwei: sig.Gas.MaxGwei},
				})
			}
			if sec := sig.Security; sec != nil {
				severities := append([]string(nil), sec.BlockedSeverities...)
				if len(severities) == 0 {
					severities = []string{"high", "critical"}
				}
				instances = append(instances, rules.Instance{
					Type: rules.TypeSecurityPause,
					Config: rules.SecurityPauseConfig{
						PauseOnAnyAlert: sec.MaxAlertCount == 0,
						Severities:      severities,
						MaxAlertCount:   sec.MaxAlertCount,
					},
				})
			}
		}
		if rec := cond.Recipients; rec != nil {
			instances = append(instances, rules.Instance{
				Type: rules.TypeRecipient,
				Config: rules.RecipientConfig{
					Allowed: append([]string(nil), rec.Allowed...),
					Blocked: append([]string(nil), rec.Blocked...),
				},
			})
		}
		if cd := cond.Cooldown; cd != nil {
			instances = append(instances, rules.Instance{
				Type:   rules.TypeCooldown,
				Config: rules.CooldownConfig{MinimumSeconds: cd.Seconds},
			})
		}
	}

	// 引用未注册的规则属于程序缺陷，必须在编译期立即暴露。
	for _, inst := range instances {
		if _, ok := c.registry.Get(inst.Type); !ok {
			return nil, xerrors.New(CodeUnknownRule, "规则类型未注册: "+inst.Type)
		}
	}

	return &CompiledPolicy{
		Name:    doc.Name,
		Version: doc.Version,
		Rules:   instances,
	}, nil
}
