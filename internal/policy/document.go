package policy

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	xerrors "DelegateGuard/internal/errors"
)

// DocumentVersion 为当前支持的策略文档版本。
const DocumentVersion = "2024-01-01"

// 策略相关的错误码。
const (
	CodeValidation     xerrors.Code = "POLICY_VALIDATION_FAILED"
	CodePolicyNotFound xerrors.Code = "POLICY_NOT_FOUND"
	CodeUnknownRule    xerrors.Code = "RULE_NOT_REGISTERED"
)

func init() {
	xerrors.Register(CodeValidation, xerrors.Attributes{
		Severity: xerrors.SeverityWarning,
	})
	xerrors.Register(CodePolicyNotFound, xerrors.Attributes{
		Severity: xerrors.SeverityWarning,
	})
	xerrors.Register(CodeUnknownRule, xerrors.Attributes{
		Severity: xerrors.SeverityCritical,
		Alert:    true,
	})
}

// Period 表示额度限制的结算周期。
type Period string

// 支持的结算周期
const (
	PeriodDaily   Period = "daily"
	PeriodWeekly  Period = "weekly"
	PeriodMonthly Period = "monthly"
)

// Document 是委托人签署的声明式策略文档。字段命名与前端
// 提交的 JSON 保持一致，一经编译即视为不可变。
type Document struct {
	Version     string      `json:"version"`
	Name        string      `json:"name"`
	Description string      `json:"description,omitempty"`
	Limits      Limits      `json:"limits"`
	Conditions  *Conditions `json:"conditions,omitempty"`
}

// Limits 描述额度限制。Amount 为十进制字符串，避免浮点精度损失。
type Limits struct {
	Amount   string `json:"amount"`
	Currency string `json:"currency"`
	Period   Period `json:"period"`
}

// Conditions 描述可选的附加条件。
type Conditions struct {
	TimeWindow *TimeWindowCondition `json:"timeWindow,omitempty"`
	Signals    *SignalsCondition    `json:"signals,omitempty"`
	Recipients *RecipientsCondition `json:"recipients,omitempty"`
	Cooldown   *CooldownCondition   `json:"cooldown,omitempty"`
}

// TimeWindowCondition 限定允许执行的时间窗口。
type TimeWindowCondition struct {
	Days      []int  `json:"days"`
	StartHour int    `json:"startHour"`
	EndHour   int    `json:"endHour"`
	Timezone  string `json:"timezone,omitempty"`
}

// SignalsCondition 描述依赖外部信号的条件。
type SignalsCondition struct {
	Gas      *GasCondition      `json:"gas,omitempty"`
	Security *SecurityCondition `json:"security,omitempty"`
}

// GasCondition 限定可接受的 Gas 价格上限。
type GasCondition struct {
	MaxGwei float64 `json:"maxGwei"`
}

// SecurityCondition 在安全告警出现时暂停执行。
type SecurityCondition struct {
	MaxAlertCount     int      `json:"maxAlertCount"`
	BlockedSeverities []string `json:"blockedSeverities,omitempty"`
}

// RecipientsCondition 限定收款地址。Allowed 与 Blocked 互斥。
type RecipientsCondition struct {
	Allowed []string `json:"allowed,omitempty"`
	Blocked []string `json:"blocked,omitempty"`
}

// CooldownCondition 限定两次执行之间的最短间隔。
type CooldownCondition struct {
	Seconds int64 `json:"seconds"`
}

// FieldError 描述单个字段的校验失败。
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationError 聚合一次文档校验的全部失败项。
type ValidationError struct {
	Fields []FieldError
}

// Error 实现 error 接口。
func (e *ValidationError) Error() string {
	if e == nil || len(e.Fields) == 0 {
		return "策略文档校验失败"
	}
	parts := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		parts = append(parts, fmt.Sprintf("%s: %s", f.Field, f.Message))
	}
	return "策略文档校验失败: " + strings.Join(parts, "; ")
}

// 文档字段长度约束。
const (
	maxNameLength        = 100
	maxDescriptionLength = 500
)

// Validate 校验文档的全部结构不变量，返回所有失败项。
func (d *Document) Validate() *ValidationError {
	var fields []FieldError
	add := func(field, format string, args ...any) {
		fields = append(fields, FieldError{Field: field, Message: fmt.Sprintf(format, args...)})
	}

	if d.Version != DocumentVersion {
		add("version", "unsupported version %q, expected %q", d.Version, DocumentVersion)
	}
	name := strings.TrimSpace(d.Name)
	if name == "" {
		add("name", "name is required")
	} else if len(d.Name) > maxNameLength {
		add("name", "name exceeds %d characters", maxNameLength)
	}
	if len(d.Description) > maxDescriptionLength {
		add("description", "description exceeds %d characters", maxDescriptionLength)
	}

	amount := strings.TrimSpace(d.Limits.Amount)
	if amount == "" {
		add("limits.amount", "amount is required")
	} else if parsed, err := strconv.ParseFloat(amount, 64); err != nil {
		add("limits.amount", "amount %q is not a decimal number", d.Limits.Amount)
	} else if parsed <= 0 {
		add("limits.amount", "amount must be positive")
	}
	if strings.TrimSpace(d.Limits.Currency) == "" {
		add("limits.currency", "currency is required")
	}
	switch d.Limits.Period {
	case PeriodDaily, PeriodWeekly, PeriodMonthly:
	default:
		add("limits.period", "period %q must be one of daily, weekly, monthly", d.Limits.Period)
	}

	if d.Conditions != nil {
		validateConditions(d.Conditions, add)
	}

	if len(fields) == 0 {
		return nil
	}
	return &ValidationError{Fields: fields}
}

func validateConditions(c *Conditions, add func(field, format string, args ...any)) {
	if tw := c.TimeWindow; tw != nil {
		if len(tw.Days) == 0 {
			add("conditions.timeWindow.days", "days must not be empty")
		}
		seen := make(map[int]bool, len(tw.Days))
		for _, day := range tw.Days {
			if day < 0 || day > 6 {
				add("conditions.timeWindow.days", "day %d out of range 0-6", day)
				continue
			}
			if seen[day] {
				add("conditions.timeWindow.days", "duplicate day %d", day)
			}
			seen[day] = true
		}
		if tw.StartHour < 0 || tw.StartHour > 23 {
			add("conditions.timeWindow.startHour", "startHour %d out of range 0-23", tw.StartHour)
		}
		if tw.EndHour < 0 || tw.EndHour > 23 {
			add("conditions.timeWindow.endHour", "endHour %d out of range 0-23", tw.EndHour)
		}
		if tw.EndHour <= tw.StartHour {
			add("conditions.timeWindow", "endHour must be greater than startHour")
		}
	}
	if sig := c.Signals; sig != nil {
		if sig.Gas != nil && sig.Gas.MaxGwei <= 0 {
			add("conditions.signals.gas.maxGwei", "maxGwei must be positive")
		}
		if sig.Security != nil {
			if sig.Security.MaxAlertCount < 0 {
				add("conditions.signals.security.maxAlertCount", "maxAlertCount must not be negative")
			}
			for _, sev := range sig.Security.BlockedSeverities {
				switch strings.ToLower(sev) {
				case "info", "low", "medium", "high", "critical":
				default:
					add("conditions.signals.security.blockedSeverities", "unknown severity %q", sev)
				}
			}
		}
	}
	if rec := c.Recipients; rec != nil {
		if len(rec.Allowed) > 0 && len(rec.Blocked) > 0 {
			add("conditions.recipients", "allowed and blocked lists are mutually exclusive")
		}
		for _, addr := range rec.Allowed {
			if !common.IsHexAddress(addr) {
				add("conditions.recipients.allowed", "invalid address %q", addr)
			}
		}
		for _, addr := range rec.Blocked {
			if !common.IsHexAddress(addr) {
				add("conditions.recipients.blocked", "invalid address %q", addr)
			}
		}
	}
	if cd := c.Cooldown; cd != nil && cd.Seconds <= 0 {
		add("conditions.cooldown.seconds", "seconds must be positive")
	}
}
