package rules

import (
	"fmt"
	"strings"

	"DelegateGuard/internal/signal"
)

// TypeSecurityPause 是安全暂停规则的类型标识。
const TypeSecurityPause = "security-pause"

// SecurityPauseConfig 控制在哪些活跃告警下暂停执行。
// PauseOnAnyAlert 为 true 时忽略 Severities 过滤；
// MaxAlertCount 允许容忍的相关告警数量，超出即拒绝。
type SecurityPauseConfig struct {
	PauseOnAnyAlert bool     `json:"pause_on_any_alert"`
	Severities      []string `json:"severities,omitempty"`
	MaxAlertCount   int      `json:"max_alert_count"`
}

// RuleType 实现 Config 接口。
func (SecurityPauseConfig) RuleType() string { return TypeSecurityPause }

// SecurityPauseRule 在安全遥测出现活跃告警时暂停执行。
// 遥测不可用时放行：监控系统故障不应冻结全部自动化。
type SecurityPauseRule struct{}

// Type 返回规则类型。
func (*SecurityPauseRule) Type() string { return TypeSecurityPause }

// Name 返回展示名称。
func (*SecurityPauseRule) Name() string { return "Security Pause" }

// DefaultConfig 返回任何告警都暂停的默认配置。
func (*SecurityPauseRule) DefaultConfig() Config {
	return SecurityPauseConfig{
		PauseOnAnyAlert: true,
		Severities:      []string{"high", "critical"},
	}
}

// Evaluate 实现 Rule 接口。
func (r *SecurityPauseRule) Evaluate(ctx Context, cfg Config) Result {
	conf, ok := cfg.(SecurityPauseConfig)
	if !ok {
		conf = r.DefaultConfig().(SecurityPauseConfig)
	}
	if !conf.PauseOnAnyAlert && len(conf.Severities) == 0 {
		conf.Severities = []string{"high", "critical"}
	}

	telemetry := ctx.Signals.Telemetry
	if !telemetry.Available() {
		return Result{
			RuleType: TypeSecurityPause,
			RuleName: r.Name(),
			Allowed:  true,
			Reason:   "Security monitoring unavailable",
		}
	}

	if len(telemetry.Alerts) == 0 {
		return Result{
			RuleType: TypeSecurityPause,
			RuleName: r.Name(),
			Allowed:  true,
			Reason:   "No active security alerts",
		}
	}

	relevant := telemetry.Alerts
	if !conf.PauseOnAnyAlert {
		relevant = filterBySeverity(telemetry.Alerts, conf.Severities)
	}

	if len(relevant) > conf.MaxAlertCount {
		samples := make([]string, 0, 3)
		for i, alert := range relevant {
			if i == 3 {
				break
			}
			samples = append(samples, fmt.Sprintf("%s: %s", alert.Severity, alert.Message))
		}
		return Result{
			RuleType: TypeSecurityPause,
			RuleName: r.Name(),
			Allowed:  false,
			Reason:   fmt.Sprintf("Security alert active: %s", strings.Join(samples, "; ")),
			Metadata: map[string]any{"alert_count": len(relevant)},
		}
	}

	return Result{
		RuleType: TypeSecurityPause,
		RuleName: r.Name(),
		Allowed:  true,
		Reason:   "No blocking security alerts",
	}
}

func filterBySeverity(alerts []signal.TelemetryAlert, severities []string) []signal.TelemetryAlert {
	allowed := make(map[string]struct{}, len(severities))
	for _, sev := range severities {
		allowed[strings.ToLower(sev)] = struct{}{}
	}
	var filtered []signal.TelemetryAlert
	for _, alert := range alerts {
		if _, ok := allowed[strings.ToLower(alert.Severity)]; ok {
			filtered = append(filtered, alert)
		}
	}
	return filtered
}

var _ Rule = (*SecurityPauseRule)(nil)
