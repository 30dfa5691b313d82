package monitor

import (
	"context"
	"time"

	"DelegateGuard/internal/signal"
)

// Provider 将监控器的激活告警暴露为安全信号源，供安全暂停规则消费。
// 当外部索引器不可用时作为本地兜底信号。
type Provider struct {
	monitor *Monitor
}

// NewProvider 创建本地安全信号源。
func NewProvider(m *Monitor) *Provider {
	return &Provider{monitor: m}
}

var _ signal.TelemetryProvider = (*Provider)(nil)

// Fetch 返回当前激活告警构成的安全信号快照。
func (p *Provider) Fetch(_ context.Context) (*signal.TelemetrySnapshot, error) {
	snap := &signal.TelemetrySnapshot{Timestamp: time.Now().UTC()}
	if p == nil || p.monitor == nil {
		return snap, nil
	}
	for _, alert := range p.monitor.ActiveAlerts() {
		snap.Alerts = append(snap.Alerts, signal.TelemetryAlert{
			ID:           alert.ID,
			Kind:         alert.Kind,
			Severity:     alert.Severity,
			Message:      alert.Message,
			Principal:    alert.Principal,
			TriggerCount: alert.TriggerCount,
			CreatedAt:    alert.CreatedAt,
			IsActive:     alert.IsActive,
		})
	}
	return snap, nil
}
