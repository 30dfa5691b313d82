package monitor

import (
	"context"
	"testing"
	"time"
)

func TestMonitorGlobalThreshold(t *testing.T) {
	m := NewMonitor(WithThresholds(10, 100))
	ctx := context.Background()
	base := time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)

	for i := 0; i < 9; i++ {
		m.Record(ctx, "0xabc", base.Add(time.Duration(i)*time.Minute))
	}
	if alerts := m.ActiveAlerts(); len(alerts) != 0 {
		t.Fatalf("no alert expected below the threshold, got %d", len(alerts))
	}

	m.Record(ctx, "0xabc", base.Add(9*time.Minute))
	alerts := m.ActiveAlerts()
	if len(alerts) != 1 {
		t.Fatalf("the 10th event should raise exactly one alert, got %d", len(alerts))
	}
	if alerts[0].Kind != KindGlobalVelocity || alerts[0].Severity != SeverityHigh {
		t.Fatalf("unexpected alert kind or severity: %+v", alerts[0])
	}

	// 同一窗口内的后续事件不应重复告警。
	m.Record(ctx, "0xabc", base.Add(10*time.Minute))
	alerts = m.ActiveAlerts()
	if len(alerts) != 1 {
		t.Fatalf("no duplicate alert expected within the same window, got %d", len(alerts))
	}
	if alerts[0].TriggerCount != 11 {
		t.Fatalf("trigger count should reach 11, got %d", alerts[0].TriggerCount)
	}
}

func TestMonitorPrincipalThreshold(t *testing.T) {
	m := NewMonitor(WithThresholds(100, 5))
	ctx := context.Background()
	base := time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)

	for i := 0; i < 4; i++ {
		m.Record(ctx, "0xAbC", base.Add(time.Duration(i)*time.Minute))
	}
	m.Record(ctx, "0xabc", base.Add(4*time.Minute))

	alerts := m.ActiveAlerts()
	if len(alerts) != 1 {
		t.Fatalf("expected one per-principal alert, got %d", len(alerts))
	}
	if alerts[0].Kind != KindPrincipalVelocity || alerts[0].Severity != SeverityCritical {
		t.Fatalf("unexpected alert kind or severity: %+v", alerts[0])
	}
	if alerts[0].Principal != "0xabc" {
		t.Fatalf("alert should be attributed to the lowercased address, got %q", alerts[0].Principal)
	}
}

func TestMonitorSlidingWindow(t *testing.T) {
	m := NewMonitor(WithWindow(time.Hour), WithThresholds(3, 100))
	ctx := context.Background()
	base := time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)

	m.Record(ctx, "0xabc", base)
	m.Record(ctx, "0xabc", base.Add(10*time.Minute))
	// 两小时后窗口已清空，此事件不应触发告警。
	m.Record(ctx, "0xabc", base.Add(2*time.Hour))

	if alerts := m.ActiveAlerts(); len(alerts) != 0 {
		t.Fatalf("events outside the window must not count, got %d alerts", len(alerts))
	}
}

func TestMonitorResolve(t *testing.T) {
	m := NewMonitor(WithThresholds(1, 100))
	ctx := context.Background()
	m.Record(ctx, "0xabc", time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC))

	alerts := m.ActiveAlerts()
	if len(alerts) != 1 {
		t.Fatalf("expected one alert, got %d", len(alerts))
	}
	if !m.Resolve(alerts[0].ID) {
		t.Fatalf("resolve should succeed")
	}
	if m.Resolve(alerts[0].ID) {
		t.Fatalf("resolving twice should return false")
	}
	if remaining := m.ActiveAlerts(); len(remaining) != 0 {
		t.Fatalf("resolved alerts must leave the active list")
	}
}
