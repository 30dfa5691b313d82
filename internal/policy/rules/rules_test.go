package rules

import (
	"math/big"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"DelegateGuard/internal/signal"
)

func contextAt(now time.Time) Context {
	return Context{
		Principal: "0x1111111111111111111111111111111111111111",
		AgentID:   "transfer-bot",
		Now:       now,
	}
}

func TestMaxAmountRule(t *testing.T) {
	rule := &MaxAmountRule{}
	cfg := MaxAmountConfig{MaxAmount: 100, Decimals: 6}
	ctx := contextAt(time.Now().UTC())

	ctx.Action = ProposedAction{TokenAmount: big.NewInt(150_000_000)}
	result := rule.Evaluate(ctx, cfg)
	if result.Allowed {
		t.Fatalf("expected 150 to exceed the 100 limit, got: %s", result.Reason)
	}

	ctx.Action = ProposedAction{TokenAmount: big.NewInt(50_000_000)}
	result = rule.Evaluate(ctx, cfg)
	if !result.Allowed {
		t.Fatalf("expected 50 under the 100 limit to pass, got: %s", result.Reason)
	}

	ctx.Action = ProposedAction{}
	result = rule.Evaluate(ctx, cfg)
	if !result.Allowed {
		t.Fatalf("action without a token amount should pass, got: %s", result.Reason)
	}
	if result.Reason != "No token amount in transaction" {
		t.Fatalf("unexpected reason: %s", result.Reason)
	}
}

func TestTimeWindowRuleDeniesWeekend(t *testing.T) {
	rule := &TimeWindowRule{}
	cfg := TimeWindowConfig{StartHour: 9, EndHour: 17, Days: []int{1, 2, 3, 4, 5}}

	// Saturday 2024-06-01 12:00 UTC.
	saturday := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	result := rule.Evaluate(contextAt(saturday), cfg)
	if result.Allowed {
		t.Fatalf("Saturday should be denied, got: %s", result.Reason)
	}
	if !strings.Contains(result.Reason, "Sat") {
		t.Fatalf("reason should name the denied day: %s", result.Reason)
	}

	// Monday 10:00 UTC is inside the window.
	monday := time.Date(2024, 6, 3, 10, 0, 0, 0, time.UTC)
	result = rule.Evaluate(contextAt(monday), cfg)
	if !result.Allowed {
		t.Fatalf("Monday 10:00 should be allowed, got: %s", result.Reason)
	}

	// Monday 18:00 UTC is outside the window.
	evening := time.Date(2024, 6, 3, 18, 0, 0, 0, time.UTC)
	result = rule.Evaluate(contextAt(evening), cfg)
	if result.Allowed {
		t.Fatalf("Monday 18:00 should be denied, got: %s", result.Reason)
	}
}

func TestTimeWindowRuleWrapsMidnight(t *testing.T) {
	rule := &TimeWindowRule{}
	cfg := TimeWindowConfig{StartHour: 22, EndHour: 6, Days: []int{0, 1, 2, 3, 4, 5, 6}}

	night := time.Date(2024, 6, 3, 23, 0, 0, 0, time.UTC)
	if result := rule.Evaluate(contextAt(night), cfg); !result.Allowed {
		t.Fatalf("23:00 should fall inside a 22-6 window, got: %s", result.Reason)
	}
	early := time.Date(2024, 6, 3, 5, 0, 0, 0, time.UTC)
	if result := rule.Evaluate(contextAt(early), cfg); !result.Allowed {
		t.Fatalf("05:00 should fall inside a 22-6 window, got: %s", result.Reason)
	}
	noon := time.Date(2024, 6, 3, 12, 0, 0, 0, time.UTC)
	if result := rule.Evaluate(contextAt(noon), cfg); result.Allowed {
		t.Fatalf("12:00 should fall outside a 22-6 window, got: %s", result.Reason)
	}
}

func TestTimeWindowRulePrefersClockSignal(t *testing.T) {
	rule := &TimeWindowRule{}
	cfg := TimeWindowConfig{StartHour: 9, EndHour: 17, Days: []int{1}}

	ctx := contextAt(time.Date(2024, 6, 1, 3, 0, 0, 0, time.UTC))
	ctx.Signals.Clock = &signal.ClockSnapshot{Hour: 10, Weekday: 1}
	if result := rule.Evaluate(ctx, cfg); !result.Allowed {
		t.Fatalf("clock signal should take precedence, got: %s", result.Reason)
	}
}

func TestGasLimitRule(t *testing.T) {
	rule := &GasLimitRule{}
	cfg := GasLimitConfig{MaxGwei: 50}

	ctx := contextAt(time.Now().UTC())
	result := rule.Evaluate(ctx, cfg)
	if !result.Allowed {
		t.Fatalf("missing gas signal should allow, got: %s", result.Reason)
	}
	if result.Reason != "Gas signal unavailable, allowing by default" {
		t.Fatalf("unexpected reason: %s", result.Reason)
	}

	ctx.Signals.Gas = &signal.GasSnapshot{StandardGwei: 80}
	if result := rule.Evaluate(ctx, cfg); result.Allowed {
		t.Fatalf("80 gwei should exceed a 50 gwei limit, got: %s", result.Reason)
	}

	ctx.Signals.Gas = &signal.GasSnapshot{StandardGwei: 30}
	if result := rule.Evaluate(ctx, cfg); !result.Allowed {
		t.Fatalf("30 gwei should pass a 50 gwei limit, got: %s", result.Reason)
	}

	ctx.Signals.Gas = &signal.GasSnapshot{Err: "rpc timeout"}
	if result := rule.Evaluate(ctx, cfg); !result.Allowed {
		t.Fatalf("errored gas signal should allow, got: %s", result.Reason)
	}
}

func TestRecipientRule(t *testing.T) {
	rule := &RecipientRule{}
	whitelisted := "0x1111111111111111111111111111111111111111"
	other := "0x2222222222222222222222222222222222222222"

	ctx := contextAt(time.Now().UTC())
	cfg := RecipientConfig{Allowed: []string{whitelisted}}

	// Undecodable payload fails closed.
	ctx.Action = ProposedAction{Payload: []byte{0xde, 0xad, 0xbe, 0xef}}
	result := rule.Evaluate(ctx, cfg)
	if result.Allowed {
		t.Fatalf("undecodable payload should be denied, got: %s", result.Reason)
	}
	if result.Reason != "Unable to determine transaction recipient" {
		t.Fatalf("unexpected reason: %s", result.Reason)
	}

	ctx.Action = ProposedAction{Recipient: strings.ToUpper(whitelisted)}
	if result := rule.Evaluate(ctx, cfg); !result.Allowed {
		t.Fatalf("whitelist match should be case-insensitive, got: %s", result.Reason)
	}

	ctx.Action = ProposedAction{Recipient: other}
	if result := rule.Evaluate(ctx, cfg); result.Allowed {
		t.Fatalf("address outside whitelist should be denied, got: %s", result.Reason)
	}

	blockCfg := RecipientConfig{Blocked: []string{other}}
	ctx.Action = ProposedAction{Recipient: other}
	if result := rule.Evaluate(ctx, blockCfg); result.Allowed {
		t.Fatalf("blocked address should be denied, got: %s", result.Reason)
	}

	ctx.Action = ProposedAction{Recipient: whitelisted}
	if result := rule.Evaluate(ctx, RecipientConfig{}); !result.Allowed {
		t.Fatalf("empty config should not restrict recipients, got: %s", result.Reason)
	}
}

func TestCooldownRule(t *testing.T) {
	rule := &CooldownRule{}
	cfg := CooldownConfig{MinimumSeconds: 60}
	now := time.Date(2024, 6, 3, 10, 0, 0, 0, time.UTC)

	ctx := contextAt(now)
	result := rule.Evaluate(ctx, cfg)
	if !result.Allowed {
		t.Fatalf("first transaction should pass, got: %s", result.Reason)
	}
	if result.Reason != "First transaction - no cooldown required" {
		t.Fatalf("unexpected reason: %s", result.Reason)
	}

	last := now.Add(-30 * time.Second)
	ctx.LastExecution = &last
	result = rule.Evaluate(ctx, cfg)
	if result.Allowed {
		t.Fatalf("30s elapsed of a 60s cooldown should be denied, got: %s", result.Reason)
	}
	if result.Reason != "Cooldown active: 30s remaining" {
		t.Fatalf("unexpected reason: %s", result.Reason)
	}

	last = now.Add(-90 * time.Second)
	ctx.LastExecution = &last
	if result := rule.Evaluate(ctx, cfg); !result.Allowed {
		t.Fatalf("90s elapsed of a 60s cooldown should pass, got: %s", result.Reason)
	}
}

func TestCooldownRemainingFormat(t *testing.T) {
	cases := []struct {
		seconds float64
		want    string
	}{
		{30, "30s"},
		{59.2, "60s"},
		{90, "2m"},
		{3600, "1h"},
		{7300, "3h"},
	}
	for _, tc := range cases {
		if got := formatRemaining(tc.seconds); got != tc.want {
			t.Fatalf("formatRemaining(%g) = %q, want %q", tc.seconds, got, tc.want)
		}
	}
}

func TestSecurityPauseRule(t *testing.T) {
	rule := &SecurityPauseRule{}
	cfg := SecurityPauseConfig{PauseOnAnyAlert: true}
	ctx := contextAt(time.Now().UTC())

	result := rule.Evaluate(ctx, cfg)
	if !result.Allowed {
		t.Fatalf("missing telemetry should allow, got: %s", result.Reason)
	}
	if result.Reason != "Security monitoring unavailable" {
		t.Fatalf("unexpected reason: %s", result.Reason)
	}

	ctx.Signals.Telemetry = &signal.TelemetrySnapshot{}
	if result := rule.Evaluate(ctx, cfg); !result.Allowed {
		t.Fatalf("no alerts should allow, got: %s", result.Reason)
	}

	ctx.Signals.Telemetry = &signal.TelemetrySnapshot{
		Alerts: []signal.TelemetryAlert{
			{Severity: "high", Message: "velocity spike", IsActive: true},
		},
	}
	result = rule.Evaluate(ctx, cfg)
	if result.Allowed {
		t.Fatalf("active alert should pause execution, got: %s", result.Reason)
	}
	if !strings.Contains(result.Reason, "velocity spike") {
		t.Fatalf("reason should include the alert message: %s", result.Reason)
	}
}

func TestSecurityPauseSeverityFilter(t *testing.T) {
	rule := &SecurityPauseRule{}
	cfg := SecurityPauseConfig{Severities: []string{"critical"}}
	ctx := contextAt(time.Now().UTC())
	ctx.Signals.Telemetry = &signal.TelemetrySnapshot{
		Alerts: []signal.TelemetryAlert{
			{Severity: "low", Message: "minor anomaly", IsActive: true},
		},
	}
	if result := rule.Evaluate(ctx, cfg); !result.Allowed {
		t.Fatalf("low severity alert should not match a critical-only filter, got: %s", result.Reason)
	}

	ctx.Signals.Telemetry.Alerts = append(ctx.Signals.Telemetry.Alerts,
		signal.TelemetryAlert{Severity: "critical", Message: "exploit detected", IsActive: true})
	if result := rule.Evaluate(ctx, cfg); result.Allowed {
		t.Fatalf("critical alert should pause execution, got: %s", result.Reason)
	}
}

func TestDecodeTransfer(t *testing.T) {
	recipient := "0x00000000000000000000000000000000000000aa"
	payload := make([]byte, 0, 68)
	// transfer(address,uint256) selector.
	payload = append(payload, 0xa9, 0x05, 0x9c, 0xbb)
	addrWord := make([]byte, 32)
	copy(addrWord[12:], common.HexToAddress(recipient).Bytes())
	payload = append(payload, addrWord...)
	amountWord := make([]byte, 32)
	big.NewInt(50_000_000).FillBytes(amountWord)
	payload = append(payload, amountWord...)

	to, amount, ok := DecodeTransfer(payload)
	if !ok {
		t.Fatalf("expected payload to decode")
	}
	if !strings.EqualFold(to.Hex(), recipient) {
		t.Fatalf("decoded recipient %s, want %s", to.Hex(), recipient)
	}
	if amount.Cmp(big.NewInt(50_000_000)) != 0 {
		t.Fatalf("decoded amount %s, want 50000000", amount)
	}

	if _, _, ok := DecodeTransfer([]byte{0x01, 0x02}); ok {
		t.Fatalf("short payload should not decode")
	}
	if _, _, ok := DecodeTransfer(append([]byte{0xde, 0xad, 0xbe, 0xef}, addrWord...)); ok {
		t.Fatalf("foreign selector should not decode")
	}
}
