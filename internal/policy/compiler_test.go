package policy

import (
	"reflect"
	"testing"

	"DelegateGuard/internal/policy/rules"
)

func newTestRegistry() *rules.Registry {
	return rules.NewRegistry()
}

func fullDocument() *Document {
	return &Document{
		Version: DocumentVersion,
		Name:    "Full Policy",
		Limits: Limits{
			Amount:   "250",
			Currency: "USDC",
			Period:   PeriodDaily,
		},
		Conditions: &Conditions{
			TimeWindow: &TimeWindowCondition{
				Days:      []int{1, 2, 3, 4, 5},
				StartHour: 9,
				EndHour:   17,
			},
			Signals: &SignalsCondition{
				Gas:      &GasCondition{MaxGwei: 40},
				Security: &SecurityCondition{},
			},
			Recipients: &RecipientsCondition{
				Allowed: []string{"0x1111111111111111111111111111111111111111"},
			},
			Cooldown: &CooldownCondition{Seconds: 300},
		},
	}
}

func TestCompileCanonicalOrder(t *testing.T) {
	compiler := NewCompiler(newTestRegistry())
	compiled, err := compiler.Compile(fullDocument())
	if err != nil {
		t.Fatalf("compile: %v", err)
	}

	want := []string{
		rules.TypeMaxAmount,
		rules.TypeTimeWindow,
		rules.TypeGasLimit,
		rules.TypeSecurityPause,
		rules.TypeRecipient,
		rules.TypeCooldown,
	}
	got := make([]string, 0, len(compiled.Rules))
	for _, inst := range compiled.Rules {
		got = append(got, inst.Type)
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("rule order = %v, want %v", got, want)
	}
}

func TestCompileIsDeterministic(t *testing.T) {
	compiler := NewCompiler(newTestRegistry())
	first, err := compiler.Compile(fullDocument())
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	second, err := compiler.Compile(fullDocument())
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	if !reflect.DeepEqual(first, second) {
		t.Fatalf("compiling the same document twice must yield identical output")
	}
}

func TestCompileMinimalDocument(t *testing.T) {
	compiler := NewCompiler(newTestRegistry())
	compiled, err := compiler.Compile(validDocument())
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	if len(compiled.Rules) != 1 {
		t.Fatalf("document without conditions should compile to the amount rule only, got %d rules", len(compiled.Rules))
	}
	cfg, ok := compiled.Rules[0].Config.(rules.MaxAmountConfig)
	if !ok {
		t.Fatalf("unexpected config type %T", compiled.Rules[0].Config)
	}
	if cfg.MaxAmount != 100 || cfg.Decimals != 6 {
		t.Fatalf("unexpected amount config: %+v", cfg)
	}
}

func TestCompileTokenDecimals(t *testing.T) {
	compiler := NewCompiler(newTestRegistry())
	doc := validDocument()
	doc.Limits.Currency = "DAI"
	compiled, err := compiler.Compile(doc)
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	cfg := compiled.Rules[0].Config.(rules.MaxAmountConfig)
	if cfg.Decimals != 18 {
		t.Fatalf("DAI should compile with 18 decimals, got %d", cfg.Decimals)
	}
}

func TestCompileRejectsInvalidDocument(t *testing.T) {
	compiler := NewCompiler(newTestRegistry())
	doc := validDocument()
	doc.Limits.Amount = "-1"
	if _, err := compiler.Compile(doc); err == nil {
		t.Fatalf("invalid document must not compile")
	}
}

func TestCompileSecurityDefaults(t *testing.T) {
	compiler := NewCompiler(newTestRegistry())
	compiled, err := compiler.Compile(fullDocument())
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	var sec rules.SecurityPauseConfig
	found := false
	for _, inst := range compiled.Rules {
		if inst.Type == rules.TypeSecurityPause {
			sec = inst.Config.(rules.SecurityPauseConfig)
			found = true
		}
	}
	if !found {
		t.Fatalf("security condition should compile to a security-pause rule")
	}
	if !sec.PauseOnAnyAlert {
		t.Fatalf("zero maxAlertCount should pause on any alert")
	}
	if !reflect.DeepEqual(sec.Severities, []string{"high", "critical"}) {
		t.Fatalf("unexpected default severities: %v", sec.Severities)
	}
}
