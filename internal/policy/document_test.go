package policy

import (
	"strings"
	"testing"
)

func validDocument() *Document {
	return &Document{
		Version: DocumentVersion,
		Name:    "Test Policy",
		Limits: Limits{
			Amount:   "100",
			Currency: "USDC",
			Period:   PeriodDaily,
		},
	}
}

func fieldMessages(err *ValidationError) string {
	if err == nil {
		return ""
	}
	parts := make([]string, 0, len(err.Fields))
	for _, f := range err.Fields {
		parts = append(parts, f.Field)
	}
	return strings.Join(parts, ",")
}

func TestValidateAcceptsMinimalDocument(t *testing.T) {
	if err := validDocument().Validate(); err != nil {
		t.Fatalf("minimal document should validate, got: %v", err)
	}
}

func TestValidateRejectsBadVersion(t *testing.T) {
	doc := validDocument()
	doc.Version = "2023-01-01"
	err := doc.Validate()
	if err == nil || !strings.Contains(fieldMessages(err), "version") {
		t.Fatalf("expected a version error, got: %v", err)
	}
}

func TestValidateRejectsBadAmounts(t *testing.T) {
	for _, amount := range []string{"", "abc", "-5", "0"} {
		doc := validDocument()
		doc.Limits.Amount = amount
		err := doc.Validate()
		if err == nil || !strings.Contains(fieldMessages(err), "limits.amount") {
			t.Fatalf("amount %q should be rejected, got: %v", amount, err)
		}
	}
}

func TestValidateRejectsBadPeriod(t *testing.T) {
	doc := validDocument()
	doc.Limits.Period = "hourly"
	err := doc.Validate()
	if err == nil || !strings.Contains(fieldMessages(err), "limits.period") {
		t.Fatalf("expected a period error, got: %v", err)
	}
}

func TestValidateRejectsZeroLengthTimeWindow(t *testing.T) {
	doc := validDocument()
	doc.Conditions = &Conditions{
		TimeWindow: &TimeWindowCondition{Days: []int{1}, StartHour: 9, EndHour: 9},
	}
	err := doc.Validate()
	if err == nil || !strings.Contains(fieldMessages(err), "conditions.timeWindow") {
		t.Fatalf("zero-length window should be rejected, got: %v", err)
	}
}

func TestValidateRejectsDuplicateDays(t *testing.T) {
	doc := validDocument()
	doc.Conditions = &Conditions{
		TimeWindow: &TimeWindowCondition{Days: []int{1, 1}, StartHour: 9, EndHour: 17},
	}
	err := doc.Validate()
	if err == nil || !strings.Contains(fieldMessages(err), "conditions.timeWindow.days") {
		t.Fatalf("duplicate days should be rejected, got: %v", err)
	}
}

func TestValidateRejectsOverlappingRecipientLists(t *testing.T) {
	doc := validDocument()
	doc.Conditions = &Conditions{
		Recipients: &RecipientsCondition{
			Allowed: []string{"0x1111111111111111111111111111111111111111"},
			Blocked: []string{"0x2222222222222222222222222222222222222222"},
		},
	}
	err := doc.Validate()
	if err == nil || !strings.Contains(fieldMessages(err), "conditions.recipients") {
		t.Fatalf("allowed+blocked together should be rejected, got: %v", err)
	}
}

func TestValidateRejectsMalformedAddress(t *testing.T) {
	doc := validDocument()
	doc.Conditions = &Conditions{
		Recipients: &RecipientsCondition{Allowed: []string{"not-an-address"}},
	}
	err := doc.Validate()
	if err == nil || !strings.Contains(fieldMessages(err), "conditions.recipients.allowed") {
		t.Fatalf("malformed address should be rejected, got: %v", err)
	}
}

func TestValidateCollectsAllFailures(t *testing.T) {
	doc := validDocument()
	doc.Name = ""
	doc.Limits.Amount = "abc"
	doc.Limits.Period = "hourly"
	err := doc.Validate()
	if err == nil || len(err.Fields) < 3 {
		t.Fatalf("expected every failure to be reported, got: %v", err)
	}
}

func TestBuiltinTemplatesCompile(t *testing.T) {
	compiler := NewCompiler(newTestRegistry())
	for _, tpl := range Templates() {
		doc := tpl.Policy
		if _, err := compiler.Compile(&doc); err != nil {
			t.Fatalf("template %q should compile: %v", tpl.Name, err)
		}
	}
}
