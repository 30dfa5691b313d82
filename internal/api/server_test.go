package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"DelegateGuard/internal/monitor"
	"DelegateGuard/internal/policy"
	"DelegateGuard/internal/policy/rules"
	"DelegateGuard/internal/signal"
	"DelegateGuard/internal/state"
)

const testPrincipal = "0x1111111111111111111111111111111111111111"

func newTestServer(t *testing.T) (*Server, *policy.MemoryStore, *state.MemoryTracker) {
	t.Helper()
	registry := rules.NewRegistry()
	store := policy.NewMemoryStore(policy.NewCompiler(registry))
	tracker := state.NewMemoryTracker()
	now := func() time.Time { return time.Date(2024, 6, 3, 10, 0, 0, 0, time.UTC) } // Monday
	fetcher := signal.NewFetcher(signal.WithClock(now))
	engine := policy.NewEngine(store, registry, fetcher, tracker, policy.WithEngineClock(now))
	mon := monitor.NewMonitor(monitor.WithThresholds(100, 3))
	return NewServer(":0", engine, store, tracker, mon, nil), store, tracker
}

func putPolicy(t *testing.T, srv *Server, doc *policy.Document) {
	t.Helper()
	body, _ := json.Marshal(doc)
	req := httptest.NewRequest(http.MethodPut, "/api/v1/policies/"+testPrincipal, bytes.NewReader(body))
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("put policy: status %d, body %s", rec.Code, rec.Body.String())
	}
}

func simpleDocument() *policy.Document {
	return &policy.Document{
		Version: policy.DocumentVersion,
		Name:    "API Test Policy",
		Limits: policy.Limits{
			Amount:   "100",
			Currency: "USDC",
			Period:   policy.PeriodDaily,
		},
	}
}

func TestPolicyRoundTrip(t *testing.T) {
	srv, _, _ := newTestServer(t)
	putPolicy(t, srv, simpleDocument())

	req := httptest.NewRequest(http.MethodGet, "/api/v1/policies/"+testPrincipal, nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("get policy: status %d", rec.Code)
	}
	var doc policy.Document
	if err := json.Unmarshal(rec.Body.Bytes(), &doc); err != nil {
		t.Fatalf("decode policy: %v", err)
	}
	if doc.Name != "API Test Policy" {
		t.Fatalf("unexpected policy name %q", doc.Name)
	}
}

func TestGetPolicyNotFound(t *testing.T) {
	srv, _, _ := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/api/v1/policies/0x2222222222222222222222222222222222222222", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestPutPolicyValidationError(t *testing.T) {
	srv, _, _ := newTestServer(t)
	doc := simpleDocument()
	doc.Limits.Amount = "-5"
	body, _ := json.Marshal(doc)
	req := httptest.NewRequest(http.MethodPut, "/api/v1/policies/"+testPrincipal, bytes.NewReader(body))
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("invalid document should return 400, got %d", rec.Code)
	}
	var resp struct {
		Fields []policy.FieldError `json:"fields"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode validation response: %v", err)
	}
	if len(resp.Fields) == 0 {
		t.Fatalf("validation response should list failing fields")
	}
}

func TestEvaluateEndpoint(t *testing.T) {
	srv, _, _ := newTestServer(t)
	putPolicy(t, srv, simpleDocument())

	body, _ := json.Marshal(EvaluateRequest{
		Principal: testPrincipal,
		AgentID:   "transfer-bot",
		Action: ActionRequest{
			Target:      "0x3333333333333333333333333333333333333333",
			TokenAmount: "50000000",
			Recipient:   "0x2222222222222222222222222222222222222222",
		},
	})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/evaluate", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("evaluate: status %d, body %s", rec.Code, rec.Body.String())
	}
	var result policy.EvaluationResult
	if err := json.Unmarshal(rec.Body.Bytes(), &result); err != nil {
		t.Fatalf("decode result: %v", err)
	}
	if !result.Allowed {
		t.Fatalf("expected allow, got %s: %s", result.BlockingPolicy, result.BlockingReason)
	}
	if len(result.Decisions) != 1 {
		t.Fatalf("expected one decision, got %d", len(result.Decisions))
	}
}

func TestEvaluateDeniesOverLimit(t *testing.T) {
	srv, _, _ := newTestServer(t)
	putPolicy(t, srv, simpleDocument())

	body, _ := json.Marshal(EvaluateRequest{
		Principal: testPrincipal,
		Action:    ActionRequest{TokenAmount: "150000000"},
	})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/evaluate", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	var result policy.EvaluationResult
	if err := json.Unmarshal(rec.Body.Bytes(), &result); err != nil {
		t.Fatalf("decode result: %v", err)
	}
	if result.Allowed {
		t.Fatalf("150 USDC should exceed the 100 limit")
	}
	if result.BlockingPolicy != "Max Transaction Amount" {
		t.Fatalf("unexpected blocking policy %q", result.BlockingPolicy)
	}
}

func TestRecordExecutionFeedsStateAndMonitor(t *testing.T) {
	srv, _, tracker := newTestServer(t)

	record := func() {
		body, _ := json.Marshal(RecordExecutionRequest{
			Principal: testPrincipal,
			TxHash:    "0xdead",
		})
		req := httptest.NewRequest(http.MethodPost, "/api/v1/executions", bytes.NewReader(body))
		rec := httptest.NewRecorder()
		srv.Handler().ServeHTTP(rec, req)
		if rec.Code != http.StatusCreated {
			t.Fatalf("record execution: status %d, body %s", rec.Code, rec.Body.String())
		}
	}

	record()
	last, err := tracker.LastExecution(httptest.NewRequest(http.MethodGet, "/", nil).Context(), testPrincipal)
	if err != nil || last == nil {
		t.Fatalf("tracker should have recorded the execution, err=%v", err)
	}

	// The test monitor alerts after three executions per principal.
	record()
	record()

	req := httptest.NewRequest(http.MethodGet, "/api/v1/alerts", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("alerts: status %d", rec.Code)
	}
	var alerts []monitor.SecurityAlert
	if err := json.Unmarshal(rec.Body.Bytes(), &alerts); err != nil {
		t.Fatalf("decode alerts: %v", err)
	}
	if len(alerts) != 1 {
		t.Fatalf("expected one velocity alert, got %d", len(alerts))
	}
}

func TestTemplatesEndpoint(t *testing.T) {
	srv, _, _ := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/api/v1/templates", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("templates: status %d", rec.Code)
	}
	var templates []policy.Template
	if err := json.Unmarshal(rec.Body.Bytes(), &templates); err != nil {
		t.Fatalf("decode templates: %v", err)
	}
	if len(templates) != 4 {
		t.Fatalf("expected 4 built-in templates, got %d", len(templates))
	}
}
