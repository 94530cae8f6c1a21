package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestEvaluateRecordRulesReportsViolations(t *testing.T) {
	rules := []RecordRule{
		{ID: "r1", Entity: "disaster-events", FieldKey: "durationDays", Priority: 1,
			Expr: `!("durationDays" in record) || double(record["durationDays"]) >= 0.0`, Message: "must be >= 0", Enabled: true},
		{ID: "r2", Entity: "disaster-events", FieldKey: "glide", Priority: 2,
			Expr: `"glide" in record`, Message: "glide required", Enabled: true},
	}

	evaluated, violations, err := evaluateRecordRules(rules, map[string]any{"durationDays": 5.0})
	if err != nil {
		t.Fatalf("evaluateRecordRules: %v", err)
	}
	if evaluated != 2 {
		t.Fatalf("evaluated = %d", evaluated)
	}
	if len(violations) != 1 || violations[0].RuleID != "r2" {
		t.Fatalf("violations = %+v", violations)
	}
}

func TestEvaluateRecordRulesSkipsDisabled(t *testing.T) {
	rules := []RecordRule{
		{ID: "r1", Expr: `false`, Message: "never", Enabled: false},
	}
	evaluated, violations, err := evaluateRecordRules(rules, map[string]any{})
	if err != nil || evaluated != 0 || len(violations) != 0 {
		t.Fatalf("evaluated=%d violations=%v err=%v", evaluated, violations, err)
	}
}

func TestEvaluateRecordRulesStableOrder(t *testing.T) {
	rules := []RecordRule{
		{ID: "b", Priority: 1, Expr: `false`, Message: "b", Enabled: true},
		{ID: "a", Priority: 1, Expr: `false`, Message: "a", Enabled: true},
		{ID: "c", Priority: 9, Expr: `false`, Message: "c", Enabled: true},
	}
	_, violations, err := evaluateRecordRules(rules, map[string]any{})
	if err != nil {
		t.Fatalf("evaluateRecordRules: %v", err)
	}
	got := []string{violations[0].RuleID, violations[1].RuleID, violations[2].RuleID}
	want := []string{"c", "a", "b"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("order = %v, want %v", got, want)
		}
	}
}

func TestLoadOrCompileRuleProgramRejectsNonBool(t *testing.T) {
	if _, err := loadOrCompileRuleProgram(`1 + 1`); err == nil {
		t.Fatal("expected output type error")
	}
}

func TestLoadOrCompileRuleProgramRejectsBadSyntax(t *testing.T) {
	if _, err := loadOrCompileRuleProgram(`record[`); err == nil {
		t.Fatal("expected compile error")
	}
}

func TestHandleRulesEvaluateAPI(t *testing.T) {
	store := newRuleMemoryStore([]RecordRule{
		{ID: "r1", Entity: "assets", FieldKey: "name", Priority: 1,
			Expr: `"name" in record && string(record["name"]) != ""`, Message: "name required", Enabled: true},
	})

	r := tenantRequest(http.MethodPost, "/en/api/rules/evaluate", `{"entity":"assets","record":{"name":""}}`)
	rec := httptest.NewRecorder()
	handleRulesEvaluateAPI(rec, r, testReqCtx("en"), store)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	var out rulesEvaluateResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out.OK || len(out.Violations) != 1 || out.Violations[0].Message != "name required" {
		t.Fatalf("unexpected response: %+v", out)
	}
}

func TestHandleRulesEvaluateAPIRequiresEntity(t *testing.T) {
	store := newRuleMemoryStore(nil)

	r := tenantRequest(http.MethodPost, "/en/api/rules/evaluate", `{"record":{}}`)
	rec := httptest.NewRecorder()
	handleRulesEvaluateAPI(rec, r, testReqCtx("en"), store)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", rec.Code)
	}
}
