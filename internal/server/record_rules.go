package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sort"
	"strings"
	"sync"

	"github.com/google/cel-go/cel"

	"github.com/hazardtrack/dts/internal/routing"
)

// RecordRule is a tenant-authored CEL check run against record payloads.
// Expr must evaluate to bool over a `record` map; a false result reports
// Message under the rule's field key.
type RecordRule struct {
	ID       string `json:"id"`
	Entity   string `json:"entity"`
	FieldKey string `json:"fieldKey"`
	Priority int    `json:"priority"`
	Expr     string `json:"expr"`
	Message  string `json:"message"`
	Enabled  bool   `json:"enabled"`
}

type RuleStore interface {
	ListByEntity(ctx context.Context, tenantID string, entity string) ([]RecordRule, error)
}

type ruleViolation struct {
	RuleID   string `json:"ruleId"`
	FieldKey string `json:"fieldKey"`
	Message  string `json:"message"`
}

type rulesEvaluateRequest struct {
	Entity string         `json:"entity"`
	Record map[string]any `json:"record"`
}

type rulesEvaluateResponse struct {
	OK         bool            `json:"ok"`
	Evaluated  int             `json:"evaluated"`
	Violations []ruleViolation `json:"violations"`
}

var newRecordRulesCELEnv = func() (*cel.Env, error) {
	return cel.NewEnv(cel.Variable("record", cel.MapType(cel.StringType, cel.DynType)))
}

var newRecordRulesCELProgram = func(env *cel.Env, ast *cel.Ast) (cel.Program, error) {
	return env.Program(ast)
}

var recordRuleProgramCache sync.Map

func loadOrCompileRuleProgram(expr string) (cel.Program, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return nil, errors.New("expression required")
	}
	if cached, ok := recordRuleProgramCache.Load(expr); ok {
		return cached.(cel.Program), nil
	}
	env, err := newRecordRulesCELEnv()
	if err != nil {
		return nil, err
	}
	ast, issues := env.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return nil, issues.Err()
	}
	if ast.OutputType() != cel.BoolType {
		return nil, errors.New("expression output type mismatch")
	}
	program, err := newRecordRulesCELProgram(env, ast)
	if err != nil {
		return nil, err
	}
	recordRuleProgramCache.Store(expr, program)
	return program, nil
}

func evalRecordRule(rule RecordRule, record map[string]any) (bool, error) {
	program, err := loadOrCompileRuleProgram(rule.Expr)
	if err != nil {
		return false, err
	}
	out, _, err := program.Eval(map[string]any{"record": record})
	if err != nil {
		return false, err
	}
	pass, ok := out.Value().(bool)
	if !ok {
		return false, errors.New("expression output type mismatch")
	}
	return pass, nil
}

// evaluateRecordRules runs every enabled rule for the entity, in priority
// order then by id so repeated calls report violations in a stable order.
// A rule that fails to compile or evaluate is an error, not a violation.
func evaluateRecordRules(rules []RecordRule, record map[string]any) (int, []ruleViolation, error) {
	sort.Slice(rules, func(i, j int) bool {
		if rules[i].Priority != rules[j].Priority {
			return rules[i].Priority > rules[j].Priority
		}
		return rules[i].ID < rules[j].ID
	})

	evaluated := 0
	var violations []ruleViolation
	for _, rule := range rules {
		if !rule.Enabled {
			continue
		}
		pass, err := evalRecordRule(rule, record)
		if err != nil {
			return evaluated, nil, err
		}
		evaluated++
		if !pass {
			violations = append(violations, ruleViolation{
				RuleID:   rule.ID,
				FieldKey: rule.FieldKey,
				Message:  rule.Message,
			})
		}
	}
	return evaluated, violations, nil
}

func handleRulesEvaluateAPI(w http.ResponseWriter, r *http.Request, _ reqCtx, store RuleStore) {
	tenant, ok := currentTenant(r.Context())
	if !ok {
		routing.WriteError(w, r, routing.RouteClassPublicAPI, http.StatusInternalServerError, "tenant_missing", "tenant missing")
		return
	}
	if r.Method != http.MethodPost {
		routing.WriteError(w, r, routing.RouteClassPublicAPI, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
		return
	}

	var req rulesEvaluateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		routing.WriteError(w, r, routing.RouteClassPublicAPI, http.StatusBadRequest, "bad_json", "bad json")
		return
	}
	req.Entity = strings.TrimSpace(req.Entity)
	if req.Entity == "" || req.Record == nil {
		routing.WriteError(w, r, routing.RouteClassPublicAPI, http.StatusBadRequest, "invalid_request", "entity/record required")
		return
	}

	rules, err := store.ListByEntity(r.Context(), tenant.ID, req.Entity)
	if err != nil {
		routing.WriteError(w, r, routing.RouteClassPublicAPI, http.StatusInternalServerError, "internal_error", "internal error")
		return
	}

	evaluated, violations, err := evaluateRecordRules(rules, req.Record)
	if err != nil {
		routing.WriteError(w, r, routing.RouteClassPublicAPI, http.StatusUnprocessableEntity, "rule_error", "rule evaluation failed")
		return
	}
	if violations == nil {
		violations = []ruleViolation{}
	}
	routing.WriteJSON(w, http.StatusOK, rulesEvaluateResponse{
		OK:         len(violations) == 0,
		Evaluated:  evaluated,
		Violations: violations,
	})
}

type rulePGStore struct {
	pool pgBeginner
}

func newRulePGStore(pool pgBeginner) RuleStore {
	return &rulePGStore{pool: pool}
}

func (s *rulePGStore) ListByEntity(ctx context.Context, tenantID string, entity string) ([]RecordRule, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback(context.Background()) }()

	if _, err := tx.Exec(ctx, `SELECT set_config('app.current_tenant', $1, true);`, tenantID); err != nil {
		return nil, err
	}

	rows, err := tx.Query(ctx, `
SELECT id::text, entity, field_key, priority, expr, message, enabled
FROM record_rules
WHERE country_accounts_id = $1::uuid AND entity = $2
`, tenantID, entity)
	if err != nil {
		return nil, badRequestFromPg(err)
	}
	defer rows.Close()

	var out []RecordRule
	for rows.Next() {
		var rule RecordRule
		if err := rows.Scan(&rule.ID, &rule.Entity, &rule.FieldKey, &rule.Priority, &rule.Expr, &rule.Message, &rule.Enabled); err != nil {
			return nil, err
		}
		out = append(out, rule)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return out, nil
}

type ruleMemoryStore struct {
	rules map[string][]RecordRule
}

func newRuleMemoryStore(rules []RecordRule) RuleStore {
	store := &ruleMemoryStore{rules: map[string][]RecordRule{}}
	for _, rule := range rules {
		key := rule.Entity
		store.rules[key] = append(store.rules[key], rule)
	}
	return store
}

func (s *ruleMemoryStore) ListByEntity(_ context.Context, _ string, entity string) ([]RecordRule, error) {
	return append([]RecordRule(nil), s.rules[entity]...), nil
}
