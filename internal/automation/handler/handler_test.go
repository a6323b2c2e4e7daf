package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"crm_pipeline_backend/internal/automation/domain"
	"crm_pipeline_backend/internal/automation/repository"
	"crm_pipeline_backend/internal/automation/service"
	"crm_pipeline_backend/internal/automation/transport"
	leaddomain "crm_pipeline_backend/internal/leads/domain"
	"crm_pipeline_backend/platform/httpkit"
	"crm_pipeline_backend/platform/validator"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type memoryRules struct {
	rules map[uuid.UUID]domain.Rule
}

func (m *memoryRules) ListRules(ctx context.Context, tenantID uuid.UUID) ([]domain.Rule, error) {
	var out []domain.Rule
	for _, r := range m.rules {
		if r.TenantID == tenantID {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *memoryRules) CreateRule(ctx context.Context, rule domain.Rule) (domain.Rule, error) {
	rule.CreatedAt = time.Now()
	rule.UpdatedAt = rule.CreatedAt
	m.rules[rule.ID] = rule
	return rule, nil
}

func (m *memoryRules) SetActive(ctx context.Context, tenantID, ruleID uuid.UUID, active bool) (domain.Rule, error) {
	r, ok := m.rules[ruleID]
	if !ok || r.TenantID != tenantID {
		return domain.Rule{}, repository.ErrRuleNotFound
	}
	r.IsActive = active
	m.rules[ruleID] = r
	return r, nil
}

func (m *memoryRules) DeleteRule(ctx context.Context, tenantID, ruleID uuid.UUID) error {
	r, ok := m.rules[ruleID]
	if !ok || r.TenantID != tenantID {
		return repository.ErrRuleNotFound
	}
	delete(m.rules, ruleID)
	return nil
}

type recordingRunner struct {
	tenantID uuid.UUID
	event    *domain.StatusChangeEvent
	calls    int
}

func (r *recordingRunner) Run(ctx context.Context, tenantID uuid.UUID, event *domain.StatusChangeEvent) (domain.RunSummary, error) {
	r.calls++
	r.tenantID = tenantID
	r.event = event
	summary := domain.RunSummary{Results: []domain.RuleResult{}}
	summary.Add(domain.RuleResult{RuleName: "Follow up", LeadsProcessed: 2, ActionsExecuted: 2, Errors: []string{}})
	return summary, nil
}

type testServer struct {
	engine   *gin.Engine
	rules    *memoryRules
	runner   *recordingRunner
	tenantID uuid.UUID
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	tenantID := uuid.New()
	rules := &memoryRules{rules: map[uuid.UUID]domain.Rule{}}
	runner := &recordingRunner{}

	engine := gin.New()
	group := engine.Group("/automations", func(c *gin.Context) {
		c.Set(httpkit.ContextUserIDKey, uuid.New())
		c.Set(httpkit.ContextTenantIDKey, tenantID)
		c.Next()
	})
	New(service.New(rules, runner), validator.New()).RegisterRoutes(group)

	return &testServer{engine: engine, rules: rules, runner: runner, tenantID: tenantID}
}

func (s *testServer) do(method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	s.engine.ServeHTTP(rec, req)
	return rec
}

func (s *testServer) seed(name string) domain.Rule {
	rule := domain.Rule{
		ID:       uuid.New(),
		TenantID: s.tenantID,
		Name:     name,
		IsActive: true,
		Trigger:  domain.NoInteractionTrigger{Days: 7},
		Action:   domain.CreateTaskAction{Title: "Call back", Priority: "high"},
	}
	s.rules.rules[rule.ID] = rule
	return rule
}

func TestCreateRule(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(http.MethodPost, "/automations", `{
		"name": "Stale proposals",
		"triggerType": "time_in_status",
		"triggerConfig": {"status": "proposal", "days": 5},
		"actionType": "create_task",
		"actionConfig": {"title": "Chase proposal", "days_offset": 1}
	}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}

	var resp transport.RuleResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.TriggerType != "time_in_status" || resp.ActionType != "create_task" || !resp.IsActive {
		t.Errorf("response = %+v", resp)
	}

	stored := s.rules.rules[resp.ID]
	trigger, ok := stored.Trigger.(domain.TimeInStatusTrigger)
	if !ok || trigger.Status != leaddomain.StatusProposal || trigger.Days != 5 {
		t.Errorf("stored trigger = %#v", stored.Trigger)
	}
	if task := stored.Action.(domain.CreateTaskAction); task.Priority != "medium" {
		t.Errorf("default priority = %q, want medium", task.Priority)
	}
}

func TestCreateRuleRejectsInvalidConfig(t *testing.T) {
	s := newTestServer(t)

	tests := []struct {
		name string
		body string
	}{
		{name: "missing name", body: `{"triggerType":"no_interaction","triggerConfig":{"days":3},"actionType":"create_task"}`},
		{name: "unknown trigger", body: `{"name":"x","triggerType":"weekly","actionType":"create_task"}`},
		{name: "zero days", body: `{"name":"x","triggerType":"no_interaction","triggerConfig":{"days":0},"actionType":"create_task"}`},
		{name: "bad priority", body: `{"name":"x","triggerType":"no_interaction","triggerConfig":{"days":3},"actionType":"create_task","actionConfig":{"priority":"soon"}}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := s.do(http.MethodPost, "/automations", tt.body)
			if rec.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400; body = %s", rec.Code, rec.Body.String())
			}
		})
	}
	if len(s.rules.rules) != 0 {
		t.Errorf("rejected requests stored %d rules", len(s.rules.rules))
	}
}

func TestListToggleDelete(t *testing.T) {
	s := newTestServer(t)
	rule := s.seed("Nudge")

	rec := s.do(http.MethodGet, "/automations", "")
	var list transport.RuleListResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &list); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if list.Total != 1 || list.Items[0].ID != rule.ID {
		t.Fatalf("list = %+v", list)
	}

	rec = s.do(http.MethodPatch, "/automations/"+rule.ID.String()+"/active", `{"isActive":false}`)
	if rec.Code != http.StatusOK || s.rules.rules[rule.ID].IsActive {
		t.Fatalf("toggle status = %d, active = %v", rec.Code, s.rules.rules[rule.ID].IsActive)
	}

	rec = s.do(http.MethodDelete, "/automations/"+rule.ID.String(), "")
	if rec.Code != http.StatusNoContent {
		t.Fatalf("delete status = %d", rec.Code)
	}
	rec = s.do(http.MethodDelete, "/automations/"+rule.ID.String(), "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("second delete status = %d, want 404", rec.Code)
	}
}

func TestSetActiveRequiresFlag(t *testing.T) {
	s := newTestServer(t)
	rule := s.seed("Nudge")

	rec := s.do(http.MethodPatch, "/automations/"+rule.ID.String()+"/active", `{}`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestRunWithoutEvent(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(http.MethodPost, "/automations/run", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var summary domain.RunSummary
	if err := json.Unmarshal(rec.Body.Bytes(), &summary); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if summary.TotalActionsExecuted != 2 || s.runner.event != nil || s.runner.tenantID != s.tenantID {
		t.Errorf("summary = %+v, event = %v", summary, s.runner.event)
	}
}

func TestRunWithEvent(t *testing.T) {
	s := newTestServer(t)
	leadID := uuid.New()

	rec := s.do(http.MethodPost, "/automations/run", `{"event":{"leadId":"`+leadID.String()+`","oldStatus":"negotiating","newStatus":"Won"}}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	got := s.runner.event
	if got == nil || got.LeadID != leadID || got.NewStatus != leaddomain.StatusWon || got.OldStatus != leaddomain.StatusNegotiating {
		t.Errorf("event = %+v", got)
	}

	rec = s.do(http.MethodPost, "/automations/run", `{"event":{"leadId":"`+leadID.String()+`","newStatus":"archived"}}`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("unknown status code = %d, want 400", rec.Code)
	}
}
