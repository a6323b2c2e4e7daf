package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"crm_pipeline_backend/internal/automation/domain"
	"crm_pipeline_backend/internal/events"
	leaddomain "crm_pipeline_backend/internal/leads/domain"
	leadrepo "crm_pipeline_backend/internal/leads/repository"
	"crm_pipeline_backend/platform/apperr"
	"crm_pipeline_backend/platform/logger"

	"github.com/google/uuid"
)

var testNow = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

type ruleRun struct {
	ruleID  uuid.UUID
	actions int
}

type fakeRules struct {
	mu            sync.Mutex
	rules         map[uuid.UUID][]domain.Rule
	listErr       error
	runs          []ruleRun
	tasks         []domain.Task
	notifications []domain.Notification
	instances     map[uuid.UUID]domain.MessagingInstance
}

func (f *fakeRules) ListActiveRules(ctx context.Context, tenantID uuid.UUID) ([]domain.Rule, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	var out []domain.Rule
	for _, r := range f.rules[tenantID] {
		if r.IsActive {
			out = append(out, r)
		}
	}
	return out, nil
}

func (f *fakeRules) ListTenantsWithActiveRules(ctx context.Context) ([]uuid.UUID, error) {
	var out []uuid.UUID
	for id := range f.rules {
		out = append(out, id)
	}
	return out, nil
}

func (f *fakeRules) RecordRuleRun(ctx context.Context, tenantID, ruleID uuid.UUID, actions int, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.runs = append(f.runs, ruleRun{ruleID: ruleID, actions: actions})
	return nil
}

func (f *fakeRules) InsertTask(ctx context.Context, task domain.Task) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tasks = append(f.tasks, task)
	return nil
}

func (f *fakeRules) InsertNotification(ctx context.Context, n domain.Notification) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.notifications = append(f.notifications, n)
	return nil
}

func (f *fakeRules) GetMessagingInstance(ctx context.Context, tenantID, instanceID uuid.UUID) (domain.MessagingInstance, error) {
	inst, ok := f.instances[instanceID]
	if !ok || inst.TenantID != tenantID {
		return domain.MessagingInstance{}, errors.New("instance not found")
	}
	return inst, nil
}

type customField struct {
	leadID     uuid.UUID
	key, value string
}

type fakeLeads struct {
	mu           sync.Mutex
	leads        map[uuid.UUID]leaddomain.Lead
	activities   []leaddomain.Activity
	customFields []customField
	staleOnce    bool
}

func newFakeLeads(leads ...leaddomain.Lead) *fakeLeads {
	f := &fakeLeads{leads: make(map[uuid.UUID]leaddomain.Lead)}
	for _, l := range leads {
		f.leads[l.ID] = l
	}
	return f
}

func (f *fakeLeads) GetByID(ctx context.Context, tenantID, id uuid.UUID) (leaddomain.Lead, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	l, ok := f.leads[id]
	if !ok || l.TenantID != tenantID {
		return leaddomain.Lead{}, leadrepo.ErrNotFound
	}
	return l.Clone(), nil
}

func (f *fakeLeads) ListPage(ctx context.Context, tenantID uuid.UUID, filter leaddomain.Filter, offset, limit int) ([]leaddomain.Lead, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []leaddomain.Lead
	for _, l := range f.leads {
		if l.TenantID == tenantID {
			out = append(out, l.Clone())
		}
	}
	if offset >= len(out) {
		return nil, nil
	}
	return out[offset:min(offset+limit, len(out))], nil
}

func (f *fakeLeads) Update(ctx context.Context, tenantID, id uuid.UUID, expectedVersion int64, patch leaddomain.Patch) (leaddomain.Lead, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	l, ok := f.leads[id]
	if !ok || l.TenantID != tenantID {
		return leaddomain.Lead{}, leadrepo.ErrNotFound
	}
	if f.staleOnce {
		f.staleOnce = false
		l.Version++
		f.leads[id] = l
	}
	if l.Version != expectedVersion {
		return leaddomain.Lead{}, leadrepo.ErrStaleVersion
	}
	updated := patch.Apply(l)
	updated.Version++
	f.leads[id] = updated
	return updated.Clone(), nil
}

func (f *fakeLeads) RecordActivity(ctx context.Context, activity leaddomain.Activity) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.activities = append(f.activities, activity)
	return nil
}

func (f *fakeLeads) UpsertCustomField(ctx context.Context, tenantID, leadID uuid.UUID, key, value string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.customFields = append(f.customFields, customField{leadID: leadID, key: key, value: value})
	return nil
}

type sentMessage struct {
	instance, number, text string
}

type fakeSender struct {
	mu     sync.Mutex
	sent   []sentMessage
	failOn string
}

func (f *fakeSender) SendText(ctx context.Context, instanceName, token, number, text string) error {
	if number == f.failOn {
		return errors.New("gateway returned 500")
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, sentMessage{instance: instanceName, number: number, text: text})
	return nil
}

type harness struct {
	tenantID uuid.UUID
	rules    *fakeRules
	leads    *fakeLeads
	sender   *fakeSender
	bus      *events.InMemoryBus
	eval     *Evaluator
}

func newHarness(leads ...leaddomain.Lead) *harness {
	log := logger.Discard()
	h := &harness{
		tenantID: uuid.New(),
		rules:    &fakeRules{rules: make(map[uuid.UUID][]domain.Rule), instances: make(map[uuid.UUID]domain.MessagingInstance)},
		sender:   &fakeSender{},
		bus:      events.NewInMemoryBus(log),
	}
	for i := range leads {
		if leads[i].TenantID == uuid.Nil {
			leads[i].TenantID = h.tenantID
		}
	}
	h.leads = newFakeLeads(leads...)
	h.eval = NewEvaluator(h.rules, h.leads, h.sender, h.bus, log, nil)
	h.eval.now = func() time.Time { return testNow }
	return h
}

func (h *harness) addRule(name string, trigger domain.Trigger, action domain.Action) domain.Rule {
	rule := domain.Rule{ID: uuid.New(), TenantID: h.tenantID, Name: name, IsActive: true, Trigger: trigger, Action: action}
	h.rules.rules[h.tenantID] = append(h.rules.rules[h.tenantID], rule)
	return rule
}

func lead(name string, status leaddomain.Status, updatedDaysAgo int) leaddomain.Lead {
	return leaddomain.Lead{
		ID:          uuid.New(),
		DisplayName: name,
		RemoteJID:   "31612345678@s.whatsapp.net",
		Status:      status,
		Version:     1,
		UpdatedAt:   testNow.AddDate(0, 0, -updatedDaysAgo),
	}
}

func TestTimeInStatusCreatesTasks(t *testing.T) {
	stale := lead("Ana", leaddomain.StatusProposal, 10)
	fresh := lead("Bo", leaddomain.StatusProposal, 2)
	h := newHarness(stale, fresh)
	rule := h.addRule("Chase proposals",
		domain.TimeInStatusTrigger{Status: leaddomain.StatusProposal, Days: 5},
		domain.CreateTaskAction{Title: "Call {{name}}", Priority: "high", DaysOffset: 1})

	summary, err := h.eval.Run(context.Background(), h.tenantID, nil)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	want := domain.RuleResult{RuleID: rule.ID, RuleName: rule.Name, LeadsProcessed: 1, ActionsExecuted: 1, Errors: []string{}}
	if len(summary.Results) != 1 {
		t.Fatalf("results = %d, want 1", len(summary.Results))
	}
	got := summary.Results[0]
	if got.RuleID != want.RuleID || got.LeadsProcessed != 1 || got.ActionsExecuted != 1 || len(got.Errors) != 0 {
		t.Errorf("result = %+v, want %+v", got, want)
	}

	if len(h.rules.tasks) != 1 {
		t.Fatalf("tasks = %d, want 1", len(h.rules.tasks))
	}
	task := h.rules.tasks[0]
	if task.LeadID != stale.ID || task.Title != "Call Ana" || !task.DueAt.Equal(testNow.AddDate(0, 0, 1)) {
		t.Errorf("task = %+v", task)
	}
	if len(h.rules.runs) != 1 || h.rules.runs[0].actions != 1 {
		t.Errorf("rule runs = %+v, want one run with 1 action", h.rules.runs)
	}
	if len(h.leads.activities) != 1 || h.leads.activities[0].Kind != leaddomain.ActivityAutomationExecuted {
		t.Errorf("activities = %+v", h.leads.activities)
	}
}

func TestFailuresAreCollectedNotFatal(t *testing.T) {
	reachable := lead("Ana", leaddomain.StatusNew, 1)
	broken := lead("Bo", leaddomain.StatusNew, 1)
	broken.RemoteJID = "31687654321@s.whatsapp.net"
	h := newHarness(reachable, broken)
	h.sender.failOn = "+31687654321"

	instanceID := uuid.New()
	h.rules.instances[instanceID] = domain.MessagingInstance{ID: instanceID, TenantID: h.tenantID, InstanceName: "main"}
	h.addRule("Nudge", domain.NoInteractionTrigger{Days: 3}, domain.SendMessageAction{InstanceID: instanceID, Template: "Hi {{name}}"})
	h.addRule("Flag", domain.NoInteractionTrigger{Days: 3}, domain.CreateTaskAction{Title: "Follow up", Priority: "low"})

	summary, err := h.eval.Run(context.Background(), h.tenantID, nil)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if summary.TotalAutomations != 2 || summary.TotalLeadsProcessed != 4 || summary.TotalActionsExecuted != 3 || summary.TotalErrors != 1 {
		t.Errorf("summary = %+v", summary)
	}
	nudge := summary.Results[0]
	if nudge.ActionsExecuted != 1 || len(nudge.Errors) != 1 {
		t.Errorf("nudge result = %+v", nudge)
	}
	if len(h.sender.sent) != 1 || h.sender.sent[0].text != "Hi Ana" || h.sender.sent[0].instance != "main" {
		t.Errorf("sent = %+v", h.sender.sent)
	}
	if len(h.rules.runs) != 2 {
		t.Errorf("rule runs = %+v, want 2", h.rules.runs)
	}
}

func TestStatsUntouchedWithoutSuccess(t *testing.T) {
	h := newHarness(lead("Ana", leaddomain.StatusNew, 1))
	h.addRule("Nudge", domain.NoInteractionTrigger{Days: 3}, domain.SendMessageAction{InstanceID: uuid.New(), Template: "Hi"})

	summary, err := h.eval.Run(context.Background(), h.tenantID, nil)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if summary.TotalErrors != 1 || summary.TotalActionsExecuted != 0 {
		t.Errorf("summary = %+v", summary)
	}
	if len(h.rules.runs) != 0 {
		t.Errorf("rule stats updated without a successful action: %+v", h.rules.runs)
	}
	if len(h.leads.activities) != 0 {
		t.Errorf("activity written for a failed action")
	}
}

func TestStatusChangeRunsOnlyForEventLead(t *testing.T) {
	moved := lead("Ana", leaddomain.StatusWon, 0)
	other := lead("Bo", leaddomain.StatusWon, 0)
	h := newHarness(moved, other)
	h.addRule("Celebrate", domain.StatusChangeTrigger{ToStatus: leaddomain.StatusWon},
		domain.SendNotificationAction{Message: "{{name}} closed at {{value}}", Kind: "success"})
	h.addRule("Wrong target", domain.StatusChangeTrigger{ToStatus: leaddomain.StatusLost},
		domain.CreateTaskAction{Title: "x", Priority: "low"})
	h.addRule("Scheduled", domain.NoInteractionTrigger{Days: 1}, domain.CreateTaskAction{Title: "y", Priority: "low"})

	var (
		mu        sync.Mutex
		published []events.AutomationNotificationCreated
	)
	h.bus.Subscribe(events.AutomationNotificationCreated{}.EventName(), events.HandlerFunc(func(ctx context.Context, e events.Event) error {
		mu.Lock()
		defer mu.Unlock()
		published = append(published, e.(events.AutomationNotificationCreated))
		return nil
	}))

	event := &domain.StatusChangeEvent{LeadID: moved.ID, OldStatus: leaddomain.StatusNegotiating, NewStatus: leaddomain.StatusWon}
	summary, err := h.eval.Run(context.Background(), h.tenantID, event)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	h.bus.Wait()

	if summary.TotalAutomations != 2 {
		t.Errorf("automations = %d, want the two status change rules", summary.TotalAutomations)
	}
	if summary.TotalLeadsProcessed != 1 || summary.TotalActionsExecuted != 1 {
		t.Errorf("summary = %+v", summary)
	}
	if len(h.rules.tasks) != 0 {
		t.Errorf("scheduled rule ran during an event run")
	}
	if len(h.rules.notifications) != 1 {
		t.Fatalf("notifications = %d, want 1", len(h.rules.notifications))
	}
	n := h.rules.notifications[0]
	if n.Title != "Celebrate" || n.Message != "Ana closed at 0" || n.Kind != "success" {
		t.Errorf("notification = %+v", n)
	}
	if len(published) != 1 || published[0].NotificationID != n.ID {
		t.Errorf("published = %+v", published)
	}
}

func TestStatusChangeWithoutEventMatchesNothing(t *testing.T) {
	h := newHarness(lead("Ana", leaddomain.StatusWon, 0))
	h.addRule("Celebrate", domain.StatusChangeTrigger{}, domain.CreateTaskAction{Title: "x", Priority: "low"})

	summary, err := h.eval.Run(context.Background(), h.tenantID, nil)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if summary.TotalAutomations != 1 || summary.TotalLeadsProcessed != 0 {
		t.Errorf("summary = %+v", summary)
	}
}

func TestUpdateField(t *testing.T) {
	target := lead("Ana", leaddomain.StatusQualified, 1)
	h := newHarness(target)
	h.addRule("Price", domain.ValueThresholdTrigger{}, domain.UpdateFieldAction{FieldKey: "estimated_value", Value: "5000"})
	h.addRule("Source", domain.ValueThresholdTrigger{}, domain.UpdateFieldAction{FieldKey: "source", Value: "auto {{status}}"})

	summary, err := h.eval.Run(context.Background(), h.tenantID, nil)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if summary.TotalActionsExecuted != 2 || summary.TotalErrors != 0 {
		t.Fatalf("summary = %+v", summary)
	}

	stored, _ := h.leads.GetByID(context.Background(), h.tenantID, target.ID)
	if stored.EstimatedValue != 5000 {
		t.Errorf("estimated value = %d, want 5000", stored.EstimatedValue)
	}
	// name 5 + phone 0 + value 10 + qualified 20, no interaction
	if stored.Score != 35 {
		t.Errorf("score = %d, want 35", stored.Score)
	}
	if len(h.leads.customFields) != 1 || h.leads.customFields[0] != (customField{leadID: target.ID, key: "source", value: "auto qualified"}) {
		t.Errorf("custom fields = %+v", h.leads.customFields)
	}
}

func TestUpdateFieldRetriesStaleWrite(t *testing.T) {
	target := lead("Ana", leaddomain.StatusQualified, 1)
	h := newHarness(target)
	h.leads.staleOnce = true
	h.addRule("Notes", domain.ValueThresholdTrigger{}, domain.UpdateFieldAction{FieldKey: "notes", Value: "checked"})

	summary, err := h.eval.Run(context.Background(), h.tenantID, nil)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if summary.TotalActionsExecuted != 1 || summary.TotalErrors != 0 {
		t.Errorf("summary = %+v", summary)
	}
	stored, _ := h.leads.GetByID(context.Background(), h.tenantID, target.ID)
	if stored.Notes != "checked" {
		t.Errorf("notes = %q", stored.Notes)
	}
}

func TestRunFailsWhenRulesCannotLoad(t *testing.T) {
	h := newHarness()
	h.rules.listErr = errors.New("connection refused")

	_, err := h.eval.Run(context.Background(), h.tenantID, nil)
	if !apperr.Is(err, apperr.KindUnavailable) {
		t.Errorf("Run() error = %v, want unavailable", err)
	}
}

func TestSweepVisitsEveryTenant(t *testing.T) {
	h := newHarness(lead("Ana", leaddomain.StatusNew, 1))
	h.addRule("Flag", domain.NoInteractionTrigger{Days: 1}, domain.CreateTaskAction{Title: "x", Priority: "low"})

	otherTenant := uuid.New()
	otherLead := lead("Bo", leaddomain.StatusNew, 1)
	otherLead.TenantID = otherTenant
	h.leads.leads[otherLead.ID] = otherLead
	h.rules.rules[otherTenant] = []domain.Rule{{
		ID: uuid.New(), TenantID: otherTenant, Name: "Other", IsActive: true,
		Trigger: domain.NoInteractionTrigger{Days: 1},
		Action:  domain.CreateTaskAction{Title: "y", Priority: "low"},
	}}

	summary, err := h.eval.Sweep(context.Background())
	if err != nil {
		t.Fatalf("Sweep() error = %v", err)
	}
	if summary.TotalAutomations != 2 || summary.TotalActionsExecuted != 2 {
		t.Errorf("summary = %+v", summary)
	}
	for _, task := range h.rules.tasks {
		if _, err := h.leads.GetByID(context.Background(), task.TenantID, task.LeadID); err != nil {
			t.Errorf("task %s crosses tenants: %v", task.Title, err)
		}
	}
}
