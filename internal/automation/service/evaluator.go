// Package service runs automation rules against the authoritative lead data and
// manages the rule catalogue.
package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"crm_pipeline_backend/internal/automation/domain"
	"crm_pipeline_backend/internal/events"
	leaddomain "crm_pipeline_backend/internal/leads/domain"
	leadrepo "crm_pipeline_backend/internal/leads/repository"
	"crm_pipeline_backend/internal/leads/scoring"
	"crm_pipeline_backend/platform/apperr"
	"crm_pipeline_backend/platform/logger"
	"crm_pipeline_backend/platform/metrics"
	"crm_pipeline_backend/platform/phone"

	"github.com/google/uuid"
)

const (
	leadPageSize = 1000
	leadMaxRows  = 20_000
)

// RuleRepository is the rule store plus the sinks actions write to.
type RuleRepository interface {
	ListActiveRules(ctx context.Context, tenantID uuid.UUID) ([]domain.Rule, error)
	ListTenantsWithActiveRules(ctx context.Context) ([]uuid.UUID, error)
	RecordRuleRun(ctx context.Context, tenantID, ruleID uuid.UUID, actions int, at time.Time) error
	InsertTask(ctx context.Context, task domain.Task) error
	InsertNotification(ctx context.Context, n domain.Notification) error
	GetMessagingInstance(ctx context.Context, tenantID, instanceID uuid.UUID) (domain.MessagingInstance, error)
}

// MessageSender delivers a text through the messaging gateway.
type MessageSender interface {
	SendText(ctx context.Context, instanceName, token, number, text string) error
}

// Evaluator matches rules to leads and executes their actions. It holds no
// cross-run state; callers that need single-flight runs must serialise them.
type Evaluator struct {
	rules   RuleRepository
	leads   leadrepo.LeadsRepository
	sender  MessageSender
	bus     events.Bus
	log     *logger.Logger
	metrics *metrics.Metrics
	now     func() time.Time
}

// NewEvaluator creates an Evaluator. sender and m may be nil.
func NewEvaluator(rules RuleRepository, leads leadrepo.LeadsRepository, sender MessageSender, bus events.Bus, log *logger.Logger, m *metrics.Metrics) *Evaluator {
	return &Evaluator{
		rules:   rules,
		leads:   leads,
		sender:  sender,
		bus:     bus,
		log:     log,
		metrics: m,
		now:     time.Now,
	}
}

// Run evaluates the tenant's active rules. With an event only StatusChange
// rules are evaluated, against the lead the event names. Without one every rule
// runs and StatusChange rules match nothing. Per-lead failures are collected in
// the result; only a failure to load the rules fails the run.
func (e *Evaluator) Run(ctx context.Context, tenantID uuid.UUID, event *domain.StatusChangeEvent) (domain.RunSummary, error) {
	start := e.now()
	rules, err := e.rules.ListActiveRules(ctx, tenantID)
	if err != nil {
		return domain.RunSummary{}, apperr.Unavailable("automation rules could not be loaded", err)
	}

	summary := domain.RunSummary{Results: []domain.RuleResult{}}
	candidates := &candidateSet{evaluator: e, tenantID: tenantID, event: event}
	for _, rule := range rules {
		if event != nil && rule.Trigger.Type() != domain.TriggerStatusChange {
			continue
		}
		summary.Add(e.runRule(ctx, rule, candidates, event, start))
	}

	elapsed := e.now().Sub(start)
	e.log.WithContext(ctx).AutomationSweep(tenantID.String(), summary.TotalAutomations,
		summary.TotalLeadsProcessed, summary.TotalActionsExecuted, summary.TotalErrors, elapsed)
	e.metrics.RecordSweep(elapsed)
	return summary, nil
}

// Sweep runs every tenant that has scheduled rules. A tenant whose rules cannot
// be loaded is logged and skipped.
func (e *Evaluator) Sweep(ctx context.Context) (domain.RunSummary, error) {
	tenants, err := e.rules.ListTenantsWithActiveRules(ctx)
	if err != nil {
		return domain.RunSummary{}, apperr.Unavailable("automation tenants could not be loaded", err)
	}

	total := domain.RunSummary{Results: []domain.RuleResult{}}
	for _, tenantID := range tenants {
		if ctx.Err() != nil {
			return total, ctx.Err()
		}
		summary, err := e.Run(ctx, tenantID, nil)
		if err != nil {
			e.log.WithContext(ctx).WithTenantID(tenantID.String()).DatabaseError("automation_sweep", err)
			continue
		}
		total.Merge(summary)
	}
	return total, nil
}

func (e *Evaluator) runRule(ctx context.Context, rule domain.Rule, candidates *candidateSet, event *domain.StatusChangeEvent, now time.Time) domain.RuleResult {
	result := domain.RuleResult{RuleID: rule.ID, RuleName: rule.Name, Errors: []string{}}

	leads, err := candidates.forTrigger(ctx, rule.Trigger)
	if err != nil {
		result.Errors = append(result.Errors, fmt.Sprintf("failed to fetch leads: %v", err))
		return result
	}

	var matched []leaddomain.Lead
	for _, lead := range leads {
		if domain.Matches(rule.Trigger, lead, event, now) {
			matched = append(matched, lead)
		}
	}
	result.LeadsProcessed = len(matched)

	for _, lead := range matched {
		if ctx.Err() != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("run interrupted: %v", ctx.Err()))
			break
		}
		err := e.execute(ctx, rule, lead, now)
		e.metrics.RecordAction(string(rule.Action.Type()), err == nil)
		if err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("action failed for lead %s: %v", lead.ID, err))
			continue
		}
		result.ActionsExecuted++
	}

	if result.ActionsExecuted > 0 {
		if err := e.rules.RecordRuleRun(context.WithoutCancel(ctx), rule.TenantID, rule.ID, result.ActionsExecuted, now); err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("failed to update rule stats: %v", err))
		}
	}
	return result
}

// execute performs one action for one lead and records it on the lead's activity log.
func (e *Evaluator) execute(ctx context.Context, rule domain.Rule, lead leaddomain.Lead, now time.Time) error {
	var err error
	switch a := rule.Action.(type) {
	case domain.CreateTaskAction:
		err = e.rules.InsertTask(ctx, domain.Task{
			ID:          uuid.New(),
			TenantID:    rule.TenantID,
			LeadID:      lead.ID,
			Title:       domain.Render(a.Title, lead),
			Description: domain.Render(a.Description, lead),
			Priority:    a.Priority,
			DueAt:       now.AddDate(0, 0, a.DaysOffset),
			CreatedAt:   now,
		})
	case domain.SendNotificationAction:
		err = e.notify(ctx, rule, a, lead, now)
	case domain.UpdateFieldAction:
		err = e.updateField(ctx, rule.TenantID, a, lead, now)
	case domain.SendMessageAction:
		err = e.sendMessage(ctx, rule.TenantID, a, lead)
	default:
		err = fmt.Errorf("unsupported action %T", rule.Action)
	}
	if err != nil {
		return apperr.ActionExecution(string(rule.Action.Type())+" failed", err)
	}

	activity := leaddomain.Activity{
		ID:          uuid.New(),
		LeadID:      lead.ID,
		TenantID:    rule.TenantID,
		Kind:        leaddomain.ActivityAutomationExecuted,
		Description: fmt.Sprintf("Automation executed: %s", rule.Name),
		Metadata: map[string]any{
			"automation_id": rule.ID.String(),
			"action_type":   string(rule.Action.Type()),
		},
		CreatedAt: now,
	}
	if err := e.leads.RecordActivity(context.WithoutCancel(ctx), activity); err != nil {
		e.log.WithContext(ctx).DatabaseError("record_automation_activity", err)
	}
	return nil
}

func (e *Evaluator) notify(ctx context.Context, rule domain.Rule, a domain.SendNotificationAction, lead leaddomain.Lead, now time.Time) error {
	title := rule.Name
	if a.Title != "" {
		title = domain.Render(a.Title, lead)
	}
	leadID := lead.ID
	n := domain.Notification{
		ID:        uuid.New(),
		TenantID:  rule.TenantID,
		LeadID:    &leadID,
		Kind:      a.Kind,
		Title:     title,
		Message:   domain.Render(a.Message, lead),
		CreatedAt: now,
	}
	if err := e.rules.InsertNotification(ctx, n); err != nil {
		return err
	}
	e.bus.Publish(ctx, events.AutomationNotificationCreated{
		BaseEvent:      events.NewBaseEvent(),
		NotificationID: n.ID,
		TenantID:       n.TenantID,
		LeadID:         n.LeadID,
		RuleID:         rule.ID,
		RuleName:       rule.Name,
		Kind:           n.Kind,
		Title:          n.Title,
		Message:        n.Message,
	})
	return nil
}

func (e *Evaluator) updateField(ctx context.Context, tenantID uuid.UUID, a domain.UpdateFieldAction, lead leaddomain.Lead, now time.Time) error {
	value := domain.Render(a.Value, lead)

	field, builtin := domain.LookupBuiltinField(a.FieldKey)
	if !builtin {
		if err := e.leads.UpsertCustomField(ctx, tenantID, lead.ID, a.FieldKey, value); err != nil {
			return err
		}
		e.publishFieldsChanged(ctx, tenantID, lead.ID, []string{"custom:" + a.FieldKey})
		return nil
	}

	patch, err := field.Patch(value)
	if err != nil {
		return err
	}

	updated, err := e.patchLead(ctx, tenantID, lead, patch, now)
	if errors.Is(err, leadrepo.ErrStaleVersion) {
		// Another writer got there first; retry once against the current row.
		current, getErr := e.leads.GetByID(ctx, tenantID, lead.ID)
		if getErr != nil {
			return getErr
		}
		updated, err = e.patchLead(ctx, tenantID, current, patch, now)
	}
	if err != nil {
		return err
	}
	e.publishFieldsChanged(ctx, tenantID, updated.ID, patch.Fields())
	return nil
}

func (e *Evaluator) patchLead(ctx context.Context, tenantID uuid.UUID, lead leaddomain.Lead, patch leaddomain.Patch, now time.Time) (leaddomain.Lead, error) {
	if patch.TouchesScore() {
		score := scoring.Score(patch.Apply(lead), lead.CustomFieldsCount, now)
		patch.Score = &score
	}
	return e.leads.Update(ctx, tenantID, lead.ID, lead.Version, patch)
}

func (e *Evaluator) publishFieldsChanged(ctx context.Context, tenantID, leadID uuid.UUID, fields []string) {
	e.bus.Publish(ctx, events.LeadFieldsChanged{
		BaseEvent: events.NewBaseEvent(),
		LeadID:    leadID,
		TenantID:  tenantID,
		Fields:    fields,
	})
}

func (e *Evaluator) sendMessage(ctx context.Context, tenantID uuid.UUID, a domain.SendMessageAction, lead leaddomain.Lead) error {
	if e.sender == nil {
		return errors.New("messaging gateway not configured")
	}
	instance, err := e.rules.GetMessagingInstance(ctx, tenantID, a.InstanceID)
	if err != nil {
		return err
	}

	number := phone.FromRemoteJID(lead.RemoteJID)
	if number == "" {
		number = phone.NormalizeE164(lead.Phone)
	}
	if number == "" {
		return errors.New("lead has no reachable number")
	}
	return e.sender.SendText(ctx, instance.InstanceName, instance.Token, number, domain.Render(a.Template, lead))
}

// candidateSet loads the leads a run needs at most once.
type candidateSet struct {
	evaluator *Evaluator
	tenantID  uuid.UUID
	event     *domain.StatusChangeEvent

	all       []leaddomain.Lead
	allErr    error
	allLoaded bool

	eventLead   []leaddomain.Lead
	eventErr    error
	eventLoaded bool
}

func (c *candidateSet) forTrigger(ctx context.Context, trigger domain.Trigger) ([]leaddomain.Lead, error) {
	switch trigger.(type) {
	case domain.StatusChangeTrigger:
		return c.eventLeads(ctx)
	case domain.TimeInStatusTrigger, domain.ValueThresholdTrigger, domain.NoInteractionTrigger:
		return c.allLeads(ctx)
	default:
		return nil, fmt.Errorf("unsupported trigger %T", trigger)
	}
}

func (c *candidateSet) eventLeads(ctx context.Context) ([]leaddomain.Lead, error) {
	if c.event == nil {
		return nil, nil
	}
	if !c.eventLoaded {
		c.eventLoaded = true
		lead, err := c.evaluator.leads.GetByID(ctx, c.tenantID, c.event.LeadID)
		switch {
		case errors.Is(err, leadrepo.ErrNotFound):
		case err != nil:
			c.eventErr = err
		default:
			c.eventLead = []leaddomain.Lead{lead}
		}
	}
	return c.eventLead, c.eventErr
}

func (c *candidateSet) allLeads(ctx context.Context) ([]leaddomain.Lead, error) {
	if !c.allLoaded {
		c.allLoaded = true
		c.all, c.allErr = c.evaluator.loadLeads(ctx, c.tenantID)
	}
	return c.all, c.allErr
}

func (e *Evaluator) loadLeads(ctx context.Context, tenantID uuid.UUID) ([]leaddomain.Lead, error) {
	var out []leaddomain.Lead
	for offset := 0; offset < leadMaxRows; offset += leadPageSize {
		page, err := e.leads.ListPage(ctx, tenantID, leaddomain.Filter{}, offset, leadPageSize)
		if err != nil {
			return nil, err
		}
		out = append(out, page...)
		if len(page) < leadPageSize {
			break
		}
	}
	return out, nil
}
