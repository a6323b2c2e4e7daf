package domain

import (
	"time"

	leaddomain "crm_pipeline_backend/internal/leads/domain"

	"github.com/google/uuid"
)

// Rule pairs a trigger with an action for one tenant.
type Rule struct {
	ID              uuid.UUID
	TenantID        uuid.UUID
	Name            string
	IsActive        bool
	Trigger         Trigger
	Action          Action
	TriggerCount    int
	LastTriggeredAt *time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// StatusChangeEvent names the lead and the transition a StatusChange rule is
// evaluated against.
type StatusChangeEvent struct {
	LeadID    uuid.UUID
	OldStatus leaddomain.Status
	NewStatus leaddomain.Status
}

// Task is a follow-up created by a CreateTask action.
type Task struct {
	ID          uuid.UUID
	TenantID    uuid.UUID
	LeadID      uuid.UUID
	Title       string
	Description string
	Priority    string
	DueAt       time.Time
	CreatedAt   time.Time
}

// Notification is a tenant-wide message created by a SendNotification action.
type Notification struct {
	ID        uuid.UUID
	TenantID  uuid.UUID
	LeadID    *uuid.UUID
	Kind      string
	Title     string
	Message   string
	CreatedAt time.Time
}

// MessagingInstance holds the gateway credentials of a tenant's messaging account.
type MessagingInstance struct {
	ID           uuid.UUID
	TenantID     uuid.UUID
	InstanceName string
	Token        string
}

// RuleResult reports one rule of a run.
type RuleResult struct {
	RuleID          uuid.UUID `json:"ruleId"`
	RuleName        string    `json:"ruleName"`
	LeadsProcessed  int       `json:"leadsProcessed"`
	ActionsExecuted int       `json:"actionsExecuted"`
	Errors          []string  `json:"errors"`
}

// RunSummary aggregates the rule results of one run.
type RunSummary struct {
	TotalAutomations     int          `json:"totalAutomations"`
	TotalLeadsProcessed  int          `json:"totalLeadsProcessed"`
	TotalActionsExecuted int          `json:"totalActionsExecuted"`
	TotalErrors          int          `json:"totalErrors"`
	Results              []RuleResult `json:"results"`
}

// Add folds a rule result into the totals.
func (s *RunSummary) Add(r RuleResult) {
	s.TotalAutomations++
	s.TotalLeadsProcessed += r.LeadsProcessed
	s.TotalActionsExecuted += r.ActionsExecuted
	s.TotalErrors += len(r.Errors)
	s.Results = append(s.Results, r)
}

// Merge folds another summary into s.
func (s *RunSummary) Merge(other RunSummary) {
	for _, r := range other.Results {
		s.Add(r)
	}
}
