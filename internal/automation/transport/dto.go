package transport

import (
	"encoding/json"
	"time"

	"crm_pipeline_backend/internal/automation/domain"

	"github.com/google/uuid"
)

// Requests

type CreateRuleRequest struct {
	Name          string          `json:"name" validate:"required,min=1,max=200"`
	IsActive      *bool           `json:"isActive,omitempty"`
	TriggerType   string          `json:"triggerType" validate:"required,oneof=status_change time_in_status value_threshold no_interaction"`
	TriggerConfig json.RawMessage `json:"triggerConfig"`
	ActionType    string          `json:"actionType" validate:"required,oneof=create_task send_notification update_field send_message"`
	ActionConfig  json.RawMessage `json:"actionConfig"`
}

type SetActiveRequest struct {
	IsActive *bool `json:"isActive" validate:"required"`
}

type StatusChangeRequest struct {
	LeadID    string `json:"leadId" validate:"required,uuid"`
	OldStatus string `json:"oldStatus"`
	NewStatus string `json:"newStatus" validate:"required"`
}

// RunRequest runs every rule, or only status-change rules when Event is set.
type RunRequest struct {
	Event *StatusChangeRequest `json:"event,omitempty"`
}

// Responses

type RuleResponse struct {
	ID              uuid.UUID  `json:"id"`
	Name            string     `json:"name"`
	IsActive        bool       `json:"isActive"`
	TriggerType     string     `json:"triggerType"`
	TriggerConfig   any        `json:"triggerConfig"`
	ActionType      string     `json:"actionType"`
	ActionConfig    any        `json:"actionConfig"`
	TriggerCount    int        `json:"triggerCount"`
	LastTriggeredAt *time.Time `json:"lastTriggeredAt,omitempty"`
	CreatedAt       time.Time  `json:"createdAt"`
	UpdatedAt       time.Time  `json:"updatedAt"`
}

type RuleListResponse struct {
	Items []RuleResponse `json:"items"`
	Total int            `json:"total"`
}

func ToRuleResponse(rule domain.Rule) RuleResponse {
	resp := RuleResponse{
		ID:              rule.ID,
		Name:            rule.Name,
		IsActive:        rule.IsActive,
		TriggerConfig:   rule.Trigger,
		ActionConfig:    rule.Action,
		TriggerCount:    rule.TriggerCount,
		LastTriggeredAt: rule.LastTriggeredAt,
		CreatedAt:       rule.CreatedAt,
		UpdatedAt:       rule.UpdatedAt,
	}
	if rule.Trigger != nil {
		resp.TriggerType = string(rule.Trigger.Type())
	}
	if rule.Action != nil {
		resp.ActionType = string(rule.Action.Type())
	}
	return resp
}

func ToRuleListResponse(rules []domain.Rule) RuleListResponse {
	items := make([]RuleResponse, 0, len(rules))
	for _, rule := range rules {
		items = append(items, ToRuleResponse(rule))
	}
	return RuleListResponse{Items: items, Total: len(items)}
}
