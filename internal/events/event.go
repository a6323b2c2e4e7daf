// Package events provides domain event definitions for decoupled,
// event-driven communication between modules.
// Infrastructure (Bus, Handler) is in platform/events.
package events

import (
	"crm_pipeline_backend/platform/events"

	"github.com/google/uuid"
)

// Re-export platform types for convenience
type (
	Event       = events.Event
	Bus         = events.Bus
	Handler     = events.Handler
	HandlerFunc = events.HandlerFunc
	BaseEvent   = events.BaseEvent
)

// Re-export platform functions
var NewBaseEvent = events.NewBaseEvent

// =============================================================================
// Pipeline Domain Events
// =============================================================================

// LeadStatusChanged is published after a status transition has been persisted.
type LeadStatusChanged struct {
	BaseEvent
	LeadID    uuid.UUID  `json:"leadId"`
	TenantID  uuid.UUID  `json:"tenantId"`
	ActorID   *uuid.UUID `json:"actorId,omitempty"`
	OldStatus string     `json:"oldStatus"`
	NewStatus string     `json:"newStatus"`
}

func (e LeadStatusChanged) EventName() string { return "leads.status.changed" }

// LeadFieldsChanged is published after a direct field edit has been persisted.
type LeadFieldsChanged struct {
	BaseEvent
	LeadID   uuid.UUID `json:"leadId"`
	TenantID uuid.UUID `json:"tenantId"`
	Fields   []string  `json:"fields"`
}

func (e LeadFieldsChanged) EventName() string { return "leads.fields.changed" }

// =============================================================================
// Automation Domain Events
// =============================================================================

// AutomationNotificationCreated is published when an automation stores a notification.
// The live stream and the mail mirror subscribe to it.
type AutomationNotificationCreated struct {
	BaseEvent
	NotificationID uuid.UUID  `json:"notificationId"`
	TenantID       uuid.UUID  `json:"tenantId"`
	LeadID         *uuid.UUID `json:"leadId,omitempty"`
	RuleID         uuid.UUID  `json:"ruleId"`
	RuleName       string     `json:"ruleName"`
	Kind           string     `json:"kind"`
	Title          string     `json:"title"`
	Message        string     `json:"message"`
}

func (e AutomationNotificationCreated) EventName() string { return "automation.notification.created" }
