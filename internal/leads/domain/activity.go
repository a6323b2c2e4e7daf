package domain

import (
	"time"

	"github.com/google/uuid"
)

// ActivityKind classifies audit trail entries.
type ActivityKind string

const (
	ActivityStatusChanged      ActivityKind = "status_changed"
	ActivityFieldsUpdated      ActivityKind = "fields_updated"
	ActivityAutomationExecuted ActivityKind = "automation_executed"
)

// Activity is an append-only audit entry for a lead.
type Activity struct {
	ID          uuid.UUID
	LeadID      uuid.UUID
	TenantID    uuid.UUID
	ActorID     *uuid.UUID
	Kind        ActivityKind
	Description string
	Metadata    map[string]any
	CreatedAt   time.Time
}
