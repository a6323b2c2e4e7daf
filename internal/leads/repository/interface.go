package repository

import (
	"context"

	"crm_pipeline_backend/internal/leads/domain"

	"github.com/google/uuid"
)

// =====================================
// Segregated Interfaces (Interface Segregation Principle)
// =====================================

// LeadReader provides read-only access to lead data.
type LeadReader interface {
	GetByID(ctx context.Context, tenantID, id uuid.UUID) (domain.Lead, error)
	ListPage(ctx context.Context, tenantID uuid.UUID, filter domain.Filter, offset, limit int) ([]domain.Lead, error)
}

// LeadWriter provides write operations for lead management.
type LeadWriter interface {
	Update(ctx context.Context, tenantID, id uuid.UUID, expectedVersion int64, patch domain.Patch) (domain.Lead, error)
}

// ActivityLogger records activity/audit trail on leads.
type ActivityLogger interface {
	RecordActivity(ctx context.Context, activity domain.Activity) error
}

// CustomFieldWriter upserts custom field values.
type CustomFieldWriter interface {
	UpsertCustomField(ctx context.Context, tenantID, leadID uuid.UUID, key, value string) error
}

// LeadsRepository is the full persistence surface of the leads module.
type LeadsRepository interface {
	LeadReader
	LeadWriter
	ActivityLogger
	CustomFieldWriter
}

var _ LeadsRepository = (*Repository)(nil)
