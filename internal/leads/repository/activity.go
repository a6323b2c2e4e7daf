package repository

import (
	"context"
	"encoding/json"

	"crm_pipeline_backend/internal/leads/domain"

	"github.com/google/uuid"
)

// RecordActivity appends an audit entry.
func (r *Repository) RecordActivity(ctx context.Context, activity domain.Activity) error {
	metaJSON := []byte("{}")
	if activity.Metadata != nil {
		encoded, err := json.Marshal(activity.Metadata)
		if err != nil {
			return err
		}
		metaJSON = encoded
	}
	if activity.ID == uuid.Nil {
		activity.ID = uuid.New()
	}

	_, err := r.pool.Exec(ctx, `
		INSERT INTO lead_activities (id, lead_id, tenant_id, actor_id, kind, description, metadata)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, activity.ID, activity.LeadID, activity.TenantID, activity.ActorID, string(activity.Kind), activity.Description, metaJSON)
	return err
}

// ListActivities returns the newest entries for a lead.
func (r *Repository) ListActivities(ctx context.Context, tenantID, leadID uuid.UUID, limit int) ([]domain.Activity, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, lead_id, tenant_id, actor_id, kind, description, metadata, created_at
		FROM lead_activities
		WHERE lead_id = $1 AND tenant_id = $2
		ORDER BY created_at DESC
		LIMIT $3
	`, leadID, tenantID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]domain.Activity, 0)
	for rows.Next() {
		var item domain.Activity
		var kind string
		var meta []byte
		if err := rows.Scan(&item.ID, &item.LeadID, &item.TenantID, &item.ActorID, &kind, &item.Description, &meta, &item.CreatedAt); err != nil {
			return nil, err
		}
		item.Kind = domain.ActivityKind(kind)
		if len(meta) > 0 {
			if err := json.Unmarshal(meta, &item.Metadata); err != nil {
				return nil, err
			}
		}
		items = append(items, item)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return items, nil
}
