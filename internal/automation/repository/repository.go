// Package repository persists automation rules and the records their actions create.
package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"crm_pipeline_backend/internal/automation/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	ErrRuleNotFound     = errors.New("automation rule not found")
	ErrInstanceNotFound = errors.New("messaging instance not found")
)

type Repository struct {
	pool *pgxpool.Pool
}

func New(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const ruleColumns = `id, tenant_id, name, is_active, trigger_type, trigger_config, action_type, action_config,
	trigger_count, last_triggered_at, created_at, updated_at`

func scanRule(row pgx.Row) (domain.Rule, error) {
	var (
		rule                     domain.Rule
		triggerType, actionType  string
		triggerConfig, actionCfg []byte
	)
	if err := row.Scan(&rule.ID, &rule.TenantID, &rule.Name, &rule.IsActive, &triggerType, &triggerConfig,
		&actionType, &actionCfg, &rule.TriggerCount, &rule.LastTriggeredAt, &rule.CreatedAt, &rule.UpdatedAt); err != nil {
		return domain.Rule{}, err
	}

	trigger, err := domain.DecodeTrigger(domain.TriggerType(triggerType), triggerConfig)
	if err != nil {
		return domain.Rule{}, fmt.Errorf("rule %s: %w", rule.ID, err)
	}
	action, err := domain.DecodeAction(domain.ActionType(actionType), actionCfg)
	if err != nil {
		return domain.Rule{}, fmt.Errorf("rule %s: %w", rule.ID, err)
	}
	rule.Trigger = trigger
	rule.Action = action
	return rule, nil
}

func (r *Repository) listRules(ctx context.Context, query string, args ...any) ([]domain.Rule, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	rules := make([]domain.Rule, 0)
	for rows.Next() {
		rule, err := scanRule(rows)
		if err != nil {
			return nil, err
		}
		rules = append(rules, rule)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return rules, nil
}

// ListRules returns every rule of the tenant, newest first.
func (r *Repository) ListRules(ctx context.Context, tenantID uuid.UUID) ([]domain.Rule, error) {
	return r.listRules(ctx, `SELECT `+ruleColumns+`
		FROM automation_rules
		WHERE tenant_id = $1
		ORDER BY created_at DESC`, tenantID)
}

// ListActiveRules returns the tenant's enabled rules in creation order.
func (r *Repository) ListActiveRules(ctx context.Context, tenantID uuid.UUID) ([]domain.Rule, error) {
	return r.listRules(ctx, `SELECT `+ruleColumns+`
		FROM automation_rules
		WHERE tenant_id = $1 AND is_active
		ORDER BY created_at, id`, tenantID)
}

// ListTenantsWithActiveRules returns the tenants a sweep has to visit.
func (r *Repository) ListTenantsWithActiveRules(ctx context.Context) ([]uuid.UUID, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT DISTINCT tenant_id
		FROM automation_rules
		WHERE is_active AND trigger_type <> $1
		ORDER BY tenant_id`, string(domain.TriggerStatusChange))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tenants []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		tenants = append(tenants, id)
	}
	return tenants, rows.Err()
}

// CreateRule inserts a rule and returns the stored row.
func (r *Repository) CreateRule(ctx context.Context, rule domain.Rule) (domain.Rule, error) {
	triggerConfig, err := json.Marshal(rule.Trigger)
	if err != nil {
		return domain.Rule{}, err
	}
	actionConfig, err := json.Marshal(rule.Action)
	if err != nil {
		return domain.Rule{}, err
	}
	if rule.ID == uuid.Nil {
		rule.ID = uuid.New()
	}

	row := r.pool.QueryRow(ctx, `
		INSERT INTO automation_rules (id, tenant_id, name, is_active, trigger_type, trigger_config, action_type, action_config)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING `+ruleColumns,
		rule.ID, rule.TenantID, rule.Name, rule.IsActive,
		string(rule.Trigger.Type()), triggerConfig, string(rule.Action.Type()), actionConfig)
	return scanRule(row)
}

// SetActive toggles a rule.
func (r *Repository) SetActive(ctx context.Context, tenantID, ruleID uuid.UUID, active bool) (domain.Rule, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE automation_rules
		SET is_active = $3, updated_at = now()
		WHERE id = $1 AND tenant_id = $2
		RETURNING `+ruleColumns, ruleID, tenantID, active)
	rule, err := scanRule(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Rule{}, ErrRuleNotFound
	}
	return rule, err
}

// DeleteRule removes a rule.
func (r *Repository) DeleteRule(ctx context.Context, tenantID, ruleID uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM automation_rules WHERE id = $1 AND tenant_id = $2`, ruleID, tenantID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrRuleNotFound
	}
	return nil
}

// RecordRuleRun adds executed actions to the trigger count and stamps the run.
// The increment happens in SQL so overlapping runs do not lose counts.
func (r *Repository) RecordRuleRun(ctx context.Context, tenantID, ruleID uuid.UUID, actions int, at time.Time) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE automation_rules
		SET trigger_count = trigger_count + $3, last_triggered_at = $4, updated_at = now()
		WHERE id = $1 AND tenant_id = $2`, ruleID, tenantID, actions, at)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrRuleNotFound
	}
	return nil
}

// InsertTask stores a follow-up task.
func (r *Repository) InsertTask(ctx context.Context, task domain.Task) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO lead_tasks (id, tenant_id, lead_id, title, description, priority, status, due_at)
		VALUES ($1, $2, $3, $4, $5, $6, 'pending', $7)`,
		task.ID, task.TenantID, task.LeadID, task.Title, task.Description, task.Priority, task.DueAt)
	return err
}

// InsertNotification stores a tenant notification.
func (r *Repository) InsertNotification(ctx context.Context, n domain.Notification) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO pipeline_notifications (id, tenant_id, lead_id, kind, title, message)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		n.ID, n.TenantID, n.LeadID, n.Kind, n.Title, n.Message)
	return err
}

// GetMessagingInstance resolves a tenant's messaging credentials.
func (r *Repository) GetMessagingInstance(ctx context.Context, tenantID, instanceID uuid.UUID) (domain.MessagingInstance, error) {
	var inst domain.MessagingInstance
	err := r.pool.QueryRow(ctx, `
		SELECT id, tenant_id, instance_name, token
		FROM messaging_instances
		WHERE id = $1 AND tenant_id = $2`, instanceID, tenantID).
		Scan(&inst.ID, &inst.TenantID, &inst.InstanceName, &inst.Token)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.MessagingInstance{}, ErrInstanceNotFound
	}
	return inst, err
}
