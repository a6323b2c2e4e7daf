package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"crm_pipeline_backend/internal/leads/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	ErrNotFound     = errors.New("lead not found")
	ErrStaleVersion = errors.New("lead was modified concurrently")
)

type Repository struct {
	pool *pgxpool.Pool
}

func New(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const leadColumns = `
	l.id, l.tenant_id, l.display_name, l.phone, l.remote_jid, l.status, l.estimated_value, l.score,
	l.win_probability, l.last_interaction_at, l.closed_at, l.loss_reason, l.loss_reason_details,
	l.tags, l.notes, l.version, l.created_at, l.updated_at,
	(SELECT count(*) FROM lead_custom_field_values cf WHERE cf.lead_id = l.id AND cf.value <> '')::int`

func scanLead(row pgx.Row) (domain.Lead, error) {
	var lead domain.Lead
	var status string
	err := row.Scan(
		&lead.ID, &lead.TenantID, &lead.DisplayName, &lead.Phone, &lead.RemoteJID, &status, &lead.EstimatedValue, &lead.Score,
		&lead.WinProbability, &lead.LastInteractionAt, &lead.ClosedAt, &lead.LossReason, &lead.LossReasonDetails,
		&lead.Tags, &lead.Notes, &lead.Version, &lead.CreatedAt, &lead.UpdatedAt,
		&lead.CustomFieldsCount,
	)
	lead.Status = domain.Status(status)
	return lead, err
}

// GetByID returns a single lead scoped to the tenant.
func (r *Repository) GetByID(ctx context.Context, tenantID, id uuid.UUID) (domain.Lead, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+leadColumns+`
		FROM leads l
		WHERE l.id = $1 AND l.tenant_id = $2`, id, tenantID)
	lead, err := scanLead(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Lead{}, ErrNotFound
	}
	return lead, err
}

// ListPage returns one page of leads ordered by most recent update.
func (r *Repository) ListPage(ctx context.Context, tenantID uuid.UUID, filter domain.Filter, offset, limit int) ([]domain.Lead, error) {
	where, args, argIdx := buildLeadListWhere(tenantID, filter)
	query := fmt.Sprintf(`SELECT %s
		FROM leads l
		WHERE %s
		ORDER BY l.updated_at DESC, l.id
		LIMIT $%d OFFSET $%d`, leadColumns, where, argIdx, argIdx+1)
	args = append(args, limit, offset)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	leads := make([]domain.Lead, 0, limit)
	for rows.Next() {
		lead, err := scanLead(rows)
		if err != nil {
			return nil, err
		}
		leads = append(leads, lead)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return leads, nil
}

func buildLeadListWhere(tenantID uuid.UUID, filter domain.Filter) (string, []interface{}, int) {
	// Tenant is always the first filter (mandatory for tenant isolation)
	whereClauses := []string{"l.tenant_id = $1"}
	args := []interface{}{tenantID}
	argIdx := 2

	add := func(clause string, value interface{}) {
		whereClauses = append(whereClauses, fmt.Sprintf(clause, argIdx))
		args = append(args, value)
		argIdx++
	}

	if len(filter.Statuses) > 0 {
		statuses := make([]string, 0, len(filter.Statuses))
		includesNew := false
		for _, s := range filter.Statuses {
			statuses = append(statuses, string(s))
			includesNew = includesNew || s == domain.StatusNew
		}
		if includesNew {
			// Rows with an empty status are displayed in the New column.
			add("(l.status = ANY($%d) OR l.status = '')", statuses)
		} else {
			add("l.status = ANY($%d)", statuses)
		}
	}
	if filter.MinScore != nil {
		add("l.score >= $%d", *filter.MinScore)
	}
	if filter.MaxScore != nil {
		add("l.score <= $%d", *filter.MaxScore)
	}
	if filter.MinValue != nil {
		add("l.estimated_value >= $%d", *filter.MinValue)
	}
	if filter.MaxValue != nil {
		add("l.estimated_value <= $%d", *filter.MaxValue)
	}
	if filter.CreatedFrom != nil {
		add("l.created_at >= $%d", *filter.CreatedFrom)
	}
	if filter.CreatedTo != nil {
		add("l.created_at <= $%d", *filter.CreatedTo)
	}
	if len(filter.Tags) > 0 {
		add("l.tags @> $%d", filter.Tags)
	}

	return strings.Join(whereClauses, " AND "), args, argIdx
}

// Update writes the patch. When expectedVersion is positive the write only succeeds
// if the stored version still matches; ErrStaleVersion is returned otherwise.
func (r *Repository) Update(ctx context.Context, tenantID, id uuid.UUID, expectedVersion int64, patch domain.Patch) (domain.Lead, error) {
	setClauses := []string{}
	args := []interface{}{}
	argIdx := 1

	fields := []struct {
		enabled bool
		column  string
		value   interface{}
	}{
		{patch.Status != nil, "status", statusValue(patch.Status)},
		{patch.DisplayName != nil, "display_name", patch.DisplayName},
		{patch.EstimatedValue != nil, "estimated_value", patch.EstimatedValue},
		{patch.Score != nil, "score", patch.Score},
		{patch.Notes != nil, "notes", patch.Notes},
		{patch.Tags != nil, "tags", tagsValue(patch.Tags)},
		{patch.WinProbability.Set, "win_probability", patch.WinProbability.Value},
		{patch.LastInteractionAt.Set, "last_interaction_at", patch.LastInteractionAt.Value},
		{patch.ClosedAt.Set, "closed_at", patch.ClosedAt.Value},
		{patch.LossReason.Set, "loss_reason", patch.LossReason.Value},
		{patch.LossReasonDetails.Set, "loss_reason_details", patch.LossReasonDetails.Value},
	}

	for _, field := range fields {
		if !field.enabled {
			continue
		}
		setClauses = append(setClauses, fmt.Sprintf("%s = $%d", field.column, argIdx))
		args = append(args, field.value)
		argIdx++
	}

	if len(setClauses) == 0 {
		return r.GetByID(ctx, tenantID, id)
	}

	setClauses = append(setClauses, "version = l.version + 1", "updated_at = now()")
	args = append(args, id, tenantID)
	where := fmt.Sprintf("l.id = $%d AND l.tenant_id = $%d", argIdx, argIdx+1)
	if expectedVersion > 0 {
		where += fmt.Sprintf(" AND l.version = $%d", argIdx+2)
		args = append(args, expectedVersion)
	}

	query := fmt.Sprintf(`
		UPDATE leads l SET %s
		WHERE %s
		RETURNING %s`, strings.Join(setClauses, ", "), where, leadColumns)

	lead, err := scanLead(r.pool.QueryRow(ctx, query, args...))
	if errors.Is(err, pgx.ErrNoRows) {
		if expectedVersion > 0 {
			if _, getErr := r.GetByID(ctx, tenantID, id); getErr == nil {
				return domain.Lead{}, ErrStaleVersion
			}
		}
		return domain.Lead{}, ErrNotFound
	}
	return lead, err
}

func statusValue(s *domain.Status) interface{} {
	if s == nil {
		return nil
	}
	return string(*s)
}

func tagsValue(tags *[]string) interface{} {
	if tags == nil || *tags == nil {
		return []string{}
	}
	return *tags
}
