package repository

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
)

// UpsertCustomField stores a value keyed by (lead, field key).
func (r *Repository) UpsertCustomField(ctx context.Context, tenantID, leadID uuid.UUID, key, value string) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO lead_custom_field_values (lead_id, tenant_id, field_key, value, updated_at)
		SELECT l.id, l.tenant_id, $3, $4, now()
		FROM leads l
		WHERE l.id = $1 AND l.tenant_id = $2
		ON CONFLICT (lead_id, field_key) DO UPDATE
		SET value = EXCLUDED.value, updated_at = now()
	`, leadID, tenantID, key, value)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23503" {
			return ErrNotFound
		}
		return err
	}
	return nil
}

// CustomFields returns every stored value of a lead.
func (r *Repository) CustomFields(ctx context.Context, tenantID, leadID uuid.UUID) (map[string]string, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT field_key, value
		FROM lead_custom_field_values
		WHERE lead_id = $1 AND tenant_id = $2
		ORDER BY field_key
	`, leadID, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string]string)
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return nil, err
		}
		out[key] = value
	}
	return out, rows.Err()
}
