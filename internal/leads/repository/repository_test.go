package repository

import (
	"strings"
	"testing"
	"time"

	"crm_pipeline_backend/internal/leads/domain"

	"github.com/google/uuid"
)

func TestBuildLeadListWhereTenantOnly(t *testing.T) {
	tenantID := uuid.New()
	where, args, next := buildLeadListWhere(tenantID, domain.Filter{})

	if where != "l.tenant_id = $1" {
		t.Errorf("where = %q", where)
	}
	if len(args) != 1 || args[0] != tenantID {
		t.Errorf("args = %v", args)
	}
	if next != 2 {
		t.Errorf("next arg index = %d, want 2", next)
	}
}

func TestBuildLeadListWhereAllFilters(t *testing.T) {
	minScore, maxScore := 10, 90
	minValue := int64(100)
	from := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	where, args, next := buildLeadListWhere(uuid.New(), domain.Filter{
		Statuses:    []domain.Status{domain.StatusProposal},
		MinScore:    &minScore,
		MaxScore:    &maxScore,
		MinValue:    &minValue,
		CreatedFrom: &from,
		Tags:        []string{"vip"},
	})

	for _, fragment := range []string{
		"l.status = ANY($2)",
		"l.score >= $3",
		"l.score <= $4",
		"l.estimated_value >= $5",
		"l.created_at >= $6",
		"l.tags @> $7",
	} {
		if !strings.Contains(where, fragment) {
			t.Errorf("where %q missing %q", where, fragment)
		}
	}
	if len(args) != 7 || next != 8 {
		t.Errorf("len(args) = %d, next = %d", len(args), next)
	}
}

func TestBuildLeadListWhereNewIncludesEmptyStatus(t *testing.T) {
	where, _, _ := buildLeadListWhere(uuid.New(), domain.Filter{Statuses: []domain.Status{domain.StatusNew}})
	if !strings.Contains(where, "l.status = ''") {
		t.Errorf("where %q does not include empty status rows", where)
	}
}
