package service

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"crm_pipeline_backend/internal/automation/domain"
	"crm_pipeline_backend/internal/automation/repository"
	"crm_pipeline_backend/platform/apperr"
	"crm_pipeline_backend/platform/sanitize"

	"github.com/google/uuid"
)

const ruleNotFoundMessage = "automation rule not found"

// RuleAdmin is the persistence surface of rule management.
type RuleAdmin interface {
	ListRules(ctx context.Context, tenantID uuid.UUID) ([]domain.Rule, error)
	CreateRule(ctx context.Context, rule domain.Rule) (domain.Rule, error)
	SetActive(ctx context.Context, tenantID, ruleID uuid.UUID, active bool) (domain.Rule, error)
	DeleteRule(ctx context.Context, tenantID, ruleID uuid.UUID) error
}

// Runner executes rules on demand.
type Runner interface {
	Run(ctx context.Context, tenantID uuid.UUID, event *domain.StatusChangeEvent) (domain.RunSummary, error)
}

// Service manages a tenant's rules and runs them on request.
type Service struct {
	repo   RuleAdmin
	runner Runner
}

func New(repo RuleAdmin, runner Runner) *Service {
	return &Service{repo: repo, runner: runner}
}

// CreateRuleInput carries raw configs; they are decoded and validated here.
type CreateRuleInput struct {
	Name          string
	IsActive      *bool
	TriggerType   string
	TriggerConfig json.RawMessage
	ActionType    string
	ActionConfig  json.RawMessage
}

func (s *Service) ListRules(ctx context.Context, tenantID uuid.UUID) ([]domain.Rule, error) {
	rules, err := s.repo.ListRules(ctx, tenantID)
	if err != nil {
		return nil, apperr.Unavailable("automation rules could not be loaded", err)
	}
	return rules, nil
}

func (s *Service) CreateRule(ctx context.Context, tenantID uuid.UUID, in CreateRuleInput) (domain.Rule, error) {
	name := strings.TrimSpace(sanitize.Text(in.Name))
	if name == "" {
		return domain.Rule{}, apperr.Validation("name is required")
	}
	trigger, err := domain.DecodeTrigger(domain.TriggerType(in.TriggerType), in.TriggerConfig)
	if err != nil {
		return domain.Rule{}, apperr.Validation(err.Error())
	}
	action, err := domain.DecodeAction(domain.ActionType(in.ActionType), in.ActionConfig)
	if err != nil {
		return domain.Rule{}, apperr.Validation(err.Error())
	}

	active := true
	if in.IsActive != nil {
		active = *in.IsActive
	}
	rule, err := s.repo.CreateRule(ctx, domain.Rule{
		ID:       uuid.New(),
		TenantID: tenantID,
		Name:     name,
		IsActive: active,
		Trigger:  trigger,
		Action:   action,
	})
	if err != nil {
		return domain.Rule{}, apperr.Unavailable("automation rule could not be saved", err)
	}
	return rule, nil
}

func (s *Service) SetActive(ctx context.Context, tenantID, ruleID uuid.UUID, active bool) (domain.Rule, error) {
	rule, err := s.repo.SetActive(ctx, tenantID, ruleID, active)
	if err != nil {
		return domain.Rule{}, mapRuleError(err)
	}
	return rule, nil
}

func (s *Service) DeleteRule(ctx context.Context, tenantID, ruleID uuid.UUID) error {
	return mapRuleError(s.repo.DeleteRule(ctx, tenantID, ruleID))
}

// RunNow runs the tenant's rules synchronously, optionally for one status change.
func (s *Service) RunNow(ctx context.Context, tenantID uuid.UUID, event *domain.StatusChangeEvent) (domain.RunSummary, error) {
	return s.runner.Run(ctx, tenantID, event)
}

func mapRuleError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, repository.ErrRuleNotFound):
		return apperr.NotFound(ruleNotFoundMessage)
	default:
		return apperr.Unavailable("automation rule could not be saved", err)
	}
}
