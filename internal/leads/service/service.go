// Package service implements the pipeline state machine and the read models
// built on top of the lead store.
package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"crm_pipeline_backend/internal/events"
	"crm_pipeline_backend/internal/leads/analytics"
	"crm_pipeline_backend/internal/leads/domain"
	"crm_pipeline_backend/internal/leads/repository"
	"crm_pipeline_backend/internal/leads/scoring"
	"crm_pipeline_backend/platform/apperr"
	"crm_pipeline_backend/platform/logger"
	"crm_pipeline_backend/platform/metrics"
	"crm_pipeline_backend/platform/sanitize"

	"github.com/google/uuid"
)

const leadNotFoundMessage = "lead not found"

// LeadStore is the cached, optimistic view of a tenant's leads.
type LeadStore interface {
	List(ctx context.Context, tenantID uuid.UUID, filter domain.Filter) ([]domain.Lead, error)
	Get(tenantID, leadID uuid.UUID) (domain.Lead, bool)
	Update(ctx context.Context, tenantID, leadID uuid.UUID, expectedVersion int64, patch domain.Patch) (domain.Lead, error)
	Refresh(ctx context.Context, tenantID uuid.UUID, force bool) error
}

// Repository is the authoritative lookup and audit sink.
type Repository interface {
	repository.LeadReader
	repository.ActivityLogger
}

type Service struct {
	store   LeadStore
	repo    Repository
	bus     events.Bus
	log     *logger.Logger
	metrics *metrics.Metrics
	now     func() time.Time

	activityDelay time.Duration
}

func New(store LeadStore, repo Repository, bus events.Bus, log *logger.Logger, m *metrics.Metrics) *Service {
	return &Service{
		store:   store,
		repo:    repo,
		bus:     bus,
		log:     log,
		metrics: m,
		now:     time.Now,

		activityDelay: activityBaseDelay,
	}
}

// MoveRequest describes a status transition.
type MoveRequest struct {
	Status            domain.Status
	LossReason        *string
	LossReasonDetails *string
}

// MoveLead transitions a lead to a new status. The status change is always
// written to the activity log, including failed attempts. Moving a lead to the
// status it already has is a no-op unless a loss reason is being recorded.
// A write rejected for a stale version is retried once against the stored row.
func (s *Service) MoveLead(ctx context.Context, tenantID uuid.UUID, actorID *uuid.UUID, leadID uuid.UUID, req MoveRequest) (domain.Lead, error) {
	if !req.Status.IsKnown() {
		return domain.Lead{}, apperr.Validation(fmt.Sprintf("unknown status %q", req.Status))
	}

	lead, err := s.lookup(ctx, tenantID, leadID)
	if err != nil {
		return domain.Lead{}, err
	}
	if isNoopMove(lead, req.Status, req.LossReason) {
		return lead, nil
	}

	now := s.now()
	oldStatus := lead.Status.OrDefault()
	patch := BuildTransitionPatch(lead, req.Status, req.LossReason, req.LossReasonDetails, now)

	updated, writeErr := s.store.Update(ctx, tenantID, leadID, lead.Version, patch)
	if current, ok := s.reread(ctx, tenantID, leadID, writeErr); ok {
		if isNoopMove(current, req.Status, req.LossReason) {
			return current, nil
		}
		oldStatus = current.Status.OrDefault()
		patch = BuildTransitionPatch(current, req.Status, req.LossReason, req.LossReasonDetails, now)
		updated, writeErr = s.store.Update(ctx, tenantID, leadID, current.Version, patch)
	}

	s.recordActivity(ctx, statusActivity(tenantID, leadID, actorID, oldStatus, req.Status, writeErr, now))
	s.log.WithContext(ctx).LeadMoved(tenantID.String(), leadID.String(), string(oldStatus), string(req.Status), writeErr)
	s.metrics.RecordLeadMove(string(req.Status), writeErr == nil)

	if writeErr != nil {
		return domain.Lead{}, mapWriteError(writeErr)
	}

	s.bus.Publish(ctx, events.LeadStatusChanged{
		BaseEvent: events.NewBaseEvent(),
		LeadID:    leadID,
		TenantID:  tenantID,
		ActorID:   actorID,
		OldStatus: string(oldStatus),
		NewStatus: string(req.Status),
	})
	return updated, nil
}

// FieldsUpdate edits lead fields outside of a status transition.
// RecordInteraction defaults to true: the edit counts as an interaction.
type FieldsUpdate struct {
	DisplayName       *string
	EstimatedValue    *int64
	Notes             *string
	Tags              *[]string
	WinProbability    domain.Optional[int]
	RecordInteraction *bool
}

// UpdateFields applies a field edit and recomputes the score.
func (s *Service) UpdateFields(ctx context.Context, tenantID uuid.UUID, actorID *uuid.UUID, leadID uuid.UUID, req FieldsUpdate) (domain.Lead, error) {
	if req.EstimatedValue != nil && *req.EstimatedValue < 0 {
		return domain.Lead{}, apperr.Validation("estimated value must not be negative")
	}
	if p := req.WinProbability.Value; p != nil && (*p < 0 || *p > 100) {
		return domain.Lead{}, apperr.Validation("win probability must be between 0 and 100")
	}

	lead, err := s.lookup(ctx, tenantID, leadID)
	if err != nil {
		return domain.Lead{}, err
	}

	now := s.now()
	patch := domain.Patch{
		DisplayName:    sanitize.TextPtr(req.DisplayName),
		EstimatedValue: req.EstimatedValue,
		Notes:          sanitize.TextPtr(req.Notes),
		Tags:           req.Tags,
		WinProbability: req.WinProbability,
	}
	if req.RecordInteraction == nil || *req.RecordInteraction {
		patch.LastInteractionAt = domain.SetTo(now)
	}
	if patch.IsEmpty() {
		return lead, nil
	}
	score := scoring.Score(patch.Apply(lead), lead.CustomFieldsCount, now)
	patch.Score = &score

	updated, err := s.store.Update(ctx, tenantID, leadID, lead.Version, patch)
	if current, ok := s.reread(ctx, tenantID, leadID, err); ok {
		score = scoring.Score(patch.Apply(current), current.CustomFieldsCount, now)
		patch.Score = &score
		updated, err = s.store.Update(ctx, tenantID, leadID, current.Version, patch)
	}
	if err != nil {
		return domain.Lead{}, mapWriteError(err)
	}

	fields := patch.Fields()
	s.recordActivity(ctx, domain.Activity{
		ID:          uuid.New(),
		LeadID:      leadID,
		TenantID:    tenantID,
		ActorID:     actorID,
		Kind:        domain.ActivityFieldsUpdated,
		Description: "Lead updated",
		Metadata:    map[string]any{"fields": fields},
		CreatedAt:   now,
	})
	s.bus.Publish(ctx, events.LeadFieldsChanged{
		BaseEvent: events.NewBaseEvent(),
		LeadID:    leadID,
		TenantID:  tenantID,
		Fields:    fields,
	})
	return updated, nil
}

// ColumnsView is the board: one column per status plus headline figures.
type ColumnsView struct {
	Columns []analytics.Column `json:"columns"`
	Summary analytics.Summary  `json:"summary"`
}

// Columns groups the tenant's leads by status.
func (s *Service) Columns(ctx context.Context, tenantID uuid.UUID, filter domain.Filter) (ColumnsView, error) {
	leads, err := s.ListLeads(ctx, tenantID, filter)
	if err != nil {
		return ColumnsView{}, err
	}
	return ColumnsView{
		Columns: analytics.GroupColumns(leads),
		Summary: analytics.Summarize(leads),
	}, nil
}

// ListLeads returns the cached leads matching filter.
func (s *Service) ListLeads(ctx context.Context, tenantID uuid.UUID, filter domain.Filter) ([]domain.Lead, error) {
	leads, err := s.store.List(ctx, tenantID, filter)
	if err != nil {
		return nil, apperr.Unavailable("leads could not be loaded", err)
	}
	return leads, nil
}

// TemporalMetrics computes the period report over every lead of the tenant.
func (s *Service) TemporalMetrics(ctx context.Context, tenantID uuid.UUID, period string) (analytics.Report, error) {
	preset, err := analytics.ParsePreset(period)
	if err != nil {
		return analytics.Report{}, apperr.Validation(err.Error())
	}
	leads, err := s.ListLeads(ctx, tenantID, domain.Filter{})
	if err != nil {
		return analytics.Report{}, err
	}
	return analytics.Compute(leads, preset, s.now())
}

// ScoreCard explains a lead's score.
type ScoreCard struct {
	LeadID      uuid.UUID         `json:"leadId"`
	Score       int               `json:"score"`
	Breakdown   scoring.Breakdown `json:"breakdown"`
	Level       scoring.Level     `json:"level"`
	Description string            `json:"description"`
	Tips        []string          `json:"tips"`
}

// ScoreCard recomputes the score of a lead as of now.
func (s *Service) ScoreCard(ctx context.Context, tenantID, leadID uuid.UUID) (ScoreCard, error) {
	lead, err := s.lookup(ctx, tenantID, leadID)
	if err != nil {
		return ScoreCard{}, err
	}
	now := s.now()
	breakdown := scoring.Explain(lead, lead.CustomFieldsCount, now)
	level := scoring.LevelFor(breakdown.Total)
	return ScoreCard{
		LeadID:      leadID,
		Score:       breakdown.Total,
		Breakdown:   breakdown,
		Level:       level,
		Description: level.Description(),
		Tips:        scoring.Tips(lead, now),
	}, nil
}

// Refresh reloads every cached view of the tenant.
func (s *Service) Refresh(ctx context.Context, tenantID uuid.UUID) error {
	if err := s.store.Refresh(ctx, tenantID, true); err != nil {
		return apperr.Unavailable("leads could not be reloaded", err)
	}
	return nil
}

// lookup prefers the cached snapshot and falls back to the repository.
func (s *Service) lookup(ctx context.Context, tenantID, leadID uuid.UUID) (domain.Lead, error) {
	if lead, ok := s.store.Get(tenantID, leadID); ok {
		return lead, nil
	}
	lead, err := s.repo.GetByID(ctx, tenantID, leadID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return domain.Lead{}, apperr.NotFound(leadNotFoundMessage)
		}
		return domain.Lead{}, apperr.Unavailable("lead lookup failed", err)
	}
	return lead, nil
}

// reread returns the stored row after a write lost a version race. The cached
// copy may lag writers that bypass the store, such as the automation worker.
func (s *Service) reread(ctx context.Context, tenantID, leadID uuid.UUID, writeErr error) (domain.Lead, bool) {
	if !errors.Is(writeErr, repository.ErrStaleVersion) {
		return domain.Lead{}, false
	}
	current, err := s.repo.GetByID(ctx, tenantID, leadID)
	if err != nil {
		return domain.Lead{}, false
	}
	return current, true
}

// recordActivity never fails the caller; exhausted retries are logged.
func (s *Service) recordActivity(ctx context.Context, activity domain.Activity) {
	detached := context.WithoutCancel(ctx)
	err := withRetry(detached, s.log, "record lead activity", activityAttempts, s.activityDelay, func() error {
		return s.repo.RecordActivity(detached, activity)
	})
	if err != nil {
		s.log.WithContext(ctx).DatabaseError("record_activity", err)
	}
}

func statusActivity(tenantID, leadID uuid.UUID, actorID *uuid.UUID, from, to domain.Status, writeErr error, now time.Time) domain.Activity {
	metadata := map[string]any{
		"from":    string(from),
		"to":      string(to),
		"success": writeErr == nil,
	}
	if writeErr != nil {
		metadata["error"] = writeErr.Error()
	}
	return domain.Activity{
		ID:          uuid.New(),
		LeadID:      leadID,
		TenantID:    tenantID,
		ActorID:     actorID,
		Kind:        domain.ActivityStatusChanged,
		Description: fmt.Sprintf("Status changed from %s to %s", from.Label(), to.Label()),
		Metadata:    metadata,
		CreatedAt:   now,
	}
}

func mapWriteError(err error) error {
	var appErr *apperr.Error
	switch {
	case errors.As(err, &appErr):
		return err
	case errors.Is(err, repository.ErrStaleVersion):
		return apperr.Wrap(apperr.KindConflict, "lead was changed by someone else; reload and try again", err)
	case errors.Is(err, repository.ErrNotFound):
		return apperr.NotFound(leadNotFoundMessage)
	default:
		return apperr.Unavailable("lead could not be saved", err)
	}
}
