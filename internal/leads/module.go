// Package leads provides the pipeline bounded context module.
// This file defines the module that encapsulates all leads setup and route registration.
package leads

import (
	"context"

	"crm_pipeline_backend/internal/events"
	apphttp "crm_pipeline_backend/internal/http"
	"crm_pipeline_backend/internal/leads/handler"
	"crm_pipeline_backend/internal/leads/repository"
	"crm_pipeline_backend/internal/leads/service"
	"crm_pipeline_backend/internal/leads/store"
	"crm_pipeline_backend/platform/config"
	"crm_pipeline_backend/platform/logger"
	"crm_pipeline_backend/platform/metrics"
	"crm_pipeline_backend/platform/validator"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Module is the leads bounded context module implementing http.Module.
type Module struct {
	handler *handler.Handler
	service *service.Service
	store   *store.Store
	repo    *repository.Repository
}

// NewModule creates and initializes the leads module with all its dependencies.
func NewModule(pool *pgxpool.Pool, eventBus events.Bus, val *validator.Validator, cfg config.PipelineConfig, log *logger.Logger, m *metrics.Metrics) (*Module, error) {
	if err := handler.RegisterValidations(val); err != nil {
		return nil, err
	}

	repo := repository.New(pool)
	leadStore := store.New(repo, store.OptionsFrom(cfg), log, m)
	svc := service.New(leadStore, repo, eventBus, log, m)

	// Automations write through the repository; pick their edits up on the next reconcile.
	eventBus.Subscribe(events.LeadFieldsChanged{}.EventName(), events.HandlerFunc(func(ctx context.Context, event events.Event) error {
		e, ok := event.(events.LeadFieldsChanged)
		if !ok {
			return nil
		}
		leadStore.Invalidate(e.TenantID)
		return nil
	}))

	return &Module{
		handler: handler.New(svc, val),
		service: svc,
		store:   leadStore,
		repo:    repo,
	}, nil
}

// Name returns the module identifier.
func (m *Module) Name() string {
	return "leads"
}

// Service returns the pipeline service for external use.
func (m *Module) Service() *service.Service {
	return m.service
}

// Repository returns the lead repository for cross-module adapters.
func (m *Module) Repository() *repository.Repository {
	return m.repo
}

// Start runs the snapshot janitor until ctx is cancelled.
func (m *Module) Start(ctx context.Context) {
	go m.store.RunJanitor(ctx)
}

// Close stops pending reconciliations.
func (m *Module) Close() {
	m.store.Close()
}

// RegisterRoutes mounts pipeline routes on the provided router context.
func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	m.handler.RegisterRoutes(ctx.Protected.Group("/pipeline"))
}

// Compile-time check that Module implements http.Module
var _ apphttp.Module = (*Module)(nil)
