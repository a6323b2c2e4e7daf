// Package automation provides the rule-driven automation bounded context.
// This file wires the evaluator, rule management and the status-change subscriber.
package automation

import (
	"context"

	"crm_pipeline_backend/internal/automation/domain"
	"crm_pipeline_backend/internal/automation/handler"
	"crm_pipeline_backend/internal/automation/repository"
	"crm_pipeline_backend/internal/automation/service"
	"crm_pipeline_backend/internal/events"
	apphttp "crm_pipeline_backend/internal/http"
	leaddomain "crm_pipeline_backend/internal/leads/domain"
	leadrepo "crm_pipeline_backend/internal/leads/repository"
	"crm_pipeline_backend/internal/scheduler"
	"crm_pipeline_backend/platform/logger"
	"crm_pipeline_backend/platform/metrics"
	"crm_pipeline_backend/platform/validator"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Module is the automation bounded context module implementing http.Module.
type Module struct {
	handler   *handler.Handler
	service   *service.Service
	evaluator *service.Evaluator
}

// Deps groups the collaborators the module borrows from other contexts.
// Sender and Enqueuer may be nil: messages then fail per action and
// status-change runs happen in-process.
type Deps struct {
	Pool     *pgxpool.Pool
	Bus      events.Bus
	Leads    leadrepo.LeadsRepository
	Sender   service.MessageSender
	Enqueuer scheduler.StatusChangeEnqueuer
	Val      *validator.Validator
	Log      *logger.Logger
	Metrics  *metrics.Metrics
}

// NewModule creates the automation module and subscribes it to status changes.
func NewModule(deps Deps) *Module {
	repo := repository.New(deps.Pool)
	evaluator := service.NewEvaluator(repo, deps.Leads, deps.Sender, deps.Bus, deps.Log, deps.Metrics)
	svc := service.New(repo, evaluator)

	deps.Bus.Subscribe(events.LeadStatusChanged{}.EventName(), StatusChangeHandler(deps.Enqueuer, evaluator, deps.Log))

	return &Module{
		handler:   handler.New(svc, deps.Val),
		service:   svc,
		evaluator: evaluator,
	}
}

// StatusChangeHandler queues an automation run for every persisted status change.
// Without a queue, or when enqueueing fails, the run happens inline.
func StatusChangeHandler(enqueuer scheduler.StatusChangeEnqueuer, runner service.Runner, log *logger.Logger) events.Handler {
	return events.HandlerFunc(func(ctx context.Context, event events.Event) error {
		e, ok := event.(events.LeadStatusChanged)
		if !ok {
			return nil
		}

		if enqueuer != nil {
			err := enqueuer.EnqueueStatusChange(ctx, scheduler.AutomationStatusChangePayload{
				TenantID:  e.TenantID.String(),
				LeadID:    e.LeadID.String(),
				OldStatus: e.OldStatus,
				NewStatus: e.NewStatus,
			})
			if err == nil {
				return nil
			}
			log.WithContext(ctx).Warn("automation enqueue failed, running inline", "leadId", e.LeadID, "error", err)
		}

		_, err := runner.Run(ctx, e.TenantID, &domain.StatusChangeEvent{
			LeadID:    e.LeadID,
			OldStatus: leaddomain.Status(e.OldStatus),
			NewStatus: leaddomain.Status(e.NewStatus),
		})
		return err
	})
}

// Name returns the module identifier.
func (m *Module) Name() string {
	return "automation"
}

// Evaluator returns the rule evaluator for the scheduler worker.
func (m *Module) Evaluator() *service.Evaluator {
	return m.evaluator
}

// RegisterRoutes mounts automation routes on the provided router context.
func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	m.handler.RegisterRoutes(ctx.Protected.Group("/automations"))
}

// Compile-time check that Module implements http.Module
var _ apphttp.Module = (*Module)(nil)
