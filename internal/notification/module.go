// Package notification delivers the notifications automations create: it keeps
// the in-app inbox, streams new entries over SSE and mirrors them by mail.
package notification

import (
	"context"
	"time"

	"crm_pipeline_backend/internal/email"
	"crm_pipeline_backend/internal/events"
	apphttp "crm_pipeline_backend/internal/http"
	"crm_pipeline_backend/internal/notification/handler"
	"crm_pipeline_backend/internal/notification/inapp"
	"crm_pipeline_backend/internal/notification/sse"
	"crm_pipeline_backend/platform/logger"

	"github.com/jackc/pgx/v5/pgxpool"
)

const mailTimeout = 30 * time.Second

// Module is the notification module implementing http.Module.
type Module struct {
	handler *handler.HTTPHandler
	sse     *sse.Service
}

// NewModule wires the inbox and subscribes to automation and pipeline events.
func NewModule(pool *pgxpool.Pool, bus events.Bus, mailer email.Sender, log *logger.Logger) *Module {
	sseSvc := sse.New(log)
	svc := inapp.NewService(inapp.NewRepository(pool))

	subscribe(bus, sseSvc, mailer, log)

	return &Module{
		handler: handler.NewHTTPHandler(svc, sseSvc),
		sse:     sseSvc,
	}
}

func subscribe(bus events.Bus, sseSvc *sse.Service, mailer email.Sender, log *logger.Logger) {
	bus.Subscribe(events.AutomationNotificationCreated{}.EventName(), NotificationCreatedHandler(sseSvc, mailer, log))
	bus.Subscribe(events.LeadStatusChanged{}.EventName(), LeadMovedHandler(sseSvc))
}

// NotificationCreatedHandler pushes the notification to connected clients and mails it.
// A mail failure is logged; the notification itself is already stored.
func NotificationCreatedHandler(sseSvc *sse.Service, mailer email.Sender, log *logger.Logger) events.Handler {
	return events.HandlerFunc(func(ctx context.Context, event events.Event) error {
		e, ok := event.(events.AutomationNotificationCreated)
		if !ok {
			return nil
		}

		sseSvc.Publish(e.TenantID, sse.Event{
			Type:    sse.EventNotification,
			LeadID:  e.LeadID,
			Message: e.Title,
			Data: inapp.Notification{
				ID:        e.NotificationID,
				TenantID:  e.TenantID,
				LeadID:    e.LeadID,
				Kind:      e.Kind,
				Title:     e.Title,
				Message:   e.Message,
				CreatedAt: e.OccurredAt(),
			},
		})

		if mailer == nil {
			return nil
		}
		mailCtx, cancel := context.WithTimeout(ctx, mailTimeout)
		defer cancel()
		if err := mailer.SendAutomationNotification(mailCtx, email.AutomationNotification{
			RuleName: e.RuleName,
			Kind:     e.Kind,
			Title:    e.Title,
			Message:  e.Message,
		}); err != nil {
			log.WithContext(ctx).WithTenantID(e.TenantID.String()).Warn("notification mail failed",
				"notificationId", e.NotificationID, "error", err)
		}
		return nil
	})
}

// LeadMovedHandler tells open boards of the tenant that a card changed column.
func LeadMovedHandler(sseSvc *sse.Service) events.Handler {
	return events.HandlerFunc(func(ctx context.Context, event events.Event) error {
		e, ok := event.(events.LeadStatusChanged)
		if !ok {
			return nil
		}
		leadID := e.LeadID
		sseSvc.Publish(e.TenantID, sse.Event{
			Type:   sse.EventLeadMoved,
			LeadID: &leadID,
			Data:   map[string]string{"oldStatus": e.OldStatus, "newStatus": e.NewStatus},
		})
		return nil
	})
}

// Name returns the module identifier.
func (m *Module) Name() string {
	return "notification"
}

// Close disconnects live streams.
func (m *Module) Close() {
	m.sse.Close()
}

// RegisterRoutes mounts notification routes on the provided router context.
func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	m.handler.RegisterRoutes(ctx.Protected.Group("/notifications"))
}

// Compile-time check that Module implements http.Module
var _ apphttp.Module = (*Module)(nil)
