package scheduler

import (
	"context"
	"errors"
	"fmt"

	autodomain "crm_pipeline_backend/internal/automation/domain"
	leaddomain "crm_pipeline_backend/internal/leads/domain"
	"crm_pipeline_backend/platform/apperr"
	"crm_pipeline_backend/platform/config"
	"crm_pipeline_backend/platform/logger"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
)

const sweepLockKey = "automation:sweep:lock"

// AutomationRunner is the part of the evaluator the worker drives.
type AutomationRunner interface {
	Run(ctx context.Context, tenantID uuid.UUID, event *autodomain.StatusChangeEvent) (autodomain.RunSummary, error)
	Sweep(ctx context.Context) (autodomain.RunSummary, error)
}

type Worker struct {
	server *asynq.Server
	mux    *asynq.ServeMux
	rdb    *redis.Client
	runner AutomationRunner
	lock   *Lock
	log    *logger.Logger
}

func NewWorker(cfg config.SchedulerConfig, runner AutomationRunner, log *logger.Logger) (*Worker, error) {
	redisURL := cfg.GetRedisURL()
	if redisURL == "" {
		return nil, fmt.Errorf("redis url not configured")
	}

	redisOpt, err := redisOptions(redisURL, cfg.GetRedisTLSInsecure())
	if err != nil {
		return nil, err
	}
	opt, err := redisClientOpt(redisURL, cfg.GetRedisTLSInsecure())
	if err != nil {
		return nil, err
	}

	concurrency := cfg.GetWorkerConcurrency()
	if concurrency < 1 {
		concurrency = 10
	}

	server := asynq.NewServer(opt, asynq.Config{
		Concurrency: concurrency,
		Queues: map[string]int{
			defaultQueue: 1,
		},
	})

	rdb := redis.NewClient(redisOpt)
	w := newWorker(runner, NewLock(rdb, sweepLockKey, cfg.GetAutomationLockTTL()), log)
	w.server = server
	w.rdb = rdb
	return w, nil
}

func newWorker(runner AutomationRunner, lock *Lock, log *logger.Logger) *Worker {
	w := &Worker{
		mux:    asynq.NewServeMux(),
		runner: runner,
		lock:   lock,
		log:    log,
	}
	w.mux.HandleFunc(TaskAutomationStatusChange, w.handleStatusChange)
	w.mux.HandleFunc(TaskAutomationSweep, w.handleSweep)
	return w
}

// Run processes tasks until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) error {
	if w == nil || w.server == nil {
		return nil
	}
	defer func() {
		_ = w.rdb.Close()
	}()

	if err := w.server.Start(w.mux); err != nil {
		return fmt.Errorf("start scheduler worker: %w", err)
	}
	<-ctx.Done()
	w.server.Shutdown()
	w.log.Info("scheduler worker stopped")
	return nil
}

func (w *Worker) handleStatusChange(ctx context.Context, task *asynq.Task) error {
	payload, err := ParseAutomationStatusChangePayload(task)
	if err != nil {
		return fmt.Errorf("%w: %v", asynq.SkipRetry, err)
	}

	tenantID, err := uuid.Parse(payload.TenantID)
	if err != nil {
		return fmt.Errorf("%w: tenant id: %v", asynq.SkipRetry, err)
	}
	leadID, err := uuid.Parse(payload.LeadID)
	if err != nil {
		return fmt.Errorf("%w: lead id: %v", asynq.SkipRetry, err)
	}

	event := &autodomain.StatusChangeEvent{
		LeadID:    leadID,
		OldStatus: leaddomain.Status(payload.OldStatus),
		NewStatus: leaddomain.Status(payload.NewStatus),
	}
	if _, err := w.runner.Run(ctx, tenantID, event); err != nil {
		if apperr.IsRetriable(err) {
			return err
		}
		return fmt.Errorf("%w: %v", asynq.SkipRetry, err)
	}
	return nil
}

// handleSweep runs one sweep at a time across all worker processes.
func (w *Worker) handleSweep(ctx context.Context, _ *asynq.Task) error {
	err := w.lock.WithLock(ctx, func(ctx context.Context) error {
		_, err := w.runner.Sweep(ctx)
		return err
	})
	if errors.Is(err, ErrLockHeld) {
		w.log.Info("automation sweep skipped, another sweep is running")
		return nil
	}
	return err
}
