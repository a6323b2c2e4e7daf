package scheduler

import (
	"context"
	"fmt"
	"time"

	"crm_pipeline_backend/platform/config"
	"crm_pipeline_backend/platform/logger"

	"github.com/hibiken/asynq"
)

const defaultSweepCron = "@every 15m"

// Periodic enqueues the automation sweep on a cron schedule.
type Periodic struct {
	scheduler *asynq.Scheduler
	log       *logger.Logger
}

func NewPeriodic(cfg config.SchedulerConfig, log *logger.Logger) (*Periodic, error) {
	redisURL := cfg.GetRedisURL()
	if redisURL == "" {
		return nil, fmt.Errorf("redis url not configured")
	}

	opt, err := redisClientOpt(redisURL, cfg.GetRedisTLSInsecure())
	if err != nil {
		return nil, err
	}

	expr := cfg.GetAutomationSweepCron()
	if expr == "" {
		expr = defaultSweepCron
	}

	scheduler := asynq.NewScheduler(opt, &asynq.SchedulerOpts{Location: time.UTC})
	if _, err := scheduler.Register(expr, NewAutomationSweepTask(), asynq.Queue(defaultQueue)); err != nil {
		return nil, fmt.Errorf("register automation sweep %q: %w", expr, err)
	}

	log.Info("automation sweep scheduled", "cron", expr)
	return &Periodic{scheduler: scheduler, log: log}, nil
}

// Run enqueues sweeps until ctx is cancelled.
func (p *Periodic) Run(ctx context.Context) error {
	if p == nil || p.scheduler == nil {
		return nil
	}
	if err := p.scheduler.Start(); err != nil {
		return fmt.Errorf("start periodic scheduler: %w", err)
	}
	<-ctx.Done()
	p.scheduler.Shutdown()
	p.log.Info("periodic scheduler stopped")
	return nil
}
