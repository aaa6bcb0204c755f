package monitor

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-co-op/gocron/v2"
)

// Scheduler runs monitoring passes on a fixed interval. A pass that is still
// running when the next tick fires delays that tick instead of overlapping.
type Scheduler struct {
	engine   *Engine
	interval time.Duration
	logger   *slog.Logger
}

func NewScheduler(engine *Engine, interval time.Duration, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		engine:   engine,
		interval: interval,
		logger:   logger.With("component", "scheduler"),
	}
}

// Run starts with an immediate pass and blocks until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) error {
	sched, err := gocron.NewScheduler()
	if err != nil {
		return fmt.Errorf("failed to create scheduler: %w", err)
	}

	_, err = sched.NewJob(
		gocron.DurationJob(s.interval),
		gocron.NewTask(func() {
			s.engine.CheckPrices(ctx)
		}),
		gocron.WithName("price-check"),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
		gocron.WithStartAt(gocron.WithStartImmediately()),
	)
	if err != nil {
		_ = sched.Shutdown()
		return fmt.Errorf("failed to schedule price check: %w", err)
	}

	s.logger.Info("monitor started", "interval", s.interval)
	sched.Start()

	<-ctx.Done()

	s.logger.Info("monitor stopping")
	if err := sched.Shutdown(); err != nil {
		return fmt.Errorf("failed to stop scheduler: %w", err)
	}
	return nil
}
