package maintenance

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/adhocore/gronx"

	"github.com/angeloszaimis/routekit/internal/cache"
	"github.com/angeloszaimis/routekit/internal/ratelimit"
)

const DefaultSchedule = "* * * * *"

// Task is one unit of housekeeping. It reports how many items it removed.
type Task struct {
	Name string
	Run  func(ctx context.Context) (int, error)
}

type Scheduler struct {
	expr   string
	tasks  []Task
	logger *slog.Logger
}

// New validates expr, a standard five-field cron expression.
func New(expr string, logger *slog.Logger, tasks ...Task) (*Scheduler, error) {
	if expr == "" {
		expr = DefaultSchedule
	}
	if !gronx.IsValid(expr) {
		return nil, fmt.Errorf("invalid maintenance schedule %q", expr)
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Scheduler{expr: expr, tasks: tasks, logger: logger}, nil
}

// Next returns the first tick strictly after t.
func (s *Scheduler) Next(t time.Time) (time.Time, error) {
	return gronx.NextTickAfter(s.expr, t, false)
}

// RunOnce runs every task in order. A failing task does not stop the rest.
func (s *Scheduler) RunOnce(ctx context.Context) {
	for _, task := range s.tasks {
		start := time.Now()
		removed, err := task.Run(ctx)
		if err != nil {
			s.logger.Error("Maintenance task failed",
				slog.String("task", task.Name),
				slog.Any("err", err))
			continue
		}
		s.logger.Debug("Maintenance task finished",
			slog.String("task", task.Name),
			slog.Int("removed", removed),
			slog.Duration("duration", time.Since(start)))
	}
}

// Run sleeps until each tick and runs the tasks, until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) {
	s.logger.Info("Maintenance scheduler started", slog.String("schedule", s.expr))

	for {
		next, err := s.Next(time.Now())
		wait := time.Until(next)
		if err != nil {
			s.logger.Error("Failed to compute next maintenance tick", slog.Any("err", err))
			wait = 30 * time.Second
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			s.logger.Info("Maintenance scheduler stopped")
			return
		case <-timer.C:
			if err == nil {
				s.RunOnce(ctx)
			}
		}
	}
}

// SweepCache drops expired cache entries.
func SweepCache(engine *cache.Engine) Task {
	return Task{
		Name: "cache_sweep",
		Run: func(context.Context) (int, error) {
			return engine.Sweep(), nil
		},
	}
}

// SweepLimiter drops rate limit buckets idle for longer than idleTTL.
func SweepLimiter(limiter *ratelimit.Limiter, idleTTL time.Duration) Task {
	return Task{
		Name: "ratelimit_sweep",
		Run: func(context.Context) (int, error) {
			return limiter.Sweep(idleTTL), nil
		},
	}
}
