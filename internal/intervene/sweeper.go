package intervene

import (
	"context"
	"log/slog"

	"github.com/robfig/cron/v3"
)

// DefaultSweepSchedule runs the sweep once a minute, well inside the 300s
// record deadline.
const DefaultSweepSchedule = "@every 1m"

// Sweeper periodically finalizes waiting records past their deadline. The
// deadline is a soft one: the sweeper only flips status to expired; the
// dependent step fails the next time its plan is touched.
type Sweeper struct {
	manager  *Manager
	cron     *cron.Cron
	schedule string
	logger   *slog.Logger
}

// NewSweeper creates a Sweeper on the given cron schedule; an empty schedule
// uses DefaultSweepSchedule.
func NewSweeper(manager *Manager, schedule string, logger *slog.Logger) *Sweeper {
	if schedule == "" {
		schedule = DefaultSweepSchedule
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Sweeper{
		manager:  manager,
		cron:     cron.New(),
		schedule: schedule,
		logger:   logger,
	}
}

// Start schedules the sweep and begins running it.
func (s *Sweeper) Start() error {
	_, err := s.cron.AddFunc(s.schedule, func() {
		if err := s.Sweep(context.Background()); err != nil {
			s.logger.Warn("intervention sweep failed", "error", err.Error())
		}
	})
	if err != nil {
		return err
	}
	s.cron.Start()
	return nil
}

// Stop halts the schedule and waits for a running sweep to finish.
func (s *Sweeper) Stop() {
	<-s.cron.Stop().Done()
}

// Sweep scans all intervention records once and expires the stale ones.
func (s *Sweeper) Sweep(ctx context.Context) error {
	keys, err := s.manager.kv.Keys(ctx, "intervention:*")
	if err != nil {
		return err
	}

	expired := 0
	for _, k := range keys {
		rec, ok, err := s.manager.get(ctx, k)
		if err != nil || !ok {
			continue
		}
		if rec.Status == StatusWaiting && s.manager.isExpired(rec) {
			s.manager.expire(ctx, rec)
			expired++
		}
	}

	if expired > 0 {
		s.logger.Info("expired stale interventions", "count", expired, "scanned", len(keys))
	}
	return nil
}
