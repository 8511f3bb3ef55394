// Package scheduler prunes old gateway event rows on a cron schedule.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"donasiku_backend/internals/features/donations/gateway_events/repository"
)

const (
	DefaultSchedule      = "15 2 * * *"
	DefaultRetentionDays = 90
	runTimeout           = 4 * time.Minute
)

type ReaperConfig struct {
	Schedule      string
	RetentionDays int
}

type Reaper struct {
	repo   repository.Repository
	cfg    ReaperConfig
	logger *slog.Logger
	now    func() time.Time
	cron   *cron.Cron
}

func NewReaper(repo repository.Repository, cfg ReaperConfig, logger *slog.Logger) *Reaper {
	if cfg.Schedule == "" {
		cfg.Schedule = DefaultSchedule
	}
	if cfg.RetentionDays <= 0 {
		cfg.RetentionDays = DefaultRetentionDays
	}
	return &Reaper{repo: repo, cfg: cfg, logger: logger, now: time.Now}
}

// RunOnce deletes every delivery older than the retention window.
func (r *Reaper) RunOnce(ctx context.Context) (int64, error) {
	cutoff := r.now().UTC().Add(-time.Duration(r.cfg.RetentionDays) * 24 * time.Hour)
	n, err := r.repo.PurgeBefore(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("purge gateway events: %w", err)
	}
	r.logger.Info("gateway events reaped", "deleted", n, "cutoff", cutoff.Format(time.RFC3339))
	return n, nil
}

// Start schedules RunOnce. Overlapping runs are skipped.
func (r *Reaper) Start() error {
	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cronLogger{r.logger})))
	if _, err := c.AddFunc(r.cfg.Schedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), runTimeout)
		defer cancel()
		if _, err := r.RunOnce(ctx); err != nil {
			r.logger.Error("gateway event reaper", "error", err)
		}
	}); err != nil {
		return fmt.Errorf("add reaper schedule %q: %w", r.cfg.Schedule, err)
	}
	r.cron = c
	c.Start()
	r.logger.Info("gateway event reaper started", "schedule", r.cfg.Schedule, "retention_days", r.cfg.RetentionDays)
	return nil
}

// Stop waits for a running purge to finish.
func (r *Reaper) Stop() {
	if r.cron == nil {
		return
	}
	<-r.cron.Stop().Done()
}

// cronLogger routes cron's own messages through slog.
type cronLogger struct{ l *slog.Logger }

func (c cronLogger) Info(msg string, kv ...interface{}) { c.l.Debug("cron: "+msg, kv...) }

func (c cronLogger) Error(err error, msg string, kv ...interface{}) {
	c.l.Error("cron: "+msg, append(kv, "error", err)...)
}
