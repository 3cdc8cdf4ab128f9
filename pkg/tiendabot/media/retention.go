package media

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// RetentionConfig schedules deletion of old assets.
type RetentionConfig struct {
	// Enabled turns on the retention job.
	Enabled bool `yaml:"enabled"`

	// Schedule is a cron expression or descriptor (e.g. "@daily").
	Schedule string `yaml:"schedule"`

	// MaxAge is how long an asset is kept.
	MaxAge time.Duration `yaml:"max_age"`
}

// DefaultRetentionConfig keeps assets for 30 days, pruning daily, disabled.
func DefaultRetentionConfig() RetentionConfig {
	return RetentionConfig{
		Enabled:  false,
		Schedule: "@daily",
		MaxAge:   30 * 24 * time.Hour,
	}
}

// Pruner deletes assets older than a given age.
type Pruner interface {
	Prune(ctx context.Context, maxAge time.Duration) (int, error)
}

// Retention runs a Pruner on a cron schedule.
type Retention struct {
	cfg    RetentionConfig
	pruner Pruner
	cron   *cron.Cron
	logger *slog.Logger
}

// NewRetention validates the schedule and prepares the job.
func NewRetention(cfg RetentionConfig, pruner Pruner, logger *slog.Logger) (*Retention, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Schedule == "" {
		cfg.Schedule = "@daily"
	}
	if cfg.MaxAge <= 0 {
		return nil, fmt.Errorf("retention max_age must be positive, got %s", cfg.MaxAge)
	}

	c := cron.New(cron.WithParser(cron.NewParser(
		cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
	)))

	r := &Retention{
		cfg:    cfg,
		pruner: pruner,
		cron:   c,
		logger: logger.With("component", "asset-retention"),
	}
	if _, err := c.AddFunc(cfg.Schedule, func() { r.RunOnce(context.Background()) }); err != nil {
		return nil, fmt.Errorf("invalid retention schedule %q: %w", cfg.Schedule, err)
	}
	return r, nil
}

// Start begins the cron scheduler.
func (r *Retention) Start() {
	r.cron.Start()
	r.logger.Info("asset retention started",
		"schedule", r.cfg.Schedule,
		"max_age", r.cfg.MaxAge)
}

// Stop stops the scheduler and waits for a running prune, up to 10 seconds.
func (r *Retention) Stop() {
	ctx := r.cron.Stop()
	select {
	case <-ctx.Done():
	case <-time.After(10 * time.Second):
		r.logger.Warn("asset retention stop timed out")
	}
}

// RunOnce prunes immediately.
func (r *Retention) RunOnce(ctx context.Context) int {
	n, err := r.pruner.Prune(ctx, r.cfg.MaxAge)
	if err != nil {
		r.logger.Error("asset prune failed", "error", err)
	}
	if n > 0 {
		r.logger.Info("old assets deleted", "count", n)
	}
	return n
}
