// Package scheduler runs the periodic maintenance jobs of the progression service.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-co-op/gocron/v2"
)

// ChallengeRotator assigns fresh daily challenges.
type ChallengeRotator interface {
	RotateDailyChallenges(ctx context.Context, day time.Time) (int, error)
}

// DLQProcessor retries dead-lettered outbox rows.
type DLQProcessor interface {
	RunOnce(ctx context.Context, batchSize int) (int, error)
}

// Config controls job cadence.
type Config struct {
	RotationInterval time.Duration
	DLQInterval      time.Duration
	DLQBatchSize     int
	JobTimeout       time.Duration
}

// Scheduler wraps a gocron scheduler with the service's jobs.
type Scheduler struct {
	cron   gocron.Scheduler
	logger *slog.Logger
	cfg    Config
	today  func() time.Time
}

// New builds a Scheduler. today returns the current calendar day in the streak timezone.
// dlq may be nil, in which case no DLQ job is registered.
func New(cfg Config, rotator ChallengeRotator, today func() time.Time, dlq DLQProcessor, logger *slog.Logger) (*Scheduler, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.JobTimeout <= 0 {
		cfg.JobTimeout = 5 * time.Minute
	}

	cron, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("create scheduler: %w", err)
	}
	s := &Scheduler{cron: cron, logger: logger, cfg: cfg, today: today}

	if rotator != nil && cfg.RotationInterval > 0 {
		if _, err := cron.NewJob(
			gocron.DurationJob(cfg.RotationInterval),
			gocron.NewTask(func() { s.rotateChallenges(context.Background(), rotator) }),
			gocron.WithName("rotate-daily-challenges"),
			gocron.WithSingletonMode(gocron.LimitModeReschedule),
		); err != nil {
			return nil, fmt.Errorf("register rotation job: %w", err)
		}
	}

	if dlq != nil && cfg.DLQInterval > 0 {
		if _, err := cron.NewJob(
			gocron.DurationJob(cfg.DLQInterval),
			gocron.NewTask(func() { s.processDLQ(context.Background(), dlq) }),
			gocron.WithName("outbox-dlq"),
			gocron.WithSingletonMode(gocron.LimitModeReschedule),
		); err != nil {
			return nil, fmt.Errorf("register dlq job: %w", err)
		}
	}
	return s, nil
}

// Start begins running jobs in the background.
func (s *Scheduler) Start() {
	s.cron.Start()
}

// Shutdown stops the scheduler and waits for running jobs.
func (s *Scheduler) Shutdown() error {
	return s.cron.Shutdown()
}

func (s *Scheduler) rotateChallenges(ctx context.Context, rotator ChallengeRotator) int {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.JobTimeout)
	defer cancel()

	rotated, err := rotator.RotateDailyChallenges(ctx, s.today())
	if err != nil {
		s.logger.ErrorContext(ctx, "challenge rotation failed", slog.Int("rotated", rotated), slog.Any("error", err))
	}
	return rotated
}

func (s *Scheduler) processDLQ(ctx context.Context, dlq DLQProcessor) int {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.JobTimeout)
	defer cancel()

	processed, err := dlq.RunOnce(ctx, s.cfg.DLQBatchSize)
	if err != nil {
		s.logger.ErrorContext(ctx, "dlq processing failed", slog.Any("error", err))
	} else if processed > 0 {
		s.logger.InfoContext(ctx, "dlq entries requeued", slog.Int("requeued", processed))
	}
	return processed
}
