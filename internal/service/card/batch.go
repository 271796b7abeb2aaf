package card

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
)

// BatchRunner executes admin-triggered batch jobs on a single worker, so at
// most one heavy job runs per replica at a time.
type BatchRunner struct {
	service *Service
	jobs    chan func(ctx context.Context)
	logger  *zap.Logger
}

// ErrBusy is returned when the job backlog is full.
var ErrBusy = errors.New("batch worker busy")

func NewBatchRunner(service *Service, logger *zap.Logger) *BatchRunner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BatchRunner{
		service: service,
		jobs:    make(chan func(ctx context.Context), 8),
		logger:  logger,
	}
}

// Start consumes jobs until ctx is cancelled.
func (b *BatchRunner) Start(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case job := <-b.jobs:
			job(ctx)
		}
	}
}

func (b *BatchRunner) submit(job func(ctx context.Context)) error {
	select {
	case b.jobs <- job:
		return nil
	default:
		return ErrBusy
	}
}

// SubmitWarmup schedules a cache warm-up.
func (b *BatchRunner) SubmitWarmup() error {
	return b.submit(func(ctx context.Context) {
		if err := b.service.Warmup(ctx); err != nil {
			b.logger.Error("warm-up job failed", zap.Error(err))
		}
	})
}

// SubmitStatistics schedules catalog statistics generation.
func (b *BatchRunner) SubmitStatistics() error {
	return b.submit(func(ctx context.Context) {
		b.generateStatistics(ctx)
	})
}

// SubmitDemoJob schedules the demo batch job used by the ops endpoint.
func (b *BatchRunner) SubmitDemoJob() error {
	return b.submit(func(ctx context.Context) {
		start := time.Now()
		total, err := b.service.Count(ctx)
		if err != nil {
			b.logger.Error("demo batch job failed", zap.Error(err))
			return
		}
		b.logger.Info("demo batch job complete",
			zap.Int64("cards", total), zap.Duration("took", time.Since(start)))
	})
}

// generateStatistics walks the catalog page by page and aggregates counts by
// attribute and race. Output goes to the log; the job exists to exercise the
// batch path.
func (b *BatchRunner) generateStatistics(ctx context.Context) {
	start := time.Now()
	byAttribute := make(map[string]int)
	byRace := make(map[string]int)

	for page := 0; ; page++ {
		items, err := b.service.cards.FindPage(ctx, page, MaxPageSize)
		if err != nil {
			b.logger.Error("statistics job failed", zap.Error(err))
			return
		}
		if len(items) == 0 {
			break
		}
		for _, c := range items {
			if c.Attribute != "" {
				byAttribute[c.Attribute]++
			}
			if c.Race != "" {
				byRace[c.Race]++
			}
		}
		if len(items) < MaxPageSize {
			break
		}
	}

	b.logger.Info("catalog statistics generated",
		zap.Int("attributes", len(byAttribute)),
		zap.Int("races", len(byRace)),
		zap.Duration("took", time.Since(start)))
}
