package store

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// Pruner periodically applies a RetentionPolicy to the revision log, on a
// cron schedule. One pruner per store; runs are serialized.
type Pruner struct {
	store     Store
	policy    RetentionPolicy
	schedule  cron.Schedule
	logger    *slog.Logger
	tickEvery time.Duration
	cancel    context.CancelFunc
	done      chan struct{}
	mu        sync.Mutex

	nextRun time.Time
}

// NewPruner creates a Pruner that fires on the given cron expression
// (standard five-field syntax, e.g. "0 3 * * *" for daily at 03:00).
func NewPruner(s Store, policy RetentionPolicy, cronExpr string, logger *slog.Logger) (*Pruner, error) {
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	schedule, err := parser.Parse(cronExpr)
	if err != nil {
		return nil, fmt.Errorf("parse cron expression %q: %w", cronExpr, err)
	}
	return &Pruner{
		store:     s,
		policy:    policy,
		schedule:  schedule,
		logger:    logger,
		tickEvery: 60 * time.Second,
	}, nil
}

// Start launches the background pruning loop with a 60s ticker.
func (p *Pruner) Start(ctx context.Context) error {
	p.mu.Lock()
	if p.done != nil {
		p.mu.Unlock()
		return fmt.Errorf("pruner already started")
	}

	pruneCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.done = make(chan struct{})
	p.nextRun = p.schedule.Next(time.Now().UTC())
	p.mu.Unlock()

	go p.loop(pruneCtx)
	p.logger.Info("revision pruner started", slog.Time("next_run", p.nextRun))
	return nil
}

func (p *Pruner) loop(ctx context.Context) {
	defer close(p.done)

	ticker := time.NewTicker(p.tickEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.tick(ctx)
		}
	}
}

// tick runs a prune when the schedule is due and advances the next run.
func (p *Pruner) tick(ctx context.Context) {
	now := time.Now().UTC()

	p.mu.Lock()
	due := !p.nextRun.After(now)
	if due {
		p.nextRun = p.schedule.Next(now)
	}
	p.mu.Unlock()

	if !due {
		return
	}
	if err := p.RunOnce(ctx); err != nil {
		p.logger.Error("revision prune failed", slog.String("error", err.Error()))
	}
}

// RunOnce applies the retention policy immediately.
func (p *Pruner) RunOnce(ctx context.Context) error {
	deleted, err := p.store.PruneRevisions(ctx, p.policy)
	if err != nil {
		return err
	}
	if deleted > 0 {
		p.logger.Info("pruned revisions", slog.Int64("deleted", deleted))
	}
	return nil
}

// Stop gracefully shuts down the pruner. The mutex is released before
// waiting for the loop: tick takes it to advance nextRun, so holding it
// here would deadlock against a tick already in flight.
func (p *Pruner) Stop() error {
	p.mu.Lock()
	if p.cancel == nil {
		p.mu.Unlock()
		return nil
	}
	cancel := p.cancel
	done := p.done
	p.cancel = nil
	p.done = nil
	p.mu.Unlock()

	cancel()
	<-done

	p.logger.Info("revision pruner stopped")
	return nil
}
