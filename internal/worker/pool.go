// Package worker runs the concurrent consumption side: a pool of workers
// pulling document ids off the queue, plus a reclaimer that returns stale
// claims to the queue.
package worker

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/ekuelkpodar/DocumentIntelligencePipeline/internal/queue"
)

// Processor is the per-document entry point; the orchestrator implements it.
type Processor interface {
	Process(ctx context.Context, documentID uuid.UUID) error
}

type Pool struct {
	queue   queue.Queue
	proc    Processor
	workers int
	logger  *slog.Logger
}

func NewPool(q queue.Queue, proc Processor, workers int, logger *slog.Logger) *Pool {
	if workers < 1 {
		workers = 4
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Pool{queue: q, proc: proc, workers: workers, logger: logger}
}

// Run blocks until ctx is cancelled, then drains: workers finish their
// in-flight document before exiting.
func (p *Pool) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	for i := 1; i <= p.workers; i++ {
		workerID := i
		g.Go(func() error {
			p.logger.Info("worker.started", "worker_id", workerID)
			defer p.logger.Info("worker.stopped", "worker_id", workerID)
			for {
				if ctx.Err() != nil {
					return nil
				}
				id, err := p.queue.Dequeue(ctx)
				if errors.Is(err, queue.ErrEmpty) {
					continue
				}
				if err != nil {
					if ctx.Err() != nil {
						return nil
					}
					p.logger.Error("worker.dequeue_failed", "worker_id", workerID, "error", err)
					continue
				}
				// Deliberately not ctx: an in-flight document finishes
				// its current stage even during shutdown; the claim
				// guard covers the rest.
				if err := p.proc.Process(context.WithoutCancel(ctx), id); err != nil {
					p.logger.Error("worker.process_failed",
						"worker_id", workerID, "document_id", id, "error", err)
				}
			}
		})
	}
	return g.Wait()
}

// StaleDocs is the repository slice the reclaimer needs.
type StaleDocs interface {
	StaleProcessing(ctx context.Context, liveness time.Duration, limit int) ([]uuid.UUID, error)
	RequeueStale(ctx context.Context, id uuid.UUID, liveness time.Duration) (bool, error)
}

// Reclaimer periodically sweeps claims that outlived the liveness window and
// puts their documents back on the queue for a fresh run.
type Reclaimer struct {
	docs     StaleDocs
	queue    queue.Queue
	liveness time.Duration
	interval time.Duration
	logger   *slog.Logger
}

func NewReclaimer(docs StaleDocs, q queue.Queue, liveness time.Duration, logger *slog.Logger) *Reclaimer {
	if logger == nil {
		logger = slog.Default()
	}
	interval := liveness / 2
	if interval < time.Minute {
		interval = time.Minute
	}
	return &Reclaimer{docs: docs, queue: q, liveness: liveness, interval: interval, logger: logger}
}

func (r *Reclaimer) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			r.sweep(ctx)
		}
	}
}

func (r *Reclaimer) sweep(ctx context.Context) {
	ids, err := r.docs.StaleProcessing(ctx, r.liveness, 100)
	if err != nil {
		r.logger.Error("reclaimer.query_failed", "error", err)
		return
	}
	for _, id := range ids {
		ok, err := r.docs.RequeueStale(ctx, id, r.liveness)
		if err != nil {
			r.logger.Error("reclaimer.requeue_failed", "document_id", id, "error", err)
			continue
		}
		if !ok {
			// Claim refreshed or finished since the query; leave it be.
			continue
		}
		if err := r.queue.Enqueue(ctx, id); err != nil {
			r.logger.Error("reclaimer.enqueue_failed", "document_id", id, "error", err)
			continue
		}
		r.logger.Warn("reclaimer.reclaimed", "document_id", id, "liveness", r.liveness)
	}
}
