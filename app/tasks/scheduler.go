package tasks

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/lysyi3m/linksift/app/database"
	"github.com/lysyi3m/linksift/app/metrics"
)

const (
	DefaultInterval   = 5 * time.Second
	DefaultStaleAfter = 10 * time.Minute
	DefaultRunTimeout = 5 * time.Minute
)

var _ TaskSchedulerInterface = (*Scheduler)(nil)

type SchedulerOptions struct {
	Interval   time.Duration
	StaleAfter time.Duration
	RunTimeout time.Duration
	Metrics    *metrics.Metrics
}

// Scheduler polls every worker on a fixed interval. A worker whose previous
// invocation is still running is skipped for that tick; different workers
// run concurrently.
type Scheduler struct {
	queue      database.QueueRepository
	workers    []Worker
	busy       []atomic.Bool
	interval   time.Duration
	staleAfter time.Duration
	runTimeout time.Duration
	metrics    *metrics.Metrics
	ctx        context.Context
	cancel     context.CancelFunc
	wg         sync.WaitGroup
}

func NewScheduler(queue database.QueueRepository, workers []Worker, opts SchedulerOptions) *Scheduler {
	if opts.Interval <= 0 {
		opts.Interval = DefaultInterval
	}
	if opts.StaleAfter <= 0 {
		opts.StaleAfter = DefaultStaleAfter
	}
	if opts.RunTimeout <= 0 {
		opts.RunTimeout = DefaultRunTimeout
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Scheduler{
		queue:      queue,
		workers:    workers,
		busy:       make([]atomic.Bool, len(workers)),
		interval:   opts.Interval,
		staleAfter: opts.StaleAfter,
		runTimeout: opts.RunTimeout,
		metrics:    opts.Metrics,
		ctx:        ctx,
		cancel:     cancel,
	}
}

func (s *Scheduler) Start() {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		s.tick()

		for {
			select {
			case <-s.ctx.Done():
				return
			case <-ticker.C:
				s.tick()
			}
		}
	}()

	slog.Debug("Scheduler started", "interval", s.interval, "workers", len(s.workers))
}

// Stop cancels in-flight runs and waits for them to return.
func (s *Scheduler) Stop() {
	s.cancel()
	s.wg.Wait()
}

func (s *Scheduler) tick() {
	s.maintain()

	for i := range s.workers {
		if !s.busy[i].CompareAndSwap(false, true) {
			slog.Debug("Worker still running, skipping tick", "type", s.workers[i].Type())
			s.metrics.ObserveWorker(stepOf(s.workers[i]), metrics.OutcomeSkipped, 0)
			continue
		}

		s.wg.Add(1)
		go func(i int) {
			defer s.wg.Done()
			defer s.busy[i].Store(false)
			s.execute(s.workers[i])
		}(i)
	}
}

func (s *Scheduler) execute(w Worker) {
	ctx, cancel := context.WithTimeout(s.ctx, s.runTimeout)
	defer cancel()

	// Run logs its own outcome.
	_, _ = w.Run(ctx, nil)
}

// maintain returns stale claims to the queue and refreshes the status gauges.
func (s *Scheduler) maintain() {
	reclaimed, err := s.queue.ReclaimStale(s.ctx, s.staleAfter)
	if err != nil {
		slog.Error("Failed to reclaim stale claims", "error", err)
	} else if reclaimed > 0 {
		s.metrics.AddReclaimed(reclaimed)
		slog.Warn("Reclaimed stale claims", "count", reclaimed, "stale_after", s.staleAfter)
	}

	if s.metrics == nil {
		return
	}

	counts, err := s.queue.CountByStatus(s.ctx)
	if err != nil {
		slog.Error("Failed to count links", "error", err)
		return
	}

	byStatus := make(map[string]int, len(counts))
	for status, n := range counts {
		byStatus[string(status)] = n
	}
	s.metrics.SetLinkCounts(byStatus)
}

func stepOf(w Worker) string {
	if w.Type() == TaskTypeEmbedLink {
		return string(database.StepEmbed)
	}
	return string(database.StepFetch)
}
