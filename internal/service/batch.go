package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/olegk/qrsync/internal/logger"
)

// ErrJobActive is returned when a run is triggered for a job id that
// already has an active run. At most one run owns a job id at a time.
var ErrJobActive = errors.New("a batch run is already active for this job")

// Outcome classifies what happened to one work item.
type Outcome int

const (
	OutcomeCreated Outcome = iota
	OutcomeUpdated
	OutcomeSkipped
	OutcomeErrored
)

// String returns the lowercase outcome name.
func (o Outcome) String() string {
	switch o {
	case OutcomeCreated:
		return "created"
	case OutcomeUpdated:
		return "updated"
	case OutcomeSkipped:
		return "skipped"
	default:
		return "errored"
	}
}

// Result is what an item handler returns instead of throwing: the outcome
// plus the error when the item failed.
type Result struct {
	Outcome Outcome
	Err     error
}

// Created marks an item that produced a new record.
func Created() Result { return Result{Outcome: OutcomeCreated} }

// Updated marks an item that overwrote an existing record.
func Updated() Result { return Result{Outcome: OutcomeUpdated} }

// Skipped marks an item that needed no work.
func Skipped() Result { return Result{Outcome: OutcomeSkipped} }

// Errored marks a failed item. The batch continues regardless.
func Errored(err error) Result { return Result{Outcome: OutcomeErrored, Err: err} }

// Summary aggregates item outcomes across one batch run. Errored items are
// counted separately; they are never folded into the success buckets.
type Summary struct {
	Created int `json:"created"`
	Updated int `json:"updated"`
	Skipped int `json:"skipped"`
	Errored int `json:"errored"`
}

func (s *Summary) add(r Result) {
	switch r.Outcome {
	case OutcomeCreated:
		s.Created++
	case OutcomeUpdated:
		s.Updated++
	case OutcomeSkipped:
		s.Skipped++
	case OutcomeErrored:
		s.Errored++
	}
}

// ItemFunc handles one work item by index.
type ItemFunc func(ctx context.Context, index int) Result

// BatchProcessor drives a failure-isolated sweep over a sequence of work
// items, advancing the job registry after every item. One bad item never
// aborts the batch: "batch completed" and "every item succeeded" are
// deliberately different statements.
type BatchProcessor struct {
	jobs    JobStore
	logger  *logger.Logger
	workers int

	mu     sync.Mutex
	active map[string]*runSlot
}

// runSlot marks a job id as held. A reservation starts unclaimed; Run claims
// it when the batch actually starts.
type runSlot struct {
	claimed bool
}

// NewBatchProcessor creates a new batch processor.
// Parameters:
//   - jobs: job registry the processor reports progress to.
//   - log: logger instance.
//   - workers: item-handling parallelism; values below 1 mean sequential.
// Returns:
//   - *BatchProcessor: initialized processor.
func NewBatchProcessor(jobs JobStore, log *logger.Logger, workers int) *BatchProcessor {
	if workers < 1 {
		workers = 1
	}
	return &BatchProcessor{
		jobs:    jobs,
		logger:  log,
		workers: workers,
		active:  make(map[string]*runSlot),
	}
}

// log returns a logger from context if available, otherwise returns the default logger
func (p *BatchProcessor) log(ctx context.Context) *logger.Logger {
	if l := logger.FromContext(ctx); l != nil {
		return l
	}
	return p.logger
}

// Reserve claims the job slot ahead of a detached run, so a caller can
// reject a duplicate trigger before spawning the goroutine that ends up in
// Run. The returned release frees the slot again if the run never started;
// it is a no-op once Run has claimed the reservation.
func (p *BatchProcessor) Reserve(jobID string) (release func(), err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, held := p.active[jobID]; held {
		return nil, ErrJobActive
	}
	slot := &runSlot{}
	p.active[jobID] = slot
	return func() {
		p.mu.Lock()
		defer p.mu.Unlock()
		if cur, ok := p.active[jobID]; ok && cur == slot && !cur.claimed {
			delete(p.active, jobID)
		}
	}, nil
}

func (p *BatchProcessor) acquire(jobID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if slot, held := p.active[jobID]; held {
		if slot.claimed {
			return ErrJobActive
		}
		slot.claimed = true
		return nil
	}
	p.active[jobID] = &runSlot{claimed: true}
	return nil
}

// Running reports whether a run or reservation currently owns the job id.
func (p *BatchProcessor) Running(jobID string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, running := p.active[jobID]
	return running
}

func (p *BatchProcessor) release(jobID string) {
	p.mu.Lock()
	delete(p.active, jobID)
	p.mu.Unlock()
}

// Run sweeps n work items with the handler, updating the job after each
// item. The processed counter tracks items attempted, not items succeeded;
// it reaches n exactly once every item has been attempted, and done flips
// only after the last handler has returned. Cancellation is checked between
// items, never mid-item.
// Parameters:
//   - ctx: context for cancellation.
//   - jobID: id of the job registry entry owning this run.
//   - n: number of work items.
//   - handle: per-item handler; its Result is aggregated into the summary.
// Returns:
//   - *Summary: outcome counts across all attempted items.
//   - error: ErrJobActive, a registry failure, or the context error on
//     cancellation; per-item failures are never returned here.
func (p *BatchProcessor) Run(ctx context.Context, jobID string, n int, handle ItemFunc) (*Summary, error) {
	if err := p.acquire(jobID); err != nil {
		return nil, err
	}
	defer p.release(jobID)

	if _, err := p.jobs.CreateOrGet(ctx, jobID); err != nil {
		return nil, fmt.Errorf("failed to register job: %w", err)
	}
	if err := p.jobs.SetTotal(ctx, jobID, n); err != nil {
		return nil, fmt.Errorf("failed to start job run: %w", err)
	}

	log := p.log(ctx).WithFields(logger.Fields{
		logger.FieldJobID: jobID,
		logger.FieldCount: n,
	})
	log.Info("Starting batch run")

	summary := &Summary{}
	var (
		summaryMu sync.Mutex
		attempted int64
	)

	process := func(index int) {
		result := p.invoke(ctx, index, handle)
		if result.Err != nil {
			p.log(ctx).WithFields(logger.Fields{
				logger.FieldJobID: jobID,
				"item":            index,
			}).WithError(result.Err).Error("Item failed")
		}

		summaryMu.Lock()
		summary.add(result)
		summaryMu.Unlock()

		// Progress must be visible to pollers before the next item starts.
		done := int(atomic.AddInt64(&attempted, 1))
		if err := p.jobs.Advance(ctx, jobID, done); err != nil {
			log.WithError(err).Warn("Failed to persist progress")
		}
	}

	if p.workers == 1 {
		for i := 0; i < n; i++ {
			if ctx.Err() != nil {
				break
			}
			process(i)
		}
	} else {
		indexCh := make(chan int)
		var wg sync.WaitGroup
		for w := 0; w < p.workers; w++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for i := range indexCh {
					process(i)
				}
			}()
		}

	feed:
		for i := 0; i < n; i++ {
			select {
			case indexCh <- i:
			case <-ctx.Done():
				break feed
			}
		}
		close(indexCh)
		wg.Wait()
	}

	if err := ctx.Err(); err != nil {
		log.WithField("attempted", atomic.LoadInt64(&attempted)).Warn("Batch run cancelled")
		return summary, err
	}

	if err := p.jobs.MarkDone(ctx, jobID); err != nil {
		return summary, fmt.Errorf("failed to mark job done: %w", err)
	}

	log.WithFields(logger.Fields{
		"created": summary.Created,
		"updated": summary.Updated,
		"skipped": summary.Skipped,
		"errored": summary.Errored,
	}).Info("Batch run completed")

	return summary, nil
}

// invoke shields the sweep from a panicking handler.
func (p *BatchProcessor) invoke(ctx context.Context, index int, handle ItemFunc) (result Result) {
	defer func() {
		if r := recover(); r != nil {
			result = Errored(fmt.Errorf("item handler panic: %v", r))
		}
	}()
	return handle(ctx, index)
}
