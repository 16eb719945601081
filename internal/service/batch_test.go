package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/olegk/qrsync/internal/domain"
	"github.com/olegk/qrsync/internal/logger"
	"github.com/olegk/qrsync/internal/repository"
)

// fakeJobStore is an in-memory JobStore recording every progress value it
// was advanced to.
type fakeJobStore struct {
	mu       sync.Mutex
	jobs     map[string]*domain.SyncJob
	advances []int
}

func newFakeJobStore() *fakeJobStore {
	return &fakeJobStore{jobs: make(map[string]*domain.SyncJob)}
}

func (s *fakeJobStore) CreateOrGet(_ context.Context, id string) (*domain.SyncJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if j, ok := s.jobs[id]; ok {
		cp := *j
		return &cp, nil
	}
	j := &domain.SyncJob{ID: id}
	s.jobs[id] = j
	cp := *j
	return &cp, nil
}

func (s *fakeJobStore) SetTotal(_ context.Context, id string, total int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[id]
	if !ok {
		return repository.ErrNotFound
	}
	j.Total = total
	j.Processed = 0
	j.Done = false
	return nil
}

func (s *fakeJobStore) Advance(_ context.Context, id string, processed int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[id]
	if !ok {
		return repository.ErrNotFound
	}
	// Mirrors the SQL guard: progress never moves backwards.
	if processed > j.Processed {
		j.Processed = processed
	}
	s.advances = append(s.advances, j.Processed)
	return nil
}

func (s *fakeJobStore) MarkDone(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[id]
	if !ok {
		return repository.ErrNotFound
	}
	j.Done = true
	return nil
}

func (s *fakeJobStore) Get(_ context.Context, id string) (*domain.SyncJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *j
	return &cp, nil
}

func testLogger() *logger.Logger {
	return logger.NewDefault()
}

func TestRunCompletesJob(t *testing.T) {
	testCases := []struct {
		name    string
		n       int
		workers int
	}{
		{name: "sequential", n: 5, workers: 1},
		{name: "parallel", n: 20, workers: 4},
		{name: "empty batch", n: 0, workers: 1},
		{name: "single item", n: 1, workers: 1},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			jobs := newFakeJobStore()
			p := NewBatchProcessor(jobs, testLogger(), tc.workers)

			summary, err := p.Run(context.Background(), "job", tc.n, func(context.Context, int) Result {
				return Created()
			})
			if err != nil {
				t.Fatalf("Run failed: %v", err)
			}
			if summary.Created != tc.n {
				t.Errorf("created = %d, want %d", summary.Created, tc.n)
			}

			job, err := jobs.Get(context.Background(), "job")
			if err != nil {
				t.Fatalf("Get failed: %v", err)
			}
			if job.Processed != tc.n {
				t.Errorf("processed = %d, want %d", job.Processed, tc.n)
			}
			if job.Total != tc.n {
				t.Errorf("total = %d, want %d", job.Total, tc.n)
			}
			if !job.Done {
				t.Error("job not marked done")
			}
		})
	}
}

func TestRunIsolatesFailures(t *testing.T) {
	jobs := newFakeJobStore()
	p := NewBatchProcessor(jobs, testLogger(), 1)

	results := []Result{Created(), Errored(errors.New("boom")), Updated()}
	summary, err := p.Run(context.Background(), "job", len(results), func(_ context.Context, i int) Result {
		return results[i]
	})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if summary.Created != 1 || summary.Updated != 1 || summary.Errored != 1 {
		t.Errorf("summary = %+v, want created=1 updated=1 errored=1", summary)
	}

	job, _ := jobs.Get(context.Background(), "job")
	if job.Processed != 3 {
		t.Errorf("processed = %d, want 3: a failed item still counts as attempted", job.Processed)
	}
	if !job.Done {
		t.Error("job not marked done despite item failure")
	}
}

func TestRunRecoversPanickingHandler(t *testing.T) {
	jobs := newFakeJobStore()
	p := NewBatchProcessor(jobs, testLogger(), 1)

	summary, err := p.Run(context.Background(), "job", 3, func(_ context.Context, i int) Result {
		if i == 1 {
			panic("handler exploded")
		}
		return Skipped()
	})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if summary.Errored != 1 {
		t.Errorf("errored = %d, want 1", summary.Errored)
	}
	if summary.Skipped != 2 {
		t.Errorf("skipped = %d, want 2", summary.Skipped)
	}

	job, _ := jobs.Get(context.Background(), "job")
	if !job.Done {
		t.Error("job not marked done after handler panic")
	}
}

func TestRunMonotonicProgress(t *testing.T) {
	jobs := newFakeJobStore()
	p := NewBatchProcessor(jobs, testLogger(), 8)

	_, err := p.Run(context.Background(), "job", 50, func(context.Context, int) Result {
		return Updated()
	})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	jobs.mu.Lock()
	defer jobs.mu.Unlock()
	prev := 0
	for i, v := range jobs.advances {
		if v < prev {
			t.Fatalf("progress went backwards at advance %d: %d -> %d", i, prev, v)
		}
		prev = v
	}
	if prev != 50 {
		t.Errorf("final progress = %d, want 50", prev)
	}
}

func TestRunRejectsConcurrentRun(t *testing.T) {
	jobs := newFakeJobStore()
	p := NewBatchProcessor(jobs, testLogger(), 1)

	started := make(chan struct{})
	release := make(chan struct{})
	done := make(chan struct{})

	go func() {
		defer close(done)
		_, _ = p.Run(context.Background(), "job", 1, func(context.Context, int) Result {
			close(started)
			<-release
			return Created()
		})
	}()

	<-started
	if !p.Running("job") {
		t.Error("Running = false for an active job")
	}
	_, err := p.Run(context.Background(), "job", 1, func(context.Context, int) Result {
		return Created()
	})
	if !errors.Is(err, ErrJobActive) {
		t.Errorf("err = %v, want ErrJobActive", err)
	}

	close(release)
	<-done

	// A finished run frees the id for the next one.
	if _, err := p.Run(context.Background(), "job", 1, func(context.Context, int) Result {
		return Created()
	}); err != nil {
		t.Errorf("rerun after completion failed: %v", err)
	}
}

func TestReserveBlocksSecondTrigger(t *testing.T) {
	jobs := newFakeJobStore()
	p := NewBatchProcessor(jobs, testLogger(), 1)

	release, err := p.Reserve("job")
	if err != nil {
		t.Fatalf("Reserve failed: %v", err)
	}
	if !p.Running("job") {
		t.Error("Running = false for a reserved job")
	}
	if _, err := p.Reserve("job"); !errors.Is(err, ErrJobActive) {
		t.Errorf("second Reserve err = %v, want ErrJobActive", err)
	}

	// A run that never starts must hand the slot back.
	release()
	if p.Running("job") {
		t.Error("Running = true after releasing an unused reservation")
	}
	if _, err := p.Reserve("job"); err != nil {
		t.Errorf("Reserve after release failed: %v", err)
	}
}

func TestReserveHandsSlotToRun(t *testing.T) {
	jobs := newFakeJobStore()
	p := NewBatchProcessor(jobs, testLogger(), 1)

	release, err := p.Reserve("job")
	if err != nil {
		t.Fatalf("Reserve failed: %v", err)
	}

	if _, err := p.Run(context.Background(), "job", 2, func(context.Context, int) Result {
		return Created()
	}); err != nil {
		t.Fatalf("Run under reservation failed: %v", err)
	}
	release()

	// Run claimed and freed the slot; the late release must not have
	// clobbered a fresh reservation either.
	if p.Running("job") {
		t.Error("Running = true after the reserved run completed")
	}
	if _, err := p.Reserve("job"); err != nil {
		t.Errorf("Reserve after completed run failed: %v", err)
	}
}

func TestRunCancellation(t *testing.T) {
	jobs := newFakeJobStore()
	p := NewBatchProcessor(jobs, testLogger(), 1)

	ctx, cancel := context.WithCancel(context.Background())
	var handled int
	summary, err := p.Run(ctx, "job", 10, func(context.Context, int) Result {
		handled++
		if handled == 3 {
			cancel()
		}
		return Created()
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if summary.Created != 3 {
		t.Errorf("created = %d, want 3", summary.Created)
	}

	job, _ := jobs.Get(context.Background(), "job")
	if job.Done {
		t.Error("cancelled run must not mark the job done")
	}
	if job.Processed != 3 {
		t.Errorf("processed = %d, want 3", job.Processed)
	}
}

func TestRunParallelCancellation(t *testing.T) {
	jobs := newFakeJobStore()
	p := NewBatchProcessor(jobs, testLogger(), 4)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := p.Run(ctx, "job", 100, func(context.Context, int) Result {
		time.Sleep(time.Millisecond)
		return Created()
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}

	job, _ := jobs.Get(context.Background(), "job")
	if job.Done {
		t.Error("cancelled run must not mark the job done")
	}
}

func TestOutcomeString(t *testing.T) {
	testCases := []struct {
		outcome Outcome
		want    string
	}{
		{OutcomeCreated, "created"},
		{OutcomeUpdated, "updated"},
		{OutcomeSkipped, "skipped"},
		{OutcomeErrored, "errored"},
	}
	for _, tc := range testCases {
		if got := tc.outcome.String(); got != tc.want {
			t.Errorf("Outcome(%d).String() = %q, want %q", tc.outcome, got, tc.want)
		}
	}
}
