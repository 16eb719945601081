package repository

import (
	"context"
	"errors"
	"testing"
)

func TestJobCreateOrGet(t *testing.T) {
	repo := NewJobRepository(newTestDB(t))
	ctx := context.Background()

	job, err := repo.CreateOrGet(ctx, "sync")
	if err != nil {
		t.Fatalf("CreateOrGet failed: %v", err)
	}
	if job.ID != "sync" || job.Total != 0 || job.Processed != 0 || job.Done {
		t.Errorf("job = %+v, want a zero-valued record", job)
	}

	if err := repo.SetTotal(ctx, "sync", 5); err != nil {
		t.Fatalf("SetTotal failed: %v", err)
	}
	// A second CreateOrGet returns the existing record untouched.
	job, err = repo.CreateOrGet(ctx, "sync")
	if err != nil {
		t.Fatalf("CreateOrGet failed: %v", err)
	}
	if job.Total != 5 {
		t.Errorf("total = %d, want 5: CreateOrGet must not reset an existing job", job.Total)
	}
}

func TestJobAdvanceIsMonotonic(t *testing.T) {
	repo := NewJobRepository(newTestDB(t))
	ctx := context.Background()

	if _, err := repo.CreateOrGet(ctx, "sync"); err != nil {
		t.Fatalf("CreateOrGet failed: %v", err)
	}
	if err := repo.SetTotal(ctx, "sync", 10); err != nil {
		t.Fatalf("SetTotal failed: %v", err)
	}

	// Writes land out of order, the way parallel workers report.
	steps := []struct {
		advance int
		want    int
	}{
		{advance: 5, want: 5},
		{advance: 3, want: 5}, // stale write, counter holds
		{advance: 5, want: 5}, // repeat, counter holds
		{advance: 7, want: 7},
		{advance: 10, want: 10},
	}
	for _, step := range steps {
		if err := repo.Advance(ctx, "sync", step.advance); err != nil {
			t.Fatalf("Advance(%d) failed: %v", step.advance, err)
		}
		job, err := repo.Get(ctx, "sync")
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		if job.Processed != step.want {
			t.Errorf("processed = %d after Advance(%d), want %d", job.Processed, step.advance, step.want)
		}
	}
}

func TestJobSetTotalStartsFreshRun(t *testing.T) {
	repo := NewJobRepository(newTestDB(t))
	ctx := context.Background()

	if _, err := repo.CreateOrGet(ctx, "sync"); err != nil {
		t.Fatalf("CreateOrGet failed: %v", err)
	}
	if err := repo.SetTotal(ctx, "sync", 3); err != nil {
		t.Fatalf("SetTotal failed: %v", err)
	}
	if err := repo.Advance(ctx, "sync", 3); err != nil {
		t.Fatalf("Advance failed: %v", err)
	}
	if err := repo.MarkDone(ctx, "sync"); err != nil {
		t.Fatalf("MarkDone failed: %v", err)
	}

	// The next run resets progress and the done flag in one write.
	if err := repo.SetTotal(ctx, "sync", 8); err != nil {
		t.Fatalf("SetTotal failed: %v", err)
	}
	job, err := repo.Get(ctx, "sync")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if job.Total != 8 || job.Processed != 0 || job.Done {
		t.Errorf("job = %+v, want total=8 processed=0 done=false", job)
	}
}

func TestJobMarkDone(t *testing.T) {
	repo := NewJobRepository(newTestDB(t))
	ctx := context.Background()

	if _, err := repo.CreateOrGet(ctx, "sync"); err != nil {
		t.Fatalf("CreateOrGet failed: %v", err)
	}
	if err := repo.MarkDone(ctx, "sync"); err != nil {
		t.Fatalf("MarkDone failed: %v", err)
	}
	job, err := repo.Get(ctx, "sync")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if !job.Done {
		t.Error("done = false after MarkDone")
	}
}

func TestJobGetNotFound(t *testing.T) {
	repo := NewJobRepository(newTestDB(t))
	if _, err := repo.Get(context.Background(), "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}
