package db

import (
	"context"
	"errors"
	"testing"

	"github.com/batchforge/batchforge/internal/models"
)

func setupTestDB(t *testing.T) *DB {
	t.Helper()

	database, err := OpenInMemory()
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	t.Cleanup(func() { database.Close() })

	if err := database.Migrate(context.Background()); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}

	return database
}

func TestJobRepositoryCreateAndGet(t *testing.T) {
	ctx := context.Background()
	repo := NewJobRepository(setupTestDB(t))

	job := &models.Job{
		Name:     "sweep-a",
		Skeleton: "slurm-parallel",
		Variables: map[string]string{
			"JOB_PARTITION": "compute",
			"PARALLEL":      "commands.txt",
		},
	}
	if err := repo.Create(ctx, job); err != nil {
		t.Fatalf("create job: %v", err)
	}
	if job.ID == "" {
		t.Fatal("expected generated job ID")
	}
	if job.State != models.JobStatePending {
		t.Fatalf("expected default state pending, got %q", job.State)
	}

	got, err := repo.Get(ctx, job.ID)
	if err != nil {
		t.Fatalf("get job: %v", err)
	}
	if got.Name != "sweep-a" || got.Skeleton != "slurm-parallel" {
		t.Fatalf("unexpected job: %+v", got)
	}
	if got.Variables["JOB_PARTITION"] != "compute" {
		t.Fatalf("variables not round-tripped: %v", got.Variables)
	}
	if got.CreatedAt.IsZero() || got.UpdatedAt.IsZero() {
		t.Fatal("expected timestamps to be set")
	}
}

func TestJobRepositoryCreateInvalid(t *testing.T) {
	ctx := context.Background()
	repo := NewJobRepository(setupTestDB(t))

	err := repo.Create(ctx, &models.Job{Name: "no-skeleton"})
	if !errors.Is(err, ErrInvalidJob) {
		t.Fatalf("expected ErrInvalidJob, got %v", err)
	}
}

func TestJobRepositoryGetNotFound(t *testing.T) {
	ctx := context.Background()
	repo := NewJobRepository(setupTestDB(t))

	if _, err := repo.Get(ctx, "missing"); !errors.Is(err, ErrJobNotFound) {
		t.Fatalf("expected ErrJobNotFound, got %v", err)
	}
}

func TestJobRepositoryGetByBatchID(t *testing.T) {
	ctx := context.Background()
	repo := NewJobRepository(setupTestDB(t))

	job := &models.Job{Name: "sweep-b", Skeleton: "slurm-single"}
	if err := repo.Create(ctx, job); err != nil {
		t.Fatalf("create job: %v", err)
	}

	job.BatchID = "9001"
	job.State = models.JobStateSubmitted
	if err := repo.Update(ctx, job); err != nil {
		t.Fatalf("update job: %v", err)
	}

	got, err := repo.GetByBatchID(ctx, "9001")
	if err != nil {
		t.Fatalf("get by batch id: %v", err)
	}
	if got.ID != job.ID {
		t.Fatalf("expected job %s, got %s", job.ID, got.ID)
	}
	if got.State != models.JobStateSubmitted {
		t.Fatalf("expected submitted, got %q", got.State)
	}
}

func TestJobRepositoryList(t *testing.T) {
	ctx := context.Background()
	repo := NewJobRepository(setupTestDB(t))

	seed := []*models.Job{
		{Name: "a", Skeleton: "slurm-parallel", State: models.JobStateRunning},
		{Name: "b", Skeleton: "slurm-parallel", State: models.JobStateCompleted},
		{Name: "c", Skeleton: "slurm-single", State: models.JobStateRunning},
	}
	for _, job := range seed {
		if err := repo.Create(ctx, job); err != nil {
			t.Fatalf("create job %s: %v", job.Name, err)
		}
	}

	running, err := repo.List(ctx, JobQuery{States: []models.JobState{models.JobStateRunning}})
	if err != nil {
		t.Fatalf("list running: %v", err)
	}
	if len(running) != 2 {
		t.Fatalf("expected 2 running jobs, got %d", len(running))
	}

	parallel, err := repo.List(ctx, JobQuery{Skeleton: "slurm-parallel"})
	if err != nil {
		t.Fatalf("list by skeleton: %v", err)
	}
	if len(parallel) != 2 {
		t.Fatalf("expected 2 slurm-parallel jobs, got %d", len(parallel))
	}

	limited, err := repo.List(ctx, JobQuery{Limit: 1})
	if err != nil {
		t.Fatalf("list limited: %v", err)
	}
	if len(limited) != 1 {
		t.Fatalf("expected 1 job, got %d", len(limited))
	}
}

func TestJobRepositoryUpdateState(t *testing.T) {
	ctx := context.Background()
	repo := NewJobRepository(setupTestDB(t))

	job := &models.Job{Name: "sweep-c", Skeleton: "slurm-single"}
	if err := repo.Create(ctx, job); err != nil {
		t.Fatalf("create job: %v", err)
	}

	if err := repo.UpdateState(ctx, job.ID, models.JobStateFailed, "node failure"); err != nil {
		t.Fatalf("update state: %v", err)
	}

	got, err := repo.Get(ctx, job.ID)
	if err != nil {
		t.Fatalf("get job: %v", err)
	}
	if got.State != models.JobStateFailed {
		t.Fatalf("expected failed, got %q", got.State)
	}
	if got.Error != "node failure" {
		t.Fatalf("expected error detail, got %q", got.Error)
	}

	if err := repo.UpdateState(ctx, "missing", models.JobStateFailed, ""); !errors.Is(err, ErrJobNotFound) {
		t.Fatalf("expected ErrJobNotFound, got %v", err)
	}
}

func TestJobRepositoryDelete(t *testing.T) {
	ctx := context.Background()
	repo := NewJobRepository(setupTestDB(t))

	job := &models.Job{Name: "sweep-d", Skeleton: "slurm-single"}
	if err := repo.Create(ctx, job); err != nil {
		t.Fatalf("create job: %v", err)
	}

	if err := repo.Delete(ctx, job.ID); err != nil {
		t.Fatalf("delete job: %v", err)
	}
	if _, err := repo.Get(ctx, job.ID); !errors.Is(err, ErrJobNotFound) {
		t.Fatalf("expected ErrJobNotFound after delete, got %v", err)
	}
	if err := repo.Delete(ctx, job.ID); !errors.Is(err, ErrJobNotFound) {
		t.Fatalf("expected ErrJobNotFound on second delete, got %v", err)
	}
}
