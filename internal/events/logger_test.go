package events

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/batchforge/batchforge/internal/models"
)

type fakeRepo struct {
	appended []*models.Event
}

func (r *fakeRepo) Append(ctx context.Context, event *models.Event) error {
	r.appended = append(r.appended, event)
	return nil
}

func (r *fakeRepo) last(t *testing.T) *models.Event {
	t.Helper()
	if len(r.appended) == 0 {
		t.Fatal("expected event to be appended")
	}
	return r.appended[len(r.appended)-1]
}

func TestLogJobSubmitted(t *testing.T) {
	repo := &fakeRepo{}

	err := LogJobSubmitted(context.Background(), repo, "job-1", "4242", "cluster.example.org", "/scratch/job.sh", 1)
	if err != nil {
		t.Fatalf("LogJobSubmitted failed: %v", err)
	}

	event := repo.last(t)
	if event.Type != models.EventTypeJobSubmitted {
		t.Fatalf("unexpected event type: %q", event.Type)
	}
	if event.EntityType != models.EntityTypeJob || event.EntityID != "job-1" {
		t.Fatalf("unexpected entity: %s/%s", event.EntityType, event.EntityID)
	}

	var payload models.JobSubmittedPayload
	if err := json.Unmarshal(event.Payload, &payload); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if payload.BatchID != "4242" || payload.Host != "cluster.example.org" {
		t.Fatalf("unexpected payload: %+v", payload)
	}
}

func TestLogJobSubmittedRequiresJobID(t *testing.T) {
	if err := LogJobSubmitted(context.Background(), &fakeRepo{}, "", "1", "", "", 1); err == nil {
		t.Fatal("expected error for empty job id")
	}
}

func TestLogStateChangedTerminalTypes(t *testing.T) {
	tests := []struct {
		to   models.JobState
		want models.EventType
	}{
		{models.JobStateRunning, models.EventTypeJobStateChanged},
		{models.JobStateCompleted, models.EventTypeJobCompleted},
		{models.JobStateFailed, models.EventTypeJobFailed},
		{models.JobStateCancelled, models.EventTypeJobCancelled},
	}

	for _, tt := range tests {
		repo := &fakeRepo{}
		err := LogStateChanged(context.Background(), repo, "job-1", models.JobStateWaiting, tt.to, "99")
		if err != nil {
			t.Fatalf("LogStateChanged(%s) failed: %v", tt.to, err)
		}
		if event := repo.last(t); event.Type != tt.want {
			t.Errorf("state %s: got event type %q, want %q", tt.to, event.Type, tt.want)
		}
	}
}

func TestLogRunFinished(t *testing.T) {
	repo := &fakeRepo{}

	err := LogRunFinished(context.Background(), repo, "run-1", 10, 8, 2, 90*time.Second)
	if err != nil {
		t.Fatalf("LogRunFinished failed: %v", err)
	}

	event := repo.last(t)
	if event.Type != models.EventTypeRunFinished || event.EntityType != models.EntityTypeRun {
		t.Fatalf("unexpected event: %+v", event)
	}

	var payload models.RunFinishedPayload
	if err := json.Unmarshal(event.Payload, &payload); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if payload.Total != 10 || payload.Completed != 8 || payload.Failed != 2 {
		t.Fatalf("unexpected payload: %+v", payload)
	}
	if payload.Duration != "1m30s" {
		t.Fatalf("unexpected duration: %q", payload.Duration)
	}
}

func TestLogScriptRendered(t *testing.T) {
	repo := &fakeRepo{}

	err := LogScriptRendered(context.Background(), repo, "job-1", "slurm-parallel", "/tmp/job.sh", 512)
	if err != nil {
		t.Fatalf("LogScriptRendered failed: %v", err)
	}

	var payload models.ScriptRenderedPayload
	if err := json.Unmarshal(repo.last(t).Payload, &payload); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if payload.Skeleton != "slurm-parallel" || payload.Bytes != 512 {
		t.Fatalf("unexpected payload: %+v", payload)
	}
}

func TestLogNilRepository(t *testing.T) {
	if err := LogJobCreated(context.Background(), nil, "job-1"); err == nil {
		t.Fatal("expected error for nil repository")
	}
}
