// Package events provides helper functions for recording batchforge events.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/batchforge/batchforge/internal/models"
)

// Repository is the minimal interface needed to write events.
type Repository interface {
	Append(ctx context.Context, event *models.Event) error
}

// LogJobCreated records a job creation event.
func LogJobCreated(ctx context.Context, repo Repository, jobID string) error {
	return appendJobEvent(ctx, repo, models.EventTypeJobCreated, jobID, nil)
}

// LogJobSubmitted records a scheduler submission for a job.
func LogJobSubmitted(ctx context.Context, repo Repository, jobID, batchID, host, scriptPath string, attempt int) error {
	payload, err := json.Marshal(models.JobSubmittedPayload{
		BatchID:    batchID,
		Host:       host,
		ScriptPath: scriptPath,
		Attempt:    attempt,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal submit payload: %w", err)
	}
	return appendJobEvent(ctx, repo, models.EventTypeJobSubmitted, jobID, payload)
}

// LogStateChanged records a scheduler state transition for a job. Terminal
// states map to their dedicated event types.
func LogStateChanged(ctx context.Context, repo Repository, jobID string, from, to models.JobState, batchID string) error {
	payload, err := json.Marshal(models.StateChangedPayload{
		OldState: from,
		NewState: to,
		BatchID:  batchID,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal state payload: %w", err)
	}

	eventType := models.EventTypeJobStateChanged
	switch to {
	case models.JobStateCompleted:
		eventType = models.EventTypeJobCompleted
	case models.JobStateFailed:
		eventType = models.EventTypeJobFailed
	case models.JobStateCancelled:
		eventType = models.EventTypeJobCancelled
	}

	return appendJobEvent(ctx, repo, eventType, jobID, payload)
}

// LogJobFailed records a job failure with its attempt count.
func LogJobFailed(ctx context.Context, repo Repository, jobID, batchID, errDetail string, attempts int) error {
	payload, err := json.Marshal(models.JobFailedPayload{
		BatchID:  batchID,
		Error:    errDetail,
		Attempts: attempts,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal failure payload: %w", err)
	}
	return appendJobEvent(ctx, repo, models.EventTypeJobFailed, jobID, payload)
}

// LogScriptRendered records that a job script was rendered from a skeleton.
func LogScriptRendered(ctx context.Context, repo Repository, jobID, skeleton, scriptPath string, size int) error {
	payload, err := json.Marshal(models.ScriptRenderedPayload{
		Skeleton:   skeleton,
		ScriptPath: scriptPath,
		Bytes:      size,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal render payload: %w", err)
	}
	return appendJobEvent(ctx, repo, models.EventTypeScriptRendered, jobID, payload)
}

// LogScriptUploaded records that a rendered script reached the submission host.
func LogScriptUploaded(ctx context.Context, repo Repository, jobID, remotePath string) error {
	payload, err := json.Marshal(models.ScriptRenderedPayload{
		ScriptPath: remotePath,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal upload payload: %w", err)
	}
	return appendJobEvent(ctx, repo, models.EventTypeScriptUploaded, jobID, payload)
}

// LogRunStarted records the start of a maker run.
func LogRunStarted(ctx context.Context, repo Repository, runID string) error {
	if repo == nil {
		return fmt.Errorf("event repository is required")
	}
	if runID == "" {
		return fmt.Errorf("run id is required")
	}
	return repo.Append(ctx, &models.Event{
		Type:       models.EventTypeRunStarted,
		EntityType: models.EntityTypeRun,
		EntityID:   runID,
	})
}

// LogRunFinished records the outcome of a maker run.
func LogRunFinished(ctx context.Context, repo Repository, runID string, total, completed, failed int, duration time.Duration) error {
	if repo == nil {
		return fmt.Errorf("event repository is required")
	}
	if runID == "" {
		return fmt.Errorf("run id is required")
	}

	payload, err := json.Marshal(models.RunFinishedPayload{
		Total:     total,
		Completed: completed,
		Failed:    failed,
		Duration:  duration.Round(time.Millisecond).String(),
	})
	if err != nil {
		return fmt.Errorf("failed to marshal run payload: %w", err)
	}

	return repo.Append(ctx, &models.Event{
		Type:       models.EventTypeRunFinished,
		EntityType: models.EntityTypeRun,
		EntityID:   runID,
		Payload:    payload,
	})
}

func appendJobEvent(ctx context.Context, repo Repository, eventType models.EventType, jobID string, payload json.RawMessage) error {
	if repo == nil {
		return fmt.Errorf("event repository is required")
	}
	if jobID == "" {
		return fmt.Errorf("job id is required")
	}

	return repo.Append(ctx, &models.Event{
		Type:       eventType,
		EntityType: models.EntityTypeJob,
		EntityID:   jobID,
		Payload:    payload,
	})
}
