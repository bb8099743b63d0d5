// Package models defines the core data types shared across batchforge.
package models

import (
	"encoding/json"
	"strings"
	"time"
)

// JobState describes where a job is in its lifecycle.
type JobState string

const (
	// JobStatePending means the job exists locally but has not been submitted.
	JobStatePending JobState = "pending"

	// JobStateSubmitted means sbatch accepted the job but no scheduler state
	// has been observed yet.
	JobStateSubmitted JobState = "submitted"

	// JobStateWaiting means the job sits in the scheduler queue.
	JobStateWaiting JobState = "waiting"

	// JobStateRunning means the job is executing on the cluster.
	JobStateRunning JobState = "running"

	// JobStateCompleted means the job finished with a zero exit code.
	JobStateCompleted JobState = "completed"

	// JobStateFailed means the job finished abnormally.
	JobStateFailed JobState = "failed"

	// JobStateCancelled means the job was cancelled before completion.
	JobStateCancelled JobState = "cancelled"
)

// AllJobStates lists every job state.
func AllJobStates() []JobState {
	return []JobState{
		JobStatePending,
		JobStateSubmitted,
		JobStateWaiting,
		JobStateRunning,
		JobStateCompleted,
		JobStateFailed,
		JobStateCancelled,
	}
}

// Valid reports whether the state is a known job state.
func (s JobState) Valid() bool {
	switch s {
	case JobStatePending, JobStateSubmitted, JobStateWaiting, JobStateRunning,
		JobStateCompleted, JobStateFailed, JobStateCancelled:
		return true
	}
	return false
}

// Terminal reports whether the state is final.
func (s JobState) Terminal() bool {
	switch s {
	case JobStateCompleted, JobStateFailed, JobStateCancelled:
		return true
	}
	return false
}

// StateFromSlurm maps a raw SLURM state name (squeue/sacct output) to a
// JobState. Unknown names map to the empty state.
func StateFromSlurm(raw string) JobState {
	name := strings.ToUpper(strings.TrimSpace(raw))
	// sacct suffixes CANCELLED with "by <uid>".
	if idx := strings.IndexByte(name, ' '); idx > 0 {
		name = name[:idx]
	}
	name = strings.TrimSuffix(name, "+")

	switch name {
	case "PENDING", "CONFIGURING", "REQUEUED", "REQUEUE_HOLD", "SUSPENDED":
		return JobStateWaiting
	case "RUNNING", "COMPLETING", "STAGE_OUT", "SIGNALING":
		return JobStateRunning
	case "COMPLETED":
		return JobStateCompleted
	case "FAILED", "TIMEOUT", "NODE_FAIL", "OUT_OF_MEMORY", "BOOT_FAIL", "DEADLINE":
		return JobStateFailed
	case "CANCELLED", "PREEMPTED", "REVOKED":
		return JobStateCancelled
	}
	return ""
}

// Job represents a single scheduler job managed by batchforge.
type Job struct {
	// ID is the batchforge identifier (uuid).
	ID string `json:"id"`

	// Name is the job name passed to the scheduler.
	Name string `json:"name"`

	// Skeleton is the name of the skeleton the script was rendered from.
	Skeleton string `json:"skeleton"`

	// BatchID is the scheduler-assigned job ID, empty until submitted.
	BatchID string `json:"batch_id,omitempty"`

	// State is the current lifecycle state.
	State JobState `json:"state"`

	// Host is the submission host, empty for local submission.
	Host string `json:"host,omitempty"`

	// ScriptPath is where the rendered script was written.
	ScriptPath string `json:"script_path,omitempty"`

	// Variables holds the substitution mapping used to render the script.
	Variables map[string]string `json:"variables,omitempty"`

	// Attempts counts submission attempts.
	Attempts int `json:"attempts"`

	// Error holds the last failure detail, if any.
	Error string `json:"error,omitempty"`

	// CreatedAt is when the job record was created.
	CreatedAt time.Time `json:"created_at"`

	// UpdatedAt is when the job record last changed.
	UpdatedAt time.Time `json:"updated_at"`
}

// Validate checks that the job has the required fields.
func (j *Job) Validate() error {
	validation := &ValidationErrors{}
	if strings.TrimSpace(j.Name) == "" {
		validation.AddMessage("name", "job name is required")
	}
	if strings.TrimSpace(j.Skeleton) == "" {
		validation.AddMessage("skeleton", "skeleton name is required")
	}
	if j.State != "" && !j.State.Valid() {
		validation.AddMessage("state", "unknown job state "+string(j.State))
	}
	return validation.Err()
}

// VariablesJSON returns the variable mapping encoded as JSON for storage.
func (j *Job) VariablesJSON() (string, error) {
	if len(j.Variables) == 0 {
		return "", nil
	}
	data, err := json.Marshal(j.Variables)
	if err != nil {
		return "", err
	}
	return string(data), nil
}
