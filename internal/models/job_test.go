package models

import "testing"

func TestStateFromSlurm(t *testing.T) {
	cases := map[string]JobState{
		"PENDING":           JobStateWaiting,
		"CONFIGURING":       JobStateWaiting,
		"RUNNING":           JobStateRunning,
		"COMPLETING":        JobStateRunning,
		"COMPLETED":         JobStateCompleted,
		"FAILED":            JobStateFailed,
		"TIMEOUT":           JobStateFailed,
		"NODE_FAIL":         JobStateFailed,
		"OUT_OF_MEMORY":     JobStateFailed,
		"CANCELLED":         JobStateCancelled,
		"CANCELLED by 1000": JobStateCancelled,
		"CANCELLED+":        JobStateCancelled,
		"running":           JobStateRunning,
		" COMPLETED ":       JobStateCompleted,
		"BOGUS":             "",
	}

	for raw, want := range cases {
		if got := StateFromSlurm(raw); got != want {
			t.Errorf("StateFromSlurm(%q) = %q, want %q", raw, got, want)
		}
	}
}

func TestJobStateTerminal(t *testing.T) {
	terminal := []JobState{JobStateCompleted, JobStateFailed, JobStateCancelled}
	for _, s := range terminal {
		if !s.Terminal() {
			t.Errorf("expected %s to be terminal", s)
		}
	}

	live := []JobState{JobStatePending, JobStateSubmitted, JobStateWaiting, JobStateRunning}
	for _, s := range live {
		if s.Terminal() {
			t.Errorf("did not expect %s to be terminal", s)
		}
	}
}

func TestJobValidate(t *testing.T) {
	job := &Job{Name: "count-n100", Skeleton: "slurm-parallel", State: JobStatePending}
	if err := job.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}

	job = &Job{}
	err := job.Validate()
	if err == nil {
		t.Fatalf("expected validation error")
	}

	job = &Job{Name: "x", Skeleton: "y", State: JobState("limbo")}
	if err := job.Validate(); err == nil {
		t.Fatalf("expected validation error for unknown state")
	}
}

func TestEventValidate(t *testing.T) {
	event := &Event{Type: EventTypeJobCreated, EntityType: EntityTypeJob, EntityID: "abc"}
	if err := event.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}

	event = &Event{Type: EventTypeJobCreated}
	if err := event.Validate(); err == nil {
		t.Fatalf("expected validation error")
	}
}
