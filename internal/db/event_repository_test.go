package db

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/batchforge/batchforge/internal/models"
)

func TestEventRepositoryAppendAndGet(t *testing.T) {
	ctx := context.Background()
	repo := NewEventRepository(setupTestDB(t))

	payload, _ := json.Marshal(models.StateChangedPayload{
		OldState: models.JobStateWaiting,
		NewState: models.JobStateRunning,
		BatchID:  "123",
	})
	event := &models.Event{
		Type:       models.EventTypeJobStateChanged,
		EntityType: models.EntityTypeJob,
		EntityID:   "job-1",
		Payload:    payload,
		Metadata:   map[string]string{"host": "cluster.example.org"},
	}
	if err := repo.Append(ctx, event); err != nil {
		t.Fatalf("append event: %v", err)
	}
	if event.ID == "" {
		t.Fatal("expected generated event ID")
	}
	if event.Timestamp.IsZero() {
		t.Fatal("expected timestamp to be set")
	}

	got, err := repo.Get(ctx, event.ID)
	if err != nil {
		t.Fatalf("get event: %v", err)
	}
	if got.Type != models.EventTypeJobStateChanged || got.EntityID != "job-1" {
		t.Fatalf("unexpected event: %+v", got)
	}
	if got.Metadata["host"] != "cluster.example.org" {
		t.Fatalf("metadata not round-tripped: %v", got.Metadata)
	}

	var decoded models.StateChangedPayload
	if err := json.Unmarshal(got.Payload, &decoded); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if decoded.NewState != models.JobStateRunning {
		t.Fatalf("unexpected payload: %+v", decoded)
	}
}

func TestEventRepositoryAppendInvalid(t *testing.T) {
	ctx := context.Background()
	repo := NewEventRepository(setupTestDB(t))

	err := repo.Append(ctx, &models.Event{Type: models.EventTypeJobCreated})
	if !errors.Is(err, ErrInvalidEvent) {
		t.Fatalf("expected ErrInvalidEvent, got %v", err)
	}
}

func TestEventRepositoryListByEntity(t *testing.T) {
	ctx := context.Background()
	repo := NewEventRepository(setupTestDB(t))

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	for i, typ := range []models.EventType{
		models.EventTypeJobCreated,
		models.EventTypeJobSubmitted,
		models.EventTypeJobCompleted,
	} {
		event := &models.Event{
			Type:       typ,
			EntityType: models.EntityTypeJob,
			EntityID:   "job-1",
			Timestamp:  base.Add(time.Duration(i) * time.Minute),
		}
		if err := repo.Append(ctx, event); err != nil {
			t.Fatalf("append %s: %v", typ, err)
		}
	}
	other := &models.Event{
		Type:       models.EventTypeJobCreated,
		EntityType: models.EntityTypeJob,
		EntityID:   "job-2",
	}
	if err := repo.Append(ctx, other); err != nil {
		t.Fatalf("append other: %v", err)
	}

	events, err := repo.ListByEntity(ctx, models.EntityTypeJob, "job-1", 0)
	if err != nil {
		t.Fatalf("list by entity: %v", err)
	}
	if len(events) != 3 {
		t.Fatalf("expected 3 events, got %d", len(events))
	}
	if events[0].Type != models.EventTypeJobCreated || events[2].Type != models.EventTypeJobCompleted {
		t.Fatalf("events out of order: %v, %v", events[0].Type, events[2].Type)
	}
}

func TestEventRepositoryQueryPagination(t *testing.T) {
	ctx := context.Background()
	repo := NewEventRepository(setupTestDB(t))

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		event := &models.Event{
			Type:       models.EventTypeJobStateChanged,
			EntityType: models.EntityTypeJob,
			EntityID:   "job-1",
			Timestamp:  base.Add(time.Duration(i) * time.Second),
		}
		if err := repo.Append(ctx, event); err != nil {
			t.Fatalf("append event %d: %v", i, err)
		}
	}

	page, err := repo.Query(ctx, EventQuery{Limit: 2})
	if err != nil {
		t.Fatalf("query first page: %v", err)
	}
	if len(page.Events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(page.Events))
	}
	if page.NextCursor == "" {
		t.Fatal("expected next cursor")
	}

	seen := len(page.Events)
	for page.NextCursor != "" {
		page, err = repo.Query(ctx, EventQuery{Limit: 2, Cursor: page.NextCursor})
		if err != nil {
			t.Fatalf("query next page: %v", err)
		}
		seen += len(page.Events)
	}
	if seen != 5 {
		t.Fatalf("expected 5 events across pages, got %d", seen)
	}
}

// A later event within the same second must not be lost to the cursor even
// when its ID sorts before the cursor event's ID.
func TestEventRepositoryCursorSameSecond(t *testing.T) {
	ctx := context.Background()
	repo := NewEventRepository(setupTestDB(t))

	base := time.Date(2026, 3, 1, 12, 0, 0, 100, time.UTC)
	first := &models.Event{
		ID:         "zzzzzzzz-0000-0000-0000-000000000000",
		Type:       models.EventTypeJobStateChanged,
		EntityType: models.EntityTypeJob,
		EntityID:   "job-1",
		Timestamp:  base,
	}
	if err := repo.Append(ctx, first); err != nil {
		t.Fatalf("append first: %v", err)
	}

	page, err := repo.Query(ctx, EventQuery{Limit: 1})
	if err != nil {
		t.Fatalf("query first page: %v", err)
	}
	if len(page.Events) != 1 || page.Events[0].ID != first.ID {
		t.Fatalf("unexpected first page: %+v", page.Events)
	}

	second := &models.Event{
		ID:         "aaaaaaaa-0000-0000-0000-000000000000",
		Type:       models.EventTypeJobStateChanged,
		EntityType: models.EntityTypeJob,
		EntityID:   "job-1",
		Timestamp:  base.Add(200 * time.Nanosecond),
	}
	if err := repo.Append(ctx, second); err != nil {
		t.Fatalf("append second: %v", err)
	}

	page, err = repo.Query(ctx, EventQuery{Limit: 10, Cursor: first.ID})
	if err != nil {
		t.Fatalf("query after cursor: %v", err)
	}
	if len(page.Events) != 1 {
		t.Fatalf("expected 1 event after cursor, got %d", len(page.Events))
	}
	if page.Events[0].ID != second.ID {
		t.Fatalf("expected event %s after cursor, got %s", second.ID, page.Events[0].ID)
	}
}

func TestEventRepositoryQueryFilters(t *testing.T) {
	ctx := context.Background()
	repo := NewEventRepository(setupTestDB(t))

	mk := func(typ models.EventType, entityID string, ts time.Time) {
		t.Helper()
		event := &models.Event{
			Type:       typ,
			EntityType: models.EntityTypeJob,
			EntityID:   entityID,
			Timestamp:  ts,
		}
		if err := repo.Append(ctx, event); err != nil {
			t.Fatalf("append: %v", err)
		}
	}

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	mk(models.EventTypeJobCreated, "job-1", base)
	mk(models.EventTypeJobFailed, "job-1", base.Add(time.Minute))
	mk(models.EventTypeJobCreated, "job-2", base.Add(2*time.Minute))

	failed := models.EventTypeJobFailed
	page, err := repo.Query(ctx, EventQuery{Type: &failed})
	if err != nil {
		t.Fatalf("query by type: %v", err)
	}
	if len(page.Events) != 1 || page.Events[0].EntityID != "job-1" {
		t.Fatalf("unexpected result: %+v", page.Events)
	}

	since := base.Add(90 * time.Second)
	page, err = repo.Query(ctx, EventQuery{Since: &since})
	if err != nil {
		t.Fatalf("query since: %v", err)
	}
	if len(page.Events) != 1 || page.Events[0].EntityID != "job-2" {
		t.Fatalf("unexpected since result: %+v", page.Events)
	}
}
