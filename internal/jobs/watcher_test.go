package jobs

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/batchforge/batchforge/internal/models"
)

// fakeStateClient serves a scripted sequence of poll results.
type fakeStateClient struct {
	mu      sync.Mutex
	rounds  []map[string]models.JobState
	calls   int
	failErr error
}

func (c *fakeStateClient) States(ctx context.Context, batchIDs []string) (map[string]models.JobState, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.failErr != nil {
		return nil, c.failErr
	}

	idx := c.calls
	c.calls++
	if idx >= len(c.rounds) {
		idx = len(c.rounds) - 1
	}
	return c.rounds[idx], nil
}

type fakeStore struct {
	mu     sync.Mutex
	states map[string]models.JobState
}

func newFakeStore() *fakeStore {
	return &fakeStore{states: make(map[string]models.JobState)}
}

func (s *fakeStore) UpdateState(ctx context.Context, id string, state models.JobState, errDetail string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.states[id] = state
	return nil
}

func (s *fakeStore) get(id string) models.JobState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.states[id]
}

func TestWatcherTrackRequiresBatchID(t *testing.T) {
	w := New(Config{}, &fakeStateClient{}, nil, nil)

	if err := w.Track(&models.Job{ID: "j1"}); !errors.Is(err, ErrJobNotSubmitted) {
		t.Fatalf("expected ErrJobNotSubmitted, got %v", err)
	}
	if err := w.Track(nil); !errors.Is(err, ErrJobNotSubmitted) {
		t.Fatalf("expected ErrJobNotSubmitted for nil job, got %v", err)
	}
}

func TestWatcherRunsToCompletion(t *testing.T) {
	client := &fakeStateClient{rounds: []map[string]models.JobState{
		{"1": models.JobStateWaiting, "2": models.JobStateRunning},
		{"1": models.JobStateRunning, "2": models.JobStateCompleted},
		{"1": models.JobStateCompleted, "2": models.JobStateCompleted},
	}}
	store := newFakeStore()

	w := New(Config{PollInterval: 10 * time.Millisecond}, client, store, nil)

	jobs := []*models.Job{
		{ID: "j1", Name: "a", BatchID: "1", State: models.JobStateSubmitted},
		{ID: "j2", Name: "b", BatchID: "2", State: models.JobStateSubmitted},
	}
	for _, job := range jobs {
		if err := w.Track(job); err != nil {
			t.Fatalf("track %s: %v", job.ID, err)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := w.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := w.Start(ctx); !errors.Is(err, ErrWatcherAlreadyRunning) {
		t.Fatalf("expected ErrWatcherAlreadyRunning, got %v", err)
	}

	if err := w.Wait(ctx); err != nil {
		t.Fatalf("wait: %v", err)
	}

	if store.get("j1") != models.JobStateCompleted {
		t.Errorf("j1 state = %q", store.get("j1"))
	}
	if store.get("j2") != models.JobStateCompleted {
		t.Errorf("j2 state = %q", store.get("j2"))
	}

	stats := w.Stats()
	if stats.Transitions == 0 {
		t.Error("expected transitions to be counted")
	}
	if stats.Tracked != 2 {
		t.Errorf("tracked = %d", stats.Tracked)
	}

	if err := w.Stop(); err != nil && !errors.Is(err, ErrWatcherNotRunning) {
		t.Fatalf("stop: %v", err)
	}
}

func TestWatcherEmitsUpdates(t *testing.T) {
	client := &fakeStateClient{rounds: []map[string]models.JobState{
		{"1": models.JobStateRunning},
		{"1": models.JobStateFailed},
	}}

	w := New(Config{PollInterval: 10 * time.Millisecond}, client, nil, nil)
	if err := w.Track(&models.Job{ID: "j1", Name: "a", BatchID: "1", State: models.JobStateSubmitted}); err != nil {
		t.Fatalf("track: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := w.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer w.Stop()

	var saw []Update
	deadline := time.After(4 * time.Second)
	for len(saw) < 2 {
		select {
		case u := <-w.Updates():
			saw = append(saw, u)
		case <-deadline:
			t.Fatalf("timed out, saw %d updates", len(saw))
		}
	}

	if saw[0].To != models.JobStateRunning || saw[1].To != models.JobStateFailed {
		t.Fatalf("unexpected transitions: %+v", saw)
	}
	if saw[1].From != models.JobStateRunning {
		t.Fatalf("expected transition from running, got %q", saw[1].From)
	}
}

func TestWatcherMissingJobMarkedFailed(t *testing.T) {
	// Job absent from both squeue and sacct output.
	client := &fakeStateClient{rounds: []map[string]models.JobState{{}}}
	store := newFakeStore()

	w := New(Config{PollInterval: 10 * time.Millisecond}, client, store, nil)
	if err := w.Track(&models.Job{ID: "j1", Name: "a", BatchID: "1", State: models.JobStateSubmitted}); err != nil {
		t.Fatalf("track: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := w.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer w.Stop()

	if err := w.Wait(ctx); err != nil {
		t.Fatalf("wait: %v", err)
	}
	if store.get("j1") != models.JobStateFailed {
		t.Fatalf("expected failed, got %q", store.get("j1"))
	}
}

func TestWatcherGivesUpAfterPollFailures(t *testing.T) {
	client := &fakeStateClient{failErr: errors.New("connection refused")}

	w := New(Config{PollInterval: 5 * time.Millisecond, MaxPollFailures: 2}, client, nil, nil)
	if err := w.Track(&models.Job{ID: "j1", BatchID: "1", State: models.JobStateSubmitted}); err != nil {
		t.Fatalf("track: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := w.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}

	// The loop should exit on its own; Stop must not hang.
	done := make(chan struct{})
	go func() {
		w.Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(4 * time.Second):
		t.Fatal("watcher did not stop")
	}

	if err := w.Err(); !errors.Is(err, ErrWatcherGaveUp) {
		t.Fatalf("expected ErrWatcherGaveUp, got %v", err)
	}
}

func TestWatcherWaitReturnsOnGiveUp(t *testing.T) {
	client := &fakeStateClient{failErr: errors.New("connection refused")}

	w := New(Config{PollInterval: 5 * time.Millisecond, MaxPollFailures: 2}, client, nil, nil)
	if err := w.Track(&models.Job{ID: "j1", BatchID: "1", State: models.JobStateSubmitted}); err != nil {
		t.Fatalf("track: %v", err)
	}
	if err := w.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer w.Stop()

	// Wait must not sit on the caller's context once the watcher gave up.
	ctx, cancel := context.WithTimeout(context.Background(), 4*time.Second)
	defer cancel()

	err := w.Wait(ctx)
	if !errors.Is(err, ErrWatcherGaveUp) {
		t.Fatalf("expected ErrWatcherGaveUp from Wait, got %v", err)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		t.Fatal("Wait ran into the caller's deadline instead of the give-up")
	}

	select {
	case <-w.Done():
	default:
		t.Fatal("Done channel not closed after give-up")
	}
}

func TestWatcherSnapshot(t *testing.T) {
	w := New(Config{}, &fakeStateClient{}, nil, nil)
	if err := w.Track(&models.Job{ID: "j1", BatchID: "1", State: models.JobStateSubmitted}); err != nil {
		t.Fatalf("track: %v", err)
	}

	snap := w.Snapshot()
	if len(snap) != 1 || snap[0].ID != "j1" {
		t.Fatalf("unexpected snapshot: %+v", snap)
	}

	// Mutating the snapshot must not affect the watcher's copy.
	snap[0].State = models.JobStateCancelled
	if w.Snapshot()[0].State != models.JobStateSubmitted {
		t.Fatal("snapshot should be a copy")
	}
}

func TestWatcherStatsProgress(t *testing.T) {
	client := &fakeStateClient{rounds: []map[string]models.JobState{
		{"1": models.JobStateRunning},
		{"1": models.JobStateCompleted},
	}}
	store := newFakeStore()

	w := New(Config{PollInterval: 10 * time.Millisecond}, client, store, nil)
	require.NoError(t, w.Track(&models.Job{ID: "j1", Name: "alpha", State: models.JobStateSubmitted, BatchID: "1"}))
	require.NoError(t, w.Start(context.Background()))
	defer w.Stop()

	require.Eventually(t, func() bool {
		return w.Stats().Terminal == 1
	}, 2*time.Second, 10*time.Millisecond, "expected the tracked job to reach a terminal state")

	stats := w.Stats()
	require.GreaterOrEqual(t, stats.Polls, int64(2))
	require.GreaterOrEqual(t, stats.Transitions, int64(2))
	require.Equal(t, 1, stats.Tracked)
}
