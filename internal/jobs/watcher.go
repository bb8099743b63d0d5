// Package jobs tracks scheduler jobs through their lifecycle.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/batchforge/batchforge/internal/events"
	"github.com/batchforge/batchforge/internal/logging"
	"github.com/batchforge/batchforge/internal/models"
)

// Watcher errors.
var (
	ErrWatcherAlreadyRunning = errors.New("watcher already running")
	ErrWatcherNotRunning     = errors.New("watcher not running")
	ErrWatcherGaveUp         = errors.New("watcher gave up after repeated poll failures")
	ErrJobNotSubmitted       = errors.New("job has no batch id")
)

// StateClient queries the scheduler for job states.
type StateClient interface {
	States(ctx context.Context, batchIDs []string) (map[string]models.JobState, error)
}

// JobStore persists job state transitions.
type JobStore interface {
	UpdateState(ctx context.Context, id string, state models.JobState, errDetail string) error
}

// Config contains watcher configuration.
type Config struct {
	// PollInterval is how often the watcher queries the scheduler.
	// Default: 30 seconds.
	PollInterval time.Duration

	// MaxPollFailures stops the watcher after this many consecutive
	// failed polls. Default: 5.
	MaxPollFailures int
}

// DefaultConfig returns sensible default configuration.
func DefaultConfig() Config {
	return Config{
		PollInterval:    30 * time.Second,
		MaxPollFailures: 5,
	}
}

// Update describes one observed state transition.
type Update struct {
	JobID     string
	JobName   string
	BatchID   string
	From      models.JobState
	To        models.JobState
	Timestamp time.Time
}

// WatcherStats contains watcher statistics.
type WatcherStats struct {
	Running     bool
	StartedAt   *time.Time
	Polls       int64
	Transitions int64
	LastPollAt  *time.Time
	Tracked     int
	Terminal    int
}

// Watcher polls the scheduler and records state transitions for a set of
// submitted jobs.
type Watcher struct {
	config    Config
	client    StateClient
	store     JobStore
	eventRepo events.Repository
	logger    zerolog.Logger

	mu      sync.RWMutex
	running bool
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	tracked map[string]*models.Job // keyed by batch ID
	updates chan Update
	done    chan struct{}
	err     error // set before done is closed

	stats   WatcherStats
	statsMu sync.RWMutex
}

// New creates a new Watcher. The event repository may be nil, in which case
// transitions are not recorded in the event log.
func New(config Config, client StateClient, store JobStore, eventRepo events.Repository) *Watcher {
	if config.PollInterval <= 0 {
		config.PollInterval = DefaultConfig().PollInterval
	}
	if config.MaxPollFailures <= 0 {
		config.MaxPollFailures = DefaultConfig().MaxPollFailures
	}

	return &Watcher{
		config:    config,
		client:    client,
		store:     store,
		eventRepo: eventRepo,
		logger:    logging.Component("watcher"),
		tracked:   make(map[string]*models.Job),
		updates:   make(chan Update, 100),
		done:      make(chan struct{}),
	}
}

// Track adds a submitted job to the watch set. Jobs may be added before or
// after Start.
func (w *Watcher) Track(job *models.Job) error {
	if job == nil || job.BatchID == "" {
		return ErrJobNotSubmitted
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	copied := *job
	w.tracked[job.BatchID] = &copied

	w.statsMu.Lock()
	w.stats.Tracked = len(w.tracked)
	w.statsMu.Unlock()

	w.logger.Debug().Str("job_id", job.ID).Str("batch_id", job.BatchID).Msg("tracking job")
	return nil
}

// Start begins the polling loop.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.running {
		return ErrWatcherAlreadyRunning
	}

	w.ctx, w.cancel = context.WithCancel(ctx)
	w.running = true

	now := time.Now().UTC()
	w.statsMu.Lock()
	w.stats.Running = true
	w.stats.StartedAt = &now
	w.statsMu.Unlock()

	w.logger.Info().
		Dur("poll_interval", w.config.PollInterval).
		Int("tracked", len(w.tracked)).
		Msg("watcher starting")

	w.wg.Add(1)
	go w.runLoop()

	return nil
}

// Stop halts the watcher and waits for the poll loop to finish.
func (w *Watcher) Stop() error {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return ErrWatcherNotRunning
	}
	w.cancel()
	w.running = false
	w.mu.Unlock()

	w.wg.Wait()

	w.statsMu.Lock()
	w.stats.Running = false
	w.statsMu.Unlock()

	w.logger.Info().Msg("watcher stopped")
	return nil
}

// Updates returns the channel of observed state transitions.
func (w *Watcher) Updates() <-chan Update {
	return w.updates
}

// Done returns a channel that is closed once the watch is over: every
// tracked job reached a terminal state, or the watcher gave up. Err tells
// the two apart.
func (w *Watcher) Done() <-chan struct{} {
	return w.done
}

// Err returns why the watch ended. It is nil while the watcher is still
// polling and after a normal finish; after a give-up it wraps
// ErrWatcherGaveUp.
func (w *Watcher) Err() error {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.err
}

// Wait blocks until all tracked jobs are terminal or the context ends. When
// the watcher gave up polling, the give-up error is returned.
func (w *Watcher) Wait(ctx context.Context) error {
	select {
	case <-w.done:
		return w.Err()
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stats returns current watcher statistics.
func (w *Watcher) Stats() WatcherStats {
	w.statsMu.RLock()
	defer w.statsMu.RUnlock()
	return w.stats
}

// Snapshot returns the current view of all tracked jobs.
func (w *Watcher) Snapshot() []*models.Job {
	w.mu.RLock()
	defer w.mu.RUnlock()

	out := make([]*models.Job, 0, len(w.tracked))
	for _, job := range w.tracked {
		copied := *job
		out = append(out, &copied)
	}
	return out
}

func (w *Watcher) runLoop() {
	defer w.wg.Done()

	ticker := time.NewTicker(w.config.PollInterval)
	defer ticker.Stop()

	failures := 0

	// Poll once immediately so short-lived jobs are not missed.
	if w.poll() {
		return
	}

	for {
		select {
		case <-w.ctx.Done():
			return
		case <-ticker.C:
			finished, err := w.pollOnce()
			if err != nil {
				failures++
				w.logger.Warn().Err(err).Int("consecutive_failures", failures).Msg("poll failed")
				if failures >= w.config.MaxPollFailures {
					w.logger.Error().Msg("too many consecutive poll failures, watcher giving up")
					w.fail(fmt.Errorf("%w: %v", ErrWatcherGaveUp, err))
					return
				}
				continue
			}
			failures = 0
			if finished {
				return
			}
		}
	}
}

// poll runs one cycle, logging errors. Returns true when all jobs are done.
func (w *Watcher) poll() bool {
	finished, err := w.pollOnce()
	if err != nil {
		w.logger.Warn().Err(err).Msg("poll failed")
		return false
	}
	return finished
}

// pollOnce queries the scheduler once and applies any transitions. It
// returns true once every tracked job is terminal.
func (w *Watcher) pollOnce() (bool, error) {
	w.mu.RLock()
	pending := make([]string, 0, len(w.tracked))
	for batchID, job := range w.tracked {
		if !job.State.Terminal() {
			pending = append(pending, batchID)
		}
	}
	w.mu.RUnlock()

	if len(pending) == 0 {
		w.finish()
		return true, nil
	}

	states, err := w.client.States(w.ctx, pending)
	if err != nil {
		return false, err
	}

	now := time.Now().UTC()
	w.statsMu.Lock()
	w.stats.Polls++
	w.stats.LastPollAt = &now
	w.statsMu.Unlock()

	for _, batchID := range pending {
		newState, ok := states[batchID]
		if !ok {
			// Gone from both squeue and accounting; treat as failed.
			newState = models.JobStateFailed
		}
		w.apply(batchID, newState)
	}

	w.mu.RLock()
	remaining := 0
	terminal := 0
	for _, job := range w.tracked {
		if job.State.Terminal() {
			terminal++
		} else {
			remaining++
		}
	}
	w.mu.RUnlock()

	w.statsMu.Lock()
	w.stats.Terminal = terminal
	w.statsMu.Unlock()

	if remaining == 0 {
		w.finish()
		return true, nil
	}
	return false, nil
}

func (w *Watcher) apply(batchID string, newState models.JobState) {
	w.mu.Lock()
	job, ok := w.tracked[batchID]
	if !ok || job.State == newState {
		w.mu.Unlock()
		return
	}
	oldState := job.State
	job.State = newState
	update := Update{
		JobID:     job.ID,
		JobName:   job.Name,
		BatchID:   batchID,
		From:      oldState,
		To:        newState,
		Timestamp: time.Now().UTC(),
	}
	w.mu.Unlock()

	w.logger.Info().
		Str("job_id", update.JobID).
		Str("batch_id", batchID).
		Str("from", string(oldState)).
		Str("to", string(newState)).
		Msg("job state changed")

	if w.store != nil {
		detail := ""
		if newState == models.JobStateFailed {
			detail = "reported failed by scheduler"
		}
		if err := w.store.UpdateState(w.ctx, update.JobID, newState, detail); err != nil {
			w.logger.Error().Err(err).Str("job_id", update.JobID).Msg("failed to persist state")
		}
	}

	if w.eventRepo != nil {
		if err := events.LogStateChanged(w.ctx, w.eventRepo, update.JobID, oldState, newState, batchID); err != nil {
			w.logger.Error().Err(err).Str("job_id", update.JobID).Msg("failed to record state event")
		}
	}

	w.statsMu.Lock()
	w.stats.Transitions++
	w.statsMu.Unlock()

	select {
	case w.updates <- update:
	default:
		// Nobody reading; updates are advisory.
	}
}

func (w *Watcher) finish() {
	w.mu.Lock()
	defer w.mu.Unlock()

	select {
	case <-w.done:
	default:
		close(w.done)
		w.logger.Info().Int("jobs", len(w.tracked)).Msg("all tracked jobs finished")
	}
}

// fail ends the watch with an error instead of a normal finish.
func (w *Watcher) fail(err error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	select {
	case <-w.done:
	default:
		w.err = err
		close(w.done)
	}
}
