// Package maker orchestrates rendering, submitting and supervising batches
// of scheduler jobs.
package maker

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/batchforge/batchforge/internal/events"
	"github.com/batchforge/batchforge/internal/jobs"
	"github.com/batchforge/batchforge/internal/logging"
	"github.com/batchforge/batchforge/internal/models"
	"github.com/batchforge/batchforge/internal/naming"
	"github.com/batchforge/batchforge/internal/templates"
)

// Maker errors.
var (
	ErrNoRequests      = errors.New("no job requests")
	ErrTooManyFailures = errors.New("too many submission failures")
)

// SkeletonSource resolves skeleton names.
type SkeletonSource interface {
	Find(name string) (*templates.Skeleton, error)
}

// Scheduler submits jobs and reports their states.
type Scheduler interface {
	Submit(ctx context.Context, scriptPath string) (string, error)
	States(ctx context.Context, batchIDs []string) (map[string]models.JobState, error)
}

// Uploader copies rendered scripts to the submission host. A nil Uploader
// means scripts are submitted from the local filesystem.
type Uploader interface {
	Upload(ctx context.Context, localPath, remotePath string) error
}

// Store persists job records across runs.
type Store interface {
	Create(ctx context.Context, job *models.Job) error
	GetByName(ctx context.Context, name string) (*models.Job, error)
	Update(ctx context.Context, job *models.Job) error
	UpdateState(ctx context.Context, id string, state models.JobState, errDetail string) error
}

// Request describes one job to make.
type Request struct {
	// Name identifies the job. Empty names are derived from the variable
	// mapping.
	Name string

	// Skeleton is the skeleton to render.
	Skeleton string

	// Variables is the substitution mapping for the skeleton.
	Variables map[string]string
}

// Config contains maker configuration.
type Config struct {
	// ScriptDir is where rendered scripts are written locally.
	// Default: a temporary directory.
	ScriptDir string

	// RemoteDir is the directory on the submission host scripts are
	// uploaded to. Ignored when no Uploader is configured.
	RemoteDir string

	// Host names the submission host for bookkeeping.
	Host string

	// MaxFailures is how many submission attempts a job gets before it
	// is abandoned. Default: 3.
	MaxFailures int

	// PollInterval is passed to the watcher. Default: 30 seconds.
	PollInterval time.Duration
}

// Result summarizes a run.
type Result struct {
	RunID     string
	Total     int
	Completed int
	Failed    int
	Skipped   int
	Duration  time.Duration
	Jobs      []*models.Job
}

// ProgressFunc receives human-readable progress lines during a run.
type ProgressFunc func(line string)

// Maker renders job scripts from skeletons, submits them and waits for the
// scheduler to finish them, retrying failed submissions.
type Maker struct {
	config    Config
	skeletons SkeletonSource
	scheduler Scheduler
	uploader  Uploader
	store     Store
	eventRepo events.Repository
	progress  ProgressFunc
	logger    zerolog.Logger
}

// Option configures a Maker.
type Option func(*Maker)

// WithUploader makes the maker upload scripts before submission.
func WithUploader(u Uploader) Option {
	return func(m *Maker) { m.uploader = u }
}

// WithEventRepository records run and job events.
func WithEventRepository(repo events.Repository) Option {
	return func(m *Maker) { m.eventRepo = repo }
}

// WithProgress reports progress lines to the given function.
func WithProgress(fn ProgressFunc) Option {
	return func(m *Maker) { m.progress = fn }
}

// New creates a Maker.
func New(config Config, skeletons SkeletonSource, scheduler Scheduler, store Store, opts ...Option) *Maker {
	if config.MaxFailures <= 0 {
		config.MaxFailures = 3
	}
	if config.PollInterval <= 0 {
		config.PollInterval = 30 * time.Second
	}

	m := &Maker{
		config:    config,
		skeletons: skeletons,
		scheduler: scheduler,
		store:     store,
		logger:    logging.Component("maker"),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Run makes every requested job and blocks until all of them reach a
// terminal state or the context ends. Jobs that already completed in a
// previous run are skipped.
func (m *Maker) Run(ctx context.Context, requests []Request) (*Result, error) {
	if len(requests) == 0 {
		return nil, ErrNoRequests
	}

	runID := uuid.New().String()
	started := time.Now()

	if m.eventRepo != nil {
		if err := events.LogRunStarted(ctx, m.eventRepo, runID); err != nil {
			m.logger.Warn().Err(err).Msg("failed to record run start")
		}
	}

	result := &Result{RunID: runID, Total: len(requests)}

	scriptDir := m.config.ScriptDir
	if scriptDir == "" {
		dir, err := os.MkdirTemp("", "batchforge-scripts-")
		if err != nil {
			return nil, fmt.Errorf("failed to create script directory: %w", err)
		}
		scriptDir = dir
	} else if err := os.MkdirAll(scriptDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create script directory: %w", err)
	}

	var active []*models.Job
	for _, req := range requests {
		job, skipped, err := m.prepare(ctx, req, scriptDir)
		if err != nil {
			return nil, err
		}
		if skipped {
			result.Skipped++
			m.report("skipping %s: already completed", job.Name)
			continue
		}
		active = append(active, job)
	}

	for round := 0; len(active) > 0; round++ {
		if round > 0 {
			m.report("retrying %d failed job(s), round %d", len(active), round+1)
		}

		submitted, abandoned := m.submitAll(ctx, active)
		result.Jobs = append(result.Jobs, abandoned...)
		result.Failed += len(abandoned)

		if len(submitted) == 0 {
			break
		}

		if err := m.watch(ctx, submitted); err != nil {
			return result, err
		}

		active = active[:0]
		for _, job := range submitted {
			switch job.State {
			case models.JobStateCompleted:
				result.Completed++
				result.Jobs = append(result.Jobs, job)
			case models.JobStateCancelled:
				result.Jobs = append(result.Jobs, job)
			default:
				// Failed on the cluster; eligible for another attempt.
				if job.Attempts >= m.config.MaxFailures {
					m.abandon(ctx, job)
					result.Failed++
					result.Jobs = append(result.Jobs, job)
				} else {
					active = append(active, job)
				}
			}
		}
	}

	result.Duration = time.Since(started)

	if m.eventRepo != nil {
		if err := events.LogRunFinished(ctx, m.eventRepo, runID, result.Total, result.Completed, result.Failed, result.Duration); err != nil {
			m.logger.Warn().Err(err).Msg("failed to record run finish")
		}
	}

	m.logger.Info().
		Str("run_id", runID).
		Int("total", result.Total).
		Int("completed", result.Completed).
		Int("failed", result.Failed).
		Int("skipped", result.Skipped).
		Dur("duration", result.Duration).
		Msg("run finished")

	return result, nil
}

// prepare renders the script for one request and ensures a job record
// exists. It reports skipped=true for jobs that already completed.
func (m *Maker) prepare(ctx context.Context, req Request, scriptDir string) (*models.Job, bool, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		name = naming.FromVariables(req.Variables)
	}

	if m.store != nil {
		if existing, err := m.store.GetByName(ctx, name); err == nil {
			if existing.State == models.JobStateCompleted {
				return existing, true, nil
			}
		}
	}

	skel, err := m.skeletons.Find(req.Skeleton)
	if err != nil {
		return nil, false, fmt.Errorf("job %s: %w", name, err)
	}

	script, err := templates.RenderSkeleton(skel, req.Variables)
	if err != nil {
		return nil, false, fmt.Errorf("job %s: %w", name, err)
	}

	scriptPath := filepath.Join(scriptDir, name+".sh")
	if err := os.WriteFile(scriptPath, []byte(script), 0o755); err != nil {
		return nil, false, fmt.Errorf("job %s: failed to write script: %w", name, err)
	}

	job := &models.Job{
		Name:       name,
		Skeleton:   skel.Name,
		State:      models.JobStatePending,
		Host:       m.config.Host,
		ScriptPath: scriptPath,
		Variables:  req.Variables,
	}
	if m.store != nil {
		if err := m.store.Create(ctx, job); err != nil {
			return nil, false, fmt.Errorf("job %s: failed to record: %w", name, err)
		}
	} else {
		job.ID = uuid.New().String()
	}

	if m.eventRepo != nil {
		if err := events.LogScriptRendered(ctx, m.eventRepo, job.ID, skel.Name, scriptPath, len(script)); err != nil {
			m.logger.Warn().Err(err).Msg("failed to record render event")
		}
	}

	m.report("rendered %s from %s", name, skel.Name)
	return job, false, nil
}

// submitAll submits each job, returning those now tracked by the scheduler
// and those abandoned after too many failed attempts.
func (m *Maker) submitAll(ctx context.Context, batch []*models.Job) (submitted, abandoned []*models.Job) {
	for _, job := range batch {
		if err := m.submit(ctx, job); err != nil {
			m.logger.Warn().Err(err).Str("job", job.Name).Int("attempts", job.Attempts).Msg("submission failed")
			if job.Attempts >= m.config.MaxFailures {
				m.abandon(ctx, job)
				abandoned = append(abandoned, job)
			} else {
				// Not yet at the attempt limit; try again next round.
				submitted = append(submitted, job)
			}
			continue
		}
		submitted = append(submitted, job)
	}
	return submitted, abandoned
}

// submit pushes one job script at the scheduler.
func (m *Maker) submit(ctx context.Context, job *models.Job) error {
	job.Attempts++

	scriptPath := job.ScriptPath
	if m.uploader != nil {
		remotePath := path.Join(m.config.RemoteDir, filepath.Base(job.ScriptPath))
		if err := m.uploader.Upload(ctx, job.ScriptPath, remotePath); err != nil {
			job.Error = err.Error()
			m.persist(ctx, job)
			return fmt.Errorf("upload failed: %w", err)
		}
		scriptPath = remotePath

		if m.eventRepo != nil {
			if err := events.LogScriptUploaded(ctx, m.eventRepo, job.ID, remotePath); err != nil {
				m.logger.Warn().Err(err).Msg("failed to record upload event")
			}
		}
	}

	batchID, err := m.scheduler.Submit(ctx, scriptPath)
	if err != nil {
		job.Error = err.Error()
		m.persist(ctx, job)
		return err
	}

	job.BatchID = batchID
	job.State = models.JobStateSubmitted
	job.Error = ""
	m.persist(ctx, job)

	if m.eventRepo != nil {
		if err := events.LogJobSubmitted(ctx, m.eventRepo, job.ID, batchID, m.config.Host, scriptPath, job.Attempts); err != nil {
			m.logger.Warn().Err(err).Msg("failed to record submit event")
		}
	}

	m.report("submitted %s as batch job %s", job.Name, batchID)
	return nil
}

// watch supervises one round of submitted jobs until they all finish.
func (m *Maker) watch(ctx context.Context, batch []*models.Job) error {
	watcher := jobs.New(jobs.Config{PollInterval: m.config.PollInterval}, m.scheduler, m.store, m.eventRepo)
	for _, job := range batch {
		if job.BatchID == "" {
			continue
		}
		if err := watcher.Track(job); err != nil {
			return err
		}
	}

	if err := watcher.Start(ctx); err != nil {
		return err
	}
	defer watcher.Stop()

	if err := watcher.Wait(ctx); err != nil {
		return err
	}

	// Copy final states back into the run's job records.
	final := make(map[string]models.JobState)
	for _, job := range watcher.Snapshot() {
		final[job.BatchID] = job.State
	}
	for _, job := range batch {
		if state, ok := final[job.BatchID]; ok {
			job.State = state
		}
	}
	return nil
}

// abandon marks a job permanently failed.
func (m *Maker) abandon(ctx context.Context, job *models.Job) {
	job.State = models.JobStateFailed
	if job.Error == "" {
		job.Error = ErrTooManyFailures.Error()
	}
	m.persist(ctx, job)

	if m.eventRepo != nil {
		if err := events.LogJobFailed(ctx, m.eventRepo, job.ID, job.BatchID, job.Error, job.Attempts); err != nil {
			m.logger.Warn().Err(err).Msg("failed to record failure event")
		}
	}

	m.report("giving up on %s after %d attempt(s)", job.Name, job.Attempts)
}

func (m *Maker) persist(ctx context.Context, job *models.Job) {
	if m.store == nil {
		return
	}
	if err := m.store.Update(ctx, job); err != nil {
		m.logger.Error().Err(err).Str("job", job.Name).Msg("failed to persist job")
	}
}

func (m *Maker) report(format string, args ...any) {
	if m.progress == nil {
		return
	}
	m.progress(fmt.Sprintf(format, args...))
}
