package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/batchforge/batchforge/internal/models"
)

// Job repository errors.
var (
	ErrJobNotFound = errors.New("job not found")
	ErrInvalidJob  = errors.New("invalid job")
)

// JobRepository handles job persistence.
type JobRepository struct {
	db *DB
}

// NewJobRepository creates a new JobRepository.
func NewJobRepository(db *DB) *JobRepository {
	return &JobRepository{db: db}
}

// JobQuery defines filters for listing jobs.
type JobQuery struct {
	States   []models.JobState // Filter by lifecycle state
	Skeleton string            // Filter by skeleton name
	Name     string            // Filter by exact job name
	Limit    int               // Max results to return
}

const jobColumns = `id, name, skeleton, batch_id, state, host, script_path, variables_json, attempts, error, created_at, updated_at`

// Create inserts a new job record.
func (r *JobRepository) Create(ctx context.Context, job *models.Job) error {
	if err := job.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidJob, err)
	}

	if job.ID == "" {
		job.ID = uuid.New().String()
	}
	if job.State == "" {
		job.State = models.JobStatePending
	}

	now := time.Now().UTC()
	if job.CreatedAt.IsZero() {
		job.CreatedAt = now
	}
	job.UpdatedAt = now

	variablesJSON, err := job.VariablesJSON()
	if err != nil {
		return fmt.Errorf("failed to marshal job variables: %w", err)
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO jobs (`+jobColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		job.ID,
		job.Name,
		job.Skeleton,
		nullString(job.BatchID),
		string(job.State),
		nullString(job.Host),
		nullString(job.ScriptPath),
		nullString(variablesJSON),
		job.Attempts,
		nullString(job.Error),
		job.CreatedAt.Format(time.RFC3339),
		job.UpdatedAt.Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("failed to insert job: %w", err)
	}

	return nil
}

// Get retrieves a job by its batchforge ID.
func (r *JobRepository) Get(ctx context.Context, id string) (*models.Job, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id = ?`, id)
	return r.scanJob(row)
}

// GetByName retrieves a job by its name.
func (r *JobRepository) GetByName(ctx context.Context, name string) (*models.Job, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM jobs WHERE name = ? ORDER BY created_at DESC LIMIT 1`, name)
	return r.scanJob(row)
}

// GetByBatchID retrieves a job by its scheduler-assigned ID.
func (r *JobRepository) GetByBatchID(ctx context.Context, batchID string) (*models.Job, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM jobs WHERE batch_id = ?`, batchID)
	return r.scanJob(row)
}

// List retrieves jobs matching the given filters, newest first.
func (r *JobRepository) List(ctx context.Context, q JobQuery) ([]*models.Job, error) {
	query := `SELECT ` + jobColumns + ` FROM jobs WHERE 1=1`
	args := []any{}

	if len(q.States) > 0 {
		placeholders := make([]string, len(q.States))
		for i, state := range q.States {
			placeholders[i] = "?"
			args = append(args, string(state))
		}
		query += ` AND state IN (` + strings.Join(placeholders, ", ") + `)`
	}
	if q.Skeleton != "" {
		query += ` AND skeleton = ?`
		args = append(args, q.Skeleton)
	}
	if q.Name != "" {
		query += ` AND name = ?`
		args = append(args, q.Name)
	}

	query += ` ORDER BY created_at DESC, id`
	if q.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, q.Limit)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query jobs: %w", err)
	}
	defer rows.Close()

	var jobs []*models.Job
	for rows.Next() {
		job, err := r.scanJobFromRows(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating jobs: %w", err)
	}

	return jobs, nil
}

// Update persists the current state of a job record.
func (r *JobRepository) Update(ctx context.Context, job *models.Job) error {
	if err := job.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidJob, err)
	}

	job.UpdatedAt = time.Now().UTC()

	variablesJSON, err := job.VariablesJSON()
	if err != nil {
		return fmt.Errorf("failed to marshal job variables: %w", err)
	}

	result, err := r.db.ExecContext(ctx, `
		UPDATE jobs SET
			name = ?, skeleton = ?, batch_id = ?, state = ?, host = ?,
			script_path = ?, variables_json = ?, attempts = ?, error = ?, updated_at = ?
		WHERE id = ?
	`,
		job.Name,
		job.Skeleton,
		nullString(job.BatchID),
		string(job.State),
		nullString(job.Host),
		nullString(job.ScriptPath),
		nullString(variablesJSON),
		job.Attempts,
		nullString(job.Error),
		job.UpdatedAt.Format(time.RFC3339),
		job.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update job: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check update result: %w", err)
	}
	if affected == 0 {
		return ErrJobNotFound
	}

	return nil
}

// UpdateState transitions a job to a new state, recording an optional
// failure detail.
func (r *JobRepository) UpdateState(ctx context.Context, id string, state models.JobState, errDetail string) error {
	if !state.Valid() {
		return fmt.Errorf("%w: unknown state %q", ErrInvalidJob, state)
	}

	result, err := r.db.ExecContext(ctx, `
		UPDATE jobs SET state = ?, error = ?, updated_at = ? WHERE id = ?
	`,
		string(state),
		nullString(errDetail),
		time.Now().UTC().Format(time.RFC3339),
		id,
	)
	if err != nil {
		return fmt.Errorf("failed to update job state: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check update result: %w", err)
	}
	if affected == 0 {
		return ErrJobNotFound
	}

	return nil
}

// Delete removes a job record.
func (r *JobRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM jobs WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete job: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check delete result: %w", err)
	}
	if affected == 0 {
		return ErrJobNotFound
	}

	return nil
}

func (r *JobRepository) scanJob(row *sql.Row) (*models.Job, error) {
	job, err := scanJobFields(row.Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrJobNotFound
		}
		return nil, fmt.Errorf("failed to scan job: %w", err)
	}
	return job, nil
}

func (r *JobRepository) scanJobFromRows(rows *sql.Rows) (*models.Job, error) {
	job, err := scanJobFields(rows.Scan)
	if err != nil {
		return nil, fmt.Errorf("failed to scan job: %w", err)
	}
	return job, nil
}

func scanJobFields(scan func(...any) error) (*models.Job, error) {
	var job models.Job
	var state, createdAt, updatedAt string
	var batchID, host, scriptPath, variablesJSON, errDetail sql.NullString

	if err := scan(
		&job.ID,
		&job.Name,
		&job.Skeleton,
		&batchID,
		&state,
		&host,
		&scriptPath,
		&variablesJSON,
		&job.Attempts,
		&errDetail,
		&createdAt,
		&updatedAt,
	); err != nil {
		return nil, err
	}

	job.State = models.JobState(state)
	job.BatchID = batchID.String
	job.Host = host.String
	job.ScriptPath = scriptPath.String
	job.Error = errDetail.String

	if variablesJSON.Valid && variablesJSON.String != "" {
		if err := json.Unmarshal([]byte(variablesJSON.String), &job.Variables); err != nil {
			return nil, fmt.Errorf("failed to parse job variables: %w", err)
		}
	}

	if t, err := time.Parse(time.RFC3339, createdAt); err == nil {
		job.CreatedAt = t
	}
	if t, err := time.Parse(time.RFC3339, updatedAt); err == nil {
		job.UpdatedAt = t
	}

	return &job, nil
}

func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
