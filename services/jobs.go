package services

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"watchlog/models"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

// ErrJobAlreadyClaimed means another worker won the claim; the loser just
// moves on to the next job.
var ErrJobAlreadyClaimed = errors.New("job already claimed")

// JobStore is the persistent job queue. Status only ever advances
// waiting -> in_progress -> done|failed; done and failed are terminal.
type JobStore struct {
	db *sqlx.DB
}

func NewJobStore(db *sqlx.DB) *JobStore {
	return &JobStore{db: db}
}

const jobColumns = `id, user_id, type, status, parameters, created_at, updated_at`

// Enqueue inserts a waiting job and returns it.
func (s *JobStore) Enqueue(jobType models.JobType, userID *int64, params models.JobParams) (*models.Job, error) {
	if !models.ValidJobType(jobType) {
		return nil, fmt.Errorf("unknown job type %q", jobType)
	}
	if params == nil {
		params = models.JobParams{}
	}

	job := &models.Job{
		ID:         uuid.NewString(),
		UserID:     userID,
		Type:       jobType,
		Status:     models.JobStatusWaiting,
		Parameters: params,
		CreatedAt:  models.NowUTC(),
		UpdatedAt:  models.NowUTC(),
	}

	query := s.db.Rebind(`
		INSERT INTO job (id, user_id, type, status, parameters, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if _, err := s.db.Exec(query, job.ID, job.UserID, job.Type, job.Status, job.Parameters, job.CreatedAt, job.UpdatedAt); err != nil {
		return nil, fmt.Errorf("failed to enqueue job: %w", err)
	}
	return job, nil
}

// NextWaiting returns the oldest waiting job, or nil when the queue is empty.
// Timestamps carry nanosecond precision, so enqueue order is preserved even
// within one second.
func (s *JobStore) NextWaiting() (*models.Job, error) {
	var job models.Job
	query := s.db.Rebind(`SELECT ` + jobColumns + ` FROM job WHERE status = ? ORDER BY created_at ASC, id ASC LIMIT 1`)
	err := s.db.Get(&job, query, models.JobStatusWaiting)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to fetch waiting job: %w", err)
	}
	return &job, nil
}

// Claim atomically moves a waiting job to in_progress. The status predicate
// guarantees at most one worker wins even with parallel workers.
func (s *JobStore) Claim(id string) error {
	query := s.db.Rebind(`UPDATE job SET status = ?, updated_at = ? WHERE id = ? AND status = ?`)
	result, err := s.db.Exec(query, models.JobStatusInProgress, models.NowUTC(), id, models.JobStatusWaiting)
	if err != nil {
		return fmt.Errorf("failed to claim job %s: %w", id, err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to claim job %s: %w", id, err)
	}
	if affected != 1 {
		return ErrJobAlreadyClaimed
	}
	return nil
}

// MarkDone finishes an in_progress job. The status predicate means an
// externally terminated job stays terminal.
func (s *JobStore) MarkDone(id string, summary *Summary) error {
	return s.finish(id, models.JobStatusDone, func(params models.JobParams) {
		if summary != nil {
			params["_summary"] = summary.ToParams()
		}
	})
}

// MarkFailed fails an in_progress job, recording the error kind and message
// under parameters._failure.
func (s *JobStore) MarkFailed(id string, kind, message string, summary *Summary) error {
	return s.finish(id, models.JobStatusFailed, func(params models.JobParams) {
		params["_failure"] = map[string]any{
			"kind":    kind,
			"message": message,
		}
		if summary != nil {
			params["_summary"] = summary.ToParams()
		}
	})
}

func (s *JobStore) finish(id string, status models.JobStatus, decorate func(models.JobParams)) error {
	job, err := s.Find(id)
	if err != nil {
		return err
	}
	if job == nil {
		return fmt.Errorf("job %s not found", id)
	}

	params := job.Parameters
	if params == nil {
		params = models.JobParams{}
	}
	decorate(params)

	query := s.db.Rebind(`UPDATE job SET status = ?, parameters = ?, updated_at = ? WHERE id = ? AND status = ?`)
	if _, err := s.db.Exec(query, status, params, models.NowUTC(), id, models.JobStatusInProgress); err != nil {
		return fmt.Errorf("failed to finish job %s: %w", id, err)
	}
	return nil
}

// Find returns the job, or nil when unknown.
func (s *JobStore) Find(id string) (*models.Job, error) {
	var job models.Job
	query := s.db.Rebind(`SELECT ` + jobColumns + ` FROM job WHERE id = ?`)
	err := s.db.Get(&job, query, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to fetch job %s: %w", id, err)
	}
	return &job, nil
}

// Status returns the job's current status. Import routines call this
// between pages to observe external termination.
func (s *JobStore) Status(id string) (models.JobStatus, error) {
	var status models.JobStatus
	query := s.db.Rebind(`SELECT status FROM job WHERE id = ?`)
	if err := s.db.Get(&status, query, id); err != nil {
		return "", fmt.Errorf("failed to fetch job status: %w", err)
	}
	return status, nil
}

// List returns the most recently created jobs.
func (s *JobStore) List(limit int) ([]models.Job, error) {
	var jobs []models.Job
	query := s.db.Rebind(`SELECT ` + jobColumns + ` FROM job ORDER BY created_at DESC, id DESC LIMIT ?`)
	if err := s.db.Select(&jobs, query, limit); err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}
	return jobs, nil
}

// FindLastFinished returns the updated_at of the newest done job of the
// given type for the user, or "" when none finished yet.
func (s *JobStore) FindLastFinished(jobType models.JobType, userID int64) (string, error) {
	var updatedAt string
	query := s.db.Rebind(`SELECT updated_at FROM job WHERE type = ? AND user_id = ? AND status = ?
		ORDER BY updated_at DESC LIMIT 1`)
	err := s.db.Get(&updatedAt, query, jobType, userID, models.JobStatusDone)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to fetch last finished job: %w", err)
	}
	return updatedAt, nil
}

// ResetStale moves jobs stuck in_progress for longer than maxAge back to
// waiting. The core never calls this; it is the entry point for an external
// janitor.
func (s *JobStore) ResetStale(maxAge time.Duration) (int64, error) {
	cutoff := time.Now().UTC().Add(-maxAge).Format(models.TimeLayout)
	query := s.db.Rebind(`UPDATE job SET status = ?, updated_at = ? WHERE status = ? AND updated_at < ?`)
	result, err := s.db.Exec(query, models.JobStatusWaiting, models.NowUTC(), models.JobStatusInProgress, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to reset stale jobs: %w", err)
	}
	return result.RowsAffected()
}
