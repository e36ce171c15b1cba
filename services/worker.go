package services

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"watchlog/models"
	"watchlog/sources"

	"golang.org/x/sync/errgroup"
)

// ErrJobTerminated means the job's status changed under a running import
// (external termination). The import stops and the worker leaves the job's
// status alone.
var ErrJobTerminated = errors.New("job terminated externally")

// JobHandler runs one claimed job. The returned summary is recorded whether
// the job succeeds or fails, so partial progress stays visible.
type JobHandler func(ctx context.Context, job models.Job) (*Summary, error)

// Worker claims waiting jobs in FIFO order and dispatches them by type. One
// worker runs one job at a time; scale by running more workers, the atomic
// claim keeps them from colliding.
type Worker struct {
	jobs     *JobStore
	users    *UserStore
	handlers map[models.JobType]JobHandler
	poll     time.Duration
}

func NewWorker(jobs *JobStore, users *UserStore, poll time.Duration) *Worker {
	if poll <= 0 {
		poll = 2 * time.Second
	}
	return &Worker{
		jobs:     jobs,
		users:    users,
		handlers: make(map[models.JobType]JobHandler),
		poll:     poll,
	}
}

func (w *Worker) Register(jobType models.JobType, handler JobHandler) {
	w.handlers[jobType] = handler
}

// Run processes jobs until the context is cancelled.
func (w *Worker) Run(ctx context.Context) error {
	slog.Info("Worker started", "poll_interval", w.poll)
	for {
		processed, err := w.ProcessNext(ctx)
		if err != nil {
			slog.Error("Worker iteration failed", "error", err)
		}
		if processed && err == nil {
			continue
		}

		select {
		case <-ctx.Done():
			slog.Info("Worker stopped")
			return nil
		case <-time.After(w.poll):
		}
	}
}

// RunWorkers runs count worker loops in parallel.
func (w *Worker) RunWorkers(ctx context.Context, count int) error {
	if count < 1 {
		count = 1
	}
	g, ctx := errgroup.WithContext(ctx)
	for i := 0; i < count; i++ {
		g.Go(func() error {
			return w.Run(ctx)
		})
	}
	return g.Wait()
}

// ProcessNext claims and runs the oldest waiting job. It reports whether a
// job was handled (including losing a claim race).
func (w *Worker) ProcessNext(ctx context.Context) (bool, error) {
	job, err := w.jobs.NextWaiting()
	if err != nil {
		return false, err
	}
	if job == nil {
		return false, nil
	}

	if err := w.jobs.Claim(job.ID); err != nil {
		if errors.Is(err, ErrJobAlreadyClaimed) {
			return true, nil
		}
		return false, err
	}
	job.Status = models.JobStatusInProgress

	handler, ok := w.handlers[job.Type]
	if !ok {
		slog.Error("No handler registered for job type", "type", job.Type, "job_id", job.ID)
		return true, w.jobs.MarkFailed(job.ID, string(sources.ErrorKindProtocol), "no handler for job type "+string(job.Type), nil)
	}

	slog.Info("Processing job", "job_id", job.ID, "type", job.Type)
	summary, err := handler(ctx, *job)
	if err != nil {
		if errors.Is(err, ErrJobTerminated) {
			slog.Warn("Job terminated externally, leaving status untouched", "job_id", job.ID, "type", job.Type)
			return true, nil
		}

		kind := FailureKind(err)
		slog.Error("Job failed", "job_id", job.ID, "type", job.Type, "kind", kind, "error", err)

		if kind == string(sources.ErrorKindAuth) && job.UserID != nil {
			if markErr := w.users.MarkCredentialsInvalid(*job.UserID); markErr != nil {
				slog.Error("Failed to flag invalid credentials", "user_id", *job.UserID, "error", markErr)
			}
		}
		return true, w.jobs.MarkFailed(job.ID, kind, err.Error(), summary)
	}

	slog.Info("Job done", "job_id", job.ID, "type", job.Type)
	return true, w.jobs.MarkDone(job.ID, summary)
}

// FailureKind names an error for the job's parameters._failure record.
func FailureKind(err error) string {
	if kind := sources.KindOf(err); kind != "" {
		return string(kind)
	}
	if errors.Is(err, ErrUnresolvable) {
		return "UnresolvableIdentifier"
	}
	return "StorageError"
}
