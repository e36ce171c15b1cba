package services

import (
	"errors"
	"testing"
	"time"

	"watchlog/models"
)

func TestEnqueueRejectsUnknownType(t *testing.T) {
	db := newTestDB(t)
	jobs := NewJobStore(db)

	if _, err := jobs.Enqueue("mystery-job", nil, nil); err == nil {
		t.Fatal("expected unknown job type to be rejected")
	}
}

func TestNextWaitingIsFIFO(t *testing.T) {
	db := newTestDB(t)
	jobs := NewJobStore(db)

	// Back-to-back enqueues land within the same second; nanosecond
	// timestamps must still keep them in insertion order.
	first, err := jobs.Enqueue(models.JobTypeMetadataRefresh, nil, nil)
	if err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}
	second, err := jobs.Enqueue(models.JobTypePosterCacheRefresh, nil, nil)
	if err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}
	if first.CreatedAt >= second.CreatedAt {
		t.Fatalf("expected distinct ordered timestamps, got %q and %q", first.CreatedAt, second.CreatedAt)
	}

	next, err := jobs.NextWaiting()
	if err != nil {
		t.Fatalf("NextWaiting failed: %v", err)
	}
	if next == nil || next.ID != first.ID {
		t.Fatalf("expected oldest job %s first, got %+v", first.ID, next)
	}

	if err := jobs.Claim(first.ID); err != nil {
		t.Fatalf("Claim failed: %v", err)
	}
	next, err = jobs.NextWaiting()
	if err != nil {
		t.Fatalf("NextWaiting failed: %v", err)
	}
	if next == nil || next.ID != second.ID {
		t.Fatalf("expected job %s after claiming the first, got %+v", second.ID, next)
	}
}

func TestNextWaitingEmptyQueue(t *testing.T) {
	db := newTestDB(t)
	jobs := NewJobStore(db)

	job, err := jobs.NextWaiting()
	if err != nil {
		t.Fatalf("NextWaiting failed: %v", err)
	}
	if job != nil {
		t.Fatalf("expected no job, got %+v", job)
	}
}

func TestClaimIsExclusive(t *testing.T) {
	db := newTestDB(t)
	jobs := NewJobStore(db)

	job, err := jobs.Enqueue(models.JobTypeMetadataRefresh, nil, nil)
	if err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}

	if err := jobs.Claim(job.ID); err != nil {
		t.Fatalf("first claim failed: %v", err)
	}
	if err := jobs.Claim(job.ID); !errors.Is(err, ErrJobAlreadyClaimed) {
		t.Fatalf("expected ErrJobAlreadyClaimed, got %v", err)
	}
}

func TestMarkDoneRecordsSummary(t *testing.T) {
	db := newTestDB(t)
	jobs := NewJobStore(db)

	job, err := jobs.Enqueue(models.JobTypeMetadataRefresh, nil, models.JobParams{"limit": 5})
	if err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}
	if err := jobs.Claim(job.ID); err != nil {
		t.Fatalf("Claim failed: %v", err)
	}
	if err := jobs.MarkDone(job.ID, &Summary{Applied: 3, Skipped: 1}); err != nil {
		t.Fatalf("MarkDone failed: %v", err)
	}

	found, err := jobs.Find(job.ID)
	if err != nil {
		t.Fatalf("Find failed: %v", err)
	}
	if found.Status != models.JobStatusDone {
		t.Errorf("expected status done, got %s", found.Status)
	}

	summary, ok := found.Parameters["_summary"].(map[string]any)
	if !ok {
		t.Fatalf("expected _summary in parameters, got %+v", found.Parameters)
	}
	if summary["applied"] != float64(3) || summary["skipped"] != float64(1) {
		t.Errorf("unexpected summary %+v", summary)
	}
	if found.Parameters["limit"] != float64(5) {
		t.Errorf("expected original parameters preserved, got %+v", found.Parameters)
	}
}

func TestMarkFailedRecordsFailure(t *testing.T) {
	db := newTestDB(t)
	jobs := NewJobStore(db)

	job, err := jobs.Enqueue(models.JobTypeMetadataRefresh, nil, nil)
	if err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}
	if err := jobs.Claim(job.ID); err != nil {
		t.Fatalf("Claim failed: %v", err)
	}
	if err := jobs.MarkFailed(job.ID, "AuthError", "token expired", &Summary{Applied: 2}); err != nil {
		t.Fatalf("MarkFailed failed: %v", err)
	}

	found, err := jobs.Find(job.ID)
	if err != nil {
		t.Fatalf("Find failed: %v", err)
	}
	if found.Status != models.JobStatusFailed {
		t.Errorf("expected status failed, got %s", found.Status)
	}

	failure, ok := found.Parameters["_failure"].(map[string]any)
	if !ok {
		t.Fatalf("expected _failure in parameters, got %+v", found.Parameters)
	}
	if failure["kind"] != "AuthError" || failure["message"] != "token expired" {
		t.Errorf("unexpected failure record %+v", failure)
	}

	summary, ok := found.Parameters["_summary"].(map[string]any)
	if !ok || summary["applied"] != float64(2) {
		t.Errorf("expected partial summary to be recorded, got %+v", found.Parameters)
	}
}

func TestTerminalStatusNeverTransitions(t *testing.T) {
	db := newTestDB(t)
	jobs := NewJobStore(db)

	job, err := jobs.Enqueue(models.JobTypeMetadataRefresh, nil, nil)
	if err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}
	if err := jobs.Claim(job.ID); err != nil {
		t.Fatalf("Claim failed: %v", err)
	}
	if err := jobs.MarkDone(job.ID, nil); err != nil {
		t.Fatalf("MarkDone failed: %v", err)
	}

	if err := jobs.MarkFailed(job.ID, "StorageError", "late failure", nil); err != nil {
		t.Fatalf("MarkFailed failed: %v", err)
	}
	status, err := jobs.Status(job.ID)
	if err != nil {
		t.Fatalf("Status failed: %v", err)
	}
	if status != models.JobStatusDone {
		t.Errorf("expected done to stay terminal, got %s", status)
	}

	if err := jobs.Claim(job.ID); !errors.Is(err, ErrJobAlreadyClaimed) {
		t.Errorf("expected terminal job to be unclaimable, got %v", err)
	}
}

func TestFindLastFinished(t *testing.T) {
	db := newTestDB(t)
	jobs := NewJobStore(db)
	userID := int64(1)

	last, err := jobs.FindLastFinished(models.JobTypeSocialImportHistory, userID)
	if err != nil {
		t.Fatalf("FindLastFinished failed: %v", err)
	}
	if last != "" {
		t.Errorf("expected no finished job, got %q", last)
	}

	job, err := jobs.Enqueue(models.JobTypeSocialImportHistory, &userID, nil)
	if err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}
	if err := jobs.Claim(job.ID); err != nil {
		t.Fatalf("Claim failed: %v", err)
	}
	if err := jobs.MarkDone(job.ID, nil); err != nil {
		t.Fatalf("MarkDone failed: %v", err)
	}

	last, err = jobs.FindLastFinished(models.JobTypeSocialImportHistory, userID)
	if err != nil {
		t.Fatalf("FindLastFinished failed: %v", err)
	}
	if last == "" {
		t.Error("expected a finished timestamp")
	}
}

func TestResetStale(t *testing.T) {
	db := newTestDB(t)
	jobs := NewJobStore(db)

	job, err := jobs.Enqueue(models.JobTypeMetadataRefresh, nil, nil)
	if err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}
	if err := jobs.Claim(job.ID); err != nil {
		t.Fatalf("Claim failed: %v", err)
	}

	stale := time.Now().UTC().Add(-2 * time.Hour).Format(models.TimeLayout)
	if _, err := db.Exec(db.Rebind(`UPDATE job SET updated_at = ? WHERE id = ?`), stale, job.ID); err != nil {
		t.Fatalf("failed to age job: %v", err)
	}

	reset, err := jobs.ResetStale(time.Hour)
	if err != nil {
		t.Fatalf("ResetStale failed: %v", err)
	}
	if reset != 1 {
		t.Errorf("expected 1 job reset, got %d", reset)
	}

	status, err := jobs.Status(job.ID)
	if err != nil {
		t.Fatalf("Status failed: %v", err)
	}
	if status != models.JobStatusWaiting {
		t.Errorf("expected job back to waiting, got %s", status)
	}
}
