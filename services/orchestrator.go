package services

import (
	"fmt"

	"watchlog/models"
)

// Orchestrator is the enqueue-only façade: it inserts job rows and never
// does import work synchronously.
type Orchestrator struct {
	jobs *JobStore
}

func NewOrchestrator(jobs *JobStore) *Orchestrator {
	return &Orchestrator{jobs: jobs}
}

// userJobTypes are the job types that sync one user from one source.
var userJobTypes = map[models.JobType]bool{
	models.JobTypeMediaServerRefresh:  true,
	models.JobTypeSocialImportHistory: true,
	models.JobTypeSocialImportRatings: true,
	models.JobTypeCsvImportHistory:    true,
	models.JobTypeCsvImportRatings:    true,
}

// EnqueueSyncAll queues a full sync of every remote source for the user.
// CSV imports are excluded, they need a file parameter.
func (o *Orchestrator) EnqueueSyncAll(userID int64) ([]models.Job, error) {
	types := []models.JobType{
		models.JobTypeMediaServerRefresh,
		models.JobTypeSocialImportHistory,
		models.JobTypeSocialImportRatings,
	}

	jobs := make([]models.Job, 0, len(types))
	for _, jobType := range types {
		job, err := o.jobs.Enqueue(jobType, &userID, nil)
		if err != nil {
			return jobs, err
		}
		jobs = append(jobs, *job)
	}
	return jobs, nil
}

// EnqueueSync queues one user-scoped sync job.
func (o *Orchestrator) EnqueueSync(userID int64, jobType models.JobType, params models.JobParams) (*models.Job, error) {
	if !userJobTypes[jobType] {
		return nil, fmt.Errorf("job type %q is not a per-user sync", jobType)
	}
	return o.jobs.Enqueue(jobType, &userID, params)
}

// EnqueueMetadataRefresh queues a system-wide metadata refresh.
func (o *Orchestrator) EnqueueMetadataRefresh() (*models.Job, error) {
	return o.jobs.Enqueue(models.JobTypeMetadataRefresh, nil, nil)
}

// EnqueuePosterCacheRefresh queues a system-wide poster cache refresh.
func (o *Orchestrator) EnqueuePosterCacheRefresh() (*models.Job, error) {
	return o.jobs.Enqueue(models.JobTypePosterCacheRefresh, nil, nil)
}
