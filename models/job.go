package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

type JobType string

const (
	JobTypeMediaServerRefresh  JobType = "media-server-refresh"
	JobTypeSocialImportHistory JobType = "social-import-history"
	JobTypeSocialImportRatings JobType = "social-import-ratings"
	JobTypeCsvImportHistory    JobType = "csv-import-history"
	JobTypeCsvImportRatings    JobType = "csv-import-ratings"
	JobTypeMetadataRefresh     JobType = "metadata-refresh"
	JobTypePosterCacheRefresh  JobType = "poster-cache-refresh"
)

// JobTypes lists every dispatchable job type.
var JobTypes = []JobType{
	JobTypeMediaServerRefresh,
	JobTypeSocialImportHistory,
	JobTypeSocialImportRatings,
	JobTypeCsvImportHistory,
	JobTypeCsvImportRatings,
	JobTypeMetadataRefresh,
	JobTypePosterCacheRefresh,
}

func ValidJobType(t JobType) bool {
	for _, known := range JobTypes {
		if t == known {
			return true
		}
	}
	return false
}

type JobStatus string

const (
	JobStatusWaiting    JobStatus = "waiting"
	JobStatusInProgress JobStatus = "in_progress"
	JobStatusDone       JobStatus = "done"
	JobStatusFailed     JobStatus = "failed"
)

// JobParams is the job's opaque parameter map, stored as a JSON document.
type JobParams map[string]any

func (p JobParams) Value() (driver.Value, error) {
	if p == nil {
		return "{}", nil
	}
	b, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal job parameters: %w", err)
	}
	return string(b), nil
}

func (p *JobParams) Scan(src any) error {
	var data []byte
	switch v := src.(type) {
	case nil:
		*p = JobParams{}
		return nil
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("unsupported job parameters type %T", src)
	}
	if len(data) == 0 {
		*p = JobParams{}
		return nil
	}
	return json.Unmarshal(data, p)
}

// Job is one queued unit of import work. UserID is nil for system-wide jobs
// such as the metadata refresh.
type Job struct {
	ID         string    `db:"id" json:"id"`
	UserID     *int64    `db:"user_id" json:"user_id,omitempty"`
	Type       JobType   `db:"type" json:"type"`
	Status     JobStatus `db:"status" json:"status"`
	Parameters JobParams `db:"parameters" json:"parameters"`
	CreatedAt  string    `db:"created_at" json:"created_at"`
	UpdatedAt  string    `db:"updated_at" json:"updated_at"`
}
