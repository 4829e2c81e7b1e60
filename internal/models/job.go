package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// JobType identifies a processing stage.
type JobType string

const (
	JobTypeParse JobType = "parse"
	JobTypeEmbed JobType = "embed"
)

var jobTypes = map[JobType]bool{
	JobTypeParse: true,
	JobTypeEmbed: true,
}

func (t JobType) Valid() bool {
	return jobTypes[t]
}

// JobStatus is the state of a single processing job.
type JobStatus string

const (
	JobPending   JobStatus = "pending"
	JobRunning   JobStatus = "running"
	JobFailed    JobStatus = "failed"
	JobCompleted JobStatus = "completed"
)

var jobStatuses = map[JobStatus]bool{
	JobPending:   true,
	JobRunning:   true,
	JobFailed:    true,
	JobCompleted: true,
}

func (s JobStatus) Valid() bool {
	return jobStatuses[s]
}

// Terminal reports whether a worker-visible transition out of this status is
// allowed. Completed and failed jobs are only touched by the retry sweep,
// never by TransitionJob; a worker that finishes after being reaped cannot
// resurrect its job.
func (s JobStatus) Terminal() bool {
	return s == JobCompleted || s == JobFailed
}

// ProcessingJob is one stage of work for one document. Jobs are retained as
// an audit trail and never deleted.
type ProcessingJob struct {
	ID           uuid.UUID  `json:"id"`
	DocumentID   uuid.UUID  `json:"documentId"`
	JobType      JobType    `json:"jobType"`
	Status       JobStatus  `json:"status"`
	RetryCount   int        `json:"retryCount"`
	MaxRetries   int        `json:"maxRetries"`
	Priority     int        `json:"priority"`
	ErrorMessage string     `json:"errorMessage,omitempty"`
	CreatedAt    time.Time  `json:"createdAt"`
	UpdatedAt    time.Time  `json:"updatedAt"`
	CompletedAt  *time.Time `json:"completedAt,omitempty"`
}

// Active reports whether the job occupies the single active slot for its
// (document, job_type) pair.
func (j *ProcessingJob) Active() bool {
	return j.Status == JobPending || j.Status == JobRunning
}

// ParseJobType validates an incoming job type string against the closed set.
func ParseJobType(s string) (JobType, error) {
	t := JobType(s)
	if !t.Valid() {
		return "", fmt.Errorf("invalid job type: %q", s)
	}
	return t, nil
}

// ParseJobStatus validates an incoming job status string against the closed set.
func ParseJobStatus(s string) (JobStatus, error) {
	status := JobStatus(s)
	if !status.Valid() {
		return "", fmt.Errorf("invalid job status: %q", s)
	}
	return status, nil
}
