package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// JobStatus represents the current state of a generation job
type JobStatus string

const (
	JobStatusPending    JobStatus = "pending"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
	JobStatusCancelled  JobStatus = "cancelled"
)

// JobPriority orders claims; paid plans are served first.
type JobPriority string

const (
	JobPriorityLow      JobPriority = "low"
	JobPriorityNormal   JobPriority = "normal"
	JobPriorityHigh     JobPriority = "high"
	JobPriorityCritical JobPriority = "critical"
)

// DefaultJobAttempts is how often a webhook dispatch is tried before the
// job fails and its credits are refunded.
const DefaultJobAttempts = 3

// Job is a queued generation request.
type Job struct {
	ID           int64       `json:"id"`
	JobType      string      `json:"jobType"`
	UserID       *int64      `json:"userId,omitempty"`
	Payload      JSONB       `json:"payload"`
	Status       JobStatus   `json:"status"`
	Priority     JobPriority `json:"priority"`
	Attempts     int         `json:"attempts"`
	MaxAttempts  int         `json:"maxAttempts"`
	CreatedAt    time.Time   `json:"createdAt"`
	UpdatedAt    time.Time   `json:"updatedAt"`
	ScheduledFor *time.Time  `json:"scheduledFor,omitempty"`
	LastError    *string     `json:"lastError,omitempty"`
	RetryAfter   *time.Time  `json:"retryAfter,omitempty"`
	ProcessedAt  *time.Time  `json:"processedAt,omitempty"`
	CompletedAt  *time.Time  `json:"completedAt,omitempty"`
	WorkerID     *string     `json:"workerId,omitempty"`
	Result       JSONB       `json:"result,omitempty"`
}

// JSONB is a custom type for PostgreSQL JSONB columns
type JSONB map[string]interface{}

// Value implements the driver.Valuer interface for JSONB
func (j JSONB) Value() (driver.Value, error) {
	if j == nil {
		return json.Marshal(map[string]interface{}{})
	}
	return json.Marshal(j)
}

// Scan implements the sql.Scanner interface for JSONB
func (j *JSONB) Scan(value interface{}) error {
	if value == nil {
		*j = JSONB{}
		return nil
	}

	var bytes []byte
	switch v := value.(type) {
	case []byte:
		bytes = v
	case string:
		bytes = []byte(v)
	default:
		return fmt.Errorf("cannot scan type %T into JSONB", value)
	}

	return json.Unmarshal(bytes, j)
}

// JobStats holds statistics about the job queue
type JobStats struct {
	Pending    int `json:"pending"`
	Processing int `json:"processing"`
	Completed  int `json:"completed"`
	Failed     int `json:"failed"`
	Cancelled  int `json:"cancelled"`
	Total      int `json:"total"`
}

// IsValid checks if the job can be enqueued, filling in the default priority.
func (j *Job) IsValid() error {
	if j.JobType == "" {
		return fmt.Errorf("job type is required")
	}
	if j.MaxAttempts < 1 {
		return fmt.Errorf("max_attempts must be at least 1")
	}
	if j.Priority == "" {
		j.Priority = JobPriorityNormal
	}
	return nil
}

// IsFinalAttempt reports whether a failure now exhausts the job.
func (j *Job) IsFinalAttempt() bool {
	return j.Attempts >= j.MaxAttempts
}

// PriorityForPlan maps a subscription plan to a queue priority.
func PriorityForPlan(plan string) JobPriority {
	switch plan {
	case "Business", "Enterprise":
		return JobPriorityHigh
	case "Free":
		return JobPriorityLow
	}
	return JobPriorityNormal
}
