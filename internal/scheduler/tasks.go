package scheduler

import (
	"context"
	"time"
)

// JobCleaner removes finished jobs.
type JobCleaner interface {
	CleanupOldJobs(ctx context.Context, olderThan time.Duration) (int64, error)
}

// OTPCleaner clears expired verification codes.
type OTPCleaner interface {
	ClearExpiredOTPs(ctx context.Context) (int64, error)
}

// RequestPurger trims the request log.
type RequestPurger interface {
	PurgeRequestsBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

const (
	JobRetention     = 7 * 24 * time.Hour
	RequestRetention = 90 * 24 * time.Hour
)

// MaintenanceTasks returns the standard schedule. A nil purger leaves the
// request log alone.
func MaintenanceTasks(jobs JobCleaner, users OTPCleaner, requests RequestPurger) []Task {
	tasks := []Task{
		{
			Name: "cleanup-jobs",
			Spec: "0 * * * *",
			Run: func(ctx context.Context) (int64, error) {
				return jobs.CleanupOldJobs(ctx, JobRetention)
			},
		},
		{
			Name:    "clear-expired-otps",
			Spec:    "*/15 * * * *",
			Timeout: time.Minute,
			Run:     users.ClearExpiredOTPs,
		},
	}
	if requests != nil {
		tasks = append(tasks, Task{
			Name: "purge-requests",
			Spec: "30 3 * * *",
			Run: func(ctx context.Context) (int64, error) {
				return requests.PurgeRequestsBefore(ctx, time.Now().Add(-RequestRetention))
			},
		})
	}
	return tasks
}
