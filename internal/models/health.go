package models

import "time"

// HealthStatus classifies the overall queue condition for dashboards.
type HealthStatus string

const (
	HealthHealthy  HealthStatus = "HEALTHY"
	HealthWarning  HealthStatus = "WARNING"
	HealthDegraded HealthStatus = "DEGRADED"
	HealthIdle     HealthStatus = "IDLE"
)

// QueueStats aggregates jobs and documents over the monitoring window.
type QueueStats struct {
	PendingJobs          int                    `json:"pendingJobs"`
	RunningJobs          int                    `json:"runningJobs"`
	FailedJobs           int                    `json:"failedJobs"`
	CompletedJobs        int                    `json:"completedJobs"`
	StuckJobs            int                    `json:"stuckJobs"`
	AvgCompletionSeconds float64                `json:"avgCompletionSeconds"`
	DocumentCounts       map[DocumentStatus]int `json:"documentCounts"`
}

// QueueHealth is the advisory snapshot returned by the health monitor.
type QueueHealth struct {
	Status    HealthStatus `json:"status"`
	Stats     QueueStats   `json:"details"`
	CheckedAt time.Time    `json:"checkedAt"`
}
