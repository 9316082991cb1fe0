package model

import "time"

// JobType distinguishes the two validator pipelines a ValidationJob drives.
type JobType string

const (
	Suite22   JobType = "SUITE_22"
	Assess90B JobType = "ASSESS_90B"
)

// JobStatus is a ValidationJob's lifecycle state (spec §4.6 state machine).
type JobStatus string

const (
	JobQueued    JobStatus = "QUEUED"
	JobRunning   JobStatus = "RUNNING"
	JobCompleted JobStatus = "COMPLETED"
	JobFailed    JobStatus = "FAILED"
)

// Terminal reports whether no further transitions are allowed from s.
func (s JobStatus) Terminal() bool {
	return s == JobCompleted || s == JobFailed
}

// ValidationJob is the durable record of one orchestrator run (spec §3).
type ValidationJob struct {
	JobID           string
	Type            JobType
	Status          JobStatus
	ProgressPercent float64
	CurrentChunk    int
	TotalChunks     int
	WindowStart     time.Time
	WindowEnd       time.Time
	CreatedAt       time.Time
	StartedAt       *time.Time
	CompletedAt     *time.Time
	Error           string
	CreatedBy       string
	RunID           string
}
