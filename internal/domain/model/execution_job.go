package model

import "time"

const (
	JobStatusQueued    = "queued"
	JobStatusRunning   = "running"
	JobStatusCancelled = "cancelled"
	JobStatusDone      = "done"
)

// ExecutionJob is the queue payload. Submit jobs point at a persisted
// submission; run jobs carry the code inline because nothing is stored.
type ExecutionJob struct {
	ID           string         `json:"id"`
	Mode         SubmissionMode `json:"mode"`
	SubmissionID int64          `json:"submission_id,omitempty"`
	UserID       int64          `json:"user_id"`
	ProblemID    int64          `json:"problem_id"`
	Language     Language       `json:"language"`
	Partition    string         `json:"partition"`
	Run          *RunPayload    `json:"run,omitempty"`
	Attempts     int            `json:"attempts"`
	EnqueuedAt   time.Time      `json:"enqueued_at"`
}

type RunPayload struct {
	Code  string  `json:"code"`
	Stdin *string `json:"stdin,omitempty"`
}
