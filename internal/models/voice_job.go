package models

import "time"

// VoiceJobStatus is the lifecycle state of an async voice turn.
type VoiceJobStatus string

const (
	VoiceJobPending   VoiceJobStatus = "pending"
	VoiceJobQueued    VoiceJobStatus = "queued"
	VoiceJobRunning   VoiceJobStatus = "running"
	VoiceJobCompleted VoiceJobStatus = "completed"
	VoiceJobFailed    VoiceJobStatus = "failed"
)

// Rank orders statuses along pending < queued < running < completed|failed.
func (s VoiceJobStatus) Rank() int {
	switch s {
	case VoiceJobPending:
		return 0
	case VoiceJobQueued:
		return 1
	case VoiceJobRunning:
		return 2
	case VoiceJobCompleted, VoiceJobFailed:
		return 3
	}
	return -1
}

// IsTerminal reports whether no further transition is possible.
func (s VoiceJobStatus) IsTerminal() bool {
	return s == VoiceJobCompleted || s == VoiceJobFailed
}

// VoiceJob is one async voice turn. Result is set on completion, Error on failure.
type VoiceJob struct {
	ID        string         `json:"id"`
	Status    VoiceJobStatus `json:"status"`
	Result    *TurnResult    `json:"result"`
	Error     *string        `json:"error"`
	CreatedAt time.Time      `json:"createdAt"`
	UpdatedAt time.Time      `json:"updatedAt"`
}
