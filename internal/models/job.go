package models

import (
	"time"

	"github.com/google/uuid"
)

// Job statuses. A job moves queued -> running -> done|error; exactly one
// background task drives it to a terminal state.
const (
	JobStatusQueued  = "queued"
	JobStatusRunning = "running"
	JobStatusDone    = "done"
	JobStatusError   = "error"
)

// Job is the externally visible snapshot of a streaming LLM job.
type Job struct {
	ID        uuid.UUID `json:"id"`
	Address   string    `json:"address"`
	Model     string    `json:"model"`
	Status    string    `json:"status"`
	Output    string    `json:"output,omitempty"`
	Error     string    `json:"error,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
