// Package jobstore tracks asynchronous training jobs. The memory store is
// the default; the Redis store lets several API replicas share job state.
package jobstore

import (
	"context"
	"fmt"
	"time"
)

// Job states.
const (
	StatusQueued    = "queued"
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// Status is the externally visible state of one training job.
type Status struct {
	JobID      string     `json:"job_id"`
	Status     string     `json:"status"`
	Stage      string     `json:"stage,omitempty"`
	Progress   float64    `json:"progress"`
	Mode       string     `json:"mode,omitempty"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
	Error      string     `json:"error,omitempty"`
	Result     any        `json:"result,omitempty"`
}

// Store persists job statuses keyed by job id.
type Store interface {
	Init(ctx context.Context, s Status) error
	Update(ctx context.Context, id string, mutate func(*Status)) error
	Get(ctx context.Context, id string) (*Status, error)
}

// ErrNotFound reports an unknown job id.
type ErrNotFound struct{ ID string }

func (e *ErrNotFound) Error() string { return fmt.Sprintf("job %s not found", e.ID) }
