// Package models defines the persisted records of publication runs and the
// posts they produced.
package models

import (
	"errors"
	"time"
)

// RunStatus is the outcome of one publication run.
type RunStatus string

const (
	RunRunning   RunStatus = "running"
	RunPublished RunStatus = "published"
	// RunPartial means at least one post went live before a failure.
	RunPartial RunStatus = "partial"
	RunFailed  RunStatus = "failed"
)

// Run is one attempt to publish the digest of a dataset day.
type Run struct {
	ID         string
	DataDate   time.Time
	StartedAt  time.Time
	FinishedAt time.Time
	Status     RunStatus
	Error      string
	Posts      int
}

// Validate checks run field constraints.
func (r *Run) Validate() error {
	if r.ID == "" {
		return errors.New("run ID must not be empty")
	}
	if r.DataDate.IsZero() {
		return errors.New("data date must be set")
	}
	if r.StartedAt.IsZero() {
		return errors.New("started at must be set")
	}
	switch r.Status {
	case RunRunning, RunPublished, RunPartial, RunFailed:
	default:
		return errors.New("unknown run status: " + string(r.Status))
	}
	if !r.FinishedAt.IsZero() && r.FinishedAt.Before(r.StartedAt) {
		return errors.New("finished at must be >= started at")
	}
	if r.Posts < 0 {
		return errors.New("posts must not be negative")
	}
	return nil
}

// Post is one published post of a run's thread.
type Post struct {
	RunID   string
	Seq     int
	PostID  string
	ReplyTo string
	Text    string
	Media   int
}
