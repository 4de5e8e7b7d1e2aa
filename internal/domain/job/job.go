// Package job models the durable background jobs that drive transcription
// and summarization.
package job

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/janhq/transcription-api/internal/domain/retry"
)

// Type names the queue a job belongs to.
type Type string

const (
	TypeTranscription Type = "transcription"
	TypeSummarization Type = "summarization"
)

// Types lists every queue, in a stable order.
func Types() []Type {
	return []Type{TypeTranscription, TypeSummarization}
}

// State is the lifecycle position of a job inside its queue.
type State string

const (
	StateWaiting   State = "waiting"
	StateDelayed   State = "delayed"
	StateActive    State = "active"
	StateCompleted State = "completed"
	StateFailed    State = "failed"
)

// States lists every job state, in a stable order.
func States() []State {
	return []State{StateWaiting, StateDelayed, StateActive, StateCompleted, StateFailed}
}

// IsTerminal reports whether the job will never run again.
func (s State) IsTerminal() bool {
	return s == StateCompleted || s == StateFailed
}

// Options control retry and retention for a single job.
type Options struct {
	Retry            retry.Policy `json:"retry"`
	RemoveOnComplete bool         `json:"remove_on_complete"`
	RemoveOnFail     bool         `json:"remove_on_fail"`
}

// DefaultOptions retries three times with exponential backoff from 5s and keeps
// both completed and failed jobs.
func DefaultOptions() Options {
	return Options{Retry: retry.DefaultPolicy()}
}

// Job is a unit of background work.
type Job struct {
	ID           string
	Type         Type
	RecordID     string
	OwnerID      string
	Payload      json.RawMessage
	Options      Options
	State        State
	AttemptsMade int
	LastError    string
	RunAt        time.Time
	LockedUntil  *time.Time
	StartedAt    *time.Time
	FinishedAt   *time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Decode unmarshals the payload into v.
func (j *Job) Decode(v any) error {
	if len(j.Payload) == 0 {
		return fmt.Errorf("job %s has an empty payload", j.ID)
	}
	if err := json.Unmarshal(j.Payload, v); err != nil {
		return fmt.Errorf("decode %s payload: %w", j.Type, err)
	}
	return nil
}

// Clone returns a deep copy safe to hand across goroutines.
func (j *Job) Clone() *Job {
	if j == nil {
		return nil
	}
	out := *j
	out.Payload = append(json.RawMessage(nil), j.Payload...)
	out.LockedUntil = cloneTime(j.LockedUntil)
	out.StartedAt = cloneTime(j.StartedAt)
	out.FinishedAt = cloneTime(j.FinishedAt)
	return &out
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

// TranscriptionPayload is the body of a transcription job.
type TranscriptionPayload struct {
	RecordID         string `json:"recordId"`
	OwnerID          string `json:"ownerId"`
	StoragePath      string `json:"storagePath"`
	OriginalFilename string `json:"originalFilename"`
}

// SummarizationPayload is the body of a summarization job.
type SummarizationPayload struct {
	RecordID string `json:"recordId"`
	OwnerID  string `json:"ownerId"`
}

// Handler executes one attempt of a job. A nil return completes the job;
// errors are retried unless marked with retry.Permanent.
type Handler interface {
	Handle(ctx context.Context, j *Job) error
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, j *Job) error

// Handle calls f(ctx, j).
func (f HandlerFunc) Handle(ctx context.Context, j *Job) error {
	return f(ctx, j)
}
