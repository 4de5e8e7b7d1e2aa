// Package notification defines the events pushed to an owner's live connections.
package notification

import (
	"context"
	"encoding/json"
	"fmt"
)

// Kind is the event name clients subscribe to.
type Kind string

const (
	KindFileStatus    Kind = "fileStatusUpdate"
	KindFileProgress  Kind = "fileProgress"
	KindSummaryStatus Kind = "summaryStatusUpdate"
)

// FileStatus reports a transcription status change. Progress and ErrorMessage
// are always present on the wire, null when unknown.
type FileStatus struct {
	FileID          string  `json:"fileId"`
	Status          string  `json:"status"`
	Progress        *int    `json:"progress"`
	ErrorMessage    *string `json:"errorMessage"`
	TranscribedText *string `json:"transcribedText,omitempty"`
}

// FileProgress reports an intermediate progress value for a running transcription.
type FileProgress struct {
	FileID   string `json:"fileId"`
	Progress int    `json:"progress"`
}

// SummaryStatus reports a summarization status change.
type SummaryStatus struct {
	FileID              string  `json:"fileId"`
	SummaryStatus       string  `json:"summaryStatus"`
	SummaryText         *string `json:"summaryText,omitempty"`
	SummaryErrorMessage *string `json:"summaryErrorMessage,omitempty"`
	OriginalFilename    string  `json:"originalFilename,omitempty"`
}

// Event carries exactly one payload, selected by Kind.
type Event struct {
	Kind          Kind
	FileStatus    *FileStatus
	FileProgress  *FileProgress
	SummaryStatus *SummaryStatus
}

func NewFileStatus(p FileStatus) Event {
	return Event{Kind: KindFileStatus, FileStatus: &p}
}

func NewFileProgress(fileID string, progress int) Event {
	return Event{Kind: KindFileProgress, FileProgress: &FileProgress{FileID: fileID, Progress: progress}}
}

func NewSummaryStatus(p SummaryStatus) Event {
	return Event{Kind: KindSummaryStatus, SummaryStatus: &p}
}

// FileID returns the record the event is about.
func (e Event) FileID() string {
	switch e.Kind {
	case KindFileStatus:
		if e.FileStatus != nil {
			return e.FileStatus.FileID
		}
	case KindFileProgress:
		if e.FileProgress != nil {
			return e.FileProgress.FileID
		}
	case KindSummaryStatus:
		if e.SummaryStatus != nil {
			return e.SummaryStatus.FileID
		}
	}
	return ""
}

// Payload returns the populated variant.
func (e Event) Payload() any {
	switch e.Kind {
	case KindFileStatus:
		return e.FileStatus
	case KindFileProgress:
		return e.FileProgress
	case KindSummaryStatus:
		return e.SummaryStatus
	}
	return nil
}

// Validate checks that the payload matches the kind.
func (e Event) Validate() error {
	var populated int
	for _, set := range []bool{e.FileStatus != nil, e.FileProgress != nil, e.SummaryStatus != nil} {
		if set {
			populated++
		}
	}
	if populated != 1 {
		return fmt.Errorf("event %q must carry exactly one payload, has %d", e.Kind, populated)
	}
	switch e.Kind {
	case KindFileStatus, KindFileProgress, KindSummaryStatus:
	default:
		return fmt.Errorf("unknown event kind %q", e.Kind)
	}
	if isNilPayload(e.Payload()) {
		return fmt.Errorf("event %q carries the wrong payload", e.Kind)
	}
	return nil
}

func isNilPayload(v any) bool {
	switch p := v.(type) {
	case *FileStatus:
		return p == nil
	case *FileProgress:
		return p == nil
	case *SummaryStatus:
		return p == nil
	}
	return true
}

type envelope struct {
	Event Kind            `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// MarshalJSON renders {"event": <kind>, "data": <payload>}.
func (e Event) MarshalJSON() ([]byte, error) {
	if err := e.Validate(); err != nil {
		return nil, err
	}
	data, err := json.Marshal(e.Payload())
	if err != nil {
		return nil, err
	}
	return json.Marshal(envelope{Event: e.Kind, Data: data})
}

// UnmarshalJSON parses the envelope written by MarshalJSON.
func (e *Event) UnmarshalJSON(b []byte) error {
	var env envelope
	if err := json.Unmarshal(b, &env); err != nil {
		return err
	}

	out := Event{Kind: env.Event}
	var target any
	switch env.Event {
	case KindFileStatus:
		out.FileStatus = &FileStatus{}
		target = out.FileStatus
	case KindFileProgress:
		out.FileProgress = &FileProgress{}
		target = out.FileProgress
	case KindSummaryStatus:
		out.SummaryStatus = &SummaryStatus{}
		target = out.SummaryStatus
	default:
		return fmt.Errorf("unknown event kind %q", env.Event)
	}
	if err := json.Unmarshal(env.Data, target); err != nil {
		return fmt.Errorf("decode %s: %w", env.Event, err)
	}

	*e = out
	return nil
}

// Emitter delivers events to every live connection of one owner.
// Delivery is best-effort: an owner without connections is a silent no-op.
type Emitter interface {
	EmitToOwner(ctx context.Context, ownerID string, event Event)
}

// EmitterFunc adapts a function to Emitter.
type EmitterFunc func(ctx context.Context, ownerID string, event Event)

// EmitToOwner calls f(ctx, ownerID, event).
func (f EmitterFunc) EmitToOwner(ctx context.Context, ownerID string, event Event) {
	f(ctx, ownerID, event)
}

// Nop discards every event.
var Nop Emitter = EmitterFunc(func(context.Context, string, Event) {})
