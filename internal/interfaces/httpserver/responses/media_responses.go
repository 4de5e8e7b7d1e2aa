package responses

import (
	"time"

	"github.com/janhq/transcription-api/internal/domain/job"
	"github.com/janhq/transcription-api/internal/domain/media"
)

// RecordPayload is the client view of a media record.
type RecordPayload struct {
	ID                  string    `json:"id"`
	Filename            string    `json:"filename"`
	OriginalFilename    string    `json:"originalFilename"`
	Mimetype            string    `json:"mimetype"`
	Size                int64     `json:"size"`
	UploadDate          time.Time `json:"uploadDate"`
	Status              string    `json:"status"`
	Progress            int       `json:"progress"`
	ErrorMessage        *string   `json:"errorMessage"`
	TranscribedText     *string   `json:"transcribedText,omitempty"`
	SummaryStatus       *string   `json:"summaryStatus,omitempty"`
	SummaryText         *string   `json:"summaryText,omitempty"`
	SummaryErrorMessage *string   `json:"summaryErrorMessage,omitempty"`
	CreatedAt           time.Time `json:"createdAt"`
	UpdatedAt           time.Time `json:"updatedAt"`
}

func NewRecordPayload(r *media.Record) RecordPayload {
	payload := RecordPayload{
		ID:                  r.ID,
		Filename:            r.Filename,
		OriginalFilename:    r.OriginalFilename,
		Mimetype:            r.ContentType,
		Size:                r.Size,
		UploadDate:          r.UploadedAt,
		Status:              string(r.Status),
		Progress:            r.Progress,
		ErrorMessage:        r.ErrorMessage,
		TranscribedText:     r.TranscribedText,
		SummaryText:         r.SummaryText,
		SummaryErrorMessage: r.SummaryErrorMessage,
		CreatedAt:           r.CreatedAt,
		UpdatedAt:           r.UpdatedAt,
	}
	if r.SummaryStatus != media.SummaryNone {
		payload.SummaryStatus = media.Ptr(string(r.SummaryStatus))
	}
	return payload
}

type FileResponse struct {
	Message string        `json:"message,omitempty"`
	File    RecordPayload `json:"file"`
}

type FileListResponse struct {
	Files []RecordPayload `json:"files"`
}

func NewFileListResponse(records []*media.Record) FileListResponse {
	files := make([]RecordPayload, 0, len(records))
	for _, r := range records {
		files = append(files, NewRecordPayload(r))
	}
	return FileListResponse{Files: files}
}

type DeleteResponse struct {
	Message     string `json:"message"`
	FileDeleted bool   `json:"fileDeleted"`
}

type TranscriptionResponse struct {
	FileID           string  `json:"fileId"`
	OriginalFilename string  `json:"originalFilename"`
	Status           string  `json:"status"`
	Progress         int     `json:"progress"`
	Message          string  `json:"message,omitempty"`
	TranscribedText  *string `json:"transcribedText,omitempty"`
}

func NewTranscriptionResponse(v *media.TranscriptionView) TranscriptionResponse {
	return TranscriptionResponse{
		FileID:           v.FileID,
		OriginalFilename: v.OriginalFilename,
		Status:           string(v.Status),
		Progress:         v.Progress,
		Message:          v.Message,
		TranscribedText:  v.Text,
	}
}

type SummaryResponse struct {
	FileID           string  `json:"fileId"`
	OriginalFilename string  `json:"originalFilename"`
	SummaryStatus    string  `json:"summaryStatus"`
	Message          string  `json:"message,omitempty"`
	SummaryText      *string `json:"summaryText,omitempty"`
}

func NewSummaryResponse(v *media.SummaryView) SummaryResponse {
	status := string(v.Status)
	if status == "" {
		status = "none"
	}
	return SummaryResponse{
		FileID:           v.FileID,
		OriginalFilename: v.OriginalFilename,
		SummaryStatus:    status,
		Message:          v.Message,
		SummaryText:      v.Text,
	}
}

// QueueCounts reports job counts per state for one queue.
type QueueCounts struct {
	Name   string           `json:"name"`
	Counts map[string]int64 `json:"counts"`
}

type QueueListResponse struct {
	Queues []QueueCounts `json:"queues"`
}

func NewQueueCounts(jobType job.Type, counts map[job.State]int64) QueueCounts {
	out := QueueCounts{Name: string(jobType), Counts: make(map[string]int64, len(job.States()))}
	for _, state := range job.States() {
		out.Counts[string(state)] = counts[state]
	}
	return out
}
