// Package summarizer calls the text summarization service.
package summarizer

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/janhq/transcription-api/internal/infrastructure/metrics"
)

const serviceName = "summarization"

// ServiceError carries the message reported by the summarization service.
type ServiceError struct {
	StatusCode int
	Message    string
}

func (e *ServiceError) Error() string { return e.Message }

type summarizeRequest struct {
	Text string `json:"text"`
}

type summarizeResponse struct {
	Success bool   `json:"success"`
	Summary string `json:"summary"`
	Error   string `json:"error"`
}

type Client struct {
	baseURL    string
	httpClient *resty.Client
}

func NewClient(baseURL string, timeout time.Duration) *Client {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	client := resty.New().
		SetBaseURL(baseURL).
		SetHeader("User-Agent", "Jan-Transcription-API/1.0").
		SetTimeout(timeout)
	return &Client{baseURL: baseURL, httpClient: client}
}

// Summarize posts the transcript and returns the summary text.
func (c *Client) Summarize(ctx context.Context, text string) (string, error) {
	start := time.Now()
	summary, err := c.summarize(ctx, text)
	metrics.RecordExternalCall(serviceName, err, time.Since(start))
	return summary, err
}

func (c *Client) summarize(ctx context.Context, text string) (string, error) {
	var result summarizeResponse
	var failure summarizeResponse
	resp, err := c.httpClient.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(summarizeRequest{Text: text}).
		SetResult(&result).
		SetError(&failure).
		Post("/summarize")
	if err != nil {
		return "", fmt.Errorf("summarization request failed: %w", err)
	}
	if resp.IsError() {
		msg := strings.TrimSpace(failure.Error)
		if msg == "" {
			msg = fmt.Sprintf("summarization service returned status %d", resp.StatusCode())
		}
		return "", &ServiceError{StatusCode: resp.StatusCode(), Message: msg}
	}
	if !result.Success {
		msg := strings.TrimSpace(result.Error)
		if msg == "" {
			msg = "Summarization failed"
		}
		return "", &ServiceError{StatusCode: resp.StatusCode(), Message: msg}
	}
	return result.Summary, nil
}
