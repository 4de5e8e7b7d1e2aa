// Package transcriber calls the speech-to-text service.
package transcriber

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/janhq/transcription-api/internal/infrastructure/metrics"
)

const serviceName = "transcription"

// ServiceError carries the message reported by the transcription service.
// Error returns it verbatim so it can be stored on the record as is.
type ServiceError struct {
	StatusCode int
	Message    string
}

func (e *ServiceError) Error() string { return e.Message }

type transcribeResponse struct {
	Success bool   `json:"success"`
	Text    string `json:"text"`
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

// Transcribe uploads the media as multipart field "file" and returns the text.
func (c *Client) Transcribe(ctx context.Context, filename, contentType string, media io.Reader) (string, error) {
	start := time.Now()
	text, err := c.transcribe(ctx, filename, contentType, media)
	metrics.RecordExternalCall(serviceName, err, time.Since(start))
	return text, err
}

func (c *Client) transcribe(ctx context.Context, filename, contentType string, media io.Reader) (string, error) {
	var result transcribeResponse
	var failure transcribeResponse
	req := c.httpClient.R().
		SetContext(ctx).
		SetResult(&result).
		SetError(&failure)
	if contentType != "" {
		req = req.SetMultipartField("file", filename, contentType, media)
	} else {
		req = req.SetFileReader("file", filename, media)
	}

	resp, err := req.Post("/transcribe")
	if err != nil {
		return "", fmt.Errorf("transcription request failed: %w", err)
	}
	if resp.IsError() {
		msg := strings.TrimSpace(failure.Error)
		if msg == "" {
			msg = fmt.Sprintf("transcription service returned status %d", resp.StatusCode())
		}
		return "", &ServiceError{StatusCode: resp.StatusCode(), Message: msg}
	}
	if !result.Success {
		msg := strings.TrimSpace(result.Error)
		if msg == "" {
			msg = "Transcription failed"
		}
		return "", &ServiceError{StatusCode: resp.StatusCode(), Message: msg}
	}
	// A completed record must carry text that can be read back and summarized.
	if strings.TrimSpace(result.Text) == "" {
		return "", &ServiceError{StatusCode: resp.StatusCode(), Message: "Transcription returned no text"}
	}
	return result.Text, nil
}
