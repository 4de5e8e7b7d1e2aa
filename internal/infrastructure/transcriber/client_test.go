package transcriber

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTranscribeSendsMultipartFile(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/transcribe", r.URL.Path)
		file, header, err := r.FormFile("file")
		if !assert.NoError(t, err) {
			return
		}
		defer file.Close()
		body, _ := io.ReadAll(file)
		assert.Equal(t, "meeting.mp3", header.Filename)
		assert.Equal(t, "ID3 bytes", string(body))

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"success": true, "text": "hello world"})
	}))
	defer srv.Close()

	client := NewClient(srv.URL+"/", 5*time.Second)
	text, err := client.Transcribe(context.Background(), "meeting.mp3", "audio/mpeg", strings.NewReader("ID3 bytes"))
	require.NoError(t, err)
	assert.Equal(t, "hello world", text)
}

func TestTranscribeUnsuccessfulResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"success": false, "error": "Unsupported codec"})
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL, 5*time.Second).Transcribe(context.Background(), "a.wav", "audio/wav", strings.NewReader("RIFF"))
	var svcErr *ServiceError
	require.True(t, errors.As(err, &svcErr))
	assert.Equal(t, "Unsupported codec", err.Error())

	srv2 := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"success": false})
	}))
	defer srv2.Close()

	_, err = NewClient(srv2.URL, 5*time.Second).Transcribe(context.Background(), "a.wav", "audio/wav", strings.NewReader("RIFF"))
	assert.EqualError(t, err, "Transcription failed")
}

func TestTranscribeEmptyTextIsFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"success": true, "text": "  "})
	}))
	defer srv.Close()

	text, err := NewClient(srv.URL, 5*time.Second).Transcribe(context.Background(), "a.wav", "audio/wav", strings.NewReader("RIFF"))
	var svcErr *ServiceError
	require.True(t, errors.As(err, &svcErr))
	assert.Equal(t, http.StatusOK, svcErr.StatusCode)
	assert.EqualError(t, err, "Transcription returned no text")
	assert.Empty(t, text)
}

func TestTranscribeErrorStatusUsesBodyMessage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusServiceUnavailable)
		_ = json.NewEncoder(w).Encode(map[string]any{"success": false, "error": "Service unavailable"})
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL, 5*time.Second).Transcribe(context.Background(), "a.mp3", "audio/mpeg", strings.NewReader("x"))
	var svcErr *ServiceError
	require.True(t, errors.As(err, &svcErr))
	assert.Equal(t, http.StatusServiceUnavailable, svcErr.StatusCode)
	assert.Equal(t, "Service unavailable", svcErr.Message)
}

func TestTranscribeErrorStatusWithoutBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL, 5*time.Second).Transcribe(context.Background(), "a.mp3", "audio/mpeg", strings.NewReader("x"))
	assert.EqualError(t, err, "transcription service returned status 502")
}

func TestTranscribeHonoursContextDeadline(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := NewClient(srv.URL, 5*time.Second).Transcribe(ctx, "a.mp3", "audio/mpeg", strings.NewReader("x"))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
