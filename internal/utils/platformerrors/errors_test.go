package platformerrors

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewErrorCarriesRequestID(t *testing.T) {
	ctx := WithRequestID(context.Background(), "req-1")

	err := NewError(ctx, LayerDomain, ErrorTypeNotFound, "File not found", nil, "")

	assert.Equal(t, "req-1", err.GetRequestID())
	assert.NotEmpty(t, err.GetUUID())
	assert.Equal(t, ErrorTypeNotFound, err.GetErrorType())
}

func TestAsErrorKeepsInnerType(t *testing.T) {
	inner := NewError(context.Background(), LayerRepository, ErrorTypeNotFound, "record missing", nil, "abc")

	wrapped := AsError(context.Background(), LayerDomain, inner, "load file")

	require.NotNil(t, wrapped)
	assert.Equal(t, ErrorTypeNotFound, wrapped.Type)
	assert.Equal(t, "abc", wrapped.UUID)
	assert.True(t, IsErrorType(wrapped, ErrorTypeNotFound))
}

func TestAsErrorDefaultsToInternal(t *testing.T) {
	wrapped := AsError(context.Background(), LayerDomain, errors.New("boom"), "load file")
	assert.Equal(t, ErrorTypeInternal, wrapped.Type)
	assert.Nil(t, AsError(context.Background(), LayerDomain, nil, "noop"))
}

func TestErrorTypeToHTTPStatus(t *testing.T) {
	cases := map[ErrorType]int{
		ErrorTypeNotFound:    http.StatusNotFound,
		ErrorTypeValidation:  http.StatusBadRequest,
		ErrorTypeForbidden:   http.StatusForbidden,
		ErrorTypeTooLarge:    http.StatusRequestEntityTooLarge,
		ErrorTypeUnavailable: http.StatusServiceUnavailable,
		ErrorTypeInternal:    http.StatusInternalServerError,
	}
	for errorType, status := range cases {
		assert.Equal(t, status, ErrorTypeToHTTPStatus(errorType), errorType)
	}
}
