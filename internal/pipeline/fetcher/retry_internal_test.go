package fetcher

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	apperrors "github.com/darkkaiser/bandcamp-tracker/internal/pkg/errors"
	"github.com/stretchr/testify/assert"
)

func TestIsRetriable(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected bool
	}{
		{
			name:     "Nil error - not retriable",
			err:      nil,
			expected: false,
		},
		{
			name:     "Context canceled - not retriable",
			err:      context.Canceled,
			expected: false,
		},
		{
			name:     "Unavailable (429/5xx) - retriable",
			err:      apperrors.New(apperrors.Unavailable, "server overloaded"),
			expected: true,
		},
		{
			name: "501 Not Implemented - not retriable",
			err: &HTTPStatusError{
				StatusCode: http.StatusNotImplemented,
				Status:     "501 Not Implemented",
				Cause:      apperrors.New(apperrors.Unavailable, "not implemented"),
			},
			expected: false,
		},
		{
			name:     "NotFound - not retriable",
			err:      apperrors.New(apperrors.NotFound, "page not found"),
			expected: false,
		},
		{
			name:     "InvalidInput - not retriable",
			err:      apperrors.New(apperrors.InvalidInput, "bad request"),
			expected: false,
		},
		{
			name:     "ParsingFailed - not retriable",
			err:      apperrors.New(apperrors.ParsingFailed, "malformed html"),
			expected: false,
		},
		{
			name:     "Unclassified error - retriable",
			err:      errors.New("connection refused"),
			expected: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, isRetriable(tt.err))
		})
	}
}

func TestIsIdempotentMethod(t *testing.T) {
	assert.True(t, isIdempotentMethod(http.MethodGet))
	assert.True(t, isIdempotentMethod(http.MethodHead))
	assert.True(t, isIdempotentMethod(http.MethodDelete))
	assert.False(t, isIdempotentMethod(http.MethodPost))
	assert.False(t, isIdempotentMethod(http.MethodPatch))
}

func TestParseRetryAfter(t *testing.T) {
	t.Run("Seconds format", func(t *testing.T) {
		d, ok := parseRetryAfter("120")
		assert.True(t, ok)
		assert.Equal(t, 120*time.Second, d)
	})

	t.Run("Zero seconds", func(t *testing.T) {
		d, ok := parseRetryAfter("0")
		assert.True(t, ok)
		assert.Equal(t, time.Duration(0), d)
	})

	t.Run("HTTP-date in the past returns zero", func(t *testing.T) {
		d, ok := parseRetryAfter("Wed, 21 Oct 2015 07:28:00 GMT")
		assert.True(t, ok)
		assert.Equal(t, time.Duration(0), d)
	})

	t.Run("Invalid value", func(t *testing.T) {
		_, ok := parseRetryAfter("soon")
		assert.False(t, ok)
	})

	t.Run("Empty value", func(t *testing.T) {
		_, ok := parseRetryAfter("")
		assert.False(t, ok)
	})
}

func TestNormalizeRetryDelays(t *testing.T) {
	t.Run("Too short min delay is corrected to 1s", func(t *testing.T) {
		minDelay, maxDelay := normalizeRetryDelays(time.Millisecond, time.Minute)
		assert.Equal(t, time.Second, minDelay)
		assert.Equal(t, time.Minute, maxDelay)
	})

	t.Run("Zero max delay falls back to default", func(t *testing.T) {
		_, maxDelay := normalizeRetryDelays(time.Second, 0)
		assert.Equal(t, defaultMaxRetryDelay, maxDelay)
	})

	t.Run("Max below min is corrected to min", func(t *testing.T) {
		minDelay, maxDelay := normalizeRetryDelays(10*time.Second, 2*time.Second)
		assert.Equal(t, minDelay, maxDelay)
	})
}

func TestNormalizeMaxRetries(t *testing.T) {
	assert.Equal(t, 0, normalizeMaxRetries(-1))
	assert.Equal(t, 3, normalizeMaxRetries(3))
	assert.Equal(t, maxAllowedRetries, normalizeMaxRetries(100))
}
