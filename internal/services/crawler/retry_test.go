package crawler

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/bidscout/bidscout/internal/services/auth"
)

func TestCalculateBackoff_Bounds(t *testing.T) {
	p := NewNavigationPolicy(5)

	for attempt := 0; attempt < 10; attempt++ {
		backoff := p.CalculateBackoff(attempt)

		expected := float64(p.InitialBackoff) * pow(p.BackoffMultiplier, attempt)
		if expected > float64(p.MaxBackoff) {
			expected = float64(p.MaxBackoff)
		}

		// ±25% jitter around the exponential value
		assert.GreaterOrEqual(t, float64(backoff), expected*0.75-1)
		assert.LessOrEqual(t, float64(backoff), expected*1.25+1)
	}
}

func pow(base float64, exp int) float64 {
	result := 1.0
	for i := 0; i < exp; i++ {
		result *= base
	}
	return result
}

func TestShouldRetry(t *testing.T) {
	p := NewNavigationPolicy(3)

	tests := []struct {
		name       string
		attempt    int
		statusCode int
		err        error
		want       bool
	}{
		{name: "Retryable status 503", attempt: 0, statusCode: 503, want: true},
		{name: "Retryable status 429", attempt: 1, statusCode: 429, want: true},
		{name: "Client error 404", attempt: 0, statusCode: 404, want: false},
		{name: "Attempts exhausted", attempt: 3, statusCode: 503, want: false},
		{name: "Deadline exceeded", attempt: 0, err: context.DeadlineExceeded, want: true},
		{name: "Session expired never retried", attempt: 0, err: auth.ErrSessionExpired, want: false},
		{name: "Auth failure never retried", attempt: 0, err: auth.ErrAuthentication, want: false},
		{name: "Wrapped session expiry", attempt: 0, err: fmt.Errorf("fetch: %w", auth.ErrSessionExpired), want: false},
		{name: "Generic error", attempt: 0, err: errors.New("parse failure"), want: false},
		{name: "No error no status", attempt: 0, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, p.ShouldRetry(tt.attempt, tt.statusCode, tt.err))
		})
	}
}

func TestExecuteWithRetry_SucceedsAfterTransientFailures(t *testing.T) {
	p := NewDownloadPolicy(3)
	p.InitialBackoff = time.Millisecond
	p.MaxBackoff = 2 * time.Millisecond

	calls := 0
	status, err := p.ExecuteWithRetry(context.Background(), arbor.NewLogger(), func() (int, error) {
		calls++
		if calls < 3 {
			return 503, errors.New("service unavailable")
		}
		return 200, nil
	})

	require.NoError(t, err)
	assert.Equal(t, 200, status)
	assert.Equal(t, 3, calls)
}

func TestExecuteWithRetry_StopsOnNonRetryable(t *testing.T) {
	p := NewDownloadPolicy(5)

	calls := 0
	_, err := p.ExecuteWithRetry(context.Background(), arbor.NewLogger(), func() (int, error) {
		calls++
		return 404, errors.New("not found")
	})

	assert.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestExecuteWithRetry_RespectsContext(t *testing.T) {
	p := NewNavigationPolicy(5)
	p.InitialBackoff = time.Second

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := p.ExecuteWithRetry(ctx, arbor.NewLogger(), func() (int, error) {
		return 503, errors.New("service unavailable")
	})

	assert.ErrorIs(t, err, context.Canceled)
}
