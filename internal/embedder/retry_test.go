package embedder

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRetryWithBackoff(t *testing.T) {
	config := RetryConfig{MaxRetries: 3, BaseDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond, Multiplier: 2}
	transient := errors.New("503 overloaded")
	rejected := errors.New("401 invalid key")

	tests := []struct {
		name      string
		failures  []error // returned by successive attempts before succeeding
		wantCalls int
		wantErr   error
	}{
		{name: "first attempt", failures: nil, wantCalls: 1},
		{name: "recovers", failures: []error{transient, transient}, wantCalls: 3},
		{name: "exhausted", failures: []error{transient, transient, transient, transient}, wantCalls: 3, wantErr: transient},
		{name: "permanent", failures: []error{permanent(rejected)}, wantCalls: 1, wantErr: rejected},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			calls := 0
			got, err := retryWithBackoff(context.Background(), config, func() (int, error) {
				calls++
				if calls <= len(tt.failures) {
					return 0, tt.failures[calls-1]
				}
				return 42, nil
			})

			assert.Equal(t, tt.wantCalls, calls)
			if tt.wantErr != nil {
				assert.Equal(t, tt.wantErr, err)
				return
			}
			assert.NoError(t, err)
			assert.Equal(t, 42, got)
		})
	}
}

func TestRetryWithBackoff_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	config := RetryConfig{MaxRetries: 5, BaseDelay: time.Hour, MaxDelay: time.Hour, Multiplier: 2}

	calls := 0
	_, err := retryWithBackoff(ctx, config, func() (struct{}, error) {
		calls++
		cancel()
		return struct{}{}, errors.New("timeout")
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
}

func TestRetryConfigNext(t *testing.T) {
	c := RetryConfig{Multiplier: 2, MaxDelay: 300 * time.Millisecond}
	assert.Equal(t, 200*time.Millisecond, c.next(100*time.Millisecond))
	assert.Equal(t, 300*time.Millisecond, c.next(200*time.Millisecond))
}

func TestRetryableStatus(t *testing.T) {
	for code, want := range map[int]bool{
		http.StatusBadRequest:          false,
		http.StatusUnauthorized:        false,
		http.StatusRequestTimeout:      true,
		http.StatusTooManyRequests:     true,
		http.StatusInternalServerError: true,
		http.StatusBadGateway:          true,
	} {
		assert.Equal(t, want, retryableStatus(code), "status %d", code)
	}
}
