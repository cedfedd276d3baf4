package taskqueue

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRetryDelay(t *testing.T) {
	tests := []struct {
		attempts int
		want     time.Duration
	}{
		{attempts: -2, want: 30 * time.Second},
		{attempts: 0, want: 30 * time.Second},
		{attempts: 1, want: 60 * time.Second},
		{attempts: 2, want: 120 * time.Second},
		{attempts: 3, want: 240 * time.Second},
		{attempts: 4, want: 300 * time.Second},
		{attempts: 5, want: 300 * time.Second},
		{attempts: 64, want: 300 * time.Second},
		{attempts: 1 << 30, want: 300 * time.Second},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, RetryDelay(tt.attempts), "attempts=%d", tt.attempts)
	}
}

func TestRetryDelay_Monotonic(t *testing.T) {
	prev := RetryDelay(0)
	for n := 1; n < 100; n++ {
		d := RetryDelay(n)
		assert.GreaterOrEqual(t, d, prev, "attempts=%d", n)
		assert.LessOrEqual(t, d, 300*time.Second)
		prev = d
	}
}

type throttled time.Duration

func (e throttled) Error() string                  { return "throttled" }
func (e throttled) RetryAfterDelay() time.Duration { return time.Duration(e) }

func TestBackoffFor(t *testing.T) {
	assert.Equal(t, RetryDelay(2), BackoffFor(errors.New("plain"), 2))
	assert.Equal(t, RetryDelay(2), BackoffFor(throttled(time.Second), 2))
	assert.Equal(t, 7*time.Minute, BackoffFor(fmt.Errorf("wrapped: %w", throttled(7*time.Minute)), 2))
	assert.Equal(t, time.Hour, BackoffFor(throttled(24*time.Hour), 0))
}
