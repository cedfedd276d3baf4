package taskqueue

import (
	"errors"
	"time"
)

const (
	retryBaseDelay = 30 * time.Second
	retryMaxDelay  = 300 * time.Second

	// maxRetryAfter bounds a delay requested by a collaborator.
	maxRetryAfter = time.Hour
)

// RetryDelay returns min(300s, 30s * 2^attempts).
func RetryDelay(attempts int) time.Duration {
	if attempts < 0 {
		attempts = 0
	}
	// 30s * 2^4 already exceeds the cap, so larger exponents never shift.
	if attempts >= 4 {
		return retryMaxDelay
	}
	delay := retryBaseDelay << uint(attempts)
	if delay > retryMaxDelay {
		return retryMaxDelay
	}
	return delay
}

// retryAfterer is implemented by errors carrying a delay requested by the
// remote side, such as an HTTP Retry-After header.
type retryAfterer interface {
	RetryAfterDelay() time.Duration
}

// BackoffFor returns RetryDelay(attempts), raised to the delay err asks
// for when it carries one. The requested delay is capped at one hour.
func BackoffFor(err error, attempts int) time.Duration {
	delay := RetryDelay(attempts)
	var ra retryAfterer
	if errors.As(err, &ra) {
		if after := min(ra.RetryAfterDelay(), maxRetryAfter); after > delay {
			delay = after
		}
	}
	return delay
}
