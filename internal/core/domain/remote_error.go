package domain

import (
	"fmt"
	"time"
)

// RemoteError is a failed response from the remote API.
// StatusCode is zero when no response was received.
type RemoteError struct {
	Op         string
	StatusCode int
	Message    string
	// RetryAfter is the wait the remote asked for, zero when it gave none.
	RetryAfter time.Duration
	// RateLimited is set when the response carried a rate-limit indicator
	// (exhausted quota header or a throttle message).
	RateLimited bool
	Err         error
}

func (e *RemoteError) Error() string {
	switch {
	case e.StatusCode == 0 && e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	case e.Message != "":
		return fmt.Sprintf("%s: http %d: %s", e.Op, e.StatusCode, e.Message)
	default:
		return fmt.Sprintf("%s: http %d", e.Op, e.StatusCode)
	}
}

func (e *RemoteError) Unwrap() error {
	return e.Err
}
