package ai

import (
	"context"
	"errors"
	"net"
)

var ErrUnavailable = errors.New("ai provider unavailable")

type requestError struct {
	status int
	msg    string
}

func (e *requestError) Error() string {
	return e.msg
}

func newRequestError(status int, msg string) error {
	return &requestError{status: status, msg: msg}
}

// IsRetryable classifies a provider error: rate limits, server-side
// failures and network timeouts are worth retrying; 4xx request faults
// are not. Unknown failures default to retryable so a flaky dependency
// is retried up to the queue's attempt bound instead of failing a
// document permanently.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrUnavailable) {
		return false
	}
	var re *requestError
	if errors.As(err, &re) {
		return re.status == 429 || re.status >= 500
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	if errors.As(err, &ne) {
		return ne.Timeout()
	}
	return true
}
