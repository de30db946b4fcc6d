// Package oracle holds the generation oracle clients and the error
// classification the orchestrator's retry policy relies on.
package oracle

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"

	openai "github.com/openai/openai-go"
)

// Oracle failure classes.
var (
	ErrTimeout     = errors.New("oracle timeout")
	ErrQuota       = errors.New("oracle quota exceeded")
	ErrUnavailable = errors.New("oracle unavailable")
)

// StatusError is a non-2xx reply from an HTTP oracle.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("oracle returned %d: %s", e.StatusCode, e.Body)
}

// Classify wraps err with the failure class it belongs to. Errors that are
// already classified, and caller cancellation, pass through unchanged.
func Classify(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrTimeout) || errors.Is(err, ErrQuota) || errors.Is(err, ErrUnavailable) {
		return err
	}
	if errors.Is(err, context.Canceled) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %w", ErrTimeout, err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("%w: %w", ErrTimeout, err)
	}
	if code, ok := statusCode(err); ok {
		switch {
		case code == http.StatusTooManyRequests || code == http.StatusPaymentRequired:
			return fmt.Errorf("%w: %w", ErrQuota, err)
		case code == http.StatusRequestTimeout || code == http.StatusGatewayTimeout:
			return fmt.Errorf("%w: %w", ErrTimeout, err)
		}
	}
	return fmt.Errorf("%w: %w", ErrUnavailable, err)
}

func statusCode(err error) (int, bool) {
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return statusErr.StatusCode, true
	}
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode, true
	}
	return 0, false
}
