package telegram

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/questforge/questbot/pkg/circuitbreaker"
)

// APIError is an ok=false reply of the Bot API.
type APIError struct {
	Code        int
	Description string

	// RetryAfter is the flood-control wait in seconds, 0 if absent.
	RetryAfter int
}

func (e *APIError) Error() string {
	return fmt.Sprintf("telegram api error %d: %s", e.Code, e.Description)
}

func asAPIError(err error) (*APIError, bool) {
	var apiErr *APIError
	ok := errors.As(err, &apiErr)
	return apiErr, ok
}

// isRetryableError: flood control, 5xx and transport failures are worth
// another attempt; other API errors, cancellation and an open breaker are not.
func isRetryableError(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if errors.Is(err, circuitbreaker.ErrCircuitOpen) || errors.Is(err, circuitbreaker.ErrTooManyRequests) {
		return false
	}
	if apiErr, ok := asAPIError(err); ok {
		return apiErr.Code == http.StatusTooManyRequests || apiErr.Code >= 500
	}
	return true
}

// IsOutage reports a failure of Telegram itself rather than of one request.
// It is the failure predicate of the API circuit breaker.
func IsOutage(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return false
	}
	if apiErr, ok := asAPIError(err); ok {
		return apiErr.Code >= 500
	}
	return true
}

// IsUserBlocked reports that the user blocked the bot or deleted the account.
func IsUserBlocked(err error) bool {
	apiErr, ok := asAPIError(err)
	if !ok {
		return false
	}
	if apiErr.Code == http.StatusForbidden {
		return true
	}
	d := strings.ToLower(apiErr.Description)
	return strings.Contains(d, "bot was blocked") || strings.Contains(d, "user is deactivated")
}

// IsMessageNotModified reports an edit that would leave the message as is.
func IsMessageNotModified(err error) bool {
	apiErr, ok := asAPIError(err)
	return ok && apiErr.Code == http.StatusBadRequest &&
		strings.Contains(apiErr.Description, "message is not modified")
}
