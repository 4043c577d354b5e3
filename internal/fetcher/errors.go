package fetcher

import (
	"errors"
	"fmt"
)

// Typed fetch failures. The orchestrator folds these into per-source
// outcomes; the retry loop uses them to tell transient from terminal.
var (
	ErrTimeout    = errors.New("request timed out")
	ErrConnection = errors.New("connection failed")
	ErrTooLarge   = errors.New("response body too large")
)

// StatusError reports a non-2xx HTTP response.
type StatusError struct {
	Code int
	URL  string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d for %s", e.Code, e.URL)
}

// Retryable reports whether the status warrants another attempt:
// 5xx and 429 are transient, other 4xx will not improve on retry.
func (e *StatusError) Retryable() bool {
	return e.Code >= 500 || e.Code == 429
}
