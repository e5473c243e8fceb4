package runner

import (
	"context"
	"errors"
	"fmt"
)

// HTTPError represents an HTTP request failure with status details.
type HTTPError struct {
	StatusCode int
	Body       string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Body)
}

// ErrInvalidResponse reports a 200 response without a divided_names list.
var ErrInvalidResponse = errors.New("invalid response structure")

// CountMismatchError reports a divided_names list whose length differs from
// the number of names sent.
type CountMismatchError struct {
	Expected int
	Actual   int
}

func (e *CountMismatchError) Error() string {
	return fmt.Sprintf("response count mismatch: expected %d, got %d", e.Expected, e.Actual)
}

// BuildError wraps a failure to construct the request before it was sent.
type BuildError struct {
	Err error
}

func (e *BuildError) Error() string {
	return "build request: " + e.Err.Error()
}

func (e *BuildError) Unwrap() error {
	return e.Err
}

// Classify maps an error returned by a request attempt onto an ErrorKind.
// Anything not produced by response validation is treated as transport.
func Classify(err error) ErrorKind {
	var httpErr *HTTPError
	var countErr *CountMismatchError
	var buildErr *BuildError
	switch {
	case err == nil:
		return ""
	case errors.As(err, &buildErr):
		return ErrorKindBuild
	case errors.As(err, &httpErr):
		return ErrorKindHTTPStatus
	case errors.As(err, &countErr):
		return ErrorKindCountMismatch
	case errors.Is(err, ErrInvalidResponse):
		return ErrorKindInvalidResponse
	default:
		return ErrorKindTransport
	}
}

// FailureLogger logs failed requests.
type FailureLogger interface {
	LogFailure(rec Record)
}

// loggingSender wraps a Sender with failure logging.
type loggingSender struct {
	inner  Sender
	logger FailureLogger
}

// WithLogging wraps a Sender to log failures.
func WithLogging(s Sender, logger FailureLogger) Sender {
	if logger == nil {
		return s
	}
	return &loggingSender{
		inner:  s,
		logger: logger,
	}
}

func (l *loggingSender) Send(ctx context.Context, workerID, requestID, batchSize int) Record {
	rec := l.inner.Send(ctx, workerID, requestID, batchSize)
	if !rec.Succeeded && l.logger != nil {
		l.logger.LogFailure(rec)
	}
	return rec
}
