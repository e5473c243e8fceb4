package runner

import (
	"time"

	"github.com/torosent/divideload/internal/httpclient"
)

// Mode selects the division algorithm requested from the service.
type Mode string

const (
	// ModeUnspecified omits the mode field so the service applies its default.
	ModeUnspecified Mode = "unspecified"
	ModeBasic       Mode = "basic"
	ModeGBDT        Mode = "gbdt"
)

// Modes lists every mode in reporting order.
var Modes = []Mode{ModeUnspecified, ModeBasic, ModeGBDT}

// RequestValue is the value sent in the request body; empty means omitted.
func (m Mode) RequestValue() string {
	if m == ModeUnspecified || m == "" {
		return ""
	}
	return string(m)
}

// ErrorKind classifies a failed request.
type ErrorKind string

const (
	ErrorKindTransport       ErrorKind = "transport"
	ErrorKindHTTPStatus      ErrorKind = "http_status"
	ErrorKindInvalidResponse ErrorKind = "invalid_response"
	ErrorKindCountMismatch   ErrorKind = "count_mismatch"
	ErrorKindBuild           ErrorKind = "build"
)

// Record is the outcome of one request. Build it with NewSuccess or NewFailure:
// Error is non-empty exactly when Succeeded is false, and Response is only set
// on success.
type Record struct {
	WorkerID   int
	RequestID  int
	Mode       Mode
	BatchSize  int
	Succeeded  bool
	Latency    time.Duration
	StatusCode int
	Error      string
	ErrorKind  ErrorKind
	Response   *httpclient.DivideResponse
}

// NewSuccess returns a successful record carrying resp.
func NewSuccess(base Record, latency time.Duration, statusCode int, resp *httpclient.DivideResponse) Record {
	base.Succeeded = true
	base.Latency = nonNegative(latency)
	base.StatusCode = statusCode
	base.Error = ""
	base.ErrorKind = ""
	base.Response = resp
	return base
}

// NewFailure returns a failed record classified from err.
func NewFailure(base Record, latency time.Duration, statusCode int, err error) Record {
	msg := "unknown error"
	if err != nil && err.Error() != "" {
		msg = err.Error()
	}
	base.Succeeded = false
	base.Latency = nonNegative(latency)
	base.StatusCode = statusCode
	base.Error = msg
	base.ErrorKind = Classify(err)
	base.Response = nil
	return base
}

func nonNegative(d time.Duration) time.Duration {
	if d < 0 {
		return 0
	}
	return d
}
