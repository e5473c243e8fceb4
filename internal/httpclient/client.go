package httpclient

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	DividePath = "/divide"
	HealthPath = "/health"
)

// DivideRequest is the body of POST /divide. Mode is omitted when empty so the
// service applies its default algorithm.
type DivideRequest struct {
	Names []string `json:"names"`
	Mode  string   `json:"mode,omitempty"`
}

// DividedName is one element of a successful division response.
type DividedName struct {
	Family    string  `json:"family"`
	Given     string  `json:"given"`
	Separator string  `json:"separator"`
	Score     float64 `json:"score"`
	Algorithm string  `json:"algorithm"`
}

// DivideResponse is the body of a successful POST /divide.
type DivideResponse struct {
	DividedNames []DividedName `json:"divided_names"`
}

// RequestBuilder constructs requests against a division service base URL.
type RequestBuilder struct {
	base    string
	headers http.Header
}

func NewRequestBuilder(baseURL string) (*RequestBuilder, error) {
	base := strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if base == "" {
		return nil, errors.New("target URL is required")
	}
	u, err := url.Parse(base)
	if err != nil {
		return nil, fmt.Errorf("invalid target URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("invalid target URL %q: scheme must be http or https", baseURL)
	}

	headers := http.Header{}
	headers.Set("Content-Type", "application/json")
	headers.Set("Accept", "application/json")

	return &RequestBuilder{base: base, headers: headers}, nil
}

// BaseURL returns the normalized service base URL.
func (b *RequestBuilder) BaseURL() string {
	return b.base
}

// BuildDivide builds a POST /divide request carrying names and, when non-empty, mode.
func (b *RequestBuilder) BuildDivide(ctx context.Context, names []string, mode string) (*http.Request, error) {
	if b == nil {
		return nil, errors.New("builder cannot be nil")
	}
	body, err := NewJSONBodySource(DivideRequest{Names: names, Mode: mode})
	if err != nil {
		return nil, err
	}
	return b.build(ctx, http.MethodPost, DividePath, body)
}

// BuildHealth builds a GET /health request.
func (b *RequestBuilder) BuildHealth(ctx context.Context) (*http.Request, error) {
	if b == nil {
		return nil, errors.New("builder cannot be nil")
	}
	return b.build(ctx, http.MethodGet, HealthPath, emptyBodySource{})
}

func (b *RequestBuilder) build(ctx context.Context, method, path string, body BodySource) (*http.Request, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	reader, err := body.NewReader()
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, method, b.base+path, reader)
	if err != nil {
		_ = reader.Close()
		return nil, err
	}

	req.Header = b.headers.Clone()
	if method == http.MethodGet {
		req.Header.Del("Content-Type")
	}

	if length, ok := body.ContentLength(); ok {
		req.ContentLength = length
	}

	req.GetBody = func() (io.ReadCloser, error) {
		return body.NewReader()
	}

	return req, nil
}

// StatusError reports a non-200 health probe.
type StatusError struct {
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("health check returned HTTP %d", e.StatusCode)
}

// CheckHealth probes GET /health once, bounded by timeout. It returns nil only
// for a 200 response.
func CheckHealth(ctx context.Context, client *http.Client, builder *RequestBuilder, timeout time.Duration) error {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	req, err := builder.BuildHealth(ctx)
	if err != nil {
		return err
	}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64*1024))

	if resp.StatusCode != http.StatusOK {
		return &StatusError{StatusCode: resp.StatusCode}
	}
	return nil
}

func NewClient(timeout time.Duration) *http.Client {
	if timeout < 0 {
		timeout = 0
	}

	dialer := &net.Dialer{
		Timeout:   30 * time.Second,
		KeepAlive: 30 * time.Second,
	}

	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           dialer.DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          16,
		MaxIdleConnsPerHost:   4,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}

	return &http.Client{
		Timeout:   timeout,
		Transport: transport,
	}
}
