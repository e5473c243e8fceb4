package runner

import (
	"context"
	"errors"
	"io"
	"math/rand"
	"net/http"
	"time"

	"github.com/tidwall/gjson"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/torosent/divideload/internal/corpus"
	"github.com/torosent/divideload/internal/httpclient"
	"github.com/torosent/divideload/internal/tracing"
)

const maxBodyReadSize = 4 * 1024 * 1024

// Sender issues one request and reports its outcome. Implementations are
// owned by a single worker and need not be safe for concurrent use.
type Sender interface {
	Send(ctx context.Context, workerID, requestID, batchSize int) Record
}

// DriverOptions configure a Driver.
type DriverOptions struct {
	Client    *http.Client
	Builder   *httpclient.RequestBuilder
	Corpus    *corpus.Corpus
	Rand      *rand.Rand   // mode and batch selection; seeded from the clock when nil
	Tracer    trace.Tracer // optional
	Propagate bool         // inject W3C trace headers
}

// Driver sends POST /divide requests with a random mode and a random batch of
// names, classifying each outcome into a Record. It never retries.
type Driver struct {
	client    *http.Client
	builder   *httpclient.RequestBuilder
	corpus    *corpus.Corpus
	rnd       *rand.Rand
	tracer    trace.Tracer
	propagate bool
}

func NewDriver(opts DriverOptions) (*Driver, error) {
	if opts.Client == nil {
		return nil, errors.New("driver: http client is required")
	}
	if opts.Builder == nil {
		return nil, errors.New("driver: request builder is required")
	}
	if opts.Corpus.Len() == 0 {
		return nil, errors.New("driver: corpus is empty")
	}
	rnd := opts.Rand
	if rnd == nil {
		rnd = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	tracer := opts.Tracer
	if tracer == nil {
		tracer = noop.NewTracerProvider().Tracer("divideload")
	}
	return &Driver{
		client:    opts.Client,
		builder:   opts.Builder,
		corpus:    opts.Corpus,
		rnd:       rnd,
		tracer:    tracer,
		propagate: opts.Propagate,
	}, nil
}

// Send performs a single attempt and always returns a Record.
func (d *Driver) Send(ctx context.Context, workerID, requestID, batchSize int) Record {
	if ctx == nil {
		ctx = context.Background()
	}

	mode := Modes[d.rnd.Intn(len(Modes))]
	names := d.corpus.Sample(d.rnd, batchSize)
	base := Record{
		WorkerID:  workerID,
		RequestID: requestID,
		Mode:      mode,
		BatchSize: len(names),
	}

	ctx, span := tracing.StartDivideSpan(ctx, d.tracer, string(mode), workerID, requestID, len(names))
	resp, status, latency, err := d.do(ctx, names, mode)
	tracing.EndSpan(span, err, attribute.Int("http.response.status_code", status))

	if err != nil {
		return NewFailure(base, latency, status, err)
	}
	return NewSuccess(base, latency, status, resp)
}

func (d *Driver) do(ctx context.Context, names []string, mode Mode) (*httpclient.DivideResponse, int, time.Duration, error) {
	req, err := d.builder.BuildDivide(ctx, names, mode.RequestValue())
	if err != nil {
		return nil, 0, 0, &BuildError{Err: err}
	}
	if d.propagate {
		tracing.InjectHTTPHeaders(ctx, req.Header)
	}

	start := time.Now()
	resp, err := d.client.Do(req)
	if err != nil {
		return nil, 0, time.Since(start), err
	}
	defer resp.Body.Close()

	body, readErr := io.ReadAll(io.LimitReader(resp.Body, maxBodyReadSize))
	latency := time.Since(start)

	if resp.StatusCode != http.StatusOK {
		return nil, resp.StatusCode, latency, &HTTPError{StatusCode: resp.StatusCode, Body: string(body)}
	}
	if readErr != nil {
		return nil, resp.StatusCode, latency, readErr
	}

	parsed, err := parseDivideResponse(body, len(names))
	return parsed, resp.StatusCode, latency, err
}

// parseDivideResponse checks that divided_names is a list with one entry per
// name sent. Entries are read leniently: a field of an unexpected type is left
// at its zero value rather than failing the request.
func parseDivideResponse(body []byte, expected int) (*httpclient.DivideResponse, error) {
	if !gjson.ValidBytes(body) {
		return nil, ErrInvalidResponse
	}
	list := gjson.GetBytes(body, "divided_names")
	if !list.IsArray() {
		return nil, ErrInvalidResponse
	}
	items := list.Array()
	if len(items) != expected {
		return nil, &CountMismatchError{Expected: expected, Actual: len(items)}
	}

	parsed := &httpclient.DivideResponse{DividedNames: make([]httpclient.DividedName, len(items))}
	for i, item := range items {
		parsed.DividedNames[i] = httpclient.DividedName{
			Family:    item.Get("family").String(),
			Given:     item.Get("given").String(),
			Separator: item.Get("separator").String(),
			Score:     item.Get("score").Float(),
			Algorithm: item.Get("algorithm").String(),
		}
	}
	return parsed, nil
}
