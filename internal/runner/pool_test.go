package runner_test

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"golang.org/x/time/rate"

	"github.com/torosent/divideload/internal/corpus"
	"github.com/torosent/divideload/internal/httpclient"
	"github.com/torosent/divideload/internal/runner"
)

func noSleep(context.Context, time.Duration) error { return nil }

func TestPoolProducesOneRecordPerRequest(t *testing.T) {
	const workers, perWorker = 4, 10
	pool, err := runner.NewPool(runner.Options{
		Workers:           workers,
		RequestsPerWorker: perWorker,
		BatchSize:         5,
		Sleep:             noSleep,
		NewSender: func(int) (runner.Sender, error) {
			return &scriptedSender{}, nil
		},
	})
	if err != nil {
		t.Fatalf("NewPool() error = %v", err)
	}

	res := pool.Run(context.Background())
	if len(res.Records) != workers*perWorker {
		t.Fatalf("records = %d, want %d", len(res.Records), workers*perWorker)
	}
	if res.Interrupted || len(res.UnitFailures) != 0 {
		t.Fatalf("unexpected interruption or unit failures: %+v", res)
	}

	type key struct{ w, r int }
	seen := map[key]bool{}
	last := map[int]int{}
	for _, rec := range res.Records {
		k := key{rec.WorkerID, rec.RequestID}
		if seen[k] {
			t.Fatalf("duplicate (worker, request) %v", k)
		}
		seen[k] = true
		if prev, ok := last[rec.WorkerID]; ok && rec.RequestID != prev+1 {
			t.Fatalf("worker %d out of order: %d after %d", rec.WorkerID, rec.RequestID, prev)
		}
		last[rec.WorkerID] = rec.RequestID
		if rec.BatchSize != 5 {
			t.Fatalf("batch size = %d", rec.BatchSize)
		}
	}
	for w := 0; w < workers; w++ {
		if last[w] != perWorker-1 {
			t.Fatalf("worker %d ended at request %d", w, last[w])
		}
	}

	progress := pool.Progress()
	if progress.Completed != workers*perWorker || progress.Succeeded != workers*perWorker {
		t.Fatalf("progress = %+v", progress)
	}
	if progress.UnitsDone != workers || progress.Expected != workers*perWorker {
		t.Fatalf("progress = %+v", progress)
	}
	if res.Duration <= 0 {
		t.Fatalf("duration not recorded")
	}
}

func TestPoolSleepsBetweenRequestsWithinBounds(t *testing.T) {
	const workers, perWorker = 3, 5
	minDelay, maxDelay := 10*time.Millisecond, 100*time.Millisecond

	var mu sync.Mutex
	var delays []time.Duration
	pool, err := runner.NewPool(runner.Options{
		Workers:           workers,
		RequestsPerWorker: perWorker,
		BatchSize:         1,
		MinDelay:          minDelay,
		MaxDelay:          maxDelay,
		Seed:              7,
		Sleep: func(_ context.Context, d time.Duration) error {
			mu.Lock()
			delays = append(delays, d)
			mu.Unlock()
			return nil
		},
		NewSender: func(int) (runner.Sender, error) { return &scriptedSender{}, nil },
	})
	if err != nil {
		t.Fatalf("NewPool() error = %v", err)
	}
	pool.Run(context.Background())

	if len(delays) != workers*(perWorker-1) {
		t.Fatalf("sleeps = %d, want %d", len(delays), workers*(perWorker-1))
	}
	for _, d := range delays {
		if d < minDelay || d > maxDelay {
			t.Fatalf("delay %v outside [%v, %v]", d, minDelay, maxDelay)
		}
	}
}

func TestPoolUnitFailureDoesNotAffectSiblings(t *testing.T) {
	pool, err := runner.NewPool(runner.Options{
		Workers:           3,
		RequestsPerWorker: 4,
		BatchSize:         1,
		Sleep:             noSleep,
		NewSender: func(workerID int) (runner.Sender, error) {
			if workerID == 1 {
				return nil, errors.New("no client for you")
			}
			return &scriptedSender{}, nil
		},
	})
	if err != nil {
		t.Fatalf("NewPool() error = %v", err)
	}

	res := pool.Run(context.Background())
	if len(res.UnitFailures) != 1 || res.UnitFailures[0].WorkerID != 1 {
		t.Fatalf("unit failures = %+v", res.UnitFailures)
	}
	if len(res.Records) != 8 {
		t.Fatalf("records = %d, want 8", len(res.Records))
	}
	for _, rec := range res.Records {
		if rec.WorkerID == 1 {
			t.Fatalf("failed unit produced a record: %+v", rec)
		}
	}
}

type panicSender struct {
	after int
	calls int
}

func (p *panicSender) Send(ctx context.Context, workerID, requestID, batchSize int) runner.Record {
	if p.calls == p.after {
		panic("driver exploded")
	}
	p.calls++
	return (&scriptedSender{}).Send(ctx, workerID, requestID, batchSize)
}

func TestPoolRecoversPanickingUnit(t *testing.T) {
	pool, err := runner.NewPool(runner.Options{
		Workers:           2,
		RequestsPerWorker: 5,
		BatchSize:         1,
		Sleep:             noSleep,
		NewSender: func(workerID int) (runner.Sender, error) {
			if workerID == 0 {
				return &panicSender{after: 2}, nil
			}
			return &scriptedSender{}, nil
		},
	})
	if err != nil {
		t.Fatalf("NewPool() error = %v", err)
	}

	res := pool.Run(context.Background())
	if len(res.UnitFailures) != 1 || res.UnitFailures[0].WorkerID != 0 {
		t.Fatalf("unit failures = %+v", res.UnitFailures)
	}
	var fromPanicked int
	for _, rec := range res.Records {
		if rec.WorkerID == 0 {
			fromPanicked++
		}
	}
	if fromPanicked != 2 {
		t.Fatalf("records kept from panicking unit = %d, want 2", fromPanicked)
	}
	if len(res.Records) != 7 {
		t.Fatalf("records = %d, want 7", len(res.Records))
	}
}

func TestPoolAllRequestsFailingStillYieldsRecords(t *testing.T) {
	failing := &http.Client{Transport: roundTripFunc(func(*http.Request) (*http.Response, error) {
		return nil, errors.New("dial tcp: connection refused")
	})}
	builder, err := httpclient.NewRequestBuilder("http://divide.test")
	if err != nil {
		t.Fatalf("NewRequestBuilder() error = %v", err)
	}

	pool, err := runner.NewPool(runner.Options{
		Workers:           1,
		RequestsPerWorker: 6,
		BatchSize:         5,
		Sleep:             noSleep,
		NewSender: func(int) (runner.Sender, error) {
			return runner.NewDriver(runner.DriverOptions{
				Client:  failing,
				Builder: builder,
				Corpus:  corpus.Default(),
			})
		},
	})
	if err != nil {
		t.Fatalf("NewPool() error = %v", err)
	}

	res := pool.Run(context.Background())
	if len(res.Records) != 6 {
		t.Fatalf("records = %d, want 6", len(res.Records))
	}
	for _, rec := range res.Records {
		if rec.Succeeded || rec.ErrorKind != runner.ErrorKindTransport {
			t.Fatalf("expected transport failure, got %+v", rec)
		}
	}
	if p := pool.Progress(); p.Failed != 6 || p.Succeeded != 0 {
		t.Fatalf("progress = %+v", p)
	}
}

// blockingSender holds its first call until release is closed and reports the
// context state it observed.
type blockingSender struct {
	release  chan struct{}
	observed chan error
}

func (b *blockingSender) Send(ctx context.Context, workerID, requestID, batchSize int) runner.Record {
	<-b.release
	b.observed <- ctx.Err()
	return (&scriptedSender{}).Send(ctx, workerID, requestID, batchSize)
}

func TestPoolInterruptReturnsFinishedUnits(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	blocker := &blockingSender{release: make(chan struct{}), observed: make(chan error, 1)}
	fastDone := make(chan struct{})

	pool, err := runner.NewPool(runner.Options{
		Workers:           2,
		RequestsPerWorker: 3,
		BatchSize:         1,
		Sleep:             noSleep,
		NewSender: func(workerID int) (runner.Sender, error) {
			if workerID == 1 {
				return blocker, nil
			}
			return &scriptedSender{}, nil
		},
		OnUnitDone: func(s runner.UnitSummary) {
			if s.WorkerID == 0 {
				close(fastDone)
			}
		},
	})
	if err != nil {
		t.Fatalf("NewPool() error = %v", err)
	}

	go func() {
		<-fastDone
		cancel()
	}()

	done := make(chan runner.Result, 1)
	go func() { done <- pool.Run(ctx) }()

	var res runner.Result
	select {
	case res = <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancellation")
	}

	if !res.Interrupted {
		t.Fatalf("expected interrupted result")
	}
	if len(res.Records) != 3 {
		t.Fatalf("records = %d, want the 3 from the finished unit", len(res.Records))
	}
	for _, rec := range res.Records {
		if rec.WorkerID != 0 {
			t.Fatalf("unexpected record from unfinished unit: %+v", rec)
		}
	}

	close(blocker.release)
	select {
	case err := <-blocker.observed:
		if err != nil {
			t.Fatalf("in-flight send saw cancelled context: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("blocked sender never resumed")
	}
}

func TestPoolUsesLimiterFactory(t *testing.T) {
	var gotRPS atomic.Int64
	var built atomic.Int64
	pool, err := runner.NewPool(runner.Options{
		Workers:           2,
		RequestsPerWorker: 2,
		BatchSize:         1,
		RatePerSecond:     25,
		Sleep:             noSleep,
		LimiterFactory: func(rps int) *rate.Limiter {
			gotRPS.Store(int64(rps))
			built.Add(1)
			return rate.NewLimiter(rate.Inf, 0)
		},
		NewSender: func(int) (runner.Sender, error) { return &scriptedSender{}, nil },
	})
	if err != nil {
		t.Fatalf("NewPool() error = %v", err)
	}
	pool.Run(context.Background())

	if gotRPS.Load() != 25 {
		t.Fatalf("limiter rps = %d, want 25", gotRPS.Load())
	}
	if built.Load() != 2 {
		t.Fatalf("limiters built = %d, want one per unit", built.Load())
	}
}

func TestNewPoolRequiresFactory(t *testing.T) {
	if _, err := runner.NewPool(runner.Options{Workers: 1}); err == nil {
		t.Fatal("expected error without sender factory")
	}
}
