package runner

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sort"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
)

// UnitFailure reports a unit that could not complete its requests. Records it
// produced before failing are still part of the Result.
type UnitFailure struct {
	WorkerID int
	Err      error
}

func (f UnitFailure) Error() string {
	return fmt.Sprintf("worker %d: %v", f.WorkerID, f.Err)
}

// UnitSummary is passed to Options.OnUnitDone when a unit stops.
type UnitSummary struct {
	WorkerID    int
	Succeeded   int
	Failed      int
	Elapsed     time.Duration
	Interrupted bool
	Err         error
}

// Result is the outcome of Pool.Run.
type Result struct {
	Records      []Record
	UnitFailures []UnitFailure
	Interrupted  bool
	Duration     time.Duration
}

// Progress is a point-in-time view of all units.
type Progress struct {
	Expected  int64
	Completed int64
	Succeeded int64
	Failed    int64
	UnitsDone int
	Units     int
}

type unitProgress struct {
	succeeded atomic.Int64
	failed    atomic.Int64
	done      atomic.Bool
}

type unitResult struct {
	workerID    int
	records     []Record
	err         error
	interrupted bool
	elapsed     time.Duration
}

// Pool runs Workers isolated units, each issuing RequestsPerWorker sequential
// requests through its own Sender.
type Pool struct {
	opts     Options
	progress []unitProgress
}

func NewPool(opts Options) (*Pool, error) {
	if opts.NewSender == nil {
		return nil, errors.New("pool: sender factory is required")
	}
	opts.normalize()
	return &Pool{
		opts:     opts,
		progress: make([]unitProgress, opts.Workers),
	}, nil
}

// Run starts every unit and waits for them. When ctx is cancelled Run stops
// waiting, returns what finished units produced and marks the result
// interrupted. Units still running stop before their next request; calls
// already on the wire are bounded by the client timeout only.
func (p *Pool) Run(ctx context.Context) Result {
	if ctx == nil {
		ctx = context.Background()
	}
	start := time.Now()

	results := make(chan unitResult, p.opts.Workers)
	var g errgroup.Group
	for w := 0; w < p.opts.Workers; w++ {
		workerID := w
		g.Go(func() error {
			res := p.runUnit(ctx, workerID)
			results <- res
			if p.opts.OnUnitDone != nil {
				p.opts.OnUnitDone(res.summary())
			}
			return nil
		})
	}

	collected := make([]unitResult, 0, p.opts.Workers)
	interrupted := false
wait:
	for len(collected) < p.opts.Workers {
		select {
		case res := <-results:
			collected = append(collected, res)
		case <-ctx.Done():
			interrupted = true
			break wait
		}
	}

	if interrupted {
	drain:
		for {
			select {
			case res := <-results:
				collected = append(collected, res)
			default:
				break drain
			}
		}
	} else {
		_ = g.Wait()
	}

	sort.Slice(collected, func(i, j int) bool {
		return collected[i].workerID < collected[j].workerID
	})

	out := Result{Interrupted: interrupted}
	for _, res := range collected {
		out.Records = append(out.Records, res.records...)
		if res.err != nil {
			out.UnitFailures = append(out.UnitFailures, UnitFailure{WorkerID: res.workerID, Err: res.err})
		}
		if res.interrupted {
			out.Interrupted = true
		}
	}
	out.Duration = time.Since(start)
	return out
}

// Progress sums the per-unit counters. Each unit writes only its own slot.
func (p *Pool) Progress() Progress {
	snap := Progress{
		Expected: int64(p.opts.Workers) * int64(p.opts.RequestsPerWorker),
		Units:    p.opts.Workers,
	}
	for i := range p.progress {
		u := &p.progress[i]
		snap.Succeeded += u.succeeded.Load()
		snap.Failed += u.failed.Load()
		if u.done.Load() {
			snap.UnitsDone++
		}
	}
	snap.Completed = snap.Succeeded + snap.Failed
	return snap
}

func (p *Pool) runUnit(ctx context.Context, workerID int) (res unitResult) {
	res.workerID = workerID
	counters := &p.progress[workerID]
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			res.err = fmt.Errorf("panic: %v", r)
		}
		res.elapsed = time.Since(start)
		counters.done.Store(true)
	}()

	sender, err := p.opts.NewSender(workerID)
	if err != nil {
		res.err = err
		return res
	}

	jitter := rand.New(rand.NewSource(p.opts.Seed + int64(workerID)))
	limiter := p.opts.LimiterFactory(p.opts.RatePerSecond)
	sendCtx := context.WithoutCancel(ctx)
	res.records = make([]Record, 0, p.opts.RequestsPerWorker)

	for i := 0; i < p.opts.RequestsPerWorker; i++ {
		if ctx.Err() != nil {
			res.interrupted = true
			return res
		}
		if i > 0 {
			if err := p.opts.Sleep(ctx, p.delay(jitter)); err != nil {
				res.interrupted = true
				return res
			}
		}
		if err := limiter.Wait(ctx); err != nil {
			res.interrupted = true
			return res
		}

		rec := sender.Send(sendCtx, workerID, i, p.opts.BatchSize)
		res.records = append(res.records, rec)
		if rec.Succeeded {
			counters.succeeded.Add(1)
		} else {
			counters.failed.Add(1)
		}
	}
	return res
}

func (p *Pool) delay(rnd *rand.Rand) time.Duration {
	span := p.opts.MaxDelay - p.opts.MinDelay
	if span <= 0 {
		return p.opts.MinDelay
	}
	return p.opts.MinDelay + time.Duration(rnd.Int63n(int64(span)+1))
}

func (r unitResult) summary() UnitSummary {
	s := UnitSummary{
		WorkerID:    r.workerID,
		Elapsed:     r.elapsed,
		Interrupted: r.interrupted,
		Err:         r.err,
	}
	for _, rec := range r.records {
		if rec.Succeeded {
			s.Succeeded++
		} else {
			s.Failed++
		}
	}
	return s
}
