package runner

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

// SenderFactory builds the Sender owned by one unit. It is called from the
// unit's own goroutine; an error fails that unit only.
type SenderFactory func(workerID int) (Sender, error)

// Options configure the Pool.
type Options struct {
	Workers           int           // number of concurrent units
	RequestsPerWorker int           // sequential requests issued by each unit
	BatchSize         int           // names requested per call
	MinDelay          time.Duration // lower bound of the pause between calls
	MaxDelay          time.Duration // upper bound of the pause between calls
	RatePerSecond     int           // per-unit pacing (0 means unlimited)
	Seed              int64         // jitter seed; 0 seeds from the clock
	NewSender         SenderFactory // required

	Sleep          func(ctx context.Context, d time.Duration) error // optional injection for tests
	LimiterFactory func(rps int) *rate.Limiter                      // optional injection for tests
	OnUnitDone     func(UnitSummary)                                 // optional, called from the unit goroutine
}

func (o *Options) normalize() {
	if o.Workers <= 0 {
		o.Workers = 1
	}
	if o.RequestsPerWorker < 0 {
		o.RequestsPerWorker = 0
	}
	if o.BatchSize <= 0 {
		o.BatchSize = 1
	}
	if o.MinDelay < 0 {
		o.MinDelay = 0
	}
	if o.MaxDelay < o.MinDelay {
		o.MaxDelay = o.MinDelay
	}
	if o.RatePerSecond < 0 {
		o.RatePerSecond = 0
	}
	if o.Seed == 0 {
		o.Seed = time.Now().UnixNano()
	}
	if o.Sleep == nil {
		o.Sleep = sleepContext
	}
	if o.LimiterFactory == nil {
		o.LimiterFactory = func(rps int) *rate.Limiter {
			if rps <= 0 {
				return rate.NewLimiter(rate.Inf, 0)
			}
			return rate.NewLimiter(rate.Limit(rps), 1)
		}
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
