package output

import (
	"fmt"
	"io"
	"sync/atomic"
	"time"

	"github.com/torosent/divideload/internal/runner"
)

// ProgressSource exposes live run counters.
type ProgressSource interface {
	Progress() runner.Progress
}

// ProgressReporter displays real-time progress updates.
type ProgressReporter struct {
	source   ProgressSource
	ticker   *time.Ticker
	done     chan struct{}
	finished chan struct{}
	writer   io.Writer
	active   int32
	start    time.Time
}

// NewProgressReporter creates a progress reporter that updates at the given interval.
func NewProgressReporter(source ProgressSource, interval time.Duration, writer io.Writer) *ProgressReporter {
	if writer == nil {
		writer = io.Discard
	}
	if interval <= 0 {
		interval = time.Second
	}
	return &ProgressReporter{
		source:   source,
		ticker:   time.NewTicker(interval),
		done:     make(chan struct{}),
		finished: make(chan struct{}),
		writer:   writer,
		start:    time.Now(),
	}
}

// Start begins displaying progress updates in a background goroutine.
func (p *ProgressReporter) Start() {
	if !atomic.CompareAndSwapInt32(&p.active, 0, 1) {
		return // already running
	}
	go p.run()
}

// Stop halts progress updates and terminates the current line.
func (p *ProgressReporter) Stop() {
	if atomic.CompareAndSwapInt32(&p.active, 1, 0) {
		close(p.done)
		<-p.finished
		fmt.Fprint(p.writer, FormatProgress(p.source.Progress(), time.Since(p.start)))
		fmt.Fprintln(p.writer)
	}
	p.ticker.Stop()
}

func (p *ProgressReporter) run() {
	defer close(p.finished)
	for {
		select {
		case <-p.ticker.C:
			fmt.Fprint(p.writer, FormatProgress(p.source.Progress(), time.Since(p.start)))
		case <-p.done:
			return
		}
	}
}

// FormatProgress renders a single carriage-return-prefixed progress line.
func FormatProgress(s runner.Progress, elapsed time.Duration) string {
	rps := 0.0
	if elapsed > 0 {
		rps = float64(s.Completed) / elapsed.Seconds()
	}
	return fmt.Sprintf("\rRequests: %d/%d | Successes: %d | Failures: %d | Workers done: %d/%d | RPS: %.1f",
		s.Completed, s.Expected, s.Succeeded, s.Failed, s.UnitsDone, s.Units, rps)
}
