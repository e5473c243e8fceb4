package metrics

import (
	"time"

	"github.com/HdrHistogram/hdrhistogram-go"

	"github.com/torosent/divideload/internal/runner"
)

// Report is the aggregate view of a set of records.
type Report struct {
	Total       int     `json:"total"`
	Succeeded   int     `json:"succeeded"`
	Failed      int     `json:"failed"`
	SuccessRate float64 `json:"success_rate"`
	FailureRate float64 `json:"failure_rate"`

	Latency LatencyStats    `json:"latency"`
	Modes   []ModeStats     `json:"modes"`
	Errors  []ErrorCount    `json:"errors,omitempty"`
	Kinds   []FailureBucket `json:"error_kinds,omitempty"`
}

// LatencyStats covers successful requests only.
type LatencyStats struct {
	Mean time.Duration `json:"-"`
	Min  time.Duration `json:"-"`
	Max  time.Duration `json:"-"`
	P50  time.Duration `json:"-"`
	P90  time.Duration `json:"-"`
	P99  time.Duration `json:"-"`

	// JSON-friendly millisecond fields.
	MeanMs float64 `json:"mean_ms"`
	MinMs  float64 `json:"min_ms"`
	MaxMs  float64 `json:"max_ms"`
	P50Ms  float64 `json:"p50_ms"`
	P90Ms  float64 `json:"p90_ms"`
	P99Ms  float64 `json:"p99_ms"`
}

// ModeStats counts successful requests for one mode.
type ModeStats struct {
	Mode          runner.Mode   `json:"mode"`
	Count         int           `json:"count"`
	MeanLatency   time.Duration `json:"-"`
	MeanLatencyMs float64       `json:"mean_latency_ms"`
}

// ErrorCount is one row of the error histogram, keyed by exact error text.
type ErrorCount struct {
	Message string `json:"message"`
	Count   int    `json:"count"`
}

// Summarize aggregates records. It is pure: reordering the input changes only
// the order of Errors.
func Summarize(records []runner.Record) Report {
	rep := Report{Total: len(records)}

	// Track latencies from 1µs up to 60s with 3 significant figures.
	hist := hdrhistogram.New(1, 60_000_000, 3)
	var sum time.Duration

	modeCount := make(map[runner.Mode]int, len(runner.Modes))
	modeSum := make(map[runner.Mode]time.Duration, len(runner.Modes))

	errorIndex := make(map[string]int)
	kinds := make(map[runner.ErrorKind]map[int]int)

	for _, rec := range records {
		if !rec.Succeeded {
			rep.Failed++
			if i, ok := errorIndex[rec.Error]; ok {
				rep.Errors[i].Count++
			} else {
				errorIndex[rec.Error] = len(rep.Errors)
				rep.Errors = append(rep.Errors, ErrorCount{Message: rec.Error, Count: 1})
			}
			kind := rec.ErrorKind
			if kind == "" {
				kind = runner.ErrorKindTransport
			}
			if kinds[kind] == nil {
				kinds[kind] = make(map[int]int)
			}
			kinds[kind][rec.StatusCode]++
			continue
		}

		rep.Succeeded++
		sum += rec.Latency
		if rep.Succeeded == 1 || rec.Latency < rep.Latency.Min {
			rep.Latency.Min = rec.Latency
		}
		if rec.Latency > rep.Latency.Max {
			rep.Latency.Max = rec.Latency
		}
		recordLatency(hist, rec.Latency)

		modeCount[rec.Mode]++
		modeSum[rec.Mode] += rec.Latency
	}

	if rep.Total > 0 {
		rep.SuccessRate = percent(rep.Succeeded, rep.Total)
		rep.FailureRate = percent(rep.Failed, rep.Total)
	}
	if rep.Succeeded > 0 {
		rep.Latency.Mean = sum / time.Duration(rep.Succeeded)
	}
	if hist.TotalCount() > 0 {
		rep.Latency.P50 = time.Duration(hist.ValueAtQuantile(50)) * time.Microsecond
		rep.Latency.P90 = time.Duration(hist.ValueAtQuantile(90)) * time.Microsecond
		rep.Latency.P99 = time.Duration(hist.ValueAtQuantile(99)) * time.Microsecond
	}
	rep.Latency.fillMillis()

	rep.Modes = make([]ModeStats, 0, len(runner.Modes))
	for _, m := range runner.Modes {
		row := ModeStats{Mode: m, Count: modeCount[m]}
		if row.Count > 0 {
			row.MeanLatency = modeSum[m] / time.Duration(row.Count)
		}
		row.MeanLatencyMs = millis(row.MeanLatency)
		rep.Modes = append(rep.Modes, row)
	}

	rep.Kinds = FlattenFailureBuckets(kinds)
	return rep
}

func recordLatency(hist *hdrhistogram.Histogram, latency time.Duration) {
	us := latency.Microseconds()
	if us < hist.LowestTrackableValue() {
		us = hist.LowestTrackableValue()
	}
	if us > hist.HighestTrackableValue() {
		us = hist.HighestTrackableValue()
	}
	_ = hist.RecordValue(us)
}

func (l *LatencyStats) fillMillis() {
	l.MeanMs = millis(l.Mean)
	l.MinMs = millis(l.Min)
	l.MaxMs = millis(l.Max)
	l.P50Ms = millis(l.P50)
	l.P90Ms = millis(l.P90)
	l.P99Ms = millis(l.P99)
}

func millis(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}

func percent(n, total int) float64 {
	return float64(n) / float64(total) * 100
}
