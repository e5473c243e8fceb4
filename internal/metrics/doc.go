// Package metrics aggregates request records into a load test report.
//
// [Summarize] is a pure function over a slice of [runner.Record]:
//
//	rep := metrics.Summarize(result.Records)
//	fmt.Println(rep.Succeeded, rep.Latency.P99)
//
// # Statistics
//
// The [Report] type provides:
//   - Request counts (total, succeeded, failed) and their percentages
//   - Latency mean, min and max over successful requests
//   - Latency percentiles (P50, P90, P99) from an HDR histogram
//   - Per-mode rows for every mode, in a fixed order, even when empty
//   - An error histogram keyed by exact message, in first-seen order
//   - A breakdown by error kind and status code, largest first
//
// Reordering the input changes only the order of the error histogram.
package metrics
