package output

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/torosent/divideload/internal/metrics"
	"github.com/torosent/divideload/internal/runner"
)

// RunInfo describes the run a report belongs to.
type RunInfo struct {
	RunID        string
	Duration     time.Duration
	Interrupted  bool
	UnitFailures []runner.UnitFailure
}

// Banner is printed before the run starts.
type Banner struct {
	Target            string
	Workers           int
	RequestsPerWorker int
	BatchSize         int
	DockerEnabled     bool
	Image             string
}

// PrintBanner outputs the run parameters.
func PrintBanner(w io.Writer, b Banner) {
	fmt.Fprintln(w, "Name Division Load Test")
	fmt.Fprintf(w, "Target:               %s\n", b.Target)
	fmt.Fprintf(w, "Workers:              %d\n", b.Workers)
	fmt.Fprintf(w, "Requests per worker:  %d\n", b.RequestsPerWorker)
	fmt.Fprintf(w, "Batch size:           %d\n", b.BatchSize)
	fmt.Fprintf(w, "Total requests:       %d\n", b.Workers*b.RequestsPerWorker)
	if b.DockerEnabled {
		fmt.Fprintln(w, "Docker management:    enabled")
		fmt.Fprintf(w, "Docker image:         %s\n", b.Image)
	} else {
		fmt.Fprintln(w, "Docker management:    disabled")
	}
}

// PrintReport outputs a human-readable summary report.
func PrintReport(w io.Writer, run RunInfo, rep metrics.Report) {
	fmt.Fprintln(w, "\n--- Load Test Results ---")
	if run.RunID != "" {
		fmt.Fprintf(w, "Run ID:            %s\n", run.RunID)
	}
	fmt.Fprintf(w, "Total Requests:    %d\n", rep.Total)
	fmt.Fprintf(w, "Successful:        %d (%.1f%%)\n", rep.Succeeded, rep.SuccessRate)
	fmt.Fprintf(w, "Failed:            %d (%.1f%%)\n", rep.Failed, rep.FailureRate)
	fmt.Fprintf(w, "Duration:          %s\n", run.Duration.Round(time.Millisecond))
	fmt.Fprintf(w, "Requests/sec:      %.2f\n", requestsPerSec(rep.Total, run.Duration))
	if run.Interrupted {
		fmt.Fprintln(w, "Interrupted:       yes")
	}

	if rep.Succeeded > 0 {
		fmt.Fprintln(w, "\nLatency:")
		fmt.Fprintf(w, "  Mean:            %s\n", rep.Latency.Mean)
		fmt.Fprintf(w, "  Min:             %s\n", rep.Latency.Min)
		fmt.Fprintf(w, "  Max:             %s\n", rep.Latency.Max)
		fmt.Fprintf(w, "  P50:             %s\n", rep.Latency.P50)
		fmt.Fprintf(w, "  P90:             %s\n", rep.Latency.P90)
		fmt.Fprintf(w, "  P99:             %s\n", rep.Latency.P99)

		fmt.Fprintln(w, "\nResults by Mode:")
		for _, row := range rep.Modes {
			if row.Count == 0 {
				fmt.Fprintf(w, "  %-12s 0 requests\n", row.Mode+":")
				continue
			}
			fmt.Fprintf(w, "  %-12s %d requests, avg %s\n", row.Mode+":", row.Count, row.MeanLatency)
		}
	}

	if len(rep.Errors) > 0 {
		fmt.Fprintln(w, "\nError Summary:")
		for _, e := range rep.Errors {
			fmt.Fprintf(w, "  %s: %d times\n", e.Message, e.Count)
		}
	}

	if len(rep.Kinds) > 0 {
		fmt.Fprintln(w, "\nFailure Buckets:")
		for _, row := range rep.Kinds {
			if row.Status != 0 {
				fmt.Fprintf(w, "  %s (HTTP %d): %d\n", metrics.KindLabel(row.Kind), row.Status, row.Count)
				continue
			}
			fmt.Fprintf(w, "  %s: %d\n", metrics.KindLabel(row.Kind), row.Count)
		}
	}

	if len(run.UnitFailures) > 0 {
		fmt.Fprintln(w, "\nWorker Failures:")
		for _, f := range run.UnitFailures {
			fmt.Fprintf(w, "  worker %d: %v\n", f.WorkerID, f.Err)
		}
	}
}

type jsonUnitFailure struct {
	WorkerID int    `json:"worker_id"`
	Error    string `json:"error"`
}

type jsonReport struct {
	RunID          string            `json:"run_id,omitempty"`
	DurationMs     float64           `json:"duration_ms"`
	RequestsPerSec float64           `json:"requests_per_sec"`
	Interrupted    bool              `json:"interrupted"`
	UnitFailures   []jsonUnitFailure `json:"unit_failures,omitempty"`
	metrics.Report
}

// PrintJSONReport outputs a JSON-formatted report.
func PrintJSONReport(w io.Writer, run RunInfo, rep metrics.Report) error {
	out := jsonReport{
		RunID:          run.RunID,
		DurationMs:     float64(run.Duration) / float64(time.Millisecond),
		RequestsPerSec: requestsPerSec(rep.Total, run.Duration),
		Interrupted:    run.Interrupted,
		Report:         rep,
	}
	for _, f := range run.UnitFailures {
		out.UnitFailures = append(out.UnitFailures, jsonUnitFailure{WorkerID: f.WorkerID, Error: f.Err.Error()})
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(out)
}

func requestsPerSec(total int, elapsed time.Duration) float64 {
	if elapsed <= 0 || total == 0 {
		return 0
	}
	return float64(total) / elapsed.Seconds()
}
