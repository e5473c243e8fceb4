package output

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/torosent/divideload/internal/httpclient"
	"github.com/torosent/divideload/internal/metrics"
	"github.com/torosent/divideload/internal/runner"
)

func sampleRecords() []runner.Record {
	ok := runner.NewSuccess(runner.Record{WorkerID: 0, RequestID: 0, Mode: runner.ModeUnspecified, BatchSize: 2},
		1500*time.Millisecond, 200, &httpclient.DivideResponse{DividedNames: make([]httpclient.DividedName, 2)})
	bad := runner.NewFailure(runner.Record{WorkerID: 1, RequestID: 0, Mode: runner.ModeGBDT, BatchSize: 2},
		250*time.Millisecond, 500, &runner.HTTPError{StatusCode: 500, Body: "名前が長すぎます"})
	return []runner.Record{ok, bad}
}

func TestWriteArtifactJSON(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "results")
	ts := time.Date(2026, 3, 4, 5, 6, 7, 0, time.UTC)

	path, err := WriteArtifact(dir, "01HRUNID", ts, sampleRecords(), FormatJSON)
	if err != nil {
		t.Fatalf("WriteArtifact() error = %v", err)
	}
	if filepath.Base(path) != "load_test_20260304_050607_01HRUNID.json" {
		t.Fatalf("path = %s", path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read artifact: %v", err)
	}
	if !strings.Contains(string(data), "名前が長すぎます") {
		t.Fatalf("non-ASCII text should be written verbatim:\n%s", data)
	}
	if !strings.Contains(string(data), "\n  {") {
		t.Fatalf("artifact should be indented:\n%s", data)
	}

	var entries []map[string]any
	if err := json.Unmarshal(data, &entries); err != nil {
		t.Fatalf("artifact is not JSON: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("entries = %d", len(entries))
	}
	for _, field := range []string{"worker_id", "request_id", "mode", "succeeded", "latency", "error"} {
		if _, ok := entries[0][field]; !ok {
			t.Fatalf("entry missing %q: %v", field, entries[0])
		}
	}
	if entries[0]["error"] != nil || entries[0]["mode"] != "unspecified" || entries[0]["latency"] != 1.5 {
		t.Fatalf("success entry = %v", entries[0])
	}
	if entries[1]["error"] != "HTTP 500: 名前が長すぎます" || entries[1]["error_kind"] != "http_status" {
		t.Fatalf("failure entry = %v", entries[1])
	}
}

func TestWriteArtifactYAML(t *testing.T) {
	dir := t.TempDir()
	path, err := WriteArtifact(dir, "RUN", time.Now(), sampleRecords(), FormatYAML)
	if err != nil {
		t.Fatalf("WriteArtifact() error = %v", err)
	}
	if !strings.HasSuffix(path, ".yaml") {
		t.Fatalf("path = %s", path)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read artifact: %v", err)
	}
	var entries []ArtifactEntry
	if err := yaml.Unmarshal(data, &entries); err != nil {
		t.Fatalf("artifact is not YAML: %v", err)
	}
	if len(entries) != 2 || entries[1].Error == nil || entries[0].Error != nil {
		t.Fatalf("entries = %+v", entries)
	}
	if entries[1].WorkerID != 1 || entries[1].Mode != "gbdt" {
		t.Fatalf("entry = %+v", entries[1])
	}
}

func TestWriteArtifactUnwritableDirectory(t *testing.T) {
	file := filepath.Join(t.TempDir(), "not-a-dir")
	if err := os.WriteFile(file, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := WriteArtifact(filepath.Join(file, "results"), "RUN", time.Now(), sampleRecords(), FormatJSON); err == nil {
		t.Fatal("expected error writing under a file")
	}
}

func TestNewRunIDUnique(t *testing.T) {
	a, b := NewRunID(), NewRunID()
	if a == b || len(a) != 26 {
		t.Fatalf("run ids %q %q", a, b)
	}
}

func TestPrintReport(t *testing.T) {
	rep := metrics.Summarize(sampleRecords())
	var buf bytes.Buffer
	PrintReport(&buf, RunInfo{
		RunID:        "RUN",
		Duration:     2 * time.Second,
		UnitFailures: []runner.UnitFailure{{WorkerID: 3, Err: errors.New("panic: boom")}},
	}, rep)

	out := buf.String()
	for _, want := range []string{
		"Total Requests:    2",
		"Successful:        1 (50.0%)",
		"Requests/sec:      1.00",
		"Results by Mode:",
		"unspecified: 1 requests",
		"HTTP 500: 名前が長すぎます: 1 times",
		"HTTP error response (HTTP 500): 1",
		"worker 3: panic: boom",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("report missing %q:\n%s", want, out)
		}
	}
}

func TestPrintJSONReport(t *testing.T) {
	rep := metrics.Summarize(sampleRecords())
	var buf bytes.Buffer
	if err := PrintJSONReport(&buf, RunInfo{RunID: "RUN", Duration: time.Second, Interrupted: true}, rep); err != nil {
		t.Fatalf("PrintJSONReport() error = %v", err)
	}
	var decoded map[string]any
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if decoded["run_id"] != "RUN" || decoded["interrupted"] != true || decoded["total"] != float64(2) {
		t.Fatalf("decoded = %v", decoded)
	}
	if _, ok := decoded["modes"]; !ok {
		t.Fatalf("modes missing: %v", decoded)
	}
}

func TestPrintBanner(t *testing.T) {
	var buf bytes.Buffer
	PrintBanner(&buf, Banner{
		Target:            "http://localhost:8000",
		Workers:           4,
		RequestsPerWorker: 10,
		BatchSize:         5,
		DockerEnabled:     true,
		Image:             "rskmoi/namedivider-api:0.3.0",
	})
	out := buf.String()
	if !strings.Contains(out, "Total requests:       40") || !strings.Contains(out, "rskmoi/namedivider-api:0.3.0") {
		t.Fatalf("banner = %s", out)
	}
}

type fixedProgress runner.Progress

func (f fixedProgress) Progress() runner.Progress { return runner.Progress(f) }

func TestFormatProgress(t *testing.T) {
	line := FormatProgress(runner.Progress{Expected: 40, Completed: 20, Succeeded: 18, Failed: 2, UnitsDone: 1, Units: 4}, 2*time.Second)
	for _, want := range []string{"Requests: 20/40", "Successes: 18", "Failures: 2", "Workers done: 1/4", "RPS: 10.0"} {
		if !strings.Contains(line, want) {
			t.Fatalf("line %q missing %q", line, want)
		}
	}
}

func TestProgressReporterStopPrintsFinalLine(t *testing.T) {
	var buf bytes.Buffer
	reporter := NewProgressReporter(fixedProgress{Expected: 4, Completed: 4, Succeeded: 4, Units: 1, UnitsDone: 1}, 10*time.Millisecond, &buf)
	reporter.Start()
	reporter.Start()
	time.Sleep(30 * time.Millisecond)
	reporter.Stop()
	reporter.Stop()

	if !strings.Contains(buf.String(), "Requests: 4/4") || !strings.HasSuffix(buf.String(), "\n") {
		t.Fatalf("output = %q", buf.String())
	}
}
