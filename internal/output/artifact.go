package output

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/oklog/ulid/v2"
	"gopkg.in/yaml.v3"

	"github.com/torosent/divideload/internal/runner"
)

// Artifact formats.
const (
	FormatJSON = "json"
	FormatYAML = "yaml"
)

// ArtifactEntry is the persisted form of one record. Latency is in seconds and
// Error is null for successful requests.
type ArtifactEntry struct {
	WorkerID   int     `json:"worker_id" yaml:"worker_id"`
	RequestID  int     `json:"request_id" yaml:"request_id"`
	Mode       string  `json:"mode" yaml:"mode"`
	Succeeded  bool    `json:"succeeded" yaml:"succeeded"`
	Latency    float64 `json:"latency" yaml:"latency"`
	Error      *string `json:"error" yaml:"error"`
	ErrorKind  string  `json:"error_kind,omitempty" yaml:"error_kind,omitempty"`
	StatusCode int     `json:"status_code,omitempty" yaml:"status_code,omitempty"`
	BatchSize  int     `json:"batch_size" yaml:"batch_size"`
}

// NewRunID returns a sortable identifier for a run.
func NewRunID() string {
	return ulid.Make().String()
}

// ArtifactPath returns the file a run's records are written to.
func ArtifactPath(dir, runID string, ts time.Time, format string) string {
	ext := FormatJSON
	if format == FormatYAML {
		ext = FormatYAML
	}
	name := fmt.Sprintf("load_test_%s_%s.%s", ts.Format("20060102_150405"), runID, ext)
	return filepath.Join(dir, name)
}

// Entries converts records to their persisted form.
func Entries(records []runner.Record) []ArtifactEntry {
	entries := make([]ArtifactEntry, 0, len(records))
	for _, rec := range records {
		entry := ArtifactEntry{
			WorkerID:   rec.WorkerID,
			RequestID:  rec.RequestID,
			Mode:       string(rec.Mode),
			Succeeded:  rec.Succeeded,
			Latency:    rec.Latency.Seconds(),
			ErrorKind:  string(rec.ErrorKind),
			StatusCode: rec.StatusCode,
			BatchSize:  rec.BatchSize,
		}
		if !rec.Succeeded {
			msg := rec.Error
			entry.Error = &msg
		}
		entries = append(entries, entry)
	}
	return entries
}

// WriteArtifact writes every record to a timestamped file under dir, creating
// dir when needed, and returns the file path.
func WriteArtifact(dir, runID string, ts time.Time, records []runner.Record, format string) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create results directory: %w", err)
	}

	data, err := encodeEntries(Entries(records), format)
	if err != nil {
		return "", err
	}

	path := ArtifactPath(dir, runID, ts, format)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("write results file: %w", err)
	}
	return path, nil
}

func encodeEntries(entries []ArtifactEntry, format string) ([]byte, error) {
	var buf bytes.Buffer
	switch format {
	case FormatYAML:
		enc := yaml.NewEncoder(&buf)
		enc.SetIndent(2)
		if err := enc.Encode(entries); err != nil {
			return nil, fmt.Errorf("encode results: %w", err)
		}
		if err := enc.Close(); err != nil {
			return nil, fmt.Errorf("encode results: %w", err)
		}
	case FormatJSON, "":
		enc := json.NewEncoder(&buf)
		enc.SetIndent("", "  ")
		enc.SetEscapeHTML(false)
		if err := enc.Encode(entries); err != nil {
			return nil, fmt.Errorf("encode results: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported results format %q", format)
	}
	return buf.Bytes(), nil
}
