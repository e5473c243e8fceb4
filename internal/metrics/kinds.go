package metrics

import (
	"sort"

	"github.com/torosent/divideload/internal/runner"
)

// FailureBucket is the failure count for one error kind and status code pair.
// Status is 0 when no response was received.
type FailureBucket struct {
	Kind   runner.ErrorKind `json:"kind"`
	Status int              `json:"status_code,omitempty"`
	Count  int              `json:"count"`
}

// FlattenFailureBuckets converts a nested kind->status map into rows sorted by
// descending count, then by kind and status for stability.
func FlattenFailureBuckets(buckets map[runner.ErrorKind]map[int]int) []FailureBucket {
	if len(buckets) == 0 {
		return nil
	}
	rows := make([]FailureBucket, 0)
	for kind, codes := range buckets {
		for code, count := range codes {
			rows = append(rows, FailureBucket{Kind: kind, Status: code, Count: count})
		}
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].Count == rows[j].Count {
			if rows[i].Kind == rows[j].Kind {
				return rows[i].Status < rows[j].Status
			}
			return rows[i].Kind < rows[j].Kind
		}
		return rows[i].Count > rows[j].Count
	})
	return rows
}

var kindLabels = map[runner.ErrorKind]string{
	runner.ErrorKindTransport:       "Transport error",
	runner.ErrorKindHTTPStatus:      "HTTP error response",
	runner.ErrorKindInvalidResponse: "Invalid response structure",
	runner.ErrorKindCountMismatch:   "Response count mismatch",
	runner.ErrorKindBuild:           "Request build error",
}

// KindLabel returns a human-friendly label for an error kind.
func KindLabel(kind runner.ErrorKind) string {
	if label, ok := kindLabels[kind]; ok {
		return label
	}
	if kind == "" {
		return "Unknown error"
	}
	return string(kind)
}
