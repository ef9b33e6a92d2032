// Package query executes SQL and ADQL queries against the Data Lab query
// manager, synchronously or as asynchronous server-side jobs tracked by
// id. The poll-until-done loop belongs to the caller; this package never
// sleeps.
package query

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Status is the server-reported state of an asynchronous query job.
// Jobs move QUEUED -> EXECUTING -> {COMPLETED, ERROR, ABORTED};
// EXECUTING may skip straight to ERROR or ABORTED.
type Status string

const (
	StatusQueued    Status = "QUEUED"
	StatusExecuting Status = "EXECUTING"
	StatusCompleted Status = "COMPLETED"
	StatusError     Status = "ERROR"
	StatusAborted   Status = "ABORTED"
)

// Terminal reports whether the job has finished and polling can stop.
func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusError, StatusAborted:
		return true
	default:
		return false
	}
}

// ParseStatus maps a raw status body to the Status enum. The service
// answers with the bare state word for most profiles, or a small JSON
// object with a "status" field on newer ones.
func ParseStatus(raw string) (Status, error) {
	text := strings.TrimSpace(raw)

	if strings.HasPrefix(text, "{") {
		var parsed struct {
			Status string `json:"status"`
		}
		if err := json.Unmarshal([]byte(text), &parsed); err != nil {
			return "", fmt.Errorf("query: decoding status %q: %w", text, err)
		}

		text = parsed.Status
	}

	switch st := Status(strings.ToUpper(text)); st {
	case StatusQueued, StatusExecuting, StatusCompleted, StatusError, StatusAborted:
		return st, nil
	default:
		return "", fmt.Errorf("query: unknown job status %q", raw)
	}
}
