package api

import (
	"encoding/json"
	"net/http"
	"time"
)

const (
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// Result is the envelope every endpoint answers with.
type Result struct {
	Status     string `json:"status"`
	Error      string `json:"error,omitempty"`
	Data       any    `json:"data,omitempty"`
	DurationMs int64  `json:"durationMs"`
}

// NewSuccessResult wraps data in a completed result.
func NewSuccessResult(data any, durationMs int64) Result {
	return Result{Status: StatusCompleted, Data: data, DurationMs: durationMs}
}

// NewErrorResult wraps err in a failed result.
func NewErrorResult(err error, durationMs int64) Result {
	return Result{Status: StatusFailed, Error: err.Error(), DurationMs: durationMs}
}

func writeResult(w http.ResponseWriter, code int, res Result) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(res); err != nil {
		log.Warn("failed to encode response", "error", err)
	}
}

func writeSuccess(w http.ResponseWriter, start time.Time, data any) {
	writeResult(w, http.StatusOK, NewSuccessResult(data, time.Since(start).Milliseconds()))
}

func writeError(w http.ResponseWriter, start time.Time, code int, err error) {
	writeResult(w, code, NewErrorResult(err, time.Since(start).Milliseconds()))
}
