// Package models holds the relay's domain types.
package models

import (
	"encoding/json"
	"time"
)

// Outcome is the classified result of one scorer run.
type Outcome string

const (
	OutcomeSuccess       Outcome = "success"
	OutcomeRuntimeError  Outcome = "runtime_error"
	OutcomeNoOutput      Outcome = "no_output"
	OutcomeParseError    Outcome = "parse_error"
	OutcomeReportedError Outcome = "reported_error"
	OutcomeLaunchError   Outcome = "launch_error"
	OutcomeTimeout       Outcome = "timeout"
	OutcomeCanceled      Outcome = "canceled"
)

// Outcomes lists every outcome in reporting order.
var Outcomes = []Outcome{
	OutcomeSuccess,
	OutcomeRuntimeError,
	OutcomeNoOutput,
	OutcomeParseError,
	OutcomeReportedError,
	OutcomeLaunchError,
	OutcomeTimeout,
	OutcomeCanceled,
}

// Valid reports whether o is a known outcome.
func (o Outcome) Valid() bool {
	for _, known := range Outcomes {
		if o == known {
			return true
		}
	}
	return false
}

// Prediction is a successful scorer result.
type Prediction struct {
	// Payload is the scorer's JSON, compacted but otherwise untouched.
	Payload  json.RawMessage
	ExitCode int
	Duration time.Duration
}

// PredictionRecord describes one handled prediction request, whatever its outcome.
type PredictionRecord struct {
	ID         string          `json:"id"`
	RequestID  string          `json:"request_id,omitempty"`
	Source     string          `json:"source,omitempty"`
	ClientIP   string          `json:"client_ip,omitempty"`
	Outcome    Outcome         `json:"outcome"`
	StatusCode int             `json:"status_code"`
	ExitCode   int             `json:"exit_code"`
	DurationMS int64           `json:"duration_ms"`
	Request    json.RawMessage `json:"request,omitempty"`
	Response   json.RawMessage `json:"response,omitempty"`
	Error      string          `json:"error,omitempty"`
	Details    string          `json:"details,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
}

// Succeeded reports whether the scorer produced a usable prediction.
func (r *PredictionRecord) Succeeded() bool {
	return r.Outcome == OutcomeSuccess
}

// Event is the record without the request body, as published to the broker.
func (r *PredictionRecord) Event() *PredictionRecord {
	e := *r
	e.Request = nil
	return &e
}
