package service

import (
	"errors"

	"github.com/bloomwatch/bloomwatch-stack/relay/internal/models"
)

// ErrInvalidRequest wraps every request body rejection.
var ErrInvalidRequest = errors.New("invalid request body")

// Kind classifies why a prediction failed.
type Kind int

const (
	// KindRuntime: the scorer wrote to stderr.
	KindRuntime Kind = iota + 1
	// KindNoOutput: stdout was empty or whitespace.
	KindNoOutput
	// KindParse: stdout was not a single JSON value.
	KindParse
	// KindReported: stdout was JSON carrying a truthy "error" field.
	KindReported
	// KindLaunch: the process could not be started.
	KindLaunch
	// KindTimeout: the run exceeded the configured limit and was killed.
	KindTimeout
	// KindCanceled: the caller went away and the run was killed.
	KindCanceled
)

// Envelope messages, one per Kind.
const (
	MsgRuntime  = "script returned an error"
	MsgNoOutput = "script produced no output"
	MsgParse    = "failed to parse script output as JSON"
	MsgReported = "script reported an internal error"
	MsgLaunch   = "failed to start script"
	MsgTimeout  = "script timed out"
	MsgCanceled = "request canceled"
)

// Outcome maps the kind onto the recorded outcome.
func (k Kind) Outcome() models.Outcome {
	switch k {
	case KindRuntime:
		return models.OutcomeRuntimeError
	case KindNoOutput:
		return models.OutcomeNoOutput
	case KindParse:
		return models.OutcomeParseError
	case KindReported:
		return models.OutcomeReportedError
	case KindLaunch:
		return models.OutcomeLaunchError
	case KindTimeout:
		return models.OutcomeTimeout
	case KindCanceled:
		return models.OutcomeCanceled
	default:
		return models.Outcome("unknown")
	}
}

func (k Kind) String() string {
	return string(k.Outcome())
}

// ScriptError is a classified prediction failure. Message and Details are
// rendered verbatim as the error envelope.
type ScriptError struct {
	Kind     Kind
	Message  string
	Details  string
	ExitCode int
	Err      error
}

func (e *ScriptError) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *ScriptError) Unwrap() error {
	return e.Err
}

// AsScriptError extracts a *ScriptError from err.
func AsScriptError(err error) (*ScriptError, bool) {
	var se *ScriptError
	if errors.As(err, &se) {
		return se, true
	}
	return nil, false
}
