package service

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"unicode"

	"github.com/bloomwatch/bloomwatch-stack/relay/internal/models"
	"github.com/bloomwatch/bloomwatch-stack/relay/internal/scorer"
)

// Classify turns a finished run into either a prediction or a *ScriptError.
// The checks run in a fixed order and the first match wins:
//
//  1. anything on stderr
//  2. blank stdout
//  3. stdout that is not one JSON value
//  4. a JSON object whose "error" field is truthy
//
// Anything else is a prediction carrying stdout as compacted JSON.
func Classify(out *scorer.Outcome) (*models.Prediction, *ScriptError) {
	if len(out.Stderr) > 0 {
		return nil, &ScriptError{
			Kind:     KindRuntime,
			Message:  MsgRuntime,
			Details:  string(out.Stderr),
			ExitCode: out.ExitCode,
		}
	}

	if len(bytes.TrimFunc(out.Stdout, isBlank)) == 0 {
		return nil, &ScriptError{
			Kind:    KindNoOutput,
			Message: MsgNoOutput,
			Details: fmt.Sprintf("The script produced no output. This usually means it failed early "+
				"(a missing library or a wrong interpreter path). Exit code: %d.", out.ExitCode),
			ExitCode: out.ExitCode,
		}
	}

	stdout := bytes.TrimSpace(out.Stdout)

	// A bare null cannot be inspected for an error field and counts as unparseable.
	if !json.Valid(stdout) || bytes.Equal(stdout, []byte("null")) {
		return nil, &ScriptError{
			Kind:     KindParse,
			Message:  MsgParse,
			Details:  string(out.Stdout),
			ExitCode: out.ExitCode,
		}
	}

	if stdout[0] == '{' {
		if details, reported := reportedError(stdout); reported {
			return nil, &ScriptError{
				Kind:     KindReported,
				Message:  MsgReported,
				Details:  details,
				ExitCode: out.ExitCode,
			}
		}
	}

	var compact bytes.Buffer
	if err := json.Compact(&compact, stdout); err != nil {
		return nil, &ScriptError{Kind: KindParse, Message: MsgParse, Details: string(out.Stdout), ExitCode: out.ExitCode, Err: err}
	}

	return &models.Prediction{
		Payload:  compact.Bytes(),
		ExitCode: out.ExitCode,
		Duration: out.Duration,
	}, nil
}

// reportedError inspects a JSON object for a truthy "error" field and picks
// the details to surface: a truthy "details" field, else the whole object.
func reportedError(object []byte) (string, bool) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(object, &fields); err != nil {
		return "", false
	}

	if !truthy(fields["error"]) {
		return "", false
	}

	if d, ok := fields["details"]; ok && truthy(d) {
		var s string
		if err := json.Unmarshal(d, &s); err == nil {
			return s, true
		}
		return compactString(d), true
	}
	return compactString(object), true
}

// isBlank matches whitespace plus the byte order mark, which scripts on some
// platforms prepend to their output.
func isBlank(r rune) bool {
	return unicode.IsSpace(r) || r == '\ufeff'
}

// truthy reports whether a JSON value would count as set: not absent, null,
// false, zero or an empty string.
func truthy(raw json.RawMessage) bool {
	v := bytes.TrimSpace(raw)
	if len(v) == 0 {
		return false
	}

	switch v[0] {
	case 'n', 'f':
		return false
	case '"':
		return !bytes.Equal(v, []byte(`""`))
	case 't', '{', '[':
		return true
	default:
		f, err := strconv.ParseFloat(string(v), 64)
		return err != nil || f != 0
	}
}

func compactString(raw []byte) string {
	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		return string(raw)
	}
	return buf.String()
}
