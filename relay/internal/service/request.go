package service

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Request is one prediction call as seen by the service.
type Request struct {
	// Body must already be a compacted JSON object; see ParseRequestBody.
	Body     []byte
	Source   string
	ClientIP string
}

// ParseRequestBody checks that body holds exactly one JSON object and returns
// it compacted. An empty body stands for {}.
func ParseRequestBody(body []byte) ([]byte, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return []byte("{}"), nil
	}

	if !json.Valid(trimmed) {
		var probe any
		err := json.Unmarshal(trimmed, &probe)
		return nil, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	if trimmed[0] != '{' {
		return nil, fmt.Errorf("%w: expected a JSON object", ErrInvalidRequest)
	}

	var buf bytes.Buffer
	if err := json.Compact(&buf, trimmed); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	return buf.Bytes(), nil
}
