package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/bloomwatch/bloomwatch-stack/common/httputil"
)

// UserAgent identifies CLI traffic to the relay.
const UserAgent = "bloomwatch-cli/0.1.0"

// RelayClient talks to the prediction relay.
type RelayClient struct {
	baseURL string
	client  *http.Client
}

// NewRelayClient creates a RelayClient. A zero timeout means 60s.
func NewRelayClient(baseURL string, timeout time.Duration) *RelayClient {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &RelayClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
	}
}

// APIError is a non-2xx relay response.
type APIError struct {
	StatusCode int
	Message    string
	Details    string
}

func (e *APIError) Error() string {
	if e.Details == "" {
		return fmt.Sprintf("relay returned %d: %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("relay returned %d: %s: %s", e.StatusCode, e.Message, e.Details)
}

// PredictionRecord is one entry of the relay's prediction history.
type PredictionRecord struct {
	ID         string          `json:"id"`
	RequestID  string          `json:"request_id,omitempty"`
	Source     string          `json:"source,omitempty"`
	ClientIP   string          `json:"client_ip,omitempty"`
	Outcome    string          `json:"outcome"`
	StatusCode int             `json:"status_code"`
	ExitCode   int             `json:"exit_code"`
	DurationMS int64           `json:"duration_ms"`
	Request    json.RawMessage `json:"request,omitempty"`
	Response   json.RawMessage `json:"response,omitempty"`
	Error      string          `json:"error,omitempty"`
	Details    string          `json:"details,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
}

// PredictionPage is one page of history.
type PredictionPage struct {
	Data       []*PredictionRecord `json:"data"`
	Pagination struct {
		Page  int `json:"page"`
		Limit int `json:"limit"`
		Total int `json:"total"`
	} `json:"pagination"`
}

// Stats mirrors GET /api/v1/stats.
type Stats struct {
	Total              int64            `json:"total"`
	ByOutcome          map[string]int64 `json:"by_outcome"`
	SuccessRate        float64          `json:"success_rate"`
	AvgDurationMS      float64          `json:"avg_duration_ms"`
	LastPredictionAt   *time.Time       `json:"last_prediction_at,omitempty"`
	LastOutcome        string           `json:"last_outcome,omitempty"`
	LastHour           int64            `json:"last_hour"`
	Last24h            int64            `json:"last_24h"`
	Today              map[string]int64 `json:"today"`
	UniqueClientsToday int64            `json:"unique_clients_today"`
}

// Readiness mirrors GET /readyz.
type Readiness struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}

// ListOptions filters ListPredictions.
type ListOptions struct {
	Page    int
	Limit   int
	Outcome string
	Source  string
}

func (c *RelayClient) newRequest(ctx context.Context, method, path string, body []byte) (*http.Request, error) {
	var r io.Reader
	if body != nil {
		r = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, r)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", UserAgent)
	req.Header.Set(httputil.SourceHeader, string(httputil.SourceCLI))
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return req, nil
}

func (c *RelayClient) do(req *http.Request) (*http.Response, []byte, error) {
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read response: %w", err)
	}
	return resp, data, nil
}

func apiError(status int, data []byte) error {
	var env httputil.ErrorEnvelope
	if err := json.Unmarshal(data, &env); err != nil || env.Error == "" {
		return &APIError{StatusCode: status, Message: http.StatusText(status), Details: strings.TrimSpace(string(data))}
	}
	return &APIError{StatusCode: status, Message: env.Error, Details: env.Details}
}

func (c *RelayClient) getJSON(ctx context.Context, path string, out any) error {
	req, err := c.newRequest(ctx, http.MethodGet, path, nil)
	if err != nil {
		return err
	}
	resp, data, err := c.do(req)
	if err != nil {
		return err
	}
	if resp.StatusCode != http.StatusOK {
		return apiError(resp.StatusCode, data)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// Predict posts body to /predict-crop-health and returns the scorer's JSON.
func (c *RelayClient) Predict(ctx context.Context, body []byte) (json.RawMessage, error) {
	req, err := c.newRequest(ctx, http.MethodPost, "/predict-crop-health", body)
	if err != nil {
		return nil, err
	}
	resp, data, err := c.do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, apiError(resp.StatusCode, data)
	}
	return json.RawMessage(data), nil
}

// Health calls /healthz.
func (c *RelayClient) Health(ctx context.Context) (map[string]string, error) {
	var out map[string]string
	if err := c.getJSON(ctx, "/healthz", &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Ready calls /readyz. A not-ready relay is reported in the result, not as an error.
func (c *RelayClient) Ready(ctx context.Context) (*Readiness, error) {
	req, err := c.newRequest(ctx, http.MethodGet, "/readyz", nil)
	if err != nil {
		return nil, err
	}
	resp, data, err := c.do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusServiceUnavailable {
		return nil, apiError(resp.StatusCode, data)
	}

	var out Readiness
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("failed to decode readiness: %w", err)
	}
	return &out, nil
}

// Stats calls /api/v1/stats.
func (c *RelayClient) Stats(ctx context.Context) (*Stats, error) {
	var out Stats
	if err := c.getJSON(ctx, "/api/v1/stats", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ListPredictions calls /api/v1/predictions.
func (c *RelayClient) ListPredictions(ctx context.Context, opts ListOptions) (*PredictionPage, error) {
	q := url.Values{}
	if opts.Page > 0 {
		q.Set("page", strconv.Itoa(opts.Page))
	}
	if opts.Limit > 0 {
		q.Set("limit", strconv.Itoa(opts.Limit))
	}
	if opts.Outcome != "" {
		q.Set("outcome", opts.Outcome)
	}
	if opts.Source != "" {
		q.Set("source", opts.Source)
	}

	path := "/api/v1/predictions"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}

	var out PredictionPage
	if err := c.getJSON(ctx, path, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetPrediction calls /api/v1/predictions/{id}.
func (c *RelayClient) GetPrediction(ctx context.Context, id string) (*PredictionRecord, error) {
	var out PredictionRecord
	if err := c.getJSON(ctx, "/api/v1/predictions/"+url.PathEscape(id), &out); err != nil {
		return nil, err
	}
	return &out, nil
}
