package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/bloomwatch/bloomwatch-stack/common/httputil"
	"github.com/bloomwatch/bloomwatch-stack/common/logging"
	"github.com/bloomwatch/bloomwatch-stack/relay/internal/history"
	"github.com/bloomwatch/bloomwatch-stack/relay/internal/metrics"
	"github.com/bloomwatch/bloomwatch-stack/relay/internal/models"
	"github.com/bloomwatch/bloomwatch-stack/relay/internal/service"
	"github.com/bloomwatch/bloomwatch-stack/relay/internal/stats"
)

// MockPredictor is a mock implementation of Predictor
type MockPredictor struct {
	mock.Mock
}

func (m *MockPredictor) Predict(ctx context.Context, req service.Request) (*models.Prediction, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Prediction), args.Error(1)
}

type fakeStats struct {
	stats *stats.Stats
	err   error
}

func (f *fakeStats) Get(context.Context) (*stats.Stats, error) {
	return f.stats, f.err
}

type fakeHistory struct {
	records    []*models.PredictionRecord
	err        error
	lastFilter history.Filter
	lastLimit  int
	lastOffset int
}

func (f *fakeHistory) Get(_ context.Context, id string) (*models.PredictionRecord, error) {
	if f.err != nil {
		return nil, f.err
	}
	for _, rec := range f.records {
		if rec.ID == id {
			return rec, nil
		}
	}
	return nil, history.ErrNotFound
}

func (f *fakeHistory) List(_ context.Context, filter history.Filter, limit, offset int) ([]*models.PredictionRecord, int, error) {
	f.lastFilter, f.lastLimit, f.lastOffset = filter, limit, offset
	if f.err != nil {
		return nil, 0, f.err
	}
	return f.records, len(f.records), nil
}

func newTestHandler(p Predictor) *Handler {
	return NewHandler(p, 1024, logging.Discard())
}

func decodeEnvelope(t *testing.T, rr *httptest.ResponseRecorder) httputil.ErrorEnvelope {
	t.Helper()
	var env httputil.ErrorEnvelope
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &env), "body: %s", rr.Body.String())
	return env
}

func TestPredictCropHealth_Success(t *testing.T) {
	p := new(MockPredictor)
	p.On("Predict", mock.Anything, mock.MatchedBy(func(req service.Request) bool {
		return string(req.Body) == `{"NDVI":0.5}` && req.Source == "cli" && req.ClientIP == "203.0.113.7"
	})).Return(&models.Prediction{Payload: json.RawMessage(`{"prediction":"Healthy"}`)}, nil)

	req := httptest.NewRequest(http.MethodPost, "/predict-crop-health", strings.NewReader(`{ "NDVI": 0.5 }`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(httputil.SourceHeader, "cli")
	req.Header.Set("X-Forwarded-For", "203.0.113.7")
	rr := httptest.NewRecorder()

	newTestHandler(p).PredictCropHealth(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "application/json", rr.Header().Get("Content-Type"))
	assert.JSONEq(t, `{"prediction":"Healthy"}`, rr.Body.String())
	p.AssertExpectations(t)
}

func TestPredictCropHealth_EmptyBodyIsEmptyObject(t *testing.T) {
	p := new(MockPredictor)
	p.On("Predict", mock.Anything, mock.MatchedBy(func(req service.Request) bool {
		return string(req.Body) == "{}"
	})).Return(&models.Prediction{Payload: json.RawMessage(`{"prediction":"Stressed"}`)}, nil)

	req := httptest.NewRequest(http.MethodPost, "/predict-crop-health", nil)
	rr := httptest.NewRecorder()
	newTestHandler(p).PredictCropHealth(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
	p.AssertExpectations(t)
}

func TestPredictCropHealth_ScriptErrors(t *testing.T) {
	tests := []struct {
		name        string
		err         *service.ScriptError
		wantError   string
		wantDetails string
	}{
		{
			name:        "stderr",
			err:         &service.ScriptError{Kind: service.KindRuntime, Message: service.MsgRuntime, Details: "Traceback: boom\n"},
			wantError:   service.MsgRuntime,
			wantDetails: "Traceback: boom\n",
		},
		{
			name:        "no output",
			err:         &service.ScriptError{Kind: service.KindNoOutput, Message: service.MsgNoOutput, Details: "Exit code: 1."},
			wantError:   service.MsgNoOutput,
			wantDetails: "Exit code: 1.",
		},
		{
			name:        "reported",
			err:         &service.ScriptError{Kind: service.KindReported, Message: service.MsgReported, Details: "model file missing"},
			wantError:   service.MsgReported,
			wantDetails: "model file missing",
		},
		{
			name:        "timeout",
			err:         &service.ScriptError{Kind: service.KindTimeout, Message: service.MsgTimeout, Details: "script did not finish within 30s"},
			wantError:   service.MsgTimeout,
			wantDetails: "script did not finish within 30s",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := new(MockPredictor)
			p.On("Predict", mock.Anything, mock.Anything).Return(nil, tt.err)

			req := httptest.NewRequest(http.MethodPost, "/predict-crop-health", strings.NewReader(`{}`))
			rr := httptest.NewRecorder()
			newTestHandler(p).PredictCropHealth(rr, req)

			assert.Equal(t, http.StatusInternalServerError, rr.Code)
			env := decodeEnvelope(t, rr)
			assert.Equal(t, tt.wantError, env.Error)
			assert.Equal(t, tt.wantDetails, env.Details)
		})
	}
}

func TestPredictCropHealth_CanceledWritesNothing(t *testing.T) {
	p := new(MockPredictor)
	p.On("Predict", mock.Anything, mock.Anything).
		Return(nil, &service.ScriptError{Kind: service.KindCanceled, Message: service.MsgCanceled})

	req := httptest.NewRequest(http.MethodPost, "/predict-crop-health", strings.NewReader(`{}`))
	rr := httptest.NewRecorder()
	newTestHandler(p).PredictCropHealth(rr, req)

	assert.Zero(t, rr.Body.Len())
	assert.False(t, rr.Flushed)
}

func TestPredictCropHealth_UnclassifiedError(t *testing.T) {
	p := new(MockPredictor)
	p.On("Predict", mock.Anything, mock.Anything).Return(nil, errors.New("unexpected"))

	req := httptest.NewRequest(http.MethodPost, "/predict-crop-health", strings.NewReader(`{}`))
	rr := httptest.NewRecorder()
	newTestHandler(p).PredictCropHealth(rr, req)

	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	assert.Equal(t, "internal server error", decodeEnvelope(t, rr).Error)
}

func TestPredictCropHealth_Rejections(t *testing.T) {
	tests := []struct {
		name       string
		method     string
		body       string
		wantStatus int
		wantError  string
		reason     string
	}{
		{name: "malformed json", method: http.MethodPost, body: `{"NDVI":`, wantStatus: http.StatusBadRequest, wantError: "invalid request body", reason: "invalid_json"},
		{name: "array body", method: http.MethodPost, body: `[1,2]`, wantStatus: http.StatusBadRequest, wantError: "invalid request body", reason: "invalid_json"},
		{name: "too large", method: http.MethodPost, body: `{"pad":"` + strings.Repeat("x", 2048) + `"}`, wantStatus: http.StatusRequestEntityTooLarge, wantError: "request body too large", reason: "too_large"},
		{name: "wrong method", method: http.MethodPut, body: `{}`, wantStatus: http.StatusMethodNotAllowed, wantError: "method not allowed"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := new(MockPredictor)
			var before float64
			if tt.reason != "" {
				before = testutil.ToFloat64(metrics.RequestRejections.WithLabelValues(tt.reason))
			}

			req := httptest.NewRequest(tt.method, "/predict-crop-health", strings.NewReader(tt.body))
			rr := httptest.NewRecorder()
			newTestHandler(p).PredictCropHealth(rr, req)

			assert.Equal(t, tt.wantStatus, rr.Code)
			assert.Equal(t, tt.wantError, decodeEnvelope(t, rr).Error)
			p.AssertNotCalled(t, "Predict", mock.Anything, mock.Anything)
			if tt.reason != "" {
				assert.Equal(t, before+1, testutil.ToFloat64(metrics.RequestRejections.WithLabelValues(tt.reason)))
			}
		})
	}
}

func TestHealthCheck(t *testing.T) {
	rr := httptest.NewRecorder()
	newTestHandler(nil).HealthCheck(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"status":"healthy"}`, rr.Body.String())
}

func TestReadyz(t *testing.T) {
	t.Run("all checks pass", func(t *testing.T) {
		h := newTestHandler(nil)
		h.AddReadinessCheck("scorer", func(context.Context) error { return nil })
		h.AddReadinessCheck("redis", func(context.Context) error { return nil })

		rr := httptest.NewRecorder()
		h.Readyz(rr, httptest.NewRequest(http.MethodGet, "/readyz", nil))

		assert.Equal(t, http.StatusOK, rr.Code)
		assert.JSONEq(t, `{"status":"ready","checks":{"scorer":"ok","redis":"ok"}}`, rr.Body.String())
	})

	t.Run("failing check", func(t *testing.T) {
		h := newTestHandler(nil)
		h.AddReadinessCheck("scorer", func(context.Context) error { return errors.New("script not found") })
		h.AddReadinessCheck("nats", func(context.Context) error { return nil })

		rr := httptest.NewRecorder()
		h.Readyz(rr, httptest.NewRequest(http.MethodGet, "/readyz", nil))

		assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
		assert.JSONEq(t, `{"status":"not_ready","checks":{"scorer":"script not found","nats":"ok"}}`, rr.Body.String())
	})
}

func TestStats(t *testing.T) {
	t.Run("disabled", func(t *testing.T) {
		h := newTestHandler(nil)
		assert.False(t, h.HasStats())

		rr := httptest.NewRecorder()
		h.Stats(rr, httptest.NewRequest(http.MethodGet, "/api/v1/stats", nil))
		assert.Equal(t, http.StatusNotFound, rr.Code)
	})

	t.Run("enabled", func(t *testing.T) {
		h := newTestHandler(nil).WithStats(&fakeStats{stats: &stats.Stats{
			Total:     3,
			ByOutcome: map[string]int64{"success": 2, "no_output": 1},
		}})
		assert.True(t, h.HasStats())

		rr := httptest.NewRecorder()
		h.Stats(rr, httptest.NewRequest(http.MethodGet, "/api/v1/stats", nil))

		require.Equal(t, http.StatusOK, rr.Code)
		var got stats.Stats
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &got))
		assert.Equal(t, int64(3), got.Total)
		assert.Equal(t, int64(2), got.ByOutcome["success"])
	})

	t.Run("store failure", func(t *testing.T) {
		h := newTestHandler(nil).WithStats(&fakeStats{err: errors.New("redis down")})

		rr := httptest.NewRecorder()
		h.Stats(rr, httptest.NewRequest(http.MethodGet, "/api/v1/stats", nil))
		assert.Equal(t, http.StatusInternalServerError, rr.Code)
		assert.Equal(t, "failed to retrieve stats", decodeEnvelope(t, rr).Error)
	})
}

func TestListPredictions(t *testing.T) {
	created := time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)
	store := &fakeHistory{records: []*models.PredictionRecord{
		{ID: "one", Outcome: models.OutcomeSuccess, StatusCode: 200, CreatedAt: created},
		{ID: "two", Outcome: models.OutcomeNoOutput, StatusCode: 500, CreatedAt: created},
	}}
	h := newTestHandler(nil).WithHistory(store)

	rr := httptest.NewRecorder()
	h.ListPredictions(rr, httptest.NewRequest(http.MethodGet, "/api/v1/predictions?page=3&limit=10&outcome=no_output&source=cli", nil))

	require.Equal(t, http.StatusOK, rr.Code)
	var page models.PredictionPage
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &page))
	assert.Len(t, page.Data, 2)
	assert.Equal(t, models.Pagination{Page: 3, Limit: 10, Total: 2}, page.Pagination)

	assert.Equal(t, history.Filter{Outcome: models.OutcomeNoOutput, Source: "cli"}, store.lastFilter)
	assert.Equal(t, 10, store.lastLimit)
	assert.Equal(t, 20, store.lastOffset)
}

func TestListPredictions_Errors(t *testing.T) {
	tests := []struct {
		name       string
		handler    *Handler
		url        string
		wantStatus int
	}{
		{name: "disabled", handler: newTestHandler(nil), url: "/api/v1/predictions", wantStatus: http.StatusNotFound},
		{name: "bad outcome", handler: newTestHandler(nil).WithHistory(&fakeHistory{}), url: "/api/v1/predictions?outcome=exploded", wantStatus: http.StatusBadRequest},
		{name: "store failure", handler: newTestHandler(nil).WithHistory(&fakeHistory{err: errors.New("db down")}), url: "/api/v1/predictions", wantStatus: http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := httptest.NewRecorder()
			tt.handler.ListPredictions(rr, httptest.NewRequest(http.MethodGet, tt.url, nil))
			assert.Equal(t, tt.wantStatus, rr.Code)
		})
	}
}

func TestListPredictions_EmptyIsArray(t *testing.T) {
	h := newTestHandler(nil).WithHistory(&fakeHistory{})

	rr := httptest.NewRecorder()
	h.ListPredictions(rr, httptest.NewRequest(http.MethodGet, "/api/v1/predictions", nil))

	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `"data":[]`)
}

func TestGetPrediction(t *testing.T) {
	const known = "0193f1e4-7c1a-7000-8000-000000000001"
	store := &fakeHistory{records: []*models.PredictionRecord{{ID: known, Outcome: models.OutcomeSuccess}}}

	tests := []struct {
		name       string
		store      *fakeHistory
		id         string
		wantStatus int
	}{
		{name: "found", store: store, id: known, wantStatus: http.StatusOK},
		{name: "missing", store: store, id: "0193f1e4-7c1a-7000-8000-0000000000ff", wantStatus: http.StatusNotFound},
		{name: "not a uuid", store: &fakeHistory{err: errors.New("invalid input syntax for type uuid")}, id: "not-a-uuid", wantStatus: http.StatusNotFound},
		{name: "store failure", store: &fakeHistory{err: errors.New("db down")}, id: known, wantStatus: http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newTestHandler(nil).WithHistory(tt.store)
			req := httptest.NewRequest(http.MethodGet, "/api/v1/predictions/"+tt.id, nil)
			req.SetPathValue("id", tt.id)
			rr := httptest.NewRecorder()

			h.GetPrediction(rr, req)
			assert.Equal(t, tt.wantStatus, rr.Code)
		})
	}
}
