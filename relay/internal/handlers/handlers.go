// Package handlers exposes the relay over HTTP.
package handlers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/bloomwatch/bloomwatch-stack/common/httputil"
	"github.com/bloomwatch/bloomwatch-stack/common/logging"
	"github.com/bloomwatch/bloomwatch-stack/relay/internal/history"
	"github.com/bloomwatch/bloomwatch-stack/relay/internal/metrics"
	"github.com/bloomwatch/bloomwatch-stack/relay/internal/models"
	"github.com/bloomwatch/bloomwatch-stack/relay/internal/service"
	"github.com/bloomwatch/bloomwatch-stack/relay/internal/stats"
)

const (
	defaultPageLimit = 50
	maxPageLimit     = 500
	readinessTimeout = 3 * time.Second
)

// Predictor runs one prediction. *service.Service implements it.
type Predictor interface {
	Predict(ctx context.Context, req service.Request) (*models.Prediction, error)
}

// StatsReader returns the current outcome counters.
type StatsReader interface {
	Get(ctx context.Context) (*stats.Stats, error)
}

// HistoryReader reads stored predictions.
type HistoryReader interface {
	Get(ctx context.Context, id string) (*models.PredictionRecord, error)
	List(ctx context.Context, filter history.Filter, limit, offset int) ([]*models.PredictionRecord, int, error)
}

// ReadinessCheck is one dependency probed by /readyz.
type ReadinessCheck struct {
	Name  string
	Check func(ctx context.Context) error
}

type Handler struct {
	predictor    Predictor
	maxBodyBytes int64
	logger       *logging.Logger

	stats   StatsReader
	history HistoryReader
	checks  []ReadinessCheck
}

func NewHandler(predictor Predictor, maxBodyBytes int64, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{
		predictor:    predictor,
		maxBodyBytes: maxBodyBytes,
		logger:       logger,
	}
}

// WithStats enables GET /api/v1/stats.
func (h *Handler) WithStats(s StatsReader) *Handler {
	h.stats = s
	return h
}

// WithHistory enables the prediction history endpoints.
func (h *Handler) WithHistory(r HistoryReader) *Handler {
	h.history = r
	return h
}

// AddReadinessCheck registers a dependency for /readyz.
func (h *Handler) AddReadinessCheck(name string, check func(ctx context.Context) error) {
	h.checks = append(h.checks, ReadinessCheck{Name: name, Check: check})
}

// HasStats reports whether the stats endpoint is backed by a store.
func (h *Handler) HasStats() bool { return h.stats != nil }

// HasHistory reports whether the history endpoints are backed by a store.
func (h *Handler) HasHistory() bool { return h.history != nil }

// PredictCropHealth handles POST /predict-crop-health.
func (h *Handler) PredictCropHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		httputil.WriteError(w, http.StatusMethodNotAllowed, "method not allowed", r.Method+" is not supported")
		return
	}

	raw, err := io.ReadAll(http.MaxBytesReader(w, r.Body, h.maxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			metrics.RequestRejections.WithLabelValues("too_large").Inc()
			httputil.WriteError(w, http.StatusRequestEntityTooLarge, "request body too large",
				fmt.Sprintf("request body exceeds %d bytes", tooLarge.Limit))
			return
		}
		metrics.RequestRejections.WithLabelValues("read_error").Inc()
		httputil.WriteError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}

	body, err := service.ParseRequestBody(raw)
	if err != nil {
		metrics.RequestRejections.WithLabelValues("invalid_json").Inc()
		h.logger.WithContext(r.Context()).Info("rejected prediction request", logging.Error(err))
		httputil.WriteError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}

	prediction, err := h.predictor.Predict(r.Context(), service.Request{
		Body:     body,
		Source:   string(httputil.RequestSource(r)),
		ClientIP: httputil.GetClientIP(r),
	})
	if err != nil {
		scriptErr, ok := service.AsScriptError(err)
		if !ok {
			h.logger.WithContext(r.Context()).Error("unclassified prediction failure", logging.Error(err))
			httputil.WriteError(w, http.StatusInternalServerError, "internal server error", err.Error())
			return
		}
		if scriptErr.Kind == service.KindCanceled {
			// The client is gone; there is nobody to answer.
			return
		}
		httputil.WriteError(w, http.StatusInternalServerError, scriptErr.Message, scriptErr.Details)
		return
	}

	httputil.WriteRawJSON(w, http.StatusOK, prediction.Payload)
}

// HealthCheck handles GET /healthz.
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

// Readyz handles GET /readyz. Every registered check must pass.
func (h *Handler) Readyz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), readinessTimeout)
	defer cancel()

	status := http.StatusOK
	results := make(map[string]string, len(h.checks))
	for _, c := range h.checks {
		if err := c.Check(ctx); err != nil {
			status = http.StatusServiceUnavailable
			results[c.Name] = err.Error()
			h.logger.WithContext(r.Context()).Warn("readiness check failed",
				slog.String("check", c.Name), logging.Error(err))
			continue
		}
		results[c.Name] = "ok"
	}

	state := "ready"
	if status != http.StatusOK {
		state = "not_ready"
	}
	httputil.WriteJSON(w, status, map[string]any{
		"status": state,
		"checks": results,
	})
}

// Stats handles GET /api/v1/stats.
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	if h.stats == nil {
		httputil.WriteError(w, http.StatusNotFound, "stats are not enabled", "redis stats are disabled on this relay")
		return
	}

	s, err := h.stats.Get(r.Context())
	if err != nil {
		h.logger.WithContext(r.Context()).Error("failed to read stats", logging.Error(err))
		httputil.WriteError(w, http.StatusInternalServerError, "failed to retrieve stats", err.Error())
		return
	}
	httputil.WriteJSON(w, http.StatusOK, s)
}

// ListPredictions handles GET /api/v1/predictions?page=&limit=&outcome=&source=.
func (h *Handler) ListPredictions(w http.ResponseWriter, r *http.Request) {
	if h.history == nil {
		httputil.WriteError(w, http.StatusNotFound, "history is not enabled", "prediction history is disabled on this relay")
		return
	}

	filter := history.Filter{
		Outcome: models.Outcome(r.URL.Query().Get("outcome")),
		Source:  r.URL.Query().Get("source"),
	}
	if filter.Outcome != "" && !filter.Outcome.Valid() {
		httputil.WriteError(w, http.StatusBadRequest, "invalid outcome filter", fmt.Sprintf("unknown outcome %q", filter.Outcome))
		return
	}

	page := httputil.ParsePagination(r, defaultPageLimit, maxPageLimit)
	records, total, err := h.history.List(r.Context(), filter, page.Limit, page.Offset())
	if err != nil {
		h.logger.WithContext(r.Context()).Error("failed to list predictions", logging.Error(err))
		httputil.WriteError(w, http.StatusInternalServerError, "failed to list predictions", err.Error())
		return
	}
	if records == nil {
		records = []*models.PredictionRecord{}
	}

	httputil.WriteJSON(w, http.StatusOK, models.PredictionPage{
		Data: records,
		Pagination: models.Pagination{
			Page:  page.Page,
			Limit: page.Limit,
			Total: total,
		},
	})
}

// GetPrediction handles GET /api/v1/predictions/{id}.
func (h *Handler) GetPrediction(w http.ResponseWriter, r *http.Request) {
	if h.history == nil {
		httputil.WriteError(w, http.StatusNotFound, "history is not enabled", "prediction history is disabled on this relay")
		return
	}

	id := r.PathValue("id")
	if id == "" {
		httputil.WriteError(w, http.StatusBadRequest, "prediction id required", "")
		return
	}

	if _, err := uuid.Parse(id); err != nil {
		httputil.WriteError(w, http.StatusNotFound, "prediction not found", id)
		return
	}

	rec, err := h.history.Get(r.Context(), id)
	if errors.Is(err, history.ErrNotFound) {
		httputil.WriteError(w, http.StatusNotFound, "prediction not found", id)
		return
	}
	if err != nil {
		h.logger.WithContext(r.Context()).Error("failed to get prediction", slog.String("id", id), logging.Error(err))
		httputil.WriteError(w, http.StatusInternalServerError, "failed to get prediction", err.Error())
		return
	}
	httputil.WriteJSON(w, http.StatusOK, rec)
}
