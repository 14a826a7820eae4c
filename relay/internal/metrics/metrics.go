package metrics

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/bloomwatch/bloomwatch-stack/relay/internal/models"
)

var (
	// Prediction outcomes
	PredictionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bloomwatch_relay_predictions_total",
			Help: "Total number of prediction requests by classified outcome",
		},
		[]string{"outcome"},
	)

	PredictionDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "bloomwatch_relay_prediction_duration_seconds",
			Help:    "Scorer wall time per prediction in seconds",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		},
		[]string{"outcome"},
	)

	// Scorer process metrics
	ScorerInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "bloomwatch_relay_scorer_in_flight",
			Help: "Number of scorer processes currently running",
		},
	)

	ScorerExitCodes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bloomwatch_relay_scorer_exit_codes_total",
			Help: "Scorer exit codes observed",
		},
		[]string{"code"},
	)

	// Request body rejections
	RequestRejections = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bloomwatch_relay_request_rejections_total",
			Help: "Prediction requests rejected before the scorer was run",
		},
		[]string{"reason"},
	)

	// Observer sink metrics
	ObserverErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bloomwatch_relay_observer_errors_total",
			Help: "Failures delivering prediction records to a sink",
		},
		[]string{"sink"},
	)
)

// Observer records every prediction into the Prometheus collectors above.
type Observer struct{}

func (Observer) Observe(_ context.Context, rec *models.PredictionRecord) error {
	outcome := string(rec.Outcome)
	PredictionsTotal.WithLabelValues(outcome).Inc()
	PredictionDuration.WithLabelValues(outcome).Observe((time.Duration(rec.DurationMS) * time.Millisecond).Seconds())
	if rec.ExitCode >= 0 {
		ScorerExitCodes.WithLabelValues(exitCodeLabel(rec.ExitCode)).Inc()
	}
	return nil
}

// exitCodeLabel keeps label cardinality bounded.
func exitCodeLabel(code int) string {
	switch {
	case code == 0:
		return "0"
	case code == 1:
		return "1"
	case code == 2:
		return "2"
	default:
		return "other"
	}
}
