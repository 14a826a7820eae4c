// Package service relays prediction requests to the external scorer and
// classifies what comes back.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/bloomwatch/bloomwatch-stack/common/logging"
	"github.com/bloomwatch/bloomwatch-stack/common/middleware"
	"github.com/bloomwatch/bloomwatch-stack/relay/internal/metrics"
	"github.com/bloomwatch/bloomwatch-stack/relay/internal/models"
	"github.com/bloomwatch/bloomwatch-stack/relay/internal/scorer"
)

// StatusClientClosedRequest is recorded when the caller disconnects before
// the scorer finishes. Nothing is sent on the wire.
const StatusClientClosedRequest = 499

// observerTimeout bounds a single observer call.
const observerTimeout = 10 * time.Second

// previewBytes caps how much of each stream is copied into debug logs.
const previewBytes = 512

// Scorer runs the external scoring program.
type Scorer interface {
	Run(ctx context.Context, payload []byte) (*scorer.Outcome, error)
	CommandLine() string
	Timeout() time.Duration
}

// Observer is told about every handled prediction after the response has
// been decided. Observers run off the request path.
type Observer interface {
	Observe(ctx context.Context, rec *models.PredictionRecord) error
}

// NamedObserver lets an observer pick the name it is logged and counted under.
type NamedObserver interface {
	Observer
	Name() string
}

func observerName(obs Observer) string {
	if n, ok := obs.(NamedObserver); ok {
		return n.Name()
	}
	return fmt.Sprintf("%T", obs)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(ctx context.Context, rec *models.PredictionRecord) error

func (f ObserverFunc) Observe(ctx context.Context, rec *models.PredictionRecord) error {
	return f(ctx, rec)
}

type Service struct {
	scorer    Scorer
	observers []Observer
	logger    *logging.Logger
	now       func() time.Time

	wg sync.WaitGroup
}

func NewService(sc Scorer, logger *logging.Logger, observers ...Observer) *Service {
	if logger == nil {
		logger = logging.Default()
	}
	return &Service{
		scorer:    sc,
		observers: observers,
		logger:    logger,
		now:       time.Now,
	}
}

// Predict runs the scorer once for req. Each call spawns its own process;
// nothing is cached or retried.
//
// Failures are always a *ScriptError.
func (s *Service) Predict(ctx context.Context, req Request) (*models.Prediction, error) {
	log := s.logger.WithContext(ctx)
	log.Info("prediction request received",
		logging.Command(s.scorer.CommandLine()),
		logging.Bytes(len(req.Body)),
	)
	log.Debug("prediction input", slog.String("input", preview(req.Body)))

	metrics.ScorerInFlight.Inc()
	out, runErr := s.scorer.Run(ctx, req.Body)
	metrics.ScorerInFlight.Dec()

	var (
		prediction *models.Prediction
		scriptErr  *ScriptError
	)
	if runErr != nil {
		scriptErr = s.runFailure(runErr, out)
	} else {
		s.logStreams(log, out)
		prediction, scriptErr = Classify(out)
	}

	rec := s.record(ctx, req, out, prediction, scriptErr)
	s.logResult(log, rec, scriptErr)
	s.notify(ctx, rec)

	if scriptErr != nil {
		return nil, scriptErr
	}
	return prediction, nil
}

// runFailure classifies errors from the runner itself.
func (s *Service) runFailure(err error, out *scorer.Outcome) *ScriptError {
	exitCode := -1
	if out != nil {
		exitCode = out.ExitCode
	}

	var launchErr *scorer.LaunchError
	switch {
	case errors.As(err, &launchErr):
		return &ScriptError{Kind: KindLaunch, Message: MsgLaunch, Details: launchErr.Err.Error(), ExitCode: exitCode, Err: err}
	case errors.Is(err, scorer.ErrTimeout):
		return &ScriptError{
			Kind:     KindTimeout,
			Message:  MsgTimeout,
			Details:  fmt.Sprintf("script did not finish within %s", s.scorer.Timeout()),
			ExitCode: exitCode,
			Err:      err,
		}
	case errors.Is(err, scorer.ErrCanceled):
		return &ScriptError{Kind: KindCanceled, Message: MsgCanceled, Details: "client disconnected before the script finished", ExitCode: exitCode, Err: err}
	default:
		return &ScriptError{Kind: KindLaunch, Message: MsgLaunch, Details: err.Error(), ExitCode: exitCode, Err: err}
	}
}

func (s *Service) record(ctx context.Context, req Request, out *scorer.Outcome, prediction *models.Prediction, scriptErr *ScriptError) *models.PredictionRecord {
	id, err := uuid.NewV7()
	if err != nil {
		id = uuid.New()
	}

	rec := &models.PredictionRecord{
		ID:        id.String(),
		RequestID: middleware.GetRequestID(ctx),
		Source:    req.Source,
		ClientIP:  req.ClientIP,
		ExitCode:  -1,
		Request:   req.Body,
		CreatedAt: s.now().UTC(),
	}
	if out != nil {
		rec.ExitCode = out.ExitCode
		rec.DurationMS = out.Duration.Milliseconds()
	}

	if scriptErr != nil {
		rec.Outcome = scriptErr.Kind.Outcome()
		rec.StatusCode = http.StatusInternalServerError
		if scriptErr.Kind == KindCanceled {
			rec.StatusCode = StatusClientClosedRequest
		}
		rec.Error = scriptErr.Message
		rec.Details = scriptErr.Details
		return rec
	}

	rec.Outcome = models.OutcomeSuccess
	rec.StatusCode = http.StatusOK
	rec.Response = prediction.Payload
	return rec
}

func (s *Service) logStreams(log *slog.Logger, out *scorer.Outcome) {
	log.Info("scorer finished",
		logging.ExitCode(out.ExitCode),
		logging.Duration(out.Duration),
		slog.Int("stdout_bytes", len(out.Stdout)),
		slog.Int("stderr_bytes", len(out.Stderr)),
	)
	if len(out.Stdout) > 0 {
		log.Debug("scorer stdout", slog.String("stdout", preview(out.Stdout)))
	}
	if len(out.Stderr) > 0 {
		log.Debug("scorer stderr", slog.String("stderr", preview(out.Stderr)))
	}
}

func (s *Service) logResult(log *slog.Logger, rec *models.PredictionRecord, scriptErr *ScriptError) {
	attrs := []any{
		logging.Outcome(string(rec.Outcome)),
		logging.Status(rec.StatusCode),
		logging.ExitCode(rec.ExitCode),
		slog.Int64(logging.FieldDuration, rec.DurationMS),
	}

	switch {
	case scriptErr == nil:
		log.Info("prediction succeeded", attrs...)
	case scriptErr.Kind == KindCanceled:
		log.Warn("prediction canceled", attrs...)
	default:
		attrs = append(attrs, slog.String("message", scriptErr.Message))
		log.Error("prediction failed", attrs...)
	}
}

// notify hands rec to every observer on a goroutine detached from the
// request's cancellation.
func (s *Service) notify(ctx context.Context, rec *models.PredictionRecord) {
	if len(s.observers) == 0 {
		return
	}

	ctx = context.WithoutCancel(ctx)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		for _, obs := range s.observers {
			octx, cancel := context.WithTimeout(ctx, observerTimeout)
			if err := obs.Observe(octx, rec); err != nil {
				name := observerName(obs)
				metrics.ObserverErrors.WithLabelValues(name).Inc()
				s.logger.WithContext(ctx).Warn("prediction observer failed",
					slog.String("observer", name),
					logging.Error(err),
				)
			}
			cancel()
		}
	}()
}

// Close waits for pending observer notifications, giving up when ctx ends.
func (s *Service) Close(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("waiting for prediction observers: %w", ctx.Err())
	}
}

func preview(b []byte) string {
	if len(b) <= previewBytes {
		return string(b)
	}
	return string(b[:previewBytes]) + "...(truncated)"
}
