package seeder

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/bloomwatch/bloomwatch-stack/cli/internal/client"
)

// Predictor is the part of client.RelayClient the runner needs.
type Predictor interface {
	Predict(ctx context.Context, body []byte) (json.RawMessage, error)
}

// OutcomeSuccess is the report key for 200 responses.
const OutcomeSuccess = "success"

// Report summarizes a run. ByOutcome keys are "success" or
// "<status> <envelope error>", e.g. "500 script produced no output".
type Report struct {
	Sent      int
	Malformed int
	ByOutcome map[string]int
	// Transport counts requests that never got an HTTP response.
	Transport int
	Duration  time.Duration
}

// Succeeded is the number of 200 responses.
func (r *Report) Succeeded() int {
	return r.ByOutcome[OutcomeSuccess]
}

// Keys returns ByOutcome keys with success first, then by descending count.
func (r *Report) Keys() []string {
	keys := make([]string, 0, len(r.ByOutcome))
	for k := range r.ByOutcome {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if (keys[i] == OutcomeSuccess) != (keys[j] == OutcomeSuccess) {
			return keys[i] == OutcomeSuccess
		}
		if r.ByOutcome[keys[i]] != r.ByOutcome[keys[j]] {
			return r.ByOutcome[keys[i]] > r.ByOutcome[keys[j]]
		}
		return keys[i] < keys[j]
	})
	return keys
}

// Runner handles the seeding execution.
type Runner struct {
	Config    *Config
	Predictor Predictor
	Generator *Generator

	// Progress, if set, is called after each response.
	Progress func(done, total int)
}

// NewRunner creates a Runner with a Generator built from config.
func NewRunner(config *Config, predictor Predictor) *Runner {
	return &Runner{
		Config:    config,
		Predictor: predictor,
		Generator: NewGenerator(config.Seed, config.ParsedRegions(), config.DateSpread),
	}
}

// Run sends Config.Count requests, at most Config.Concurrency at a time.
// It stops early only when ctx is canceled.
func (r *Runner) Run(ctx context.Context) (*Report, error) {
	start := time.Now()
	report := &Report{ByOutcome: make(map[string]int)}

	var mu sync.Mutex
	done := 0

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.Config.Concurrency)

	for i := 0; i < r.Config.Count; i++ {
		if gctx.Err() != nil {
			break
		}

		var body []byte
		malformed := r.Generator.Chance(r.Config.MalformedRatio)
		if malformed {
			body = r.Generator.Malformed()
		} else {
			var err error
			if body, err = r.Generator.Payload(); err != nil {
				return nil, err
			}
		}

		g.Go(func() error {
			_, err := r.Predictor.Predict(gctx, body)
			key, transport := classify(err)

			mu.Lock()
			report.Sent++
			if malformed {
				report.Malformed++
			}
			if transport {
				report.Transport++
			} else {
				report.ByOutcome[key]++
			}
			done++
			progress := done
			mu.Unlock()

			if r.Progress != nil {
				r.Progress(progress, r.Config.Count)
			}
			return nil
		})

		if r.Config.Interval > 0 && i < r.Config.Count-1 {
			select {
			case <-gctx.Done():
			case <-time.After(r.Config.Interval):
			}
		}
	}

	_ = g.Wait()
	report.Duration = time.Since(start)

	if err := ctx.Err(); err != nil {
		return report, fmt.Errorf("seeding interrupted after %d requests: %w", report.Sent, err)
	}
	return report, nil
}

func classify(err error) (key string, transport bool) {
	if err == nil {
		return OutcomeSuccess, false
	}
	var apiErr *client.APIError
	if errors.As(err, &apiErr) {
		msg := apiErr.Message
		if msg == "" {
			msg = http.StatusText(apiErr.StatusCode)
		}
		return fmt.Sprintf("%d %s", apiErr.StatusCode, msg), false
	}
	return "", true
}
