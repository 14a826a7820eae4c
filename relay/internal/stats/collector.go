package stats

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/bloomwatch/bloomwatch-stack/relay/internal/models"
)

const (
	// defaultMaxFailedFlushes is how many consecutive failed flushes a batch
	// survives before it is dropped.
	defaultMaxFailedFlushes = 30
	// defaultMaxRetainedClients caps the distinct client IPs kept across
	// failed flushes.
	defaultMaxRetainedClients = 100_000
)

// Collector batches prediction records in memory and flushes them to Redis
// periodically. Safe for concurrent use.
type Collector struct {
	client        *Client
	flushInterval time.Duration
	logger        *slog.Logger

	mu                 sync.Mutex
	batch              *Batch
	failures           int
	dropped            int64
	maxFailedFlushes   int
	maxRetainedClients int

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewCollector starts a collector that flushes every flushInterval.
func NewCollector(client *Client, flushInterval time.Duration, logger *slog.Logger) *Collector {
	if logger == nil {
		logger = slog.Default()
	}
	if flushInterval <= 0 {
		flushInterval = 10 * time.Second
	}

	ctx, cancel := context.WithCancel(context.Background())

	c := &Collector{
		client:        client,
		flushInterval: flushInterval,
		logger:        logger,
		batch:         NewBatch(),

		maxFailedFlushes:   defaultMaxFailedFlushes,
		maxRetainedClients: defaultMaxRetainedClients,

		ctx:    ctx,
		cancel: cancel,
	}

	c.wg.Add(1)
	go c.flushLoop()

	return c
}

// Name identifies the collector as a prediction observer.
func (c *Collector) Name() string {
	return "redis_stats"
}

// Observe queues rec for the next flush.
func (c *Collector) Observe(_ context.Context, rec *models.PredictionRecord) error {
	c.mu.Lock()
	c.batch.Add(rec)
	c.mu.Unlock()
	return nil
}

func (c *Collector) flushLoop() {
	defer c.wg.Done()

	ticker := time.NewTicker(c.flushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.ctx.Done():
			c.flush()
			return
		case <-ticker.C:
			c.flush()
		}
	}
}

func (c *Collector) flush() {
	c.mu.Lock()
	batch := c.batch
	c.batch = NewBatch()
	c.mu.Unlock()

	if batch.Empty() {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := c.client.FlushBatch(ctx, batch); err != nil {
		c.logger.Error("failed to flush prediction stats",
			"predictions", batch.Total(),
			"error", err,
		)
		c.requeue(batch)
		return
	}

	c.mu.Lock()
	c.failures = 0
	c.mu.Unlock()

	c.logger.Debug("flushed prediction stats", "predictions", batch.Total())
}

// requeue merges a batch whose flush failed back into the pending batch,
// dropping everything pending once Redis has been unreachable for too long or
// the retained client set grows past its cap.
func (c *Collector) requeue(batch *Batch) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.failures++
	c.batch.Merge(batch)

	if c.failures < c.maxFailedFlushes && len(c.batch.Clients) <= c.maxRetainedClients {
		return
	}

	lost := c.batch.Total()
	c.dropped += lost
	c.logger.Warn("dropping unflushed prediction stats",
		"predictions", lost,
		"clients", len(c.batch.Clients),
		"failed_flushes", c.failures,
	)
	c.batch = NewBatch()
	c.failures = 0
}

// FlushNow forces an immediate flush.
func (c *Collector) FlushNow() {
	c.flush()
}

// Pending is the number of predictions not yet flushed.
func (c *Collector) Pending() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.batch.Total()
}

// Dropped is the number of predictions discarded after repeated flush failures.
func (c *Collector) Dropped() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.dropped
}

// Stop ends the flush loop after a final flush.
func (c *Collector) Stop() {
	c.cancel()
	c.wg.Wait()
}
