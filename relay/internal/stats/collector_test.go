package stats

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bloomwatch/bloomwatch-stack/relay/internal/models"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestCollector_FlushNow(t *testing.T) {
	_, client := setupTestRedis(t)
	c := NewClientFromRedis(client, "", "relay-a")
	col := NewCollector(c, time.Hour, discardLogger())
	defer col.Stop()

	ctx := context.Background()
	for i := 0; i < 5; i++ {
		require.NoError(t, col.Observe(ctx, rec(models.OutcomeSuccess, "10.0.0.1", 50, time.Now())))
	}
	assert.Equal(t, int64(5), col.Pending())

	col.FlushNow()
	assert.Zero(t, col.Pending())

	s, err := c.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(5), s.Total)
}

func TestCollector_StopFlushesRemaining(t *testing.T) {
	_, client := setupTestRedis(t)
	c := NewClientFromRedis(client, "", "relay-a")
	col := NewCollector(c, time.Hour, discardLogger())

	require.NoError(t, col.Observe(context.Background(), rec(models.OutcomeTimeout, "", 30000, time.Now())))
	col.Stop()

	s, err := c.Get(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), s.ByOutcome["timeout"])
}

func TestCollector_PeriodicFlush(t *testing.T) {
	_, client := setupTestRedis(t)
	c := NewClientFromRedis(client, "", "relay-a")
	col := NewCollector(c, 20*time.Millisecond, discardLogger())
	defer col.Stop()

	require.NoError(t, col.Observe(context.Background(), rec(models.OutcomeSuccess, "", 1, time.Now())))

	assert.Eventually(t, func() bool {
		s, err := c.Get(context.Background())
		return err == nil && s.Total == 1
	}, 2*time.Second, 20*time.Millisecond)
}

func TestCollector_RequeuesOnFailure(t *testing.T) {
	mr, client := setupTestRedis(t)
	c := NewClientFromRedis(client, "", "relay-a")
	col := NewCollector(c, time.Hour, discardLogger())
	defer col.Stop()

	require.NoError(t, col.Observe(context.Background(), rec(models.OutcomeSuccess, "", 1, time.Now())))

	mr.SetError("LOADING")
	col.FlushNow()
	assert.Equal(t, int64(1), col.Pending(), "failed batch is kept for the next flush")

	mr.SetError("")
	col.FlushNow()
	assert.Zero(t, col.Pending())
}

func TestCollector_DropsAfterRepeatedFailures(t *testing.T) {
	tests := []struct {
		name        string
		maxFailures int
		maxClients  int
		observe     int
		flushes     int
		wantPending int64
		wantDropped int64
	}{
		{name: "kept below failure limit", maxFailures: 3, maxClients: 100, observe: 2, flushes: 2, wantPending: 2, wantDropped: 0},
		{name: "dropped at failure limit", maxFailures: 3, maxClients: 100, observe: 2, flushes: 3, wantPending: 0, wantDropped: 2},
		{name: "dropped when client set overflows", maxFailures: 100, maxClients: 4, observe: 5, flushes: 1, wantPending: 0, wantDropped: 5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mr, client := setupTestRedis(t)
			col := NewCollector(NewClientFromRedis(client, "", "relay-a"), time.Hour, discardLogger())
			defer col.Stop()
			col.mu.Lock()
			col.maxFailedFlushes = tt.maxFailures
			col.maxRetainedClients = tt.maxClients
			col.mu.Unlock()

			mr.SetError("LOADING")
			for i := 0; i < tt.observe; i++ {
				ip := fmt.Sprintf("10.0.0.%d", i+1)
				require.NoError(t, col.Observe(context.Background(), rec(models.OutcomeSuccess, ip, 1, time.Now())))
			}
			for i := 0; i < tt.flushes; i++ {
				col.FlushNow()
			}

			assert.Equal(t, tt.wantPending, col.Pending())
			assert.Equal(t, tt.wantDropped, col.Dropped())
		})
	}
}

func TestCollector_SuccessResetsFailures(t *testing.T) {
	mr, client := setupTestRedis(t)
	col := NewCollector(NewClientFromRedis(client, "", "relay-a"), time.Hour, discardLogger())
	defer col.Stop()
	col.mu.Lock()
	col.maxFailedFlushes = 2
	col.mu.Unlock()
	ctx := context.Background()

	require.NoError(t, col.Observe(ctx, rec(models.OutcomeSuccess, "", 1, time.Now())))
	mr.SetError("LOADING")
	col.FlushNow()
	mr.SetError("")
	col.FlushNow()
	require.Zero(t, col.Pending())

	require.NoError(t, col.Observe(ctx, rec(models.OutcomeSuccess, "", 1, time.Now())))
	mr.SetError("LOADING")
	col.FlushNow()
	assert.Equal(t, int64(1), col.Pending())
	assert.Zero(t, col.Dropped())
}

func TestCollector_Name(t *testing.T) {
	_, client := setupTestRedis(t)
	col := NewCollector(NewClientFromRedis(client, "", ""), time.Hour, nil)
	defer col.Stop()
	assert.Equal(t, "redis_stats", col.Name())
}
