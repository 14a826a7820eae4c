// Package stats keeps Redis-backed prediction outcome counters.
//
// Several relay instances may write concurrently; any service can read.
//
// Redis key structure ({p} is the configured prefix):
//
//	{p}:stats                  - Hash: total, one field per outcome, duration_ms_total, last_*
//	{p}:hourly:{YYYYMMDDHH}    - Hash of outcome -> count for that hour (expires 48h)
//	{p}:daily:{YYYYMMDD}       - Hash of outcome -> count for that day (expires 7d)
//	{p}:clients:{YYYYMMDD}     - Set of client IPs seen that day (expires 7d)
//	{p}:instances              - Hash of relay instance -> last seen unix time
package stats

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/bloomwatch/bloomwatch-stack/relay/internal/models"
)

const (
	hourlyTTL   = 48 * time.Hour
	dailyTTL    = 7 * 24 * time.Hour
	instanceTTL = 24 * time.Hour

	fieldTotal         = "total"
	fieldDurationTotal = "duration_ms_total"
	fieldLastAt        = "last_prediction_at"
	fieldLastOutcome   = "last_outcome"
)

// DefaultPrefix namespaces every key.
const DefaultPrefix = "bloomwatch"

// Stats is a snapshot of prediction outcome counters.
type Stats struct {
	Total              int64             `json:"total"`
	ByOutcome          map[string]int64  `json:"by_outcome"`
	SuccessRate        float64           `json:"success_rate"`
	AvgDurationMS      float64           `json:"avg_duration_ms"`
	LastPredictionAt   *time.Time        `json:"last_prediction_at,omitempty"`
	LastOutcome        string            `json:"last_outcome,omitempty"`
	LastHour           int64             `json:"last_hour"`
	Last24h            int64             `json:"last_24h"`
	Today              map[string]int64  `json:"today"`
	UniqueClientsToday int64             `json:"unique_clients_today"`
	Instances          map[string]string `json:"instances,omitempty"`
	RetrievedAt        time.Time         `json:"retrieved_at"`
}

// Client records and reads outcome statistics.
type Client struct {
	redis      *redis.Client
	prefix     string
	instanceID string
	now        func() time.Time
}

// NewClient connects to redisURL and pings it. instanceID should be unique
// per relay process (hostname, pod name).
func NewClient(redisURL, prefix, instanceID string) (*Client, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis URL: %w", err)
	}

	client := redis.NewClient(opt)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis connection failed: %w", err)
	}

	return NewClientFromRedis(client, prefix, instanceID), nil
}

// NewClientFromRedis wraps an existing connection.
func NewClientFromRedis(client *redis.Client, prefix, instanceID string) *Client {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &Client{
		redis:      client,
		prefix:     prefix,
		instanceID: instanceID,
		now:        time.Now,
	}
}

func (c *Client) statsKey() string {
	return c.prefix + ":stats"
}

func (c *Client) hourlyKey(t time.Time) string {
	return c.prefix + ":hourly:" + t.UTC().Format("2006010215")
}

func (c *Client) dailyKey(t time.Time) string {
	return c.prefix + ":daily:" + t.UTC().Format("20060102")
}

func (c *Client) clientsKey(t time.Time) string {
	return c.prefix + ":clients:" + t.UTC().Format("20060102")
}

func (c *Client) instancesKey() string {
	return c.prefix + ":instances"
}

// Record writes a single prediction straight to Redis.
func (c *Client) Record(ctx context.Context, rec *models.PredictionRecord) error {
	batch := NewBatch()
	batch.Add(rec)
	return c.FlushBatch(ctx, batch)
}

// FlushBatch writes accumulated counters in one pipeline.
func (c *Client) FlushBatch(ctx context.Context, batch *Batch) error {
	if batch.Empty() {
		return nil
	}

	now := c.now()
	hourlyKey := c.hourlyKey(now)
	dailyKey := c.dailyKey(now)

	pipe := c.redis.Pipeline()

	statsKey := c.statsKey()
	var total int64
	for outcome, n := range batch.Counts {
		total += n
		pipe.HIncrBy(ctx, statsKey, string(outcome), n)
		pipe.HIncrBy(ctx, hourlyKey, string(outcome), n)
		pipe.HIncrBy(ctx, dailyKey, string(outcome), n)
	}
	pipe.HIncrBy(ctx, statsKey, fieldTotal, total)
	pipe.HIncrBy(ctx, statsKey, fieldDurationTotal, batch.DurationMS)
	pipe.HSet(ctx, statsKey, map[string]any{
		fieldLastAt:      strconv.FormatInt(batch.LastAt.Unix(), 10),
		fieldLastOutcome: string(batch.LastOutcome),
	})

	pipe.Expire(ctx, hourlyKey, hourlyTTL)
	pipe.Expire(ctx, dailyKey, dailyTTL)

	if len(batch.Clients) > 0 {
		clientsKey := c.clientsKey(now)
		ips := make([]any, 0, len(batch.Clients))
		for ip := range batch.Clients {
			ips = append(ips, ip)
		}
		pipe.SAdd(ctx, clientsKey, ips...)
		pipe.Expire(ctx, clientsKey, dailyTTL)
	}

	if c.instanceID != "" {
		pipe.HSet(ctx, c.instancesKey(), c.instanceID, strconv.FormatInt(now.Unix(), 10))
		pipe.Expire(ctx, c.instancesKey(), instanceTTL)
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to flush stats batch: %w", err)
	}
	return nil
}

// Get reads the current snapshot.
func (c *Client) Get(ctx context.Context) (*Stats, error) {
	now := c.now()

	pipe := c.redis.Pipeline()
	statsCmd := pipe.HGetAll(ctx, c.statsKey())
	todayCmd := pipe.HGetAll(ctx, c.dailyKey(now))
	clientsCmd := pipe.SCard(ctx, c.clientsKey(now))
	instancesCmd := pipe.HGetAll(ctx, c.instancesKey())

	hourlyCmds := make([]*redis.MapStringStringCmd, 24)
	for i := range hourlyCmds {
		hourlyCmds[i] = pipe.HGetAll(ctx, c.hourlyKey(now.Add(-time.Duration(i)*time.Hour)))
	}

	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("failed to get stats: %w", err)
	}

	s := &Stats{
		ByOutcome:   make(map[string]int64, len(models.Outcomes)),
		Today:       make(map[string]int64, len(models.Outcomes)),
		Instances:   make(map[string]string),
		RetrievedAt: now.UTC(),
	}
	for _, o := range models.Outcomes {
		s.ByOutcome[string(o)] = 0
	}

	if fields, err := statsCmd.Result(); err == nil {
		for _, o := range models.Outcomes {
			s.ByOutcome[string(o)] = parseInt(fields[string(o)])
		}
		s.Total = parseInt(fields[fieldTotal])
		if s.Total > 0 {
			s.SuccessRate = float64(s.ByOutcome[string(models.OutcomeSuccess)]) / float64(s.Total)
			s.AvgDurationMS = float64(parseInt(fields[fieldDurationTotal])) / float64(s.Total)
		}
		if unix := parseInt(fields[fieldLastAt]); unix > 0 {
			t := time.Unix(unix, 0).UTC()
			s.LastPredictionAt = &t
		}
		s.LastOutcome = fields[fieldLastOutcome]
	}

	if fields, err := todayCmd.Result(); err == nil {
		for outcome, v := range fields {
			s.Today[outcome] = parseInt(v)
		}
	}

	for i, cmd := range hourlyCmds {
		fields, err := cmd.Result()
		if err != nil {
			continue
		}
		var sum int64
		for _, v := range fields {
			sum += parseInt(v)
		}
		if i == 0 {
			s.LastHour = sum
		}
		s.Last24h += sum
	}

	if n, err := clientsCmd.Result(); err == nil {
		s.UniqueClientsToday = n
	}

	if instances, err := instancesCmd.Result(); err == nil {
		for id, lastSeen := range instances {
			if unix := parseInt(lastSeen); unix > 0 {
				s.Instances[id] = time.Unix(unix, 0).UTC().Format(time.RFC3339)
			}
		}
	}

	return s, nil
}

// Ping checks the Redis connection.
func (c *Client) Ping(ctx context.Context) error {
	return c.redis.Ping(ctx).Err()
}

// Close closes the Redis connection.
func (c *Client) Close() error {
	return c.redis.Close()
}

func parseInt(s string) int64 {
	n, _ := strconv.ParseInt(s, 10, 64)
	return n
}
