package history

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/bloomwatch/bloomwatch-stack/common/database"
	"github.com/bloomwatch/bloomwatch-stack/relay/internal/models"
	"github.com/bloomwatch/bloomwatch-stack/relay/migrations"
)

// setupTestDatabase starts PostgreSQL in a container and applies the embedded migrations.
func setupTestDatabase(t *testing.T) *PostgresRepository {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping PostgreSQL integration test in short mode")
	}

	ctx := context.Background()

	container, err := postgres.Run(ctx,
		"postgres:17-alpine",
		postgres.WithDatabase("bloomwatch_test"),
		postgres.WithUsername("test"),
		postgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second)),
	)
	require.NoError(t, err, "failed to start PostgreSQL container")
	t.Cleanup(func() {
		if err := container.Terminate(ctx); err != nil {
			t.Logf("failed to terminate container: %v", err)
		}
	})

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	require.NoError(t, database.Migrate(connStr, migrations.FS, "."))
	// Second run is a no-op
	require.NoError(t, database.Migrate(connStr, migrations.FS, "."))

	pool, err := database.NewPool(ctx, connStr, 5, 1)
	require.NoError(t, err)

	repo := NewPostgresRepository(pool)
	t.Cleanup(repo.Close)
	return repo
}

func newRecord(outcome models.Outcome, at time.Time) *models.PredictionRecord {
	rec := &models.PredictionRecord{
		ID:         uuid.Must(uuid.NewV7()).String(),
		RequestID:  uuid.NewString(),
		Source:     "web",
		ClientIP:   "203.0.113.5",
		Outcome:    outcome,
		StatusCode: 500,
		ExitCode:   1,
		DurationMS: 420,
		Request:    json.RawMessage(`{"NDVI":0.5,"region_West_Africa":1}`),
		CreatedAt:  at.UTC().Truncate(time.Microsecond),
	}
	if outcome == models.OutcomeSuccess {
		rec.StatusCode = 200
		rec.ExitCode = 0
		rec.Response = json.RawMessage(`{"prediction":"Healthy"}`)
	} else {
		rec.Error = "script produced no output"
		rec.Details = "Exit code: 1."
	}
	return rec
}

func TestPostgresRepository(t *testing.T) {
	repo := setupTestDatabase(t)
	ctx := context.Background()
	base := time.Now().Add(-time.Hour)

	success := newRecord(models.OutcomeSuccess, base)
	failure := newRecord(models.OutcomeNoOutput, base.Add(time.Minute))
	cli := newRecord(models.OutcomeSuccess, base.Add(2*time.Minute))
	cli.Source = "cli"
	cli.RequestID = ""
	cli.ClientIP = ""

	for _, rec := range []*models.PredictionRecord{success, failure, cli} {
		require.NoError(t, repo.Observe(ctx, rec))
	}

	t.Run("get success record", func(t *testing.T) {
		got, err := repo.Get(ctx, success.ID)
		require.NoError(t, err)
		assert.Equal(t, success.ID, got.ID)
		assert.Equal(t, models.OutcomeSuccess, got.Outcome)
		assert.JSONEq(t, string(success.Request), string(got.Request))
		assert.JSONEq(t, string(success.Response), string(got.Response))
		assert.Empty(t, got.Error)
		assert.True(t, success.CreatedAt.Equal(got.CreatedAt))
	})

	t.Run("get failure record", func(t *testing.T) {
		got, err := repo.Get(ctx, failure.ID)
		require.NoError(t, err)
		assert.Nil(t, got.Response)
		assert.Equal(t, "script produced no output", got.Error)
		assert.Equal(t, "Exit code: 1.", got.Details)
		assert.Equal(t, 1, got.ExitCode)
	})

	t.Run("optional fields round trip as empty", func(t *testing.T) {
		got, err := repo.Get(ctx, cli.ID)
		require.NoError(t, err)
		assert.Empty(t, got.RequestID)
		assert.Empty(t, got.ClientIP)
		assert.Equal(t, "cli", got.Source)
	})

	t.Run("get missing", func(t *testing.T) {
		_, err := repo.Get(ctx, uuid.NewString())
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("get malformed id", func(t *testing.T) {
		for _, id := range []string{"not-a-uuid", "abc", "' OR 1=1 --"} {
			_, err := repo.Get(ctx, id)
			assert.ErrorIs(t, err, ErrNotFound, id)
		}
	})

	t.Run("list newest first", func(t *testing.T) {
		records, total, err := repo.List(ctx, Filter{}, 10, 0)
		require.NoError(t, err)
		assert.Equal(t, 3, total)
		require.Len(t, records, 3)
		assert.Equal(t, cli.ID, records[0].ID)
		assert.Equal(t, success.ID, records[2].ID)
	})

	t.Run("list pages", func(t *testing.T) {
		records, total, err := repo.List(ctx, Filter{}, 2, 2)
		require.NoError(t, err)
		assert.Equal(t, 3, total)
		require.Len(t, records, 1)
		assert.Equal(t, success.ID, records[0].ID)
	})

	t.Run("list filtered", func(t *testing.T) {
		records, total, err := repo.List(ctx, Filter{Outcome: models.OutcomeSuccess, Source: "web"}, 10, 0)
		require.NoError(t, err)
		assert.Equal(t, 1, total)
		require.Len(t, records, 1)
		assert.Equal(t, success.ID, records[0].ID)
	})

	t.Run("ping", func(t *testing.T) {
		assert.NoError(t, repo.Ping(ctx))
		assert.Equal(t, "postgres_history", repo.Name())
	})
}
