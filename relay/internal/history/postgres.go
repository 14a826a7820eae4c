// Package history persists every handled prediction to PostgreSQL.
package history

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/bloomwatch/bloomwatch-stack/common/database"
	"github.com/bloomwatch/bloomwatch-stack/relay/internal/models"
)

var ErrNotFound = errors.New("prediction not found")

type Repository interface {
	Insert(ctx context.Context, rec *models.PredictionRecord) error
	Get(ctx context.Context, id string) (*models.PredictionRecord, error)
	List(ctx context.Context, filter Filter, limit, offset int) ([]*models.PredictionRecord, int, error)
	Ping(ctx context.Context) error
	Close()
}

// Filter narrows List. Zero values match everything.
type Filter struct {
	Outcome models.Outcome
	Source  string
}

type PostgresRepository struct {
	pool *pgxpool.Pool
}

func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

func (r *PostgresRepository) Close() {
	r.pool.Close()
}

func (r *PostgresRepository) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}

// Name identifies the repository as a prediction observer.
func (r *PostgresRepository) Name() string {
	return "postgres_history"
}

// Observe stores rec.
func (r *PostgresRepository) Observe(ctx context.Context, rec *models.PredictionRecord) error {
	return r.Insert(ctx, rec)
}

const insertPrediction = `
	INSERT INTO predictions (
		id, request_id, source, client_ip, outcome, status_code, exit_code,
		duration_ms, request, response, error, details, created_at
	) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`

func (r *PostgresRepository) Insert(ctx context.Context, rec *models.PredictionRecord) error {
	ctx, cancel := database.WriteContext(ctx)
	defer cancel()

	source := rec.Source
	if source == "" {
		source = "unknown"
	}

	_, err := r.pool.Exec(ctx, insertPrediction,
		rec.ID,
		nullString(rec.RequestID),
		source,
		nullString(rec.ClientIP),
		string(rec.Outcome),
		rec.StatusCode,
		rec.ExitCode,
		rec.DurationMS,
		[]byte(rec.Request),
		nullJSON(rec.Response),
		nullString(rec.Error),
		nullString(rec.Details),
		rec.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert prediction: %w", err)
	}
	return nil
}

const selectPrediction = `
	SELECT id::text, request_id, source, client_ip, outcome, status_code, exit_code,
		duration_ms, request, response, error, details, created_at
	FROM predictions`

// Get returns one record. An id that is not a UUID cannot exist and yields ErrNotFound.
func (r *PostgresRepository) Get(ctx context.Context, id string) (*models.PredictionRecord, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, ErrNotFound
	}

	ctx, cancel := database.QueryContext(ctx)
	defer cancel()

	rec, err := scanRecord(r.pool.QueryRow(ctx, selectPrediction+` WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get prediction: %w", err)
	}
	return rec, nil
}

// List returns newest first along with the total matching count.
func (r *PostgresRepository) List(ctx context.Context, filter Filter, limit, offset int) ([]*models.PredictionRecord, int, error) {
	ctx, cancel := database.QueryContext(ctx)
	defer cancel()

	where := ` WHERE ($1 = '' OR outcome = $1) AND ($2 = '' OR source = $2)`
	args := []any{string(filter.Outcome), filter.Source}

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM predictions`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count predictions: %w", err)
	}

	rows, err := r.pool.Query(ctx,
		selectPrediction+where+` ORDER BY created_at DESC, id DESC LIMIT $3 OFFSET $4`,
		append(args, limit, offset)...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list predictions: %w", err)
	}
	defer rows.Close()

	records := make([]*models.PredictionRecord, 0, limit)
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan prediction: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("failed to iterate predictions: %w", err)
	}

	return records, total, nil
}

func scanRecord(row pgx.Row) (*models.PredictionRecord, error) {
	var (
		rec                                 models.PredictionRecord
		outcome                             string
		requestID, clientIP, errMsg, detail *string
		request, response                   []byte
	)

	if err := row.Scan(
		&rec.ID, &requestID, &rec.Source, &clientIP, &outcome, &rec.StatusCode, &rec.ExitCode,
		&rec.DurationMS, &request, &response, &errMsg, &detail, &rec.CreatedAt,
	); err != nil {
		return nil, err
	}

	rec.Outcome = models.Outcome(outcome)
	rec.RequestID = deref(requestID)
	rec.ClientIP = deref(clientIP)
	rec.Error = deref(errMsg)
	rec.Details = deref(detail)
	rec.Request = request
	if len(response) > 0 {
		rec.Response = response
	}
	return &rec, nil
}

func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func nullJSON(b []byte) any {
	if len(b) == 0 {
		return nil
	}
	return b
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
