package repo

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"genserver/internal/domain"
)

// RequestRepositoryPG implements domain.RequestRepository.
type RequestRepositoryPG struct {
	pool *pgxpool.Pool
}

// NewRequestRepository creates a request queue repository backed by PostgreSQL.
func NewRequestRepository(pool *pgxpool.Pool) *RequestRepositoryPG {
	return &RequestRepositoryPG{pool: pool}
}

// Enqueue inserts a new queued request.
func (r *RequestRepositoryPG) Enqueue(ctx context.Context, req *domain.GenerationRequest) error {
	query := `
INSERT INTO generation_requests (id, user_id, kind, params, cost, status)
VALUES ($1, $2, $3, $4, $5, $6);
`
	_, err := r.pool.Exec(ctx, query,
		req.ID,
		req.UserID,
		req.Kind,
		req.Params,
		req.Cost,
		domain.RequestStatusQueued,
	)
	return err
}

// Claim atomically takes the oldest queued request and marks it running.
// SKIP LOCKED lets multiple workers claim without blocking each other.
func (r *RequestRepositoryPG) Claim(ctx context.Context) (*domain.GenerationRequest, error) {
	query := `
WITH next_request AS (
    SELECT id
    FROM generation_requests
    WHERE status = 'queued'
    ORDER BY created_at ASC
    FOR UPDATE SKIP LOCKED
    LIMIT 1
),
claimed AS (
    UPDATE generation_requests
    SET status = 'running', updated_at = NOW()
    WHERE id IN (SELECT id FROM next_request)
    RETURNING id, user_id, kind, params, cost, created_at
)
SELECT id, user_id, kind, params, cost, created_at FROM claimed;
`
	row := r.pool.QueryRow(ctx, query)
	var req domain.GenerationRequest
	if err := row.Scan(&req.ID, &req.UserID, &req.Kind, &req.Params, &req.Cost, &req.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNoPendingRequest
		}
		return nil, err
	}
	// Ensure param bytes are not aliased to the driver's buffer.
	req.Params = append(req.Params[:0:0], req.Params...)
	return &req, nil
}

// MarkOutcome records the terminal status of a claimed request.
func (r *RequestRepositoryPG) MarkOutcome(ctx context.Context, requestID string, status domain.RequestStatus, errMsg, artifactURL string) error {
	query := `
UPDATE generation_requests
SET status = $2,
    error_message = $3,
    artifact_url = $4,
    updated_at = NOW()
WHERE id = $1;
`
	_, err := r.pool.Exec(ctx, query, requestID, status, errMsg, artifactURL)
	return err
}

// GetByID fetches a request with its current status.
func (r *RequestRepositoryPG) GetByID(ctx context.Context, requestID string) (*domain.RequestRecord, error) {
	query := `
SELECT id, user_id, kind, params, cost, status, error_message, artifact_url, created_at, updated_at
FROM generation_requests
WHERE id = $1;
`
	row := r.pool.QueryRow(ctx, query, requestID)
	var rec domain.RequestRecord
	if err := row.Scan(
		&rec.ID,
		&rec.UserID,
		&rec.Kind,
		&rec.Params,
		&rec.Cost,
		&rec.Status,
		&rec.ErrorMessage,
		&rec.ArtifactURL,
		&rec.CreatedAt,
		&rec.UpdatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return &rec, nil
}

var _ domain.RequestRepository = (*RequestRepositoryPG)(nil)
