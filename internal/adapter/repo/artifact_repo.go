package repo

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"genserver/internal/domain"
)

// ArtifactRepositoryPG implements domain.ArtifactRepository.
type ArtifactRepositoryPG struct {
	pool *pgxpool.Pool
}

// NewArtifactRepository creates an artifact repository backed by PostgreSQL.
func NewArtifactRepository(pool *pgxpool.Pool) *ArtifactRepositoryPG {
	return &ArtifactRepositoryPG{pool: pool}
}

// Save persists one materialized artifact.
func (r *ArtifactRepositoryPG) Save(ctx context.Context, artifact *domain.Artifact) error {
	if artifact.ID == "" {
		artifact.ID = newID()
	}
	query := `
INSERT INTO artifacts (id, request_id, user_id, kind, storage_key, url, content_type, bytes)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8);
`
	_, err := r.pool.Exec(ctx, query,
		artifact.ID,
		artifact.RequestID,
		artifact.UserID,
		artifact.Kind,
		artifact.StorageKey,
		artifact.URL,
		artifact.ContentType,
		artifact.Bytes,
	)
	return err
}

// ListByUser returns the user's most recent artifacts.
func (r *ArtifactRepositoryPG) ListByUser(ctx context.Context, userID string, limit int) ([]domain.Artifact, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `
SELECT id, request_id, user_id, kind, storage_key, url, content_type, bytes, created_at
FROM artifacts
WHERE user_id = $1
ORDER BY created_at DESC
LIMIT $2;
`
	rows, err := r.pool.Query(ctx, query, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var artifacts []domain.Artifact
	for rows.Next() {
		var a domain.Artifact
		if err := rows.Scan(&a.ID, &a.RequestID, &a.UserID, &a.Kind, &a.StorageKey, &a.URL, &a.ContentType, &a.Bytes, &a.CreatedAt); err != nil {
			return nil, err
		}
		artifacts = append(artifacts, a)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return artifacts, nil
}

var _ domain.ArtifactRepository = (*ArtifactRepositoryPG)(nil)
