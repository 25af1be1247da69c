package repo

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"genserver/internal/domain"
)

// LedgerRepositoryPG implements domain.LedgerStore. The table is append-only;
// rows are never updated or deleted.
type LedgerRepositoryPG struct {
	pool *pgxpool.Pool
}

// NewLedgerRepository creates a ledger store backed by PostgreSQL.
func NewLedgerRepository(pool *pgxpool.Pool) *LedgerRepositoryPG {
	return &LedgerRepositoryPG{pool: pool}
}

// Append inserts one audit row.
func (r *LedgerRepositoryPG) Append(ctx context.Context, entry *domain.LedgerEntry) error {
	if entry.ID == "" {
		entry.ID = newID()
	}
	query := `
INSERT INTO ledger_entries (id, request_id, user_id, kind, params_summary, credits_charged, outcome, artifact_url, failure_reason, submitted_at, completed_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11);
`
	_, err := r.pool.Exec(ctx, query,
		entry.ID,
		entry.RequestID,
		entry.UserID,
		entry.Kind,
		entry.ParamsSummary,
		entry.CreditsCharged,
		entry.Outcome,
		entry.ArtifactURL,
		entry.FailureReason,
		entry.SubmittedAt,
		entry.CompletedAt,
	)
	return err
}

// GetByRequestID fetches the single audit row for a request.
func (r *LedgerRepositoryPG) GetByRequestID(ctx context.Context, requestID string) (*domain.LedgerEntry, error) {
	query := `
SELECT id, request_id, user_id, kind, params_summary, credits_charged, outcome, artifact_url, failure_reason, submitted_at, completed_at
FROM ledger_entries
WHERE request_id = $1;
`
	row := r.pool.QueryRow(ctx, query, requestID)
	var entry domain.LedgerEntry
	if err := row.Scan(
		&entry.ID,
		&entry.RequestID,
		&entry.UserID,
		&entry.Kind,
		&entry.ParamsSummary,
		&entry.CreditsCharged,
		&entry.Outcome,
		&entry.ArtifactURL,
		&entry.FailureReason,
		&entry.SubmittedAt,
		&entry.CompletedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return &entry, nil
}

func newID() string {
	return uuid.NewString()
}

var _ domain.LedgerStore = (*LedgerRepositoryPG)(nil)
