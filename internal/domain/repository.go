package domain

import "context"

// CreditStore persists per-user balances and reservations. Reserve is the
// sole balance mutation path besides Refund and must be a single atomic
// conditional update: two concurrent reservations can never both succeed
// against a balance that only covers one.
type CreditStore interface {
	Balance(ctx context.Context, userID string) (*CreditBalance, error)
	Reserve(ctx context.Context, userID string, amount int) (*Reservation, error)
	Settle(ctx context.Context, reservationID string) error
	Refund(ctx context.Context, reservationID string) error
}

// LedgerStore appends immutable audit rows.
type LedgerStore interface {
	Append(ctx context.Context, entry *LedgerEntry) error
	GetByRequestID(ctx context.Context, requestID string) (*LedgerEntry, error)
}

// RequestRepository persists the generation request queue.
type RequestRepository interface {
	Enqueue(ctx context.Context, req *GenerationRequest) error
	Claim(ctx context.Context) (*GenerationRequest, error)
	MarkOutcome(ctx context.Context, requestID string, status RequestStatus, errMsg, artifactURL string) error
	GetByID(ctx context.Context, requestID string) (*RequestRecord, error)
}

// ArtifactRepository persists materialized artifacts.
type ArtifactRepository interface {
	Save(ctx context.Context, artifact *Artifact) error
	ListByUser(ctx context.Context, userID string, limit int) ([]Artifact, error)
}
