package repo

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"genserver/internal/domain"
)

// CreditRepositoryPG implements domain.CreditStore.
type CreditRepositoryPG struct {
	pool *pgxpool.Pool
}

// NewCreditRepository creates a credit store backed by PostgreSQL.
func NewCreditRepository(pool *pgxpool.Pool) *CreditRepositoryPG {
	return &CreditRepositoryPG{pool: pool}
}

// Balance fetches the current balance row for a user.
func (r *CreditRepositoryPG) Balance(ctx context.Context, userID string) (*domain.CreditBalance, error) {
	query := `
SELECT user_id, balance, version, updated_at
FROM credit_balances
WHERE user_id = $1;
`
	row := r.pool.QueryRow(ctx, query, userID)
	var bal domain.CreditBalance
	if err := row.Scan(&bal.UserID, &bal.Balance, &bal.Version, &bal.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return &bal, nil
}

// Reserve atomically debits the balance and records a held reservation. The
// conditional UPDATE is the only guard against concurrent over-reservation:
// it matches zero rows when the balance cannot cover the amount.
func (r *CreditRepositoryPG) Reserve(ctx context.Context, userID string, amount int) (*domain.Reservation, error) {
	if amount <= 0 {
		return nil, fmt.Errorf("reserve: amount must be positive, got %d", amount)
	}
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("reserve: begin: %w", err)
	}
	defer tx.Rollback(ctx)

	debit := `
UPDATE credit_balances
SET balance = balance - $2,
    version = version + 1,
    updated_at = NOW()
WHERE user_id = $1 AND balance >= $2
RETURNING balance, version;
`
	var balance int
	var version int64
	if err := tx.QueryRow(ctx, debit, userID, amount).Scan(&balance, &version); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrInsufficientCredit
		}
		return nil, fmt.Errorf("reserve: debit: %w", err)
	}

	res := &domain.Reservation{
		ID:     newID(),
		UserID: userID,
		Amount: amount,
		State:  domain.ReservationHeld,
	}
	insert := `
INSERT INTO credit_reservations (id, user_id, amount, state)
VALUES ($1, $2, $3, $4)
RETURNING created_at;
`
	if err := tx.QueryRow(ctx, insert, res.ID, res.UserID, res.Amount, res.State).Scan(&res.CreatedAt); err != nil {
		return nil, fmt.Errorf("reserve: record reservation: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("reserve: commit: %w", err)
	}
	return res, nil
}

// Settle marks a held reservation consumed. The amount was debited at reserve
// time, so no balance change happens here. Settling a reservation that is no
// longer held is a no-op.
func (r *CreditRepositoryPG) Settle(ctx context.Context, reservationID string) error {
	query := `
UPDATE credit_reservations
SET state = $2, updated_at = NOW()
WHERE id = $1 AND state = $3;
`
	_, err := r.pool.Exec(ctx, query, reservationID, domain.ReservationSettled, domain.ReservationHeld)
	return err
}

// Refund re-credits a held reservation back to its user. Idempotent: a
// reservation that was already settled or refunded matches zero rows and
// nothing changes.
func (r *CreditRepositoryPG) Refund(ctx context.Context, reservationID string) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("refund: begin: %w", err)
	}
	defer tx.Rollback(ctx)

	release := `
UPDATE credit_reservations
SET state = $2, updated_at = NOW()
WHERE id = $1 AND state = $3
RETURNING user_id, amount;
`
	var userID string
	var amount int
	if err := tx.QueryRow(ctx, release, reservationID, domain.ReservationRefunded, domain.ReservationHeld).Scan(&userID, &amount); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil
		}
		return fmt.Errorf("refund: release reservation: %w", err)
	}

	credit := `
UPDATE credit_balances
SET balance = balance + $2,
    version = version + 1,
    updated_at = NOW()
WHERE user_id = $1;
`
	if _, err := tx.Exec(ctx, credit, userID, amount); err != nil {
		return fmt.Errorf("refund: credit balance: %w", err)
	}
	return tx.Commit(ctx)
}

var _ domain.CreditStore = (*CreditRepositoryPG)(nil)
