package ledger

import (
	"context"
	"fmt"
	"time"

	"genserver/internal/domain"
	"genserver/internal/infra"
	"genserver/internal/metrics"
)

// recordRetryDelay spaces the single retry of a failed ledger append.
const recordRetryDelay = 200 * time.Millisecond

// QuotaLedger enforces the prepaid credit quota and writes the audit trail.
// Reserve debits up front; Refund restores the debit when no usable output
// was delivered. The audit row is best-effort durable: a failed append is
// retried once and then surfaced as a warning, never as a request failure.
type QuotaLedger struct {
	credits domain.CreditStore
	entries domain.LedgerStore
	logger  infra.Logger
}

// New constructs a QuotaLedger over the given stores.
func New(credits domain.CreditStore, entries domain.LedgerStore, logger infra.Logger) *QuotaLedger {
	return &QuotaLedger{credits: credits, entries: entries, logger: logger}
}

// Balance reports the user's current credit balance.
func (l *QuotaLedger) Balance(ctx context.Context, userID string) (*domain.CreditBalance, error) {
	return l.credits.Balance(ctx, userID)
}

// Reserve atomically holds amount credits against the user's balance.
// Returns domain.ErrInsufficientCredit when the balance cannot cover it;
// in that case nothing was debited and no external call should follow.
func (l *QuotaLedger) Reserve(ctx context.Context, userID string, amount int) (*domain.Reservation, error) {
	res, err := l.credits.Reserve(ctx, userID, amount)
	if err != nil {
		return nil, err
	}
	l.logger.Debug().
		Str("user_id", userID).
		Str("reservation_id", res.ID).
		Int("amount", amount).
		Msg("ledger: credits reserved")
	return res, nil
}

// Settle marks the reservation consumed. The balance already reflects the
// debit from Reserve, so this only flips the reservation state.
func (l *QuotaLedger) Settle(ctx context.Context, res *domain.Reservation) error {
	if res == nil {
		return nil
	}
	if err := l.credits.Settle(ctx, res.ID); err != nil {
		return fmt.Errorf("ledger: settle reservation %s: %w", res.ID, err)
	}
	return nil
}

// Refund restores the reserved amount to the user's balance. Idempotent:
// refunding a settled or already-refunded reservation changes nothing, so
// retried cleanup paths are safe.
func (l *QuotaLedger) Refund(ctx context.Context, res *domain.Reservation) error {
	if res == nil {
		return nil
	}
	if err := l.credits.Refund(ctx, res.ID); err != nil {
		return fmt.Errorf("ledger: refund reservation %s: %w", res.ID, err)
	}
	metrics.CreditsRefunded.Add(float64(res.Amount))
	l.logger.Debug().
		Str("user_id", res.UserID).
		Str("reservation_id", res.ID).
		Int("amount", res.Amount).
		Msg("ledger: credits refunded")
	return nil
}

// Record appends the audit row for a terminal outcome, retrying once before
// giving up. A returned error is a warning: the credit outcome stands and the
// caller must not fail the request over it.
func (l *QuotaLedger) Record(ctx context.Context, entry *domain.LedgerEntry) error {
	err := l.entries.Append(ctx, entry)
	if err == nil {
		return nil
	}
	l.logger.Warn().Err(err).
		Str("request_id", entry.RequestID).
		Msg("ledger: append failed, retrying once")

	select {
	case <-time.After(recordRetryDelay):
	case <-ctx.Done():
		return fmt.Errorf("ledger: append entry for request %s: %w", entry.RequestID, err)
	}
	if retryErr := l.entries.Append(ctx, entry); retryErr != nil {
		metrics.LedgerWriteFailures.Inc()
		return fmt.Errorf("ledger: append entry for request %s: %w", entry.RequestID, retryErr)
	}
	return nil
}
