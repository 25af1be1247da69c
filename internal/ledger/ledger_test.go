package ledger

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"genserver/internal/domain"
)

type stubCredits struct {
	reserveErr error
	settled    []string
	refunded   []string
}

func (s *stubCredits) Balance(ctx context.Context, userID string) (*domain.CreditBalance, error) {
	return &domain.CreditBalance{UserID: userID, Balance: 42}, nil
}

func (s *stubCredits) Reserve(ctx context.Context, userID string, amount int) (*domain.Reservation, error) {
	if s.reserveErr != nil {
		return nil, s.reserveErr
	}
	return &domain.Reservation{ID: "res-1", UserID: userID, Amount: amount, State: domain.ReservationHeld}, nil
}

func (s *stubCredits) Settle(ctx context.Context, reservationID string) error {
	s.settled = append(s.settled, reservationID)
	return nil
}

func (s *stubCredits) Refund(ctx context.Context, reservationID string) error {
	s.refunded = append(s.refunded, reservationID)
	return nil
}

type flakyLedger struct {
	mu           sync.Mutex
	failuresLeft int
	entries      []*domain.LedgerEntry
}

func (f *flakyLedger) Append(ctx context.Context, entry *domain.LedgerEntry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failuresLeft > 0 {
		f.failuresLeft--
		return errors.New("ledger store unavailable")
	}
	f.entries = append(f.entries, entry)
	return nil
}

func (f *flakyLedger) GetByRequestID(ctx context.Context, requestID string) (*domain.LedgerEntry, error) {
	return nil, domain.ErrNotFound
}

func newTestLedger(credits domain.CreditStore, entries domain.LedgerStore) *QuotaLedger {
	return New(credits, entries, zerolog.New(io.Discard))
}

func TestReservePassesThroughInsufficient(t *testing.T) {
	l := newTestLedger(&stubCredits{reserveErr: domain.ErrInsufficientCredit}, &flakyLedger{})
	_, err := l.Reserve(context.Background(), "user-1", 10)
	require.ErrorIs(t, err, domain.ErrInsufficientCredit)
}

func TestSettleAndRefundTolerateNilReservation(t *testing.T) {
	credits := &stubCredits{}
	l := newTestLedger(credits, &flakyLedger{})
	require.NoError(t, l.Settle(context.Background(), nil))
	require.NoError(t, l.Refund(context.Background(), nil))
	assert.Empty(t, credits.settled)
	assert.Empty(t, credits.refunded)
}

func TestRecordRetriesOnce(t *testing.T) {
	store := &flakyLedger{failuresLeft: 1}
	l := newTestLedger(&stubCredits{}, store)

	err := l.Record(context.Background(), &domain.LedgerEntry{RequestID: "req-1"})
	require.NoError(t, err)
	require.Len(t, store.entries, 1)
}

func TestRecordSurfacesWarningAfterSecondFailure(t *testing.T) {
	store := &flakyLedger{failuresLeft: 2}
	l := newTestLedger(&stubCredits{}, store)

	err := l.Record(context.Background(), &domain.LedgerEntry{RequestID: "req-1"})
	require.Error(t, err)
	assert.Empty(t, store.entries)
}
