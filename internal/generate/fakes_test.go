package generate

import (
	"context"
	"encoding/json"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"genserver/internal/domain"
	"genserver/internal/infra"
	"genserver/internal/ledger"
	"genserver/internal/provider"
)

func discardLogger() infra.Logger {
	return zerolog.New(io.Discard)
}

func newQuotaLedger(credits domain.CreditStore, entries domain.LedgerStore) *ledger.QuotaLedger {
	return ledger.New(credits, entries, discardLogger())
}

// memCredits is an in-memory CreditStore honoring the same atomicity and
// idempotency contract as the PostgreSQL implementation.
type memCredits struct {
	mu           sync.Mutex
	balances     map[string]*domain.CreditBalance
	reservations map[string]*domain.Reservation
}

func newMemCredits(userID string, balance int) *memCredits {
	return &memCredits{
		balances: map[string]*domain.CreditBalance{
			userID: {UserID: userID, Balance: balance},
		},
		reservations: map[string]*domain.Reservation{},
	}
}

func (m *memCredits) Balance(ctx context.Context, userID string) (*domain.CreditBalance, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	bal, ok := m.balances[userID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	copied := *bal
	return &copied, nil
}

func (m *memCredits) Reserve(ctx context.Context, userID string, amount int) (*domain.Reservation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	bal, ok := m.balances[userID]
	if !ok || bal.Balance < amount {
		return nil, domain.ErrInsufficientCredit
	}
	bal.Balance -= amount
	bal.Version++
	res := &domain.Reservation{
		ID:        uuid.NewString(),
		UserID:    userID,
		Amount:    amount,
		State:     domain.ReservationHeld,
		CreatedAt: time.Now(),
	}
	m.reservations[res.ID] = res
	return res, nil
}

func (m *memCredits) Settle(ctx context.Context, reservationID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if res, ok := m.reservations[reservationID]; ok && res.State == domain.ReservationHeld {
		res.State = domain.ReservationSettled
	}
	return nil
}

func (m *memCredits) Refund(ctx context.Context, reservationID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	res, ok := m.reservations[reservationID]
	if !ok || res.State != domain.ReservationHeld {
		return nil
	}
	res.State = domain.ReservationRefunded
	bal := m.balances[res.UserID]
	bal.Balance += res.Amount
	bal.Version++
	return nil
}

func (m *memCredits) balanceOf(userID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.balances[userID].Balance
}

// memLedger is an in-memory LedgerStore; failuresLeft makes the first N
// appends fail to exercise the retry path.
type memLedger struct {
	mu           sync.Mutex
	entries      []*domain.LedgerEntry
	failuresLeft int
	appendErr    error
}

func (m *memLedger) Append(ctx context.Context, entry *domain.LedgerEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failuresLeft > 0 {
		m.failuresLeft--
		return m.appendErr
	}
	copied := *entry
	m.entries = append(m.entries, &copied)
	return nil
}

func (m *memLedger) GetByRequestID(ctx context.Context, requestID string) (*domain.LedgerEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, entry := range m.entries {
		if entry.RequestID == requestID {
			copied := *entry
			return &copied, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (m *memLedger) byRequestID(requestID string) []*domain.LedgerEntry {
	m.mu.Lock()
	defer m.mu.Unlock()
	var matched []*domain.LedgerEntry
	for _, entry := range m.entries {
		if entry.RequestID == requestID {
			matched = append(matched, entry)
		}
	}
	return matched
}

// fakeClient scripts a provider: Submit hands out fresh job ids, Status plays
// back the script and repeats its last element forever.
type fakeClient struct {
	mu         sync.Mutex
	script     []domain.StatusReport
	statusErrs []error
	submitErr  error
	calls      int
	submits    int
}

func (f *fakeClient) Submit(ctx context.Context, params json.RawMessage) (domain.JobHandle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.submitErr != nil {
		return domain.JobHandle{}, f.submitErr
	}
	f.submits++
	return domain.JobHandle{ProviderJobID: uuid.NewString(), Kind: domain.JobKindImage}, nil
}

func (f *fakeClient) Status(ctx context.Context, handle domain.JobHandle) (domain.StatusReport, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	idx := f.calls
	f.calls++
	if idx < len(f.statusErrs) && f.statusErrs[idx] != nil {
		return domain.StatusReport{}, f.statusErrs[idx]
	}
	if len(f.script) == 0 {
		return domain.StatusReport{State: domain.JobStateRunning}, nil
	}
	if idx >= len(f.script) {
		idx = len(f.script) - 1
	}
	return f.script[idx], nil
}

func (f *fakeClient) statusCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// memStore is an in-memory ObjectStore.
type memStore struct {
	mu      sync.Mutex
	objects map[string][]byte
	failPut bool
}

func newMemStore() *memStore {
	return &memStore{objects: map[string][]byte{}}
}

func (m *memStore) Put(ctx context.Context, key string, data []byte, contentType string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failPut {
		return "", errUploadFailed
	}
	m.objects[key] = append([]byte(nil), data...)
	return "https://cdn.test/" + key, nil
}

var errUploadFailed = errInjected("upload failed")

type errInjected string

func (e errInjected) Error() string { return string(e) }

func clientsFor(kind domain.JobKind, client provider.Client) map[domain.JobKind]provider.Client {
	return map[domain.JobKind]provider.Client{kind: client}
}
