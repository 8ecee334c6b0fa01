package settlement

import (
	"context"
	"errors"
	"sync"

	"github.com/mmeshcher/yenabook/internal/model"
)

var errAppointmentNotFound = errors.New("appointment not found")

type memStore struct {
	mu     sync.Mutex
	lockMu sync.Mutex

	balances  map[int64]int64
	withdrawn map[int64]int64
	entries   []model.WalletTransaction

	creditErr error
	appendErr error
}

func newMemStore() *memStore {
	return &memStore{
		balances:  map[int64]int64{},
		withdrawn: map[int64]int64{},
	}
}

// WithinWalletLock имитирует транзакцию: при ошибке fn состояние откатывается.
func (s *memStore) WithinWalletLock(ctx context.Context, userID int64, fn func(ctx context.Context) error) error {
	s.lockMu.Lock()
	defer s.lockMu.Unlock()

	s.mu.Lock()
	balance, withdrawn, n := s.balances[userID], s.withdrawn[userID], len(s.entries)
	s.mu.Unlock()

	if err := fn(ctx); err != nil {
		s.mu.Lock()
		s.balances[userID], s.withdrawn[userID] = balance, withdrawn
		s.entries = s.entries[:n]
		s.mu.Unlock()
		return err
	}
	return nil
}

func (s *memStore) CreditUser(ctx context.Context, userID, amount int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.creditErr != nil {
		return s.creditErr
	}
	s.balances[userID] += amount
	return nil
}

func (s *memStore) DebitUser(ctx context.Context, userID, amount int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.balances[userID] -= amount
	s.withdrawn[userID] += amount
	return nil
}

func (s *memStore) GetBalance(ctx context.Context, userID int64) (int64, int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.balances[userID], s.withdrawn[userID], nil
}

func (s *memStore) AppendTransaction(ctx context.Context, tx *model.WalletTransaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.appendErr != nil {
		return s.appendErr
	}
	s.entries = append(s.entries, *tx)
	return nil
}

func (s *memStore) SettlementExists(ctx context.Context, kind model.SettlementKind, sourceReferenceID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range s.entries {
		if e.Type == model.TransactionCredit && e.SourceReferenceID == sourceReferenceID && e.Meta["kind"] == string(kind) {
			return true, nil
		}
	}
	return false, nil
}

type stubPayer struct {
	appointments map[int64]model.Appointment
	paid         []int64
	err          error
}

func newStubPayer(appointments ...model.Appointment) *stubPayer {
	p := &stubPayer{appointments: make(map[int64]model.Appointment)}
	for _, a := range appointments {
		p.appointments[a.ID] = a
	}
	return p
}

func (p *stubPayer) GetAppointment(ctx context.Context, id int64) (*model.Appointment, error) {
	a, ok := p.appointments[id]
	if !ok {
		return nil, errAppointmentNotFound
	}
	return &a, nil
}

func (p *stubPayer) MarkAppointmentPaid(ctx context.Context, appointmentID int64) error {
	if p.err != nil {
		return p.err
	}
	p.paid = append(p.paid, appointmentID)
	return nil
}
