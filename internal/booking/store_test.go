package booking

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/mmeshcher/yenabook/internal/model"
)

var errOrderNotFound = errors.New("order not found")

type pendingOrder struct {
	owner         int64
	appointmentID int64
}

type memStore struct {
	mu     sync.Mutex
	lockMu sync.Mutex

	users        map[int64]bool
	appointments []model.Appointment
	orders       map[string]*pendingOrder
	nextID       int64

	listErr   error
	createErr error
}

func newMemStore(userIDs ...int64) *memStore {
	users := make(map[int64]bool, len(userIDs))
	for _, id := range userIDs {
		users[id] = true
	}
	return &memStore{
		users:  users,
		orders: map[string]*pendingOrder{},
	}
}

func (s *memStore) ListActiveAppointments(ctx context.Context, providerID int64, date time.Time) ([]model.Appointment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.listErr != nil {
		return nil, s.listErr
	}

	var res []model.Appointment
	for _, a := range s.appointments {
		if a.ProviderID == providerID && a.Date.Equal(date) && a.Status.Active() {
			res = append(res, a)
		}
	}
	return res, nil
}

func (s *memStore) UserExists(ctx context.Context, userID int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.users[userID], nil
}

func (s *memStore) CreateAppointment(ctx context.Context, a *model.Appointment) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.createErr != nil {
		return s.createErr
	}
	s.nextID++
	a.ID = s.nextID
	s.appointments = append(s.appointments, *a)
	return nil
}

func (s *memStore) AttachOrder(ctx context.Context, orderRef string, userID, appointmentID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	o, ok := s.orders[orderRef]
	if !ok || o.owner != userID || o.appointmentID != 0 {
		return errOrderNotFound
	}
	o.appointmentID = appointmentID
	return nil
}

func (s *memStore) WithinSlotLock(ctx context.Context, providerID int64, date time.Time, fn func(ctx context.Context) error) error {
	s.lockMu.Lock()
	defer s.lockMu.Unlock()
	return fn(ctx)
}

func (s *memStore) add(a model.Appointment) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	a.ID = s.nextID
	s.appointments = append(s.appointments, a)
}

type recordingNotifier struct {
	mu   sync.Mutex
	sent []model.Appointment
}

func (n *recordingNotifier) Notify(a model.Appointment) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, a)
}
