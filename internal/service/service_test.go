package service

import (
	"context"
	"errors"
	"math"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/mmeshcher/yenabook/internal/booking"
	"github.com/mmeshcher/yenabook/internal/metrics"
	"github.com/mmeshcher/yenabook/internal/model"
	"github.com/mmeshcher/yenabook/internal/repository"
	"github.com/mmeshcher/yenabook/internal/settlement"
)

type stubRepo struct {
	mu sync.Mutex

	users        map[string]*model.User
	services     map[int64][]model.Service
	appointments map[int64]*model.Appointment
	balances     map[int64]int64
	withdrawn    map[int64]int64
	transactions []model.WalletTransaction
	orders       map[string]int64
	attached     map[string]int64

	listServicesCalls int
	createUserErr     error
	listErr           error
	nextID            int64
}

func newStubRepo() *stubRepo {
	return &stubRepo{
		users:        make(map[string]*model.User),
		services:     make(map[int64][]model.Service),
		appointments: make(map[int64]*model.Appointment),
		balances:     make(map[int64]int64),
		withdrawn:    make(map[int64]int64),
		orders:       make(map[string]int64),
		attached:     make(map[string]int64),
	}
}

func (s *stubRepo) id() int64 {
	s.nextID++
	return s.nextID
}

func (s *stubRepo) addUser(login string) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.id()
	s.users[login] = &model.User{ID: id, Login: login}
	return id
}

func (s *stubRepo) Close() error { return nil }

func (s *stubRepo) CreateUser(ctx context.Context, login string, passwordHash []byte) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.createUserErr != nil {
		return 0, s.createUserErr
	}
	if _, ok := s.users[login]; ok {
		return 0, repository.ErrUserExists
	}
	id := s.id()
	s.users[login] = &model.User{ID: id, Login: login, PasswordHash: passwordHash}
	return id, nil
}

func (s *stubRepo) GetUserByLogin(ctx context.Context, login string) (*model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[login]
	if !ok {
		return nil, repository.ErrUserNotFound
	}
	return u, nil
}

func (s *stubRepo) UserExists(ctx context.Context, userID int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if u.ID == userID {
			return true, nil
		}
	}
	return false, nil
}

func (s *stubRepo) CreateService(ctx context.Context, svc *model.Service) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	svc.ID = s.id()
	s.services[svc.ProviderID] = append(s.services[svc.ProviderID], *svc)
	return nil
}

func (s *stubRepo) ListServicesByProvider(ctx context.Context, providerID int64) ([]model.Service, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listServicesCalls++
	if s.listErr != nil {
		return nil, s.listErr
	}
	return append([]model.Service(nil), s.services[providerID]...), nil
}

func (s *stubRepo) ListActiveAppointments(ctx context.Context, providerID int64, date time.Time) ([]model.Appointment, error) {
	var res []model.Appointment
	for _, a := range s.appointments {
		if a.ProviderID == providerID && a.Date.Equal(date) && a.Status.Active() {
			res = append(res, *a)
		}
	}
	return res, nil
}

func (s *stubRepo) CreateAppointment(ctx context.Context, a *model.Appointment) error {
	a.ID = s.id()
	cp := *a
	s.appointments[a.ID] = &cp
	return nil
}

func (s *stubRepo) AttachOrder(ctx context.Context, orderRef string, userID, appointmentID int64) error {
	owner, ok := s.orders[orderRef]
	if !ok || owner != userID || s.attached[orderRef] != 0 {
		return repository.ErrOrderNotFound
	}
	s.attached[orderRef] = appointmentID
	return nil
}

func (s *stubRepo) WithinSlotLock(ctx context.Context, providerID int64, date time.Time, fn func(ctx context.Context) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn(ctx)
}

func (s *stubRepo) GetAppointment(ctx context.Context, id int64) (*model.Appointment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.appointments[id]
	if !ok {
		return nil, booking.ErrAppointmentNotFound
	}
	cp := *a
	return &cp, nil
}

func (s *stubRepo) UpdateAppointmentStatus(ctx context.Context, id int64, from, to model.AppointmentStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.appointments[id]
	if !ok || a.Status != from {
		return booking.ErrInvalidTransition
	}
	a.Status = to
	return nil
}

func (s *stubRepo) MarkAppointmentPaid(ctx context.Context, appointmentID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.appointments[appointmentID]
	if !ok {
		return booking.ErrAppointmentNotFound
	}
	a.IsPaid = true
	return nil
}

func (s *stubRepo) WithinWalletLock(ctx context.Context, userID int64, fn func(ctx context.Context) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn(ctx)
}

func (s *stubRepo) CreditUser(ctx context.Context, userID, amount int64) error {
	s.balances[userID] += amount
	return nil
}

func (s *stubRepo) DebitUser(ctx context.Context, userID, amount int64) error {
	s.balances[userID] -= amount
	s.withdrawn[userID] += amount
	return nil
}

func (s *stubRepo) GetBalance(ctx context.Context, userID int64) (int64, int64, error) {
	return s.balances[userID], s.withdrawn[userID], nil
}

func (s *stubRepo) AppendTransaction(ctx context.Context, tx *model.WalletTransaction) error {
	s.transactions = append(s.transactions, *tx)
	return nil
}

func (s *stubRepo) SettlementExists(ctx context.Context, kind model.SettlementKind, sourceReferenceID string) (bool, error) {
	for _, t := range s.transactions {
		if t.SourceReferenceID == sourceReferenceID && t.Meta["kind"] == string(kind) {
			return true, nil
		}
	}
	return false, nil
}

func (s *stubRepo) AddOrder(ctx context.Context, userID int64, reference string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	owner, ok := s.orders[reference]
	if ok && owner != userID {
		return false, repository.ErrOrderOwnedByAnother
	}
	s.orders[reference] = userID
	return ok, nil
}

func (s *stubRepo) ListOrdersByUser(ctx context.Context, userID int64) ([]model.PendingOrder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var res []model.PendingOrder
	for ref, owner := range s.orders {
		if owner == userID {
			res = append(res, model.PendingOrder{Reference: ref})
		}
	}
	return res, nil
}

func (s *stubRepo) ListTransactions(ctx context.Context, userID int64) ([]model.WalletTransaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var res []model.WalletTransaction
	for _, t := range s.transactions {
		if t.UserID == userID {
			res = append(res, t)
		}
	}
	return res, nil
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

type fixture struct {
	svc      *Service
	repo     *stubRepo
	notifier *recordingNotifier
	metrics  *metrics.Metrics
	provider model.Principal
	customer model.Principal
	haircut  model.Service
	shave    model.Service
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()

	repo := newStubRepo()
	notifier := &recordingNotifier{}
	m := metrics.New(prometheus.NewRegistry(), "test")

	opts = append([]Option{WithPasswordCost(bcrypt.MinCost)}, opts...)
	svc := NewService(repo, notifier, m, zap.NewNop(), opts...)

	f := &fixture{
		svc:      svc,
		repo:     repo,
		notifier: notifier,
		metrics:  m,
		provider: model.Principal{UserID: repo.addUser("provider")},
		customer: model.Principal{UserID: repo.addUser("customer")},
	}

	ctx := context.Background()
	haircut, err := svc.CreateService(ctx, f.provider, "Haircut", 1500, 30)
	require.NoError(t, err)
	shave, err := svc.CreateService(ctx, f.provider, "Shave", 700, 45)
	require.NoError(t, err)
	f.haircut, f.shave = *haircut, *shave

	return f
}

var testDate = time.Date(2026, time.March, 5, 0, 0, 0, 0, time.UTC)

func TestRegisterAndAuthenticate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	id, err := f.svc.RegisterUser(ctx, "alice", "secret")
	require.NoError(t, err)

	got, err := f.svc.AuthenticateUser(ctx, "alice", "secret")
	require.NoError(t, err)
	assert.Equal(t, id, got)

	_, err = f.svc.AuthenticateUser(ctx, "alice", "wrong")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	_, err = f.svc.AuthenticateUser(ctx, "bob", "secret")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	_, err = f.svc.RegisterUser(ctx, "alice", "again")
	assert.ErrorIs(t, err, repository.ErrUserExists)
}

func TestRegisterUser_StoresBcryptHash(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.RegisterUser(context.Background(), "alice", "secret")
	require.NoError(t, err)

	u := f.repo.users["alice"]
	assert.NotEqual(t, []byte("secret"), u.PasswordHash)
	assert.NoError(t, bcrypt.CompareHashAndPassword(u.PasswordHash, []byte("secret")))
}

func TestCreateService_Validation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.CreateService(ctx, f.provider, " ", 100, 30)
	assert.ErrorIs(t, err, ErrValidation)
	_, err = f.svc.CreateService(ctx, f.provider, "Massage", -1, 30)
	assert.ErrorIs(t, err, ErrValidation)
	_, err = f.svc.CreateService(ctx, f.provider, "Massage", 100, 0)
	assert.ErrorIs(t, err, ErrValidation)
}

func TestProviderServices_CachedAndInvalidated(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first, err := f.svc.ProviderServices(ctx, f.provider.UserID)
	require.NoError(t, err)
	assert.Len(t, first, 2)

	_, err = f.svc.ProviderServices(ctx, f.provider.UserID)
	require.NoError(t, err)
	assert.Equal(t, 1, f.repo.listServicesCalls)

	_, err = f.svc.CreateService(ctx, f.provider, "Beard", 300, 15)
	require.NoError(t, err)

	after, err := f.svc.ProviderServices(ctx, f.provider.UserID)
	require.NoError(t, err)
	assert.Len(t, after, 3)
	assert.Equal(t, 2, f.repo.listServicesCalls)
}

func TestBookAppointment(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	a, err := f.svc.BookAppointment(ctx, f.customer, BookingRequest{
		ProviderID:  f.provider.UserID,
		ServiceIDs:  []int64{f.haircut.ID, f.shave.ID},
		Date:        testDate.Add(15 * time.Hour),
		StartMinute: 540,
	})
	require.NoError(t, err)

	assert.Equal(t, f.customer.UserID, a.CustomerID)
	assert.Equal(t, model.TimeRange{Start: 540, End: 615}, a.TimeRange)
	assert.Equal(t, int64(2200), a.Price)
	assert.Equal(t, model.AppointmentStatusPending, a.Status)
	assert.Equal(t, testDate, a.Date)
	assert.Len(t, f.notifier.sent, 1)
	assert.InDelta(t, 1, testutil.ToFloat64(f.metrics.BookingsCreated), 0)

	_, err = f.svc.BookAppointment(ctx, f.customer, BookingRequest{
		ProviderID:  f.provider.UserID,
		ServiceIDs:  []int64{f.haircut.ID},
		Date:        testDate,
		StartMinute: 600,
	})
	assert.ErrorIs(t, err, booking.ErrSlotConflict)
	assert.InDelta(t, 1, testutil.ToFloat64(f.metrics.SlotConflicts), 0)

	_, err = f.svc.BookAppointment(ctx, f.customer, BookingRequest{
		ProviderID:  f.provider.UserID,
		ServiceIDs:  []int64{f.haircut.ID},
		Date:        testDate,
		StartMinute: 615,
	})
	assert.NoError(t, err, "adjacent slot is free")
}

func TestBookAppointment_Rejects(t *testing.T) {
	f := newFixture(t)
	stranger := model.Principal{UserID: f.repo.addUser("stranger")}

	tests := []struct {
		name      string
		principal model.Principal
		req       BookingRequest
		wantErr   error
	}{
		{
			name:      "booking for another customer",
			principal: stranger,
			req:       BookingRequest{ProviderID: f.provider.UserID, CustomerID: f.customer.UserID, StartMinute: 60},
			wantErr:   ErrForbidden,
		},
		{
			name:      "start outside the day",
			principal: f.customer,
			req:       BookingRequest{ProviderID: f.provider.UserID, StartMinute: 1440},
			wantErr:   ErrValidation,
		},
		{
			name:      "ends after midnight",
			principal: f.customer,
			req:       BookingRequest{ProviderID: f.provider.UserID, ServiceIDs: []int64{f.shave.ID}, StartMinute: 1420},
			wantErr:   ErrValidation,
		},
		{
			name:      "no services",
			principal: f.customer,
			req:       BookingRequest{ProviderID: f.provider.UserID, StartMinute: 600},
			wantErr:   ErrValidation,
		},
		{
			name:      "only unknown services",
			principal: f.customer,
			req:       BookingRequest{ProviderID: f.provider.UserID, ServiceIDs: []int64{9999}, StartMinute: 600},
			wantErr:   ErrValidation,
		},
		{
			name:      "bad order reference",
			principal: f.customer,
			req:       BookingRequest{ProviderID: f.provider.UserID, StartMinute: 60, OrderRef: "12345"},
			wantErr:   ErrValidation,
		},
		{
			name:      "unknown provider",
			principal: f.customer,
			req:       BookingRequest{ProviderID: 999, StartMinute: 60},
			wantErr:   booking.ErrProviderNotFound,
		},
		{
			name:      "unknown customer",
			principal: f.provider,
			req:       BookingRequest{ProviderID: f.provider.UserID, CustomerID: 999, StartMinute: 60},
			wantErr:   booking.ErrCustomerNotFound,
		},
		{
			name:      "order not uploaded",
			principal: f.customer,
			req:       BookingRequest{ProviderID: f.provider.UserID, ServiceIDs: []int64{f.haircut.ID}, StartMinute: 60, OrderRef: "79927398713"},
			wantErr:   repository.ErrOrderNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.req.Date = testDate
			_, err := f.svc.BookAppointment(context.Background(), tt.principal, tt.req)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestBookAppointment_ProviderBooksForCustomer(t *testing.T) {
	f := newFixture(t)

	a, err := f.svc.BookAppointment(context.Background(), f.provider, BookingRequest{
		ProviderID:  f.provider.UserID,
		CustomerID:  f.customer.UserID,
		ServiceIDs:  []int64{f.haircut.ID},
		Date:        testDate,
		StartMinute: 600,
		IsPaid:      true,
	})
	require.NoError(t, err)
	assert.Equal(t, f.customer.UserID, a.CustomerID)
	assert.Equal(t, model.AppointmentStatusCompleted, a.Status)
}

func TestFreeSlots(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.BookAppointment(ctx, f.customer, BookingRequest{
		ProviderID:  f.provider.UserID,
		ServiceIDs:  []int64{f.haircut.ID},
		Date:        testDate,
		StartMinute: 600,
	})
	require.NoError(t, err)

	slots, err := f.svc.FreeSlots(ctx, SlotQuery{
		ProviderID: f.provider.UserID,
		Date:       testDate,
		Duration:   30,
		Opens:      540,
		Closes:     720,
	})
	require.NoError(t, err)
	assert.Equal(t, []int{540, 570, 630, 660, 690}, slots)

	_, err = f.svc.FreeSlots(ctx, SlotQuery{ProviderID: f.provider.UserID, Date: testDate})
	assert.ErrorIs(t, err, ErrValidation)
}

func TestAppointmentLifecycle(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	stranger := model.Principal{UserID: f.repo.addUser("stranger")}

	a, err := f.svc.BookAppointment(ctx, f.customer, BookingRequest{
		ProviderID:  f.provider.UserID,
		ServiceIDs:  []int64{f.haircut.ID},
		Date:        testDate,
		StartMinute: 600,
	})
	require.NoError(t, err)

	got, err := f.svc.GetAppointment(ctx, f.provider, a.ID)
	require.NoError(t, err)
	assert.Equal(t, a.TimeRange, got.TimeRange)

	_, err = f.svc.GetAppointment(ctx, stranger, a.ID)
	assert.ErrorIs(t, err, ErrForbidden)

	_, err = f.svc.GetAppointment(ctx, f.customer, 12345)
	assert.ErrorIs(t, err, booking.ErrAppointmentNotFound)

	_, err = f.svc.CompleteAppointment(ctx, f.customer, a.ID)
	assert.ErrorIs(t, err, ErrForbidden, "only the provider completes")

	done, err := f.svc.CompleteAppointment(ctx, f.provider, a.ID)
	require.NoError(t, err)
	assert.Equal(t, model.AppointmentStatusCompleted, done.Status)

	_, err = f.svc.CancelAppointment(ctx, f.customer, a.ID)
	assert.ErrorIs(t, err, booking.ErrInvalidTransition)
}

func TestCancelFreesSlot(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	req := BookingRequest{
		ProviderID:  f.provider.UserID,
		ServiceIDs:  []int64{f.haircut.ID},
		Date:        testDate,
		StartMinute: 600,
	}

	a, err := f.svc.BookAppointment(ctx, f.customer, req)
	require.NoError(t, err)

	_, err = f.svc.CancelAppointment(ctx, f.customer, a.ID)
	require.NoError(t, err)

	_, err = f.svc.BookAppointment(ctx, f.customer, req)
	assert.NoError(t, err)
}

func TestSettle(t *testing.T) {
	f := newFixture(t, WithDefaultFee(10))
	ctx := context.Background()

	entries, err := f.svc.Settle(ctx, SettleRequest{
		Kind:              model.SettlementDonation,
		PayerID:           f.customer.UserID,
		PayeeID:           f.provider.UserID,
		GrossAmount:       10000,
		Currency:          "USD",
		SourceReferenceID: "don-1",
		Method:            "card",
	})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, int64(9000), entries[0].AmountSettled)
	assert.Equal(t, int64(10000), entries[0].Amount)
	assert.Equal(t, "1000", entries[0].Meta["platform_fee"])

	zero := 0.0
	_, err = f.svc.Settle(ctx, SettleRequest{
		Kind:              model.SettlementPurchase,
		PayerID:           f.customer.UserID,
		PayeeID:           f.provider.UserID,
		GrossAmount:       500,
		Currency:          "USD",
		FeePercentage:     &zero,
		SourceReferenceID: "buy-1",
	})
	require.NoError(t, err)

	wallet, err := f.svc.GetBalance(ctx, f.provider)
	require.NoError(t, err)
	assert.InDelta(t, 95.0, wallet.Current, 1e-9)

	txs, err := f.svc.Transactions(ctx, f.provider)
	require.NoError(t, err)
	assert.Len(t, txs, 2)

	assert.InDelta(t, 1, testutil.ToFloat64(f.metrics.Settlements.WithLabelValues("donation", "ok")), 0)
	assert.InDelta(t, 9500, testutil.ToFloat64(f.metrics.SettledAmount.WithLabelValues("USD")), 0)
}

func TestSettle_BookingMarksAppointmentPaid(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	a, err := f.svc.BookAppointment(ctx, f.customer, BookingRequest{
		ProviderID:  f.provider.UserID,
		ServiceIDs:  []int64{f.haircut.ID},
		Date:        testDate,
		StartMinute: 600,
	})
	require.NoError(t, err)

	_, err = f.svc.Settle(ctx, SettleRequest{
		Kind:              model.SettlementBooking,
		PayerID:           f.customer.UserID,
		PayeeID:           f.provider.UserID,
		GrossAmount:       a.Price,
		Currency:          "RUB",
		SourceReferenceID: strconv.FormatInt(a.ID, 10),
	})
	require.NoError(t, err)

	got, err := f.svc.GetAppointment(ctx, f.customer, a.ID)
	require.NoError(t, err)
	assert.True(t, got.IsPaid)
}

func TestSettle_Failures(t *testing.T) {
	f := newFixture(t, WithSettlementDedup(true))
	ctx := context.Background()

	req := SettleRequest{
		Kind:              model.SettlementDonation,
		PayerID:           f.customer.UserID,
		PayeeID:           f.provider.UserID,
		GrossAmount:       100,
		Currency:          "USD",
		SourceReferenceID: "don-7",
	}

	_, err := f.svc.Settle(ctx, req)
	require.NoError(t, err)

	_, err = f.svc.Settle(ctx, req)
	assert.ErrorIs(t, err, settlement.ErrDuplicateSettlement)
	assert.InDelta(t, 1, testutil.ToFloat64(f.metrics.Settlements.WithLabelValues("donation", "duplicate")), 0)

	bad := req
	bad.GrossAmount = 0
	_, err = f.svc.Settle(ctx, bad)
	assert.ErrorIs(t, err, settlement.ErrSettlementFailure)

	unknown := req
	unknown.Kind = "refund"
	_, err = f.svc.Settle(ctx, unknown)
	assert.ErrorIs(t, err, settlement.ErrSettlementFailure)
}

func TestWithdraw(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Withdraw(ctx, f.provider, "79927398713", -10)
	assert.ErrorIs(t, err, ErrValidation)

	_, err = f.svc.Withdraw(ctx, f.provider, "79927398713", 10)
	assert.ErrorIs(t, err, settlement.ErrInsufficientBalance)

	f.repo.balances[f.provider.UserID] = 2000

	entry, err := f.svc.Withdraw(ctx, f.provider, "79927398713", 12.5)
	require.NoError(t, err)
	assert.Equal(t, int64(1250), entry.Amount)
	assert.Equal(t, model.TransactionDebit, entry.Type)

	wallet, err := f.svc.GetBalance(ctx, f.provider)
	require.NoError(t, err)
	assert.InDelta(t, 7.5, wallet.Current, 1e-9)
	assert.InDelta(t, 12.5, wallet.Withdrawn, 1e-9)
}

func TestOrders(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	existed, err := f.svc.AddOrder(ctx, f.customer, "79927398713")
	require.NoError(t, err)
	assert.False(t, existed)

	existed, err = f.svc.AddOrder(ctx, f.customer, "79927398713")
	require.NoError(t, err)
	assert.True(t, existed)

	_, err = f.svc.AddOrder(ctx, f.provider, "79927398713")
	assert.ErrorIs(t, err, repository.ErrOrderOwnedByAnother)

	orders, err := f.svc.Orders(ctx, f.customer)
	require.NoError(t, err)
	assert.Len(t, orders, 1)

	a, err := f.svc.BookAppointment(ctx, f.customer, BookingRequest{
		ProviderID:  f.provider.UserID,
		ServiceIDs:  []int64{f.haircut.ID},
		Date:        testDate,
		StartMinute: 600,
		OrderRef:    "79927398713",
	})
	require.NoError(t, err)
	assert.NotZero(t, a.ID)
}

func TestProviderServices_PropagatesError(t *testing.T) {
	f := newFixture(t)
	f.repo.listErr = errors.New("db down")

	_, err := f.svc.ProviderServices(context.Background(), 999)
	assert.Error(t, err)
}

func TestBookAppointment_ZeroLengthNeverBlocksSlot(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for _, ids := range [][]int64{nil, {9999}} {
		_, err := f.svc.BookAppointment(ctx, f.customer, BookingRequest{
			ProviderID:  f.provider.UserID,
			ServiceIDs:  ids,
			Date:        testDate,
			StartMinute: 600,
		})
		assert.ErrorIs(t, err, ErrValidation)
	}
	assert.Empty(t, f.repo.appointments)
	assert.Empty(t, f.notifier.sent)

	a, err := f.svc.BookAppointment(ctx, f.customer, BookingRequest{
		ProviderID:  f.provider.UserID,
		ServiceIDs:  []int64{f.haircut.ID},
		Date:        testDate,
		StartMinute: 590,
	})
	require.NoError(t, err)
	assert.Equal(t, model.TimeRange{Start: 590, End: 620}, a.TimeRange)
}

func TestBookAppointment_OrderOfAnotherUser(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.AddOrder(ctx, f.provider, "79927398713")
	require.NoError(t, err)

	_, err = f.svc.BookAppointment(ctx, f.customer, BookingRequest{
		ProviderID:  f.provider.UserID,
		ServiceIDs:  []int64{f.haircut.ID},
		Date:        testDate,
		StartMinute: 600,
		OrderRef:    "79927398713",
	})
	assert.ErrorIs(t, err, repository.ErrOrderNotFound)
	assert.Empty(t, f.repo.attached)
}

func TestBookAppointment_OrderLinkedOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.AddOrder(ctx, f.customer, "79927398713")
	require.NoError(t, err)

	req := BookingRequest{
		ProviderID:  f.provider.UserID,
		ServiceIDs:  []int64{f.haircut.ID},
		Date:        testDate,
		StartMinute: 600,
		OrderRef:    "79927398713",
	}

	a, err := f.svc.BookAppointment(ctx, f.customer, req)
	require.NoError(t, err)
	assert.Equal(t, a.ID, f.repo.attached["79927398713"])

	req.StartMinute = 700
	_, err = f.svc.BookAppointment(ctx, f.customer, req)
	assert.ErrorIs(t, err, repository.ErrOrderNotFound)
}

func TestSettle_RejectsSelfCredit(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Settle(ctx, SettleRequest{
		Kind:              model.SettlementDonation,
		PayerID:           f.customer.UserID,
		PayeeID:           f.customer.UserID,
		GrossAmount:       100000000,
		Currency:          "RUB",
		SourceReferenceID: "don-self",
	})
	assert.ErrorIs(t, err, settlement.ErrSettlementFailure)

	_, err = f.svc.Withdraw(ctx, f.customer, "79927398713", 1000000)
	assert.ErrorIs(t, err, settlement.ErrInsufficientBalance)
	assert.Empty(t, f.repo.transactions)
}

func TestSettle_BookingMustMatchAppointment(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	stranger := model.Principal{UserID: f.repo.addUser("stranger")}

	a, err := f.svc.BookAppointment(ctx, f.customer, BookingRequest{
		ProviderID:  f.provider.UserID,
		ServiceIDs:  []int64{f.haircut.ID},
		Date:        testDate,
		StartMinute: 600,
	})
	require.NoError(t, err)

	valid := SettleRequest{
		Kind:              model.SettlementBooking,
		PayerID:           f.customer.UserID,
		PayeeID:           f.provider.UserID,
		GrossAmount:       a.Price,
		Currency:          "RUB",
		SourceReferenceID: strconv.FormatInt(a.ID, 10),
	}

	tests := []struct {
		name   string
		mutate func(r *SettleRequest)
	}{
		{name: "amount below price", mutate: func(r *SettleRequest) { r.GrossAmount = 1 }},
		{name: "paid to the customer", mutate: func(r *SettleRequest) { r.PayerID, r.PayeeID = f.provider.UserID, f.customer.UserID }},
		{name: "paid to a stranger", mutate: func(r *SettleRequest) { r.PayeeID = stranger.UserID }},
		{name: "paid by a stranger", mutate: func(r *SettleRequest) { r.PayerID = stranger.UserID }},
		{name: "unknown appointment", mutate: func(r *SettleRequest) { r.SourceReferenceID = "424242" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := valid
			tt.mutate(&req)

			_, err := f.svc.Settle(ctx, req)
			assert.ErrorIs(t, err, settlement.ErrSettlementFailure)
		})
	}

	got, err := f.svc.GetAppointment(ctx, f.customer, a.ID)
	require.NoError(t, err)
	assert.False(t, got.IsPaid)
	assert.Empty(t, f.repo.transactions)
	assert.Empty(t, f.repo.balances)
}

func TestWithdraw_SumBounds(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.repo.balances[f.provider.UserID] = 5000

	for _, sum := range []float64{0, 0.004, 1e300, math.Inf(1), math.NaN()} {
		_, err := f.svc.Withdraw(ctx, f.provider, "79927398713", sum)
		assert.ErrorIs(t, err, ErrValidation, sum)
	}

	entry, err := f.svc.Withdraw(ctx, f.provider, "79927398713", 12.345)
	require.NoError(t, err)
	assert.Equal(t, int64(1235), entry.Amount)
}
