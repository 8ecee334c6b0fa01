// Package service реализует прикладную логику сервиса бронирования и расчётов.
package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/patrickmn/go-cache"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/mmeshcher/yenabook/internal/booking"
	"github.com/mmeshcher/yenabook/internal/metrics"
	"github.com/mmeshcher/yenabook/internal/model"
	"github.com/mmeshcher/yenabook/internal/repository"
	"github.com/mmeshcher/yenabook/internal/settlement"
)

var (
	// ErrInvalidCredentials возвращается при неверном логине или пароле.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrForbidden возвращается, если принципал не участвует в записи или операции.
	ErrForbidden = errors.New("forbidden")
	// ErrValidation возвращается при некорректных входных данных.
	ErrValidation = errors.New("validation failed")
)

// DefaultCurrency используется для списаний, если валюта не указана.
const DefaultCurrency = "RUB"

const (
	catalogTTL             = 5 * time.Minute
	catalogCleanupInterval = 10 * time.Minute
)

// Repository описывает контракт доступа к данным, используемый сервисом.
type Repository interface {
	booking.Store
	settlement.Store
	settlement.AppointmentPayer

	Close() error
	CreateUser(ctx context.Context, login string, passwordHash []byte) (int64, error)
	GetUserByLogin(ctx context.Context, login string) (*model.User, error)

	CreateService(ctx context.Context, s *model.Service) error
	ListServicesByProvider(ctx context.Context, providerID int64) ([]model.Service, error)

	GetAppointment(ctx context.Context, id int64) (*model.Appointment, error)
	UpdateAppointmentStatus(ctx context.Context, id int64, from, to model.AppointmentStatus) error

	AddOrder(ctx context.Context, userID int64, reference string) (bool, error)
	ListOrdersByUser(ctx context.Context, userID int64) ([]model.PendingOrder, error)

	ListTransactions(ctx context.Context, userID int64) ([]model.WalletTransaction, error)
}

// Service содержит прикладную логику сервиса бронирования.
type Service struct {
	repo       Repository
	notifier   booking.Notifier
	ledger     *settlement.Ledger
	dispatcher *settlement.Dispatcher
	catalog    *cache.Cache
	metrics    *metrics.Metrics
	logger     *zap.Logger

	defaultFee   float64
	dedup        bool
	passwordCost int
}

// Option настраивает Service.
type Option func(*Service)

// WithDefaultFee задаёт комиссию платформы для событий расчёта, в которых она не указана.
func WithDefaultFee(pct float64) Option {
	return func(s *Service) {
		s.defaultFee = pct
	}
}

// WithSettlementDedup включает отказ от повторного проведения события расчёта.
func WithSettlementDedup(enabled bool) Option {
	return func(s *Service) {
		s.dedup = enabled
	}
}

// WithPasswordCost задаёт стоимость bcrypt при хешировании паролей.
func WithPasswordCost(cost int) Option {
	return func(s *Service) {
		s.passwordCost = cost
	}
}

// NewService создаёт сервис поверх репозитория. Сохранённые записи передаются notifier.
func NewService(repo Repository, notifier booking.Notifier, m *metrics.Metrics, logger *zap.Logger, opts ...Option) *Service {
	s := &Service{
		repo:         repo,
		notifier:     notifier,
		catalog:      cache.New(catalogTTL, catalogCleanupInterval),
		metrics:      m,
		logger:       logger,
		passwordCost: bcrypt.DefaultCost,
	}
	for _, opt := range opts {
		opt(s)
	}

	s.ledger = settlement.NewLedger(repo, settlement.WithDeduplication(s.dedup))
	s.dispatcher = settlement.NewDefaultDispatcher(s.ledger, repo, logger)

	return s
}

// Close закрывает ресурсы сервиса.
func (s *Service) Close() error {
	if s.repo != nil {
		return s.repo.Close()
	}
	return nil
}

// RegisterUser регистрирует нового пользователя.
func (s *Service) RegisterUser(ctx context.Context, login, password string) (int64, error) {
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), s.passwordCost)
	if err != nil {
		return 0, fmt.Errorf("hash password: %w", err)
	}

	id, err := s.repo.CreateUser(ctx, login, hashed)
	if err != nil {
		return 0, err
	}
	return id, nil
}

// AuthenticateUser проверяет логин и пароль пользователя и возвращает его идентификатор.
func (s *Service) AuthenticateUser(ctx context.Context, login, password string) (int64, error) {
	u, err := s.repo.GetUserByLogin(ctx, login)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return 0, ErrInvalidCredentials
		}
		return 0, err
	}

	if err := bcrypt.CompareHashAndPassword(u.PasswordHash, []byte(password)); err != nil {
		return 0, ErrInvalidCredentials
	}

	return u.ID, nil
}

// AddOrder сохраняет номер заказа оформления пользователя для последующей привязки к записи.
func (s *Service) AddOrder(ctx context.Context, p model.Principal, reference string) (bool, error) {
	return s.repo.AddOrder(ctx, p.UserID, reference)
}

// Orders возвращает заказы оформления пользователя.
func (s *Service) Orders(ctx context.Context, p model.Principal) ([]model.PendingOrder, error) {
	return s.repo.ListOrdersByUser(ctx, p.UserID)
}
