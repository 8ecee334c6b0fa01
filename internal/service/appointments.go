package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/mmeshcher/yenabook/internal/booking"
	"github.com/mmeshcher/yenabook/internal/model"
	"github.com/mmeshcher/yenabook/internal/validation"
)

// BookingRequest содержит параметры новой записи.
// Нулевой CustomerID означает запись самого принципала.
type BookingRequest struct {
	ProviderID  int64
	CustomerID  int64
	ServiceIDs  []int64
	Date        time.Time
	StartMinute int
	IsPaid      bool
	OrderRef    string
	Settings    map[string]string
}

// SlotQuery описывает запрос свободных слотов исполнителя на дату.
type SlotQuery struct {
	ProviderID int64
	Date       time.Time
	Duration   int
	Step       int
	Opens      int
	Closes     int
}

// BookAppointment записывает клиента к исполнителю.
// Записать другого клиента может только сам исполнитель.
func (s *Service) BookAppointment(ctx context.Context, p model.Principal, req BookingRequest) (*model.Appointment, error) {
	customerID := req.CustomerID
	if customerID == 0 {
		customerID = p.UserID
	}
	if customerID != p.UserID && req.ProviderID != p.UserID {
		return nil, ErrForbidden
	}

	if !validation.IsValidStartMinute(req.StartMinute) {
		return nil, fmt.Errorf("%w: start minute %d is outside the day", ErrValidation, req.StartMinute)
	}
	if req.OrderRef != "" && !validation.IsValidOrderReference(req.OrderRef) {
		return nil, fmt.Errorf("%w: invalid order reference", ErrValidation)
	}

	catalog, err := s.ProviderServices(ctx, req.ProviderID)
	if err != nil {
		return nil, fmt.Errorf("load services: %w", err)
	}

	b := booking.NewBuilder(s.repo, s.notifier, req.ProviderID, catalog).
		WithServices(req.ServiceIDs).
		WithDate(req.Date).
		WithTimeStart(req.StartMinute).
		WithCustomer(customerID).
		WithPaid(req.IsPaid).
		WithOrderRef(req.OrderRef).
		WithSettings(req.Settings)

	a, err := b.Save(ctx)
	if err != nil {
		switch {
		case errors.Is(err, booking.ErrSlotConflict):
			s.metrics.SlotConflicts.Inc()
		case errors.Is(err, booking.ErrInvalidRange):
			return nil, fmt.Errorf("%w: %w", ErrValidation, err)
		}
		return nil, err
	}

	s.metrics.BookingsCreated.Inc()
	s.logger.Info("appointment booked",
		zap.Int64("appointmentID", a.ID),
		zap.Int64("providerID", a.ProviderID),
		zap.Int64("customerID", a.CustomerID),
		zap.Int("start", a.TimeRange.Start),
		zap.Int("end", a.TimeRange.End),
	)

	return a, nil
}

// FreeSlots возвращает начала свободных интервалов длительностью Duration в рабочем окне исполнителя.
func (s *Service) FreeSlots(ctx context.Context, q SlotQuery) ([]int, error) {
	if q.Closes == 0 {
		q.Closes = validation.MinutesPerDay
	}
	if q.Step <= 0 {
		q.Step = q.Duration
	}
	if q.Duration <= 0 || !validation.IsValidRange(q.Opens, q.Closes) {
		return nil, fmt.Errorf("%w: invalid slot query", ErrValidation)
	}

	y, m, d := q.Date.Date()
	date := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)

	busy, err := booking.NewSlotValidator(s.repo).BusyRanges(ctx, q.ProviderID, date)
	if err != nil {
		return nil, err
	}

	return booking.FreeSlots(busy, q.Opens, q.Closes, q.Duration, q.Step), nil
}

// GetAppointment возвращает запись, если принципал её клиент или исполнитель.
func (s *Service) GetAppointment(ctx context.Context, p model.Principal, id int64) (*model.Appointment, error) {
	a, err := s.repo.GetAppointment(ctx, id)
	if err != nil {
		return nil, err
	}
	if a.CustomerID != p.UserID && a.ProviderID != p.UserID {
		return nil, ErrForbidden
	}
	return a, nil
}

// CompleteAppointment переводит запись в статус COMPLETED. Доступно только исполнителю.
func (s *Service) CompleteAppointment(ctx context.Context, p model.Principal, id int64) (*model.Appointment, error) {
	return s.transition(ctx, p, id, model.AppointmentStatusCompleted, func(a *model.Appointment) bool {
		return a.ProviderID == p.UserID
	})
}

// CancelAppointment переводит запись в статус CANCELED. Доступно клиенту и исполнителю.
func (s *Service) CancelAppointment(ctx context.Context, p model.Principal, id int64) (*model.Appointment, error) {
	return s.transition(ctx, p, id, model.AppointmentStatusCanceled, func(a *model.Appointment) bool {
		return a.ProviderID == p.UserID || a.CustomerID == p.UserID
	})
}

func (s *Service) transition(ctx context.Context, p model.Principal, id int64, to model.AppointmentStatus, allowed func(a *model.Appointment) bool) (*model.Appointment, error) {
	a, err := s.repo.GetAppointment(ctx, id)
	if err != nil {
		return nil, err
	}
	if !allowed(a) {
		return nil, ErrForbidden
	}

	if err := booking.CheckTransition(a.Status, to); err != nil {
		return nil, err
	}

	if err := s.repo.UpdateAppointmentStatus(ctx, id, a.Status, to); err != nil {
		return nil, err
	}

	s.logger.Info("appointment status changed",
		zap.Int64("appointmentID", id),
		zap.String("from", string(a.Status)),
		zap.String("to", string(to)),
	)

	a.Status = to
	return a, nil
}
