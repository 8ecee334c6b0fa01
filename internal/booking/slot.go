// Package booking реализует проверку занятости слотов и оформление записей к исполнителям.
package booking

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/mmeshcher/yenabook/internal/model"
)

var (
	// ErrSlotConflict возвращается, если выбранный интервал уже занят другой записью.
	ErrSlotConflict = errors.New("slot is no longer available")
	// ErrCustomerNotFound возвращается, если клиент записи не найден.
	ErrCustomerNotFound = errors.New("customer not found")
	// ErrProviderNotFound возвращается, если исполнитель не найден.
	ErrProviderNotFound = errors.New("provider not found")
	// ErrAppointmentNotFound возвращается, если запись не найдена.
	ErrAppointmentNotFound = errors.New("appointment not found")
	// ErrInvalidTransition возвращается при недопустимой смене статуса записи.
	ErrInvalidTransition = errors.New("invalid appointment status transition")
	// ErrInvalidRange возвращается, если интервал записи пуст или выходит за пределы суток.
	ErrInvalidRange = errors.New("invalid appointment time range")
)

// AppointmentLister возвращает записи исполнителя на дату, занимающие слоты.
type AppointmentLister interface {
	ListActiveAppointments(ctx context.Context, providerID int64, date time.Time) ([]model.Appointment, error)
}

// SlotValidator определяет, свободен ли интервал у исполнителя на заданную дату.
type SlotValidator struct {
	store AppointmentLister
}

// NewSlotValidator создаёт валидатор поверх хранилища записей.
func NewSlotValidator(store AppointmentLister) *SlotValidator {
	return &SlotValidator{store: store}
}

// IsSlotTaken сообщает, пересекается ли proposed хотя бы с одной активной записью исполнителя.
// Интервал должен быть проверен вызывающей стороной: start < end.
func (v *SlotValidator) IsSlotTaken(ctx context.Context, providerID int64, date time.Time, proposed model.TimeRange) (bool, error) {
	appointments, err := v.store.ListActiveAppointments(ctx, providerID, date)
	if err != nil {
		return false, fmt.Errorf("list appointments: %w", err)
	}

	for _, a := range appointments {
		if !a.Status.Active() {
			continue
		}
		if a.TimeRange.Overlaps(proposed) {
			return true, nil
		}
	}

	return false, nil
}

// BusyRanges возвращает интервалы, занятые активными записями исполнителя на дату.
func (v *SlotValidator) BusyRanges(ctx context.Context, providerID int64, date time.Time) ([]model.TimeRange, error) {
	appointments, err := v.store.ListActiveAppointments(ctx, providerID, date)
	if err != nil {
		return nil, fmt.Errorf("list appointments: %w", err)
	}

	busy := make([]model.TimeRange, 0, len(appointments))
	for _, a := range appointments {
		if a.Status.Active() {
			busy = append(busy, a.TimeRange)
		}
	}
	return busy, nil
}
