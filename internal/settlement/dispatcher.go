package settlement

import (
	"context"
	"fmt"
	"strconv"

	"go.uber.org/zap"

	"github.com/mmeshcher/yenabook/internal/model"
)

// Handler проводит событие расчёта определённого типа.
type Handler func(ctx context.Context, ev model.SettlementEvent) ([]model.WalletTransaction, error)

// AppointmentPayer загружает запись для сверки оплаты и отмечает её оплаченной.
type AppointmentPayer interface {
	GetAppointment(ctx context.Context, id int64) (*model.Appointment, error)
	MarkAppointmentPaid(ctx context.Context, appointmentID int64) error
}

// Dispatcher выбирает обработчик события расчёта по его типу.
type Dispatcher struct {
	handlers map[model.SettlementKind]Handler
	logger   *zap.Logger
}

// NewDispatcher создаёт пустой диспетчер.
func NewDispatcher(logger *zap.Logger) *Dispatcher {
	return &Dispatcher{
		handlers: make(map[model.SettlementKind]Handler),
		logger:   logger,
	}
}

// NewDefaultDispatcher регистрирует обработчики записей, покупок и пожертвований.
func NewDefaultDispatcher(ledger *Ledger, payer AppointmentPayer, logger *zap.Logger) *Dispatcher {
	d := NewDispatcher(logger)
	d.Register(model.SettlementBooking, d.bookingHandler(ledger, payer))
	d.Register(model.SettlementPurchase, ledger.Settle)
	d.Register(model.SettlementDonation, ledger.Settle)
	return d
}

// Register назначает обработчик для типа события, заменяя предыдущий.
func (d *Dispatcher) Register(kind model.SettlementKind, h Handler) {
	d.handlers[kind] = h
}

// Dispatch передаёт событие зарегистрированному обработчику.
func (d *Dispatcher) Dispatch(ctx context.Context, ev model.SettlementEvent) ([]model.WalletTransaction, error) {
	h, ok := d.handlers[ev.Kind]
	if !ok {
		return nil, fmt.Errorf("%w: unknown event kind %q", ErrSettlementFailure, ev.Kind)
	}
	return h(ctx, ev)
}

// bookingHandler проводит оплату записи и отмечает запись оплаченной.
// Получатель, плательщик и сумма должны совпадать с исполнителем, клиентом и ценой записи.
// Ошибка отметки не отменяет уже проведённое зачисление.
func (d *Dispatcher) bookingHandler(ledger *Ledger, payer AppointmentPayer) Handler {
	return func(ctx context.Context, ev model.SettlementEvent) ([]model.WalletTransaction, error) {
		appointmentID, err := strconv.ParseInt(ev.SourceReferenceID, 10, 64)
		if err != nil || appointmentID <= 0 {
			return nil, fmt.Errorf("%w: booking reference %q is not an appointment id", ErrSettlementFailure, ev.SourceReferenceID)
		}

		a, err := payer.GetAppointment(ctx, appointmentID)
		if err != nil {
			return nil, fmt.Errorf("%w: load appointment %d: %w", ErrSettlementFailure, appointmentID, err)
		}
		if err := matchAppointment(ev, a); err != nil {
			return nil, err
		}

		entries, err := ledger.Settle(ctx, ev)
		if err != nil {
			return nil, err
		}

		if err := payer.MarkAppointmentPaid(ctx, appointmentID); err != nil {
			d.logger.Warn("mark appointment paid failed",
				zap.Error(err),
				zap.Int64("appointmentID", appointmentID),
			)
		}

		return entries, nil
	}
}

func matchAppointment(ev model.SettlementEvent, a *model.Appointment) error {
	switch {
	case a.Status == model.AppointmentStatusCanceled:
		return fmt.Errorf("%w: appointment %d is canceled", ErrSettlementFailure, a.ID)
	case ev.PayeeID != a.ProviderID:
		return fmt.Errorf("%w: payee is not the provider of appointment %d", ErrSettlementFailure, a.ID)
	case ev.PayerID != a.CustomerID:
		return fmt.Errorf("%w: payer is not the customer of appointment %d", ErrSettlementFailure, a.ID)
	case ev.GrossAmount != a.Price:
		return fmt.Errorf("%w: amount %d does not match appointment price %d", ErrSettlementFailure, ev.GrossAmount, a.Price)
	}
	return nil
}
