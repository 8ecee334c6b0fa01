package booking

import (
	"fmt"

	"github.com/mmeshcher/yenabook/internal/model"
)

// StatusForPayment определяет начальный статус записи по признаку оплаты.
func StatusForPayment(isPaid bool) model.AppointmentStatus {
	if isPaid {
		return model.AppointmentStatusCompleted
	}
	return model.AppointmentStatusPending
}

// CheckTransition проверяет, допустим ли переход записи из статуса from в статус to.
// Отменённая запись не меняет статус, завершённую нельзя отменить.
func CheckTransition(from, to model.AppointmentStatus) error {
	if from == model.AppointmentStatusPending &&
		(to == model.AppointmentStatusCompleted || to == model.AppointmentStatusCanceled) {
		return nil
	}
	return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
}
