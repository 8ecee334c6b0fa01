// Package notify доставляет события о новых записях внешним получателям.
package notify

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/mmeshcher/yenabook/internal/model"
)

// EventAppointmentCreated задаёт тип события о сохранённой записи.
const EventAppointmentCreated = "appointment.created"

// Event описывает уведомление о записи в том виде, в каком оно уходит получателям.
type Event struct {
	ID            string            `json:"id"`
	Type          string            `json:"type"`
	AppointmentID int64             `json:"appointment_id"`
	ProviderID    int64             `json:"provider_id"`
	CustomerID    int64             `json:"customer_id"`
	ServiceIDs    []int64           `json:"service_ids"`
	Date          string            `json:"date"`
	Start         int               `json:"start_minute"`
	End           int               `json:"end_minute"`
	Price         int64             `json:"price"`
	IsPaid        bool              `json:"is_paid"`
	Status        string            `json:"status"`
	Settings      map[string]string `json:"settings,omitempty"`
	OccurredAt    time.Time         `json:"occurred_at"`
}

// NewAppointmentEvent строит событие по сохранённой записи.
func NewAppointmentEvent(a model.Appointment) Event {
	return Event{
		ID:            uuid.NewString(),
		Type:          EventAppointmentCreated,
		AppointmentID: a.ID,
		ProviderID:    a.ProviderID,
		CustomerID:    a.CustomerID,
		ServiceIDs:    a.ServiceIDs,
		Date:          a.Date.Format(time.DateOnly),
		Start:         a.TimeRange.Start,
		End:           a.TimeRange.End,
		Price:         a.Price,
		IsPaid:        a.IsPaid,
		Status:        string(a.Status),
		Settings:      a.Settings,
		OccurredAt:    time.Now().UTC(),
	}
}

// Key возвращает ключ партиционирования события: все события исполнителя попадают в одну партицию.
func (e Event) Key() string {
	return fmt.Sprintf("provider-%d", e.ProviderID)
}
