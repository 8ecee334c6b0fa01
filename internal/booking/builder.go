package booking

import (
	"context"
	"fmt"
	"time"

	"github.com/mmeshcher/yenabook/internal/model"
	"github.com/mmeshcher/yenabook/internal/validation"
)

// Store описывает хранилище, которое нужно построителю записи.
type Store interface {
	AppointmentLister
	UserExists(ctx context.Context, userID int64) (bool, error)
	CreateAppointment(ctx context.Context, a *model.Appointment) error
	// AttachOrder привязывает к записи ожидающий заказ, загруженный пользователем userID.
	AttachOrder(ctx context.Context, orderRef string, userID, appointmentID int64) error
	// WithinSlotLock выполняет fn, удерживая блокировку пары (исполнитель, дата).
	// Операции хранилища внутри fn должны использовать переданный контекст.
	WithinSlotLock(ctx context.Context, providerID int64, date time.Time, fn func(ctx context.Context) error) error
}

// Notifier получает сохранённые записи. Ошибки доставки не влияют на бронирование.
type Notifier interface {
	Notify(a model.Appointment)
}

// Builder накапливает параметры записи и сохраняет её после проверки слота.
type Builder struct {
	store     Store
	validator *SlotValidator
	notifier  Notifier
	catalog   map[int64]model.Service

	providerID int64
	customerID int64
	serviceIDs []int64
	date       time.Time
	timeRange  model.TimeRange
	price      int64
	isPaid     bool
	orderRef   string
	settings   map[string]string
}

// NewBuilder создаёт построитель записи к исполнителю providerID.
// В расчёт длительности и цены попадают только услуги из catalog, принадлежащие этому исполнителю.
func NewBuilder(store Store, notifier Notifier, providerID int64, catalog []model.Service) *Builder {
	byID := make(map[int64]model.Service, len(catalog))
	for _, s := range catalog {
		if s.ProviderID == providerID {
			byID[s.ID] = s
		}
	}

	return &Builder{
		store:      store,
		validator:  NewSlotValidator(store),
		notifier:   notifier,
		catalog:    byID,
		providerID: providerID,
	}
}

// WithServices запоминает упорядоченный список услуг. Цена пока не пересчитывается.
func (b *Builder) WithServices(ids []int64) *Builder {
	b.serviceIDs = append([]int64(nil), ids...)
	return b
}

// WithDate задаёт дату записи.
func (b *Builder) WithDate(date time.Time) *Builder {
	y, m, d := date.Date()
	b.date = time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	return b
}

// WithTimeStart задаёт начало записи и вычисляет её конец по длительностям выбранных услуг.
// Тем же проходом пересчитывается суммарная цена услуг.
func (b *Builder) WithTimeStart(start int) *Builder {
	duration := 0
	b.price = 0
	for _, id := range b.serviceIDs {
		s, ok := b.catalog[id]
		if !ok {
			continue
		}
		duration += s.DurationMinutes
		b.price += s.Price
	}

	b.timeRange = model.TimeRange{Start: start, End: start + duration}
	return b
}

// WithCustomer задаёт клиента записи.
func (b *Builder) WithCustomer(customerID int64) *Builder {
	b.customerID = customerID
	return b
}

// WithPaid отмечает, оплачена ли запись при оформлении.
func (b *Builder) WithPaid(isPaid bool) *Builder {
	b.isPaid = isPaid
	return b
}

// WithOrderRef привязывает к записи ожидающий заказ оформления.
func (b *Builder) WithOrderRef(ref string) *Builder {
	b.orderRef = ref
	return b
}

// WithSettings задаёт произвольные настройки записи.
func (b *Builder) WithSettings(settings map[string]string) *Builder {
	b.settings = settings
	return b
}

// Range возвращает вычисленный интервал записи.
func (b *Builder) Range() model.TimeRange {
	return b.timeRange
}

// Duration возвращает суммарную длительность выбранных услуг в минутах.
func (b *Builder) Duration() int {
	return b.timeRange.Duration()
}

// Price возвращает суммарную цену выбранных услуг.
func (b *Builder) Price() int64 {
	return b.price
}

// Save проверяет клиента, исполнителя, интервал и свободность слота и сохраняет запись.
// Пустой интервал или интервал за пределами суток отклоняется с ErrInvalidRange.
// Проверка слота и вставка выполняются под блокировкой (исполнитель, дата).
func (b *Builder) Save(ctx context.Context) (*model.Appointment, error) {
	if err := b.requireUser(ctx, b.customerID, ErrCustomerNotFound); err != nil {
		return nil, err
	}
	if err := b.requireUser(ctx, b.providerID, ErrProviderNotFound); err != nil {
		return nil, err
	}
	if !validation.IsValidRange(b.timeRange.Start, b.timeRange.End) {
		return nil, fmt.Errorf("%w: [%d, %d)", ErrInvalidRange, b.timeRange.Start, b.timeRange.End)
	}

	appointment := &model.Appointment{
		ProviderID: b.providerID,
		CustomerID: b.customerID,
		ServiceIDs: append([]int64(nil), b.serviceIDs...),
		Date:       b.date,
		TimeRange:  b.timeRange,
		Price:      b.price,
		IsPaid:     b.isPaid,
		Status:     StatusForPayment(b.isPaid),
		Settings:   b.settings,
	}

	err := b.store.WithinSlotLock(ctx, b.providerID, b.date, func(ctx context.Context) error {
		taken, err := b.validator.IsSlotTaken(ctx, b.providerID, b.date, b.timeRange)
		if err != nil {
			return err
		}
		if taken {
			return ErrSlotConflict
		}

		if err := b.store.CreateAppointment(ctx, appointment); err != nil {
			return fmt.Errorf("create appointment: %w", err)
		}

		if b.orderRef != "" {
			if err := b.store.AttachOrder(ctx, b.orderRef, b.customerID, appointment.ID); err != nil {
				return fmt.Errorf("attach order: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if b.notifier != nil {
		b.notifier.Notify(*appointment)
	}

	return appointment, nil
}

func (b *Builder) requireUser(ctx context.Context, userID int64, notFound error) error {
	if userID <= 0 {
		return notFound
	}
	ok, err := b.store.UserExists(ctx, userID)
	if err != nil {
		return fmt.Errorf("check user: %w", err)
	}
	if !ok {
		return notFound
	}
	return nil
}
