package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/mmeshcher/yenabook/internal/booking"
	"github.com/mmeshcher/yenabook/internal/model"
)

const appointmentColumns = `id, provider_id, customer_id, service_ids, date, start_minute, end_minute,
	price, is_paid, status, settings, created_at`

// SlotLockKey возвращает ключ advisory-блокировки пары (исполнитель, дата).
func SlotLockKey(providerID int64, date time.Time) string {
	return fmt.Sprintf("slot:%d:%s", providerID, date.Format(time.DateOnly))
}

// WithinSlotLock выполняет fn в транзакции, удерживая advisory-блокировку пары (исполнитель, дата).
// Параллельные бронирования одного дня исполнителя выполняются последовательно.
func (r *PostgresRepository) WithinSlotLock(ctx context.Context, providerID int64, date time.Time, fn func(ctx context.Context) error) error {
	return r.inTx(ctx, func(ctx context.Context) error {
		_, err := r.conn(ctx).Exec(ctx,
			`SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`,
			SlotLockKey(providerID, date),
		)
		if err != nil {
			return fmt.Errorf("lock slot: %w", err)
		}
		return fn(ctx)
	})
}

// ListActiveAppointments возвращает записи исполнителя на дату в статусах, занимающих слот.
func (r *PostgresRepository) ListActiveAppointments(ctx context.Context, providerID int64, date time.Time) ([]model.Appointment, error) {
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+appointmentColumns+`
		 FROM appointments
		 WHERE provider_id = $1 AND date = $2 AND status IN ($3, $4)
		 ORDER BY start_minute`,
		providerID, date,
		string(model.AppointmentStatusPending),
		string(model.AppointmentStatusCompleted),
	)
	if err != nil {
		return nil, fmt.Errorf("select appointments: %w", err)
	}
	defer rows.Close()

	var res []model.Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, fmt.Errorf("scan appointment: %w", err)
		}
		res = append(res, *a)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return res, nil
}

// CreateAppointment сохраняет новую запись и заполняет её идентификатор и время создания.
func (r *PostgresRepository) CreateAppointment(ctx context.Context, a *model.Appointment) error {
	settings := a.Settings
	if settings == nil {
		settings = map[string]string{}
	}
	serviceIDs := a.ServiceIDs
	if serviceIDs == nil {
		serviceIDs = []int64{}
	}

	err := r.conn(ctx).QueryRow(ctx,
		`INSERT INTO appointments
			(provider_id, customer_id, service_ids, date, start_minute, end_minute, price, is_paid, status, settings)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		 RETURNING id, created_at`,
		a.ProviderID, a.CustomerID, serviceIDs, a.Date, a.TimeRange.Start, a.TimeRange.End,
		a.Price, a.IsPaid, string(a.Status), settings,
	).Scan(&a.ID, &a.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert appointment: %w", err)
	}
	return nil
}

// GetAppointment возвращает запись по идентификатору.
func (r *PostgresRepository) GetAppointment(ctx context.Context, id int64) (*model.Appointment, error) {
	row := r.conn(ctx).QueryRow(ctx,
		`SELECT `+appointmentColumns+` FROM appointments WHERE id = $1`,
		id,
	)

	a, err := scanAppointment(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, booking.ErrAppointmentNotFound
		}
		return nil, fmt.Errorf("get appointment: %w", err)
	}
	return a, nil
}

// UpdateAppointmentStatus меняет статус записи, только если текущий статус равен from.
func (r *PostgresRepository) UpdateAppointmentStatus(ctx context.Context, id int64, from, to model.AppointmentStatus) error {
	tag, err := r.conn(ctx).Exec(ctx,
		`UPDATE appointments SET status = $3 WHERE id = $1 AND status = $2`,
		id, string(from), string(to),
	)
	if err != nil {
		return fmt.Errorf("update appointment status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: status of appointment %d changed concurrently", booking.ErrInvalidTransition, id)
	}
	return nil
}

// MarkAppointmentPaid отмечает запись оплаченной.
func (r *PostgresRepository) MarkAppointmentPaid(ctx context.Context, appointmentID int64) error {
	tag, err := r.conn(ctx).Exec(ctx,
		`UPDATE appointments SET is_paid = TRUE WHERE id = $1`,
		appointmentID,
	)
	if err != nil {
		return fmt.Errorf("mark appointment paid: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return booking.ErrAppointmentNotFound
	}
	return nil
}

func scanAppointment(row pgx.Row) (*model.Appointment, error) {
	var (
		a      model.Appointment
		status string
	)
	err := row.Scan(
		&a.ID,
		&a.ProviderID,
		&a.CustomerID,
		&a.ServiceIDs,
		&a.Date,
		&a.TimeRange.Start,
		&a.TimeRange.End,
		&a.Price,
		&a.IsPaid,
		&status,
		&a.Settings,
		&a.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	a.Status = model.AppointmentStatus(status)
	return &a, nil
}
