package repository

import (
	"context"
	"fmt"

	"github.com/mmeshcher/yenabook/internal/model"
)

// CreateService сохраняет услугу исполнителя.
func (r *PostgresRepository) CreateService(ctx context.Context, s *model.Service) error {
	err := r.conn(ctx).QueryRow(ctx,
		`INSERT INTO services (provider_id, name, price, duration_minutes)
		 VALUES ($1, $2, $3, $4)
		 RETURNING id`,
		s.ProviderID, s.Name, s.Price, s.DurationMinutes,
	).Scan(&s.ID)
	if err != nil {
		return fmt.Errorf("insert service: %w", err)
	}
	return nil
}

// ListServicesByProvider возвращает услуги исполнителя.
func (r *PostgresRepository) ListServicesByProvider(ctx context.Context, providerID int64) ([]model.Service, error) {
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT id, provider_id, name, price, duration_minutes
		 FROM services
		 WHERE provider_id = $1
		 ORDER BY id`,
		providerID,
	)
	if err != nil {
		return nil, fmt.Errorf("select services: %w", err)
	}
	defer rows.Close()

	var res []model.Service
	for rows.Next() {
		var s model.Service
		if err := rows.Scan(&s.ID, &s.ProviderID, &s.Name, &s.Price, &s.DurationMinutes); err != nil {
			return nil, fmt.Errorf("scan service: %w", err)
		}
		res = append(res, s)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return res, nil
}

// AddOrder сохраняет ожидающий заказ и возвращает признак того, что он уже существовал у пользователя.
func (r *PostgresRepository) AddOrder(ctx context.Context, userID int64, reference string) (bool, error) {
	var alreadyExists bool
	err := r.inTx(ctx, func(ctx context.Context) error {
		tag, err := r.conn(ctx).Exec(ctx,
			`INSERT INTO pending_orders (reference, user_id) VALUES ($1, $2) ON CONFLICT (reference) DO NOTHING`,
			reference, userID,
		)
		if err != nil {
			return fmt.Errorf("insert order: %w", err)
		}

		inserted := tag.RowsAffected() == 1

		var ownerID int64
		err = r.conn(ctx).QueryRow(ctx,
			`SELECT user_id FROM pending_orders WHERE reference = $1`,
			reference,
		).Scan(&ownerID)
		if err != nil {
			return fmt.Errorf("select existing order: %w", err)
		}

		if ownerID != userID {
			return ErrOrderOwnedByAnother
		}
		alreadyExists = !inserted
		return nil
	})
	if err != nil {
		return false, err
	}
	return alreadyExists, nil
}

// ListOrdersByUser возвращает ожидающие и привязанные заказы пользователя.
func (r *PostgresRepository) ListOrdersByUser(ctx context.Context, userID int64) ([]model.PendingOrder, error) {
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT reference, appointment_id, uploaded_at
		 FROM pending_orders
		 WHERE user_id = $1
		 ORDER BY uploaded_at DESC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("select orders: %w", err)
	}
	defer rows.Close()

	var res []model.PendingOrder
	for rows.Next() {
		var o model.PendingOrder
		if err := rows.Scan(&o.Reference, &o.AppointmentID, &o.UploadedAt); err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		res = append(res, o)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return res, nil
}

// AttachOrder привязывает к записи ожидающий заказ, загруженный пользователем userID.
// Чужой или уже привязанный заказ считается ненайденным.
func (r *PostgresRepository) AttachOrder(ctx context.Context, reference string, userID, appointmentID int64) error {
	tag, err := r.conn(ctx).Exec(ctx,
		`UPDATE pending_orders SET appointment_id = $3
		 WHERE reference = $1 AND user_id = $2 AND appointment_id IS NULL`,
		reference, userID, appointmentID,
	)
	if err != nil {
		return fmt.Errorf("update order: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", ErrOrderNotFound, reference)
	}
	return nil
}
