package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/mmeshcher/yenabook/internal/model"
)

// WithinWalletLock выполняет fn в транзакции, удерживая блокировку строки кошелька userID.
// Отсутствующий кошелёк создаётся с нулевым балансом.
func (r *PostgresRepository) WithinWalletLock(ctx context.Context, userID int64, fn func(ctx context.Context) error) error {
	return r.inTx(ctx, func(ctx context.Context) error {
		_, err := r.conn(ctx).Exec(ctx,
			`INSERT INTO wallets (user_id) VALUES ($1) ON CONFLICT (user_id) DO NOTHING`,
			userID,
		)
		if err != nil {
			var pgErr *pgconn.PgError
			if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.ForeignKeyViolation {
				return fmt.Errorf("%w: %d", ErrUserNotFound, userID)
			}
			return fmt.Errorf("ensure wallet: %w", err)
		}

		_, err = r.conn(ctx).Exec(ctx,
			`SELECT 1 FROM wallets WHERE user_id = $1 FOR UPDATE`,
			userID,
		)
		if err != nil {
			return fmt.Errorf("lock wallet: %w", err)
		}

		return fn(ctx)
	})
}

// CreditUser увеличивает баланс пользователя.
func (r *PostgresRepository) CreditUser(ctx context.Context, userID, amount int64) error {
	_, err := r.conn(ctx).Exec(ctx,
		`INSERT INTO wallets (user_id, balance) VALUES ($1, $2)
		 ON CONFLICT (user_id) DO UPDATE
		 SET balance = wallets.balance + EXCLUDED.balance, updated_at = now()`,
		userID, amount,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.ForeignKeyViolation {
			return fmt.Errorf("%w: %d", ErrUserNotFound, userID)
		}
		return fmt.Errorf("credit wallet: %w", err)
	}
	return nil
}

// DebitUser уменьшает баланс пользователя и увеличивает сумму списаний.
func (r *PostgresRepository) DebitUser(ctx context.Context, userID, amount int64) error {
	tag, err := r.conn(ctx).Exec(ctx,
		`UPDATE wallets
		 SET balance = balance - $2, withdrawn = withdrawn + $2, updated_at = now()
		 WHERE user_id = $1`,
		userID, amount,
	)
	if err != nil {
		return fmt.Errorf("debit wallet: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: wallet of user %d", ErrUserNotFound, userID)
	}
	return nil
}

// GetBalance возвращает текущий баланс и сумму списаний пользователя в минимальных единицах.
func (r *PostgresRepository) GetBalance(ctx context.Context, userID int64) (int64, int64, error) {
	var current, withdrawn int64
	err := r.conn(ctx).QueryRow(ctx,
		`SELECT balance, withdrawn FROM wallets WHERE user_id = $1`,
		userID,
	).Scan(&current, &withdrawn)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, 0, nil
		}
		return 0, 0, fmt.Errorf("get balance: %w", err)
	}
	return current, withdrawn, nil
}

// AppendTransaction добавляет запись в журнал операций кошелька.
func (r *PostgresRepository) AppendTransaction(ctx context.Context, tx *model.WalletTransaction) error {
	meta := tx.Meta
	if meta == nil {
		meta = map[string]string{}
	}

	err := r.conn(ctx).QueryRow(ctx,
		`INSERT INTO wallet_transactions
			(id, user_id, method, amount, amount_settled, currency, source_reference_id, type, meta)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		 RETURNING created_at`,
		tx.ID, tx.UserID, tx.Method, tx.Amount, tx.AmountSettled, tx.Currency,
		tx.SourceReferenceID, string(tx.Type), meta,
	).Scan(&tx.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert wallet transaction: %w", err)
	}
	return nil
}

// ListTransactions возвращает журнал операций пользователя, начиная с последних.
func (r *PostgresRepository) ListTransactions(ctx context.Context, userID int64) ([]model.WalletTransaction, error) {
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT id, user_id, method, amount, amount_settled, currency, source_reference_id, type, meta, created_at
		 FROM wallet_transactions
		 WHERE user_id = $1
		 ORDER BY created_at DESC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("select wallet transactions: %w", err)
	}
	defer rows.Close()

	var res []model.WalletTransaction
	for rows.Next() {
		var (
			t     model.WalletTransaction
			txTyp string
		)
		err := rows.Scan(
			&t.ID,
			&t.UserID,
			&t.Method,
			&t.Amount,
			&t.AmountSettled,
			&t.Currency,
			&t.SourceReferenceID,
			&txTyp,
			&t.Meta,
			&t.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan wallet transaction: %w", err)
		}
		t.Type = model.TransactionType(txTyp)
		res = append(res, t)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return res, nil
}

// SettlementExists проверяет, проводилось ли уже событие с тем же типом и источником.
func (r *PostgresRepository) SettlementExists(ctx context.Context, kind model.SettlementKind, sourceReferenceID string) (bool, error) {
	var exists bool
	err := r.conn(ctx).QueryRow(ctx,
		`SELECT EXISTS (
			SELECT 1 FROM wallet_transactions
			WHERE source_reference_id = $1 AND type = $2 AND meta->>'kind' = $3
		)`,
		sourceReferenceID, string(model.TransactionCredit), string(kind),
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check settlement: %w", err)
	}
	return exists, nil
}
