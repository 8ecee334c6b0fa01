// Package settlement проводит завершённые оплаты по кошелькам пользователей
// и ведёт неизменяемый журнал операций.
package settlement

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/mmeshcher/yenabook/internal/model"
	"github.com/mmeshcher/yenabook/internal/validation"
)

var (
	// ErrSettlementFailure возвращается при некорректном событии расчёта или сбое хранилища балансов.
	ErrSettlementFailure = errors.New("settlement failed")
	// ErrDuplicateSettlement возвращается при повторном проведении события, если включена дедупликация.
	ErrDuplicateSettlement = errors.New("settlement already recorded")
	// ErrInsufficientBalance возвращается при попытке списания суммы, превышающей баланс.
	ErrInsufficientBalance = errors.New("insufficient balance")
)

// Store описывает хранилище балансов и журнала операций.
type Store interface {
	// WithinWalletLock выполняет fn в одной транзакции, удерживая блокировку кошелька userID.
	WithinWalletLock(ctx context.Context, userID int64, fn func(ctx context.Context) error) error
	CreditUser(ctx context.Context, userID, amount int64) error
	DebitUser(ctx context.Context, userID, amount int64) error
	GetBalance(ctx context.Context, userID int64) (int64, int64, error)
	AppendTransaction(ctx context.Context, tx *model.WalletTransaction) error
	SettlementExists(ctx context.Context, kind model.SettlementKind, sourceReferenceID string) (bool, error)
}

// Breakdown содержит разбиение валовой суммы на комиссию платформы и сумму к зачислению.
type Breakdown struct {
	Gross int64
	Fee   int64
	Net   int64
}

// Split вычисляет комиссию feePercentage/100*gross с округлением до минимальной единицы валюты.
func Split(gross int64, feePercentage float64) Breakdown {
	fee := decimal.NewFromInt(gross).
		Mul(decimal.NewFromFloat(feePercentage)).
		Div(decimal.NewFromInt(100)).
		Round(0).
		IntPart()

	return Breakdown{
		Gross: gross,
		Fee:   fee,
		Net:   gross - fee,
	}
}

// Ledger проводит события расчёта: зачисляет чистую сумму получателю и пишет запись журнала.
type Ledger struct {
	store Store
	dedup bool
}

// Option настраивает Ledger.
type Option func(*Ledger)

// WithDeduplication включает отказ от повторного проведения события с тем же источником.
func WithDeduplication(enabled bool) Option {
	return func(l *Ledger) {
		l.dedup = enabled
	}
}

// NewLedger создаёт журнал расчётов поверх хранилища.
func NewLedger(store Store, opts ...Option) *Ledger {
	l := &Ledger{store: store}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

type recipient struct {
	userID int64
	amount int64
}

// recipients возвращает получателей зачисления. Сейчас это всегда единственный основной получатель.
func recipients(ev model.SettlementEvent, b Breakdown) []recipient {
	return []recipient{{userID: ev.PayeeID, amount: b.Net}}
}

// Settle проводит событие и возвращает созданные записи журнала, по одной на получателя.
// Зачисление и запись журнала выполняются атомарно под блокировкой кошелька получателя.
func (l *Ledger) Settle(ctx context.Context, ev model.SettlementEvent) ([]model.WalletTransaction, error) {
	if err := validateEvent(ev); err != nil {
		return nil, err
	}

	b := Split(ev.GrossAmount, ev.FeePercentage)

	var entries []model.WalletTransaction
	for _, r := range recipients(ev, b) {
		err := l.store.WithinWalletLock(ctx, r.userID, func(ctx context.Context) error {
			if l.dedup {
				exists, err := l.store.SettlementExists(ctx, ev.Kind, ev.SourceReferenceID)
				if err != nil {
					return fmt.Errorf("check settlement: %w", err)
				}
				if exists {
					return fmt.Errorf("%w: %s %s", ErrDuplicateSettlement, ev.Kind, ev.SourceReferenceID)
				}
			}

			if err := l.store.CreditUser(ctx, r.userID, r.amount); err != nil {
				return fmt.Errorf("%w: credit wallet: %w", ErrSettlementFailure, err)
			}

			entry := model.WalletTransaction{
				ID:                uuid.New(),
				UserID:            r.userID,
				Method:            ev.Method,
				Amount:            b.Gross,
				AmountSettled:     r.amount,
				Currency:          ev.Currency,
				SourceReferenceID: ev.SourceReferenceID,
				Type:              model.TransactionCredit,
				Meta:              entryMeta(ev, b),
			}
			if err := l.store.AppendTransaction(ctx, &entry); err != nil {
				return fmt.Errorf("append transaction: %w", err)
			}

			entries = append(entries, entry)
			return nil
		})
		if err != nil {
			if errors.Is(err, ErrSettlementFailure) || errors.Is(err, ErrDuplicateSettlement) {
				return nil, err
			}
			return nil, fmt.Errorf("%w: %w", ErrSettlementFailure, err)
		}
	}

	return entries, nil
}

// Withdraw списывает amount с кошелька пользователя и записывает операцию списания.
func (l *Ledger) Withdraw(ctx context.Context, userID int64, orderRef string, amount int64, currency string) (*model.WalletTransaction, error) {
	if amount <= 0 {
		return nil, errors.New("withdraw sum must be positive")
	}

	var entry model.WalletTransaction
	err := l.store.WithinWalletLock(ctx, userID, func(ctx context.Context) error {
		current, _, err := l.store.GetBalance(ctx, userID)
		if err != nil {
			return fmt.Errorf("get balance: %w", err)
		}
		if amount > current {
			return ErrInsufficientBalance
		}

		if err := l.store.DebitUser(ctx, userID, amount); err != nil {
			return fmt.Errorf("debit wallet: %w", err)
		}

		entry = model.WalletTransaction{
			ID:                uuid.New(),
			UserID:            userID,
			Method:            "withdrawal",
			Amount:            amount,
			AmountSettled:     amount,
			Currency:          currency,
			SourceReferenceID: orderRef,
			Type:              model.TransactionDebit,
		}
		return l.store.AppendTransaction(ctx, &entry)
	})
	if err != nil {
		return nil, err
	}

	return &entry, nil
}

func validateEvent(ev model.SettlementEvent) error {
	switch {
	case ev.PayeeID <= 0:
		return fmt.Errorf("%w: payee is required", ErrSettlementFailure)
	case ev.PayerID <= 0:
		return fmt.Errorf("%w: payer is required", ErrSettlementFailure)
	case ev.PayerID == ev.PayeeID:
		return fmt.Errorf("%w: payer and payee must differ", ErrSettlementFailure)
	case ev.GrossAmount <= 0:
		return fmt.Errorf("%w: gross amount must be positive", ErrSettlementFailure)
	case !validation.IsValidCurrency(ev.Currency):
		return fmt.Errorf("%w: invalid currency %q", ErrSettlementFailure, ev.Currency)
	case !validation.IsValidFeePercentage(ev.FeePercentage):
		return fmt.Errorf("%w: fee percentage %v out of range", ErrSettlementFailure, ev.FeePercentage)
	case ev.SourceReferenceID == "":
		return fmt.Errorf("%w: source reference is required", ErrSettlementFailure)
	}
	return nil
}

func entryMeta(ev model.SettlementEvent, b Breakdown) map[string]string {
	meta := make(map[string]string, len(ev.Meta)+4)
	for k, v := range ev.Meta {
		meta[k] = v
	}
	meta["kind"] = string(ev.Kind)
	meta["platform_fee"] = strconv.FormatInt(b.Fee, 10)
	meta["fee_percentage"] = strconv.FormatFloat(ev.FeePercentage, 'f', -1, 64)
	meta["payer_id"] = strconv.FormatInt(ev.PayerID, 10)
	return meta
}
