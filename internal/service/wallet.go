package service

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/mmeshcher/yenabook/internal/model"
	"github.com/mmeshcher/yenabook/internal/settlement"
)

// SettleRequest описывает завершённую оплату, о которой сообщил платёжный шлюз.
// Пустой FeePercentage заменяется комиссией по умолчанию.
type SettleRequest struct {
	Kind              model.SettlementKind
	PayerID           int64
	PayeeID           int64
	GrossAmount       int64
	Currency          string
	FeePercentage     *float64
	SourceReferenceID string
	Method            string
	Meta              map[string]string
}

// Settle проводит подтверждённую шлюзом оплату по кошельку получателя.
func (s *Service) Settle(ctx context.Context, req SettleRequest) ([]model.WalletTransaction, error) {
	fee := s.defaultFee
	if req.FeePercentage != nil {
		fee = *req.FeePercentage
	}

	ev := model.SettlementEvent{
		Kind:              req.Kind,
		PayerID:           req.PayerID,
		PayeeID:           req.PayeeID,
		GrossAmount:       req.GrossAmount,
		Currency:          req.Currency,
		FeePercentage:     fee,
		SourceReferenceID: req.SourceReferenceID,
		Method:            req.Method,
		Meta:              req.Meta,
	}

	entries, err := s.dispatcher.Dispatch(ctx, ev)
	if err != nil {
		status := "error"
		if errors.Is(err, settlement.ErrDuplicateSettlement) {
			status = "duplicate"
		}
		s.metrics.Settlements.WithLabelValues(string(req.Kind), status).Inc()
		s.logger.Warn("settlement failed",
			zap.Error(err),
			zap.String("kind", string(req.Kind)),
			zap.Int64("payerID", req.PayerID),
			zap.Int64("payeeID", req.PayeeID),
			zap.String("sourceReferenceID", req.SourceReferenceID),
		)
		return nil, err
	}

	s.metrics.Settlements.WithLabelValues(string(req.Kind), "ok").Inc()
	for _, e := range entries {
		s.metrics.SettledAmount.WithLabelValues(e.Currency).Add(float64(e.AmountSettled))
	}

	return entries, nil
}

// GetBalance возвращает баланс принципала в основных единицах валюты.
func (s *Service) GetBalance(ctx context.Context, p model.Principal) (*model.Wallet, error) {
	current, withdrawn, err := s.repo.GetBalance(ctx, p.UserID)
	if err != nil {
		return nil, err
	}
	return &model.Wallet{
		Current:   float64(current) / 100,
		Withdrawn: float64(withdrawn) / 100,
	}, nil
}

// Transactions возвращает журнал операций кошелька принципала.
func (s *Service) Transactions(ctx context.Context, p model.Principal) ([]model.WalletTransaction, error) {
	return s.repo.ListTransactions(ctx, p.UserID)
}

var maxWithdrawCents = decimal.NewFromInt(math.MaxInt64)

// Withdraw списывает sum основных единиц валюты с кошелька принципала в счёт заказа order.
// Сумма округляется до минимальной единицы валюты.
func (s *Service) Withdraw(ctx context.Context, p model.Principal, order string, sum float64) (*model.WalletTransaction, error) {
	if math.IsNaN(sum) || math.IsInf(sum, 0) {
		return nil, fmt.Errorf("%w: withdraw sum is not a number", ErrValidation)
	}

	cents := decimal.NewFromFloat(sum).Shift(2).Round(0)
	if !cents.IsPositive() {
		return nil, fmt.Errorf("%w: withdraw sum must be positive", ErrValidation)
	}
	if cents.GreaterThan(maxWithdrawCents) {
		return nil, fmt.Errorf("%w: withdraw sum is too large", ErrValidation)
	}

	return s.ledger.Withdraw(ctx, p.UserID, order, cents.IntPart(), DefaultCurrency)
}
