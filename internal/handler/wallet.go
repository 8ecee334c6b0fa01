package handler

import (
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/mmeshcher/yenabook/internal/model"
	"github.com/mmeshcher/yenabook/internal/service"
	"github.com/mmeshcher/yenabook/internal/validation"
)

type settleRequest struct {
	Kind              string            `json:"kind" validate:"required"`
	PayerID           int64             `json:"payer_id" validate:"required"`
	PayeeID           int64             `json:"payee_id" validate:"required"`
	GrossAmount       int64             `json:"gross_amount"`
	Currency          string            `json:"currency"`
	FeePercentage     *float64          `json:"fee_percentage"`
	SourceReferenceID string            `json:"source_reference_id" validate:"required"`
	Method            string            `json:"method"`
	Meta              map[string]string `json:"meta"`
}

type transactionResponse struct {
	ID                string                `json:"id"`
	Method            string                `json:"method"`
	Amount            int64                 `json:"amount"`
	AmountSettled     int64                 `json:"amount_settled"`
	Currency          string                `json:"currency"`
	SourceReferenceID string                `json:"source_reference_id"`
	Type              model.TransactionType `json:"type"`
	Meta              map[string]string     `json:"meta,omitempty"`
	CreatedAt         string                `json:"created_at"`
}

func newTransactionResponse(t model.WalletTransaction) transactionResponse {
	resp := transactionResponse{
		ID:                t.ID.String(),
		Method:            t.Method,
		Amount:            t.Amount,
		AmountSettled:     t.AmountSettled,
		Currency:          t.Currency,
		SourceReferenceID: t.SourceReferenceID,
		Type:              t.Type,
		Meta:              t.Meta,
	}
	if !t.CreatedAt.IsZero() {
		resp.CreatedAt = t.CreatedAt.Format(time.RFC3339)
	}
	return resp
}

func newTransactionsResponse(entries []model.WalletTransaction) []transactionResponse {
	resp := make([]transactionResponse, 0, len(entries))
	for _, e := range entries {
		resp = append(resp, newTransactionResponse(e))
	}
	return resp
}

// Settle проводит завершённую оплату, о которой сообщил платёжный шлюз.
func (h *Handler) Settle(w http.ResponseWriter, r *http.Request) {
	var req settleRequest
	if err := decodeRequest(r, &req); err != nil {
		writeFail(w, http.StatusBadRequest, err.Error())
		return
	}

	entries, err := h.service.Settle(r.Context(), service.SettleRequest{
		Kind:              model.SettlementKind(req.Kind),
		PayerID:           req.PayerID,
		PayeeID:           req.PayeeID,
		GrossAmount:       req.GrossAmount,
		Currency:          req.Currency,
		FeePercentage:     req.FeePercentage,
		SourceReferenceID: req.SourceReferenceID,
		Method:            req.Method,
		Meta:              req.Meta,
	})
	if err != nil {
		h.writeError(w, err, "settle error",
			zap.String("kind", req.Kind),
			zap.String("sourceReferenceID", req.SourceReferenceID),
		)
		return
	}

	writeOK(w, http.StatusOK, newTransactionsResponse(entries))
}

// GetBalance возвращает баланс текущего пользователя.
func (h *Handler) GetBalance(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}

	balance, err := h.service.GetBalance(r.Context(), p)
	if err != nil {
		h.writeError(w, err, "get balance error", zap.Int64("userID", p.UserID))
		return
	}

	writeOK(w, http.StatusOK, balance)
}

// GetTransactions возвращает журнал операций кошелька текущего пользователя.
func (h *Handler) GetTransactions(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}

	entries, err := h.service.Transactions(r.Context(), p)
	if err != nil {
		h.writeError(w, err, "get transactions error", zap.Int64("userID", p.UserID))
		return
	}

	if len(entries) == 0 {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	writeOK(w, http.StatusOK, newTransactionsResponse(entries))
}

type withdrawRequest struct {
	Order string  `json:"order" validate:"required"`
	Sum   float64 `json:"sum" validate:"gt=0"`
}

// Withdraw списывает средства с кошелька текущего пользователя.
func (h *Handler) Withdraw(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}

	var req withdrawRequest
	if err := decodeRequest(r, &req); err != nil {
		writeFail(w, http.StatusBadRequest, err.Error())
		return
	}

	if !validation.IsValidOrderReference(req.Order) {
		writeFail(w, http.StatusUnprocessableEntity, "invalid order number")
		return
	}

	entry, err := h.service.Withdraw(r.Context(), p, req.Order, req.Sum)
	if err != nil {
		h.writeError(w, err, "withdraw error", zap.Int64("userID", p.UserID), zap.String("order", req.Order))
		return
	}

	writeOK(w, http.StatusOK, newTransactionResponse(*entry))
}
