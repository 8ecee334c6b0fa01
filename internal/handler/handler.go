// Package handler содержит HTTP-обработчики API сервиса бронирования.
package handler

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/mmeshcher/yenabook/internal/middleware"
	"github.com/mmeshcher/yenabook/internal/model"
	"github.com/mmeshcher/yenabook/internal/repository"
	"github.com/mmeshcher/yenabook/internal/service"
	"github.com/mmeshcher/yenabook/internal/validation"
)

// Service определяет контракт прикладной логики, используемой HTTP-обработчиками.
type Service interface {
	RegisterUser(ctx context.Context, login, password string) (int64, error)
	AuthenticateUser(ctx context.Context, login, password string) (int64, error)
	AddOrder(ctx context.Context, p model.Principal, reference string) (bool, error)
	Orders(ctx context.Context, p model.Principal) ([]model.PendingOrder, error)

	CreateService(ctx context.Context, p model.Principal, name string, price int64, durationMinutes int) (*model.Service, error)
	ProviderServices(ctx context.Context, providerID int64) ([]model.Service, error)
	FreeSlots(ctx context.Context, q service.SlotQuery) ([]int, error)

	BookAppointment(ctx context.Context, p model.Principal, req service.BookingRequest) (*model.Appointment, error)
	GetAppointment(ctx context.Context, p model.Principal, id int64) (*model.Appointment, error)
	CompleteAppointment(ctx context.Context, p model.Principal, id int64) (*model.Appointment, error)
	CancelAppointment(ctx context.Context, p model.Principal, id int64) (*model.Appointment, error)

	Settle(ctx context.Context, req service.SettleRequest) ([]model.WalletTransaction, error)
	GetBalance(ctx context.Context, p model.Principal) (*model.Wallet, error)
	Transactions(ctx context.Context, p model.Principal) ([]model.WalletTransaction, error)
	Withdraw(ctx context.Context, p model.Principal, order string, sum float64) (*model.WalletTransaction, error)
}

// Handler реализует HTTP-обработчики API сервиса бронирования.
type Handler struct {
	service        Service
	logger         *zap.Logger
	authMiddleware *middleware.AuthMiddleware
}

// NewHandler создаёт новый экземпляр обработчика HTTP-запросов.
func NewHandler(s Service, logger *zap.Logger, auth *middleware.AuthMiddleware) *Handler {
	return &Handler{
		service:        s,
		logger:         logger,
		authMiddleware: auth,
	}
}

type credentialsRequest struct {
	Login    string `json:"login" validate:"required"`
	Password string `json:"password" validate:"required"`
}

// Register обрабатывает регистрацию нового пользователя.
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := decodeRequest(r, &req); err != nil {
		writeFail(w, http.StatusBadRequest, err.Error())
		return
	}

	userID, err := h.service.RegisterUser(r.Context(), req.Login, req.Password)
	if err != nil {
		if errors.Is(err, repository.ErrUserExists) {
			writeFail(w, http.StatusConflict, "login already taken")
			return
		}
		h.logger.Error("register user error", zap.Error(err))
		writeFail(w, http.StatusInternalServerError, http.StatusText(http.StatusInternalServerError))
		return
	}

	h.authMiddleware.SetAuthCookie(w, userID)
	writeOK(w, http.StatusOK, map[string]int64{"user_id": userID})
}

// Login выполняет аутентификацию пользователя и устанавливает cookie.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := decodeRequest(r, &req); err != nil {
		writeFail(w, http.StatusBadRequest, err.Error())
		return
	}

	userID, err := h.service.AuthenticateUser(r.Context(), req.Login, req.Password)
	if err != nil {
		if errors.Is(err, service.ErrInvalidCredentials) {
			writeFail(w, http.StatusUnauthorized, "invalid login or password")
			return
		}
		h.logger.Error("login user error", zap.Error(err))
		writeFail(w, http.StatusInternalServerError, http.StatusText(http.StatusInternalServerError))
		return
	}

	h.authMiddleware.SetAuthCookie(w, userID)
	writeOK(w, http.StatusOK, map[string]int64{"user_id": userID})
}

func principal(w http.ResponseWriter, r *http.Request) (model.Principal, bool) {
	p, ok := middleware.PrincipalFromContext(r.Context())
	if !ok {
		writeFail(w, http.StatusUnauthorized, http.StatusText(http.StatusUnauthorized))
	}
	return p, ok
}

// UploadOrder принимает номер заказа оформления, который затем можно привязать к записи.
func (h *Handler) UploadOrder(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}

	defer r.Body.Close()

	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeFail(w, http.StatusBadRequest, "cannot read body")
		return
	}

	reference := strings.TrimSpace(string(body))

	if !validation.IsValidOrderReference(reference) {
		writeFail(w, http.StatusUnprocessableEntity, "invalid order reference")
		return
	}

	alreadyExists, err := h.service.AddOrder(r.Context(), p, reference)
	if err != nil {
		h.writeError(w, err, "upload order error", zap.String("order", reference))
		return
	}

	if alreadyExists {
		writeOK(w, http.StatusOK, reference)
		return
	}

	writeOK(w, http.StatusAccepted, reference)
}

type orderResponse struct {
	Reference     string `json:"reference"`
	AppointmentID *int64 `json:"appointment_id,omitempty"`
	UploadedAt    string `json:"uploaded_at"`
}

// GetOrders возвращает заказы оформления текущего пользователя.
func (h *Handler) GetOrders(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}

	orders, err := h.service.Orders(r.Context(), p)
	if err != nil {
		h.writeError(w, err, "get orders error", zap.Int64("userID", p.UserID))
		return
	}

	if len(orders) == 0 {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	resp := make([]orderResponse, 0, len(orders))
	for _, o := range orders {
		resp = append(resp, orderResponse{
			Reference:     o.Reference,
			AppointmentID: o.AppointmentID,
			UploadedAt:    o.UploadedAt.Format(time.RFC3339),
		})
	}

	writeOK(w, http.StatusOK, resp)
}
