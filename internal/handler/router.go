package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	custommiddleware "github.com/mmeshcher/yenabook/internal/middleware"
)

// RouterOptions задаёт необязательные части маршрутизатора.
type RouterOptions struct {
	// Metrics обслуживает GET /metrics, если задан.
	Metrics http.Handler
	// RateLimit ограничивает частоту запросов к /api, если задан.
	RateLimit func(http.Handler) http.Handler
	// GatewaySecret подписывает уведомления платёжного шлюза об оплатах.
	// Без секрета проведение оплат недоступно.
	GatewaySecret string
}

// SetupRouter настраивает HTTP-маршруты и middleware сервиса бронирования.
func (h *Handler) SetupRouter(opts RouterOptions) *chi.Mux {
	r := chi.NewRouter()

	r.Use(custommiddleware.Logger(h.logger))

	if opts.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", opts.Metrics)
	}

	r.Route("/api", func(r chi.Router) {
		r.Use(custommiddleware.GzipMiddleware)
		if opts.RateLimit != nil {
			r.Use(opts.RateLimit)
		}

		r.Post("/user/register", h.Register)
		r.Post("/user/login", h.Login)

		r.With(custommiddleware.NewGatewayAuth(opts.GatewaySecret).Middleware).
			Post("/checkout/settle", h.Settle)

		r.Group(func(r chi.Router) {
			r.Use(h.authMiddleware.Middleware)

			r.Post("/user/orders", h.UploadOrder)
			r.Get("/user/orders", h.GetOrders)

			r.Post("/services", h.CreateService)
			r.Get("/providers/{id}/services", h.GetProviderServices)
			r.Get("/providers/{id}/slots", h.GetFreeSlots)

			r.Post("/bookings", h.CreateBooking)
			r.Get("/bookings/{id}", h.GetBooking)
			r.Post("/bookings/{id}/complete", h.CompleteBooking)
			r.Post("/bookings/{id}/cancel", h.CancelBooking)

			r.Get("/wallet/balance", h.GetBalance)
			r.Get("/wallet/transactions", h.GetTransactions)
			r.Post("/wallet/withdraw", h.Withdraw)
		})
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeFail(w, http.StatusNotFound, http.StatusText(http.StatusNotFound))
	})

	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeFail(w, http.StatusMethodNotAllowed, http.StatusText(http.StatusMethodNotAllowed))
	})

	return r
}
