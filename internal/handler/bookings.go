package handler

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/mmeshcher/yenabook/internal/model"
	"github.com/mmeshcher/yenabook/internal/service"
)

type createServiceRequest struct {
	Name            string `json:"name" validate:"required,max=200"`
	Price           int64  `json:"price" validate:"gte=0"`
	DurationMinutes int    `json:"duration_minutes" validate:"gt=0,lte=1440"`
}

// CreateService добавляет услугу в каталог текущего пользователя как исполнителя.
func (h *Handler) CreateService(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}

	var req createServiceRequest
	if err := decodeRequest(r, &req); err != nil {
		writeFail(w, http.StatusBadRequest, err.Error())
		return
	}

	svc, err := h.service.CreateService(r.Context(), p, req.Name, req.Price, req.DurationMinutes)
	if err != nil {
		h.writeError(w, err, "create service error", zap.Int64("providerID", p.UserID))
		return
	}

	writeOK(w, http.StatusCreated, svc)
}

// GetProviderServices возвращает каталог услуг исполнителя.
func (h *Handler) GetProviderServices(w http.ResponseWriter, r *http.Request) {
	providerID, ok := idParam(w, r)
	if !ok {
		return
	}

	services, err := h.service.ProviderServices(r.Context(), providerID)
	if err != nil {
		h.writeError(w, err, "list services error", zap.Int64("providerID", providerID))
		return
	}

	if services == nil {
		services = []model.Service{}
	}
	writeOK(w, http.StatusOK, services)
}

// GetFreeSlots возвращает свободные минуты начала записи к исполнителю на дату.
func (h *Handler) GetFreeSlots(w http.ResponseWriter, r *http.Request) {
	providerID, ok := idParam(w, r)
	if !ok {
		return
	}

	query := r.URL.Query()

	date, err := time.Parse(time.DateOnly, query.Get("date"))
	if err != nil {
		writeFail(w, http.StatusBadRequest, "date: must be YYYY-MM-DD")
		return
	}

	q := service.SlotQuery{ProviderID: providerID, Date: date}
	for name, dst := range map[string]*int{
		"duration": &q.Duration,
		"step":     &q.Step,
		"from":     &q.Opens,
		"to":       &q.Closes,
	} {
		raw := query.Get(name)
		if raw == "" {
			continue
		}
		v, err := strconv.Atoi(raw)
		if err != nil {
			writeFail(w, http.StatusBadRequest, name+": must be an integer")
			return
		}
		*dst = v
	}

	slots, err := h.service.FreeSlots(r.Context(), q)
	if err != nil {
		h.writeError(w, err, "free slots error", zap.Int64("providerID", providerID))
		return
	}

	if slots == nil {
		slots = []int{}
	}
	writeOK(w, http.StatusOK, slots)
}

type bookingRequest struct {
	ProviderID  int64             `json:"provider_id" validate:"required,gt=0"`
	CustomerID  int64             `json:"customer_id" validate:"gte=0"`
	ServiceIDs  []int64           `json:"service_ids" validate:"required,min=1,dive,gt=0"`
	Date        string            `json:"date" validate:"required,datetime=2006-01-02"`
	StartMinute int               `json:"start_minute" validate:"gte=0,lt=1440"`
	IsPaid      bool              `json:"is_paid"`
	OrderRef    string            `json:"order_ref" validate:"omitempty,numeric"`
	Settings    map[string]string `json:"settings"`
}

type appointmentResponse struct {
	ID          int64                   `json:"id"`
	ProviderID  int64                   `json:"provider_id"`
	CustomerID  int64                   `json:"customer_id"`
	ServiceIDs  []int64                 `json:"service_ids"`
	Date        string                  `json:"date"`
	StartMinute int                     `json:"start_minute"`
	EndMinute   int                     `json:"end_minute"`
	Price       int64                   `json:"price"`
	IsPaid      bool                    `json:"is_paid"`
	Status      model.AppointmentStatus `json:"status"`
	Settings    map[string]string       `json:"settings,omitempty"`
	CreatedAt   string                  `json:"created_at"`
}

func newAppointmentResponse(a *model.Appointment) appointmentResponse {
	return appointmentResponse{
		ID:          a.ID,
		ProviderID:  a.ProviderID,
		CustomerID:  a.CustomerID,
		ServiceIDs:  a.ServiceIDs,
		Date:        a.Date.Format(time.DateOnly),
		StartMinute: a.TimeRange.Start,
		EndMinute:   a.TimeRange.End,
		Price:       a.Price,
		IsPaid:      a.IsPaid,
		Status:      a.Status,
		Settings:    a.Settings,
		CreatedAt:   a.CreatedAt.Format(time.RFC3339),
	}
}

// CreateBooking записывает клиента к исполнителю.
func (h *Handler) CreateBooking(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}

	var req bookingRequest
	if err := decodeRequest(r, &req); err != nil {
		writeFail(w, http.StatusBadRequest, err.Error())
		return
	}

	date, _ := time.Parse(time.DateOnly, req.Date)

	a, err := h.service.BookAppointment(r.Context(), p, service.BookingRequest{
		ProviderID:  req.ProviderID,
		CustomerID:  req.CustomerID,
		ServiceIDs:  req.ServiceIDs,
		Date:        date,
		StartMinute: req.StartMinute,
		IsPaid:      req.IsPaid,
		OrderRef:    req.OrderRef,
		Settings:    req.Settings,
	})
	if err != nil {
		h.writeError(w, err, "book appointment error",
			zap.Int64("providerID", req.ProviderID),
			zap.Int64("userID", p.UserID),
		)
		return
	}

	writeOK(w, http.StatusCreated, newAppointmentResponse(a))
}

// GetBooking возвращает запись по идентификатору.
func (h *Handler) GetBooking(w http.ResponseWriter, r *http.Request) {
	h.appointmentAction(w, r, "get appointment error", h.service.GetAppointment)
}

// CompleteBooking отмечает запись выполненной.
func (h *Handler) CompleteBooking(w http.ResponseWriter, r *http.Request) {
	h.appointmentAction(w, r, "complete appointment error", h.service.CompleteAppointment)
}

// CancelBooking отменяет запись и освобождает её слот.
func (h *Handler) CancelBooking(w http.ResponseWriter, r *http.Request) {
	h.appointmentAction(w, r, "cancel appointment error", h.service.CancelAppointment)
}

type appointmentFunc func(ctx context.Context, p model.Principal, id int64) (*model.Appointment, error)

func (h *Handler) appointmentAction(w http.ResponseWriter, r *http.Request, msg string, fn appointmentFunc) {
	p, ok := principal(w, r)
	if !ok {
		return
	}

	id, ok := idParam(w, r)
	if !ok {
		return
	}

	a, err := fn(r.Context(), p, id)
	if err != nil {
		h.writeError(w, err, msg, zap.Int64("appointmentID", id))
		return
	}

	writeOK(w, http.StatusOK, newAppointmentResponse(a))
}

func idParam(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		writeFail(w, http.StatusBadRequest, "id: must be a positive integer")
		return 0, false
	}
	return id, true
}
