package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/mmeshcher/yenabook/internal/booking"
	"github.com/mmeshcher/yenabook/internal/repository"
	"github.com/mmeshcher/yenabook/internal/service"
	"github.com/mmeshcher/yenabook/internal/settlement"
)

// result оборачивает ответ API: признак успеха и полезную нагрузку или текст ошибки.
type result struct {
	Status   bool `json:"status"`
	Response any  `json:"response"`
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return fld.Name
		}
		return name
	})
	return v
}

func writeResult(w http.ResponseWriter, statusCode int, ok bool, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(result{Status: ok, Response: payload})
}

func writeOK(w http.ResponseWriter, statusCode int, payload any) {
	writeResult(w, statusCode, true, payload)
}

func writeFail(w http.ResponseWriter, statusCode int, message string) {
	writeResult(w, statusCode, false, message)
}

// decodeRequest читает JSON-тело запроса в dst и проверяет его теги validate.
func decodeRequest(r *http.Request, dst any) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return errors.New("malformed JSON body")
	}
	if err := validate.Struct(dst); err != nil {
		return validationMessage(err)
	}
	return nil
}

func validationMessage(err error) error {
	var errs validator.ValidationErrors
	if !errors.As(err, &errs) {
		return err
	}

	msgs := make([]string, 0, len(errs))
	for _, e := range errs {
		if e.Param() != "" {
			msgs = append(msgs, fmt.Sprintf("%s: must satisfy %s=%s", e.Field(), e.Tag(), e.Param()))
			continue
		}
		msgs = append(msgs, fmt.Sprintf("%s: must satisfy %s", e.Field(), e.Tag()))
	}
	return errors.New(strings.Join(msgs, "; "))
}

// statusFor сопоставляет ошибку прикладного уровня HTTP-статусу.
func statusFor(err error) int {
	switch {
	case errors.Is(err, service.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, service.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, booking.ErrSlotConflict),
		errors.Is(err, booking.ErrInvalidTransition),
		errors.Is(err, settlement.ErrDuplicateSettlement),
		errors.Is(err, repository.ErrOrderOwnedByAnother):
		return http.StatusConflict
	case errors.Is(err, settlement.ErrInsufficientBalance):
		return http.StatusPaymentRequired
	case errors.Is(err, settlement.ErrSettlementFailure),
		errors.Is(err, repository.ErrOrderNotFound):
		return http.StatusUnprocessableEntity
	case errors.Is(err, booking.ErrCustomerNotFound),
		errors.Is(err, booking.ErrProviderNotFound),
		errors.Is(err, booking.ErrAppointmentNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// writeError отвечает клиенту по ошибке сервиса. Непредвиденные ошибки логируются и скрываются.
func (h *Handler) writeError(w http.ResponseWriter, err error, msg string, fields ...zap.Field) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		h.logger.Error(msg, append(fields, zap.Error(err))...)
		writeFail(w, status, http.StatusText(status))
		return
	}
	writeFail(w, status, err.Error())
}
