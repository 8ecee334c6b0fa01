// Package model содержит доменные сущности сервиса бронирования и расчётов.
package model

import (
	"time"

	"github.com/google/uuid"
)

// User представляет зарегистрированного пользователя: клиента или исполнителя услуг.
type User struct {
	ID           int64
	Login        string
	PasswordHash []byte
	CreatedAt    time.Time
}

// Principal описывает аутентифицированного пользователя, от имени которого выполняется операция.
type Principal struct {
	UserID int64
}

// Service описывает услугу исполнителя, доступную для записи.
type Service struct {
	ID              int64  `json:"id"`
	ProviderID      int64  `json:"provider_id"`
	Name            string `json:"name"`
	Price           int64  `json:"price"`
	DurationMinutes int    `json:"duration_minutes"`
}

// AppointmentStatus описывает состояние записи.
type AppointmentStatus string

const (
	AppointmentStatusPending   AppointmentStatus = "PENDING"
	AppointmentStatusCompleted AppointmentStatus = "COMPLETED"
	AppointmentStatusCanceled  AppointmentStatus = "CANCELED"
)

// Active сообщает, занимает ли запись в этом статусе временной слот.
func (s AppointmentStatus) Active() bool {
	return s == AppointmentStatusPending || s == AppointmentStatusCompleted
}

// TimeRange задаёт полуоткрытый интервал [Start, End) в минутах от начала суток.
type TimeRange struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// Overlaps проверяет пересечение двух полуоткрытых интервалов.
func (r TimeRange) Overlaps(other TimeRange) bool {
	return r.Start < other.End && other.Start < r.End
}

// Duration возвращает длительность интервала в минутах.
func (r TimeRange) Duration() int {
	return r.End - r.Start
}

// Appointment описывает запись клиента к исполнителю.
type Appointment struct {
	ID         int64
	ProviderID int64
	CustomerID int64
	ServiceIDs []int64
	Date       time.Time
	TimeRange  TimeRange
	Price      int64
	IsPaid     bool
	Status     AppointmentStatus
	Settings   map[string]string
	CreatedAt  time.Time
}

// TransactionType описывает направление движения средств по кошельку.
type TransactionType string

const (
	TransactionCredit TransactionType = "CREDIT"
	TransactionDebit  TransactionType = "DEBIT"
)

// WalletTransaction описывает неизменяемую запись журнала операций кошелька.
// Суммы хранятся в минимальных единицах валюты.
type WalletTransaction struct {
	ID                uuid.UUID
	UserID            int64
	Method            string
	Amount            int64
	AmountSettled     int64
	Currency          string
	SourceReferenceID string
	Type              TransactionType
	Meta              map[string]string
	CreatedAt         time.Time
}

// Wallet содержит текущий баланс пользователя и сумму всех списаний.
type Wallet struct {
	Current   float64 `json:"current"`
	Withdrawn float64 `json:"withdrawn"`
}

// PendingOrder описывает номер заказа оформления, загруженный пользователем до бронирования.
// AppointmentID заполняется после привязки заказа к записи.
type PendingOrder struct {
	Reference     string
	AppointmentID *int64
	UploadedAt    time.Time
}

// SettlementKind определяет тип события расчёта.
type SettlementKind string

const (
	SettlementBooking  SettlementKind = "booking"
	SettlementPurchase SettlementKind = "purchase"
	SettlementDonation SettlementKind = "donation"
)

// SettlementEvent содержит данные завершённой оплаты, которые нужно провести по кошелькам.
type SettlementEvent struct {
	Kind              SettlementKind
	PayerID           int64
	PayeeID           int64
	GrossAmount       int64
	Currency          string
	FeePercentage     float64
	SourceReferenceID string
	Method            string
	Meta              map[string]string
}
