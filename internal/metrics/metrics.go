// Package metrics содержит Prometheus-метрики сервиса бронирования.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics хранит счётчики бронирований, расчётов и уведомлений.
type Metrics struct {
	BookingsCreated      prometheus.Counter
	SlotConflicts        prometheus.Counter
	Settlements          *prometheus.CounterVec
	SettledAmount        *prometheus.CounterVec
	NotificationsSent    *prometheus.CounterVec
	NotificationsDropped prometheus.Counter
}

// New создаёт метрики и регистрирует их в reg.
func New(reg prometheus.Registerer, namespace string) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		BookingsCreated: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "booking",
			Name:      "appointments_created_total",
			Help:      "Total number of saved appointments",
		}),
		SlotConflicts: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "booking",
			Name:      "slot_conflicts_total",
			Help:      "Total number of bookings rejected because the slot was taken",
		}),
		Settlements: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "settlement",
			Name:      "events_total",
			Help:      "Total number of settlement events by kind and outcome",
		}, []string{"kind", "status"}),
		SettledAmount: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "settlement",
			Name:      "settled_amount_total",
			Help:      "Net amount credited to wallets in minor currency units",
		}, []string{"currency"}),
		NotificationsSent: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "notify",
			Name:      "notifications_total",
			Help:      "Total number of appointment notifications by transport and outcome",
		}, []string{"transport", "status"}),
		NotificationsDropped: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "notify",
			Name:      "notifications_dropped_total",
			Help:      "Notifications dropped because the queue was full",
		}),
	}
}
