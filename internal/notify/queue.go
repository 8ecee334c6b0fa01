package notify

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/mmeshcher/yenabook/internal/metrics"
	"github.com/mmeshcher/yenabook/internal/model"
)

// Sender доставляет событие одним транспортом.
type Sender interface {
	Name() string
	Send(ctx context.Context, ev Event) error
}

// Queue принимает записи без блокировки вызывающего и доставляет их в фоне всем отправителям.
type Queue struct {
	events  chan Event
	senders []Sender
	logger  *zap.Logger
	metrics *metrics.Metrics
}

// NewQueue создаёт очередь уведомлений ёмкостью size.
func NewQueue(size int, logger *zap.Logger, m *metrics.Metrics, senders ...Sender) *Queue {
	if size <= 0 {
		size = 100
	}
	return &Queue{
		events:  make(chan Event, size),
		senders: senders,
		logger:  logger,
		metrics: m,
	}
}

// Notify ставит событие о записи в очередь. Если очередь заполнена, событие отбрасывается.
func (q *Queue) Notify(a model.Appointment) {
	if len(q.senders) == 0 {
		return
	}

	ev := NewAppointmentEvent(a)
	select {
	case q.events <- ev:
	default:
		if q.metrics != nil {
			q.metrics.NotificationsDropped.Inc()
		}
		q.logger.Warn("notification queue is full, event dropped",
			zap.Int64("appointmentID", a.ID),
			zap.String("eventID", ev.ID),
		)
	}
}

// Run доставляет события до отмены контекста.
func (q *Queue) Run(ctx context.Context) {
	if len(q.senders) == 0 {
		return
	}

	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-q.events:
			q.deliver(ctx, ev)
		}
	}
}

func (q *Queue) deliver(ctx context.Context, ev Event) {
	for _, s := range q.senders {
		err := s.Send(ctx, ev)

		var limited *RateLimitedError
		if errors.As(err, &limited) {
			if limited.RetryAfter > 0 {
				timer := time.NewTimer(limited.RetryAfter)
				select {
				case <-ctx.Done():
					timer.Stop()
					return
				case <-timer.C:
				}
			}
			err = s.Send(ctx, ev)
		}

		status := "ok"
		if err != nil {
			status = "error"
			q.logger.Error("notification delivery failed",
				zap.Error(err),
				zap.String("transport", s.Name()),
				zap.String("eventID", ev.ID),
				zap.Int64("appointmentID", ev.AppointmentID),
			)
		}
		if q.metrics != nil {
			q.metrics.NotificationsSent.WithLabelValues(s.Name(), status).Inc()
		}
	}
}
