package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/segmentio/kafka-go"
)

// MessageWriter описывает часть kafka.Writer, нужную отправителю.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaSender публикует события в топик Kafka, ключом сообщения служит исполнитель.
type KafkaSender struct {
	writer MessageWriter
	topic  string
}

// NewKafkaSender создаёт отправителя поверх списка брокеров через запятую.
func NewKafkaSender(brokers, topic string) *KafkaSender {
	return NewKafkaSenderWithWriter(&kafka.Writer{
		Addr:     kafka.TCP(SplitBrokers(brokers)...),
		Balancer: &kafka.Hash{},
	}, topic)
}

// NewKafkaSenderWithWriter создаёт отправителя с заданным writer.
func NewKafkaSenderWithWriter(w MessageWriter, topic string) *KafkaSender {
	if topic == "" {
		topic = EventAppointmentCreated
	}
	return &KafkaSender{writer: w, topic: topic}
}

// Name возвращает название транспорта для метрик и логов.
func (s *KafkaSender) Name() string {
	return "kafka"
}

// Send публикует событие.
func (s *KafkaSender) Send(ctx context.Context, ev Event) error {
	msg, err := s.message(ev)
	if err != nil {
		return err
	}
	if err := s.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("write message: %w", err)
	}
	return nil
}

// Close закрывает writer.
func (s *KafkaSender) Close() error {
	return s.writer.Close()
}

func (s *KafkaSender) message(ev Event) (kafka.Message, error) {
	payload, err := json.Marshal(ev)
	if err != nil {
		return kafka.Message{}, fmt.Errorf("encode event: %w", err)
	}

	return kafka.Message{
		Topic: s.topic,
		Key:   []byte(ev.Key()),
		Value: payload,
		Headers: []kafka.Header{
			{Key: "event_id", Value: []byte(ev.ID)},
			{Key: "event_type", Value: []byte(ev.Type)},
		},
	}, nil
}

// SplitBrokers разбирает список брокеров через запятую, пропуская пустые элементы.
func SplitBrokers(raw string) []string {
	var brokers []string
	for _, b := range strings.Split(raw, ",") {
		b = strings.TrimSpace(b)
		if b != "" {
			brokers = append(brokers, b)
		}
	}
	return brokers
}
