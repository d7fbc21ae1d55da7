package events

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// Типы доменных событий
const (
	TypeOrderCommitted      = "order.committed"
	TypeOrderRejected       = "order.rejected"
	TypeStockRestocked      = "stock.restocked"
	TypeReservationReleased = "stock.reservation_released"
	TypeServiceGateChanged  = "service_gate.changed"
)

// Event доменное событие. Key определяет партицию
type Event struct {
	Type       string            `json:"type"`
	Key        string            `json:"key"`
	OccurredAt time.Time         `json:"occurred_at"`
	Attributes map[string]string `json:"attributes,omitempty"`
	Payload    interface{}       `json:"payload,omitempty"`
}

// Publisher отправка событий. Ошибки доставки не влияют на уже принятое решение
type Publisher interface {
	Publish(ctx context.Context, ev Event) error
	Close() error
}

// NoopPublisher Kafka не настроена
type NoopPublisher struct{}

func (NoopPublisher) Publish(context.Context, Event) error { return nil }
func (NoopPublisher) Close() error                         { return nil }

// KafkaPublisher асинхронный продюсер JSON событий
type KafkaPublisher struct {
	writer *kafka.Writer
	log    *zap.Logger
}

// NewKafkaPublisher создает продюсер. Async: не ждем подтверждения брокера в запросе
func NewKafkaPublisher(brokers []string, topic string, auth KafkaAuth, log *zap.Logger) *KafkaPublisher {
	p := &KafkaPublisher{log: log}
	p.writer = &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{}, // События одного заказа в одну партицию
		Transport:    CreateKafkaTransport(auth, log),
		Async:        true,
		BatchTimeout: 50 * time.Millisecond,
		Completion:   p.completion,
	}
	log.Info("✅ Kafka producer подключен", zap.Strings("brokers", brokers), zap.String("topic", topic))
	return p
}

func (p *KafkaPublisher) completion(messages []kafka.Message, err error) {
	if err != nil {
		p.log.Warn("⚠️ Kafka error при отправке событий", zap.Int("count", len(messages)), zap.Error(err))
	}
}

// Publish сериализует событие и ставит в очередь продюсера
func (p *KafkaPublisher) Publish(ctx context.Context, ev Event) error {
	msg, err := Encode(ev)
	if err != nil {
		return err
	}
	return p.writer.WriteMessages(ctx, msg)
}

// Close дожидается отправки буфера
func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

// Encode превращает событие в сообщение Kafka
func Encode(ev Event) (kafka.Message, error) {
	if ev.OccurredAt.IsZero() {
		ev.OccurredAt = time.Now().UTC()
	}
	value, err := json.Marshal(ev)
	if err != nil {
		return kafka.Message{}, fmt.Errorf("failed to marshal event %s: %w", ev.Type, err)
	}
	return kafka.Message{
		Key:   []byte(ev.Key),
		Value: value,
		Time:  ev.OccurredAt,
		Headers: []kafka.Header{
			{Key: "event-type", Value: []byte(ev.Type)},
		},
	}, nil
}

// MemoryPublisher хранит события в памяти (тесты и локальный запуск)
type MemoryPublisher struct {
	mu     sync.Mutex
	events []Event
}

func (m *MemoryPublisher) Publish(_ context.Context, ev Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, ev)
	return nil
}

func (m *MemoryPublisher) Close() error { return nil }

// Events копия накопленных событий
func (m *MemoryPublisher) Events() []Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Event, len(m.events))
	copy(out, m.events)
	return out
}

// OfType события заданного типа
func (m *MemoryPublisher) OfType(eventType string) []Event {
	var out []Event
	for _, ev := range m.Events() {
		if ev.Type == eventType {
			out = append(out, ev)
		}
	}
	return out
}
