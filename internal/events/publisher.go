// Package events публикует доменные события журнала в Kafka.
package events

import (
	"context"
	"strconv"
	"sync"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/segmentio/kafka-go"

	"tradejournal/pkg/utils"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Типы событий
const (
	TypeTradesImported = "trades.imported"
	TypeBrokerStatus   = "broker.status"
)

// Event - конверт события. Key сообщения - id пользователя,
// поэтому события одного пользователя попадают в одну партицию.
type Event struct {
	Type       string      `json:"type"`
	UserID     int64       `json:"user_id"`
	Payload    interface{} `json:"payload"`
	OccurredAt time.Time   `json:"occurred_at"`
}

// TradesImported - результат импорта сделок брокера
type TradesImported struct {
	BrokerID      int64  `json:"broker_id"`
	BrokerType    string `json:"broker_type"`
	ImportedCount int    `json:"imported_count"`
	TotalTrades   int    `json:"total_trades"`
}

// BrokerStatusChanged - смена статуса брокерского аккаунта
type BrokerStatusChanged struct {
	BrokerID   int64  `json:"broker_id"`
	BrokerType string `json:"broker_type"`
	Status     string `json:"status"`
}

// Publisher публикует события
type Publisher interface {
	Publish(ctx context.Context, event Event) error
	Close() error
}

// messageWriter - часть kafka.Writer, нужная продюсеру
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher пишет события в один topic
type KafkaPublisher struct {
	writer messageWriter
	topic  string
	logger *utils.Logger
	now    func() time.Time
	mu     sync.Mutex
	closed bool
}

// NewKafkaPublisher создаёт продюсера для topic
func NewKafkaPublisher(brokers []string, clientID, topic string, logger *utils.Logger) *KafkaPublisher {
	writer := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		BatchSize:    100,
		BatchTimeout: 10 * time.Millisecond,
		RequiredAcks: kafka.RequireOne,
		Async:        false,
		Transport: &kafka.Transport{
			ClientID: clientID,
		},
	}
	return newKafkaPublisher(writer, topic, logger)
}

func newKafkaPublisher(writer messageWriter, topic string, logger *utils.Logger) *KafkaPublisher {
	if logger == nil {
		logger = utils.L()
	}
	return &KafkaPublisher{
		writer: writer,
		topic:  topic,
		logger: logger.WithComponent("events"),
		now:    time.Now,
	}
}

// Publish сериализует событие и отправляет его синхронно
func (p *KafkaPublisher) Publish(ctx context.Context, event Event) error {
	if event.OccurredAt.IsZero() {
		event.OccurredAt = p.now().UTC()
	}

	value, err := json.Marshal(event)
	if err != nil {
		p.logger.Error("failed to marshal event", utils.String("type", event.Type), utils.Err(err))
		return err
	}

	key := strconv.FormatInt(event.UserID, 10)
	msg := kafka.Message{
		Key:   []byte(key),
		Value: value,
		Headers: []kafka.Header{
			{Key: "event-type", Value: []byte(event.Type)},
		},
		Time: event.OccurredAt,
	}

	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		p.logger.Error("failed to publish event",
			utils.String("topic", p.topic),
			utils.String("type", event.Type),
			utils.UserID(event.UserID),
			utils.Err(err))
		return err
	}

	p.logger.Debug("event published",
		utils.String("topic", p.topic),
		utils.String("type", event.Type),
		utils.UserID(event.UserID))
	return nil
}

// Close закрывает writer. Повторный вызов ничего не делает.
func (p *KafkaPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true
	return p.writer.Close()
}

// NopPublisher отбрасывает события (Kafka не настроена)
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, Event) error { return nil }
func (NopPublisher) Close() error                         { return nil }
