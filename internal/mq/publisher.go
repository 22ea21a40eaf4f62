package mq

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/shaiso/Conveyor/internal/domain"
	"github.com/shaiso/Conveyor/internal/flow"
)

// MessageType — тип сообщения в очереди.
type MessageType string

// Типы сообщений.
const (
	MessageTypeFlowSubmit   MessageType = "flow.submit"
	MessageTypeFlowFinished MessageType = "flow.finished"
)

// Message — конверт сообщения.
type Message struct {
	ID        string      `json:"id"`
	Type      MessageType `json:"type"`
	Payload   any         `json:"payload"`
	Timestamp time.Time   `json:"timestamp"`
}

// FlowFinishedPayload — итог завершённого flow.
type FlowFinishedPayload struct {
	FlowID     uuid.UUID       `json:"flow_id"`
	RecordID   string          `json:"record_id"`
	Spec       string          `json:"spec"`
	Status     string          `json:"status"`
	Error      string          `json:"error,omitempty"`
	Attempts   int             `json:"attempts"`
	Steps      int             `json:"steps"`
	ElapsedMS  int64           `json:"elapsed_ms"`
	Results    []domain.Result `json:"results"`
	CreatedAt  time.Time       `json:"created_at"`
	FinishedAt time.Time       `json:"finished_at"`
}

// NewFlowFinishedPayload собирает payload из flow.
func NewFlowFinishedPayload(f *flow.TaskFlow) FlowFinishedPayload {
	p := FlowFinishedPayload{
		FlowID:     f.ID(),
		RecordID:   f.Record().ID(),
		Status:     f.Status().String(),
		Attempts:   f.Attempts(),
		Steps:      f.Steps(),
		ElapsedMS:  f.Elapsed().Milliseconds(),
		Results:    f.Results(),
		CreatedAt:  f.CreatedAt(),
		FinishedAt: f.FinishedAt(),
	}
	if spec := f.Spec(); spec != nil {
		p.Spec = spec.Name
	}
	if err := f.Err(); err != nil {
		p.Error = err.Error()
	}
	return p
}

// appID — отправитель в свойствах AMQP.
const appID = "conveyor"

// Publisher публикует сообщения в RabbitMQ.
type Publisher struct {
	conn   *Connection
	logger *slog.Logger
}

// NewPublisher создаёт Publisher поверх общего соединения.
func NewPublisher(conn *Connection, logger *slog.Logger) *Publisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Publisher{conn: conn, logger: logger}
}

func newMessage(msgType MessageType, payload any) *Message {
	return &Message{
		ID:        uuid.NewString(),
		Type:      msgType,
		Payload:   payload,
		Timestamp: time.Now().UTC(),
	}
}

// publishing кодирует конверт в persistent-сообщение.
func (m *Message) publishing(headers amqp.Table) (amqp.Publishing, error) {
	body, err := json.Marshal(m)
	if err != nil {
		return amqp.Publishing{}, fmt.Errorf("marshal message %s: %w", m.Type, err)
	}
	pub := amqp.Publishing{
		AppId:        appID,
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    m.ID,
		Type:         string(m.Type),
		Timestamp:    m.Timestamp,
		Headers:      headers,
		Body:         body,
	}
	if id, ok := headers[HeaderFlowID].(string); ok {
		pub.CorrelationId = id
	}
	return pub, nil
}

// Заголовки, по которым подписчики фильтруют итоги без разбора тела.
const (
	HeaderFlowID = "x-flow-id"
	HeaderSpec   = "x-flow-spec"
	HeaderStatus = "x-flow-status"
)

// Publish отправляет msg в exchange. Ошибка канала возвращается вызывающему.
func (p *Publisher) Publish(ctx context.Context, exchange Exchange, routingKey RoutingKey, msg *Message, headers amqp.Table) error {
	pub, err := msg.publishing(headers)
	if err != nil {
		return err
	}

	err = p.conn.WithChannel(ctx, func(ch *amqp.Channel) error {
		// mandatory=false, immediate=false
		return ch.PublishWithContext(ctx, string(exchange), string(routingKey), false, false, pub)
	})
	if err != nil {
		return fmt.Errorf("publish %s to %s/%s: %w", msg.Type, exchange, routingKey, err)
	}

	p.logger.Debug("message published",
		"exchange", exchange,
		"routing_key", routingKey,
		"message_id", msg.ID,
		"type", msg.Type,
		"bytes", len(pub.Body),
	)
	return nil
}

// PublishFlowFinished публикует итог flow в flows.finished.
func (p *Publisher) PublishFlowFinished(ctx context.Context, payload FlowFinishedPayload) error {
	headers := amqp.Table{
		HeaderFlowID: payload.FlowID.String(),
		HeaderSpec:   payload.Spec,
		HeaderStatus: payload.Status,
	}
	return p.Publish(ctx, ExchangeFlows, RoutingKeyFinished, newMessage(MessageTypeFlowFinished, payload), headers)
}

// Finished реализует worker.Sink.
func (p *Publisher) Finished(ctx context.Context, f *flow.TaskFlow) error {
	return p.PublishFlowFinished(ctx, NewFlowFinishedPayload(f))
}
