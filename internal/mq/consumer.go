package mq

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// DefaultRequeueDelay — пауза перед возвратом сообщения в очередь.
const DefaultRequeueDelay = time.Second

// Handler — функция обработки сообщения.
//
// nil — ack. Ошибка с ErrReject (см. Reject) — nack в DLQ.
// Любая другая ошибка — возврат в очередь после RequeueDelay.
type Handler func(ctx context.Context, msg *Delivery) error

// Delivery — доставленное сообщение.
type Delivery struct {
	// Message — распарсенный конверт.
	Message Message

	// Raw — сырое AMQP сообщение.
	Raw amqp.Delivery
}

// settlement — чем закончилась обработка сообщения.
type settlement int

const (
	settleAck settlement = iota
	settleRequeue
	settleReject
)

func (s settlement) String() string {
	switch s {
	case settleAck:
		return "ack"
	case settleRequeue:
		return "requeue"
	default:
		return "reject"
	}
}

// settle выбирает исход по ошибке обработчика.
func settle(err error) settlement {
	switch {
	case err == nil:
		return settleAck
	case errors.Is(err, ErrReject):
		return settleReject
	default:
		return settleRequeue
	}
}

// ConsumerConfig — конфигурация consumer.
type ConsumerConfig struct {
	// Queue — имя очереди.
	Queue Queue

	// Types — принимаемые типы сообщений. Пусто — любые.
	// Сообщения других типов уходят в DLQ.
	Types []MessageType

	// Handler — обработчик сообщений.
	Handler Handler

	// Prefetch — сколько неподтверждённых сообщений держит брокер. Default: 1.
	Prefetch int

	// RequeueDelay — пауза перед возвратом сообщения в очередь.
	// Сдерживает повторные доставки, пока очереди движка заполнены.
	// Default: DefaultRequeueDelay.
	RequeueDelay time.Duration
}

// Consumer читает заявки из очереди RabbitMQ и передаёт их обработчику.
// Сообщения обрабатываются последовательно и подтверждаются вручную.
type Consumer struct {
	conn   *Connection
	logger *slog.Logger
	cfg    ConsumerConfig

	mu     sync.Mutex
	cancel context.CancelFunc
}

// NewConsumer создаёт новый Consumer.
func NewConsumer(conn *Connection, logger *slog.Logger, cfg ConsumerConfig) *Consumer {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Prefetch <= 0 {
		cfg.Prefetch = 1
	}
	if cfg.RequeueDelay <= 0 {
		cfg.RequeueDelay = DefaultRequeueDelay
	}

	return &Consumer{
		conn:   conn,
		logger: logger.With("queue", string(cfg.Queue)),
		cfg:    cfg,
	}
}

// Start читает сообщения до отмены ctx или вызова Stop.
// После обрыва соединения ждёт переподключения и продолжает.
func (c *Consumer) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	c.mu.Lock()
	c.cancel = cancel
	c.mu.Unlock()
	defer cancel()

	for {
		deliveries, err := c.subscribe()
		if err != nil {
			c.logger.Error("failed to subscribe", "error", err)
		} else {
			c.logger.Info("consumer started")
			c.drain(ctx, deliveries)
		}

		if ctx.Err() != nil {
			return ctx.Err()
		}

		c.logger.Warn("waiting for reconnect")
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-c.conn.ReconnectNotify():
			c.logger.Info("reconnected, restarting consumer")
		}
	}
}

// Stop прерывает Start.
func (c *Consumer) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cancel != nil {
		c.cancel()
	}
}

// subscribe выставляет prefetch и подписывается на очередь.
func (c *Consumer) subscribe() (<-chan amqp.Delivery, error) {
	ch := c.conn.Channel()
	if ch == nil {
		return nil, ErrNoChannel
	}

	if err := ch.Qos(c.cfg.Prefetch, 0, false); err != nil {
		return nil, fmt.Errorf("set qos: %w", err)
	}

	deliveries, err := ch.Consume(
		string(c.cfg.Queue),
		"",    // consumer tag (auto-generated)
		false, // auto-ack: подтверждаем вручную
		false, // exclusive
		false, // no-local
		false, // no-wait
		nil,
	)
	if err != nil {
		return nil, fmt.Errorf("consume: %w", err)
	}
	return deliveries, nil
}

// drain обрабатывает доставки, пока канал открыт и ctx жив.
func (c *Consumer) drain(ctx context.Context, deliveries <-chan amqp.Delivery) {
	for {
		select {
		case <-ctx.Done():
			return
		case raw, ok := <-deliveries:
			if !ok {
				return
			}
			c.process(ctx, raw)
		}
	}
}

// process обрабатывает одно сообщение и подтверждает его.
func (c *Consumer) process(ctx context.Context, raw amqp.Delivery) {
	delivery, err := c.accept(raw)
	if err == nil {
		err = c.cfg.Handler(ctx, delivery)
	}

	outcome := settle(err)
	messageID, msgType := raw.MessageId, MessageType("")
	if delivery != nil {
		messageID, msgType = delivery.Message.ID, delivery.Message.Type
	}
	log := c.logger.With(
		"message_id", messageID,
		"type", msgType,
		"redelivered", raw.Redelivered,
		"settlement", outcome.String(),
	)

	switch outcome {
	case settleAck:
		log.Debug("message processed")
		err = raw.Ack(false)
	case settleReject:
		log.Warn("message rejected", "error", err, "body", truncateBody(raw.Body))
		err = raw.Nack(false, false)
	case settleRequeue:
		log.Warn("message requeued", "error", err, "delay", c.cfg.RequeueDelay)
		// ctx отменён — сообщение всё равно возвращаем, без паузы
		select {
		case <-ctx.Done():
		case <-time.After(c.cfg.RequeueDelay):
		}
		err = raw.Nack(false, true)
	}
	if err != nil {
		log.Error("failed to settle message", "error", err)
	}
}

// accept разбирает конверт и проверяет тип сообщения.
func (c *Consumer) accept(raw amqp.Delivery) (*Delivery, error) {
	delivery, err := decodeDelivery(raw)
	if err != nil {
		return nil, Reject(err)
	}
	if len(c.cfg.Types) > 0 && !slices.Contains(c.cfg.Types, delivery.Message.Type) {
		return delivery, Reject(fmt.Errorf("unexpected message type %q", delivery.Message.Type))
	}
	return delivery, nil
}

// decodeDelivery разбирает конверт сообщения.
// Пустой id конверта заменяется AMQP message-id.
func decodeDelivery(raw amqp.Delivery) (*Delivery, error) {
	var msg Message
	if err := json.Unmarshal(raw.Body, &msg); err != nil {
		return nil, fmt.Errorf("unmarshal message: %w", err)
	}
	if msg.ID == "" {
		msg.ID = raw.MessageId
	}
	return &Delivery{Message: msg, Raw: raw}, nil
}

func truncateBody(body []byte) string {
	const limit = 256
	if len(body) <= limit {
		return string(body)
	}
	return string(body[:limit]) + "..."
}

// ParsePayload парсит payload сообщения в указанный тип.
func ParsePayload[T any](msg *Message) (T, error) {
	var result T

	// Payload после json.Unmarshal конверта — map[string]any
	payloadBytes, err := json.Marshal(msg.Payload)
	if err != nil {
		return result, fmt.Errorf("marshal payload: %w", err)
	}

	if err := json.Unmarshal(payloadBytes, &result); err != nil {
		return result, fmt.Errorf("unmarshal payload: %w", err)
	}
	return result, nil
}
