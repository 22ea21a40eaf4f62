package mq

import (
	"context"
	"fmt"
	"strings"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Exchange — имя обменника.
type Exchange string

// Queue — имя очереди.
type Queue string

// RoutingKey — ключ маршрутизации.
type RoutingKey string

const (
	ExchangeFlows Exchange = "conveyor.flows"
	ExchangeDLQ   Exchange = "conveyor.dlq"

	QueueFlowsSubmit   Queue = "flows.submit"
	QueueFlowsFinished Queue = "flows.finished"
	QueueDLQFlows      Queue = "dlq.flows"

	RoutingKeySubmit   RoutingKey = "submit"
	RoutingKeyFinished RoutingKey = "finished"
	RoutingKeyDLQFlows RoutingKey = "flows"
)

// boundQueue — durable очередь, привязанная к обменнику одним ключом.
type boundQueue struct {
	name       Queue
	key        RoutingKey
	deadLetter bool   // reject уходит в ExchangeDLQ
	reader     string // кто читает, только для TopologyInfo
}

type exchangeDecl struct {
	name   Exchange
	kind   string
	queues []boundQueue
}

// topology — все объекты брокера, которые объявляет сервис.
var topology = []exchangeDecl{
	{
		name: ExchangeFlows,
		kind: amqp.ExchangeDirect,
		queues: []boundQueue{
			{name: QueueFlowsSubmit, key: RoutingKeySubmit, deadLetter: true, reader: "intake"},
			{name: QueueFlowsFinished, key: RoutingKeyFinished, reader: "external subscribers"},
		},
	},
	{
		name: ExchangeDLQ,
		kind: amqp.ExchangeDirect,
		queues: []boundQueue{
			{name: QueueDLQFlows, key: RoutingKeyDLQFlows, reader: "manual"},
		},
	},
}

func (q boundQueue) args() amqp.Table {
	if !q.deadLetter {
		return nil
	}
	return amqp.Table{
		"x-dead-letter-exchange":    string(ExchangeDLQ),
		"x-dead-letter-routing-key": string(RoutingKeyDLQFlows),
	}
}

// SetupTopology объявляет обменники, очереди и привязки. Повторный вызов безопасен.
func SetupTopology(ctx context.Context, conn *Connection) error {
	return conn.WithChannel(ctx, func(ch *amqp.Channel) error {
		for _, ex := range topology {
			if err := declareExchange(ch, ex); err != nil {
				return err
			}
		}
		return nil
	})
}

func declareExchange(ch *amqp.Channel, ex exchangeDecl) error {
	// durable, без auto-delete, не internal, с ожиданием ответа
	if err := ch.ExchangeDeclare(string(ex.name), ex.kind, true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare exchange %s: %w", ex.name, err)
	}
	for _, q := range ex.queues {
		if _, err := ch.QueueDeclare(string(q.name), true, false, false, false, q.args()); err != nil {
			return fmt.Errorf("declare queue %s: %w", q.name, err)
		}
		if err := ch.QueueBind(string(q.name), string(q.key), string(ex.name), false, nil); err != nil {
			return fmt.Errorf("bind %s to %s: %w", q.name, ex.name, err)
		}
	}
	return nil
}

// TopologyInfo описывает объявленную топологию одной строкой на очередь.
func TopologyInfo() string {
	var b strings.Builder
	for _, ex := range topology {
		for _, q := range ex.queues {
			fmt.Fprintf(&b, "%s(%s) -[%s]-> %s reader=%s", ex.name, ex.kind, q.key, q.name, q.reader)
			if q.deadLetter {
				fmt.Fprintf(&b, " dlx=%s", ExchangeDLQ)
			}
			b.WriteString("; ")
		}
	}
	return strings.TrimSuffix(b.String(), "; ")
}
