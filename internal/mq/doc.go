// Package mq предоставляет инфраструктуру для работы с RabbitMQ.
//
// Структура:
//   - connection.go — соединение с RabbitMQ (reconnect, graceful shutdown)
//   - topology.go   — объявление exchanges, queues, bindings
//   - publisher.go  — публикация сообщений, Publisher реализует worker.Sink
//   - consumer.go   — потребление сообщений с ручным ack
//
// Исход обработки сообщения:
//   - nil                 — ack
//   - ошибка с ErrReject  — nack без requeue, сообщение уходит в dlq.flows
//   - другая ошибка       — пауза RequeueDelay, затем nack с requeue
//
// Типы сообщений:
//   - flow.submit   — заявка на запуск flow (потребитель: intake)
//   - flow.finished — итог завершённого flow (для внешних подписчиков)
//
// Exchanges:
//   - conveyor.flows — заявки и итоги flows
//   - conveyor.dlq   — dead letter queue
package mq
