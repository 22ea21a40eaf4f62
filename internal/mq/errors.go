package mq

import (
	"errors"
	"fmt"
)

// Ошибки RabbitMQ-инфраструктуры.
var (
	// ErrNoChannel — AMQP канал не открыт (соединение потеряно).
	ErrNoChannel = errors.New("no amqp channel available")

	// ErrClosed — соединение закрыто через Close.
	ErrClosed = errors.New("amqp connection closed")

	// ErrReject — сообщение нельзя обработать никогда: consumer отправляет
	// его в DLQ без повторной доставки.
	ErrReject = errors.New("message rejected")
)

// Reject помечает ошибку обработчика как окончательную.
func Reject(err error) error {
	if err == nil {
		return ErrReject
	}
	return fmt.Errorf("%w: %w", ErrReject, err)
}
