package connector

import "errors"

// Ошибки коннекторов.
var (
	// ErrRouting — у коннектора нет операции для ключа маршрутизации команды.
	ErrRouting = errors.New("no connector operation for route key")

	// ErrDispatch — операция коннектора завершилась ошибкой (таймаут, обрыв, плохой ответ).
	ErrDispatch = errors.New("connector dispatch failed")

	// ErrUnknownConnector — тип коннектора не зарегистрирован.
	ErrUnknownConnector = errors.New("unknown connector type")

	// ErrCreate — фабрика не смогла создать коннектор.
	ErrCreate = errors.New("connector create failed")
)
